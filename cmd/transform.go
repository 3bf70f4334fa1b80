package cmd

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/drgolem/practicetempo/pkg/decoders"
	"github.com/drgolem/practicetempo/pkg/types"

	"github.com/spf13/cobra"
	wav "github.com/youpy/go-wav"
	soxr "github.com/zaf/resample"
)

var (
	transformRate int
	transformOut  string
	transformMono bool
)

var transformCmd = &cobra.Command{
	Use:   "transform <input_file>",
	Short: "Transform audio file sample rate and format",
	Long: `Decode an audio file, resample it to a target rate, and write the result
as 16-bit PCM WAV. Useful for preparing practice tracks at the rate the
playback device runs at, so no live resampling is needed.

Examples:
  # Transform MP3 to 48kHz WAV
  practicetempo transform input.mp3 --new-samplerate 48000 --out output.wav

  # Transform FLAC to 44.1kHz mono WAV
  practicetempo transform input.flac --new-samplerate 44100 --mono --out output.wav

  # Transform WAV with default settings (48kHz)
  practicetempo transform input.wav

Supported Input Formats:
  MP3 (.mp3), FLAC (.flac/.fla), OGG/Vorbis (.ogg), WAV (.wav)`,
	Args: cobra.ExactArgs(1),
	Run:  runTransform,
}

func init() {
	rootCmd.AddCommand(transformCmd)

	transformCmd.Flags().IntVar(&transformRate, "new-samplerate", 48000, "Target sample rate in Hz")
	transformCmd.Flags().StringVar(&transformOut, "out", "out_transformed.wav", "Output WAV file path")
	transformCmd.Flags().BoolVar(&transformMono, "mono", false, "Average all channels down to mono")
}

func runTransform(cmd *cobra.Command, args []string) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if transformRate <= 0 || transformRate > 384000 {
		slog.Error("invalid sample rate", "rate", transformRate, "valid_range", "1-384000")
		os.Exit(1)
	}

	if err := transformFile(args[0], transformOut, transformRate, transformMono); err != nil {
		slog.Error("transform failed", "input", args[0], "error", err)
		os.Exit(1)
	}
}

func transformFile(inPath, outPath string, targetRate int, mono bool) error {
	dec, err := decoders.NewDecoder(inPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer dec.Close()

	srcRate, channels, bits := dec.GetFormat()
	slog.Info("transforming",
		"input", inPath,
		"source_rate", srcRate,
		"channels", channels,
		"bits_per_sample", bits,
		"target_rate", targetRate,
		"mono", mono,
		"output", outPath)

	pcm, err := decodeAll(dec, channels, bits)
	if err != nil {
		return err
	}
	slog.Info("decoded", "bytes", len(pcm))

	if srcRate != targetRate {
		if pcm, err = resamplePCM(pcm, srcRate, targetRate, channels); err != nil {
			return err
		}
	}

	if mono && channels > 1 {
		pcm = downmixMono16(pcm, channels)
		channels = 1
	}

	frames := len(pcm) / (channels * bits / 8)
	slog.Info("writing output", "frames", frames, "path", outPath)
	return writeWAV(outPath, pcm, uint32(frames), uint16(channels), uint32(targetRate), uint16(bits))
}

// decodeAll drains the decoder into memory. The whole file has to be in
// hand before resampling anyway, since soxr flushes its tail only on Close.
func decodeAll(dec types.AudioDecoder, channels, bits int) ([]byte, error) {
	const chunkSamples = 4096
	frameBytes := channels * bits / 8
	chunk := make([]byte, chunkSamples*frameBytes)
	var pcm []byte

	for {
		n, err := dec.DecodeSamples(chunkSamples, chunk)
		if n > 0 {
			pcm = append(pcm, chunk[:n*frameBytes]...)
		}
		if err != nil {
			msg := strings.ToLower(err.Error())
			if strings.Contains(msg, "eof") || strings.Contains(msg, "done") {
				return pcm, nil
			}
			return nil, fmt.Errorf("decode: %w", err)
		}
		if n == 0 {
			return pcm, nil
		}
	}
}

// resamplePCM pushes the whole stream through one soxr instance and closes
// it, so the resampler's latency tail is flushed into the output.
func resamplePCM(pcm []byte, fromRate, toRate, channels int) ([]byte, error) {
	var out bytes.Buffer
	r, err := soxr.New(&out, float64(fromRate), float64(toRate), channels, soxr.I16, soxr.HighQ)
	if err != nil {
		return nil, fmt.Errorf("create resampler: %w", err)
	}
	if _, err := r.Write(pcm); err != nil {
		r.Close()
		return nil, fmt.Errorf("resample: %w", err)
	}
	if err := r.Close(); err != nil {
		return nil, fmt.Errorf("flush resampler: %w", err)
	}
	return out.Bytes(), nil
}

// downmixMono16 averages the channels of each 16-bit frame into one sample.
func downmixMono16(pcm []byte, channels int) []byte {
	frameBytes := channels * 2
	frames := len(pcm) / frameBytes
	out := make([]byte, frames*2)

	for f := 0; f < frames; f++ {
		var sum int32
		for ch := 0; ch < channels; ch++ {
			idx := f*frameBytes + ch*2
			sum += int32(int16(uint16(pcm[idx]) | uint16(pcm[idx+1])<<8))
		}
		avg := uint16(int16(sum / int32(channels)))
		out[f*2] = byte(avg)
		out[f*2+1] = byte(avg >> 8)
	}
	return out
}

func writeWAV(path string, pcm []byte, frames uint32, channels uint16, rate uint32, bits uint16) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	w := wav.NewWriter(f, frames, channels, rate, bits)
	if _, err := w.Write(pcm); err != nil {
		return fmt.Errorf("write wav data: %w", err)
	}
	return nil
}
