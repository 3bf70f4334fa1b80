// Package decoder implements the SongDecoder: a background worker that
// drives a pkg/types.AudioDecoder and feeds converted PCM into a
// playbackbuffer.PlaybackBuffer, handling seek and skip-start requests from
// the consumer side.
package decoder

import (
	"bytes"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	soxr "github.com/zaf/resample"

	"github.com/drgolem/practicetempo/internal/playbackbuffer"
	"github.com/drgolem/practicetempo/pkg/decoders"
	"github.com/drgolem/practicetempo/pkg/types"
)

const chunkSamples = 4096

// openCodec is a seam over decoders.NewDecoder so tests can substitute a
// fake AudioDecoder without touching real codec libraries or the filesystem.
var openCodec = decoders.NewDecoder

// lengthReporter is implemented by codecs that know the source's total
// frame count up front (e.g. pkg/decoders/ogg). Codecs without it leave the
// buffer's total-frames estimate unknown.
type lengthReporter interface {
	TotalFrames() int64
}

// SongDecoder owns a codec instance and pumps decoded, format-converted PCM
// into a PlaybackBuffer on a dedicated goroutine. The wrapped AudioDecoder
// has no native seek operation (Open/Close/GetFormat/DecodeSamples only), so
// seek_to is implemented as close-and-reopen followed by decode-and-discard
// up to the target position, rather than a demuxer-level jump.
type SongDecoder struct {
	fileName  string
	dstFormat types.AudioFormat

	buf *playbackbuffer.PlaybackBuffer

	codec     types.AudioDecoder
	srcFormat types.AudioFormat

	resampler   *soxr.Resampler
	resampleOut *bytes.Buffer

	seekReq chan float64

	wg      sync.WaitGroup
	openErr atomic.Bool
}

// Open binds a SongDecoder to a file and starts its decode worker. If the
// file cannot be opened, the returned SongDecoder's buffer is immediately
// EOF and aborted so a reader sees an empty stream rather than blocking
// forever; the error is still returned for logging. skipStartSeconds, if
// positive, is discarded from the front of the stream before the first
// frame reaches the buffer.
func Open(fileName string, dstFormat types.AudioFormat, bufCapacity uint64, skipStartSeconds float64) (*SongDecoder, error) {
	buf := playbackbuffer.New(bufCapacity, dstFormat)

	sd := &SongDecoder{
		fileName:  fileName,
		dstFormat: dstFormat,
		buf:       buf,
		seekReq:   make(chan float64, 1),
	}

	codec, err := openCodec(fileName)
	if err != nil {
		slog.Error("song decoder: failed to open source", "file", fileName, "error", err)
		sd.openErr.Store(true)
		buf.SetEOF()
		buf.Abort()
		return sd, fmt.Errorf("open %s: %w", fileName, err)
	}

	rate, channels, bits := codec.GetFormat()
	sd.codec = codec
	sd.srcFormat = types.AudioFormat{SampleRate: rate, Channels: channels, BitsPerSample: bits}

	if lr, ok := codec.(lengthReporter); ok {
		if srcTotal := lr.TotalFrames(); srcTotal > 0 && rate > 0 {
			buf.SetTotalFrames(srcTotal * int64(dstFormat.SampleRate) / int64(rate))
		}
	}

	sd.wg.Add(1)
	go sd.run(skipStartSeconds)

	return sd, nil
}

// Buffer returns the PlaybackBuffer the worker writes into.
func (sd *SongDecoder) Buffer() *playbackbuffer.PlaybackBuffer {
	return sd.buf
}

// OpenFailed reports whether the source file could not be opened at all,
// in which case the buffer is already a closed, empty EOF stream.
func (sd *SongDecoder) OpenFailed() bool {
	return sd.openErr.Load()
}

// SeekTo requests that the worker jump to the given position, in seconds
// from the start of the source. Only the most recent pending request is
// honored if several arrive before the worker notices.
func (sd *SongDecoder) SeekTo(seconds float64) {
	select {
	case sd.seekReq <- seconds:
	default:
		// replace the pending request
		select {
		case <-sd.seekReq:
		default:
		}
		sd.seekReq <- seconds
	}
}

// Close aborts the buffer, unblocking a worker parked on a full write, and
// waits for the worker goroutine to exit.
func (sd *SongDecoder) Close() {
	sd.buf.Abort()
	sd.wg.Wait()
	if sd.codec != nil {
		sd.codec.Close()
	}
}

func (sd *SongDecoder) run(skipStartSeconds float64) {
	defer sd.wg.Done()
	defer sd.buf.SetEOF()

	if sd.srcFormat.SampleRate != sd.dstFormat.SampleRate {
		if err := sd.openResampler(); err != nil {
			slog.Error("song decoder: resampler setup failed", "file", sd.fileName, "error", err)
			return
		}
		defer sd.closeResampler()
	}

	if skipStartSeconds > 0 {
		// Skip-start is a seek before the first frame: the cursor moves to
		// the skip offset so position queries report in-track time, not
		// time since decoding began.
		sd.buf.SeekToFrame(uint64(skipStartSeconds * float64(sd.dstFormat.SampleRate)))
		sd.discard(skipStartSeconds)
	}

	raw := make([]byte, chunkSamples*sd.srcFormat.BytesPerFrame())

	for {
		select {
		case target := <-sd.seekReq:
			sd.performSeek(target)
			continue
		default:
		}

		if sd.buf.Aborted() {
			return
		}

		n, err := sd.codec.DecodeSamples(chunkSamples, raw)
		if n > 0 {
			out := sd.convert(raw[:n*sd.srcFormat.BytesPerFrame()])
			if _, werr := sd.buf.WriteFrames(out); werr != nil {
				slog.Error("song decoder: write failed", "file", sd.fileName, "error", werr)
				return
			}
		}
		if err != nil {
			// Any decode error terminates the stream as EOF, so the consumer
			// only ever sees one failure mode: the buffer drains and then
			// reports IsEOF with nothing left to read.
			if !isCleanEOF(err) {
				slog.Warn("song decoder: decode error, treating as end of stream", "file", sd.fileName, "error", err)
			}
			return
		}
		if n == 0 {
			return
		}
	}
}

// isCleanEOF reports whether err represents ordinary end-of-stream rather
// than a genuine decode fault. The codec libraries signal completion with
// an error whose text names EOF or "done" rather than a shared typed
// sentinel, so the distinction is textual.
func isCleanEOF(err error) bool {
	if err == nil {
		return true
	}
	msg := err.Error()
	return containsFold(msg, "eof") || containsFold(msg, "done")
}

func containsFold(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		match := true
		for j := 0; j < len(substr); j++ {
			a, b := s[i+j], substr[j]
			if 'A' <= a && a <= 'Z' {
				a += 'a' - 'A'
			}
			if 'A' <= b && b <= 'Z' {
				b += 'a' - 'A'
			}
			if a != b {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// discard decodes and throws away audio until `seconds` of source material
// (seconds × source rate frames) has been consumed, used for skip-start and
// as the tail half of seek (close, reopen, discard-to-target). The last
// request is cut to the frames still missing, so decoding resumes at the
// target frame rather than at the next chunk boundary.
func (sd *SongDecoder) discard(seconds float64) {
	targetFrames := int64(seconds * float64(sd.srcFormat.SampleRate))
	if targetFrames <= 0 {
		return
	}
	scratch := make([]byte, chunkSamples*sd.srcFormat.BytesPerFrame())
	var consumed int64
	for consumed < targetFrames {
		want := int64(chunkSamples)
		if rest := targetFrames - consumed; rest < want {
			want = rest
		}
		n, err := sd.codec.DecodeSamples(int(want), scratch)
		consumed += int64(n)
		if err != nil || n == 0 {
			return
		}
	}
}

// performSeek reopens the source and discards up to the target position.
// The underlying AudioDecoder interface has no native seek, so this is the
// only option available without assuming codec-specific extensions beyond
// what pkg/types.AudioDecoder exposes.
func (sd *SongDecoder) performSeek(seconds float64) {
	if seconds < 0 {
		seconds = 0
	}

	sd.buf.SeekToFrame(uint64(seconds * float64(sd.dstFormat.SampleRate)))

	if sd.codec != nil {
		sd.codec.Close()
	}

	codec, err := openCodec(sd.fileName)
	if err != nil {
		slog.Error("song decoder: reopen on seek failed", "file", sd.fileName, "error", err)
		sd.codec = nil
		return
	}
	sd.codec = codec

	if sd.resampler != nil {
		sd.closeResampler()
		if err := sd.openResampler(); err != nil {
			slog.Error("song decoder: resampler re-init on seek failed", "file", sd.fileName, "error", err)
		}
	}

	sd.discard(seconds)
}

func (sd *SongDecoder) openResampler() error {
	sd.resampleOut = &bytes.Buffer{}
	r, err := soxr.New(
		sd.resampleOut,
		float64(sd.srcFormat.SampleRate),
		float64(sd.dstFormat.SampleRate),
		sd.dstFormat.Channels,
		soxr.I16,
		soxr.HighQ,
	)
	if err != nil {
		return fmt.Errorf("create resampler: %w", err)
	}
	sd.resampler = r
	return nil
}

func (sd *SongDecoder) closeResampler() {
	if sd.resampler == nil {
		return
	}
	sd.resampler.Close()
	sd.resampler = nil
}

// convert coerces a chunk of raw source-format PCM into the destination
// format: bit depth and channel layout first (cheap, local), sample rate
// last via the persistent soxr instance (the only stateful stage).
func (sd *SongDecoder) convert(raw []byte) []byte {
	data := raw

	data = convertChannels(data, sd.srcFormat.Channels, sd.dstFormat.Channels, sd.srcFormat.BitsPerSample)
	data = convertBitDepth(data, sd.srcFormat.BitsPerSample, 16)

	if sd.resampler == nil {
		if sd.dstFormat.BitsPerSample != 16 {
			data = convertBitDepth(data, 16, sd.dstFormat.BitsPerSample)
		}
		return data
	}

	sd.resampleOut.Reset()
	if _, err := sd.resampler.Write(data); err != nil {
		slog.Error("song decoder: resample write failed", "file", sd.fileName, "error", err)
		return nil
	}
	out := make([]byte, sd.resampleOut.Len())
	copy(out, sd.resampleOut.Bytes())

	if sd.dstFormat.BitsPerSample != 16 {
		out = convertBitDepth(out, 16, sd.dstFormat.BitsPerSample)
	}
	return out
}
