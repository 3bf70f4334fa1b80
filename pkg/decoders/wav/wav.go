// Package wav decodes PCM WAV files through go-wav, exposed behind the
// shared types.AudioDecoder interface.
package wav

import (
	"fmt"
	"os"

	"github.com/youpy/go-wav"
)

// Decoder reads one PCM WAV file at a time behind types.AudioDecoder.
// go-wav hands back decoded samples as per-channel integer values, so
// DecodeSamples repacks them into little-endian PCM bytes at the source's
// own bit depth.
type Decoder struct {
	file     *os.File
	reader   *wav.Reader
	rate     int
	channels int
	bits     int
}

// NewDecoder returns an unopened WAV decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Open opens fileName and parses its RIFF header. Only uncompressed PCM
// payloads are accepted.
func (d *Decoder) Open(fileName string) error {
	file, err := os.Open(fileName)
	if err != nil {
		return fmt.Errorf("open %s: %w", fileName, err)
	}

	reader := wav.NewReader(file)
	format, err := reader.Format()
	if err != nil {
		file.Close()
		return fmt.Errorf("read wav header of %s: %w", fileName, err)
	}
	if format.AudioFormat != wav.AudioFormatPCM {
		file.Close()
		return fmt.Errorf("wav payload format %d is not PCM", format.AudioFormat)
	}

	d.file = file
	d.reader = reader
	d.rate = int(format.SampleRate)
	d.channels = int(format.NumChannels)
	d.bits = int(format.BitsPerSample)
	return nil
}

// Close closes the underlying file. Safe to call on an unopened decoder.
func (d *Decoder) Close() error {
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	d.reader = nil
	return err
}

// GetFormat returns the file's sample rate, channel count and bits per
// sample, valid after Open.
func (d *Decoder) GetFormat() (rate, channels, bitsPerSample int) {
	return d.rate, d.channels, d.bits
}

// DecodeSamples reads up to samples frames and packs them into audio as
// little-endian PCM. Returns the number of frames actually decoded; a short
// count with a nil error means the buffer filled, io.EOF means the data
// chunk is exhausted.
func (d *Decoder) DecodeSamples(samples int, audio []byte) (int, error) {
	if d.reader == nil {
		return 0, fmt.Errorf("decoder not open")
	}

	width := d.bits / 8
	frameBytes := d.channels * width
	if max := len(audio) / frameBytes; samples > max {
		samples = max
	}
	if samples == 0 {
		return 0, nil
	}

	frames, err := d.reader.ReadSamples(uint32(samples))

	for i, frame := range frames {
		for ch := 0; ch < d.channels && ch < len(frame.Values); ch++ {
			if e := d.packSample(audio[i*frameBytes+ch*width:], frame.Values[ch]); e != nil {
				return i, e
			}
		}
	}

	if len(frames) > 0 {
		// Deliver what was read; the exhausted-stream error resurfaces on
		// the next call, when there is nothing left to deliver.
		return len(frames), nil
	}
	return 0, err
}

// packSample writes one channel value as a little-endian signed integer of
// the file's bit depth.
func (d *Decoder) packSample(dst []byte, value int) error {
	switch d.bits {
	case 8:
		dst[0] = byte(value)
	case 16:
		dst[0] = byte(value)
		dst[1] = byte(value >> 8)
	case 24:
		dst[0] = byte(value)
		dst[1] = byte(value >> 8)
		dst[2] = byte(value >> 16)
	case 32:
		dst[0] = byte(value)
		dst[1] = byte(value >> 8)
		dst[2] = byte(value >> 16)
		dst[3] = byte(value >> 24)
	default:
		return fmt.Errorf("unsupported wav bit depth: %d", d.bits)
	}
	return nil
}
