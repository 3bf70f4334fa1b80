// Package flac decodes FLAC files through the go-flac frame decoder,
// exposed behind the shared types.AudioDecoder interface.
package flac

import (
	"fmt"

	goflac "github.com/drgolem/go-flac/flac"
)

// outputBits is the sample width the frame decoder is asked to produce.
// FLAC sources can carry 16- or 24-bit samples; decoding everything to
// 16-bit keeps the output uniform with the other codecs and is what the
// playback pipeline consumes anyway.
const outputBits = 16

// Decoder decodes one FLAC file at a time behind types.AudioDecoder.
type Decoder struct {
	handle   *goflac.FlacDecoder
	rate     int
	channels int
	bits     int
}

// NewDecoder returns an unopened FLAC decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Open creates a frame decoder at the fixed output width and binds it to
// fileName, caching the stream's format.
func (d *Decoder) Open(fileName string) error {
	handle, err := goflac.NewFlacFrameDecoder(outputBits)
	if err != nil {
		return fmt.Errorf("create flac decoder: %w", err)
	}

	if err := handle.Open(fileName); err != nil {
		handle.Delete()
		return fmt.Errorf("open %s: %w", fileName, err)
	}

	d.rate, d.channels, d.bits = handle.GetFormat()
	d.handle = handle
	return nil
}

// Close releases the decoder. Safe to call on an unopened decoder.
func (d *Decoder) Close() error {
	if d.handle == nil {
		return nil
	}
	d.handle.Close()
	d.handle.Delete()
	d.handle = nil
	return nil
}

// GetFormat returns the sample rate, channel count and bits per sample of
// the decoded output, valid after Open.
func (d *Decoder) GetFormat() (rate, channels, bitsPerSample int) {
	return d.rate, d.channels, d.bits
}

// DecodeSamples decodes up to samples frames into audio. Returns the number
// of frames actually decoded.
func (d *Decoder) DecodeSamples(samples int, audio []byte) (int, error) {
	if d.handle == nil {
		return 0, fmt.Errorf("decoder not open")
	}
	return d.handle.DecodeSamples(samples, audio)
}
