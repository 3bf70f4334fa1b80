// Package mp3 decodes MP3 files through the mpg123 bindings, exposed behind
// the shared types.AudioDecoder interface.
package mp3

import (
	"fmt"

	"github.com/drgolem/go-mpg123/mpg123"
)

// Decoder decodes one MP3 file at a time. The zero value is not usable;
// call Open before the first DecodeSamples.
type Decoder struct {
	handle   *mpg123.Decoder
	rate     int
	channels int
	bits     int
}

// NewDecoder returns an unopened MP3 decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Open creates the underlying mpg123 handle and binds it to fileName,
// caching the stream's native format.
func (d *Decoder) Open(fileName string) error {
	handle, err := mpg123.NewDecoder("")
	if err != nil {
		return fmt.Errorf("create mpg123 decoder: %w", err)
	}

	if err := handle.Open(fileName); err != nil {
		handle.Delete()
		return fmt.Errorf("open %s: %w", fileName, err)
	}

	d.rate, d.channels, d.bits = handle.GetFormat()
	d.handle = handle
	return nil
}

// Close releases the mpg123 handle. Safe to call on an unopened decoder.
func (d *Decoder) Close() error {
	if d.handle == nil {
		return nil
	}
	d.handle.Close()
	d.handle.Delete()
	d.handle = nil
	return nil
}

// GetFormat returns the stream's native sample rate, channel count and bits
// per sample, valid after Open.
func (d *Decoder) GetFormat() (rate, channels, bitsPerSample int) {
	return d.rate, d.channels, d.bits
}

// DecodeSamples decodes up to samples frames into audio, which must hold at
// least samples * channels * bytes-per-sample bytes. Returns the number of
// frames actually decoded; mpg123 reports end of stream through the error.
func (d *Decoder) DecodeSamples(samples int, audio []byte) (int, error) {
	if d.handle == nil {
		return 0, fmt.Errorf("decoder not open")
	}
	return d.handle.DecodeSamples(samples, audio)
}
