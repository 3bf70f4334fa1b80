// Package ogg wraps jfreymuth/oggvorbis to provide OGG/Vorbis decoding
// behind the shared types.AudioDecoder interface, the way pkg/decoders/mp3
// and pkg/decoders/flac wrap their respective codec libraries.
package ogg

import (
	"fmt"
	"os"

	"github.com/jfreymuth/oggvorbis"
)

// Decoder wraps oggvorbis.Reader for OGG/Vorbis decoding.
// Implements types.AudioDecoder. oggvorbis decodes to float32 samples in
// [-1, 1]; this decoder always exposes 16-bit signed PCM output to match
// the rest of the pipeline's sample width.
type Decoder struct {
	file     *os.File
	reader   *oggvorbis.Reader
	rate     int
	channels int

	floatBuf []float32
}

// NewDecoder creates a new OGG/Vorbis decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Open opens and initializes an OGG file for decoding.
func (d *Decoder) Open(fileName string) error {
	file, err := os.Open(fileName)
	if err != nil {
		return fmt.Errorf("failed to open OGG file: %w", err)
	}

	reader, err := oggvorbis.NewReader(file)
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to open OGG stream %s: %w", fileName, err)
	}

	d.file = file
	d.reader = reader
	d.rate = reader.SampleRate()
	d.channels = reader.Channels()

	return nil
}

// Close closes the decoder and releases resources.
func (d *Decoder) Close() error {
	d.reader = nil
	if d.file != nil {
		err := d.file.Close()
		d.file = nil
		return err
	}
	return nil
}

// GetFormat returns the audio format (sample rate, channels, 16 bits per sample).
func (d *Decoder) GetFormat() (rate, channels, bitsPerSample int) {
	return d.rate, d.channels, 16
}

// TotalFrames returns the stream's total length in frames per channel, or
// -1 if unknown (e.g. an unseekable stream with no end-of-stream page).
func (d *Decoder) TotalFrames() int64 {
	if d.reader == nil {
		return -1
	}
	if n := d.reader.Length(); n > 0 {
		return n
	}
	return -1
}

// DecodeSamples decodes up to 'samples' audio samples (frames per channel)
// into the provided buffer as signed 16-bit little-endian PCM.
func (d *Decoder) DecodeSamples(samples int, audio []byte) (int, error) {
	if d.reader == nil {
		return 0, fmt.Errorf("decoder not initialized")
	}

	need := samples * d.channels
	if cap(d.floatBuf) < need {
		d.floatBuf = make([]float32, need)
	}
	floatBuf := d.floatBuf[:need]

	n, err := d.reader.Read(floatBuf)
	if n == 0 {
		return 0, err
	}

	framesRead := n / d.channels
	for i := 0; i < framesRead*d.channels; i++ {
		sample := clampToInt16(floatBuf[i])
		audio[i*2] = byte(sample & 0xFF)
		audio[i*2+1] = byte((sample >> 8) & 0xFF)
	}

	return framesRead, err
}

func clampToInt16(v float32) int16 {
	scaled := v * 32767
	switch {
	case scaled > 32767:
		return 32767
	case scaled < -32768:
		return -32768
	default:
		return int16(scaled)
	}
}
