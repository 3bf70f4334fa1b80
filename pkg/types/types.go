// Package types holds the small set of interfaces and value types shared
// across the decoder, buffer and playback layers, so that none of those
// packages need to import each other.
package types

import "time"

// AudioDecoder is the common interface for all compressed-audio decoders
// (MP3, FLAC, OGG, WAV). Each decoder converts a compressed source file into
// raw PCM samples in its own native sample rate/channel layout; the caller
// (SongDecoder) is responsible for converting to the device's target format.
type AudioDecoder interface {
	// Open opens an audio file for decoding.
	Open(fileName string) error

	// Close closes the decoder and releases resources.
	Close() error

	// GetFormat returns the audio format information.
	// Returns: sample rate (Hz), channels (1=mono, 2=stereo), bits per sample (8/16/24/32)
	GetFormat() (rate, channels, bitsPerSample int)

	// DecodeSamples decodes audio samples into the provided buffer.
	// Parameters:
	//   samples: number of samples to decode (not bytes!)
	//   audio: buffer to write decoded audio data
	// Returns: number of samples actually decoded, error if decoding failed
	// Note: Buffer must be large enough: samples * channels * (bitsPerSample/8) bytes
	DecodeSamples(samples int, audio []byte) (int, error)
}

// AudioFormat is the immutable descriptor carried alongside a PCM byte
// stream from the decoder down through the effect chain to the device.
type AudioFormat struct {
	SampleRate    int // Hz
	Channels      int // 1=mono, 2=stereo, ...
	BitsPerSample int // 8, 16, 24 or 32
}

// BytesPerSample reports the byte width of a single channel sample.
func (f AudioFormat) BytesPerSample() int {
	return f.BitsPerSample / 8
}

// BytesPerFrame reports the byte width of one frame (one sample per channel).
func (f AudioFormat) BytesPerFrame() int {
	return f.Channels * f.BytesPerSample()
}

// PlaybackStatus holds unified playback information for CLI/monitor reporting.
type PlaybackStatus struct {
	FileName        string        // Name of the currently playing file
	SampleRate      int           // Audio sample rate in Hz (e.g., 44100, 48000)
	Channels        int           // Number of audio channels (1=mono, 2=stereo)
	BitsPerSample   int           // Bit depth (8, 16, 24, or 32)
	FramesPerBuffer int           // PortAudio frames per buffer (if applicable)
	PlayedSamples   uint64        // Samples actually sent to audio output (played)
	BufferedSamples uint64        // Samples decoded but not yet played (in-flight)
	ElapsedTime     time.Duration // Wall-clock time since playback started
}

// PlaybackMonitor is an interface for types that can report playback status.
type PlaybackMonitor interface {
	GetPlaybackStatus() PlaybackStatus
}
