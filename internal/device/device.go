// Package device wraps PortAudio's callback-mode output stream, pulling PCM
// from an effect-chain Stage on every audio-thread callback.
package device

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/drgolem/go-portaudio/portaudio"

	"github.com/drgolem/practicetempo/internal/effectchain"
	"github.com/drgolem/practicetempo/pkg/types"
)

// State mirrors the device's coarse playback state as observed by the
// output thread.
type State int32

const (
	Stopped State = iota
	Active
	Idle
	Suspended
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Idle:
		return "idle"
	case Suspended:
		return "suspended"
	default:
		return "stopped"
	}
}

// Config holds device configuration.
type Config struct {
	FramesPerBuffer int
	DeviceIndex     int
	NotifyInterval  time.Duration
}

// DefaultConfig returns sensible defaults: a 512-frame buffer, output
// device index 1, and a notify tick frequent enough for duration-limit
// enforcement to feel responsive without waking the output thread too
// often.
func DefaultConfig() Config {
	return Config{
		FramesPerBuffer: 512,
		DeviceIndex:     1,
		NotifyInterval:  250 * time.Millisecond,
	}
}

// FallbackFormats returns the decreasing list of candidate output formats
// the Player tries in order: 48kHz stereo 16-bit, then 44.1kHz stereo
// 16-bit, then the caller's preferred (device-native) format.
func FallbackFormats(preferred types.AudioFormat) []types.AudioFormat {
	return []types.AudioFormat{
		{SampleRate: 48000, Channels: 2, BitsPerSample: 16},
		{SampleRate: 44100, Channels: 2, BitsPerSample: 16},
		preferred,
	}
}

// Device owns a PortAudio callback stream and pulls from a swappable
// effect-chain Stage. The output-thread callback is the only place PCM is
// read; SetSource swaps the chain without tearing the stream down (the
// Player itself opens a fresh Device for every track).
type Device struct {
	cfg    Config
	stream *portaudio.PaStream
	format types.AudioFormat

	mu     sync.Mutex
	source effectchain.Stage

	volume atomic.Uint64 // bits of a float64 in [0,1], default 1.0

	state         atomic.Int32
	onStateChange func(State)

	notifyTicker *time.Ticker
	Notify       <-chan time.Time

	drained     chan struct{}
	drainedOnce sync.Once
}

// New creates a Device with the given configuration, volume at unity.
func New(cfg Config) *Device {
	d := &Device{cfg: cfg}
	d.volume.Store(math.Float64bits(1.0))
	return d
}

// SetStateChangeFunc registers a callback invoked (from the output thread)
// whenever the device's coarse state changes.
func (d *Device) SetStateChangeFunc(f func(State)) {
	d.onStateChange = f
}

// SetVolume sets output gain in [0, 1], applied per-sample in the callback.
func (d *Device) SetVolume(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	d.volume.Store(math.Float64bits(v))
}

// Volume returns the current gain.
func (d *Device) Volume() float64 {
	return math.Float64frombits(d.volume.Load())
}

// Open configures and opens a callback stream in the given format, reading
// from source. Returns an error if the format is unsupported by PortAudio
// or the device; the caller (Player) is responsible for retrying with the
// next candidate format from FallbackFormats.
func (d *Device) Open(format types.AudioFormat, source effectchain.Stage) error {
	var sampleFormat portaudio.PaSampleFormat
	switch format.BitsPerSample {
	case 16:
		sampleFormat = portaudio.SampleFmtInt16
	case 24:
		sampleFormat = portaudio.SampleFmtInt24
	case 32:
		sampleFormat = portaudio.SampleFmtInt32
	default:
		return fmt.Errorf("unsupported bit depth: %d", format.BitsPerSample)
	}

	d.mu.Lock()
	d.source = source
	d.mu.Unlock()
	d.format = format

	d.stream = &portaudio.PaStream{
		OutputParameters: &portaudio.PaStreamParameters{
			DeviceIndex:  d.cfg.DeviceIndex,
			ChannelCount: format.Channels,
			SampleFormat: sampleFormat,
		},
		SampleRate: float64(format.SampleRate),
	}

	if err := d.stream.OpenCallback(d.cfg.FramesPerBuffer, d.callback); err != nil {
		return fmt.Errorf("open callback stream: %w", err)
	}

	d.drained = make(chan struct{})
	d.drainedOnce = sync.Once{}
	return nil
}

// Start starts the stream and the notify ticker.
func (d *Device) Start() error {
	if err := d.stream.StartStream(); err != nil {
		return fmt.Errorf("start stream: %w", err)
	}
	d.setState(Active)
	d.notifyTicker = time.NewTicker(d.cfg.NotifyInterval)
	d.Notify = d.notifyTicker.C
	return nil
}

// Pause stops the stream without closing it, so Resume can restart the same
// callback registration. Used for the Player's Paused state, distinct from
// Stop which tears the stream down entirely.
func (d *Device) Pause() error {
	if d.stream == nil {
		return nil
	}
	if err := d.stream.StopStream(); err != nil {
		return fmt.Errorf("pause stream: %w", err)
	}
	d.setState(Suspended)
	return nil
}

// Resume restarts a stream previously paused with Pause.
func (d *Device) Resume() error {
	if d.stream == nil {
		return fmt.Errorf("device not open")
	}
	if err := d.stream.StartStream(); err != nil {
		return fmt.Errorf("resume stream: %w", err)
	}
	d.setState(Active)
	return nil
}

// SetSource swaps the chain the callback reads from while the stream keeps
// running.
func (d *Device) SetSource(source effectchain.Stage) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.source = source
}

// Drained returns a channel closed once the callback observes the current
// source fully exhausted.
func (d *Device) Drained() <-chan struct{} {
	return d.drained
}

// Stop stops and closes the stream. Safe to call even if Open failed.
func (d *Device) Stop() error {
	if d.notifyTicker != nil {
		d.notifyTicker.Stop()
	}
	if d.stream == nil {
		d.setState(Stopped)
		return nil
	}
	if err := d.stream.StopStream(); err != nil {
		slog.Warn("device: failed to stop stream", "error", err)
	}
	err := d.stream.CloseCallback()
	d.setState(Stopped)
	return err
}

// State returns the device's current coarse state.
func (d *Device) State() State {
	return State(d.state.Load())
}

func (d *Device) setState(s State) {
	d.state.Store(int32(s))
	if d.onStateChange != nil {
		d.onStateChange(s)
	}
}

// callback runs on PortAudio's real-time thread: it must not allocate
// beyond what's unavoidable and must never block. The chain's Read blocks
// on an empty ring, so the callback only reads after AvailableRead reports
// data; a decoder underrun produces one buffer of silence instead of a
// stall. Zero available bytes mean drained only once the chain is aborted
// or its source is at end of stream.
func (d *Device) callback(
	input, output []byte,
	frameCount uint,
	timeInfo *portaudio.StreamCallbackTimeInfo,
	statusFlags portaudio.StreamCallbackFlags,
) portaudio.StreamCallbackResult {
	d.mu.Lock()
	source := d.source
	d.mu.Unlock()

	if source == nil {
		clear(output)
		return portaudio.Continue
	}

	var n int
	if source.AvailableRead() > 0 {
		n, _ = source.Read(output)
	}
	if n < len(output) {
		clear(output[n:])
	}
	applyVolume(output[:n], d.Volume())

	if n == 0 {
		if source.Aborted() || source.AtEOF() {
			d.drainedOnce.Do(func() { close(d.drained) })
			return portaudio.Complete
		}
		// Underrun: the decoder has fallen behind. Keep the stream alive
		// with silence until data arrives or the source ends.
		return portaudio.Continue
	}
	return portaudio.Continue
}

// applyVolume scales 16-bit signed samples in place. A no-op at unity gain
// so the common case avoids the per-sample loop entirely.
func applyVolume(data []byte, v float64) {
	if v >= 0.999 {
		return
	}
	for i := 0; i+1 < len(data); i += 2 {
		s := int16(uint16(data[i]) | uint16(data[i+1])<<8)
		scaled := int16(float64(s) * v)
		data[i] = byte(uint16(scaled))
		data[i+1] = byte(uint16(scaled) >> 8)
	}
}
