package effectchain

import "sync/atomic"

// FadeStage applies a linear fade-out envelope over a caller-specified
// duration, then aborts the whole chain so every later read returns zero
// bytes. The envelope runs on one counter over the interleaved stream: a
// total for the duration, a remaining count ticked down one 16-bit sample
// at a time, each sample scaled by remaining/total.
type FadeStage struct {
	baseStage

	channels   int
	sampleRate int

	total     atomic.Int64
	remaining atomic.Int64
	fading    atomic.Bool
}

// NewFadeStage wraps next with a fade-out stage, initially not fading.
func NewFadeStage(next Stage) *FadeStage {
	format := next.Format()
	return &FadeStage{
		baseStage:  baseStage{next: next},
		channels:   format.Channels,
		sampleRate: format.SampleRate,
	}
}

// FadeOut starts a linear fade-out over durationMs milliseconds.
func (f *FadeStage) FadeOut(durationMs int) {
	total := int64(f.channels) * int64(f.sampleRate) * int64(durationMs) / 1000
	if total < 1 {
		total = 1
	}
	f.total.Store(total)
	f.remaining.Store(total)
	f.fading.Store(true)
}

// Read pulls whole 16-bit samples from below and, while fading, scales each
// one by remaining/total, decrementing remaining. Once remaining reaches
// zero the rest of the buffer is zeroed and the whole chain is aborted, so
// every subsequent read returns zero bytes.
func (f *FadeStage) Read(dst []byte) (int, error) {
	n := (len(dst) / 2) * 2 // whole 16-bit samples
	if n == 0 {
		return 0, nil
	}

	if !f.fading.Load() {
		return f.next.Read(dst[:n])
	}

	if f.remaining.Load() <= 0 {
		if f.Aborted() {
			// The envelope already completed and aborted the chain; every
			// further read is zero bytes so the consumer observes drain.
			return 0, nil
		}
		for i := range dst[:n] {
			dst[i] = 0
		}
		f.Abort()
		return n, nil
	}

	got, err := f.next.Read(dst[:n])
	samples := got / 2

	total := f.total.Load()
	for i := 0; i < samples; i++ {
		remaining := f.remaining.Load()
		if remaining <= 0 {
			for j := i * 2; j < got; j++ {
				dst[j] = 0
			}
			f.Abort()
			return got, nil
		}

		idx := i * 2
		s := int16(uint16(dst[idx]) | uint16(dst[idx+1])<<8)
		scaled := int16(int64(s) * remaining / total)
		dst[idx] = byte(uint16(scaled))
		dst[idx+1] = byte(uint16(scaled) >> 8)

		f.remaining.Add(-1)
	}

	return got, err
}
