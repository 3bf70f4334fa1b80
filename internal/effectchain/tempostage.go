package effectchain

import (
	"bytes"
	"log/slog"
	"sync/atomic"
	"time"

	soxr "github.com/zaf/resample"
)

// TempoStage changes playback speed by resampling: for tempo coefficient T,
// one second of source material becomes 1/T seconds of output, shifting
// pitch by the same factor. set_tempo only stores the new destination rate;
// the resampler itself is torn down and rebuilt lazily, on the consumer
// thread, the next time Read notices the rate changed. This avoids racing a
// rebuild against the audio callback.
type TempoStage struct {
	baseStage

	channels      int
	bitsPerSample int
	srcRate       int64 // Sₛ, the rate of the stage below

	destRate atomic.Int64 // S_d, set by SetTempo, read by Read

	builtDestRate int64 // consumer-thread only: rate the live resampler was built for
	resampler     *soxr.Resampler
	resampleOut   *bytes.Buffer
}

// NewTempoStage wraps next with a tempo stage at unity tempo (T=1).
func NewTempoStage(next Stage) *TempoStage {
	format := next.Format()
	t := &TempoStage{
		baseStage:     baseStage{next: next},
		channels:      format.Channels,
		bitsPerSample: format.BitsPerSample,
		srcRate:       int64(format.SampleRate),
	}
	t.destRate.Store(int64(format.SampleRate))
	return t
}

// SetTempo stores S_d = round(Sₛ/T). It is safe to call from any thread; it
// does not touch the resampler.
func (t *TempoStage) SetTempo(tempo float64) {
	if tempo <= 0 {
		return
	}
	destRate := int64(float64(t.srcRate)/tempo + 0.5)
	if destRate < 1 {
		destRate = 1
	}
	t.destRate.Store(destRate)
}

func (t *TempoStage) frameSize() int {
	return t.channels * (t.bitsPerSample / 8)
}

func (t *TempoStage) maybeRebuild() {
	desired := t.destRate.Load()
	if desired == t.builtDestRate && t.resampler != nil {
		return
	}
	if t.resampler != nil {
		t.resampler.Close()
		t.resampler = nil
	}
	if desired == t.srcRate {
		// Unity tempo: no resampler needed, Read short-circuits to a
		// straight pull-through below.
		t.builtDestRate = desired
		return
	}

	t.resampleOut = &bytes.Buffer{}
	r, err := soxr.New(
		t.resampleOut,
		float64(t.srcRate),
		float64(desired),
		t.channels,
		soxr.I16,
		soxr.HighQ,
	)
	if err != nil {
		slog.Error("tempo stage: resampler rebuild failed", "error", err)
		return
	}
	t.resampler = r
	t.builtDestRate = desired
}

// Read computes how many source frames to pull for n requested output
// frames, reads them from below, pushes them through the resampler, and
// copies what comes out to dst.
func (t *TempoStage) Read(dst []byte) (int, error) {
	t.maybeRebuild()

	frameSize := t.frameSize()
	n := (len(dst) / frameSize) * frameSize
	if n == 0 {
		return 0, nil
	}

	destRate := t.builtDestRate
	if destRate == t.srcRate || t.resampler == nil {
		return t.next.Read(dst[:n])
	}

	nFrames := n / frameSize
	pullFrames := int64(nFrames) * t.srcRate / destRate
	if pullFrames > int64(nFrames) {
		pullFrames = int64(nFrames)
	}
	if pullFrames < 1 {
		pullFrames = 1
	}

	src := make([]byte, int(pullFrames)*frameSize)
	got, err := t.next.Read(src)
	if got < len(src) {
		src = src[:got]
	}
	if got == 0 {
		return 0, err
	}

	t.resampleOut.Reset()
	if _, werr := t.resampler.Write(src); werr != nil {
		slog.Error("tempo stage: resample write failed", "error", werr)
		return 0, werr
	}

	produced := t.resampleOut.Bytes()
	copied := copy(dst, produced)
	return copied, err
}

func (t *TempoStage) CurrentPosition() time.Duration {
	destRate := t.destRate.Load()
	if destRate == 0 {
		return t.next.CurrentPosition()
	}
	scale := float64(destRate) / float64(t.srcRate)
	return time.Duration(float64(t.next.CurrentPosition()) * scale)
}

func (t *TempoStage) RemainingTime() time.Duration {
	remaining := t.next.RemainingTime()
	if remaining < 0 {
		return -1
	}
	destRate := t.destRate.Load()
	scale := float64(destRate) / float64(t.srcRate)
	return time.Duration(float64(remaining) * scale)
}
