// Package effectchain implements the pull-mode stage composition that sits
// between a PlaybackBuffer and the audio device: a tempo-changing resampler
// stage and a fade-out envelope stage, each satisfying the same stream
// contract as the buffer underneath it.
package effectchain

import (
	"time"

	"github.com/drgolem/practicetempo/pkg/types"
)

// Stage is the pull contract every link in the chain satisfies, matching
// PlaybackBuffer's own surface (read, wait_for_data, abort, seek_to, clear,
// fade_out, set_tempo, current_position, remaining_time, format) so stages
// compose transparently and the top of the chain looks like a buffer to its
// caller.
type Stage interface {
	Read(dst []byte) (int, error)
	AvailableRead() uint64
	WaitForData() bool
	Abort()
	Aborted() bool
	AtEOF() bool
	SeekTo(seconds float64)
	Clear()
	FadeOut(durationMs int)
	SetTempo(t float64)
	CurrentPosition() time.Duration
	RemainingTime() time.Duration
	Format() types.AudioFormat
}

// baseStage forwards every operation to the next stage down. Concrete
// stages embed it and override only the operations they transform,
// following the same embedding-for-default-behaviour idiom the standard
// library uses for wrapping readers (e.g. bufio.Reader around io.Reader).
type baseStage struct {
	next Stage
}

func (b *baseStage) Read(dst []byte) (int, error)   { return b.next.Read(dst) }
func (b *baseStage) AvailableRead() uint64           { return b.next.AvailableRead() }
func (b *baseStage) WaitForData() bool               { return b.next.WaitForData() }
func (b *baseStage) Abort()                          { b.next.Abort() }
func (b *baseStage) Aborted() bool                   { return b.next.Aborted() }
func (b *baseStage) AtEOF() bool                     { return b.next.AtEOF() }
func (b *baseStage) SeekTo(seconds float64)          { b.next.SeekTo(seconds) }
func (b *baseStage) Clear()                          { b.next.Clear() }
func (b *baseStage) FadeOut(durationMs int)          { b.next.FadeOut(durationMs) }
func (b *baseStage) SetTempo(t float64)              { b.next.SetTempo(t) }
func (b *baseStage) CurrentPosition() time.Duration  { return b.next.CurrentPosition() }
func (b *baseStage) RemainingTime() time.Duration    { return b.next.RemainingTime() }
func (b *baseStage) Format() types.AudioFormat       { return b.next.Format() }

// Build assembles the standard two-stage chain (tempo then fade, fade on
// top) over a source Stage, applying an initial tempo coefficient.
func Build(source Stage, initialTempo float64) *FadeStage {
	tempo := NewTempoStage(source)
	tempo.SetTempo(initialTempo)
	return NewFadeStage(tempo)
}
