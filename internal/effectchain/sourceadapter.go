package effectchain

import (
	"time"

	"github.com/drgolem/practicetempo/internal/playbackbuffer"
	"github.com/drgolem/practicetempo/pkg/types"
)

// Seeker is the decoder side of a SourceAdapter: the component actually
// pulling samples off the source, which a seek must reach in order to
// reposition the demuxer rather than only discard buffered bytes.
type Seeker interface {
	SeekTo(seconds float64)
}

// SourceAdapter exposes a PlaybackBuffer as the bottom Stage of a chain. It
// is the only stage that talks to the buffer directly; every stage above it
// reaches the buffer by forwarding through SourceAdapter. Seek requests are
// forwarded to seeker rather than applied to the buffer here: the buffer's
// SeekToFrame must run on the decoder's own worker goroutine, synchronized
// with the demuxer jump (see internal/decoder.SongDecoder.SeekTo /
// performSeek), not from whatever thread calls SourceAdapter.SeekTo.
type SourceAdapter struct {
	buf    *playbackbuffer.PlaybackBuffer
	seeker Seeker
}

// NewSourceAdapter wraps a PlaybackBuffer and the decoder filling it as a
// chain source.
func NewSourceAdapter(buf *playbackbuffer.PlaybackBuffer, seeker Seeker) *SourceAdapter {
	return &SourceAdapter{buf: buf, seeker: seeker}
}

func (s *SourceAdapter) Read(dst []byte) (int, error) { return s.buf.Read(dst) }
func (s *SourceAdapter) AvailableRead() uint64        { return s.buf.AvailableRead() }
func (s *SourceAdapter) WaitForData() bool            { return s.buf.WaitForData() }
func (s *SourceAdapter) Abort()                       { s.buf.Abort() }
func (s *SourceAdapter) Aborted() bool                 { return s.buf.Aborted() }
func (s *SourceAdapter) AtEOF() bool                   { return s.buf.IsEOF() }
func (s *SourceAdapter) Clear()                        { s.buf.Clear() }
func (s *SourceAdapter) FadeOut(int)                   {} // no effect below the chain
func (s *SourceAdapter) SetTempo(float64)              {} // no effect below the chain
func (s *SourceAdapter) Format() types.AudioFormat     { return s.buf.Format() }

func (s *SourceAdapter) SeekTo(seconds float64) {
	if s.seeker != nil {
		s.seeker.SeekTo(seconds)
	}
}

func (s *SourceAdapter) CurrentPosition() time.Duration {
	rate := s.buf.Format().SampleRate
	if rate == 0 {
		return 0
	}
	return time.Duration(float64(s.buf.CurrentFrame()) / float64(rate) * float64(time.Second))
}

func (s *SourceAdapter) RemainingTime() time.Duration {
	total := s.buf.TotalFrames()
	if total < 0 {
		return -1
	}
	rate := s.buf.Format().SampleRate
	if rate == 0 {
		return 0
	}
	remaining := total - int64(s.buf.CurrentFrame())
	if remaining < 0 {
		remaining = 0
	}
	return time.Duration(float64(remaining) / float64(rate) * float64(time.Second))
}
