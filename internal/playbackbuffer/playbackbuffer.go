// Package playbackbuffer implements the PlaybackBuffer: a blocking ring
// buffer of PCM bytes plus the bookkeeping the rest of the pipeline needs
// on top of raw bytes — the target audio format, a frame-counting write
// cursor, a total-frames estimate, and an end-of-stream flag.
package playbackbuffer

import (
	"sync/atomic"

	"github.com/drgolem/practicetempo/internal/ringbuf"
	"github.com/drgolem/practicetempo/pkg/types"
)

// PlaybackBuffer is a ring buffer of PCM bytes in a fixed AudioFormat, plus
// frame-counting metadata used for position/remaining-time queries. Position
// is derived from the frame cursor rather than from the ring buffer's own
// read/write positions, so that "frames produced" and "frames remaining"
// stay monotone even as the ring drains under the consumer.
type PlaybackBuffer struct {
	ring   *ringbuf.RingBuffer
	format types.AudioFormat

	writeCursorFrames atomic.Uint64 // frames handed to the ring so far
	totalFrames        atomic.Int64  // -1 until known
	eof                atomic.Bool
}

// New creates a PlaybackBuffer over a new ring buffer of the given byte
// capacity, which should be a multiple of the format's frame size.
func New(capacity uint64, format types.AudioFormat) *PlaybackBuffer {
	pb := &PlaybackBuffer{
		ring:   ringbuf.New(capacity),
		format: format,
	}
	pb.totalFrames.Store(-1)
	return pb
}

// Format returns the buffer's fixed audio format.
func (pb *PlaybackBuffer) Format() types.AudioFormat {
	return pb.format
}

// SetTotalFrames records the expected total frame count once known (e.g.
// once the decoder has read container duration metadata). -1 means unknown.
func (pb *PlaybackBuffer) SetTotalFrames(frames int64) {
	pb.totalFrames.Store(frames)
}

// TotalFrames returns the expected total frame count, or -1 if unknown.
func (pb *PlaybackBuffer) TotalFrames() int64 {
	return pb.totalFrames.Load()
}

// CurrentFrame returns the number of frames handed to the ring so far.
func (pb *PlaybackBuffer) CurrentFrame() uint64 {
	return pb.writeCursorFrames.Load()
}

// WriteFrames writes PCM bytes produced by the decoder worker, advancing
// the frame-counting write cursor. data's length must be a whole multiple
// of the format's frame size. Blocks per RingBuffer.Write semantics.
func (pb *PlaybackBuffer) WriteFrames(data []byte) (int, error) {
	n, err := pb.ring.Write(data)
	if n > 0 {
		pb.writeCursorFrames.Add(uint64(n / pb.format.BytesPerFrame()))
	}
	return n, err
}

// Read pulls bytes off the ring for the consumer (effect chain / device).
func (pb *PlaybackBuffer) Read(data []byte) (int, error) {
	return pb.ring.Read(data)
}

// AvailableRead returns an instantaneous snapshot of readable bytes, so the
// device callback can test for data without risking a blocking Read.
func (pb *PlaybackBuffer) AvailableRead() uint64 {
	return pb.ring.AvailableRead()
}

// WaitForData blocks until data is available or the buffer is aborted.
func (pb *PlaybackBuffer) WaitForData() bool {
	return pb.ring.WaitForData()
}

// IsEOF reports whether the producer has finished successfully.
func (pb *PlaybackBuffer) IsEOF() bool {
	return pb.eof.Load()
}

// SetEOF marks the producer as finished. Called by the decoder worker on
// source exhaustion; does not itself abort the ring, so the consumer still
// drains whatever bytes remain. It does not wake a reader either: once the
// ring is empty, Read keeps blocking until Abort, so consumers detect the
// end of stream by IsEOF together with a zero AvailableRead.
func (pb *PlaybackBuffer) SetEOF() {
	pb.eof.Store(true)
}

// Clear discards the ring's buffered bytes without touching the frame
// cursor or EOF flag, distinct from SeekToFrame which also repositions the
// cursor. Reached through the effect chain's Clear (SourceAdapter.Clear),
// to drop stale buffered audio without implying a seek.
func (pb *PlaybackBuffer) Clear() {
	pb.ring.Clear()
}

// Abort propagates cancellation down to the ring buffer.
func (pb *PlaybackBuffer) Abort() {
	pb.ring.Abort()
}

// Aborted reports whether Abort has been called.
func (pb *PlaybackBuffer) Aborted() bool {
	return pb.ring.Aborted()
}

// SeekToFrame is the producer-side half of a seek: it discards the ring's
// contents and resets the frame cursor to F. The caller
// (SongDecoder) is responsible for jumping its demuxer to frame F before
// resuming writes, so that the first frame the consumer subsequently reads
// is indeed the frame at position F.
func (pb *PlaybackBuffer) SeekToFrame(f uint64) {
	pb.ring.Clear()
	pb.writeCursorFrames.Store(f)
	pb.eof.Store(false)
}
