// Package playlist defines the Playlist and Item contracts consumed by
// internal/player, plus a minimal in-memory implementation so the playback
// engine is usable from the CLI without a song library behind it.
package playlist

import (
	"github.com/drgolem/practicetempo/internal/decoder"
	"github.com/drgolem/practicetempo/internal/playbackbuffer"
	"github.com/drgolem/practicetempo/pkg/types"
)

// Item is the contract the Player relies on for a single playlist entry:
// display metadata (used only for logging), a duration limit, a tempo
// coefficient, a skip-start offset, and the ability to start decoding
// itself into a fresh PlaybackBuffer.
type Item interface {
	DisplayName() string
	DurationLimit() float64 // seconds; <0 means unlimited
	TempoCoeff() float64
	SetTempoCoeff(t float64)
	SkipStart() float64 // seconds to discard before the first frame
	StartDecoding(format types.AudioFormat) (*playbackbuffer.PlaybackBuffer, Seeker, error)
}

// Seeker lets a caller holding a PlaybackBuffer from StartDecoding also
// reach the decoder filling it, so a later seek can reposition the demuxer
// and not just the buffer's own read cursor. *decoder.SongDecoder satisfies
// this.
type Seeker interface {
	SeekTo(seconds float64)
}

// Playlist is the contract the Player relies on for track sequencing:
// current/next/prev/jump, removal, and a subscription for item deletion.
type Playlist interface {
	Current() (Item, bool)
	Next() bool
	Prev() bool
	SetCurrent(index int) bool
	RemoveSong(item Item)
	OnItemDeleted(fn func(index int))
	Items() []Item
	HasNext() bool
}

// SongItem is the minimal, file-backed Item implementation: one audio file,
// an optional duration limit, a persisted tempo coefficient, and an
// optional skip-start offset. It owns no PlaybackBuffer itself; each call
// to StartDecoding opens a fresh decoder.SongDecoder.
type SongItem struct {
	FileName       string
	Author         string
	Title          string
	durationLimit  float64
	tempoCoeff     float64
	skipStartSecs  float64
	bufferCapacity uint64

	activeDecoder *decoder.SongDecoder
}

// NewSongItem creates a SongItem with an unlimited duration and unity tempo.
func NewSongItem(fileName string) *SongItem {
	return &SongItem{
		FileName:       fileName,
		durationLimit:  -1,
		tempoCoeff:     1.0,
		bufferCapacity: 256 * 1024,
	}
}

func (s *SongItem) DisplayName() string {
	if s.Title != "" {
		return s.Title
	}
	return s.FileName
}

func (s *SongItem) DurationLimit() float64      { return s.durationLimit }
func (s *SongItem) SetDurationLimit(sec float64) { s.durationLimit = sec }

func (s *SongItem) TempoCoeff() float64          { return s.tempoCoeff }
func (s *SongItem) SetTempoCoeff(t float64)      { s.tempoCoeff = t }

func (s *SongItem) SkipStart() float64          { return s.skipStartSecs }
func (s *SongItem) SetSkipStart(sec float64)    { s.skipStartSecs = sec }

// StartDecoding opens a new SongDecoder for this item's file at the given
// output format and returns its PlaybackBuffer along with the decoder
// itself as a Seeker, so the caller can wire seek requests straight to the
// demuxer instead of just the buffer. Any previously active decoder for
// this item is closed first; a SongItem is only ever attached to one live
// decode at a time.
func (s *SongItem) StartDecoding(format types.AudioFormat) (*playbackbuffer.PlaybackBuffer, Seeker, error) {
	if s.activeDecoder != nil {
		s.activeDecoder.Close()
		s.activeDecoder = nil
	}

	sd, err := decoder.Open(s.FileName, format, s.bufferCapacity, s.skipStartSecs)
	s.activeDecoder = sd
	if err != nil {
		return sd.Buffer(), sd, err
	}
	return sd.Buffer(), sd, nil
}

// Close releases the active decoder, if any.
func (s *SongItem) Close() {
	if s.activeDecoder != nil {
		s.activeDecoder.Close()
		s.activeDecoder = nil
	}
}

// List is the minimal in-memory Playlist: an ordered slice of Items and a
// bounds-checked current index.
type List struct {
	items        []Item
	currentIdx   int
	onItemDelete []func(index int)
}

// NewList creates an empty playlist.
func NewList() *List {
	return &List{currentIdx: 0}
}

// Add appends an item to the end of the playlist.
func (l *List) Add(item Item) {
	l.items = append(l.items, item)
}

// Items returns the playlist's items, in order.
func (l *List) Items() []Item {
	return l.items
}

func (l *List) Current() (Item, bool) {
	if l.currentIdx < 0 || l.currentIdx >= len(l.items) {
		return nil, false
	}
	return l.items[l.currentIdx], true
}

// Next advances the current index by one, returning false (and leaving the
// index unchanged) if already at the last item.
func (l *List) Next() bool {
	if l.currentIdx+1 >= len(l.items) {
		return false
	}
	l.currentIdx++
	return true
}

// Prev moves the current index back by one, returning false if already at
// the first item.
func (l *List) Prev() bool {
	if l.currentIdx <= 0 {
		return false
	}
	l.currentIdx--
	return true
}

// HasNext reports whether a later item exists without moving the current
// index, used by the duration-limit check to decide between advancing and
// pausing without disturbing playlist state.
func (l *List) HasNext() bool {
	return l.currentIdx+1 < len(l.items)
}

// SetCurrent jumps directly to index, returning false if out of range.
func (l *List) SetCurrent(index int) bool {
	if index < 0 || index >= len(l.items) {
		return false
	}
	l.currentIdx = index
	return true
}

// RemoveSong removes the first occurrence of item from the playlist. If the
// removed index is before the current index, the current index is adjusted
// so it keeps pointing at the same logical neighbour. Every registered
// item-deleted subscriber is notified with the removed index.
func (l *List) RemoveSong(item Item) {
	for i, it := range l.items {
		if it == item {
			l.items = append(l.items[:i], l.items[i+1:]...)
			if l.currentIdx > i {
				l.currentIdx--
			}
			for _, fn := range l.onItemDelete {
				fn(i)
			}
			return
		}
	}
}

// OnItemDeleted registers a callback invoked whenever RemoveSong removes an
// item, with the removed item's former index.
func (l *List) OnItemDeleted(fn func(index int)) {
	l.onItemDelete = append(l.onItemDelete, fn)
}
