package player

import (
	"errors"
	"testing"
	"time"

	"github.com/drgolem/practicetempo/internal/playbackbuffer"
	"github.com/drgolem/practicetempo/internal/playlist"
	"github.com/drgolem/practicetempo/pkg/types"
)

var errStartDecodingUnsupported = errors.New("fakeItem does not decode in unit tests")

// fakeChain is a minimal effectchain.Stage double that records calls the
// state machine makes on it, without touching any real audio pipeline.
type fakeChain struct {
	position  time.Duration
	fadeCalls []int
	tempo     float64
	seekCalls []float64
	aborted   bool
}

func (f *fakeChain) Read(dst []byte) (int, error)  { return 0, nil }
func (f *fakeChain) AvailableRead() uint64         { return 0 }
func (f *fakeChain) WaitForData() bool             { return true }
func (f *fakeChain) AtEOF() bool                   { return false }
func (f *fakeChain) Abort()                        { f.aborted = true }
func (f *fakeChain) Aborted() bool                 { return f.aborted }
func (f *fakeChain) SeekTo(seconds float64)        { f.seekCalls = append(f.seekCalls, seconds) }
func (f *fakeChain) Clear()                        {}
func (f *fakeChain) FadeOut(durationMs int)        { f.fadeCalls = append(f.fadeCalls, durationMs) }
func (f *fakeChain) SetTempo(t float64)            { f.tempo = t }
func (f *fakeChain) CurrentPosition() time.Duration { return f.position }
func (f *fakeChain) RemainingTime() time.Duration   { return 0 }
func (f *fakeChain) Format() types.AudioFormat {
	return types.AudioFormat{SampleRate: 44100, Channels: 2, BitsPerSample: 16}
}

// fakeItem is a minimal playlist.Item double; its StartDecoding is reached
// only where a test's state transition runs into beginTrack.
type fakeItem struct {
	name       string
	limit      float64
	tempo      float64
	tempoCalls []float64
}

func (f *fakeItem) DisplayName() string       { return f.name }
func (f *fakeItem) DurationLimit() float64    { return f.limit }
func (f *fakeItem) TempoCoeff() float64       { return f.tempo }
func (f *fakeItem) SetTempoCoeff(t float64)   { f.tempo = t; f.tempoCalls = append(f.tempoCalls, t) }
func (f *fakeItem) SkipStart() float64 { return 0 }

// StartDecoding always fails: these tests drive the state machine below
// beginTrack directly and only exercise beginTrack itself far enough to
// confirm it reacts to a decode failure the same way it reacts to EOF,
// without needing a real codec or PortAudio device.
func (f *fakeItem) StartDecoding(types.AudioFormat) (*playbackbuffer.PlaybackBuffer, playlist.Seeker, error) {
	return nil, nil, errStartDecodingUnsupported
}

// fakeList is a minimal playlist.Playlist double with controllable
// Next/Prev/SetCurrent outcomes, used to drive doAdvance/handleTick/
// handleItemRemoved without a real playlist.
type fakeList struct {
	items      []playlist.Item
	currentIdx int
	nextOK     bool
	prevOK     bool
	deleteFns  []func(int)
}

func (l *fakeList) Current() (playlist.Item, bool) {
	if l.currentIdx < 0 || l.currentIdx >= len(l.items) {
		return nil, false
	}
	return l.items[l.currentIdx], true
}
func (l *fakeList) Next() bool {
	if !l.nextOK || l.currentIdx+1 >= len(l.items) {
		return false
	}
	l.currentIdx++
	return true
}
func (l *fakeList) Prev() bool {
	if !l.prevOK || l.currentIdx <= 0 {
		return false
	}
	l.currentIdx--
	return true
}
func (l *fakeList) SetCurrent(index int) bool {
	if index < 0 || index >= len(l.items) {
		return false
	}
	l.currentIdx = index
	return true
}
func (l *fakeList) RemoveSong(item playlist.Item) {}
func (l *fakeList) OnItemDeleted(fn func(int))    { l.deleteFns = append(l.deleteFns, fn) }
func (l *fakeList) Items() []playlist.Item        { return l.items }
func (l *fakeList) HasNext() bool                 { return l.nextOK && l.currentIdx+1 < len(l.items) }

// newTestPlayer builds a Player without starting its output-thread
// goroutine, so tests can call the unexported state-machine methods
// directly and deterministically, mirroring how internal/device's tests
// invoke its unexported callback directly instead of opening a real stream.
func newTestPlayer(list playlist.Playlist) *Player {
	return &Player{
		list:   list,
		tempo:  1.0,
		fadeMs: defaultFadeMs,
	}
}

func TestDoStartFromStoppedNoOpWithoutRealDevice(t *testing.T) {
	// beginTrack needs a real device to reach Playing; without a playlist
	// item at all it should settle back in Stopped rather than panic.
	p := newTestPlayer(&fakeList{})
	p.doStart()
	if p.state != Stopped {
		t.Errorf("state = %v, want Stopped on an empty playlist", p.state)
	}
}

func TestDoPauseOnlyAppliesWhilePlaying(t *testing.T) {
	item := &fakeItem{name: "a"}
	chain := &fakeChain{}
	p := newTestPlayer(&fakeList{items: []playlist.Item{item}})
	p.state = Stopped
	p.item = item
	p.chain = chain
	p.doPause()
	if p.state != Stopped {
		t.Errorf("doPause() from Stopped changed state to %v", p.state)
	}
}

func TestDoAdvanceWhilePlayingStartsFadeToTrack(t *testing.T) {
	list := &fakeList{items: []playlist.Item{&fakeItem{name: "a"}, &fakeItem{name: "b"}}, nextOK: true}
	chain := &fakeChain{}
	p := newTestPlayer(list)
	p.state = Playing
	p.chain = chain

	p.doAdvance(list.Next)

	if p.state != FadingOutToTrack {
		t.Errorf("state = %v, want FadingOutToTrack", p.state)
	}
	if len(chain.fadeCalls) != 1 || chain.fadeCalls[0] != defaultFadeMs {
		t.Errorf("fadeCalls = %v, want one call of %d ms", chain.fadeCalls, defaultFadeMs)
	}
	if list.currentIdx != 1 {
		t.Errorf("currentIdx = %d, want 1", list.currentIdx)
	}
}

func TestDoAdvanceWhileStoppedOnlyMovesIndex(t *testing.T) {
	list := &fakeList{items: []playlist.Item{&fakeItem{name: "a"}, &fakeItem{name: "b"}}, nextOK: true}
	p := newTestPlayer(list)
	p.state = Stopped

	p.doAdvance(list.Next)

	if p.state != Stopped {
		t.Errorf("state = %v, want Stopped unchanged", p.state)
	}
	if list.currentIdx != 1 {
		t.Errorf("currentIdx = %d, want 1", list.currentIdx)
	}
}

func TestDoAdvanceWhileFadingOutToTrackIsNoOp(t *testing.T) {
	list := &fakeList{items: []playlist.Item{&fakeItem{name: "a"}, &fakeItem{name: "b"}}, nextOK: true}
	p := newTestPlayer(list)
	p.state = FadingOutToTrack

	p.doAdvance(list.Next)

	if list.currentIdx != 0 {
		t.Errorf("currentIdx = %d, want unchanged 0 (already changing track)", list.currentIdx)
	}
	if p.state != FadingOutToTrack {
		t.Errorf("state = %v, want FadingOutToTrack unchanged", p.state)
	}
}

func TestDoAdvanceWhileFadingOutToStopRedirectsToTrack(t *testing.T) {
	list := &fakeList{items: []playlist.Item{&fakeItem{name: "a"}, &fakeItem{name: "b"}}, nextOK: true}
	p := newTestPlayer(list)
	p.state = FadingOutToStop

	p.doAdvance(list.Next)

	if p.state != FadingOutToTrack {
		t.Errorf("state = %v, want FadingOutToTrack (redirected target)", p.state)
	}
	if list.currentIdx != 1 {
		t.Errorf("currentIdx = %d, want 1", list.currentIdx)
	}
}

func TestDoFadeOutWhilePlayingStartsFadeToStop(t *testing.T) {
	chain := &fakeChain{}
	p := newTestPlayer(&fakeList{})
	p.state = Playing
	p.chain = chain

	p.doFadeOut()

	if p.state != FadingOutToStop {
		t.Errorf("state = %v, want FadingOutToStop", p.state)
	}
	if len(chain.fadeCalls) != 1 {
		t.Errorf("fadeCalls = %v, want one call", chain.fadeCalls)
	}
}

func TestDoFadeOutRedirectsTrackFadeToStopFade(t *testing.T) {
	p := newTestPlayer(&fakeList{})
	p.state = FadingOutToTrack

	p.doFadeOut()

	if p.state != FadingOutToStop {
		t.Errorf("state = %v, want FadingOutToStop", p.state)
	}
}

func TestDoSeekAppliesOnlyWhilePlayingOrPaused(t *testing.T) {
	chain := &fakeChain{}
	p := newTestPlayer(&fakeList{})
	p.chain = chain

	p.state = Stopped
	p.doSeek(5.0)
	if len(chain.seekCalls) != 0 {
		t.Errorf("seek applied while Stopped: %v", chain.seekCalls)
	}

	p.state = Playing
	p.doSeek(5.0)
	p.state = Paused
	p.doSeek(7.0)
	if len(chain.seekCalls) != 2 || chain.seekCalls[0] != 5.0 || chain.seekCalls[1] != 7.0 {
		t.Errorf("seekCalls = %v, want [5.0, 7.0]", chain.seekCalls)
	}
}

func TestDoSetTempoPersistsOnItemAndForwardsLive(t *testing.T) {
	item := &fakeItem{name: "a", tempo: 1.0}
	chain := &fakeChain{}
	p := newTestPlayer(&fakeList{})
	p.item = item
	p.chain = chain

	p.doSetTempo(2.0)

	if item.tempo != 2.0 {
		t.Errorf("item.tempo = %v, want 2.0", item.tempo)
	}
	if chain.tempo != 2.0 {
		t.Errorf("chain.tempo = %v, want 2.0", chain.tempo)
	}
}

func TestDoSetTempoIgnoresNonPositive(t *testing.T) {
	item := &fakeItem{name: "a", tempo: 1.0}
	p := newTestPlayer(&fakeList{})
	p.item = item

	p.doSetTempo(0)
	p.doSetTempo(-1)

	if item.tempo != 1.0 {
		t.Errorf("item.tempo = %v, want unchanged 1.0", item.tempo)
	}
}

// A single-item playlist whose item has a duration limit shorter than its
// actual length pauses when the limit is reached with no next track
// queued.
func TestHandleTickPausesWhenLimitReachedWithNoNextItem(t *testing.T) {
	item := &fakeItem{name: "a", limit: 2.0}
	chain := &fakeChain{position: 2 * time.Second}
	list := &fakeList{items: []playlist.Item{item}, nextOK: false}
	p := newTestPlayer(list)
	p.state = Playing
	p.item = item
	p.chain = chain

	p.handleTick()

	if p.state != Paused {
		t.Errorf("state = %v, want Paused", p.state)
	}
	if p.IsPlaying() {
		t.Error("IsPlaying() = true, want false once paused at the duration limit")
	}
}

func TestHandleTickAdvancesWhenLimitReachedWithNextItem(t *testing.T) {
	item := &fakeItem{name: "a", limit: 2.0}
	chain := &fakeChain{position: 3 * time.Second}
	list := &fakeList{items: []playlist.Item{item, &fakeItem{name: "b"}}, nextOK: true}
	p := newTestPlayer(list)
	p.state = Playing
	p.item = item
	p.chain = chain

	p.handleTick()

	if p.state != FadingOutToTrack {
		t.Errorf("state = %v, want FadingOutToTrack", p.state)
	}
	if len(chain.fadeCalls) != 1 {
		t.Errorf("fadeCalls = %v, want one call", chain.fadeCalls)
	}
}

func TestHandleTickIgnoresUnlimitedItem(t *testing.T) {
	item := &fakeItem{name: "a", limit: -1}
	chain := &fakeChain{position: 1000 * time.Second}
	p := newTestPlayer(&fakeList{items: []playlist.Item{item}})
	p.state = Playing
	p.item = item
	p.chain = chain

	p.handleTick()

	if p.state != Playing {
		t.Errorf("state = %v, want unchanged Playing for an unlimited item", p.state)
	}
}

// A Playing track draining with a next item queued advances gaplessly,
// with no fade involved.
func TestHandleSourceEOFWhilePlayingWithNextGoesToNextBeginTrack(t *testing.T) {
	// beginTrack requires a real device to actually reach Playing again; we
	// only assert that the list advanced to the next item.
	list := &fakeList{items: []playlist.Item{&fakeItem{name: "a"}, &fakeItem{name: "b"}}, nextOK: true}
	p := newTestPlayer(list)
	p.state = Playing
	p.item = list.items[0]
	p.chain = &fakeChain{}
	p.Events = make(chan Event, 4)

	p.handleSourceEOF()

	if list.currentIdx != 1 {
		t.Errorf("currentIdx = %d, want 1 (advanced to next item)", list.currentIdx)
	}
}

func TestHandleSourceEOFWhilePlayingWithNoNextStops(t *testing.T) {
	list := &fakeList{items: []playlist.Item{&fakeItem{name: "a"}}, nextOK: false}
	p := newTestPlayer(list)
	p.state = Playing
	p.item = list.items[0]
	p.chain = &fakeChain{}
	p.Events = make(chan Event, 4)

	p.handleSourceEOF()

	if p.state != Stopped {
		t.Errorf("state = %v, want Stopped", p.state)
	}
}

func TestHandleSourceEOFWhileFadingOutToStopStops(t *testing.T) {
	p := newTestPlayer(&fakeList{})
	p.state = FadingOutToStop

	p.handleSourceEOF()

	if p.state != Stopped {
		t.Errorf("state = %v, want Stopped", p.state)
	}
}

func TestHandleItemRemovedFadesOutIfCurrentlyPlayingItemIsGone(t *testing.T) {
	item := &fakeItem{name: "a"}
	remaining := &fakeItem{name: "b"}
	list := &fakeList{items: []playlist.Item{remaining}} // "a" already removed from the slice
	chain := &fakeChain{}
	p := newTestPlayer(list)
	p.state = Playing
	p.item = item
	p.chain = chain

	p.handleItemRemoved()

	if p.state != FadingOutToTrack {
		t.Errorf("state = %v, want FadingOutToTrack", p.state)
	}
	if len(chain.fadeCalls) != 1 {
		t.Errorf("fadeCalls = %v, want one call", chain.fadeCalls)
	}
}

func TestHandleItemRemovedNoOpIfCurrentItemStillPresent(t *testing.T) {
	item := &fakeItem{name: "a"}
	list := &fakeList{items: []playlist.Item{item}}
	chain := &fakeChain{}
	p := newTestPlayer(list)
	p.state = Playing
	p.item = item
	p.chain = chain

	p.handleItemRemoved()

	if p.state != Playing {
		t.Errorf("state = %v, want unchanged Playing", p.state)
	}
	if len(chain.fadeCalls) != 0 {
		t.Errorf("fadeCalls = %v, want none", chain.fadeCalls)
	}
}

func TestDoStopTearsDownImmediately(t *testing.T) {
	item := &fakeItem{name: "a"}
	chain := &fakeChain{}
	p := newTestPlayer(&fakeList{items: []playlist.Item{item}})
	p.state = Playing
	p.item = item
	p.chain = chain

	p.doStop()

	if p.state != Stopped {
		t.Errorf("state = %v, want Stopped", p.state)
	}
	if len(chain.fadeCalls) != 0 {
		t.Errorf("fadeCalls = %v, want none for an immediate stop", chain.fadeCalls)
	}
	if p.chain != nil {
		t.Error("chain still held after stop")
	}
}

func TestDoStopIsNoOpWhileStopped(t *testing.T) {
	p := newTestPlayer(&fakeList{})
	p.doStop()
	if p.state != Stopped {
		t.Errorf("state = %v, want Stopped", p.state)
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		Stopped:          "stopped",
		Playing:          "playing",
		Paused:           "paused",
		FadingOutToStop:  "fading_out_to_stop",
		FadingOutToTrack: "fading_out_to_track",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", s, got, want)
		}
	}
}
