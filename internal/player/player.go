// Package player implements the five-state playback engine: Stopped,
// Playing, Paused, FadingOutToStop, FadingOutToTrack. A single output-thread
// goroutine owns the device/chain/decoder triple and processes every state
// transition, whether it originates from a user command or a device event,
// so the machine never races with itself.
package player

import (
	"log/slog"
	"sync"
	"time"

	"github.com/drgolem/practicetempo/internal/device"
	"github.com/drgolem/practicetempo/internal/effectchain"
	"github.com/drgolem/practicetempo/internal/playbackbuffer"
	"github.com/drgolem/practicetempo/internal/playlist"
	"github.com/drgolem/practicetempo/pkg/types"
)

// DeviceConfig builds the device.Config a Player is constructed with, given
// a frames-per-buffer size, an output device index and a notify-tick
// interval, sparing callers (e.g. the cobra CLI) a direct dependency on the
// device package just to assemble its Config literal.
func DeviceConfig(framesPerBuffer, deviceIndex int, notifyInterval time.Duration) device.Config {
	return device.Config{
		FramesPerBuffer: framesPerBuffer,
		DeviceIndex:     deviceIndex,
		NotifyInterval:  notifyInterval,
	}
}

// State is one of the five playback states.
type State int

const (
	Stopped State = iota
	Playing
	Paused
	FadingOutToStop
	FadingOutToTrack
)

func (s State) String() string {
	switch s {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case FadingOutToStop:
		return "fading_out_to_stop"
	case FadingOutToTrack:
		return "fading_out_to_track"
	default:
		return "stopped"
	}
}

// EventKind names one of the Player's lifecycle notifications.
type EventKind string

const (
	EventStartingPlayback    EventKind = "starting_playback"
	EventStartedPlayback     EventKind = "started_playback"
	EventFinishedPlayback    EventKind = "finished_playback"
	EventInvalidTrackSkipped EventKind = "invalid_track_skipped"
	EventTempoCoeffChanged   EventKind = "tempo_coeff_changed"
)

// Event carries the item (and, where relevant, the tempo or the decode
// buffer) associated with one of the Player's lifecycle notifications.
type Event struct {
	Kind   EventKind
	Item   playlist.Item
	Tempo  float64
	Buffer *playbackbuffer.PlaybackBuffer
}

// Default fade-out duration applied to track-change and stop-with-fade
// transitions.
const defaultFadeMs = 500

type cmdKind int

const (
	cmdStart cmdKind = iota
	cmdStartPause
	cmdPause
	cmdStop
	cmdNext
	cmdPrev
	cmdJump
	cmdSeek
	cmdFadeOut
	cmdSetTempo
	cmdSetVolume
	cmdDrained
	cmdTick
	cmdItemRemoved
)

type command struct {
	kind    cmdKind
	index   int
	seconds float64
	tempo   float64
	volume  float64
	gen     uint64
	done    chan struct{}
}

// Player drives a Playlist through a device.Device, applying an
// effectchain.Stage in between. All state transitions are processed
// serially by a single output-thread goroutine (run); public methods are
// safe to call from any goroutine and never block on audio I/O themselves,
// only on the output thread finishing the command.
type Player struct {
	list   playlist.Playlist
	devCfg device.Config
	format types.AudioFormat // preferred/native format, last fallback candidate
	fadeMs int

	cmdChan    chan command
	stopSignal chan struct{}
	wg         sync.WaitGroup

	Events chan Event

	// Fields below are mutated only by the run goroutine, except where
	// guarded by mu for UI-thread queries (State, CurrentPositionSeconds).
	mu         sync.Mutex
	state      State
	tempo      float64
	item       playlist.Item
	chain      effectchain.Stage
	buf        *playbackbuffer.PlaybackBuffer
	dev        *device.Device
	generation uint64
	deviceDone chan struct{}
}

// New creates a Player bound to list, using preferredFormat as the last
// fallback candidate and devCfg to configure each device.Device it opens.
// The output-thread goroutine starts immediately.
func New(list playlist.Playlist, preferredFormat types.AudioFormat, devCfg device.Config) *Player {
	p := &Player{
		list:       list,
		devCfg:     devCfg,
		format:     preferredFormat,
		fadeMs:     defaultFadeMs,
		tempo:      1.0,
		cmdChan:    make(chan command, 8),
		stopSignal: make(chan struct{}),
		Events:     make(chan Event, 32),
	}
	list.OnItemDeleted(p.onItemDeleted)
	p.wg.Add(1)
	go p.run()
	return p
}

// State returns the Player's current state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// IsPlaying reports whether the Player is actively producing audio: true in
// Playing, FadingOutToStop and FadingOutToTrack, since a fading track is
// still audible from the UI's perspective.
func (p *Player) IsPlaying() bool {
	switch p.State() {
	case Playing, FadingOutToStop, FadingOutToTrack:
		return true
	default:
		return false
	}
}

// CurrentPositionSeconds returns the current track's playback position, or
// 0 if nothing is loaded.
func (p *Player) CurrentPositionSeconds() float64 {
	p.mu.Lock()
	chain := p.chain
	p.mu.Unlock()
	if chain == nil {
		return 0
	}
	return chain.CurrentPosition().Seconds()
}

// RemainingTimeSeconds returns the wall-clock seconds of audio left in the
// current track at the current tempo, or -1 if no track is loaded or the
// source's length is unknown.
func (p *Player) RemainingTimeSeconds() float64 {
	p.mu.Lock()
	chain := p.chain
	p.mu.Unlock()
	if chain == nil {
		return -1
	}
	remaining := chain.RemainingTime()
	if remaining < 0 {
		return -1
	}
	return remaining.Seconds()
}

// TotalTimeSeconds returns the current track's total wall-clock length at
// the current tempo, or -1 if unknown.
func (p *Player) TotalTimeSeconds() float64 {
	remaining := p.RemainingTimeSeconds()
	if remaining < 0 {
		return -1
	}
	return p.CurrentPositionSeconds() + remaining
}

// IsTrackLoaded reports whether a track is currently bound to an open
// output device; false in particular when every candidate device format was
// refused.
func (p *Player) IsTrackLoaded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dev != nil && p.chain != nil
}

// CurrentItem returns the playlist item the output thread currently holds,
// or nil if none.
func (p *Player) CurrentItem() playlist.Item {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.item
}

// PlaybackBuffer returns the current track's decode buffer for read-only
// consumers (a waveform view polls its frame cursor), or nil if no track is
// loaded.
func (p *Player) PlaybackBuffer() *playbackbuffer.PlaybackBuffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf
}

// Start begins playback (Stopped -> Playing) or resumes it (Paused ->
// Playing).
func (p *Player) Start() { p.send(command{kind: cmdStart}) }

// StartPause toggles: pauses while Playing, otherwise behaves like Start.
func (p *Player) StartPause() { p.send(command{kind: cmdStartPause}) }

// Pause suspends playback without losing position (Playing -> Paused).
func (p *Player) Pause() { p.send(command{kind: cmdPause}) }

// Resume continues a paused track; equivalent to Start from Paused.
func (p *Player) Resume() { p.send(command{kind: cmdStart}) }

// Stop ends playback immediately, without a fade.
func (p *Player) Stop() { p.send(command{kind: cmdStop}) }

// Next advances to the next playlist item, fading out first if playing.
func (p *Player) Next() { p.send(command{kind: cmdNext}) }

// Prev moves to the previous playlist item, fading out first if playing.
func (p *Player) Prev() { p.send(command{kind: cmdPrev}) }

// Jump moves directly to the playlist item at index, fading out first if
// playing.
func (p *Player) Jump(index int) { p.send(command{kind: cmdJump, index: index}) }

// Seek repositions within the current track. Valid only while Playing or
// Paused; a no-op otherwise.
func (p *Player) Seek(seconds float64) { p.send(command{kind: cmdSeek, seconds: seconds}) }

// FadeOut requests an explicit fade-to-stop (Playing -> FadingOutToStop), or
// redirects an in-progress fade-to-track into a fade-to-stop.
func (p *Player) FadeOut() { p.send(command{kind: cmdFadeOut}) }

// SetTempo sets the playback tempo coefficient, persisting it on the current
// item and forwarding it live to the active chain if one exists.
func (p *Player) SetTempo(t float64) { p.send(command{kind: cmdSetTempo, tempo: t}) }

// SetVolume sets output gain in [0, 1] on the active device, if any.
func (p *Player) SetVolume(v float64) { p.send(command{kind: cmdSetVolume, volume: v}) }

// Shutdown stops the output thread and tears down any open device, waiting
// for the decoder worker behind it to finalise. After Shutdown returns, no
// further command is processed.
func (p *Player) Shutdown() {
	close(p.stopSignal)
	p.wg.Wait()
}

func (p *Player) send(c command) {
	c.done = make(chan struct{})
	select {
	case p.cmdChan <- c:
	case <-p.stopSignal:
		return
	}
	select {
	case <-c.done:
	case <-p.stopSignal:
	}
}

func (p *Player) enqueue(c command) {
	select {
	case p.cmdChan <- c:
	case <-p.stopSignal:
	}
}

func (p *Player) emit(ev Event) {
	select {
	case p.Events <- ev:
	default:
		slog.Warn("player: event channel full, dropping event", "kind", ev.Kind)
	}
}

func (p *Player) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// run is the output thread: every command, device notification tick, and
// drain signal is processed here, one at a time, so the five-state machine
// never races with itself.
func (p *Player) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopSignal:
			p.teardownOutput()
			return
		case cmd := <-p.cmdChan:
			p.handle(cmd)
			close(cmd.done)
		}
	}
}

func (p *Player) handle(cmd command) {
	switch cmd.kind {
	case cmdStart:
		p.doStart()
	case cmdStartPause:
		if p.state == Playing {
			p.doPause()
		} else {
			p.doStart()
		}
	case cmdPause:
		p.doPause()
	case cmdStop:
		p.doStop()
	case cmdNext:
		p.doAdvance(p.list.Next)
	case cmdPrev:
		p.doAdvance(p.list.Prev)
	case cmdJump:
		idx := cmd.index
		p.doAdvance(func() bool { return p.list.SetCurrent(idx) })
	case cmdSeek:
		p.doSeek(cmd.seconds)
	case cmdFadeOut:
		p.doFadeOut()
	case cmdSetTempo:
		p.doSetTempo(cmd.tempo)
	case cmdSetVolume:
		if p.dev != nil {
			p.dev.SetVolume(cmd.volume)
		}
	case cmdDrained:
		if cmd.gen == p.generation {
			p.handleSourceEOF()
		}
	case cmdTick:
		if cmd.gen == p.generation {
			p.handleTick()
		}
	case cmdItemRemoved:
		p.handleItemRemoved()
	}
}

// doStart implements the start() column of the transition table: Stopped
// begins the current track, Paused resumes the suspended device, every
// other state is a no-op.
func (p *Player) doStart() {
	switch p.state {
	case Stopped:
		p.beginTrack()
	case Paused:
		if p.dev != nil {
			if err := p.dev.Resume(); err != nil {
				slog.Error("player: resume failed", "error", err)
				return
			}
		}
		p.setState(Playing)
	}
}

// doStop ends playback immediately from any non-Stopped state, tearing the
// device and decoder down without waiting for a fade or a drain.
func (p *Player) doStop() {
	if p.state == Stopped {
		return
	}
	if p.item != nil {
		p.emit(Event{Kind: EventFinishedPlayback, Item: p.item})
	}
	p.teardownOutput()
	p.setState(Stopped)
}

// doPause implements the pause() column: only Playing suspends.
func (p *Player) doPause() {
	if p.state != Playing {
		return
	}
	if p.dev != nil {
		if err := p.dev.Pause(); err != nil {
			slog.Error("player: pause failed", "error", err)
			return
		}
	}
	p.setState(Paused)
}

// doAdvance implements the next()/prev()/jump() column. advance mutates the
// playlist's current index (playlist.List.Next/Prev/SetCurrent) and reports
// whether it moved.
func (p *Player) doAdvance(advance func() bool) {
	switch p.state {
	case Stopped, Paused:
		advance()
	case Playing:
		if advance() {
			p.chain.FadeOut(p.fadeMs)
			p.setState(FadingOutToTrack)
		}
	case FadingOutToStop:
		if advance() {
			p.setState(FadingOutToTrack)
		}
	case FadingOutToTrack:
		// no-op: a track change is already in flight.
	}
}

// doSeek implements the seek() column: valid only in Playing and Paused.
func (p *Player) doSeek(seconds float64) {
	if (p.state == Playing || p.state == Paused) && p.chain != nil {
		p.chain.SeekTo(seconds)
	}
}

// doFadeOut implements the fade_out() column: Playing starts a fade to
// stop; an in-progress fade to the next track is redirected to stop instead.
func (p *Player) doFadeOut() {
	switch p.state {
	case Playing:
		p.chain.FadeOut(p.fadeMs)
		p.setState(FadingOutToStop)
	case FadingOutToTrack:
		p.setState(FadingOutToStop)
	}
}

// doSetTempo persists the coefficient on the current item so it is picked
// up again the next time that item starts, and forwards it live to the
// active chain so an in-progress track responds immediately.
func (p *Player) doSetTempo(t float64) {
	if t <= 0 {
		return
	}
	p.mu.Lock()
	p.tempo = t
	item := p.item
	chain := p.chain
	p.mu.Unlock()

	if item != nil {
		item.SetTempoCoeff(t)
	}
	if chain != nil {
		chain.SetTempo(t)
	}
	p.emit(Event{Kind: EventTempoCoeffChanged, Item: item, Tempo: t})
}

// handleSourceEOF implements the "source EOF" column: the device signalled
// its chain drained. Behaviour depends on which state the drain landed in.
func (p *Player) handleSourceEOF() {
	switch p.state {
	case Playing:
		if p.item != nil {
			p.emit(Event{Kind: EventFinishedPlayback, Item: p.item})
		}
		if p.list.Next() {
			p.beginTrack()
		} else {
			p.teardownOutput()
			p.setState(Stopped)
		}
	case FadingOutToStop:
		p.teardownOutput()
		p.setState(Stopped)
	case FadingOutToTrack:
		p.beginTrack()
	}
}

// handleTick enforces the per-item duration limit: on every device
// notification while Playing, if the current item has a positive duration
// limit and elapsed time has reached it, advance to the next item or pause
// if there is none.
func (p *Player) handleTick() {
	if p.state != Playing || p.item == nil || p.chain == nil {
		return
	}
	limit := p.item.DurationLimit()
	if limit <= 0 {
		return
	}
	if p.chain.CurrentPosition().Seconds() < limit {
		return
	}
	if p.list.HasNext() {
		p.doAdvance(p.list.Next)
	} else {
		p.doPause()
	}
}

// onItemDeleted is registered with the playlist and fires synchronously
// from whatever goroutine calls RemoveSong; it only enqueues a command onto
// the output thread, matching every other cross-thread entry point.
func (p *Player) onItemDeleted(index int) {
	p.enqueue(command{kind: cmdItemRemoved, done: make(chan struct{})})
}

// handleItemRemoved covers a playlist item being deleted during playback:
// if the item the output thread currently holds is no longer in the
// playlist, fade out to whatever now occupies its old slot
// (List.RemoveSong leaves the current index in place, so Current() names
// the item that moved into that slot). Deletions that don't touch the currently held item are
// invisible to playback and need no action here.
func (p *Player) handleItemRemoved() {
	if p.item == nil {
		return
	}
	for _, it := range p.list.Items() {
		if it == p.item {
			return
		}
	}
	switch p.state {
	case Playing:
		p.chain.FadeOut(p.fadeMs)
		p.setState(FadingOutToTrack)
	case FadingOutToStop, FadingOutToTrack:
		// already tearing down or already changing track.
	default:
		// Stopped/Paused: nothing audible in flight; the next beginTrack
		// call picks up whatever now sits at the current index.
	}
}

// beginTrack starts playback of the current item: decode it at a candidate
// device format, wait for its first data, wrap
// it in a fresh effect chain at the item's persisted tempo, and hand it to
// a newly opened device. Falls back through device.FallbackFormats if the
// device refuses a format; gives up and goes Stopped only once every
// candidate has failed. A decoder-open failure is not format-dependent, so
// it is treated immediately as if the track had reached EOF rather than
// retried against every candidate format.
func (p *Player) beginTrack() {
	item, ok := p.list.Current()
	if !ok {
		p.setState(Stopped)
		return
	}

	p.mu.Lock()
	prev := p.item
	p.item = item
	p.mu.Unlock()

	// The previous track's decode worker has already finished (EOF or fade
	// abort) by the time a new track begins here, on the output thread;
	// closing the item now just releases its codec handle.
	if prev != nil && prev != item {
		if closer, ok := prev.(interface{ Close() }); ok {
			closer.Close()
		}
	}

	p.emit(Event{Kind: EventStartingPlayback, Item: item})

	candidates := device.FallbackFormats(p.format)

	buf, seeker, err := item.StartDecoding(candidates[0])
	if err != nil {
		slog.Warn("player: decoder open failed, skipping track", "item", item.DisplayName(), "error", err)
		p.emit(Event{Kind: EventInvalidTrackSkipped, Item: item})
		p.advanceOrStop()
		return
	}
	buf.WaitForData()

	source := effectchain.NewSourceAdapter(buf, seeker)
	chain := effectchain.Build(source, item.TempoCoeff())

	var lastErr error
	for i, format := range candidates {
		if i > 0 {
			// Re-decode at the new candidate rate; StartDecoding on the
			// same item closes the previous decoder for us.
			buf, seeker, err = item.StartDecoding(format)
			if err != nil {
				lastErr = err
				continue
			}
			buf.WaitForData()
			source = effectchain.NewSourceAdapter(buf, seeker)
			chain = effectchain.Build(source, item.TempoCoeff())
		}

		dev := device.New(p.devCfg)
		if err := dev.Open(format, chain); err != nil {
			lastErr = err
			continue
		}
		if err := dev.Start(); err != nil {
			lastErr = err
			// The stream is already open at this point; release it before
			// trying the next candidate format.
			if serr := dev.Stop(); serr != nil {
				slog.Warn("player: closing failed device", "error", serr)
			}
			continue
		}

		p.teardownDeviceOnly()

		p.mu.Lock()
		p.dev = dev
		p.chain = chain
		p.buf = buf
		p.generation++
		gen := p.generation
		done := make(chan struct{})
		p.deviceDone = done
		p.mu.Unlock()

		p.watchDevice(dev, gen, done)
		p.setState(Playing)
		p.emit(Event{Kind: EventStartedPlayback, Item: item, Buffer: buf})
		return
	}

	slog.Error("player: no candidate output format succeeded", "item", item.DisplayName(), "error", lastErr)
	p.setState(Stopped)
}

func (p *Player) advanceOrStop() {
	if p.list.Next() {
		p.beginTrack()
		return
	}
	p.setState(Stopped)
}

// watchDevice forwards a device's Drained/Notify signals onto the command
// channel so the state machine only ever observes them on the output
// thread. done is closed by teardownDeviceOnly/teardownOutput when this
// device generation is replaced, so the goroutine never outlives its track.
func (p *Player) watchDevice(dev *device.Device, gen uint64, done <-chan struct{}) {
	go func() {
		for {
			select {
			case <-dev.Drained():
				p.enqueue(command{kind: cmdDrained, gen: gen, done: make(chan struct{})})
				return
			case <-dev.Notify:
				p.enqueue(command{kind: cmdTick, gen: gen, done: make(chan struct{})})
			case <-done:
				return
			case <-p.stopSignal:
				return
			}
		}
	}()
}

// teardownDeviceOnly stops the previous device and its watcher goroutine
// without touching item/chain state, used right before installing a
// freshly opened device for the next track.
func (p *Player) teardownDeviceOnly() {
	p.mu.Lock()
	dev := p.dev
	done := p.deviceDone
	p.mu.Unlock()
	if done != nil {
		close(done)
	}
	if dev != nil {
		if err := dev.Stop(); err != nil {
			slog.Warn("player: device stop failed", "error", err)
		}
	}
}

// teardownOutput stops the device and closes the current item's decoder,
// dropping the output thread's references so the decoder worker behind it
// can finalise before anything else touches the item again.
func (p *Player) teardownOutput() {
	p.teardownDeviceOnly()

	p.mu.Lock()
	item := p.item
	p.dev = nil
	p.chain = nil
	p.buf = nil
	p.deviceDone = nil
	p.mu.Unlock()

	if closer, ok := item.(interface{ Close() }); ok {
		closer.Close()
	}
}
