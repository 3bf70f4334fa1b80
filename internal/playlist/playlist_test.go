package playlist

import "testing"

func TestSongItemDefaults(t *testing.T) {
	item := NewSongItem("track.mp3")
	if item.DurationLimit() >= 0 {
		t.Errorf("DurationLimit() = %v, want <0 (unlimited)", item.DurationLimit())
	}
	if item.TempoCoeff() != 1.0 {
		t.Errorf("TempoCoeff() = %v, want 1.0", item.TempoCoeff())
	}
	if item.SkipStart() != 0 {
		t.Errorf("SkipStart() = %v, want 0", item.SkipStart())
	}
	if item.DisplayName() != "track.mp3" {
		t.Errorf("DisplayName() = %q, want %q", item.DisplayName(), "track.mp3")
	}
}

func TestSongItemDisplayNamePrefersTitle(t *testing.T) {
	item := NewSongItem("track.mp3")
	item.Title = "Tango Nuevo"
	if got := item.DisplayName(); got != "Tango Nuevo" {
		t.Errorf("DisplayName() = %q, want %q", got, "Tango Nuevo")
	}
}

func TestSongItemSettersRoundTrip(t *testing.T) {
	item := NewSongItem("track.mp3")
	item.SetDurationLimit(30)
	item.SetSkipStart(5)
	item.SetTempoCoeff(1.2)

	if item.DurationLimit() != 30 {
		t.Errorf("DurationLimit() = %v, want 30", item.DurationLimit())
	}
	if item.SkipStart() != 5 {
		t.Errorf("SkipStart() = %v, want 5", item.SkipStart())
	}
	if item.TempoCoeff() != 1.2 {
		t.Errorf("TempoCoeff() = %v, want 1.2", item.TempoCoeff())
	}
}

func newTestItems(names ...string) []Item {
	items := make([]Item, len(names))
	for i, n := range names {
		items[i] = NewSongItem(n)
	}
	return items
}

func TestListNavigation(t *testing.T) {
	l := NewList()
	for _, it := range newTestItems("a.mp3", "b.mp3", "c.mp3") {
		l.Add(it)
	}

	cur, ok := l.Current()
	if !ok || cur.(*SongItem).FileName != "a.mp3" {
		t.Fatalf("Current() = (%v, %v), want a.mp3", cur, ok)
	}

	if !l.Next() {
		t.Fatal("Next() = false, want true")
	}
	cur, _ = l.Current()
	if cur.(*SongItem).FileName != "b.mp3" {
		t.Fatalf("after Next(), Current() = %v, want b.mp3", cur)
	}

	if !l.Next() {
		t.Fatal("second Next() = false, want true")
	}
	if l.Next() {
		t.Error("Next() at last item should return false")
	}

	if !l.Prev() {
		t.Fatal("Prev() = false, want true")
	}
	cur, _ = l.Current()
	if cur.(*SongItem).FileName != "b.mp3" {
		t.Fatalf("after Prev(), Current() = %v, want b.mp3", cur)
	}
}

func TestListPrevAtFirstItemReturnsFalse(t *testing.T) {
	l := NewList()
	for _, it := range newTestItems("a.mp3") {
		l.Add(it)
	}
	if l.Prev() {
		t.Error("Prev() at first item should return false")
	}
}

func TestListSetCurrentBounds(t *testing.T) {
	l := NewList()
	for _, it := range newTestItems("a.mp3", "b.mp3") {
		l.Add(it)
	}
	if !l.SetCurrent(1) {
		t.Fatal("SetCurrent(1) = false, want true")
	}
	if l.SetCurrent(5) {
		t.Error("SetCurrent(5) out of range should return false")
	}
	if l.SetCurrent(-1) {
		t.Error("SetCurrent(-1) should return false")
	}
}

func TestListCurrentOnEmptyPlaylist(t *testing.T) {
	l := NewList()
	if _, ok := l.Current(); ok {
		t.Error("Current() on empty playlist should return ok=false")
	}
}

func TestListRemoveSongAdjustsCurrentIndex(t *testing.T) {
	l := NewList()
	items := newTestItems("a.mp3", "b.mp3", "c.mp3")
	for _, it := range items {
		l.Add(it)
	}
	l.SetCurrent(2) // "c.mp3"

	var deletedAt []int
	l.OnItemDeleted(func(idx int) { deletedAt = append(deletedAt, idx) })

	l.RemoveSong(items[0]) // remove "a.mp3", before current
	cur, ok := l.Current()
	if !ok || cur.(*SongItem).FileName != "c.mp3" {
		t.Fatalf("Current() after removing earlier item = (%v, %v), want c.mp3", cur, ok)
	}
	if len(deletedAt) != 1 || deletedAt[0] != 0 {
		t.Errorf("deletedAt = %v, want [0]", deletedAt)
	}
}

func TestListRemoveCurrentlyPlayingItemShiftsToNext(t *testing.T) {
	l := NewList()
	items := newTestItems("a.mp3", "b.mp3")
	for _, it := range items {
		l.Add(it)
	}
	l.SetCurrent(0)

	l.RemoveSong(items[0])
	cur, ok := l.Current()
	if !ok || cur.(*SongItem).FileName != "b.mp3" {
		t.Fatalf("Current() after removing playing item = (%v, %v), want b.mp3 at same index", cur, ok)
	}
}
