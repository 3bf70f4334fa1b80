package playbackbuffer

import (
	"testing"
	"time"

	"github.com/drgolem/practicetempo/pkg/types"
)

func testFormat() types.AudioFormat {
	return types.AudioFormat{SampleRate: 44100, Channels: 2, BitsPerSample: 16}
}

func TestWriteFramesAdvancesCursor(t *testing.T) {
	pb := New(4096, testFormat())

	frame := make([]byte, testFormat().BytesPerFrame())
	n, err := pb.WriteFrames(frame)
	if err != nil || n != len(frame) {
		t.Fatalf("WriteFrames() = (%d, %v)", n, err)
	}

	if got := pb.CurrentFrame(); got != 1 {
		t.Errorf("CurrentFrame() = %d, want 1", got)
	}
}

func TestTotalFramesUnknownByDefault(t *testing.T) {
	pb := New(4096, testFormat())
	if got := pb.TotalFrames(); got != -1 {
		t.Errorf("TotalFrames() = %d, want -1", got)
	}
	pb.SetTotalFrames(441000)
	if got := pb.TotalFrames(); got != 441000 {
		t.Errorf("TotalFrames() after SetTotalFrames = %d, want 441000", got)
	}
}

func TestSeekToFrameResetsCursorAndClearsRing(t *testing.T) {
	pb := New(4096, testFormat())
	frame := make([]byte, testFormat().BytesPerFrame())
	pb.WriteFrames(frame)
	pb.WriteFrames(frame)

	pb.SeekToFrame(500)

	if got := pb.CurrentFrame(); got != 500 {
		t.Errorf("CurrentFrame() after seek = %d, want 500", got)
	}
	if pb.IsEOF() {
		t.Error("IsEOF() true after seek, want false")
	}

	// After a seek, the next frame written should be the first one read.
	marker := []byte{1, 2, 3, 4}
	pb.WriteFrames(marker)
	out := make([]byte, len(marker))
	n, err := pb.Read(out)
	if err != nil || n != len(marker) {
		t.Fatalf("Read() after seek = (%d, %v)", n, err)
	}
	for i := range marker {
		if out[i] != marker[i] {
			t.Fatalf("Read() after seek byte %d = %d, want %d", i, out[i], marker[i])
		}
	}
}

func TestEOFFlag(t *testing.T) {
	pb := New(4096, testFormat())
	if pb.IsEOF() {
		t.Error("IsEOF() true before SetEOF, want false")
	}
	pb.SetEOF()
	if !pb.IsEOF() {
		t.Error("IsEOF() false after SetEOF, want true")
	}
}

func TestAbortPropagatesToRing(t *testing.T) {
	pb := New(64, testFormat())
	done := make(chan struct{})
	go func() {
		pb.WaitForData()
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	pb.Abort()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitForData() did not return after Abort()")
	}
	if !pb.Aborted() {
		t.Error("Aborted() false after Abort()")
	}
}
