package flac

import "testing"

func TestGetFormatBeforeOpenIsZero(t *testing.T) {
	d := NewDecoder()
	rate, channels, bits := d.GetFormat()
	if rate != 0 || channels != 0 || bits != 0 {
		t.Errorf("GetFormat() before Open = (%d, %d, %d), want zeros", rate, channels, bits)
	}
}

func TestCloseIsSafeWithoutOpen(t *testing.T) {
	d := NewDecoder()
	if err := d.Close(); err != nil {
		t.Errorf("Close on unopened decoder: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestDecodeSamplesWithoutOpenFails(t *testing.T) {
	d := NewDecoder()
	buf := make([]byte, 1024)
	if _, err := d.DecodeSamples(256, buf); err == nil {
		t.Error("DecodeSamples on unopened decoder succeeded, want error")
	}
}

func TestOpenMissingFileFails(t *testing.T) {
	d := NewDecoder()
	if err := d.Open("no-such-file.flac"); err == nil {
		d.Close()
		t.Error("Open on a missing file succeeded, want error")
	}
}
