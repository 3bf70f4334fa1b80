package ogg

import "testing"

func TestClampToInt16(t *testing.T) {
	tests := []struct {
		name string
		in   float32
		want int16
	}{
		{"silence", 0, 0},
		{"full scale positive", 1.0, 32767},
		{"full scale negative", -1.0, -32767},
		{"overdriven positive clamps", 1.5, 32767},
		{"overdriven negative clamps", -1.5, -32768},
		{"half scale", 0.5, 16383},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := clampToInt16(tt.in); got != tt.want {
				t.Errorf("clampToInt16(%v) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestDecodeSamplesWithoutOpenFails(t *testing.T) {
	d := NewDecoder()
	buf := make([]byte, 1024)
	if _, err := d.DecodeSamples(256, buf); err == nil {
		t.Error("DecodeSamples on unopened decoder succeeded, want error")
	}
}

func TestCloseIsSafeWithoutOpen(t *testing.T) {
	d := NewDecoder()
	if err := d.Close(); err != nil {
		t.Errorf("Close on unopened decoder: %v", err)
	}
}
