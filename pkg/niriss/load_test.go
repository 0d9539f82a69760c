package niriss

import (
	"testing"
)

func TestSplitFrames(t *testing.T) {
	// A 3x2 cube of 4 frames, values numbered straight through.
	vals := make([]float64, 3*2*4)
	for i := range vals {
		vals[i] = float64(i)
	}

	frames := splitFrames([]int{3, 2, 4}, vals)
	if len(frames) != 4 {
		t.Fatalf("cut %d frames, expected 4", len(frames))
	}
	for i, g := range frames {
		if g.Dx() != 3 || g.Dy() != 2 {
			t.Fatalf("frame %d is %dx%d, expected 3x2", i, g.Dx(), g.Dy())
		}
	}
	// NAXIS1 runs fastest: frame 1 starts at value 6, and within the
	// frame x advances before y.
	if got := frames[1].Get(0, 0); got != 6.0 {
		t.Errorf("frame 1 origin is %f, want 6", got)
	}
	if got := frames[1].Get(2, 1); got != 11.0 {
		t.Errorf("frame 1 last pixel is %f, want 11", got)
	}
}

func TestSplitFramesSingleImage(t *testing.T) {
	frames := splitFrames([]int{4, 4}, make([]float64, 16))
	if len(frames) != 1 {
		t.Errorf("a 2D image should split into exactly 1 frame, got %d", len(frames))
	}
}
