package niriss

import(
	"math"
	"testing"

	"nirhiss/pkg/ngrid"
)

func TestBuildQualityMask(t *testing.T) {
	g := ngrid.NewGrid(4, 4)
	dq := ngrid.NewBitmask(4, 4)
	dq.Set(1, 1, 0x1) // bad pixel
	dq.Set(2, 3, 0x4) // some other condition

	in := Integration{Pixels: g, DQ: dq}

	cfg := NewConfig() // BadDQBits == 0, any set bit is bad
	m := BuildQualityMask(cfg, &in)
	if got := m.Count(); got != 2 {
		t.Errorf("any-bit mask flagged %d pixels, expected 2", got)
	}

	cfg.BadDQBits = 0x1
	m = BuildQualityMask(cfg, &in)
	if !m.Get(1, 1) || m.Get(2, 3) {
		t.Errorf("bit-selective mask wrong: (1,1)=%v (2,3)=%v", m.Get(1, 1), m.Get(2, 3))
	}

	in.DQ = nil
	if got := BuildQualityMask(cfg, &in).Count(); got != 0 {
		t.Errorf("nil DQ plane flagged %d pixels", got)
	}
}

// A fully masked row crossing a fully masked column: every masked pixel
// recovers from the perpendicular direction except the crossing point,
// which has no valid neighbour along either line.
func TestInterpolateMaskedCross(t *testing.T) {
	g := ngrid.NewGrid(5, 5)
	for x := 0; x < 5; x++ {
		for y := 0; y < 5; y++ {
			g.Set(x, y, float64(x)+10.0*float64(y))
		}
	}

	m := ngrid.NewMask(5, 5)
	for i := 0; i < 5; i++ {
		m.Set(i, 2, true)
		m.Set(2, i, true)
	}

	nInterp, nBad := InterpolateMasked(g, m)
	if nInterp != 8 || nBad != 1 {
		t.Fatalf("interpolated %d, unrecoverable %d; expected 8, 1", nInterp, nBad)
	}
	if !math.IsNaN(g.Get(2, 2)) {
		t.Errorf("crossing pixel should be NaN, got %f", g.Get(2, 2))
	}

	// The data is linear in both directions, so recovery is exact.
	for x := 0; x < 5; x++ {
		for y := 0; y < 5; y++ {
			if x == 2 && y == 2 {
				continue
			}
			want := float64(x) + 10.0*float64(y)
			if got := g.Get(x, y); math.Abs(got-want) > 1e-12 {
				t.Errorf("(%d,%d): got %f, want %f", x, y, got, want)
			}
		}
	}
}

// An edge pixel with only one valid neighbour gets that value extended
// flat rather than extrapolated.
func TestInterpolateMaskedEdgeExtendsFlat(t *testing.T) {
	g := ngrid.NewGrid(4, 1)
	for x := 0; x < 4; x++ {
		g.Set(x, 0, float64(x))
	}
	m := ngrid.NewMask(4, 1)
	m.Set(3, 0, true)

	InterpolateMasked(g, m)
	if got := g.Get(3, 0); got != 2.0 {
		t.Errorf("edge pixel got %f, want flat extension 2.0", got)
	}
}

// Interpolated values must come from the original frame, never from
// pixels interpolated earlier in the same call.
func TestInterpolateMaskedUsesOriginalValues(t *testing.T) {
	g := ngrid.NewGrid(5, 1)
	for x := 0; x < 5; x++ {
		g.Set(x, 0, float64(x*x))
	}
	m := ngrid.NewMask(5, 1)
	m.Set(1, 0, true)
	m.Set(2, 0, true)

	InterpolateMasked(g, m)
	// Both gaps span (0)=0 .. (3)=9, so the fill is the same straight
	// line regardless of visit order.
	if got := g.Get(1, 0); math.Abs(got-3.0) > 1e-12 {
		t.Errorf("first gap pixel got %f, want 3.0", got)
	}
	if got := g.Get(2, 0); math.Abs(got-6.0) > 1e-12 {
		t.Errorf("second gap pixel got %f, want 6.0", got)
	}
}
