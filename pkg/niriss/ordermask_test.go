package niriss

import(
	"math/rand"
	"testing"

	"nirhiss/pkg/ngrid"
)

// twoTraceImage builds an F277W-like frame: faint noise, a bright
// horizontal trace at y=70 and a fainter one at y=20. The traces sit
// far enough apart that even after smoothing they cluster as separate
// runs in every column.
func twoTraceImage(w, h int) *ngrid.Grid {
	rng := rand.New(rand.NewSource(42))
	g := ngrid.NewGrid(w, h)
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			v := 0.1 * rng.NormFloat64()
			switch {
			case y >= 68 && y <= 72:
				v += 100.0
			case y >= 18 && y <= 22:
				v += 50.0
			}
			g.Set(x, y, v)
		}
	}
	return g
}

func TestBuildOrderMaskSmooth(t *testing.T) {
	img := twoTraceImage(64, 96)
	cfg := NewConfig()
	cfg.OrderMaskPolicy = "smooth"

	om, err := BuildOrderMask(cfg, img)
	if err != nil {
		t.Fatal(err)
	}

	// Brightest trace becomes order 1, the fainter one order 2, and
	// each footprint box is centered on its own trace.
	if !om.Footprints[1].Get(32, 70) {
		t.Errorf("order 1 footprint misses the bright trace")
	}
	if !om.Footprints[2].Get(32, 20) {
		t.Errorf("order 2 footprint misses the faint trace")
	}
	if om.Footprints[1].Get(32, 20) {
		t.Errorf("order 1 footprint claims the faint trace")
	}
}

func TestBuildOrderMaskDeterministic(t *testing.T) {
	img := twoTraceImage(64, 96)
	cfg := NewConfig()
	cfg.OrderMaskPolicy = "combined"

	a, err := BuildOrderMask(cfg, img)
	if err != nil {
		t.Fatal(err)
	}
	b, err := BuildOrderMask(cfg, img)
	if err != nil {
		t.Fatal(err)
	}

	for i := range a.Footprints {
		if a.Footprints[i].Count() != b.Footprints[i].Count() {
			t.Errorf("order %d: %d px vs %d px on identical input",
				i, a.Footprints[i].Count(), b.Footprints[i].Count())
		}
	}
	for x := 0; x < 64; x++ {
		for y := 0; y < 96; y++ {
			if a.Any(x, y) != b.Any(x, y) {
				t.Fatalf("footprints differ at (%d,%d) on identical input", x, y)
			}
		}
	}
}

func TestBuildOrderMaskOutlierCatchesBlob(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	img := ngrid.NewGrid(64, 64)
	for x := 0; x < 64; x++ {
		for y := 0; y < 64; y++ {
			img.Set(x, y, 10.0+0.1*rng.NormFloat64())
		}
	}
	// A compact bright contaminant, like a 0th order ghost.
	for x := 20; x < 40; x++ {
		for y := 20; y < 40; y++ {
			img.Set(x, y, 1000.0)
		}
	}

	cfg := NewConfig()
	cfg.OrderMaskPolicy = "outlier"
	om, err := BuildOrderMask(cfg, img)
	if err != nil {
		t.Fatal(err)
	}
	if !om.Union().Get(30, 30) {
		t.Errorf("outlier policy missed the bright blob")
	}
	if om.Any(5, 5) {
		t.Errorf("outlier policy flagged plain background at (5,5)")
	}
}

func TestBuildOrderMaskRejectsFeaturelessImage(t *testing.T) {
	img := ngrid.NewGrid(32, 32)
	vals := img.Values()
	for i := range vals {
		vals[i] = 7.0
	}

	cfg := NewConfig()
	cfg.OrderMaskPolicy = "outlier"
	if _, err := BuildOrderMask(cfg, img); err == nil {
		t.Errorf("expected a model-mismatch error on a featureless image")
	}
}

func TestBuildOrderMaskUnknownPolicy(t *testing.T) {
	cfg := NewConfig()
	cfg.OrderMaskPolicy = "nonesuch"
	if _, err := BuildOrderMask(cfg, ngrid.NewGrid(8, 8)); err == nil {
		t.Errorf("expected an error for an unknown policy")
	}
}
