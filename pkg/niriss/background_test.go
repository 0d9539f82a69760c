package niriss

import(
	"math"
	"math/rand"
	"testing"

	"nirhiss/pkg/ngrid"
)

// colGradStack builds integrations whose background varies by column:
// 20 + 0.5*x, plus seeded per-integration noise.
func colGradStack(n, w, h int, noise float64) Stack {
	s := NewStack()
	for i := 0; i < n; i++ {
		rng := rand.New(rand.NewSource(int64(100 + i)))
		g := ngrid.NewGrid(w, h)
		for x := 0; x < w; x++ {
			for y := 0; y < h; y++ {
				g.Set(x, y, 20.0+0.5*float64(x)+noise*rng.NormFloat64())
			}
		}
		if err := s.Add(g, nil); err != nil {
			panic(err)
		}
	}
	return s
}

func TestBackgroundByColumnMedian(t *testing.T) {
	s := colGradStack(3, 32, 24, 0.2)
	s.OrderMask = emptyOrderMask(32, 24)

	bm, err := BackgroundByColumnMedian(s.Config, &s)
	if err != nil {
		t.Fatal(err)
	}
	bm.Subtract(&s)

	for i := range s.Integrations {
		if mean := s.Integrations[i].Pixels.Mean(); math.Abs(mean) > 0.1 {
			t.Errorf("integ %d residual mean %f after column median subtraction", i, mean)
		}
	}
}

func TestBackgroundByColumnMedianExcludesTrace(t *testing.T) {
	s := testStack(2, 32, 24, 20.0, 0.1, 50.0, 12)
	s.OrderMask = bandOrderMask(32, 24, 10, 14)

	bm, err := BackgroundByColumnMedian(s.Config, &s)
	if err != nil {
		t.Fatal(err)
	}

	// The model must see only the flat 20 DN background, not the trace.
	model, _ := bm.ModelFor(0)
	if v := model.Get(16, 12); math.Abs(v-20.0) > 0.5 {
		t.Errorf("model at trace column is %f, trace flux leaked into the background", v)
	}
}

func TestFitScaleRecoversKnownScale(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	model := ngrid.NewGrid(20, 20)
	frame := ngrid.NewGrid(20, 20)
	for x := 0; x < 20; x++ {
		for y := 0; y < 20; y++ {
			v := 5.0 + 10.0*rng.Float64()
			model.Set(x, y, v)
			frame.Set(x, y, 2.5*v)
		}
	}

	// The search grid step is 10/499, so 0.02 covers the quantization.
	if got := FitScale(frame, model, nil); math.Abs(got-2.5) > 0.02 {
		t.Errorf("fitted scale %f, want 2.5", got)
	}
}

func TestBackgroundByReference(t *testing.T) {
	s := colGradStack(3, 32, 24, 0.1)
	s.OrderMask = emptyOrderMask(32, 24)
	s.BackgroundScalePerInteg = true

	// Reference model is half the true background, so the fit should
	// land near 2.0 for every integration.
	ref := ngrid.NewGrid(32, 24)
	for x := 0; x < 32; x++ {
		for y := 0; y < 24; y++ {
			ref.Set(x, y, (20.0+0.5*float64(x))/2.0)
		}
	}
	s.Reference = ref

	bm, err := BackgroundByReference(s.Config, &s)
	if err != nil {
		t.Fatal(err)
	}
	for i, sc := range bm.Scales {
		if math.Abs(sc-2.0) > 0.05 {
			t.Errorf("integ %d fitted scale %f, want 2.0", i, sc)
		}
	}
}

func TestBackgroundByReferenceNeedsModel(t *testing.T) {
	s := colGradStack(2, 16, 16, 0.1)
	s.OrderMask = emptyOrderMask(16, 16)
	if _, err := BackgroundByReference(s.Config, &s); err == nil {
		t.Errorf("expected an error when no reference model is loaded")
	}

	s.Reference = ngrid.NewGrid(8, 8)
	if _, err := BackgroundByReference(s.Config, &s); err == nil {
		t.Errorf("expected an error on a mis-sized reference model")
	}
}

func TestBackgroundSubtractReAddRoundTrip(t *testing.T) {
	s := colGradStack(3, 16, 16, 0.3)
	s.OrderMask = emptyOrderMask(16, 16)
	before := make([]*ngrid.Grid, len(s.Integrations))
	for i := range s.Integrations {
		before[i] = s.Integrations[i].Pixels.Copy()
	}

	bm, err := BackgroundByColumnMedian(s.Config, &s)
	if err != nil {
		t.Fatal(err)
	}
	bm.Subtract(&s)
	bm.ReAdd(&s)

	for i := range s.Integrations {
		for x := 0; x < 16; x++ {
			for y := 0; y < 16; y++ {
				got, want := s.Integrations[i].Pixels.Get(x, y), before[i].Get(x, y)
				if math.Abs(got-want) > 1e-9 {
					t.Fatalf("integ %d (%d,%d): round trip %f != %f", i, x, y, got, want)
				}
			}
		}
	}
}

func TestBackgroundByHybrid(t *testing.T) {
	s := testStack(4, 32, 24, 100.0, 0.5, 50.0, 12)
	s.OrderMask = bandOrderMask(32, 24, 10, 14)

	bm, err := BackgroundByHybrid(s.Config, &s)
	if err != nil {
		t.Fatal(err)
	}
	if bm.Ref == nil {
		t.Fatal("hybrid strategy should produce a shared model")
	}
	if mean := bm.Ref.Mean(); math.Abs(mean-100.0) > 1.0 {
		t.Errorf("hybrid model mean %f, want ~100", mean)
	}
}
