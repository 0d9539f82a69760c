package niriss

import (
	"math"
	"math/rand"

	"nirhiss/pkg/ngrid"
)

// testFrame builds a w x h frame: flat background plus per-integration
// noise from a seeded generator, plus a bright trace band at traceY
// when traceAmp > 0.
func testFrame(w, h int, background, noise, traceAmp float64, traceY int, seed int64) *ngrid.Grid {
	rng := rand.New(rand.NewSource(seed))
	g := ngrid.NewGrid(w, h)
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			v := background + noise*rng.NormFloat64()
			if traceAmp > 0 && int(math.Abs(float64(y-traceY))) <= 2 {
				v += traceAmp
			}
			g.Set(x, y, v)
		}
	}
	return g
}

// testStack builds n integrations of identical geometry.
func testStack(n, w, h int, background, noise, traceAmp float64, traceY int) Stack {
	s := NewStack()
	for i := 0; i < n; i++ {
		if err := s.Add(testFrame(w, h, background, noise, traceAmp, traceY, int64(i+1)), nil); err != nil {
			panic(err)
		}
	}
	return s
}

// emptyOrderMask gives a stack an order mask with nothing in it, for
// tests that exercise stages without caring about the trace.
func emptyOrderMask(w, h int) *OrderMask {
	om := &OrderMask{}
	for i := range om.Footprints {
		om.Footprints[i] = ngrid.NewMask(w, h)
	}
	return om
}

// bandOrderMask marks a horizontal band as the order 1 footprint.
func bandOrderMask(w, h, y0, y1 int) *OrderMask {
	om := emptyOrderMask(w, h)
	for x := 0; x < w; x++ {
		for y := y0; y <= y1; y++ {
			om.Footprints[1].Set(x, y, true)
		}
	}
	return om
}
