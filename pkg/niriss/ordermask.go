package niriss

import(
	"fmt"
	"log"
	"math"

	"nirhiss/pkg/ngrid"
)

// The OrderMask marks which pixels belong to the spectral order
// footprints. Order 1 and 2 get a box of configurable diameter stamped
// along their traces; order 0 is the bright compact contamination that
// sits outside both traces. Built once per dataset from the F277W
// reference image, immutable afterwards.
type OrderMask struct {
	Footprints [3]*ngrid.Mask
}

// Any reports whether (x,y) is inside any order footprint.
func (om *OrderMask)Any(x, y int) bool {
	return om.Footprints[0].Get(x, y) || om.Footprints[1].Get(x, y) || om.Footprints[2].Get(x, y)
}

// Union flattens the per-order footprints into a single mask.
func (om *OrderMask)Union() *ngrid.Mask {
	u := om.Footprints[0].Copy()
	u.Or(om.Footprints[1])
	u.Or(om.Footprints[2])
	return u
}

func (om *OrderMask)String() string {
	return fmt.Sprintf("OrderMask[o0:%d, o1:%d, o2:%d px]",
		om.Footprints[0].Count(), om.Footprints[1].Count(), om.Footprints[2].Count())
}

// BuildOrderMask derives the order footprints from the F277W image.
// The candidate-pixel policy comes from the config; "combined" builds
// several estimates and takes the per-pixel median across them, which
// is how multiple source estimates get merged.
func BuildOrderMask(cfg Config, f277w *ngrid.Grid) (*OrderMask, error) {
	var candidates *ngrid.Mask
	var err error

	switch cfg.OrderMaskPolicy {
	case "smooth":
		candidates = maskBySmoothing(cfg, f277w, cfg.OrderMaskBlurSigma)

	case "outlier":
		candidates = maskByHighOutliers(cfg, f277w)

	case "combined":
		candidates, err = combineMaskEstimates(
			maskBySmoothing(cfg, f277w, cfg.OrderMaskBlurSigma),
			maskBySmoothing(cfg, f277w, 2*cfg.OrderMaskBlurSigma),
			maskByHighOutliers(cfg, f277w),
		)
		if err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("no order mask policy named '%s'", cfg.OrderMaskPolicy)
	}

	// Model mismatch - if we didn't find enough bright pixels to trace
	// an order, don't guess; the operator needs to loosen the sigma or
	// box size.
	if candidates.Count() < f277w.Dx() {
		return nil, fmt.Errorf("order mask found only %d candidate pixels over %d columns; "+
			"adjust OrderMaskSigma / OrderBoxDiameter", candidates.Count(), f277w.Dx())
	}

	om := assignOrders(cfg, f277w, candidates)
	if cfg.Verbosity > 0 {
		log.Printf("built %s\n", om)
	}
	return om, nil
}

// maskBySmoothing gaussian-smooths the image to suppress pixel noise,
// then thresholds at median + k*MAD of the smoothed image.
func maskBySmoothing(cfg Config, img *ngrid.Grid, sigma float64) *ngrid.Mask {
	sm := img.GaussianBlur(sigma)
	thresh := sm.Median() + cfg.OrderMaskSigma*sm.MADSigma()
	return threshold(sm, thresh)
}

// maskByHighOutliers thresholds only well above the noise, catching the
// bright 0th order contamination while excluding faint noise pixels.
func maskByHighOutliers(cfg Config, img *ngrid.Grid) *ngrid.Mask {
	thresh := img.Median() + cfg.OrderOutlierSigma*img.MADSigma()
	return threshold(img, thresh)
}

func threshold(img *ngrid.Grid, thresh float64) *ngrid.Mask {
	m := ngrid.NewMask(img.Dx(), img.Dy())
	for x := 0; x < img.Dx(); x++ {
		for y := 0; y < img.Dy(); y++ {
			if v := img.Get(x, y); !math.IsNaN(v) && v > thresh {
				m.Set(x, y, true)
			}
		}
	}
	return m
}

// combineMaskEstimates takes the per-pixel median across mask variants:
// a pixel is in when it's in most of them.
func combineMaskEstimates(variants ...*ngrid.Mask) (*ngrid.Mask, error) {
	grids := make([]*ngrid.Grid, len(variants))
	for i, v := range variants {
		g := ngrid.NewGrid(v.Dx(), v.Dy())
		for x := 0; x < v.Dx(); x++ {
			for y := 0; y < v.Dy(); y++ {
				if v.Get(x, y) {
					g.Set(x, y, 1)
				}
			}
		}
		grids[i] = g
	}

	med, err := ngrid.PerPixelMedian(grids)
	if err != nil {
		return nil, err
	}

	out := ngrid.NewMask(med.Dx(), med.Dy())
	for x := 0; x < med.Dx(); x++ {
		for y := 0; y < med.Dy(); y++ {
			if med.Get(x, y) > 0.5 {
				out.Set(x, y, true)
			}
		}
	}
	return out, nil
}

// assignOrders walks the candidate pixels column by column. The
// brightest vertical run in a column is the order 1 trace, the next is
// order 2; both get the footprint box stamped at the run centroid.
// Bright candidates that end up outside both boxes are order 0.
func assignOrders(cfg Config, img *ngrid.Grid, candidates *ngrid.Mask) *OrderMask {
	om := &OrderMask{}
	for i := range om.Footprints {
		om.Footprints[i] = ngrid.NewMask(img.Dx(), img.Dy())
	}

	for x := 0; x < img.Dx(); x++ {
		runs := columnRuns(cfg, img, candidates, x)
		if len(runs) > 0 {
			om.Footprints[1].StampBox(x, runs[0].centroid, cfg.OrderBoxDiameter)
		}
		if len(runs) > 1 {
			om.Footprints[2].StampBox(x, runs[1].centroid, cfg.OrderBoxDiameter)
		}
	}

	// Whatever bright pixels the traces didn't claim are 0th order hits.
	for x := 0; x < img.Dx(); x++ {
		for y := 0; y < img.Dy(); y++ {
			if candidates.Get(x, y) && !om.Footprints[1].Get(x, y) && !om.Footprints[2].Get(x, y) {
				om.Footprints[0].Set(x, y, true)
			}
		}
	}

	return om
}

type traceRun struct {
	centroid int
	flux     float64
}

// columnRuns clusters the candidate pixels of one column into vertical
// runs (a gap wider than the box diameter starts a new run), and
// returns them sorted brightest-first. Sorting is stable on flux ties
// (lower y wins) so repeated runs over identical input produce an
// identical mask.
func columnRuns(cfg Config, img *ngrid.Grid, candidates *ngrid.Mask, x int) []traceRun {
	runs := []traceRun{}
	sumW, sumWY := 0.0, 0.0
	lastY := -2 * cfg.OrderBoxDiameter

	flush := func() {
		if sumW > 0 {
			runs = append(runs, traceRun{centroid: int(sumWY/sumW + 0.5), flux: sumW})
		}
		sumW, sumWY = 0, 0
	}

	for y := 0; y < img.Dy(); y++ {
		if !candidates.Get(x, y) {
			continue
		}
		if y-lastY > cfg.OrderBoxDiameter {
			flush()
		}
		v := img.Get(x, y)
		if math.IsNaN(v) || v <= 0 {
			v = 1e-9 // keep the pixel in the run even if it carries no flux
		}
		sumW += v
		sumWY += v * float64(y)
		lastY = y
	}
	flush()

	// brightest-first, stable
	for i := 1; i < len(runs); i++ {
		for j := i; j > 0 && runs[j].flux > runs[j-1].flux; j-- {
			runs[j], runs[j-1] = runs[j-1], runs[j]
		}
	}
	return runs
}
