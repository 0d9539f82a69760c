package niriss

import(
	"fmt"
	"log"
	"math"

	"nirhiss/pkg/ngrid"
)

// A BackgroundModel is what gets subtracted from each integration:
// either one model per integration, or a shared model with a
// per-integration scale factor on it.
type BackgroundModel struct {
	Ref            *ngrid.Grid   // shared model (reference / hybrid strategies)
	PerIntegration []*ngrid.Grid // one model per integration (colmedian strategy)
	Scales         []float64     // scale on Ref per integration; 1.0 when unscaled
}

// A Backgrounder builds the background model for a stack. The order
// mask must already be built: trace pixels are always excluded from
// the background estimate, so the subtraction can't eat the spectrum
// or reintroduce interpolated pixel values as background signal.
type Backgrounder func(cfg Config, s *Stack) (*BackgroundModel, error)

// ModelFor returns the background grid and scale for the integration
// at position i.
func (bm *BackgroundModel)ModelFor(i int) (*ngrid.Grid, float64) {
	if bm.PerIntegration != nil {
		return bm.PerIntegration[i], 1.0
	}
	scale := 1.0
	if bm.Scales != nil {
		scale = bm.Scales[i]
	}
	return bm.Ref, scale
}

// Subtract applies the model to every kept integration in place.
func (bm *BackgroundModel)Subtract(s *Stack) {
	for i := range s.Integrations {
		if s.Integrations[i].Dropped {
			continue
		}
		model, scale := bm.ModelFor(i)
		s.Integrations[i].Pixels.Sub(model, scale)
	}
}

// ReAdd undoes Subtract; exists so the round trip can be verified.
func (bm *BackgroundModel)ReAdd(s *Stack) {
	for i := range s.Integrations {
		if s.Integrations[i].Dropped {
			continue
		}
		model, scale := bm.ModelFor(i)
		s.Integrations[i].Pixels.Add(model, scale)
	}
}

// BackgroundByColumnMedian is the simplest strategy: each integration
// gets its own model, a per-column median over the non-trace pixels,
// held constant down each column. This also soaks up smooth column-wise
// 1/f residual.
func BackgroundByColumnMedian(cfg Config, s *Stack) (*BackgroundModel, error) {
	keep := s.OrderMask.Union().Invert()

	bm := &BackgroundModel{PerIntegration: make([]*ngrid.Grid, len(s.Integrations))}
	for i := range s.Integrations {
		in := &s.Integrations[i]
		meds := in.Pixels.ColumnMedians(keep)
		model := ngrid.NewGrid(in.Pixels.Dx(), in.Pixels.Dy())
		for x := 0; x < model.Dx(); x++ {
			v := meds[x]
			if math.IsNaN(v) {
				v = 0 // fully masked column contributes no correction
			}
			for y := 0; y < model.Dy(); y++ {
				model.Set(x, y, v)
			}
		}
		bm.PerIntegration[i] = model
	}
	return bm, nil
}

// BackgroundByReference subtracts the externally supplied SUBSTRIP256
// model, either directly or scaled to match the observed flux level.
func BackgroundByReference(cfg Config, s *Stack) (*BackgroundModel, error) {
	if s.Reference == nil {
		return nil, fmt.Errorf("background strategy 'reference' needs a SUBSTRIP256 model file")
	}
	if s.Reference.Dx() != s.Dx() || s.Reference.Dy() != s.Dy() {
		return nil, fmt.Errorf("reference model is %dx%d, stack is %dx%d",
			s.Reference.Dx(), s.Reference.Dy(), s.Dx(), s.Dy())
	}

	bm := &BackgroundModel{Ref: s.Reference}
	keep := s.OrderMask.Union().Invert()

	scales := fitScales(cfg, s, keep)
	if cfg.BackgroundScalePerInteg {
		bm.Scales = scales
	} else {
		// One scale for the whole stack: the median of the
		// per-integration best fits.
		med := medianFloats(scales)
		bm.Scales = make([]float64, len(s.Integrations))
		for i := range bm.Scales {
			bm.Scales[i] = med
		}
		log.Printf("background: stack scale %.4f (median of %d fits)\n", med, len(scales))
	}
	return bm, nil
}

// scaleVals is the grid the scale fit searches over: 500 values evenly
// spaced on [0, 10].
func scaleVals() []float64 {
	vals := make([]float64, 500)
	for i := range vals {
		vals[i] = 10.0 * float64(i) / float64(len(vals)-1)
	}
	return vals
}

// fitScales finds, for each integration, the scale on the reference
// model that minimizes the RMS of (frame - scale*model) over the
// non-trace pixels. In test mode only the first five integrations are
// fitted (and logged), and their values stand in for the rest.
func fitScales(cfg Config, s *Stack, keep *ngrid.Mask) []float64 {
	n := len(s.Integrations)
	length := n
	if cfg.BackgroundScaleTest && length > 5 {
		length = 5
	}

	scales := make([]float64, n)
	for i := 0; i < length; i++ {
		scales[i] = FitScale(s.Integrations[i].Pixels, s.Reference, keep)
		if cfg.BackgroundScaleTest {
			log.Printf("background scale test: integ %03d -> %.4f\n", i, scales[i])
		}
	}
	if length < n {
		fill := medianFloats(scales[:length])
		for i := length; i < n; i++ {
			scales[i] = fill
		}
	}
	return scales
}

// FitScale grid-searches the scale factor minimizing the RMS residual
// of frame - scale*model over the kept, finite pixels.
func FitScale(frame, model *ngrid.Grid, keep *ngrid.Mask) float64 {
	bestVal, bestRMS := 1.0, math.MaxFloat64

	for _, v := range scaleVals() {
		sum, n := 0.0, 0
		for x := 0; x < frame.Dx(); x++ {
			for y := 0; y < frame.Dy(); y++ {
				if keep != nil && !keep.Get(x, y) {
					continue
				}
				d := frame.Get(x, y) - model.Get(x, y)*v
				if math.IsNaN(d) {
					continue
				}
				sum += d * d
				n++
			}
		}
		if n == 0 {
			continue
		}
		if rms := math.Sqrt(sum / float64(n)); rms < bestRMS {
			bestRMS, bestVal = rms, v
		}
	}
	return bestVal
}

// BackgroundByHybrid refines a first-pass estimate: only the
// low-significance residual pixels (the ones that look like pure
// background) are kept from each integration, the holes interpolated,
// the per-integration estimates median-combined, and the result
// gaussian smoothed into a single shared model.
func BackgroundByHybrid(cfg Config, s *Stack) (*BackgroundModel, error) {
	keep := s.OrderMask.Union().Invert()

	estimates := []*ngrid.Grid{}
	for i := range s.Integrations {
		in := &s.Integrations[i]

		// First pass: column medians over non-trace pixels.
		meds := in.Pixels.ColumnMedians(keep)

		// Residual against the first pass; pixels above the residual
		// sigma threshold are spectrum / cosmic rays, not background.
		resid := in.Pixels.Copy()
		for x := 0; x < resid.Dx(); x++ {
			m := meds[x]
			if math.IsNaN(m) {
				m = 0
			}
			for y := 0; y < resid.Dy(); y++ {
				resid.Set(x, y, resid.Get(x, y)-m)
			}
		}
		sigma := resid.MADSigma()

		est := in.Pixels.Copy()
		holes := ngrid.NewMask(est.Dx(), est.Dy())
		for x := 0; x < est.Dx(); x++ {
			for y := 0; y < est.Dy(); y++ {
				r := resid.Get(x, y)
				if math.IsNaN(r) || math.Abs(r) >= cfg.ResidualSigma*sigma || !keep.Get(x, y) {
					holes.Set(x, y, true)
				}
			}
		}
		InterpolateMasked(est, holes)
		estimates = append(estimates, est)
	}

	combined, err := ngrid.PerPixelMedian(estimates)
	if err != nil {
		return nil, err
	}

	bm := &BackgroundModel{Ref: combined.GaussianBlur(cfg.OrderMaskBlurSigma)}
	return bm, nil
}

func medianFloats(vals []float64) float64 {
	tmp, err := ngrid.NewGridFrom(len(vals), 1, append([]float64{}, vals...))
	if err != nil {
		return math.NaN()
	}
	return tmp.Median()
}
