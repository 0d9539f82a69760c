package niriss

import(
	"log"
	"math"

	"github.com/skypies/util/histogram"

	"nirhiss/pkg/ngrid"
)

// A QualityReport is what the integration filter knows about one
// integration.
type QualityReport struct {
	NoiseSigma        float64 // robust residual noise off the trace
	SaturatedFraction float64 // fraction of pixels at/above the saturation level
	TraceFlux         float64 // mean flux inside the order 1 footprint
}

// RecordSaturation snapshots the saturated-pixel fraction. Runs before
// background subtraction, while pixel values are still in raw DN.
func RecordSaturation(cfg Config, in *Integration) {
	if cfg.SaturationLevel <= 0 {
		return
	}
	n, total := 0, 0
	g := in.Pixels
	for x := 0; x < g.Dx(); x++ {
		for y := 0; y < g.Dy(); y++ {
			v := g.Get(x, y)
			if math.IsNaN(v) {
				continue
			}
			total++
			if v >= cfg.SaturationLevel {
				n++
			}
		}
	}
	if total > 0 {
		in.Report.SaturatedFraction = float64(n) / float64(total)
	}
}

// scoreIntegration fills in the noise and trace terms, measured on the
// fully corrected frame.
func scoreIntegration(s *Stack, in *Integration) {
	offTrace := s.OrderMask.Union().Invert()
	in.Report.NoiseSigma = madSigmaWhere(in.Pixels, offTrace)
	in.Report.TraceFlux = in.Pixels.MeanWhere(s.OrderMask.Footprints[1])
}

func madSigmaWhere(g *ngrid.Grid, keep *ngrid.Mask) float64 {
	vals := []float64{}
	for x := 0; x < g.Dx(); x++ {
		for y := 0; y < g.Dy(); y++ {
			if v := g.Get(x, y); keep.Get(x, y) && !math.IsNaN(v) {
				vals = append(vals, v)
			}
		}
	}
	tmp, err := ngrid.NewGridFrom(len(vals), 1, vals)
	if err != nil {
		return math.NaN()
	}
	return tmp.MADSigma()
}

// FilterIntegrations scores every integration and drops the ones that
// fail the quality criteria: excess residual noise, too many saturated
// pixels, or loss of the spectral trace. Dropped integrations keep
// their original index for the log; survivors keep their order. The
// whole stack is the synchronization point - nothing here runs until
// all per-integration corrections are done.
func FilterIntegrations(cfg Config, s *Stack) []Integration {
	if !cfg.FilterIntegrations {
		return nil
	}

	noises, fluxes := []float64{}, []float64{}
	for i := range s.Integrations {
		scoreIntegration(s, &s.Integrations[i])
		r := s.Integrations[i].Report
		if !math.IsNaN(r.NoiseSigma) {
			noises = append(noises, r.NoiseSigma)
		}
		if !math.IsNaN(r.TraceFlux) {
			fluxes = append(fluxes, r.TraceFlux)
		}
	}

	medNoise := medianFloats(noises)
	madNoise := madFloats(noises, medNoise)
	medFlux := medianFloats(fluxes)
	noiseCut := medNoise + cfg.FilterNoiseSigma*madNoise

	// Noise-score histogram, in tenths of the median noise, so the
	// outliers are visible in the log.
	hist := histogram.Histogram{NumBuckets: 40, ValMin: 0, ValMax: 40}
	for _, n := range noises {
		if medNoise > 0 {
			hist.Add(histogram.ScalarVal(int(n / medNoise * 10.0)))
		}
	}

	for i := range s.Integrations {
		in := &s.Integrations[i]
		r := in.Report

		switch {
		case cfg.SaturationLevel > 0 && r.SaturatedFraction > cfg.MaxSaturatedFraction:
			in.Dropped = true
			in.DropReason = "saturated"
		case madNoise > 0 && r.NoiseSigma > noiseCut:
			in.Dropped = true
			in.DropReason = "excess residual noise"
		case !math.IsNaN(medFlux) && medFlux > 0 && r.TraceFlux < 0.5*medFlux:
			in.Dropped = true
			in.DropReason = "loss of trace"
		}

		if in.Dropped {
			log.Printf("dropping integ %03d: %s (noise %.3g, sat %.3f%%, trace %.3g)\n",
				in.Index, in.DropReason, r.NoiseSigma, r.SaturatedFraction*100, r.TraceFlux)
		}
	}

	dropped := s.Compact()
	log.Printf("integration filter: dropped %d of %d; noise scores %s\n",
		len(dropped), len(dropped)+len(s.Integrations), hist.String())
	return dropped
}

func madFloats(vals []float64, med float64) float64 {
	devs := make([]float64, len(vals))
	for i, v := range vals {
		devs[i] = math.Abs(v - med)
	}
	return 1.4826 * medianFloats(devs)
}
