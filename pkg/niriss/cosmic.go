package niriss

import(
	"log"
	"math"

	"nirhiss/pkg/ngrid"
)

// CosmicPass detects transient outlier pixels in one integration by
// comparing it against the stack median frame, flags them into the
// quality mask, and interpolates over them. Cosmic rays are positive
// charge deposits, so only high outliers count; a dead pixel is DQ's
// problem, not ours.
//
// Runs per integration - hits are not reference-frame-stable. The
// sigma is a robust MAD estimate of the difference frame, so the hits
// being detected don't inflate their own threshold.
func CosmicPass(cfg Config, in *Integration, median *ngrid.Grid, passName string) int {
	diff := in.Pixels.Copy()
	diff.Sub(median, 1.0)
	sigma := diff.MADSigma()
	if math.IsNaN(sigma) || sigma == 0 {
		return 0
	}

	hits := ngrid.NewMask(diff.Dx(), diff.Dy())
	thresh := cfg.CosmicSigma * sigma
	for x := 0; x < diff.Dx(); x++ {
		for y := 0; y < diff.Dy(); y++ {
			if d := diff.Get(x, y); !math.IsNaN(d) && d > thresh {
				hits.Set(x, y, true)
			}
		}
	}

	n := hits.Count()
	if n == 0 {
		return 0
	}

	if in.Quality != nil {
		in.Quality.Or(hits)
	} else {
		in.Quality = hits.Copy()
	}

	_, nBad := InterpolateMasked(in.Pixels, hits)
	if nBad > 0 {
		log.Printf("integ %03d %s: %d cosmic ray pixels unrecoverable, left as NaN\n",
			in.Index, passName, nBad)
	}
	if cfg.Verbosity > 1 {
		log.Printf("integ %03d %s: %d cosmic ray pixels (%.1f sigma over %.3g)\n",
			in.Index, passName, n, cfg.CosmicSigma, sigma)
	}
	return n
}
