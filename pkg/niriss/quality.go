package niriss

import(
	"log"
	"math"

	"nirhiss/pkg/ngrid"
)

// BuildQualityMask flags every pixel whose DQ word carries a bad bit.
// Cosmic ray detections get OR'd into the same mask later.
func BuildQualityMask(cfg Config, in *Integration) *ngrid.Mask {
	m := ngrid.NewMask(in.Pixels.Dx(), in.Pixels.Dy())
	if in.DQ == nil {
		return m
	}
	for x := 0; x < m.Dx(); x++ {
		for y := 0; y < m.Dy(); y++ {
			if in.DQ.AnySet(x, y, cfg.BadDQBits) {
				m.Set(x, y, true)
			}
		}
	}
	return m
}

// InterpolateMasked replaces every masked pixel with a value
// interpolated from its nearest valid neighbours along the row,
// falling back to the column when the whole row is masked. Pixels that
// can't be recovered either way are set to NaN and counted; the caller
// decides whether that's worth a warning. Pixels outside the mask are
// never touched.
func InterpolateMasked(g *ngrid.Grid, m *ngrid.Mask) (nInterp, nUnrecoverable int) {
	// Work on a copy so freshly interpolated values never feed later
	// interpolations within the same call.
	src := g.Copy()

	for y := 0; y < g.Dy(); y++ {
		for x := 0; x < g.Dx(); x++ {
			if !m.Get(x, y) {
				continue
			}

			if v, ok := interpAcross(src, m, x, y, true); ok {
				g.Set(x, y, v)
				nInterp++
			} else if v, ok := interpAcross(src, m, x, y, false); ok {
				g.Set(x, y, v)
				nInterp++
			} else {
				g.Set(x, y, math.NaN())
				nUnrecoverable++
			}
		}
	}
	return
}

// interpAcross linearly interpolates across the masked gap at (x,y),
// scanning along the row (alongX) or the column. Returns false when no
// valid neighbour exists on either side at all, i.e. the whole line is
// masked or NaN. A single-sided neighbour just gets extended flat.
func interpAcross(g *ngrid.Grid, m *ngrid.Mask, x, y int, alongX bool) (float64, bool) {
	limit := g.Dx()
	if !alongX {
		limit = g.Dy()
	}

	at := func(i int) (float64, bool) {
		var v float64
		var masked bool
		if alongX {
			v, masked = g.Get(i, y), m.Get(i, y)
		} else {
			v, masked = g.Get(x, i), m.Get(x, i)
		}
		return v, !masked && !math.IsNaN(v)
	}

	pos := x
	if !alongX {
		pos = y
	}

	loVal, loAt, loOK := 0.0, 0, false
	for i := pos - 1; i >= 0; i-- {
		if v, ok := at(i); ok {
			loVal, loAt, loOK = v, i, true
			break
		}
	}
	hiVal, hiAt, hiOK := 0.0, 0, false
	for i := pos + 1; i < limit; i++ {
		if v, ok := at(i); ok {
			hiVal, hiAt, hiOK = v, i, true
			break
		}
	}

	switch {
	case loOK && hiOK:
		t := float64(pos-loAt) / float64(hiAt-loAt)
		return loVal + t*(hiVal-loVal), true
	case loOK:
		return loVal, true
	case hiOK:
		return hiVal, true
	}
	return 0, false
}

// CleanIntegration applies the DQ quality mask and interpolates over
// the flagged pixels. This runs before any background or 1/f estimate
// so known-bad pixels can't bias the corrections.
func CleanIntegration(cfg Config, in *Integration) {
	in.Quality = BuildQualityMask(cfg, in)

	nInterp, nBad := InterpolateMasked(in.Pixels, in.Quality)
	if nBad > 0 {
		log.Printf("integ %03d: %d pixels unrecoverable (region too large to interpolate), left as NaN\n",
			in.Index, nBad)
	}
	if cfg.Verbosity > 1 {
		log.Printf("integ %03d: DQ flagged %d px, interpolated %d\n", in.Index, in.Quality.Count(), nInterp)
	}
}
