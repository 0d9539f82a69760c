package niriss

import(
	"math"

	"nirhiss/pkg/ngrid"
)

// A OneOverFRoutine removes the correlated read-noise striping from a
// frame. The mask, when non-nil, marks pixels to EXCLUDE from the
// noise estimate (the order footprints, so astrophysical signal isn't
// subtracted as noise). The routine used in the published analyses is
// external; it's behind this func type so a different implementation
// can be swapped in without touching the pipeline.
type OneOverFRoutine func(g *ngrid.Grid, exclude *ngrid.Mask)

// ExternalOneOverF is the routine the pipeline calls. The default
// subtracts the per-column median of the usable pixels, which is the
// shape of the striping along the readout direction.
var ExternalOneOverF OneOverFRoutine = subtractColumnStripes

func subtractColumnStripes(g *ngrid.Grid, exclude *ngrid.Mask) {
	var keep *ngrid.Mask
	if exclude != nil {
		keep = exclude.Invert()
	}

	meds := g.ColumnMedians(keep)
	for x := 0; x < g.Dx(); x++ {
		m := meds[x]
		if math.IsNaN(m) {
			continue // whole column excluded; leave it be
		}
		for y := 0; y < g.Dy(); y++ {
			g.Set(x, y, g.Get(x, y)-m)
		}
	}
}

// CorrectOneOverF runs the 1/f correction on one integration,
// after background subtraction. In "masked" mode the order footprint
// and quality-flagged pixels are kept out of the estimate; "unmasked"
// hands the whole frame to the external routine.
func CorrectOneOverF(cfg Config, s *Stack, in *Integration) {
	switch cfg.OneOverFMode {
	case "off":
		return

	case "unmasked":
		ExternalOneOverF(in.Pixels, nil)

	default: // masked
		exclude := s.OrderMask.Union()
		if in.Quality != nil {
			exclude.Or(in.Quality)
		}
		ExternalOneOverF(in.Pixels, exclude)
	}
}
