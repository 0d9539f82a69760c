package niriss

import(
	"fmt"

	"nirhiss/pkg/ngrid"
)

// An Integration is one exposure frame in the time series: the pixel
// grid, the DQ flags that came with it, and what the pipeline learns
// about it along the way.
type Integration struct {
	Index       int            // position in the original, unfiltered series
	Pixels      *ngrid.Grid
	DQ          *ngrid.Bitmask // nil when the container had no DQ plane

	Quality     *ngrid.Mask    // DQ bad bits ∪ cosmic ray hits, grows as passes run
	Report      QualityReport  // filled by the integration filter

	Dropped     bool
	DropReason  string
}

// A Stack holds the ordered integrations plus the dataset-level
// artifacts shared across them. Every integration has identical
// spatial dimensions; Add enforces it.
type Stack struct {
	Integrations []Integration
	Config

	F277W        *ngrid.Grid       // reference image for the order mask; median frame when absent
	Reference    *ngrid.Grid       // SUBSTRIP256 background model, when configured
	OrderMask    *OrderMask        // computed once, read-only after Build
	Background   *BackgroundModel  // computed once per dataset

	naxis1, naxis2 int
}

func NewStack() Stack {
	return Stack{
		Integrations: []Integration{},
		Config:       NewConfig(),
	}
}

func (s Stack)String() string {
	str := fmt.Sprintf("Stack[%dx%d,\n", s.naxis1, s.naxis2)
	for _, in := range s.Integrations {
		state := "ok"
		if in.Dropped {
			state = "dropped: " + in.DropReason
		}
		str += fmt.Sprintf("  integ %03d: %s (%s)\n", in.Index, in.Pixels.Stats(), state)
	}
	return str + "]\n"
}

func (s *Stack)Add(pixels *ngrid.Grid, dq *ngrid.Bitmask) error {
	if len(s.Integrations) == 0 {
		s.naxis1, s.naxis2 = pixels.Dx(), pixels.Dy()
	} else if pixels.Dx() != s.naxis1 || pixels.Dy() != s.naxis2 {
		return fmt.Errorf("integration %d is %dx%d, stack is %dx%d",
			len(s.Integrations), pixels.Dx(), pixels.Dy(), s.naxis1, s.naxis2)
	}
	if dq != nil && (dq.Dx() != pixels.Dx() || dq.Dy() != pixels.Dy()) {
		return fmt.Errorf("integration %d DQ is %dx%d, pixels are %dx%d",
			len(s.Integrations), dq.Dx(), dq.Dy(), pixels.Dx(), pixels.Dy())
	}

	s.Integrations = append(s.Integrations, Integration{
		Index:  len(s.Integrations),
		Pixels: pixels,
		DQ:     dq,
	})
	return nil
}

func (s *Stack)Dx() int { return s.naxis1 }
func (s *Stack)Dy() int { return s.naxis2 }

// Kept returns pointers to the integrations that haven't been dropped,
// in their original order.
func (s *Stack)Kept() []*Integration {
	out := []*Integration{}
	for i := range s.Integrations {
		if !s.Integrations[i].Dropped {
			out = append(out, &s.Integrations[i])
		}
	}
	return out
}

// MedianFrame builds the per-pixel median across the kept
// integrations. This is the reference frame for the order mask and for
// temporal cosmic ray detection.
func (s *Stack)MedianFrame() (*ngrid.Grid, error) {
	grids := []*ngrid.Grid{}
	for _, in := range s.Kept() {
		grids = append(grids, in.Pixels)
	}
	return ngrid.PerPixelMedian(grids)
}

// Compact removes the dropped integrations from the stack, preserving
// the order of the survivors. Their original Index values are kept, so
// downstream consumers can account for the non-contiguous series.
func (s *Stack)Compact() []Integration {
	kept, dropped := []Integration{}, []Integration{}
	for _, in := range s.Integrations {
		if in.Dropped {
			dropped = append(dropped, in)
		} else {
			kept = append(kept, in)
		}
	}
	s.Integrations = kept
	return dropped
}
