package niriss

import(
	"fmt"
	"log"
	"sync"
)

// Run drives the whole correction chain:
//
//	order mask -> DQ cleanup -> cosmic rays -> background -> 1/f
//	           -> second cosmic pass -> integration filter
//
// The dataset-level artifacts (order mask, background model) are
// computed up front; after that each integration is independent, so
// the per-integration stages run on a worker pool. The integration
// filter at the end is the one synchronization point.
func (s *Stack)Run() error {
	if len(s.Integrations) == 0 {
		return fmt.Errorf("empty stack")
	}

	// The order mask wants the F277W image; when the dataset didn't
	// come with one, the median science frame stands in.
	if s.F277W == nil {
		med, err := s.MedianFrame()
		if err != nil {
			return err
		}
		s.F277W = med
		log.Printf("no F277W image supplied; using the median frame for the order mask\n")
	}

	om, err := BuildOrderMask(s.Config, s.F277W)
	if err != nil {
		return err
	}
	s.OrderMask = om
	if s.Verbosity > 0 {
		s.F277W.ToImg(fmt.Sprintf("order mask source %s", om), "diag-ordermask-source.png")
	}

	// DQ cleanup + saturation snapshot + first cosmic ray pass.
	med, err := s.MedianFrame()
	if err != nil {
		return err
	}
	log.Printf("cleaning %d integrations (DQ + cosmic rays)\n", len(s.Integrations))
	s.forEachKept(func(in *Integration) {
		CleanIntegration(s.Config, in)
		RecordSaturation(s.Config, in)
		CosmicPass(s.Config, in, med, "pass1")
	})

	// Background model: built across the stack, then subtracted per
	// integration.
	log.Printf("background strategy '%s'\n", s.BackgroundStrategy)
	bm, err := s.Config.GetBackgrounder()(s.Config, s)
	if err != nil {
		return err
	}
	s.Background = bm
	if s.Verbosity > 0 && bm.Ref != nil {
		bm.Ref.ToImg(fmt.Sprintf("background model '%s'", s.BackgroundStrategy), "diag-background.png")
	}
	bm.Subtract(s)

	// 1/f correction, then the minor cosmic pass that catches residual
	// contamination the background subtraction uncovered.
	if s.OneOverFMode != "off" {
		log.Printf("1/f correction, mode '%s'\n", s.OneOverFMode)
	}
	s.forEachKept(func(in *Integration) {
		CorrectOneOverF(s.Config, s, in)
	})

	if s.CosmicSecondPass {
		med2, err := s.MedianFrame()
		if err != nil {
			return err
		}
		s.forEachKept(func(in *Integration) {
			CosmicPass(s.Config, in, med2, "pass2")
		})
	}

	FilterIntegrations(s.Config, s)

	log.Printf("pipeline done: %d integrations in the cleaned stack\n", len(s.Integrations))
	return nil
}

// forEachKept runs fn over every non-dropped integration on a worker
// pool. Each integration is touched by exactly one worker, and fn only
// mutates its own integration, so no locking.
func (s *Stack)forEachKept(fn func(in *Integration)) {
	var wg sync.WaitGroup
	jobsChan := make(chan *Integration, len(s.Integrations))

	nWorkers := s.Workers
	if nWorkers < 1 {
		nWorkers = 1
	}
	for i := 0; i < nWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for in := range jobsChan {
				fn(in)
			}
		}()
	}

	for _, in := range s.Kept() {
		jobsChan <- in
	}
	close(jobsChan)
	wg.Wait()
}
