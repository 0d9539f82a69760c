package main

import(
	"flag"
	"log"

	"nirhiss/pkg/niriss"
)

var(
	fVerbosity int
	fMethod string
	fOrderMaskPolicy string
	fBackground string
	fBackgroundModel string
	fF277W string
	fOneOverF string
	fScalePerInteg bool
	fScaleTest bool
	fFilter bool
	fOutput string
	fWorkers int
)

func init() {
	flag.IntVar(&fVerbosity, "v", 0, "how verbose to get")
	flag.StringVar(&fMethod, "method", "", "analysis variant preset: method1..method4, wasp39b")
	flag.StringVar(&fOrderMaskPolicy, "ordermask", "", "order mask policy: smooth, outlier, combined")
	flag.StringVar(&fBackground, "background", "", "background strategy: colmedian, reference, hybrid")
	flag.StringVar(&fBackgroundModel, "backgroundmodel", "", "SUBSTRIP256 reference model FITS file")
	flag.StringVar(&fF277W, "f277w", "", "F277W image FITS file for the order mask")
	flag.StringVar(&fOneOverF, "onef", "", "1/f correction mode: unmasked, masked, off")
	flag.BoolVar(&fScalePerInteg, "scaleperinteg", false, "fit a background scale per integration")
	flag.BoolVar(&fScaleTest, "scaletest", false, "fit background scales on the first 5 integrations only, and log them")
	flag.BoolVar(&fFilter, "filter", false, "drop integrations failing the quality criteria")
	flag.StringVar(&fOutput, "o", "cleaned.fits", "output file for the cleaned stack")
	flag.IntVar(&fWorkers, "workers", 8, "per-integration worker pool size")
	flag.Parse()

	log.Printf("nirhiss starting\n")
}

func main() {
	s := niriss.NewStack()
	if err := s.LoadFilesAndDirs(flag.Args()...); err != nil {
		log.Fatal(err)
	}

	// Flags override whatever the config file set up.
	if err := s.Config.ApplyMethod(fMethod); err != nil {
		log.Fatal(err)
	}
	if fOrderMaskPolicy != "" {
		s.Config.OrderMaskPolicy = fOrderMaskPolicy
	}
	if fBackground != "" {
		s.Config.BackgroundStrategy = fBackground
	}
	if fBackgroundModel != "" {
		s.Config.BackgroundModelFile = fBackgroundModel
	}
	if fF277W != "" {
		s.Config.F277WFile = fF277W
	}
	if fOneOverF != "" {
		s.Config.OneOverFMode = fOneOverF
	}
	if fScalePerInteg {
		s.Config.BackgroundScalePerInteg = true
	}
	if fScaleTest {
		s.Config.BackgroundScaleTest = true
	}
	if fFilter {
		s.Config.FilterIntegrations = true
	}
	s.Config.Verbosity = fVerbosity
	s.Config.Workers = fWorkers

	if s.Verbosity > 0 {
		log.Printf("Final configuration:-\n\n%s\n", s.Config.AsYaml())
	}

	if err := s.LoadReferences(); err != nil {
		log.Fatal(err)
	}

	if err := s.Run(); err != nil {
		log.Fatal(err)
	}

	if err := s.WriteCleanedFITS(fOutput); err != nil {
		log.Fatal(err)
	}
	log.Printf("wrote cleaned stack to %s\n", fOutput)

	if s.Verbosity > 0 {
		if med, err := s.MedianFrame(); err == nil {
			med.ToImg("median of cleaned stack", "diag-cleaned-median.png")
			niriss.WriteHDR(med, "diag-cleaned-median.hdr")
		}
	}
}
