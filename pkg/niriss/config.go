package niriss

import(
	"fmt"
	"log"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Verbosity                 int

	// Order mask
	OrderMaskPolicy           string  // "smooth", "outlier", "combined"
	OrderMaskBlurSigma        float64 // gaussian sigma for the "smooth" policy, px
	OrderMaskSigma            float64 // threshold = median + this many MAD-sigmas
	OrderOutlierSigma         float64 // high-outlier cutoff for the "outlier" policy
	OrderBoxDiameter          int     // footprint box stamped along the order 1/2 traces, px

	// Quality mask
	BadDQBits                 uint32  // DQ bits treated as bad; 0 means any set bit

	// Reference inputs
	F277WFile                 string  // F277W filter image for the order mask; median frame when empty

	// Background
	BackgroundStrategy        string  // "colmedian", "reference", "hybrid"
	BackgroundModelFile       string  // SUBSTRIP256 reference model, FITS
	BackgroundScalePerInteg   bool    // fit a scale per integration rather than one for the stack
	BackgroundScaleTest       bool    // fit only the first few integrations and log the values
	ResidualSigma             float64 // hybrid strategy keeps residuals below this many sigma

	// 1/f
	OneOverFMode              string  // "unmasked", "masked", "off"

	// Cosmic rays
	CosmicSigma               float64
	CosmicSecondPass          bool    // minor pass after background correction

	// Integration filter
	FilterIntegrations        bool
	FilterNoiseSigma          float64 // drop when noise score > median + this many MADs
	SaturationLevel           float64 // DN; <=0 disables the saturation criterion
	MaxSaturatedFraction      float64

	Workers                   int
}

func NewConfig() Config {
	return Config{
		OrderMaskPolicy:      "smooth",
		OrderMaskBlurSigma:   2.0,
		OrderMaskSigma:       3.0,
		OrderOutlierSigma:    10.0,
		OrderBoxDiameter:     24,

		BackgroundStrategy:   "colmedian",
		ResidualSigma:        1.8,

		OneOverFMode:         "masked",

		CosmicSigma:          5.0,

		FilterNoiseSigma:     4.0,
		MaxSaturatedFraction: 0.01,

		Workers:              8,
	}
}

func newConfigFromYaml(b []byte) (Config, error) {
	c := NewConfig()
	err := yaml.Unmarshal(b, &c)
	return c, err
}

func (c Config)AsYaml() string {
	b, err := yaml.Marshal(c)
	if err != nil {
		log.Fatalf("Can't marshal config yaml: %v\n", err)
	}
	return string(b)
}

// ApplyMethod sets up the strategy combination for one of the named
// analysis variants. The presets reconstruct the published method
// descriptions; anything can still be overridden afterwards.
func (c *Config)ApplyMethod(name string) error {
	switch name {
	case "method1":
		c.OrderMaskPolicy = "smooth"
		c.BackgroundStrategy = "colmedian"
		c.OneOverFMode = "unmasked"
		c.CosmicSecondPass = false
		c.FilterIntegrations = false

	case "method2":
		c.OrderMaskPolicy = "outlier"
		c.BackgroundStrategy = "reference"
		c.OneOverFMode = "masked"
		c.CosmicSecondPass = false
		c.FilterIntegrations = true

	case "method3":
		c.OrderMaskPolicy = "combined"
		c.BackgroundStrategy = "reference"
		c.BackgroundScalePerInteg = false
		c.OneOverFMode = "masked"
		c.CosmicSecondPass = true
		c.FilterIntegrations = true

	case "method4":
		c.OrderMaskPolicy = "combined"
		c.BackgroundStrategy = "hybrid"
		c.OneOverFMode = "masked"
		c.CosmicSecondPass = true
		c.FilterIntegrations = true

	case "wasp39b":
		c.OrderMaskPolicy = "smooth"
		c.BackgroundStrategy = "reference"
		c.BackgroundScalePerInteg = true
		c.OneOverFMode = "masked"
		c.CosmicSecondPass = true
		c.FilterIntegrations = true

	case "":
		// keep whatever the config file / flags set up

	default:
		return fmt.Errorf("no method preset named '%s'", name)
	}
	return nil
}

// GetBackgrounder maps the config string onto a background strategy.
func (c Config)GetBackgrounder() Backgrounder {
	switch c.BackgroundStrategy {
	case "colmedian": return BackgroundByColumnMedian
	case "reference": return BackgroundByReference
	case "hybrid":    return BackgroundByHybrid
	default:
		log.Fatalf("no background strategy named '%s'", c.BackgroundStrategy)
		return nil
	}
}
