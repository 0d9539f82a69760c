package niriss

import(
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/astrogo/fitsio"
	"golang.org/x/image/tiff"

	"nirhiss/pkg/ngrid"
)

// LoadFilesAndDirs walks the args, recursing into directories, and
// loads whatever it recognizes: FITS integration stacks, TIFF frames,
// YAML config.
func (s *Stack)LoadFilesAndDirs(args ...string) error {
	for _, arg := range args {
		item, err := os.Stat(arg)

		switch {

		case err != nil:
			return fmt.Errorf("load %s: %v", arg, err)

		case item.IsDir():
			contents, err := ioutil.ReadDir(arg)
			if err != nil {
				return fmt.Errorf("readdir %s: %v", arg, err)
			}
			for _, content := range contents {
				if err := s.LoadFilesAndDirs(filepath.Join(arg, content.Name())); err != nil {
					return fmt.Errorf("load %s: %v", arg, err)
				}
			}

		default: // is a file, load it
			if err := s.loadFile(arg); err != nil {
				return fmt.Errorf("loadfile %s: %v", arg, err)
			}
		}
	}

	return nil
}

func (s *Stack)loadFile(filename string) error {
	switch strings.ToLower(filepath.Ext(filename)) {

	case ".fits", ".fit":
		frames, dqs, err := loadFITSStack(filename)
		if err != nil {
			return fmt.Errorf("loading %s as FITS failed: %v", filename, err)
		}
		for i := range frames {
			if err := s.Add(frames[i], dqs[i]); err != nil {
				return err
			}
		}
		log.Printf("loaded %d integration(s) from %s\n", len(frames), filename)

	case ".tif", ".tiff":
		frame, err := loadTIFF(filename)
		if err != nil {
			return fmt.Errorf("loading %s as TIFF failed: %v", filename, err)
		}
		if err := s.Add(frame, nil); err != nil {
			return err
		}

	case ".yaml":
		contents, err := ioutil.ReadFile(filename)
		if err != nil {
			return fmt.Errorf("config read %s: %v", filename, err)
		}
		cfg, err := newConfigFromYaml(contents)
		if err != nil {
			return fmt.Errorf("config parse %s: %v", filename, err)
		}
		s.Config = cfg
		log.Printf("loaded base configuration from %s\n", filename)
	}

	return nil
}

// LoadReferences pulls in the config-named auxiliary images: the
// SUBSTRIP256 background model and the F277W order-mask image.
func (s *Stack)LoadReferences() error {
	if s.BackgroundModelFile != "" {
		g, err := LoadFITSImage(s.BackgroundModelFile)
		if err != nil {
			return fmt.Errorf("background model %s: %v", s.BackgroundModelFile, err)
		}
		s.Reference = g
	}
	if s.F277WFile != "" {
		g, err := LoadFITSImage(s.F277WFile)
		if err != nil {
			return fmt.Errorf("F277W image %s: %v", s.F277WFile, err)
		}
		s.F277W = g
	}
	return nil
}

// loadFITSStack reads the science and DQ planes out of a FITS file.
// JWST stage products carry a 3D SCI extension [nints, ny, nx] with a
// matching DQ extension; a bare 2D image HDU is taken as a single
// science frame. DQ planes are matched to science frames in HDU
// order.
func loadFITSStack(filename string) ([]*ngrid.Grid, []*ngrid.Bitmask, error) {
	r, err := os.Open(filename)
	if err != nil {
		return nil, nil, fmt.Errorf("open+r '%s': %v", filename, err)
	}
	defer r.Close()

	f, err := fitsio.Open(r)
	if err != nil {
		return nil, nil, fmt.Errorf("fits parse '%s': %v", filename, err)
	}
	defer f.Close()

	frames := []*ngrid.Grid{}
	dqs := []*ngrid.Bitmask{}

	for i := 0; i < len(f.HDUs()); i++ {
		img, ok := f.HDU(i).(fitsio.Image)
		if !ok {
			continue
		}
		hdr := img.Header()
		axes := hdr.Axes()
		if len(axes) < 2 || axes[0] == 0 {
			continue // header-only HDU
		}

		extname := ""
		if card := hdr.Get("EXTNAME"); card != nil {
			extname, _ = card.Value.(string)
		}

		switch strings.ToUpper(strings.TrimSpace(extname)) {

		case "SCI", "": // science plane(s)
			vals, err := readImageFloats(img)
			if err != nil {
				return nil, nil, err
			}
			for _, g := range splitFrames(axes, vals) {
				frames = append(frames, g)
			}

		case "DQ":
			vals, err := readImageFloats(img)
			if err != nil {
				return nil, nil, err
			}
			for _, g := range splitFrames(axes, vals) {
				bits := make([]uint32, len(g.Values()))
				for j, v := range g.Values() {
					bits[j] = uint32(v)
				}
				dqs = append(dqs, ngrid.NewBitmaskFrom(g.Dx(), g.Dy(), bits))
			}
		}
	}

	if len(frames) == 0 {
		return nil, nil, fmt.Errorf("'%s' has no usable image HDU", filename)
	}

	// Pad the DQ list with nils so the zip below can't go wrong.
	for len(dqs) < len(frames) {
		dqs = append(dqs, nil)
	}
	return frames, dqs[:len(frames)], nil
}

// LoadFITSImage reads the first 2D image HDU of a file, for reference
// images that aren't stacks.
func LoadFITSImage(filename string) (*ngrid.Grid, error) {
	frames, _, err := loadFITSStack(filename)
	if err != nil {
		return nil, err
	}
	if len(frames) > 1 {
		return nil, fmt.Errorf("'%s' holds %d frames, expected a single reference image", filename, len(frames))
	}
	return frames[0], nil
}

// splitFrames slices a FITS data cube into per-frame grids. FITS data
// is row-major with NAXIS1 (x) fastest, which matches the grid layout
// directly.
func splitFrames(axes []int, vals []float64) []*ngrid.Grid {
	nx, ny := axes[0], axes[1]
	nframes := 1
	for _, ax := range axes[2:] {
		nframes *= ax
	}

	out := []*ngrid.Grid{}
	for i := 0; i < nframes; i++ {
		sub := vals[i*nx*ny : (i+1)*nx*ny]
		g, err := ngrid.NewGridFrom(nx, ny, sub)
		if err != nil {
			continue // can't happen; the slice is cut to size
		}
		out = append(out, g)
	}
	return out
}

// readImageFloats pulls the pixel data out of an image HDU, whatever
// its BITPIX, as float64.
func readImageFloats(img fitsio.Image) ([]float64, error) {
	hdr := img.Header()
	n := 1
	for _, ax := range hdr.Axes() {
		n *= ax
	}

	out := make([]float64, n)
	switch hdr.Bitpix() {

	case 8:
		var raw []int8
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		for i, v := range raw { out[i] = float64(v) }

	case 16:
		var raw []int16
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		for i, v := range raw { out[i] = float64(v) }

	case 32:
		var raw []int32
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		for i, v := range raw { out[i] = float64(v) }

	case 64:
		var raw []int64
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		for i, v := range raw { out[i] = float64(v) }

	case -32:
		var raw []float32
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		for i, v := range raw { out[i] = float64(v) }

	case -64:
		if err := img.Read(&out); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unhandled BITPIX %d", hdr.Bitpix())
	}

	return out, nil
}

// loadTIFF reads a grayscale TIFF as a single science frame with no DQ
// plane. Handy for synthetic data and for eyeballing.
func loadTIFF(filename string) (*ngrid.Grid, error) {
	reader, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open+r '%s': %v", filename, err)
	}
	defer reader.Close()

	img, err := tiff.Decode(reader)
	if err != nil {
		return nil, fmt.Errorf("tiff loading '%s': %v", filename, err)
	}

	bounds := img.Bounds()
	g := ngrid.NewGrid(bounds.Dx(), bounds.Dy())
	for x := 0; x < bounds.Dx(); x++ {
		for y := 0; y < bounds.Dy(); y++ {
			r, _, _, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			g.Set(x, y, float64(r))
		}
	}
	return g, nil
}
