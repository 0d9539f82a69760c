package niriss

import(
	"fmt"
	"image"
	"image/color"
	"math"
	"os"

	"github.com/astrogo/fitsio"
	"github.com/mdouchement/hdr/codec/rgbe"
	"github.com/mdouchement/hdr/hdrcolor"

	"nirhiss/pkg/ngrid"
)

// WriteCleanedFITS writes the cleaned stack: a 3D SCI extension with
// the surviving integrations, and an INTIDX extension recording each
// survivor's original integration index, since the filtered series is
// no longer contiguous.
func (s *Stack)WriteCleanedFITS(filename string) error {
	w, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("open+w '%s': %v", filename, err)
	}
	defer w.Close()

	f, err := fitsio.Create(w)
	if err != nil {
		return fmt.Errorf("fits create '%s': %v", filename, err)
	}
	defer f.Close()

	// Primary HDU - header only.
	primary := fitsio.NewImage(8, []int{})
	defer primary.Close()
	if err := f.Write(primary); err != nil {
		return fmt.Errorf("fits primary '%s': %v", filename, err)
	}

	n := len(s.Integrations)
	sci := fitsio.NewImage(-32, []int{s.Dx(), s.Dy(), n})
	defer sci.Close()
	if err := sci.Header().Append(fitsio.Card{Name: "EXTNAME", Value: "SCI"}); err != nil {
		return err
	}

	data := make([]float32, 0, s.Dx()*s.Dy()*n)
	for _, in := range s.Integrations {
		for _, v := range in.Pixels.Values() {
			data = append(data, float32(v))
		}
	}
	if err := sci.Write(&data); err != nil {
		return fmt.Errorf("fits SCI write '%s': %v", filename, err)
	}
	if err := f.Write(sci); err != nil {
		return fmt.Errorf("fits SCI '%s': %v", filename, err)
	}

	idx := fitsio.NewImage(32, []int{n})
	defer idx.Close()
	if err := idx.Header().Append(fitsio.Card{Name: "EXTNAME", Value: "INTIDX"}); err != nil {
		return err
	}
	indices := make([]int32, n)
	for i, in := range s.Integrations {
		indices[i] = int32(in.Index)
	}
	if err := idx.Write(&indices); err != nil {
		return fmt.Errorf("fits INTIDX write '%s': %v", filename, err)
	}
	if err := f.Write(idx); err != nil {
		return fmt.Errorf("fits INTIDX '%s': %v", filename, err)
	}

	return nil
}

// hdrFrame adapts a grid to the hdr.Image interface so a float frame
// can go out as Radiance RGBE with its dynamic range intact, which the
// PNG diagnostics can't do. Values are shifted so the minimum sits at
// zero; RGBE has no sign bit.
type hdrFrame struct {
	g      *ngrid.Grid
	offset float64
}

func (h hdrFrame)ColorModel() color.Model { return hdrcolor.RGBModel }
func (h hdrFrame)Bounds() image.Rectangle {
	return image.Rectangle{Max: image.Point{h.g.Dx(), h.g.Dy()}}
}
func (h hdrFrame)At(x, y int) color.Color { return h.HDRAt(x, y) }
func (h hdrFrame)Size() int               { return h.g.Dx() * h.g.Dy() }

func (h hdrFrame)HDRAt(x, y int) hdrcolor.Color {
	v := h.g.Get(x, y)
	if math.IsNaN(v) {
		v = h.offset // NaN renders as the floor
	}
	v -= h.offset
	return hdrcolor.RGB{R: v, G: v, B: v}
}

// WriteHDR dumps a frame as a Radiance .hdr file.
func WriteHDR(g *ngrid.Grid, filename string) error {
	min := math.MaxFloat64
	for _, v := range g.Values() {
		if !math.IsNaN(v) && v < min {
			min = v
		}
	}
	if min > 0 {
		min = 0
	}

	w, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("open+w '%s': %v", filename, err)
	}
	defer w.Close()

	return rgbe.Encode(w, hdrFrame{g: g, offset: min})
}
