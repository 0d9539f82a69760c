package ngrid

import(
	"image"
	"image/color"
	"math"

	"github.com/fogleman/gg"
)

// ToImg saves a simple grayscale PNG, based on the range of finite
// values in the grid, gamma scaled so the gray looks normal for human
// vision. NaN pixels render red so masked regions jump out.
func (g *Grid)ToImg(title, filename string) error {
	min, max := math.MaxFloat64, -math.MaxFloat64
	for _, v := range g.values {
		if math.IsNaN(v) {
			continue
		}
		if v > max { max = v }
		if v < min { min = v }
	}
	if max <= min {
		max = min + 1
	}

	img := image.NewRGBA64(image.Rectangle{Max: image.Point{g.Dx(), g.Dy()}})
	for x := 0; x < g.Dx(); x++ {
		for y := 0; y < g.Dy(); y++ {
			v := g.Get(x, y)
			if math.IsNaN(v) {
				img.Set(x, y, color.RGBA64{0xa000, 0, 0, 0xFFFF})
				continue
			}
			gray := gammaExpand((v - min) / (max - min))
			col := color.RGBA64{uint16(gray * 65535.0), uint16(gray * 65535.0), uint16(gray * 65535.0), 0xFFFF}
			img.Set(x, y, col)
		}
	}

	dc := gg.NewContextForImage(img)
	dc.SetRGB(1, 1, 1)
	dc.DrawString(title, 20, 20)
	return dc.SavePNG(filename)
}

// linear -> sRGB, so the diagnostic dumps aren't all shadow
func gammaExpand(f float64) float64 {
	if f <= 0.0031308 {
		return 12.92 * f
	}
	return 1.055*math.Pow(f, 1.0/2.4) - 0.055
}
