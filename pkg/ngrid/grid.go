package ngrid

import(
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// A Grid is a 2D grid of detector pixel values, with some operations.
// Bad / unrecoverable pixels are carried as NaN, and every stat or
// filter here skips NaN rather than poisoning the result.
type Grid struct {
	stride int
	values []float64
}

func NewGrid(w, h int) *Grid {
	return &Grid{
		stride: w,
		values: make([]float64, w*h),
	}
}

// NewGridFrom wraps an existing row-major value slice. The slice is
// owned by the grid afterwards.
func NewGridFrom(w, h int, values []float64) (*Grid, error) {
	if len(values) != w*h {
		return nil, fmt.Errorf("grid %dx%d needs %d values, got %d", w, h, w*h, len(values))
	}
	return &Grid{stride: w, values: values}, nil
}

func (g *Grid)NewFromThis() *Grid          { return NewGrid(g.Dx(), g.Dy()) }
func (g *Grid)Set(x, y int, v float64)     { g.values[g.stride*y + x] = v }
func (g *Grid)Get(x, y int) float64        { return g.values[g.stride*y + x] }
func (g *Grid)Dx() int                     { return g.stride }
func (g *Grid)Dy() int                     { return len(g.values) / g.stride }
func (g *Grid)Values() []float64           { return g.values }

func (g1 *Grid)Copy() *Grid {
	g2 := Grid{stride: g1.stride, values: make([]float64, len(g1.values))}
	copy(g2.values, g1.values)
	return &g2
}

// Sub subtracts o, scaled by s, in place.
func (g *Grid)Sub(o *Grid, s float64) {
	for i := range g.values {
		g.values[i] -= o.values[i] * s
	}
}

// Add adds o, scaled by s, in place.
func (g *Grid)Add(o *Grid, s float64) {
	for i := range g.values {
		g.values[i] += o.values[i] * s
	}
}

// finite returns the non-NaN values, optionally restricted to where
// `keep` is true. A nil keep means everywhere.
func (g *Grid)finite(keep *Mask) []float64 {
	out := make([]float64, 0, len(g.values))
	for i, v := range g.values {
		if math.IsNaN(v) {
			continue
		}
		if keep != nil && !keep.vals[i] {
			continue
		}
		out = append(out, v)
	}
	return out
}

func (g *Grid)Mean() float64 {
	vals := g.finite(nil)
	if len(vals) == 0 {
		return math.NaN()
	}
	return stat.Mean(vals, nil)
}

func (g *Grid)StdDev() float64 {
	vals := g.finite(nil)
	if len(vals) < 2 {
		return math.NaN()
	}
	return stat.StdDev(vals, nil)
}

func (g *Grid)Median() float64      { return medianOf(g.finite(nil)) }
func (g *Grid)MedianWhere(m *Mask) float64 { return medianOf(g.finite(m)) }
func (g *Grid)MeanWhere(m *Mask) float64 {
	vals := g.finite(m)
	if len(vals) == 0 {
		return math.NaN()
	}
	return stat.Mean(vals, nil)
}

func medianOf(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	sort.Float64s(vals)
	return stat.Quantile(0.5, stat.Empirical, vals, nil)
}

// MADSigma is a robust noise estimate: 1.4826 * the median absolute
// deviation from the median. Immune to the bright trace pixels and
// cosmic ray hits that wreck a plain stddev.
func (g *Grid)MADSigma() float64 {
	vals := g.finite(nil)
	return madSigmaOf(vals)
}

func madSigmaOf(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	med := medianOf(append([]float64{}, vals...))
	devs := make([]float64, len(vals))
	for i, v := range vals {
		devs[i] = math.Abs(v - med)
	}
	return 1.4826 * medianOf(devs)
}

// ColumnMedians returns the NaN-aware median of each column,
// restricted to pixels where `keep` is true (nil keep = all pixels).
// A fully excluded column yields NaN.
func (g *Grid)ColumnMedians(keep *Mask) []float64 {
	meds := make([]float64, g.Dx())
	col := make([]float64, 0, g.Dy())
	for x := 0; x < g.Dx(); x++ {
		col = col[:0]
		for y := 0; y < g.Dy(); y++ {
			v := g.Get(x, y)
			if math.IsNaN(v) {
				continue
			}
			if keep != nil && !keep.Get(x, y) {
				continue
			}
			col = append(col, v)
		}
		meds[x] = medianOf(col)
	}
	return meds
}

// GaussianBlur returns a smoothed copy, using a separable gaussian
// kernel truncated at 3 sigma. NaN pixels contribute nothing and the
// kernel renormalizes over the finite neighbours, so masked pixels
// don't bleed into the smooth.
func (g1 *Grid)GaussianBlur(sigma float64) *Grid {
	if sigma <= 0 {
		return g1.Copy()
	}

	radius := int(math.Ceil(3 * sigma))
	kernel := make([]float64, 2*radius+1)
	for i := -radius; i <= radius; i++ {
		kernel[i+radius] = math.Exp(-float64(i*i) / (2 * sigma * sigma))
	}

	width, height := g1.Dx(), g1.Dy()
	T := g1.NewFromThis()
	g2 := g1.NewFromThis()

	// X pass, build up in T
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			sum, wsum := 0.0, 0.0
			for i := -radius; i <= radius; i++ {
				xx := x + i
				if xx < 0 || xx >= width {
					continue
				}
				if v := g1.Get(xx, y); !math.IsNaN(v) {
					sum += v * kernel[i+radius]
					wsum += kernel[i+radius]
				}
			}
			if wsum > 0 {
				T.Set(x, y, sum/wsum)
			} else {
				T.Set(x, y, math.NaN())
			}
		}
	}

	// Y pass, read from T and generate output
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			sum, wsum := 0.0, 0.0
			for i := -radius; i <= radius; i++ {
				yy := y + i
				if yy < 0 || yy >= height {
					continue
				}
				if v := T.Get(x, yy); !math.IsNaN(v) {
					sum += v * kernel[i+radius]
					wsum += kernel[i+radius]
				}
			}
			if wsum > 0 {
				g2.Set(x, y, sum/wsum)
			} else {
				g2.Set(x, y, math.NaN())
			}
		}
	}

	return g2
}

// PerPixelMedian combines several same-sized grids by taking the
// NaN-aware median at each pixel.
func PerPixelMedian(grids []*Grid) (*Grid, error) {
	if len(grids) == 0 {
		return nil, fmt.Errorf("per-pixel median of zero grids")
	}
	for _, g := range grids[1:] {
		if g.Dx() != grids[0].Dx() || g.Dy() != grids[0].Dy() {
			return nil, fmt.Errorf("per-pixel median: grid dims %dx%d != %dx%d",
				g.Dx(), g.Dy(), grids[0].Dx(), grids[0].Dy())
		}
	}

	out := grids[0].NewFromThis()
	vals := make([]float64, 0, len(grids))
	for i := range out.values {
		vals = vals[:0]
		for _, g := range grids {
			if v := g.values[i]; !math.IsNaN(v) {
				vals = append(vals, v)
			}
		}
		out.values[i] = medianOf(vals)
	}
	return out, nil
}

func (g *Grid)Stats() string {
	min, max := math.MaxFloat64, -math.MaxFloat64
	nan := 0
	for _, v := range g.values {
		if math.IsNaN(v) {
			nan++
			continue
		}
		if v > max { max = v }
		if v < min { min = v }
	}
	return fmt.Sprintf("grid[%dx%d, vals{%g,%g}, %d NaN]", g.Dx(), g.Dy(), min, max, nan)
}
