package ngrid

// A Mask is a boolean grid, same shape as the pixel grids it annotates.
type Mask struct {
	stride int
	vals   []bool
}

func NewMask(w, h int) *Mask {
	return &Mask{
		stride: w,
		vals:   make([]bool, w*h),
	}
}

func (m *Mask)Set(x, y int, v bool) { m.vals[m.stride*y + x] = v }
func (m *Mask)Get(x, y int) bool    { return m.vals[m.stride*y + x] }
func (m *Mask)Dx() int              { return m.stride }
func (m *Mask)Dy() int              { return len(m.vals) / m.stride }

func (m *Mask)Count() int {
	n := 0
	for _, v := range m.vals {
		if v { n++ }
	}
	return n
}

func (m1 *Mask)Copy() *Mask {
	m2 := Mask{stride: m1.stride, vals: make([]bool, len(m1.vals))}
	copy(m2.vals, m1.vals)
	return &m2
}

// Or merges o into m in place.
func (m *Mask)Or(o *Mask) {
	for i, v := range o.vals {
		if v { m.vals[i] = true }
	}
}

// Invert returns the complement, i.e. the pixels NOT in the mask.
func (m *Mask)Invert() *Mask {
	out := Mask{stride: m.stride, vals: make([]bool, len(m.vals))}
	for i, v := range m.vals {
		out.vals[i] = !v
	}
	return &out
}

// StampBox marks a square box of the given diameter centred on (x,y),
// clipped to the grid.
func (m *Mask)StampBox(x, y, diameter int) {
	r := diameter / 2
	for yy := y - r; yy <= y+r; yy++ {
		for xx := x - r; xx <= x+r; xx++ {
			if xx >= 0 && xx < m.Dx() && yy >= 0 && yy < m.Dy() {
				m.Set(xx, yy, true)
			}
		}
	}
}

// A Bitmask carries the per-pixel DQ flag words that ride alongside
// each integration. The bit semantics are the instrument pipeline's
// contract; we only ever test bits against a configured bad-bit set.
type Bitmask struct {
	stride int
	bits   []uint32
}

func NewBitmask(w, h int) *Bitmask {
	return &Bitmask{
		stride: w,
		bits:   make([]uint32, w*h),
	}
}

// NewBitmaskFrom wraps an existing row-major flag slice.
func NewBitmaskFrom(w, h int, bits []uint32) *Bitmask {
	return &Bitmask{stride: w, bits: bits}
}

func (b *Bitmask)Set(x, y int, v uint32) { b.bits[b.stride*y + x] = v }
func (b *Bitmask)Get(x, y int) uint32    { return b.bits[b.stride*y + x] }
func (b *Bitmask)Dx() int                { return b.stride }
func (b *Bitmask)Dy() int                { return len(b.bits) / b.stride }

// AnySet reports whether any of the bits in `want` are set at (x,y).
// want==0 means "any bit at all".
func (b *Bitmask)AnySet(x, y int, want uint32) bool {
	v := b.bits[b.stride*y + x]
	if want == 0 {
		return v != 0
	}
	return v&want != 0
}
