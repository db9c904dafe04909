package pose

import (
	"fmt"

	"github.com/chewxy/math32"
)

// Region is an axis-aligned box, either normalized to [0,1] or in pixels, depending on the Bounds it was built with.
// X1 <= X2 and Y1 <= Y2.
type Region struct {
	X1 float32 `json:"x1"`
	Y1 float32 `json:"y1"`
	X2 float32 `json:"x2"`
	Y2 float32 `json:"y2"`
}

// Bounds is the valid coordinate range of a region: [0,Width] x [0,Height]
type Bounds struct {
	Width  float32
	Height float32
}

// NormalizedBounds is the coordinate range of normalized regions
var NormalizedBounds = Bounds{Width: 1, Height: 1}

// PixelBounds returns the coordinate range of an image with the given dimensions
func PixelBounds(width, height int) Bounds {
	return Bounds{Width: float32(width), Height: float32(height)}
}

func (r Region) Width() float32 {
	return r.X2 - r.X1
}

func (r Region) Height() float32 {
	return r.Y2 - r.Y1
}

func (r Region) Contains(x, y float32) bool {
	return x >= r.X1 && x <= r.X2 && y >= r.Y1 && y <= r.Y2
}

// Clamp limits the region to the given bounds, and ensures that X1 <= X2 and Y1 <= Y2
func (r Region) Clamp(b Bounds) Region {
	c := Region{
		X1: clamp32(r.X1, 0, b.Width),
		Y1: clamp32(r.Y1, 0, b.Height),
		X2: clamp32(r.X2, 0, b.Width),
		Y2: clamp32(r.Y2, 0, b.Height),
	}
	if c.X2 < c.X1 {
		c.X1, c.X2 = c.X2, c.X1
	}
	if c.Y2 < c.Y1 {
		c.Y1, c.Y2 = c.Y2, c.Y1
	}
	return c
}

// Scale converts a normalized region into the coordinate range of b (eg pixels)
func (r Region) Scale(b Bounds) Region {
	return Region{
		X1: r.X1 * b.Width,
		Y1: r.Y1 * b.Height,
		X2: r.X2 * b.Width,
		Y2: r.Y2 * b.Height,
	}
}

func (r Region) String() string {
	return fmt.Sprintf("Region(%.3f,%.3f - %.3f,%.3f)", r.X1, r.Y1, r.X2, r.Y2)
}

// NormalizeRect converts a pixel rectangle into a normalized region, clamped to [0,1]
func NormalizeRect(left, top, right, bottom float32, width, height int) Region {
	return Region{
		X1: left / float32(width),
		Y1: top / float32(height),
		X2: right / float32(width),
		Y2: bottom / float32(height),
	}.Clamp(NormalizedBounds)
}

func clamp32(v, lo, hi float32) float32 {
	return math32.Max(lo, math32.Min(hi, v))
}
