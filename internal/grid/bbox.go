package grid

import (
	"fmt"
	"math"

	"github.com/twpayne/go-geom"
)

// BBox is an axis-aligned bounding box in the grid's native CRS.
type BBox struct {
	MinX float64 `json:"min_x" mapstructure:"min_x"`
	MinY float64 `json:"min_y" mapstructure:"min_y"`
	MaxX float64 `json:"max_x" mapstructure:"max_x"`
	MaxY float64 `json:"max_y" mapstructure:"max_y"`
}

// EmptyBBox returns an inverted box that any Extend call will replace.
func EmptyBBox() BBox {
	return BBox{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
}

// BoundsOf returns the envelope of g.
func BoundsOf(g geom.T) BBox {
	if g == nil {
		return EmptyBBox()
	}
	b := g.Bounds()
	if b.IsEmpty() {
		return EmptyBBox()
	}
	return BBox{MinX: b.Min(0), MinY: b.Min(1), MaxX: b.Max(0), MaxY: b.Max(1)}
}

// IsEmpty reports whether the box covers no area and no point.
func (b BBox) IsEmpty() bool {
	return b.MinX > b.MaxX || b.MinY > b.MaxY
}

// Width returns the X extent.
func (b BBox) Width() float64 { return b.MaxX - b.MinX }

// Height returns the Y extent.
func (b BBox) Height() float64 { return b.MaxY - b.MinY }

// Expand grows the box by d on every side.
func (b BBox) Expand(d float64) BBox {
	return BBox{MinX: b.MinX - d, MinY: b.MinY - d, MaxX: b.MaxX + d, MaxY: b.MaxY + d}
}

// Extend returns the smallest box covering both b and o.
func (b BBox) Extend(o BBox) BBox {
	if o.IsEmpty() {
		return b
	}
	if b.IsEmpty() {
		return o
	}
	return BBox{
		MinX: math.Min(b.MinX, o.MinX),
		MinY: math.Min(b.MinY, o.MinY),
		MaxX: math.Max(b.MaxX, o.MaxX),
		MaxY: math.Max(b.MaxY, o.MaxY),
	}
}

// Intersects reports whether the closed boxes share at least one point.
func (b BBox) Intersects(o BBox) bool {
	if b.IsEmpty() || o.IsEmpty() {
		return false
	}
	return b.MinX <= o.MaxX && o.MinX <= b.MaxX && b.MinY <= o.MaxY && o.MinY <= b.MaxY
}

// Contains reports whether o lies entirely within b.
func (b BBox) Contains(o BBox) bool {
	if b.IsEmpty() || o.IsEmpty() {
		return false
	}
	return o.MinX >= b.MinX && o.MaxX <= b.MaxX && o.MinY >= b.MinY && o.MaxY <= b.MaxY
}

// ContainsPoint reports whether (x, y) lies in the closed box.
func (b BBox) ContainsPoint(x, y float64) bool {
	return x >= b.MinX && x <= b.MaxX && y >= b.MinY && y <= b.MaxY
}

// Polygon returns the box as a closed counter-clockwise polygon.
func (b BBox) Polygon() *geom.Polygon {
	return geom.NewPolygonFlat(geom.XY, []float64{
		b.MinX, b.MinY,
		b.MaxX, b.MinY,
		b.MaxX, b.MaxY,
		b.MinX, b.MaxY,
		b.MinX, b.MinY,
	}, []int{10})
}

// String formats the box as minx,miny,maxx,maxy.
func (b BBox) String() string {
	return fmt.Sprintf("%g,%g,%g,%g", b.MinX, b.MinY, b.MaxX, b.MaxY)
}
