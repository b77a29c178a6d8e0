package grid

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/twpayne/go-geom"
)

func TestBBox_Basics(t *testing.T) {
	b := BBox{MinX: 0, MinY: 0, MaxX: 10, MaxY: 5}
	assert.False(t, b.IsEmpty())
	assert.Equal(t, 10.0, b.Width())
	assert.Equal(t, 5.0, b.Height())
	assert.Equal(t, "0,0,10,5", b.String())
	assert.Equal(t, BBox{MinX: -1, MinY: -1, MaxX: 11, MaxY: 6}, b.Expand(1))
}

func TestBBox_Empty(t *testing.T) {
	e := EmptyBBox()
	assert.True(t, e.IsEmpty())

	b := BBox{MinX: 1, MinY: 2, MaxX: 3, MaxY: 4}
	assert.Equal(t, b, e.Extend(b))
	assert.Equal(t, b, b.Extend(e))
	assert.False(t, e.Intersects(b))
	assert.False(t, b.Contains(e))
}

func TestBBox_Extend(t *testing.T) {
	a := BBox{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1}
	b := BBox{MinX: 5, MinY: -2, MaxX: 6, MaxY: 0.5}
	assert.Equal(t, BBox{MinX: 0, MinY: -2, MaxX: 6, MaxY: 1}, a.Extend(b))
}

func TestBBox_Intersects(t *testing.T) {
	a := BBox{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1}
	tests := []struct {
		name string
		b    BBox
		want bool
	}{
		{"overlap", BBox{MinX: 0.5, MinY: 0.5, MaxX: 2, MaxY: 2}, true},
		{"shared edge", BBox{MinX: 1, MinY: 0, MaxX: 2, MaxY: 1}, true},
		{"shared corner", BBox{MinX: 1, MinY: 1, MaxX: 2, MaxY: 2}, true},
		{"disjoint", BBox{MinX: 1.01, MinY: 0, MaxX: 2, MaxY: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.Intersects(tt.b))
			assert.Equal(t, tt.want, tt.b.Intersects(a))
		})
	}
}

func TestBBox_Contains(t *testing.T) {
	outer := BBox{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}
	assert.True(t, outer.Contains(BBox{MinX: 1, MinY: 1, MaxX: 9, MaxY: 9}))
	assert.True(t, outer.Contains(outer))
	assert.False(t, outer.Contains(BBox{MinX: -1, MinY: 1, MaxX: 9, MaxY: 9}))
	assert.True(t, outer.ContainsPoint(10, 0))
	assert.False(t, outer.ContainsPoint(10.1, 0))
}

func TestBBox_Polygon(t *testing.T) {
	b := BBox{MinX: 0, MinY: 0, MaxX: 2, MaxY: 3}
	p := b.Polygon()
	assert.InDelta(t, 6.0, p.Area(), 1e-9)
	assert.Equal(t, b, BoundsOf(p))
}

func TestBoundsOf(t *testing.T) {
	assert.True(t, BoundsOf(nil).IsEmpty())
	assert.True(t, BoundsOf(geom.NewPolygon(geom.XY)).IsEmpty())

	pt := geom.NewPointFlat(geom.XY, []float64{3, 4})
	assert.Equal(t, BBox{MinX: 3, MinY: 4, MaxX: 3, MaxY: 4}, BoundsOf(pt))
	assert.False(t, math.IsInf(BoundsOf(pt).MinX, 0))
}
