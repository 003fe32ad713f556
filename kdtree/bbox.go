package kdtree

import (
	"github.com/chewxy/math32"
	"github.com/kbiElude/Emerald-sub008/types"
)

// Relative margin applied by Padded. Matches KD_BBOX_PADDING in the kernel
// prelude.
const bboxPaddingScale = 1e-4

type Axis uint8

const (
	XAxis Axis = iota
	YAxis
	ZAxis
)

func (a Axis) String() string {
	switch a {
	case XAxis:
		return "X"
	case YAxis:
		return "Y"
	case ZAxis:
		return "Z"
	}
	return "?"
}

// An axis-aligned bounding box.
type BoundingBox struct {
	Min types.Vec3
	Max types.Vec3
}

// An inverted box that any union will overwrite.
func emptyBoundingBox() BoundingBox {
	return BoundingBox{
		Min: types.Vec3{math32.MaxFloat32, math32.MaxFloat32, math32.MaxFloat32},
		Max: types.Vec3{-math32.MaxFloat32, -math32.MaxFloat32, -math32.MaxFloat32},
	}
}

// Grow the box so it includes point p.
func (b BoundingBox) Include(p types.Vec3) BoundingBox {
	return BoundingBox{
		Min: types.MinVec3(b.Min, p),
		Max: types.MaxVec3(b.Max, p),
	}
}

// Get the box side lengths.
func (b BoundingBox) Extent() types.Vec3 {
	return b.Max.Sub(b.Min)
}

func (b BoundingBox) Volume() float32 {
	side := b.Extent()
	return side[0] * side[1] * side[2]
}

// Get the axis with the largest span. Ties resolve in X, Y, Z order.
func (b BoundingBox) LongestAxis() Axis {
	return Axis(b.Extent().MaxComponentIndex())
}

// Clip the box at value along axis.
func (b BoundingBox) Split(axis Axis, value float32) (left, right BoundingBox) {
	left, right = b, b
	left.Max[axis] = value
	right.Min[axis] = value
	return left, right
}

// Grow the box by a margin proportional to its largest side so that flat
// scenes still have a non-empty interior along the ray.
func (b BoundingBox) Padded() BoundingBox {
	side := b.Extent()
	pad := bboxPaddingScale * (1 + side[side.MaxComponentIndex()])
	delta := types.XYZ(pad, pad, pad)
	return BoundingBox{Min: b.Min.Sub(delta), Max: b.Max.Add(delta)}
}

// Check whether other lies inside this box.
func (b BoundingBox) Contains(other BoundingBox) bool {
	for axis := 0; axis < 3; axis++ {
		if other.Min[axis] < b.Min[axis] || other.Max[axis] > b.Max[axis] {
			return false
		}
	}
	return true
}

// Clip a ray against the box using the slab method. Returns the parametric
// entry and exit distances; tMin is never negative.
func (b BoundingBox) IntersectRay(origin, dir types.Vec3) (tMin, tMax float32, hit bool) {
	tMin, tMax = 0, math32.MaxFloat32
	for axis := 0; axis < 3; axis++ {
		if dir[axis] == 0 {
			if origin[axis] < b.Min[axis] || origin[axis] > b.Max[axis] {
				return 0, 0, false
			}
			continue
		}

		invDir := 1.0 / dir[axis]
		t0 := (b.Min[axis] - origin[axis]) * invDir
		t1 := (b.Max[axis] - origin[axis]) * invDir
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		tMin = math32.Max(tMin, t0)
		tMax = math32.Min(tMax, t1)
		if tMin > tMax {
			return 0, 0, false
		}
	}
	return tMin, tMax, true
}

// Get the 12 box edges as line segment endpoint pairs.
func (b BoundingBox) Edges() []types.Vec3 {
	var corners [8]types.Vec3
	for i := range corners {
		for axis := 0; axis < 3; axis++ {
			if i&(1<<uint(axis)) != 0 {
				corners[i][axis] = b.Max[axis]
			} else {
				corners[i][axis] = b.Min[axis]
			}
		}
	}

	lines := make([]types.Vec3, 0, 24)
	for i := range corners {
		for axis := 0; axis < 3; axis++ {
			bit := 1 << uint(axis)
			if i&bit == 0 {
				lines = append(lines, corners[i], corners[i|bit])
			}
		}
	}
	return lines
}
