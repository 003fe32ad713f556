package kdtree

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/chewxy/math32"
	"github.com/kbiElude/Emerald-sub008/compute"
	"github.com/kbiElude/Emerald-sub008/types"
	"github.com/pkg/errors"
)

// Kernel argument slots shared by the OpenCL and host traversal kernels.
const (
	argBBoxMin = iota
	argBBoxMax
	argRayOrigin
	argRayDirections
	argFlatBuffer
	argResult
	argRayCount
	argTriangleListOffset
	argTriangleIDOffset
	argMeshData
	argRayOriginIndex
	argTriangleHitIDs
	argStoreTriangleHitData
	argFindClosest
	argRayDirectionOffset
	argMeshNormalsOffset
	argRayOriginStrideOffset
)

// Traversal stack depth. Matches KD_STACK_SIZE in the kernel prelude.
const traversalStackSize = 64

// Marks a miss in the triangle hit id buffer.
const noTriangle = math.MaxUint32

const triangleEpsilon = 1e-6

type stackEntry struct {
	node       uint32
	tMin, tMax float32
}

// Arguments of one host traversal dispatch, decoded once per work item.
type traversalArgs struct {
	bbox            BoundingBox
	origin          types.Vec3
	directions      []byte
	kd              flatView
	result          []byte
	rayCount        uint32
	triangleLists   uint32
	triangleIDs     uint32
	mesh            []byte
	originIndex     uint32
	hitIDs          []byte
	storeHitIDs     bool
	findClosest     bool
	directionOffset uint32
	normalsOffset   uint32
}

func decodeTraversalArgs(v Variant, args compute.Args) (*traversalArgs, error) {
	var (
		ta  traversalArgs
		err error
		u32 = func(slot int) uint32 {
			if err != nil {
				return 0
			}
			var val uint32
			val, err = args.Uint32(slot)
			return val
		}
		vec4 = func(slot int) types.Vec4 {
			if err != nil {
				return types.Vec4{}
			}
			var val types.Vec4
			val, err = args.Vec4(slot)
			return val
		}
		bytes = func(slot int) []byte {
			if err != nil {
				return nil
			}
			var val []byte
			val, err = args.Bytes(slot)
			return val
		}
	)

	ta.bbox.Min = vec4(argBBoxMin).Vec3()
	ta.bbox.Max = vec4(argBBoxMax).Vec3()
	ta.directions = bytes(argRayDirections)
	ta.kd = flatView(bytes(argFlatBuffer))
	ta.result = bytes(argResult)
	ta.rayCount = u32(argRayCount)
	ta.triangleLists = u32(argTriangleListOffset)
	ta.triangleIDs = u32(argTriangleIDOffset)
	ta.mesh = bytes(argMeshData)
	ta.originIndex = u32(argRayOriginIndex)
	ta.storeHitIDs = u32(argStoreTriangleHitData) != 0
	ta.findClosest = u32(argFindClosest) != 0
	ta.directionOffset = u32(argRayDirectionOffset)
	ta.normalsOffset = u32(argMeshNormalsOffset)
	if ta.storeHitIDs {
		ta.hitIDs = bytes(argTriangleHitIDs)
	}

	switch v {
	case VariantInlineOrigin:
		ta.origin = vec4(argRayOrigin).Vec3()
	case VariantBufferOrigin:
		origins := bytes(argRayOrigin)
		stride := u32(argRayOriginStrideOffset)
		if err == nil {
			ta.origin = readVec4(origins, (stride+ta.originIndex)*vec4Size).Vec3()
		}
	default:
		return nil, errors.Errorf("kd-tree: unknown traversal variant %d", v)
	}

	if err != nil {
		return nil, err
	}
	return &ta, nil
}

// Build the host implementation of a traversal kernel variant. It mirrors the
// generated OpenCL kernel; hooks replace the executor's OpenCL snippets.
func hostTraversalKernel(v Variant, hooks HostHooks) compute.HostKernelFunc {
	return func(args compute.Args, globalID int) (err error) {
		// Corrupt offsets surface as slice bounds panics.
		defer func() {
			if r := recover(); r != nil {
				err = errors.Wrapf(compute.ErrOutOfBounds, "%v", r)
			}
		}()

		ta, err := decodeTraversalArgs(v, args)
		if err != nil {
			return err
		}

		lane := uint32(globalID)
		if lane >= ta.rayCount {
			return nil
		}
		rayIndex := ta.originIndex*ta.rayCount + lane
		ray := RayContext{
			Lane:            int(lane),
			OriginIndex:     int(ta.originIndex),
			RayIndex:        int(rayIndex),
			Origin:          ta.origin,
			Directions:      ta.directions,
			DirectionOffset: ta.directionOffset,
		}

		var dir types.Vec3
		if hooks.RayDirection != nil {
			dir = hooks.RayDirection(ray)
		} else {
			dir = readVec4(ta.directions, (ta.directionOffset+lane)*vec4Size).Vec3()
		}

		hit, found := ta.traverse(dir)
		if found {
			hit.Normal = ta.interpolateNormal(hit)
			if hooks.Update != nil {
				hooks.Update(ta.result, ray, hit)
			} else {
				binary.LittleEndian.PutUint32(ta.result[4*rayIndex:], math.Float32bits(hit.Distance))
			}
			if ta.storeHitIDs {
				for i, vIndex := range hit.Vertices {
					binary.LittleEndian.PutUint32(ta.hitIDs[4*(3*rayIndex+uint32(i)):], vIndex)
				}
			}
			return nil
		}

		if hooks.Reset != nil {
			hooks.Reset(ta.result, ray)
		} else {
			binary.LittleEndian.PutUint32(ta.result[4*rayIndex:], math.Float32bits(-1))
		}
		if ta.storeHitIDs {
			for i := uint32(0); i < 3; i++ {
				binary.LittleEndian.PutUint32(ta.hitIDs[4*(3*rayIndex+i):], noTriangle)
			}
		}
		return nil
	}
}

// Walk the tree with a short stack of pending far children.
func (ta *traversalArgs) traverse(dir types.Vec3) (Hit, bool) {
	var best Hit
	found := false

	tMin, tMax, ok := ta.bbox.Padded().IntersectRay(ta.origin, dir)
	if !ok {
		return best, false
	}
	sceneTMax := tMax
	best.Distance = math32.MaxFloat32

	var stack [traversalStackSize]stackEntry
	stack[0] = stackEntry{node: 0, tMin: tMin, tMax: tMax}
	stackSize := 1

	for stackSize > 0 {
		stackSize--
		entry := stack[stackSize]
		node, nMin, nMax := entry.node, entry.tMin, entry.tMax
		if found && nMin > best.Distance {
			continue
		}

		for ta.kd.nodeType(node) == NodeTypeInternal {
			axis, split, left, right := ta.kd.internal(node)
			o, d := ta.origin[axis], dir[axis]

			near, far := right, left
			if o < split || (o == split && d <= 0) {
				near, far = left, right
			}
			if d == 0 {
				node = near
				continue
			}

			tSplit := (split - o) / d
			switch {
			case tSplit > nMax || tSplit <= 0:
				node = near
			case tSplit < nMin:
				node = far
			default:
				if stackSize < traversalStackSize {
					stack[stackSize] = stackEntry{node: far, tMin: tSplit, tMax: nMax}
					stackSize++
				}
				node = near
				nMax = tSplit
			}
		}

		if nodeType := ta.kd.nodeType(node); nodeType != NodeTypeLeaf {
			panic(fmt.Sprintf("node at offset %d has unexpected type %d", node, nodeType))
		}

		listOffset, count := ta.kd.leaf(node)
		if listOffset < ta.triangleLists || uint64(listOffset)+4*uint64(count) > uint64(ta.triangleIDs) {
			panic(fmt.Sprintf("leaf at offset %d lists triangles outside the list region", node))
		}
		for i := uint32(0); i < count; i++ {
			triID := ta.kd.uint32(listOffset + 4*i)
			key := ta.kd.triangle(ta.triangleIDs, triID)
			v0 := readVec4(ta.mesh, key[0]*vec4Size).Vec3()
			v1 := readVec4(ta.mesh, key[1]*vec4Size).Vec3()
			v2 := readVec4(ta.mesh, key[2]*vec4Size).Vec3()

			// Rays cast from mesh vertices must not hit the triangles
			// sharing that vertex.
			if v0 == ta.origin || v1 == ta.origin || v2 == ta.origin {
				continue
			}

			t, u, v, ok := intersectTriangle(ta.origin, dir, v0, v1, v2)
			if !ok {
				continue
			}
			if ta.findClosest {
				if t <= best.Distance && t < sceneTMax {
					found = true
					best = Hit{Distance: t, U: u, V: v, TriangleID: triID, Vertices: key}
				}
			} else if t < sceneTMax {
				return Hit{Distance: t, U: u, V: v, TriangleID: triID, Vertices: key}, true
			}
		}
	}
	return best, found
}

func (ta *traversalArgs) interpolateNormal(hit Hit) types.Vec3 {
	n0 := readVec4(ta.mesh, ta.normalsOffset+hit.Vertices[0]*vec4Size).Vec3()
	n1 := readVec4(ta.mesh, ta.normalsOffset+hit.Vertices[1]*vec4Size).Vec3()
	n2 := readVec4(ta.mesh, ta.normalsOffset+hit.Vertices[2]*vec4Size).Vec3()
	return n0.Mul(1 - hit.U - hit.V).Add(n1.Mul(hit.U)).Add(n2.Mul(hit.V)).Normalize()
}

// Moller-Trumbore ray/triangle intersection. Returns the parametric hit
// distance and the barycentric coordinates of the hit point.
func intersectTriangle(origin, dir, v0, v1, v2 types.Vec3) (t, u, v float32, hit bool) {
	e1 := v1.Sub(v0)
	e2 := v2.Sub(v0)
	p := dir.Cross(e2)
	det := e1.Dot(p)
	if math32.Abs(det) < triangleEpsilon {
		return 0, 0, 0, false
	}
	invDet := 1 / det

	s := origin.Sub(v0)
	u = s.Dot(p) * invDet
	if u < 0 || u > 1 {
		return 0, 0, 0, false
	}
	q := s.Cross(e1)
	v = dir.Dot(q) * invDet
	if v < 0 || u+v > 1 {
		return 0, 0, 0, false
	}
	t = e2.Dot(q) * invDet
	return t, u, v, t > triangleEpsilon
}
