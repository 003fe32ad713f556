package kdtree

import (
	"encoding/binary"
	"testing"

	"github.com/kbiElude/Emerald-sub008/compute"
	"github.com/kbiElude/Emerald-sub008/mesh"
	"github.com/kbiElude/Emerald-sub008/types"
	"github.com/stretchr/testify/require"
)

var down = types.XYZW(0, 0, -1, 0)

type castResult struct {
	distances []float32
	hitIDs    []uint32
}

func defaultExecutor(t *testing.T, tree *Tree) ExecutorID {
	for _, e := range tree.executors.executors {
		if e.Name() == DefaultExecutorConfig().Name {
			return e.ID()
		}
	}
	id, err := tree.AddExecutor(DefaultExecutorConfig())
	require.NoError(t, err)
	return id
}

// Cast len(dirs) rays from every inline origin with the default executor.
func castRays(t *testing.T, tree *Tree, origins, dirs []types.Vec4, findClosest bool) castResult {
	id := defaultExecutor(t, tree)

	rayTotal := len(origins) * len(dirs)
	dirBuf, err := tree.ctx.NewBufferFromData("dirs", EncodeVec4s(dirs), compute.MemReadOnly)
	require.NoError(t, err)
	defer dirBuf.Release()
	resBuf, err := tree.ctx.NewBuffer("results", 4*rayTotal, compute.MemWriteOnly)
	require.NoError(t, err)
	defer resBuf.Release()
	hitBuf, err := tree.ctx.NewBuffer("hits", 12*rayTotal, compute.MemWriteOnly)
	require.NoError(t, err)
	defer hitBuf.Release()

	require.NoError(t, tree.IntersectRays(IntersectRequest{
		Executor:             id,
		RayCount:             len(dirs),
		Origins:              origins,
		Directions:           dirBuf,
		Results:              resBuf,
		TriangleHitIDs:       hitBuf,
		StoreTriangleHitData: true,
		FindClosest:          findClosest,
	}))

	res := make([]byte, 4*rayTotal)
	require.NoError(t, resBuf.Read(0, res))
	hits := make([]byte, 12*rayTotal)
	require.NoError(t, hitBuf.Read(0, hits))
	return castResult{distances: DecodeFloat32s(res), hitIDs: DecodeUint32s(hits)}
}

func TestIntersectSingleTriangle(t *testing.T) {
	m, err := mesh.NewIndexedMesh("tri", []types.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}, nil, [][3]uint32{{0, 1, 2}})
	require.NoError(t, err)
	tree := newCPUTree(t, m, DefaultBuildOptions())

	origins := []types.Vec4{types.XYZW(0.25, 0.25, 1, 1), types.XYZW(0.9, 0.9, 1, 1)}

	for _, findClosest := range []bool{true, false} {
		res := castRays(t, tree, origins, []types.Vec4{down}, findClosest)

		require.InDelta(t, 1.0, res.distances[0], 1e-5, "closest=%t", findClosest)
		require.Equal(t, []uint32{0, 1, 2}, res.hitIDs[0:3])

		// Outside the hypotenuse.
		require.Equal(t, float32(-1), res.distances[1])
		require.Equal(t, []uint32{noTriangle, noTriangle, noTriangle}, res.hitIDs[3:6])
	}
}

func TestIntersectDiagonalQuad(t *testing.T) {
	tree := newCPUTree(t, diagonalQuadMesh(t), exactBuildOptions(1))

	// Neither triangle can be separated from the other by a mid-point
	// split, so the root stays a leaf holding both.
	st := tree.Stats()
	require.Equal(t, 0, st.InternalNodes)
	require.Equal(t, 1, st.Leafs)
	require.Equal(t, 2, st.TriangleRefs)

	res := castRays(t, tree, []types.Vec4{types.XYZW(0.5, 0.5, 1, 1)}, []types.Vec4{down}, true)
	require.InDelta(t, 1.0, res.distances[0], 1e-5)
	hit := [3]uint32{res.hitIDs[0], res.hitIDs[1], res.hitIDs[2]}
	require.Contains(t, [][3]uint32{{0, 1, 2}, {0, 2, 3}}, hit)
}

func TestIntersectSeparatedTriangles(t *testing.T) {
	tree := newCPUTree(t, separatedTrianglesMesh(t), exactBuildOptions(1))

	st := tree.Stats()
	require.Equal(t, 1, st.InternalNodes)
	require.Equal(t, 2, st.Leafs)

	origins := []types.Vec4{
		types.XYZW(0.1, 0.2, 1, 1),
		types.XYZW(0.9, 0.2, 1, 1),
		types.XYZW(0.5, 0.5, 1, 1),
	}
	for _, findClosest := range []bool{true, false} {
		res := castRays(t, tree, origins, []types.Vec4{down}, findClosest)

		require.Equal(t, []uint32{0, 1, 2}, res.hitIDs[0:3])
		require.Equal(t, []uint32{3, 4, 5}, res.hitIDs[3:6])
		require.Equal(t, []uint32{noTriangle, noTriangle, noTriangle}, res.hitIDs[6:9])
		require.Equal(t, float32(-1), res.distances[2])
	}

	// Oblique ray crossing the split plane from the left half into the
	// right triangle.
	dir := types.XYZ(0.8, 0, -1).Vec4(0)
	res := castRays(t, tree, []types.Vec4{types.XYZW(0.1, 0.1, 1, 1)}, []types.Vec4{dir}, true)
	require.Equal(t, []uint32{3, 4, 5}, res.hitIDs[0:3])
	require.InDelta(t, 1.0, res.distances[0], 1e-5)
}

func TestIntersectClosestVersusAnyHit(t *testing.T) {
	// Two stacked triangles in one leaf; the farther one is listed first.
	m, err := mesh.NewIndexedMesh(
		"stacked",
		[]types.Vec3{
			{0, 0, 0}, {1, 0, 0}, {0, 1, 0},
			{0, 0, 0.5}, {1, 0, 0.5}, {0, 1, 0.5},
		},
		nil,
		[][3]uint32{{0, 1, 2}, {3, 4, 5}},
	)
	require.NoError(t, err)
	tree := newCPUTree(t, m, DefaultBuildOptions())
	origins := []types.Vec4{types.XYZW(0.25, 0.25, 1, 1)}

	closest := castRays(t, tree, origins, []types.Vec4{down}, true)
	require.InDelta(t, 0.5, closest.distances[0], 1e-5)
	require.Equal(t, []uint32{3, 4, 5}, closest.hitIDs)

	// Any-hit accepts the first intersection found in the leaf.
	anyHit := castRays(t, tree, origins, []types.Vec4{down}, false)
	require.InDelta(t, 1.0, anyHit.distances[0], 1e-5)
	require.Equal(t, []uint32{0, 1, 2}, anyHit.hitIDs)
}

func TestIntersectSkipsTrianglesSharingTheOrigin(t *testing.T) {
	m, err := mesh.NewIndexedMesh(
		"self",
		[]types.Vec3{
			{0, 0, 1}, {1, 0, 1}, {0, 1, 1},
			{-1, -1, 0}, {3, -1, 0}, {-1, 3, 0},
		},
		nil,
		[][3]uint32{{0, 1, 2}, {3, 4, 5}},
	)
	require.NoError(t, err)
	tree := newCPUTree(t, m, DefaultBuildOptions())

	res := castRays(t, tree, []types.Vec4{types.XYZW(0, 0, 1, 1)}, []types.Vec4{types.XYZ(0.1, 0.1, -1).Vec4(0)}, true)
	require.Equal(t, []uint32{3, 4, 5}, res.hitIDs)
	require.InDelta(t, 1.0, res.distances[0], 1e-5)
}

func TestIntersectRandomSceneMatchesBruteForce(t *testing.T) {
	m := randomMesh(t, 300)
	tree := newCPUTree(t, m, BuildOptions{MaxTrianglesPerLeaf: 2, MinLeafVolumeMultiplier: 0})

	var dirs []types.Vec4
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			dirs = append(dirs, types.XYZ(float32(x)-3.5, float32(y)-3.5, 12).Vec4(0))
		}
	}
	origins := []types.Vec4{types.XYZW(5, 5, -6, 1), types.XYZW(2, 7, -3, 1)}
	res := castRays(t, tree, origins, dirs, true)

	vertices := m.Vertices()
	for o, origin := range origins {
		for r, dir := range dirs {
			best := float32(-1)
			for _, tri := range m.Triangles() {
				dist, _, _, ok := intersectTriangle(origin.Vec3(), dir.Vec3(), vertices[tri[0]], vertices[tri[1]], vertices[tri[2]])
				if ok && (best < 0 || dist < best) {
					best = dist
				}
			}
			require.InDelta(t, best, res.distances[o*len(dirs)+r], 1e-4, "origin %d ray %d", o, r)
		}
	}
}

func TestIntersectBufferOrigins(t *testing.T) {
	tree := newCPUTree(t, separatedTrianglesMesh(t), exactBuildOptions(1))
	id, err := tree.AddExecutor(ExecutorConfig{Name: "buffered", Variants: VariantBufferOrigin})
	require.NoError(t, err)

	// The first entry is padding skipped through the stride offset.
	origins := []types.Vec4{
		types.XYZW(99, 99, 99, 1),
		types.XYZW(0.9, 0.2, 1, 1),
		types.XYZW(0.1, 0.2, 2, 1),
	}
	dirs := []types.Vec4{down, types.XYZW(0, 0, 1, 0)}

	ctx := tree.ctx
	originBuf, err := ctx.NewBufferFromData("origins", EncodeVec4s(origins), compute.MemReadOnly)
	require.NoError(t, err)
	dirBuf, err := ctx.NewBufferFromData("dirs", EncodeVec4s(dirs), compute.MemReadOnly)
	require.NoError(t, err)
	resBuf, err := ctx.NewBuffer("results", 4*4, compute.MemWriteOnly)
	require.NoError(t, err)

	var progress []int
	require.NoError(t, tree.IntersectRays(IntersectRequest{
		Executor:           id,
		RayCount:           2,
		OriginBuffer:       originBuf,
		OriginCount:        2,
		OriginStrideOffset: 1,
		Directions:         dirBuf,
		Results:            resBuf,
		FindClosest:        true,
		Progress: func(done, total int) bool {
			require.Equal(t, 2, total)
			progress = append(progress, done)
			return true
		},
	}))
	require.Equal(t, []int{1, 2}, progress)

	out := make([]byte, 16)
	require.NoError(t, resBuf.Read(0, out))
	distances := DecodeFloat32s(out)
	require.InDelta(t, 1.0, distances[0], 1e-5)
	require.Equal(t, float32(-1), distances[1])
	require.InDelta(t, 2.0, distances[2], 1e-5)
	require.Equal(t, float32(-1), distances[3])

	// The executor was not compiled with an inline variant.
	err = tree.IntersectRays(IntersectRequest{
		Executor:   id,
		RayCount:   2,
		Origins:    origins,
		Directions: dirBuf,
		Results:    resBuf,
	})
	require.ErrorIs(t, err, ErrVariantUnsupported)
}

func TestIntersectProgressAbort(t *testing.T) {
	tree := newCPUTree(t, separatedTrianglesMesh(t), exactBuildOptions(1))
	id := defaultExecutor(t, tree)

	dirBuf, err := tree.ctx.NewBufferFromData("dirs", EncodeVec4s([]types.Vec4{down}), compute.MemReadOnly)
	require.NoError(t, err)
	resBuf, err := tree.ctx.NewBuffer("results", 4*3, compute.MemWriteOnly)
	require.NoError(t, err)
	require.NoError(t, resBuf.Write(0, make([]byte, 12)))

	calls := 0
	err = tree.IntersectRays(IntersectRequest{
		Executor:   id,
		RayCount:   1,
		Origins:    []types.Vec4{types.XYZW(0.1, 0.2, 1, 1), types.XYZW(0.9, 0.2, 1, 1), types.XYZW(0.5, 0.5, 1, 1)},
		Directions: dirBuf,
		Results:    resBuf,
		Progress: func(done, total int) bool {
			calls++
			return false
		},
	})
	require.ErrorIs(t, err, ErrAborted)
	require.Equal(t, 1, calls)

	// Only the first origin was dispatched.
	out := make([]byte, 12)
	require.NoError(t, resBuf.Read(0, out))
	require.Equal(t, []float32{1, 0, 0}, DecodeFloat32s(out))
}

func TestIntersectHostHooks(t *testing.T) {
	tree := newCPUTree(t, separatedTrianglesMesh(t), exactBuildOptions(1))

	cfg := ExecutorConfig{
		Name:             "ids",
		Variants:         VariantInlineOrigin,
		RayDirectionCode: "ray_direction = (float3)(0.0f, 0.0f, -1.0f);",
		ResetCode:        "((__global uint*)result)[ray_index] = 0xFFFFFFFFu;",
		UpdateCode:       "((__global uint*)result)[ray_index] = hit_triangle_id;",
		HostHooks: HostHooks{
			RayDirection: func(ray RayContext) types.Vec3 {
				return types.XYZ(0, 0, -1)
			},
			Reset: func(result []byte, ray RayContext) {
				binary.LittleEndian.PutUint32(result[4*ray.RayIndex:], noTriangle)
			},
			Update: func(result []byte, ray RayContext, hit Hit) {
				binary.LittleEndian.PutUint32(result[4*ray.RayIndex:], hit.TriangleID)
			},
		},
	}
	id, err := tree.AddExecutor(cfg)
	require.NoError(t, err)

	_, err = tree.AddExecutor(cfg)
	require.Error(t, err, "duplicate executor names must be rejected")

	// The direction buffer content is ignored by the hook.
	dirBuf, err := tree.ctx.NewBuffer("dirs", vec4Size, compute.MemReadOnly)
	require.NoError(t, err)
	resBuf, err := tree.ctx.NewBuffer("results", 4*3, compute.MemWriteOnly)
	require.NoError(t, err)

	require.NoError(t, tree.IntersectRays(IntersectRequest{
		Executor:    id,
		RayCount:    1,
		Origins:     []types.Vec4{types.XYZW(0.1, 0.2, 1, 1), types.XYZW(0.9, 0.2, 1, 1), types.XYZW(0.5, 0.5, 1, 1)},
		Directions:  dirBuf,
		Results:     resBuf,
		FindClosest: true,
	}))

	out := make([]byte, 12)
	require.NoError(t, resBuf.Read(0, out))
	require.Equal(t, []uint32{0, 1, noTriangle}, DecodeUint32s(out))
}

func TestIntersectErrors(t *testing.T) {
	detached, err := NewFromMesh(nil, separatedTrianglesMesh(t), exactBuildOptions(1))
	require.NoError(t, err)
	require.ErrorIs(t, detached.IntersectRays(IntersectRequest{}), ErrNoComputeContext)
	_, err = detached.AddExecutor(DefaultExecutorConfig())
	require.ErrorIs(t, err, ErrNoComputeContext)

	tree := newCPUTree(t, separatedTrianglesMesh(t), exactBuildOptions(1))
	buf, err := tree.ctx.NewBuffer("scratch", 64, compute.MemReadWrite)
	require.NoError(t, err)

	err = tree.IntersectRays(IntersectRequest{
		Executor:   7,
		RayCount:   1,
		Origins:    []types.Vec4{types.XYZW(0, 0, 1, 1)},
		Directions: buf,
		Results:    buf,
	})
	require.ErrorIs(t, err, ErrUnknownExecutor)

	err = tree.IntersectRays(IntersectRequest{
		RayCount:             1,
		Origins:              []types.Vec4{types.XYZW(0, 0, 1, 1)},
		Directions:           buf,
		Results:              buf,
		StoreTriangleHitData: true,
	})
	require.Error(t, err, "hit data requested without a buffer")

	err = tree.IntersectRays(IntersectRequest{RayCount: 0, Origins: []types.Vec4{{}}, Directions: buf, Results: buf})
	require.Error(t, err, "invalid ray count")
}

func TestIntersectRejectsLeafListsOutsideListRegion(t *testing.T) {
	tree := newCPUTree(t, separatedTrianglesMesh(t), exactBuildOptions(1))
	id := defaultExecutor(t, tree)

	// Point both leaf records (after the 20 byte root) at the node region.
	zero := make([]byte, 4)
	require.NoError(t, tree.flatBuf.Write(InternalRecordSize+4, zero))
	require.NoError(t, tree.flatBuf.Write(InternalRecordSize+LeafRecordSize+4, zero))

	dirBuf, err := tree.ctx.NewBufferFromData("dirs", EncodeVec4s([]types.Vec4{down}), compute.MemReadOnly)
	require.NoError(t, err)
	resBuf, err := tree.ctx.NewBuffer("results", 4, compute.MemWriteOnly)
	require.NoError(t, err)

	err = tree.IntersectRays(IntersectRequest{
		Executor:   id,
		RayCount:   1,
		Origins:    []types.Vec4{types.XYZW(0.1, 0.2, 1, 1)},
		Directions: dirBuf,
		Results:    resBuf,
	})
	require.ErrorIs(t, err, compute.ErrOutOfBounds)
}

func TestNewFromMeshErrors(t *testing.T) {
	empty, err := mesh.NewIndexedMesh("empty", nil, nil, nil)
	require.NoError(t, err)
	_, err = NewFromMesh(nil, empty, DefaultBuildOptions())
	require.ErrorIs(t, err, ErrEmptyMesh)

	_, err = NewFromMesh(nil, separatedTrianglesMesh(t), BuildOptions{MaxTrianglesPerLeaf: 0})
	require.Error(t, err)
}
