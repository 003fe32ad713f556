package kdtree

import (
	"math/rand"
	"testing"

	"github.com/kbiElude/Emerald-sub008/compute/cpu"
	"github.com/kbiElude/Emerald-sub008/mesh"
	"github.com/kbiElude/Emerald-sub008/types"
	"github.com/stretchr/testify/require"
)

// Two triangles covering the unit square, split along the diagonal.
func diagonalQuadMesh(t *testing.T) mesh.Mesh {
	m, err := mesh.NewIndexedMesh(
		"quad",
		[]types.Vec3{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}},
		nil,
		[][3]uint32{{0, 1, 2}, {0, 2, 3}},
	)
	require.NoError(t, err)
	return m
}

// Two triangles separated by a gap around x=0.5.
func separatedTrianglesMesh(t *testing.T) mesh.Mesh {
	m, err := mesh.NewIndexedMesh(
		"separated",
		[]types.Vec3{
			{0, 0, 0}, {0.4, 0, 0}, {0, 1, 0},
			{0.6, 0, 0}, {1, 0, 0}, {1, 1, 0},
		},
		nil,
		[][3]uint32{{0, 1, 2}, {3, 4, 5}},
	)
	require.NoError(t, err)
	return m
}

// A triangle soup with a fixed seed.
func randomMesh(t *testing.T, triCount int) mesh.Mesh {
	rng := rand.New(rand.NewSource(42))
	vertices := make([]types.Vec3, 0, 3*triCount)
	triangles := make([][3]uint32, 0, triCount)
	for i := 0; i < triCount; i++ {
		center := types.XYZ(rng.Float32()*10, rng.Float32()*10, rng.Float32()*10)
		base := uint32(len(vertices))
		for j := 0; j < 3; j++ {
			offset := types.XYZ(rng.Float32()-0.5, rng.Float32()-0.5, rng.Float32()-0.5)
			vertices = append(vertices, center.Add(offset))
		}
		triangles = append(triangles, [3]uint32{base, base + 1, base + 2})
	}

	m, err := mesh.NewIndexedMesh("random", vertices, nil, triangles)
	require.NoError(t, err)
	return m
}

func exactBuildOptions(maxTriangles int) BuildOptions {
	return BuildOptions{MaxTrianglesPerLeaf: maxTriangles, MinLeafVolumeMultiplier: 0}
}

func newCPUTree(t *testing.T, m mesh.Mesh, opts BuildOptions) *Tree {
	tree, err := NewFromMesh(cpu.NewContext(4), m, opts)
	require.NoError(t, err)
	t.Cleanup(tree.Release)
	return tree
}

func meshTriangles(m mesh.Mesh) ([]Triangle, BoundingBox) {
	bbox := emptyBoundingBox()
	triangles := make([]Triangle, len(m.Triangles()))
	for i, indices := range m.Triangles() {
		triangles[i] = NewTriangle(TriangleKey(indices), m.Vertices())
		bbox = bbox.Include(triangles[i].BBox.Min).Include(triangles[i].BBox.Max)
	}
	return triangles, bbox
}
