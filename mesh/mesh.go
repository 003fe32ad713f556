// Package mesh provides the triangle mesh data source consumed by the kd-tree
// builder: a table of unique vertices, one normal per unique vertex and a
// list of vertex-index triples.
package mesh

import (
	"github.com/kbiElude/Emerald-sub008/types"
	"github.com/pkg/errors"
)

// The Mesh interface is implemented by all triangle mesh sources.
type Mesh interface {
	// Unique vertex positions.
	Vertices() []types.Vec3

	// Per-vertex normals; either empty or the same length as Vertices.
	Normals() []types.Vec3

	// Triangles as indices into the unique vertex table.
	Triangles() [][3]uint32
}

// IndexedMesh is an in-memory Mesh.
type IndexedMesh struct {
	Name string

	vertices  []types.Vec3
	normals   []types.Vec3
	triangles [][3]uint32
}

// Create an indexed mesh. If normals is empty, smooth normals are generated by
// averaging the face normals of the triangles sharing each vertex.
func NewIndexedMesh(name string, vertices, normals []types.Vec3, triangles [][3]uint32) (*IndexedMesh, error) {
	if len(normals) != 0 && len(normals) != len(vertices) {
		return nil, errors.Errorf("mesh %q: got %d normals for %d vertices", name, len(normals), len(vertices))
	}
	for triIndex, tri := range triangles {
		for _, vIndex := range tri {
			if int(vIndex) >= len(vertices) {
				return nil, errors.Errorf("mesh %q: triangle %d references vertex %d; mesh has %d vertices", name, triIndex, vIndex, len(vertices))
			}
		}
	}

	m := &IndexedMesh{
		Name:      name,
		vertices:  vertices,
		normals:   normals,
		triangles: triangles,
	}
	if len(normals) == 0 {
		m.normals = generateNormals(vertices, triangles)
	}
	return m, nil
}

func (m *IndexedMesh) Vertices() []types.Vec3 {
	return m.vertices
}

func (m *IndexedMesh) Normals() []types.Vec3 {
	return m.normals
}

func (m *IndexedMesh) Triangles() [][3]uint32 {
	return m.triangles
}

func generateNormals(vertices []types.Vec3, triangles [][3]uint32) []types.Vec3 {
	normals := make([]types.Vec3, len(vertices))
	for _, tri := range triangles {
		v0, v1, v2 := vertices[tri[0]], vertices[tri[1]], vertices[tri[2]]
		// Unnormalized so larger faces carry more weight.
		faceNormal := v1.Sub(v0).Cross(v2.Sub(v0))
		for _, vIndex := range tri {
			normals[vIndex] = normals[vIndex].Add(faceNormal)
		}
	}
	for i := range normals {
		normals[i] = normals[i].Normalize()
	}
	return normals
}
