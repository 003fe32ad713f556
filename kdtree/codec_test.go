package kdtree

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/kbiElude/Emerald-sub008/compute/cpu"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	opts := BuildOptions{MaxTrianglesPerLeaf: 4, MinLeafVolumeMultiplier: 0.001}
	tree, err := NewFromMesh(nil, randomMesh(t, 200), opts)
	require.NoError(t, err)

	var first bytes.Buffer
	require.NoError(t, tree.Write(&first))

	loaded, err := Load(nil, bytes.NewReader(first.Bytes()))
	require.NoError(t, err)
	require.Nil(t, loaded.Mesh())
	require.Equal(t, opts, loaded.Options())
	require.Equal(t, tree.BoundingBox(), loaded.BoundingBox())
	require.Equal(t, tree.FlatBuffer(), loaded.FlatBuffer())
	require.Equal(t, tree.Vertices(), loaded.Vertices())

	var second bytes.Buffer
	require.NoError(t, loaded.Write(&second))
	require.Equal(t, first.Bytes(), second.Bytes())
}

func TestEncodedFieldOrder(t *testing.T) {
	m := separatedTrianglesMesh(t)
	tree, err := NewFromMesh(nil, m, BuildOptions{MaxTrianglesPerLeaf: 1, MinLeafVolumeMultiplier: 0.25})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, tree.Write(&buf))
	data := buf.Bytes()

	u32 := func(offset int) uint32 { return binary.LittleEndian.Uint32(data[offset:]) }
	f32 := func(offset int) float32 { return math.Float32frombits(u32(offset)) }

	require.Equal(t, float32(0.25), f32(0))
	require.Equal(t, uint32(1), u32(4))

	fb := tree.FlatBuffer()
	flatSize := int(u32(8))
	require.Equal(t, fb.Size(), flatSize)
	require.Equal(t, fb.Data, data[12:12+flatSize])

	offset := 12 + flatSize
	require.Equal(t, fb.NodesOffset, u32(offset))
	require.Equal(t, fb.TriangleIDOffset, u32(offset+4))
	require.Equal(t, fb.TriangleListOffset, u32(offset+8))
	offset += 12

	bbox := tree.BoundingBox()
	for axis := 0; axis < 3; axis++ {
		require.Equal(t, bbox.Min[axis], f32(offset+4*axis))
		require.Equal(t, bbox.Max[axis], f32(offset+12+4*axis))
	}
	offset += 24

	vertexCount := len(m.Vertices())
	require.Equal(t, uint32(vec4Size*vertexCount), u32(offset), "normals sub-offset")
	require.Equal(t, uint32(0), u32(offset+4), "vertices sub-offset")
	require.Equal(t, uint32(2*vec4Size*vertexCount), u32(offset+8), "mesh data size")
	offset += 12

	require.Equal(t, len(data), offset+2*vec4Size*vertexCount)
	require.Equal(t, float32(0.4), f32(offset+vec4Size))
	require.Equal(t, float32(1), f32(offset+12), "vertex w")
}

func TestLoadRejectsInvalidFiles(t *testing.T) {
	tree, err := NewFromMesh(nil, separatedTrianglesMesh(t), exactBuildOptions(1))
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, tree.Write(&buf))
	valid := buf.Bytes()
	flatSize := int(binary.LittleEndian.Uint32(valid[8:]))
	trailerOffset := 12 + flatSize

	specs := []struct {
		descr  string
		mutate func(data []byte) []byte
	}{
		{"empty file", func(data []byte) []byte { return nil }},
		{"truncated flat buffer", func(data []byte) []byte { return data[:20] }},
		{"truncated mesh data", func(data []byte) []byte { return data[:len(data)-4] }},
		{"invalid multiplier", func(data []byte) []byte {
			binary.LittleEndian.PutUint32(data, math.Float32bits(2))
			return data
		}},
		{"invalid max triangles", func(data []byte) []byte {
			binary.LittleEndian.PutUint32(data[4:], 0)
			return data
		}},
		{"oversized flat buffer", func(data []byte) []byte {
			binary.LittleEndian.PutUint32(data[8:], math.MaxUint32)
			return data
		}},
		{"invalid root type", func(data []byte) []byte {
			binary.LittleEndian.PutUint32(data[12:], NodeTypeCollapsed)
			return data
		}},
		{"invalid region offsets", func(data []byte) []byte {
			binary.LittleEndian.PutUint32(data[trailerOffset+4:], uint32(flatSize+12))
			return data
		}},
		{"inverted bounding box", func(data []byte) []byte {
			binary.LittleEndian.PutUint32(data[trailerOffset+12:], math.Float32bits(5))
			return data
		}},
		{"misaligned normals", func(data []byte) []byte {
			binary.LittleEndian.PutUint32(data[trailerOffset+36:], 4)
			return data
		}},
		{"child offset past the end of the buffer", func(data []byte) []byte {
			// Left child of the root; offset+record size wraps around.
			binary.LittleEndian.PutUint32(data[24:], 0xFFFFFFF8)
			return data
		}},
		{"normals region too short", func(data []byte) []byte {
			blobSize := binary.LittleEndian.Uint32(data[trailerOffset+44:])
			binary.LittleEndian.PutUint32(data[trailerOffset+36:], blobSize)
			return data
		}},
		{"missing vertices", func(data []byte) []byte {
			// Move the normals to the start so the blob holds no vertices.
			binary.LittleEndian.PutUint32(data[trailerOffset+36:], 0)
			return data
		}},
	}

	for _, spec := range specs {
		data := spec.mutate(append([]byte(nil), valid...))
		_, err := Load(nil, bytes.NewReader(data))
		require.ErrorIs(t, err, ErrInvalidFile, spec.descr)
	}
}

func TestSaveAndLoadFile(t *testing.T) {
	ctx := cpu.NewContext(0)
	tree, err := NewFromMesh(ctx, separatedTrianglesMesh(t), exactBuildOptions(1))
	require.NoError(t, err)
	defer tree.Release()

	path := filepath.Join(t.TempDir(), "scene.kdtree")
	require.NoError(t, tree.Save(path))

	loaded, err := NewFromFile(ctx, path)
	require.NoError(t, err)
	defer loaded.Release()
	require.Equal(t, tree.FlatBuffer(), loaded.FlatBuffer())

	_, err = NewFromFile(ctx, filepath.Join(t.TempDir(), "missing.kdtree"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
