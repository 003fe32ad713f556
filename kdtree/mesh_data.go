package kdtree

import (
	"encoding/binary"
	"math"

	"github.com/kbiElude/Emerald-sub008/mesh"
	"github.com/kbiElude/Emerald-sub008/types"
	"github.com/pkg/errors"
)

const vec4Size = 16

// meshData is the vertex/normal blob the traversal kernel reads. Both
// streams are stored as float4 arrays; sub-offsets are byte offsets into
// the blob.
type meshData struct {
	Data           []byte
	VerticesOffset uint32
	NormalsOffset  uint32
}

// Pack the unique vertex and normal streams of a mesh: vertices first (w=1),
// normals after (w=0). Meshes without normals get zero normals.
func newMeshData(m mesh.Mesh) meshData {
	vertices := m.Vertices()
	normals := m.Normals()

	md := meshData{
		Data:           make([]byte, 2*vec4Size*len(vertices)),
		VerticesOffset: 0,
		NormalsOffset:  uint32(vec4Size * len(vertices)),
	}
	for i, v := range vertices {
		putVec4(md.Data[md.VerticesOffset+uint32(i*vec4Size):], v.Vec4(1))
		if i < len(normals) {
			putVec4(md.Data[md.NormalsOffset+uint32(i*vec4Size):], normals[i].Vec4(0))
		}
	}
	return md
}

func (md meshData) validate() error {
	size := uint32(len(md.Data))
	switch {
	case size%vec4Size != 0:
		return errors.Errorf("mesh data size %d is not a multiple of %d", size, vec4Size)
	case md.VerticesOffset%vec4Size != 0 || md.NormalsOffset%vec4Size != 0:
		return errors.Errorf("mesh data sub-offsets (%d, %d) are not %d-byte aligned", md.VerticesOffset, md.NormalsOffset, vec4Size)
	case md.VerticesOffset > size || md.NormalsOffset > size:
		return errors.Errorf("mesh data sub-offsets (%d, %d) exceed data size %d", md.VerticesOffset, md.NormalsOffset, size)
	case md.NormalsOffset < md.VerticesOffset:
		return errors.Errorf("mesh normals (offset %d) must follow the vertices (offset %d)", md.NormalsOffset, md.VerticesOffset)
	case uint64(md.NormalsOffset)+uint64(md.NormalsOffset-md.VerticesOffset) > uint64(size):
		return errors.Errorf("mesh data holds %d vertices but only %d bytes of normals", md.vertexCount(), size-md.NormalsOffset)
	}
	return nil
}

// The part of the blob bound to the traversal kernel. Vertex 0 is at offset 0
// of the returned slice and normals start at the returned relative offset.
func (md meshData) kernelView() ([]byte, uint32) {
	return md.Data[md.VerticesOffset:], md.NormalsOffset - md.VerticesOffset
}

// The number of vertices stored in the blob.
func (md meshData) vertexCount() int {
	return int(md.NormalsOffset-md.VerticesOffset) / vec4Size
}

func putVec4(dst []byte, v types.Vec4) {
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint32(dst[4*i:], math.Float32bits(v[i]))
	}
}

func readVec4(src []byte, offset uint32) types.Vec4 {
	var v types.Vec4
	for i := uint32(0); i < 4; i++ {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[offset+4*i:]))
	}
	return v
}

// EncodeVec4s packs vectors into the float4 layout used by ray origin and
// direction buffers.
func EncodeVec4s(vecs []types.Vec4) []byte {
	out := make([]byte, vec4Size*len(vecs))
	for i, v := range vecs {
		putVec4(out[i*vec4Size:], v)
	}
	return out
}

// DecodeFloat32s unpacks a little-endian float32 array such as the default
// executor result buffer.
func DecodeFloat32s(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return out
}

// DecodeUint32s unpacks a little-endian uint32 array such as the triangle
// hit id buffer.
func DecodeUint32s(data []byte) []uint32 {
	out := make([]uint32, len(data)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(data[4*i:])
	}
	return out
}
