package kdtree

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

// Upper bound for the variable length blobs in a kd-tree file; guards
// against allocating absurd sizes when reading corrupt input.
const maxBlobSize = 1 << 31

// The persisted form of a tree. Fields are written in declaration order,
// little-endian and without padding:
//
//	min leaf volume multiplier  float32
//	max triangles per leaf      uint32
//	flat buffer size            uint32
//	flat buffer                 [size]byte
//	nodes region offset         uint32
//	triangle id region offset   uint32
//	triangle list region offset uint32
//	bounding box                6 x float32 (min xyz, max xyz)
//	mesh normals sub-offset     uint32
//	mesh vertices sub-offset    uint32
//	mesh data size              uint32
//	mesh data                   [size]byte
type persistedTree struct {
	opts BuildOptions
	flat *FlatBuffer
	bbox BoundingBox
	mesh meshData
}

type stickyWriter struct {
	w   *bufio.Writer
	err error
}

func (sw *stickyWriter) uint32(v uint32) {
	if sw.err != nil {
		return
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, sw.err = sw.w.Write(buf[:])
}

func (sw *stickyWriter) float32(v float32) {
	sw.uint32(math.Float32bits(v))
}

func (sw *stickyWriter) bytes(data []byte) {
	if sw.err != nil {
		return
	}
	_, sw.err = sw.w.Write(data)
}

func encodeTree(w io.Writer, pt *persistedTree) error {
	if uint64(len(pt.flat.Data)) > maxBlobSize || uint64(len(pt.mesh.Data)) > maxBlobSize {
		return errors.New("kd-tree codec: tree is too large to persist")
	}

	sw := &stickyWriter{w: bufio.NewWriter(w)}
	sw.float32(pt.opts.MinLeafVolumeMultiplier)
	sw.uint32(uint32(pt.opts.MaxTrianglesPerLeaf))
	sw.uint32(uint32(len(pt.flat.Data)))
	sw.bytes(pt.flat.Data)
	sw.uint32(pt.flat.NodesOffset)
	sw.uint32(pt.flat.TriangleIDOffset)
	sw.uint32(pt.flat.TriangleListOffset)
	for _, v := range [2][3]float32{pt.bbox.Min, pt.bbox.Max} {
		for _, c := range v {
			sw.float32(c)
		}
	}
	sw.uint32(pt.mesh.NormalsOffset)
	sw.uint32(pt.mesh.VerticesOffset)
	sw.uint32(uint32(len(pt.mesh.Data)))
	sw.bytes(pt.mesh.Data)
	if sw.err != nil {
		return errors.Wrap(sw.err, "kd-tree codec: write failed")
	}
	return errors.Wrap(sw.w.Flush(), "kd-tree codec: write failed")
}

type stickyReader struct {
	r   io.Reader
	err error
}

func (sr *stickyReader) uint32() uint32 {
	if sr.err != nil {
		return 0
	}
	var buf [4]byte
	if _, sr.err = io.ReadFull(sr.r, buf[:]); sr.err != nil {
		return 0
	}
	return binary.LittleEndian.Uint32(buf[:])
}

func (sr *stickyReader) float32() float32 {
	return math.Float32frombits(sr.uint32())
}

func (sr *stickyReader) blob() []byte {
	size := sr.uint32()
	if sr.err != nil {
		return nil
	}
	if size > maxBlobSize {
		sr.err = errors.Errorf("blob size %d exceeds limit", size)
		return nil
	}
	data := make([]byte, size)
	_, sr.err = io.ReadFull(sr.r, data)
	return data
}

// Decode and validate a persisted tree. Any malformed input yields an error
// wrapping ErrInvalidFile.
func decodeTree(r io.Reader) (*persistedTree, error) {
	sr := &stickyReader{r: bufio.NewReader(r)}
	pt := &persistedTree{flat: &FlatBuffer{}}

	pt.opts.MinLeafVolumeMultiplier = sr.float32()
	pt.opts.MaxTrianglesPerLeaf = int(sr.uint32())
	pt.flat.Data = sr.blob()
	pt.flat.NodesOffset = sr.uint32()
	pt.flat.TriangleIDOffset = sr.uint32()
	pt.flat.TriangleListOffset = sr.uint32()
	for axis := 0; axis < 3; axis++ {
		pt.bbox.Min[axis] = sr.float32()
	}
	for axis := 0; axis < 3; axis++ {
		pt.bbox.Max[axis] = sr.float32()
	}
	pt.mesh.NormalsOffset = sr.uint32()
	pt.mesh.VerticesOffset = sr.uint32()
	pt.mesh.Data = sr.blob()
	if sr.err != nil {
		if sr.err == io.EOF || sr.err == io.ErrUnexpectedEOF {
			return nil, errors.Wrap(ErrInvalidFile, "truncated file")
		}
		return nil, errors.Wrapf(ErrInvalidFile, "%v", sr.err)
	}

	if err := pt.opts.Validate(); err != nil {
		return nil, errors.Wrapf(ErrInvalidFile, "%v", err)
	}
	for axis := 0; axis < 3; axis++ {
		if !(pt.bbox.Min[axis] <= pt.bbox.Max[axis]) {
			return nil, errors.Wrapf(ErrInvalidFile, "inverted bounding box %v", pt.bbox)
		}
	}
	if err := pt.flat.Validate(); err != nil {
		return nil, errors.Wrapf(ErrInvalidFile, "flat buffer: %v", err)
	}
	if err := pt.mesh.validate(); err != nil {
		return nil, errors.Wrapf(ErrInvalidFile, "%v", err)
	}
	if err := checkTriangleIndices(pt.flat, pt.mesh.vertexCount()); err != nil {
		return nil, errors.Wrapf(ErrInvalidFile, "%v", err)
	}
	return pt, nil
}

// Make sure every triangle id record references a vertex in the mesh data.
func checkTriangleIndices(fb *FlatBuffer, vertexCount int) error {
	view := flatView(fb.Data)
	for id := 0; id < fb.TriangleCount(); id++ {
		for _, vIndex := range view.triangle(fb.TriangleIDOffset, uint32(id)) {
			if int(vIndex) >= vertexCount {
				return errors.Errorf("triangle %d references vertex %d; mesh data holds %d vertices", id, vIndex, vertexCount)
			}
		}
	}
	return nil
}
