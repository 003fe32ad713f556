package kdtree

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/kbiElude/Emerald-sub008/log"
	"github.com/pkg/errors"
)

// Node record types stored in the first word of every node record.
const (
	NodeTypeInternal uint32 = 1

	// Leaf records reference a list of triangle ids.
	NodeTypeLeaf uint32 = 2

	// Reserved for pass-through nodes; never written since the flattener
	// collapses them.
	NodeTypeCollapsed uint32 = 3
)

// Record sizes in bytes.
const (
	InternalRecordSize   = 20
	LeafRecordSize       = 12
	TriangleIDRecordSize = 12
)

// FlatBuffer is the offset-addressed representation of a kd-tree. Data holds
// three regions back to back: node records (root at offset 0), the per-leaf
// triangle id lists and one vertex-index record per canonical triangle id.
// All offsets are absolute byte offsets into Data.
//
// Internal record: type, axis (1=X, 2=Y, 3=Z), split value, left offset,
// right offset. Leaf record: type, triangle list offset, triangle count.
type FlatBuffer struct {
	Data []byte

	NodesOffset        uint32
	TriangleListOffset uint32
	TriangleIDOffset   uint32
}

// Convert the pointer tree into a FlatBuffer.
//
// The first pass walks the tree breadth-first, collapsing pass-through nodes
// into their single live descendant, and sorts the reachable nodes into an
// internal and a leaf list. The second pass emits internal records followed
// by leaf records and then backfills the child offsets of the internal
// records. Emitting internals first keeps the root at offset 0.
func flatten(t *tree) (*FlatBuffer, error) {
	if len(t.nodes) == 0 {
		return nil, errors.New("kd-tree flattener: empty tree")
	}
	logger := log.New("kd-tree flattener")
	start := time.Now()

	// Pass A: classify reachable nodes and collect leaf triangle ids.
	var internals, leafs []nodeIndex
	queue := []nodeIndex{t.resolve(0)}
	for len(queue) > 0 {
		nIndex := queue[0]
		queue = queue[1:]

		node := &t.nodes[nIndex]
		if node.isLeaf() {
			leafs = append(leafs, nIndex)
			continue
		}
		internals = append(internals, nIndex)
		queue = append(queue, t.resolve(node.left), t.resolve(node.right))
	}

	indexer := NewTriangleIndexer()
	leafTriangleIDs := make([][]uint32, len(leafs))
	totalRefs := 0
	for leafIdx, nIndex := range leafs {
		triangles := t.nodes[nIndex].triangles
		ids := make([]uint32, len(triangles))
		for i, triIndex := range triangles {
			ids[i] = indexer.ID(t.triangles[triIndex].Indices)
		}
		leafTriangleIDs[leafIdx] = ids
		totalRefs += len(ids)
	}

	nodesSize := InternalRecordSize*len(internals) + LeafRecordSize*len(leafs)
	triListSize := 4 * totalRefs
	triIDSize := TriangleIDRecordSize * indexer.Len()
	totalSize := nodesSize + triListSize + triIDSize
	if uint64(totalSize) > math.MaxUint32 {
		return nil, errors.Errorf("kd-tree flattener: flat buffer size %d exceeds the 32-bit offset range", totalSize)
	}

	fb := &FlatBuffer{
		Data:               make([]byte, totalSize),
		NodesOffset:        0,
		TriangleListOffset: uint32(nodesSize),
		TriangleIDOffset:   uint32(nodesSize + triListSize),
	}

	// Pass B: emit records, remembering where each node landed.
	nodeOffsets := make(map[nodeIndex]uint32, len(internals)+len(leafs))
	offset := uint32(0)
	for _, nIndex := range internals {
		node := &t.nodes[nIndex]
		nodeOffsets[nIndex] = offset
		fb.putUint32(offset, NodeTypeInternal)
		fb.putUint32(offset+4, uint32(node.axis)+1)
		fb.putUint32(offset+8, math.Float32bits(node.split))
		offset += InternalRecordSize
	}

	listOffset := fb.TriangleListOffset
	for leafIdx, nIndex := range leafs {
		ids := leafTriangleIDs[leafIdx]
		nodeOffsets[nIndex] = offset
		fb.putUint32(offset, NodeTypeLeaf)
		fb.putUint32(offset+4, listOffset)
		fb.putUint32(offset+8, uint32(len(ids)))
		offset += LeafRecordSize

		for _, id := range ids {
			fb.putUint32(listOffset, id)
			listOffset += 4
		}
	}

	for id, key := range indexer.Keys() {
		recOffset := fb.TriangleIDOffset + uint32(id*TriangleIDRecordSize)
		fb.putUint32(recOffset, key[0])
		fb.putUint32(recOffset+4, key[1])
		fb.putUint32(recOffset+8, key[2])
	}

	// Backfill child offsets.
	for _, nIndex := range internals {
		node := &t.nodes[nIndex]
		recOffset := nodeOffsets[nIndex]
		fb.putUint32(recOffset+12, nodeOffsets[t.resolve(node.left)])
		fb.putUint32(recOffset+16, nodeOffsets[t.resolve(node.right)])
	}

	logger.Debugf(
		"flattened %d internal nodes, %d leafs, %d triangle refs and %d unique triangles into %d bytes in %d ms",
		len(internals), len(leafs), totalRefs, indexer.Len(), totalSize, time.Since(start).Nanoseconds()/1e6,
	)
	return fb, nil
}

// Follow pass-through nodes down to the first node that is either a leaf or
// has two live children.
func (t *tree) resolve(nIndex nodeIndex) nodeIndex {
	for {
		node := &t.nodes[nIndex]
		switch {
		case node.left != noNode && node.right == noNode:
			nIndex = node.left
		case node.left == noNode && node.right != noNode:
			nIndex = node.right
		default:
			return nIndex
		}
	}
}

func (fb *FlatBuffer) putUint32(offset, v uint32) {
	binary.LittleEndian.PutUint32(fb.Data[offset:], v)
}

// Size of the flat buffer in bytes.
func (fb *FlatBuffer) Size() int {
	return len(fb.Data)
}

// Triangle ids stored in the triangle id region.
func (fb *FlatBuffer) TriangleCount() int {
	return (len(fb.Data) - int(fb.TriangleIDOffset)) / TriangleIDRecordSize
}

// Check the region layout and every record reachable from the root. Child
// offsets must point at internal or leaf records inside the node region,
// triangle lists must lie inside the list region and reference existing
// triangle ids.
func (fb *FlatBuffer) Validate() error {
	size := uint32(len(fb.Data))
	switch {
	case fb.NodesOffset != 0:
		return errors.Errorf("node region must start at offset 0; got %d", fb.NodesOffset)
	case fb.TriangleListOffset < LeafRecordSize || fb.TriangleListOffset > fb.TriangleIDOffset || fb.TriangleIDOffset > size:
		return errors.Errorf("invalid region offsets (list %d, ids %d, size %d)", fb.TriangleListOffset, fb.TriangleIDOffset, size)
	case (size-fb.TriangleIDOffset)%TriangleIDRecordSize != 0:
		return errors.Errorf("triangle id region size %d is not a multiple of %d", size-fb.TriangleIDOffset, TriangleIDRecordSize)
	case fb.TriangleListOffset%4 != 0 || fb.TriangleIDOffset%4 != 0:
		return errors.New("region offsets must be 4-byte aligned")
	}

	view := flatView(fb.Data)
	triCount := uint32(fb.TriangleCount())
	nodesEnd := uint64(fb.TriangleListOffset)
	visited := make(map[uint32]bool)
	stack := []pendingRecord{{offset: 0}}
	for len(stack) > 0 {
		rec := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		offset := rec.offset
		if visited[offset] {
			return errors.Errorf("node record at offset %d is referenced more than once", offset)
		}
		visited[offset] = true

		if offset%4 != 0 || uint64(offset)+LeafRecordSize > nodesEnd {
			return errors.Errorf("node offset %d lies outside the node region", offset)
		}
		switch view.nodeType(offset) {
		case NodeTypeInternal:
			if uint64(offset)+InternalRecordSize > nodesEnd {
				return errors.Errorf("internal record at offset %d overruns the node region", offset)
			}
			// Every internal level can push one far child on the
			// traversal stack.
			if rec.depth >= traversalStackSize {
				return errors.Errorf("internal record at offset %d lies at depth %d; traversal supports at most %d internal levels", offset, rec.depth, traversalStackSize)
			}
			if rawAxis := view.uint32(offset + 4); rawAxis < 1 || rawAxis > 3 {
				return errors.Errorf("internal record at offset %d has invalid axis %d", offset, rawAxis)
			}
			_, _, left, right := view.internal(offset)
			stack = append(stack, pendingRecord{left, rec.depth + 1}, pendingRecord{right, rec.depth + 1})
		case NodeTypeLeaf:
			listOffset, count := view.leaf(offset)
			if listOffset < fb.TriangleListOffset || uint64(listOffset)+4*uint64(count) > uint64(fb.TriangleIDOffset) {
				return errors.Errorf("leaf record at offset %d references triangles outside the list region", offset)
			}
			for i := uint32(0); i < count; i++ {
				if id := view.uint32(listOffset + 4*i); id >= triCount {
					return errors.Errorf("leaf record at offset %d references unknown triangle id %d", offset, id)
				}
			}
		default:
			return errors.Errorf("node record at offset %d has unexpected type %d", offset, view.nodeType(offset))
		}
	}
	return nil
}

type pendingRecord struct {
	offset uint32
	depth  int
}

// A read-only view over flat buffer bytes shared by the host traversal
// kernel, validation and the preview exporter.
type flatView []byte

func (v flatView) uint32(offset uint32) uint32 {
	return binary.LittleEndian.Uint32(v[offset:])
}

func (v flatView) nodeType(offset uint32) uint32 {
	return v.uint32(offset)
}

func (v flatView) internal(offset uint32) (axis Axis, split float32, left, right uint32) {
	return Axis(v.uint32(offset+4) - 1),
		math.Float32frombits(v.uint32(offset + 8)),
		v.uint32(offset + 12),
		v.uint32(offset + 16)
}

func (v flatView) leaf(offset uint32) (listOffset, count uint32) {
	return v.uint32(offset + 4), v.uint32(offset + 8)
}

func (v flatView) triangle(idRegionOffset, id uint32) TriangleKey {
	recOffset := idRegionOffset + id*TriangleIDRecordSize
	return TriangleKey{v.uint32(recOffset), v.uint32(recOffset + 4), v.uint32(recOffset + 8)}
}
