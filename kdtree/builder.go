package kdtree

import (
	"time"

	"github.com/kbiElude/Emerald-sub008/log"
	"github.com/kbiElude/Emerald-sub008/types"
)

// Splitting stops below this depth regardless of the other stop conditions.
// Mid-point splits of a float32 box stop separating anything well before it.
const maxTreeDepth = 64

// Arena index of a tree node.
type nodeIndex int32

// Marks an absent child.
const noNode nodeIndex = -1

// A triangle references three entries of the unique vertex table.
type Triangle struct {
	BBox    BoundingBox
	Indices TriangleKey
}

// Build a triangle from its vertex indices and the vertex table.
func NewTriangle(indices TriangleKey, vertices []types.Vec3) Triangle {
	bbox := emptyBoundingBox()
	for _, vIndex := range indices {
		bbox = bbox.Include(vertices[vIndex])
	}
	return Triangle{BBox: bbox, Indices: indices}
}

// A node of the pointer tree. Nodes with two live children are internal
// nodes, nodes with one live child are pass-through nodes that the flattener
// collapses and nodes with no children are leaves.
type treeNode struct {
	bbox  BoundingBox
	depth int

	axis  Axis
	split float32
	left  nodeIndex
	right nodeIndex

	// Indices into the builder triangle list. Only set while the node is
	// queued or once it has become a leaf.
	triangles []int32
}

func (n *treeNode) isLeaf() bool {
	return n.left == noNode && n.right == noNode
}

type buildStats struct {
	internal  int
	collapsed int
	leafs     int
	maxDepth  int

	// Triangle references stored in leafs; exceeds the triangle count
	// when triangles straddle split planes.
	triangleRefs int
}

// The pointer tree produced by TreeBuilder. Nodes live in a single arena
// and the root is always at index 0.
type tree struct {
	nodes     []treeNode
	triangles []Triangle
	bbox      BoundingBox
	stats     buildStats
}

type treeBuilder struct {
	logger log.Logger
	opts   BuildOptions

	tree        *tree
	sceneVolume float32
}

// Partition triangles into a kd-tree using longest-axis mid-point splits.
// Nodes are processed breadth-first from a work queue so build depth never
// grows the goroutine stack.
func buildTree(triangles []Triangle, bbox BoundingBox, opts BuildOptions) *tree {
	b := &treeBuilder{
		logger: log.New("kd-tree builder"),
		opts:   opts,
		tree: &tree{
			nodes:     make([]treeNode, 0, 2*len(triangles)+1),
			triangles: triangles,
			bbox:      bbox,
		},
		sceneVolume: bbox.Volume(),
	}

	start := time.Now()

	rootTriangles := make([]int32, len(triangles))
	for i := range rootTriangles {
		rootTriangles[i] = int32(i)
	}
	root := b.allocNode(bbox, 0, rootTriangles)

	workQueue := []nodeIndex{root}
	for len(workQueue) > 0 {
		nIndex := workQueue[0]
		workQueue = workQueue[1:]
		workQueue = append(workQueue, b.process(nIndex)...)
	}

	st := b.tree.stats
	b.logger.Debugf(
		"kd-tree build time: %d ms, maxDepth: %d, internal: %d, collapsed: %d, leafs: %d, triangle refs: %d/%d",
		time.Since(start).Nanoseconds()/1e6,
		st.maxDepth, st.internal, st.collapsed, st.leafs, st.triangleRefs, len(triangles),
	)
	return b.tree
}

func (b *treeBuilder) allocNode(bbox BoundingBox, depth int, triangles []int32) nodeIndex {
	b.tree.nodes = append(b.tree.nodes, treeNode{
		bbox:      bbox,
		depth:     depth,
		left:      noNode,
		right:     noNode,
		triangles: triangles,
	})
	if depth > b.tree.stats.maxDepth {
		b.tree.stats.maxDepth = depth
	}
	return nodeIndex(len(b.tree.nodes) - 1)
}

// Split a queued node or turn it into a leaf. Returns the children that need
// further processing.
func (b *treeBuilder) process(nIndex nodeIndex) []nodeIndex {
	node := &b.tree.nodes[nIndex]

	if b.shouldStop(node) {
		b.finalizeLeaf(node)
		return nil
	}

	axis := node.bbox.LongestAxis()
	split := 0.5 * (node.bbox.Min[axis] + node.bbox.Max[axis])
	leftBBox, rightBBox := node.bbox.Split(axis, split)

	// Triangles straddling the split plane are referenced by both sides.
	var leftTris, rightTris []int32
	straddling := 0
	for _, triIndex := range node.triangles {
		triBBox := b.tree.triangles[triIndex].BBox
		goesLeft := triBBox.Min[axis] <= rightBBox.Min[axis]
		goesRight := triBBox.Max[axis] >= leftBBox.Max[axis]
		if goesLeft {
			leftTris = append(leftTris, triIndex)
		}
		if goesRight {
			rightTris = append(rightTris, triIndex)
		}
		if goesLeft && goesRight {
			straddling++
		}
	}

	// Nothing gets separated if every triangle lands on both sides.
	if straddling == len(node.triangles) {
		b.finalizeLeaf(node)
		return nil
	}

	depth := node.depth + 1
	node.axis = axis
	node.split = split
	node.triangles = nil

	// allocNode may grow the arena, so node must not be used past this point.
	var queued []nodeIndex
	left, right := noNode, noNode
	if len(leftTris) > 0 {
		left = b.allocNode(leftBBox, depth, leftTris)
		queued = append(queued, left)
	}
	if len(rightTris) > 0 {
		right = b.allocNode(rightBBox, depth, rightTris)
		queued = append(queued, right)
	}

	parent := &b.tree.nodes[nIndex]
	parent.left, parent.right = left, right
	if left == noNode || right == noNode {
		b.tree.stats.collapsed++
	} else {
		b.tree.stats.internal++
	}

	return queued
}

func (b *treeBuilder) shouldStop(node *treeNode) bool {
	return len(node.triangles) < b.opts.MaxTrianglesPerLeaf ||
		node.bbox.Volume() < b.opts.MinLeafVolumeMultiplier*b.sceneVolume ||
		node.depth >= maxTreeDepth
}

func (b *treeBuilder) finalizeLeaf(node *treeNode) {
	node.left, node.right = noNode, noNode
	b.tree.stats.leafs++
	b.tree.stats.triangleRefs += len(node.triangles)
}
