package kdtree

import (
	"bufio"
	"fmt"
	"io"

	"github.com/kbiElude/Emerald-sub008/types"
	"github.com/pkg/errors"
)

// PreviewLineData returns line segment endpoint pairs outlining the box of
// every leaf. Leaf boxes are recovered from the scene box and the split
// planes, so loaded trees can be previewed as well.
func (t *Tree) PreviewLineData() []types.Vec3 {
	view := flatView(t.flat.Data)

	type pending struct {
		offset uint32
		bbox   BoundingBox
	}
	var lines []types.Vec3
	queue := []pending{{t.flat.NodesOffset, t.bbox}}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		if view.nodeType(node.offset) != NodeTypeInternal {
			lines = append(lines, node.bbox.Edges()...)
			continue
		}
		axis, split, left, right := view.internal(node.offset)
		leftBBox, rightBBox := node.bbox.Split(axis, split)
		queue = append(queue, pending{left, leftBBox}, pending{right, rightBBox})
	}
	return lines
}

// WritePreviewOBJ writes the preview lines as a Wavefront OBJ file made of
// line elements.
func (t *Tree) WritePreviewOBJ(w io.Writer) error {
	lines := t.PreviewLineData()
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "# kd-tree leaf boxes: %d segments\n", len(lines)/2)
	for _, p := range lines {
		fmt.Fprintf(bw, "v %g %g %g\n", p[0], p[1], p[2])
	}
	for i := 1; i < len(lines); i += 2 {
		fmt.Fprintf(bw, "l %d %d\n", i, i+1)
	}
	return errors.Wrap(bw.Flush(), "kd-tree: could not write preview")
}
