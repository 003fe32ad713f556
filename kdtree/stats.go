package kdtree

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
)

// Stats summarizes the shape of a flattened kd-tree.
type Stats struct {
	InternalNodes int
	Leafs         int
	EmptyLeafs    int
	MaxDepth      int

	// Pass-through nodes removed while flattening. Only known for trees
	// built in this process.
	CollapsedNodes int

	// Triangle references stored in leaf lists and the number of distinct
	// triangles they point at.
	TriangleRefs    int
	UniqueTriangles int
	MaxLeafSize     int

	NodesRegionSize        int
	TriangleListRegionSize int
	TriangleIDRegionSize   int
}

// References to triangles that straddle split planes and are stored in more
// than one leaf.
func (s Stats) DuplicatedRefs() int {
	return s.TriangleRefs - s.UniqueTriangles
}

func (s Stats) AvgLeafSize() float32 {
	if s.Leafs == 0 {
		return 0
	}
	return float32(s.TriangleRefs) / float32(s.Leafs)
}

// Collect statistics by walking the flat buffer from the root.
func (t *Tree) Stats() Stats {
	fb := t.flat
	view := flatView(fb.Data)
	st := Stats{
		CollapsedNodes:         t.stats.collapsed,
		UniqueTriangles:        fb.TriangleCount(),
		NodesRegionSize:        int(fb.TriangleListOffset - fb.NodesOffset),
		TriangleListRegionSize: int(fb.TriangleIDOffset - fb.TriangleListOffset),
		TriangleIDRegionSize:   len(fb.Data) - int(fb.TriangleIDOffset),
	}

	type pending struct {
		offset uint32
		depth  int
	}
	stack := []pending{{fb.NodesOffset, 0}}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if node.depth > st.MaxDepth {
			st.MaxDepth = node.depth
		}

		if view.nodeType(node.offset) == NodeTypeInternal {
			st.InternalNodes++
			_, _, left, right := view.internal(node.offset)
			stack = append(stack, pending{left, node.depth + 1}, pending{right, node.depth + 1})
			continue
		}

		_, count := view.leaf(node.offset)
		st.Leafs++
		st.TriangleRefs += int(count)
		if count == 0 {
			st.EmptyLeafs++
		}
		if int(count) > st.MaxLeafSize {
			st.MaxLeafSize = int(count)
		}
	}
	return st
}

// Build a tabular representation of the statistics.
func (s Stats) Table() string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Category", "Item", "Value"})
	table.Append([]string{"Nodes", "Internal", fmt.Sprint(s.InternalNodes)})
	table.Append([]string{"", "Leafs", fmt.Sprint(s.Leafs)})
	table.Append([]string{"", "Empty leafs", fmt.Sprint(s.EmptyLeafs)})
	table.Append([]string{"", "Collapsed", fmt.Sprint(s.CollapsedNodes)})
	table.Append([]string{"", "Max depth", fmt.Sprint(s.MaxDepth)})
	table.Append([]string{" ", " ", " "})
	table.Append([]string{"Triangles", "Unique", fmt.Sprint(s.UniqueTriangles)})
	table.Append([]string{"", "References", fmt.Sprint(s.TriangleRefs)})
	table.Append([]string{"", "Duplicated refs", fmt.Sprint(s.DuplicatedRefs())})
	table.Append([]string{"", "Max per leaf", fmt.Sprint(s.MaxLeafSize)})
	table.Append([]string{"", "Avg per leaf", fmt.Sprintf("%.2f", s.AvgLeafSize())})
	table.Append([]string{" ", " ", " "})
	table.Append([]string{"Flat buffer", "Nodes", fmtSize(s.NodesRegionSize)})
	table.Append([]string{"", "Triangle lists", fmtSize(s.TriangleListRegionSize)})
	table.Append([]string{"", "Triangle ids", fmtSize(s.TriangleIDRegionSize)})
	table.SetFooter([]string{"Total", " ", strings.TrimLeft(fmtSize(s.NodesRegionSize+s.TriangleListRegionSize+s.TriangleIDRegionSize), " ")})

	table.Render()
	return buf.String()
}

// Format a byte count with the appropriate byte/kb/mb unit.
func fmtSize(totalBytes int) string {
	switch {
	case totalBytes < 1e3:
		return fmt.Sprintf("%3d bytes", totalBytes)
	case totalBytes < 1e6:
		return fmt.Sprintf("%3.1f kb", float32(totalBytes)/1e3)
	}
	return fmt.Sprintf("%3.1f mb", float32(totalBytes)/1e6)
}
