package kdtree

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStats(t *testing.T) {
	tree, err := NewFromMesh(nil, separatedTrianglesMesh(t), exactBuildOptions(1))
	require.NoError(t, err)

	st := tree.Stats()
	require.Equal(t, 1, st.InternalNodes)
	require.Equal(t, 2, st.Leafs)
	require.Equal(t, 0, st.EmptyLeafs)
	require.Equal(t, 1, st.MaxDepth)
	require.Equal(t, 2, st.TriangleRefs)
	require.Equal(t, 2, st.UniqueTriangles)
	require.Equal(t, 0, st.DuplicatedRefs())
	require.Equal(t, 1, st.MaxLeafSize)
	require.Equal(t, float32(1), st.AvgLeafSize())
	require.Equal(t, InternalRecordSize+2*LeafRecordSize, st.NodesRegionSize)
	require.Equal(t, 8, st.TriangleListRegionSize)
	require.Equal(t, 2*TriangleIDRecordSize, st.TriangleIDRegionSize)

	table := st.Table()
	require.Contains(t, table, "Internal")
	require.Contains(t, table, "Duplicated refs")
	require.Contains(t, table, "76 bytes")
}

func TestStatsAfterLoad(t *testing.T) {
	tree, err := NewFromMesh(nil, randomMesh(t, 100), exactBuildOptions(2))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, tree.Write(&buf))
	loaded, err := Load(nil, &buf)
	require.NoError(t, err)

	built, restored := tree.Stats(), loaded.Stats()

	// Collapsed nodes are not part of the flat buffer.
	require.Equal(t, 0, restored.CollapsedNodes)
	restored.CollapsedNodes = built.CollapsedNodes
	require.Equal(t, built, restored)
	require.GreaterOrEqual(t, built.TriangleRefs, 100)
}

func TestFmtSize(t *testing.T) {
	require.Equal(t, " 12 bytes", fmtSize(12))
	require.Equal(t, "2.5 kb", fmtSize(2500))
	require.True(t, strings.HasSuffix(fmtSize(3e6), "mb"))
}
