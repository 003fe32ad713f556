package kdtree

// A vertex-index triple identifying a triangle.
type TriangleKey [3]uint32

// TriangleIndexer assigns canonical ids to distinct ordered vertex-index
// triples. Ids are dense and follow first-seen order.
type TriangleIndexer struct {
	ids  map[TriangleKey]uint32
	keys []TriangleKey
}

func NewTriangleIndexer() *TriangleIndexer {
	return &TriangleIndexer{
		ids: make(map[TriangleKey]uint32),
	}
}

// Get the canonical id for key, assigning the next free id if the key has
// not been seen before.
func (ix *TriangleIndexer) ID(key TriangleKey) uint32 {
	if id, exists := ix.ids[key]; exists {
		return id
	}
	id := uint32(len(ix.keys))
	ix.ids[key] = id
	ix.keys = append(ix.keys, key)
	return id
}

// Look up an existing id.
func (ix *TriangleIndexer) Lookup(key TriangleKey) (uint32, bool) {
	id, exists := ix.ids[key]
	return id, exists
}

// The number of distinct triangles seen so far.
func (ix *TriangleIndexer) Len() int {
	return len(ix.keys)
}

// Get the keys ordered by canonical id.
func (ix *TriangleIndexer) Keys() []TriangleKey {
	return ix.keys
}
