// Package kdtree builds kd-trees over triangle meshes, flattens them into an
// offset-addressed buffer that traversal kernels can read directly, persists
// them to disk and dispatches batched ray intersection queries against a
// compute context.
package kdtree

import (
	"io"
	"os"
	"time"

	"github.com/kbiElude/Emerald-sub008/compute"
	"github.com/kbiElude/Emerald-sub008/log"
	"github.com/kbiElude/Emerald-sub008/mesh"
	"github.com/kbiElude/Emerald-sub008/types"
	"github.com/pkg/errors"
)

// A Tree is an immutable kd-tree over a single mesh. It owns the device
// copies of its flat buffer and mesh data and the executors compiled for it.
type Tree struct {
	logger log.Logger

	// The compute context used for intersection queries. May be nil for
	// trees that are only built, inspected or persisted.
	ctx compute.Context

	// The source mesh; nil for trees loaded from disk.
	mesh mesh.Mesh

	opts     BuildOptions
	bbox     BoundingBox
	flat     *FlatBuffer
	meshData meshData
	stats    buildStats

	flatBuf           compute.Buffer
	meshBuf           compute.Buffer
	meshNormalsOffset uint32

	executors executorRegistry
}

// Build a kd-tree over a mesh. If ctx is not nil, the flat buffer and the
// mesh data are uploaded to the device.
func NewFromMesh(ctx compute.Context, m mesh.Mesh, opts BuildOptions) (*Tree, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if m == nil || len(m.Triangles()) == 0 {
		return nil, ErrEmptyMesh
	}

	vertices := m.Vertices()
	bbox := emptyBoundingBox()
	triangles := make([]Triangle, len(m.Triangles()))
	for triIndex, indices := range m.Triangles() {
		for _, vIndex := range indices {
			if int(vIndex) >= len(vertices) {
				return nil, errors.Errorf("kd-tree: triangle %d references vertex %d; mesh has %d vertices", triIndex, vIndex, len(vertices))
			}
		}
		triangles[triIndex] = NewTriangle(TriangleKey(indices), vertices)
		bbox = bbox.Include(triangles[triIndex].BBox.Min).Include(triangles[triIndex].BBox.Max)
	}

	built := buildTree(triangles, bbox, opts)
	flat, err := flatten(built)
	if err != nil {
		return nil, err
	}

	t := &Tree{
		logger:   log.New("kd-tree"),
		ctx:      ctx,
		mesh:     m,
		opts:     opts,
		bbox:     bbox,
		flat:     flat,
		meshData: newMeshData(m),
		stats:    built.stats,
	}
	if err = t.upload(); err != nil {
		return nil, err
	}
	return t, nil
}

// Load a kd-tree previously written by Save.
func NewFromFile(ctx compute.Context, path string) (*Tree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "kd-tree: could not open %s", path)
	}
	defer f.Close()

	t, err := Load(ctx, f)
	if err != nil {
		return nil, errors.Wrapf(err, "kd-tree: could not load %s", path)
	}
	return t, nil
}

// Load a kd-tree from a stream. The flat buffer is used as stored; the tree
// is not rebuilt and has no source mesh.
func Load(ctx compute.Context, r io.Reader) (*Tree, error) {
	start := time.Now()
	pt, err := decodeTree(r)
	if err != nil {
		return nil, err
	}

	t := &Tree{
		logger:   log.New("kd-tree"),
		ctx:      ctx,
		opts:     pt.opts,
		bbox:     pt.bbox,
		flat:     pt.flat,
		meshData: pt.mesh,
	}
	if err = t.upload(); err != nil {
		return nil, err
	}
	t.logger.Noticef("loaded kd-tree (%d bytes, %d triangles) in %d ms", t.flat.Size(), t.flat.TriangleCount(), time.Since(start).Nanoseconds()/1e6)
	return t, nil
}

// Copy the flat buffer and the mesh data to the device.
func (t *Tree) upload() error {
	if t.ctx == nil {
		return nil
	}

	var err error
	t.flatBuf, err = t.ctx.NewBufferFromData("kdtree", t.flat.Data, compute.MemReadOnly)
	if err != nil {
		t.logger.Errorf("could not allocate flat buffer: %v", err)
		return errors.Wrap(err, "kd-tree: could not upload flat buffer")
	}

	var data []byte
	data, t.meshNormalsOffset = t.meshData.kernelView()
	t.meshBuf, err = t.ctx.NewBufferFromData("kdtreeMesh", data, compute.MemReadOnly)
	if err != nil {
		t.logger.Errorf("could not allocate mesh buffer: %v", err)
		t.flatBuf.Release()
		t.flatBuf = nil
		return errors.Wrap(err, "kd-tree: could not upload mesh data")
	}
	return nil
}

// Save the tree to a file.
func (t *Tree) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "kd-tree: could not create %s", path)
	}

	if err = t.Write(f); err != nil {
		f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return errors.Wrapf(err, "kd-tree: could not write %s", path)
	}
	t.logger.Noticef("saved kd-tree to %s", path)
	return nil
}

// Write the tree in its persisted form.
func (t *Tree) Write(w io.Writer) error {
	return encodeTree(w, &persistedTree{
		opts: t.opts,
		flat: t.flat,
		bbox: t.bbox,
		mesh: t.meshData,
	})
}

// Compile an executor against the tree's compute context.
func (t *Tree) AddExecutor(cfg ExecutorConfig) (ExecutorID, error) {
	if t.ctx == nil {
		return -1, ErrNoComputeContext
	}
	t.executors.ctx = t.ctx
	id, err := t.executors.add(cfg)
	if err != nil {
		t.logger.Errorf("could not add executor %q: %v", cfg.Name, err)
		return -1, err
	}
	t.logger.Infof("added executor %q (%s)", cfg.Name, cfg.Variants)
	return id, nil
}

// Get a registered executor.
func (t *Tree) Executor(id ExecutorID) (*Executor, error) {
	return t.executors.get(id)
}

// Release the executors and the device buffers owned by the tree.
func (t *Tree) Release() {
	t.executors.release()
	if t.flatBuf != nil {
		t.flatBuf.Release()
		t.flatBuf = nil
	}
	if t.meshBuf != nil {
		t.meshBuf.Release()
		t.meshBuf = nil
	}
}

func (t *Tree) BoundingBox() BoundingBox {
	return t.bbox
}

func (t *Tree) Options() BuildOptions {
	return t.opts
}

// The flat buffer backing the tree. It must not be modified.
func (t *Tree) FlatBuffer() *FlatBuffer {
	return t.flat
}

// The mesh the tree was built from; nil for loaded trees.
func (t *Tree) Mesh() mesh.Mesh {
	return t.mesh
}

// The vertex positions stored with the tree.
func (t *Tree) Vertices() []types.Vec3 {
	out := make([]types.Vec3, t.meshData.vertexCount())
	for i := range out {
		out[i] = readVec4(t.meshData.Data, t.meshData.VerticesOffset+uint32(i*vec4Size)).Vec3()
	}
	return out
}
