package kdtree

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/kbiElude/Emerald-sub008/compute"
	"github.com/kbiElude/Emerald-sub008/types"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Variant selects where a traversal kernel reads its ray origin from.
type Variant uint8

const (
	// The origin is bound as an inline float4 argument, one per dispatch.
	VariantInlineOrigin Variant = 1 << iota

	// The origin is read from a float4 buffer at
	// origins[stride offset + ray origin index].
	VariantBufferOrigin
)

var variantNames = map[string]Variant{
	"inline": VariantInlineOrigin,
	"buffer": VariantBufferOrigin,
}

func (v Variant) String() string {
	var names []string
	if v&VariantInlineOrigin != 0 {
		names = append(names, "inline")
	}
	if v&VariantBufferOrigin != 0 {
		names = append(names, "buffer")
	}
	return strings.Join(names, "|")
}

// Decode a YAML list of variant names.
func (v *Variant) UnmarshalYAML(node *yaml.Node) error {
	var names []string
	if err := node.Decode(&names); err != nil {
		return err
	}
	*v = 0
	for _, name := range names {
		flag, ok := variantNames[strings.ToLower(name)]
		if !ok {
			return errors.Errorf("kd-tree: unknown executor variant %q", name)
		}
		*v |= flag
	}
	return nil
}

// Per-ray state passed to host hooks.
type RayContext struct {
	// Lane index inside the current dispatch.
	Lane int

	// Index of the origin being processed.
	OriginIndex int

	// Index of the ray in result and hit id buffers.
	RayIndex int

	Origin types.Vec3

	// Ray direction buffer contents and the direction offset argument.
	Directions      []byte
	DirectionOffset uint32
}

// A ray/triangle intersection.
type Hit struct {
	// Parametric distance along the ray direction.
	Distance float32

	// Barycentric coordinates of the hit point.
	U, V float32

	// Canonical triangle id and its unique vertex indices.
	TriangleID uint32
	Vertices   TriangleKey

	// Interpolated vertex normal at the hit point.
	Normal types.Vec3
}

// HostHooks are the Go counterparts of an executor's OpenCL snippets, used
// by contexts that run kernels natively. Nil hooks fall back to the default
// behavior.
type HostHooks struct {
	RayDirection func(ray RayContext) types.Vec3
	Reset        func(result []byte, ray RayContext)
	Update       func(result []byte, ray RayContext, hit Hit)
}

// ExecutorConfig describes how a traversal kernel generates ray directions
// and stores results. The code fields are OpenCL C statements spliced into
// the traversal kernel; empty fields select the defaults: directions are read
// from the direction buffer at direction_offset + lane, misses store -1 and
// hits store the hit distance as a float at ray_index.
//
// Snippets can reference: lane, ray_index, ray_origin_index, ray_origin,
// ray_direction (write in ray direction code), ray_directions,
// ray_direction_offset, result, and in update code hit_distance, hit_u,
// hit_v, hit_triangle_id, hit_vertex_ids and hit_normal.
type ExecutorConfig struct {
	Name             string  `yaml:"name"`
	RayDirectionCode string  `yaml:"ray_direction_code"`
	ResetCode        string  `yaml:"reset_code"`
	UpdateCode       string  `yaml:"update_code"`
	Variants         Variant `yaml:"variants"`

	HostHooks HostHooks `yaml:"-"`
}

// The executor used when no configuration is supplied: directions come from
// the direction buffer and the result buffer receives one float32 hit
// distance per ray, or -1 on a miss.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		Name:     "default",
		Variants: VariantInlineOrigin | VariantBufferOrigin,
	}
}

var executorNameRegex = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

func (cfg ExecutorConfig) validate() error {
	if !executorNameRegex.MatchString(cfg.Name) {
		return errors.Errorf("kd-tree: executor name %q must be a valid identifier", cfg.Name)
	}
	if cfg.Variants&(VariantInlineOrigin|VariantBufferOrigin) == 0 {
		return errors.Errorf("kd-tree: executor %q does not request any variant", cfg.Name)
	}
	return nil
}

// Load executor configurations from a YAML document holding a list of
// executors.
func LoadExecutorConfigs(r io.Reader) ([]ExecutorConfig, error) {
	var doc struct {
		Executors []ExecutorConfig `yaml:"executors"`
	}
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "kd-tree: could not parse executor configuration")
	}
	for _, cfg := range doc.Executors {
		if err := cfg.validate(); err != nil {
			return nil, err
		}
	}
	return doc.Executors, nil
}

// Identifies an executor registered with a Tree.
type ExecutorID int

// An Executor is a traversal kernel configuration compiled against the
// tree's compute context.
type Executor struct {
	id      ExecutorID
	config  ExecutorConfig
	program compute.Program
	kernels map[Variant]compute.Kernel
}

func (e *Executor) ID() ExecutorID {
	return e.id
}

func (e *Executor) Name() string {
	return e.config.Name
}

func (e *Executor) Variants() Variant {
	return e.config.Variants
}

func (e *Executor) kernel(v Variant) (compute.Kernel, error) {
	k, ok := e.kernels[v]
	if !ok {
		return nil, errors.Wrapf(ErrVariantUnsupported, "executor %q (%s) has no %s variant", e.config.Name, e.config.Variants, v)
	}
	return k, nil
}

func (e *Executor) release() {
	for _, k := range e.kernels {
		k.Release()
	}
	e.kernels = nil
	if e.program != nil {
		e.program.Release()
		e.program = nil
	}
}

// Name of the traversal kernel entry point for a variant.
func kernelName(executorName string, v Variant) string {
	return fmt.Sprintf("kdtree_intersect_%s_%s", executorName, v)
}

// executorRegistry owns the executors of a tree.
type executorRegistry struct {
	ctx       compute.Context
	executors []*Executor
}

// Compile the kernel variants requested by cfg and register the executor.
// Contexts that run kernels natively get host traversal kernels bound to the
// configuration's host hooks.
func (r *executorRegistry) add(cfg ExecutorConfig) (ExecutorID, error) {
	if err := cfg.validate(); err != nil {
		return -1, err
	}
	for _, e := range r.executors {
		if e.config.Name == cfg.Name {
			return -1, errors.Errorf("kd-tree: executor %q already exists", cfg.Name)
		}
	}

	variants := []Variant{VariantInlineOrigin, VariantBufferOrigin}
	registry, isHost := r.ctx.(compute.HostKernelRegistry)

	var source strings.Builder
	for _, v := range variants {
		if cfg.Variants&v == 0 {
			continue
		}
		source.WriteString(generateKernelSource(kernelName(cfg.Name, v), v, cfg))
		if isHost {
			registry.RegisterHostKernel(kernelName(cfg.Name, v), hostTraversalKernel(v, cfg.HostHooks))
		}
	}

	program, err := r.ctx.BuildProgram("kdtree_"+cfg.Name, kernelPrelude+source.String())
	if err != nil {
		return -1, errors.Wrapf(err, "kd-tree: could not build executor %q", cfg.Name)
	}

	e := &Executor{
		id:      ExecutorID(len(r.executors)),
		config:  cfg,
		program: program,
		kernels: make(map[Variant]compute.Kernel),
	}
	for _, v := range variants {
		if cfg.Variants&v == 0 {
			continue
		}
		k, err := program.Kernel(kernelName(cfg.Name, v))
		if err != nil {
			e.release()
			return -1, errors.Wrapf(err, "kd-tree: could not load kernel for executor %q", cfg.Name)
		}
		e.kernels[v] = k
	}

	r.executors = append(r.executors, e)
	return e.id, nil
}

func (r *executorRegistry) get(id ExecutorID) (*Executor, error) {
	if id < 0 || int(id) >= len(r.executors) {
		return nil, errors.Wrapf(ErrUnknownExecutor, "id %d", id)
	}
	return r.executors[id], nil
}

func (r *executorRegistry) release() {
	for _, e := range r.executors {
		e.release()
	}
	r.executors = nil
}
