package kdtree

import (
	"time"

	"github.com/kbiElude/Emerald-sub008/compute"
	"github.com/kbiElude/Emerald-sub008/types"
	"github.com/pkg/errors"
)

// IntersectRequest describes a batch of rays cast from one or more origins.
// Every origin casts the same RayCount rays; the result for ray i of origin o
// is stored at index o*RayCount + i.
type IntersectRequest struct {
	Executor ExecutorID

	// Rays cast from each origin.
	RayCount int

	// Inline origins. When set, the executor's inline variant runs once per
	// origin with the origin bound as a kernel argument.
	Origins []types.Vec4

	// Buffered origins, used when Origins is empty. The buffer holds float4
	// origins; dispatch o reads origin OriginStrideOffset + o.
	OriginBuffer       compute.Buffer
	OriginCount        int
	OriginStrideOffset uint32

	// Ray direction buffer (float4 per ray) and the index of the first
	// direction read by lane 0.
	Directions      compute.Buffer
	DirectionOffset uint32

	// Result buffer written by the executor's reset/update code.
	Results compute.Buffer

	// When StoreTriangleHitData is set, the vertex ids of the hit triangle
	// are written as 3 uint32 per ray to TriangleHitIDs. Misses store
	// 0xFFFFFFFF.
	TriangleHitIDs       compute.Buffer
	StoreTriangleHitData bool

	// Find the closest hit instead of accepting the first one.
	FindClosest bool

	// Invoked after every origin completes. Returning false stops the batch
	// before the next origin is dispatched.
	Progress func(done, total int) bool
}

func (req *IntersectRequest) variant() Variant {
	if len(req.Origins) > 0 {
		return VariantInlineOrigin
	}
	return VariantBufferOrigin
}

func (req *IntersectRequest) originCount() int {
	if len(req.Origins) > 0 {
		return len(req.Origins)
	}
	return req.OriginCount
}

func (req *IntersectRequest) validate() error {
	switch {
	case req.RayCount <= 0:
		return errors.Errorf("kd-tree: invalid ray count %d", req.RayCount)
	case len(req.Origins) == 0 && req.OriginBuffer == nil:
		return errors.New("kd-tree: no ray origins supplied")
	case len(req.Origins) == 0 && req.OriginCount <= 0:
		return errors.Errorf("kd-tree: invalid ray origin count %d", req.OriginCount)
	case req.Directions == nil:
		return errors.New("kd-tree: no ray direction buffer supplied")
	case req.Results == nil:
		return errors.New("kd-tree: no result buffer supplied")
	case req.StoreTriangleHitData && req.TriangleHitIDs == nil:
		return errors.New("kd-tree: triangle hit data requested without a triangle hit id buffer")
	}

	rayTotal := req.originCount() * req.RayCount
	if req.StoreTriangleHitData && req.TriangleHitIDs.Size() < 12*rayTotal {
		return errors.Errorf("kd-tree: triangle hit id buffer holds %d bytes; %d rays need %d", req.TriangleHitIDs.Size(), rayTotal, 12*rayTotal)
	}
	if len(req.Origins) == 0 {
		needed := vec4Size * (int(req.OriginStrideOffset) + req.OriginCount)
		if req.OriginBuffer.Size() < needed {
			return errors.Errorf("kd-tree: origin buffer holds %d bytes; need %d", req.OriginBuffer.Size(), needed)
		}
	}
	return nil
}

// IntersectRays casts a batch of rays against the tree using a registered
// executor. The kernel is dispatched once per origin and each dispatch is
// waited on before the next one is issued, which bounds the amount of work
// queued on the device at any time.
func (t *Tree) IntersectRays(req IntersectRequest) error {
	if t.ctx == nil {
		return ErrNoComputeContext
	}
	if err := req.validate(); err != nil {
		return err
	}
	executor, err := t.executors.get(req.Executor)
	if err != nil {
		return err
	}
	kernel, err := executor.kernel(req.variant())
	if err != nil {
		return err
	}

	if err = t.bindStaticArgs(kernel, &req); err != nil {
		t.logger.Errorf("could not bind arguments for executor %q: %v", executor.Name(), err)
		return err
	}

	localSize := minInt(t.ctx.MaxWorkGroupSize(), kernel.WorkGroupSize(), req.RayCount)
	if localSize <= 0 {
		return errors.Errorf("kd-tree: invalid work-group size %d for kernel %s", localSize, kernel.Name())
	}
	globalSize := ((req.RayCount + localSize - 1) / localSize) * localSize

	start := time.Now()
	total := req.originCount()
	for originIndex := 0; originIndex < total; originIndex++ {
		if len(req.Origins) > 0 {
			if err = kernel.SetArg(argRayOrigin, req.Origins[originIndex]); err != nil {
				return errors.Wrapf(err, "kd-tree: could not bind ray origin %d", originIndex)
			}
		}
		if err = kernel.SetArg(argRayOriginIndex, uint32(originIndex)); err != nil {
			return errors.Wrapf(err, "kd-tree: could not bind ray origin index %d", originIndex)
		}

		if err = t.dispatch(kernel, globalSize, localSize); err != nil {
			t.logger.Errorf("dispatch for origin %d failed: %v", originIndex, err)
			return errors.Wrapf(err, "kd-tree: intersection failed for origin %d", originIndex)
		}

		if req.Progress != nil && !req.Progress(originIndex+1, total) {
			t.logger.Infof("intersection aborted after %d/%d origins", originIndex+1, total)
			return ErrAborted
		}
	}

	t.logger.Debugf(
		"cast %d rays from %d origins with executor %q in %d ms",
		req.RayCount*total, total, executor.Name(), time.Since(start).Nanoseconds()/1e6,
	)
	return nil
}

func (t *Tree) dispatch(kernel compute.Kernel, globalSize, localSize int) error {
	ev, err := kernel.Enqueue1D(globalSize, localSize)
	if err != nil {
		return err
	}
	defer ev.Release()
	return ev.Wait()
}

// Bind the arguments that stay fixed for every origin of the batch.
func (t *Tree) bindStaticArgs(kernel compute.Kernel, req *IntersectRequest) error {
	var hitIDs interface{}
	if req.StoreTriangleHitData {
		hitIDs = req.TriangleHitIDs
	}

	args := []struct {
		slot  int
		value interface{}
	}{
		{argBBoxMin, t.bbox.Min.Vec4(1)},
		{argBBoxMax, t.bbox.Max.Vec4(1)},
		{argRayDirections, req.Directions},
		{argFlatBuffer, t.flatBuf},
		{argResult, req.Results},
		{argRayCount, uint32(req.RayCount)},
		{argTriangleListOffset, t.flat.TriangleListOffset},
		{argTriangleIDOffset, t.flat.TriangleIDOffset},
		{argMeshData, t.meshBuf},
		{argTriangleHitIDs, hitIDs},
		{argStoreTriangleHitData, boolToUint32(req.StoreTriangleHitData)},
		{argFindClosest, boolToUint32(req.FindClosest)},
		{argRayDirectionOffset, req.DirectionOffset},
		{argMeshNormalsOffset, t.meshNormalsOffset},
		{argRayOriginStrideOffset, req.OriginStrideOffset},
	}
	if len(req.Origins) == 0 {
		args = append(args, struct {
			slot  int
			value interface{}
		}{argRayOrigin, req.OriginBuffer})
	}

	for _, arg := range args {
		if err := kernel.SetArg(arg.slot, arg.value); err != nil {
			return errors.Wrapf(err, "kd-tree: could not set kernel argument %d", arg.slot)
		}
	}
	return nil
}

func boolToUint32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func minInt(v int, others ...int) int {
	for _, o := range others {
		if o < v {
			v = o
		}
	}
	return v
}
