//go:build opencl

package opencl

import (
	"unsafe"

	"github.com/achilleasa/gopencl/v1.2/cl"
	"github.com/kbiElude/Emerald-sub008/compute"
	"github.com/kbiElude/Emerald-sub008/types"
	"github.com/pkg/errors"
)

// A wrapper around opencl kernel handles.
type Kernel struct {
	ctx          *Context
	kernelHandle cl.Kernel
	name         string

	workGroupSize int

	globalWorkSizes [1]uint64
	localWorkSizes  [1]uint64
}

func (k *Kernel) Name() string {
	return k.name
}

func (k *Kernel) WorkGroupSize() int {
	return k.workGroupSize
}

// Bind an argument to a slot. A nil value binds a null buffer.
func (k *Kernel) SetArg(slot int, value interface{}) error {
	var errCode cl.ErrorCode
	argIndex := uint32(slot)

	// The switch cannot use the captured value directly as SetKernelArg
	// needs a pointer to the underlying data.
	switch arg := value.(type) {
	case nil:
		errCode = cl.SetKernelArg(k.kernelHandle, argIndex, 8, nil)
	case *Buffer:
		bufHandle := arg.Handle()
		errCode = cl.SetKernelArg(k.kernelHandle, argIndex, 8, unsafe.Pointer(&bufHandle))
	case int32:
		errCode = cl.SetKernelArg(k.kernelHandle, argIndex, 4, unsafe.Pointer(&arg))
	case uint32:
		errCode = cl.SetKernelArg(k.kernelHandle, argIndex, 4, unsafe.Pointer(&arg))
	case float32:
		errCode = cl.SetKernelArg(k.kernelHandle, argIndex, 4, unsafe.Pointer(&arg))
	case types.Vec4:
		errCode = cl.SetKernelArg(k.kernelHandle, argIndex, 16, unsafe.Pointer(&arg[0]))
	default:
		return errors.Wrapf(compute.ErrUnsupportedArg, "opencl device (%s): could not set arg %d for kernel %s (%T)", k.ctx.device.Name, slot, k.name, value)
	}

	if errCode != cl.SUCCESS {
		return errors.Errorf("opencl device (%s): could not set arg %d for kernel %s (error: %s; code %d)", k.ctx.device.Name, slot, k.name, ErrorName(errCode), errCode)
	}
	return nil
}

// Enqueue a 1D range. If localWorkSize is 0 the opencl implementation picks
// the work-group split.
func (k *Kernel) Enqueue1D(globalWorkSize, localWorkSize int) (compute.Event, error) {
	var localSizePtr *uint64

	k.globalWorkSizes[0] = uint64(globalWorkSize)
	if localWorkSize != 0 {
		k.localWorkSizes[0] = uint64(localWorkSize)
		localSizePtr = &k.localWorkSizes[0]
	}

	var ev cl.Event
	errCode := cl.EnqueueNDRangeKernel(
		k.ctx.cmdQueue,
		k.kernelHandle,
		1,
		nil,
		&k.globalWorkSizes[0],
		localSizePtr,
		0,
		nil,
		&ev,
	)
	if errCode != cl.SUCCESS {
		return nil, errors.Errorf("opencl device (%s): unable to execute kernel %s (error: %s; code %d)", k.ctx.device.Name, k.name, ErrorName(errCode), errCode)
	}

	return &Event{ctx: k.ctx, kernel: k.name, handle: ev}, nil
}

// Free any allocated resources used by this kernel.
func (k *Kernel) Release() {
	if k.kernelHandle != nil {
		cl.ReleaseKernel(k.kernelHandle)
		k.kernelHandle = nil
	}
}

// Event tracks a kernel enqueued on the command queue.
type Event struct {
	ctx    *Context
	kernel string
	handle cl.Event
}

// Block until the kernel completes.
func (e *Event) Wait() error {
	errCode := cl.WaitForEvents(1, &e.handle)
	if errCode != cl.SUCCESS {
		return errors.Errorf("opencl device (%s): kernel %s did not complete successfully (error: %s; code %d)", e.ctx.device.Name, e.kernel, ErrorName(errCode), errCode)
	}
	return nil
}

func (e *Event) Release() {
	if e.handle != nil {
		cl.ReleaseEvent(e.handle)
		e.handle = nil
	}
}
