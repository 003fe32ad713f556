//go:build opencl

package opencl

import (
	"fmt"
	"unsafe"

	"github.com/achilleasa/gopencl/v1.2/cl"
	"github.com/kbiElude/Emerald-sub008/compute"
	"github.com/kbiElude/Emerald-sub008/log"
	"github.com/pkg/errors"
)

// Context is a compute.Context bound to a single OpenCL device and an
// in-order command queue.
type Context struct {
	logger log.Logger
	device *Device

	ctx      *cl.Context
	cmdQueue cl.CommandQueue
}

// Create a context and command queue for a device.
func NewContext(dev *Device) (*Context, error) {
	var errCode cl.ErrorCode

	c := &Context{
		logger: log.New(fmt.Sprintf("opencl (%s)", dev.Name)),
		device: dev,
	}

	c.ctx = cl.CreateContext(nil, 1, &dev.Id, nil, nil, (*int32)(&errCode))
	if errCode != cl.SUCCESS {
		return nil, errors.Errorf("opencl device (%s): could not create opencl context (error: %s; code %d)", dev.Name, ErrorName(errCode), errCode)
	}

	c.cmdQueue = cl.CreateCommandQueue(*c.ctx, dev.Id, 0, (*int32)(&errCode))
	if errCode != cl.SUCCESS {
		defer c.Release()
		return nil, errors.Errorf("opencl device (%s): could not create command queue (error: %s; code %d)", dev.Name, ErrorName(errCode), errCode)
	}

	return c, nil
}

func (c *Context) Name() string {
	return c.device.Name
}

func (c *Context) Device() *Device {
	return c.device
}

func (c *Context) MaxWorkGroupSize() int {
	return int(c.device.maxWorkGroupSize)
}

// Compile a program from source.
func (c *Context) BuildProgram(name, source string) (compute.Program, error) {
	var errCode cl.ErrorCode

	progSrc := cl.Str(source + "\x00")
	handle := cl.CreateProgramWithSource(*c.ctx, 1, &progSrc, nil, (*int32)(&errCode))
	if errCode != cl.SUCCESS {
		return nil, errors.Errorf("opencl device (%s): could not create program %s (error: %s; code %d)", c.device.Name, name, ErrorName(errCode), errCode)
	}

	errCode = cl.BuildProgram(handle, 1, &c.device.Id, cl.Str("\x00"), nil, nil)
	if errCode != cl.SUCCESS {
		var dataLen uint64
		data := make([]byte, 120000)

		cl.GetProgramBuildInfo(handle, c.device.Id, cl.PROGRAM_BUILD_LOG, uint64(len(data)), unsafe.Pointer(&data[0]), &dataLen)
		cl.ReleaseProgram(handle)
		return nil, errors.Errorf("opencl device (%s): could not build program %s (error: %s; code %d):\n%s", c.device.Name, name, ErrorName(errCode), errCode, cString(data, dataLen))
	}

	c.logger.Debugf("built program %s", name)
	return &Program{ctx: c, name: name, handle: handle}, nil
}

func memFlags(flags compute.MemFlags) cl.MemFlags {
	switch flags {
	case compute.MemReadOnly:
		return cl.MEM_READ_ONLY
	case compute.MemWriteOnly:
		return cl.MEM_WRITE_ONLY
	}
	return cl.MEM_READ_WRITE
}

// Allocate an uninitialized device buffer.
func (c *Context) NewBuffer(name string, size int, flags compute.MemFlags) (compute.Buffer, error) {
	return c.createBuffer(name, size, memFlags(flags), nil)
}

// Allocate a device buffer and copy data into it.
func (c *Context) NewBufferFromData(name string, data []byte, flags compute.MemFlags) (compute.Buffer, error) {
	if len(data) == 0 {
		return nil, errors.Errorf("opencl device (%s): could not allocate buffer %s; no data", c.device.Name, name)
	}
	return c.createBuffer(name, len(data), memFlags(flags)|cl.MEM_COPY_HOST_PTR, unsafe.Pointer(&data[0]))
}

func (c *Context) createBuffer(name string, size int, flags cl.MemFlags, hostPtr unsafe.Pointer) (*Buffer, error) {
	if size <= 0 {
		return nil, errors.Errorf("opencl device (%s): could not allocate buffer %s of size %d", c.device.Name, name, size)
	}

	var errCode cl.ErrorCode
	handle := cl.CreateBuffer(*c.ctx, flags, cl.MemFlags(size), hostPtr, (*int32)(&errCode))
	if errCode != cl.SUCCESS {
		return nil, errors.Errorf("opencl device (%s): could not allocate buffer %s of size %d (error: %s; code %d)", c.device.Name, name, size, ErrorName(errCode), errCode)
	}
	return &Buffer{ctx: c, name: name, size: size, bufHandle: handle}, nil
}

// Release the command queue and the context.
func (c *Context) Release() {
	if c.cmdQueue != nil {
		cl.ReleaseCommandQueue(c.cmdQueue)
		c.cmdQueue = nil
	}

	if c.ctx != nil {
		cl.ReleaseContext(c.ctx)
		c.ctx = nil
	}
}

// A compiled OpenCL program.
type Program struct {
	ctx    *Context
	name   string
	handle cl.Program
}

// Load kernel by name.
func (p *Program) Kernel(name string) (compute.Kernel, error) {
	var errCode cl.ErrorCode
	handle := cl.CreateKernel(p.handle, cl.Str(name+"\x00"), (*int32)(&errCode))
	if errCode != cl.SUCCESS {
		return nil, errors.Wrapf(compute.ErrUnknownKernel, "opencl device (%s): could not load kernel %s (error: %s; code %d)", p.ctx.device.Name, name, ErrorName(errCode), errCode)
	}

	var wgSize uint64
	errCode = cl.GetKernelWorkGroupInfo(handle, p.ctx.device.Id, cl.KERNEL_WORK_GROUP_SIZE, 8, unsafe.Pointer(&wgSize), nil)
	if errCode != cl.SUCCESS {
		cl.ReleaseKernel(handle)
		return nil, errors.Errorf("opencl device (%s): could not query work-group size for kernel %s (error: %s; code %d)", p.ctx.device.Name, name, ErrorName(errCode), errCode)
	}

	return &Kernel{
		ctx:           p.ctx,
		kernelHandle:  handle,
		name:          name,
		workGroupSize: int(wgSize),
	}, nil
}

func (p *Program) Release() {
	if p.handle != nil {
		cl.ReleaseProgram(p.handle)
		p.handle = nil
	}
}
