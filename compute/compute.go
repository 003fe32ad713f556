// Package compute defines the device abstraction consumed by the kd-tree
// ray intersection core. Implementations live in sub-packages: cpu runs
// kernels as native Go functions and opencl drives real devices.
package compute

import (
	"github.com/pkg/errors"
)

// MemFlags describe how a kernel may access a buffer.
type MemFlags uint8

const (
	MemReadWrite MemFlags = iota
	MemReadOnly
	MemWriteOnly
)

var (
	ErrUnsupportedArg = errors.New("compute: unsupported kernel argument type")
	ErrUnknownKernel  = errors.New("compute: unknown kernel")
	ErrOutOfBounds    = errors.New("compute: buffer access out of bounds")
)

// A Context owns a device, its command queue and the memory objects
// allocated on it.
type Context interface {
	// A human readable name for the underlying device.
	Name() string

	// The maximum number of work items in a work-group supported by the device.
	MaxWorkGroupSize() int

	// Compile a program from source.
	BuildProgram(name, source string) (Program, error)

	// Allocate an uninitialized buffer.
	NewBuffer(name string, size int, flags MemFlags) (Buffer, error)

	// Allocate a buffer and copy data into it.
	NewBufferFromData(name string, data []byte, flags MemFlags) (Buffer, error)
}

// A compiled program.
type Program interface {
	// Look up a kernel by name.
	Kernel(name string) (Kernel, error)

	Release()
}

// A Kernel is an entry point inside a compiled program. Kernel arguments are
// bound by slot index and remain bound across enqueues.
type Kernel interface {
	Name() string

	// The maximum work-group size this kernel can be executed with.
	WorkGroupSize() int

	// Bind an argument. Supported values are Buffer, int32, uint32, float32
	// and types.Vec4.
	SetArg(slot int, value interface{}) error

	// Enqueue a 1D range of work items. The returned event completes when
	// every work item has finished.
	Enqueue1D(globalWorkSize, localWorkSize int) (Event, error)

	Release()
}

// An Event tracks the completion of an enqueued command.
type Event interface {
	// Block until the command completes.
	Wait() error

	Release()
}

// A Buffer is a device memory object.
type Buffer interface {
	Name() string
	Size() int

	// Copy size(dst) bytes starting at offset into dst.
	Read(offset int, dst []byte) error

	// Copy src into the buffer starting at offset.
	Write(offset int, src []byte) error

	Release()
}

// A HostKernelFunc executes a single work item. Args are indexed by the slot
// they were bound to.
type HostKernelFunc func(args Args, globalID int) error

// HostKernelRegistry is implemented by contexts that execute kernels as Go
// functions instead of compiling source for a device. Kernels must be
// registered before the program that references them is built.
type HostKernelRegistry interface {
	RegisterHostKernel(name string, fn HostKernelFunc)
}
