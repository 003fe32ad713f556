//go:build opencl

package opencl

import (
	"unsafe"

	"github.com/achilleasa/gopencl/v1.2/cl"
	"github.com/kbiElude/Emerald-sub008/compute"
	"github.com/pkg/errors"
)

type Buffer struct {
	// Handle to opencl buffer.
	bufHandle cl.Mem

	ctx *Context

	// A name for identifying the buffer.
	name string

	// Allocated size.
	size int
}

func (b *Buffer) Name() string {
	return b.name
}

func (b *Buffer) Size() int {
	return b.size
}

// Copy len(dst) bytes starting at offset into dst. The call blocks until
// the copy completes.
func (b *Buffer) Read(offset int, dst []byte) error {
	if len(dst) == 0 {
		return nil
	}
	if offset < 0 || offset+len(dst) > b.size {
		return errors.Wrapf(compute.ErrOutOfBounds, "opencl device (%s): read of %d bytes at offset %d from %s (size %d)", b.ctx.device.Name, len(dst), offset, b.name, b.size)
	}

	errCode := cl.EnqueueReadBuffer(
		b.ctx.cmdQueue,
		b.bufHandle,
		cl.TRUE,
		uint64(offset),
		uint64(len(dst)),
		unsafe.Pointer(&dst[0]),
		0,
		nil,
		nil,
	)
	if errCode != cl.SUCCESS {
		return errors.Errorf("opencl device (%s): error copying device data from %s to host buffer (error: %s; code %d)", b.ctx.device.Name, b.name, ErrorName(errCode), errCode)
	}
	return nil
}

// Copy src into the buffer starting at offset. The call blocks until the
// copy completes.
func (b *Buffer) Write(offset int, src []byte) error {
	if len(src) == 0 {
		return nil
	}
	if offset < 0 || offset+len(src) > b.size {
		return errors.Wrapf(compute.ErrOutOfBounds, "opencl device (%s): insufficient buffer space (%d) in %s for copying %d bytes at offset %d", b.ctx.device.Name, b.size, b.name, len(src), offset)
	}

	errCode := cl.EnqueueWriteBuffer(
		b.ctx.cmdQueue,
		b.bufHandle,
		cl.TRUE,
		uint64(offset),
		uint64(len(src)),
		unsafe.Pointer(&src[0]),
		0,
		nil,
		nil,
	)
	if errCode != cl.SUCCESS {
		return errors.Errorf("opencl device (%s): error copying host data to device buffer %s (error: %s; code %d)", b.ctx.device.Name, b.name, ErrorName(errCode), errCode)
	}
	return nil
}

func (b *Buffer) Release() {
	if b.bufHandle != nil {
		cl.ReleaseMemObject(b.bufHandle)
		b.bufHandle = nil
	}
}

// Get opencl buffer handle.
func (b *Buffer) Handle() cl.Mem {
	return b.bufHandle
}
