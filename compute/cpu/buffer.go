package cpu

import (
	"sync"

	"github.com/kbiElude/Emerald-sub008/compute"
	"github.com/pkg/errors"
)

// Buffer is a host-memory compute.Buffer.
type Buffer struct {
	mu    sync.RWMutex
	name  string
	data  []byte
	flags compute.MemFlags
}

func (b *Buffer) Name() string {
	return b.name
}

func (b *Buffer) Size() int {
	return len(b.data)
}

// Bytes exposes the buffer storage to host kernels.
func (b *Buffer) Bytes() []byte {
	return b.data
}

func (b *Buffer) Read(offset int, dst []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.data == nil {
		return errors.Errorf("cpu compute: buffer %s has been released", b.name)
	}
	if offset < 0 || offset+len(dst) > len(b.data) {
		return errors.Wrapf(compute.ErrOutOfBounds, "cpu compute: read of %d bytes at offset %d from %s (size %d)", len(dst), offset, b.name, len(b.data))
	}
	copy(dst, b.data[offset:])
	return nil
}

func (b *Buffer) Write(offset int, src []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.data == nil {
		return errors.Errorf("cpu compute: buffer %s has been released", b.name)
	}
	if offset < 0 || offset+len(src) > len(b.data) {
		return errors.Wrapf(compute.ErrOutOfBounds, "cpu compute: write of %d bytes at offset %d to %s (size %d)", len(src), offset, b.name, len(b.data))
	}
	copy(b.data[offset:], src)
	return nil
}

func (b *Buffer) Release() {
	b.mu.Lock()
	b.data = nil
	b.mu.Unlock()
}
