// Package cpu implements a compute context that runs host kernels on the
// calling machine. Work-groups execute concurrently; work items inside a
// work-group execute sequentially.
package cpu

import (
	"runtime"
	"sync"

	"github.com/kbiElude/Emerald-sub008/compute"
	"github.com/kbiElude/Emerald-sub008/log"
	"github.com/pkg/errors"
)

// DefaultMaxWorkGroupSize is used when NewContext is passed a non-positive size.
const DefaultMaxWorkGroupSize = 256

// Context is a compute.Context backed by host memory and goroutines.
type Context struct {
	logger log.Logger

	mu      sync.RWMutex
	kernels map[string]compute.HostKernelFunc

	maxWorkGroupSize int

	// Upper bound for work-groups executing at the same time.
	parallelism int
}

// Create a new host context.
func NewContext(maxWorkGroupSize int) *Context {
	if maxWorkGroupSize <= 0 {
		maxWorkGroupSize = DefaultMaxWorkGroupSize
	}
	return &Context{
		logger:           log.New("cpu compute"),
		kernels:          make(map[string]compute.HostKernelFunc),
		maxWorkGroupSize: maxWorkGroupSize,
		parallelism:      runtime.GOMAXPROCS(0),
	}
}

func (c *Context) Name() string {
	return "host cpu"
}

func (c *Context) MaxWorkGroupSize() int {
	return c.maxWorkGroupSize
}

// Register a Go function as the implementation of the named kernel.
// Registering the same name twice replaces the previous implementation.
func (c *Context) RegisterHostKernel(name string, fn compute.HostKernelFunc) {
	c.mu.Lock()
	c.kernels[name] = fn
	c.mu.Unlock()
}

// Build a program. Host contexts do not compile source; the returned program
// resolves kernel names against the registered host kernels.
func (c *Context) BuildProgram(name, source string) (compute.Program, error) {
	if source == "" {
		return nil, errors.Errorf("cpu compute: program %q has no source", name)
	}
	c.logger.Debugf("building program %q (%d bytes of source)", name, len(source))
	return &program{ctx: c, name: name}, nil
}

func (c *Context) NewBuffer(name string, size int, flags compute.MemFlags) (compute.Buffer, error) {
	if size <= 0 {
		return nil, errors.Errorf("cpu compute: could not allocate buffer %s of size %d", name, size)
	}
	return &Buffer{name: name, data: make([]byte, size), flags: flags}, nil
}

func (c *Context) NewBufferFromData(name string, data []byte, flags compute.MemFlags) (compute.Buffer, error) {
	buf, err := c.NewBuffer(name, len(data), flags)
	if err != nil {
		return nil, err
	}
	copy(buf.(*Buffer).data, data)
	return buf, nil
}

func (c *Context) lookupKernel(name string) (compute.HostKernelFunc, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn, ok := c.kernels[name]
	return fn, ok
}

type program struct {
	ctx  *Context
	name string
}

func (p *program) Kernel(name string) (compute.Kernel, error) {
	fn, ok := p.ctx.lookupKernel(name)
	if !ok {
		return nil, errors.Wrapf(compute.ErrUnknownKernel, "cpu compute: program %q has no kernel %q", p.name, name)
	}
	return &Kernel{ctx: p.ctx, name: name, fn: fn}, nil
}

func (p *program) Release() {}
