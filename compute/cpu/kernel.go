package cpu

import (
	"github.com/kbiElude/Emerald-sub008/compute"
	"github.com/kbiElude/Emerald-sub008/types"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// The maximum number of argument slots a kernel may bind.
const maxArgSlots = 32

// Kernel runs a registered host kernel function over a 1D range.
type Kernel struct {
	ctx  *Context
	name string
	fn   compute.HostKernelFunc
	args compute.Args
}

func (k *Kernel) Name() string {
	return k.name
}

func (k *Kernel) WorkGroupSize() int {
	return k.ctx.maxWorkGroupSize
}

// Bind an argument to a slot. Passing nil binds a null buffer.
func (k *Kernel) SetArg(slot int, value interface{}) error {
	if slot < 0 || slot >= maxArgSlots {
		return errors.Errorf("cpu compute: could not set arg %d for kernel %s; invalid slot", slot, k.name)
	}

	switch value.(type) {
	case nil, compute.HostBuffer, int32, uint32, float32, types.Vec4:
	default:
		return errors.Wrapf(compute.ErrUnsupportedArg, "cpu compute: could not set arg %d for kernel %s (%T)", slot, k.name, value)
	}

	if slot >= len(k.args) {
		grown := make(compute.Args, slot+1)
		copy(grown, k.args)
		k.args = grown
	}
	k.args[slot] = value
	return nil
}

// Enqueue a 1D range. A localWorkSize of 0 selects the kernel work-group size.
// Work-groups start executing immediately; the returned event joins them.
func (k *Kernel) Enqueue1D(globalWorkSize, localWorkSize int) (compute.Event, error) {
	if localWorkSize == 0 {
		localWorkSize = k.WorkGroupSize()
		if globalWorkSize < localWorkSize {
			localWorkSize = globalWorkSize
		}
	}
	switch {
	case globalWorkSize <= 0:
		return nil, errors.Errorf("cpu compute: unable to execute kernel %s; invalid global work size %d", k.name, globalWorkSize)
	case localWorkSize <= 0 || localWorkSize > k.WorkGroupSize():
		return nil, errors.Errorf("cpu compute: unable to execute kernel %s; invalid work-group size %d", k.name, localWorkSize)
	case globalWorkSize%localWorkSize != 0:
		return nil, errors.Errorf("cpu compute: unable to execute kernel %s; global work size %d is not a multiple of %d", k.name, globalWorkSize, localWorkSize)
	}

	// Snapshot bound args so later SetArg calls do not affect this launch.
	args := make(compute.Args, len(k.args))
	copy(args, k.args)

	var group errgroup.Group
	group.SetLimit(k.ctx.parallelism)
	ev := &event{done: make(chan struct{})}
	go func() {
		for groupStart := 0; groupStart < globalWorkSize; groupStart += localWorkSize {
			first, last := groupStart, groupStart+localWorkSize
			group.Go(func() error {
				for gid := first; gid < last; gid++ {
					if err := k.fn(args, gid); err != nil {
						return errors.Wrapf(err, "cpu compute: kernel %s failed at work item %d", k.name, gid)
					}
				}
				return nil
			})
		}
		ev.err = group.Wait()
		close(ev.done)
	}()

	return ev, nil
}

func (k *Kernel) Release() {
	k.args = nil
}

type event struct {
	done chan struct{}
	err  error
}

func (e *event) Wait() error {
	<-e.done
	return e.err
}

func (e *event) Release() {}
