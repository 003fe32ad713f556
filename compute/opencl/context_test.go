//go:build opencl

package opencl

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/kbiElude/Emerald-sub008/compute"
)

const squareProgram = `
__kernel void square(__global const int* in, __global int* out, const unsigned int count) {
	int i = get_global_id(0);
	if (i < count) {
		out[i] = in[i] * in[i];
	}
}
`

func createCPUTestContext(t *testing.T) *Context {
	devList, err := SelectDevices(CpuDevice, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(devList) == 0 {
		t.Skip("no CPU opencl device available; check that opencl drivers are installed")
	}

	ctx, err := NewContext(devList[0])
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(ctx.Release)
	return ctx
}

func TestSelectDevices(t *testing.T) {
	platforms, err := GetPlatformInfo()
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range platforms {
		if !strings.Contains(p.String(), p.Name) {
			t.Fatalf("expected platform description to include its name %q", p.Name)
		}
		for _, d := range p.Devices {
			if d.maxWorkGroupSize == 0 {
				t.Fatalf("expected device %s to report a max work-group size", d.Name)
			}
		}
	}
}

func TestKernelEnqueue1D(t *testing.T) {
	ctx := createCPUTestContext(t)

	prog, err := ctx.BuildProgram("square", squareProgram)
	if err != nil {
		t.Fatal(err)
	}
	defer prog.Release()

	kernel, err := prog.Kernel("square")
	if err != nil {
		t.Fatal(err)
	}
	defer kernel.Release()

	dataSize := 32
	dataIn := make([]byte, 4*dataSize)
	for i := 0; i < dataSize; i++ {
		binary.LittleEndian.PutUint32(dataIn[4*i:], uint32(i))
	}
	bufIn, err := ctx.NewBufferFromData("in", dataIn, compute.MemReadOnly)
	if err != nil {
		t.Fatal(err)
	}
	defer bufIn.Release()
	bufOut, err := ctx.NewBuffer("out", len(dataIn), compute.MemWriteOnly)
	if err != nil {
		t.Fatal(err)
	}
	defer bufOut.Release()

	for slot, arg := range []interface{}{bufIn, bufOut, uint32(dataSize)} {
		if err = kernel.SetArg(slot, arg); err != nil {
			t.Fatal(err)
		}
	}

	ev, err := kernel.Enqueue1D(dataSize, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer ev.Release()
	if err = ev.Wait(); err != nil {
		t.Fatal(err)
	}

	dataOut := make([]byte, len(dataIn))
	if err = bufOut.Read(0, dataOut); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < dataSize; i++ {
		if got := binary.LittleEndian.Uint32(dataOut[4*i:]); got != uint32(i*i) {
			t.Fatalf("[item %d] expected squared value to be %d; got %d", i, i*i, got)
		}
	}
}

func TestKernelErrors(t *testing.T) {
	ctx := createCPUTestContext(t)

	if _, err := ctx.BuildProgram("broken", "__kernel void broken( {"); err == nil {
		t.Fatal("expected build of invalid source to fail")
	}

	prog, err := ctx.BuildProgram("square", squareProgram)
	if err != nil {
		t.Fatal(err)
	}
	defer prog.Release()

	if _, err = prog.Kernel("foo"); err == nil {
		t.Fatal("expected to get an error while trying to load an unknown kernel")
	}

	kernel, err := prog.Kernel("square")
	if err != nil {
		t.Fatal(err)
	}
	defer kernel.Release()
	if err = kernel.SetArg(0, "string"); err == nil {
		t.Fatal("expected unsupported argument type to be rejected")
	}
}

func TestBufferBounds(t *testing.T) {
	ctx := createCPUTestContext(t)

	buf, err := ctx.NewBuffer("test", 16, compute.MemReadWrite)
	if err != nil {
		t.Fatal(err)
	}
	defer buf.Release()

	if err = buf.Write(8, make([]byte, 16)); err == nil {
		t.Fatal("expected out of bounds write to fail")
	}
	if err = buf.Read(0, make([]byte, 32)); err == nil {
		t.Fatal("expected out of bounds read to fail")
	}
}
