//go:build opencl

// Package opencl implements compute.Context on top of OpenCL 1.2 devices.
package opencl

import (
	"fmt"
	"regexp"
	"unsafe"

	"github.com/achilleasa/gopencl/v1.2/cl"
	"github.com/pkg/errors"
)

type DeviceType uint8

// Supported device types.
const (
	CpuDevice   DeviceType = 1 << iota
	GpuDevice              = 1 << iota
	OtherDevice            = 1 << iota
	AllDevices             = 0xFF
)

var (
	indentRegex = regexp.MustCompile("(?m)^")
)

func (dt DeviceType) String() string {
	switch dt {
	case CpuDevice:
		return "CPU"
	case GpuDevice:
		return "GPU"
	case OtherDevice:
		return "Other"
	}
	return "Unknown"
}

// An OpenCL device.
type Device struct {
	Name string
	Id   cl.DeviceId
	Type DeviceType

	compUnits        uint32
	clockSpeed       uint32
	maxWorkGroupSize uint64

	// Speed estimate in GFlops.
	Speed uint32
}

func (d Device) String() string {
	return fmt.Sprintf(
		"Name: %s\nType: %s\nSpecs: %d computation units, %d Mhz clock, %d GFlops approximate speed, max work-group size %d",
		d.Name,
		d.Type.String(),
		d.compUnits,
		d.clockSpeed,
		d.Speed,
		d.maxWorkGroupSize,
	)
}

// Query compute capabilities.
func (d *Device) detectCaps() error {
	// Theoretical device speed: compute units * 2ops/cycle * clock speed
	errCode := cl.GetDeviceInfo(d.Id, cl.DEVICE_MAX_COMPUTE_UNITS, 4, unsafe.Pointer(&d.compUnits), nil)
	if errCode != cl.SUCCESS {
		return errors.Errorf("opencl device (%s): could not query MAX_COMPUTE_UNITS (error: %s; code %d)", d.Name, ErrorName(errCode), errCode)
	}
	errCode = cl.GetDeviceInfo(d.Id, cl.DEVICE_MAX_CLOCK_FREQUENCY, 4, unsafe.Pointer(&d.clockSpeed), nil)
	if errCode != cl.SUCCESS {
		return errors.Errorf("opencl device (%s): could not query MAX_CLOCK_FREQUENCY (error: %s; code %d)", d.Name, ErrorName(errCode), errCode)
	}
	d.Speed = d.compUnits * d.clockSpeed / 1000

	errCode = cl.GetDeviceInfo(d.Id, cl.DEVICE_MAX_WORK_GROUP_SIZE, 8, unsafe.Pointer(&d.maxWorkGroupSize), nil)
	if errCode != cl.SUCCESS {
		return errors.Errorf("opencl device (%s): could not query MAX_WORK_GROUP_SIZE (error: %s; code %d)", d.Name, ErrorName(errCode), errCode)
	}
	return nil
}

// Return a textual description of an opencl error code.
func ErrorName(errCode cl.ErrorCode) string {
	if name, ok := errorNames[errCode]; ok {
		return name
	}
	return fmt.Sprintf("unknown error code %d", errCode)
}

var errorNames = map[cl.ErrorCode]string{
	0:   "SUCCESS",
	-1:  "DEVICE_NOT_FOUND",
	-2:  "DEVICE_NOT_AVAILABLE",
	-3:  "COMPILER_NOT_AVAILABLE",
	-4:  "MEM_OBJECT_ALLOCATION_FAILURE",
	-5:  "OUT_OF_RESOURCES",
	-6:  "OUT_OF_HOST_MEMORY",
	-7:  "PROFILING_INFO_NOT_AVAILABLE",
	-8:  "MEM_COPY_OVERLAP",
	-11: "BUILD_PROGRAM_FAILURE",
	-12: "MAP_FAILURE",
	-14: "EXEC_STATUS_ERROR_FOR_EVENTS_IN_WAIT_LIST",
	-30: "INVALID_VALUE",
	-33: "INVALID_DEVICE",
	-34: "INVALID_CONTEXT",
	-36: "INVALID_COMMAND_QUEUE",
	-38: "INVALID_MEM_OBJECT",
	-43: "INVALID_BUILD_OPTIONS",
	-44: "INVALID_PROGRAM",
	-45: "INVALID_PROGRAM_EXECUTABLE",
	-46: "INVALID_KERNEL_NAME",
	-48: "INVALID_KERNEL",
	-49: "INVALID_ARG_INDEX",
	-50: "INVALID_ARG_VALUE",
	-51: "INVALID_ARG_SIZE",
	-52: "INVALID_KERNEL_ARGS",
	-54: "INVALID_WORK_GROUP_SIZE",
	-55: "INVALID_WORK_ITEM_SIZE",
	-57: "INVALID_EVENT_WAIT_LIST",
	-58: "INVALID_EVENT",
	-59: "INVALID_OPERATION",
	-61: "INVALID_BUFFER_SIZE",
	-63: "INVALID_GLOBAL_WORK_SIZE",
}
