//go:build opencl

package cmd

import (
	"bytes"
	"fmt"

	"github.com/kbiElude/Emerald-sub008/compute"
	"github.com/kbiElude/Emerald-sub008/compute/cpu"
	"github.com/kbiElude/Emerald-sub008/compute/opencl"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
)

// Create a compute context on the first opencl device whose name contains
// the device flag value. The "host" device selects the native Go backend.
func newComputeContext(ctx *cli.Context) (compute.Context, func(), error) {
	deviceName := ctx.String("device")
	if deviceName == "host" {
		return cpu.NewContext(ctx.Int("work-group-size")), func() {}, nil
	}

	devices, err := opencl.SelectDevices(opencl.AllDevices, deviceName)
	if err != nil {
		return nil, nil, err
	}
	if len(devices) == 0 {
		return nil, nil, errors.Errorf("no opencl device matches %q", deviceName)
	}

	clCtx, err := opencl.NewContext(devices[0])
	if err != nil {
		return nil, nil, err
	}
	return clCtx, clCtx.Release, nil
}

// List available opencl devices.
func ListDevices(ctx *cli.Context) error {
	setupLogging(ctx)

	platforms, err := opencl.GetPlatformInfo()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("\nSystem provides %d opencl platform(s):\n\n", len(platforms)))
	for pIdx, platformInfo := range platforms {
		buf.WriteString(fmt.Sprintf("[Platform %02d]\n%s\n", pIdx, platformInfo.String()))
	}

	logger.Notice(buf.String())
	return nil
}
