//go:build !opencl

package cmd

import (
	"github.com/kbiElude/Emerald-sub008/compute"
	"github.com/kbiElude/Emerald-sub008/compute/cpu"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
)

// Create a host compute context. Builds without opencl support ignore the
// device selection flags.
func newComputeContext(ctx *cli.Context) (compute.Context, func(), error) {
	if ctx.String("device") != "" {
		logger.Warningf("built without opencl support; ignoring device %q", ctx.String("device"))
	}
	return cpu.NewContext(ctx.Int("work-group-size")), func() {}, nil
}

// List available opencl devices.
func ListDevices(ctx *cli.Context) error {
	setupLogging(ctx)
	return errors.New("built without opencl support; rebuild with -tags opencl")
}
