package cmd

import (
	"bytes"
	"image"
	"image/color"
	"os"
	"time"

	"github.com/kbiElude/Emerald-sub008/compute"
	"github.com/kbiElude/Emerald-sub008/kdtree"
	"github.com/kbiElude/Emerald-sub008/types"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
	"golang.org/x/image/tiff"
)

// Render a depth map of a kd-tree file by casting one primary ray per pixel.
func RenderDepth(ctx *cli.Context) error {
	setupLogging(ctx)

	if ctx.NArg() != 1 {
		return errors.New("missing kd-tree file argument")
	}

	width, height := ctx.Int("width"), ctx.Int("height")
	if width <= 0 || height <= 0 {
		return errors.Errorf("invalid frame dimensions %dx%d", width, height)
	}

	cam := camera{up: types.XYZ(0, 1, 0), fovDeg: float32(ctx.Float64("fov"))}
	var err error
	if cam.eye, err = parseVec3(ctx.String("eye")); err != nil {
		return err
	}
	if cam.target, err = parseVec3(ctx.String("target")); err != nil {
		return err
	}
	corner, colStep, rowStep, err := cam.frame(width, height)
	if err != nil {
		return err
	}

	computeCtx, closeCtx, err := newComputeContext(ctx)
	if err != nil {
		return err
	}
	defer closeCtx()
	logger.Noticef("using compute device %q", computeCtx.Name())

	tree, err := kdtree.NewFromFile(computeCtx, ctx.Args().First())
	if err != nil {
		return err
	}
	defer tree.Release()

	executorID, err := registerExecutors(tree, ctx.String("executors"), ctx.String("executor"))
	if err != nil {
		return err
	}

	// One origin per row; every row casts width rays.
	origins := make([]types.Vec4, height)
	for i := range origins {
		origins[i] = cam.eye.Vec4(1)
	}

	dirBuf, err := computeCtx.NewBufferFromData("frame directions", kdtree.EncodeVec4s([]types.Vec4{corner.Vec4(0), colStep.Vec4(0), rowStep.Vec4(0)}), compute.MemReadOnly)
	if err != nil {
		return err
	}
	defer dirBuf.Release()

	resultBuf, err := computeCtx.NewBuffer("depth", 4*width*height, compute.MemWriteOnly)
	if err != nil {
		return err
	}
	defer resultBuf.Release()

	start := time.Now()
	err = tree.IntersectRays(kdtree.IntersectRequest{
		Executor:    executorID,
		RayCount:    width,
		Origins:     origins,
		Directions:  dirBuf,
		Results:     resultBuf,
		FindClosest: true,
		Progress: func(done, total int) bool {
			if done%64 == 0 || done == total {
				logger.Infof("traced %d/%d rows", done, total)
			}
			return true
		},
	})
	if err != nil {
		return err
	}
	logger.Noticef("traced %d rays in %d ms", width*height, time.Since(start).Nanoseconds()/1e6)

	raw := make([]byte, 4*width*height)
	if err = resultBuf.Read(0, raw); err != nil {
		return err
	}

	outFile := ctx.String("out")
	f, err := os.Create(outFile)
	if err != nil {
		return err
	}
	if err = tiff.Encode(f, depthImage(raw, width, height), &tiff.Options{Compression: tiff.Deflate}); err != nil {
		f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}

	logger.Noticef("wrote depth map to %s", outFile)
	return nil
}

// Register the executor named by executorName. Executors are loaded from
// the yaml file at configFile when one is given; otherwise the built-in
// pinhole executor is used.
func registerExecutors(tree *kdtree.Tree, configFile, executorName string) (kdtree.ExecutorID, error) {
	if configFile == "" {
		if executorName != "" && executorName != "pinhole" {
			return -1, errors.Errorf("unknown executor %q; no executor file supplied", executorName)
		}
		return tree.AddExecutor(pinholeExecutorConfig())
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return -1, err
	}
	configs, err := kdtree.LoadExecutorConfigs(bytes.NewReader(data))
	if err != nil {
		return -1, err
	}

	for _, cfg := range configs {
		if cfg.Name != executorName {
			continue
		}
		// The frame direction buffer only holds the camera basis, so the
		// executor must generate its own directions from it. Host contexts
		// cannot run the OpenCL snippet and fall back to the pinhole hook.
		if cfg.RayDirectionCode == "" {
			return -1, errors.Errorf("executor %q does not define ray_direction_code", cfg.Name)
		}
		cfg.HostHooks.RayDirection = pinholeRayDirection
		logger.Infof("using executor %q from %s", cfg.Name, configFile)
		return tree.AddExecutor(cfg)
	}
	return -1, errors.Errorf("executor %q not found in %s", executorName, configFile)
}

// Convert hit distances into a 16-bit grayscale image. Closer hits are
// brighter; misses are black.
func depthImage(raw []byte, width, height int) *image.Gray16 {
	depths := kdtree.DecodeFloat32s(raw[:4*width*height])
	var maxDepth float32
	for _, d := range depths {
		if d > maxDepth {
			maxDepth = d
		}
	}

	img := image.NewGray16(image.Rect(0, 0, width, height))
	for i, d := range depths {
		if d < 0 || maxDepth == 0 {
			continue
		}
		shade := 1 - 0.9*d/maxDepth
		img.SetGray16(i%width, i/width, color.Gray16{Y: uint16(shade * 65535)})
	}
	return img
}
