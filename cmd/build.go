package cmd

import (
	"path/filepath"
	"strings"

	"github.com/kbiElude/Emerald-sub008/kdtree"
	"github.com/kbiElude/Emerald-sub008/mesh"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
)

// Build kd-trees for a list of wavefront obj files.
func BuildTree(ctx *cli.Context) error {
	setupLogging(ctx)

	if ctx.NArg() == 0 {
		return errors.New("missing mesh file argument")
	}

	opts := buildOptions(ctx)
	if err := opts.Validate(); err != nil {
		return err
	}

	for idx := 0; idx < ctx.NArg(); idx++ {
		meshFile := ctx.Args().Get(idx)
		if !strings.HasSuffix(meshFile, ".obj") {
			logger.Warningf("skipping unsupported file %s", meshFile)
			continue
		}

		logger.Noticef("parsing mesh: %s", meshFile)
		m, err := mesh.ReadWavefront(meshFile)
		if err != nil {
			return err
		}

		logger.Noticef("building kd-tree over %d triangles (%d unique vertices)", len(m.Triangles()), len(m.Vertices()))
		tree, err := kdtree.NewFromMesh(nil, m, opts)
		if err != nil {
			return err
		}

		logger.Noticef("kd-tree information:\n%s", tree.Stats().Table())

		outFile := ctx.String("out")
		if outFile == "" || ctx.NArg() > 1 {
			outFile = strings.TrimSuffix(filepath.Base(meshFile), ".obj") + ".kdtree"
		}
		if err = tree.Save(outFile); err != nil {
			return err
		}
	}

	return nil
}

func buildOptions(ctx *cli.Context) kdtree.BuildOptions {
	return kdtree.BuildOptions{
		MaxTrianglesPerLeaf:     ctx.Int("max-leaf-triangles"),
		MinLeafVolumeMultiplier: float32(ctx.Float64("min-leaf-volume")),
	}
}
