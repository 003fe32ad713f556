package cmd

import (
	"fmt"

	"github.com/kbiElude/Emerald-sub008/kdtree"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
)

// Display information about a kd-tree file.
func ShowTreeInfo(ctx *cli.Context) error {
	setupLogging(ctx)

	if ctx.NArg() != 1 {
		return errors.New("missing kd-tree file argument")
	}

	tree, err := kdtree.NewFromFile(nil, ctx.Args().First())
	if err != nil {
		return err
	}

	opts := tree.Options()
	bbox := tree.BoundingBox()
	logger.Noticef(
		"kd-tree %s\nmax triangles per leaf: %d\nmin leaf volume multiplier: %g\nbounding box: [%v, %v]\n%s",
		ctx.Args().First(),
		opts.MaxTrianglesPerLeaf,
		opts.MinLeafVolumeMultiplier,
		fmt.Sprint(bbox.Min),
		fmt.Sprint(bbox.Max),
		tree.Stats().Table(),
	)
	return nil
}
