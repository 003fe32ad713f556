package cmd

import (
	"os"
	"strings"

	"github.com/kbiElude/Emerald-sub008/kdtree"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
)

// Export the leaf boxes of a kd-tree as a wavefront obj line set.
func ExportPreview(ctx *cli.Context) error {
	setupLogging(ctx)

	if ctx.NArg() != 1 {
		return errors.New("missing kd-tree file argument")
	}
	treeFile := ctx.Args().First()

	tree, err := kdtree.NewFromFile(nil, treeFile)
	if err != nil {
		return err
	}

	outFile := ctx.String("out")
	if outFile == "" {
		outFile = strings.TrimSuffix(treeFile, ".kdtree") + "-preview.obj"
	}
	f, err := os.Create(outFile)
	if err != nil {
		return err
	}

	if err = tree.WritePreviewOBJ(f); err != nil {
		f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}

	logger.Noticef("wrote %d leaf box segments to %s", len(tree.PreviewLineData())/2, outFile)
	return nil
}
