package main

import (
	"fmt"
	"os"

	"github.com/kbiElude/Emerald-sub008/cmd"
	"github.com/urfave/cli"
)

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "kdtree"
	app.Usage = "build kd-trees over triangle meshes and cast rays against them"
	app.Version = "0.0.1"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "build",
			Usage: "build a kd-tree for one or more meshes",
			Description: `
Parse a triangle mesh from a wavefront obj file, build a kd-tree over its
triangles and write the flattened tree together with the mesh data to a
.kdtree file which can be supplied to the other commands.`,
			ArgsUsage: "mesh_file1.obj mesh_file2.obj ...",
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "max-leaf-triangles",
					Value: 8,
					Usage: "nodes with fewer triangles become leafs",
				},
				cli.Float64Flag{
					Name:  "min-leaf-volume",
					Value: 0.0001,
					Usage: "nodes smaller than this fraction of the scene volume become leafs",
				},
				cli.StringFlag{
					Name:  "out, o",
					Usage: "output file; ignored when building more than one mesh",
				},
			},
			Action: cmd.BuildTree,
		},
		{
			Name:      "info",
			Usage:     "print kd-tree statistics",
			ArgsUsage: "tree.kdtree",
			Action:    cmd.ShowTreeInfo,
		},
		{
			Name:      "preview",
			Usage:     "export kd-tree leaf boxes as a wavefront obj line set",
			ArgsUsage: "tree.kdtree",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "out, o",
					Usage: "output file",
				},
			},
			Action: cmd.ExportPreview,
		},
		{
			Name:   "list-devices",
			Usage:  "list available opencl devices",
			Action: cmd.ListDevices,
		},
		{
			Name:  "depth",
			Usage: "render a depth map",
			Description: `
Cast one primary ray per pixel from a pinhole camera and store the distance
to the closest hit as a 16-bit grayscale tiff image.`,
			ArgsUsage: "tree.kdtree",
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "width",
					Value: 512,
					Usage: "frame width",
				},
				cli.IntFlag{
					Name:  "height",
					Value: 512,
					Usage: "frame height",
				},
				cli.Float64Flag{
					Name:  "fov",
					Value: 45,
					Usage: "vertical field of view in degrees",
				},
				cli.StringFlag{
					Name:  "eye",
					Value: "0,0,5",
					Usage: "camera position as x,y,z",
				},
				cli.StringFlag{
					Name:  "target",
					Value: "0,0,0",
					Usage: "camera look-at point as x,y,z",
				},
				cli.StringFlag{
					Name:  "device, d",
					Usage: "use the first opencl device whose name contains this value; \"host\" selects the native backend",
				},
				cli.IntFlag{
					Name:  "work-group-size",
					Value: 64,
					Usage: "host backend work-group size",
				},
				cli.StringFlag{
					Name:  "executors",
					Usage: "yaml file with executor definitions",
				},
				cli.StringFlag{
					Name:  "executor",
					Value: "pinhole",
					Usage: "executor used to generate rays",
				},
				cli.StringFlag{
					Name:  "out, o",
					Value: "depth.tif",
					Usage: "image filename for the depth map",
				},
			},
			Action: cmd.RenderDepth,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
