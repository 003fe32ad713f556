package cmd

import (
	"github.com/kbiElude/Emerald-sub008/log"
	"github.com/urfave/cli"
)

var logger = log.New("kdtree")

func setupLogging(ctx *cli.Context) {
	if ctx.GlobalBool("v") {
		log.SetLevel(log.Info)
	}

	if ctx.GlobalBool("vv") {
		log.SetLevel(log.Debug)
	}
}
