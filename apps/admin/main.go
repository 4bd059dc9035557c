package main

import (
	"os"

	"github.com/trezcool/onhold/apps/di"
	"github.com/trezcool/onhold/core"
)

func main() {
	conf := core.NewConfig()
	logger := di.NewLogger(conf, "ADMIN : ")

	cli := newCommandLine(conf, logger, os.Stdout)
	err := cli.run(os.Args)
	cli.close()
	if err != nil {
		if err != errHelp {
			logger.Error("command failed", err)
		}
		os.Exit(1)
	}
}
