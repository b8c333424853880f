package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"

	"fieldops/internal/cli"
)

func main() {
	deps, err := cli.DefaultDeps()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := cli.RootCmd(deps).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.New(color.FgRed).Sprint("error: ")+err.Error())
		os.Exit(1)
	}
}
