// Command transplantctl manages the organ waitlist, registers donor organs,
// allocates them and serves the HTTP API.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"
)

var exitFunc = os.Exit

func main() {
	exitFunc(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if err := newApp(stdout, stderr).Run(args); err != nil {
		_, _ = fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	return 0
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "transplantctl",
		Usage:     "Organ waitlist and allocation tool",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				EnvVars: []string{"TRANSPLANTCORE_CONFIG"},
				Usage:   "path to a YAML config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override log.level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Value:   formatTable,
				Usage:   "output format: table, json or yaml",
			},
		},
		Commands: []*cli.Command{
			enqueueCmd,
			listCmd,
			removeCmd,
			popCmd,
			reprioritizeCmd,
			positionCmd,
			registerOrganCmd,
			organsCmd,
			matchCmd,
			allocateCmd,
			allocationsCmd,
			exportCmd,
			demoCmd,
			serveCmd,
		},
		ExitErrHandler: func(*cli.Context, error) {},
	}
}
