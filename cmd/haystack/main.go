// Command haystack turns a Find My public key into an offline-finding
// advertisement and broadcasts it from a local Bluetooth adapter.
package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/haystackgo/haystack"
)

// Exit codes.
const (
	exitFailure          = 1
	exitKeyUnavailable   = 2
	exitRadioUnavailable = 3
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "haystack: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func newApp() *cli.App {
	app := cli.NewApp()

	app.Name = "haystack"
	app.Usage = "Broadcast a Find My offline-finding advertisement"
	app.Version = "0.1.0"
	app.Action = cli.ShowAppHelp
	app.Flags = []cli.Flag{flgConfig, flgLogLevel, flgLogFormat}

	app.Commands = []cli.Command{
		{
			Name:    "advertise",
			Aliases: []string{"a"},
			Usage:   "Load the key and advertise until interrupted",
			Action:  advertise,
			Flags: append(keyFlags(),
				flgBackend, flgAdapter, flgInterval, flgBattery),
		},
		{
			Name:    "show",
			Aliases: []string{"s"},
			Usage:   "Print the address and payload derived from the key",
			Action:  show,
			Flags:   append(keyFlags(), flgBattery),
		},
		{
			Name:   "nvs",
			Usage:  "Write a Zephyr settings partition holding the key",
			Action: nvs,
			Flags: append(keyFlags(),
				flgFormat, flgOutput, flgOffset, flgSectors),
		},
	}
	return app
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, haystack.ErrKeyUnavailable):
		return exitKeyUnavailable
	case errors.Is(err, haystack.ErrRadioUnavailable):
		return exitRadioUnavailable
	}
	return exitFailure
}
