// Command wasmigo is a thin CLI front-end over the wasmi package: compile a
// module, instantiate it, and call an exported function, with flags for
// fuel, feature toggles, and trap-backtrace rendering. It is intentionally
// outside the core module's scope (spec §1) — deleting this directory would
// not change what any exported package does.
package main

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/wasmi-go/wasmi/cmd/wasmigo/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		logrus.WithError(err).Error("wasmigo failed")
		os.Exit(1)
	}
}
