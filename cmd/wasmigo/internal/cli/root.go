// Package cli builds wasmigo's command tree with cobra, the same library
// grafana-k6 uses for its own "k6 run"/"k6 archive" subcommands.
package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCommand assembles the wasmigo command tree: run, compile, bench.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "wasmigo",
		Short:         "wasmigo runs and inspects WebAssembly modules with the wasmi interpreter",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCommand())
	root.AddCommand(newCompileCommand())
	root.AddCommand(newBenchCommand())
	return root
}
