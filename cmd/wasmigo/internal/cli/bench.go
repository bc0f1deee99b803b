package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/wasmi-go/wasmi"
)

func newBenchCommand() *cobra.Command {
	var invoke string
	var iterations int

	cmd := &cobra.Command{
		Use:   "bench <module.wasm>",
		Short: "Call an exported function repeatedly and report wall-clock time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			module, err := loadModule(args[0])
			if err != nil {
				return err
			}
			engine := wasmi.NewEngine(wasmi.NewRuntimeConfig())
			compiled, err := engine.Compile(module)
			if err != nil {
				return err
			}
			store := engine.NewStore(nil)
			instance, err := wasmi.NewInstance(cmd.Context(), store, compiled, "main")
			if err != nil {
				return renderTrap(err)
			}
			fn := instance.Func(invoke)
			if fn == nil {
				return fmt.Errorf("wasmigo: %q exports no function named %q", args[0], invoke)
			}

			start := time.Now()
			for i := 0; i < iterations; i++ {
				if _, err := fn.Call(context.Background()); err != nil {
					return renderTrap(err)
				}
			}
			elapsed := time.Since(start)
			logrus.WithField("iterations", iterations).
				WithField("total", elapsed).
				WithField("per_call", elapsed/time.Duration(iterations)).
				Info("bench complete")
			return nil
		},
	}
	cmd.Flags().StringVar(&invoke, "invoke", "_start", "exported function to call")
	cmd.Flags().IntVar(&iterations, "iterations", 1000, "number of calls to time")
	return cmd
}
