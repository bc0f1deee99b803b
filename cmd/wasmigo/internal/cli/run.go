package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/wasmi-go/wasmi"
)

func newRunCommand() *cobra.Command {
	var fuel uint64
	var invoke string
	var rawArgs []string

	cmd := &cobra.Command{
		Use:   "run <module.wasm>",
		Short: "Instantiate a module and call one of its exported functions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			module, err := loadModule(cmdArgs[0])
			if err != nil {
				return err
			}

			config := wasmi.NewRuntimeConfig()
			if fuel > 0 {
				config = config.WithConsumeFuel(true)
			}
			engine := wasmi.NewEngine(config)

			compiled, err := engine.Compile(module)
			if err != nil {
				return err
			}

			store := engine.NewStore(nil)
			if fuel > 0 {
				store.SetFuel(fuel)
			}

			instance, err := wasmi.NewInstance(cmd.Context(), store, compiled, "main")
			if err != nil {
				return renderTrap(err)
			}

			fn := instance.Func(invoke)
			if fn == nil {
				return fmt.Errorf("wasmigo: %q exports no function named %q", cmdArgs[0], invoke)
			}

			args := make([]uint64, len(rawArgs))
			for i, a := range rawArgs {
				v, err := strconv.ParseUint(a, 10, 64)
				if err != nil {
					return fmt.Errorf("wasmigo: --arg %q: %w", a, err)
				}
				args[i] = v
			}

			results, err := fn.Call(context.Background(), args...)
			if err != nil {
				return renderTrap(err)
			}
			logrus.WithField("results", results).Info("call returned")
			return nil
		},
	}
	cmd.Flags().Uint64Var(&fuel, "fuel", 0, "fuel budget; 0 disables metering")
	cmd.Flags().StringVar(&invoke, "invoke", "_start", "exported function to call")
	cmd.Flags().StringSliceVar(&rawArgs, "arg", nil, "raw uint64-encoded argument, repeatable")
	return cmd
}
