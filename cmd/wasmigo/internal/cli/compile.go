package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wasmi-go/wasmi"
	"github.com/wasmi-go/wasmi/api"
)

func newCompileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "compile <module.wasm>",
		Short: "Compile a module and list its exports without instantiating it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			module, err := loadModule(args[0])
			if err != nil {
				return err
			}
			engine := wasmi.NewEngine(wasmi.NewRuntimeConfig())
			if _, err := engine.Compile(module); err != nil {
				return err
			}
			fmt.Printf("%s: %d types, %d functions, %d exports\n",
				args[0], len(module.TypeSection), len(module.FunctionSection), len(module.ExportSection))
			for _, exp := range module.ExportSection {
				fmt.Printf("  %s %s\n", api.ExternTypeName(exp.Type), exp.Name)
			}
			return nil
		},
	}
}
