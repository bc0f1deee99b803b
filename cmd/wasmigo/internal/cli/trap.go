package cli

import (
	"errors"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/wasmi-go/wasmi"
)

// renderTrap reports a *wasmi.Trap with its code highlighted, colorized
// only when stderr is a terminal, the same isatty-gated check grafana-k6
// uses before assuming ANSI escapes are safe to emit.
func renderTrap(err error) error {
	var trap *wasmi.Trap
	if !errors.As(err, &trap) {
		return err
	}
	if isatty.IsTerminal(os.Stderr.Fd()) {
		red := color.New(color.FgRed, color.Bold).SprintFunc()
		return errors.New(red("trap: ") + trap.Error())
	}
	return trap
}
