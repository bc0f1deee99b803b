package wasmi

import (
	"errors"
	"fmt"

	"github.com/wasmi-go/wasmi/internal/wasmruntime"
)

// TrapCode classifies why execution stopped abnormally. It re-exports
// wasmruntime.TrapCode so callers of this package never need to import an
// internal package to inspect a Trap.
type TrapCode = wasmruntime.TrapCode

const (
	TrapCodeUnreachable                 = wasmruntime.TrapCodeUnreachable
	TrapCodeIntegerDivideByZero         = wasmruntime.TrapCodeIntegerDivideByZero
	TrapCodeIntegerOverflow             = wasmruntime.TrapCodeIntegerOverflow
	TrapCodeInvalidConversionToInteger  = wasmruntime.TrapCodeInvalidConversionToInteger
	TrapCodeOutOfBoundsMemoryAccess     = wasmruntime.TrapCodeOutOfBoundsMemoryAccess
	TrapCodeOutOfBoundsTableAccess      = wasmruntime.TrapCodeOutOfBoundsTableAccess
	TrapCodeUndefinedElement            = wasmruntime.TrapCodeUndefinedElement
	TrapCodeIndirectCallTypeMismatch    = wasmruntime.TrapCodeIndirectCallTypeMismatch
	TrapCodeStackOverflow               = wasmruntime.TrapCodeStackOverflow
	TrapCodeOutOfFuel                   = wasmruntime.TrapCodeOutOfFuel
	TrapCodeHostTrap                    = wasmruntime.TrapCodeHostTrap
)

// Trap is the spec §6 error carried out of Instance.New and Func.Call: a
// TrapCode plus the human-readable backtrace internal/wasmdebug accumulated
// while unwinding. The backtrace is rendered text (one frame's debug name
// and signature per line) rather than a structured slice of (instance,
// function_index, ir_offset) tuples; see DESIGN.md for why the fuller
// structured form wasn't built out this round.
type Trap struct {
	Code      TrapCode
	Message   string
	Backtrace string

	wrapped error
}

func (t *Trap) Error() string {
	if t.Backtrace == "" {
		return t.Message
	}
	return fmt.Sprintf("%s\n%s", t.Message, t.Backtrace)
}

// Unwrap lets errors.Is/As match against the underlying wasmruntime.Error
// (and, through it, the package-level wasmruntime.ErrRuntime* sentinels).
func (t *Trap) Unwrap() error { return t.wrapped }

// asTrap converts an error returned from the internal engine (either a bare
// *wasmruntime.Error or the wasmdebug-wrapped form carrying a backtrace)
// into the public *Trap type. Callers must only pass errors that are
// guaranteed to wrap a *wasmruntime.Error — Func.Call and a module's start
// function both only ever fail by panicking through wasmdebug, which always
// produces one. An error that doesn't wrap one (which should not happen on
// those paths) still needs a Code, so it gets TrapCodeHostTrap rather than
// the misleading zero value (TrapCodeUnreachable) a bare struct literal
// would produce; see wrapInstantiateError for errors that are NOT traps at
// all, such as instantiation-time link failures.
func asTrap(err error) *Trap {
	var rt *wasmruntime.Error
	if errors.As(err, &rt) {
		t := &Trap{Code: rt.Code, Message: rt.Error(), wrapped: rt}
		if full := err.Error(); full != rt.Error() {
			t.Backtrace = full[len(rt.Error()):]
		}
		return t
	}
	return &Trap{Code: wasmruntime.TrapCodeHostTrap, Message: err.Error(), wrapped: err}
}

// wrapInstantiateError classifies an error from wasm.Store.Instantiate or
// InstantiateHostModule. Per spec §7, link-time failures — import signature
// mismatch, global/table/memory mismatch, an out-of-bounds data or element
// segment, a duplicate module name — are a distinct error kind from runtime
// traps (LinkMismatch/SegmentOutOfBounds, not a TrapCode) and are returned
// unwrapped as a plain error. Only a failure that actually executed code,
// namely the module's start function trapping, panics through wasmdebug
// into a *wasmruntime.Error; that case alone becomes a *Trap.
func wrapInstantiateError(err error) error {
	if err == nil {
		return nil
	}
	var rt *wasmruntime.Error
	if errors.As(err, &rt) {
		return asTrap(err)
	}
	return err
}
