// Package wasmdebug builds human-readable backtraces out of the call frames
// live at the moment a trap unwinds, without depending on the engine
// packages (which depend on this one).
package wasmdebug

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wasmi-go/wasmi/api"
	"github.com/wasmi-go/wasmi/internal/wasmruntime"
)

// ErrorBuilder accumulates frames from the innermost outward as moduleEngine.Call
// unwinds its call stack after a recover(), then renders them into a single
// error that satisfies errors.Is against the originating wasmruntime.Error.
type ErrorBuilder struct {
	frames []string
}

// NewErrorBuilder returns an empty ErrorBuilder.
func NewErrorBuilder() *ErrorBuilder {
	return &ErrorBuilder{}
}

// AddFrame appends one call frame's description. Called innermost-first, as
// callEngine pops its frame stack.
func (b *ErrorBuilder) AddFrame(name string, paramTypes, resultTypes []api.ValueType) {
	b.frames = append(b.frames, fmt.Sprintf("\t%s%s", name, signatureString(paramTypes, resultTypes)))
}

func signatureString(paramTypes, resultTypes []api.ValueType) string {
	params := make([]string, len(paramTypes))
	for i, t := range paramTypes {
		params[i] = api.ValueTypeName(t)
	}
	results := make([]string, len(resultTypes))
	for i, t := range resultTypes {
		results[i] = api.ValueTypeName(t)
	}
	return fmt.Sprintf("(%s) (%s)", strings.Join(params, ", "), strings.Join(results, ", "))
}

// FromRecovered converts a value captured by recover() during moduleEngine.Call
// into the error returned to the embedder. If the recovered value is a
// *wasmruntime.Error (a trap), the backtrace accumulated so far is appended;
// any other recovered value is an internal invariant violation (a bug), and
// is re-panicked rather than misreported as a trap, per spec §7 ("nothing in
// the core panics on Wasm input; panics are reserved for internal invariant
// violations").
func (b *ErrorBuilder) FromRecovered(recovered interface{}) error {
	trap, ok := recovered.(*wasmruntime.Error)
	if !ok {
		if err, ok := recovered.(error); ok {
			panic(fmt.Errorf("BUG: unexpected panic during execution: %w\n%s", err, b.String()))
		}
		panic(recovered)
	}
	if len(b.frames) == 0 {
		return trap
	}
	return fmt.Errorf("%w\n%s", trap, b.String())
}

// String renders the accumulated frames, innermost first.
func (b *ErrorBuilder) String() string {
	return strings.Join(b.frames, "\n")
}

// errUnreachable re-exported for callers that want to match without
// depending on wasmruntime directly.
var errUnreachable = wasmruntime.ErrRuntimeUnreachable

// IsUnreachable reports whether err is (or wraps) the unreachable trap.
func IsUnreachable(err error) bool { return errors.Is(err, errUnreachable) }
