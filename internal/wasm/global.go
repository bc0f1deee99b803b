package wasm

import (
	"context"

	"github.com/wasmi-go/wasmi/api"
)

// GlobalInstance is a Store-confined global variable. Val holds the raw
// 64-bit encoding regardless of ValueType, same convention as the value
// stack (internal/wazeroir) uses, so reading a global and pushing it is a
// plain copy with no per-type branching in the hot path.
type GlobalInstance struct {
	GType *GlobalType
	Val   uint64
}

// Type implements api.Global.
func (g *GlobalInstance) Type() ValueType { return g.GType.ValType }

func (g *GlobalInstance) Get(context.Context) uint64 { return g.Val }

func (g *GlobalInstance) Set(ctx context.Context, v uint64) { g.Val = v }

func (g *GlobalInstance) String() string {
	return api.ValueTypeName(g.GType.ValType)
}
