package wasm

import "github.com/wasmi-go/wasmi/internal/leb128"

// executeConstExpressionUint64 evaluates a global/element/data constant
// expression to its raw 64-bit encoding. A global.get index selects from
// imported first and then from own, the module's own globals built so far;
// an index past both yields 0. Only the leading instruction (expr.Opcode
// and its immediate) is evaluated: extended-const arithmetic after it is
// not applied.
func executeConstExpressionUint64(imported, own []*GlobalInstance, expr ConstantExpression) uint64 {
	switch expr.Opcode {
	case OpcodeI32Const:
		v, _, _ := leb128.DecodeInt32(expr.Data, 0)
		return uint64(uint32(v))
	case OpcodeI64Const:
		v, _, _ := leb128.DecodeInt64(expr.Data, 0)
		return uint64(v)
	case OpcodeF32Const:
		v, _, _ := leb128.DecodeFloat32(expr.Data, 0)
		return uint64(v)
	case OpcodeF64Const:
		v, _, _ := leb128.DecodeFloat64(expr.Data, 0)
		return v
	case OpcodeGlobalGet:
		id, _, _ := leb128.DecodeUint32(expr.Data, 0)
		if int(id) < len(imported) {
			return imported[id].Val
		}
		idx := int(id) - len(imported)
		if idx >= 0 && idx < len(own) {
			return own[idx].Val
		}
		return 0
	case OpcodeRefNull:
		return 0
	}
	return 0
}
