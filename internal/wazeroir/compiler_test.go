package wazeroir

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmi-go/wasmi/internal/wasm"
)

var i32i32ToI32 = &wasm.FunctionType{
	Params:  []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32},
	Results: []wasm.ValueType{wasm.ValueTypeI32},
}

var i32ToI32 = &wasm.FunctionType{
	Params:  []wasm.ValueType{wasm.ValueTypeI32},
	Results: []wasm.ValueType{wasm.ValueTypeI32},
}

func compile(t *testing.T, sig *wasm.FunctionType, body []byte) *CompiledBody {
	t.Helper()
	cb, err := Compile(&wasm.Module{}, sig, nil, body)
	require.NoError(t, err)
	return cb
}

// ops collects just the Op of each instruction, for shape assertions that
// don't care about exact register numbers. A body's final end compiles like
// `return`, so every shape ends with OpCopy per result and then OpReturn.
func ops(cb *CompiledBody) []Op {
	out := make([]Op, len(cb.Instructions))
	for i, ins := range cb.Instructions {
		out[i] = ins.Op
	}
	return out
}

func TestCompile_constFold(t *testing.T) {
	// i32.const 2; i32.const 3; i32.add; end -- both operands are constant,
	// so this should fold to a single OpConst with no OpI32Add emitted.
	body := []byte{
		byte(wasm.OpcodeI32Const), 2,
		byte(wasm.OpcodeI32Const), 3,
		byte(wasm.OpcodeI32Add),
		byte(wasm.OpcodeEnd),
	}
	cb := compile(t, &wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeI32}}, body)
	require.Equal(t, []Op{OpConst, OpCopy, OpReturn}, ops(cb))
	require.Equal(t, []uint64{5}, cb.ConstantPool)
}

// TestCompile_eqzUnary guards against a regression where translateCompare
// popped two operands for i32.eqz/i64.eqz, which are unary in the bytecode:
// doing so would desynchronize the operand stack for every later instruction
// in the function.
func TestCompile_eqzUnary(t *testing.T) {
	// local.get 0; i32.eqz; local.get 0; i32.add; end
	//
	// If eqz wrongly consumed two operands, the second local.get's operand
	// would be popped out from under the trailing add along with eqz's
	// result, and the add would read the wrong registers (or the compiler
	// would panic popping an empty stack).
	body := []byte{
		byte(wasm.OpcodeLocalGet), 0,
		byte(wasm.OpcodeI32Eqz),
		byte(wasm.OpcodeLocalGet), 0,
		byte(wasm.OpcodeI32Add),
		byte(wasm.OpcodeEnd),
	}
	cb := compile(t, i32ToI32, body)
	require.Equal(t, []Op{OpI32Eqz, OpI32Add, OpCopy, OpReturn}, ops(cb))

	add := cb.Instructions[1]
	// The add's second operand must be local 0 itself (register 0), not
	// some register corrupted by eqz's popping.
	require.Equal(t, uint32(0), add.Src2)
}

func TestCompile_eqzConstFold(t *testing.T) {
	body := []byte{
		byte(wasm.OpcodeI32Const), 0,
		byte(wasm.OpcodeI32Eqz),
		byte(wasm.OpcodeEnd),
	}
	cb := compile(t, &wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeI32}}, body)
	require.Equal(t, []Op{OpConst, OpCopy, OpReturn}, ops(cb))
	require.Equal(t, []uint64{1}, cb.ConstantPool)
}

// TestCompile_fuseAndEqz checks the fused `(a & b) == 0` form, emitted as a
// single OpCmpAndEqz in place of a separate and+eqz pair.
func TestCompile_fuseAndEqz(t *testing.T) {
	body := []byte{
		byte(wasm.OpcodeLocalGet), 0,
		byte(wasm.OpcodeLocalGet), 1,
		byte(wasm.OpcodeI32And),
		byte(wasm.OpcodeI32Eqz),
		byte(wasm.OpcodeEnd),
	}
	cb := compile(t, i32i32ToI32, body)
	require.Equal(t, []Op{OpCmpAndEqz, OpCopy, OpReturn}, ops(cb))
	require.Equal(t, uint32(0), cb.Instructions[0].Src1)
	require.Equal(t, uint32(1), cb.Instructions[0].Src2)
}

// TestCompile_fuseDoubleEqzIsNez checks that eqz-of-eqz collapses to the Nez
// form rather than re-fusing into a second, nonsensical eqz-of-eqz op.
func TestCompile_fuseDoubleEqzIsNez(t *testing.T) {
	body := []byte{
		byte(wasm.OpcodeLocalGet), 0,
		byte(wasm.OpcodeLocalGet), 1,
		byte(wasm.OpcodeI32And),
		byte(wasm.OpcodeI32Eqz),
		byte(wasm.OpcodeI32Eqz),
		byte(wasm.OpcodeEnd),
	}
	cb := compile(t, i32i32ToI32, body)
	require.Equal(t, []Op{OpCmpAndNez, OpCopy, OpReturn}, ops(cb))
}

// TestCompile_noFuseWhenComparandNotZero guards the bug where a trailing
// and/or/xor followed by a comparison against a non-zero value was
// incorrectly fused into an eqz/nez test, silently discarding the real
// comparand. i32.eqz only ever compares against 0, so this must compile
// straight through as and + eq, never touching the fuse path at all.
func TestCompile_noFuseWhenComparandNotZero(t *testing.T) {
	body := []byte{
		byte(wasm.OpcodeLocalGet), 0,
		byte(wasm.OpcodeLocalGet), 1,
		byte(wasm.OpcodeI32And),
		byte(wasm.OpcodeI32Const), 5,
		byte(wasm.OpcodeI32Eq),
		byte(wasm.OpcodeEnd),
	}
	cb := compile(t, i32i32ToI32, body)
	require.Equal(t, []Op{OpI32And, OpConst, OpI32Eq, OpCopy, OpReturn}, ops(cb))
	eq := cb.Instructions[2]
	require.Equal(t, cb.Instructions[0].Dst, eq.Src1)
	require.Equal(t, cb.ConstantPool[cb.Instructions[1].Imm], uint64(5))
}

// TestCompile_fuseOrEqViaBinaryZero checks that the binary form
// `i32.eq (a | b) 0` fuses exactly like the unary `i32.eqz (a | b)` does.
func TestCompile_fuseOrEqViaBinaryZero(t *testing.T) {
	body := []byte{
		byte(wasm.OpcodeLocalGet), 0,
		byte(wasm.OpcodeLocalGet), 1,
		byte(wasm.OpcodeI32Or),
		byte(wasm.OpcodeI32Const), 0,
		byte(wasm.OpcodeI32Eq),
		byte(wasm.OpcodeEnd),
	}
	cb := compile(t, i32i32ToI32, body)
	require.Equal(t, []Op{OpCmpOrEqz, OpCopy, OpReturn}, ops(cb))
	require.Equal(t, uint32(0), cb.Instructions[0].Src1)
	require.Equal(t, uint32(1), cb.Instructions[0].Src2)
}

// TestCompile_fuseXorNeViaBinaryZero checks that the binary form
// `i32.ne (a ^ b) 0` fuses to the Nez counterpart, not Eqz: ne-vs-zero means
// "is nonzero", the opposite sense from eq-vs-zero.
func TestCompile_fuseXorNeViaBinaryZero(t *testing.T) {
	body := []byte{
		byte(wasm.OpcodeLocalGet), 0,
		byte(wasm.OpcodeLocalGet), 1,
		byte(wasm.OpcodeI32Xor),
		byte(wasm.OpcodeI32Const), 0,
		byte(wasm.OpcodeI32Ne),
		byte(wasm.OpcodeEnd),
	}
	cb := compile(t, i32i32ToI32, body)
	require.Equal(t, []Op{OpCmpXorNez, OpCopy, OpReturn}, ops(cb))
}

// TestCompile_fuseAndEqViaBinaryZeroOnLeft checks the comparand-on-the-left
// form `i64.eq 0 (a & b)` fuses the same way as comparand-on-the-right.
func TestCompile_fuseAndEqViaBinaryZeroOnLeft(t *testing.T) {
	i64i64ToI32 := &wasm.FunctionType{
		Params:  []wasm.ValueType{wasm.ValueTypeI64, wasm.ValueTypeI64},
		Results: []wasm.ValueType{wasm.ValueTypeI32},
	}
	body := []byte{
		byte(wasm.OpcodeI64Const), 0,
		byte(wasm.OpcodeLocalGet), 0,
		byte(wasm.OpcodeLocalGet), 1,
		byte(wasm.OpcodeI64And),
		byte(wasm.OpcodeI64Eq),
		byte(wasm.OpcodeEnd),
	}
	cb := compile(t, i64i64ToI32, body)
	require.Equal(t, []Op{OpCmpAndEqz, OpCopy, OpReturn}, ops(cb))
}

// TestCompile_noFuseBinaryZeroWhenComparandNotZeroConst guards the binary
// fusion path the same way TestCompile_noFuseWhenComparandNotZero guards the
// unary one: a non-zero comparand must never trigger fusion.
func TestCompile_noFuseBinaryZeroWhenComparandNotZeroConst(t *testing.T) {
	body := []byte{
		byte(wasm.OpcodeLocalGet), 0,
		byte(wasm.OpcodeLocalGet), 1,
		byte(wasm.OpcodeI32And),
		byte(wasm.OpcodeI32Const), 5,
		byte(wasm.OpcodeI32Ne),
		byte(wasm.OpcodeEnd),
	}
	cb := compile(t, i32i32ToI32, body)
	require.Equal(t, []Op{OpI32And, OpConst, OpI32Ne, OpCopy, OpReturn}, ops(cb))
}

func TestCompile_localTee(t *testing.T) {
	// local.get 0; local.tee 0; end -- tee writes back to the local's own
	// register and leaves it on the stack, so no extra temp is needed.
	body := []byte{
		byte(wasm.OpcodeLocalGet), 0,
		byte(wasm.OpcodeLocalTee), 0,
		byte(wasm.OpcodeEnd),
	}
	cb := compile(t, i32ToI32, body)
	require.Equal(t, []Op{OpCopy, OpCopy, OpReturn}, ops(cb))
	require.Equal(t, uint32(0), cb.Instructions[0].Dst)
}

func TestCompile_br_if(t *testing.T) {
	// block / local.get 0 / br_if 0 / i32.const 9 / end -- exercises the
	// BranchTargets side table and leaves the br_if's own Op intact.
	body := []byte{
		byte(wasm.OpcodeBlock), 0x40,
		byte(wasm.OpcodeLocalGet), 0,
		byte(wasm.OpcodeBrIf), 0,
		byte(wasm.OpcodeEnd),
		byte(wasm.OpcodeI32Const), 9,
		byte(wasm.OpcodeEnd),
	}
	cb := compile(t, &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32}}, body)
	require.Contains(t, ops(cb), OpBrIf)
	require.NotEmpty(t, cb.BranchTargets)
}
