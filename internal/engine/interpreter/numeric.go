package interpreter

import (
	"math"
	"math/bits"

	"github.com/wasmi-go/wasmi/internal/moremath"
	"github.com/wasmi-go/wasmi/internal/wasm"
	"github.com/wasmi-go/wasmi/internal/wasmruntime"
	"github.com/wasmi-go/wasmi/internal/wazeroir"
)

// execNumericOrMemAccess handles every Op not already dispatched inline in
// run: arithmetic, comparisons, conversions, and memory loads/stores. Split
// out because these cases share no control-flow state with the branch/call
// machinery above, just register reads and writes.
func (ce *callEngine) execNumericOrMemAccess(i wazeroir.Instruction, mod *wasm.ModuleInstance, reg func(uint32) uint64, setReg func(uint32, uint64)) {
	op := i.Op
	if isLoadOp(op) {
		ce.execLoad(i, mod, reg, setReg)
		return
	}
	if isStoreOp(op) {
		ce.execStore(i, mod, reg)
		return
	}

	a := reg(i.Src1)
	switch op {
	// i32 binops
	case wazeroir.OpI32Add:
		setReg(i.Dst, uint64(uint32(a)+uint32(reg(i.Src2))))
		return
	case wazeroir.OpI32Sub:
		setReg(i.Dst, uint64(uint32(a)-uint32(reg(i.Src2))))
		return
	case wazeroir.OpI32Mul:
		setReg(i.Dst, uint64(uint32(a)*uint32(reg(i.Src2))))
		return
	case wazeroir.OpI32DivS:
		x, y := int32(uint32(a)), int32(uint32(reg(i.Src2)))
		if y == 0 {
			panic(wasmruntime.ErrRuntimeIntegerDivideByZero)
		}
		if x == math.MinInt32 && y == -1 {
			panic(wasmruntime.ErrRuntimeIntegerOverflow)
		}
		setReg(i.Dst, uint64(uint32(x/y)))
		return
	case wazeroir.OpI32DivU:
		y := uint32(reg(i.Src2))
		if y == 0 {
			panic(wasmruntime.ErrRuntimeIntegerDivideByZero)
		}
		setReg(i.Dst, uint64(uint32(a)/y))
		return
	case wazeroir.OpI32RemS:
		x, y := int32(uint32(a)), int32(uint32(reg(i.Src2)))
		if y == 0 {
			panic(wasmruntime.ErrRuntimeIntegerDivideByZero)
		}
		if x == math.MinInt32 && y == -1 {
			setReg(i.Dst, 0)
			return
		}
		setReg(i.Dst, uint64(uint32(x%y)))
		return
	case wazeroir.OpI32RemU:
		y := uint32(reg(i.Src2))
		if y == 0 {
			panic(wasmruntime.ErrRuntimeIntegerDivideByZero)
		}
		setReg(i.Dst, uint64(uint32(a)%y))
		return
	case wazeroir.OpI32And:
		setReg(i.Dst, uint64(uint32(a)&uint32(reg(i.Src2))))
		return
	case wazeroir.OpI32Or:
		setReg(i.Dst, uint64(uint32(a)|uint32(reg(i.Src2))))
		return
	case wazeroir.OpI32Xor:
		setReg(i.Dst, uint64(uint32(a)^uint32(reg(i.Src2))))
		return
	case wazeroir.OpI32Shl:
		setReg(i.Dst, uint64(uint32(a)<<(uint32(reg(i.Src2))%32)))
		return
	case wazeroir.OpI32ShrS:
		setReg(i.Dst, uint64(uint32(int32(uint32(a))>>(uint32(reg(i.Src2))%32))))
		return
	case wazeroir.OpI32ShrU:
		setReg(i.Dst, uint64(uint32(a)>>(uint32(reg(i.Src2))%32)))
		return
	case wazeroir.OpI32Rotl:
		setReg(i.Dst, uint64(bits.RotateLeft32(uint32(a), int(uint32(reg(i.Src2))%32))))
		return
	case wazeroir.OpI32Rotr:
		setReg(i.Dst, uint64(bits.RotateLeft32(uint32(a), -int(uint32(reg(i.Src2))%32))))
		return

	// i64 binops
	case wazeroir.OpI64Add:
		setReg(i.Dst, a+reg(i.Src2))
		return
	case wazeroir.OpI64Sub:
		setReg(i.Dst, a-reg(i.Src2))
		return
	case wazeroir.OpI64Mul:
		setReg(i.Dst, a*reg(i.Src2))
		return
	case wazeroir.OpI64DivS:
		x, y := int64(a), int64(reg(i.Src2))
		if y == 0 {
			panic(wasmruntime.ErrRuntimeIntegerDivideByZero)
		}
		if x == math.MinInt64 && y == -1 {
			panic(wasmruntime.ErrRuntimeIntegerOverflow)
		}
		setReg(i.Dst, uint64(x/y))
		return
	case wazeroir.OpI64DivU:
		y := reg(i.Src2)
		if y == 0 {
			panic(wasmruntime.ErrRuntimeIntegerDivideByZero)
		}
		setReg(i.Dst, a/y)
		return
	case wazeroir.OpI64RemS:
		x, y := int64(a), int64(reg(i.Src2))
		if y == 0 {
			panic(wasmruntime.ErrRuntimeIntegerDivideByZero)
		}
		if x == math.MinInt64 && y == -1 {
			setReg(i.Dst, 0)
			return
		}
		setReg(i.Dst, uint64(x%y))
		return
	case wazeroir.OpI64RemU:
		y := reg(i.Src2)
		if y == 0 {
			panic(wasmruntime.ErrRuntimeIntegerDivideByZero)
		}
		setReg(i.Dst, a%y)
		return
	case wazeroir.OpI64And:
		setReg(i.Dst, a&reg(i.Src2))
		return
	case wazeroir.OpI64Or:
		setReg(i.Dst, a|reg(i.Src2))
		return
	case wazeroir.OpI64Xor:
		setReg(i.Dst, a^reg(i.Src2))
		return
	case wazeroir.OpI64Shl:
		setReg(i.Dst, a<<(reg(i.Src2)%64))
		return
	case wazeroir.OpI64ShrS:
		setReg(i.Dst, uint64(int64(a)>>(reg(i.Src2)%64)))
		return
	case wazeroir.OpI64ShrU:
		setReg(i.Dst, a>>(reg(i.Src2)%64))
		return
	case wazeroir.OpI64Rotl:
		setReg(i.Dst, bits.RotateLeft64(a, int(reg(i.Src2)%64)))
		return
	case wazeroir.OpI64Rotr:
		setReg(i.Dst, bits.RotateLeft64(a, -int(reg(i.Src2)%64)))
		return

	// f32/f64 binops
	case wazeroir.OpF32Add:
		setReg(i.Dst, f32(f32v(a)+f32v(reg(i.Src2))))
		return
	case wazeroir.OpF32Sub:
		setReg(i.Dst, f32(f32v(a)-f32v(reg(i.Src2))))
		return
	case wazeroir.OpF32Mul:
		setReg(i.Dst, f32(f32v(a)*f32v(reg(i.Src2))))
		return
	case wazeroir.OpF32Div:
		setReg(i.Dst, f32(f32v(a)/f32v(reg(i.Src2))))
		return
	case wazeroir.OpF32Min:
		setReg(i.Dst, f32(float32(moremath.WasmCompatMin(float64(f32v(a)), float64(f32v(reg(i.Src2)))))))
		return
	case wazeroir.OpF32Max:
		setReg(i.Dst, f32(float32(moremath.WasmCompatMax(float64(f32v(a)), float64(f32v(reg(i.Src2)))))))
		return
	case wazeroir.OpF32Copysign:
		setReg(i.Dst, f32(float32(math.Copysign(float64(f32v(a)), float64(f32v(reg(i.Src2)))))))
		return
	case wazeroir.OpF64Add:
		setReg(i.Dst, f64(f64v(a)+f64v(reg(i.Src2))))
		return
	case wazeroir.OpF64Sub:
		setReg(i.Dst, f64(f64v(a)-f64v(reg(i.Src2))))
		return
	case wazeroir.OpF64Mul:
		setReg(i.Dst, f64(f64v(a)*f64v(reg(i.Src2))))
		return
	case wazeroir.OpF64Div:
		setReg(i.Dst, f64(f64v(a)/f64v(reg(i.Src2))))
		return
	case wazeroir.OpF64Min:
		setReg(i.Dst, f64(moremath.WasmCompatMin(f64v(a), f64v(reg(i.Src2)))))
		return
	case wazeroir.OpF64Max:
		setReg(i.Dst, f64(moremath.WasmCompatMax(f64v(a), f64v(reg(i.Src2)))))
		return
	case wazeroir.OpF64Copysign:
		setReg(i.Dst, f64(math.Copysign(f64v(a), f64v(reg(i.Src2)))))
		return

	// unops
	case wazeroir.OpI32Clz:
		setReg(i.Dst, uint64(bits.LeadingZeros32(uint32(a))))
		return
	case wazeroir.OpI32Ctz:
		setReg(i.Dst, uint64(bits.TrailingZeros32(uint32(a))))
		return
	case wazeroir.OpI32Popcnt:
		setReg(i.Dst, uint64(bits.OnesCount32(uint32(a))))
		return
	case wazeroir.OpI64Clz:
		setReg(i.Dst, uint64(bits.LeadingZeros64(a)))
		return
	case wazeroir.OpI64Ctz:
		setReg(i.Dst, uint64(bits.TrailingZeros64(a)))
		return
	case wazeroir.OpI64Popcnt:
		setReg(i.Dst, uint64(bits.OnesCount64(a)))
		return
	case wazeroir.OpF32Abs:
		setReg(i.Dst, f32(float32(math.Abs(float64(f32v(a))))))
		return
	case wazeroir.OpF32Neg:
		setReg(i.Dst, f32(-f32v(a)))
		return
	case wazeroir.OpF32Ceil:
		setReg(i.Dst, f32(float32(math.Ceil(float64(f32v(a))))))
		return
	case wazeroir.OpF32Floor:
		setReg(i.Dst, f32(float32(math.Floor(float64(f32v(a))))))
		return
	case wazeroir.OpF32Trunc:
		setReg(i.Dst, f32(float32(math.Trunc(float64(f32v(a))))))
		return
	case wazeroir.OpF32Nearest:
		setReg(i.Dst, f32(moremath.WasmCompatNearestF32(f32v(a))))
		return
	case wazeroir.OpF32Sqrt:
		setReg(i.Dst, f32(float32(math.Sqrt(float64(f32v(a))))))
		return
	case wazeroir.OpF64Abs:
		setReg(i.Dst, f64(math.Abs(f64v(a))))
		return
	case wazeroir.OpF64Neg:
		setReg(i.Dst, f64(-f64v(a)))
		return
	case wazeroir.OpF64Ceil:
		setReg(i.Dst, f64(math.Ceil(f64v(a))))
		return
	case wazeroir.OpF64Floor:
		setReg(i.Dst, f64(math.Floor(f64v(a))))
		return
	case wazeroir.OpF64Trunc:
		setReg(i.Dst, f64(math.Trunc(f64v(a))))
		return
	case wazeroir.OpF64Nearest:
		setReg(i.Dst, f64(moremath.WasmCompatNearestF64(f64v(a))))
		return
	case wazeroir.OpF64Sqrt:
		setReg(i.Dst, f64(math.Sqrt(f64v(a))))
		return

	case wazeroir.OpI32Extend8S:
		setReg(i.Dst, uint64(uint32(int32(int8(uint8(a))))))
		return
	case wazeroir.OpI32Extend16S:
		setReg(i.Dst, uint64(uint32(int32(int16(uint16(a))))))
		return
	case wazeroir.OpI64Extend8S:
		setReg(i.Dst, uint64(int64(int8(uint8(a)))))
		return
	case wazeroir.OpI64Extend16S:
		setReg(i.Dst, uint64(int64(int16(uint16(a)))))
		return
	case wazeroir.OpI64Extend32S:
		setReg(i.Dst, uint64(int64(int32(uint32(a)))))
		return
	}

	if isCmpOp(op) {
		ce.execCmp(i, a, reg, setReg)
		return
	}
	ce.execConvert(i, a, setReg)
}

func f32v(v uint64) float32  { return math.Float32frombits(uint32(v)) }
func f64v(v uint64) float64  { return math.Float64frombits(v) }
func f32(v float32) uint64   { return uint64(math.Float32bits(v)) }
func f64(v float64) uint64   { return math.Float64bits(v) }

func isCmpOp(op wazeroir.Op) bool {
	switch op {
	case wazeroir.OpI32Eqz, wazeroir.OpI32Eq, wazeroir.OpI32Ne, wazeroir.OpI32LtS, wazeroir.OpI32LtU,
		wazeroir.OpI32GtS, wazeroir.OpI32GtU, wazeroir.OpI32LeS, wazeroir.OpI32LeU, wazeroir.OpI32GeS, wazeroir.OpI32GeU,
		wazeroir.OpI64Eqz, wazeroir.OpI64Eq, wazeroir.OpI64Ne, wazeroir.OpI64LtS, wazeroir.OpI64LtU,
		wazeroir.OpI64GtS, wazeroir.OpI64GtU, wazeroir.OpI64LeS, wazeroir.OpI64LeU, wazeroir.OpI64GeS, wazeroir.OpI64GeU,
		wazeroir.OpF32Eq, wazeroir.OpF32Ne, wazeroir.OpF32Lt, wazeroir.OpF32Gt, wazeroir.OpF32Le, wazeroir.OpF32Ge,
		wazeroir.OpF64Eq, wazeroir.OpF64Ne, wazeroir.OpF64Lt, wazeroir.OpF64Gt, wazeroir.OpF64Le, wazeroir.OpF64Ge,
		wazeroir.OpCmpAndEqz, wazeroir.OpCmpOrEqz, wazeroir.OpCmpXorEqz,
		wazeroir.OpCmpAndNez, wazeroir.OpCmpOrNez, wazeroir.OpCmpXorNez:
		return true
	}
	return false
}

func boolVal(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// execCmp evaluates comparisons, including the fused and/or/xor-with-eqz-or-
// nez variants compiler.go's tryFuseEqz/tryFuseCompareZero produce: Dst =
// (Src1 LOGIC Src2) ==/!= 0, where LOGIC and the eqz/nez sense are baked
// into Op.
func (ce *callEngine) execCmp(i wazeroir.Instruction, a uint64, reg func(uint32) uint64, setReg func(uint32, uint64)) {
	b := reg(i.Src2)
	var cmp bool

	switch i.Op {
	case wazeroir.OpI32Eqz:
		setReg(i.Dst, boolVal(uint32(a) == 0))
		return
	case wazeroir.OpI64Eqz:
		setReg(i.Dst, boolVal(a == 0))
		return
	case wazeroir.OpI32Eq:
		cmp = uint32(a) == uint32(b)
	case wazeroir.OpI32Ne:
		cmp = uint32(a) != uint32(b)
	case wazeroir.OpI32LtS:
		cmp = int32(uint32(a)) < int32(uint32(b))
	case wazeroir.OpI32LtU:
		cmp = uint32(a) < uint32(b)
	case wazeroir.OpI32GtS:
		cmp = int32(uint32(a)) > int32(uint32(b))
	case wazeroir.OpI32GtU:
		cmp = uint32(a) > uint32(b)
	case wazeroir.OpI32LeS:
		cmp = int32(uint32(a)) <= int32(uint32(b))
	case wazeroir.OpI32LeU:
		cmp = uint32(a) <= uint32(b)
	case wazeroir.OpI32GeS:
		cmp = int32(uint32(a)) >= int32(uint32(b))
	case wazeroir.OpI32GeU:
		cmp = uint32(a) >= uint32(b)
	case wazeroir.OpI64Eq:
		cmp = a == b
	case wazeroir.OpI64Ne:
		cmp = a != b
	case wazeroir.OpI64LtS:
		cmp = int64(a) < int64(b)
	case wazeroir.OpI64LtU:
		cmp = a < b
	case wazeroir.OpI64GtS:
		cmp = int64(a) > int64(b)
	case wazeroir.OpI64GtU:
		cmp = a > b
	case wazeroir.OpI64LeS:
		cmp = int64(a) <= int64(b)
	case wazeroir.OpI64LeU:
		cmp = a <= b
	case wazeroir.OpI64GeS:
		cmp = int64(a) >= int64(b)
	case wazeroir.OpI64GeU:
		cmp = a >= b
	case wazeroir.OpF32Eq:
		cmp = f32v(a) == f32v(b)
	case wazeroir.OpF32Ne:
		cmp = f32v(a) != f32v(b)
	case wazeroir.OpF32Lt:
		cmp = f32v(a) < f32v(b)
	case wazeroir.OpF32Gt:
		cmp = f32v(a) > f32v(b)
	case wazeroir.OpF32Le:
		cmp = f32v(a) <= f32v(b)
	case wazeroir.OpF32Ge:
		cmp = f32v(a) >= f32v(b)
	case wazeroir.OpF64Eq:
		cmp = f64v(a) == f64v(b)
	case wazeroir.OpF64Ne:
		cmp = f64v(a) != f64v(b)
	case wazeroir.OpF64Lt:
		cmp = f64v(a) < f64v(b)
	case wazeroir.OpF64Gt:
		cmp = f64v(a) > f64v(b)
	case wazeroir.OpF64Le:
		cmp = f64v(a) <= f64v(b)
	case wazeroir.OpF64Ge:
		cmp = f64v(a) >= f64v(b)

	// Fused forms replace a trailing and/or/xor binop in place (see
	// compiler.go's tryFuseEqz): Src1/Src2 are that binop's own
	// operands, and the eqz/nez test applies to the bitwise result, not to
	// a separately materialized boolean.
	case wazeroir.OpCmpAndEqz:
		cmp = (a & b) == 0
	case wazeroir.OpCmpAndNez:
		cmp = (a & b) != 0
	case wazeroir.OpCmpOrEqz:
		cmp = (a | b) == 0
	case wazeroir.OpCmpOrNez:
		cmp = (a | b) != 0
	case wazeroir.OpCmpXorEqz:
		cmp = (a ^ b) == 0
	case wazeroir.OpCmpXorNez:
		cmp = (a ^ b) != 0
	}
	setReg(i.Dst, boolVal(cmp))
}

// execConvert evaluates numeric conversions, trapping on the non-saturating
// truncations per spec: NaN or an out-of-range magnitude traps rather than
// wrapping, matching wasm's trunc (not trunc_sat) semantics.
func (ce *callEngine) execConvert(i wazeroir.Instruction, a uint64, setReg func(uint32, uint64)) {
	switch i.Op {
	case wazeroir.OpI32WrapI64:
		setReg(i.Dst, uint64(uint32(a)))
	case wazeroir.OpI64ExtendI32S:
		setReg(i.Dst, uint64(int64(int32(uint32(a)))))
	case wazeroir.OpI64ExtendI32U:
		setReg(i.Dst, uint64(uint32(a)))

	case wazeroir.OpI32TruncF32S:
		setReg(i.Dst, uint64(uint32(truncToInt(float64(f32v(a)), -2147483648, 2147483647))))
	case wazeroir.OpI32TruncF32U:
		setReg(i.Dst, uint64(uint32(truncToUint(float64(f32v(a)), 4294967295))))
	case wazeroir.OpI32TruncF64S:
		setReg(i.Dst, uint64(uint32(truncToInt(f64v(a), -2147483648, 2147483647))))
	case wazeroir.OpI32TruncF64U:
		setReg(i.Dst, uint64(uint32(truncToUint(f64v(a), 4294967295))))
	case wazeroir.OpI64TruncF32S:
		setReg(i.Dst, uint64(truncToInt64(float64(f32v(a)), -9223372036854775808, 9223372036854775807)))
	case wazeroir.OpI64TruncF32U:
		setReg(i.Dst, truncToUint64(float64(f32v(a)), 18446744073709551615))
	case wazeroir.OpI64TruncF64S:
		setReg(i.Dst, uint64(truncToInt64(f64v(a), -9223372036854775808, 9223372036854775807)))
	case wazeroir.OpI64TruncF64U:
		setReg(i.Dst, truncToUint64(f64v(a), 18446744073709551615))

	case wazeroir.OpI32TruncSatF32S:
		setReg(i.Dst, uint64(uint32(satTruncToInt(float64(f32v(a)), -2147483648, 2147483647))))
	case wazeroir.OpI32TruncSatF32U:
		setReg(i.Dst, uint64(uint32(satTruncToUint(float64(f32v(a)), 4294967295))))
	case wazeroir.OpI32TruncSatF64S:
		setReg(i.Dst, uint64(uint32(satTruncToInt(f64v(a), -2147483648, 2147483647))))
	case wazeroir.OpI32TruncSatF64U:
		setReg(i.Dst, uint64(uint32(satTruncToUint(f64v(a), 4294967295))))
	case wazeroir.OpI64TruncSatF32S:
		setReg(i.Dst, uint64(satTruncToInt64(float64(f32v(a)), -9223372036854775808, 9223372036854775807)))
	case wazeroir.OpI64TruncSatF32U:
		setReg(i.Dst, satTruncToUint64(float64(f32v(a)), 18446744073709551615))
	case wazeroir.OpI64TruncSatF64S:
		setReg(i.Dst, uint64(satTruncToInt64(f64v(a), -9223372036854775808, 9223372036854775807)))
	case wazeroir.OpI64TruncSatF64U:
		setReg(i.Dst, satTruncToUint64(f64v(a), 18446744073709551615))

	case wazeroir.OpF32ConvertI32S:
		setReg(i.Dst, f32(float32(int32(uint32(a)))))
	case wazeroir.OpF32ConvertI32U:
		setReg(i.Dst, f32(float32(uint32(a))))
	case wazeroir.OpF32ConvertI64S:
		setReg(i.Dst, f32(float32(int64(a))))
	case wazeroir.OpF32ConvertI64U:
		setReg(i.Dst, f32(float32(a)))
	case wazeroir.OpF32DemoteF64:
		setReg(i.Dst, f32(float32(f64v(a))))
	case wazeroir.OpF64ConvertI32S:
		setReg(i.Dst, f64(float64(int32(uint32(a)))))
	case wazeroir.OpF64ConvertI32U:
		setReg(i.Dst, f64(float64(uint32(a))))
	case wazeroir.OpF64ConvertI64S:
		setReg(i.Dst, f64(float64(int64(a))))
	case wazeroir.OpF64ConvertI64U:
		setReg(i.Dst, f64(float64(a)))
	case wazeroir.OpF64PromoteF32:
		setReg(i.Dst, f64(float64(f32v(a))))

	case wazeroir.OpI32ReinterpretF32, wazeroir.OpI64ReinterpretF64:
		setReg(i.Dst, a)
	case wazeroir.OpF32ReinterpretI32, wazeroir.OpF64ReinterpretI64:
		setReg(i.Dst, a)

	default:
		panic("BUG: unhandled op in executor")
	}
}

func truncToInt(v float64, min, max float64) int64 {
	if math.IsNaN(v) {
		panic(wasmruntime.ErrRuntimeInvalidConversionToInteger)
	}
	if v <= min-1 || v >= max+1 {
		panic(wasmruntime.ErrRuntimeIntegerOverflow)
	}
	return int64(math.Trunc(v))
}

func truncToInt64(v float64, min, max float64) int64 {
	if math.IsNaN(v) {
		panic(wasmruntime.ErrRuntimeInvalidConversionToInteger)
	}
	t := math.Trunc(v)
	if t < min || t >= max {
		panic(wasmruntime.ErrRuntimeIntegerOverflow)
	}
	return int64(t)
}

func truncToUint(v float64, max float64) uint64 {
	if math.IsNaN(v) {
		panic(wasmruntime.ErrRuntimeInvalidConversionToInteger)
	}
	if v <= -1 || v >= max+1 {
		panic(wasmruntime.ErrRuntimeIntegerOverflow)
	}
	return uint64(math.Trunc(v))
}

func truncToUint64(v float64, max float64) uint64 {
	if math.IsNaN(v) {
		panic(wasmruntime.ErrRuntimeInvalidConversionToInteger)
	}
	t := math.Trunc(v)
	if t < 0 || t >= max {
		panic(wasmruntime.ErrRuntimeIntegerOverflow)
	}
	return uint64(t)
}

func satTruncToInt(v float64, min, max float64) int64 {
	if math.IsNaN(v) {
		return 0
	}
	t := math.Trunc(v)
	if t < min {
		return int64(min)
	}
	if t >= max+1 {
		return int64(max)
	}
	return int64(t)
}

func satTruncToInt64(v float64, min, max float64) int64 {
	if math.IsNaN(v) {
		return 0
	}
	t := math.Trunc(v)
	if t < min {
		return int64(min)
	}
	if t >= max {
		return int64(max)
	}
	return int64(t)
}

func satTruncToUint(v float64, max float64) uint64 {
	if math.IsNaN(v) || v <= -1 {
		return 0
	}
	t := math.Trunc(v)
	if t >= max+1 {
		return uint64(max)
	}
	return uint64(t)
}

func satTruncToUint64(v float64, max float64) uint64 {
	if math.IsNaN(v) || v <= -1 {
		return 0
	}
	t := math.Trunc(v)
	if t >= max {
		return uint64(max)
	}
	return uint64(t)
}

func isLoadOp(op wazeroir.Op) bool {
	switch op {
	case wazeroir.OpI32Load, wazeroir.OpI64Load, wazeroir.OpF32Load, wazeroir.OpF64Load,
		wazeroir.OpI32Load8S, wazeroir.OpI32Load8U, wazeroir.OpI32Load16S, wazeroir.OpI32Load16U,
		wazeroir.OpI64Load8S, wazeroir.OpI64Load8U, wazeroir.OpI64Load16S, wazeroir.OpI64Load16U,
		wazeroir.OpI64Load32S, wazeroir.OpI64Load32U:
		return true
	}
	return false
}

func isStoreOp(op wazeroir.Op) bool {
	switch op {
	case wazeroir.OpI32Store, wazeroir.OpI64Store, wazeroir.OpF32Store, wazeroir.OpF64Store,
		wazeroir.OpI32Store8, wazeroir.OpI32Store16, wazeroir.OpI64Store8, wazeroir.OpI64Store16, wazeroir.OpI64Store32:
		return true
	}
	return false
}

// effectiveAddr computes a load/store's byte offset as a 33-bit-wide sum of
// the dynamic address and static offset immediate: an overflow past 32 bits
// is always out of bounds, never wraps.
func effectiveAddr(dynamic uint64, staticOffset uint64) (uint32, bool) {
	sum := uint64(uint32(dynamic)) + staticOffset
	if sum > math.MaxUint32 {
		return 0, false
	}
	return uint32(sum), true
}

func (ce *callEngine) execLoad(i wazeroir.Instruction, mod *wasm.ModuleInstance, reg func(uint32) uint64, setReg func(uint32, uint64)) {
	addr, ok := effectiveAddr(reg(i.Src1), i.Imm)
	if !ok {
		panic(wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
	}
	m := mod.Mem
	switch i.Op {
	case wazeroir.OpI32Load:
		v, ok := m.ReadUint32Le(ce.ctx, addr)
		ce.checkMem(ok)
		setReg(i.Dst, uint64(v))
	case wazeroir.OpI64Load:
		v, ok := m.ReadUint64Le(ce.ctx, addr)
		ce.checkMem(ok)
		setReg(i.Dst, v)
	case wazeroir.OpF32Load:
		v, ok := m.ReadUint32Le(ce.ctx, addr)
		ce.checkMem(ok)
		setReg(i.Dst, uint64(v))
	case wazeroir.OpF64Load:
		v, ok := m.ReadUint64Le(ce.ctx, addr)
		ce.checkMem(ok)
		setReg(i.Dst, v)
	case wazeroir.OpI32Load8S:
		v, ok := m.ReadByte(ce.ctx, addr)
		ce.checkMem(ok)
		setReg(i.Dst, uint64(uint32(int32(int8(v)))))
	case wazeroir.OpI32Load8U:
		v, ok := m.ReadByte(ce.ctx, addr)
		ce.checkMem(ok)
		setReg(i.Dst, uint64(v))
	case wazeroir.OpI32Load16S:
		v, ok := m.ReadUint16Le(ce.ctx, addr)
		ce.checkMem(ok)
		setReg(i.Dst, uint64(uint32(int32(int16(v)))))
	case wazeroir.OpI32Load16U:
		v, ok := m.ReadUint16Le(ce.ctx, addr)
		ce.checkMem(ok)
		setReg(i.Dst, uint64(v))
	case wazeroir.OpI64Load8S:
		v, ok := m.ReadByte(ce.ctx, addr)
		ce.checkMem(ok)
		setReg(i.Dst, uint64(int64(int8(v))))
	case wazeroir.OpI64Load8U:
		v, ok := m.ReadByte(ce.ctx, addr)
		ce.checkMem(ok)
		setReg(i.Dst, uint64(v))
	case wazeroir.OpI64Load16S:
		v, ok := m.ReadUint16Le(ce.ctx, addr)
		ce.checkMem(ok)
		setReg(i.Dst, uint64(int64(int16(v))))
	case wazeroir.OpI64Load16U:
		v, ok := m.ReadUint16Le(ce.ctx, addr)
		ce.checkMem(ok)
		setReg(i.Dst, uint64(v))
	case wazeroir.OpI64Load32S:
		v, ok := m.ReadUint32Le(ce.ctx, addr)
		ce.checkMem(ok)
		setReg(i.Dst, uint64(int64(int32(v))))
	case wazeroir.OpI64Load32U:
		v, ok := m.ReadUint32Le(ce.ctx, addr)
		ce.checkMem(ok)
		setReg(i.Dst, uint64(v))
	}
}

func (ce *callEngine) execStore(i wazeroir.Instruction, mod *wasm.ModuleInstance, reg func(uint32) uint64) {
	addr, ok := effectiveAddr(reg(i.Src1), i.Imm)
	if !ok {
		panic(wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
	}
	v := reg(i.Src2)
	m := mod.Mem
	switch i.Op {
	case wazeroir.OpI32Store, wazeroir.OpF32Store:
		ce.checkMem(m.WriteUint32Le(ce.ctx, addr, uint32(v)))
	case wazeroir.OpI64Store, wazeroir.OpF64Store:
		ce.checkMem(m.WriteUint64Le(ce.ctx, addr, v))
	case wazeroir.OpI32Store8, wazeroir.OpI64Store8:
		ce.checkMem(m.WriteByte(ce.ctx, addr, byte(v)))
	case wazeroir.OpI32Store16, wazeroir.OpI64Store16:
		ce.checkMem(m.WriteUint16Le(ce.ctx, addr, uint16(v)))
	case wazeroir.OpI64Store32:
		ce.checkMem(m.WriteUint32Le(ce.ctx, addr, uint32(v)))
	}
}

func (ce *callEngine) checkMem(ok bool) {
	if !ok {
		panic(wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
	}
}
