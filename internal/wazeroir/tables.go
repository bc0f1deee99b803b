package wazeroir

import (
	"math"

	"github.com/wasmi-go/wasmi/internal/wasm"
)

type binopInfo struct {
	op     Op
	result wasm.ValueType
	fold   func(a, b uint64) (uint64, bool)
}

type unopInfo struct {
	op     Op
	result wasm.ValueType
	fold   func(a uint64) (uint64, bool)
}

type cmpInfo struct {
	op   Op
	fold func(a, b uint64) (uint64, bool)
	// isEqzOrNez marks opcodes that compare against zero (the unary eqz forms,
	// and the binary eq/ne forms when one operand folds to the constant 0) and
	// so are eligible for translateCompare's cmp_*_eqz/cmp_*_nez fusion.
	isEqzOrNez bool
	// isEqz marks the unary i32.eqz/i64.eqz opcodes specifically, which pop
	// one operand instead of two.
	isEqz bool
}

type convertInfo struct {
	op     Op
	result wasm.ValueType
}

func boolVal(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

var binopTable = map[byte]binopInfo{
	wasm.OpcodeI32Add: {OpI32Add, wasm.ValueTypeI32, func(a, b uint64) (uint64, bool) { return uint64(uint32(a) + uint32(b)), true }},
	wasm.OpcodeI32Sub: {OpI32Sub, wasm.ValueTypeI32, func(a, b uint64) (uint64, bool) { return uint64(uint32(a) - uint32(b)), true }},
	wasm.OpcodeI32Mul: {OpI32Mul, wasm.ValueTypeI32, func(a, b uint64) (uint64, bool) { return uint64(uint32(a) * uint32(b)), true }},
	wasm.OpcodeI32DivS: {OpI32DivS, wasm.ValueTypeI32, nil},
	wasm.OpcodeI32DivU: {OpI32DivU, wasm.ValueTypeI32, nil},
	wasm.OpcodeI32RemS: {OpI32RemS, wasm.ValueTypeI32, nil},
	wasm.OpcodeI32RemU: {OpI32RemU, wasm.ValueTypeI32, nil},
	wasm.OpcodeI32And: {OpI32And, wasm.ValueTypeI32, func(a, b uint64) (uint64, bool) { return uint64(uint32(a) & uint32(b)), true }},
	wasm.OpcodeI32Or:  {OpI32Or, wasm.ValueTypeI32, func(a, b uint64) (uint64, bool) { return uint64(uint32(a) | uint32(b)), true }},
	wasm.OpcodeI32Xor: {OpI32Xor, wasm.ValueTypeI32, func(a, b uint64) (uint64, bool) { return uint64(uint32(a) ^ uint32(b)), true }},
	wasm.OpcodeI32Shl: {OpI32Shl, wasm.ValueTypeI32, func(a, b uint64) (uint64, bool) { return uint64(uint32(a) << (uint32(b) % 32)), true }},
	wasm.OpcodeI32ShrS: {OpI32ShrS, wasm.ValueTypeI32, func(a, b uint64) (uint64, bool) { return uint64(uint32(int32(uint32(a)) >> (uint32(b) % 32))), true }},
	wasm.OpcodeI32ShrU: {OpI32ShrU, wasm.ValueTypeI32, func(a, b uint64) (uint64, bool) { return uint64(uint32(a) >> (uint32(b) % 32)), true }},
	wasm.OpcodeI32Rotl: {OpI32Rotl, wasm.ValueTypeI32, nil},
	wasm.OpcodeI32Rotr: {OpI32Rotr, wasm.ValueTypeI32, nil},

	wasm.OpcodeI64Add: {OpI64Add, wasm.ValueTypeI64, func(a, b uint64) (uint64, bool) { return a + b, true }},
	wasm.OpcodeI64Sub: {OpI64Sub, wasm.ValueTypeI64, func(a, b uint64) (uint64, bool) { return a - b, true }},
	wasm.OpcodeI64Mul: {OpI64Mul, wasm.ValueTypeI64, func(a, b uint64) (uint64, bool) { return a * b, true }},
	wasm.OpcodeI64DivS: {OpI64DivS, wasm.ValueTypeI64, nil},
	wasm.OpcodeI64DivU: {OpI64DivU, wasm.ValueTypeI64, nil},
	wasm.OpcodeI64RemS: {OpI64RemS, wasm.ValueTypeI64, nil},
	wasm.OpcodeI64RemU: {OpI64RemU, wasm.ValueTypeI64, nil},
	wasm.OpcodeI64And: {OpI64And, wasm.ValueTypeI64, func(a, b uint64) (uint64, bool) { return a & b, true }},
	wasm.OpcodeI64Or:  {OpI64Or, wasm.ValueTypeI64, func(a, b uint64) (uint64, bool) { return a | b, true }},
	wasm.OpcodeI64Xor: {OpI64Xor, wasm.ValueTypeI64, func(a, b uint64) (uint64, bool) { return a ^ b, true }},
	wasm.OpcodeI64Shl: {OpI64Shl, wasm.ValueTypeI64, func(a, b uint64) (uint64, bool) { return a << (b % 64), true }},
	wasm.OpcodeI64ShrS: {OpI64ShrS, wasm.ValueTypeI64, func(a, b uint64) (uint64, bool) { return uint64(int64(a) >> (b % 64)), true }},
	wasm.OpcodeI64ShrU: {OpI64ShrU, wasm.ValueTypeI64, func(a, b uint64) (uint64, bool) { return a >> (b % 64), true }},
	wasm.OpcodeI64Rotl: {OpI64Rotl, wasm.ValueTypeI64, nil},
	wasm.OpcodeI64Rotr: {OpI64Rotr, wasm.ValueTypeI64, nil},

	wasm.OpcodeF32Add: {OpF32Add, wasm.ValueTypeF32, f32fold(func(a, b float32) float32 { return a + b })},
	wasm.OpcodeF32Sub: {OpF32Sub, wasm.ValueTypeF32, f32fold(func(a, b float32) float32 { return a - b })},
	wasm.OpcodeF32Mul: {OpF32Mul, wasm.ValueTypeF32, f32fold(func(a, b float32) float32 { return a * b })},
	wasm.OpcodeF32Div: {OpF32Div, wasm.ValueTypeF32, f32fold(func(a, b float32) float32 { return a / b })},
	wasm.OpcodeF32Min: {OpF32Min, wasm.ValueTypeF32, nil},
	wasm.OpcodeF32Max: {OpF32Max, wasm.ValueTypeF32, nil},
	wasm.OpcodeF32Copysign: {OpF32Copysign, wasm.ValueTypeF32, f32fold(func(a, b float32) float32 { return float32(math.Copysign(float64(a), float64(b))) })},

	wasm.OpcodeF64Add: {OpF64Add, wasm.ValueTypeF64, f64fold(func(a, b float64) float64 { return a + b })},
	wasm.OpcodeF64Sub: {OpF64Sub, wasm.ValueTypeF64, f64fold(func(a, b float64) float64 { return a - b })},
	wasm.OpcodeF64Mul: {OpF64Mul, wasm.ValueTypeF64, f64fold(func(a, b float64) float64 { return a * b })},
	wasm.OpcodeF64Div: {OpF64Div, wasm.ValueTypeF64, f64fold(func(a, b float64) float64 { return a / b })},
	wasm.OpcodeF64Min: {OpF64Min, wasm.ValueTypeF64, nil},
	wasm.OpcodeF64Max: {OpF64Max, wasm.ValueTypeF64, nil},
	wasm.OpcodeF64Copysign: {OpF64Copysign, wasm.ValueTypeF64, f64fold(math.Copysign)},
}

func f32fold(f func(a, b float32) float32) func(a, b uint64) (uint64, bool) {
	return func(a, b uint64) (uint64, bool) {
		return uint64(math.Float32bits(f(math.Float32frombits(uint32(a)), math.Float32frombits(uint32(b))))), true
	}
}

func f64fold(f func(a, b float64) float64) func(a, b uint64) (uint64, bool) {
	return func(a, b uint64) (uint64, bool) {
		return math.Float64bits(f(math.Float64frombits(a), math.Float64frombits(b))), true
	}
}

var unopTable = map[byte]unopInfo{
	wasm.OpcodeI32Clz:    {OpI32Clz, wasm.ValueTypeI32, nil},
	wasm.OpcodeI32Ctz:    {OpI32Ctz, wasm.ValueTypeI32, nil},
	wasm.OpcodeI32Popcnt: {OpI32Popcnt, wasm.ValueTypeI32, nil},
	wasm.OpcodeI64Clz:    {OpI64Clz, wasm.ValueTypeI64, nil},
	wasm.OpcodeI64Ctz:    {OpI64Ctz, wasm.ValueTypeI64, nil},
	wasm.OpcodeI64Popcnt: {OpI64Popcnt, wasm.ValueTypeI64, nil},

	wasm.OpcodeF32Abs:     {OpF32Abs, wasm.ValueTypeF32, f32unfold(func(a float32) float32 { return float32(math.Abs(float64(a))) })},
	wasm.OpcodeF32Neg:     {OpF32Neg, wasm.ValueTypeF32, f32unfold(func(a float32) float32 { return -a })},
	wasm.OpcodeF32Ceil:    {OpF32Ceil, wasm.ValueTypeF32, f32unfold(func(a float32) float32 { return float32(math.Ceil(float64(a))) })},
	wasm.OpcodeF32Floor:   {OpF32Floor, wasm.ValueTypeF32, f32unfold(func(a float32) float32 { return float32(math.Floor(float64(a))) })},
	wasm.OpcodeF32Trunc:   {OpF32Trunc, wasm.ValueTypeF32, f32unfold(func(a float32) float32 { return float32(math.Trunc(float64(a))) })},
	wasm.OpcodeF32Nearest: {OpF32Nearest, wasm.ValueTypeF32, nil},
	wasm.OpcodeF32Sqrt:    {OpF32Sqrt, wasm.ValueTypeF32, f32unfold(func(a float32) float32 { return float32(math.Sqrt(float64(a))) })},

	wasm.OpcodeF64Abs:     {OpF64Abs, wasm.ValueTypeF64, f64unfold(math.Abs)},
	wasm.OpcodeF64Neg:     {OpF64Neg, wasm.ValueTypeF64, f64unfold(func(a float64) float64 { return -a })},
	wasm.OpcodeF64Ceil:    {OpF64Ceil, wasm.ValueTypeF64, f64unfold(math.Ceil)},
	wasm.OpcodeF64Floor:   {OpF64Floor, wasm.ValueTypeF64, f64unfold(math.Floor)},
	wasm.OpcodeF64Trunc:   {OpF64Trunc, wasm.ValueTypeF64, f64unfold(math.Trunc)},
	wasm.OpcodeF64Nearest: {OpF64Nearest, wasm.ValueTypeF64, nil},
	wasm.OpcodeF64Sqrt:    {OpF64Sqrt, wasm.ValueTypeF64, f64unfold(math.Sqrt)},

	wasm.OpcodeI32Extend8S:  {OpI32Extend8S, wasm.ValueTypeI32, func(a uint64) (uint64, bool) { return uint64(uint32(int32(int8(uint8(a))))), true }},
	wasm.OpcodeI32Extend16S: {OpI32Extend16S, wasm.ValueTypeI32, func(a uint64) (uint64, bool) { return uint64(uint32(int32(int16(uint16(a))))), true }},
	wasm.OpcodeI64Extend8S:  {OpI64Extend8S, wasm.ValueTypeI64, func(a uint64) (uint64, bool) { return uint64(int64(int8(uint8(a)))), true }},
	wasm.OpcodeI64Extend16S: {OpI64Extend16S, wasm.ValueTypeI64, func(a uint64) (uint64, bool) { return uint64(int64(int16(uint16(a)))), true }},
	wasm.OpcodeI64Extend32S: {OpI64Extend32S, wasm.ValueTypeI64, func(a uint64) (uint64, bool) { return uint64(int64(int32(uint32(a)))), true }},
}

func f32unfold(f func(a float32) float32) func(a uint64) (uint64, bool) {
	return func(a uint64) (uint64, bool) {
		return uint64(math.Float32bits(f(math.Float32frombits(uint32(a))))), true
	}
}

func f64unfold(f func(a float64) float64) func(a uint64) (uint64, bool) {
	return func(a uint64) (uint64, bool) {
		return math.Float64bits(f(math.Float64frombits(a))), true
	}
}

var cmpTable = map[byte]cmpInfo{
	wasm.OpcodeI32Eqz: {OpI32Eqz, nil, true, true},
	wasm.OpcodeI32Eq:  {OpI32Eq, i32fold(func(a, b int32) bool { return a == b }), true, false},
	wasm.OpcodeI32Ne:  {OpI32Ne, i32fold(func(a, b int32) bool { return a != b }), true, false},
	wasm.OpcodeI32LtS: {OpI32LtS, i32fold(func(a, b int32) bool { return a < b }), false, false},
	wasm.OpcodeI32LtU: {OpI32LtU, u32fold(func(a, b uint32) bool { return a < b }), false, false},
	wasm.OpcodeI32GtS: {OpI32GtS, i32fold(func(a, b int32) bool { return a > b }), false, false},
	wasm.OpcodeI32GtU: {OpI32GtU, u32fold(func(a, b uint32) bool { return a > b }), false, false},
	wasm.OpcodeI32LeS: {OpI32LeS, i32fold(func(a, b int32) bool { return a <= b }), false, false},
	wasm.OpcodeI32LeU: {OpI32LeU, u32fold(func(a, b uint32) bool { return a <= b }), false, false},
	wasm.OpcodeI32GeS: {OpI32GeS, i32fold(func(a, b int32) bool { return a >= b }), false, false},
	wasm.OpcodeI32GeU: {OpI32GeU, u32fold(func(a, b uint32) bool { return a >= b }), false, false},

	wasm.OpcodeI64Eqz: {OpI64Eqz, nil, true, true},
	wasm.OpcodeI64Eq:  {OpI64Eq, i64fold(func(a, b int64) bool { return a == b }), true, false},
	wasm.OpcodeI64Ne:  {OpI64Ne, i64fold(func(a, b int64) bool { return a != b }), true, false},
	wasm.OpcodeI64LtS: {OpI64LtS, i64fold(func(a, b int64) bool { return a < b }), false, false},
	wasm.OpcodeI64LtU: {OpI64LtU, u64fold(func(a, b uint64) bool { return a < b }), false, false},
	wasm.OpcodeI64GtS: {OpI64GtS, i64fold(func(a, b int64) bool { return a > b }), false, false},
	wasm.OpcodeI64GtU: {OpI64GtU, u64fold(func(a, b uint64) bool { return a > b }), false, false},
	wasm.OpcodeI64LeS: {OpI64LeS, i64fold(func(a, b int64) bool { return a <= b }), false, false},
	wasm.OpcodeI64LeU: {OpI64LeU, u64fold(func(a, b uint64) bool { return a <= b }), false, false},
	wasm.OpcodeI64GeS: {OpI64GeS, i64fold(func(a, b int64) bool { return a >= b }), false, false},
	wasm.OpcodeI64GeU: {OpI64GeU, u64fold(func(a, b uint64) bool { return a >= b }), false, false},

	wasm.OpcodeF32Eq: {OpF32Eq, nil, false, false},
	wasm.OpcodeF32Ne: {OpF32Ne, nil, false, false},
	wasm.OpcodeF32Lt: {OpF32Lt, nil, false, false},
	wasm.OpcodeF32Gt: {OpF32Gt, nil, false, false},
	wasm.OpcodeF32Le: {OpF32Le, nil, false, false},
	wasm.OpcodeF32Ge: {OpF32Ge, nil, false, false},
	wasm.OpcodeF64Eq: {OpF64Eq, nil, false, false},
	wasm.OpcodeF64Ne: {OpF64Ne, nil, false, false},
	wasm.OpcodeF64Lt: {OpF64Lt, nil, false, false},
	wasm.OpcodeF64Gt: {OpF64Gt, nil, false, false},
	wasm.OpcodeF64Le: {OpF64Le, nil, false, false},
	wasm.OpcodeF64Ge: {OpF64Ge, nil, false, false},
}

func i32fold(f func(a, b int32) bool) func(a, b uint64) (uint64, bool) {
	return func(a, b uint64) (uint64, bool) { return boolVal(f(int32(uint32(a)), int32(uint32(b)))), true }
}
func u32fold(f func(a, b uint32) bool) func(a, b uint64) (uint64, bool) {
	return func(a, b uint64) (uint64, bool) { return boolVal(f(uint32(a), uint32(b))), true }
}
func i64fold(f func(a, b int64) bool) func(a, b uint64) (uint64, bool) {
	return func(a, b uint64) (uint64, bool) { return boolVal(f(int64(a), int64(b))), true }
}
func u64fold(f func(a, b uint64) bool) func(a, b uint64) (uint64, bool) {
	return func(a, b uint64) (uint64, bool) { return boolVal(f(a, b)), true }
}

var convertTable = map[byte]convertInfo{
	wasm.OpcodeI32WrapI64:       {OpI32WrapI64, wasm.ValueTypeI32},
	wasm.OpcodeI32TruncF32S:     {OpI32TruncF32S, wasm.ValueTypeI32},
	wasm.OpcodeI32TruncF32U:     {OpI32TruncF32U, wasm.ValueTypeI32},
	wasm.OpcodeI32TruncF64S:     {OpI32TruncF64S, wasm.ValueTypeI32},
	wasm.OpcodeI32TruncF64U:     {OpI32TruncF64U, wasm.ValueTypeI32},
	wasm.OpcodeI64ExtendI32S:    {OpI64ExtendI32S, wasm.ValueTypeI64},
	wasm.OpcodeI64ExtendI32U:    {OpI64ExtendI32U, wasm.ValueTypeI64},
	wasm.OpcodeI64TruncF32S:     {OpI64TruncF32S, wasm.ValueTypeI64},
	wasm.OpcodeI64TruncF32U:     {OpI64TruncF32U, wasm.ValueTypeI64},
	wasm.OpcodeI64TruncF64S:     {OpI64TruncF64S, wasm.ValueTypeI64},
	wasm.OpcodeI64TruncF64U:     {OpI64TruncF64U, wasm.ValueTypeI64},
	wasm.OpcodeF32ConvertI32S:   {OpF32ConvertI32S, wasm.ValueTypeF32},
	wasm.OpcodeF32ConvertI32U:   {OpF32ConvertI32U, wasm.ValueTypeF32},
	wasm.OpcodeF32ConvertI64S:   {OpF32ConvertI64S, wasm.ValueTypeF32},
	wasm.OpcodeF32ConvertI64U:   {OpF32ConvertI64U, wasm.ValueTypeF32},
	wasm.OpcodeF32DemoteF64:     {OpF32DemoteF64, wasm.ValueTypeF32},
	wasm.OpcodeF64ConvertI32S:   {OpF64ConvertI32S, wasm.ValueTypeF64},
	wasm.OpcodeF64ConvertI32U:   {OpF64ConvertI32U, wasm.ValueTypeF64},
	wasm.OpcodeF64ConvertI64S:   {OpF64ConvertI64S, wasm.ValueTypeF64},
	wasm.OpcodeF64ConvertI64U:   {OpF64ConvertI64U, wasm.ValueTypeF64},
	wasm.OpcodeF64PromoteF32:    {OpF64PromoteF32, wasm.ValueTypeF64},
	wasm.OpcodeI32ReinterpretF32: {OpI32ReinterpretF32, wasm.ValueTypeI32},
	wasm.OpcodeI64ReinterpretF64: {OpI64ReinterpretF64, wasm.ValueTypeI64},
	wasm.OpcodeF32ReinterpretI32: {OpF32ReinterpretI32, wasm.ValueTypeF32},
	wasm.OpcodeF64ReinterpretI64: {OpF64ReinterpretI64, wasm.ValueTypeF64},
}
