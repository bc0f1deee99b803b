package wazeroir

import "github.com/wasmi-go/wasmi/internal/wasm"

// Op is the register-IR opcode the executor dispatches on. Each Op is
// fixed-shape: it reads at most 3 register operands (Src1, Src2, Src3) and
// writes at most one (Dst); wider data (large constants, branch tables)
// lives out of line in CompiledBody's ConstantPool/BranchTargets and is
// referenced by Imm as an index.
type Op uint16

const (
	OpUnreachable Op = iota
	OpNop

	// OpConst materializes ConstantPool[Imm] into Dst. i32/i64/f32/f64 consts
	// are interned into the same 64-bit-wide pool; the operand's static type
	// (tracked by the translator, not the executor) says how to interpret it.
	OpConst
	// OpCopy moves Src1 to Dst; emitted by local.set/local.tee, local
	// preservation, and the argument/result moves of calls and returns.
	// Branch copy spans are CopySpanEntry moves, not OpCopy instructions.
	OpCopy

	OpLocalGet
	OpLocalSet
	OpGlobalGet
	OpGlobalSet

	// Numeric binops: Dst = Src1 OP Src2.
	OpI32Add
	OpI32Sub
	OpI32Mul
	OpI32DivS
	OpI32DivU
	OpI32RemS
	OpI32RemU
	OpI32And
	OpI32Or
	OpI32Xor
	OpI32Shl
	OpI32ShrS
	OpI32ShrU
	OpI32Rotl
	OpI32Rotr
	OpI64Add
	OpI64Sub
	OpI64Mul
	OpI64DivS
	OpI64DivU
	OpI64RemS
	OpI64RemU
	OpI64And
	OpI64Or
	OpI64Xor
	OpI64Shl
	OpI64ShrS
	OpI64ShrU
	OpI64Rotl
	OpI64Rotr
	OpF32Add
	OpF32Sub
	OpF32Mul
	OpF32Div
	OpF32Min
	OpF32Max
	OpF32Copysign
	OpF64Add
	OpF64Sub
	OpF64Mul
	OpF64Div
	OpF64Min
	OpF64Max
	OpF64Copysign

	// Unary ops: Dst = OP Src1.
	OpI32Clz
	OpI32Ctz
	OpI32Popcnt
	OpI64Clz
	OpI64Ctz
	OpI64Popcnt
	OpF32Abs
	OpF32Neg
	OpF32Ceil
	OpF32Floor
	OpF32Trunc
	OpF32Nearest
	OpF32Sqrt
	OpF64Abs
	OpF64Neg
	OpF64Ceil
	OpF64Floor
	OpF64Trunc
	OpF64Nearest
	OpF64Sqrt

	// Comparisons: Dst(i32 bool) = Src1 CMP Src2.
	OpI32Eqz
	OpI32Eq
	OpI32Ne
	OpI32LtS
	OpI32LtU
	OpI32GtS
	OpI32GtU
	OpI32LeS
	OpI32LeU
	OpI32GeS
	OpI32GeU
	OpI64Eqz
	OpI64Eq
	OpI64Ne
	OpI64LtS
	OpI64LtU
	OpI64GtS
	OpI64GtU
	OpI64LeS
	OpI64LeU
	OpI64GeS
	OpI64GeU
	OpF32Eq
	OpF32Ne
	OpF32Lt
	OpF32Gt
	OpF32Le
	OpF32Ge
	OpF64Eq
	OpF64Ne
	OpF64Lt
	OpF64Gt
	OpF64Le
	OpF64Ge

	// Fused comparisons, see compiler.go's tryFuseEqz and tryFuseCompareZero.
	OpCmpAndEqz
	OpCmpOrEqz
	OpCmpXorEqz
	OpCmpAndNez
	OpCmpOrNez
	OpCmpXorNez

	// Conversions.
	OpI32WrapI64
	OpI32TruncF32S
	OpI32TruncF32U
	OpI32TruncF64S
	OpI32TruncF64U
	OpI64ExtendI32S
	OpI64ExtendI32U
	OpI64TruncF32S
	OpI64TruncF32U
	OpI64TruncF64S
	OpI64TruncF64U
	OpF32ConvertI32S
	OpF32ConvertI32U
	OpF32ConvertI64S
	OpF32ConvertI64U
	OpF32DemoteF64
	OpF64ConvertI32S
	OpF64ConvertI32U
	OpF64ConvertI64S
	OpF64ConvertI64U
	OpF64PromoteF32
	OpI32ReinterpretF32
	OpI64ReinterpretF64
	OpF32ReinterpretI32
	OpF64ReinterpretI64
	OpI32Extend8S
	OpI32Extend16S
	OpI64Extend8S
	OpI64Extend16S
	OpI64Extend32S
	OpI32TruncSatF32S
	OpI32TruncSatF32U
	OpI32TruncSatF64S
	OpI32TruncSatF64U
	OpI64TruncSatF32S
	OpI64TruncSatF32U
	OpI64TruncSatF64S
	OpI64TruncSatF64U

	// Memory. Imm packs the static offset immediate; Src1 is the dynamic
	// address operand.
	OpI32Load
	OpI64Load
	OpF32Load
	OpF64Load
	OpI32Load8S
	OpI32Load8U
	OpI32Load16S
	OpI32Load16U
	OpI64Load8S
	OpI64Load8U
	OpI64Load16S
	OpI64Load16U
	OpI64Load32S
	OpI64Load32U
	OpI32Store
	OpI64Store
	OpF32Store
	OpF64Store
	OpI32Store8
	OpI32Store16
	OpI64Store8
	OpI64Store16
	OpI64Store32
	OpMemorySize
	OpMemoryGrow
	OpMemoryFill
	OpMemoryCopy
	OpMemoryInit
	OpDataDrop

	// Table.
	OpTableGet
	OpTableSet
	OpTableSize
	OpTableGrow
	OpTableFill
	OpTableCopy
	OpTableInit
	OpElemDrop

	// Reference.
	OpRefNull
	OpRefIsNull
	OpRefFunc

	// Control. BrTargetIndex (Imm) selects into CompiledBody.BranchTargets.
	OpBr
	OpBrIf
	OpBrTable
	OpReturn
	OpCall
	OpCallIndirect
	OpReturnCall
	OpReturnCallIndirect
	OpSelect

	// OpBrIfZ is a raw, copy-span-free conditional jump used only to lower
	// `if`/`else`: jump to the raw instruction offset in Imm when Src1 is
	// zero. Unlike OpBr/OpBrIf it does not index BranchTargets, since an
	// if's then/else arms share the enclosing frame's operand-stack shape
	// and need no register reconciliation.
	OpBrIfZ
	// OpJump is the raw-offset unconditional counterpart, used to skip an
	// else arm.
	OpJump
)

// Instruction is one fixed-shape IR cell.
type Instruction struct {
	Op   Op
	Dst  uint32
	Src1 uint32
	Src2 uint32
	Src3 uint32
	// Imm is opcode-specific: a constant-pool index for OpConst, a memory
	// offset for loads/stores, a BranchTargets index for OpBr/OpBrIf, a
	// BrTables index for OpBrTable, a raw instruction offset for
	// OpBrIfZ/OpJump, a callee function index for OpCall/OpReturnCall, or a
	// CallIndirects index for OpCallIndirect/OpReturnCallIndirect.
	Imm uint64
}

// BranchTarget is one entry of the side table that branch-carrying
// instructions index into via Instruction.Imm.
type BranchTarget struct {
	// IrOffset is the instruction index to jump to.
	IrOffset uint32
	// CopySpanStart/CopySpanLen slice into CompiledBody.CopySpans: the
	// register moves that reshape the operand stack to what the target
	// expects, executed before the jump takes effect.
	CopySpanStart uint32
	CopySpanLen   uint32
}

// CopySpanEntry is one register-to-register move of a copy span.
type CopySpanEntry struct {
	Src uint32
	Dst uint32
}

// BrTableTargets is referenced by an OpBrTable's Imm: Targets[i] for i in
// range, Targets[len(Targets)-1] (the default) otherwise.
type BrTableTargets struct {
	Targets []uint32 // indices into CompiledBody.BranchTargets
}

// CallIndirectImm is referenced by OpCallIndirect/OpReturnCallIndirect's Imm.
type CallIndirectImm struct {
	TypeIndex  wasm.Index
	TableIndex wasm.Index
}

// MemArgImm packs a load/store's static offset and, for bulk ops, nothing
// extra; kept as its own type for clarity even though today it's just a
// uint32 alias (Instruction.Imm itself is a uint64).
type MemArgImm = uint32

// CompiledBody is the translator's output for one function.
type CompiledBody struct {
	Instructions []Instruction
	ConstantPool []uint64
	BranchTargets []BranchTarget
	CopySpans     []CopySpanEntry
	BrTables      []BrTableTargets
	CallIndirects []CallIndirectImm

	// FrameSize is the number of value-stack slots (locals + max operand
	// depth) this function's frame occupies.
	FrameSize uint32
	// NumLocals is the count of declared locals (params + local decls);
	// FrameSize - NumLocals is the temp-register area.
	NumLocals uint32

	Type *wasm.FunctionType

	// BlockCosts gives the aggregate fuel cost of each basic block, indexed
	// by the IR offset of the block's first instruction; consulted by the
	// executor only when fuel metering is enabled.
	BlockCosts map[uint32]uint64
}
