package wazeroir

// fuelCost returns the static cost of one IR instruction, consulted only
// when a store has fuel metering enabled (RuntimeConfig.WithConsumeFuel).
// Control and memory operations cost more than arithmetic to roughly track
// the real work the executor does per instruction; the exact weights are
// not spec-mandated, only their monotonic-decrease property is.
func fuelCost(op Op) uint64 {
	switch op {
	case OpCall, OpCallIndirect, OpReturnCall, OpReturnCallIndirect:
		return 8
	case OpMemoryFill, OpMemoryCopy, OpMemoryInit, OpTableFill, OpTableCopy, OpTableInit:
		return 8
	case OpMemoryGrow, OpTableGrow:
		return 4
	case OpI32Load, OpI64Load, OpF32Load, OpF64Load,
		OpI32Load8S, OpI32Load8U, OpI32Load16S, OpI32Load16U,
		OpI64Load8S, OpI64Load8U, OpI64Load16S, OpI64Load16U, OpI64Load32S, OpI64Load32U,
		OpI32Store, OpI64Store, OpF32Store, OpF64Store,
		OpI32Store8, OpI32Store16, OpI64Store8, OpI64Store16, OpI64Store32:
		return 2
	case OpBr, OpBrIf, OpBrTable:
		return 1
	case OpNop, OpCopy:
		return 0
	default:
		return 1
	}
}

// basicBlockCost sums fuelCost over a contiguous instruction range.
func basicBlockCost(instrs []Instruction, start, end int) uint64 {
	var total uint64
	for i := start; i < end; i++ {
		total += fuelCost(instrs[i].Op)
	}
	return total
}
