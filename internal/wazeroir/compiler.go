package wazeroir

import (
	"fmt"

	"github.com/wasmi-go/wasmi/internal/leb128"
	"github.com/wasmi-go/wasmi/internal/wasm"
)

// TranslationLimitError is returned when a function exceeds an internal IR
// capacity, such as a branch-target offset too large to represent. It never
// fires on well-formed modules produced by a real toolchain; it exists as a
// defensive ceiling against adversarial input.
type TranslationLimitError struct{ Reason string }

func (e *TranslationLimitError) Error() string { return "translation limit exceeded: " + e.Reason }

type controlFrameKind byte

const (
	controlFrameKindBlock controlFrameKind = iota
	controlFrameKindLoop
	controlFrameKindIf
)

type controlFrame struct {
	kind               controlFrameKind
	blockType          *wasm.FunctionType
	stackHeightAtEntry int

	// loopHeaderTarget is the IR offset a loop frame's label resolves to
	// immediately; meaningless for block/if frames (left -1).
	loopHeaderTarget int
	isLoop           bool

	// pendingEndPatches collects branch-target indices (into c.branchTargets)
	// whose IrOffset is unknown until this frame's matching End is reached.
	pendingEndPatches []uint32

	// ifBranchInstr is the instruction index of this if-frame's conditional
	// branch, whose Imm (the "jump when false" destination) is patched at
	// Else or End. -1 for non-if frames.
	ifBranchInstr int
	// elseSkipInstr is the instruction index of the unconditional jump
	// emitted at Else to skip the else-arm when the then-arm falls through;
	// its Imm is patched at End. -1 if there was no else.
	elseSkipInstr int

	// unreachable marks that translation has passed an unconditional branch
	// or unreachable and is now in dead code until the matching else/end;
	// per the divergent-block rule, no operand produced after this point
	// may be treated as fusable once the frame itself is known divergent.
	unreachable bool
	// divergent becomes true once any br/br_if/br_table targets this frame
	// from its interior (not only by falling through).
	divergent bool
}

type compiler struct {
	module *wasm.Module
	sig    *wasm.FunctionType
	locals []wasm.ValueType // params ++ declared locals

	stack   []Operand
	frames  []controlFrame

	instrs        []Instruction
	constPool     []uint64
	constIndex    map[uint64]uint32
	branchTargets []BranchTarget
	copySpans     []CopySpanEntry
	brTables      []BrTableTargets
	callIndirects []CallIndirectImm

	maxFrameSize uint32
}

// Compile translates one function body into register-based IR.
func Compile(module *wasm.Module, sig *wasm.FunctionType, localTypes []wasm.ValueType, body []byte) (*CompiledBody, error) {
	locals := make([]wasm.ValueType, 0, len(sig.Params)+len(localTypes))
	locals = append(locals, sig.Params...)
	locals = append(locals, localTypes...)

	c := &compiler{
		module:     module,
		sig:        sig,
		locals:     locals,
		constIndex: map[uint64]uint32{},
	}
	c.maxFrameSize = uint32(len(locals))

	// The function body is itself an implicit block whose results are the
	// function's results; falling off the end behaves like reaching this
	// frame's end.
	c.frames = append(c.frames, newBlockFrame(controlFrameKindBlock, sig, 0))

	if err := c.translate(body); err != nil {
		return nil, err
	}

	cb := &CompiledBody{
		Instructions:  c.instrs,
		ConstantPool:  c.constPool,
		BranchTargets: c.branchTargets,
		CopySpans:     c.copySpans,
		BrTables:      c.brTables,
		CallIndirects: c.callIndirects,
		FrameSize:     c.maxFrameSize,
		NumLocals:     uint32(len(locals)),
		Type:          sig,
	}
	cb.BlockCosts = computeBlockCosts(cb.Instructions, cb.BranchTargets)
	return cb, nil
}

// computeBlockCosts aggregates fuelCost over every basic block, where a
// block boundary is any instruction that is a branch target or immediately
// follows a branch.
func computeBlockCosts(instrs []Instruction, targets []BranchTarget) map[uint32]uint64 {
	boundary := map[uint32]bool{0: true}
	for _, t := range targets {
		boundary[t.IrOffset] = true
	}
	for i, ins := range instrs {
		switch ins.Op {
		case OpBr, OpBrIf, OpBrTable, OpReturn, OpReturnCall, OpReturnCallIndirect, OpBrIfZ, OpJump:
			if i+1 < len(instrs) {
				boundary[uint32(i+1)] = true
			}
		}
		if ins.Op == OpBrIfZ || ins.Op == OpJump {
			boundary[uint32(ins.Imm)] = true
		}
	}
	var starts []uint32
	for s := range boundary {
		starts = append(starts, s)
	}
	costs := make(map[uint32]uint64, len(starts))
	for _, s := range starts {
		end := uint32(len(instrs))
		for _, other := range starts {
			if other > s && other < end {
				end = other
			}
		}
		costs[s] = basicBlockCost(instrs, int(s), int(end))
	}
	return costs
}

func newBlockFrame(kind controlFrameKind, bt *wasm.FunctionType, stackHeight int) controlFrame {
	return controlFrame{kind: kind, blockType: bt, stackHeightAtEntry: stackHeight, loopHeaderTarget: -1, ifBranchInstr: -1, elseSkipInstr: -1}
}

func (c *compiler) curFrame() *controlFrame { return &c.frames[len(c.frames)-1] }

func (c *compiler) localType(idx uint32) wasm.ValueType { return c.locals[idx] }

// push records a new operand-stack entry.
func (c *compiler) push(o Operand) { c.stack = append(c.stack, o) }

func (c *compiler) pop() Operand {
	n := len(c.stack)
	o := c.stack[n-1]
	c.stack = c.stack[:n-1]
	return o
}

// newTemp allocates a fresh virtual register per the high-water-mark rule:
// its index is the operand-stack depth (after popping this op's inputs)
// plus the local count.
func (c *compiler) newTemp() uint32 {
	reg := uint32(len(c.locals)) + uint32(len(c.stack))
	if reg+1 > c.maxFrameSize {
		c.maxFrameSize = reg + 1
	}
	return reg
}

// materialize returns the register an operand currently lives in, emitting
// an OpConst or OpCopy first if the operand hasn't been assigned one yet.
func (c *compiler) materialize(o Operand) uint32 {
	switch o.Kind {
	case OperandKindLocal:
		return o.LocalIndex
	case OperandKindConst:
		reg := c.newTemp()
		c.emit(Instruction{Op: OpConst, Dst: reg, Imm: uint64(c.intern(o.ConstValue))})
		return reg
	default:
		return o.Register
	}
}

func (c *compiler) intern(v uint64) uint32 {
	if idx, ok := c.constIndex[v]; ok {
		return idx
	}
	idx := uint32(len(c.constPool))
	c.constPool = append(c.constPool, v)
	c.constIndex[v] = idx
	return idx
}

func (c *compiler) emit(i Instruction) uint32 {
	idx := uint32(len(c.instrs))
	c.instrs = append(c.instrs, i)
	return idx
}

// emitBinop pops two operands, constant-folds when both are known, applies
// identity/annihilator simplification, and otherwise emits op.
func (c *compiler) emitBinop(op Op, t wasm.ValueType, fold func(a, b uint64) (uint64, bool)) {
	b := c.pop()
	a := c.pop()
	if a.isConst() && b.isConst() && fold != nil {
		if v, ok := fold(a.ConstValue, b.ConstValue); ok {
			c.push(constOperand(v, t))
			return
		}
	}
	if simplified, ok := c.simplifyIdentity(op, a, b, t); ok {
		c.push(simplified)
		return
	}
	// b is materialized with a still counted on the stack, so a constant b
	// lands in its own slot instead of overwriting a's register.
	ra := c.materialize(a)
	c.stack = append(c.stack, a)
	rb := c.materialize(b)
	c.stack = c.stack[:len(c.stack)-1]
	dst := c.newTemp()
	c.emit(Instruction{Op: op, Dst: dst, Src1: ra, Src2: rb})
	c.push(tempOperand(dst, t, !c.curFrame().divergent))
}

// simplifyIdentity implements "x+0, 0+x, x*1, 1*x → x" and "x*0, 0*x → 0"
// when the non-constant side has no trapping potential (Local, Const, or
// already-computed Temp — i.e. anything already on the stack, since a
// not-yet-emitted expression never reaches here as an Operand).
func (c *compiler) simplifyIdentity(op Op, a, b Operand, t wasm.ValueType) (Operand, bool) {
	isAddLike := op == OpI32Add || op == OpI64Add
	isMulLike := op == OpI32Mul || op == OpI64Mul
	zero := func(o Operand) bool { return o.isConst() && o.ConstValue == 0 }
	one := func(o Operand) bool { return o.isConst() && o.ConstValue == 1 }
	switch {
	case isAddLike && zero(b):
		return a, true
	case isAddLike && zero(a):
		return b, true
	case isMulLike && one(b):
		return a, true
	case isMulLike && one(a):
		return b, true
	case isMulLike && (zero(a) || zero(b)):
		return constOperand(0, t), true
	}
	return Operand{}, false
}

func (c *compiler) emitUnop(op Op, t wasm.ValueType, fold func(a uint64) (uint64, bool)) {
	a := c.pop()
	if a.isConst() && fold != nil {
		if v, ok := fold(a.ConstValue); ok {
			c.push(constOperand(v, t))
			return
		}
	}
	ra := c.materialize(a)
	dst := c.newTemp()
	c.emit(Instruction{Op: op, Dst: dst, Src1: ra})
	c.push(tempOperand(dst, t, !c.curFrame().divergent))
}

// preserveLocal is called before a local.set/tee writes to idx: any operand
// still referencing Local(idx) on the stack is rewritten to Preserved(r) so
// the write doesn't retroactively change an already-pushed value.
func (c *compiler) preserveLocal(idx uint32) {
	for i, o := range c.stack {
		if o.Kind == OperandKindLocal && o.LocalIndex == idx {
			reg := c.newTemp()
			c.emit(Instruction{Op: OpCopy, Dst: reg, Src1: idx})
			c.stack[i] = Operand{Kind: OperandKindPreserved, Register: reg, Type: o.Type, fusable: o.fusable}
		}
	}
}

// allocBranchTarget reserves a side-table entry with a copy span
// reconciling the current top `arity` stack values into dest registers
// destBase..destBase+arity. If irOffset < 0, the offset is pending and the
// caller must register the returned index against some frame's
// pendingEndPatches.
func (c *compiler) allocBranchTarget(irOffset int, arity int, destBase uint32) uint32 {
	start := uint32(len(c.copySpans))
	n := len(c.stack)
	for i := 0; i < arity; i++ {
		src := c.materialize(c.stack[n-arity+i])
		c.copySpans = append(c.copySpans, CopySpanEntry{Src: src, Dst: destBase + uint32(i)})
	}
	off := uint32(0)
	if irOffset >= 0 {
		off = uint32(irOffset)
	}
	idx := uint32(len(c.branchTargets))
	c.branchTargets = append(c.branchTargets, BranchTarget{IrOffset: off, CopySpanStart: start, CopySpanLen: uint32(arity)})
	return idx
}

func (c *compiler) patchBranchTarget(idx uint32, offset uint32) {
	c.branchTargets[idx].IrOffset = offset
}

// frameResultArity returns the number of values a branch to frame leaves
// behind: a loop's label is its header (arity = param count, since looping
// re-enters with the loop's parameters); a block/if's label is its end
// (arity = result count).
func frameResultArity(f *controlFrame) (int, uint32) {
	if f.isLoop {
		return len(f.blockType.Params), uint32(f.stackHeightAtEntry)
	}
	return len(f.blockType.Results), uint32(f.stackHeightAtEntry)
}

// frameDestBase returns the register base where a branch's reconciled
// values should land: the same registers the frame's own params/results
// already occupy, i.e. immediately above its enclosing locals+temps, which
// by construction is stackHeightAtEntry-relative register numbering. Since
// registers are assigned by stack depth at allocation time, the simplest
// correct destination is the register bank starting at
// len(locals)+stackHeightAtEntry.
func (c *compiler) frameDestBase(f *controlFrame) uint32 {
	return uint32(len(c.locals)) + uint32(f.stackHeightAtEntry)
}

func (c *compiler) translate(body []byte) error {
	var pc uint64
	for pc < uint64(len(body)) {
		op := body[pc]
		pc++
		var err error
		pc, err = c.translateOp(op, body, pc)
		if err != nil {
			return err
		}
		if op == wasm.OpcodeEnd && len(c.frames) == 0 {
			break
		}
	}
	return nil
}

func readIndex(body []byte, pc uint64) (uint32, uint64) {
	v, n, _ := leb128.DecodeUint32(body, pc)
	return v, n
}

func readBlockType(body []byte, pc uint64, module *wasm.Module) (*wasm.FunctionType, uint64) {
	b := body[pc]
	if b == 0x40 {
		return &wasm.FunctionType{}, pc + 1
	}
	switch b {
	case wasm.ValueTypeI32, wasm.ValueTypeI64, wasm.ValueTypeF32, wasm.ValueTypeF64, wasm.ValueTypeFuncref, wasm.ValueTypeExternref:
		return &wasm.FunctionType{Results: []wasm.ValueType{b}}, pc + 1
	}
	idx, n, _ := leb128.DecodeInt32(body, pc)
	return module.TypeSection[idx], n
}

func (c *compiler) translateOp(op byte, body []byte, pc uint64) (uint64, error) {
	frame := c.curFrame()
	if frame.unreachable && op != wasm.OpcodeEnd && op != wasm.OpcodeElse {
		// Dead code: still must consume immediates so pc tracking stays
		// correct for the outer loop, but no IR is emitted and no operand
		// typing is enforced (the external validator already checked types).
		return c.skipImmediates(op, body, pc)
	}

	switch op {
	case wasm.OpcodeUnreachable:
		c.emit(Instruction{Op: OpUnreachable})
		frame.unreachable = true
		return pc, nil
	case wasm.OpcodeNop:
		return pc, nil
	case wasm.OpcodeBlock:
		bt, npc := readBlockType(body, pc, c.module)
		c.frames = append(c.frames, newBlockFrame(controlFrameKindBlock, bt, len(c.stack)))
		return npc, nil
	case wasm.OpcodeLoop:
		bt, npc := readBlockType(body, pc, c.module)
		header := uint32(len(c.instrs))
		f := newBlockFrame(controlFrameKindLoop, bt, len(c.stack))
		f.isLoop = true
		f.loopHeaderTarget = int(header)
		c.frames = append(c.frames, f)
		return npc, nil
	case wasm.OpcodeIf:
		bt, npc := readBlockType(body, pc, c.module)
		cond := c.pop()
		condReg := c.materialize(cond)
		// Reserve the conditional-branch cell now; its Imm is patched to
		// the else/end offset once known (it is the "jump when false"
		// target), following the pending-patch discipline for forward
		// branches generally.
		brIdx := c.emit(Instruction{Op: OpBrIfZ, Src1: condReg})
		f := newBlockFrame(controlFrameKindIf, bt, len(c.stack))
		f.ifBranchInstr = int(brIdx)
		c.frames = append(c.frames, f)
		return npc, nil
	case wasm.OpcodeElse:
		f := c.curFrame()
		f.unreachable = false
		// Unconditionally skip the else arm when falling out of a taken
		// then-arm.
		skip := c.emit(Instruction{Op: OpJump})
		if f.ifBranchInstr >= 0 {
			c.instrs[f.ifBranchInstr].Imm = uint64(len(c.instrs))
		}
		f.elseSkipInstr = int(skip)
		return pc, nil
	case wasm.OpcodeEnd:
		return pc, c.endBlock()
	case wasm.OpcodeBr:
		idx, npc := readIndex(body, pc)
		c.emitBr(int(idx))
		c.curFrame().unreachable = true
		return npc, nil
	case wasm.OpcodeBrIf:
		idx, npc := readIndex(body, pc)
		c.emitBrIf(int(idx))
		return npc, nil
	case wasm.OpcodeBrTable:
		return c.translateBrTable(body, pc)
	case wasm.OpcodeReturn:
		c.emitReturn()
		c.curFrame().unreachable = true
		return pc, nil
	case wasm.OpcodeCall:
		idx, npc := readIndex(body, pc)
		c.emitCall(idx, false)
		return npc, nil
	case wasm.OpcodeCallIndirect:
		typeIdx, p1 := readIndex(body, pc)
		tableIdx, p2 := readIndex(body, p1)
		c.emitCallIndirect(typeIdx, tableIdx, false)
		return p2, nil
	case wasm.OpcodeReturnCall:
		idx, npc := readIndex(body, pc)
		c.emitCall(idx, true)
		c.curFrame().unreachable = true
		return npc, nil
	case wasm.OpcodeReturnCallIndirect:
		typeIdx, p1 := readIndex(body, pc)
		tableIdx, p2 := readIndex(body, p1)
		c.emitCallIndirect(typeIdx, tableIdx, true)
		c.curFrame().unreachable = true
		return p2, nil
	case wasm.OpcodeDrop:
		c.pop()
		return pc, nil
	case wasm.OpcodeSelect, wasm.OpcodeTypedSelect:
		npc := pc
		if op == wasm.OpcodeTypedSelect {
			_, n := readIndex(body, pc) // vec count (always 1) -- skip type too
			_, n = readIndex(body, n)
			npc = n
		}
		cond := c.pop()
		b := c.pop()
		a := c.pop()
		if cond.isConst() {
			if cond.ConstValue != 0 {
				c.push(a)
			} else {
				c.push(b)
			}
			return npc, nil
		}
		ra, rb, rc := c.materialize(a), c.materialize(b), c.materialize(cond)
		dst := c.newTemp()
		c.emit(Instruction{Op: OpSelect, Dst: dst, Src1: ra, Src2: rb, Src3: rc})
		c.push(tempOperand(dst, a.Type, !frame.divergent))
		return npc, nil
	case wasm.OpcodeLocalGet:
		idx, npc := readIndex(body, pc)
		c.push(localOperand(idx, c.localType(idx)))
		return npc, nil
	case wasm.OpcodeLocalSet, wasm.OpcodeLocalTee:
		idx, npc := readIndex(body, pc)
		// The stored value v is read by the copy below before the local
		// changes, so it needs no preserving; its slot stays occupied by a
		// placeholder so no preserved copy lands on v's register.
		v := c.pop()
		c.push(Operand{Kind: OperandKindTemp, Register: v.Register})
		c.preserveLocal(idx)
		c.pop()
		if v.isConst() {
			reg := c.newTemp()
			c.emit(Instruction{Op: OpConst, Dst: reg, Imm: uint64(c.intern(v.ConstValue))})
			c.emit(Instruction{Op: OpCopy, Dst: idx, Src1: reg})
		} else {
			c.emit(Instruction{Op: OpCopy, Dst: idx, Src1: c.materialize(v)})
		}
		if op == wasm.OpcodeLocalTee {
			c.push(localOperand(idx, c.localType(idx)))
		}
		return npc, nil
	case wasm.OpcodeGlobalGet:
		idx, npc := readIndex(body, pc)
		gt := c.globalType(idx)
		dst := c.newTemp()
		c.emit(Instruction{Op: OpGlobalGet, Dst: dst, Imm: uint64(idx)})
		c.push(tempOperand(dst, gt, !frame.divergent))
		return npc, nil
	case wasm.OpcodeGlobalSet:
		idx, npc := readIndex(body, pc)
		v := c.pop()
		c.emit(Instruction{Op: OpGlobalSet, Src1: c.materialize(v), Imm: uint64(idx)})
		return npc, nil
	case wasm.OpcodeI32Const:
		v, npc, _ := leb128.DecodeInt32(body, pc)
		c.push(constOperand(uint64(uint32(v)), wasm.ValueTypeI32))
		return npc, nil
	case wasm.OpcodeI64Const:
		v, npc, _ := leb128.DecodeInt64(body, pc)
		c.push(constOperand(uint64(v), wasm.ValueTypeI64))
		return npc, nil
	case wasm.OpcodeF32Const:
		v, npc, _ := leb128.DecodeFloat32(body, pc)
		c.push(constOperand(uint64(v), wasm.ValueTypeF32))
		return npc, nil
	case wasm.OpcodeF64Const:
		v, npc, _ := leb128.DecodeFloat64(body, pc)
		c.push(constOperand(v, wasm.ValueTypeF64))
		return npc, nil
	case wasm.OpcodeRefNull:
		npc := pc + 1 // reftype byte
		t := body[pc]
		c.push(constOperand(0, t))
		return npc, nil
	case wasm.OpcodeRefIsNull:
		c.emitUnop(OpRefIsNull, wasm.ValueTypeI32, func(a uint64) (uint64, bool) {
			if a == 0 {
				return 1, true
			}
			return 0, true
		})
		return pc, nil
	case wasm.OpcodeRefFunc:
		idx, npc := readIndex(body, pc)
		dst := c.newTemp()
		c.emit(Instruction{Op: OpRefFunc, Dst: dst, Imm: uint64(idx)})
		c.push(tempOperand(dst, wasm.ValueTypeFuncref, !frame.divergent))
		return npc, nil
	case wasm.OpcodeTableGet, wasm.OpcodeTableSet:
		tableIdx, npc := readIndex(body, pc)
		if op == wasm.OpcodeTableGet {
			idxOperand := c.pop()
			dst := c.newTemp()
			c.emit(Instruction{Op: OpTableGet, Dst: dst, Src1: c.materialize(idxOperand), Imm: uint64(tableIdx)})
			c.push(tempOperand(dst, c.tableType(tableIdx), !frame.divergent))
		} else {
			v := c.pop()
			idxOperand := c.pop()
			c.emit(Instruction{Op: OpTableSet, Src1: c.materialize(idxOperand), Src2: c.materialize(v), Imm: uint64(tableIdx)})
		}
		return npc, nil
	case wasm.OpcodeMemorySize:
		npc := pc + 1 // reserved memidx byte
		dst := c.newTemp()
		c.emit(Instruction{Op: OpMemorySize, Dst: dst})
		c.push(tempOperand(dst, wasm.ValueTypeI32, !frame.divergent))
		return npc, nil
	case wasm.OpcodeMemoryGrow:
		npc := pc + 1
		delta := c.pop()
		dst := c.newTemp()
		c.emit(Instruction{Op: OpMemoryGrow, Dst: dst, Src1: c.materialize(delta)})
		c.push(tempOperand(dst, wasm.ValueTypeI32, !frame.divergent))
		return npc, nil
	case wasm.OpcodeMiscPrefix:
		return c.translateMisc(body, pc)
	}

	if info, ok := loadStoreTable[op]; ok {
		return c.translateLoadStore(info, body, pc)
	}
	if info, ok := binopTable[op]; ok {
		b := c.pop()
		a := c.pop()
		c.stack = append(c.stack, a, b)
		c.emitBinop(info.op, info.result, info.fold)
		return pc, nil
	}
	if info, ok := unopTable[op]; ok {
		c.emitUnop(info.op, info.result, info.fold)
		return pc, nil
	}
	if info, ok := cmpTable[op]; ok {
		return c.translateCompare(info, body, pc)
	}
	if info, ok := convertTable[op]; ok {
		c.emitUnop(info.op, info.result, nil)
		return pc, nil
	}
	return pc, fmt.Errorf("wazeroir: unsupported opcode 0x%02x", op)
}

// skipImmediates advances pc past op's immediates without emitting IR,
// while still tracking control-frame nesting so End/Else are recognized.
func (c *compiler) skipImmediates(op byte, body []byte, pc uint64) (uint64, error) {
	switch op {
	case wasm.OpcodeBlock, wasm.OpcodeLoop, wasm.OpcodeIf:
		_, npc := readBlockType(body, pc, c.module)
		f := newBlockFrame(controlFrameKindBlock, &wasm.FunctionType{}, len(c.stack))
		f.unreachable = true
		c.frames = append(c.frames, f)
		return npc, nil
	case wasm.OpcodeEnd:
		c.frames = c.frames[:len(c.frames)-1]
		return pc, nil
	case wasm.OpcodeElse:
		return pc, nil
	case wasm.OpcodeBr, wasm.OpcodeBrIf, wasm.OpcodeCall, wasm.OpcodeReturnCall, wasm.OpcodeLocalGet, wasm.OpcodeLocalSet, wasm.OpcodeLocalTee,
		wasm.OpcodeGlobalGet, wasm.OpcodeGlobalSet, wasm.OpcodeI32Const, wasm.OpcodeRefFunc, wasm.OpcodeTableGet, wasm.OpcodeTableSet:
		_, npc := readIndex(body, pc)
		return npc, nil
	case wasm.OpcodeI64Const:
		_, npc, _ := leb128.DecodeInt64(body, pc)
		return npc, nil
	case wasm.OpcodeF32Const:
		return pc + 4, nil
	case wasm.OpcodeF64Const:
		return pc + 8, nil
	case wasm.OpcodeCallIndirect, wasm.OpcodeReturnCallIndirect, wasm.OpcodeTypedSelect:
		_, p1 := readIndex(body, pc)
		_, p2 := readIndex(body, p1)
		return p2, nil
	case wasm.OpcodeMiscPrefix:
		sub, p1 := readIndex(body, pc)
		switch byte(sub) {
		case wasm.OpcodeMiscMemoryInit, wasm.OpcodeMiscMemoryCopy, wasm.OpcodeMiscTableInit, wasm.OpcodeMiscTableCopy:
			_, p2 := readIndex(body, p1)
			_, p3 := readIndex(body, p2)
			return p3, nil
		case wasm.OpcodeMiscDataDrop, wasm.OpcodeMiscMemoryFill, wasm.OpcodeMiscElemDrop,
			wasm.OpcodeMiscTableGrow, wasm.OpcodeMiscTableSize, wasm.OpcodeMiscTableFill:
			_, p2 := readIndex(body, p1)
			return p2, nil
		}
		return p1, nil
	case wasm.OpcodeBrTable:
		count, p1 := readIndex(body, pc)
		p := p1
		for i := uint32(0); i <= count; i++ {
			_, p = readIndex(body, p)
		}
		return p, nil
	case wasm.OpcodeMemorySize, wasm.OpcodeMemoryGrow, wasm.OpcodeRefNull:
		return pc + 1, nil
	default:
		if info, ok := loadStoreTable[op]; ok {
			_ = info
			_, p1 := readIndex(body, pc) // align
			_, p2 := readIndex(body, p1) // offset
			return p2, nil
		}
		return pc, nil
	}
}

func (c *compiler) globalType(idx uint32) wasm.ValueType {
	importCount := 0
	for _, imp := range c.module.ImportSection {
		if imp.Type == wasm.ExternTypeGlobal {
			if uint32(importCount) == idx {
				return imp.DescGlobal.ValType
			}
			importCount++
		}
	}
	return c.module.GlobalSection[int(idx)-importCount].Type.ValType
}

func (c *compiler) tableType(idx uint32) wasm.ValueType {
	if int(idx) < len(c.module.TableSection) {
		return c.module.TableSection[idx].ElemType
	}
	return wasm.ValueTypeFuncref
}

func (c *compiler) emitBr(relativeDepth int) {
	target := &c.frames[len(c.frames)-1-relativeDepth]
	arity, destBase := frameResultArity(target)
	var btIdx uint32
	if target.isLoop {
		btIdx = c.allocBranchTarget(target.loopHeaderTarget, arity, destBase)
	} else {
		btIdx = c.allocBranchTarget(-1, arity, destBase)
		target.pendingEndPatches = append(target.pendingEndPatches, btIdx)
	}
	c.emit(Instruction{Op: OpBr, Imm: uint64(btIdx)})
	target.divergent = true
}

func (c *compiler) emitBrIf(relativeDepth int) {
	cond := c.pop()
	target := &c.frames[len(c.frames)-1-relativeDepth]
	arity, destBase := frameResultArity(target)
	var btIdx uint32
	if target.isLoop {
		btIdx = c.allocBranchTarget(target.loopHeaderTarget, arity, destBase)
	} else {
		btIdx = c.allocBranchTarget(-1, arity, destBase)
		target.pendingEndPatches = append(target.pendingEndPatches, btIdx)
	}
	c.emit(Instruction{Op: OpBrIf, Src1: c.materialize(cond), Imm: uint64(btIdx)})
	target.divergent = true
}

func (c *compiler) translateBrTable(body []byte, pc uint64) (uint64, error) {
	count, p1 := readIndex(body, pc)
	var targetDepths []uint32
	p := p1
	for i := uint32(0); i < count; i++ {
		d, np := readIndex(body, p)
		targetDepths = append(targetDepths, d)
		p = np
	}
	defaultDepth, p2 := readIndex(body, p)

	selector := c.pop()
	var btIndices []uint32
	emitOne := func(depth uint32) uint32 {
		target := &c.frames[len(c.frames)-1-int(depth)]
		arity, destBase := frameResultArity(target)
		var idx uint32
		if target.isLoop {
			idx = c.allocBranchTarget(target.loopHeaderTarget, arity, destBase)
		} else {
			idx = c.allocBranchTarget(-1, arity, destBase)
			target.pendingEndPatches = append(target.pendingEndPatches, idx)
		}
		target.divergent = true
		return idx
	}
	for _, d := range targetDepths {
		btIndices = append(btIndices, emitOne(d))
	}
	btIndices = append(btIndices, emitOne(defaultDepth))

	tableIdx := uint32(len(c.brTables))
	c.brTables = append(c.brTables, BrTableTargets{Targets: btIndices})
	c.emit(Instruction{Op: OpBrTable, Src1: c.materialize(selector), Imm: uint64(tableIdx)})
	c.curFrame().unreachable = true
	return p2, nil
}

func (c *compiler) emitReturn() {
	arity := len(c.sig.Results)
	n := len(c.stack)
	for i := 0; i < arity; i++ {
		reg := c.materialize(c.stack[n-arity+i])
		c.emit(Instruction{Op: OpCopy, Dst: uint32(i), Src1: reg})
	}
	c.emit(Instruction{Op: OpReturn})
}

func (c *compiler) emitCall(funcIdx uint32, tail bool) {
	sig := c.module.TypeOfFunction(funcIdx)
	n := len(sig.Params)
	results := len(c.stack)
	argBase := uint32(results - n)
	for i := 0; i < n; i++ {
		reg := c.materialize(c.stack[results-n+i])
		_ = argBase
		c.emit(Instruction{Op: OpCopy, Dst: uint32(len(c.locals)) + uint32(results-n+i), Src1: reg})
	}
	c.stack = c.stack[:results-n]
	op := OpCall
	if tail {
		op = OpReturnCall
	}
	dst := uint32(len(c.locals)) + uint32(len(c.stack))
	if need := dst + uint32(max(n, len(sig.Results))); need > c.maxFrameSize {
		c.maxFrameSize = need
	}
	c.emit(Instruction{Op: op, Dst: dst, Imm: uint64(funcIdx)})
	for i, rt := range sig.Results {
		c.push(tempOperand(dst+uint32(i), rt, !c.curFrame().divergent))
	}
}

func (c *compiler) emitCallIndirect(typeIdx, tableIdx uint32, tail bool) {
	sig := c.module.TypeSection[typeIdx]
	tableOperand := c.pop()
	n := len(sig.Params)
	results := len(c.stack)
	for i := 0; i < n; i++ {
		reg := c.materialize(c.stack[results-n+i])
		c.emit(Instruction{Op: OpCopy, Dst: uint32(len(c.locals)) + uint32(results-n+i), Src1: reg})
	}
	c.stack = c.stack[:results-n]
	ciIdx := uint32(len(c.callIndirects))
	c.callIndirects = append(c.callIndirects, CallIndirectImm{TypeIndex: typeIdx, TableIndex: tableIdx})
	op := OpCallIndirect
	if tail {
		op = OpReturnCallIndirect
	}
	dst := uint32(len(c.locals)) + uint32(len(c.stack))
	if need := dst + uint32(max(n, len(sig.Results))); need > c.maxFrameSize {
		c.maxFrameSize = need
	}
	c.emit(Instruction{Op: op, Dst: dst, Src1: c.materialize(tableOperand), Imm: uint64(ciIdx)})
	for i, rt := range sig.Results {
		c.push(tempOperand(dst+uint32(i), rt, !c.curFrame().divergent))
	}
}

func (c *compiler) endBlock() error {
	f := c.curFrame()
	if f.kind == controlFrameKindIf && f.ifBranchInstr >= 0 && f.elseSkipInstr < 0 {
		// `if` with no else: the false-branch target is simply the end.
		c.instrs[f.ifBranchInstr].Imm = uint64(len(c.instrs))
	}
	if f.elseSkipInstr >= 0 {
		c.instrs[f.elseSkipInstr].Imm = uint64(len(c.instrs))
	}
	endOffset := uint32(len(c.instrs))
	for _, idx := range f.pendingEndPatches {
		c.patchBranchTarget(idx, endOffset)
	}

	// Reconcile the stack to the block's declared results: truncate back to
	// stackHeightAtEntry worth of operands plus the result values, which by
	// construction are already the top of stack (the translator never
	// leaves extra junk because Wasm validation guarantees stack shape).
	results := f.blockType.Results
	top := c.stack[len(c.stack)-len(results):]
	resultOperands := append([]Operand(nil), top...)
	c.stack = c.stack[:f.stackHeightAtEntry]
	c.stack = append(c.stack, resultOperands...)

	c.frames = c.frames[:len(c.frames)-1]
	if len(c.frames) > 0 {
		c.curFrame().unreachable = false
	} else {
		// The function body's own end returns its results, as `return` does.
		c.emitReturn()
	}
	return nil
}

func (c *compiler) translateCompare(info cmpInfo, body []byte, pc uint64) (uint64, error) {
	if info.isEqz {
		a := c.pop()
		if fused, ok := c.tryFuseEqz(a); ok {
			c.push(fused)
			return pc, nil
		}
		if a.isConst() {
			c.push(constOperand(boolVal(a.ConstValue == 0), wasm.ValueTypeI32))
			return pc, nil
		}
		ra := c.materialize(a)
		dst := c.newTemp()
		c.emit(Instruction{Op: info.op, Dst: dst, Src1: ra})
		c.push(tempOperand(dst, wasm.ValueTypeI32, !c.curFrame().divergent))
		return pc, nil
	}
	b := c.pop()
	a := c.pop()
	if a.isConst() && b.isConst() && info.fold != nil {
		if v, ok := info.fold(a.ConstValue, b.ConstValue); ok {
			c.push(constOperand(v, wasm.ValueTypeI32))
			return pc, nil
		}
	}
	if info.isEqzOrNez {
		negate := info.op == OpI32Ne || info.op == OpI64Ne
		if b.isConst() && b.ConstValue == 0 {
			if fused, ok := c.tryFuseCompareZero(a, negate); ok {
				c.push(fused)
				return pc, nil
			}
		} else if a.isConst() && a.ConstValue == 0 {
			if fused, ok := c.tryFuseCompareZero(b, negate); ok {
				c.push(fused)
				return pc, nil
			}
		}
	}
	// As in emitBinop: keep a counted while materializing b.
	ra := c.materialize(a)
	c.stack = append(c.stack, a)
	rb := c.materialize(b)
	c.stack = c.stack[:len(c.stack)-1]
	dst := c.newTemp()
	c.emit(Instruction{Op: info.op, Dst: dst, Src1: ra, Src2: rb})
	c.push(tempOperand(dst, wasm.ValueTypeI32, !c.curFrame().divergent))
	return pc, nil
}

// tryFuseEqz implements the fused `eqz (a AND/OR/XOR b)` forms, and eqz's
// own double-negation over an already-fused comparison (`eqz (eqz x)` is
// `nez x`, and vice versa) — both collapse a trailing instruction into one
// fused op instead of two. Only applies when a is still the fusable pending
// result of the immediately preceding instruction, i.e. nothing else has
// consumed or reordered around it since.
func (c *compiler) tryFuseEqz(a Operand) (Operand, bool) {
	if a.Kind != OperandKindTemp || !a.fusable {
		return Operand{}, false
	}
	if len(c.instrs) == 0 {
		return Operand{}, false
	}
	last := c.instrs[len(c.instrs)-1]
	if last.Dst != a.Register {
		return Operand{}, false
	}
	var fusedOp Op
	switch last.Op {
	case OpI32And, OpI64And:
		fusedOp = OpCmpAndEqz
	case OpI32Or, OpI64Or:
		fusedOp = OpCmpOrEqz
	case OpI32Xor, OpI64Xor:
		fusedOp = OpCmpXorEqz
	case OpCmpAndEqz:
		fusedOp = OpCmpAndNez
	case OpCmpOrEqz:
		fusedOp = OpCmpOrNez
	case OpCmpXorEqz:
		fusedOp = OpCmpXorNez
	case OpCmpAndNez:
		fusedOp = OpCmpAndEqz
	case OpCmpOrNez:
		fusedOp = OpCmpOrEqz
	case OpCmpXorNez:
		fusedOp = OpCmpXorEqz
	default:
		return Operand{}, false
	}
	// Replace the trailing instruction in place with the fused form,
	// reusing its operands and destination register.
	c.instrs[len(c.instrs)-1] = Instruction{Op: fusedOp, Dst: last.Dst, Src1: last.Src1, Src2: last.Src2}
	return tempOperand(last.Dst, wasm.ValueTypeI32, !c.curFrame().divergent), true
}

// tryFuseCompareZero extends tryFuseEqz to the binary forms `i32.eq (a AND/OR/XOR b) 0`
// and `i32.ne (a AND/OR/XOR b) 0` (and the i64 equivalents): comparing an and/or/xor
// result against zero is exactly the eqz (negate=false) or nez (negate=true) of that
// result, so it fuses into the same cmp_*_eqz/cmp_*_nez instructions as the unary
// i32.eqz/i64.eqz forms. tryFuseEqz always produces the eqz-sense fusion (including
// correctly un-negating an already-fused operand); negate then flips that single
// trailing instruction to its nez counterpart when the source opcode was ne rather
// than eq.
func (c *compiler) tryFuseCompareZero(a Operand, negate bool) (Operand, bool) {
	fused, ok := c.tryFuseEqz(a)
	if !ok {
		return Operand{}, false
	}
	if !negate {
		return fused, true
	}
	last := &c.instrs[len(c.instrs)-1]
	switch last.Op {
	case OpCmpAndEqz:
		last.Op = OpCmpAndNez
	case OpCmpOrEqz:
		last.Op = OpCmpOrNez
	case OpCmpXorEqz:
		last.Op = OpCmpXorNez
	case OpCmpAndNez:
		last.Op = OpCmpAndEqz
	case OpCmpOrNez:
		last.Op = OpCmpOrEqz
	case OpCmpXorNez:
		last.Op = OpCmpXorEqz
	}
	return fused, true
}

type memArgInfo struct {
	op    Op
	width uint32
}

var loadStoreTable = map[byte]memArgInfo{
	wasm.OpcodeI32Load: {OpI32Load, 4}, wasm.OpcodeI64Load: {OpI64Load, 8},
	wasm.OpcodeF32Load: {OpF32Load, 4}, wasm.OpcodeF64Load: {OpF64Load, 8},
	wasm.OpcodeI32Load8S: {OpI32Load8S, 1}, wasm.OpcodeI32Load8U: {OpI32Load8U, 1},
	wasm.OpcodeI32Load16S: {OpI32Load16S, 2}, wasm.OpcodeI32Load16U: {OpI32Load16U, 2},
	wasm.OpcodeI64Load8S: {OpI64Load8S, 1}, wasm.OpcodeI64Load8U: {OpI64Load8U, 1},
	wasm.OpcodeI64Load16S: {OpI64Load16S, 2}, wasm.OpcodeI64Load16U: {OpI64Load16U, 2},
	wasm.OpcodeI64Load32S: {OpI64Load32S, 4}, wasm.OpcodeI64Load32U: {OpI64Load32U, 4},
	wasm.OpcodeI32Store: {OpI32Store, 4}, wasm.OpcodeI64Store: {OpI64Store, 8},
	wasm.OpcodeF32Store: {OpF32Store, 4}, wasm.OpcodeF64Store: {OpF64Store, 8},
	wasm.OpcodeI32Store8: {OpI32Store8, 1}, wasm.OpcodeI32Store16: {OpI32Store16, 2},
	wasm.OpcodeI64Store8: {OpI64Store8, 1}, wasm.OpcodeI64Store16: {OpI64Store16, 2}, wasm.OpcodeI64Store32: {OpI64Store32, 4},
}

func (c *compiler) translateLoadStore(info memArgInfo, body []byte, pc uint64) (uint64, error) {
	_, p1 := readIndex(body, pc) // align, unused: executor doesn't need alignment hints
	offset, p2 := readIndex(body, p1)

	if isStoreOp(info.op) {
		v := c.pop()
		addr := c.pop()
		c.emit(Instruction{Op: info.op, Src1: c.materialize(addr), Src2: c.materialize(v), Imm: uint64(offset)})
		return p2, nil
	}
	addr := c.pop()
	dst := c.newTemp()
	c.emit(Instruction{Op: info.op, Dst: dst, Src1: c.materialize(addr), Imm: uint64(offset)})
	c.push(tempOperand(dst, loadResultType(info.op), !c.curFrame().divergent))
	return p2, nil
}

func isStoreOp(op Op) bool {
	switch op {
	case OpI32Store, OpI64Store, OpF32Store, OpF64Store, OpI32Store8, OpI32Store16, OpI64Store8, OpI64Store16, OpI64Store32:
		return true
	}
	return false
}

func loadResultType(op Op) wasm.ValueType {
	switch op {
	case OpI64Load, OpI64Load8S, OpI64Load8U, OpI64Load16S, OpI64Load16U, OpI64Load32S, OpI64Load32U:
		return wasm.ValueTypeI64
	case OpF32Load:
		return wasm.ValueTypeF32
	case OpF64Load:
		return wasm.ValueTypeF64
	default:
		return wasm.ValueTypeI32
	}
}

func (c *compiler) translateMisc(body []byte, pc uint64) (uint64, error) {
	sub, p1 := readIndex(body, pc)
	switch byte(sub) {
	case wasm.OpcodeMiscI32TruncSatF32S, wasm.OpcodeMiscI32TruncSatF32U, wasm.OpcodeMiscI32TruncSatF64S, wasm.OpcodeMiscI32TruncSatF64U,
		wasm.OpcodeMiscI64TruncSatF32S, wasm.OpcodeMiscI64TruncSatF32U, wasm.OpcodeMiscI64TruncSatF64S, wasm.OpcodeMiscI64TruncSatF64U:
		op, resultType := satTruncOp(byte(sub))
		c.emitUnop(op, resultType, nil)
		return p1, nil
	case wasm.OpcodeMiscMemoryInit:
		dataIdx, p2 := readIndex(body, p1)
		_, p3 := readIndex(body, p2) // memidx, always 0
		size := c.pop()
		src := c.pop()
		dst := c.pop()
		c.emit(Instruction{Op: OpMemoryInit, Src1: c.materialize(dst), Src2: c.materialize(src), Src3: c.materialize(size), Imm: uint64(dataIdx)})
		return p3, nil
	case wasm.OpcodeMiscDataDrop:
		dataIdx, p2 := readIndex(body, p1)
		c.emit(Instruction{Op: OpDataDrop, Imm: uint64(dataIdx)})
		return p2, nil
	case wasm.OpcodeMiscMemoryCopy:
		_, p2 := readIndex(body, p1)
		_, p3 := readIndex(body, p2)
		size := c.pop()
		src := c.pop()
		dst := c.pop()
		c.emit(Instruction{Op: OpMemoryCopy, Src1: c.materialize(dst), Src2: c.materialize(src), Src3: c.materialize(size)})
		return p3, nil
	case wasm.OpcodeMiscMemoryFill:
		_, p2 := readIndex(body, p1)
		size := c.pop()
		val := c.pop()
		dst := c.pop()
		c.emit(Instruction{Op: OpMemoryFill, Src1: c.materialize(dst), Src2: c.materialize(val), Src3: c.materialize(size)})
		return p2, nil
	case wasm.OpcodeMiscTableInit:
		elemIdx, p2 := readIndex(body, p1)
		tableIdx, p3 := readIndex(body, p2)
		size := c.pop()
		src := c.pop()
		dst := c.pop()
		c.emit(Instruction{Op: OpTableInit, Src1: c.materialize(dst), Src2: c.materialize(src), Src3: c.materialize(size), Imm: uint64(elemIdx)<<32 | uint64(tableIdx)})
		return p3, nil
	case wasm.OpcodeMiscElemDrop:
		elemIdx, p2 := readIndex(body, p1)
		c.emit(Instruction{Op: OpElemDrop, Imm: uint64(elemIdx)})
		return p2, nil
	case wasm.OpcodeMiscTableCopy:
		dstTable, p2 := readIndex(body, p1)
		srcTable, p3 := readIndex(body, p2)
		size := c.pop()
		src := c.pop()
		dst := c.pop()
		c.emit(Instruction{Op: OpTableCopy, Src1: c.materialize(dst), Src2: c.materialize(src), Src3: c.materialize(size), Imm: uint64(dstTable)<<32 | uint64(srcTable)})
		return p3, nil
	case wasm.OpcodeMiscTableGrow:
		tableIdx, p2 := readIndex(body, p1)
		n := c.pop()
		init := c.pop()
		dst := c.newTemp()
		c.emit(Instruction{Op: OpTableGrow, Dst: dst, Src1: c.materialize(init), Src2: c.materialize(n), Imm: uint64(tableIdx)})
		c.push(tempOperand(dst, wasm.ValueTypeI32, !c.curFrame().divergent))
		return p2, nil
	case wasm.OpcodeMiscTableSize:
		tableIdx, p2 := readIndex(body, p1)
		dst := c.newTemp()
		c.emit(Instruction{Op: OpTableSize, Dst: dst, Imm: uint64(tableIdx)})
		c.push(tempOperand(dst, wasm.ValueTypeI32, !c.curFrame().divergent))
		return p2, nil
	case wasm.OpcodeMiscTableFill:
		tableIdx, p2 := readIndex(body, p1)
		size := c.pop()
		val := c.pop()
		dst := c.pop()
		c.emit(Instruction{Op: OpTableFill, Src1: c.materialize(dst), Src2: c.materialize(val), Src3: c.materialize(size), Imm: uint64(tableIdx)})
		return p2, nil
	}
	return p1, fmt.Errorf("wazeroir: unsupported misc opcode 0x%02x", sub)
}

func satTruncOp(sub byte) (Op, wasm.ValueType) {
	switch sub {
	case wasm.OpcodeMiscI32TruncSatF32S:
		return OpI32TruncSatF32S, wasm.ValueTypeI32
	case wasm.OpcodeMiscI32TruncSatF32U:
		return OpI32TruncSatF32U, wasm.ValueTypeI32
	case wasm.OpcodeMiscI32TruncSatF64S:
		return OpI32TruncSatF64S, wasm.ValueTypeI32
	case wasm.OpcodeMiscI32TruncSatF64U:
		return OpI32TruncSatF64U, wasm.ValueTypeI32
	case wasm.OpcodeMiscI64TruncSatF32S:
		return OpI64TruncSatF32S, wasm.ValueTypeI64
	case wasm.OpcodeMiscI64TruncSatF32U:
		return OpI64TruncSatF32U, wasm.ValueTypeI64
	case wasm.OpcodeMiscI64TruncSatF64S:
		return OpI64TruncSatF64S, wasm.ValueTypeI64
	default:
		return OpI64TruncSatF64U, wasm.ValueTypeI64
	}
}
