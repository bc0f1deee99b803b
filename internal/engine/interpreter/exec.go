package interpreter

import (
	"context"
	"math"

	"github.com/wasmi-go/wasmi/internal/buildoptions"
	"github.com/wasmi-go/wasmi/internal/wasm"
	"github.com/wasmi-go/wasmi/internal/wasmdebug"
	"github.com/wasmi-go/wasmi/internal/wasmruntime"
	"github.com/wasmi-go/wasmi/internal/wazeroir"
)

// callEngine runs one call tree's worth of wazeroir.CompiledBody. It is
// created fresh per outermost moduleEngine.Call and discarded when it
// returns, carrying the shared value stack and frame bookkeeping for every
// nested call made along the way.
type callEngine struct {
	ctx     context.Context
	callCtx *wasm.CallContext
	builder *wasmdebug.ErrorBuilder

	// stack is the shared value stack: every call frame owns a disjoint
	// window [base, base+FrameSize) of it. It grows by reallocation, never
	// shrinks, mirroring MemoryInstance.Grow's allocate-then-commit shape.
	stack []uint64

	// frames records the FunctionInstance of every call currently open, in
	// call order, so a trap's backtrace can be built innermost-first by the
	// only recover() site, moduleEngine.Call.
	frames []*wasm.FunctionInstance

	depth int
}

func (ce *callEngine) pushFrame(f *wasm.FunctionInstance) {
	ce.depth++
	if ce.depth > callStackCeiling {
		panic(wasmruntime.ErrRuntimeCallStackOverflow)
	}
	ce.frames = append(ce.frames, f)
}

func (ce *callEngine) popFrame() *wasm.FunctionInstance {
	n := len(ce.frames)
	f := ce.frames[n-1]
	ce.frames = ce.frames[:n-1]
	ce.depth--
	return f
}

// growStack ensures ce.stack has at least n usable slots starting at base,
// preserving existing contents.
func (ce *callEngine) growStack(base, size uint32) []uint64 {
	need := int(base) + int(size)
	if need > cap(ce.stack) {
		if need > buildoptions.ValueStackCeiling {
			panic(wasmruntime.ErrRuntimeValueStackOverflow)
		}
		grown := make([]uint64, need, need*2)
		copy(grown, ce.stack)
		ce.stack = grown
	} else if need > len(ce.stack) {
		ce.stack = ce.stack[:need]
	}
	return ce.stack[base : base+size]
}

// callFunction runs f (a Wasm-defined function; host functions are
// dispatched by moduleEngine.Call before ever reaching here) against args,
// returning its declared results. A return_call/return_call_indirect inside
// f's body is handled in place by rewriting the current frame rather than
// recursing, so a function built entirely out of tail calls runs in O(1)
// Go stack depth regardless of how many logical calls it chains through.
func (ce *callEngine) callFunction(f *wasm.FunctionInstance, args []uint64) []uint64 {
	for {
		body := ce.compiledBody(f)
		base := uint32(len(ce.stack))
		frame := ce.growStack(base, body.FrameSize)
		// Zero the whole frame first: reused stack capacity from a prior,
		// already-popped frame is otherwise stale, and declared locals
		// beyond the parameters must start at the zero value.
		for i := range frame {
			frame[i] = 0
		}
		copy(frame, args)

		ce.pushFrame(f)
		next, nextArgs, results := ce.run(f, body, base)
		ce.popFrame()
		ce.stack = ce.stack[:base]

		if next == nil {
			return results
		}
		f, args = next, nextArgs
	}
}

func (ce *callEngine) compiledBody(f *wasm.FunctionInstance) *wazeroir.CompiledBody {
	body, ok := f.Code.(*wazeroir.CompiledBody)
	if !ok {
		panic("BUG: function reached the executor without translated code")
	}
	return body
}

// run executes one call frame's instruction stream starting at base. It
// returns either a (next, nextArgs) pair for callFunction's tail-call
// trampoline to pick up, or a final results slice, never both.
func (ce *callEngine) run(f *wasm.FunctionInstance, body *wazeroir.CompiledBody, base uint32) (next *wasm.FunctionInstance, nextArgs, results []uint64) {
	mod := f.Module
	store := ce.callCtx.Store()
	pc := uint32(0)
	ins := body.Instructions

	reg := func(r uint32) uint64 { return ce.stack[base+r] }
	setReg := func(r uint32, v uint64) { ce.stack[base+r] = v }

	for {
		i := ins[pc]

		if cost, ok := body.BlockCosts[pc]; ok {
			if !store.ConsumeFuel(cost) {
				panic(wasmruntime.ErrRuntimeOutOfFuel)
			}
		}

		switch i.Op {
		case wazeroir.OpUnreachable:
			panic(wasmruntime.ErrRuntimeUnreachable)
		case wazeroir.OpNop:

		case wazeroir.OpConst:
			setReg(i.Dst, body.ConstantPool[i.Imm])
		case wazeroir.OpCopy:
			setReg(i.Dst, reg(i.Src1))

		case wazeroir.OpGlobalGet:
			setReg(i.Dst, mod.Globals[i.Imm].Val)
		case wazeroir.OpGlobalSet:
			mod.Globals[i.Imm].Val = reg(i.Src1)

		case wazeroir.OpSelect:
			if int32(reg(i.Src3)) != 0 {
				setReg(i.Dst, reg(i.Src1))
			} else {
				setReg(i.Dst, reg(i.Src2))
			}

		case wazeroir.OpRefIsNull:
			if reg(i.Src1) == 0 {
				setReg(i.Dst, 1)
			} else {
				setReg(i.Dst, 0)
			}
		case wazeroir.OpRefFunc:
			setReg(i.Dst, wasm.FunctionReference(mod.Functions[i.Imm]))

		case wazeroir.OpBr:
			pc = ce.branch(body, i.Imm, base)
			continue
		case wazeroir.OpBrIf:
			if int32(reg(i.Src1)) != 0 {
				pc = ce.branch(body, i.Imm, base)
				continue
			}
		case wazeroir.OpBrTable:
			sel := uint32(reg(i.Src1))
			targets := body.BrTables[i.Imm].Targets
			if sel >= uint32(len(targets))-1 {
				sel = uint32(len(targets)) - 1
			}
			pc = ce.branch(body, uint64(targets[sel]), base)
			continue
		case wazeroir.OpBrIfZ:
			if int32(reg(i.Src1)) == 0 {
				pc = uint32(i.Imm)
				continue
			}
		case wazeroir.OpJump:
			pc = uint32(i.Imm)
			continue

		case wazeroir.OpReturn:
			arity := len(f.Type.Results)
			results = append([]uint64(nil), ce.stack[base:base+uint32(arity)]...)
			return nil, nil, results

		case wazeroir.OpCall:
			callee := mod.Functions[i.Imm]
			n := uint32(len(callee.Type.Params))
			args := append([]uint64(nil), ce.stack[base+i.Dst:base+i.Dst+n]...)
			rvals := ce.invoke(callee, args)
			copy(ce.stack[base+i.Dst:], rvals)

		case wazeroir.OpReturnCall:
			callee := mod.Functions[i.Imm]
			n := uint32(len(callee.Type.Params))
			args := append([]uint64(nil), ce.stack[base+i.Dst:base+i.Dst+n]...)
			return callee, args, nil

		case wazeroir.OpCallIndirect:
			ci := body.CallIndirects[i.Imm]
			callee := ce.resolveIndirect(mod, ci, reg(i.Src1))
			n := uint32(len(callee.Type.Params))
			args := append([]uint64(nil), ce.stack[base+i.Dst:base+i.Dst+n]...)
			rvals := ce.invoke(callee, args)
			copy(ce.stack[base+i.Dst:], rvals)

		case wazeroir.OpReturnCallIndirect:
			ci := body.CallIndirects[i.Imm]
			callee := ce.resolveIndirect(mod, ci, reg(i.Src1))
			n := uint32(len(callee.Type.Params))
			args := append([]uint64(nil), ce.stack[base+i.Dst:base+i.Dst+n]...)
			return callee, args, nil

		case wazeroir.OpTableGet:
			t := mod.Tables[i.Imm]
			v, ok := t.Get(ce.ctx, uint32(reg(i.Src1)))
			if !ok {
				panic(wasmruntime.ErrRuntimeInvalidTableAccess)
			}
			setReg(i.Dst, v)
		case wazeroir.OpTableSet:
			t := mod.Tables[i.Imm]
			if !t.Set(ce.ctx, uint32(reg(i.Src1)), reg(i.Src2)) {
				panic(wasmruntime.ErrRuntimeInvalidTableAccess)
			}
		case wazeroir.OpTableSize:
			setReg(i.Dst, uint64(mod.Tables[i.Imm].Size(ce.ctx)))
		case wazeroir.OpTableGrow:
			t := mod.Tables[i.Imm]
			prev, ok := t.Grow(ce.ctx, uint32(reg(i.Src2)), reg(i.Src1))
			if !ok {
				setReg(i.Dst, math.MaxUint32)
			} else {
				setReg(i.Dst, uint64(prev))
			}
		case wazeroir.OpTableFill:
			t := mod.Tables[i.Imm]
			if !t.Fill(uint32(reg(i.Src1)), uint32(reg(i.Src3)), reg(i.Src2)) {
				panic(wasmruntime.ErrRuntimeInvalidTableAccess)
			}
		case wazeroir.OpTableCopy:
			dstIdx, srcIdx := uint32(i.Imm>>32), uint32(i.Imm)
			if !tableCopy(ce.ctx, mod.Tables[dstIdx], mod.Tables[srcIdx], uint32(reg(i.Src1)), uint32(reg(i.Src2)), uint32(reg(i.Src3))) {
				panic(wasmruntime.ErrRuntimeInvalidTableAccess)
			}
		case wazeroir.OpTableInit:
			elemIdx, tableIdx := uint32(i.Imm>>32), uint32(i.Imm)
			elem := mod.ElementInstances[elemIdx]
			if elem.Dropped && uint32(reg(i.Src3)) != 0 {
				panic(wasmruntime.ErrRuntimeInvalidTableAccess)
			}
			if !mod.Tables[tableIdx].Init(elem.References, uint32(reg(i.Src1)), uint32(reg(i.Src2)), uint32(reg(i.Src3))) {
				panic(wasmruntime.ErrRuntimeInvalidTableAccess)
			}
		case wazeroir.OpElemDrop:
			mod.ElementInstances[i.Imm].Dropped = true
			mod.ElementInstances[i.Imm].References = nil

		case wazeroir.OpMemorySize:
			setReg(i.Dst, uint64(mod.Mem.Size(ce.ctx)))
		case wazeroir.OpMemoryGrow:
			prev, ok := mod.Mem.Grow(ce.ctx, uint32(reg(i.Src1)))
			if !ok {
				setReg(i.Dst, math.MaxUint32)
			} else {
				setReg(i.Dst, uint64(prev))
			}
		case wazeroir.OpMemoryFill:
			if !mod.Mem.Fill(uint32(reg(i.Src1)), uint32(reg(i.Src3)), byte(reg(i.Src2))) {
				panic(wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
			}
		case wazeroir.OpMemoryCopy:
			if !mod.Mem.Copy(uint32(reg(i.Src1)), uint32(reg(i.Src2)), uint32(reg(i.Src3))) {
				panic(wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
			}
		case wazeroir.OpMemoryInit:
			data := mod.DataInstances[i.Imm]
			if !mod.Mem.Init(data, uint32(reg(i.Src1)), uint32(reg(i.Src2)), uint32(reg(i.Src3))) {
				panic(wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
			}
		case wazeroir.OpDataDrop:
			mod.DataInstances[i.Imm] = nil

		default:
			ce.execNumericOrMemAccess(i, mod, reg, setReg)
		}

		pc++
	}
}

// branch applies the copy span and returns the instruction offset for
// BranchTargets[idx].
func (ce *callEngine) branch(body *wazeroir.CompiledBody, idx uint64, base uint32) uint32 {
	target := body.BranchTargets[idx]
	spans := body.CopySpans[target.CopySpanStart : target.CopySpanStart+target.CopySpanLen]
	for _, sp := range spans {
		ce.stack[base+sp.Dst] = ce.stack[base+sp.Src]
	}
	return target.IrOffset
}

// invoke runs callee via ordinary (non-tail) call: a host function is
// dispatched in place, a Wasm function recurses into callFunction, bounded
// by callStackCeiling through pushFrame.
func (ce *callEngine) invoke(callee *wasm.FunctionInstance, args []uint64) []uint64 {
	if callee.Kind == wasm.FunctionKindGo {
		ce.pushFrame(callee)
		rvals := ce.callHostFunction(callee, args)
		// Popped only on normal return: on panic this frame stays on
		// ce.frames so the outermost recover() in moduleEngine.Call still
		// reports it in the backtrace.
		ce.popFrame()
		return rvals
	}
	return ce.callFunction(callee, args)
}

// callHostFunction runs a Go-defined function, converting any panic that
// isn't already a *wasmruntime.Error into a HostTrap so a misbehaving host
// function unwinds like any other trap instead of escaping as a bare panic.
func (ce *callEngine) callHostFunction(callee *wasm.FunctionInstance, args []uint64) (rvals []uint64) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(*wasmruntime.Error); ok {
				panic(r)
			}
			panic(wasmruntime.NewHostTrap(r))
		}
	}()
	return callGoFunction(ce.ctx, ce.callCtx, callee, args)
}

func (ce *callEngine) resolveIndirect(mod *wasm.ModuleInstance, ci wazeroir.CallIndirectImm, idx uint64) *wasm.FunctionInstance {
	t := mod.Tables[ci.TableIndex]
	ref, ok := t.Get(ce.ctx, uint32(idx))
	if !ok {
		panic(wasmruntime.ErrRuntimeInvalidTableAccess)
	}
	callee := wasm.ResolveFunctionReference(ref)
	if callee == nil {
		panic(wasmruntime.ErrRuntimeUndefinedElement)
	}
	if mod.TypeIDs[ci.TypeIndex] != callee.TypeID {
		panic(wasmruntime.ErrRuntimeIndirectCallTypeMismatch)
	}
	return callee
}

// tableCopy implements table.copy across possibly-distinct tables. Same
// table is delegated to TableInstance.Copy (overlap-safe); distinct tables
// never alias, so a plain bounds-checked copy suffices.
func tableCopy(ctx context.Context, dst, src *wasm.TableInstance, dstOffset, srcOffset, size uint32) bool {
	if dst == src {
		return dst.Copy(dstOffset, srcOffset, size)
	}
	for i := uint32(0); i < size; i++ {
		v, ok := src.Get(ctx, srcOffset+i)
		if !ok {
			return false
		}
		if !dst.Set(ctx, dstOffset+i, v) {
			return false
		}
	}
	return true
}
