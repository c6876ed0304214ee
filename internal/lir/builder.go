package lir

import (
	"fmt"

	"fortio.org/safecast"

	"koan/internal/diag"
	"koan/internal/source"
	"koan/internal/types"
)

// loopCtx is one entry of the active-loop stack. break seals the
// current block with a jump to breakTarget, continue to continueTarget.
type loopCtx struct {
	continueTarget BlockID
	breakTarget    BlockID
}

// funcLowerer builds the control-flow graph of one function. It owns
// the block list, a current-block cursor, the scope stack, and the
// active-loop stack. Blocks are append-only and sealed exactly once;
// sealing a sealed block is ignored, emitting into one is an internal
// protocol violation reported when the function finishes.
type funcLowerer struct {
	sess *Session
	out  *Module
	f    *Func
	cur  BlockID

	scopes scopeStack
	loops  []loopCtx

	nextTemp int
	protoErr *Error
}

func newFuncLowerer(sess *Session, out *Module, f *Func) *funcLowerer {
	return &funcLowerer{sess: sess, out: out, f: f, cur: NoBlockID}
}

// newBlock appends an open block and returns its id. The cursor does
// not move.
func (l *funcLowerer) newBlock(name string) BlockID {
	raw, err := safecast.Conv[int32](len(l.f.Blocks))
	if err != nil {
		panic(fmt.Errorf("lir: block id overflow: %w", err))
	}
	id := BlockID(raw)
	l.f.Blocks = append(l.f.Blocks, &Block{ID: id, Name: name})
	return id
}

// startBlock moves the cursor.
func (l *funcLowerer) startBlock(id BlockID) {
	l.cur = id
}

// curBlock returns the block under the cursor.
func (l *funcLowerer) curBlock() *Block {
	if l == nil || l.f == nil || l.cur < 0 || int(l.cur) >= len(l.f.Blocks) {
		return nil
	}
	return l.f.Blocks[l.cur]
}

// emit appends an instruction to the current block. The statement
// walker checks Sealed before every statement, so reaching a sealed
// block here means the block protocol was broken; the violation is
// recorded once and surfaces when the function finishes.
func (l *funcLowerer) emit(ins *Instr) {
	b := l.curBlock()
	if b == nil {
		return
	}
	if b.Sealed() {
		if l.protoErr == nil {
			l.protoErr = newError(diag.LowInternal, l.f.Span,
				"emit into sealed block bb%d (%s) in %s", b.ID, b.Name, l.f.Name)
		}
		return
	}
	b.Instrs = append(b.Instrs, ins)
}

// seal terminates the current block. A block that already has a
// terminator keeps it: early returns and breaks win over the implicit
// control flow that follows them.
func (l *funcLowerer) seal(t Terminator) {
	b := l.curBlock()
	if b == nil || b.Sealed() {
		return
	}
	b.Term = t
}

// sealBlock terminates a specific block, same keep-first rule.
func (l *funcLowerer) sealBlock(id BlockID, t Terminator) {
	b := l.f.Block(id)
	if b == nil || b.Sealed() {
		return
	}
	b.Term = t
}

// newLocal appends a frame slot.
func (l *funcLowerer) newLocal(name string, ty types.TypeID, span source.Span) LocalID {
	raw, err := safecast.Conv[int32](len(l.f.Locals))
	if err != nil {
		panic(fmt.Errorf("lir: local id overflow: %w", err))
	}
	id := LocalID(raw)
	l.f.Locals = append(l.f.Locals, Local{Name: name, Type: ty, Span: span})
	return id
}

// newTemp appends an anonymous frame slot named tmp_<hint><n>.
func (l *funcLowerer) newTemp(ty types.TypeID, hint string, span source.Span) LocalID {
	name := fmt.Sprintf("tmp_%s%d", hint, l.nextTemp)
	l.nextTemp++
	return l.newLocal(name, ty, span)
}

// assign emits dst = src.
func (l *funcLowerer) assign(dst Place, src RValue) {
	l.emit(&Instr{Kind: InstrAssign, Assign: AssignInstr{Dst: dst, Src: src}})
}

// assignUse emits dst = use(op).
func (l *funcLowerer) assignUse(dst Place, op Operand) {
	l.assign(dst, RValue{Kind: RValueUse, Use: op})
}

// placeOperand creates an operand for a place. Copy unless the caller
// consumes a non-trivial value.
func (l *funcLowerer) placeOperand(place Place, ty types.TypeID, consume bool) Operand {
	kind := OperandCopy
	if consume && !l.isTrivialCopy(ty) {
		kind = OperandMove
	}
	return Operand{Kind: kind, Type: ty, Place: place}
}

// isTrivialCopy reports whether values of ty copy without ownership
// concerns (scalars, pointers, unit).
func (l *funcLowerer) isTrivialCopy(ty types.TypeID) bool {
	if l.sess == nil || l.sess.Types == nil {
		return true
	}
	tt, ok := l.sess.Types.Lookup(ty)
	if !ok {
		return true
	}
	switch tt.Kind {
	case types.KindUnit, types.KindBool, types.KindInt, types.KindUint,
		types.KindFloat, types.KindPtr, types.KindMutPtr, types.KindRawPtr,
		types.KindRange, types.KindFn:
		return true
	default:
		return false
	}
}

// spillOperand makes an operand addressable. Copies and moves of bare
// locals pass through; everything else lands in a fresh temp.
func (l *funcLowerer) spillOperand(op Operand, hint string, span source.Span) Place {
	if (op.Kind == OperandCopy || op.Kind == OperandMove) && op.Place.IsBareLocal() {
		return op.Place
	}
	tmp := l.newTemp(op.Type, hint, span)
	dst := Place{Local: tmp}
	l.assignUse(dst, op)
	return dst
}

// constUnit is the value of statements and unit-typed expressions.
func (l *funcLowerer) constUnit() Operand {
	ty := types.NoTypeID
	if l.sess != nil && l.sess.Types != nil {
		ty = l.sess.Types.Builtins().Unit
	}
	return Operand{Kind: OperandConst, Type: ty, Const: Const{Kind: ConstUnit, Type: ty}}
}

// constBool builds an immediate bool.
func (l *funcLowerer) constBool(v bool) Operand {
	ty := types.NoTypeID
	if l.sess != nil && l.sess.Types != nil {
		ty = l.sess.Types.Builtins().Bool
	}
	return Operand{Kind: OperandConst, Type: ty, Const: Const{Kind: ConstBool, Type: ty, BoolValue: v}}
}

// constUintOf builds an immediate unsigned constant of the given type.
func (l *funcLowerer) constUintOf(ty types.TypeID, v uint64) Operand {
	return Operand{Kind: OperandConst, Type: ty, Const: Const{Kind: ConstUint, Type: ty, UintValue: v}}
}

// constIntOf builds an immediate signed constant of the given type.
func (l *funcLowerer) constIntOf(ty types.TypeID, v int64) Operand {
	return Operand{Kind: OperandConst, Type: ty, Const: Const{Kind: ConstInt, Type: ty, IntValue: v}}
}

// constNull builds a null pointer constant.
func (l *funcLowerer) constNull(ty types.TypeID) Operand {
	return Operand{Kind: OperandConst, Type: ty, Const: Const{Kind: ConstNull, Type: ty}}
}

// u64Type is the type of discriminants, lengths, and capacities.
func (l *funcLowerer) u64Type() types.TypeID {
	if l.sess == nil || l.sess.Types == nil {
		return types.NoTypeID
	}
	return l.sess.Types.Builtins().U64
}

// boolType resolves the builtin bool.
func (l *funcLowerer) boolType() types.TypeID {
	if l.sess == nil || l.sess.Types == nil {
		return types.NoTypeID
	}
	return l.sess.Types.Builtins().Bool
}

// rawPtrType resolves the builtin opaque pointer.
func (l *funcLowerer) rawPtrType() types.TypeID {
	if l.sess == nil || l.sess.Types == nil {
		return types.NoTypeID
	}
	return l.sess.Types.Builtins().RawPtr
}

// binInto emits tmp = l Op r and returns the operand reading tmp.
func (l *funcLowerer) binInto(ty types.TypeID, op BinaryOp, hint string, span source.Span) Operand {
	tmp := l.newTemp(ty, hint, span)
	l.assign(Place{Local: tmp}, RValue{Kind: RValueBinaryOp, Binary: op})
	return l.placeOperand(Place{Local: tmp}, ty, false)
}

// castInto emits tmp = cast(v, ty) and returns the operand reading tmp.
func (l *funcLowerer) castInto(v Operand, ty types.TypeID, hint string, span source.Span) Operand {
	tmp := l.newTemp(ty, hint, span)
	l.assign(Place{Local: tmp}, RValue{Kind: RValueCast, Cast: CastOp{Value: v, TargetTy: ty}})
	return l.placeOperand(Place{Local: tmp}, ty, false)
}
