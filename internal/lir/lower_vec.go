package lir

import (
	"fmt"

	"koan/internal/ast"
	"koan/internal/diag"
	"koan/internal/source"
	"koan/internal/types"
)

// Vector header field indices. The header is data pointer, length,
// capacity, and for mixed-element vectors a pointer to a parallel
// discriminant array.
const (
	vecFieldData = 0
	vecFieldLen  = 1
	vecFieldCap  = 2
	vecFieldDisc = 3
)

const vecInitialCap = 8

// vecSlotSize is the byte size of one element slot. Mixed vectors box
// every element, so their slots are pointer-sized.
func (l *funcLowerer) vecSlotSize(info *types.DynVecInfo) uint64 {
	if len(info.Elems) != 1 {
		return 8
	}
	size, err := l.sess.Layout.SizeOf(info.Elems[0])
	if err != nil || size <= 0 {
		return 8
	}
	return uint64(size)
}

// vecElemTag is the per-slot discriminant a mixed vector stores for a
// value of the given static type: its index in the element list.
func vecElemTag(info *types.DynVecInfo, ty types.TypeID) uint64 {
	for i, e := range info.Elems {
		if e == ty {
			return uint64(i)
		}
	}
	return 0
}

// optionPayloadType digs the element type out of an Option<T> result
// type, falling back when the instantiation is not recorded.
func (l *funcLowerer) optionPayloadType(optTy, fallback types.TypeID) types.TypeID {
	if info, ok := l.sess.Types.GenericInfo(optTy); ok && len(info.Args) > 0 {
		return info.Args[0]
	}
	return fallback
}

func (l *funcLowerer) vecRecv(recv *ast.Expr) (Place, *types.DynVecInfo, error) {
	place, err := l.lowerPlace(recv)
	if err != nil {
		return Place{}, nil, err
	}
	info, ok := l.sess.Types.DynVecInfo(recv.Type)
	if !ok {
		return Place{}, nil, newError(diag.LowTypeMismatch, recv.Span,
			"%s is not a vector", l.sess.Types.Format(recv.Type))
	}
	return place, info, nil
}

// readVecField copies one header field into a u64 temp and returns the
// temp's local so callers can both use the value and index with it.
func (l *funcLowerer) readVecField(recv Place, field int, name, hint string, span source.Span) (LocalID, Operand) {
	u64 := l.u64Type()
	tmp := l.newTemp(u64, hint, span)
	l.assignUse(Place{Local: tmp}, l.placeOperand(recv.Field(field, name), u64, false))
	return tmp, l.placeOperand(Place{Local: tmp}, u64, false)
}

// storeVecElem writes a value into data[idx]. Homogeneous vectors
// store in place; mixed vectors box the value and record its type tag
// in the discriminant array.
func (l *funcLowerer) storeVecElem(recv Place, info *types.DynVecInfo, idx LocalID, val Operand, span source.Span) {
	slot := recv.Field(vecFieldData, "data").IndexBy(idx)
	if len(info.Elems) == 1 {
		l.assignUse(slot, val)
		return
	}
	valTy := val.Type
	if valTy == types.NoTypeID {
		valTy = l.sess.Types.Builtins().I32
	}
	box := l.allocBox(valTy, span)
	l.emit(&Instr{Kind: InstrStore, Store: StoreInstr{Addr: box, Value: val, Elem: valTy}})
	l.assignUse(slot, box)
	l.assignUse(recv.Field(vecFieldDisc, "disc").IndexBy(idx),
		l.constUintOf(l.u64Type(), vecElemTag(info, valTy)))
}

// readVecElem loads data[idx] as a value of elemTy. Mixed vectors read
// the box pointer first and load through it.
func (l *funcLowerer) readVecElem(recv Place, info *types.DynVecInfo, idx LocalID, elemTy types.TypeID, span source.Span) Operand {
	slot := recv.Field(vecFieldData, "data").IndexBy(idx)
	if len(info.Elems) == 1 {
		tmp := l.newTemp(elemTy, "elem", span)
		l.assignUse(Place{Local: tmp}, l.placeOperand(slot, elemTy, false))
		return l.placeOperand(Place{Local: tmp}, elemTy, false)
	}
	ptrTy := l.rawPtrType()
	box := l.newTemp(ptrTy, "box", span)
	l.assignUse(Place{Local: box}, l.placeOperand(slot, ptrTy, false))
	val := l.newTemp(elemTy, "elem", span)
	l.assign(Place{Local: val}, RValue{Kind: RValueLoad, Load: LoadOp{
		Addr: l.placeOperand(Place{Local: box}, ptrTy, false),
		Elem: elemTy,
	}})
	return l.placeOperand(Place{Local: val}, elemTy, false)
}

// lowerVecNew builds a fresh vector: allocate storage for the larger
// of the default capacity and the literal element count, fill the
// header, then store each literal element.
func (l *funcLowerer) lowerVecNew(e *ast.Expr, args []*ast.Expr, consume bool) (Operand, error) {
	info, ok := l.sess.Types.DynVecInfo(e.Type)
	if !ok {
		return Operand{}, newError(diag.LowTypeMismatch, e.Span,
			"cannot construct %s as a vector", l.sess.Types.Format(e.Type))
	}
	capN := uint64(vecInitialCap)
	if n := uint64(len(args)); n > capN {
		capN = n
	}
	slot := l.vecSlotSize(info)
	u64 := l.u64Type()
	ptrTy := l.rawPtrType()

	dst := Place{Local: l.newTemp(e.Type, "vec", e.Span)}
	data := l.newTemp(ptrTy, "data", e.Span)
	l.emit(&Instr{Kind: InstrCall, Call: CallInstr{
		HasDst: true,
		Dst:    Place{Local: data},
		Callee: Callee{Kind: CalleeRuntime, Name: runtimeAlloc},
		Args:   []Operand{l.constUintOf(u64, capN*slot)},
	}})
	l.assignUse(dst.Field(vecFieldData, "data"), l.placeOperand(Place{Local: data}, ptrTy, false))
	l.assignUse(dst.Field(vecFieldLen, "len"), l.constUintOf(u64, uint64(len(args))))
	l.assignUse(dst.Field(vecFieldCap, "cap"), l.constUintOf(u64, capN))
	if len(info.Elems) != 1 {
		disc := l.newTemp(ptrTy, "disc", e.Span)
		l.emit(&Instr{Kind: InstrCall, Call: CallInstr{
			HasDst: true,
			Dst:    Place{Local: disc},
			Callee: Callee{Kind: CalleeRuntime, Name: runtimeAlloc},
			Args:   []Operand{l.constUintOf(u64, capN*8)},
		}})
		l.assignUse(dst.Field(vecFieldDisc, "disc"), l.placeOperand(Place{Local: disc}, ptrTy, false))
	}

	for i, arg := range args {
		val, err := l.lowerExpr(arg, true)
		if err != nil {
			return Operand{}, err
		}
		idx := l.newTemp(u64, "idx", arg.Span)
		l.assignUse(Place{Local: idx}, l.constUintOf(u64, uint64(i)))
		l.storeVecElem(dst, info, idx, val, arg.Span)
	}
	return l.placeOperand(dst, e.Type, consume), nil
}

// lowerVecPush appends one element, growing the storage first when the
// vector is full. Growth doubles the capacity; a zero capacity seeds
// the default without branching, via newCap = cap*2 + (cap==0)*8.
func (l *funcLowerer) lowerVecPush(recv *ast.Expr, args []*ast.Expr, span source.Span) (Operand, error) {
	if len(args) != 1 {
		return Operand{}, newError(diag.LowTypeMismatch, span, "push takes one argument, got %d", len(args))
	}
	recvP, info, err := l.vecRecv(recv)
	if err != nil {
		return Operand{}, err
	}
	val, err := l.lowerExpr(args[0], true)
	if err != nil {
		return Operand{}, err
	}
	u64 := l.u64Type()
	ptrTy := l.rawPtrType()
	slot := l.vecSlotSize(info)

	lenLocal, lenOp := l.readVecField(recvP, vecFieldLen, "len", "len", span)
	_, capOp := l.readVecField(recvP, vecFieldCap, "cap", "cap", span)
	full := l.binInto(l.boolType(), BinaryOp{Op: ast.BinGe, Left: lenOp, Right: capOp}, "cmp", span)

	n := l.sess.next("vec")
	grow := l.newBlock(fmt.Sprintf("vec_grow_%d", n))
	store := l.newBlock(fmt.Sprintf("vec_store_%d", n))
	l.seal(Terminator{Kind: TermIf, If: IfTerm{Cond: full, Then: grow, Else: store}})

	l.startBlock(grow)
	isZero := l.binInto(l.boolType(), BinaryOp{Op: ast.BinEq, Left: capOp, Right: l.constUintOf(u64, 0)}, "cmp", span)
	seedBit := l.castInto(isZero, u64, "seed", span)
	seed := l.binInto(u64, BinaryOp{Op: ast.BinMul, Left: seedBit, Right: l.constUintOf(u64, vecInitialCap)}, "seed", span)
	doubled := l.binInto(u64, BinaryOp{Op: ast.BinMul, Left: capOp, Right: l.constUintOf(u64, 2)}, "cap", span)
	newCap := l.binInto(u64, BinaryOp{Op: ast.BinAdd, Left: doubled, Right: seed}, "cap", span)
	bytes := l.binInto(u64, BinaryOp{Op: ast.BinMul, Left: newCap, Right: l.constUintOf(u64, slot)}, "bytes", span)
	newData := l.newTemp(ptrTy, "data", span)
	l.emit(&Instr{Kind: InstrCall, Call: CallInstr{
		HasDst: true,
		Dst:    Place{Local: newData},
		Callee: Callee{Kind: CalleeRuntime, Name: runtimeRealloc},
		Args:   []Operand{l.placeOperand(recvP.Field(vecFieldData, "data"), ptrTy, false), bytes},
	}})
	l.assignUse(recvP.Field(vecFieldData, "data"), l.placeOperand(Place{Local: newData}, ptrTy, false))
	l.assignUse(recvP.Field(vecFieldCap, "cap"), newCap)
	if len(info.Elems) != 1 {
		discBytes := l.binInto(u64, BinaryOp{Op: ast.BinMul, Left: newCap, Right: l.constUintOf(u64, 8)}, "bytes", span)
		newDisc := l.newTemp(ptrTy, "disc", span)
		l.emit(&Instr{Kind: InstrCall, Call: CallInstr{
			HasDst: true,
			Dst:    Place{Local: newDisc},
			Callee: Callee{Kind: CalleeRuntime, Name: runtimeRealloc},
			Args:   []Operand{l.placeOperand(recvP.Field(vecFieldDisc, "disc"), ptrTy, false), discBytes},
		}})
		l.assignUse(recvP.Field(vecFieldDisc, "disc"), l.placeOperand(Place{Local: newDisc}, ptrTy, false))
	}
	l.seal(Terminator{Kind: TermGoto, Goto: GotoTerm{Target: store}})

	l.startBlock(store)
	l.storeVecElem(recvP, info, lenLocal, val, span)
	newLen := l.binInto(u64, BinaryOp{Op: ast.BinAdd, Left: lenOp, Right: l.constUintOf(u64, 1)}, "len", span)
	l.assignUse(recvP.Field(vecFieldLen, "len"), newLen)
	return l.constUnit(), nil
}

// lowerVecPop removes and returns the last element as Some, or None
// when the vector is empty.
func (l *funcLowerer) lowerVecPop(e *ast.Expr, recv *ast.Expr, consume bool) (Operand, error) {
	recvP, info, err := l.vecRecv(recv)
	if err != nil {
		return Operand{}, err
	}
	u64 := l.u64Type()
	elemFallback := l.rawPtrType()
	if len(info.Elems) == 1 {
		elemFallback = info.Elems[0]
	}
	elemTy := l.optionPayloadType(e.Type, elemFallback)

	_, lenOp := l.readVecField(recvP, vecFieldLen, "len", "len", e.Span)
	isEmpty := l.binInto(l.boolType(), BinaryOp{Op: ast.BinEq, Left: lenOp, Right: l.constUintOf(u64, 0)}, "cmp", e.Span)

	n := l.sess.next("vec")
	emptyB := l.newBlock(fmt.Sprintf("vec_empty_%d", n))
	popB := l.newBlock(fmt.Sprintf("vec_pop_%d", n))
	l.seal(Terminator{Kind: TermIf, If: IfTerm{Cond: isEmpty, Then: emptyB, Else: popB}})
	ms := l.newMergeSet()

	l.startBlock(emptyB)
	none, err := l.makeVariant(e.Type, "Option", "None", nil, types.NoTypeID, e.Span, false)
	if err != nil {
		return Operand{}, err
	}
	ms.Add(none)

	l.startBlock(popB)
	last := l.binInto(u64, BinaryOp{Op: ast.BinSub, Left: lenOp, Right: l.constUintOf(u64, 1)}, "idx", e.Span)
	l.assignUse(recvP.Field(vecFieldLen, "len"), last)
	payload := l.readVecElem(recvP, info, last.Place.Local, elemTy, e.Span)
	some, err := l.makeVariant(e.Type, "Option", "Some", &payload, elemTy, e.Span, false)
	if err != nil {
		return Operand{}, err
	}
	ms.Add(some)

	place, ty := ms.Resolve(fmt.Sprintf("vec_merge_%d", n), e.Type, "popval", e.Span)
	return l.placeOperand(place, ty, consume), nil
}

// vecIndexCond bounds-checks an index expression against the current
// length: 0 <= i < len, with the lower test skipped for unsigned
// indices. It returns the condition and the u64 index local.
func (l *funcLowerer) vecIndexCond(idxExpr *ast.Expr, lenOp Operand, span source.Span) (Operand, LocalID, error) {
	idx, err := l.lowerExpr(idxExpr, false)
	if err != nil {
		return Operand{}, NoLocalID, err
	}
	u64 := l.u64Type()
	var nonNeg Operand
	if _, signed, ok := l.sess.Types.IsInteger(idx.Type); ok && signed {
		nonNeg = l.binInto(l.boolType(), BinaryOp{
			Op:    ast.BinGe,
			Left:  idx,
			Right: l.intConstOf(idx.Type, 0),
		}, "cmp", span)
	}
	idxU := l.castInto(idx, u64, "idx", span)
	inRange := l.binInto(l.boolType(), BinaryOp{Op: ast.BinLt, Left: idxU, Right: lenOp}, "cmp", span)
	cond := inRange
	if nonNeg.Type != types.NoTypeID {
		cond = l.binInto(l.boolType(), BinaryOp{Op: ast.BinAnd, Left: nonNeg, Right: inRange}, "cmp", span)
	}
	return cond, idxU.Place.Local, nil
}

// lowerVecGet reads element i as Some(elem), or None when the index is
// out of bounds.
func (l *funcLowerer) lowerVecGet(e *ast.Expr, recv *ast.Expr, args []*ast.Expr, consume bool) (Operand, error) {
	if len(args) != 1 {
		return Operand{}, newError(diag.LowTypeMismatch, e.Span, "get takes one argument, got %d", len(args))
	}
	recvP, info, err := l.vecRecv(recv)
	if err != nil {
		return Operand{}, err
	}
	elemFallback := l.rawPtrType()
	if len(info.Elems) == 1 {
		elemFallback = info.Elems[0]
	}
	elemTy := l.optionPayloadType(e.Type, elemFallback)

	_, lenOp := l.readVecField(recvP, vecFieldLen, "len", "len", e.Span)
	cond, idxLocal, err := l.vecIndexCond(args[0], lenOp, e.Span)
	if err != nil {
		return Operand{}, err
	}

	n := l.sess.next("vec")
	getB := l.newBlock(fmt.Sprintf("vec_get_%d", n))
	oobB := l.newBlock(fmt.Sprintf("vec_oob_%d", n))
	l.seal(Terminator{Kind: TermIf, If: IfTerm{Cond: cond, Then: getB, Else: oobB}})
	ms := l.newMergeSet()

	l.startBlock(getB)
	payload := l.readVecElem(recvP, info, idxLocal, elemTy, e.Span)
	some, err := l.makeVariant(e.Type, "Option", "Some", &payload, elemTy, e.Span, false)
	if err != nil {
		return Operand{}, err
	}
	ms.Add(some)

	l.startBlock(oobB)
	none, err := l.makeVariant(e.Type, "Option", "None", nil, types.NoTypeID, e.Span, false)
	if err != nil {
		return Operand{}, err
	}
	ms.Add(none)

	place, ty := ms.Resolve(fmt.Sprintf("vec_merge_%d", n), e.Type, "getval", e.Span)
	return l.placeOperand(place, ty, consume), nil
}

// lowerVecSet writes element i and reports whether the index was in
// bounds. An out-of-bounds set stores nothing.
func (l *funcLowerer) lowerVecSet(e *ast.Expr, recv *ast.Expr, args []*ast.Expr, consume bool) (Operand, error) {
	if len(args) != 2 {
		return Operand{}, newError(diag.LowTypeMismatch, e.Span, "set takes two arguments, got %d", len(args))
	}
	recvP, info, err := l.vecRecv(recv)
	if err != nil {
		return Operand{}, err
	}
	val, err := l.lowerExpr(args[1], true)
	if err != nil {
		return Operand{}, err
	}
	_, lenOp := l.readVecField(recvP, vecFieldLen, "len", "len", e.Span)
	cond, idxLocal, err := l.vecIndexCond(args[0], lenOp, e.Span)
	if err != nil {
		return Operand{}, err
	}

	n := l.sess.next("vec")
	setB := l.newBlock(fmt.Sprintf("vec_store_%d", n))
	oobB := l.newBlock(fmt.Sprintf("vec_oob_%d", n))
	l.seal(Terminator{Kind: TermIf, If: IfTerm{Cond: cond, Then: setB, Else: oobB}})
	ms := l.newMergeSet()

	l.startBlock(setB)
	l.storeVecElem(recvP, info, idxLocal, val, e.Span)
	ms.Add(l.constBool(true))

	l.startBlock(oobB)
	ms.Add(l.constBool(false))

	place, ty := ms.Resolve(fmt.Sprintf("vec_merge_%d", n), l.boolType(), "setok", e.Span)
	return l.placeOperand(place, ty, consume), nil
}

// lowerVecLen reads the current length, converting to the expression's
// integer type when it is not the header's u64.
func (l *funcLowerer) lowerVecLen(e *ast.Expr, recv *ast.Expr) (Operand, error) {
	recvP, _, err := l.vecRecv(recv)
	if err != nil {
		return Operand{}, err
	}
	_, lenOp := l.readVecField(recvP, vecFieldLen, "len", "len", e.Span)
	if e.Type != types.NoTypeID && e.Type != l.u64Type() {
		if _, _, ok := l.sess.Types.IsInteger(e.Type); ok {
			return l.castInto(lenOp, e.Type, "len", e.Span), nil
		}
	}
	return lenOp, nil
}

// lowerVecClear resets the length; capacity and storage stay.
func (l *funcLowerer) lowerVecClear(recv *ast.Expr) (Operand, error) {
	recvP, _, err := l.vecRecv(recv)
	if err != nil {
		return Operand{}, err
	}
	l.assignUse(recvP.Field(vecFieldLen, "len"), l.constUintOf(l.u64Type(), 0))
	return l.constUnit(), nil
}
