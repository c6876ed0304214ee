package lir

import (
	"fmt"

	"fortio.org/safecast"

	"koan/internal/ast"
	"koan/internal/diag"
	"koan/internal/source"
	"koan/internal/types"
)

// lowerExpr translates one typed expression into instructions in the
// current block, returning the operand that carries its value. consume
// marks the last use of the value.
func (l *funcLowerer) lowerExpr(e *ast.Expr, consume bool) (Operand, error) {
	if e == nil {
		return l.constUnit(), nil
	}
	switch e.Kind {
	case ast.ExprLiteral:
		data, ok := e.Data.(ast.LiteralData)
		if !ok {
			return Operand{}, payloadErr("literal", e.Data)
		}
		return l.lowerLiteral(e.Type, data), nil
	case ast.ExprVarRef:
		data, ok := e.Data.(ast.VarRefData)
		if !ok {
			return Operand{}, payloadErr("variable reference", e.Data)
		}
		b, found := l.scopes.LookupVar(data.Name)
		if !found {
			return Operand{}, newError(diag.LowUnboundName, e.Span, "unbound name %q", data.Name)
		}
		ty := b.Type
		if ty == types.NoTypeID {
			ty = e.Type
		}
		return l.placeOperand(b.Place, ty, consume), nil
	case ast.ExprUnaryOp:
		data, ok := e.Data.(ast.UnaryOpData)
		if !ok {
			return Operand{}, payloadErr("unary operator", e.Data)
		}
		op, err := l.lowerExpr(data.Operand, false)
		if err != nil {
			return Operand{}, err
		}
		tmp := l.newTemp(e.Type, "un", e.Span)
		l.assign(Place{Local: tmp}, RValue{Kind: RValueUnaryOp, Unary: UnaryOp{Op: data.Op, Operand: op}})
		return l.placeOperand(Place{Local: tmp}, e.Type, consume), nil
	case ast.ExprBinaryOp:
		data, ok := e.Data.(ast.BinaryOpData)
		if !ok {
			return Operand{}, payloadErr("binary operator", e.Data)
		}
		return l.lowerBinaryOp(e, data, consume)
	case ast.ExprCall:
		data, ok := e.Data.(ast.CallData)
		if !ok {
			return Operand{}, payloadErr("call", e.Data)
		}
		return l.lowerCall(e, data, consume)
	case ast.ExprMethodCall:
		return l.lowerMethodCall(e, consume)
	case ast.ExprFieldAccess, ast.ExprIndex:
		place, err := l.lowerPlace(e)
		if err != nil {
			return Operand{}, err
		}
		return l.placeOperand(place, e.Type, consume), nil
	case ast.ExprStructLit:
		data, ok := e.Data.(ast.StructLitData)
		if !ok {
			return Operand{}, payloadErr("struct literal", e.Data)
		}
		return l.lowerStructLit(e, data, consume)
	case ast.ExprVariant:
		return l.lowerVariantExpr(e, consume)
	case ast.ExprMatch:
		return l.lowerMatchExpr(e, consume)
	case ast.ExprIf:
		return l.lowerIfExpr(e, consume)
	case ast.ExprBlock:
		data, ok := e.Data.(ast.BlockExprData)
		if !ok {
			return Operand{}, payloadErr("block expression", e.Data)
		}
		return l.lowerBlockValue(data.Block, consume)
	case ast.ExprRange:
		data, ok := e.Data.(ast.RangeData)
		if !ok {
			return Operand{}, payloadErr("range", e.Data)
		}
		return l.lowerRangeExpr(e, data, consume)
	case ast.ExprClosure:
		return l.lowerClosureExpr(e)
	case ast.ExprCast:
		data, ok := e.Data.(ast.CastData)
		if !ok {
			return Operand{}, payloadErr("cast", e.Data)
		}
		val, err := l.lowerExpr(data.Value, false)
		if err != nil {
			return Operand{}, err
		}
		target := data.TargetTy
		if target == types.NoTypeID {
			target = e.Type
		}
		return l.castInto(val, target, "cast", e.Span), nil
	default:
		return Operand{}, fmt.Errorf("lir: unsupported expression %s", e.Kind)
	}
}

// lowerLiteral converts a literal to an immediate operand. An integer
// literal checked against an unsigned type carries its value in the
// unsigned domain.
func (l *funcLowerer) lowerLiteral(ty types.TypeID, lit ast.LiteralData) Operand {
	out := Operand{Kind: OperandConst, Type: ty}
	out.Const.Type = ty
	switch lit.Kind {
	case ast.LiteralInt:
		if _, signed, ok := l.sess.Types.IsInteger(ty); ok && !signed {
			v, err := safecast.Conv[uint64](lit.IntValue)
			if err == nil {
				out.Const.Kind = ConstUint
				out.Const.UintValue = v
				return out
			}
		}
		out.Const.Kind = ConstInt
		out.Const.IntValue = lit.IntValue
	case ast.LiteralUint:
		out.Const.Kind = ConstUint
		out.Const.UintValue = lit.UintValue
	case ast.LiteralFloat:
		out.Const.Kind = ConstFloat
		out.Const.FloatValue = lit.FloatValue
	case ast.LiteralBool:
		out.Const.Kind = ConstBool
		out.Const.BoolValue = lit.BoolValue
	case ast.LiteralString:
		out.Const.Kind = ConstString
		out.Const.StringValue = lit.StringValue
	default:
		out.Const.Kind = ConstUnit
	}
	return out
}

// lowerBinaryOp lowers both operands and applies the operator. Logical
// operators evaluate strictly; short-circuiting is a frontend rewrite,
// not a lowering concern.
func (l *funcLowerer) lowerBinaryOp(e *ast.Expr, data ast.BinaryOpData, consume bool) (Operand, error) {
	left, err := l.lowerExpr(data.Left, false)
	if err != nil {
		return Operand{}, err
	}
	right, err := l.lowerExpr(data.Right, false)
	if err != nil {
		return Operand{}, err
	}
	ty := e.Type
	if ty == types.NoTypeID {
		if data.Op.IsComparison() || data.Op.IsLogical() {
			ty = l.boolType()
		} else {
			ty = left.Type
		}
	}
	op := l.binInto(ty, BinaryOp{Op: data.Op, Left: left, Right: right}, "bin", e.Span)
	return l.placeOperand(op.Place, ty, consume), nil
}

func (l *funcLowerer) lowerCall(e *ast.Expr, data ast.CallData, consume bool) (Operand, error) {
	args := make([]Operand, 0, len(data.Args))
	for _, a := range data.Args {
		op, err := l.lowerExpr(a, true)
		if err != nil {
			return Operand{}, err
		}
		args = append(args, op)
	}
	callee := Callee{Kind: CalleeFn, Name: data.Name}
	resTy := e.Type
	if resTy == types.NoTypeID {
		if sig, ok := l.sess.LookupFunc(data.Name); ok {
			resTy = sig.Result
		}
	}
	return l.emitCall(callee, args, resTy, e.Span, consume), nil
}

// emitCall emits a call, routing unit results through a dst-less form.
func (l *funcLowerer) emitCall(callee Callee, args []Operand, resTy types.TypeID, span source.Span, consume bool) Operand {
	if resTy == types.NoTypeID || l.isUnitType(resTy) {
		l.emit(&Instr{Kind: InstrCall, Call: CallInstr{Callee: callee, Args: args}})
		return l.constUnit()
	}
	tmp := l.newTemp(resTy, "call", span)
	l.emit(&Instr{Kind: InstrCall, Call: CallInstr{
		HasDst: true,
		Dst:    Place{Local: tmp},
		Callee: callee,
		Args:   args,
	}})
	return l.placeOperand(Place{Local: tmp}, resTy, consume)
}

func (l *funcLowerer) lowerStructLit(e *ast.Expr, data ast.StructLitData, consume bool) (Operand, error) {
	dst := Place{Local: l.newTemp(e.Type, "struct", e.Span)}
	l.assign(dst, RValue{Kind: RValueZeroInit, ZeroTy: e.Type})
	info, _ := l.sess.Types.StructInfo(e.Type)
	for i, f := range data.Fields {
		val, err := l.lowerExpr(f.Value, true)
		if err != nil {
			return Operand{}, err
		}
		idx := i
		if info != nil {
			if found := structFieldIndex(info, f.Name); found >= 0 {
				idx = found
			} else {
				return Operand{}, newError(diag.LowTypeMismatch, f.Span,
					"type %s has no field %q", l.sess.Types.Format(e.Type), f.Name)
			}
		}
		l.assignUse(dst.Field(idx, f.Name), val)
	}
	return l.placeOperand(dst, e.Type, consume), nil
}

func structFieldIndex(info *types.StructInfo, name string) int {
	for i, f := range info.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// lowerIfExpr lowers a conditional expression. Both arms contribute to
// one merge set; an if without an else is unit-valued and lowers like
// the statement form.
func (l *funcLowerer) lowerIfExpr(e *ast.Expr, consume bool) (Operand, error) {
	data, ok := e.Data.(ast.IfData)
	if !ok {
		return Operand{}, payloadErr("if expression", e.Data)
	}
	cond, err := l.lowerExpr(data.Cond, false)
	if err != nil {
		return Operand{}, err
	}
	n := l.sess.next("if")
	thenB := l.newBlock(fmt.Sprintf("then_%d", n))

	if data.Else == nil {
		joinB := l.newBlock(fmt.Sprintf("if_join_%d", n))
		l.seal(Terminator{Kind: TermIf, If: IfTerm{Cond: cond, Then: thenB, Else: joinB}})
		l.startBlock(thenB)
		if _, err := l.lowerExpr(data.Then, false); err != nil {
			return Operand{}, err
		}
		l.seal(Terminator{Kind: TermGoto, Goto: GotoTerm{Target: joinB}})
		l.startBlock(joinB)
		return l.constUnit(), nil
	}

	elseB := l.newBlock(fmt.Sprintf("else_%d", n))
	l.seal(Terminator{Kind: TermIf, If: IfTerm{Cond: cond, Then: thenB, Else: elseB}})

	ms := l.newMergeSet()
	l.startBlock(thenB)
	thenVal, err := l.lowerExpr(data.Then, true)
	if err != nil {
		return Operand{}, err
	}
	ms.Add(thenVal)

	l.startBlock(elseB)
	elseVal, err := l.lowerExpr(data.Else, true)
	if err != nil {
		return Operand{}, err
	}
	ms.Add(elseVal)

	place, ty := ms.Resolve(fmt.Sprintf("if_merge_%d", n), e.Type, "ifval", e.Span)
	return l.placeOperand(place, ty, consume), nil
}

// lowerBlockValue lowers a block expression: statements run in their
// own scope and the trailing expression's value is the block's value.
func (l *funcLowerer) lowerBlockValue(b *ast.Block, consume bool) (Operand, error) {
	if b == nil {
		return l.constUnit(), nil
	}
	mark := l.scopes.Push()
	defer l.scopes.PopTo(mark)
	for i := range b.Stmts {
		st := &b.Stmts[i]
		if blk := l.curBlock(); blk == nil || blk.Sealed() {
			return l.constUnit(), nil
		}
		if st.Kind == ast.StmtExpr {
			if data, ok := st.Data.(ast.ExprStmtData); ok && data.Trailing {
				return l.lowerExpr(data.Expr, consume)
			}
		}
		if err := l.lowerStmt(st); err != nil {
			return Operand{}, err
		}
	}
	return l.constUnit(), nil
}

// lowerRangeExpr materializes a range value as an endpoint pair.
// Inclusive ranges normalize to half-open by bumping the bound, so a
// stored range always iterates with a strict comparison.
func (l *funcLowerer) lowerRangeExpr(e *ast.Expr, data ast.RangeData, consume bool) (Operand, error) {
	lo, err := l.lowerExpr(data.Lo, false)
	if err != nil {
		return Operand{}, err
	}
	hi, err := l.lowerExpr(data.Hi, false)
	if err != nil {
		return Operand{}, err
	}
	if data.Inclusive {
		hi = l.binInto(hi.Type, BinaryOp{Op: ast.BinAdd, Left: hi, Right: l.oneOf(hi.Type)}, "hi", e.Span)
	}
	dst := Place{Local: l.newTemp(e.Type, "range", e.Span)}
	l.assignUse(dst.Field(0, "lo"), lo)
	l.assignUse(dst.Field(1, "hi"), hi)
	return l.placeOperand(dst, e.Type, consume), nil
}

func (l *funcLowerer) oneOf(ty types.TypeID) Operand {
	if _, signed, ok := l.sess.Types.IsInteger(ty); ok && !signed {
		return l.constUintOf(ty, 1)
	}
	return l.constIntOf(ty, 1)
}

// lowerClosureExpr hoists a function literal into a standalone
// function lowered by a fresh lowerer: the closure gets its own scope
// and loop stacks, so a break inside it cannot target an enclosing
// loop. The expression's value is a symbolic reference to the hoisted
// function.
func (l *funcLowerer) lowerClosureExpr(e *ast.Expr) (Operand, error) {
	data, ok := e.Data.(ast.ClosureData)
	if !ok {
		return Operand{}, payloadErr("closure", e.Data)
	}
	name := fmt.Sprintf("%s__closure_%d", l.f.Name, l.sess.next("closure"))
	fn := &ast.Fn{
		Name:   name,
		Span:   e.Span,
		Params: data.Params,
		Result: data.Result,
		Flags:  ast.FnClosure,
		Body:   data.Body,
	}
	l.sess.RegisterFunc(name, FnSig{Params: paramTypes(fn), Result: fn.Result})
	hoisted, err := lowerFunc(l.sess, l.out, fn)
	if err != nil {
		return Operand{}, err
	}
	l.out.addFunc(hoisted)
	return Operand{
		Kind:  OperandConst,
		Type:  e.Type,
		Const: Const{Kind: ConstString, Type: e.Type, StringValue: name},
	}, nil
}

// lowerPlace resolves an expression to an addressable place. Value
// expressions spill into a temp so projections still compose.
func (l *funcLowerer) lowerPlace(e *ast.Expr) (Place, error) {
	if e == nil {
		return Place{}, fmt.Errorf("lir: place of nil expression")
	}
	switch e.Kind {
	case ast.ExprVarRef:
		data, ok := e.Data.(ast.VarRefData)
		if !ok {
			return Place{}, payloadErr("variable reference", e.Data)
		}
		b, found := l.scopes.LookupVar(data.Name)
		if !found {
			return Place{}, newError(diag.LowUnboundName, e.Span, "unbound name %q", data.Name)
		}
		return b.Place, nil
	case ast.ExprFieldAccess:
		data, ok := e.Data.(ast.FieldAccessData)
		if !ok {
			return Place{}, payloadErr("field access", e.Data)
		}
		base, err := l.lowerPlace(data.Object)
		if err != nil {
			return Place{}, err
		}
		idx := data.FieldIdx
		if idx < 0 {
			if info, found := l.sess.Types.StructInfo(data.Object.Type); found {
				idx = structFieldIndex(info, data.FieldName)
			}
		}
		if idx < 0 {
			return Place{}, newError(diag.LowTypeMismatch, e.Span,
				"type %s has no field %q", l.sess.Types.Format(data.Object.Type), data.FieldName)
		}
		return base.Field(idx, data.FieldName), nil
	case ast.ExprIndex:
		data, ok := e.Data.(ast.IndexData)
		if !ok {
			return Place{}, payloadErr("index", e.Data)
		}
		base, err := l.lowerPlace(data.Object)
		if err != nil {
			return Place{}, err
		}
		idxOp, err := l.lowerExpr(data.Index, false)
		if err != nil {
			return Place{}, err
		}
		idxLocal := l.newTemp(idxOp.Type, "idx", e.Span)
		l.assignUse(Place{Local: idxLocal}, idxOp)
		if l.isDynVecType(data.Object.Type) {
			// Vector elements live behind the header's data pointer.
			return base.Field(vecFieldData, "data").IndexBy(idxLocal), nil
		}
		return base.IndexBy(idxLocal), nil
	default:
		op, err := l.lowerExpr(e, false)
		if err != nil {
			return Place{}, err
		}
		return l.spillOperand(op, "ref", e.Span), nil
	}
}

func (l *funcLowerer) isDynVecType(ty types.TypeID) bool {
	tt, ok := l.sess.Types.Lookup(ty)
	return ok && tt.Kind == types.KindDynVec
}
