package lir

import (
	"fmt"

	"koan/internal/ast"
	"koan/internal/diag"
	"koan/internal/source"
	"koan/internal/types"
)

// lowerWhile lowers a conditional loop: header tests, body jumps back
// to the header, break targets the exit.
func (l *funcLowerer) lowerWhile(st *ast.Stmt, data ast.WhileData) error {
	n := l.sess.next("loop")
	header := l.newBlock(fmt.Sprintf("loop_header_%d", n))
	body := l.newBlock(fmt.Sprintf("loop_body_%d", n))
	exit := l.newBlock(fmt.Sprintf("loop_exit_%d", n))

	l.seal(Terminator{Kind: TermGoto, Goto: GotoTerm{Target: header}})
	l.startBlock(header)
	cond, err := l.lowerLoopCond(data.Cond, st.Span)
	if err != nil {
		return err
	}
	l.seal(Terminator{Kind: TermIf, If: IfTerm{Cond: cond, Then: body, Else: exit}})

	l.startBlock(body)
	l.loops = append(l.loops, loopCtx{continueTarget: header, breakTarget: exit})
	err = l.lowerBlock(data.Body)
	l.loops = l.loops[:len(l.loops)-1]
	if err != nil {
		return err
	}
	l.seal(Terminator{Kind: TermGoto, Goto: GotoTerm{Target: header}})
	l.startBlock(exit)
	return nil
}

// lowerLoopCond coerces a loop condition to bool. Bool passes
// through; integers compare against zero; anything else refuses.
func (l *funcLowerer) lowerLoopCond(e *ast.Expr, span source.Span) (Operand, error) {
	if e == nil {
		return Operand{}, newError(diag.LowLoopCondition, span, "loop condition is missing")
	}
	cond, err := l.lowerExpr(e, false)
	if err != nil {
		return Operand{}, err
	}
	if l.isBoolType(cond.Type) {
		return cond, nil
	}
	if _, _, ok := l.sess.Types.IsInteger(cond.Type); ok {
		return l.binInto(l.boolType(), BinaryOp{
			Op:    ast.BinNe,
			Left:  cond,
			Right: l.intConstOf(cond.Type, 0),
		}, "cmp", e.Span), nil
	}
	return Operand{}, newError(diag.LowLoopCondition, e.Span,
		"loop condition must be an integer or bool, got %s", l.sess.Types.Format(cond.Type))
}

// lowerLoop lowers an unconditional loop; only break leaves it, so
// the exit block exists purely as the break target.
func (l *funcLowerer) lowerLoop(data ast.LoopData) error {
	n := l.sess.next("loop")
	body := l.newBlock(fmt.Sprintf("loop_body_%d", n))
	exit := l.newBlock(fmt.Sprintf("loop_exit_%d", n))

	l.seal(Terminator{Kind: TermGoto, Goto: GotoTerm{Target: body}})
	l.startBlock(body)
	l.loops = append(l.loops, loopCtx{continueTarget: body, breakTarget: exit})
	err := l.lowerBlock(data.Body)
	l.loops = l.loops[:len(l.loops)-1]
	if err != nil {
		return err
	}
	l.seal(Terminator{Kind: TermGoto, Goto: GotoTerm{Target: body}})
	l.startBlock(exit)
	return nil
}

// lowerBreak seals the current block with a jump out of the innermost
// loop, then opens a fresh block for whatever trailing statements the
// frontend left behind.
func (l *funcLowerer) lowerBreak(span source.Span) error {
	if len(l.loops) == 0 {
		return newError(diag.LowBreakOutsideLoop, span, "break outside of a loop")
	}
	top := l.loops[len(l.loops)-1]
	l.seal(Terminator{Kind: TermGoto, Goto: GotoTerm{Target: top.breakTarget}})
	after := l.newBlock(fmt.Sprintf("after_break_%d", l.sess.next("after_break")))
	l.startBlock(after)
	return nil
}

func (l *funcLowerer) lowerContinue(span source.Span) error {
	if len(l.loops) == 0 {
		return newError(diag.LowBreakOutsideLoop, span, "continue outside of a loop")
	}
	top := l.loops[len(l.loops)-1]
	l.seal(Terminator{Kind: TermGoto, Goto: GotoTerm{Target: top.continueTarget}})
	after := l.newBlock(fmt.Sprintf("after_continue_%d", l.sess.next("after_continue")))
	l.startBlock(after)
	return nil
}

// lowerRangeLoop inlines fn's body into a counted loop over the
// receiver range. The body shares this function's lowerer, so break
// and continue inside it target this loop; the increment lives in a
// latch block so continue still advances the induction variable.
func (l *funcLowerer) lowerRangeLoop(recv *ast.Expr, fn ast.ClosureData, span source.Span) (Operand, error) {
	lo, hi, inclusive, err := l.rangeBounds(recv, span)
	if err != nil {
		return Operand{}, err
	}
	elemTy := lo.Type
	if len(fn.Params) > 0 && fn.Params[0].Type != types.NoTypeID {
		elemTy = fn.Params[0].Type
	}
	var ind LocalID
	if len(fn.Params) > 0 {
		ind = l.newLocal(fn.Params[0].Name, elemTy, span)
	} else {
		ind = l.newTemp(elemTy, "i", span)
	}
	l.assignUse(Place{Local: ind}, lo)

	n := l.sess.next("loop")
	header := l.newBlock(fmt.Sprintf("loop_header_%d", n))
	body := l.newBlock(fmt.Sprintf("loop_body_%d", n))
	latch := l.newBlock(fmt.Sprintf("loop_latch_%d", n))
	exit := l.newBlock(fmt.Sprintf("loop_exit_%d", n))

	l.seal(Terminator{Kind: TermGoto, Goto: GotoTerm{Target: header}})
	l.startBlock(header)
	cmpOp := ast.BinLt
	if inclusive {
		cmpOp = ast.BinLe
	}
	cond := l.binInto(l.boolType(), BinaryOp{
		Op:    cmpOp,
		Left:  l.placeOperand(Place{Local: ind}, elemTy, false),
		Right: hi,
	}, "cmp", span)
	l.seal(Terminator{Kind: TermIf, If: IfTerm{Cond: cond, Then: body, Else: exit}})

	l.startBlock(body)
	mark := l.scopes.Push()
	if len(fn.Params) > 0 {
		l.scopes.Bind(fn.Params[0].Name, Binding{
			Place:       Place{Local: ind},
			Type:        elemTy,
			Initialized: true,
		})
	}
	l.loops = append(l.loops, loopCtx{continueTarget: latch, breakTarget: exit})
	bodyErr := l.lowerBlock(fn.Body)
	l.loops = l.loops[:len(l.loops)-1]
	l.scopes.PopTo(mark)
	if bodyErr != nil {
		return Operand{}, bodyErr
	}
	l.seal(Terminator{Kind: TermGoto, Goto: GotoTerm{Target: latch}})

	l.startBlock(latch)
	next := l.binInto(elemTy, BinaryOp{
		Op:    ast.BinAdd,
		Left:  l.placeOperand(Place{Local: ind}, elemTy, false),
		Right: l.oneOf(elemTy),
	}, "next", span)
	l.assignUse(Place{Local: ind}, next)
	l.seal(Terminator{Kind: TermGoto, Goto: GotoTerm{Target: header}})

	l.startBlock(exit)
	return l.constUnit(), nil
}

// rangeBounds extracts loop bounds. A syntactic range keeps its exact
// inclusivity; a materialized range value was normalized to half-open
// when it was built, so its stored bounds always compare strictly.
func (l *funcLowerer) rangeBounds(recv *ast.Expr, span source.Span) (lo, hi Operand, inclusive bool, err error) {
	if recv != nil && recv.Kind == ast.ExprRange {
		data, ok := recv.Data.(ast.RangeData)
		if !ok {
			return Operand{}, Operand{}, false, payloadErr("range", recv.Data)
		}
		lo, err = l.lowerExpr(data.Lo, false)
		if err != nil {
			return Operand{}, Operand{}, false, err
		}
		hi, err = l.lowerExpr(data.Hi, false)
		if err != nil {
			return Operand{}, Operand{}, false, err
		}
		return lo, hi, data.Inclusive, nil
	}
	place, err := l.lowerPlace(recv)
	if err != nil {
		return Operand{}, Operand{}, false, err
	}
	i64 := l.sess.Types.Builtins().I64
	loT := l.newTemp(i64, "lo", span)
	l.assignUse(Place{Local: loT}, l.placeOperand(place.Field(0, "lo"), i64, false))
	hiT := l.newTemp(i64, "hi", span)
	l.assignUse(Place{Local: hiT}, l.placeOperand(place.Field(1, "hi"), i64, false))
	return l.placeOperand(Place{Local: loT}, i64, false),
		l.placeOperand(Place{Local: hiT}, i64, false), false, nil
}

// lowerCollectionLoop is the documented placeholder for loops over
// non-range collections: the receiver is evaluated, then the body runs
// exactly once with the parameter bound to a zero element.
func (l *funcLowerer) lowerCollectionLoop(recv *ast.Expr, fn ast.ClosureData, span source.Span) (Operand, error) {
	if _, err := l.lowerExpr(recv, false); err != nil {
		return Operand{}, err
	}
	mark := l.scopes.Push()
	defer l.scopes.PopTo(mark)
	if len(fn.Params) > 0 {
		p := fn.Params[0]
		elemTy := p.Type
		if elemTy == types.NoTypeID {
			elemTy = l.collectionElemType(recv)
		}
		id := l.newLocal(p.Name, elemTy, span)
		l.assignUse(Place{Local: id}, l.zeroValue(elemTy, span))
		l.scopes.Bind(p.Name, Binding{Place: Place{Local: id}, Type: elemTy, Initialized: true})
	}
	if err := l.lowerBlock(fn.Body); err != nil {
		return Operand{}, err
	}
	return l.constUnit(), nil
}

func (l *funcLowerer) collectionElemType(recv *ast.Expr) types.TypeID {
	if recv != nil {
		if info, ok := l.sess.Types.DynVecInfo(recv.Type); ok && len(info.Elems) > 0 {
			return info.Elems[0]
		}
	}
	return l.sess.Types.Builtins().I32
}
