package lir

import (
	"fmt"

	"koan/internal/ast"
	"koan/internal/diag"
	"koan/internal/types"
	"koan/internal/wellknown"
)

// lowerRaise lowers expr.raise(): branch on the operand's
// discriminant, forward the error variant to the caller, or continue
// with the unboxed Ok payload. The enclosing function must itself
// return a Result; anything else refuses to compile rather than
// inventing a sentinel value.
func (l *funcLowerer) lowerRaise(e *ast.Expr, recv *ast.Expr, consume bool) (Operand, error) {
	if kind, ok := l.sess.Registry.Classify(l.f.Result); !ok || kind != wellknown.KindResult {
		return Operand{}, newError(diag.LowRaiseReturnType, e.Span,
			"cannot raise from %s: it returns %s, not a Result",
			l.f.Name, l.sess.Types.Format(l.f.Result))
	}
	op, err := l.lowerExpr(recv, true)
	if err != nil {
		return Operand{}, err
	}
	recvTy := op.Type
	if recvTy == types.NoTypeID && recv != nil {
		recvTy = recv.Type
	}
	scrut := l.spillOperand(op, "res", e.Span)

	okTag, _ := l.sess.Registry.VariantTag(wellknown.KindResult, "Ok")
	errTag, _ := l.sess.Registry.VariantTag(wellknown.KindResult, "Err")

	n := l.sess.next("raise")
	okB := l.newBlock(fmt.Sprintf("raise_ok_%d", n))
	errB := l.newBlock(fmt.Sprintf("raise_err_%d", n))

	disc := l.loadDisc(scrut, e.Span)
	cond := l.binInto(l.boolType(), BinaryOp{
		Op:    ast.BinEq,
		Left:  disc,
		Right: l.constUintOf(l.u64Type(), okTag),
	}, "cmp", e.Span)
	l.seal(Terminator{Kind: TermIf, If: IfTerm{Cond: cond, Then: okB, Else: errB}})

	// Error path: rebuild the function's own Result around the
	// operand's payload slot, forwarded verbatim (no reboxing).
	l.startBlock(errB)
	res := Place{Local: l.newTemp(l.f.Result, "reraise", e.Span)}
	l.assignUse(res.Field(enumFieldDisc, "disc"), l.constUintOf(l.u64Type(), errTag))
	ptrTy := l.rawPtrType()
	l.assignUse(res.Field(enumFieldPayload, "payload"),
		l.placeOperand(scrut.Field(enumFieldPayload, "payload"), ptrTy, false))
	l.seal(Terminator{Kind: TermReturn, Return: ReturnTerm{
		HasValue: true,
		Value:    l.placeOperand(res, l.f.Result, true),
	}})

	// Ok path is the continuation.
	l.startBlock(okB)
	payloadTy := l.okPayloadType(recvTy, e.Type, okTag)
	val := l.loadPayload(scrut, payloadTy, e.Span)
	return l.placeOperand(val.Place, payloadTy, consume), nil
}

// okPayloadType resolves the type .raise() yields: the expression's
// own checked type, the receiver's Ok payload through the layout, the
// session hint, then i32 as the documented last resort.
func (l *funcLowerer) okPayloadType(recvTy, exprTy types.TypeID, okTag uint64) types.TypeID {
	if exprTy != types.NoTypeID {
		return exprTy
	}
	el, _ := l.sess.Layout.EnumLayoutOf(recvTy)
	if v, ok := el.VariantByTag(okTag); ok {
		return l.payloadTypeOf(recvTy, v)
	}
	if hint, ok := l.sess.PayloadHint(wellknown.KindResult, okTag); ok {
		return hint
	}
	return l.sess.Types.Builtins().I32
}
