package lir

import (
	"koan/internal/ast"
	"koan/internal/diag"
	"koan/internal/types"
	"koan/internal/wellknown"
)

// stringConvRuntime maps string conversion methods to the runtime
// entry points implementing them.
var stringConvRuntime = map[string]string{
	"to_i32": runtimeStringToI32,
	"to_i64": runtimeStringToI64,
	"to_f32": runtimeStringToF32,
	"to_f64": runtimeStringToF64,
}

// lowerMethodCall resolves a dotted call in four tiers: static
// constructors spelled on a type name, compiler built-ins on
// well-known receivers, registered trait methods, and finally uniform
// call syntax against a free function taking the receiver first.
func (l *funcLowerer) lowerMethodCall(e *ast.Expr, consume bool) (Operand, error) {
	data, ok := e.Data.(ast.MethodCallData)
	if !ok {
		return Operand{}, payloadErr("method call", e.Data)
	}

	if data.Recv == nil {
		if kind, found := l.sess.Registry.KindOf(data.TypeName); found &&
			kind == wellknown.KindDynVec && data.Method == "new" {
			return l.lowerVecNew(e, data.Args, consume)
		}
		return Operand{}, newError(diag.LowUnresolvedMethod, e.Span,
			"cannot resolve %s.%s", data.TypeName, data.Method)
	}
	recvTy := data.Recv.Type

	// loop dispatches before anything lowers the closure argument: the
	// body is inlined into this function, never hoisted.
	if data.Method == "loop" && (data.Recv.Kind == ast.ExprRange || l.isRangeType(recvTy) || l.isDynVecType(recvTy)) {
		if len(data.Args) != 1 || data.Args[0] == nil || data.Args[0].Kind != ast.ExprClosure {
			return Operand{}, newError(diag.LowTypeMismatch, e.Span, "loop takes a closure argument")
		}
		fn, okFn := data.Args[0].Data.(ast.ClosureData)
		if !okFn {
			return Operand{}, payloadErr("closure", data.Args[0].Data)
		}
		if l.isDynVecType(recvTy) {
			return l.lowerCollectionLoop(data.Recv, fn, e.Span)
		}
		return l.lowerRangeLoop(data.Recv, fn, e.Span)
	}

	if kind, found := l.sess.Registry.Classify(recvTy); found {
		switch kind {
		case wellknown.KindDynVec:
			switch data.Method {
			case "push":
				return l.lowerVecPush(data.Recv, data.Args, e.Span)
			case "pop":
				return l.lowerVecPop(e, data.Recv, consume)
			case "get":
				return l.lowerVecGet(e, data.Recv, data.Args, consume)
			case "set":
				return l.lowerVecSet(e, data.Recv, data.Args, consume)
			case "len":
				return l.lowerVecLen(e, data.Recv)
			case "clear":
				return l.lowerVecClear(data.Recv)
			}
		case wellknown.KindResult:
			if data.Method == "raise" {
				return l.lowerRaise(e, data.Recv, consume)
			}
		case wellknown.KindPtr, wellknown.KindMutPtr, wellknown.KindRawPtr:
			if op, handled, err := l.lowerPtrMethod(e, data, consume); handled {
				return op, err
			}
		case wellknown.KindString:
			if name, conv := stringConvRuntime[data.Method]; conv {
				return l.lowerStringConv(e, data, name, consume)
			}
		}
	}

	if target, found := l.sess.LookupMethod(recvTy, data.Method); found {
		return l.lowerBoundCall(e, data, target, consume)
	}
	if _, found := l.sess.LookupFunc(data.Method); found {
		return l.lowerBoundCall(e, data, data.Method, consume)
	}
	return Operand{}, newError(diag.LowUnresolvedMethod, e.Span,
		"cannot resolve method %s on %s", data.Method, l.sess.Types.Format(recvTy))
}

// lowerPtrMethod handles val (read through the pointer) and addr (the
// pointer's numeric value). Other names fall through to method
// resolution.
func (l *funcLowerer) lowerPtrMethod(e *ast.Expr, data ast.MethodCallData, consume bool) (Operand, bool, error) {
	switch data.Method {
	case "val":
		recv, err := l.lowerExpr(data.Recv, false)
		if err != nil {
			return Operand{}, true, err
		}
		elem := e.Type
		if elem == types.NoTypeID {
			if tt, ok := l.sess.Types.Lookup(recv.Type); ok && tt.Elem != types.NoTypeID {
				elem = tt.Elem
			} else {
				elem = l.sess.Types.Builtins().I64
			}
		}
		tmp := l.newTemp(elem, "deref", e.Span)
		l.assign(Place{Local: tmp}, RValue{Kind: RValueLoad, Load: LoadOp{Addr: recv, Elem: elem}})
		return l.placeOperand(Place{Local: tmp}, elem, consume), true, nil
	case "addr":
		recv, err := l.lowerExpr(data.Recv, false)
		if err != nil {
			return Operand{}, true, err
		}
		return l.castInto(recv, l.u64Type(), "addr", e.Span), true, nil
	default:
		return Operand{}, false, nil
	}
}

func (l *funcLowerer) lowerStringConv(e *ast.Expr, data ast.MethodCallData, runtimeName string, consume bool) (Operand, error) {
	recv, err := l.lowerExpr(data.Recv, false)
	if err != nil {
		return Operand{}, err
	}
	resTy := e.Type
	if resTy == types.NoTypeID {
		b := l.sess.Types.Builtins()
		switch runtimeName {
		case runtimeStringToI32:
			resTy = b.I32
		case runtimeStringToI64:
			resTy = b.I64
		case runtimeStringToF32:
			resTy = b.F32
		case runtimeStringToF64:
			resTy = b.F64
		}
	}
	return l.emitCall(Callee{Kind: CalleeRuntime, Name: runtimeName}, []Operand{recv}, resTy, e.Span, consume), nil
}

// lowerBoundCall lowers recv.m(args) as target(recv, args...).
func (l *funcLowerer) lowerBoundCall(e *ast.Expr, data ast.MethodCallData, target string, consume bool) (Operand, error) {
	recv, err := l.lowerExpr(data.Recv, true)
	if err != nil {
		return Operand{}, err
	}
	args := make([]Operand, 0, len(data.Args)+1)
	args = append(args, recv)
	for _, a := range data.Args {
		op, err := l.lowerExpr(a, true)
		if err != nil {
			return Operand{}, err
		}
		args = append(args, op)
	}
	resTy := e.Type
	if resTy == types.NoTypeID {
		if sig, ok := l.sess.LookupFunc(target); ok {
			resTy = sig.Result
		}
	}
	return l.emitCall(Callee{Kind: CalleeFn, Name: target}, args, resTy, e.Span, consume), nil
}

func (l *funcLowerer) isRangeType(ty types.TypeID) bool {
	tt, ok := l.sess.Types.Lookup(ty)
	return ok && tt.Kind == types.KindRange
}
