package lir

import (
	"fortio.org/safecast"

	"koan/internal/ast"
	"koan/internal/diag"
	"koan/internal/layout"
	"koan/internal/source"
	"koan/internal/types"
)

// Enum value field order matches layout.EnumLayoutOf: discriminant,
// then the opaque payload slot.
const (
	enumFieldDisc    = 0
	enumFieldPayload = 1
)

func (l *funcLowerer) lowerVariantExpr(e *ast.Expr, consume bool) (Operand, error) {
	data, ok := e.Data.(ast.VariantData)
	if !ok {
		return Operand{}, payloadErr("variant", e.Data)
	}
	var payload *Operand
	var payloadTy types.TypeID
	if data.Payload != nil {
		op, err := l.lowerExpr(data.Payload, true)
		if err != nil {
			return Operand{}, err
		}
		payload = &op
		payloadTy = op.Type
	}
	return l.makeVariant(e.Type, data.EnumName, data.Variant, payload, payloadTy, e.Span, consume)
}

// makeVariant builds a tagged-union value: write the discriminant,
// box the payload through a runtime allocation, and store the box
// pointer in the payload slot. Payloadless variants leave the slot
// null. One boxed pointer-sized slot serves every payload type.
func (l *funcLowerer) makeVariant(enumTy types.TypeID, enumName, variant string, payload *Operand, payloadTy types.TypeID, span source.Span, consume bool) (Operand, error) {
	el, _ := l.sess.Layout.EnumLayoutOf(enumTy)
	v, ok := el.Variant(variant)
	if !ok {
		name := enumName
		if name == "" {
			name = l.sess.Types.Format(enumTy)
		}
		return Operand{}, newError(diag.LowUndeclaredVariant, span,
			"enum %s has no variant %q", name, variant)
	}
	dst := Place{Local: l.newTemp(enumTy, "enum", span)}
	l.assignUse(dst.Field(enumFieldDisc, "disc"), l.constUintOf(l.u64Type(), v.Tag))
	if payload != nil {
		if payloadTy == types.NoTypeID {
			payloadTy = l.payloadTypeOf(enumTy, v)
		}
		box := l.allocBox(payloadTy, span)
		l.emit(&Instr{Kind: InstrStore, Store: StoreInstr{Addr: box, Value: *payload, Elem: payloadTy}})
		l.assignUse(dst.Field(enumFieldPayload, "payload"), box)
	} else {
		l.assignUse(dst.Field(enumFieldPayload, "payload"), l.constNull(l.rawPtrType()))
	}
	return l.placeOperand(dst, enumTy, consume), nil
}

// allocBox calls the runtime allocator for one payload box and
// returns the pointer operand.
func (l *funcLowerer) allocBox(payloadTy types.TypeID, span source.Span) Operand {
	size, err := l.sess.Layout.SizeOf(payloadTy)
	if err != nil || size <= 0 {
		size = 8
	}
	bytes, convErr := safecast.Conv[uint64](size)
	if convErr != nil {
		bytes = 8
	}
	ptrTy := l.rawPtrType()
	tmp := l.newTemp(ptrTy, "box", span)
	l.emit(&Instr{Kind: InstrCall, Call: CallInstr{
		HasDst: true,
		Dst:    Place{Local: tmp},
		Callee: Callee{Kind: CalleeRuntime, Name: runtimeAlloc},
		Args:   []Operand{l.constUintOf(l.u64Type(), bytes)},
	}})
	return l.placeOperand(Place{Local: tmp}, ptrTy, false)
}

// payloadTypeOf resolves what a variant's payload slot holds: the
// layout's resolved payload, then the instantiated generic argument,
// then the session hint, then i32 as the documented last resort.
func (l *funcLowerer) payloadTypeOf(enumTy types.TypeID, v layout.VariantLayout) types.TypeID {
	if v.Payload != types.NoTypeID {
		return v.Payload
	}
	if kind, ok := l.sess.Registry.Classify(enumTy); ok && kind.IsEnumKind() {
		if info, found := l.sess.Types.GenericInfo(enumTy); found {
			if argIdx, has := l.sess.Registry.PayloadArg(kind, v.Tag); has && argIdx < len(info.Args) {
				return info.Args[argIdx]
			}
		}
		if hint, found := l.sess.PayloadHint(kind, v.Tag); found {
			return hint
		}
	}
	return l.sess.Types.Builtins().I32
}

// loadPayload unboxes a variant payload: copy the payload slot and
// read through it at the payload type. Reading a null slot yields the
// payload type's zero value.
func (l *funcLowerer) loadPayload(enumPlace Place, payloadTy types.TypeID, span source.Span) Operand {
	ptrTy := l.rawPtrType()
	ptr := l.newTemp(ptrTy, "payload", span)
	l.assignUse(Place{Local: ptr}, l.placeOperand(enumPlace.Field(enumFieldPayload, "payload"), ptrTy, false))
	val := l.newTemp(payloadTy, "unbox", span)
	l.assign(Place{Local: val}, RValue{Kind: RValueLoad, Load: LoadOp{
		Addr: l.placeOperand(Place{Local: ptr}, ptrTy, false),
		Elem: payloadTy,
	}})
	return l.placeOperand(Place{Local: val}, payloadTy, false)
}

// loadDisc reads a tagged union's discriminant into a temp.
func (l *funcLowerer) loadDisc(enumPlace Place, span source.Span) Operand {
	u64 := l.u64Type()
	tmp := l.newTemp(u64, "disc", span)
	l.assignUse(Place{Local: tmp}, l.placeOperand(enumPlace.Field(enumFieldDisc, "disc"), u64, false))
	return l.placeOperand(Place{Local: tmp}, u64, false)
}
