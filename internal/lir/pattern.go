package lir

import (
	"fmt"

	"koan/internal/ast"
	"koan/internal/diag"
	"koan/internal/types"
)

// PatternBinding is one name a pattern makes visible to its guard and
// arm body.
type PatternBinding struct {
	Name string
	Bind Binding
}

// compilePattern compiles a pattern against an addressable scrutinee
// into a boolean condition plus the bindings the pattern introduces.
// Instructions land in the current block; binding loads run before the
// branch, so unboxing a slot that turns out not to match must stay
// harmless (null boxes read as zero values).
func (l *funcLowerer) compilePattern(scrut Place, scrutTy types.TypeID, p *ast.Pattern) (Operand, []PatternBinding, error) {
	if p == nil {
		return l.constBool(true), nil, nil
	}
	switch p.Kind {
	case ast.PatWildcard:
		return l.constBool(true), nil, nil
	case ast.PatLiteral:
		data, ok := p.Data.(ast.LiteralPattern)
		if !ok {
			return Operand{}, nil, payloadErr("literal pattern", p.Data)
		}
		lit := l.lowerLiteral(scrutTy, data.Lit)
		cond := l.binInto(l.boolType(), BinaryOp{
			Op:    ast.BinEq,
			Left:  l.placeOperand(scrut, scrutTy, false),
			Right: lit,
		}, "cmp", p.Span)
		return cond, nil, nil
	case ast.PatBind:
		data, ok := p.Data.(ast.BindPattern)
		if !ok {
			return Operand{}, nil, payloadErr("binding pattern", p.Data)
		}
		named := l.newLocal(data.Name, scrutTy, p.Span)
		l.assignUse(Place{Local: named}, l.placeOperand(scrut, scrutTy, false))
		bind := PatternBinding{Name: data.Name, Bind: Binding{
			Place:       Place{Local: named},
			Type:        scrutTy,
			Initialized: true,
		}}
		return l.constBool(true), []PatternBinding{bind}, nil
	case ast.PatVariant:
		return l.compileVariantPattern(scrut, scrutTy, p)
	case ast.PatRange:
		data, ok := p.Data.(ast.RangePattern)
		if !ok {
			return Operand{}, nil, payloadErr("range pattern", p.Data)
		}
		scrutOp := l.placeOperand(scrut, scrutTy, false)
		ge := l.binInto(l.boolType(), BinaryOp{
			Op:    ast.BinGe,
			Left:  scrutOp,
			Right: l.intConstOf(scrutTy, data.Lo),
		}, "cmp", p.Span)
		hiOp := ast.BinLt
		if data.Inclusive {
			hiOp = ast.BinLe
		}
		lt := l.binInto(l.boolType(), BinaryOp{
			Op:    hiOp,
			Left:  scrutOp,
			Right: l.intConstOf(scrutTy, data.Hi),
		}, "cmp", p.Span)
		cond := l.binInto(l.boolType(), BinaryOp{Op: ast.BinAnd, Left: ge, Right: lt}, "and", p.Span)
		return cond, nil, nil
	case ast.PatOr:
		data, ok := p.Data.(ast.OrPattern)
		if !ok {
			return Operand{}, nil, payloadErr("or-pattern", p.Data)
		}
		if len(data.Alts) == 0 {
			return l.constBool(false), nil, nil
		}
		var cond Operand
		for i, alt := range data.Alts {
			sub, binds, err := l.compilePattern(scrut, scrutTy, alt)
			if err != nil {
				return Operand{}, nil, err
			}
			if len(binds) > 0 {
				return Operand{}, nil, newError(diag.LowOrPatternBinding, alt.Span,
					"cannot bind %q under an or-pattern", binds[0].Name)
			}
			if i == 0 {
				cond = sub
				continue
			}
			cond = l.binInto(l.boolType(), BinaryOp{Op: ast.BinOr, Left: cond, Right: sub}, "or", p.Span)
		}
		return cond, nil, nil
	default:
		return Operand{}, nil, fmt.Errorf("lir: unsupported pattern %s", p.Kind)
	}
}

// compileVariantPattern tests the discriminant against the variant's
// tag and, for the binding form, unboxes the payload.
func (l *funcLowerer) compileVariantPattern(scrut Place, scrutTy types.TypeID, p *ast.Pattern) (Operand, []PatternBinding, error) {
	data, ok := p.Data.(ast.VariantPattern)
	if !ok {
		return Operand{}, nil, payloadErr("variant pattern", p.Data)
	}
	el, _ := l.sess.Layout.EnumLayoutOf(scrutTy)
	v, found := el.Variant(data.Variant)
	if !found {
		name := data.EnumName
		if name == "" {
			name = l.sess.Types.Format(scrutTy)
		}
		return Operand{}, nil, newError(diag.LowUndeclaredVariant, p.Span,
			"enum %s has no variant %q", name, data.Variant)
	}
	disc := l.loadDisc(scrut, p.Span)
	cond := l.binInto(l.boolType(), BinaryOp{
		Op:    ast.BinEq,
		Left:  disc,
		Right: l.constUintOf(l.u64Type(), v.Tag),
	}, "cmp", p.Span)
	if data.Binding == "" {
		return cond, nil, nil
	}
	payloadTy := l.payloadTypeOf(scrutTy, v)
	val := l.loadPayload(scrut, payloadTy, p.Span)
	named := l.newLocal(data.Binding, payloadTy, p.Span)
	l.assignUse(Place{Local: named}, val)
	bind := PatternBinding{Name: data.Binding, Bind: Binding{
		Place:       Place{Local: named},
		Type:        payloadTy,
		Initialized: true,
	}}
	return cond, []PatternBinding{bind}, nil
}

// compileGuard folds an arm guard into the pattern condition. Guards
// run under the pattern's bindings and must be boolean.
func (l *funcLowerer) compileGuard(guard *ast.Expr, cond Operand) (Operand, error) {
	if guard == nil {
		return cond, nil
	}
	if !l.isBoolType(guard.Type) {
		return Operand{}, newError(diag.LowGuardNotBool, guard.Span,
			"match guard must be bool, got %s", l.sess.Types.Format(guard.Type))
	}
	g, err := l.lowerExpr(guard, false)
	if err != nil {
		return Operand{}, err
	}
	return l.binInto(l.boolType(), BinaryOp{Op: ast.BinAnd, Left: cond, Right: g}, "guard", guard.Span), nil
}

func (l *funcLowerer) isBoolType(ty types.TypeID) bool {
	tt, ok := l.sess.Types.Lookup(ty)
	return ok && tt.Kind == types.KindBool
}

func (l *funcLowerer) intConstOf(ty types.TypeID, v int64) Operand {
	if _, signed, ok := l.sess.Types.IsInteger(ty); ok && !signed && v >= 0 {
		return l.constUintOf(ty, uint64(v))
	}
	return l.constIntOf(ty, v)
}
