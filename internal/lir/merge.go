package lir

import (
	"koan/internal/source"
	"koan/internal/types"
)

type mergeEntry struct {
	value Operand
	block BlockID
}

// MergeSet reconciles the values flowing into one merge block. Each
// contributing arm calls Add while its block is still open; the block
// is parked, not sealed, so the widening cast Resolve may need can
// still land inside it. Resolve then seals every parked block with a
// jump to the merge block and opens the merge block. Blocks sealed
// early by return, break, continue, or unreachable never contribute.
type MergeSet struct {
	l       *funcLowerer
	entries []mergeEntry
}

func (l *funcLowerer) newMergeSet() *MergeSet {
	return &MergeSet{l: l}
}

// Add records the value the current block contributes and parks the
// block. No terminator is written until Resolve.
func (ms *MergeSet) Add(value Operand) {
	b := ms.l.curBlock()
	if b == nil || b.Sealed() {
		return
	}
	ms.entries = append(ms.entries, mergeEntry{value: value, block: b.ID})
}

// Len reports how many blocks contribute.
func (ms *MergeSet) Len() int {
	return len(ms.entries)
}

// ReconciledType computes the type every contribution converts to:
// integer contributions widen to the maximum observed bit-width, and
// any signed contribution makes the result signed. Non-integer
// contributions pass through unchanged and are expected to agree.
// With no contributions the expected type stands in, i32 when unknown.
func (ms *MergeSet) ReconciledType(expected types.TypeID) types.TypeID {
	in := ms.l.sess.Types
	var (
		sawInt  bool
		maxBits int
		signed  bool
		other   types.TypeID
	)
	for _, ent := range ms.entries {
		ty := ent.value.Type
		if w, sgn, ok := in.IsInteger(ty); ok {
			sawInt = true
			if w.Bits() > maxBits {
				maxBits = w.Bits()
			}
			if sgn {
				signed = true
			}
			continue
		}
		if other == types.NoTypeID && ty != types.NoTypeID {
			other = ty
		}
	}
	if other != types.NoTypeID {
		return other
	}
	if sawInt {
		width := widthFromBits(maxBits)
		if signed {
			return in.Intern(types.MakeInt(width))
		}
		return in.Intern(types.MakeUint(width))
	}
	if expected != types.NoTypeID {
		return expected
	}
	return in.Builtins().I32
}

// Resolve creates the merge block and local, lands each contribution
// in its parked block (widening first when the types differ), seals
// the parked blocks with jumps to the merge block, and leaves the
// cursor on the merge block. The returned place reads the merged
// value. An empty set still opens the merge block and produces a
// throwaway zero value so lowering can continue.
func (ms *MergeSet) Resolve(name string, expected types.TypeID, hint string, span source.Span) (Place, types.TypeID) {
	l := ms.l
	ty := ms.ReconciledType(expected)
	merge := l.newBlock(name)
	dst := Place{Local: l.newTemp(ty, hint, span)}

	if len(ms.entries) == 0 {
		l.startBlock(merge)
		l.assignUse(dst, l.zeroScalar(ty))
		return dst, ty
	}

	for _, ent := range ms.entries {
		l.startBlock(ent.block)
		val := ent.value
		if ms.needsWidening(val.Type, ty) {
			val = l.castInto(val, ty, "widen", span)
		}
		l.assignUse(dst, val)
		l.seal(Terminator{Kind: TermGoto, Goto: GotoTerm{Target: merge}})
	}
	l.startBlock(merge)
	return dst, ty
}

func widthFromBits(bits int) types.Width {
	switch bits {
	case 8:
		return types.Width8
	case 16:
		return types.Width16
	case 32:
		return types.Width32
	default:
		return types.Width64
	}
}

func (ms *MergeSet) needsWidening(from, to types.TypeID) bool {
	if from == to || from == types.NoTypeID || to == types.NoTypeID {
		return false
	}
	in := ms.l.sess.Types
	if _, _, ok := in.IsInteger(from); !ok {
		return false
	}
	_, _, ok := in.IsInteger(to)
	return ok
}

// zeroScalar builds an immediate zero of a scalar type, falling back
// to a zero i32 for anything it cannot express immediately.
func (l *funcLowerer) zeroScalar(ty types.TypeID) Operand {
	in := l.sess.Types
	tt, ok := in.Lookup(ty)
	if !ok {
		return l.constIntOf(in.Builtins().I32, 0)
	}
	switch tt.Kind {
	case types.KindInt:
		return l.constIntOf(ty, 0)
	case types.KindUint:
		return l.constUintOf(ty, 0)
	case types.KindFloat:
		return Operand{Kind: OperandConst, Type: ty, Const: Const{Kind: ConstFloat, Type: ty}}
	case types.KindBool:
		return Operand{Kind: OperandConst, Type: ty, Const: Const{Kind: ConstBool, Type: ty}}
	case types.KindString:
		return Operand{Kind: OperandConst, Type: ty, Const: Const{Kind: ConstString, Type: ty}}
	case types.KindUnit:
		return l.constUnit()
	case types.KindPtr, types.KindMutPtr, types.KindRawPtr:
		return l.constNull(ty)
	default:
		return l.constIntOf(in.Builtins().I32, 0)
	}
}

// zeroValue produces a zero of any type, spilling aggregates through
// a zero-initialized temp.
func (l *funcLowerer) zeroValue(ty types.TypeID, span source.Span) Operand {
	in := l.sess.Types
	tt, ok := in.Lookup(ty)
	if ok {
		switch tt.Kind {
		case types.KindStruct, types.KindEnum, types.KindGeneric,
			types.KindDynVec, types.KindRange:
			tmp := l.newTemp(ty, "zero", span)
			l.assign(Place{Local: tmp}, RValue{Kind: RValueZeroInit, ZeroTy: ty})
			return l.placeOperand(Place{Local: tmp}, ty, false)
		}
	}
	return l.zeroScalar(ty)
}
