package lir

import (
	"koan/internal/source"
	"koan/internal/types"
)

// FuncID identifies a function within a module.
type FuncID int32

// NoFuncID marks the absence of a function reference.
const NoFuncID FuncID = -1

// BlockID identifies a basic block within a function.
type BlockID int32

// NoBlockID marks the absence of a block reference.
const NoBlockID BlockID = -1

// LocalID identifies a local slot within a function frame.
type LocalID int32

// NoLocalID marks the absence of a local reference.
const NoLocalID LocalID = -1

// Local is one slot in a function frame: a parameter, a user variable,
// or a lowering temporary.
type Local struct {
	Name string
	Type types.TypeID
	Span source.Span
}

// ProjKind enumerates place projections.
type ProjKind uint8

const (
	// ProjField selects a field of the value projected so far. Enum
	// values expose field 0 (discriminant) and field 1 (payload slot);
	// vector headers expose data, len, cap and the optional disc array.
	ProjField ProjKind = iota
	// ProjIndex selects an element of the array the projected value
	// addresses. The index is read from a local.
	ProjIndex
	// ProjDeref follows the pointer projected so far.
	ProjDeref
)

// PlaceProj is a single projection step.
type PlaceProj struct {
	Kind      ProjKind
	FieldIdx  int    // ProjField
	FieldName string // ProjField, informational
	Index     LocalID
}

// Place is an addressable location: a local root plus zero or more
// projections. Projection slices are never shared between places that
// extend each other.
type Place struct {
	Local LocalID
	Proj  []PlaceProj
}

// Field returns p extended with a field projection.
func (p Place) Field(idx int, name string) Place {
	return p.extend(PlaceProj{Kind: ProjField, FieldIdx: idx, FieldName: name})
}

// IndexBy returns p extended with an index projection reading idx.
func (p Place) IndexBy(idx LocalID) Place {
	return p.extend(PlaceProj{Kind: ProjIndex, Index: idx})
}

// Deref returns p extended with a pointer dereference.
func (p Place) Deref() Place {
	return p.extend(PlaceProj{Kind: ProjDeref})
}

func (p Place) extend(proj PlaceProj) Place {
	out := make([]PlaceProj, 0, len(p.Proj)+1)
	out = append(out, p.Proj...)
	out = append(out, proj)
	return Place{Local: p.Local, Proj: out}
}

// IsBareLocal reports whether the place is a projection-free local.
func (p Place) IsBareLocal() bool {
	return p.Local != NoLocalID && len(p.Proj) == 0
}
