// Package layout computes the ABI layout of types for a target:
// scalar sizes, struct field offsets, the tagged-union shape of enums,
// and the header shape of growable vectors.
package layout

import (
	"koan/internal/types"
	"koan/internal/wellknown"
)

// Slot is a byte range inside a composite layout.
type Slot struct {
	Offset int
	Size   int
}

// TypeLayout is the ABI layout of a type for a specific Target.
type TypeLayout struct {
	Size  int
	Align int

	// Struct-only:
	FieldOffsets []int
}

// VariantLayout describes one variant of a lowered enum. Tags for
// well-known enums are fixed by the wellknown registry; user enums tag
// their variants in declaration order.
type VariantLayout struct {
	Name       string
	Tag        uint64
	HasPayload bool
	Payload    types.TypeID // logical payload type, NoTypeID when absent
}

// EnumLayout is the tagged-union shape of an enum: a 64-bit
// discriminant followed by a single pointer-sized payload slot. The
// payload slot holds the boxed payload of whichever variant is live;
// payloadless variants leave it null.
type EnumLayout struct {
	Size     int
	Align    int
	Disc     Slot
	Payload  Slot
	Variants []VariantLayout
}

// Variant resolves a variant by name.
func (el EnumLayout) Variant(name string) (VariantLayout, bool) {
	for _, v := range el.Variants {
		if v.Name == name {
			return v, true
		}
	}
	return VariantLayout{}, false
}

// VariantByTag resolves a variant by discriminant value.
func (el EnumLayout) VariantByTag(tag uint64) (VariantLayout, bool) {
	for _, v := range el.Variants {
		if v.Tag == tag {
			return v, true
		}
	}
	return VariantLayout{}, false
}

// DynVecLayout is the header shape of a growable vector: element
// storage pointer, length, capacity, and for mixed-element vectors a
// pointer to a parallel per-element discriminant array.
type DynVecLayout struct {
	Size  int
	Align int
	Data  Slot
	Len   Slot
	Cap   Slot
	Disc  *Slot // mixed vectors only
}

// Mixed reports whether elements carry per-slot discriminants.
func (vl DynVecLayout) Mixed() bool { return vl.Disc != nil }

// Engine computes and caches layouts against one interner and target.
type Engine struct {
	Target   Target
	Types    *types.Interner
	Registry *wellknown.Registry

	cache *cache
}

// New creates an Engine for the specified target.
func New(target Target, typesIn *types.Interner, reg *wellknown.Registry) *Engine {
	return &Engine{
		Target:   target,
		Types:    typesIn,
		Registry: reg,
		cache:    newCache(),
	}
}

type layoutState struct {
	stack []types.TypeID
	index map[types.TypeID]int
}

func newLayoutState() *layoutState {
	return &layoutState{
		stack: nil,
		index: make(map[types.TypeID]int, 32),
	}
}

// LayoutOf computes and caches the layout of a type.
func (e *Engine) LayoutOf(t types.TypeID) (TypeLayout, error) {
	if e == nil {
		return TypeLayout{Size: 0, Align: 1}, nil
	}
	if e.cache == nil {
		e.cache = newCache()
	}
	l, err := e.layoutOf(t, newLayoutState())
	if err != nil {
		return l, err
	}
	return l, nil
}

func (e *Engine) layoutOf(t types.TypeID, state *layoutState) (TypeLayout, *Error) {
	if e == nil {
		return TypeLayout{Size: 0, Align: 1}, nil
	}
	if state == nil {
		state = newLayoutState()
	}
	if cached, ok := e.cache.get(t); ok {
		return cached.Layout, cached.Err
	}

	if idx, ok := state.index[t]; ok {
		cycle := append([]types.TypeID(nil), state.stack[idx:]...)
		cycle = append(cycle, t)
		err := &Error{
			Kind:  ErrRecursiveUnsized,
			Type:  t,
			Cycle: cycle,
		}
		e.cache.put(t, cacheEntry{Layout: TypeLayout{Size: 0, Align: 1}, Err: err})
		return TypeLayout{Size: 0, Align: 1}, err
	}

	state.index[t] = len(state.stack)
	state.stack = append(state.stack, t)
	l, err := e.computeLayout(t, state)
	state.stack = state.stack[:len(state.stack)-1]
	delete(state.index, t)

	e.cache.put(t, cacheEntry{Layout: l, Err: err})
	return l, err
}

// SizeOf returns the size of a type in bytes.
func (e *Engine) SizeOf(t types.TypeID) (int, error) {
	l, err := e.LayoutOf(t)
	return l.Size, err
}

// AlignOf returns the alignment requirement of a type in bytes.
func (e *Engine) AlignOf(t types.TypeID) (int, error) {
	l, err := e.LayoutOf(t)
	return l.Align, err
}

// FieldOffset returns the byte offset of a struct field.
func (e *Engine) FieldOffset(structT types.TypeID, fieldIdx int) (int, error) {
	l, err := e.LayoutOf(structT)
	if err != nil {
		return 0, err
	}
	if fieldIdx < 0 || fieldIdx >= len(l.FieldOffsets) {
		return 0, nil
	}
	return l.FieldOffsets[fieldIdx], nil
}
