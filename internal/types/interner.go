package types

import (
	"fmt"

	"fortio.org/safecast"
)

// Builtins stores TypeIDs for the pre-interned primitive types.
type Builtins struct {
	Invalid TypeID
	Unit    TypeID
	Bool    TypeID
	String  TypeID
	Range   TypeID
	RawPtr  TypeID
	I8      TypeID
	I16     TypeID
	I32     TypeID
	I64     TypeID
	U8      TypeID
	U16     TypeID
	U32     TypeID
	U64     TypeID
	F32     TypeID
	F64     TypeID
}

// Interner provides stable TypeIDs by hashing structural descriptors.
// Descriptors are immutable once interned and compared structurally.
type Interner struct {
	types    []Type
	index    map[typeKey]TypeID
	named    map[string]TypeID // nominal structs/enums by name
	compound map[string]TypeID // generic/dynvec/fn instantiations by canonical key
	builtins Builtins

	structs  []StructInfo
	enums    []EnumInfo
	generics []GenericInfo
	dynvecs  []DynVecInfo
	fns      []FnInfo
}

type typeKey struct {
	Kind    Kind
	Elem    TypeID
	Width   Width
	Payload uint32
}

// NewInterner constructs an interner seeded with built-in primitives.
func NewInterner() *Interner {
	in := &Interner{
		index:    make(map[typeKey]TypeID, 64),
		named:    make(map[string]TypeID, 16),
		compound: make(map[string]TypeID, 16),
	}
	// Reserve slot 0 of every info table as an invalid sentinel.
	in.structs = append(in.structs, StructInfo{})
	in.enums = append(in.enums, EnumInfo{})
	in.generics = append(in.generics, GenericInfo{})
	in.dynvecs = append(in.dynvecs, DynVecInfo{})
	in.fns = append(in.fns, FnInfo{})

	in.builtins.Invalid = in.internRaw(Type{Kind: KindInvalid})
	in.builtins.Unit = in.Intern(Type{Kind: KindUnit})
	in.builtins.Bool = in.Intern(Type{Kind: KindBool})
	in.builtins.String = in.Intern(Type{Kind: KindString})
	in.builtins.Range = in.Intern(Type{Kind: KindRange})
	in.builtins.RawPtr = in.Intern(Type{Kind: KindRawPtr})
	in.builtins.I8 = in.Intern(MakeInt(Width8))
	in.builtins.I16 = in.Intern(MakeInt(Width16))
	in.builtins.I32 = in.Intern(MakeInt(Width32))
	in.builtins.I64 = in.Intern(MakeInt(Width64))
	in.builtins.U8 = in.Intern(MakeUint(Width8))
	in.builtins.U16 = in.Intern(MakeUint(Width16))
	in.builtins.U32 = in.Intern(MakeUint(Width32))
	in.builtins.U64 = in.Intern(MakeUint(Width64))
	in.builtins.F32 = in.Intern(MakeFloat(Width32))
	in.builtins.F64 = in.Intern(MakeFloat(Width64))
	return in
}

// Builtins returns TypeIDs for primitive types.
func (in *Interner) Builtins() Builtins {
	return in.builtins
}

// Intern ensures the provided descriptor has a stable TypeID.
func (in *Interner) Intern(t Type) TypeID {
	if t.Kind == KindInvalid {
		return NoTypeID
	}
	key := typeKey{Kind: t.Kind, Elem: t.Elem, Width: t.Width, Payload: t.Payload}
	if id, ok := in.index[key]; ok {
		return id
	}
	return in.internRaw(t)
}

// internRaw adds the descriptor to the storage without consulting the map.
func (in *Interner) internRaw(t Type) TypeID {
	lenTypes, err := safecast.Conv[uint32](len(in.types))
	if err != nil {
		panic(fmt.Errorf("types: type count overflow: %w", err))
	}
	id := TypeID(lenTypes)
	in.types = append(in.types, t)
	in.index[typeKey{Kind: t.Kind, Elem: t.Elem, Width: t.Width, Payload: t.Payload}] = id
	return id
}

// Lookup returns the descriptor for a TypeID.
func (in *Interner) Lookup(id TypeID) (Type, bool) {
	if in == nil || id == NoTypeID || int(id) >= len(in.types) {
		return Type{}, false
	}
	return in.types[id], true
}

// MustLookup panics when id is invalid.
func (in *Interner) MustLookup(id TypeID) Type {
	tt, ok := in.Lookup(id)
	if !ok {
		panic("types: invalid TypeID")
	}
	return tt
}

// IsInteger reports whether id is a signed or unsigned integer, along with
// its width and signedness.
func (in *Interner) IsInteger(id TypeID) (width Width, signed bool, ok bool) {
	tt, found := in.Lookup(id)
	if !found {
		return 0, false, false
	}
	switch tt.Kind {
	case KindInt:
		return tt.Width, true, true
	case KindUint:
		return tt.Width, false, true
	default:
		return 0, false, false
	}
}

// IsPointer reports whether id is one of the pointer kinds.
func (in *Interner) IsPointer(id TypeID) bool {
	tt, ok := in.Lookup(id)
	if !ok {
		return false
	}
	switch tt.Kind {
	case KindPtr, KindMutPtr, KindRawPtr:
		return true
	default:
		return false
	}
}
