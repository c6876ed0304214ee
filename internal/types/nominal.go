package types

import (
	"fmt"
	"slices"
	"strings"

	"fortio.org/safecast"
)

// StructField describes a single field inside a nominal struct type.
type StructField struct {
	Name string
	Type TypeID
}

// StructInfo stores metadata for a struct type.
type StructInfo struct {
	Name   string
	Fields []StructField
}

// EnumVariant describes one variant of an enum. Payload is NoTypeID for
// payload-free variants.
type EnumVariant struct {
	Name    string
	Payload TypeID
}

// EnumInfo stores metadata for an enum type. Variant order is declaration
// order; discriminant assignment happens in the layout engine, which may
// override it for well-known types.
type EnumInfo struct {
	Name     string
	Variants []EnumVariant
}

// GenericInfo stores a named instantiation such as Result<i32, string>.
type GenericInfo struct {
	Name string
	Args []TypeID
}

// DynVecInfo stores the element types of a growable vector. A single
// element type means a homogeneous vector; several mean a mixed vector
// carrying a parallel discriminant array.
type DynVecInfo struct {
	Elems []TypeID
}

// FnInfo stores a function signature type.
type FnInfo struct {
	Params []TypeID
	Result TypeID
}

// RegisterStruct allocates a nominal struct type and returns its TypeID.
// Registering the same name again returns the existing TypeID.
func (in *Interner) RegisterStruct(name string) TypeID {
	if id, ok := in.named[name]; ok {
		return id
	}
	slot := appendSlot(&in.structs, StructInfo{Name: name})
	id := in.internRaw(Type{Kind: KindStruct, Payload: slot})
	in.named[name] = id
	return id
}

// SetStructFields stores the resolved field descriptors for a struct type.
func (in *Interner) SetStructFields(id TypeID, fields []StructField) {
	info := infoFor(in, id, KindStruct, in.structs)
	if info == nil {
		return
	}
	info.Fields = slices.Clone(fields)
}

// StructInfo returns metadata for the provided struct TypeID.
func (in *Interner) StructInfo(id TypeID) (*StructInfo, bool) {
	info := infoFor(in, id, KindStruct, in.structs)
	if info == nil {
		return nil, false
	}
	return info, true
}

// RegisterEnum allocates a nominal enum type and returns its TypeID.
// Registering the same name again returns the existing TypeID.
func (in *Interner) RegisterEnum(name string) TypeID {
	if id, ok := in.named[name]; ok {
		return id
	}
	slot := appendSlot(&in.enums, EnumInfo{Name: name})
	id := in.internRaw(Type{Kind: KindEnum, Payload: slot})
	in.named[name] = id
	return id
}

// SetEnumVariants stores the declared variants for an enum type.
func (in *Interner) SetEnumVariants(id TypeID, variants []EnumVariant) {
	info := infoFor(in, id, KindEnum, in.enums)
	if info == nil {
		return
	}
	info.Variants = slices.Clone(variants)
}

// EnumInfo returns metadata for the provided enum TypeID.
func (in *Interner) EnumInfo(id TypeID) (*EnumInfo, bool) {
	info := infoFor(in, id, KindEnum, in.enums)
	if info == nil {
		return nil, false
	}
	return info, true
}

// Named returns the TypeID registered under a nominal struct/enum name.
func (in *Interner) Named(name string) (TypeID, bool) {
	if in == nil {
		return NoTypeID, false
	}
	id, ok := in.named[name]
	return id, ok
}

// InternGeneric interns a named instantiation. Identical name+args yield
// the same TypeID.
func (in *Interner) InternGeneric(name string, args []TypeID) TypeID {
	key := compoundKey("g", name, args)
	if id, ok := in.compound[key]; ok {
		return id
	}
	slot := appendSlot(&in.generics, GenericInfo{Name: name, Args: slices.Clone(args)})
	id := in.internRaw(Type{Kind: KindGeneric, Payload: slot})
	in.compound[key] = id
	return id
}

// GenericInfo returns metadata for a generic instantiation TypeID.
func (in *Interner) GenericInfo(id TypeID) (*GenericInfo, bool) {
	info := infoFor(in, id, KindGeneric, in.generics)
	if info == nil {
		return nil, false
	}
	return info, true
}

// InternDynVec interns a growable-vector type over the given element types.
func (in *Interner) InternDynVec(elems []TypeID) TypeID {
	key := compoundKey("v", "", elems)
	if id, ok := in.compound[key]; ok {
		return id
	}
	slot := appendSlot(&in.dynvecs, DynVecInfo{Elems: slices.Clone(elems)})
	id := in.internRaw(Type{Kind: KindDynVec, Payload: slot})
	in.compound[key] = id
	return id
}

// DynVecInfo returns metadata for a DynVec TypeID.
func (in *Interner) DynVecInfo(id TypeID) (*DynVecInfo, bool) {
	info := infoFor(in, id, KindDynVec, in.dynvecs)
	if info == nil {
		return nil, false
	}
	return info, true
}

// InternFn interns a function signature type.
func (in *Interner) InternFn(params []TypeID, result TypeID) TypeID {
	key := compoundKey("f", fmt.Sprintf("r%d", result), params)
	if id, ok := in.compound[key]; ok {
		return id
	}
	slot := appendSlot(&in.fns, FnInfo{Params: slices.Clone(params), Result: result})
	id := in.internRaw(Type{Kind: KindFn, Payload: slot})
	in.compound[key] = id
	return id
}

// FnInfo returns metadata for a function TypeID.
func (in *Interner) FnInfo(id TypeID) (*FnInfo, bool) {
	info := infoFor(in, id, KindFn, in.fns)
	if info == nil {
		return nil, false
	}
	return info, true
}

// Name returns the nominal or generic-head name of a type, or "" when the
// type has none.
func (in *Interner) Name(id TypeID) string {
	tt, ok := in.Lookup(id)
	if !ok {
		return ""
	}
	switch tt.Kind {
	case KindStruct:
		if info, ok := in.StructInfo(id); ok {
			return info.Name
		}
	case KindEnum:
		if info, ok := in.EnumInfo(id); ok {
			return info.Name
		}
	case KindGeneric:
		if info, ok := in.GenericInfo(id); ok {
			return info.Name
		}
	}
	return ""
}

// infoFor resolves the payload slot of a nominal type to its info entry.
func infoFor[T any](in *Interner, id TypeID, kind Kind, table []T) *T {
	if in == nil || id == NoTypeID {
		return nil
	}
	tt, ok := in.Lookup(id)
	if !ok || tt.Kind != kind {
		return nil
	}
	if tt.Payload == 0 || int(tt.Payload) >= len(table) {
		return nil
	}
	return &table[tt.Payload]
}

func appendSlot[T any](table *[]T, info T) uint32 {
	*table = append(*table, info)
	slot, err := safecast.Conv[uint32](len(*table) - 1)
	if err != nil {
		panic(fmt.Errorf("types: info table overflow: %w", err))
	}
	return slot
}

func compoundKey(prefix, name string, ids []TypeID) string {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteByte('|')
	b.WriteString(name)
	for _, id := range ids {
		fmt.Fprintf(&b, "|%d", id)
	}
	return b.String()
}
