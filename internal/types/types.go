package types

import "fmt"

// TypeID uniquely identifies a type inside the interner.
type TypeID uint32

// NoTypeID marks the absence of a type.
const NoTypeID TypeID = 0

// Kind enumerates all supported kinds of logical types.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindUnit
	KindBool
	KindString
	KindInt
	KindUint
	KindFloat
	KindPtr    // *T, read-only
	KindMutPtr // *mut T
	KindRawPtr // untyped pointer-sized slot
	KindRange  // start/end/inclusive triple
	KindStruct
	KindEnum
	KindGeneric // named instantiation, e.g. Result<i32, string>
	KindDynVec  // growable vector
	KindFn
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindUnit:
		return "unit"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindFloat:
		return "float"
	case KindPtr:
		return "ptr"
	case KindMutPtr:
		return "mutptr"
	case KindRawPtr:
		return "rawptr"
	case KindRange:
		return "range"
	case KindStruct:
		return "struct"
	case KindEnum:
		return "enum"
	case KindGeneric:
		return "generic"
	case KindDynVec:
		return "dynvec"
	case KindFn:
		return "fn"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Width captures the precision of integers and floats.
type Width uint8

const (
	WidthAny Width = 0
	Width8   Width = 8
	Width16  Width = 16
	Width32  Width = 32
	Width64  Width = 64
)

// Bits returns the width in bits (64 for WidthAny, the widest default).
func (w Width) Bits() int {
	if w == WidthAny {
		return 64
	}
	return int(w)
}

// Type is a compact descriptor for any supported type. Nominal kinds
// (struct, enum, generic, dynvec, fn) carry a slot index into the
// interner's info tables in Payload.
type Type struct {
	Kind    Kind
	Elem    TypeID // pointee for Ptr/MutPtr
	Width   Width  // numeric precision
	Payload uint32 // info-table slot for nominal kinds
}

// Descriptor helpers.

// MakeInt describes a signed integer of the given width.
func MakeInt(width Width) Type {
	return Type{Kind: KindInt, Width: width}
}

// MakeUint describes an unsigned integer of the given width.
func MakeUint(width Width) Type {
	return Type{Kind: KindUint, Width: width}
}

// MakeFloat describes a floating-point type.
func MakeFloat(width Width) Type {
	return Type{Kind: KindFloat, Width: width}
}

// MakePtr describes a read-only typed pointer.
func MakePtr(elem TypeID) Type {
	return Type{Kind: KindPtr, Elem: elem}
}

// MakeMutPtr describes a mutable typed pointer.
func MakeMutPtr(elem TypeID) Type {
	return Type{Kind: KindMutPtr, Elem: elem}
}
