// Package wellknown is the single place where user-facing type and
// variant names ("Option", "Some", "Err", ...) are translated into
// internal kinds and discriminant tags. Everything downstream of the
// registry works with Kind values and integer tags; no other package
// may compare these names.
package wellknown

import (
	"strings"

	"koan/internal/types"
)

// Kind identifies a compiler-known type family.
type Kind uint8

const (
	KindNone Kind = iota
	KindOption
	KindResult
	KindPtr
	KindMutPtr
	KindRawPtr
	KindString
	KindVec
	KindDynVec
	KindHashMap
	KindHashSet
)

func (k Kind) String() string {
	switch k {
	case KindOption:
		return "Option"
	case KindResult:
		return "Result"
	case KindPtr:
		return "Ptr"
	case KindMutPtr:
		return "MutPtr"
	case KindRawPtr:
		return "RawPtr"
	case KindString:
		return "String"
	case KindVec:
		return "Vec"
	case KindDynVec:
		return "DynVec"
	case KindHashMap:
		return "HashMap"
	case KindHashSet:
		return "HashSet"
	default:
		return "none"
	}
}

// Variant describes one variant of a well-known enum. Tags are fixed by
// the registry and do not depend on the order variants appear in any
// declaration: the carrying variant (Some, Ok) is always tag 0.
type Variant struct {
	Name       string
	Tag        uint64
	HasPayload bool
	// PayloadArg is the generic-argument index that types the payload.
	// Only meaningful when HasPayload is set.
	PayloadArg int
}

var optionVariants = []Variant{
	{Name: "Some", Tag: 0, HasPayload: true, PayloadArg: 0},
	{Name: "None", Tag: 1},
}

var resultVariants = []Variant{
	{Name: "Ok", Tag: 0, HasPayload: true, PayloadArg: 0},
	{Name: "Err", Tag: 1, HasPayload: true, PayloadArg: 1},
}

var kindNames = map[string]Kind{
	"Option":  KindOption,
	"Result":  KindResult,
	"Ptr":     KindPtr,
	"MutPtr":  KindMutPtr,
	"RawPtr":  KindRawPtr,
	"String":  KindString,
	"Vec":     KindVec,
	"DynVec":  KindDynVec,
	"HashMap": KindHashMap,
	"HashSet": KindHashSet,
}

// Registry resolves names and TypeIDs to well-known kinds. It is bound
// to the interner whose ids it classifies.
type Registry struct {
	Types *types.Interner
}

func NewRegistry(in *types.Interner) *Registry {
	return &Registry{Types: in}
}

// KindOf translates a user-facing type name.
func (r *Registry) KindOf(name string) (Kind, bool) {
	k, ok := kindNames[name]
	return k, ok
}

// Variants returns the fixed variant set of a well-known enum kind.
// The returned slice is shared and must not be mutated.
func (r *Registry) Variants(kind Kind) []Variant {
	return variantsOf(kind)
}

// VariantTag translates a variant name to its discriminant tag.
// Some and Ok are always 0; None and Err are always 1.
func (r *Registry) VariantTag(kind Kind, variant string) (uint64, bool) {
	for _, v := range r.Variants(kind) {
		if v.Name == variant {
			return v.Tag, true
		}
	}
	return 0, false
}

// TagName is the inverse of VariantTag, used when printing.
func (r *Registry) TagName(kind Kind, tag uint64) (string, bool) {
	for _, v := range r.Variants(kind) {
		if v.Tag == tag {
			return v.Name, true
		}
	}
	return "", false
}

// PayloadArg reports which generic-argument index types the payload of
// the given variant. ok is false for payloadless variants such as None.
func (r *Registry) PayloadArg(kind Kind, tag uint64) (int, bool) {
	for _, v := range r.Variants(kind) {
		if v.Tag == tag {
			return v.PayloadArg, v.HasPayload
		}
	}
	return 0, false
}

// ParseHintKey decodes a payload-hint key of the form
// "<Type>_<Variant>_Type" ("Option_Some_Type", "Result_Err_Type")
// carried by typed-AST artifacts. It returns the well-known kind and
// the variant tag the hint applies to.
func ParseHintKey(key string) (Kind, uint64, bool) {
	parts := strings.Split(key, "_")
	if len(parts) != 3 || parts[2] != "Type" {
		return KindNone, 0, false
	}
	kind, ok := kindNames[parts[0]]
	if !ok || !kind.IsEnumKind() {
		return KindNone, 0, false
	}
	for _, v := range variantsOf(kind) {
		if v.Name == parts[1] {
			return kind, v.Tag, true
		}
	}
	return KindNone, 0, false
}

func variantsOf(kind Kind) []Variant {
	switch kind {
	case KindOption:
		return optionVariants
	case KindResult:
		return resultVariants
	default:
		return nil
	}
}

// Classify resolves a TypeID to its well-known kind. Generic
// instantiations classify by their head name, nominal types by their
// declared name, and structural types by their kind.
func (r *Registry) Classify(id types.TypeID) (Kind, bool) {
	if r == nil || r.Types == nil {
		return KindNone, false
	}
	tt, ok := r.Types.Lookup(id)
	if !ok {
		return KindNone, false
	}
	switch tt.Kind {
	case types.KindString:
		return KindString, true
	case types.KindPtr:
		return KindPtr, true
	case types.KindMutPtr:
		return KindMutPtr, true
	case types.KindRawPtr:
		return KindRawPtr, true
	case types.KindDynVec:
		return KindDynVec, true
	case types.KindGeneric, types.KindEnum, types.KindStruct:
		name := r.Types.Name(id)
		if name == "" {
			return KindNone, false
		}
		return r.KindOf(name)
	default:
		return KindNone, false
	}
}

// IsEnumKind reports whether the kind lowers as a tagged union.
func (k Kind) IsEnumKind() bool {
	return k == KindOption || k == KindResult
}
