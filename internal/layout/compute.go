package layout

import (
	"koan/internal/types"
	"koan/internal/wellknown"
)

func (e *Engine) computeLayout(id types.TypeID, state *layoutState) (TypeLayout, *Error) {
	if e == nil || e.Types == nil || id == types.NoTypeID {
		return TypeLayout{Size: 0, Align: 1}, nil
	}
	tt, ok := e.Types.Lookup(id)
	if !ok {
		return TypeLayout{Size: 0, Align: 1}, nil
	}

	switch tt.Kind {
	case types.KindUnit:
		return TypeLayout{Size: 0, Align: 1}, nil

	case types.KindBool:
		return TypeLayout{Size: 1, Align: 1}, nil

	case types.KindInt, types.KindUint, types.KindFloat:
		if tt.Width == types.WidthAny {
			return e.ptrLayout(), nil
		}
		return scalarLayoutBytes(int(tt.Width) / 8), nil

	case types.KindString:
		// Strings are opaque runtime handles.
		return e.ptrLayout(), nil

	case types.KindPtr, types.KindMutPtr, types.KindRawPtr, types.KindFn:
		return e.ptrLayout(), nil

	case types.KindRange:
		// Two i64 endpoints.
		return TypeLayout{Size: 16, Align: 8}, nil

	case types.KindStruct:
		return e.structLayout(id, state)

	case types.KindEnum:
		shape := e.enumShape()
		return TypeLayout{Size: shape.Size, Align: shape.Align}, nil

	case types.KindGeneric:
		if kind, ok := e.classify(id); ok && kind.IsEnumKind() {
			shape := e.enumShape()
			return TypeLayout{Size: shape.Size, Align: shape.Align}, nil
		}
		// Other instantiations are opaque handles.
		return e.ptrLayout(), nil

	case types.KindDynVec:
		vl := e.dynVecShape(id)
		return TypeLayout{Size: vl.Size, Align: vl.Align}, nil

	default:
		return TypeLayout{Size: 0, Align: 1}, nil
	}
}

func (e *Engine) classify(id types.TypeID) (wellknown.Kind, bool) {
	if e.Registry == nil {
		return wellknown.KindNone, false
	}
	return e.Registry.Classify(id)
}

func (e *Engine) ptrLayout() TypeLayout {
	ptrSize := e.Target.PtrSize
	ptrAlign := e.Target.PtrAlign
	if ptrSize <= 0 {
		ptrSize = 8
	}
	if ptrAlign <= 0 {
		ptrAlign = ptrSize
	}
	return TypeLayout{Size: ptrSize, Align: ptrAlign}
}

func scalarLayoutBytes(size int) TypeLayout {
	if size <= 0 {
		return TypeLayout{Size: 0, Align: 1}
	}
	return TypeLayout{Size: size, Align: size}
}

func roundUp(n, align int) int {
	if align <= 1 {
		return n
	}
	r := n % align
	if r == 0 {
		return n
	}
	return n + (align - r)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (e *Engine) structLayout(id types.TypeID, state *layoutState) (TypeLayout, *Error) {
	info, ok := e.Types.StructInfo(id)
	if !ok || info == nil || len(info.Fields) == 0 {
		return TypeLayout{Size: 0, Align: 1}, nil
	}
	fields := info.Fields
	offsets := make([]int, len(fields))

	size := 0
	align := 1
	for i := range fields {
		fl, err := e.layoutOf(fields[i].Type, state)
		if err != nil {
			return TypeLayout{Size: 0, Align: 1}, err
		}
		fAlign := fl.Align
		if fAlign <= 0 {
			fAlign = 1
		}
		size = roundUp(size, fAlign)
		offsets[i] = size
		size += fl.Size
		align = maxInt(align, fAlign)
	}
	size = roundUp(size, align)
	return TypeLayout{
		Size:         size,
		Align:        align,
		FieldOffsets: offsets,
	}, nil
}

// enumShape is the fixed two-slot shape every enum lowers to:
// discriminant at offset 0, boxed payload pointer after it.
func (e *Engine) enumShape() EnumLayout {
	discSize := e.Target.DiscSize
	discAlign := e.Target.DiscAlign
	if discSize <= 0 {
		discSize = 8
	}
	if discAlign <= 0 {
		discAlign = discSize
	}
	ptr := e.ptrLayout()
	payloadOffset := roundUp(discSize, ptr.Align)
	align := maxInt(discAlign, ptr.Align)
	return EnumLayout{
		Size:    roundUp(payloadOffset+ptr.Size, align),
		Align:   align,
		Disc:    Slot{Offset: 0, Size: discSize},
		Payload: Slot{Offset: payloadOffset, Size: ptr.Size},
	}
}

// EnumLayoutOf resolves the tagged-union layout of a type. The variant
// set comes from the wellknown registry for Option and Result and from
// the declared variant list for user enums; the second result is false
// when neither is known and the generic two-slot fallback is returned
// with no variants.
func (e *Engine) EnumLayoutOf(id types.TypeID) (EnumLayout, bool) {
	if e == nil || e.Types == nil {
		return EnumLayout{}, false
	}
	if e.cache == nil {
		e.cache = newCache()
	}
	if cached, ok := e.cache.getEnum(id); ok {
		return cached, len(cached.Variants) > 0
	}

	shape := e.enumShape()

	if kind, ok := e.classify(id); ok && kind.IsEnumKind() {
		shape.Variants = e.wellknownVariants(id, kind)
		e.cache.putEnum(id, shape)
		return shape, true
	}

	if info, ok := e.Types.EnumInfo(id); ok && info != nil && len(info.Variants) > 0 {
		variants := make([]VariantLayout, len(info.Variants))
		for i, v := range info.Variants {
			variants[i] = VariantLayout{
				Name:       v.Name,
				Tag:        uint64(i),
				HasPayload: v.Payload != types.NoTypeID,
				Payload:    v.Payload,
			}
		}
		shape.Variants = variants
		e.cache.putEnum(id, shape)
		return shape, true
	}

	e.cache.putEnum(id, shape)
	return shape, false
}

// wellknownVariants builds the registry-fixed variant set of an Option
// or Result, resolving payload types from the instantiation arguments
// when the type is generic, or from a declared variant of the same
// name otherwise.
func (e *Engine) wellknownVariants(id types.TypeID, kind wellknown.Kind) []VariantLayout {
	specs := e.Registry.Variants(kind)
	variants := make([]VariantLayout, len(specs))

	var args []types.TypeID
	if info, ok := e.Types.GenericInfo(id); ok && info != nil {
		args = info.Args
	}
	enumInfo, _ := e.Types.EnumInfo(id)

	for i, spec := range specs {
		v := VariantLayout{
			Name:       spec.Name,
			Tag:        spec.Tag,
			HasPayload: spec.HasPayload,
		}
		if spec.HasPayload {
			if spec.PayloadArg < len(args) {
				v.Payload = args[spec.PayloadArg]
			} else if enumInfo != nil {
				for _, dv := range enumInfo.Variants {
					if dv.Name == spec.Name {
						v.Payload = dv.Payload
						break
					}
				}
			}
		}
		variants[i] = v
	}
	return variants
}

// DynVecLayoutOf resolves the header layout of a growable vector:
// element pointer, length, capacity, and for mixed-element vectors a
// pointer to the parallel discriminant array.
func (e *Engine) DynVecLayoutOf(id types.TypeID) (DynVecLayout, bool) {
	if e == nil || e.Types == nil {
		return DynVecLayout{}, false
	}
	if e.cache == nil {
		e.cache = newCache()
	}
	if cached, ok := e.cache.getVec(id); ok {
		return cached, true
	}
	if _, ok := e.Types.DynVecInfo(id); !ok {
		return DynVecLayout{}, false
	}
	vl := e.dynVecShape(id)
	e.cache.putVec(id, vl)
	return vl, true
}

func (e *Engine) dynVecShape(id types.TypeID) DynVecLayout {
	ptr := e.ptrLayout()
	word := 8 // len and cap are u64

	mixed := false
	if info, ok := e.Types.DynVecInfo(id); ok && info != nil {
		mixed = len(info.Elems) > 1
	}

	vl := DynVecLayout{
		Data: Slot{Offset: 0, Size: ptr.Size},
		Len:  Slot{Offset: roundUp(ptr.Size, word), Size: word},
	}
	vl.Cap = Slot{Offset: vl.Len.Offset + word, Size: word}
	end := vl.Cap.Offset + word
	if mixed {
		discOff := roundUp(end, ptr.Align)
		vl.Disc = &Slot{Offset: discOff, Size: ptr.Size}
		end = discOff + ptr.Size
	}
	vl.Align = maxInt(ptr.Align, word)
	vl.Size = roundUp(end, vl.Align)
	return vl
}
