package driver

import (
	"fmt"

	"fortio.org/safecast"
	"golang.org/x/text/unicode/norm"

	"koan/internal/types"
)

// Artifacts carry a self-contained type table; every type a function
// references is a 1-based index into it (0 means no type). The table
// is rebuilt into a fresh interner at decode, so TypeIDs never cross
// a process boundary.

type typeRec struct {
	Kind     uint8      `msgpack:"k"`
	Width    uint8      `msgpack:"w,omitempty"`
	Elem     uint32     `msgpack:"e,omitempty"`
	Name     string     `msgpack:"n,omitempty"`
	Args     []uint32   `msgpack:"a,omitempty"`
	Result   uint32     `msgpack:"r,omitempty"`
	Fields   []fieldRec `msgpack:"f,omitempty"`
	Variants []variantRec `msgpack:"v,omitempty"`
}

type fieldRec struct {
	Name string `msgpack:"n"`
	Type uint32 `msgpack:"t"`
}

type variantRec struct {
	Name    string `msgpack:"n"`
	Payload uint32 `msgpack:"p,omitempty"`
}

// typeEncoder assigns table indices while walking types out of an
// interner. Nominal types take their index before their fields are
// visited, so recursive shapes terminate.
type typeEncoder struct {
	in   *types.Interner
	recs []typeRec
	ids  map[types.TypeID]uint32
}

func newTypeEncoder(in *types.Interner) *typeEncoder {
	return &typeEncoder{in: in, ids: make(map[types.TypeID]uint32, 32)}
}

func (e *typeEncoder) table() []typeRec {
	return e.recs
}

func (e *typeEncoder) push(rec typeRec) uint32 {
	e.recs = append(e.recs, rec)
	idx, err := safecast.Conv[uint32](len(e.recs))
	if err != nil {
		panic(fmt.Errorf("driver: type table overflow: %w", err))
	}
	return idx
}

// ref returns the 1-based table index of id, encoding it first when
// needed.
func (e *typeEncoder) ref(id types.TypeID) uint32 {
	if id == types.NoTypeID {
		return 0
	}
	if idx, ok := e.ids[id]; ok {
		return idx
	}
	tt, ok := e.in.Lookup(id)
	if !ok {
		return 0
	}
	switch tt.Kind {
	case types.KindStruct:
		info, _ := e.in.StructInfo(id)
		idx := e.push(typeRec{Kind: uint8(tt.Kind), Name: info.Name})
		e.ids[id] = idx
		fields := make([]fieldRec, len(info.Fields))
		for i, f := range info.Fields {
			fields[i] = fieldRec{Name: f.Name, Type: e.ref(f.Type)}
		}
		e.recs[idx-1].Fields = fields
		return idx
	case types.KindEnum:
		info, _ := e.in.EnumInfo(id)
		idx := e.push(typeRec{Kind: uint8(tt.Kind), Name: info.Name})
		e.ids[id] = idx
		variants := make([]variantRec, len(info.Variants))
		for i, v := range info.Variants {
			variants[i] = variantRec{Name: v.Name, Payload: e.ref(v.Payload)}
		}
		e.recs[idx-1].Variants = variants
		return idx
	case types.KindGeneric:
		info, _ := e.in.GenericInfo(id)
		args := make([]uint32, len(info.Args))
		for i, a := range info.Args {
			args[i] = e.ref(a)
		}
		idx := e.push(typeRec{Kind: uint8(tt.Kind), Name: info.Name, Args: args})
		e.ids[id] = idx
		return idx
	case types.KindDynVec:
		info, _ := e.in.DynVecInfo(id)
		args := make([]uint32, len(info.Elems))
		for i, el := range info.Elems {
			args[i] = e.ref(el)
		}
		idx := e.push(typeRec{Kind: uint8(tt.Kind), Args: args})
		e.ids[id] = idx
		return idx
	case types.KindFn:
		info, _ := e.in.FnInfo(id)
		args := make([]uint32, len(info.Params))
		for i, p := range info.Params {
			args[i] = e.ref(p)
		}
		res := e.ref(info.Result)
		idx := e.push(typeRec{Kind: uint8(tt.Kind), Args: args, Result: res})
		e.ids[id] = idx
		return idx
	case types.KindPtr, types.KindMutPtr:
		elem := e.ref(tt.Elem)
		idx := e.push(typeRec{Kind: uint8(tt.Kind), Elem: elem})
		e.ids[id] = idx
		return idx
	default:
		idx := e.push(typeRec{Kind: uint8(tt.Kind), Width: uint8(tt.Width)})
		e.ids[id] = idx
		return idx
	}
}

// typeDecoder rebuilds a type table into a fresh interner. Three
// passes: register nominal names, intern everything in table order,
// then attach struct fields and enum variants once every index
// resolves.
type typeDecoder struct {
	in  *types.Interner
	ids []types.TypeID // ids[i] is the TypeID of table entry i+1
}

func decodeTypeTable(in *types.Interner, recs []typeRec) (*typeDecoder, error) {
	d := &typeDecoder{in: in, ids: make([]types.TypeID, len(recs))}

	for i := range recs {
		recs[i].Name = norm.NFC.String(recs[i].Name)
		switch types.Kind(recs[i].Kind) {
		case types.KindStruct:
			d.ids[i] = in.RegisterStruct(recs[i].Name)
		case types.KindEnum:
			d.ids[i] = in.RegisterEnum(recs[i].Name)
		}
	}

	for i := range recs {
		if d.ids[i] != types.NoTypeID {
			continue
		}
		id, err := d.internRec(&recs[i])
		if err != nil {
			return nil, fmt.Errorf("type table entry %d: %w", i+1, err)
		}
		d.ids[i] = id
	}

	for i := range recs {
		rec := &recs[i]
		switch types.Kind(rec.Kind) {
		case types.KindStruct:
			fields := make([]types.StructField, len(rec.Fields))
			for j, f := range rec.Fields {
				ty, err := d.resolve(f.Type)
				if err != nil {
					return nil, fmt.Errorf("struct %s field %s: %w", rec.Name, f.Name, err)
				}
				fields[j] = types.StructField{Name: norm.NFC.String(f.Name), Type: ty}
			}
			in.SetStructFields(d.ids[i], fields)
		case types.KindEnum:
			variants := make([]types.EnumVariant, len(rec.Variants))
			for j, v := range rec.Variants {
				payload, err := d.resolve(v.Payload)
				if err != nil {
					return nil, fmt.Errorf("enum %s variant %s: %w", rec.Name, v.Name, err)
				}
				variants[j] = types.EnumVariant{Name: norm.NFC.String(v.Name), Payload: payload}
			}
			in.SetEnumVariants(d.ids[i], variants)
		}
	}
	return d, nil
}

func (d *typeDecoder) internRec(rec *typeRec) (types.TypeID, error) {
	b := d.in.Builtins()
	switch types.Kind(rec.Kind) {
	case types.KindUnit:
		return b.Unit, nil
	case types.KindBool:
		return b.Bool, nil
	case types.KindString:
		return b.String, nil
	case types.KindRange:
		return b.Range, nil
	case types.KindRawPtr:
		return b.RawPtr, nil
	case types.KindInt:
		return d.in.Intern(types.MakeInt(types.Width(rec.Width))), nil
	case types.KindUint:
		return d.in.Intern(types.MakeUint(types.Width(rec.Width))), nil
	case types.KindFloat:
		return d.in.Intern(types.MakeFloat(types.Width(rec.Width))), nil
	case types.KindPtr, types.KindMutPtr:
		elem, err := d.resolve(rec.Elem)
		if err != nil {
			return types.NoTypeID, err
		}
		if types.Kind(rec.Kind) == types.KindPtr {
			return d.in.Intern(types.MakePtr(elem)), nil
		}
		return d.in.Intern(types.MakeMutPtr(elem)), nil
	case types.KindGeneric:
		args, err := d.resolveAll(rec.Args)
		if err != nil {
			return types.NoTypeID, err
		}
		return d.in.InternGeneric(rec.Name, args), nil
	case types.KindDynVec:
		elems, err := d.resolveAll(rec.Args)
		if err != nil {
			return types.NoTypeID, err
		}
		return d.in.InternDynVec(elems), nil
	case types.KindFn:
		params, err := d.resolveAll(rec.Args)
		if err != nil {
			return types.NoTypeID, err
		}
		res, err := d.resolve(rec.Result)
		if err != nil {
			return types.NoTypeID, err
		}
		return d.in.InternFn(params, res), nil
	default:
		return types.NoTypeID, fmt.Errorf("unknown type kind %d", rec.Kind)
	}
}

// resolve maps a table reference to its TypeID. Nominal entries are
// registered up front, so forward references only ever point at them.
func (d *typeDecoder) resolve(ref uint32) (types.TypeID, error) {
	if ref == 0 {
		return types.NoTypeID, nil
	}
	if int(ref) > len(d.ids) {
		return types.NoTypeID, fmt.Errorf("type reference %d out of range", ref)
	}
	id := d.ids[ref-1]
	if id == types.NoTypeID {
		return types.NoTypeID, fmt.Errorf("type reference %d is not resolved yet", ref)
	}
	return id, nil
}

func (d *typeDecoder) resolveAll(refs []uint32) ([]types.TypeID, error) {
	out := make([]types.TypeID, len(refs))
	for i, ref := range refs {
		id, err := d.resolve(ref)
		if err != nil {
			return nil, err
		}
		out[i] = id
	}
	return out, nil
}
