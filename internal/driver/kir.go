package driver

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"koan/internal/ast"
	"koan/internal/lir"
	"koan/internal/source"
	"koan/internal/types"
)

// KirSchema is the lowered-IR artifact schema version.
const KirSchema = 2

type kirFile struct {
	Schema uint32    `msgpack:"schema"`
	Module string    `msgpack:"module"`
	Types  []typeRec `msgpack:"types"`
	Funcs  []kirFn   `msgpack:"funcs"`
}

type kirFn struct {
	Name       string     `msgpack:"n"`
	Span       spanRec    `msgpack:"s"`
	ParamCount int32      `msgpack:"pc,omitempty"`
	Result     uint32     `msgpack:"r,omitempty"`
	Locals     []kirLocal `msgpack:"l,omitempty"`
	Entry      int32      `msgpack:"e"`
	Blocks     []kirBlock `msgpack:"b"`
}

type kirLocal struct {
	Name string  `msgpack:"n,omitempty"`
	Type uint32  `msgpack:"t"`
	Span spanRec `msgpack:"s"`
}

type kirBlock struct {
	Name   string     `msgpack:"n"`
	Instrs []kirInstr `msgpack:"i,omitempty"`
	Term   kirTerm    `msgpack:"t"`
}

type kirInstr struct {
	Kind   uint8      `msgpack:"k"`
	Assign *kirAssign `msgpack:"a,omitempty"`
	Store  *kirStore  `msgpack:"s,omitempty"`
	Call   *kirCall   `msgpack:"c,omitempty"`
}

type kirAssign struct {
	Dst kirPlace  `msgpack:"d"`
	Src kirRValue `msgpack:"s"`
}

type kirStore struct {
	Addr  kirOperand `msgpack:"a"`
	Value kirOperand `msgpack:"v"`
	Elem  uint32     `msgpack:"e"`
}

type kirCall struct {
	HasDst bool         `msgpack:"h,omitempty"`
	Dst    kirPlace     `msgpack:"d"`
	Kind   uint8        `msgpack:"k"`
	Name   string       `msgpack:"n"`
	Args   []kirOperand `msgpack:"a,omitempty"`
}

type kirPlace struct {
	Local int32     `msgpack:"l"`
	Proj  []kirProj `msgpack:"p,omitempty"`
}

type kirProj struct {
	Kind  uint8  `msgpack:"k"`
	Field int32  `msgpack:"f,omitempty"`
	Name  string `msgpack:"n,omitempty"`
	Index int32  `msgpack:"i,omitempty"`
}

type kirOperand struct {
	Kind  uint8     `msgpack:"k"`
	Type  uint32    `msgpack:"t,omitempty"`
	Const *kirConst `msgpack:"c,omitempty"`
	Place *kirPlace `msgpack:"p,omitempty"`
}

type kirConst struct {
	Kind  uint8   `msgpack:"k"`
	Type  uint32  `msgpack:"t,omitempty"`
	Int   int64   `msgpack:"i,omitempty"`
	Uint  uint64  `msgpack:"u,omitempty"`
	Float float64 `msgpack:"f,omitempty"`
	Bool  bool    `msgpack:"b,omitempty"`
	Str   string  `msgpack:"s,omitempty"`
}

type kirRValue struct {
	Kind   uint8      `msgpack:"k"`
	Use    *kirOperand `msgpack:"u,omitempty"`
	UnOp   uint8      `msgpack:"uo,omitempty"`
	BinOp  uint8      `msgpack:"bo,omitempty"`
	Left   *kirOperand `msgpack:"l,omitempty"`
	Right  *kirOperand `msgpack:"r,omitempty"`
	Target uint32     `msgpack:"tt,omitempty"`
	Addr   *kirOperand `msgpack:"a,omitempty"`
	Elem   uint32     `msgpack:"e,omitempty"`
	Zero   uint32     `msgpack:"z,omitempty"`
}

type kirTerm struct {
	Kind   uint8       `msgpack:"k"`
	HasVal bool        `msgpack:"h,omitempty"`
	Value  *kirOperand `msgpack:"v,omitempty"`
	Target int32       `msgpack:"g,omitempty"`
	Cond   *kirOperand `msgpack:"c,omitempty"`
	Then   int32       `msgpack:"t,omitempty"`
	Else   int32       `msgpack:"e,omitempty"`
}

// EncodeKir serializes a lowered module into a .kir artifact. The
// interner must be the one the module's type ids point into.
func EncodeKir(mod *lir.Module, in *types.Interner) ([]byte, error) {
	if mod == nil || in == nil {
		return nil, fmt.Errorf("driver: cannot encode a nil module")
	}
	enc := &kirEncoder{types: newTypeEncoder(in)}
	file := kirFile{Schema: KirSchema, Module: mod.Name}
	for _, fn := range mod.Funcs {
		file.Funcs = append(file.Funcs, enc.fn(fn))
	}
	file.Types = enc.types.table()
	return msgpack.Marshal(&file)
}

// DecodeKir deserializes a .kir artifact into a module over a fresh
// interner.
func DecodeKir(data []byte) (*lir.Module, *types.Interner, error) {
	var file kirFile
	if err := msgpack.Unmarshal(data, &file); err != nil {
		return nil, nil, fmt.Errorf("driver: malformed artifact: %w", err)
	}
	if file.Schema != KirSchema {
		return nil, nil, fmt.Errorf("driver: artifact schema %d, this build reads schema %d: %w", file.Schema, KirSchema, ErrSchemaMismatch)
	}
	in := types.NewInterner()
	td, err := decodeTypeTable(in, file.Types)
	if err != nil {
		return nil, nil, fmt.Errorf("driver: bad type table: %w", err)
	}
	dec := &kirDecoder{types: td}
	mod := &lir.Module{
		Name:   file.Module,
		ByName: make(map[string]lir.FuncID, len(file.Funcs)),
	}
	for i := range file.Funcs {
		fn, err := dec.fn(&file.Funcs[i])
		if err != nil {
			return nil, nil, fmt.Errorf("driver: function %s: %w", file.Funcs[i].Name, err)
		}
		fn.ID = lir.FuncID(int32(i))
		mod.Funcs = append(mod.Funcs, fn)
		if _, exists := mod.ByName[fn.Name]; !exists {
			mod.ByName[fn.Name] = fn.ID
		}
	}
	return mod, in, nil
}

type kirEncoder struct {
	types *typeEncoder
}

func (e *kirEncoder) fn(fn *lir.Func) kirFn {
	rec := kirFn{
		Name:       fn.Name,
		Span:       encSpan(fn.Span),
		ParamCount: int32(fn.ParamCount),
		Result:     e.types.ref(fn.Result),
		Entry:      int32(fn.Entry),
	}
	for _, l := range fn.Locals {
		rec.Locals = append(rec.Locals, kirLocal{Name: l.Name, Type: e.types.ref(l.Type), Span: encSpan(l.Span)})
	}
	for _, b := range fn.Blocks {
		rec.Blocks = append(rec.Blocks, e.block(b))
	}
	return rec
}

func (e *kirEncoder) block(b *lir.Block) kirBlock {
	rec := kirBlock{Name: b.Name, Term: e.term(b.Term)}
	for _, ins := range b.Instrs {
		rec.Instrs = append(rec.Instrs, e.instr(ins))
	}
	return rec
}

func (e *kirEncoder) instr(ins *lir.Instr) kirInstr {
	rec := kirInstr{Kind: uint8(ins.Kind)}
	switch ins.Kind {
	case lir.InstrAssign:
		rec.Assign = &kirAssign{Dst: e.place(ins.Assign.Dst), Src: e.rvalue(ins.Assign.Src)}
	case lir.InstrStore:
		rec.Store = &kirStore{
			Addr:  e.operand(ins.Store.Addr),
			Value: e.operand(ins.Store.Value),
			Elem:  e.types.ref(ins.Store.Elem),
		}
	case lir.InstrCall:
		call := &kirCall{
			HasDst: ins.Call.HasDst,
			Dst:    e.place(ins.Call.Dst),
			Kind:   uint8(ins.Call.Callee.Kind),
			Name:   ins.Call.Callee.Name,
		}
		for _, a := range ins.Call.Args {
			call.Args = append(call.Args, e.operand(a))
		}
		rec.Call = call
	}
	return rec
}

func (e *kirEncoder) place(p lir.Place) kirPlace {
	rec := kirPlace{Local: int32(p.Local)}
	for _, proj := range p.Proj {
		rec.Proj = append(rec.Proj, kirProj{
			Kind:  uint8(proj.Kind),
			Field: int32(proj.FieldIdx),
			Name:  proj.FieldName,
			Index: int32(proj.Index),
		})
	}
	return rec
}

func (e *kirEncoder) operand(op lir.Operand) kirOperand {
	rec := kirOperand{Kind: uint8(op.Kind), Type: e.types.ref(op.Type)}
	if op.Kind == lir.OperandConst {
		rec.Const = &kirConst{
			Kind:  uint8(op.Const.Kind),
			Type:  e.types.ref(op.Const.Type),
			Int:   op.Const.IntValue,
			Uint:  op.Const.UintValue,
			Float: op.Const.FloatValue,
			Bool:  op.Const.BoolValue,
			Str:   op.Const.StringValue,
		}
	} else {
		place := e.place(op.Place)
		rec.Place = &place
	}
	return rec
}

func (e *kirEncoder) operandPtr(op lir.Operand) *kirOperand {
	rec := e.operand(op)
	return &rec
}

func (e *kirEncoder) rvalue(rv lir.RValue) kirRValue {
	rec := kirRValue{Kind: uint8(rv.Kind)}
	switch rv.Kind {
	case lir.RValueUse:
		rec.Use = e.operandPtr(rv.Use)
	case lir.RValueUnaryOp:
		rec.UnOp = uint8(rv.Unary.Op)
		rec.Use = e.operandPtr(rv.Unary.Operand)
	case lir.RValueBinaryOp:
		rec.BinOp = uint8(rv.Binary.Op)
		rec.Left = e.operandPtr(rv.Binary.Left)
		rec.Right = e.operandPtr(rv.Binary.Right)
	case lir.RValueCast:
		rec.Use = e.operandPtr(rv.Cast.Value)
		rec.Target = e.types.ref(rv.Cast.TargetTy)
	case lir.RValueLoad:
		rec.Addr = e.operandPtr(rv.Load.Addr)
		rec.Elem = e.types.ref(rv.Load.Elem)
	case lir.RValueZeroInit:
		rec.Zero = e.types.ref(rv.ZeroTy)
	}
	return rec
}

func (e *kirEncoder) term(t lir.Terminator) kirTerm {
	rec := kirTerm{Kind: uint8(t.Kind)}
	switch t.Kind {
	case lir.TermReturn:
		rec.HasVal = t.Return.HasValue
		if t.Return.HasValue {
			rec.Value = e.operandPtr(t.Return.Value)
		}
	case lir.TermGoto:
		rec.Target = int32(t.Goto.Target)
	case lir.TermIf:
		rec.Cond = e.operandPtr(t.If.Cond)
		rec.Then = int32(t.If.Then)
		rec.Else = int32(t.If.Else)
	}
	return rec
}

type kirDecoder struct {
	types *typeDecoder
}

func (d *kirDecoder) span(sp spanRec) source.Span {
	return source.Span{File: source.NoFileID, Start: sp.Start, End: sp.End}
}

func (d *kirDecoder) fn(rec *kirFn) (*lir.Func, error) {
	result, err := d.types.resolve(rec.Result)
	if err != nil {
		return nil, err
	}
	fn := &lir.Func{
		Name:       rec.Name,
		Span:       d.span(rec.Span),
		ParamCount: int(rec.ParamCount),
		Result:     result,
		Entry:      lir.BlockID(rec.Entry),
	}
	for _, l := range rec.Locals {
		ty, err := d.types.resolve(l.Type)
		if err != nil {
			return nil, fmt.Errorf("local %s: %w", l.Name, err)
		}
		fn.Locals = append(fn.Locals, lir.Local{Name: l.Name, Type: ty, Span: d.span(l.Span)})
	}
	for i := range rec.Blocks {
		b, err := d.block(&rec.Blocks[i])
		if err != nil {
			return nil, fmt.Errorf("block %s: %w", rec.Blocks[i].Name, err)
		}
		b.ID = lir.BlockID(int32(i))
		fn.Blocks = append(fn.Blocks, b)
	}
	return fn, nil
}

func (d *kirDecoder) block(rec *kirBlock) (*lir.Block, error) {
	b := &lir.Block{Name: rec.Name}
	for i := range rec.Instrs {
		ins, err := d.instr(&rec.Instrs[i])
		if err != nil {
			return nil, err
		}
		b.Instrs = append(b.Instrs, ins)
	}
	term, err := d.term(&rec.Term)
	if err != nil {
		return nil, err
	}
	b.Term = term
	return b, nil
}

func (d *kirDecoder) instr(rec *kirInstr) (*lir.Instr, error) {
	ins := &lir.Instr{Kind: lir.InstrKind(rec.Kind)}
	switch ins.Kind {
	case lir.InstrAssign:
		if rec.Assign == nil {
			return nil, fmt.Errorf("assign instruction without payload")
		}
		src, err := d.rvalue(&rec.Assign.Src)
		if err != nil {
			return nil, err
		}
		ins.Assign = lir.AssignInstr{Dst: d.place(&rec.Assign.Dst), Src: src}
	case lir.InstrStore:
		if rec.Store == nil {
			return nil, fmt.Errorf("store instruction without payload")
		}
		addr, err := d.operand(&rec.Store.Addr)
		if err != nil {
			return nil, err
		}
		value, err := d.operand(&rec.Store.Value)
		if err != nil {
			return nil, err
		}
		elem, err := d.types.resolve(rec.Store.Elem)
		if err != nil {
			return nil, err
		}
		ins.Store = lir.StoreInstr{Addr: addr, Value: value, Elem: elem}
	case lir.InstrCall:
		if rec.Call == nil {
			return nil, fmt.Errorf("call instruction without payload")
		}
		call := lir.CallInstr{
			HasDst: rec.Call.HasDst,
			Dst:    d.place(&rec.Call.Dst),
			Callee: lir.Callee{Kind: lir.CalleeKind(rec.Call.Kind), Name: rec.Call.Name},
		}
		for i := range rec.Call.Args {
			arg, err := d.operand(&rec.Call.Args[i])
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, arg)
		}
		ins.Call = call
	default:
		return nil, fmt.Errorf("unknown instruction kind %d", rec.Kind)
	}
	return ins, nil
}

func (d *kirDecoder) place(rec *kirPlace) lir.Place {
	p := lir.Place{Local: lir.LocalID(rec.Local)}
	for _, proj := range rec.Proj {
		p.Proj = append(p.Proj, lir.PlaceProj{
			Kind:      lir.ProjKind(proj.Kind),
			FieldIdx:  int(proj.Field),
			FieldName: proj.Name,
			Index:     lir.LocalID(proj.Index),
		})
	}
	return p
}

func (d *kirDecoder) operand(rec *kirOperand) (lir.Operand, error) {
	ty, err := d.types.resolve(rec.Type)
	if err != nil {
		return lir.Operand{}, err
	}
	op := lir.Operand{Kind: lir.OperandKind(rec.Kind), Type: ty}
	if op.Kind == lir.OperandConst {
		if rec.Const == nil {
			return lir.Operand{}, fmt.Errorf("constant operand without payload")
		}
		cty, err := d.types.resolve(rec.Const.Type)
		if err != nil {
			return lir.Operand{}, err
		}
		op.Const = lir.Const{
			Kind:        lir.ConstKind(rec.Const.Kind),
			Type:        cty,
			IntValue:    rec.Const.Int,
			UintValue:   rec.Const.Uint,
			FloatValue:  rec.Const.Float,
			BoolValue:   rec.Const.Bool,
			StringValue: rec.Const.Str,
		}
	} else if rec.Place != nil {
		op.Place = d.place(rec.Place)
	}
	return op, nil
}

func (d *kirDecoder) operandAt(rec *kirOperand, what string) (lir.Operand, error) {
	if rec == nil {
		return lir.Operand{}, fmt.Errorf("%s operand missing", what)
	}
	return d.operand(rec)
}

func (d *kirDecoder) rvalue(rec *kirRValue) (lir.RValue, error) {
	rv := lir.RValue{Kind: lir.RValueKind(rec.Kind)}
	switch rv.Kind {
	case lir.RValueUse:
		use, err := d.operandAt(rec.Use, "use")
		if err != nil {
			return rv, err
		}
		rv.Use = use
	case lir.RValueUnaryOp:
		operand, err := d.operandAt(rec.Use, "unary")
		if err != nil {
			return rv, err
		}
		rv.Unary = lir.UnaryOp{Op: ast.UnOp(rec.UnOp), Operand: operand}
	case lir.RValueBinaryOp:
		left, err := d.operandAt(rec.Left, "left")
		if err != nil {
			return rv, err
		}
		right, err := d.operandAt(rec.Right, "right")
		if err != nil {
			return rv, err
		}
		rv.Binary = lir.BinaryOp{Op: ast.BinOp(rec.BinOp), Left: left, Right: right}
	case lir.RValueCast:
		value, err := d.operandAt(rec.Use, "cast")
		if err != nil {
			return rv, err
		}
		target, err := d.types.resolve(rec.Target)
		if err != nil {
			return rv, err
		}
		rv.Cast = lir.CastOp{Value: value, TargetTy: target}
	case lir.RValueLoad:
		addr, err := d.operandAt(rec.Addr, "load")
		if err != nil {
			return rv, err
		}
		elem, err := d.types.resolve(rec.Elem)
		if err != nil {
			return rv, err
		}
		rv.Load = lir.LoadOp{Addr: addr, Elem: elem}
	case lir.RValueZeroInit:
		zero, err := d.types.resolve(rec.Zero)
		if err != nil {
			return rv, err
		}
		rv.ZeroTy = zero
	default:
		return rv, fmt.Errorf("unknown rvalue kind %d", rec.Kind)
	}
	return rv, nil
}

func (d *kirDecoder) term(rec *kirTerm) (lir.Terminator, error) {
	t := lir.Terminator{Kind: lir.TermKind(rec.Kind)}
	switch t.Kind {
	case lir.TermReturn:
		t.Return.HasValue = rec.HasVal
		if rec.HasVal {
			value, err := d.operandAt(rec.Value, "return")
			if err != nil {
				return t, err
			}
			t.Return.Value = value
		}
	case lir.TermGoto:
		t.Goto.Target = lir.BlockID(rec.Target)
	case lir.TermIf:
		cond, err := d.operandAt(rec.Cond, "branch condition")
		if err != nil {
			return t, err
		}
		t.If = lir.IfTerm{Cond: cond, Then: lir.BlockID(rec.Then), Else: lir.BlockID(rec.Else)}
	case lir.TermUnreachable:
	default:
		return t, fmt.Errorf("unknown terminator kind %d", rec.Kind)
	}
	return t, nil
}
