package driver

import (
	"errors"
	"fmt"
	"sort"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/text/unicode/norm"

	"koan/internal/ast"
	"koan/internal/source"
	"koan/internal/types"
)

// KastSchema is the typed-AST artifact schema version. Bump it whenever
// the record layout changes; readers reject artifacts from another
// schema instead of guessing.
const KastSchema = 3

// ErrSchemaMismatch marks an artifact produced by a different schema
// version.
var ErrSchemaMismatch = errors.New("artifact schema mismatch")

type kastFile struct {
	Schema     uint32      `msgpack:"schema"`
	Module     string      `msgpack:"module"`
	Path       string      `msgpack:"path,omitempty"`
	FileName   string      `msgpack:"file"`
	LineStarts []uint32    `msgpack:"lines,omitempty"`
	Types      []typeRec   `msgpack:"types"`
	Decls      []declRec   `msgpack:"decls,omitempty"`
	Hints      []hintRec   `msgpack:"hints,omitempty"`
	Funcs      []fnRec     `msgpack:"funcs"`
}

type declRec struct {
	Name string   `msgpack:"n"`
	Type uint32   `msgpack:"t"`
	Kind uint8    `msgpack:"k"`
	Span spanRec  `msgpack:"s"`
}

type hintRec struct {
	Key  string `msgpack:"k"`
	Type uint32 `msgpack:"t"`
}

type spanRec struct {
	Start uint32 `msgpack:"s,omitempty"`
	End   uint32 `msgpack:"e,omitempty"`
}

type fnRec struct {
	Name   string     `msgpack:"n"`
	Span   spanRec    `msgpack:"s"`
	Params []paramRec `msgpack:"p,omitempty"`
	Result uint32     `msgpack:"r,omitempty"`
	Flags  uint32     `msgpack:"fl,omitempty"`
	Body   *blockRec  `msgpack:"b,omitempty"`
}

type paramRec struct {
	Name string  `msgpack:"n"`
	Type uint32  `msgpack:"t"`
	Span spanRec `msgpack:"s"`
}

type blockRec struct {
	Stmts []stmtRec `msgpack:"st,omitempty"`
	Span  spanRec   `msgpack:"s"`
}

type stmtRec struct {
	Kind uint8   `msgpack:"k"`
	Span spanRec `msgpack:"s"`

	Let    *letRec      `msgpack:"let,omitempty"`
	Expr   *exprStmtRec `msgpack:"ex,omitempty"`
	Assign *assignRec   `msgpack:"as,omitempty"`
	Ret    *exprRec     `msgpack:"ret,omitempty"`
	If     *ifStmtRec   `msgpack:"if,omitempty"`
	While  *whileRec    `msgpack:"wh,omitempty"`
	Loop   *blockRec    `msgpack:"lp,omitempty"`
	Block  *blockRec    `msgpack:"bl,omitempty"`
}

type letRec struct {
	Name  string   `msgpack:"n"`
	Type  uint32   `msgpack:"t"`
	Value *exprRec `msgpack:"v,omitempty"`
	Mut   bool     `msgpack:"m,omitempty"`
}

type exprStmtRec struct {
	Expr     *exprRec `msgpack:"e"`
	Trailing bool     `msgpack:"tr,omitempty"`
}

type assignRec struct {
	Target *exprRec `msgpack:"t"`
	Value  *exprRec `msgpack:"v"`
}

type ifStmtRec struct {
	Cond *exprRec  `msgpack:"c"`
	Then *blockRec `msgpack:"t"`
	Else *blockRec `msgpack:"e,omitempty"`
}

type whileRec struct {
	Cond *exprRec  `msgpack:"c"`
	Body *blockRec `msgpack:"b"`
}

type exprRec struct {
	Kind uint8   `msgpack:"k"`
	Type uint32  `msgpack:"t,omitempty"`
	Span spanRec `msgpack:"s"`

	Lit     *litRec       `msgpack:"li,omitempty"`
	Var     string        `msgpack:"vr,omitempty"`
	Unary   *unaryRec     `msgpack:"un,omitempty"`
	Binary  *binaryRec    `msgpack:"bi,omitempty"`
	Call    *callRec      `msgpack:"ca,omitempty"`
	Method  *methodRec    `msgpack:"me,omitempty"`
	Field   *fieldAccRec  `msgpack:"fa,omitempty"`
	Index   *indexRec     `msgpack:"ix,omitempty"`
	Struct  *structLitRec `msgpack:"sl,omitempty"`
	Variant *variantExpRec `msgpack:"va,omitempty"`
	Match   *matchRec     `msgpack:"ma,omitempty"`
	If      *ifExprRec    `msgpack:"if,omitempty"`
	Block   *blockRec     `msgpack:"bl,omitempty"`
	Range   *rangeRec     `msgpack:"ra,omitempty"`
	Closure *closureRec   `msgpack:"cl,omitempty"`
	Cast    *castRec      `msgpack:"cs,omitempty"`
}

type litRec struct {
	Kind  uint8   `msgpack:"k"`
	Int   int64   `msgpack:"i,omitempty"`
	Uint  uint64  `msgpack:"u,omitempty"`
	Float float64 `msgpack:"f,omitempty"`
	Bool  bool    `msgpack:"b,omitempty"`
	Str   string  `msgpack:"s,omitempty"`
}

type unaryRec struct {
	Op      uint8    `msgpack:"o"`
	Operand *exprRec `msgpack:"x"`
}

type binaryRec struct {
	Op    uint8    `msgpack:"o"`
	Left  *exprRec `msgpack:"l"`
	Right *exprRec `msgpack:"r"`
}

type callRec struct {
	Name string     `msgpack:"n"`
	Args []*exprRec `msgpack:"a,omitempty"`
}

type methodRec struct {
	Recv     *exprRec   `msgpack:"r,omitempty"`
	TypeName string     `msgpack:"tn,omitempty"`
	Method   string     `msgpack:"m"`
	Args     []*exprRec `msgpack:"a,omitempty"`
}

type fieldAccRec struct {
	Object *exprRec `msgpack:"o"`
	Name   string   `msgpack:"n"`
	Idx    int32    `msgpack:"i"`
}

type indexRec struct {
	Object *exprRec `msgpack:"o"`
	Index  *exprRec `msgpack:"i"`
}

type structLitRec struct {
	TypeName string         `msgpack:"n"`
	Fields   []fieldInitRec `msgpack:"f,omitempty"`
}

type fieldInitRec struct {
	Name  string   `msgpack:"n"`
	Value *exprRec `msgpack:"v"`
	Span  spanRec  `msgpack:"s"`
}

type variantExpRec struct {
	Enum    string   `msgpack:"e,omitempty"`
	Variant string   `msgpack:"v"`
	Payload *exprRec `msgpack:"p,omitempty"`
}

type matchRec struct {
	Scrutinee *exprRec `msgpack:"sc"`
	Arms      []armRec `msgpack:"ar,omitempty"`
}

type armRec struct {
	Pattern *patRec  `msgpack:"p"`
	Guard   *exprRec `msgpack:"g,omitempty"`
	Body    *exprRec `msgpack:"b"`
	Span    spanRec  `msgpack:"s"`
}

type patRec struct {
	Kind uint8   `msgpack:"k"`
	Span spanRec `msgpack:"s"`

	Lit      *litRec   `msgpack:"li,omitempty"`
	Bind     string    `msgpack:"bn,omitempty"`
	Enum     string    `msgpack:"en,omitempty"`
	Variant  string    `msgpack:"va,omitempty"`
	Binding  string    `msgpack:"bi,omitempty"`
	Lo       int64     `msgpack:"lo,omitempty"`
	Hi       int64     `msgpack:"hi,omitempty"`
	Incl     bool      `msgpack:"in,omitempty"`
	Alts     []*patRec `msgpack:"al,omitempty"`
}

type ifExprRec struct {
	Cond *exprRec `msgpack:"c"`
	Then *exprRec `msgpack:"t"`
	Else *exprRec `msgpack:"e,omitempty"`
}

type rangeRec struct {
	Lo   *exprRec `msgpack:"l"`
	Hi   *exprRec `msgpack:"h"`
	Incl bool     `msgpack:"i,omitempty"`
}

type closureRec struct {
	Params []paramRec `msgpack:"p,omitempty"`
	Result uint32     `msgpack:"r,omitempty"`
	Body   *blockRec  `msgpack:"b"`
}

type castRec struct {
	Value  *exprRec `msgpack:"v"`
	Target uint32   `msgpack:"t"`
}

// EncodeKast serializes a typed module into a .kast artifact. The file
// name and line-start table travel with the module so span rendering
// works without the original source.
func EncodeKast(m *ast.Module, fileName string, lineStarts []uint32) ([]byte, error) {
	if m == nil || m.Interner == nil {
		return nil, fmt.Errorf("driver: cannot encode a module without an interner")
	}
	enc := &kastEncoder{types: newTypeEncoder(m.Interner)}
	file := kastFile{
		Schema:     KastSchema,
		Module:     m.Name,
		Path:       m.Path,
		FileName:   fileName,
		LineStarts: lineStarts,
	}
	for _, d := range m.Types {
		file.Decls = append(file.Decls, declRec{
			Name: d.Name,
			Type: enc.types.ref(d.ID),
			Kind: uint8(d.Kind),
			Span: encSpan(d.Span),
		})
	}
	keys := make([]string, 0, len(m.Hints))
	for k := range m.Hints {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		file.Hints = append(file.Hints, hintRec{Key: k, Type: enc.types.ref(m.Hints[k])})
	}
	for _, fn := range m.Funcs {
		file.Funcs = append(file.Funcs, enc.fn(fn))
	}
	file.Types = enc.types.table()
	return msgpack.Marshal(&file)
}

// DecodeKast deserializes a .kast artifact. The module gets a fresh
// interner and a FileID registered in fs; identifier strings are
// NFC-normalized so names compare bytewise afterwards.
func DecodeKast(data []byte, fs *source.FileSet) (*ast.Module, error) {
	var file kastFile
	if err := msgpack.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("driver: malformed artifact: %w", err)
	}
	if file.Schema != KastSchema {
		return nil, fmt.Errorf("driver: artifact schema %d, this build reads schema %d: %w", file.Schema, KastSchema, ErrSchemaMismatch)
	}
	in := types.NewInterner()
	td, err := decodeTypeTable(in, file.Types)
	if err != nil {
		return nil, fmt.Errorf("driver: bad type table: %w", err)
	}
	fileID := source.NoFileID
	if fs != nil {
		fileID = fs.Add(norm.NFC.String(file.FileName), file.LineStarts)
	}
	dec := &kastDecoder{types: td, file: fileID}
	m := &ast.Module{
		Name:     norm.NFC.String(file.Module),
		Path:     file.Path,
		File:     fileID,
		Interner: in,
	}
	for _, d := range file.Decls {
		id, err := td.resolve(d.Type)
		if err != nil {
			return nil, fmt.Errorf("driver: type decl %s: %w", d.Name, err)
		}
		m.Types = append(m.Types, ast.TypeDecl{
			Name: norm.NFC.String(d.Name),
			ID:   id,
			Kind: ast.TypeDeclKind(d.Kind),
			Span: dec.span(d.Span),
		})
	}
	if len(file.Hints) > 0 {
		m.Hints = make(map[string]types.TypeID, len(file.Hints))
		for _, h := range file.Hints {
			id, err := td.resolve(h.Type)
			if err != nil {
				return nil, fmt.Errorf("driver: hint %s: %w", h.Key, err)
			}
			m.Hints[norm.NFC.String(h.Key)] = id
		}
	}
	for i := range file.Funcs {
		decoded, err := dec.fn(&file.Funcs[i])
		if err != nil {
			return nil, fmt.Errorf("driver: function %s: %w", file.Funcs[i].Name, err)
		}
		m.Funcs = append(m.Funcs, decoded)
	}
	return m, nil
}

type kastEncoder struct {
	types *typeEncoder
}

func encSpan(sp source.Span) spanRec {
	return spanRec{Start: sp.Start, End: sp.End}
}

func (e *kastEncoder) fn(fn *ast.Fn) fnRec {
	rec := fnRec{
		Name:   fn.Name,
		Span:   encSpan(fn.Span),
		Result: e.types.ref(fn.Result),
		Flags:  uint32(fn.Flags),
		Body:   e.block(fn.Body),
	}
	for _, p := range fn.Params {
		rec.Params = append(rec.Params, paramRec{Name: p.Name, Type: e.types.ref(p.Type), Span: encSpan(p.Span)})
	}
	return rec
}

func (e *kastEncoder) block(b *ast.Block) *blockRec {
	if b == nil {
		return nil
	}
	rec := &blockRec{Span: encSpan(b.Span)}
	for i := range b.Stmts {
		rec.Stmts = append(rec.Stmts, e.stmt(&b.Stmts[i]))
	}
	return rec
}

func (e *kastEncoder) stmt(s *ast.Stmt) stmtRec {
	rec := stmtRec{Kind: uint8(s.Kind), Span: encSpan(s.Span)}
	switch data := s.Data.(type) {
	case ast.LetData:
		rec.Let = &letRec{Name: data.Name, Type: e.types.ref(data.Type), Value: e.expr(data.Value), Mut: data.IsMut}
	case ast.ExprStmtData:
		rec.Expr = &exprStmtRec{Expr: e.expr(data.Expr), Trailing: data.Trailing}
	case ast.AssignData:
		rec.Assign = &assignRec{Target: e.expr(data.Target), Value: e.expr(data.Value)}
	case ast.ReturnData:
		rec.Ret = e.expr(data.Value)
	case ast.IfStmtData:
		rec.If = &ifStmtRec{Cond: e.expr(data.Cond), Then: e.block(data.Then), Else: e.block(data.Else)}
	case ast.WhileData:
		rec.While = &whileRec{Cond: e.expr(data.Cond), Body: e.block(data.Body)}
	case ast.LoopData:
		rec.Loop = e.block(data.Body)
	case ast.BlockStmtData:
		rec.Block = e.block(data.Block)
	}
	return rec
}

func (e *kastEncoder) expr(x *ast.Expr) *exprRec {
	if x == nil {
		return nil
	}
	rec := &exprRec{Kind: uint8(x.Kind), Type: e.types.ref(x.Type), Span: encSpan(x.Span)}
	switch data := x.Data.(type) {
	case ast.LiteralData:
		rec.Lit = encLit(data)
	case ast.VarRefData:
		rec.Var = data.Name
	case ast.UnaryOpData:
		rec.Unary = &unaryRec{Op: uint8(data.Op), Operand: e.expr(data.Operand)}
	case ast.BinaryOpData:
		rec.Binary = &binaryRec{Op: uint8(data.Op), Left: e.expr(data.Left), Right: e.expr(data.Right)}
	case ast.CallData:
		rec.Call = &callRec{Name: data.Name, Args: e.exprs(data.Args)}
	case ast.MethodCallData:
		rec.Method = &methodRec{Recv: e.expr(data.Recv), TypeName: data.TypeName, Method: data.Method, Args: e.exprs(data.Args)}
	case ast.FieldAccessData:
		rec.Field = &fieldAccRec{Object: e.expr(data.Object), Name: data.FieldName, Idx: int32(data.FieldIdx)}
	case ast.IndexData:
		rec.Index = &indexRec{Object: e.expr(data.Object), Index: e.expr(data.Index)}
	case ast.StructLitData:
		sl := &structLitRec{TypeName: data.TypeName}
		for _, f := range data.Fields {
			sl.Fields = append(sl.Fields, fieldInitRec{Name: f.Name, Value: e.expr(f.Value), Span: encSpan(f.Span)})
		}
		rec.Struct = sl
	case ast.VariantData:
		rec.Variant = &variantExpRec{Enum: data.EnumName, Variant: data.Variant, Payload: e.expr(data.Payload)}
	case ast.MatchData:
		ma := &matchRec{Scrutinee: e.expr(data.Scrutinee)}
		for _, arm := range data.Arms {
			ma.Arms = append(ma.Arms, armRec{
				Pattern: e.pattern(arm.Pattern),
				Guard:   e.expr(arm.Guard),
				Body:    e.expr(arm.Body),
				Span:    encSpan(arm.Span),
			})
		}
		rec.Match = ma
	case ast.IfData:
		rec.If = &ifExprRec{Cond: e.expr(data.Cond), Then: e.expr(data.Then), Else: e.expr(data.Else)}
	case ast.BlockExprData:
		rec.Block = e.block(data.Block)
	case ast.RangeData:
		rec.Range = &rangeRec{Lo: e.expr(data.Lo), Hi: e.expr(data.Hi), Incl: data.Inclusive}
	case ast.ClosureData:
		cl := &closureRec{Result: e.types.ref(data.Result), Body: e.block(data.Body)}
		for _, p := range data.Params {
			cl.Params = append(cl.Params, paramRec{Name: p.Name, Type: e.types.ref(p.Type), Span: encSpan(p.Span)})
		}
		rec.Closure = cl
	case ast.CastData:
		rec.Cast = &castRec{Value: e.expr(data.Value), Target: e.types.ref(data.TargetTy)}
	}
	return rec
}

func (e *kastEncoder) exprs(xs []*ast.Expr) []*exprRec {
	if len(xs) == 0 {
		return nil
	}
	out := make([]*exprRec, len(xs))
	for i, x := range xs {
		out[i] = e.expr(x)
	}
	return out
}

func (e *kastEncoder) pattern(p *ast.Pattern) *patRec {
	if p == nil {
		return nil
	}
	rec := &patRec{Kind: uint8(p.Kind), Span: encSpan(p.Span)}
	switch data := p.Data.(type) {
	case ast.LiteralPattern:
		rec.Lit = encLit(data.Lit)
	case ast.BindPattern:
		rec.Bind = data.Name
	case ast.VariantPattern:
		rec.Enum = data.EnumName
		rec.Variant = data.Variant
		rec.Binding = data.Binding
	case ast.RangePattern:
		rec.Lo = data.Lo
		rec.Hi = data.Hi
		rec.Incl = data.Inclusive
	case ast.OrPattern:
		for _, alt := range data.Alts {
			rec.Alts = append(rec.Alts, e.pattern(alt))
		}
	}
	return rec
}

func encLit(lit ast.LiteralData) *litRec {
	return &litRec{
		Kind:  uint8(lit.Kind),
		Int:   lit.IntValue,
		Uint:  lit.UintValue,
		Float: lit.FloatValue,
		Bool:  lit.BoolValue,
		Str:   lit.StringValue,
	}
}

type kastDecoder struct {
	types *typeDecoder
	file  source.FileID
}

func (d *kastDecoder) span(sp spanRec) source.Span {
	return source.Span{File: d.file, Start: sp.Start, End: sp.End}
}

func (d *kastDecoder) fn(rec *fnRec) (*ast.Fn, error) {
	result, err := d.types.resolve(rec.Result)
	if err != nil {
		return nil, err
	}
	params, err := d.params(rec.Params)
	if err != nil {
		return nil, err
	}
	body, err := d.block(rec.Body)
	if err != nil {
		return nil, err
	}
	return &ast.Fn{
		Name:   norm.NFC.String(rec.Name),
		Span:   d.span(rec.Span),
		Params: params,
		Result: result,
		Flags:  ast.FnFlags(rec.Flags),
		Body:   body,
	}, nil
}

func (d *kastDecoder) params(recs []paramRec) ([]ast.Param, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	out := make([]ast.Param, len(recs))
	for i, p := range recs {
		ty, err := d.types.resolve(p.Type)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", p.Name, err)
		}
		out[i] = ast.Param{Name: norm.NFC.String(p.Name), Type: ty, Span: d.span(p.Span)}
	}
	return out, nil
}

func (d *kastDecoder) block(rec *blockRec) (*ast.Block, error) {
	if rec == nil {
		return nil, nil
	}
	b := &ast.Block{Span: d.span(rec.Span)}
	for i := range rec.Stmts {
		s, err := d.stmt(&rec.Stmts[i])
		if err != nil {
			return nil, err
		}
		b.Stmts = append(b.Stmts, s)
	}
	return b, nil
}

func (d *kastDecoder) stmt(rec *stmtRec) (ast.Stmt, error) {
	s := ast.Stmt{Kind: ast.StmtKind(rec.Kind), Span: d.span(rec.Span)}
	switch s.Kind {
	case ast.StmtLet:
		if rec.Let == nil {
			return s, fmt.Errorf("let statement without payload")
		}
		ty, err := d.types.resolve(rec.Let.Type)
		if err != nil {
			return s, err
		}
		value, err := d.expr(rec.Let.Value)
		if err != nil {
			return s, err
		}
		s.Data = ast.LetData{Name: norm.NFC.String(rec.Let.Name), Type: ty, Value: value, IsMut: rec.Let.Mut}
	case ast.StmtExpr:
		if rec.Expr == nil {
			return s, fmt.Errorf("expression statement without payload")
		}
		x, err := d.expr(rec.Expr.Expr)
		if err != nil {
			return s, err
		}
		s.Data = ast.ExprStmtData{Expr: x, Trailing: rec.Expr.Trailing}
	case ast.StmtAssign:
		if rec.Assign == nil {
			return s, fmt.Errorf("assignment without payload")
		}
		target, err := d.expr(rec.Assign.Target)
		if err != nil {
			return s, err
		}
		value, err := d.expr(rec.Assign.Value)
		if err != nil {
			return s, err
		}
		s.Data = ast.AssignData{Target: target, Value: value}
	case ast.StmtReturn:
		value, err := d.expr(rec.Ret)
		if err != nil {
			return s, err
		}
		s.Data = ast.ReturnData{Value: value}
	case ast.StmtBreak:
		s.Data = ast.BreakData{}
	case ast.StmtContinue:
		s.Data = ast.ContinueData{}
	case ast.StmtIf:
		if rec.If == nil {
			return s, fmt.Errorf("if statement without payload")
		}
		cond, err := d.expr(rec.If.Cond)
		if err != nil {
			return s, err
		}
		then, err := d.block(rec.If.Then)
		if err != nil {
			return s, err
		}
		els, err := d.block(rec.If.Else)
		if err != nil {
			return s, err
		}
		s.Data = ast.IfStmtData{Cond: cond, Then: then, Else: els}
	case ast.StmtWhile:
		if rec.While == nil {
			return s, fmt.Errorf("while statement without payload")
		}
		cond, err := d.expr(rec.While.Cond)
		if err != nil {
			return s, err
		}
		body, err := d.block(rec.While.Body)
		if err != nil {
			return s, err
		}
		s.Data = ast.WhileData{Cond: cond, Body: body}
	case ast.StmtLoop:
		body, err := d.block(rec.Loop)
		if err != nil {
			return s, err
		}
		s.Data = ast.LoopData{Body: body}
	case ast.StmtBlock:
		body, err := d.block(rec.Block)
		if err != nil {
			return s, err
		}
		s.Data = ast.BlockStmtData{Block: body}
	default:
		return s, fmt.Errorf("unknown statement kind %d", rec.Kind)
	}
	return s, nil
}

func (d *kastDecoder) expr(rec *exprRec) (*ast.Expr, error) {
	if rec == nil {
		return nil, nil
	}
	ty, err := d.types.resolve(rec.Type)
	if err != nil {
		return nil, err
	}
	x := &ast.Expr{Kind: ast.ExprKind(rec.Kind), Type: ty, Span: d.span(rec.Span)}
	switch x.Kind {
	case ast.ExprLiteral:
		if rec.Lit == nil {
			return nil, fmt.Errorf("literal without payload")
		}
		x.Data = decLit(rec.Lit)
	case ast.ExprVarRef:
		x.Data = ast.VarRefData{Name: norm.NFC.String(rec.Var)}
	case ast.ExprUnaryOp:
		if rec.Unary == nil {
			return nil, fmt.Errorf("unary operator without payload")
		}
		operand, err := d.expr(rec.Unary.Operand)
		if err != nil {
			return nil, err
		}
		x.Data = ast.UnaryOpData{Op: ast.UnOp(rec.Unary.Op), Operand: operand}
	case ast.ExprBinaryOp:
		if rec.Binary == nil {
			return nil, fmt.Errorf("binary operator without payload")
		}
		left, err := d.expr(rec.Binary.Left)
		if err != nil {
			return nil, err
		}
		right, err := d.expr(rec.Binary.Right)
		if err != nil {
			return nil, err
		}
		x.Data = ast.BinaryOpData{Op: ast.BinOp(rec.Binary.Op), Left: left, Right: right}
	case ast.ExprCall:
		if rec.Call == nil {
			return nil, fmt.Errorf("call without payload")
		}
		args, err := d.exprs(rec.Call.Args)
		if err != nil {
			return nil, err
		}
		x.Data = ast.CallData{Name: norm.NFC.String(rec.Call.Name), Args: args}
	case ast.ExprMethodCall:
		if rec.Method == nil {
			return nil, fmt.Errorf("method call without payload")
		}
		recv, err := d.expr(rec.Method.Recv)
		if err != nil {
			return nil, err
		}
		args, err := d.exprs(rec.Method.Args)
		if err != nil {
			return nil, err
		}
		x.Data = ast.MethodCallData{
			Recv:     recv,
			TypeName: norm.NFC.String(rec.Method.TypeName),
			Method:   norm.NFC.String(rec.Method.Method),
			Args:     args,
		}
	case ast.ExprFieldAccess:
		if rec.Field == nil {
			return nil, fmt.Errorf("field access without payload")
		}
		obj, err := d.expr(rec.Field.Object)
		if err != nil {
			return nil, err
		}
		x.Data = ast.FieldAccessData{Object: obj, FieldName: norm.NFC.String(rec.Field.Name), FieldIdx: int(rec.Field.Idx)}
	case ast.ExprIndex:
		if rec.Index == nil {
			return nil, fmt.Errorf("index without payload")
		}
		obj, err := d.expr(rec.Index.Object)
		if err != nil {
			return nil, err
		}
		idx, err := d.expr(rec.Index.Index)
		if err != nil {
			return nil, err
		}
		x.Data = ast.IndexData{Object: obj, Index: idx}
	case ast.ExprStructLit:
		if rec.Struct == nil {
			return nil, fmt.Errorf("struct literal without payload")
		}
		data := ast.StructLitData{TypeName: norm.NFC.String(rec.Struct.TypeName)}
		for _, f := range rec.Struct.Fields {
			value, err := d.expr(f.Value)
			if err != nil {
				return nil, err
			}
			data.Fields = append(data.Fields, ast.StructFieldInit{
				Name:  norm.NFC.String(f.Name),
				Value: value,
				Span:  d.span(f.Span),
			})
		}
		x.Data = data
	case ast.ExprVariant:
		if rec.Variant == nil {
			return nil, fmt.Errorf("variant without payload record")
		}
		payload, err := d.expr(rec.Variant.Payload)
		if err != nil {
			return nil, err
		}
		x.Data = ast.VariantData{
			EnumName: norm.NFC.String(rec.Variant.Enum),
			Variant:  norm.NFC.String(rec.Variant.Variant),
			Payload:  payload,
		}
	case ast.ExprMatch:
		if rec.Match == nil {
			return nil, fmt.Errorf("match without payload")
		}
		scrut, err := d.expr(rec.Match.Scrutinee)
		if err != nil {
			return nil, err
		}
		data := ast.MatchData{Scrutinee: scrut}
		for _, arm := range rec.Match.Arms {
			pat, err := d.pattern(arm.Pattern)
			if err != nil {
				return nil, err
			}
			guard, err := d.expr(arm.Guard)
			if err != nil {
				return nil, err
			}
			body, err := d.expr(arm.Body)
			if err != nil {
				return nil, err
			}
			data.Arms = append(data.Arms, ast.Arm{Pattern: pat, Guard: guard, Body: body, Span: d.span(arm.Span)})
		}
		x.Data = data
	case ast.ExprIf:
		if rec.If == nil {
			return nil, fmt.Errorf("conditional without payload")
		}
		cond, err := d.expr(rec.If.Cond)
		if err != nil {
			return nil, err
		}
		then, err := d.expr(rec.If.Then)
		if err != nil {
			return nil, err
		}
		els, err := d.expr(rec.If.Else)
		if err != nil {
			return nil, err
		}
		x.Data = ast.IfData{Cond: cond, Then: then, Else: els}
	case ast.ExprBlock:
		body, err := d.block(rec.Block)
		if err != nil {
			return nil, err
		}
		x.Data = ast.BlockExprData{Block: body}
	case ast.ExprRange:
		if rec.Range == nil {
			return nil, fmt.Errorf("range without payload")
		}
		lo, err := d.expr(rec.Range.Lo)
		if err != nil {
			return nil, err
		}
		hi, err := d.expr(rec.Range.Hi)
		if err != nil {
			return nil, err
		}
		x.Data = ast.RangeData{Lo: lo, Hi: hi, Inclusive: rec.Range.Incl}
	case ast.ExprClosure:
		if rec.Closure == nil {
			return nil, fmt.Errorf("closure without payload")
		}
		params, err := d.params(rec.Closure.Params)
		if err != nil {
			return nil, err
		}
		result, err := d.types.resolve(rec.Closure.Result)
		if err != nil {
			return nil, err
		}
		body, err := d.block(rec.Closure.Body)
		if err != nil {
			return nil, err
		}
		x.Data = ast.ClosureData{Params: params, Result: result, Body: body}
	case ast.ExprCast:
		if rec.Cast == nil {
			return nil, fmt.Errorf("cast without payload")
		}
		value, err := d.expr(rec.Cast.Value)
		if err != nil {
			return nil, err
		}
		target, err := d.types.resolve(rec.Cast.Target)
		if err != nil {
			return nil, err
		}
		x.Data = ast.CastData{Value: value, TargetTy: target}
	default:
		return nil, fmt.Errorf("unknown expression kind %d", rec.Kind)
	}
	return x, nil
}

func (d *kastDecoder) exprs(recs []*exprRec) ([]*ast.Expr, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	out := make([]*ast.Expr, len(recs))
	for i, rec := range recs {
		x, err := d.expr(rec)
		if err != nil {
			return nil, err
		}
		out[i] = x
	}
	return out, nil
}

func (d *kastDecoder) pattern(rec *patRec) (*ast.Pattern, error) {
	if rec == nil {
		return nil, nil
	}
	p := &ast.Pattern{Kind: ast.PatternKind(rec.Kind), Span: d.span(rec.Span)}
	switch p.Kind {
	case ast.PatLiteral:
		if rec.Lit == nil {
			return nil, fmt.Errorf("literal pattern without payload")
		}
		p.Data = ast.LiteralPattern{Lit: decLit(rec.Lit)}
	case ast.PatWildcard:
		p.Data = ast.WildcardPattern{}
	case ast.PatBind:
		p.Data = ast.BindPattern{Name: norm.NFC.String(rec.Bind)}
	case ast.PatVariant:
		p.Data = ast.VariantPattern{
			EnumName: norm.NFC.String(rec.Enum),
			Variant:  norm.NFC.String(rec.Variant),
			Binding:  norm.NFC.String(rec.Binding),
		}
	case ast.PatRange:
		p.Data = ast.RangePattern{Lo: rec.Lo, Hi: rec.Hi, Inclusive: rec.Incl}
	case ast.PatOr:
		data := ast.OrPattern{}
		for _, alt := range rec.Alts {
			sub, err := d.pattern(alt)
			if err != nil {
				return nil, err
			}
			data.Alts = append(data.Alts, sub)
		}
		p.Data = data
	default:
		return nil, fmt.Errorf("unknown pattern kind %d", rec.Kind)
	}
	return p, nil
}

func decLit(rec *litRec) ast.LiteralData {
	lit := ast.LiteralData{
		Kind:       ast.LiteralKind(rec.Kind),
		IntValue:   rec.Int,
		UintValue:  rec.Uint,
		FloatValue: rec.Float,
		BoolValue:  rec.Bool,
	}
	if lit.Kind == ast.LiteralString {
		lit.StringValue = norm.NFC.String(rec.Str)
	} else {
		lit.StringValue = rec.Str
	}
	return lit
}
