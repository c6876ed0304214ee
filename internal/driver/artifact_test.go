package driver

import (
	"errors"
	"strings"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"koan/internal/ast"
	"koan/internal/diag"
	"koan/internal/layout"
	"koan/internal/lir"
	"koan/internal/source"
	"koan/internal/types"
	"koan/internal/wellknown"
)

func intLit(ty types.TypeID, v int64) *ast.Expr {
	return &ast.Expr{Kind: ast.ExprLiteral, Type: ty, Data: ast.LiteralData{Kind: ast.LiteralInt, IntValue: v}}
}

func varRef(ty types.TypeID, name string) *ast.Expr {
	return &ast.Expr{Kind: ast.ExprVarRef, Type: ty, Data: ast.VarRefData{Name: name}}
}

func binExpr(ty types.TypeID, op ast.BinOp, l, r *ast.Expr) *ast.Expr {
	return &ast.Expr{Kind: ast.ExprBinaryOp, Type: ty, Data: ast.BinaryOpData{Op: op, Left: l, Right: r}}
}

func retStmt(v *ast.Expr) ast.Stmt {
	return ast.Stmt{Kind: ast.StmtReturn, Data: ast.ReturnData{Value: v}}
}

func fnDecl(name string, params []ast.Param, result types.TypeID, stmts ...ast.Stmt) *ast.Fn {
	return &ast.Fn{
		Name:   name,
		Params: params,
		Result: result,
		Body:   &ast.Block{Stmts: stmts},
	}
}

// testModule builds a small typed unit: an enum, a struct, a hint, and
// an add function.
func testModule(name string) *ast.Module {
	in := types.NewInterner()
	b := in.Builtins()

	color := in.RegisterEnum("Color")
	in.SetEnumVariants(color, []types.EnumVariant{
		{Name: "Red", Payload: types.NoTypeID},
		{Name: "Rgb", Payload: b.I32},
	})
	point := in.RegisterStruct("Point")
	in.SetStructFields(point, []types.StructField{
		{Name: "x", Type: b.I32},
		{Name: "y", Type: b.I32},
	})

	add := fnDecl("add",
		[]ast.Param{{Name: "x", Type: b.I32}, {Name: "y", Type: b.I32}},
		b.I32,
		retStmt(binExpr(b.I32, ast.BinAdd, varRef(b.I32, "x"), varRef(b.I32, "y"))),
	)

	return &ast.Module{
		Name:     name,
		Funcs:    []*ast.Fn{add},
		Interner: in,
		Types: []ast.TypeDecl{
			{Name: "Color", ID: color, Kind: ast.TypeDeclEnum},
			{Name: "Point", ID: point, Kind: ast.TypeDeclStruct},
		},
		Hints: map[string]types.TypeID{
			"Option.Some": b.I32,
		},
	}
}

func TestKastRoundTrip(t *testing.T) {
	m := testModule("unit_a")
	data, err := EncodeKast(m, "unit_a.kast", []uint32{0, 10, 20})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	fs := source.NewFileSet()
	got, err := DecodeKast(data, fs)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.Name != "unit_a" {
		t.Errorf("module name = %q, want unit_a", got.Name)
	}
	if fs.Name(got.File) != "unit_a.kast" {
		t.Errorf("file name = %q, want unit_a.kast", fs.Name(got.File))
	}

	fn := got.FindFunc("add")
	if fn == nil {
		t.Fatal("decoded module has no add function")
	}
	if len(fn.Params) != 2 {
		t.Fatalf("add has %d params, want 2", len(fn.Params))
	}
	ret, ok := fn.Body.Stmts[0].Data.(ast.ReturnData)
	if !ok {
		t.Fatalf("add body starts with %v, want a return", fn.Body.Stmts[0].Kind)
	}
	if ret.Value.Kind != ast.ExprBinaryOp {
		t.Fatalf("return value kind = %v, want BinaryOp", ret.Value.Kind)
	}
	if op := ret.Value.Data.(ast.BinaryOpData).Op; op != ast.BinAdd {
		t.Errorf("binary op = %v, want +", op)
	}

	// Nominal types survive with their shapes.
	colorID, ok := got.Interner.Named("Color")
	if !ok {
		t.Fatal("decoded interner has no Color enum")
	}
	info, ok := got.Interner.EnumInfo(colorID)
	if !ok || len(info.Variants) != 2 {
		t.Fatalf("Color enum not reconstructed: %+v", info)
	}
	if info.Variants[1].Name != "Rgb" || info.Variants[1].Payload == types.NoTypeID {
		t.Errorf("Rgb variant lost its payload: %+v", info.Variants[1])
	}

	// Hints resolve to decoded-side ids.
	if _, ok := got.Hints["Option.Some"]; !ok {
		t.Error("payload hint did not survive the round trip")
	}
}

func TestKastNormalizesIdentifiers(t *testing.T) {
	// "café" with a combining acute accent; NFC folds it to a single
	// code point.
	decomposed := "cafe\u0301"
	composed := "caf\u00e9"

	m := testModule(decomposed)
	m.Funcs[0].Name = decomposed
	data, err := EncodeKast(m, "unit.kast", nil)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	got, err := DecodeKast(data, source.NewFileSet())
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.Name != composed {
		t.Errorf("module name = %q, want NFC %q", got.Name, composed)
	}
	if got.FindFunc(composed) == nil {
		t.Errorf("function name was not normalized; have %q", got.Funcs[0].Name)
	}
}

func TestKastSchemaMismatch(t *testing.T) {
	data, err := msgpack.Marshal(&kastFile{Schema: KastSchema + 7, Module: "unit"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = DecodeKast(data, source.NewFileSet())
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("err = %v, want a schema mismatch", err)
	}
	if !strings.Contains(err.Error(), "schema") {
		t.Errorf("error %q does not mention the schema", err)
	}
}

func TestKastRejectsGarbage(t *testing.T) {
	_, err := DecodeKast([]byte("not an artifact"), source.NewFileSet())
	if err == nil {
		t.Fatal("garbage bytes decoded without error")
	}
}

// lowerTestModule lowers the shared test module for .kir tests.
func lowerTestModule(t *testing.T, m *ast.Module) *lir.Module {
	t.Helper()
	reg := wellknown.NewRegistry(m.Interner)
	eng := layout.New(layout.X86_64LinuxGNU(), m.Interner, reg)
	sess := lir.NewSession(m.Interner, reg, eng)
	mod, err := lir.LowerModule(m, sess, diag.NewBag(16))
	if err != nil {
		t.Fatalf("lowering failed: %v", err)
	}
	return mod
}

func TestKirRoundTrip(t *testing.T) {
	m := testModule("unit_b")
	mod := lowerTestModule(t, m)

	data, err := EncodeKir(mod, m.Interner)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	got, gotIn, err := DecodeKir(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	// Dumping both sides through their own interners should render the
	// exact same text.
	var want, have strings.Builder
	if err := lir.DumpModule(&want, mod, m.Interner, lir.DumpOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := lir.DumpModule(&have, got, gotIn, lir.DumpOptions{}); err != nil {
		t.Fatal(err)
	}
	if want.String() != have.String() {
		t.Errorf("round-tripped dump differs:\n--- want\n%s\n--- have\n%s", want.String(), have.String())
	}
}

func TestKirSchemaMismatch(t *testing.T) {
	data, err := msgpack.Marshal(&kirFile{Schema: KirSchema + 1, Module: "unit"})
	if err != nil {
		t.Fatal(err)
	}
	_, _, err = DecodeKir(data)
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("err = %v, want a schema mismatch", err)
	}
}

// A self-referential struct through a pointer must encode without
// looping and decode back to a cycle.
func TestTypeTableRecursiveStruct(t *testing.T) {
	in := types.NewInterner()
	node := in.RegisterStruct("Node")
	nextTy := in.Intern(types.MakePtr(node))
	in.SetStructFields(node, []types.StructField{
		{Name: "value", Type: in.Builtins().I64},
		{Name: "next", Type: nextTy},
	})

	enc := newTypeEncoder(in)
	root := enc.ref(node)
	if root == 0 {
		t.Fatal("encoder returned the null reference for Node")
	}

	out := types.NewInterner()
	dec, err := decodeTypeTable(out, enc.table())
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	decoded, err := dec.resolve(root)
	if err != nil {
		t.Fatal(err)
	}
	info, ok := out.StructInfo(decoded)
	if !ok || len(info.Fields) != 2 {
		t.Fatalf("Node not reconstructed: %+v", info)
	}
	next, ok := out.Lookup(info.Fields[1].Type)
	if !ok || next.Kind != types.KindPtr {
		t.Fatalf("next field is not a pointer: %+v", next)
	}
	if next.Elem != decoded {
		t.Errorf("next does not point back at Node: %v vs %v", next.Elem, decoded)
	}
}
