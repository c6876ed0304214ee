package lir_test

import (
	"errors"
	"strings"
	"testing"

	"koan/internal/ast"
	"koan/internal/diag"
	"koan/internal/layout"
	"koan/internal/lir"
	"koan/internal/source"
	"koan/internal/types"
	"koan/internal/wellknown"
)

// fixture bundles the session state one lowering test needs: a fresh
// interner, registry, layout engine, and lir session. Each test builds
// its own so session counters always start from zero.
type fixture struct {
	t    *testing.T
	in   *types.Interner
	b    types.Builtins
	reg  *wellknown.Registry
	eng  *layout.Engine
	sess *lir.Session
	bag  *diag.Bag
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	in := types.NewInterner()
	reg := wellknown.NewRegistry(in)
	eng := layout.New(layout.X86_64LinuxGNU(), in, reg)
	return &fixture{
		t:    t,
		in:   in,
		b:    in.Builtins(),
		reg:  reg,
		eng:  eng,
		sess: lir.NewSession(in, reg, eng),
		bag:  diag.NewBag(64),
	}
}

func (fx *fixture) optionOf(elem types.TypeID) types.TypeID {
	return fx.in.InternGeneric("Option", []types.TypeID{elem})
}

func (fx *fixture) resultOf(okTy, errTy types.TypeID) types.TypeID {
	return fx.in.InternGeneric("Result", []types.TypeID{okTy, errTy})
}

func (fx *fixture) vecOf(elems ...types.TypeID) types.TypeID {
	return fx.in.InternDynVec(elems)
}

func (fx *fixture) tryLower(fns ...*ast.Fn) (*lir.Module, error) {
	fx.t.Helper()
	mod := &ast.Module{Name: "unit", Funcs: fns, Interner: fx.in}
	return lir.LowerModule(mod, fx.sess, fx.bag)
}

func (fx *fixture) lower(fns ...*ast.Fn) *lir.Module {
	fx.t.Helper()
	mod, err := fx.tryLower(fns...)
	if err != nil {
		fx.t.Fatalf("lower failed: %v", err)
	}
	if err := lir.Validate(mod, fx.in); err != nil {
		fx.t.Fatalf("lowered module does not validate: %v", err)
	}
	return mod
}

// lowerErr lowers expecting failure and returns the lowering error,
// asserting its diagnostic code.
func (fx *fixture) lowerErr(code diag.Code, fns ...*ast.Fn) *lir.Error {
	fx.t.Helper()
	_, err := fx.tryLower(fns...)
	if err == nil {
		fx.t.Fatalf("lowering succeeded, want code %s", code)
	}
	var le *lir.Error
	if !errors.As(err, &le) {
		fx.t.Fatalf("error %v does not carry a lowering error", err)
	}
	if le.Code != code {
		fx.t.Fatalf("got code %s (%s), want %s", le.Code, le.Msg, code)
	}
	return le
}

func (fx *fixture) fn(mod *lir.Module, name string) *lir.Func {
	fx.t.Helper()
	f, ok := mod.FindFunc(name)
	if !ok {
		fx.t.Fatalf("function %s not in module", name)
	}
	return f
}

// findBlock returns the first block whose name starts with prefix.
func findBlock(t *testing.T, f *lir.Func, prefix string) *lir.Block {
	t.Helper()
	for _, bb := range f.Blocks {
		if strings.HasPrefix(bb.Name, prefix) {
			return bb
		}
	}
	t.Fatalf("function %s has no block named %s*; blocks: %v", f.Name, prefix, blockNames(f))
	return nil
}

func hasBlock(f *lir.Func, prefix string) bool {
	for _, bb := range f.Blocks {
		if strings.HasPrefix(bb.Name, prefix) {
			return true
		}
	}
	return false
}

func blockNames(f *lir.Func) []string {
	names := make([]string, 0, len(f.Blocks))
	for _, bb := range f.Blocks {
		names = append(names, bb.Name)
	}
	return names
}

// localByPrefix finds the first local whose name starts with prefix.
func localByPrefix(t *testing.T, f *lir.Func, prefix string) (lir.LocalID, lir.Local) {
	t.Helper()
	for i, l := range f.Locals {
		if strings.HasPrefix(l.Name, prefix) {
			return lir.LocalID(i), l
		}
	}
	t.Fatalf("function %s has no local named %s*", f.Name, prefix)
	return lir.NoLocalID, lir.Local{}
}

func countCasts(f *lir.Func) int {
	n := 0
	for _, bb := range f.Blocks {
		for _, ins := range bb.Instrs {
			if ins.Kind == lir.InstrAssign && ins.Assign.Src.Kind == lir.RValueCast {
				n++
			}
		}
	}
	return n
}

// Typed-AST constructors. Spans stay zero: lowering only threads them
// through to diagnostics.

func fnDecl(name string, params []ast.Param, result types.TypeID, stmts ...ast.Stmt) *ast.Fn {
	return &ast.Fn{
		Name:   name,
		Params: params,
		Result: result,
		Body:   &ast.Block{Stmts: stmts},
	}
}

func param(name string, ty types.TypeID) ast.Param {
	return ast.Param{Name: name, Type: ty}
}

func body(stmts ...ast.Stmt) *ast.Block {
	return &ast.Block{Stmts: stmts}
}

func let(name string, ty types.TypeID, value *ast.Expr) ast.Stmt {
	return ast.Stmt{Kind: ast.StmtLet, Data: ast.LetData{Name: name, Type: ty, Value: value}}
}

func letMut(name string, ty types.TypeID, value *ast.Expr) ast.Stmt {
	return ast.Stmt{Kind: ast.StmtLet, Data: ast.LetData{Name: name, Type: ty, Value: value, IsMut: true}}
}

func exprStmt(e *ast.Expr) ast.Stmt {
	return ast.Stmt{Kind: ast.StmtExpr, Data: ast.ExprStmtData{Expr: e}}
}

func trailing(e *ast.Expr) ast.Stmt {
	return ast.Stmt{Kind: ast.StmtExpr, Data: ast.ExprStmtData{Expr: e, Trailing: true}}
}

func assignStmt(target, value *ast.Expr) ast.Stmt {
	return ast.Stmt{Kind: ast.StmtAssign, Data: ast.AssignData{Target: target, Value: value}}
}

func ret(value *ast.Expr) ast.Stmt {
	return ast.Stmt{Kind: ast.StmtReturn, Data: ast.ReturnData{Value: value}}
}

func brk() ast.Stmt {
	return ast.Stmt{Kind: ast.StmtBreak, Data: ast.BreakData{}}
}

func cont() ast.Stmt {
	return ast.Stmt{Kind: ast.StmtContinue, Data: ast.ContinueData{}}
}

func ifStmt(cond *ast.Expr, then, els *ast.Block) ast.Stmt {
	return ast.Stmt{Kind: ast.StmtIf, Data: ast.IfStmtData{Cond: cond, Then: then, Else: els}}
}

func while(cond *ast.Expr, b *ast.Block) ast.Stmt {
	return ast.Stmt{Kind: ast.StmtWhile, Data: ast.WhileData{Cond: cond, Body: b}}
}

func loopStmt(b *ast.Block) ast.Stmt {
	return ast.Stmt{Kind: ast.StmtLoop, Data: ast.LoopData{Body: b}}
}

func expr(kind ast.ExprKind, ty types.TypeID, data ast.ExprData) *ast.Expr {
	return &ast.Expr{Kind: kind, Type: ty, Span: source.Span{}, Data: data}
}

func intLit(ty types.TypeID, v int64) *ast.Expr {
	return expr(ast.ExprLiteral, ty, ast.LiteralData{Kind: ast.LiteralInt, IntValue: v})
}

func boolLit(ty types.TypeID, v bool) *ast.Expr {
	return expr(ast.ExprLiteral, ty, ast.LiteralData{Kind: ast.LiteralBool, BoolValue: v})
}

func strLit(ty types.TypeID, s string) *ast.Expr {
	return expr(ast.ExprLiteral, ty, ast.LiteralData{Kind: ast.LiteralString, StringValue: s})
}

func floatLit(ty types.TypeID, v float64) *ast.Expr {
	return expr(ast.ExprLiteral, ty, ast.LiteralData{Kind: ast.LiteralFloat, FloatValue: v})
}

func ref(ty types.TypeID, name string) *ast.Expr {
	return expr(ast.ExprVarRef, ty, ast.VarRefData{Name: name})
}

func unary(ty types.TypeID, op ast.UnOp, operand *ast.Expr) *ast.Expr {
	return expr(ast.ExprUnaryOp, ty, ast.UnaryOpData{Op: op, Operand: operand})
}

func bin(ty types.TypeID, op ast.BinOp, left, right *ast.Expr) *ast.Expr {
	return expr(ast.ExprBinaryOp, ty, ast.BinaryOpData{Op: op, Left: left, Right: right})
}

func call(ty types.TypeID, name string, args ...*ast.Expr) *ast.Expr {
	return expr(ast.ExprCall, ty, ast.CallData{Name: name, Args: args})
}

func method(ty types.TypeID, recv *ast.Expr, name string, args ...*ast.Expr) *ast.Expr {
	return expr(ast.ExprMethodCall, ty, ast.MethodCallData{Recv: recv, Method: name, Args: args})
}

func staticCall(ty types.TypeID, typeName, methodName string, args ...*ast.Expr) *ast.Expr {
	return expr(ast.ExprMethodCall, ty, ast.MethodCallData{TypeName: typeName, Method: methodName, Args: args})
}

func fieldAccess(ty types.TypeID, object *ast.Expr, name string, idx int) *ast.Expr {
	return expr(ast.ExprFieldAccess, ty, ast.FieldAccessData{Object: object, FieldName: name, FieldIdx: idx})
}

func structLit(ty types.TypeID, typeName string, fields ...ast.StructFieldInit) *ast.Expr {
	return expr(ast.ExprStructLit, ty, ast.StructLitData{TypeName: typeName, Fields: fields})
}

func fieldInit(name string, value *ast.Expr) ast.StructFieldInit {
	return ast.StructFieldInit{Name: name, Value: value}
}

func variant(ty types.TypeID, name string, payload *ast.Expr) *ast.Expr {
	return expr(ast.ExprVariant, ty, ast.VariantData{Variant: name, Payload: payload})
}

func matchExpr(ty types.TypeID, scrut *ast.Expr, arms ...ast.Arm) *ast.Expr {
	return expr(ast.ExprMatch, ty, ast.MatchData{Scrutinee: scrut, Arms: arms})
}

func arm(p *ast.Pattern, armBody *ast.Expr) ast.Arm {
	return ast.Arm{Pattern: p, Body: armBody}
}

func guardedArm(p *ast.Pattern, guard, armBody *ast.Expr) ast.Arm {
	return ast.Arm{Pattern: p, Guard: guard, Body: armBody}
}

func pWild() *ast.Pattern {
	return &ast.Pattern{Kind: ast.PatWildcard, Data: ast.WildcardPattern{}}
}

func pInt(v int64) *ast.Pattern {
	return &ast.Pattern{Kind: ast.PatLiteral, Data: ast.LiteralPattern{
		Lit: ast.LiteralData{Kind: ast.LiteralInt, IntValue: v},
	}}
}

func pStr(s string) *ast.Pattern {
	return &ast.Pattern{Kind: ast.PatLiteral, Data: ast.LiteralPattern{
		Lit: ast.LiteralData{Kind: ast.LiteralString, StringValue: s},
	}}
}

func pBind(name string) *ast.Pattern {
	return &ast.Pattern{Kind: ast.PatBind, Data: ast.BindPattern{Name: name}}
}

func pVariant(variantName, binding string) *ast.Pattern {
	return &ast.Pattern{Kind: ast.PatVariant, Data: ast.VariantPattern{Variant: variantName, Binding: binding}}
}

func pRange(lo, hi int64, inclusive bool) *ast.Pattern {
	return &ast.Pattern{Kind: ast.PatRange, Data: ast.RangePattern{Lo: lo, Hi: hi, Inclusive: inclusive}}
}

func pOr(alts ...*ast.Pattern) *ast.Pattern {
	return &ast.Pattern{Kind: ast.PatOr, Data: ast.OrPattern{Alts: alts}}
}

func ifExpr(ty types.TypeID, cond, then, els *ast.Expr) *ast.Expr {
	return expr(ast.ExprIf, ty, ast.IfData{Cond: cond, Then: then, Else: els})
}

func blockExpr(ty types.TypeID, b *ast.Block) *ast.Expr {
	return expr(ast.ExprBlock, ty, ast.BlockExprData{Block: b})
}

func rangeExpr(ty types.TypeID, lo, hi *ast.Expr, inclusive bool) *ast.Expr {
	return expr(ast.ExprRange, ty, ast.RangeData{Lo: lo, Hi: hi, Inclusive: inclusive})
}

func closureExpr(ty types.TypeID, params []ast.Param, result types.TypeID, b *ast.Block) *ast.Expr {
	return expr(ast.ExprClosure, ty, ast.ClosureData{Params: params, Result: result, Body: b})
}

func castExpr(ty types.TypeID, value *ast.Expr, target types.TypeID) *ast.Expr {
	return expr(ast.ExprCast, ty, ast.CastData{Value: value, TargetTy: target})
}
