package lir_test

import (
	"strings"
	"testing"

	"koan/internal/ast"
	"koan/internal/diag"
	"koan/internal/lir"
)

// A conditional loop lowers to header/body/exit with the back edge
// into the header.
func TestWhileLoop(t *testing.T) {
	fx := newFixture(t)
	i32 := fx.b.I32
	boolT := fx.b.Bool

	// fn tri(n: i32) -> i32 { let mut s = 0; let mut i = 0;
	//   loop i < n { s = s + i; i = i + 1; } return s; }
	mod := fx.lower(fnDecl("tri", []ast.Param{param("n", i32)}, i32,
		letMut("s", i32, intLit(i32, 0)),
		letMut("i", i32, intLit(i32, 0)),
		while(bin(boolT, ast.BinLt, ref(i32, "i"), ref(i32, "n")), body(
			assignStmt(ref(i32, "s"), bin(i32, ast.BinAdd, ref(i32, "s"), ref(i32, "i"))),
			assignStmt(ref(i32, "i"), bin(i32, ast.BinAdd, ref(i32, "i"), intLit(i32, 1))),
		)),
		ret(ref(i32, "s")),
	))
	f := fx.fn(mod, "tri")
	header := findBlock(t, f, "loop_header_")
	if header.Term.Kind != lir.TermIf {
		t.Fatalf("header terminator = %s, want a conditional branch", header.Term.Kind)
	}
	findBlock(t, f, "loop_exit_")

	got, err := newEvaluator(fx, mod).call("tri", vInt(5))
	if err != nil {
		t.Fatal(err)
	}
	if got.asInt() != 10 {
		t.Errorf("tri(5) = %d, want 10", got.asInt())
	}
}

// Integer loop conditions compare against zero; other types refuse.
func TestLoopConditionCoercion(t *testing.T) {
	fx := newFixture(t)
	i32 := fx.b.I32

	mod := fx.lower(fnDecl("count", []ast.Param{param("n", i32)}, i32,
		letMut("n2", i32, ref(i32, "n")),
		letMut("steps", i32, intLit(i32, 0)),
		while(ref(i32, "n2"), body(
			assignStmt(ref(i32, "n2"), bin(i32, ast.BinSub, ref(i32, "n2"), intLit(i32, 1))),
			assignStmt(ref(i32, "steps"), bin(i32, ast.BinAdd, ref(i32, "steps"), intLit(i32, 1))),
		)),
		ret(ref(i32, "steps")),
	))
	got, err := newEvaluator(fx, mod).call("count", vInt(4))
	if err != nil {
		t.Fatal(err)
	}
	if got.asInt() != 4 {
		t.Errorf("count(4) = %d, want 4", got.asInt())
	}

	le := fx.lowerErr(diag.LowLoopCondition, fnDecl("bad", []ast.Param{param("s", fx.b.String)}, i32,
		while(ref(fx.b.String, "s"), body()),
		ret(intLit(i32, 0)),
	))
	if !strings.Contains(le.Msg, "integer or bool") {
		t.Errorf("error %q does not state the accepted condition types", le.Msg)
	}
}

// Range loops bind the closure parameter as the induction variable and
// honor inclusivity.
func TestRangeLoop(t *testing.T) {
	fx := newFixture(t)
	i64 := fx.b.I64
	rng := fx.b.Range
	unit := fx.b.Unit

	sumOver := func(name string, inclusive bool) *ast.Fn {
		return fnDecl(name, nil, i64,
			letMut("s", i64, intLit(i64, 0)),
			exprStmt(method(unit,
				rangeExpr(rng, intLit(i64, 0), intLit(i64, 5), inclusive),
				"loop",
				closureExpr(fx.b.Unit, []ast.Param{param("i", i64)}, unit, body(
					assignStmt(ref(i64, "s"), bin(i64, ast.BinAdd, ref(i64, "s"), ref(i64, "i"))),
				)),
			)),
			ret(ref(i64, "s")),
		)
	}
	mod := fx.lower(sumOver("half_open", false), sumOver("inclusive", true))

	got, err := newEvaluator(fx, mod).call("half_open")
	if err != nil {
		t.Fatal(err)
	}
	if got.asInt() != 10 {
		t.Errorf("sum of 0..5 = %d, want 10", got.asInt())
	}
	got, err = newEvaluator(fx, mod).call("inclusive")
	if err != nil {
		t.Fatal(err)
	}
	if got.asInt() != 15 {
		t.Errorf("sum of 0..=5 = %d, want 15", got.asInt())
	}
}

// A materialized range value was normalized to half-open when built,
// so looping over it through a variable gives the same iterations.
func TestRangeLoopOverStoredRange(t *testing.T) {
	fx := newFixture(t)
	i64 := fx.b.I64
	rng := fx.b.Range
	unit := fx.b.Unit

	mod := fx.lower(fnDecl("stored", nil, i64,
		let("r", rng, rangeExpr(rng, intLit(i64, 1), intLit(i64, 3), true)),
		letMut("s", i64, intLit(i64, 0)),
		exprStmt(method(unit, ref(rng, "r"), "loop",
			closureExpr(fx.b.Unit, []ast.Param{param("i", i64)}, unit, body(
				assignStmt(ref(i64, "s"), bin(i64, ast.BinAdd, ref(i64, "s"), ref(i64, "i"))),
			)),
		)),
		ret(ref(i64, "s")),
	))
	got, err := newEvaluator(fx, mod).call("stored")
	if err != nil {
		t.Fatal(err)
	}
	// 1..=3 stored as 1..4: iterations 1, 2, 3.
	if got.asInt() != 6 {
		t.Errorf("sum over stored 1..=3 = %d, want 6", got.asInt())
	}
}

// break leaves the innermost loop; continue jumps to the latch so the
// induction variable still advances.
func TestBreakAndContinue(t *testing.T) {
	fx := newFixture(t)
	i64 := fx.b.I64
	boolT := fx.b.Bool
	rng := fx.b.Range
	unit := fx.b.Unit

	// Sum 0..10 skipping 3, stopping at 7: 0+1+2+4+5+6 = 18.
	mod := fx.lower(fnDecl("skip_stop", nil, i64,
		letMut("s", i64, intLit(i64, 0)),
		exprStmt(method(unit,
			rangeExpr(rng, intLit(i64, 0), intLit(i64, 10), false),
			"loop",
			closureExpr(fx.b.Unit, []ast.Param{param("i", i64)}, unit, body(
				ifStmt(bin(boolT, ast.BinEq, ref(i64, "i"), intLit(i64, 3)), body(cont()), nil),
				ifStmt(bin(boolT, ast.BinEq, ref(i64, "i"), intLit(i64, 7)), body(brk()), nil),
				assignStmt(ref(i64, "s"), bin(i64, ast.BinAdd, ref(i64, "s"), ref(i64, "i"))),
			)),
		)),
		ret(ref(i64, "s")),
	))
	f := fx.fn(mod, "skip_stop")
	findBlock(t, f, "after_break_")
	findBlock(t, f, "after_continue_")

	got, err := newEvaluator(fx, mod).call("skip_stop")
	if err != nil {
		t.Fatal(err)
	}
	if got.asInt() != 18 {
		t.Errorf("skip_stop() = %d, want 18", got.asInt())
	}
}

// An unconditional loop only leaves through break.
func TestInfiniteLoopWithBreak(t *testing.T) {
	fx := newFixture(t)
	i32 := fx.b.I32
	boolT := fx.b.Bool

	mod := fx.lower(fnDecl("upto", []ast.Param{param("n", i32)}, i32,
		letMut("i", i32, intLit(i32, 0)),
		loopStmt(body(
			ifStmt(bin(boolT, ast.BinGe, ref(i32, "i"), ref(i32, "n")), body(brk()), nil),
			assignStmt(ref(i32, "i"), bin(i32, ast.BinAdd, ref(i32, "i"), intLit(i32, 1))),
		)),
		ret(ref(i32, "i")),
	))
	got, err := newEvaluator(fx, mod).call("upto", vInt(6))
	if err != nil {
		t.Fatal(err)
	}
	if got.asInt() != 6 {
		t.Errorf("upto(6) = %d, want 6", got.asInt())
	}
}

func TestBreakOutsideLoop(t *testing.T) {
	fx := newFixture(t)
	i32 := fx.b.I32

	le := fx.lowerErr(diag.LowBreakOutsideLoop, fnDecl("stray", nil, i32,
		brk(),
		ret(intLit(i32, 0)),
	))
	if !strings.Contains(le.Msg, "break") {
		t.Errorf("error %q does not mention break", le.Msg)
	}

	fx2 := newFixture(t)
	fx2.lowerErr(diag.LowBreakOutsideLoop, fnDecl("stray2", nil, fx2.b.I32,
		cont(),
		ret(intLit(fx2.b.I32, 0)),
	))
}

// A closure hoisted out of a loop body gets a fresh loop stack: break
// inside it cannot target the enclosing loop.
func TestBreakInsideClosureDoesNotTargetOuterLoop(t *testing.T) {
	fx := newFixture(t)
	i32 := fx.b.I32
	boolT := fx.b.Bool
	unit := fx.b.Unit

	fx.lowerErr(diag.LowBreakOutsideLoop, fnDecl("escape", nil, i32,
		letMut("i", i32, intLit(i32, 0)),
		while(bin(boolT, ast.BinLt, ref(i32, "i"), intLit(i32, 3)), body(
			exprStmt(closureExpr(unit, nil, unit, body(brk()))),
			assignStmt(ref(i32, "i"), bin(i32, ast.BinAdd, ref(i32, "i"), intLit(i32, 1))),
		)),
		ret(ref(i32, "i")),
	))
}

// Collection loops over non-range collections run the body exactly
// once; the placeholder is documented, not an infinite loop.
func TestCollectionLoopPlaceholderRunsOnce(t *testing.T) {
	fx := newFixture(t)
	i32 := fx.b.I32
	unit := fx.b.Unit
	vec := fx.vecOf(i32)

	mod := fx.lower(fnDecl("visit", nil, i32,
		letMut("v", vec, staticCall(vec, "DynVec", "new", intLit(i32, 1), intLit(i32, 2))),
		letMut("count", i32, intLit(i32, 0)),
		exprStmt(method(unit, ref(vec, "v"), "loop",
			closureExpr(unit, []ast.Param{param("x", i32)}, unit, body(
				assignStmt(ref(i32, "count"), bin(i32, ast.BinAdd, ref(i32, "count"), intLit(i32, 1))),
			)),
		)),
		ret(ref(i32, "count")),
	))
	got, err := newEvaluator(fx, mod).call("visit")
	if err != nil {
		t.Fatal(err)
	}
	if got.asInt() != 1 {
		t.Errorf("placeholder collection loop ran %d times, want exactly 1", got.asInt())
	}
}
