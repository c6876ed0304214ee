package lir_test

import (
	"errors"
	"strings"
	"testing"

	"koan/internal/ast"
	"koan/internal/diag"
	"koan/internal/lir"
	"koan/internal/types"
)

// Hand-built modules let the validator tests break exactly one
// invariant at a time; lowered modules never exhibit these shapes.

func constI32(in *types.Interner, v int64) lir.Operand {
	i32 := in.Builtins().I32
	return lir.Operand{
		Kind:  lir.OperandConst,
		Type:  i32,
		Const: lir.Const{Kind: lir.ConstInt, Type: i32, IntValue: v},
	}
}

func singleFuncModule(f *lir.Func) *lir.Module {
	return &lir.Module{
		Name:   "unit",
		Funcs:  []*lir.Func{f},
		ByName: map[string]lir.FuncID{f.Name: 0},
	}
}

func wantCode(t *testing.T, err error, code diag.Code, frag string) {
	t.Helper()
	if err == nil {
		t.Fatalf("validation passed, want code %s", code)
	}
	var le *lir.Error
	if !errors.As(err, &le) {
		t.Fatalf("error %v does not carry a lowering error", err)
	}
	if le.Code != code {
		t.Fatalf("got code %s (%s), want %s", le.Code, le.Msg, code)
	}
	if !strings.Contains(le.Msg, frag) {
		t.Errorf("error %q does not contain %q", le.Msg, frag)
	}
}

func TestValidateUnterminatedBlock(t *testing.T) {
	fx := newFixture(t)
	f := &lir.Func{
		Name:   "open",
		Result: fx.b.I32,
		Blocks: []*lir.Block{{ID: 0, Name: "entry"}},
	}
	err := lir.Validate(singleFuncModule(f), fx.in)
	wantCode(t, err, diag.ValUnterminatedBlock, "unterminated")
}

func TestValidateBadBlockTarget(t *testing.T) {
	fx := newFixture(t)
	f := &lir.Func{
		Name: "jumper",
		Blocks: []*lir.Block{{
			ID:   0,
			Name: "entry",
			Term: lir.Terminator{Kind: lir.TermGoto, Goto: lir.GotoTerm{Target: 9}},
		}},
	}
	err := lir.Validate(singleFuncModule(f), fx.in)
	wantCode(t, err, diag.ValBadBlockTarget, "bb9")

	f = &lir.Func{
		Name: "brancher",
		Blocks: []*lir.Block{{
			ID:   0,
			Name: "entry",
			Term: lir.Terminator{Kind: lir.TermIf, If: lir.IfTerm{
				Cond: constI32(fx.in, 1),
				Then: 0,
				Else: -1,
			}},
		}},
	}
	err = lir.Validate(singleFuncModule(f), fx.in)
	wantCode(t, err, diag.ValBadBlockTarget, "else target")
}

func TestValidateBadLocalRef(t *testing.T) {
	fx := newFixture(t)
	f := &lir.Func{
		Name:   "ghost",
		Locals: []lir.Local{{Name: "x", Type: fx.b.I32}},
		Blocks: []*lir.Block{{
			ID:   0,
			Name: "entry",
			Instrs: []*lir.Instr{{
				Kind: lir.InstrAssign,
				Assign: lir.AssignInstr{
					Dst: lir.Place{Local: 5},
					Src: lir.RValue{Kind: lir.RValueUse, Use: constI32(fx.in, 1)},
				},
			}},
			Term: lir.Terminator{Kind: lir.TermReturn},
		}},
	}
	err := lir.Validate(singleFuncModule(f), fx.in)
	wantCode(t, err, diag.ValBadLocalRef, "L5")
}

func TestValidateReturnArity(t *testing.T) {
	fx := newFixture(t)
	f := &lir.Func{
		Name:   "silent",
		Result: fx.b.I32,
		Blocks: []*lir.Block{{
			ID:   0,
			Name: "entry",
			Term: lir.Terminator{Kind: lir.TermReturn},
		}},
	}
	err := lir.Validate(singleFuncModule(f), fx.in)
	wantCode(t, err, diag.ValReturnArity, "without value")

	f = &lir.Func{
		Name:   "chatty",
		Result: fx.b.Unit,
		Blocks: []*lir.Block{{
			ID:   0,
			Name: "entry",
			Term: lir.Terminator{Kind: lir.TermReturn, Return: lir.ReturnTerm{
				HasValue: true,
				Value:    constI32(fx.in, 1),
			}},
		}},
	}
	err = lir.Validate(singleFuncModule(f), fx.in)
	wantCode(t, err, diag.ValReturnArity, "unit function")
}

func TestValidateUnknownRuntimeCall(t *testing.T) {
	fx := newFixture(t)
	f := &lir.Func{
		Name:   "caller",
		Locals: []lir.Local{{Name: "p", Type: fx.b.RawPtr}},
		Blocks: []*lir.Block{{
			ID:   0,
			Name: "entry",
			Instrs: []*lir.Instr{{
				Kind: lir.InstrCall,
				Call: lir.CallInstr{
					HasDst: true,
					Dst:    lir.Place{Local: 0},
					Callee: lir.Callee{Kind: lir.CalleeRuntime, Name: "summon"},
				},
			}},
			Term: lir.Terminator{Kind: lir.TermReturn},
		}},
	}
	err := lir.Validate(singleFuncModule(f), fx.in)
	wantCode(t, err, diag.ValUnknownRuntimeCall, "summon")

	// Known entry point, wrong arity.
	f.Blocks[0].Instrs[0].Call.Callee.Name = "alloc"
	err = lir.Validate(singleFuncModule(f), fx.in)
	wantCode(t, err, diag.ValUnknownRuntimeCall, "alloc")
}

// A merge predecessor whose final assignment writes some other local
// leaves the merged value undefined on that path.
func TestValidateMergeNotDominated(t *testing.T) {
	fx := newFixture(t)
	i32 := fx.b.I32
	assign := func(dst lir.LocalID, v int64) *lir.Instr {
		return &lir.Instr{Kind: lir.InstrAssign, Assign: lir.AssignInstr{
			Dst: lir.Place{Local: dst},
			Src: lir.RValue{Kind: lir.RValueUse, Use: constI32(fx.in, v)},
		}}
	}
	f := &lir.Func{
		Name:   "bad_merge",
		Result: i32,
		Locals: []lir.Local{
			{Name: "merged", Type: i32},
			{Name: "other", Type: i32},
		},
		Blocks: []*lir.Block{
			{
				ID: 0, Name: "entry",
				Term: lir.Terminator{Kind: lir.TermIf, If: lir.IfTerm{
					Cond: lir.Operand{Kind: lir.OperandConst, Type: fx.b.Bool,
						Const: lir.Const{Kind: lir.ConstBool, Type: fx.b.Bool, BoolValue: true}},
					Then: 1,
					Else: 2,
				}},
			},
			{
				ID: 1, Name: "then_0",
				Instrs: []*lir.Instr{assign(0, 1)},
				Term:   lir.Terminator{Kind: lir.TermGoto, Goto: lir.GotoTerm{Target: 3}},
			},
			{
				ID: 2, Name: "else_0",
				Instrs: []*lir.Instr{assign(1, 2)},
				Term:   lir.Terminator{Kind: lir.TermGoto, Goto: lir.GotoTerm{Target: 3}},
			},
			{
				ID: 3, Name: "if_merge_0",
				Term: lir.Terminator{Kind: lir.TermReturn, Return: lir.ReturnTerm{
					HasValue: true,
					Value: lir.Operand{Kind: lir.OperandCopy, Type: i32,
						Place: lir.Place{Local: 0}},
				}},
			},
		},
	}
	err := lir.Validate(singleFuncModule(f), fx.in)
	wantCode(t, err, diag.ValMergeNotDominated, "merge local")
}

// Violations aggregate rather than stopping at the first.
func TestValidateAggregatesErrors(t *testing.T) {
	fx := newFixture(t)
	f := &lir.Func{
		Name: "multi",
		Blocks: []*lir.Block{
			{ID: 0, Name: "entry"},
			{ID: 1, Name: "tail",
				Term: lir.Terminator{Kind: lir.TermGoto, Goto: lir.GotoTerm{Target: 7}}},
		},
	}
	err := lir.Validate(singleFuncModule(f), fx.in)
	if err == nil {
		t.Fatal("validation passed, want two violations")
	}
	msg := err.Error()
	if !strings.Contains(msg, "unterminated") || !strings.Contains(msg, "bb7") {
		t.Errorf("error %q does not report both violations", msg)
	}
}

// Modules coming out of lowering always validate; the lower fixture
// asserts this, but keep one explicit end-to-end check for the
// invariant itself.
func TestValidateAcceptsLoweredModule(t *testing.T) {
	fx := newFixture(t)
	i32 := fx.b.I32
	mod, err := fx.tryLower(fnDecl("id", []ast.Param{param("x", i32)}, i32,
		ret(ref(i32, "x")),
	))
	if err != nil {
		t.Fatal(err)
	}
	if err := lir.Validate(mod, fx.in); err != nil {
		t.Fatalf("lowered module rejected: %v", err)
	}
}
