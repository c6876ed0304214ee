package lir

import (
	"errors"
	"fmt"
	"strings"

	"koan/internal/diag"
	"koan/internal/types"
)

// Validate checks module invariants: every block terminated, every
// jump target and local reference in range, return arity matching the
// signature, runtime callees known, and every merge block fed the same
// local by all of its predecessors. Violations aggregate; nothing
// stops at the first.
func Validate(m *Module, typesIn *types.Interner) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, f := range m.Funcs {
		if f == nil {
			continue
		}
		if err := validateFunc(f, typesIn); err != nil {
			errs = append(errs, fmt.Errorf("function %s: %w", f.Name, err))
		}
	}
	return errors.Join(errs...)
}

func validateFunc(f *Func, typesIn *types.Interner) error {
	var errs []error
	errs = append(errs, validateTerminated(f)...)
	errs = append(errs, validateTargets(f)...)
	errs = append(errs, validateLocals(f)...)
	errs = append(errs, validateReturns(f, typesIn)...)
	errs = append(errs, validateRuntimeCalls(f)...)
	errs = append(errs, validateMerges(f)...)
	return errors.Join(errs...)
}

func validateTerminated(f *Func) []error {
	var errs []error
	for _, bb := range f.Blocks {
		if bb == nil {
			continue
		}
		if bb.Term.Kind == TermNone {
			errs = append(errs, newError(diag.ValUnterminatedBlock, f.Span,
				"bb%d (%s): unterminated block", bb.ID, bb.Name))
		}
	}
	return errs
}

func validateTargets(f *Func) []error {
	var errs []error
	exists := func(id BlockID) bool {
		return id >= 0 && int(id) < len(f.Blocks)
	}
	for _, bb := range f.Blocks {
		if bb == nil {
			continue
		}
		switch bb.Term.Kind {
		case TermGoto:
			if !exists(bb.Term.Goto.Target) {
				errs = append(errs, newError(diag.ValBadBlockTarget, f.Span,
					"bb%d: goto target bb%d does not exist", bb.ID, bb.Term.Goto.Target))
			}
		case TermIf:
			if !exists(bb.Term.If.Then) {
				errs = append(errs, newError(diag.ValBadBlockTarget, f.Span,
					"bb%d: then target bb%d does not exist", bb.ID, bb.Term.If.Then))
			}
			if !exists(bb.Term.If.Else) {
				errs = append(errs, newError(diag.ValBadBlockTarget, f.Span,
					"bb%d: else target bb%d does not exist", bb.ID, bb.Term.If.Else))
			}
		}
	}
	return errs
}

func validateLocals(f *Func) []error {
	var errs []error
	exists := func(id LocalID) bool {
		return id >= 0 && int(id) < len(f.Locals)
	}
	checkPlace := func(p Place, ctx string) {
		if !exists(p.Local) {
			errs = append(errs, newError(diag.ValBadLocalRef, f.Span,
				"%s: local L%d does not exist", ctx, p.Local))
		}
		for _, proj := range p.Proj {
			if proj.Kind == ProjIndex && !exists(proj.Index) {
				errs = append(errs, newError(diag.ValBadLocalRef, f.Span,
					"%s: index local L%d does not exist", ctx, proj.Index))
			}
		}
	}
	checkOperand := func(op Operand, ctx string) {
		switch op.Kind {
		case OperandCopy, OperandMove, OperandAddrOf:
			checkPlace(op.Place, ctx)
		}
	}
	checkRValue := func(rv *RValue, ctx string) {
		switch rv.Kind {
		case RValueUse:
			checkOperand(rv.Use, ctx)
		case RValueUnaryOp:
			checkOperand(rv.Unary.Operand, ctx)
		case RValueBinaryOp:
			checkOperand(rv.Binary.Left, ctx)
			checkOperand(rv.Binary.Right, ctx)
		case RValueCast:
			checkOperand(rv.Cast.Value, ctx)
		case RValueLoad:
			checkOperand(rv.Load.Addr, ctx)
		}
	}

	for _, bb := range f.Blocks {
		if bb == nil {
			continue
		}
		for j, ins := range bb.Instrs {
			ctx := fmt.Sprintf("bb%d instr %d", bb.ID, j)
			switch ins.Kind {
			case InstrAssign:
				checkPlace(ins.Assign.Dst, ctx)
				checkRValue(&ins.Assign.Src, ctx)
			case InstrStore:
				checkOperand(ins.Store.Addr, ctx)
				checkOperand(ins.Store.Value, ctx)
			case InstrCall:
				if ins.Call.HasDst {
					checkPlace(ins.Call.Dst, ctx)
				}
				for _, arg := range ins.Call.Args {
					checkOperand(arg, ctx)
				}
			}
		}
		ctx := fmt.Sprintf("bb%d terminator", bb.ID)
		switch bb.Term.Kind {
		case TermReturn:
			if bb.Term.Return.HasValue {
				checkOperand(bb.Term.Return.Value, ctx)
			}
		case TermIf:
			checkOperand(bb.Term.If.Cond, ctx)
		}
	}
	return errs
}

func validateReturns(f *Func, typesIn *types.Interner) []error {
	if f.Result == types.NoTypeID {
		return nil
	}
	unit := false
	if typesIn != nil {
		if tt, ok := typesIn.Lookup(f.Result); ok {
			unit = tt.Kind == types.KindUnit
		}
	}
	var errs []error
	for _, bb := range f.Blocks {
		if bb == nil || bb.Term.Kind != TermReturn {
			continue
		}
		if unit && bb.Term.Return.HasValue {
			errs = append(errs, newError(diag.ValReturnArity, f.Span,
				"bb%d: return with value in unit function", bb.ID))
		}
		if !unit && !bb.Term.Return.HasValue {
			errs = append(errs, newError(diag.ValReturnArity, f.Span,
				"bb%d: return without value in value function", bb.ID))
		}
	}
	return errs
}

func validateRuntimeCalls(f *Func) []error {
	var errs []error
	for _, bb := range f.Blocks {
		if bb == nil {
			continue
		}
		for j, ins := range bb.Instrs {
			if ins.Kind != InstrCall || ins.Call.Callee.Kind != CalleeRuntime {
				continue
			}
			arity, known := KnownRuntimeCall(ins.Call.Callee.Name)
			if !known {
				errs = append(errs, newError(diag.ValUnknownRuntimeCall, f.Span,
					"bb%d instr %d: unknown runtime call %q", bb.ID, j, ins.Call.Callee.Name))
				continue
			}
			if len(ins.Call.Args) != arity {
				errs = append(errs, newError(diag.ValUnknownRuntimeCall, f.Span,
					"bb%d instr %d: runtime call %s takes %d args, got %d",
					bb.ID, j, ins.Call.Callee.Name, arity, len(ins.Call.Args)))
			}
		}
	}
	return errs
}

// validateMerges enforces the reconciliation protocol structurally:
// every block jumping into a merge block must define the merged local
// as its final assignment, so the merged value is well-defined no
// matter which predecessor ran.
func validateMerges(f *Func) []error {
	var errs []error
	for _, merge := range f.Blocks {
		if merge == nil || !isMergeBlock(merge.Name) {
			continue
		}
		dst, ok := mergeLocalOf(f, merge.ID)
		if !ok {
			continue
		}
		for _, pred := range f.Blocks {
			if pred == nil || pred.Term.Kind != TermGoto || pred.Term.Goto.Target != merge.ID {
				continue
			}
			if got, found := lastAssignedLocal(pred); !found || got != dst {
				errs = append(errs, newError(diag.ValMergeNotDominated, f.Span,
					"bb%d (%s): predecessor bb%d does not define merge local L%d",
					merge.ID, merge.Name, pred.ID, dst))
			}
		}
	}
	return errs
}

func isMergeBlock(name string) bool {
	return strings.HasPrefix(name, "match_merge_") ||
		strings.HasPrefix(name, "if_merge_") ||
		strings.HasPrefix(name, "vec_merge_")
}

// mergeLocalOf recovers the merged local from the merge block's
// predecessors: the local their final assignments agree on.
func mergeLocalOf(f *Func, merge BlockID) (LocalID, bool) {
	for _, pred := range f.Blocks {
		if pred == nil || pred.Term.Kind != TermGoto || pred.Term.Goto.Target != merge {
			continue
		}
		if dst, ok := lastAssignedLocal(pred); ok {
			return dst, true
		}
	}
	return NoLocalID, false
}

// lastAssignedLocal returns the destination of the block's final
// whole-local assignment.
func lastAssignedLocal(bb *Block) (LocalID, bool) {
	for i := len(bb.Instrs) - 1; i >= 0; i-- {
		ins := bb.Instrs[i]
		if ins.Kind == InstrAssign && ins.Assign.Dst.IsBareLocal() {
			return ins.Assign.Dst.Local, true
		}
	}
	return NoLocalID, false
}
