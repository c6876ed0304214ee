package lir

import (
	"errors"
	"fmt"

	"koan/internal/ast"
	"koan/internal/diag"
	"koan/internal/types"
	"koan/internal/wellknown"
)

// LowerModule lowers a typed module into control-flow form. Function
// signatures register before any body lowers, so calls resolve
// regardless of declaration order. The first error in a function
// aborts that function; errors across functions aggregate, mirror into
// the bag, and fail the unit.
func LowerModule(m *ast.Module, sess *Session, bag *diag.Bag) (*Module, error) {
	if m == nil {
		return nil, fmt.Errorf("lir: nil module")
	}
	if sess == nil {
		return nil, fmt.Errorf("lir: nil session")
	}

	for key, ty := range m.Hints {
		if kind, tag, ok := wellknown.ParseHintKey(key); ok {
			sess.SetPayloadHint(kind, tag, ty)
		}
	}
	for _, fn := range m.Funcs {
		if fn == nil {
			continue
		}
		sess.RegisterFunc(fn.Name, FnSig{Params: paramTypes(fn), Result: fn.Result})
	}

	out := &Module{Name: m.Name, ByName: make(map[string]FuncID, len(m.Funcs))}
	var errs []error
	for _, fn := range m.Funcs {
		if fn == nil || !fn.HasBody() {
			continue
		}
		f, err := lowerFunc(sess, out, fn)
		if err != nil {
			errs = append(errs, fmt.Errorf("function %s: %w", fn.Name, err))
			reportLowerError(bag, err)
			continue
		}
		out.addFunc(f)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func paramTypes(fn *ast.Fn) []types.TypeID {
	out := make([]types.TypeID, 0, len(fn.Params))
	for _, p := range fn.Params {
		out = append(out, p.Type)
	}
	return out
}

func reportLowerError(bag *diag.Bag, err error) {
	if bag == nil || err == nil {
		return
	}
	var le *Error
	if errors.As(err, &le) {
		bag.Add(le.Diagnostic())
		return
	}
	bag.Add(diag.Diagnostic{
		Severity: diag.SevError,
		Code:     diag.LowInternal,
		Message:  err.Error(),
	})
}

// lowerFunc builds the control-flow graph of one function. Hoisted
// closures get their own lowerer and land in out before the enclosing
// function does.
func lowerFunc(sess *Session, out *Module, fn *ast.Fn) (*Func, error) {
	f := &Func{
		ID:         NoFuncID,
		Name:       fn.Name,
		Span:       fn.Span,
		ParamCount: len(fn.Params),
		Result:     fn.Result,
		Entry:      NoBlockID,
	}
	l := newFuncLowerer(sess, out, f)

	mark := l.scopes.Push()
	defer l.scopes.PopTo(mark)
	for _, p := range fn.Params {
		id := l.newLocal(p.Name, p.Type, p.Span)
		l.scopes.Bind(p.Name, Binding{
			Place:       Place{Local: id},
			Type:        p.Type,
			Initialized: true,
		})
	}

	entry := l.newBlock("entry")
	f.Entry = entry
	l.startBlock(entry)

	if err := l.lowerBlock(fn.Body); err != nil {
		return nil, err
	}
	if l.protoErr != nil {
		return nil, l.protoErr
	}
	l.finish()
	return f, nil
}

// finish seals the fallthrough block, then any block still open:
// falling off the end of a unit function returns, falling off a
// value-returning function is unreachable (the checker guarantees
// every value path returns).
func (l *funcLowerer) finish() {
	if b := l.curBlock(); b != nil && !b.Sealed() {
		if l.isUnitType(l.f.Result) || l.f.Result == types.NoTypeID {
			l.seal(Terminator{Kind: TermReturn, Return: ReturnTerm{HasValue: false}})
		} else {
			l.seal(Terminator{Kind: TermUnreachable})
		}
	}
	for _, blk := range l.f.Blocks {
		if !blk.Sealed() {
			blk.Term = Terminator{Kind: TermUnreachable}
		}
	}
}

func (l *funcLowerer) isUnitType(ty types.TypeID) bool {
	if l.sess == nil || l.sess.Types == nil {
		return false
	}
	tt, ok := l.sess.Types.Lookup(ty)
	return ok && tt.Kind == types.KindUnit
}

// lowerBlock lowers statements in a fresh scope frame until the block
// seals; statements after a return or break are unreachable and drop.
func (l *funcLowerer) lowerBlock(b *ast.Block) error {
	if b == nil {
		return nil
	}
	mark := l.scopes.Push()
	defer l.scopes.PopTo(mark)
	for i := range b.Stmts {
		st := &b.Stmts[i]
		if blk := l.curBlock(); blk == nil || blk.Sealed() {
			return nil
		}
		if err := l.lowerStmt(st); err != nil {
			return err
		}
	}
	return nil
}

func (l *funcLowerer) lowerStmt(st *ast.Stmt) error {
	if st == nil {
		return nil
	}
	switch st.Kind {
	case ast.StmtLet:
		data, ok := st.Data.(ast.LetData)
		if !ok {
			return payloadErr("let", st.Data)
		}
		return l.lowerLet(st, data)
	case ast.StmtExpr:
		data, ok := st.Data.(ast.ExprStmtData)
		if !ok {
			return payloadErr("expression statement", st.Data)
		}
		_, err := l.lowerExpr(data.Expr, false)
		return err
	case ast.StmtAssign:
		data, ok := st.Data.(ast.AssignData)
		if !ok {
			return payloadErr("assignment", st.Data)
		}
		return l.lowerAssignStmt(data)
	case ast.StmtReturn:
		data, ok := st.Data.(ast.ReturnData)
		if !ok {
			return payloadErr("return", st.Data)
		}
		return l.lowerReturn(data)
	case ast.StmtBreak:
		return l.lowerBreak(st.Span)
	case ast.StmtContinue:
		return l.lowerContinue(st.Span)
	case ast.StmtIf:
		data, ok := st.Data.(ast.IfStmtData)
		if !ok {
			return payloadErr("if", st.Data)
		}
		return l.lowerIfStmt(data)
	case ast.StmtWhile:
		data, ok := st.Data.(ast.WhileData)
		if !ok {
			return payloadErr("while", st.Data)
		}
		return l.lowerWhile(st, data)
	case ast.StmtLoop:
		data, ok := st.Data.(ast.LoopData)
		if !ok {
			return payloadErr("loop", st.Data)
		}
		return l.lowerLoop(data)
	case ast.StmtBlock:
		data, ok := st.Data.(ast.BlockStmtData)
		if !ok {
			return payloadErr("block", st.Data)
		}
		return l.lowerBlock(data.Block)
	default:
		return fmt.Errorf("lir: unsupported statement %s", st.Kind)
	}
}

func payloadErr(what string, data any) error {
	return fmt.Errorf("lir: %s: unexpected payload %T", what, data)
}

func (l *funcLowerer) lowerLet(st *ast.Stmt, data ast.LetData) error {
	ty := data.Type
	var init Operand
	haveInit := data.Value != nil
	if haveInit {
		op, err := l.lowerExpr(data.Value, true)
		if err != nil {
			return err
		}
		init = op
		if ty == types.NoTypeID {
			ty = op.Type
		}
	}
	dst := Place{Local: l.newLocal(data.Name, ty, st.Span)}
	if haveInit {
		l.assignUse(dst, init)
	} else {
		l.assign(dst, RValue{Kind: RValueZeroInit, ZeroTy: ty})
	}
	l.scopes.Bind(data.Name, Binding{
		Place:       dst,
		Type:        ty,
		Mutable:     data.IsMut,
		Initialized: haveInit,
	})
	return nil
}

func (l *funcLowerer) lowerAssignStmt(data ast.AssignData) error {
	dst, err := l.lowerPlace(data.Target)
	if err != nil {
		return err
	}
	val, err := l.lowerExpr(data.Value, true)
	if err != nil {
		return err
	}
	l.assignUse(dst, val)
	return nil
}

func (l *funcLowerer) lowerReturn(data ast.ReturnData) error {
	if data.Value == nil || l.isUnitType(data.Value.Type) {
		if data.Value != nil {
			if _, err := l.lowerExpr(data.Value, false); err != nil {
				return err
			}
		}
		l.seal(Terminator{Kind: TermReturn, Return: ReturnTerm{HasValue: false}})
		return nil
	}
	val, err := l.lowerExpr(data.Value, true)
	if err != nil {
		return err
	}
	l.seal(Terminator{Kind: TermReturn, Return: ReturnTerm{HasValue: true, Value: val}})
	return nil
}

func (l *funcLowerer) lowerIfStmt(data ast.IfStmtData) error {
	cond, err := l.lowerExpr(data.Cond, false)
	if err != nil {
		return err
	}
	n := l.sess.next("if")
	thenB := l.newBlock(fmt.Sprintf("then_%d", n))
	elseB := NoBlockID
	if data.Else != nil {
		elseB = l.newBlock(fmt.Sprintf("else_%d", n))
	}
	joinB := l.newBlock(fmt.Sprintf("if_join_%d", n))
	if elseB == NoBlockID {
		elseB = joinB
	}
	l.seal(Terminator{Kind: TermIf, If: IfTerm{Cond: cond, Then: thenB, Else: elseB}})

	l.startBlock(thenB)
	if err := l.lowerBlock(data.Then); err != nil {
		return err
	}
	l.seal(Terminator{Kind: TermGoto, Goto: GotoTerm{Target: joinB}})

	if data.Else != nil {
		l.startBlock(elseB)
		if err := l.lowerBlock(data.Else); err != nil {
			return err
		}
		l.seal(Terminator{Kind: TermGoto, Goto: GotoTerm{Target: joinB}})
	}
	l.startBlock(joinB)
	return nil
}
