package lir

import (
	"fmt"

	"koan/internal/ast"
	"koan/internal/types"
)

// lowerMatchExpr compiles a match into a chain of test blocks. Each
// arm's pattern and guard are evaluated in one test block; on success
// control enters the arm body, on failure it falls to the next test.
// The last failure edge lands in pattern_unmatched, which supplies a
// zero default when the match produces a value. Arm results meet in
// match_merge via the merge set.
func (l *funcLowerer) lowerMatchExpr(e *ast.Expr, consume bool) (Operand, error) {
	data, ok := e.Data.(ast.MatchData)
	if !ok {
		return Operand{}, payloadErr("match", e.Data)
	}

	scrut, err := l.lowerExpr(data.Scrutinee, false)
	if err != nil {
		return Operand{}, err
	}
	scrutTy := scrut.Type
	if scrutTy == types.NoTypeID && data.Scrutinee != nil {
		scrutTy = data.Scrutinee.Type
	}
	scrutPlace := l.spillOperand(scrut, "scrut", e.Span)

	n := l.sess.next("cond")
	ms := l.newMergeSet()
	unmatched := l.newBlock(fmt.Sprintf("pattern_unmatched_%d", n))

	if len(data.Arms) == 0 {
		l.seal(Terminator{Kind: TermGoto, Goto: GotoTerm{Target: unmatched}})
	}
	for i, arm := range data.Arms {
		mark := l.scopes.Push()
		cond, binds, err := l.compilePattern(scrutPlace, scrutTy, arm.Pattern)
		if err != nil {
			l.scopes.PopTo(mark)
			return Operand{}, err
		}
		for _, b := range binds {
			l.scopes.Bind(b.Name, b.Bind)
		}
		cond, err = l.compileGuard(arm.Guard, cond)
		if err != nil {
			l.scopes.PopTo(mark)
			return Operand{}, err
		}

		matchB := l.newBlock(fmt.Sprintf("match_%d_%d", n, i))
		fail := unmatched
		if i+1 < len(data.Arms) {
			fail = l.newBlock(fmt.Sprintf("test_%d_%d", n, i+1))
		}
		l.seal(Terminator{Kind: TermIf, If: IfTerm{Cond: cond, Then: matchB, Else: fail}})

		l.startBlock(matchB)
		body, err := l.lowerExpr(arm.Body, true)
		l.scopes.PopTo(mark)
		if err != nil {
			return Operand{}, err
		}
		ms.Add(body)

		if i+1 < len(data.Arms) {
			l.startBlock(fail)
		}
	}

	l.startBlock(unmatched)
	if ms.Len() > 0 {
		def := l.zeroValue(ms.ReconciledType(e.Type), e.Span)
		ms.Add(def)
	} else {
		l.seal(Terminator{Kind: TermUnreachable})
	}

	place, ty := ms.Resolve(fmt.Sprintf("match_merge_%d", n), e.Type, "matchval", e.Span)
	return l.placeOperand(place, ty, consume), nil
}
