package ast

import (
	"koan/internal/source"
)

// Block represents a sequence of statements.
type Block struct {
	Stmts []Stmt
	Span  source.Span
}

// IsEmpty returns true if the block has no statements.
func (b *Block) IsEmpty() bool {
	return b == nil || len(b.Stmts) == 0
}

// LastStmt returns the last statement in the block, or nil if empty.
func (b *Block) LastStmt() *Stmt {
	if b.IsEmpty() {
		return nil
	}
	return &b.Stmts[len(b.Stmts)-1]
}

// TrailingExpr returns the trailing expression that gives the block its
// value, or nil when the block's value is unit.
func (b *Block) TrailingExpr() *Expr {
	last := b.LastStmt()
	if last == nil || last.Kind != StmtExpr {
		return nil
	}
	data, ok := last.Data.(ExprStmtData)
	if !ok || !data.Trailing {
		return nil
	}
	return data.Expr
}
