package ast

import (
	"koan/internal/source"
	"koan/internal/types"
)

// StmtKind enumerates statement kinds.
type StmtKind uint8

const (
	// StmtLet represents variable declaration (let x = ...).
	StmtLet StmtKind = iota
	// StmtExpr represents an expression statement.
	StmtExpr
	// StmtAssign represents assignment (lhs = rhs).
	StmtAssign
	// StmtReturn represents a return statement.
	StmtReturn
	// StmtBreak exits the innermost loop.
	StmtBreak
	// StmtContinue jumps to the innermost loop's next iteration.
	StmtContinue
	// StmtIf represents if/else in statement position.
	StmtIf
	// StmtWhile represents a conditional loop.
	StmtWhile
	// StmtLoop represents an unconditional loop; only break leaves it.
	StmtLoop
	// StmtBlock represents a nested block.
	StmtBlock
)

func (k StmtKind) String() string {
	switch k {
	case StmtLet:
		return "Let"
	case StmtExpr:
		return "Expr"
	case StmtAssign:
		return "Assign"
	case StmtReturn:
		return "Return"
	case StmtBreak:
		return "Break"
	case StmtContinue:
		return "Continue"
	case StmtIf:
		return "If"
	case StmtWhile:
		return "While"
	case StmtLoop:
		return "Loop"
	case StmtBlock:
		return "Block"
	default:
		return "Unknown"
	}
}

// Stmt represents a statement.
type Stmt struct {
	Kind StmtKind
	Span source.Span
	Data StmtData
}

// StmtData is the interface for statement-specific data.
type StmtData interface {
	stmtData()
}

// LetData holds data for StmtLet.
type LetData struct {
	Name  string
	Type  types.TypeID // declared or inferred
	Value *Expr        // nil if none
	IsMut bool
}

func (LetData) stmtData() {}

// ExprStmtData holds data for StmtExpr. Trailing marks the block's
// value-producing expression.
type ExprStmtData struct {
	Expr     *Expr
	Trailing bool
}

func (ExprStmtData) stmtData() {}

// AssignData holds data for StmtAssign.
type AssignData struct {
	Target *Expr // lvalue: VarRef, FieldAccess, Index
	Value  *Expr
}

func (AssignData) stmtData() {}

// ReturnData holds data for StmtReturn.
type ReturnData struct {
	Value *Expr // nil for bare return
}

func (ReturnData) stmtData() {}

// BreakData holds data for StmtBreak.
type BreakData struct{}

func (BreakData) stmtData() {}

// ContinueData holds data for StmtContinue.
type ContinueData struct{}

func (ContinueData) stmtData() {}

// IfStmtData holds data for StmtIf.
type IfStmtData struct {
	Cond *Expr
	Then *Block
	Else *Block // nil if no else branch
}

func (IfStmtData) stmtData() {}

// WhileData holds data for StmtWhile. Integer conditions are accepted
// and compared against zero.
type WhileData struct {
	Cond *Expr
	Body *Block
}

func (WhileData) stmtData() {}

// LoopData holds data for StmtLoop.
type LoopData struct {
	Body *Block
}

func (LoopData) stmtData() {}

// BlockStmtData holds data for StmtBlock.
type BlockStmtData struct {
	Block *Block
}

func (BlockStmtData) stmtData() {}
