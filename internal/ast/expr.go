// Package ast is the typed expression tree the lowering consumes.
// Every node carries the TypeID the checker assigned to it; lowering
// never re-infers types, it only translates them.
package ast

import (
	"koan/internal/source"
	"koan/internal/types"
)

// ExprKind enumerates typed expression kinds.
type ExprKind uint8

const (
	// ExprLiteral represents literals (int, uint, float, bool, string, unit).
	ExprLiteral ExprKind = iota
	// ExprVarRef represents a variable reference.
	ExprVarRef
	// ExprUnaryOp represents unary operators (-, !, ~).
	ExprUnaryOp
	// ExprBinaryOp represents binary operators (+, -, ==, &&, ...).
	ExprBinaryOp
	// ExprCall represents a free-function call by name.
	ExprCall
	// ExprMethodCall represents receiver.method(args) before resolution.
	// Resolution happens during lowering: built-in, trait method, or
	// uniform-function-call rewrite to a free function.
	ExprMethodCall
	// ExprFieldAccess represents field access (expr.field).
	ExprFieldAccess
	// ExprIndex represents indexing (expr[index]).
	ExprIndex
	// ExprStructLit represents struct literals (Type { field: value, ... }).
	ExprStructLit
	// ExprVariant represents enum variant construction (Some(x), Err(e)).
	ExprVariant
	// ExprMatch represents a match expression with pattern arms.
	ExprMatch
	// ExprIf represents a conditional expression.
	ExprIf
	// ExprBlock represents a block expression; its value is the value
	// of the trailing expression statement, unit otherwise.
	ExprBlock
	// ExprRange represents a..b and a..=b endpoint pairs.
	ExprRange
	// ExprClosure represents an anonymous function literal. Lowering
	// hoists it into a standalone function.
	ExprClosure
	// ExprCast represents an explicit conversion (expr as Type).
	ExprCast
)

func (k ExprKind) String() string {
	switch k {
	case ExprLiteral:
		return "Literal"
	case ExprVarRef:
		return "VarRef"
	case ExprUnaryOp:
		return "UnaryOp"
	case ExprBinaryOp:
		return "BinaryOp"
	case ExprCall:
		return "Call"
	case ExprMethodCall:
		return "MethodCall"
	case ExprFieldAccess:
		return "FieldAccess"
	case ExprIndex:
		return "Index"
	case ExprStructLit:
		return "StructLit"
	case ExprVariant:
		return "Variant"
	case ExprMatch:
		return "Match"
	case ExprIf:
		return "If"
	case ExprBlock:
		return "Block"
	case ExprRange:
		return "Range"
	case ExprClosure:
		return "Closure"
	case ExprCast:
		return "Cast"
	default:
		return "Unknown"
	}
}

// Expr represents a typed expression.
type Expr struct {
	Kind ExprKind
	Type types.TypeID // assigned by the checker, never NoTypeID for values
	Span source.Span
	Data ExprData // kind-specific payload
}

// ExprData is the interface for expression-specific data.
type ExprData interface {
	exprData()
}

// LiteralKind enumerates literal value kinds.
type LiteralKind uint8

const (
	LiteralInt LiteralKind = iota
	LiteralUint
	LiteralFloat
	LiteralBool
	LiteralString
	LiteralUnit
)

// LiteralData holds data for ExprLiteral.
type LiteralData struct {
	Kind        LiteralKind
	IntValue    int64
	UintValue   uint64
	FloatValue  float64
	BoolValue   bool
	StringValue string
}

func (LiteralData) exprData() {}

// VarRefData holds data for ExprVarRef.
type VarRefData struct {
	Name string
}

func (VarRefData) exprData() {}

// UnaryOpData holds data for ExprUnaryOp.
type UnaryOpData struct {
	Op      UnOp
	Operand *Expr
}

func (UnaryOpData) exprData() {}

// BinaryOpData holds data for ExprBinaryOp.
type BinaryOpData struct {
	Op    BinOp
	Left  *Expr
	Right *Expr
}

func (BinaryOpData) exprData() {}

// CallData holds data for ExprCall.
type CallData struct {
	Name string
	Args []*Expr
}

func (CallData) exprData() {}

// MethodCallData holds data for ExprMethodCall. Recv is nil for static
// calls spelled on a type name, e.g. DynVec.new(...); TypeName carries
// that name.
type MethodCallData struct {
	Recv     *Expr
	TypeName string
	Method   string
	Args     []*Expr
}

func (MethodCallData) exprData() {}

// FieldAccessData holds data for ExprFieldAccess.
type FieldAccessData struct {
	Object    *Expr
	FieldName string
	FieldIdx  int // struct field index, -1 if unknown
}

func (FieldAccessData) exprData() {}

// IndexData holds data for ExprIndex.
type IndexData struct {
	Object *Expr
	Index  *Expr
}

func (IndexData) exprData() {}

// StructLitData holds data for ExprStructLit.
type StructLitData struct {
	TypeName string
	Fields   []StructFieldInit
}

// StructFieldInit represents a field initializer in a struct literal.
type StructFieldInit struct {
	Name  string
	Value *Expr
	Span  source.Span
}

func (StructLitData) exprData() {}

// VariantData holds data for ExprVariant. Payload is nil for
// payloadless variants such as None.
type VariantData struct {
	EnumName string // "" when inferred from Expr.Type
	Variant  string
	Payload  *Expr
}

func (VariantData) exprData() {}

// MatchData holds data for ExprMatch.
type MatchData struct {
	Scrutinee *Expr
	Arms      []Arm
}

func (MatchData) exprData() {}

// IfData holds data for ExprIf.
type IfData struct {
	Cond *Expr
	Then *Expr
	Else *Expr // nil if no else branch
}

func (IfData) exprData() {}

// BlockExprData holds data for ExprBlock.
type BlockExprData struct {
	Block *Block
}

func (BlockExprData) exprData() {}

// RangeData holds data for ExprRange.
type RangeData struct {
	Lo        *Expr
	Hi        *Expr
	Inclusive bool // a..=b includes the upper endpoint
}

func (RangeData) exprData() {}

// ClosureData holds data for ExprClosure.
type ClosureData struct {
	Params []Param
	Result types.TypeID
	Body   *Block
}

func (ClosureData) exprData() {}

// CastData holds data for ExprCast.
type CastData struct {
	Value    *Expr
	TargetTy types.TypeID
}

func (CastData) exprData() {}
