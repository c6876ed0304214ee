package lir

import (
	"koan/internal/ast"
	"koan/internal/types"
)

// InstrKind enumerates non-terminator instructions.
type InstrKind uint8

const (
	// InstrAssign writes an rvalue into a place.
	InstrAssign InstrKind = iota
	// InstrStore writes a value through an opaque pointer at an
	// explicit element type (payload boxing, vector element writes).
	InstrStore
	// InstrCall invokes a symbolic or runtime callee.
	InstrCall
)

// Instr is one instruction. Kind selects which payload is live.
type Instr struct {
	Kind   InstrKind
	Assign AssignInstr
	Store  StoreInstr
	Call   CallInstr
}

// AssignInstr writes Src into Dst.
type AssignInstr struct {
	Dst Place
	Src RValue
}

// StoreInstr writes Value through the Addr pointer. Elem is the
// element type the pointee is written as.
type StoreInstr struct {
	Addr  Operand
	Value Operand
	Elem  types.TypeID
}

// CallInstr invokes Callee with Args, optionally writing the result.
type CallInstr struct {
	HasDst bool
	Dst    Place
	Callee Callee
	Args   []Operand
}

// CalleeKind distinguishes user functions from runtime services.
type CalleeKind uint8

const (
	// CalleeFn names a function in the module (free functions, trait
	// targets, hoisted closures).
	CalleeFn CalleeKind = iota
	// CalleeRuntime names a runtime service such as alloc or realloc.
	CalleeRuntime
)

// Callee is a call target resolved to a symbolic name.
type Callee struct {
	Kind CalleeKind
	Name string
}

// OperandKind enumerates the ways a value is produced.
type OperandKind uint8

const (
	// OperandConst is an immediate constant.
	OperandConst OperandKind = iota
	// OperandCopy reads a place, leaving it intact.
	OperandCopy
	// OperandMove reads a place, consuming it.
	OperandMove
	// OperandAddrOf takes the address of a place.
	OperandAddrOf
)

// Operand is a value usable by instructions and terminators.
type Operand struct {
	Kind  OperandKind
	Type  types.TypeID
	Const Const
	Place Place
}

// ConstKind enumerates immediate constant kinds.
type ConstKind uint8

const (
	ConstInt ConstKind = iota
	ConstUint
	ConstFloat
	ConstBool
	ConstString
	ConstNull
	ConstUnit
)

// Const is an immediate value.
type Const struct {
	Kind        ConstKind
	Type        types.TypeID
	IntValue    int64
	UintValue   uint64
	FloatValue  float64
	BoolValue   bool
	StringValue string
}

// RValueKind enumerates the right-hand sides of assignments.
type RValueKind uint8

const (
	// RValueUse forwards an operand unchanged.
	RValueUse RValueKind = iota
	// RValueUnaryOp applies a unary operator.
	RValueUnaryOp
	// RValueBinaryOp applies a binary operator to two operands.
	RValueBinaryOp
	// RValueCast converts an operand to a target type (integer
	// widening and narrowing, bool to integer).
	RValueCast
	// RValueLoad reads through an opaque pointer at an explicit
	// element type (payload unboxing).
	RValueLoad
	// RValueZeroInit produces the zero value of a type.
	RValueZeroInit
)

// RValue is the right-hand side of an assignment.
type RValue struct {
	Kind   RValueKind
	Use    Operand
	Unary  UnaryOp
	Binary BinaryOp
	Cast   CastOp
	Load   LoadOp
	ZeroTy types.TypeID
}

// UnaryOp applies Op to Operand.
type UnaryOp struct {
	Op      ast.UnOp
	Operand Operand
}

// BinaryOp applies Op to Left and Right. Both operands are always
// evaluated; logical operators do not short-circuit at this level.
type BinaryOp struct {
	Op    ast.BinOp
	Left  Operand
	Right Operand
}

// CastOp converts Value to TargetTy.
type CastOp struct {
	Value    Operand
	TargetTy types.TypeID
}

// LoadOp reads the value Addr points at, typed as Elem.
type LoadOp struct {
	Addr Operand
	Elem types.TypeID
}
