package lir

// TermKind enumerates block terminators. TermNone marks a block that
// is still open; every block is sealed by the time lowering returns.
type TermKind uint8

const (
	TermNone TermKind = iota
	TermReturn
	TermGoto
	TermIf
	TermUnreachable
)

func (k TermKind) String() string {
	switch k {
	case TermNone:
		return "none"
	case TermReturn:
		return "return"
	case TermGoto:
		return "goto"
	case TermIf:
		return "if"
	case TermUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// Terminator is the single control transfer ending a block.
type Terminator struct {
	Kind   TermKind
	Return ReturnTerm
	Goto   GotoTerm
	If     IfTerm
}

// ReturnTerm leaves the function, optionally carrying a value.
type ReturnTerm struct {
	HasValue bool
	Value    Operand
}

// GotoTerm jumps unconditionally.
type GotoTerm struct {
	Target BlockID
}

// IfTerm branches on a boolean operand.
type IfTerm struct {
	Cond Operand
	Then BlockID
	Else BlockID
}
