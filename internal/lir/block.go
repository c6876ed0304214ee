package lir

// Block is a basic block: a named, append-only instruction sequence
// ending in exactly one terminator.
type Block struct {
	ID     BlockID
	Name   string
	Instrs []*Instr
	Term   Terminator
}

// Sealed reports whether the block already has its terminator.
// Instructions are never appended to a sealed block.
func (b *Block) Sealed() bool {
	return b != nil && b.Term.Kind != TermNone
}
