package lir

import (
	"koan/internal/source"
	"koan/internal/types"
)

// Func is one lowered function: a frame of locals and a control-flow
// graph of basic blocks. Parameters occupy Locals[0:ParamCount].
type Func struct {
	ID         FuncID
	Name       string
	Span       source.Span
	ParamCount int
	Result     types.TypeID
	Locals     []Local
	Blocks     []*Block
	Entry      BlockID
}

// Block resolves a block by id.
func (f *Func) Block(id BlockID) *Block {
	if f == nil || id < 0 || int(id) >= len(f.Blocks) {
		return nil
	}
	return f.Blocks[id]
}

// LocalAt resolves a local by id.
func (f *Func) LocalAt(id LocalID) (Local, bool) {
	if f == nil || id < 0 || int(id) >= len(f.Locals) {
		return Local{}, false
	}
	return f.Locals[id], true
}
