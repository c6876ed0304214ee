// Package lir defines the lowered intermediate representation and the
// lowering engine that translates a typed module into it: tagged-union
// construction and matching, merge-point reconciliation, error
// propagation, loops, and growable-vector operations, all expressed as
// basic blocks over explicit locals.
package lir

import (
	"fmt"

	"fortio.org/safecast"
)

// Module is a lowered compilation unit.
type Module struct {
	Name   string
	Funcs  []*Func
	ByName map[string]FuncID
}

// FindFunc resolves a function by name.
func (m *Module) FindFunc(name string) (*Func, bool) {
	if m == nil {
		return nil, false
	}
	id, ok := m.ByName[name]
	if !ok || id < 0 || int(id) >= len(m.Funcs) {
		return nil, false
	}
	return m.Funcs[id], true
}

// addFunc appends f, assigning its id and name-table entry.
func (m *Module) addFunc(f *Func) FuncID {
	raw, err := safecast.Conv[int32](len(m.Funcs))
	if err != nil {
		panic(fmt.Errorf("lir: func id overflow: %w", err))
	}
	id := FuncID(raw)
	f.ID = id
	m.Funcs = append(m.Funcs, f)
	if m.ByName == nil {
		m.ByName = make(map[string]FuncID, 8)
	}
	if _, exists := m.ByName[f.Name]; !exists {
		m.ByName[f.Name] = id
	}
	return id
}
