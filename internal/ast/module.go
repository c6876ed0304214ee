package ast

import (
	"koan/internal/source"
	"koan/internal/types"
)

// Module represents one typed source unit ready for lowering.
type Module struct {
	Name string
	Path string
	File source.FileID

	Funcs []*Fn
	Types []TypeDecl

	// Interner holds every type the checker assigned; nominal enums and
	// structs referenced by Funcs are registered here during decoding.
	Interner *types.Interner

	// Hints carries checker artifacts keyed by name, e.g. the payload
	// types recorded for well-known instantiations. Values are resolved
	// TypeIDs; the raw artifact strings do not survive decoding.
	Hints map[string]types.TypeID
}

// TypeDeclKind enumerates type declaration kinds.
type TypeDeclKind uint8

const (
	// TypeDeclStruct represents a struct declaration.
	TypeDeclStruct TypeDeclKind = iota
	// TypeDeclEnum represents an enum declaration.
	TypeDeclEnum
)

func (k TypeDeclKind) String() string {
	switch k {
	case TypeDeclStruct:
		return "struct"
	case TypeDeclEnum:
		return "enum"
	default:
		return "unknown"
	}
}

// TypeDecl references a declared nominal type; the shape lives in the
// interner.
type TypeDecl struct {
	Name string
	ID   types.TypeID
	Kind TypeDeclKind
	Span source.Span
}

// FindFunc finds a function by name, returns nil if not found.
func (m *Module) FindFunc(name string) *Fn {
	if m == nil {
		return nil
	}
	for _, f := range m.Funcs {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Entrypoint returns the entry function, or nil when the module has
// none.
func (m *Module) Entrypoint() *Fn {
	if m == nil {
		return nil
	}
	for _, f := range m.Funcs {
		if f.IsEntrypoint() {
			return f
		}
	}
	return nil
}
