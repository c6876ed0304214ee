package ast

import (
	"koan/internal/source"
	"koan/internal/types"
)

// FnFlags represents function modifiers as a bitmask.
type FnFlags uint32

const (
	// FnEntrypoint marks the program entry point.
	FnEntrypoint FnFlags = 1 << iota
	// FnClosure marks a function hoisted from a closure literal.
	FnClosure
	// FnExtern marks a function with no body, resolved at link time.
	FnExtern
)

// HasFlag returns true if the given flag is set.
func (f FnFlags) HasFlag(flag FnFlags) bool {
	return f&flag != 0
}

// Param represents a function parameter.
type Param struct {
	Name string
	Type types.TypeID
	Span source.Span
}

// Fn represents a typed function.
type Fn struct {
	Name   string
	Span   source.Span
	Params []Param
	Result types.TypeID // unit for functions without a result
	Flags  FnFlags
	Body   *Block // nil for extern functions
}

// IsEntrypoint returns true for the program entry point.
func (f *Fn) IsEntrypoint() bool {
	return f.Flags.HasFlag(FnEntrypoint)
}

// HasBody returns true if this function has a body.
func (f *Fn) HasBody() bool {
	return f.Body != nil
}
