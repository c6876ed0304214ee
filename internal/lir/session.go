package lir

import (
	"koan/internal/layout"
	"koan/internal/types"
	"koan/internal/wellknown"
)

// FnSig is a callable signature visible to lowering.
type FnSig struct {
	Params []types.TypeID
	Result types.TypeID
}

// MethodKey identifies a trait method on a receiver type.
type MethodKey struct {
	Recv types.TypeID
	Name string
}

type hintKey struct {
	Kind wellknown.Kind
	Tag  uint64
}

// Session carries everything one lowering run needs: the type
// interner, the name registry, the layout engine, the function and
// trait-method tables, frontend payload hints, and the counters that
// keep generated block names unique. Sessions are not goroutine-safe;
// concurrent drivers give each unit its own.
type Session struct {
	Types    *types.Interner
	Registry *wellknown.Registry
	Layout   *layout.Engine

	sigs    map[string]FnSig
	methods map[MethodKey]string
	hints   map[hintKey]types.TypeID
	seq     map[string]uint32
}

// NewSession binds a session to a type interner, registry, and layout
// engine.
func NewSession(typesIn *types.Interner, reg *wellknown.Registry, eng *layout.Engine) *Session {
	return &Session{
		Types:    typesIn,
		Registry: reg,
		Layout:   eng,
		sigs:     make(map[string]FnSig, 16),
		methods:  make(map[MethodKey]string, 8),
		hints:    make(map[hintKey]types.TypeID, 4),
		seq:      make(map[string]uint32, 8),
	}
}

// RegisterFunc records a callable signature. Later registrations of
// the same name win, matching source order.
func (s *Session) RegisterFunc(name string, sig FnSig) {
	if s == nil || name == "" {
		return
	}
	s.sigs[name] = sig
}

// LookupFunc resolves a callable signature by name.
func (s *Session) LookupFunc(name string) (FnSig, bool) {
	if s == nil {
		return FnSig{}, false
	}
	sig, ok := s.sigs[name]
	return sig, ok
}

// RegisterMethod maps receiver type + method name to the free function
// implementing it.
func (s *Session) RegisterMethod(recv types.TypeID, method, target string) {
	if s == nil || method == "" || target == "" {
		return
	}
	s.methods[MethodKey{Recv: recv, Name: method}] = target
}

// LookupMethod resolves a trait method on a receiver type.
func (s *Session) LookupMethod(recv types.TypeID, method string) (string, bool) {
	if s == nil {
		return "", false
	}
	target, ok := s.methods[MethodKey{Recv: recv, Name: method}]
	return target, ok
}

// SetPayloadHint records the payload type the frontend observed for a
// well-known variant. Hints are the fallback when neither the layout
// nor the instantiated type names a payload.
func (s *Session) SetPayloadHint(kind wellknown.Kind, tag uint64, ty types.TypeID) {
	if s == nil || ty == types.NoTypeID {
		return
	}
	s.hints[hintKey{Kind: kind, Tag: tag}] = ty
}

// PayloadHint returns the recorded payload type for a variant.
func (s *Session) PayloadHint(kind wellknown.Kind, tag uint64) (types.TypeID, bool) {
	if s == nil {
		return types.NoTypeID, false
	}
	ty, ok := s.hints[hintKey{Kind: kind, Tag: tag}]
	return ty, ok
}

// next returns the current value of a named counter and advances it.
// Counters are session-scoped so generated block names stay unique
// across every function lowered in the session.
func (s *Session) next(prefix string) uint32 {
	n := s.seq[prefix]
	s.seq[prefix] = n + 1
	return n
}
