package lir

import "koan/internal/types"

// Binding is one named value visible to expressions.
type Binding struct {
	Place       Place
	Type        types.TypeID
	Mutable     bool
	Initialized bool
}

// scopeStack resolves names against lexically nested frames. Frames
// are pushed explicitly and restored by depth, so a lowering error in
// the middle of an arm or closure can never leave a stale frame
// installed: the caller pops back to the mark it saved.
type scopeStack struct {
	frames []map[string]Binding
}

// Push opens a new frame and returns the mark to restore with PopTo.
func (s *scopeStack) Push() int {
	mark := len(s.frames)
	s.frames = append(s.frames, nil)
	return mark
}

// Depth reports the current number of frames.
func (s *scopeStack) Depth() int {
	return len(s.frames)
}

// PopTo discards every frame above mark.
func (s *scopeStack) PopTo(mark int) {
	if mark < 0 {
		mark = 0
	}
	if mark > len(s.frames) {
		return
	}
	s.frames = s.frames[:mark]
}

// Bind installs a name in the innermost frame, shadowing outer
// bindings of the same name.
func (s *scopeStack) Bind(name string, b Binding) {
	if len(s.frames) == 0 {
		s.frames = append(s.frames, nil)
	}
	top := len(s.frames) - 1
	if s.frames[top] == nil {
		s.frames[top] = make(map[string]Binding, 4)
	}
	s.frames[top][name] = b
}

// LookupVar resolves a name, walking frames from innermost outward.
func (s *scopeStack) LookupVar(name string) (Binding, bool) {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if b, ok := s.frames[i][name]; ok {
			return b, true
		}
	}
	return Binding{}, false
}
