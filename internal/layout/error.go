package layout

import (
	"fmt"
	"strings"

	"koan/internal/types"
)

// ErrorKind enumerates layout calculation failures.
type ErrorKind uint8

const (
	// ErrRecursiveUnsized indicates a value type that contains itself
	// and therefore has no finite size.
	ErrRecursiveUnsized ErrorKind = iota + 1
)

// Error reports a failed layout computation.
type Error struct {
	Kind  ErrorKind
	Type  types.TypeID
	Cycle []types.TypeID // for ErrRecursiveUnsized
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch e.Kind {
	case ErrRecursiveUnsized:
		if len(e.Cycle) == 0 {
			return fmt.Sprintf("recursive value type has infinite size (type#%d)", e.Type)
		}
		parts := make([]string, 0, len(e.Cycle))
		for _, id := range e.Cycle {
			parts = append(parts, fmt.Sprintf("type#%d", id))
		}
		return fmt.Sprintf("recursive value type has infinite size (cycle: %s)", strings.Join(parts, " -> "))
	default:
		return fmt.Sprintf("layout error kind=%d type#%d", e.Kind, e.Type)
	}
}
