package types

import (
	"fmt"
	"strings"
)

// Format renders a type for diagnostics and IR dumps.
func (in *Interner) Format(id TypeID) string {
	if id == NoTypeID {
		return "?"
	}
	tt, ok := in.Lookup(id)
	if !ok {
		return fmt.Sprintf("type#%d", id)
	}
	switch tt.Kind {
	case KindUnit:
		return "()"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindRange:
		return "range"
	case KindRawPtr:
		return "rawptr"
	case KindInt:
		return numName("i", tt.Width)
	case KindUint:
		return numName("u", tt.Width)
	case KindFloat:
		return numName("f", tt.Width)
	case KindPtr:
		return "*" + in.Format(tt.Elem)
	case KindMutPtr:
		return "*mut " + in.Format(tt.Elem)
	case KindStruct, KindEnum:
		if name := in.Name(id); name != "" {
			return name
		}
	case KindGeneric:
		if info, ok := in.GenericInfo(id); ok {
			if len(info.Args) == 0 {
				return info.Name
			}
			return info.Name + "<" + in.formatList(info.Args) + ">"
		}
	case KindDynVec:
		if info, ok := in.DynVecInfo(id); ok {
			return "DynVec<" + in.formatList(info.Elems) + ">"
		}
		return "DynVec<?>"
	case KindFn:
		if info, ok := in.FnInfo(id); ok {
			return "fn(" + in.formatList(info.Params) + ") " + in.Format(info.Result)
		}
	}
	return fmt.Sprintf("type#%d", id)
}

func (in *Interner) formatList(ids []TypeID) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, in.Format(id))
	}
	return strings.Join(parts, ", ")
}

func numName(prefix string, w Width) string {
	if w == WidthAny {
		switch prefix {
		case "i":
			return "int"
		case "u":
			return "uint"
		default:
			return "float"
		}
	}
	return fmt.Sprintf("%s%d", prefix, w)
}
