package lir

import (
	"fmt"
	"io"
	"slices"

	"koan/internal/types"
)

// DumpOptions configures module dumping.
type DumpOptions struct{}

// DumpModule writes a human-readable listing of a lowered module.
// Functions print sorted by name so dumps diff cleanly.
func DumpModule(w io.Writer, m *Module, typesIn *types.Interner, _ DumpOptions) error {
	if w == nil || m == nil {
		return nil
	}
	funcs := make([]*Func, 0, len(m.Funcs))
	for _, f := range m.Funcs {
		if f != nil {
			funcs = append(funcs, f)
		}
	}
	slices.SortStableFunc(funcs, func(a, b *Func) int {
		if a.Name != b.Name {
			if a.Name < b.Name {
				return -1
			}
			return 1
		}
		return int(a.ID) - int(b.ID)
	})

	fmt.Fprintf(w, "module %s funcs=%d\n", m.Name, len(funcs))
	for _, f := range funcs {
		if err := DumpFunc(w, f, typesIn); err != nil {
			return err
		}
	}
	return nil
}

// DumpFunc writes one function's locals and blocks.
func DumpFunc(w io.Writer, f *Func, typesIn *types.Interner) error {
	if w == nil || f == nil {
		return nil
	}
	fmt.Fprintf(w, "\nfn %s:\n", f.Name)

	fmt.Fprintf(w, "  locals:\n")
	for i := range f.Locals {
		l := f.Locals[i]
		name := l.Name
		if name == "" {
			name = "_"
		}
		param := ""
		if i < f.ParamCount {
			param = " param"
		}
		fmt.Fprintf(w, "    L%d: %s%s name=%s\n", i, typeStr(typesIn, l.Type), param, name)
	}

	for _, bb := range f.Blocks {
		if bb == nil {
			continue
		}
		fmt.Fprintf(w, "  bb%d %s:\n", bb.ID, bb.Name)
		for _, ins := range bb.Instrs {
			fmt.Fprintf(w, "    %s\n", formatInstr(typesIn, ins))
		}
		fmt.Fprintf(w, "    %s\n", formatTerm(&bb.Term))
	}
	return nil
}

func formatInstr(typesIn *types.Interner, ins *Instr) string {
	if ins == nil {
		return "<instr?>"
	}
	switch ins.Kind {
	case InstrAssign:
		return fmt.Sprintf("%s = %s", formatPlace(ins.Assign.Dst), formatRValue(typesIn, &ins.Assign.Src))
	case InstrStore:
		return fmt.Sprintf("store %s, %s : %s",
			formatOperand(&ins.Store.Addr),
			formatOperand(&ins.Store.Value),
			typeStr(typesIn, ins.Store.Elem))
	case InstrCall:
		dst := ""
		if ins.Call.HasDst {
			dst = formatPlace(ins.Call.Dst) + " = "
		}
		return fmt.Sprintf("%scall %s(%s)", dst, formatCallee(&ins.Call.Callee), formatOperands(ins.Call.Args))
	default:
		return "<instr?>"
	}
}

func formatTerm(term *Terminator) string {
	if term == nil {
		return "unreachable"
	}
	switch term.Kind {
	case TermReturn:
		if !term.Return.HasValue {
			return "return"
		}
		return fmt.Sprintf("return %s", formatOperand(&term.Return.Value))
	case TermGoto:
		return fmt.Sprintf("goto bb%d", term.Goto.Target)
	case TermIf:
		return fmt.Sprintf("if %s then bb%d else bb%d", formatOperand(&term.If.Cond), term.If.Then, term.If.Else)
	case TermUnreachable, TermNone:
		return "unreachable"
	default:
		return "<term?>"
	}
}

func formatPlace(p Place) string {
	out := fmt.Sprintf("L%d", p.Local)
	for _, proj := range p.Proj {
		switch proj.Kind {
		case ProjDeref:
			out = fmt.Sprintf("(*%s)", out)
		case ProjField:
			if proj.FieldName != "" {
				out += "." + proj.FieldName
			} else {
				out += fmt.Sprintf(".#%d", proj.FieldIdx)
			}
		case ProjIndex:
			if proj.Index != NoLocalID {
				out += fmt.Sprintf("[L%d]", proj.Index)
			} else {
				out += "[?]"
			}
		default:
			out += ".<?>"
		}
	}
	return out
}

func formatOperands(ops []Operand) string {
	if len(ops) == 0 {
		return ""
	}
	out := formatOperand(&ops[0])
	for i := 1; i < len(ops); i++ {
		out += ", " + formatOperand(&ops[i])
	}
	return out
}

func formatOperand(op *Operand) string {
	if op == nil {
		return "<op?>"
	}
	switch op.Kind {
	case OperandConst:
		return formatConst(&op.Const)
	case OperandCopy:
		return fmt.Sprintf("copy %s", formatPlace(op.Place))
	case OperandMove:
		return fmt.Sprintf("move %s", formatPlace(op.Place))
	case OperandAddrOf:
		return fmt.Sprintf("addr_of %s", formatPlace(op.Place))
	default:
		return "<op?>"
	}
}

func formatConst(c *Const) string {
	if c == nil {
		return "const ?"
	}
	switch c.Kind {
	case ConstInt:
		return fmt.Sprintf("const %d", c.IntValue)
	case ConstUint:
		return fmt.Sprintf("const %d:uint", c.UintValue)
	case ConstFloat:
		return fmt.Sprintf("const %g", c.FloatValue)
	case ConstBool:
		if c.BoolValue {
			return "const true"
		}
		return "const false"
	case ConstString:
		return fmt.Sprintf("const %q", c.StringValue)
	case ConstNull:
		return "const null"
	case ConstUnit:
		return "const unit"
	default:
		return "const ?"
	}
}

func formatCallee(c *Callee) string {
	if c == nil {
		return "<callee?>"
	}
	switch c.Kind {
	case CalleeRuntime:
		return "runtime." + c.Name
	default:
		return c.Name
	}
}

func formatRValue(typesIn *types.Interner, rv *RValue) string {
	if rv == nil {
		return "<rvalue?>"
	}
	switch rv.Kind {
	case RValueUse:
		return formatOperand(&rv.Use)
	case RValueUnaryOp:
		return fmt.Sprintf("(%v %s)", rv.Unary.Op, formatOperand(&rv.Unary.Operand))
	case RValueBinaryOp:
		return fmt.Sprintf("(%s %v %s)", formatOperand(&rv.Binary.Left), rv.Binary.Op, formatOperand(&rv.Binary.Right))
	case RValueCast:
		return fmt.Sprintf("cast %s to %s", formatOperand(&rv.Cast.Value), typeStr(typesIn, rv.Cast.TargetTy))
	case RValueLoad:
		return fmt.Sprintf("load %s : %s", formatOperand(&rv.Load.Addr), typeStr(typesIn, rv.Load.Elem))
	case RValueZeroInit:
		return fmt.Sprintf("zeroinit %s", typeStr(typesIn, rv.ZeroTy))
	default:
		return "<rvalue?>"
	}
}

func typeStr(typesIn *types.Interner, id types.TypeID) string {
	if typesIn == nil {
		if id == types.NoTypeID {
			return "?"
		}
		return fmt.Sprintf("type#%d", id)
	}
	return typesIn.Format(id)
}
