package lir_test

import (
	"fmt"
	"strconv"

	"koan/internal/ast"
	"koan/internal/lir"
	"koan/internal/types"
)

// The evaluator executes lowered functions over Go values so tests can
// observe what the emitted control flow actually computes, not just
// its block structure. It models the runtime the lowered code assumes:
// locals are slots, aggregates are field slices, and alloc/realloc
// hand out handles into a growable heap.

type evalKind uint8

const (
	evUnit evalKind = iota
	evInt
	evUint
	evFloat
	evBool
	evString
	evPtr
	evAgg
)

func (k evalKind) String() string {
	switch k {
	case evUnit:
		return "unit"
	case evInt:
		return "int"
	case evUint:
		return "uint"
	case evFloat:
		return "float"
	case evBool:
		return "bool"
	case evString:
		return "string"
	case evPtr:
		return "ptr"
	case evAgg:
		return "agg"
	default:
		return "?"
	}
}

type evalValue struct {
	kind evalKind
	i    int64
	u    uint64
	f    float64
	b    bool
	s    string
	ptr  int
	agg  []evalValue
}

func vInt(v int64) evalValue      { return evalValue{kind: evInt, i: v} }
func vUint(v uint64) evalValue    { return evalValue{kind: evUint, u: v} }
func vFloat(v float64) evalValue  { return evalValue{kind: evFloat, f: v} }
func vBool(v bool) evalValue      { return evalValue{kind: evBool, b: v} }
func vString(v string) evalValue  { return evalValue{kind: evString, s: v} }
func vPtr(handle int) evalValue   { return evalValue{kind: evPtr, ptr: handle} }
func vAgg(fs ...evalValue) evalValue {
	return evalValue{kind: evAgg, agg: fs}
}

// asInt folds both integer domains into one comparison value.
func (v evalValue) asInt() int64 {
	switch v.kind {
	case evInt:
		return v.i
	case evUint:
		return int64(v.u)
	case evBool:
		if v.b {
			return 1
		}
		return 0
	case evPtr:
		return int64(v.ptr)
	default:
		return 0
	}
}

func (v evalValue) asUint() uint64 {
	switch v.kind {
	case evUint:
		return v.u
	case evInt:
		return uint64(v.i)
	case evBool:
		if v.b {
			return 1
		}
		return 0
	case evPtr:
		return uint64(v.ptr)
	default:
		return 0
	}
}

// clone deep-copies field slices so a copied aggregate cannot alias
// the original's header. Heap handles stay shared: a box pointer is a
// value.
func (v evalValue) clone() evalValue {
	if v.kind != evAgg {
		return v
	}
	out := v
	out.agg = make([]evalValue, len(v.agg))
	for i := range v.agg {
		out.agg[i] = v.agg[i].clone()
	}
	return out
}

// evalHeap models the runtime allocator. Handle 0 is null. A cell is a
// growable slot array; realloc keeps the handle and the contents,
// which is exactly the "existing bytes preserved" contract growth
// relies on.
type evalHeap struct {
	cells [][]evalValue
}

func newEvalHeap() *evalHeap {
	return &evalHeap{cells: make([][]evalValue, 1)} // cells[0] unused: null
}

func (h *evalHeap) alloc() int {
	h.cells = append(h.cells, nil)
	return len(h.cells) - 1
}

func (h *evalHeap) realloc(handle int) int {
	if handle <= 0 || handle >= len(h.cells) {
		return h.alloc()
	}
	return handle
}

func (h *evalHeap) slot(handle, idx int) (*evalValue, error) {
	if handle <= 0 || handle >= len(h.cells) {
		return nil, fmt.Errorf("eval: dereference of invalid handle %d", handle)
	}
	for len(h.cells[handle]) <= idx {
		h.cells[handle] = append(h.cells[handle], evalValue{})
	}
	return &h.cells[handle][idx], nil
}

const evalStepLimit = 1 << 17

type evaluator struct {
	fx    *fixture
	mod   *lir.Module
	heap  *evalHeap
	steps int
}

func newEvaluator(fx *fixture, mod *lir.Module) *evaluator {
	return &evaluator{fx: fx, mod: mod, heap: newEvalHeap()}
}

// box places a value on the heap and returns the handle, the way
// lowered code boxes enum payloads.
func (ev *evaluator) box(v evalValue) int {
	h := ev.heap.alloc()
	slot, _ := ev.heap.slot(h, 0)
	*slot = v
	return h
}

// enumVal builds a tagged-union argument: discriminant plus boxed
// payload, null slot when absent.
func (ev *evaluator) enumVal(tag uint64, payload *evalValue) evalValue {
	slot := vPtr(0)
	if payload != nil {
		slot = vPtr(ev.box(*payload))
	}
	return vAgg(vUint(tag), slot)
}

func (ev *evaluator) enumDisc(v evalValue) uint64 {
	if v.kind != evAgg || len(v.agg) == 0 {
		return ^uint64(0)
	}
	return v.agg[0].asUint()
}

func (ev *evaluator) enumPayload(v evalValue) (evalValue, error) {
	if v.kind != evAgg || len(v.agg) < 2 {
		return evalValue{}, fmt.Errorf("eval: value is not a tagged union: %v", v.kind)
	}
	slot, err := ev.heap.slot(v.agg[1].ptr, 0)
	if err != nil {
		return evalValue{}, err
	}
	return *slot, nil
}

type evalFrame struct {
	f      *lir.Func
	locals []evalValue
}

// call executes a function by name. Arguments fill the parameter
// locals; everything else starts zero.
func (ev *evaluator) call(name string, args ...evalValue) (evalValue, error) {
	f, ok := ev.mod.FindFunc(name)
	if !ok {
		return evalValue{}, fmt.Errorf("eval: no function %q", name)
	}
	if len(args) != f.ParamCount {
		return evalValue{}, fmt.Errorf("eval: %s takes %d arguments, got %d", name, f.ParamCount, len(args))
	}
	frame := &evalFrame{f: f, locals: make([]evalValue, len(f.Locals))}
	for i, a := range args {
		frame.locals[i] = a.clone()
	}
	return ev.run(frame)
}

func (ev *evaluator) run(frame *evalFrame) (evalValue, error) {
	cur := frame.f.Entry
	for {
		blk := frame.f.Block(cur)
		if blk == nil {
			return evalValue{}, fmt.Errorf("eval: %s: no block bb%d", frame.f.Name, cur)
		}
		for _, ins := range blk.Instrs {
			ev.steps++
			if ev.steps > evalStepLimit {
				return evalValue{}, fmt.Errorf("eval: step limit exceeded in %s", frame.f.Name)
			}
			if err := ev.exec(frame, ins); err != nil {
				return evalValue{}, fmt.Errorf("%s bb%d (%s): %w", frame.f.Name, blk.ID, blk.Name, err)
			}
		}
		switch blk.Term.Kind {
		case lir.TermGoto:
			cur = blk.Term.Goto.Target
		case lir.TermIf:
			cond, err := ev.operand(frame, blk.Term.If.Cond)
			if err != nil {
				return evalValue{}, err
			}
			if cond.kind != evBool {
				return evalValue{}, fmt.Errorf("eval: %s bb%d: branch condition is %s, not bool",
					frame.f.Name, blk.ID, cond.kind)
			}
			if cond.b {
				cur = blk.Term.If.Then
			} else {
				cur = blk.Term.If.Else
			}
		case lir.TermReturn:
			if !blk.Term.Return.HasValue {
				return evalValue{}, nil
			}
			return ev.operand(frame, blk.Term.Return.Value)
		case lir.TermUnreachable:
			return evalValue{}, fmt.Errorf("eval: reached unreachable block bb%d (%s) in %s",
				blk.ID, blk.Name, frame.f.Name)
		default:
			return evalValue{}, fmt.Errorf("eval: unterminated block bb%d in %s", blk.ID, frame.f.Name)
		}
	}
}

func (ev *evaluator) exec(frame *evalFrame, ins *lir.Instr) error {
	switch ins.Kind {
	case lir.InstrAssign:
		val, err := ev.rvalue(frame, &ins.Assign.Src)
		if err != nil {
			return err
		}
		dst, err := ev.place(frame, ins.Assign.Dst)
		if err != nil {
			return err
		}
		*dst = val
		return nil
	case lir.InstrStore:
		addr, err := ev.operand(frame, ins.Store.Addr)
		if err != nil {
			return err
		}
		val, err := ev.operand(frame, ins.Store.Value)
		if err != nil {
			return err
		}
		slot, err := ev.heap.slot(addr.ptr, 0)
		if err != nil {
			return err
		}
		*slot = val
		return nil
	case lir.InstrCall:
		res, err := ev.execCall(frame, &ins.Call)
		if err != nil {
			return err
		}
		if ins.Call.HasDst {
			dst, err := ev.place(frame, ins.Call.Dst)
			if err != nil {
				return err
			}
			*dst = res
		}
		return nil
	default:
		return fmt.Errorf("eval: unknown instruction kind %d", ins.Kind)
	}
}

func (ev *evaluator) execCall(frame *evalFrame, call *lir.CallInstr) (evalValue, error) {
	args := make([]evalValue, len(call.Args))
	for i, a := range call.Args {
		v, err := ev.operand(frame, a)
		if err != nil {
			return evalValue{}, err
		}
		args[i] = v
	}
	if call.Callee.Kind == lir.CalleeRuntime {
		return ev.runtimeCall(call.Callee.Name, args)
	}
	return ev.call(call.Callee.Name, args...)
}

func (ev *evaluator) runtimeCall(name string, args []evalValue) (evalValue, error) {
	if arity, known := lir.KnownRuntimeCall(name); !known {
		return evalValue{}, fmt.Errorf("eval: unknown runtime call %q", name)
	} else if arity != len(args) {
		return evalValue{}, fmt.Errorf("eval: runtime %s takes %d arguments, got %d", name, arity, len(args))
	}
	switch name {
	case "alloc":
		return vPtr(ev.heap.alloc()), nil
	case "realloc":
		return vPtr(ev.heap.realloc(args[0].ptr)), nil
	case "string_to_i32", "string_to_i64":
		n, err := strconv.ParseInt(args[0].s, 10, 64)
		if err != nil {
			return vInt(0), nil
		}
		return vInt(n), nil
	case "string_to_f32", "string_to_f64":
		f, err := strconv.ParseFloat(args[0].s, 64)
		if err != nil {
			return vFloat(0), nil
		}
		return vFloat(f), nil
	default:
		return evalValue{}, fmt.Errorf("eval: runtime call %q not modeled", name)
	}
}

// place resolves a place to a settable slot, applying projections the
// way the lowered code's layout expects: field selection on aggregate
// slots, indexing through heap handles, dereferencing boxes.
func (ev *evaluator) place(frame *evalFrame, p lir.Place) (*evalValue, error) {
	if p.Local < 0 || int(p.Local) >= len(frame.locals) {
		return nil, fmt.Errorf("eval: local L%d out of range", p.Local)
	}
	cur := &frame.locals[p.Local]
	for _, proj := range p.Proj {
		switch proj.Kind {
		case lir.ProjField:
			if cur.kind != evAgg {
				if cur.kind != evUnit {
					return nil, fmt.Errorf("eval: field %d of non-aggregate %s", proj.FieldIdx, cur.kind)
				}
				cur.kind = evAgg
			}
			for len(cur.agg) <= proj.FieldIdx {
				cur.agg = append(cur.agg, evalValue{})
			}
			cur = &cur.agg[proj.FieldIdx]
		case lir.ProjIndex:
			if proj.Index < 0 || int(proj.Index) >= len(frame.locals) {
				return nil, fmt.Errorf("eval: index local L%d out of range", proj.Index)
			}
			idx := int(frame.locals[proj.Index].asUint())
			if cur.kind != evPtr {
				return nil, fmt.Errorf("eval: indexing a %s, want ptr", cur.kind)
			}
			slot, err := ev.heap.slot(cur.ptr, idx)
			if err != nil {
				return nil, err
			}
			cur = slot
		case lir.ProjDeref:
			if cur.kind != evPtr {
				return nil, fmt.Errorf("eval: dereferencing a %s", cur.kind)
			}
			slot, err := ev.heap.slot(cur.ptr, 0)
			if err != nil {
				return nil, err
			}
			cur = slot
		default:
			return nil, fmt.Errorf("eval: unknown projection kind %d", proj.Kind)
		}
	}
	return cur, nil
}

func (ev *evaluator) operand(frame *evalFrame, op lir.Operand) (evalValue, error) {
	switch op.Kind {
	case lir.OperandConst:
		return ev.constValue(op.Const), nil
	case lir.OperandCopy, lir.OperandMove:
		slot, err := ev.place(frame, op.Place)
		if err != nil {
			return evalValue{}, err
		}
		return slot.clone(), nil
	case lir.OperandAddrOf:
		// Spill the place into a box so the address is a real handle.
		slot, err := ev.place(frame, op.Place)
		if err != nil {
			return evalValue{}, err
		}
		return vPtr(ev.box(*slot)), nil
	default:
		return evalValue{}, fmt.Errorf("eval: unknown operand kind %d", op.Kind)
	}
}

func (ev *evaluator) constValue(c lir.Const) evalValue {
	switch c.Kind {
	case lir.ConstInt:
		return vInt(c.IntValue)
	case lir.ConstUint:
		return vUint(c.UintValue)
	case lir.ConstFloat:
		return vFloat(c.FloatValue)
	case lir.ConstBool:
		return vBool(c.BoolValue)
	case lir.ConstString:
		return vString(c.StringValue)
	case lir.ConstNull:
		return vPtr(0)
	default:
		return evalValue{}
	}
}

func (ev *evaluator) rvalue(frame *evalFrame, rv *lir.RValue) (evalValue, error) {
	switch rv.Kind {
	case lir.RValueUse:
		return ev.operand(frame, rv.Use)
	case lir.RValueUnaryOp:
		v, err := ev.operand(frame, rv.Unary.Operand)
		if err != nil {
			return evalValue{}, err
		}
		return evalUnary(rv.Unary.Op, v)
	case lir.RValueBinaryOp:
		left, err := ev.operand(frame, rv.Binary.Left)
		if err != nil {
			return evalValue{}, err
		}
		right, err := ev.operand(frame, rv.Binary.Right)
		if err != nil {
			return evalValue{}, err
		}
		return evalBinary(rv.Binary.Op, left, right)
	case lir.RValueCast:
		v, err := ev.operand(frame, rv.Cast.Value)
		if err != nil {
			return evalValue{}, err
		}
		return ev.cast(v, rv.Cast.TargetTy), nil
	case lir.RValueLoad:
		addr, err := ev.operand(frame, rv.Load.Addr)
		if err != nil {
			return evalValue{}, err
		}
		if addr.ptr == 0 {
			// Null boxes read as zero values.
			return ev.zeroOf(rv.Load.Elem), nil
		}
		slot, err := ev.heap.slot(addr.ptr, 0)
		if err != nil {
			return evalValue{}, err
		}
		return slot.clone(), nil
	case lir.RValueZeroInit:
		return ev.zeroOf(rv.ZeroTy), nil
	default:
		return evalValue{}, fmt.Errorf("eval: unknown rvalue kind %d", rv.Kind)
	}
}

func (ev *evaluator) zeroOf(ty types.TypeID) evalValue {
	tt, ok := ev.fx.in.Lookup(ty)
	if !ok {
		return evalValue{}
	}
	switch tt.Kind {
	case types.KindInt:
		return vInt(0)
	case types.KindUint:
		return vUint(0)
	case types.KindFloat:
		return vFloat(0)
	case types.KindBool:
		return vBool(false)
	case types.KindString:
		return vString("")
	case types.KindPtr, types.KindMutPtr, types.KindRawPtr:
		return vPtr(0)
	case types.KindStruct, types.KindEnum, types.KindGeneric,
		types.KindDynVec, types.KindRange:
		return evalValue{kind: evAgg}
	default:
		return evalValue{}
	}
}

// cast models the IR's conversions: integer width changes sign- or
// zero-extend and truncate, bool widens to 0/1, floats convert.
func (ev *evaluator) cast(v evalValue, target types.TypeID) evalValue {
	tt, ok := ev.fx.in.Lookup(target)
	if !ok {
		return v
	}
	switch tt.Kind {
	case types.KindInt:
		return vInt(truncSigned(v.asInt(), tt.Width.Bits()))
	case types.KindUint:
		return vUint(truncUnsigned(v.asUint(), tt.Width.Bits()))
	case types.KindFloat:
		switch v.kind {
		case evInt:
			return vFloat(float64(v.i))
		case evUint:
			return vFloat(float64(v.u))
		default:
			return vFloat(v.f)
		}
	case types.KindBool:
		return vBool(v.asInt() != 0)
	default:
		return v
	}
}

func truncSigned(v int64, bits int) int64 {
	if bits >= 64 {
		return v
	}
	shift := 64 - bits
	return v << shift >> shift
}

func truncUnsigned(v uint64, bits int) uint64 {
	if bits >= 64 {
		return v
	}
	return v & (1<<bits - 1)
}

func evalUnary(op ast.UnOp, v evalValue) (evalValue, error) {
	switch op {
	case ast.UnNeg:
		switch v.kind {
		case evInt:
			return vInt(-v.i), nil
		case evFloat:
			return vFloat(-v.f), nil
		}
	case ast.UnNot:
		if v.kind == evBool {
			return vBool(!v.b), nil
		}
	case ast.UnBitNot:
		switch v.kind {
		case evInt:
			return vInt(^v.i), nil
		case evUint:
			return vUint(^v.u), nil
		}
	}
	return evalValue{}, fmt.Errorf("eval: unary %s on %s", op, v.kind)
}

func evalBinary(op ast.BinOp, left, right evalValue) (evalValue, error) {
	if op.IsLogical() {
		if left.kind != evBool || right.kind != evBool {
			return evalValue{}, fmt.Errorf("eval: logical %s on %s and %s", op, left.kind, right.kind)
		}
		if op == ast.BinAnd {
			return vBool(left.b && right.b), nil
		}
		return vBool(left.b || right.b), nil
	}
	if left.kind == evString || right.kind == evString {
		switch op {
		case ast.BinEq:
			return vBool(left.s == right.s), nil
		case ast.BinNe:
			return vBool(left.s != right.s), nil
		case ast.BinAdd:
			return vString(left.s + right.s), nil
		}
		return evalValue{}, fmt.Errorf("eval: %s on strings", op)
	}
	if left.kind == evBool && right.kind == evBool {
		switch op {
		case ast.BinEq:
			return vBool(left.b == right.b), nil
		case ast.BinNe:
			return vBool(left.b != right.b), nil
		}
		return evalValue{}, fmt.Errorf("eval: %s on bools", op)
	}
	if left.kind == evFloat || right.kind == evFloat {
		return evalFloatBinary(op, asFloat(left), asFloat(right))
	}
	if left.kind == evUint && right.kind == evUint {
		return evalUintBinary(op, left.u, right.u)
	}
	return evalIntBinary(op, left.asInt(), right.asInt())
}

func evalIntBinary(op ast.BinOp, a, b int64) (evalValue, error) {
	switch op {
	case ast.BinAdd:
		return vInt(a + b), nil
	case ast.BinSub:
		return vInt(a - b), nil
	case ast.BinMul:
		return vInt(a * b), nil
	case ast.BinDiv:
		if b == 0 {
			return evalValue{}, fmt.Errorf("eval: division by zero")
		}
		return vInt(a / b), nil
	case ast.BinRem:
		if b == 0 {
			return evalValue{}, fmt.Errorf("eval: remainder by zero")
		}
		return vInt(a % b), nil
	case ast.BinEq:
		return vBool(a == b), nil
	case ast.BinNe:
		return vBool(a != b), nil
	case ast.BinLt:
		return vBool(a < b), nil
	case ast.BinLe:
		return vBool(a <= b), nil
	case ast.BinGt:
		return vBool(a > b), nil
	case ast.BinGe:
		return vBool(a >= b), nil
	case ast.BinBitAnd:
		return vInt(a & b), nil
	case ast.BinBitOr:
		return vInt(a | b), nil
	case ast.BinBitXor:
		return vInt(a ^ b), nil
	case ast.BinShl:
		return vInt(a << uint(b)), nil
	case ast.BinShr:
		return vInt(a >> uint(b)), nil
	default:
		return evalValue{}, fmt.Errorf("eval: integer %s", op)
	}
}

func evalUintBinary(op ast.BinOp, a, b uint64) (evalValue, error) {
	switch op {
	case ast.BinAdd:
		return vUint(a + b), nil
	case ast.BinSub:
		return vUint(a - b), nil
	case ast.BinMul:
		return vUint(a * b), nil
	case ast.BinDiv:
		if b == 0 {
			return evalValue{}, fmt.Errorf("eval: division by zero")
		}
		return vUint(a / b), nil
	case ast.BinRem:
		if b == 0 {
			return evalValue{}, fmt.Errorf("eval: remainder by zero")
		}
		return vUint(a % b), nil
	case ast.BinEq:
		return vBool(a == b), nil
	case ast.BinNe:
		return vBool(a != b), nil
	case ast.BinLt:
		return vBool(a < b), nil
	case ast.BinLe:
		return vBool(a <= b), nil
	case ast.BinGt:
		return vBool(a > b), nil
	case ast.BinGe:
		return vBool(a >= b), nil
	case ast.BinBitAnd:
		return vUint(a & b), nil
	case ast.BinBitOr:
		return vUint(a | b), nil
	case ast.BinBitXor:
		return vUint(a ^ b), nil
	case ast.BinShl:
		return vUint(a << b), nil
	case ast.BinShr:
		return vUint(a >> b), nil
	default:
		return evalValue{}, fmt.Errorf("eval: unsigned %s", op)
	}
}

func asFloat(v evalValue) float64 {
	switch v.kind {
	case evFloat:
		return v.f
	case evInt:
		return float64(v.i)
	case evUint:
		return float64(v.u)
	default:
		return 0
	}
}

func evalFloatBinary(op ast.BinOp, a, b float64) (evalValue, error) {
	switch op {
	case ast.BinAdd:
		return vFloat(a + b), nil
	case ast.BinSub:
		return vFloat(a - b), nil
	case ast.BinMul:
		return vFloat(a * b), nil
	case ast.BinDiv:
		return vFloat(a / b), nil
	case ast.BinEq:
		return vBool(a == b), nil
	case ast.BinNe:
		return vBool(a != b), nil
	case ast.BinLt:
		return vBool(a < b), nil
	case ast.BinLe:
		return vBool(a <= b), nil
	case ast.BinGt:
		return vBool(a > b), nil
	case ast.BinGe:
		return vBool(a >= b), nil
	default:
		return evalValue{}, fmt.Errorf("eval: float %s", op)
	}
}
