package lir

// Runtime entry points the lowered code calls into. The execution
// environment provides these; the validator rejects calls to names it
// does not know.
const (
	runtimeAlloc   = "alloc"
	runtimeRealloc = "realloc"

	runtimeStringToI32 = "string_to_i32"
	runtimeStringToI64 = "string_to_i64"
	runtimeStringToF32 = "string_to_f32"
	runtimeStringToF64 = "string_to_f64"
)

// runtimeCalls maps each runtime entry point to its argument count.
var runtimeCalls = map[string]int{
	runtimeAlloc:       1,
	runtimeRealloc:     2,
	runtimeStringToI32: 1,
	runtimeStringToI64: 1,
	runtimeStringToF32: 1,
	runtimeStringToF64: 1,
}

// KnownRuntimeCall reports whether name is a runtime entry point and,
// if so, how many arguments it takes.
func KnownRuntimeCall(name string) (arity int, ok bool) {
	arity, ok = runtimeCalls[name]
	return arity, ok
}
