package flotalk

import "testing"

// newTestContext returns a freshly bootstrapped Context for a single test.
// Unlike iolang's single shared TestingVM, each flotalk test gets its own
// Context: a Context owns mutable heap/class state that script-class tests
// mutate (new classes, new instance messages), so sharing one across tests
// would make them order-dependent.
func newTestContext() *Context {
	ctx := NewContext()
	Bootstrap(ctx)
	return ctx
}

// runToCompletion drives a continuation to a Ready Value without a
// scheduler, running Soon steps inline and blocking the calling goroutine on
// a Later continuation's Future until it resolves. Tests of the stream
// classes pair it with their own goroutine on the other end of the channel
// (see stdlib_stream_test.go).
func runToCompletion(ctx *Context, c Continuation) Value {
	for {
		if v, ok := c.ReadyValue(); ok {
			return v
		}
		if fn, ok := c.RunSoon(); ok {
			c = fn(ctx)
			continue
		}
		future, _ := c.Awaiting()
		c = future.Wait()
	}
}

// runProgram runs instrs against ctx's real root namespace and returns the
// result.
func runProgram(ctx *Context, instrs []Instruction) Value {
	ev := NewEvaluator(instrs, ctx.RootSymbols, []BlockID{ctx.RootBlock})
	return runToCompletion(ctx, ev.Run(ctx))
}

func requireInt(t *testing.T, v Value, want int64) {
	t.Helper()
	if v.Kind != KindInt || v.Int != want {
		t.Fatalf("got %+v, want Int(%d)", v, want)
	}
}
