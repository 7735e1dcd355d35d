// Package flotalktest provides shared fixtures for testing flotalk
// programs, grounded on iolang's testutils package: a shared test Context,
// a test-case type pairing a program with a pass predicate, and a handful
// of predicate builders for the common comparisons.
//
// flotalk has no in-tree parser (spec.md section 1 draws that seam
// outside the core), so a ProgramTestCase's Program is a flat instruction
// list built directly with the Builder below rather than source text.
package flotalktest

import (
	"sync"
	"testing"

	"github.com/flotalk/flotalk"
)

// testCtx is the Context used by every test that asks for TestingContext.
var (
	testCtx     *flotalk.Context
	testCtxInit sync.Once
)

// TestingContext returns a bootstrapped Context shared by all tests that
// use this package.
func TestingContext() *flotalk.Context {
	testCtxInit.Do(ResetTestingContext)
	return testCtx
}

// ResetTestingContext reinitializes the Context returned by
// TestingContext. It is not safe to call this in parallel tests.
func ResetTestingContext() {
	testCtx = flotalk.NewContext()
	flotalk.Bootstrap(testCtx)
}

// Builder accumulates a flat instruction list for a test program, saving
// scenario tests from spelling out flotalk.Instruction literals by hand.
type Builder struct {
	instrs []flotalk.Instruction
}

// NewBuilder starts an empty instruction builder.
func NewBuilder() *Builder { return &Builder{} }

func (b *Builder) append(i flotalk.Instruction) *Builder {
	b.instrs = append(b.instrs, i)
	return b
}

// LoadNil pushes Nil.
func (b *Builder) LoadNil() *Builder { return b.append(flotalk.Instruction{Op: flotalk.OpLoadNil}) }

// Load pushes the literal v.
func (b *Builder) Load(v flotalk.Value) *Builder {
	return b.append(flotalk.Instruction{Op: flotalk.OpLoad, Literal: v})
}

// LoadSymbol pushes the current value bound to sym.
func (b *Builder) LoadSymbol(sym flotalk.SymbolID) *Builder {
	return b.append(flotalk.Instruction{Op: flotalk.OpLoadFromSymbol, Symbol: sym})
}

// StoreSymbol pops the top of stack and binds it to sym.
func (b *Builder) StoreSymbol(sym flotalk.SymbolID) *Builder {
	return b.append(flotalk.Instruction{Op: flotalk.OpStoreAtSymbol, Symbol: sym})
}

// Duplicate clones the top of stack in place.
func (b *Builder) Duplicate() *Builder { return b.append(flotalk.Instruction{Op: flotalk.OpDuplicate}) }

// Discard releases and pops the top of stack.
func (b *Builder) Discard() *Builder { return b.append(flotalk.Instruction{Op: flotalk.OpDiscard}) }

// PushLocal reserves a fresh local binding for sym.
func (b *Builder) PushLocal(sym flotalk.SymbolID) *Builder {
	return b.append(flotalk.Instruction{Op: flotalk.OpPushLocalBinding, Symbol: sym})
}

// PopLocal retires the local binding for sym.
func (b *Builder) PopLocal(sym flotalk.SymbolID) *Builder {
	return b.append(flotalk.Instruction{Op: flotalk.OpPopLocalBinding, Symbol: sym})
}

// Send pops sel's arguments and receiver off the stack (in that order,
// receiver first) and pushes the result of sending sel.
func (b *Builder) Send(sel flotalk.SelectorID) *Builder {
	return b.append(flotalk.Instruction{Op: flotalk.OpSendMessage, Selector: sel})
}

// LoadBlock pushes a block literal built from tmpl.
func (b *Builder) LoadBlock(tmpl *flotalk.BlockTemplate) *Builder {
	return b.append(flotalk.Instruction{Op: flotalk.OpLoadBlock, Block: tmpl})
}

// Build returns the accumulated instruction list.
func (b *Builder) Build() []flotalk.Instruction {
	return append([]flotalk.Instruction(nil), b.instrs...)
}

// ProgramTestCase is a test case pairing a flat instruction program with a
// predicate over its result, the flotalktest analogue of iolang
// testutils.SourceTestCase.
type ProgramTestCase struct {
	// Program is the instruction list to run against TestingContext's real
	// root namespace.
	Program []flotalk.Instruction
	// Pass reports whether result is the expected outcome. If it returns
	// false, the test fails.
	Pass func(result flotalk.Value) bool
}

// TestFunc returns a test function for the case, running Program against
// TestingContext's root symbol table and root block.
func (c ProgramTestCase) TestFunc() func(*testing.T) {
	return func(t *testing.T) {
		ctx := TestingContext()
		ev := flotalk.NewEvaluator(c.Program, ctx.RootSymbols, []flotalk.BlockID{ctx.RootBlock})
		result := RunToCompletion(ctx, ev)
		if !c.Pass(result) {
			t.Errorf("program produced unexpected result: %+v", result)
		}
	}
}

// RunToCompletion drives ev's continuation to a Ready Value without a
// Scheduler, running Soon steps inline and blocking the calling goroutine on
// a Later continuation's Future until it resolves.
func RunToCompletion(ctx *flotalk.Context, ev *flotalk.Evaluator) flotalk.Value {
	c := ev.Run(ctx)
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

// PassEqual returns a Pass function that checks result.Equal(want).
func PassEqual(want flotalk.Value) func(flotalk.Value) bool {
	return func(result flotalk.Value) bool {
		return result.Equal(want)
	}
}

// PassInt returns a Pass function that checks result is the Int n.
func PassInt(n int64) func(flotalk.Value) bool {
	return PassEqual(flotalk.NewInt(n))
}

// PassError returns a Pass function that checks result is an Error of the
// given kind.
func PassError(kind flotalk.ErrorKind) func(flotalk.Value) bool {
	return func(result flotalk.Value) bool {
		e, ok := result.TryAsError()
		return ok && e.Kind == kind
	}
}

// PassNil returns a Pass function that checks result is Nil.
func PassNil() func(flotalk.Value) bool {
	return func(result flotalk.Value) bool {
		return result.IsNil()
	}
}
