package flotalk

import "testing"

// fixedCompiler is a SourceCompiler stand-in for tests: the real parser is
// out of scope (spec.md section 1), so it maps a fixed set of source
// strings to the instruction lists they would compile to.
type fixedCompiler struct {
	programs map[string][]Instruction
}

func (c *fixedCompiler) Compile(source string) ([]Instruction, error) {
	instrs, ok := c.programs[source]
	if !ok {
		return nil, errNotSupportedSource(source)
	}
	return instrs, nil
}

type errNotSupportedSource string

func (e errNotSupportedSource) Error() string { return "unsupported test source: " + string(e) }

func newArithmeticCompiler() *fixedCompiler {
	plus := InternSelector(Intern("+"))
	return &fixedCompiler{programs: map[string][]Instruction{
		"38 + 4": {
			{Op: OpLoad, Literal: NewInt(38)},
			{Op: OpLoad, Literal: NewInt(4)},
			{Op: OpSendMessage, Selector: plus},
		},
	}}
}

func TestRunSourceCompilesAndRuns(t *testing.T) {
	ctx := newTestContext()
	ctx.Compiler = newArithmeticCompiler()

	result := runToCompletion(ctx, RunSource(ctx, "38 + 4"))
	requireInt(t, result, 42)
}

func TestRunSourceWithoutCompilerIsError(t *testing.T) {
	ctx := newTestContext()
	result := runToCompletion(ctx, RunSource(ctx, "38 + 4"))
	e, ok := result.TryAsError()
	if !ok || e.Kind != ErrNotImplemented {
		t.Fatalf("RunSource with no compiler = %+v, want ErrNotImplemented", result)
	}
}

func TestEvaluateDefineAsBindsIntoPrivateNamespace(t *testing.T) {
	ctx := newTestContext()
	ctx.Compiler = newArithmeticCompiler()

	evalClass, ok := ctx.RootSymbolValue(Intern("Evaluate"))
	if !ok {
		t.Fatal("Evaluate is not bound")
	}
	newEmpty := InternUnarySelector("newEmpty")
	instance := runToCompletion(ctx, Send(ctx, ctx.CloneValueInContext(evalClass), newEmpty, nil))
	if instance.IsError() {
		t.Fatalf("Evaluate newEmpty failed: %+v", instance)
	}

	defineAs := InternKeywordSelector("define:", "as:")
	if r := runToCompletion(ctx, Send(ctx, ctx.CloneValueInContext(instance), defineAs, []Value{NewSymbolValue(Intern("x")), NewInt(42)})); r.IsError() {
		t.Fatalf("define:as: failed: %+v", r)
	}

	x := Intern("x")
	stmt := InternKeywordSelector("statement:")
	fixed := &fixedCompiler{programs: map[string][]Instruction{
		"x": {{Op: OpLoadFromSymbol, Symbol: x}},
	}}
	ctx.Compiler = fixed

	result := runToCompletion(ctx, Send(ctx, instance, stmt, []Value{NewString("x")}))
	requireInt(t, result, 42)
}

func TestEvaluateCreateBlockBuildsACallableBlock(t *testing.T) {
	ctx := newTestContext()
	ctx.Compiler = newArithmeticCompiler()

	evalClass, _ := ctx.RootSymbolValue(Intern("Evaluate"))
	createBlock := InternKeywordSelector("createBlock:")

	result := runToCompletion(ctx, Send(ctx, ctx.CloneValueInContext(evalClass), createBlock, []Value{NewString("38 + 4")}))
	ref, ok := result.TryAsReference()
	if !ok || ref.Class != blockClassID {
		t.Fatalf("createBlock: result = %+v, want a Block", result)
	}

	value := InternUnarySelector("value")
	got := runToCompletion(ctx, Send(ctx, result, value, nil))
	requireInt(t, got, 42)
}
