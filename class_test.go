package flotalk

import "testing"

// TestBlockArityMismatchIsError covers P3: sending a Block a value-family
// selector whose arity does not match the Block's own arity answers an
// Error rather than panicking or silently truncating/padding arguments.
func TestBlockArityMismatchIsError(t *testing.T) {
	ctx := newTestContext()
	x := Intern("x")
	tmpl := &BlockTemplate{
		Selector:   InternKeywordSelector("value:"),
		ParamNames: []SymbolID{x},
		Body:       []Instruction{{Op: OpLoadFromSymbol, Symbol: x}},
	}
	block := NewBlockValue(ctx, tmpl, nil, nil)

	wrongArity := InternKeywordSelector("value:", "value:")
	result := runToCompletion(ctx, Send(ctx, block, wrongArity, []Value{NewInt(1), NewInt(2)}))
	if !result.IsError() {
		t.Fatalf("sending mismatched arity selector produced %+v, want an Error", result)
	}
	e, ok := result.TryAsError()
	if !ok || e.Kind != ErrMessageNotSupported {
		t.Fatalf("error kind = %+v, want ErrMessageNotSupported", e)
	}
}

// TestClassIDReuseDeterministic covers P4: two independently created
// Contexts that each create their first cell-block class, in the same
// order, are assigned the same ClassID, since script classes are addressed
// by ID alone when serialized or compared across processes.
func TestClassIDReuseDeterministic(t *testing.T) {
	ResetClassIDPoolForTesting()
	ctx1 := newTestContext()
	object1, _ := ctx1.RootSymbolValue(Intern("Object"))
	subclass := InternUnarySelector("subclass")
	c1 := runToCompletion(ctx1, Send(ctx1, ctx1.CloneValueInContext(object1), subclass, nil))
	ref1, _ := c1.TryAsReference()
	class1 := scriptClassInfoFor(t, ctx1, ref1)

	ResetClassIDPoolForTesting()
	ctx2 := newTestContext()
	object2, _ := ctx2.RootSymbolValue(Intern("Object"))
	c2 := runToCompletion(ctx2, Send(ctx2, ctx2.CloneValueInContext(object2), subclass, nil))
	ref2, _ := c2.TryAsReference()
	class2 := scriptClassInfoFor(t, ctx2, ref2)

	if class1.classID != class2.classID {
		t.Fatalf("class ids diverged across identically-ordered contexts: %v vs %v", class1.classID, class2.classID)
	}

	ctx1.ReleaseValue(c1)
	ctx2.ReleaseValue(c2)
}

// scriptClassInfoFor is a test-only accessor for the scriptClassInfo behind
// a script class Reference, so P4 can compare the cell-block ClassID two
// independently built classes were assigned.
func scriptClassInfoFor(t *testing.T, ctx *Context, ref Reference) *scriptClassInfo {
	t.Helper()
	info := scriptClassAllocatorOf(ctx).get(ref.Handle)
	if info == nil {
		t.Fatal("script class reference had no backing info")
	}
	return info
}
