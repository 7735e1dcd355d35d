package flotalk

import "testing"

// TestObjectIsBoundAtRootWithNoSuperclass covers that bootstrapObject
// installs Object as a root-bound script class with no superclass, so
// `Object subclass` is the base case of the class hierarchy rather than a
// further-subclassed built-in.
func TestObjectIsBoundAtRootWithNoSuperclass(t *testing.T) {
	ctx := newTestContext()
	object, ok := ctx.RootSymbolValue(Intern("Object"))
	if !ok {
		t.Fatal("Object is not bound at the root namespace")
	}
	ref, ok := object.TryAsReference()
	if !ok {
		t.Fatal("Object is not a Reference")
	}
	info := scriptClassAllocatorOf(ctx).get(ref.Handle)
	if info == nil {
		t.Fatal("Object has no backing scriptClassInfo")
	}
	if info.hasSuper {
		t.Fatal("Object should have no superclass")
	}
}

// TestObjectSubclassInstancesSupportInvertedBroadcastFallback covers that
// every Object-derived instance automatically gets the inverted-broadcast
// NotSupported fallback installed, so it can serve as a sender for Inverted
// listeners without any extra per-class wiring.
func TestObjectSubclassInstancesSupportInvertedBroadcastFallback(t *testing.T) {
	ctx := newTestContext()
	object, _ := ctx.RootSymbolValue(Intern("Object"))
	newSel := InternUnarySelector("new")
	instance := runToCompletion(ctx, Send(ctx, ctx.CloneValueInContext(object), newSel, nil))

	bogus := InternUnarySelector("somethingNobodyUnderstands")
	result := runToCompletion(ctx, Send(ctx, instance, bogus, nil))

	// With no Inverted listener registered, the broadcast fallback still
	// answers Nil rather than surfacing a raw not-understood Error, since
	// the fallback handler itself is what is installed, not a declaration
	// that the selector is supported.
	if !result.IsNil() {
		t.Fatalf("unhandled selector on an Object instance = %+v, want Nil", result)
	}
}

// TestObjectSubclassEqEqIsClassObjectIdentity covers Object's own "==" as
// class-object identity: the same class Reference compares equal to
// itself, and two independently created subclasses compare unequal, per
// DESIGN.md's note on why an instance-level "==" is not installed.
func TestObjectSubclassEqEqIsClassObjectIdentity(t *testing.T) {
	ctx := newTestContext()
	object, _ := ctx.RootSymbolValue(Intern("Object"))
	subclass := InternUnarySelector("subclass")
	eqeq := InternSelector(Intern("=="))

	a := runToCompletion(ctx, Send(ctx, ctx.CloneValueInContext(object), subclass, nil))
	b := runToCompletion(ctx, Send(ctx, ctx.CloneValueInContext(object), subclass, nil))

	selfCompare := runToCompletion(ctx, Send(ctx, ctx.CloneValueInContext(a), eqeq, []Value{ctx.CloneValueInContext(a)}))
	if selfCompare.Kind != KindBool || !selfCompare.Bool {
		t.Fatalf("a == a = %+v, want True", selfCompare)
	}

	crossCompare := runToCompletion(ctx, Send(ctx, ctx.CloneValueInContext(a), eqeq, []Value{ctx.CloneValueInContext(b)}))
	if crossCompare.Kind != KindBool || crossCompare.Bool {
		t.Fatalf("a == b = %+v, want False", crossCompare)
	}

	ctx.ReleaseValue(a)
	ctx.ReleaseValue(b)
}
