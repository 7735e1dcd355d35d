package flotalk

import "testing"

// TestDumpAndRestoreRootBlockRoundTrips covers that every primitive root
// slot DumpRootBlock encodes comes back unchanged through RestoreRootBlock
// against a bare (not bootstrapped) Context whose root symbol table was
// populated in the same order. Bare Contexts are used because Bootstrap binds
// Reference values (Object, all, ...) that DumpRootBlock rejects.
func TestDumpAndRestoreRootBlockRoundTrips(t *testing.T) {
	ctx := NewContext()

	answer := Intern("answer")
	pi := Intern("pi")
	name := Intern("name")
	flag := Intern("flag")
	nothing := Intern("nothing")

	ctx.SetRootSymbolValue(answer, NewInt(42))
	ctx.SetRootSymbolValue(pi, NewFloat(3.5))
	ctx.SetRootSymbolValue(name, NewString("flotalk"))
	ctx.SetRootSymbolValue(flag, True)
	ctx.SetRootSymbolValue(nothing, Nil)

	snapshot, err := ctx.DumpRootBlock()
	if err != nil {
		t.Fatalf("DumpRootBlock failed: %v", err)
	}

	ctx2 := NewContext()
	ctx2.SetRootSymbolValue(answer, NewInt(0))
	ctx2.SetRootSymbolValue(pi, NewFloat(0))
	ctx2.SetRootSymbolValue(name, NewString(""))
	ctx2.SetRootSymbolValue(flag, False)
	ctx2.SetRootSymbolValue(nothing, NewInt(7))

	if err := ctx2.RestoreRootBlock(snapshot); err != nil {
		t.Fatalf("RestoreRootBlock failed: %v", err)
	}

	gotAnswer, _ := ctx2.RootSymbolValue(answer)
	requireInt(t, gotAnswer, 42)

	gotPi, _ := ctx2.RootSymbolValue(pi)
	if gotPi.Kind != KindFloat || gotPi.Float != 3.5 {
		t.Fatalf("pi = %+v, want Float(3.5)", gotPi)
	}

	gotName, _ := ctx2.RootSymbolValue(name)
	if gotName.Kind != KindString || gotName.Str != "flotalk" {
		t.Fatalf("name = %+v, want String(flotalk)", gotName)
	}

	gotFlag, _ := ctx2.RootSymbolValue(flag)
	if gotFlag.Kind != KindBool || !gotFlag.Bool {
		t.Fatalf("flag = %+v, want True", gotFlag)
	}

	gotNothing, _ := ctx2.RootSymbolValue(nothing)
	if !gotNothing.IsNil() {
		t.Fatalf("nothing = %+v, want Nil", gotNothing)
	}
}

// TestDumpRootBlockRejectsReferenceValues covers that a root slot holding a
// Reference (whose meaning is scoped to one Context's live class/allocator
// state) is rejected rather than silently dropped or corrupted.
func TestDumpRootBlockRejectsReferenceValues(t *testing.T) {
	ctx := newTestContext()
	object, ok := ctx.RootSymbolValue(Intern("Object"))
	if !ok {
		t.Fatal("Object is not bound")
	}

	weird := Intern("weirdRootSlot")
	ctx.SetRootSymbolValue(weird, ctx.CloneValueInContext(object))

	if _, err := ctx.DumpRootBlock(); err == nil {
		t.Fatal("expected DumpRootBlock to reject a Reference-valued root slot")
	}
}
