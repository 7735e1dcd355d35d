package flotalk

import "testing"

func TestDictionaryAtPutAndAt(t *testing.T) {
	ctx := newTestContext()
	dictClass, ok := ctx.RootSymbolValue(Intern("Dictionary"))
	if !ok {
		t.Fatal("Dictionary is not bound")
	}
	newSel := InternUnarySelector("new")
	dict := runToCompletion(ctx, Send(ctx, ctx.CloneValueInContext(dictClass), newSel, nil))
	if dict.IsError() {
		t.Fatalf("Dictionary new failed: %+v", dict)
	}

	atPut := InternKeywordSelector("at:put:")
	at := InternKeywordSelector("at:")

	runToCompletion(ctx, Send(ctx, ctx.CloneValueInContext(dict), atPut, []Value{NewString("k"), NewInt(1)}))
	got := runToCompletion(ctx, Send(ctx, ctx.CloneValueInContext(dict), at, []Value{NewString("k")}))
	requireInt(t, got, 1)

	// overwriting an existing key replaces the value instead of duplicating it
	runToCompletion(ctx, Send(ctx, ctx.CloneValueInContext(dict), atPut, []Value{NewString("k"), NewInt(2)}))
	got = runToCompletion(ctx, Send(ctx, ctx.CloneValueInContext(dict), at, []Value{NewString("k")}))
	requireInt(t, got, 2)

	size := runToCompletion(ctx, Send(ctx, ctx.CloneValueInContext(dict), InternUnarySelector("size"), nil))
	requireInt(t, size, 1)

	missing := runToCompletion(ctx, Send(ctx, ctx.CloneValueInContext(dict), at, []Value{NewString("nope")}))
	if !missing.IsNil() {
		t.Fatalf("at: on a missing key = %+v, want Nil", missing)
	}

	removed := runToCompletion(ctx, Send(ctx, ctx.CloneValueInContext(dict), InternKeywordSelector("removeKey:"), []Value{NewString("k")}))
	requireInt(t, removed, 2)

	afterRemove := runToCompletion(ctx, Send(ctx, dict, InternUnarySelector("size"), nil))
	requireInt(t, afterRemove, 0)
}

func TestDictionaryKeys(t *testing.T) {
	ctx := newTestContext()
	dictClass, _ := ctx.RootSymbolValue(Intern("Dictionary"))
	dict := runToCompletion(ctx, Send(ctx, ctx.CloneValueInContext(dictClass), InternUnarySelector("new"), nil))

	atPut := InternKeywordSelector("at:put:")
	runToCompletion(ctx, Send(ctx, ctx.CloneValueInContext(dict), atPut, []Value{NewString("a"), NewInt(1)}))
	runToCompletion(ctx, Send(ctx, ctx.CloneValueInContext(dict), atPut, []Value{NewString("b"), NewInt(2)}))

	keys := runToCompletion(ctx, Send(ctx, dict, InternUnarySelector("keys"), nil))
	if keys.Kind != KindArray || len(keys.Arr) != 2 {
		t.Fatalf("keys = %+v, want a 2-element Array", keys)
	}
}
