package flotalk

import "testing"

func TestImportItemFromResolvesAndCaches(t *testing.T) {
	ctx := newTestContext()

	dictClass, _ := ctx.RootSymbolValue(Intern("Dictionary"))
	module := runToCompletion(ctx, Send(ctx, ctx.CloneValueInContext(dictClass), InternUnarySelector("new"), nil))
	runToCompletion(ctx, Send(ctx, ctx.CloneValueInContext(module), InternKeywordSelector("at:put:"), []Value{NewString("foo"), NewInt(99)}))

	calls := 0
	ctx.RegisterImporter(func(ctx *Context, name string) Continuation {
		calls++
		if name != "mymod" {
			return Ready(Nil)
		}
		return Ready(ctx.CloneValueInContext(module))
	}, false)

	importClass, ok := ctx.RootSymbolValue(Intern("Import"))
	if !ok {
		t.Fatal("Import is not bound")
	}
	itemFrom := InternKeywordSelector("item:", "from:")

	got := runToCompletion(ctx, Send(ctx, ctx.CloneValueInContext(importClass), itemFrom, []Value{NewString("foo"), NewString("mymod")}))
	requireInt(t, got, 99)

	got2 := runToCompletion(ctx, Send(ctx, ctx.CloneValueInContext(importClass), itemFrom, []Value{NewString("foo"), NewString("mymod")}))
	requireInt(t, got2, 99)

	if calls != 1 {
		t.Fatalf("resolver called %d times, want 1 (second load should hit the module cache)", calls)
	}

	ctx.ReleaseValue(module)
}

func TestImportHighPriorityResolverTriesFirst(t *testing.T) {
	ctx := newTestContext()

	var order []string
	ctx.RegisterImporter(func(ctx *Context, name string) Continuation {
		order = append(order, "low")
		return Ready(Nil)
	}, false)
	ctx.RegisterImporter(func(ctx *Context, name string) Continuation {
		order = append(order, "high")
		return Ready(Nil)
	}, true)

	importClass, _ := ctx.RootSymbolValue(Intern("Import"))
	itemFrom := InternKeywordSelector("item:", "from:")
	result := runToCompletion(ctx, Send(ctx, ctx.CloneValueInContext(importClass), itemFrom, []Value{NewString("foo"), NewString("nope")}))
	if !result.IsError() {
		t.Fatalf("importing from an unresolvable module = %+v, want an Error", result)
	}

	if len(order) != 2 || order[0] != "high" || order[1] != "low" {
		t.Fatalf("resolver order = %v, want [high low]", order)
	}
}
