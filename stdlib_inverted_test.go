package flotalk

import "testing"

// TestInvertedDirectSelectorInvokesActionImmediately covers the
// "invertedFrom:"-suffixed direct-call form: sending it runs the installed
// action with the message's own arguments plus the explicit sender and
// self, returning the action's own result (unlike a broadcast, which always
// answers Nil).
func TestInvertedDirectSelectorInvokesActionImmediately(t *testing.T) {
	ctx := newTestContext()

	invertedRoot, ok := ctx.RootSymbolValue(Intern("Inverted"))
	if !ok {
		t.Fatal("Inverted is not bound")
	}
	subclass := InternUnarySelector("subclass")
	targetClass := runToCompletion(ctx, Send(ctx, ctx.CloneValueInContext(invertedRoot), subclass, nil))
	if targetClass.IsError() {
		t.Fatalf("Inverted subclass failed: %+v", targetClass)
	}

	bump := InternKeywordSelector("bump:")
	n, sender, self := Intern("n"), Intern("sender"), Intern("self")
	actionBlock := NewBlockValue(ctx, &BlockTemplate{
		Selector:   bump,
		ParamNames: []SymbolID{n, sender, self},
		Body: []Instruction{
			{Op: OpLoadFromSymbol, Symbol: n},
			{Op: OpLoad, Literal: NewInt(1)},
			{Op: OpSendMessage, Selector: InternSelector(Intern("+"))},
		},
	}, nil, nil)

	addInverted := InternKeywordSelector("addInvertedMessage:", "withAction:")
	if r := runToCompletion(ctx, Send(ctx, ctx.CloneValueInContext(targetClass), addInverted, []Value{NewSelectorValue(bump), actionBlock})); r.IsError() {
		t.Fatalf("installing bump: action failed: %+v", r)
	}

	newSel := InternUnarySelector("new")
	target := runToCompletion(ctx, Send(ctx, ctx.CloneValueInContext(targetClass), newSel, nil))
	targetRef, ok := target.TryAsReference()
	if !ok {
		t.Fatal("target instance was not a Reference")
	}

	object, _ := ctx.RootSymbolValue(Intern("Object"))
	senderInst := runToCompletion(ctx, Send(ctx, ctx.CloneValueInContext(object), newSel, nil))

	direct := invertedDirectSelector(bump)
	result := runToCompletion(ctx, Send(ctx, target, direct, []Value{NewInt(41), senderInst}))
	_ = targetRef
	requireInt(t, result, 42)
}

// TestInvertedBroadcastReachesRegisteredListener covers the broadcast path:
// a message an Object instance does not understand is offered to every
// Inverted listener registered for that specific sender, and the broadcast
// itself always answers Nil even though the listener's action ran.
func TestInvertedBroadcastReachesRegisteredListener(t *testing.T) {
	ctx := newTestContext()

	invertedRoot, _ := ctx.RootSymbolValue(Intern("Inverted"))
	subclass := InternUnarySelector("subclass")
	newSel := InternUnarySelector("new")
	targetClass := runToCompletion(ctx, Send(ctx, ctx.CloneValueInContext(invertedRoot), subclass, nil))

	recordFrame := ctx.Heap.Allocate(1)
	recordSym := Intern(" record ")
	recordTable := NewSymbolTable(nil)
	recordTable.Define(recordSym)

	bump := InternKeywordSelector("bump:")
	n, sender, self := Intern("n"), Intern("sender"), Intern("self")
	actionBlock := NewBlockValue(ctx, &BlockTemplate{
		Selector:   bump,
		ParamNames: []SymbolID{n, sender, self},
		Body: []Instruction{
			{Op: OpLoadFromSymbol, Symbol: n},
			{Op: OpStoreAtSymbol, Symbol: recordSym},
		},
	}, recordTable, []BlockID{recordFrame})

	addInverted := InternKeywordSelector("addInvertedMessage:", "withAction:")
	if r := runToCompletion(ctx, Send(ctx, ctx.CloneValueInContext(targetClass), addInverted, []Value{NewSelectorValue(bump), actionBlock})); r.IsError() {
		t.Fatalf("installing bump: action failed: %+v", r)
	}
	target := runToCompletion(ctx, Send(ctx, ctx.CloneValueInContext(targetClass), newSel, nil))

	object, _ := ctx.RootSymbolValue(Intern("Object"))
	sender1 := runToCompletion(ctx, Send(ctx, ctx.CloneValueInContext(object), newSel, nil))

	receiveFrom := InternKeywordSelector("receiveFrom:")
	if r := runToCompletion(ctx, Send(ctx, ctx.CloneValueInContext(target), receiveFrom, []Value{ctx.CloneValueInContext(sender1)})); r.IsError() {
		t.Fatalf("receiveFrom: failed: %+v", r)
	}

	result := runToCompletion(ctx, Send(ctx, sender1, bump, []Value{NewInt(41)}))
	if !result.IsNil() {
		t.Fatalf("broadcast result = %+v, want Nil", result)
	}

	recorded := ctx.Heap.CellValue(Cell{Block: recordFrame, Index: 0})
	requireInt(t, recorded, 41)
}
