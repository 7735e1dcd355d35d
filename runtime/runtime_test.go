package runtime

import (
	"testing"

	"github.com/flotalk/flotalk"
)

func TestRuntimeSendArithmetic(t *testing.T) {
	rt := New(DefaultConfig())
	plus := flotalk.InternSelector(flotalk.Intern("+"))
	result := rt.Send(flotalk.NewInt(38), plus, []flotalk.Value{flotalk.NewInt(4)})
	if result.Kind != flotalk.KindInt || result.Int != 42 {
		t.Fatalf("38 + 4 = %+v, want Int(42)", result)
	}
}

func TestRuntimeRootSymbols(t *testing.T) {
	rt := New(DefaultConfig())
	rt.SetRootSymbolValue("answer", flotalk.NewInt(42))
	v, ok := rt.RootSymbolValue("answer")
	if !ok {
		t.Fatal("answer was not bound")
	}
	if v.Kind != flotalk.KindInt || v.Int != 42 {
		t.Fatalf("answer = %+v, want Int(42)", v)
	}

	if _, ok := rt.RootSymbolValue("nonexistent"); ok {
		t.Fatal("nonexistent should not be bound")
	}
}

func TestRuntimeStreamToAppliesMessagesInOrder(t *testing.T) {
	rt := New(DefaultConfig())

	object, ok := rt.RootSymbolValue("Object")
	if !ok {
		t.Fatal("Object is not bound after New")
	}
	subclassWithVars := flotalk.InternKeywordSelector("subclassWithInstanceVariables:")
	counterClass := rt.Send(object, subclassWithVars, []flotalk.Value{flotalk.NewSelectorValue(flotalk.InternUnarySelector("total"))})
	if counterClass.IsError() {
		t.Fatalf("subclassing Object failed: %+v", counterClass)
	}

	symTotal := flotalk.Intern("total")
	symN := flotalk.Intern("n")
	symSelf := flotalk.Intern("self")
	selAdd := flotalk.InternKeywordSelector("add:")
	selTotal := flotalk.InternUnarySelector("total")
	plus := flotalk.InternSelector(flotalk.Intern("+"))

	var addBlock, totalBlock flotalk.Value
	rt.WithContext(func(ctx *flotalk.Context) {
		addBlock = flotalk.NewBlockValue(ctx, &flotalk.BlockTemplate{
			Selector:   selAdd,
			ParamNames: []flotalk.SymbolID{symN, symSelf},
			Body: []flotalk.Instruction{
				{Op: flotalk.OpLoadFromSymbol, Symbol: symTotal},
				{Op: flotalk.OpLoadFromSymbol, Symbol: symN},
				{Op: flotalk.OpSendMessage, Selector: plus},
				{Op: flotalk.OpStoreAtSymbol, Symbol: symTotal},
			},
		}, nil, nil)
		totalBlock = flotalk.NewBlockValue(ctx, &flotalk.BlockTemplate{
			Selector:   selTotal,
			ParamNames: []flotalk.SymbolID{symSelf},
			Body:       []flotalk.Instruction{{Op: flotalk.OpLoadFromSymbol, Symbol: symTotal}},
		}, nil, nil)
	})

	addInstanceMsg := flotalk.InternKeywordSelector("addInstanceMessage:", "withAction:")
	if r := rt.Send(counterClass, addInstanceMsg, []flotalk.Value{flotalk.NewSelectorValue(selAdd), addBlock}); r.IsError() {
		t.Fatalf("installing add: failed: %+v", r)
	}
	if r := rt.Send(counterClass, addInstanceMsg, []flotalk.Value{flotalk.NewSelectorValue(selTotal), totalBlock}); r.IsError() {
		t.Fatalf("installing total failed: %+v", r)
	}

	newSel := flotalk.InternUnarySelector("new")
	instance := rt.Send(counterClass, newSel, nil)
	if instance.IsError() {
		t.Fatalf("instantiating Counter failed: %+v", instance)
	}
	ref, ok := instance.TryAsReference()
	if !ok {
		t.Fatal("Counter instance was not a Reference")
	}
	rt.WithContext(func(ctx *flotalk.Context) {
		ctx.Heap.SetCellValue(flotalk.Cell{Block: flotalk.BlockID(ref.Handle), Index: 1}, flotalk.NewInt(0))
	})

	in := make(chan *flotalk.Message)
	go func() {
		defer close(in)
		for _, n := range []int64{10, 20, 12} {
			in <- &flotalk.Message{Selector: selAdd, Args: []flotalk.Value{flotalk.NewInt(n)}}
		}
	}()
	rt.StreamTo(instance, in)

	result := rt.Send(instance, selTotal, nil)
	if result.Kind != flotalk.KindInt || result.Int != 42 {
		t.Fatalf("counter total = %+v, want Int(42)", result)
	}
}

func TestRuntimeStreamFromCollectsSentMessages(t *testing.T) {
	rt := New(DefaultConfig())

	x := flotalk.Intern("output")
	selAdd := flotalk.InternKeywordSelector("add:")
	block := flotalk.Value{}
	rt.WithContext(func(ctx *flotalk.Context) {
		block = flotalk.NewBlockValue(ctx, &flotalk.BlockTemplate{
			Selector:   flotalk.InternKeywordSelector("value:"),
			ParamNames: []flotalk.SymbolID{x},
			Body: []flotalk.Instruction{
				{Op: flotalk.OpLoadFromSymbol, Symbol: x},
				{Op: flotalk.OpLoad, Literal: flotalk.NewInt(7)},
				{Op: flotalk.OpSendMessage, Selector: selAdd},
			},
		}, nil, nil)
	})

	out := rt.StreamFrom(block)
	v := <-out
	if v.Kind != flotalk.KindMessage || v.Msg == nil {
		t.Fatalf("streamed value %+v was not a Message", v)
	}
	if v.Msg.Selector != selAdd || len(v.Msg.Args) != 1 || v.Msg.Args[0].Int != 7 {
		t.Fatalf("streamed message %+v did not match the block's send", v.Msg)
	}
}
