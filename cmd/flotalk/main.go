// Command flotalk is a small demo host process showing how an embedder
// wires a flotalk runtime.Runtime together: load configuration, bootstrap
// the standard classes, build a script class by hand (this repository has
// no parser, so the "script" below is assembled directly through the
// package's own builder API rather than parsed from source text), and
// drive it through a streaming exchange. It mirrors cmd/io's role in the
// teacher repo: a thin, log/fmt-driven host around the library, not a
// feature of the library itself.
package main

import (
	"flag"
	"log"

	"github.com/flotalk/flotalk"
	"github.com/flotalk/flotalk/runtime"
)

var (
	selSubclassWithVars = flotalk.InternKeywordSelector("subclassWithInstanceVariables:")
	selAddInstanceMsg   = flotalk.InternKeywordSelector("addInstanceMessage:", "withAction:")
	selNew              = flotalk.InternUnarySelector("new")
	selAdd              = flotalk.InternKeywordSelector("add:")
	selTotal            = flotalk.InternUnarySelector("total")
	symTotal            = flotalk.Intern("total")
	symN                = flotalk.Intern("n")
	symSelf             = flotalk.Intern("self")
)

func main() {
	configPath := flag.String("config", "", "path to a YAML runtime config file (optional)")
	flag.Parse()

	cfg := runtime.DefaultConfig()
	if *configPath != "" {
		loaded, err := runtime.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("flotalk: loading config %s: %v", *configPath, err)
		}
		cfg = loaded
		log.Printf("flotalk: loaded config from %s (reader slots %d)", *configPath, cfg.ReaderSlots)
	} else {
		log.Printf("flotalk: using default config (reader slots %d)", cfg.ReaderSlots)
	}

	rt := runtime.New(cfg)
	log.Print("flotalk: runtime bootstrapped with standard classes")

	counterClass := buildCounterClass(rt)
	instance := rt.Send(counterClass, selNew, nil)
	if instance.IsError() {
		e, _ := instance.TryAsError()
		log.Fatalf("flotalk: could not instantiate Counter: %s", e.Kind)
	}
	zeroCounterTotal(rt, instance)

	in := make(chan *flotalk.Message)
	go func() {
		defer close(in)
		for _, n := range []int64{10, 20, 12} {
			in <- &flotalk.Message{Selector: selAdd, Args: []flotalk.Value{flotalk.NewInt(n)}}
		}
	}()

	log.Print("flotalk: streaming add: messages into the counter")
	rt.StreamTo(instance, in)

	result := rt.Send(instance, selTotal, nil)
	if result.IsError() {
		e, _ := result.TryAsError()
		log.Fatalf("flotalk: total failed: %s", e.Kind)
	}
	log.Printf("flotalk: counter total = %d", result.Int)

	log.Print("flotalk: shutting down")
}

// buildCounterClass assembles a script class equivalent to:
//
//	Object subclassWithInstanceVariables: #total.
//	Counter addInstanceMessage: #add: withAction: [:n :self | total := total + n].
//	Counter addInstanceMessage: #total withAction: [:self | total].
//
// using WithContext since building a Block literal requires direct access
// to the Context (there is no source text to compile it from).
func buildCounterClass(rt *runtime.Runtime) flotalk.Value {
	object, ok := rt.RootSymbolValue("Object")
	if !ok {
		log.Fatal("flotalk: Object is not bound; Bootstrap did not run")
	}

	counterClass := rt.Send(object, selSubclassWithVars, []flotalk.Value{flotalk.NewSelectorValue(flotalk.InternUnarySelector("total"))})
	if counterClass.IsError() {
		e, _ := counterClass.TryAsError()
		log.Fatalf("flotalk: subclassing Object failed: %s", e.Kind)
	}

	var addBlock, totalBlock flotalk.Value
	rt.WithContext(func(ctx *flotalk.Context) {
		addBlock = flotalk.NewBlockValue(ctx, &flotalk.BlockTemplate{
			Selector:   selAdd,
			ParamNames: []flotalk.SymbolID{symN, symSelf},
			Body: []flotalk.Instruction{
				{Op: flotalk.OpLoadFromSymbol, Symbol: symTotal},
				{Op: flotalk.OpLoadFromSymbol, Symbol: symN},
				{Op: flotalk.OpSendMessage, Selector: flotalk.InternSelector(flotalk.Intern("+"))},
				{Op: flotalk.OpStoreAtSymbol, Symbol: symTotal},
			},
		}, nil, nil)

		totalBlock = flotalk.NewBlockValue(ctx, &flotalk.BlockTemplate{
			Selector:   selTotal,
			ParamNames: []flotalk.SymbolID{symSelf},
			Body: []flotalk.Instruction{
				{Op: flotalk.OpLoadFromSymbol, Symbol: symTotal},
			},
		}, nil, nil)
	})

	if r := rt.Send(counterClass, selAddInstanceMsg, []flotalk.Value{flotalk.NewSelectorValue(selAdd), addBlock}); r.IsError() {
		e, _ := r.TryAsError()
		log.Fatalf("flotalk: installing add: failed: %s", e.Kind)
	}
	if r := rt.Send(counterClass, selAddInstanceMsg, []flotalk.Value{flotalk.NewSelectorValue(selTotal), totalBlock}); r.IsError() {
		e, _ := r.TryAsError()
		log.Fatalf("flotalk: installing total failed: %s", e.Kind)
	}

	return counterClass
}

// counterTotalIndex is the instance-variable cell index "total" occupies
// in a Counter instance: index 0 is always the reserved superclass
// back-reference a subclass of Object carries, so the single
// subclassWithInstanceVariables: name follows at index 1.
const counterTotalIndex = 1

// zeroCounterTotal seeds a freshly instantiated Counter's total slot with
// 0 instead of its default Nil, since this repository has no per-instance
// initializer message; it reaches directly into the Context because there
// is no script-level way to express a constructor.
func zeroCounterTotal(rt *runtime.Runtime, instance flotalk.Value) {
	ref, ok := instance.TryAsReference()
	if !ok {
		log.Fatal("flotalk: Counter instance was not a Reference")
	}
	rt.WithContext(func(ctx *flotalk.Context) {
		cell := flotalk.Cell{Block: flotalk.BlockID(ref.Handle), Index: counterTotalIndex}
		ctx.Heap.SetCellValue(cell, flotalk.NewInt(0))
	})
}
