package flotalk

import "sync"

// SourceCompiler turns source text into a flat instruction list, the seam
// the distilled spec draws between the core evaluator and the
// out-of-scope parser (spec.md section 1, section 6). A host embedding
// flotalk supplies one; this package's own tests and demo programs build
// Instruction slices directly and never need a compiler at all.
type SourceCompiler interface {
	Compile(source string) ([]Instruction, error)
}

// evaluateData is the per-instance storage for an Evaluate object: its own
// private root cell block and symbol table, so that `define:as:` bindings
// made on one Evaluate instance do not leak into the Context's real root
// namespace, per original_source's evaluate_class.rs.
type evaluateData struct {
	rootBlock BlockID
	symtab    *SymbolTable
}

type evaluateEntry struct {
	data     *evaluateData
	refcount int32
}

type evaluateAllocator struct {
	mu      sync.Mutex
	next    uint64
	entries map[DataHandle]*evaluateEntry
}

func newEvaluateAllocator() *evaluateAllocator {
	return &evaluateAllocator{entries: make(map[DataHandle]*evaluateEntry)}
}

func (a *evaluateAllocator) create(data *evaluateData) DataHandle {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next++
	h := DataHandle(a.next)
	a.entries[h] = &evaluateEntry{data: data, refcount: 1}
	return h
}

func (a *evaluateAllocator) get(h DataHandle) *evaluateData {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entries[h]
	if !ok {
		return nil
	}
	return e.data
}

func (a *evaluateAllocator) AddReference(ctx *Context, h DataHandle) {
	a.mu.Lock()
	e, ok := a.entries[h]
	a.mu.Unlock()
	if !ok {
		panic("flotalk: AddReference on unknown Evaluate handle")
	}
	addInt32(&e.refcount, 1)
}

func (a *evaluateAllocator) RemoveReference(ctx *Context, h DataHandle) {
	a.mu.Lock()
	e, ok := a.entries[h]
	a.mu.Unlock()
	if !ok {
		panic("flotalk: RemoveReference on unknown Evaluate handle")
	}
	if addInt32(&e.refcount, -1) > 0 {
		return
	}
	a.mu.Lock()
	delete(a.entries, h)
	a.mu.Unlock()
	ctx.Heap.Release(ctx, e.data.rootBlock)
}

var (
	selStatement    = InternKeywordSelector("statement:")
	selCreateBlock  = InternKeywordSelector("createBlock:")
	selNewEmpty     = InternUnarySelector("newEmpty")
	selDefineAs     = InternKeywordSelector("define:", "as:")
)

// evaluateClassID is the built-in Evaluate class, per spec.md section 7.
// `statement:` runs source text to completion against the Context's real
// root namespace; `createBlock:` returns Continuation::Later, since
// compiling is async (spec.md section 5), as do the stream classes' handlers
// in stdlib_stream.go; `new`/`newEmpty` mint an Evaluate instance with its
// own private namespace.
var evaluateClassID ClassID

func init() {
	evaluateClassID = RegisterClass(&ClassCallbacks{
		Name: "Evaluate",
		CreateInContext: func(ctx *Context) *classState {
			alloc := newEvaluateAllocator()
			instance := NewDispatchTable()
			instance.Install(selDefineAs, evaluateDefineAsHandler)
			instance.Install(selStatement, evaluateInstanceStatementHandler)
			class := NewDispatchTable()
			class.Install(selStatement, evaluateStatementHandler)
			class.Install(selCreateBlock, evaluateCreateBlockHandler)
			class.Install(selNew, evaluateNewHandler(true))
			class.Install(selNewEmpty, evaluateNewHandler(false))
			return &classState{allocator: alloc, instance: instance, class: class}
		},
	})
}

func evaluateNewHandler(copyRoot bool) Handler {
	return func(ctx *Context, handle DataHandle, sel SelectorID, args []Value) Continuation {
		var symtab *SymbolTable
		var block BlockID
		if copyRoot {
			symtab = ctx.RootSymbols.cloneWithParent(nil)
			n := ctx.Heap.Len(ctx.RootBlock)
			block = ctx.Heap.Allocate(n)
			for i := 0; i < n; i++ {
				v := ctx.Heap.CellValue(Cell{Block: ctx.RootBlock, Index: i})
				ctx.Heap.SetCellValue(Cell{Block: block, Index: i}, ctx.CloneValueInContext(v))
			}
		} else {
			symtab = NewSymbolTable(nil)
			block = ctx.Heap.Allocate(0)
		}
		alloc := ctx.Allocator(evaluateClassID).(*evaluateAllocator)
		h := alloc.create(&evaluateData{rootBlock: block, symtab: symtab})
		return Ready(NewReferenceValue(Reference{Class: evaluateClassID, Handle: h}))
	}
}

func evaluateDefineAsHandler(ctx *Context, handle DataHandle, sel SelectorID, args []Value) Continuation {
	if len(args) != 2 {
		return Ready(NewMessageNotSupported(sel))
	}
	if args[0].Kind != KindSymbol {
		ctx.ReleaseValue(args[0])
		ctx.ReleaseValue(args[1])
		return Ready(NewErrorValue(&ErrorValue{Kind: ErrNotASymbol}))
	}
	d := ctx.Allocator(evaluateClassID).(*evaluateAllocator).get(handle)
	idx := d.symtab.Define(args[0].Sym)
	n := ctx.Heap.Len(d.rootBlock)
	if idx >= n {
		ctx.Heap.Resize(ctx, d.rootBlock, idx+1)
	}
	cell := Cell{Block: d.rootBlock, Index: idx}
	ctx.ReleaseValue(ctx.Heap.CellValue(cell))
	ctx.Heap.SetCellValue(cell, args[1])
	return Ready(Nil)
}

func evaluateInstanceStatementHandler(ctx *Context, handle DataHandle, sel SelectorID, args []Value) Continuation {
	if len(args) != 1 {
		return Ready(NewMessageNotSupported(sel))
	}
	text, ok := args[0].TryAsString()
	if !ok {
		return Ready(NewErrorValue(&ErrorValue{Kind: ErrNotAString}))
	}
	d := ctx.Allocator(evaluateClassID).(*evaluateAllocator).get(handle)
	return compileAndRun(ctx, text, d.symtab, []BlockID{d.rootBlock})
}

func evaluateStatementHandler(ctx *Context, handle DataHandle, sel SelectorID, args []Value) Continuation {
	if len(args) != 1 {
		return Ready(NewMessageNotSupported(sel))
	}
	text, ok := args[0].TryAsString()
	if !ok {
		return Ready(NewErrorValue(&ErrorValue{Kind: ErrNotAString}))
	}
	return compileAndRun(ctx, text, ctx.RootSymbols, []BlockID{ctx.RootBlock})
}

func evaluateCreateBlockHandler(ctx *Context, handle DataHandle, sel SelectorID, args []Value) Continuation {
	if len(args) != 1 {
		return Ready(NewMessageNotSupported(sel))
	}
	text, ok := args[0].TryAsString()
	if !ok {
		return Ready(NewErrorValue(&ErrorValue{Kind: ErrNotAString}))
	}
	future := NewFuture()
	// ctx.Compiler is read here with no scheduler lock held; a concurrent
	// runtime.Runtime.SetCompiler (which writes it under sched.Write) races
	// with this read.
	go func() {
		if ctx.Compiler == nil {
			future.Resolve(Ready(NewErrorValue(&ErrorValue{Kind: ErrNotImplemented, Text: "no SourceCompiler configured"})))
			return
		}
		instrs, err := ctx.Compiler.Compile(text)
		if err != nil {
			future.Resolve(Ready(NewErrorValue(&ErrorValue{Kind: ErrNotImplemented, Text: err.Error()})))
			return
		}
		future.Resolve(Soon(func(ctx *Context) Continuation {
			ctx.Heap.Retain(ctx.RootBlock)
			tmpl := &BlockTemplate{Selector: blockValueSelectors[0], Body: instrs}
			return Ready(NewBlockValue(ctx, tmpl, ctx.RootSymbols, []BlockID{ctx.RootBlock}))
		}))
	}()
	return Later(future)
}

// RunSource compiles source against ctx.Compiler and runs it to completion
// against ctx's real root namespace, the operation behind the runtime
// package's Runtime.Run (spec.md section 4.9's "run(source) ->
// Future<Value>").
func RunSource(ctx *Context, source string) Continuation {
	return compileAndRun(ctx, source, ctx.RootSymbols, []BlockID{ctx.RootBlock})
}

// compileAndRun compiles text against ctx.Compiler and runs the resulting
// instructions immediately with symtab/frames as the top-level scope.
func compileAndRun(ctx *Context, text string, symtab *SymbolTable, frames []BlockID) Continuation {
	if ctx.Compiler == nil {
		return Ready(NewErrorValue(&ErrorValue{Kind: ErrNotImplemented, Text: "no SourceCompiler configured"}))
	}
	instrs, err := ctx.Compiler.Compile(text)
	if err != nil {
		return Ready(NewErrorValue(&ErrorValue{Kind: ErrNotImplemented, Text: err.Error()}))
	}
	ev := NewEvaluator(instrs, symtab, frames)
	return ev.Run(ctx)
}
