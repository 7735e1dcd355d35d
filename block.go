package flotalk

import (
	"sync"
	"sync/atomic"
)

// blockData is the immutable-after-creation payload of a Block: the
// signature it was compiled to respond to, the symbol table chain and
// captured cell-block frames it closes over, and its instruction body, per
// spec.md section 3.7.
type blockData struct {
	arity      int
	paramNames []SymbolID
	body       []Instruction
	parent     *SymbolTable
	frames     []BlockID // captured frames only; each invocation prepends a fresh argument frame
}

type blockEntry struct {
	data     *blockData
	refcount int32
}

// blockAllocator backs one Context's Block instances: a Go map from handle
// to blockEntry, refcounted independently of the cell-block heap since a
// Block is not itself cell-block-backed (spec.md section 3.7 distinguishes
// a block's own identity from the frames it merely captures).
type blockAllocator struct {
	mu     sync.Mutex
	next   uint64
	blocks map[DataHandle]*blockEntry
}

func newBlockAllocator() *blockAllocator {
	return &blockAllocator{blocks: make(map[DataHandle]*blockEntry)}
}

func (a *blockAllocator) create(data *blockData) DataHandle {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next++
	h := DataHandle(a.next)
	a.blocks[h] = &blockEntry{data: data, refcount: 1}
	return h
}

func (a *blockAllocator) get(h DataHandle) *blockData {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.blocks[h]
	if !ok {
		return nil
	}
	return e.data
}

// addInt32 atomically adds delta to *addr and returns the new value. It
// exists so the several small allocators in this package (block, script
// class, dictionary, evaluate) share one atomic-add spelling instead of each
// repeating atomic.AddInt32's signature inline.
func addInt32(addr *int32, delta int32) int32 {
	return atomic.AddInt32(addr, delta)
}

func (a *blockAllocator) AddReference(ctx *Context, h DataHandle) {
	a.mu.Lock()
	e, ok := a.blocks[h]
	a.mu.Unlock()
	if !ok {
		panic("flotalk: AddReference on unknown block handle")
	}
	if n := addInt32(&e.refcount, 1); n <= 1 {
		panic("flotalk: retain on a block value with non-positive refcount")
	}
}

func (a *blockAllocator) RemoveReference(ctx *Context, h DataHandle) {
	a.mu.Lock()
	e, ok := a.blocks[h]
	a.mu.Unlock()
	if !ok {
		panic("flotalk: RemoveReference on unknown block handle")
	}
	if n := addInt32(&e.refcount, -1); n > 0 {
		return
	}
	a.mu.Lock()
	delete(a.blocks, h)
	a.mu.Unlock()
	for _, b := range e.data.frames {
		ctx.Heap.Release(ctx, b)
	}
}

// blockClassID is the single built-in, non-cell-block-backed class every
// Block value belongs to, regardless of its arity. Its instance dispatch
// table is installed once per Context with a handler for every value /
// value: / value:value: ... selector up to maxBlockArity, per spec.md
// section 4.7: the handler itself checks the invoked selector's arity
// against the Block's own, since a shared class-wide table cannot hold a
// different entry for each instance's expected signature.
var blockClassID ClassID

func init() {
	blockClassID = RegisterClass(&ClassCallbacks{
		Name: "Block",
		CreateInContext: func(ctx *Context) *classState {
			alloc := newBlockAllocator()
			instance := NewDispatchTable()
			for arity := 0; arity <= maxBlockArity; arity++ {
				sel := blockValueSelectors[arity]
				instance.Install(sel, blockValueHandler)
			}
			return &classState{allocator: alloc, instance: instance, class: NewDispatchTable()}
		},
	})
}

const maxBlockArity = 8

// blockValueSelectors[n] is the interned "value", "value:", "value:value:",
// ... selector for n arguments.
var blockValueSelectors = func() [maxBlockArity + 1]SelectorID {
	var sels [maxBlockArity + 1]SelectorID
	sels[0] = InternUnarySelector("value")
	segs := make([]string, 0, maxBlockArity)
	for n := 1; n <= maxBlockArity; n++ {
		segs = append(segs, "value:")
		sels[n] = InternKeywordSelector(segs...)
	}
	return sels
}()

// blockValueHandler invokes a Block's body with args bound to its
// parameters in a fresh argument frame, closing over its captured frames.
func blockValueHandler(ctx *Context, handle DataHandle, sel SelectorID, args []Value) Continuation {
	alloc := ctx.Allocator(blockClassID).(*blockAllocator)
	data := alloc.get(handle)
	if data == nil || len(args) != data.arity {
		return Ready(NewMessageNotSupported(sel))
	}

	argFrame := ctx.Heap.Allocate(data.arity)
	for i, v := range args {
		ctx.Heap.SetCellValue(Cell{Block: argFrame, Index: i}, v)
	}

	symtab := NewSymbolTable(data.parent)
	for _, name := range data.paramNames {
		symtab.Define(name)
	}

	frames := make([]BlockID, 0, 1+len(data.frames))
	frames = append(frames, argFrame)
	frames = append(frames, data.frames...)

	ev := NewEvaluator(data.body, symtab, frames)
	return ev.Run(ctx).AndThen(func(v Value) Continuation {
		ctx.Heap.Release(ctx, argFrame)
		return Ready(v)
	})
}

// blockDataOf returns the blockData backing v if v is a Block Reference in
// ctx, used by the script-class machinery to validate a withAction: block
// argument before installing it as a method (see scriptclass.go).
func blockDataOf(ctx *Context, v Value) (*blockData, bool) {
	ref, ok := v.TryAsReference()
	if !ok || ref.Class != blockClassID {
		return nil, false
	}
	alloc := ctx.Allocator(blockClassID).(*blockAllocator)
	data := alloc.get(ref.Handle)
	return data, data != nil
}

// NewBlockValue creates a Block Value from tmpl, closing over parentSymtab
// and the already-retained capturedFrames (callers include
// Evaluator.makeBlock and stdlib_evaluate.go's top-level block compilation).
func NewBlockValue(ctx *Context, tmpl *BlockTemplate, parentSymtab *SymbolTable, capturedFrames []BlockID) Value {
	data := &blockData{
		arity:      len(tmpl.ParamNames),
		paramNames: tmpl.ParamNames,
		body:       tmpl.Body,
		parent:     parentSymtab,
		frames:     capturedFrames,
	}
	alloc := ctx.Allocator(blockClassID).(*blockAllocator)
	h := alloc.create(data)
	return NewReferenceValue(Reference{Class: blockClassID, Handle: h})
}
