package flotalk

import "sync"

// SymbolTable maps symbols to (frame-depth, cell-index) pairs and chains to
// an optional parent, per spec.md section 3.6. Frame 0 is the table's own
// frame; looking a symbol up through a parent increments the depth.
type SymbolTable struct {
	parent *SymbolTable
	slots  map[SymbolID]int
	order  []SymbolID // insertion order, so cell indices are stable
}

// NewSymbolTable creates a table with the given parent (nil for a root
// table).
func NewSymbolTable(parent *SymbolTable) *SymbolTable {
	return &SymbolTable{parent: parent, slots: make(map[SymbolID]int)}
}

// Parent returns the table's parent, or nil if it is a root table.
func (t *SymbolTable) Parent() *SymbolTable { return t.parent }

// Define reserves a cell index for sym in this table's own frame if it does
// not already have one, and returns that index.
func (t *SymbolTable) Define(sym SymbolID) int {
	if idx, ok := t.slots[sym]; ok {
		return idx
	}
	idx := len(t.order)
	t.slots[sym] = idx
	t.order = append(t.order, sym)
	return idx
}

// Undefine removes sym from this table's own frame. Cell indices of other
// symbols are left unchanged; the slot itself becomes unreachable by name
// but remains allocated in the backing cell block. Define never reuses it:
// a later Define always takes the next index after every slot ever defined
// (PushLocalBinding/PopLocalBinding, see eval.go, never reclaim slot
// numbers mid-frame).
func (t *SymbolTable) Undefine(sym SymbolID) {
	delete(t.slots, sym)
}

// localIndex returns the cell index sym is bound to in t's own frame,
// without walking to a parent table.
func (t *SymbolTable) localIndex(sym SymbolID) (index int, ok bool) {
	idx, ok := t.slots[sym]
	return idx, ok
}

// Lookup walks the table chain starting at t, returning the frame depth
// (0 = t itself) and cell index of sym, per spec.md section 3.6.
func (t *SymbolTable) Lookup(sym SymbolID) (depth, index int, ok bool) {
	depth = 0
	for table := t; table != nil; table, depth = table.parent, depth+1 {
		if idx, found := table.slots[sym]; found {
			return depth, idx, true
		}
	}
	return 0, 0, false
}

// Context is the per-runtime state holder owning the cell-block heap, the
// realized per-class allocator/dispatch state, and the root symbol table
// and root cell block, per spec.md section 4.6. Contexts are single-thread-
// owned; concurrency is handled by the runtime scheduler, not here.
type Context struct {
	Heap *Heap

	mu      sync.Mutex
	classes map[ClassID]*classState

	RootSymbols *SymbolTable
	RootBlock   BlockID

	scriptClasses map[ClassID]*scriptClassInfo

	imports *importState

	invertedListeners *invertedRegistry
	invertedClasses   map[ClassID]*invertedClassInfo

	primMu     sync.Mutex
	primitives map[Kind]*PrimitiveTable

	// Compiler turns source text into instructions for the Evaluate
	// standard class (see stdlib_evaluate.go). A parser is out of scope for
	// this module; a host embedding flotalk supplies one.
	Compiler SourceCompiler
}

// NewContext creates an empty Context: an empty heap, a root symbol table,
// and a zero-length root cell block (see SetRootSymbolValue's growth
// behavior for why zero length is a meaningful starting point).
func NewContext() *Context {
	h := NewHeap()
	ctx := &Context{
		Heap:          h,
		classes:       make(map[ClassID]*classState),
		RootSymbols:   NewSymbolTable(nil),
		scriptClasses: make(map[ClassID]*scriptClassInfo),
	}
	ctx.RootBlock = h.Allocate(0)
	return ctx
}

// classStateFor realizes (creating on first use) the classState for id.
func (ctx *Context) classStateFor(id ClassID) *classState {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if cs, ok := ctx.classes[id]; ok {
		return cs
	}
	cb := globalClasses.get(id)
	if cb == nil || cb.CreateInContext == nil {
		panic("flotalk: unregistered class")
	}
	cs := cb.CreateInContext(ctx)
	ctx.classes[id] = cs
	return cs
}

// InstanceDispatch returns the instance dispatch table for id, realizing
// the class's per-Context state if this is the first reference to it here.
func (ctx *Context) InstanceDispatch(id ClassID) *DispatchTable {
	return ctx.classStateFor(id).instance
}

// ClassDispatch returns the class-side dispatch table for id.
func (ctx *Context) ClassDispatch(id ClassID) *DispatchTable {
	return ctx.classStateFor(id).class
}

// Allocator returns the realized allocator for id, or nil for a cell-block-
// backed class (whose handles are BlockIDs managed directly by ctx.Heap).
func (ctx *Context) Allocator(id ClassID) Allocator {
	return ctx.classStateFor(id).allocator
}

// NewEmptyCellBlockClass hands back a fresh cell-block class whose dispatch
// tables start empty, the operation a script uses when it creates a new
// class (spec.md section 4.6: "empty_cell_block_class").
func (ctx *Context) NewEmptyCellBlockClass() ClassID {
	id := NewCellBlockClass(func(*Context) *classState {
		return &classState{instance: NewDispatchTable(), class: NewDispatchTable()}
	})
	ctx.classStateFor(id)
	return id
}

// scriptClassOf returns the registered scriptClassInfo for id, if any.
func (ctx *Context) scriptClassOf(id ClassID) (*scriptClassInfo, bool) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	info, ok := ctx.scriptClasses[id]
	return info, ok
}

// registerScriptClass records the scriptClassInfo backing a script class's
// ClassID so that the class-message and not-supported-fallback chains can
// walk up through its superclass.
func (ctx *Context) registerScriptClass(id ClassID, info *scriptClassInfo) {
	ctx.mu.Lock()
	ctx.scriptClasses[id] = info
	ctx.mu.Unlock()
}

// forgetCellBlockClass evicts every per-Context cache keyed by id once its
// scriptClassInfo has been destroyed and id returned to the recyclable
// pool (class.go's RetireCellBlockClass), so that a later class created at
// the same reused id does not inherit this one's dispatch tables or
// Inverted action map.
func (ctx *Context) forgetCellBlockClass(id ClassID) {
	ctx.mu.Lock()
	delete(ctx.classes, id)
	delete(ctx.scriptClasses, id)
	delete(ctx.invertedClasses, id)
	ctx.mu.Unlock()
}

// AddReference runs the add-reference hook for ref's class: for a cell-
// block-backed class this retains the underlying block; for a built-in
// class it defers to the class's allocator.
func (ctx *Context) AddReference(ref Reference) {
	cb := globalClasses.get(ref.Class)
	if cb != nil && cb.CellBlockBacked {
		ctx.Heap.Retain(BlockID(ref.Handle))
		return
	}
	if a := ctx.Allocator(ref.Class); a != nil {
		a.AddReference(ctx, ref.Handle)
	}
}

// RemoveReference runs the remove-reference hook for ref's class.
func (ctx *Context) RemoveReference(ref Reference) {
	cb := globalClasses.get(ref.Class)
	if cb != nil && cb.CellBlockBacked {
		ctx.Heap.Release(ctx, BlockID(ref.Handle))
		return
	}
	if a := ctx.Allocator(ref.Class); a != nil {
		a.RemoveReference(ctx, ref.Handle)
	}
}

// CloneValueInContext deep-retains v: it increments the refcounts of any
// references reachable from v, recursing into arrays and messages, per
// spec.md section 4.2.
func (ctx *Context) CloneValueInContext(v Value) Value {
	switch v.Kind {
	case KindReference:
		ctx.AddReference(v.Ref)
		return v
	case KindArray:
		out := make([]Value, len(v.Arr))
		for i, item := range v.Arr {
			out[i] = ctx.CloneValueInContext(item)
		}
		return NewArray(out)
	case KindMessage:
		if v.Msg == nil {
			return v
		}
		args := make([]Value, len(v.Msg.Args))
		for i, a := range v.Msg.Args {
			args[i] = ctx.CloneValueInContext(a)
		}
		return NewMessageValue(&Message{Selector: v.Msg.Selector, Args: args})
	default:
		return v
	}
}

// ReleaseValue is the inverse of CloneValueInContext: it releases every
// reference reachable from v.
func (ctx *Context) ReleaseValue(v Value) {
	switch v.Kind {
	case KindReference:
		ctx.RemoveReference(v.Ref)
	case KindArray:
		ctx.ReleaseValues(v.Arr)
	case KindMessage:
		if v.Msg != nil {
			ctx.ReleaseValues(v.Msg.Args)
		}
	}
}

// ReleaseValues releases every Value in vs, per spec.md section 4.6's
// "release_values" bulk operation.
func (ctx *Context) ReleaseValues(vs []Value) {
	for _, v := range vs {
		ctx.ReleaseValue(v)
	}
}

// ReleaseReferences releases every Reference in refs, per spec.md section
// 4.6's "release_references" bulk operation.
func (ctx *Context) ReleaseReferences(refs []Reference) {
	for _, r := range refs {
		ctx.RemoveReference(r)
	}
}

// rootGrowthStart is the initial size SetRootSymbolValue grows the root
// block to from empty, per spec.md section 9: this constant, and the
// doubling scheme built on it, is preserved verbatim from the original
// implementation and must not be "fixed" into something cleaner.
const rootGrowthStart = 128

// SetRootSymbolValue interns (or reuses) sym in the root symbol table,
// grows the root block by doubling if the assigned slot is out of range,
// releases the slot's old contents, and installs v, per spec.md section
// 4.6. The doubling sequence special-cases a zero-length root block by
// growing straight to rootGrowthStart instead of doubling zero forever.
func (ctx *Context) SetRootSymbolValue(sym SymbolID, v Value) {
	idx := ctx.RootSymbols.Define(sym)
	n := ctx.Heap.Len(ctx.RootBlock)
	if idx >= n {
		newN := n
		if newN == 0 {
			newN = rootGrowthStart
		}
		for idx >= newN {
			newN *= 2
		}
		ctx.Heap.Resize(ctx, ctx.RootBlock, newN)
	}
	cell := Cell{Block: ctx.RootBlock, Index: idx}
	old := ctx.Heap.CellValue(cell)
	ctx.ReleaseValue(old)
	ctx.Heap.SetCellValue(cell, v)
}

// RootSymbolValue reads the current value bound to sym in the root symbol
// table, returning Nil and false if it is unbound.
func (ctx *Context) RootSymbolValue(sym SymbolID) (Value, bool) {
	_, idx, ok := ctx.RootSymbols.Lookup(sym)
	if !ok {
		return Nil, false
	}
	return ctx.Heap.CellValue(Cell{Block: ctx.RootBlock, Index: idx}), true
}
