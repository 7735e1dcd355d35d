package flotalk

import "sync"

// dictPair is one key/value entry of a Dictionary instance.
type dictPair struct {
	key Value
	val Value
}

// dictData is the per-instance storage backing a Dictionary, a flat slice
// scanned with Value.Equal rather than a Go map keyed by Value, since Value
// is not itself a valid Go map key (it may carry a slice field), per
// spec.md section 7's "Dictionary" stdlib class grounded on
// original_source/flotalk/standard_classes/dictionary_class.rs's sparse
// bucket array.
type dictData struct {
	pairs []dictPair
}

func (d *dictData) find(key Value) int {
	for i := range d.pairs {
		if d.pairs[i].key.Equal(key) {
			return i
		}
	}
	return -1
}

type dictEntry struct {
	data     *dictData
	refcount int32
}

// dictAllocator backs one Context's Dictionary instances.
type dictAllocator struct {
	mu      sync.Mutex
	next    uint64
	entries map[DataHandle]*dictEntry
}

func newDictAllocator() *dictAllocator {
	return &dictAllocator{entries: make(map[DataHandle]*dictEntry)}
}

func (a *dictAllocator) create() DataHandle {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next++
	h := DataHandle(a.next)
	a.entries[h] = &dictEntry{data: &dictData{}, refcount: 1}
	return h
}

func (a *dictAllocator) get(h DataHandle) *dictData {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entries[h]
	if !ok {
		return nil
	}
	return e.data
}

func (a *dictAllocator) AddReference(ctx *Context, h DataHandle) {
	a.mu.Lock()
	e, ok := a.entries[h]
	a.mu.Unlock()
	if !ok {
		panic("flotalk: AddReference on unknown Dictionary handle")
	}
	addInt32(&e.refcount, 1)
}

func (a *dictAllocator) RemoveReference(ctx *Context, h DataHandle) {
	a.mu.Lock()
	e, ok := a.entries[h]
	a.mu.Unlock()
	if !ok {
		panic("flotalk: RemoveReference on unknown Dictionary handle")
	}
	if addInt32(&e.refcount, -1) > 0 {
		return
	}
	a.mu.Lock()
	delete(a.entries, h)
	a.mu.Unlock()
	for _, p := range e.data.pairs {
		ctx.ReleaseValue(p.key)
		ctx.ReleaseValue(p.val)
	}
}

var (
	selAtPut     = InternKeywordSelector("at:put:")
	selAt        = InternKeywordSelector("at:")
	selRemoveKey = InternKeywordSelector("removeKey:")
	selKeys      = InternUnarySelector("keys")
	selSize      = InternUnarySelector("size")
)

// dictionaryClassID is the built-in Dictionary class, per spec.md section 7.
var dictionaryClassID ClassID

func init() {
	dictionaryClassID = RegisterClass(&ClassCallbacks{
		Name: "Dictionary",
		CreateInContext: func(ctx *Context) *classState {
			alloc := newDictAllocator()
			instance := NewDispatchTable()
			instance.Install(selAtPut, dictAtPutHandler)
			instance.Install(selAt, dictAtHandler)
			instance.Install(selRemoveKey, dictRemoveKeyHandler)
			instance.Install(selKeys, dictKeysHandler)
			instance.Install(selSize, dictSizeHandler)
			class := NewDispatchTable()
			class.Install(selNew, dictNewHandler)
			return &classState{allocator: alloc, instance: instance, class: class}
		},
	})
}

func dictNewHandler(ctx *Context, handle DataHandle, sel SelectorID, args []Value) Continuation {
	alloc := ctx.Allocator(dictionaryClassID).(*dictAllocator)
	h := alloc.create()
	return Ready(NewReferenceValue(Reference{Class: dictionaryClassID, Handle: h}))
}

func dictAtPutHandler(ctx *Context, handle DataHandle, sel SelectorID, args []Value) Continuation {
	if len(args) != 2 {
		return Ready(NewMessageNotSupported(sel))
	}
	d := ctx.Allocator(dictionaryClassID).(*dictAllocator).get(handle)
	key, val := args[0], args[1]
	if i := d.find(key); i >= 0 {
		ctx.ReleaseValue(key)
		ctx.ReleaseValue(d.pairs[i].val)
		d.pairs[i].val = val
		return Ready(ctx.CloneValueInContext(val))
	}
	d.pairs = append(d.pairs, dictPair{key: key, val: val})
	return Ready(ctx.CloneValueInContext(val))
}

func dictAtHandler(ctx *Context, handle DataHandle, sel SelectorID, args []Value) Continuation {
	if len(args) != 1 {
		return Ready(NewMessageNotSupported(sel))
	}
	d := ctx.Allocator(dictionaryClassID).(*dictAllocator).get(handle)
	i := d.find(args[0])
	ctx.ReleaseValue(args[0])
	if i < 0 {
		return Ready(Nil)
	}
	return Ready(ctx.CloneValueInContext(d.pairs[i].val))
}

func dictRemoveKeyHandler(ctx *Context, handle DataHandle, sel SelectorID, args []Value) Continuation {
	if len(args) != 1 {
		return Ready(NewMessageNotSupported(sel))
	}
	d := ctx.Allocator(dictionaryClassID).(*dictAllocator).get(handle)
	i := d.find(args[0])
	ctx.ReleaseValue(args[0])
	if i < 0 {
		return Ready(Nil)
	}
	removed := d.pairs[i].val
	ctx.ReleaseValue(d.pairs[i].key)
	d.pairs = append(d.pairs[:i], d.pairs[i+1:]...)
	return Ready(removed)
}

func dictKeysHandler(ctx *Context, handle DataHandle, sel SelectorID, args []Value) Continuation {
	d := ctx.Allocator(dictionaryClassID).(*dictAllocator).get(handle)
	out := make([]Value, len(d.pairs))
	for i, p := range d.pairs {
		out[i] = ctx.CloneValueInContext(p.key)
	}
	return Ready(NewArray(out))
}

func dictSizeHandler(ctx *Context, handle DataHandle, sel SelectorID, args []Value) Continuation {
	d := ctx.Allocator(dictionaryClassID).(*dictAllocator).get(handle)
	return Ready(NewInt(int64(len(d.pairs))))
}
