package flotalk

import "sync"

// superSymbol is the reserved instance-variable slot 0 binding for a
// subclass's back-reference to its superclass instance, per spec.md section
// 3.7. Its printed name carries spaces for the same reason as an unnamed
// symbol (symbol.go's NewUnnamedSymbol): it can never collide with a name
// written in source text.
var superSymbol = Intern(" <SUPER> ")

// scriptClassInfo is the runtime representation of a user-defined class: the
// cell-block ClassID assigned to its instances, its superclass linkage, its
// instance-variable layout, and the method tables a script installs at
// runtime, per spec.md section 3.7.
type scriptClassInfo struct {
	classID ClassID

	hasSuper     bool
	superClassID ClassID
	super        *Value // Reference to the superclass script-class object, retained

	instanceVars *SymbolTable

	mu              sync.Mutex
	instanceMethods map[SelectorID]Value // retained Block values, keyed by selector
	classMethods    map[SelectorID]Value // retained Block values, keyed by selector
}

// scriptClassAllocator backs the built-in "class of classes": every
// user-defined class is itself a Reference whose data handle maps to one of
// these records.
type scriptClassAllocator struct {
	mu      sync.Mutex
	next    uint64
	infos   map[DataHandle]*scriptClassInfo
	refcnts map[DataHandle]*int32
}

func newScriptClassAllocator() *scriptClassAllocator {
	return &scriptClassAllocator{
		infos:   make(map[DataHandle]*scriptClassInfo),
		refcnts: make(map[DataHandle]*int32),
	}
}

func (a *scriptClassAllocator) create(info *scriptClassInfo) DataHandle {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next++
	h := DataHandle(a.next)
	a.infos[h] = info
	n := int32(1)
	a.refcnts[h] = &n
	return h
}

func (a *scriptClassAllocator) get(h DataHandle) *scriptClassInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.infos[h]
}

func (a *scriptClassAllocator) AddReference(ctx *Context, h DataHandle) {
	a.mu.Lock()
	n := a.refcnts[h]
	a.mu.Unlock()
	if n == nil {
		panic("flotalk: AddReference on unknown script-class handle")
	}
	addInt32(n, 1)
}

func (a *scriptClassAllocator) RemoveReference(ctx *Context, h DataHandle) {
	a.mu.Lock()
	n := a.refcnts[h]
	info := a.infos[h]
	a.mu.Unlock()
	if n == nil {
		panic("flotalk: RemoveReference on unknown script-class handle")
	}
	if addInt32(n, -1) > 0 {
		return
	}
	a.mu.Lock()
	delete(a.infos, h)
	delete(a.refcnts, h)
	a.mu.Unlock()

	if info.super != nil {
		ctx.ReleaseValue(*info.super)
	}
	info.mu.Lock()
	for _, v := range info.instanceMethods {
		ctx.ReleaseValue(v)
	}
	for _, v := range info.classMethods {
		ctx.ReleaseValue(v)
	}
	info.mu.Unlock()

	ctx.forgetCellBlockClass(info.classID)
	RetireCellBlockClass(info.classID)
}

// scriptClassClassID is the built-in "class of classes": every script class
// object, Object included, is an instance of it. The bootstrap (see
// stdlib_object.go) mints Object itself by calling newScriptClassValue
// directly. Ordinary scripts never reference this ClassID directly; they
// hold a script class Value returned from `subclass`.
var scriptClassClassID ClassID

func init() {
	scriptClassClassID = RegisterClass(&ClassCallbacks{
		Name: "ScriptClassClass",
		CreateInContext: func(ctx *Context) *classState {
			alloc := newScriptClassAllocator()
			instance := NewDispatchTable()
			instance.NotSupported = scriptClassDispatchHandler
			return &classState{allocator: alloc, instance: instance, class: NewDispatchTable()}
		},
	})
}

func scriptClassAllocatorOf(ctx *Context) *scriptClassAllocator {
	return ctx.Allocator(scriptClassClassID).(*scriptClassAllocator)
}

// newScriptClassValue allocates a fresh script class with no superclass and
// an empty instance-variable layout and method tables, the behavior of
// sending `new` to the class-of-classes (spec.md section 4.8).
func newScriptClassValue(ctx *Context) Value {
	cellClassID := ctx.NewEmptyCellBlockClass()
	info := &scriptClassInfo{
		classID:         cellClassID,
		instanceVars:    NewSymbolTable(nil),
		instanceMethods: make(map[SelectorID]Value),
		classMethods:    make(map[SelectorID]Value),
	}
	ctx.registerScriptClass(cellClassID, info)

	alloc := scriptClassAllocatorOf(ctx)
	h := alloc.create(info)
	return NewReferenceValue(Reference{Class: scriptClassClassID, Handle: h})
}

// Selectors recognized by a script class object (spec.md section 4.8).
var (
	selSubclass                   = InternUnarySelector("subclass")
	selSubclassWithInstanceVars    = InternKeywordSelector("subclassWithInstanceVariables:")
	selAddInstanceMessageWithAction = InternKeywordSelector("addInstanceMessage:", "withAction:")
	selAddClassMessageWithAction    = InternKeywordSelector("addClassMessage:", "withAction:")
	selSuperclass                  = InternUnarySelector("superclass")
	selNew                         = InternUnarySelector("new")
	selEqEq                        = InternSelector(Intern("=="))
	selNewSuperclass               = InternUnarySelector("newSuperclass")
)

// scriptClassDispatchHandler is the NotSupported fallback installed for
// every script class object. All class-message traffic routes through here
// because the method tables it must consult (classMethods) live on the
// individual scriptClassInfo, not in a table shared by every user-defined
// class (spec.md section 4.8's "class-side send walks this class's class
// table -> superclass's class table -> generic script-class table").
func scriptClassDispatchHandler(ctx *Context, handle DataHandle, sel SelectorID, args []Value) Continuation {
	alloc := scriptClassAllocatorOf(ctx)
	info := alloc.get(handle)
	if info == nil {
		return Ready(NewMessageNotSupported(sel))
	}
	self := Reference{Class: scriptClassClassID, Handle: handle}
	return sendClassMessage(ctx, self, info, sel, args)
}

// sendClassMessage implements the class-side selector resolution chain: this
// class's own classMethods, then (if unresolved) the superclass's, finally
// falling back to the built-in subclass/new/addInstanceMessage: vocabulary
// processed against the ORIGINAL receiving class (since `new` sent to a
// subclass must allocate an instance of the subclass, not the superclass
// that happened to answer the lookup).
func sendClassMessage(ctx *Context, original Reference, info *scriptClassInfo, sel SelectorID, args []Value) Continuation {
	info.mu.Lock()
	block, ok := info.classMethods[sel]
	info.mu.Unlock()
	if ok {
		return invokeClassMethod(ctx, block, original, sel, args)
	}
	if info.hasSuper {
		superInfo := scriptClassAllocatorOf(ctx).get(info.super.Ref.Handle)
		if superInfo != nil {
			return sendClassMessage(ctx, original, superInfo, sel, args)
		}
	}
	return processStandardClassMessage(ctx, original, sel, args)
}

// processStandardClassMessage implements the built-in vocabulary every
// script class understands: subclass, subclassWithInstanceVariables:, new,
// superclass, addInstanceMessage:withAction:, addClassMessage:withAction:,
// and ==, per spec.md section 4.8.
func processStandardClassMessage(ctx *Context, original Reference, sel SelectorID, args []Value) Continuation {
	alloc := scriptClassAllocatorOf(ctx)
	info := alloc.get(original.Handle)
	if info == nil {
		return Ready(NewMessageNotSupported(sel))
	}

	switch sel {
	case selSubclass:
		return createSubclass(ctx, original, info, nil)

	case selSubclassWithInstanceVars:
		sym, ok := args[0].TryAsSelector()
		if !ok {
			return Ready(NewErrorValue(&ErrorValue{Kind: ErrNotASelector}))
		}
		return createSubclass(ctx, original, info, SelectorSymbols(sym))

	case selAddInstanceMessageWithAction:
		sym, ok := args[0].TryAsSelector()
		if !ok {
			return Ready(NewErrorValue(&ErrorValue{Kind: ErrNotASelector}))
		}
		return addInstanceMessage(ctx, info, sym, args[1])

	case selAddClassMessageWithAction:
		sym, ok := args[0].TryAsSelector()
		if !ok {
			return Ready(NewErrorValue(&ErrorValue{Kind: ErrNotASelector}))
		}
		return addClassMessage(ctx, info, sym, args[1])

	case selSuperclass:
		if info.super == nil {
			return Ready(Nil)
		}
		return Ready(ctx.CloneValueInContext(*info.super))

	case selNew:
		return instantiate(ctx, original, info)

	case selEqEq:
		if len(args) != 1 {
			return Ready(NewMessageNotSupported(sel))
		}
		other, ok := args[0].TryAsReference()
		return Ready(BoolValue(ok && other == original))

	default:
		return Ready(NewMessageNotSupported(sel))
	}
}

// createSubclass builds a new script class whose superclass is parent, per
// spec.md section 4.8's "Script class creation". When varNames is non-nil,
// each name becomes an additional instance variable beyond the reserved
// slot 0 super back-reference.
func createSubclass(ctx *Context, parent Reference, parentInfo *scriptClassInfo, varNames []SymbolID) Continuation {
	cellClassID := ctx.NewEmptyCellBlockClass()

	superVal := NewReferenceValue(parent)
	ctx.AddReference(parent)

	info := &scriptClassInfo{
		classID:         cellClassID,
		hasSuper:        true,
		superClassID:    parentInfo.classID,
		super:           &superVal,
		instanceVars:    NewSymbolTable(nil),
		instanceMethods: make(map[SelectorID]Value),
		classMethods:    make(map[SelectorID]Value),
	}
	info.instanceVars.Define(superSymbol)
	for _, name := range varNames {
		info.instanceVars.Define(name)
	}
	ctx.registerScriptClass(cellClassID, info)

	// The not-supported fallback for instances of this class forwards to the
	// super-instance stored in slot 0 of the instance cell block, per
	// spec.md section 4.5/4.8.
	instTable := ctx.InstanceDispatch(cellClassID)
	instTable.NotSupported = func(ctx *Context, handle DataHandle, sel SelectorID, args []Value) Continuation {
		block := BlockID(handle)
		superRef, ok := ctx.Heap.CellValue(Cell{Block: block, Index: 0}).TryAsReference()
		if !ok {
			return Ready(NewMessageNotSupported(sel))
		}
		clone := ctx.CloneValueInContext(NewReferenceValue(superRef))
		r, _ := clone.TryAsReference()
		return Send(ctx, NewReferenceValue(r), sel, args)
	}

	alloc := scriptClassAllocatorOf(ctx)
	h := alloc.create(info)
	return Ready(NewReferenceValue(Reference{Class: scriptClassClassID, Handle: h}))
}

// addInstanceMessage records block (a Block Value) as the implementation of
// sel on info's instances and installs the corresponding handler on the
// cell-block class's instance dispatch table, per spec.md section 4.8.
// Installation happens only after the block reference is safely recorded,
// so a failure partway through never leaks the previous handler's resource.
func addInstanceMessage(ctx *Context, info *scriptClassInfo, sel SelectorID, blockVal Value) Continuation {
	if _, ok := blockDataOf(ctx, blockVal); !ok {
		return Ready(NewErrorValue(&ErrorValue{Kind: ErrExpectedBlockType}))
	}

	info.mu.Lock()
	old, hadOld := info.instanceMethods[sel]
	info.instanceMethods[sel] = blockVal
	info.mu.Unlock()
	if hadOld {
		ctx.ReleaseValue(old)
	}

	classID := info.classID
	ctx.InstanceDispatch(classID).Install(sel, func(ctx *Context, handle DataHandle, sentSel SelectorID, args []Value) Continuation {
		sc, ok := ctx.scriptClassOf(classID)
		if !ok {
			return Ready(NewMessageNotSupported(sentSel))
		}
		sc.mu.Lock()
		block, ok := sc.instanceMethods[sentSel]
		sc.mu.Unlock()
		if !ok {
			return Ready(NewMessageNotSupported(sentSel))
		}
		selfRef := NewReferenceValue(Reference{Class: classID, Handle: handle})
		return invokeInstanceMethod(ctx, block, sc, selfRef, sentSel, args)
	})

	return Ready(Nil)
}

// addClassMessage is the class-message analogue of addInstanceMessage,
// recording block as the implementation of sel in info.classMethods.
func addClassMessage(ctx *Context, info *scriptClassInfo, sel SelectorID, blockVal Value) Continuation {
	if _, ok := blockDataOf(ctx, blockVal); !ok {
		return Ready(NewErrorValue(&ErrorValue{Kind: ErrExpectedBlockType}))
	}

	info.mu.Lock()
	old, hadOld := info.classMethods[sel]
	info.classMethods[sel] = blockVal
	info.mu.Unlock()
	if hadOld {
		ctx.ReleaseValue(old)
	}
	return Ready(Nil)
}

// instantiate implements `new` sent to a script class: allocate an
// instance-sized cell block and write a superclass instance into slot 0, per
// spec.md section 4.8. The super instance is ordinarily built by recursively
// instantiating the superclass, but a class that has installed its own
// `newSuperclass` class method (spec.md's super-swap scenario) supplies that
// instance instead, letting a subclass substitute an entirely different
// object as its super without changing the superclass link itself.
func instantiate(ctx *Context, self Reference, info *scriptClassInfo) Continuation {
	size := len(info.instanceVars.order)

	if !info.hasSuper {
		block := ctx.Heap.Allocate(size)
		return Ready(NewReferenceValue(Reference{Class: info.classID, Handle: DataHandle(block)}))
	}

	info.mu.Lock()
	newSuper, hasCustomSuper := info.classMethods[selNewSuperclass]
	info.mu.Unlock()

	var superCont Continuation
	if hasCustomSuper {
		superCont = invokeClassMethod(ctx, newSuper, self, selNewSuperclass, nil)
	} else {
		superInfo := scriptClassAllocatorOf(ctx).get(info.super.Ref.Handle)
		superCont = instantiate(ctx, info.super.Ref, superInfo)
	}

	return superCont.AndThen(func(superInst Value) Continuation {
		block := ctx.Heap.Allocate(size)
		ctx.Heap.SetCellValue(Cell{Block: block, Index: 0}, superInst)
		return Ready(NewReferenceValue(Reference{Class: info.classID, Handle: DataHandle(block)}))
	})
}

// invokeInstanceMethod runs blockVal's body with the instance cell block
// bound as the innermost-but-one frame, so that the instance variables it
// closes over resolve against THIS instance, per spec.md section 4.8: "the
// instance cell block bound as the innermost frame for the stored method
// block." A trailing block parameter beyond the selector's own arity is
// bound to self; blocks that take exactly the selector's arity leave self
// unbound (used by nullary "factory" class methods such as S6's
// `[B new]`, which is the instance-method analogue below mirrored for class
// methods).
func invokeInstanceMethod(ctx *Context, blockVal Value, info *scriptClassInfo, self Value, sel SelectorID, args []Value) Continuation {
	data, ok := blockDataOf(ctx, blockVal)
	if !ok {
		return Ready(NewErrorValue(&ErrorValue{Kind: ErrExpectedBlockType}))
	}

	callArgs, ok := bindTrailingSelf(data, args, self)
	if !ok {
		return Ready(NewMessageNotSupported(sel))
	}
	if len(callArgs) > len(args) {
		// The argument frame releases self along with the other arguments.
		ctx.AddReference(self.Ref)
	}

	instanceBlock := BlockID(self.Ref.Handle)

	ivarTable := info.instanceVars.cloneWithParent(data.parent)
	argTable := NewSymbolTable(ivarTable)
	for _, name := range data.paramNames {
		argTable.Define(name)
	}

	argFrame := ctx.Heap.Allocate(len(data.paramNames))
	for i, v := range callArgs {
		ctx.Heap.SetCellValue(Cell{Block: argFrame, Index: i}, v)
	}

	frames := make([]BlockID, 0, 2+len(data.frames))
	frames = append(frames, argFrame, instanceBlock)
	frames = append(frames, data.frames...)

	ev := NewEvaluator(data.body, argTable, frames)
	return ev.Run(ctx).AndThen(func(v Value) Continuation {
		ctx.Heap.Release(ctx, argFrame)
		return Ready(v)
	})
}

// invokeClassMethod runs blockVal's body as a class message handler: unlike
// an instance method, there is no per-instance variable frame, only the
// block's own lexical captures plus an optional trailing self parameter
// bound to the class object itself.
func invokeClassMethod(ctx *Context, blockVal Value, self Reference, sel SelectorID, args []Value) Continuation {
	data, ok := blockDataOf(ctx, blockVal)
	if !ok {
		return Ready(NewErrorValue(&ErrorValue{Kind: ErrExpectedBlockType}))
	}

	callArgs, ok := bindTrailingSelf(data, args, NewReferenceValue(self))
	if !ok {
		return Ready(NewMessageNotSupported(sel))
	}
	if len(callArgs) > len(args) {
		// The argument frame releases self along with the other arguments.
		ctx.AddReference(self)
	}

	symtab := NewSymbolTable(data.parent)
	for _, name := range data.paramNames {
		symtab.Define(name)
	}

	argFrame := ctx.Heap.Allocate(len(data.paramNames))
	for i, v := range callArgs {
		ctx.Heap.SetCellValue(Cell{Block: argFrame, Index: i}, v)
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

// bindTrailingSelf adapts a message's arguments to a method block's
// parameter list: if the block takes exactly one more parameter than the
// message supplied arguments, self is appended as that trailing parameter;
// otherwise the block must take exactly as many parameters as there are
// arguments.
func bindTrailingSelf(data *blockData, args []Value, self Value) ([]Value, bool) {
	switch data.arity {
	case len(args):
		return args, true
	case len(args) + 1:
		out := make([]Value, len(args)+1)
		copy(out, args)
		out[len(args)] = self
		return out, true
	default:
		return nil, false
	}
}

// cloneWithParent returns a new SymbolTable with the same slot layout as t
// but a different parent, used to re-root a class's instance-variable table
// onto a particular method block's lexical parent at call time (see
// invokeInstanceMethod).
func (t *SymbolTable) cloneWithParent(parent *SymbolTable) *SymbolTable {
	out := NewSymbolTable(parent)
	out.order = append([]SymbolID(nil), t.order...)
	out.slots = make(map[SymbolID]int, len(t.slots))
	for k, v := range t.slots {
		out.slots[k] = v
	}
	return out
}
