package flotalk

import "sync"

// invertedListenerEntry is one outstanding "receiveFrom:" registration: a
// target Inverted instance waiting to act on messages sent to senderAll (any
// receiver) or to sender specifically, per
// original_source/flotalk/tests/inverted_class_tests.rs.
type invertedListenerEntry struct {
	senderAll  bool
	sender     Reference
	unreceived bool
	target     Reference
}

// invertedRegistry is the per-Context log of receiveFrom: registrations,
// newest last. Dispatch walks it newest-first: the ordering tests
// (send_inverted_message_to_several_targets_in_order_*) show the most
// recently registered listener runs first, so an earlier registration's
// effect is the one left standing when two listeners both mutate the same
// variable.
type invertedRegistry struct {
	mu      sync.Mutex
	entries []*invertedListenerEntry
}

func invertedRegistryOf(ctx *Context) *invertedRegistry {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if ctx.invertedListeners == nil {
		ctx.invertedListeners = &invertedRegistry{}
	}
	return ctx.invertedListeners
}

func registerInvertedListener(ctx *Context, e *invertedListenerEntry) {
	r := invertedRegistryOf(ctx)
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
}

func unregisterInvertedListener(ctx *Context, e *invertedListenerEntry) {
	r := invertedRegistryOf(ctx)
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, cur := range r.entries {
		if cur == e {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return
		}
	}
}

// dispatchInverted broadcasts a not-understood send from sender to every
// registered listener matching it, newest registration first. A "received"
// listener always runs; an "unreceived" listener runs only if no listener of
// either kind has already run an action earlier in this same broadcast, per
// unreceived_filters_handled_messages / unreceived_processes_earliest_messages.
// The broadcast's own result is always Nil, matching send_inverted_message_result.
func dispatchInverted(ctx *Context, sender Reference, sel SelectorID, args []Value) Continuation {
	r := invertedRegistryOf(ctx)
	r.mu.Lock()
	matches := make([]*invertedListenerEntry, 0, len(r.entries))
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if e.senderAll || e.sender == sender {
			matches = append(matches, e)
		}
	}
	r.mu.Unlock()

	return dispatchInvertedStep(ctx, matches, 0, false, sender, sel, args)
}

func dispatchInvertedStep(ctx *Context, matches []*invertedListenerEntry, i int, received bool, sender Reference, sel SelectorID, args []Value) Continuation {
	if i >= len(matches) {
		ctx.ReleaseValues(args)
		return Ready(Nil)
	}
	e := matches[i]
	if e.unreceived && received {
		return dispatchInvertedStep(ctx, matches, i+1, received, sender, sel, args)
	}

	action, ok := invertedActionFor(ctx, e.target.Class, sel)
	if !ok {
		return dispatchInvertedStep(ctx, matches, i+1, received, sender, sel, args)
	}

	callArgs := append(append([]Value(nil), args...), NewReferenceValue(sender), NewReferenceValue(e.target))
	ctx.AddReference(sender)
	ctx.AddReference(e.target)
	return invokeActionBlock(ctx, action, callArgs).AndThen(func(v Value) Continuation {
		ctx.ReleaseValue(v)
		return dispatchInvertedStep(ctx, matches, i+1, true, sender, sel, args)
	})
}

// invertedClassInfo holds the selector->action map for one Inverted
// subclass's instances, analogous to scriptClassInfo.instanceMethods but
// keyed only by the message's "base" selector (e.g. #setValInverted:), not
// the synthesized direct-call form (e.g. #setValInverted:invertedFrom:).
type invertedClassInfo struct {
	instanceClassID ClassID
	mu              sync.Mutex
	actions         map[SelectorID]Value
}

func invertedClassInfoOf(ctx *Context, instanceClassID ClassID) *invertedClassInfo {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if ctx.invertedClasses == nil {
		ctx.invertedClasses = make(map[ClassID]*invertedClassInfo)
	}
	info, ok := ctx.invertedClasses[instanceClassID]
	if !ok {
		info = &invertedClassInfo{instanceClassID: instanceClassID, actions: make(map[SelectorID]Value)}
		ctx.invertedClasses[instanceClassID] = info
	}
	return info
}

func invertedActionFor(ctx *Context, classID ClassID, sel SelectorID) (Value, bool) {
	info := invertedClassInfoOf(ctx, classID)
	info.mu.Lock()
	defer info.mu.Unlock()
	v, ok := info.actions[sel]
	return v, ok
}

// invokeActionBlock runs blockVal's body with callArgs bound positionally to
// its parameters, with no instance-variable frame: the action block closes
// only over its own lexical scope, per the `[:newVal :sender :self | ...]`
// shape in inverted_class_tests.rs.
func invokeActionBlock(ctx *Context, blockVal Value, callArgs []Value) Continuation {
	data, ok := blockDataOf(ctx, blockVal)
	if !ok || len(callArgs) != data.arity {
		ctx.ReleaseValues(callArgs)
		return Ready(NewErrorValue(&ErrorValue{Kind: ErrExpectedBlockType}))
	}
	symtab := NewSymbolTable(data.parent)
	for _, name := range data.paramNames {
		symtab.Define(name)
	}
	argFrame := ctx.Heap.Allocate(len(callArgs))
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

// unreceivedMarker wraps a sender Value (a specific Reference, or the
// canonical "all" marker) to record that a receiveFrom: registration wants
// the "unreceived" variant, per the "object unreceived" / "all unreceived"
// unary message in the distilled tests.
type unreceivedMarkerData struct {
	wrapped Value
}

type unreceivedMarkerEntry struct {
	data     *unreceivedMarkerData
	refcount int32
}

type unreceivedMarkerAllocator struct {
	mu      sync.Mutex
	next    uint64
	entries map[DataHandle]*unreceivedMarkerEntry
}

func newUnreceivedMarkerAllocator() *unreceivedMarkerAllocator {
	return &unreceivedMarkerAllocator{entries: make(map[DataHandle]*unreceivedMarkerEntry)}
}

func (a *unreceivedMarkerAllocator) create(wrapped Value) DataHandle {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next++
	h := DataHandle(a.next)
	a.entries[h] = &unreceivedMarkerEntry{data: &unreceivedMarkerData{wrapped: wrapped}, refcount: 1}
	return h
}

func (a *unreceivedMarkerAllocator) get(h DataHandle) *unreceivedMarkerData {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entries[h]
	if !ok {
		return nil
	}
	return e.data
}

func (a *unreceivedMarkerAllocator) AddReference(ctx *Context, h DataHandle) {
	a.mu.Lock()
	e, ok := a.entries[h]
	a.mu.Unlock()
	if !ok {
		panic("flotalk: AddReference on unknown unreceived-marker handle")
	}
	addInt32(&e.refcount, 1)
}

func (a *unreceivedMarkerAllocator) RemoveReference(ctx *Context, h DataHandle) {
	a.mu.Lock()
	e, ok := a.entries[h]
	a.mu.Unlock()
	if !ok {
		panic("flotalk: RemoveReference on unknown unreceived-marker handle")
	}
	if addInt32(&e.refcount, -1) > 0 {
		return
	}
	a.mu.Lock()
	delete(a.entries, h)
	a.mu.Unlock()
	ctx.ReleaseValue(e.data.wrapped)
}

var selUnreceived = InternUnarySelector("unreceived")

// unreceivedMarkerClassID wraps a sender so receiveFrom: can tell a plain
// sender Value apart from one suffixed with "unreceived".
var unreceivedMarkerClassID = RegisterClass(&ClassCallbacks{
	Name: "UnreceivedMarker",
	CreateInContext: func(ctx *Context) *classState {
		return &classState{allocator: newUnreceivedMarkerAllocator(), instance: NewDispatchTable(), class: NewDispatchTable()}
	},
})

// installUnreceivedResponder installs the "unreceived" unary responder
// (wrapping self) onto an already-realized instance dispatch table,
// preserving whatever NotSupported fallback it already carries for every
// other selector.
func installUnreceivedResponder(ctx *Context, table *DispatchTable, selfOf func(handle DataHandle) Value) {
	table.Install(selUnreceived, func(ctx *Context, handle DataHandle, sel SelectorID, args []Value) Continuation {
		self := selfOf(handle)
		alloc := ctx.Allocator(unreceivedMarkerClassID).(*unreceivedMarkerAllocator)
		h := alloc.create(self)
		return Ready(NewReferenceValue(Reference{Class: unreceivedMarkerClassID, Handle: h}))
	})
}

// allSenderClassID backs the single root-bound "all" value: a universal
// sender marker usable with receiveFrom: and "unreceived", per
// send_inverted_message_to_all and all_unreceived.
var allSenderClassID = RegisterClass(&ClassCallbacks{
	Name: "AllSender",
	CreateInContext: func(ctx *Context) *classState {
		instance := NewDispatchTable()
		return &classState{allocator: noopAllocator{}, instance: instance, class: NewDispatchTable()}
	},
})

// noopAllocator backs a class whose single instance never needs refcounting,
// such as the canonical "all" sender marker.
type noopAllocator struct{}

func (noopAllocator) AddReference(ctx *Context, h DataHandle)    {}
func (noopAllocator) RemoveReference(ctx *Context, h DataHandle) {}

// newAllSenderValue mints the canonical "all" value and wires its
// "unreceived" responder, for binding to the root symbol "all" at bootstrap.
func newAllSenderValue(ctx *Context) Value {
	self := NewReferenceValue(Reference{Class: allSenderClassID, Handle: 1})
	table := ctx.InstanceDispatch(allSenderClassID)
	installUnreceivedResponder(ctx, table, func(DataHandle) Value { return ctx.CloneValueInContext(self) })
	return self
}

// Selectors recognized by an Inverted class object and its instances.
var (
	selAddInvertedMessageWithAction = InternKeywordSelector("addInvertedMessage:", "withAction:")
	selReceiveFrom                  = InternKeywordSelector("receiveFrom:")
	selWith                         = InternKeywordSelector("with:")
)

// invertedClassObjAllocator backs "TestInverted"-style class objects: one
// handle per Inverted subclass, refcounted independently of the cell-block
// heap since a class object is not itself cell-block-backed.
type invertedClassObjAllocator struct {
	mu      sync.Mutex
	next    uint64
	infos   map[DataHandle]*invertedClassInfo
	refcnts map[DataHandle]*int32
}

func newInvertedClassObjAllocator() *invertedClassObjAllocator {
	return &invertedClassObjAllocator{infos: make(map[DataHandle]*invertedClassInfo), refcnts: make(map[DataHandle]*int32)}
}

func (a *invertedClassObjAllocator) create(info *invertedClassInfo) DataHandle {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next++
	h := DataHandle(a.next)
	a.infos[h] = info
	n := int32(1)
	a.refcnts[h] = &n
	return h
}

func (a *invertedClassObjAllocator) get(h DataHandle) *invertedClassInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.infos[h]
}

func (a *invertedClassObjAllocator) AddReference(ctx *Context, h DataHandle) {
	a.mu.Lock()
	n := a.refcnts[h]
	a.mu.Unlock()
	if n == nil {
		panic("flotalk: AddReference on unknown Inverted class handle")
	}
	addInt32(n, 1)
}

func (a *invertedClassObjAllocator) RemoveReference(ctx *Context, h DataHandle) {
	a.mu.Lock()
	n := a.refcnts[h]
	info := a.infos[h]
	a.mu.Unlock()
	if n == nil {
		panic("flotalk: RemoveReference on unknown Inverted class handle")
	}
	if addInt32(n, -1) > 0 {
		return
	}
	a.mu.Lock()
	delete(a.infos, h)
	delete(a.refcnts, h)
	a.mu.Unlock()
	info.mu.Lock()
	for _, v := range info.actions {
		ctx.ReleaseValue(v)
	}
	info.mu.Unlock()
}

// invertedClassObjClassID is the class-of-classes for every Inverted
// subclass ("TestInverted" in inverted_class_tests.rs): its instances
// respond to addInvertedMessage:withAction: and new.
var invertedClassObjClassID ClassID

func init() {
	invertedClassObjClassID = RegisterClass(&ClassCallbacks{
		Name: "InvertedClassObj",
		CreateInContext: func(ctx *Context) *classState {
			instance := NewDispatchTable()
			instance.Install(selAddInvertedMessageWithAction, invertedAddMessageHandler)
			instance.Install(selNew, invertedNewHandler)
			return &classState{allocator: newInvertedClassObjAllocator(), instance: instance, class: NewDispatchTable()}
		},
	})
}

func invertedNewHandler(ctx *Context, handle DataHandle, sel SelectorID, args []Value) Continuation {
	info := ctx.Allocator(invertedClassObjClassID).(*invertedClassObjAllocator).get(handle)
	block := ctx.Heap.Allocate(0)
	return Ready(NewReferenceValue(Reference{Class: info.instanceClassID, Handle: DataHandle(block)}))
}

func invertedAddMessageHandler(ctx *Context, handle DataHandle, sel SelectorID, args []Value) Continuation {
	if len(args) != 2 {
		return Ready(NewMessageNotSupported(sel))
	}
	baseSel, ok := args[0].TryAsSelector()
	if !ok {
		ctx.ReleaseValue(args[1])
		return Ready(NewErrorValue(&ErrorValue{Kind: ErrNotASelector}))
	}
	if _, ok := blockDataOf(ctx, args[1]); !ok {
		return Ready(NewErrorValue(&ErrorValue{Kind: ErrExpectedBlockType}))
	}
	info := ctx.Allocator(invertedClassObjClassID).(*invertedClassObjAllocator).get(handle)
	info.mu.Lock()
	old, hadOld := info.actions[baseSel]
	info.actions[baseSel] = args[1]
	info.mu.Unlock()
	if hadOld {
		ctx.ReleaseValue(old)
	}
	installInvertedDirectSelector(ctx, info.instanceClassID, baseSel)
	return Ready(Nil)
}

// invertedRootClassID is the single root-bound "Inverted" value itself: its
// only job is answering "subclass" with a fresh Inverted class object, per
// inverted_subclass.
var invertedRootClassID = RegisterClass(&ClassCallbacks{
	Name: "InvertedRoot",
	CreateInContext: func(ctx *Context) *classState {
		instance := NewDispatchTable()
		instance.Install(selSubclass, invertedRootSubclassHandler)
		return &classState{allocator: noopAllocator{}, instance: instance, class: NewDispatchTable()}
	},
})

func invertedRootSubclassHandler(ctx *Context, handle DataHandle, sel SelectorID, args []Value) Continuation {
	instanceClassID := ctx.NewEmptyCellBlockClass()
	installInvertedInstanceHandlers(ctx, instanceClassID)

	info := invertedClassInfoOf(ctx, instanceClassID)

	h := ctx.Allocator(invertedClassObjClassID).(*invertedClassObjAllocator).create(info)
	return Ready(NewReferenceValue(Reference{Class: invertedClassObjClassID, Handle: h}))
}

// newInvertedRootValue mints the canonical "Inverted" value, for binding to
// the root symbol "Inverted" at bootstrap.
func newInvertedRootValue(ctx *Context) Value {
	ctx.classStateFor(invertedRootClassID)
	return NewReferenceValue(Reference{Class: invertedRootClassID, Handle: 1})
}

// installInvertedInstanceHandlers wires the selectors every instance of an
// Inverted subclass answers regardless of which invertedMessages it has been
// given: receiveFrom: and with:. No handler for unreceived is installed on
// an instance, and its table has no NotSupported fallback.
func installInvertedInstanceHandlers(ctx *Context, classID ClassID) {
	table := ctx.InstanceDispatch(classID)

	table.Install(selReceiveFrom, func(ctx *Context, handle DataHandle, sel SelectorID, args []Value) Continuation {
		if len(args) != 1 {
			return Ready(NewMessageNotSupported(sel))
		}
		target := Reference{Class: classID, Handle: handle}
		e := buildListenerEntry(ctx, args[0], target)
		registerInvertedListener(ctx, e)
		return Ready(Nil)
	})

	table.Install(selWith, func(ctx *Context, handle DataHandle, sel SelectorID, args []Value) Continuation {
		if len(args) != 1 {
			return Ready(NewMessageNotSupported(sel))
		}
		target := Reference{Class: classID, Handle: handle}
		e := &invertedListenerEntry{senderAll: true, target: target}
		registerInvertedListener(ctx, e)
		return sendValueUnary(ctx, args[0]).AndThen(func(v Value) Continuation {
			unregisterInvertedListener(ctx, e)
			ctx.ReleaseValue(v)
			return Ready(Nil)
		})
	})
}

// buildListenerEntry unwraps arg (a plain sender Value, or an
// "unreceived"-wrapped one) into a registry entry targeting target.
func buildListenerEntry(ctx *Context, arg Value, target Reference) *invertedListenerEntry {
	if ref, ok := arg.TryAsReference(); ok && ref.Class == unreceivedMarkerClassID {
		data := ctx.Allocator(unreceivedMarkerClassID).(*unreceivedMarkerAllocator).get(ref.Handle)
		wrapped := ctx.CloneValueInContext(data.wrapped)
		ctx.ReleaseValue(arg)
		return buildListenerEntryDirect(wrapped, true, target)
	}
	return buildListenerEntryDirect(arg, false, target)
}

func buildListenerEntryDirect(sender Value, unreceived bool, target Reference) *invertedListenerEntry {
	if ref, ok := sender.TryAsReference(); ok {
		if ref.Class == allSenderClassID {
			return &invertedListenerEntry{senderAll: true, unreceived: unreceived, target: target}
		}
		return &invertedListenerEntry{sender: ref, unreceived: unreceived, target: target}
	}
	return &invertedListenerEntry{senderAll: true, unreceived: unreceived, target: target}
}

// installInvertedDirectSelector installs the synthesized direct-call form of
// baseSel (e.g. #setValInverted: becomes #setValInverted:invertedFrom:) on
// classID's instance dispatch table, invoking the stored action immediately
// with the message's own args plus the explicit sender and self, per
// send_inverted_message_directly.
func installInvertedDirectSelector(ctx *Context, classID ClassID, baseSel SelectorID) {
	direct := invertedDirectSelector(baseSel)
	table := ctx.InstanceDispatch(classID)
	table.Install(direct, func(ctx *Context, handle DataHandle, sel SelectorID, args []Value) Continuation {
		if len(args) == 0 {
			return Ready(NewMessageNotSupported(sel))
		}
		sender := args[len(args)-1]
		msgArgs := args[:len(args)-1]
		action, ok := invertedActionFor(ctx, classID, baseSel)
		if !ok {
			ctx.ReleaseValues(args)
			return Ready(NewMessageNotSupported(sel))
		}
		self := NewReferenceValue(Reference{Class: classID, Handle: handle})
		ctx.AddReference(self.Ref)
		callArgs := append(append([]Value(nil), msgArgs...), sender, self)
		return invokeActionBlock(ctx, action, callArgs)
	})
}

// installInvertedBroadcastFallback installs the NotSupported handler every
// plain object (starting with Object itself) needs so that a message no
// script class understands becomes a candidate inverted broadcast instead of
// an outright error, per send_inverted_message_with_no_receiver ("should not
// generate an error"). "unreceived" is intercepted first so it never itself
// triggers a broadcast.
func installInvertedBroadcastFallback(ctx *Context, classID ClassID) {
	table := ctx.InstanceDispatch(classID)
	table.NotSupported = func(ctx *Context, handle DataHandle, sel SelectorID, args []Value) Continuation {
		self := Reference{Class: classID, Handle: handle}
		if sel == selUnreceived && len(args) == 0 {
			alloc := ctx.Allocator(unreceivedMarkerClassID).(*unreceivedMarkerAllocator)
			h := alloc.create(NewReferenceValue(self))
			ctx.AddReference(self)
			return Ready(NewReferenceValue(Reference{Class: unreceivedMarkerClassID, Handle: h}))
		}
		return dispatchInverted(ctx, self, sel, args)
	}
}

// invertedDirectSelector derives the "<...>invertedFrom:" selector from a
// base selector: a keyword selector gains one more segment, "invertedFrom:";
// a unary selector's name becomes a single "<name>InvertedFrom:" segment.
func invertedDirectSelector(baseSel SelectorID) SelectorID {
	if SelectorKindOf(baseSel) == KeywordSelector {
		syms := SelectorSymbols(baseSel)
		segs := make([]string, 0, len(syms)+1)
		for _, s := range syms {
			name := SymbolName(s)
			if !IsKeywordName(name) {
				name += ":"
			}
			segs = append(segs, name)
		}
		segs = append(segs, "invertedFrom:")
		return InternKeywordSelector(segs...)
	}
	name := SelectorName(baseSel)
	return InternKeywordSelector(name + "InvertedFrom:")
}
