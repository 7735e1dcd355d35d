package flotalk

// PrimitiveHandler is a dispatch-table entry for a primitive value kind: it
// is given the receiving Value directly (rather than an opaque DataHandle),
// since primitives like Float or Array do not fit in 64 bits, per spec.md
// section 4.6.
type PrimitiveHandler func(ctx *Context, self Value, sel SelectorID, args []Value) Continuation

// PrimitiveTable is the per-Kind dispatch table consulted by Send for any
// Value that is not a Reference, so that "42 + 1" dispatches without ever
// allocating a heap object.
type PrimitiveTable struct {
	handlers     map[SelectorID]PrimitiveHandler
	NotSupported PrimitiveHandler
}

// NewPrimitiveTable creates an empty primitive dispatch table.
func NewPrimitiveTable() *PrimitiveTable {
	return &PrimitiveTable{handlers: make(map[SelectorID]PrimitiveHandler)}
}

// Install registers or replaces the handler for sel.
func (t *PrimitiveTable) Install(sel SelectorID, h PrimitiveHandler) {
	t.handlers[sel] = h
}

// Dispatch looks up sel in t and invokes its handler for self, falling back
// to t.NotSupported or a MessageNotSupported error.
func (t *PrimitiveTable) Dispatch(ctx *Context, self Value, sel SelectorID, args []Value) Continuation {
	if h, ok := t.handlers[sel]; ok {
		return h(ctx, self, sel, args)
	}
	if t.NotSupported != nil {
		return t.NotSupported(ctx, self, sel, args)
	}
	return Ready(NewMessageNotSupported(sel))
}

// PrimitiveDispatch returns (creating on first use) the primitive dispatch
// table for kind within ctx.
func (ctx *Context) PrimitiveDispatch(kind Kind) *PrimitiveTable {
	ctx.primMu.Lock()
	defer ctx.primMu.Unlock()
	if ctx.primitives == nil {
		ctx.primitives = make(map[Kind]*PrimitiveTable)
	}
	t, ok := ctx.primitives[kind]
	if !ok {
		t = NewPrimitiveTable()
		ctx.primitives[kind] = t
	}
	return t
}

// Send dispatches sel with args to receiver, routing References through
// their class's instance dispatch table and every other kind through its
// primitive dispatch table, per spec.md section 4.6.
//
// A send consumes one unit of ownership of receiver and of each entry in
// args, mirroring the evaluator popping them off its stack (see eval.go's
// OpSendMessage): a handler that wants to keep a value must retain its own
// copy. For a Reference receiver, Send releases that consumed unit itself
// once the handler's continuation resolves, so individual handlers never
// need to remember to do it just to answer a message.
func Send(ctx *Context, receiver Value, sel SelectorID, args []Value) Continuation {
	if receiver.Kind == KindReference {
		ref := receiver.Ref
		return ctx.InstanceDispatch(ref.Class).Dispatch(ctx, ref.Handle, sel, args).AndThen(func(v Value) Continuation {
			ctx.RemoveReference(ref)
			return Ready(v)
		})
	}
	return ctx.PrimitiveDispatch(receiver.Kind).Dispatch(ctx, receiver, sel, args)
}
