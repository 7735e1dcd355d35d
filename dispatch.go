package flotalk

// Handler is a dispatch-table entry: a function from a receiver's data
// handle, the selector that was sent (mainly useful to a NotSupported
// fallback forwarding the message onward), and the message's arguments to a
// Continuation, per spec.md section 4.5.
type Handler func(ctx *Context, handle DataHandle, sel SelectorID, args []Value) Continuation

// DispatchTable is a sparse mapping from selector ID to Handler, with an
// optional fallback used when the selector is absent, per spec.md section
// 4.5. For script classes the fallback forwards to the superclass instance
// stored in slot 0 of the instance cell block (see scriptclass.go).
type DispatchTable struct {
	handlers     map[SelectorID]Handler
	NotSupported Handler
}

// NewDispatchTable creates an empty dispatch table.
func NewDispatchTable() *DispatchTable {
	return &DispatchTable{handlers: make(map[SelectorID]Handler)}
}

// Install registers or replaces the handler for sel.
func (t *DispatchTable) Install(sel SelectorID, h Handler) {
	t.handlers[sel] = h
}

// Remove deletes the handler for sel, if any.
func (t *DispatchTable) Remove(sel SelectorID) {
	delete(t.handlers, sel)
}

// Lookup returns the handler for sel and whether it was present.
func (t *DispatchTable) Lookup(sel SelectorID) (Handler, bool) {
	h, ok := t.handlers[sel]
	return h, ok
}

// Dispatch looks up sel in t and invokes its handler; if sel is absent, it
// invokes t.NotSupported if set, or else produces a MessageNotSupported
// error, per spec.md section 4.5 and 7.
func (t *DispatchTable) Dispatch(ctx *Context, handle DataHandle, sel SelectorID, args []Value) Continuation {
	if h, ok := t.handlers[sel]; ok {
		return h(ctx, handle, sel, args)
	}
	if t.NotSupported != nil {
		return t.NotSupported(ctx, handle, sel, args)
	}
	return Ready(NewMessageNotSupported(sel))
}
