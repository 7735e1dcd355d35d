package flotalk

// builtinClassObjAllocator backs builtinClassObjClassID: a stateless
// wrapper, since the ClassID it targets is encoded directly in the data
// handle and needs no refcounted storage of its own.
type builtinClassObjAllocator struct{ noopAllocator }

// builtinClassObjClassID is the generic "class object" for a built-in,
// non-script class (Dictionary, Evaluate, Import): sending it a class
// message (new, item:from:, statement:, ...) forwards to the target
// class's own class-side dispatch table, the same role scriptClassClassID
// plays for user-defined classes but without per-instance bookkeeping,
// since a built-in class's identity IS its ClassID.
var builtinClassObjClassID = RegisterClass(&ClassCallbacks{
	Name: "BuiltinClassObject",
	CreateInContext: func(ctx *Context) *classState {
		instance := NewDispatchTable()
		instance.NotSupported = func(ctx *Context, handle DataHandle, sel SelectorID, args []Value) Continuation {
			target := ClassID(handle)
			return ctx.ClassDispatch(target).Dispatch(ctx, DataHandle(target), sel, args)
		}
		return &classState{allocator: builtinClassObjAllocator{}, instance: instance, class: NewDispatchTable()}
	},
})

// NewBuiltinClassValue wraps target's class-side dispatch table as a Value
// suitable for binding to a root symbol (e.g. "Dictionary", "Evaluate",
// "Import"), so that `Dictionary new` resolves the same way `Object
// subclass` does for script classes.
func NewBuiltinClassValue(ctx *Context, target ClassID) Value {
	ctx.classStateFor(builtinClassObjClassID)
	ctx.classStateFor(target)
	return NewReferenceValue(Reference{Class: builtinClassObjClassID, Handle: DataHandle(target)})
}

// Bootstrap wires every standard class and predefined root symbol into ctx,
// per spec.md section 6's "Runtime::with_standard_symbols()": the
// script-class hierarchy rooted at Object plus Inverted, Evaluate,
// Dictionary, Import, and the literals nil/true/false/all. Stream,
// StreamWithReply, and StreamSource (stdlib_stream.go) are intentionally
// left unbound here: they are minted per use by NewStreamValue,
// NewStreamWithReplyValue and NewStreamSourceValue (called by the runtime
// package's StreamFrom and NewReceiver), not referenced by name from script
// text.
func Bootstrap(ctx *Context) {
	installStandardPrimitives(ctx)

	ctx.SetRootSymbolValue(Intern("nil"), Nil)
	ctx.SetRootSymbolValue(Intern("true"), True)
	ctx.SetRootSymbolValue(Intern("false"), False)

	ctx.SetRootSymbolValue(Intern("all"), newAllSenderValue(ctx))

	object := bootstrapObject(ctx)
	ctx.SetRootSymbolValue(Intern("Object"), object)

	ctx.SetRootSymbolValue(Intern("Inverted"), newInvertedRootValue(ctx))

	ctx.SetRootSymbolValue(Intern("Dictionary"), NewBuiltinClassValue(ctx, dictionaryClassID))
	ctx.SetRootSymbolValue(Intern("Evaluate"), NewBuiltinClassValue(ctx, evaluateClassID))
	ctx.SetRootSymbolValue(Intern("Import"), NewBuiltinClassValue(ctx, importClassID))
}
