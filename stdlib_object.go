package flotalk

// bootstrapObject creates the Object script class: the root of the
// subclass hierarchy, with no superclass and no instance variables, per
// spec.md section 6's Object entry ("subclass", "subclassWithInstanceVariables:",
// "new", "==" — the last provided here as class-object identity, see
// DESIGN.md for why an instance-level "==" is not installed).
func bootstrapObject(ctx *Context) Value {
	v := newScriptClassValue(ctx)
	ref, _ := v.TryAsReference()
	info := scriptClassAllocatorOf(ctx).get(ref.Handle)
	installInvertedBroadcastFallback(ctx, info.classID)
	return v
}
