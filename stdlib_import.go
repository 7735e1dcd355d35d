package flotalk

import "sync"

// ModuleResolver looks up a module by name, returning a Continuation that
// resolves to the module object (which must respond to "at:") or Nil if
// this resolver does not recognize the name, per spec.md section 6 and
// original_source/flotalk/standard_classes/import_class.rs.
type ModuleResolver func(ctx *Context, moduleName string) Continuation

// importState is the per-Context state backing the Import class: the
// priority-ordered resolver list and a cache of already-loaded modules.
type importState struct {
	mu        sync.Mutex
	resolvers []ModuleResolver
	modules   map[string]Value
}

// importClassID is the built-in Import class. Unlike Dictionary or
// Evaluate it has no instances of its own (its class messages act directly
// on Context-scoped state), per spec.md section 6's "registers
// priority-ordered module resolvers."
var importClassID ClassID

func init() {
	importClassID = RegisterClass(&ClassCallbacks{
		Name: "Import",
		CreateInContext: func(ctx *Context) *classState {
			class := NewDispatchTable()
			class.Install(InternKeywordSelector("item:", "from:"), importItemFromHandler)
			return &classState{class: class, instance: NewDispatchTable()}
		},
	})
}

func importStateOf(ctx *Context) *importState {
	// Force realization of the class's classState so RegisterImporter can be
	// called before any script ever references Import.
	ctx.classStateFor(importClassID)
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if ctx.imports == nil {
		ctx.imports = &importState{modules: make(map[string]Value)}
	}
	return ctx.imports
}

// RegisterImporter adds resolver to ctx's priority-ordered importer list.
// highPriority resolvers are tried before every resolver already registered;
// otherwise resolver is tried only after all current resolvers have
// declined, per spec.md section 6.
func (ctx *Context) RegisterImporter(resolver ModuleResolver, highPriority bool) {
	st := importStateOf(ctx)
	st.mu.Lock()
	defer st.mu.Unlock()
	if highPriority {
		st.resolvers = append([]ModuleResolver{resolver}, st.resolvers...)
	} else {
		st.resolvers = append(st.resolvers, resolver)
	}
}

func importItemFromHandler(ctx *Context, handle DataHandle, sel SelectorID, args []Value) Continuation {
	if len(args) != 2 {
		return Ready(NewMessageNotSupported(sel))
	}
	item := args[0]
	from, ok := args[1].TryAsString()
	if !ok {
		ctx.ReleaseValue(item)
		return Ready(NewErrorValue(&ErrorValue{Kind: ErrNotAString}))
	}
	return loadModule(ctx, from).AndThen(func(module Value) Continuation {
		if module.IsNil() {
			ctx.ReleaseValue(item)
			return Ready(NewErrorValue(&ErrorValue{Kind: ErrImportModuleNotFound}))
		}
		if module.IsError() {
			ctx.ReleaseValue(item)
			return Ready(module)
		}
		return Send(ctx, module, selAt, []Value{item})
	})
}

// loadModule resolves moduleName against ctx's registered resolvers,
// caching the first non-nil result so subsequent imports of the same
// module skip resolution entirely.
func loadModule(ctx *Context, moduleName string) Continuation {
	st := importStateOf(ctx)
	st.mu.Lock()
	if cached, ok := st.modules[moduleName]; ok {
		st.mu.Unlock()
		return Ready(ctx.CloneValueInContext(cached))
	}
	resolvers := append([]ModuleResolver(nil), st.resolvers...)
	st.mu.Unlock()
	return tryResolvers(ctx, moduleName, resolvers)
}

func tryResolvers(ctx *Context, moduleName string, resolvers []ModuleResolver) Continuation {
	if len(resolvers) == 0 {
		return Ready(Nil)
	}
	return resolvers[0](ctx, moduleName).AndThen(func(module Value) Continuation {
		if module.IsNil() {
			return tryResolvers(ctx, moduleName, resolvers[1:])
		}
		if !module.IsError() {
			st := importStateOf(ctx)
			st.mu.Lock()
			st.modules[moduleName] = ctx.CloneValueInContext(module)
			st.mu.Unlock()
		}
		return Ready(module)
	})
}
