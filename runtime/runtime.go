package runtime

import "github.com/flotalk/flotalk"

// Runtime is the public embedding surface for flotalk: one Context driven
// by a Scheduler, implementing spec.md section 6's Runtime::empty() /
// with_standard_symbols() / run() / stream_to / stream_from /
// set_root_symbol_value.
type Runtime struct {
	ctx   *flotalk.Context
	sched *Scheduler
}

// New creates a Runtime over a freshly bootstrapped Context: the
// script-class hierarchy rooted at Object, Inverted, Dictionary, Evaluate,
// Import, and the predefined nil/true/false/all symbols, per
// Runtime::with_standard_symbols().
func New(cfg *Config) *Runtime {
	ctx := flotalk.NewContext()
	flotalk.Bootstrap(ctx)
	return &Runtime{ctx: ctx, sched: NewScheduler(ctx, cfg)}
}

// Empty creates a Runtime over a bare Context with no standard classes or
// symbols installed, per Runtime::empty().
func Empty(cfg *Config) *Runtime {
	ctx := flotalk.NewContext()
	return &Runtime{ctx: ctx, sched: NewScheduler(ctx, cfg)}
}

// SetCompiler installs the SourceCompiler used by Run and by the Evaluate
// class to turn source text into instructions, the seam spec.md draws between this
// core and an out-of-scope parser.
//
// Write serializes this against every other scheduler-driven access to
// ctx, but Evaluate's createBlock: handler reads ctx.Compiler from its own
// bare goroutine with no scheduler lock held; installing a new compiler
// concurrently with an in-flight createBlock: races on that field.
func (r *Runtime) SetCompiler(c flotalk.SourceCompiler) {
	r.sched.Write(func(ctx *flotalk.Context) { ctx.Compiler = c })
}

// RegisterImporter adds resolver to the Runtime's Import resolver list, per
// spec.md section 6's "Import: registers priority-ordered module
// resolvers."
func (r *Runtime) RegisterImporter(resolver flotalk.ModuleResolver, highPriority bool) {
	r.sched.Write(func(ctx *flotalk.Context) { ctx.RegisterImporter(resolver, highPriority) })
}

// Run compiles and runs source against the Runtime's root namespace,
// returning once the final continuation resolves, per
// Runtime::run(Source) -> Future<Value>.
func (r *Runtime) Run(source string) flotalk.Value {
	return r.sched.Drive(func(ctx *flotalk.Context) flotalk.Continuation {
		return flotalk.RunSource(ctx, source)
	})
}

// WithContext runs fn with exclusive access to the underlying Context, for
// embedders that need to build values the high-level API has no shortcut
// for (a hand-built script class, a Block literal) since this repository
// has no parser to do it from source text. fn must not block waiting on a
// Later continuation; use Send or Drive-based helpers for that.
func (r *Runtime) WithContext(fn func(ctx *flotalk.Context)) {
	r.sched.Write(fn)
}

// Send drives a single message send to completion. Like StreamTo, it sends
// a fresh clone of receiver, so the caller keeps its own reference and may
// send to the same receiver again; args are consumed.
func (r *Runtime) Send(receiver flotalk.Value, sel flotalk.SelectorID, args []flotalk.Value) flotalk.Value {
	return r.sched.Drive(func(ctx *flotalk.Context) flotalk.Continuation {
		clone := ctx.CloneValueInContext(receiver)
		return flotalk.Send(ctx, clone, sel, args)
	})
}

// SetRootSymbolValue binds name in the Runtime's root namespace to v, a
// convenience write operation per spec.md section 4.9.
func (r *Runtime) SetRootSymbolValue(name string, v flotalk.Value) {
	r.sched.Write(func(ctx *flotalk.Context) { ctx.SetRootSymbolValue(flotalk.Intern(name), v) })
}

// RootSymbolValue reads the current value bound to name in the Runtime's
// root namespace, using a reader slot rather than the full writer lock.
func (r *Runtime) RootSymbolValue(name string) (flotalk.Value, bool) {
	var v flotalk.Value
	var ok bool
	r.sched.Read(func(ctx *flotalk.Context) { v, ok = ctx.RootSymbolValue(flotalk.Intern(name)) })
	return v, ok
}

// valueBlockSelector is the interned "value:" selector used to invoke a
// one-argument Block; it is the same SelectorID flotalk's own Block class
// installs for this arity, since selectors are interned by content.
var valueBlockSelector = flotalk.InternKeywordSelector("value:")

// StreamTo sends every Message from in to target in order, each send given
// a fresh clone of target since Send consumes one reference of its
// receiver, per spec.md section 4.9's "stream_to(target, stream<Message>)".
// It stops and returns early if a send answers an Error.
func (r *Runtime) StreamTo(target flotalk.Value, in <-chan *flotalk.Message) flotalk.Value {
	result := flotalk.Nil
	for msg := range in {
		result = r.sched.Drive(func(ctx *flotalk.Context) flotalk.Continuation {
			clone := ctx.CloneValueInContext(target)
			args := make([]flotalk.Value, len(msg.Args))
			for i, a := range msg.Args {
				args[i] = ctx.CloneValueInContext(a)
			}
			return flotalk.Send(ctx, clone, msg.Selector, args)
		})
		if result.IsError() {
			break
		}
	}
	return result
}

// StreamFrom runs block (a one-parameter Block Value, `[:output | ...]`)
// with a fresh Stream instance bound to its parameter, returning the
// channel of Messages-as-Values the block's body sends to that parameter,
// per spec.md section 4.9's "stream_from(source) -> Stream<Value>". The
// block runs in its own goroutine so the returned channel can be drained
// concurrently with its execution; the channel closes once the block
// finishes and the Stream instance's last reference is released.
func (r *Runtime) StreamFrom(block flotalk.Value) <-chan flotalk.Value {
	var out <-chan flotalk.Value
	r.sched.Write(func(ctx *flotalk.Context) {
		stream, ch := flotalk.NewStreamValue(ctx)
		out = ch
		go r.sched.Drive(func(ctx *flotalk.Context) flotalk.Continuation {
			return flotalk.Send(ctx, block, valueBlockSelector, []flotalk.Value{stream})
		})
	})
	return out
}

// NewReceiver mints a StreamSource instance pulling from source and binds
// it to name in the Runtime's root namespace, the mechanism behind
// original_source's create_talk_receiver: a script pulls host-supplied
// Values one at a time by sending "next" to the receiver.
func (r *Runtime) NewReceiver(name string, source chan flotalk.Value) {
	r.sched.Write(func(ctx *flotalk.Context) {
		recv := flotalk.NewStreamSourceValue(ctx, source)
		ctx.SetRootSymbolValue(flotalk.Intern(name), recv)
	})
}
