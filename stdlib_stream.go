package flotalk

import "sync"

// selNext is the unary selector a stream source answers: pull the next
// externally supplied Value, or Nil once the source is exhausted, per
// original_source/flotalk/tests/stream_tests.rs's "receiver next".
var selNext = InternUnarySelector("next")

// streamSinkData is the shared payload behind Stream and StreamWithReply: a
// channel that every not-understood send reifies as a Message and pushes
// onto, the mechanism behind Runtime.StreamFrom (spec.md section 4.9,
// "Runtime::stream_from(source) -> Stream<Value>").
type streamSinkData struct {
	out    chan Value
	mu     sync.Mutex
	closed bool
}

func (d *streamSinkData) push(v Value) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return
	}
	d.out <- v
}

func (d *streamSinkData) close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()
	close(d.out)
}

type streamSinkEntry struct {
	data     *streamSinkData
	refcount int32
}

// streamSinkAllocator backs Stream instances (StreamWithReply has its own
// streamWithReplyAllocator of the same shape): each handle owns one Go channel, closed when the instance's last reference is
// released so a host goroutine ranging over it terminates cleanly.
type streamSinkAllocator struct {
	mu      sync.Mutex
	next    uint64
	entries map[DataHandle]*streamSinkEntry
}

func newStreamSinkAllocator() *streamSinkAllocator {
	return &streamSinkAllocator{entries: make(map[DataHandle]*streamSinkEntry)}
}

func (a *streamSinkAllocator) create() (DataHandle, *streamSinkData) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next++
	h := DataHandle(a.next)
	data := &streamSinkData{out: make(chan Value)}
	a.entries[h] = &streamSinkEntry{data: data, refcount: 1}
	return h, data
}

func (a *streamSinkAllocator) get(h DataHandle) *streamSinkData {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entries[h]
	if !ok {
		return nil
	}
	return e.data
}

func (a *streamSinkAllocator) AddReference(ctx *Context, h DataHandle) {
	a.mu.Lock()
	e, ok := a.entries[h]
	a.mu.Unlock()
	if !ok {
		panic("flotalk: AddReference on unknown stream handle")
	}
	addInt32(&e.refcount, 1)
}

func (a *streamSinkAllocator) RemoveReference(ctx *Context, h DataHandle) {
	a.mu.Lock()
	e, ok := a.entries[h]
	a.mu.Unlock()
	if !ok {
		panic("flotalk: RemoveReference on unknown stream handle")
	}
	if addInt32(&e.refcount, -1) > 0 {
		return
	}
	a.mu.Lock()
	delete(a.entries, h)
	a.mu.Unlock()
	e.data.close()
}

// streamClassID is "Stream": a pure output sink used by StreamFrom. A send
// it does not understand (i.e. every send, since its instance dispatch
// table carries no handlers of its own) is reified as a Message and handed
// to a goroutine that delivers it to the backing channel, suspending the
// sender (a Later continuation) until the channel accepts it, then
// answering Nil, per "receive_values_from_script_via_stream" and
// "stream_messages".
var streamClassID ClassID

func init() {
	streamClassID = RegisterClass(&ClassCallbacks{
		Name: "Stream",
		CreateInContext: func(ctx *Context) *classState {
			instance := NewDispatchTable()
			instance.NotSupported = streamSinkNotSupported
			return &classState{allocator: newStreamSinkAllocator(), instance: instance, class: NewDispatchTable()}
		},
	})
}

func streamSinkNotSupported(ctx *Context, handle DataHandle, sel SelectorID, args []Value) Continuation {
	data := ctx.Allocator(streamClassID).(*streamSinkAllocator).get(handle)
	msg := NewMessageValue(&Message{Selector: sel, Args: args})
	future := NewFuture()
	go func() {
		data.push(msg)
		future.Resolve(Ready(Nil))
	}()
	return Later(future)
}

// NewStreamValue mints a Stream instance and the receive-only channel of
// Messages-as-Values pushed into it by script sends, for StreamFrom to pass
// as the "output" argument of a `[:output | ...]` block (spec.md section
// 4.9's stream_from). The channel closes once the instance's last reference
// is released.
func NewStreamValue(ctx *Context) (Value, <-chan Value) {
	ctx.classStateFor(streamClassID)
	alloc := ctx.Allocator(streamClassID).(*streamSinkAllocator)
	h, data := alloc.create()
	return NewReferenceValue(Reference{Class: streamClassID, Handle: h}), data.out
}

// streamReplyEntry is one pending reply slot: the message a sink received,
// and the Future its sender is suspended on until the host supplies an
// answer.
type streamReplyEntry struct {
	Message Value
	reply   *Future
}

// Reply answers the pending send with v, resuming the script that sent it.
func (e *streamReplyEntry) Reply(v Value) {
	e.reply.Resolve(Ready(v))
}

// streamWithReplyData layers a channel of streamReplyEntry on top of the
// plain streamSinkData shape (a parallel allocator with the same
// close-on-release lifecycle), since a reply sink never answers Nil for itself the way a
// fire-and-forget Stream does.
type streamWithReplyData struct {
	out    chan *streamReplyEntry
	mu     sync.Mutex
	closed bool
}

func (d *streamWithReplyData) push(e *streamReplyEntry) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		e.Reply(Nil)
		return
	}
	d.out <- e
}

func (d *streamWithReplyData) close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()
	close(d.out)
}

type streamWithReplyEntry struct {
	data     *streamWithReplyData
	refcount int32
}

type streamWithReplyAllocator struct {
	mu      sync.Mutex
	next    uint64
	entries map[DataHandle]*streamWithReplyEntry
}

func newStreamWithReplyAllocator() *streamWithReplyAllocator {
	return &streamWithReplyAllocator{entries: make(map[DataHandle]*streamWithReplyEntry)}
}

func (a *streamWithReplyAllocator) create() (DataHandle, *streamWithReplyData) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next++
	h := DataHandle(a.next)
	data := &streamWithReplyData{out: make(chan *streamReplyEntry)}
	a.entries[h] = &streamWithReplyEntry{data: data, refcount: 1}
	return h, data
}

func (a *streamWithReplyAllocator) get(h DataHandle) *streamWithReplyData {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entries[h]
	if !ok {
		return nil
	}
	return e.data
}

func (a *streamWithReplyAllocator) AddReference(ctx *Context, h DataHandle) {
	a.mu.Lock()
	e, ok := a.entries[h]
	a.mu.Unlock()
	if !ok {
		panic("flotalk: AddReference on unknown stream-with-reply handle")
	}
	addInt32(&e.refcount, 1)
}

func (a *streamWithReplyAllocator) RemoveReference(ctx *Context, h DataHandle) {
	a.mu.Lock()
	e, ok := a.entries[h]
	a.mu.Unlock()
	if !ok {
		panic("flotalk: RemoveReference on unknown stream-with-reply handle")
	}
	if addInt32(&e.refcount, -1) > 0 {
		return
	}
	a.mu.Lock()
	delete(a.entries, h)
	a.mu.Unlock()
	e.data.close()
}

// streamWithReplyClassID is "StreamWithReply": like Stream, but the host
// reading the channel must explicitly Reply to each entry before the
// sending script resumes, letting a streamed interaction produce a real
// answer instead of always answering Nil.
var streamWithReplyClassID ClassID

func init() {
	streamWithReplyClassID = RegisterClass(&ClassCallbacks{
		Name: "StreamWithReply",
		CreateInContext: func(ctx *Context) *classState {
			instance := NewDispatchTable()
			instance.NotSupported = streamWithReplyNotSupported
			return &classState{allocator: newStreamWithReplyAllocator(), instance: instance, class: NewDispatchTable()}
		},
	})
}

func streamWithReplyNotSupported(ctx *Context, handle DataHandle, sel SelectorID, args []Value) Continuation {
	data := ctx.Allocator(streamWithReplyClassID).(*streamWithReplyAllocator).get(handle)
	msg := NewMessageValue(&Message{Selector: sel, Args: args})
	future := NewFuture()
	entry := &streamReplyEntry{Message: msg, reply: future}
	go data.push(entry)
	return Later(future)
}

// NewStreamWithReplyValue mints a StreamWithReply instance and the
// receive-only channel of pending entries the host must Reply to in order
// to unblock the script, per the distilled spec's bidirectional streaming
// clause (spec.md section 4.9).
func NewStreamWithReplyValue(ctx *Context) (Value, <-chan *streamReplyEntry) {
	ctx.classStateFor(streamWithReplyClassID)
	alloc := ctx.Allocator(streamWithReplyClassID).(*streamWithReplyAllocator)
	h, data := alloc.create()
	return NewReferenceValue(Reference{Class: streamWithReplyClassID, Handle: h}), data.out
}

// streamSourceData is a StreamSource instance's payload: an externally
// supplied Value channel (usually Messages reified by a Go-side producer)
// pulled one item at a time by the "next" selector, per
// "receive_one_message"/"receive_two_messages" (original_source's
// create_talk_receiver).
type streamSourceData struct {
	in chan Value
}

type streamSourceEntry struct {
	data     *streamSourceData
	refcount int32
}

type streamSourceAllocator struct {
	mu      sync.Mutex
	next    uint64
	entries map[DataHandle]*streamSourceEntry
}

func newStreamSourceAllocator() *streamSourceAllocator {
	return &streamSourceAllocator{entries: make(map[DataHandle]*streamSourceEntry)}
}

func (a *streamSourceAllocator) create(in chan Value) DataHandle {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next++
	h := DataHandle(a.next)
	a.entries[h] = &streamSourceEntry{data: &streamSourceData{in: in}, refcount: 1}
	return h
}

func (a *streamSourceAllocator) get(h DataHandle) *streamSourceData {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entries[h]
	if !ok {
		return nil
	}
	return e.data
}

func (a *streamSourceAllocator) AddReference(ctx *Context, h DataHandle) {
	a.mu.Lock()
	e, ok := a.entries[h]
	a.mu.Unlock()
	if !ok {
		panic("flotalk: AddReference on unknown stream-source handle")
	}
	addInt32(&e.refcount, 1)
}

func (a *streamSourceAllocator) RemoveReference(ctx *Context, h DataHandle) {
	a.mu.Lock()
	e, ok := a.entries[h]
	a.mu.Unlock()
	if !ok {
		panic("flotalk: RemoveReference on unknown stream-source handle")
	}
	addInt32(&e.refcount, -1)
}

// streamSourceClassID is "StreamSource", the receiver half of stream_to:
// its one handler, "next", pulls the next externally produced Value (Nil
// once the source is closed), per "receiver next" in stream_tests.rs.
var streamSourceClassID ClassID

func init() {
	streamSourceClassID = RegisterClass(&ClassCallbacks{
		Name: "StreamSource",
		CreateInContext: func(ctx *Context) *classState {
			instance := NewDispatchTable()
			instance.Install(selNext, streamSourceNextHandler)
			return &classState{allocator: newStreamSourceAllocator(), instance: instance, class: NewDispatchTable()}
		},
	})
}

func streamSourceNextHandler(ctx *Context, handle DataHandle, sel SelectorID, args []Value) Continuation {
	if len(args) != 0 {
		return Ready(NewMessageNotSupported(sel))
	}
	data := ctx.Allocator(streamSourceClassID).(*streamSourceAllocator).get(handle)
	future := NewFuture()
	go func() {
		v, ok := <-data.in
		if !ok {
			future.Resolve(Ready(Nil))
			return
		}
		future.Resolve(Ready(v))
	}()
	return Later(future)
}

// NewStreamSourceValue mints a StreamSource instance pulling from source: a
// channel of Values (typically built with NewMessageValue) a Go-side
// producer feeds, the mechanism behind Runtime.NewReceiver for a script that
// reads its input with repeated "next" sends instead of being driven
// directly (original_source's create_talk_receiver).
func NewStreamSourceValue(ctx *Context, source chan Value) Value {
	ctx.classStateFor(streamSourceClassID)
	alloc := ctx.Allocator(streamSourceClassID).(*streamSourceAllocator)
	h := alloc.create(source)
	return NewReferenceValue(Reference{Class: streamSourceClassID, Handle: h})
}
