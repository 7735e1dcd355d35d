package flotalk

import "testing"

// TestStreamReifiesSendsAsMessages covers Stream: every not-understood send
// to a Stream instance is pushed onto its channel as a Message and the
// sender receives Nil once a reader has consumed it.
func TestStreamReifiesSendsAsMessages(t *testing.T) {
	ctx := newTestContext()
	stream, out := NewStreamValue(ctx)

	sel := InternKeywordSelector("add:")
	received := make(chan Value, 1)
	go func() {
		received <- <-out
	}()

	result := runToCompletion(ctx, Send(ctx, stream, sel, []Value{NewInt(10)}))
	if !result.IsNil() {
		t.Fatalf("stream send result = %+v, want Nil", result)
	}

	msg := <-received
	if msg.Kind != KindMessage || msg.Msg == nil {
		t.Fatalf("received value %+v was not a Message", msg)
	}
	m := msg.Msg
	if m.Selector != sel || len(m.Args) != 1 || m.Args[0].Int != 10 {
		t.Fatalf("received message %+v did not match the send", m)
	}
}

// TestStreamSourceNextPullsOrAnswersNil covers StreamSource: "next" answers
// a value fed into the source channel, and Nil once the channel is closed.
func TestStreamSourceNextPullsOrAnswersNil(t *testing.T) {
	ctx := newTestContext()
	source := make(chan Value, 1)
	recv := NewStreamSourceValue(ctx, source)

	source <- NewInt(5)
	first := runToCompletion(ctx, Send(ctx, ctx.CloneValueInContext(recv), selNext, nil))
	requireInt(t, first, 5)

	close(source)
	second := runToCompletion(ctx, Send(ctx, recv, selNext, nil))
	if !second.IsNil() {
		t.Fatalf("next on an exhausted source = %+v, want Nil", second)
	}
}

// TestStreamWithReplyBlocksUntilReplied covers StreamWithReply: the sender
// stays suspended until the host calls Reply, and receives exactly the
// value supplied there.
func TestStreamWithReplyBlocksUntilReplied(t *testing.T) {
	ctx := newTestContext()
	stream, out := NewStreamWithReplyValue(ctx)

	sel := InternUnarySelector("ping")
	done := make(chan struct{})
	go func() {
		entry := <-out
		entry.Reply(NewInt(42))
		close(done)
	}()

	result := runToCompletion(ctx, Send(ctx, stream, sel, nil))
	<-done
	requireInt(t, result, 42)
}
