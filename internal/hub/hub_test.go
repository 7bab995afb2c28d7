package hub

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"metrotrack/internal/tracking"
)

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	return h, cancel
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 1s")
		}
		time.Sleep(time.Millisecond)
	}
}

func receive(t *testing.T, c *Client) DeltaMessage {
	t.Helper()
	select {
	case data := <-c.Send:
		var msg DeltaMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message within 1s")
	}
	return DeltaMessage{}
}

func expectNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.Send:
		t.Fatalf("unexpected message %s", data)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHub_FanoutByLine(t *testing.T) {
	h, _ := startHub(t)

	red := NewClient("red", 8)
	blue := NewClient("blue", 8)
	all := NewClient("all", 8)
	for _, c := range []*Client{red, blue, all} {
		h.Register(c)
	}
	waitFor(t, func() bool { return h.ClientCount() == 3 })
	h.Subscribe(red, []string{"red"})
	h.Subscribe(blue, []string{"blue"})
	h.Subscribe(all, []string{AllLines})

	h.Broadcast([]tracking.Delta{
		{Type: tracking.DeltaUpdate, Key: "red:forward", LineID: "red", State: &tracking.State{Key: "red:forward", LineID: "red"}},
		{Type: tracking.DeltaRemove, Key: "red:backward", LineID: "red"},
	})

	msg := receive(t, red)
	if msg.Type != "delta" || len(msg.Payload.Updates) != 1 || len(msg.Payload.Removes) != 1 {
		t.Errorf("red client got %+v", msg)
	}
	if msg.Payload.Removes[0] != "red:backward" {
		t.Errorf("removes = %v, want [red:backward]", msg.Payload.Removes)
	}
	if got := receive(t, all); len(got.Payload.Updates) != 1 {
		t.Errorf("wildcard client got %+v", got)
	}
	expectNothing(t, blue)
}

func TestHub_NoDuplicateForWildcardAndLine(t *testing.T) {
	h, _ := startHub(t)
	c := NewClient("c", 8)
	h.Register(c)
	waitFor(t, func() bool { return h.ClientCount() == 1 })
	h.Subscribe(c, []string{"red", AllLines})

	h.Broadcast([]tracking.Delta{{Type: tracking.DeltaRemove, Key: "red:forward", LineID: "red"}})

	if msg := receive(t, c); len(msg.Payload.Removes) != 1 {
		t.Errorf("removes = %v, want one entry", msg.Payload.Removes)
	}
	expectNothing(t, c)
}

func TestHub_Unsubscribe(t *testing.T) {
	h, _ := startHub(t)
	c := NewClient("c", 8)
	h.Register(c)
	waitFor(t, func() bool { return h.ClientCount() == 1 })
	h.Subscribe(c, []string{"red"})
	h.Unsubscribe(c, []string{"red"})

	if c.HasLine("red") {
		t.Error("client still subscribed to red")
	}
	h.Broadcast([]tracking.Delta{{Type: tracking.DeltaRemove, Key: "red:forward", LineID: "red"}})
	expectNothing(t, c)
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	h, _ := startHub(t)
	c := NewClient("c", 8)
	h.Register(c)
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	h.Unregister(c)
	waitFor(t, func() bool { return h.ClientCount() == 0 })
	if _, ok := <-c.Send; ok {
		t.Error("Send channel still open after unregister")
	}
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	h, cancel := startHub(t)
	c := NewClient("c", 8)
	h.Register(c)
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	cancel()
	select {
	case _, ok := <-c.Send:
		if ok {
			t.Error("received data instead of close")
		}
	case <-time.After(time.Second):
		t.Fatal("Send not closed on shutdown")
	}
}

func TestHub_BroadcastEmptyIsNoop(t *testing.T) {
	h := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.Broadcast(nil)
	if len(h.broadcast) != 0 {
		t.Error("empty broadcast was queued")
	}
}

func TestHub_DeliverOnlyToRegistered(t *testing.T) {
	h, _ := startHub(t)
	c := NewClient("c", 1)

	if h.Deliver(c, []byte("early")) {
		t.Error("delivered to an unregistered client")
	}
	h.Register(c)
	if !h.Deliver(c, []byte("one")) {
		t.Error("delivery to a registered client failed")
	}
	if h.Deliver(c, []byte("two")) {
		t.Error("delivered past a full buffer")
	}
	if got := string(<-c.Send); got != "one" {
		t.Errorf("got %q, want one", got)
	}

	h.Unregister(c)
	h.Unregister(c)
	if h.Deliver(c, []byte("late")) {
		t.Error("delivered after unregister")
	}
}
