package ws

import (
	"testing"
	"time"
)

func newTestHub() *Hub {
	return NewHub(30*time.Second, 60*time.Second)
}

func TestRegisterUnregister(t *testing.T) {
	h := newTestHub()

	c := h.Register(nil)
	if c.ID == "" {
		t.Fatal("Register returned empty client id")
	}
	if h.Get(c.ID) != c {
		t.Error("Get did not return the registered client")
	}
	if h.Len() != 1 {
		t.Errorf("Len = %d, want 1", h.Len())
	}

	h.Unregister(c.ID, false)
	if h.Get(c.ID) != nil {
		t.Error("client still registered after Unregister")
	}
	if h.Len() != 0 {
		t.Errorf("Len = %d, want 0", h.Len())
	}

	// Send must be closed so the write pump exits.
	if _, ok := <-c.Send; ok {
		t.Error("Send channel still open after Unregister")
	}

	// Double unregister is a no-op.
	h.Unregister(c.ID, false)
}

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	h := newTestHub()

	owner := h.Register(nil)
	viewer := h.Register(nil)
	outsider := h.Register(nil)

	h.Subscribe(owner.ID, "s1")
	h.Subscribe(viewer.ID, "s1")
	h.Subscribe(outsider.ID, "s2")

	n := h.BroadcastToSession("s1", []byte("hello"))
	if n != 2 {
		t.Fatalf("BroadcastToSession = %d, want 2", n)
	}

	for _, c := range []*Client{owner, viewer} {
		select {
		case msg := <-c.Send:
			if string(msg) != "hello" {
				t.Errorf("client %s received %q", c.ID, msg)
			}
		default:
			t.Errorf("client %s received nothing", c.ID)
		}
	}
	select {
	case msg := <-outsider.Send:
		t.Errorf("outsider received %q", msg)
	default:
	}
}

func TestBroadcastToUnknownSession(t *testing.T) {
	h := newTestHub()
	if n := h.BroadcastToSession("nope", []byte("x")); n != 0 {
		t.Errorf("BroadcastToSession = %d, want 0", n)
	}
}

func TestUnregisterClearsSubscription(t *testing.T) {
	h := newTestHub()

	a := h.Register(nil)
	b := h.Register(nil)
	h.Subscribe(a.ID, "s1")
	h.Subscribe(b.ID, "s1")

	h.Unregister(a.ID, false)

	if _, ok := h.SubscriptionOf(a.ID); ok {
		t.Error("subscription survived Unregister")
	}

	// The remaining subscriber is unaffected.
	if n := h.BroadcastToSession("s1", []byte("still here")); n != 1 {
		t.Errorf("BroadcastToSession = %d, want 1", n)
	}
	select {
	case msg := <-b.Send:
		if string(msg) != "still here" {
			t.Errorf("received %q", msg)
		}
	default:
		t.Error("remaining subscriber received nothing")
	}
}

func TestSubscribeUnknownClientIgnored(t *testing.T) {
	h := newTestHub()
	h.Subscribe("ghost", "s1")
	if _, ok := h.SubscriptionOf("ghost"); ok {
		t.Error("subscription recorded for unregistered client")
	}
}

func TestSendToUnknownClient(t *testing.T) {
	h := newTestHub()
	// Must not panic.
	h.SendTo("ghost", []byte("x"))
}

func TestFullBufferDropsForThatClientOnly(t *testing.T) {
	h := newTestHub()

	slow := h.Register(nil)
	fast := h.Register(nil)
	h.Subscribe(slow.ID, "s1")
	h.Subscribe(fast.ID, "s1")

	for i := 0; i < sendBufferSize; i++ {
		slow.Send <- []byte("backlog")
	}

	n := h.BroadcastToSession("s1", []byte("fresh"))
	if n != 2 {
		t.Fatalf("BroadcastToSession = %d, want 2", n)
	}

	if got := len(slow.Send); got != sendBufferSize {
		t.Errorf("slow buffer length = %d, want %d (message dropped)", got, sendBufferSize)
	}
	select {
	case msg := <-fast.Send:
		if string(msg) != "fresh" {
			t.Errorf("fast client received %q", msg)
		}
	default:
		t.Error("fast client received nothing")
	}
}

func TestEvictStale(t *testing.T) {
	h := NewHub(30*time.Second, 60*time.Second)

	stale := h.Register(nil)
	fresh := h.Register(nil)

	stale.lastActivity.Store(time.Now().Add(-2 * time.Minute).UnixNano())

	h.evictStale()

	if h.Get(stale.ID) != nil {
		t.Error("stale client survived eviction")
	}
	if h.Get(fresh.ID) == nil {
		t.Error("fresh client was evicted")
	}
}

func TestShutdownClosesEverything(t *testing.T) {
	h := newTestHub()
	h.Register(nil)
	h.Register(nil)

	h.Shutdown()

	if h.Len() != 0 {
		t.Errorf("Len after Shutdown = %d, want 0", h.Len())
	}

	// Shutdown is idempotent.
	h.Shutdown()
}
