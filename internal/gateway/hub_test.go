package gateway

import (
	"log"
	"os"
	"testing"

	"github.com/Tell-Me-Mo/insight-engine/internal/insight"
)

func TestBroadcastScopedToSession(t *testing.T) {
	hub := NewHub(log.New(os.Stderr, "", 0))

	a := &client{sessionID: "s1", send: make(chan insight.Event, 4)}
	b := &client{sessionID: "s2", send: make(chan insight.Event, 4)}
	hub.register(a)
	hub.register(b)

	hub.Broadcast(insight.NewEvent(insight.EventSegmentTransition, "s1", nil))

	if len(a.send) != 1 {
		t.Error("s1 subscriber missed its event")
	}
	if len(b.send) != 0 {
		t.Error("event leaked across sessions")
	}
}

func TestSlowClientDropped(t *testing.T) {
	hub := NewHub(log.New(os.Stderr, "", 0))

	slow := &client{sessionID: "s1", send: make(chan insight.Event, 1)}
	hub.register(slow)

	hub.Broadcast(insight.NewEvent(insight.EventSegmentTransition, "s1", nil))
	// Queue full: the next broadcast disconnects the client instead of
	// blocking the pipeline.
	hub.Broadcast(insight.NewEvent(insight.EventSegmentTransition, "s1", nil))

	if hub.Subscribers("s1") != 0 {
		t.Fatal("slow client should have been dropped")
	}

	// The queue was closed; drain proves it terminated.
	if _, ok := <-slow.send; !ok {
		t.Fatal("expected the buffered event before close")
	}
	if _, ok := <-slow.send; ok {
		t.Fatal("expected closed channel after drop")
	}
}

func TestCloseSessionDisconnectsSubscribers(t *testing.T) {
	hub := NewHub(log.New(os.Stderr, "", 0))

	a := &client{sessionID: "s1", send: make(chan insight.Event, 4)}
	b := &client{sessionID: "s1", send: make(chan insight.Event, 4)}
	other := &client{sessionID: "s2", send: make(chan insight.Event, 4)}
	hub.register(a)
	hub.register(b)
	hub.register(other)

	hub.CloseSession("s1")

	if hub.Subscribers("s1") != 0 {
		t.Fatal("finalized session still has subscribers")
	}
	if hub.Subscribers("s2") != 1 {
		t.Fatal("other sessions must keep their subscribers")
	}
	for _, c := range []*client{a, b} {
		if _, ok := <-c.send; ok {
			t.Fatal("expected closed send queue after session close")
		}
	}
}

func TestUnregisterRemovesClient(t *testing.T) {
	hub := NewHub(log.New(os.Stderr, "", 0))
	c := &client{sessionID: "s1", send: make(chan insight.Event, 1)}
	hub.register(c)
	hub.unregister(c)
	if hub.Subscribers("s1") != 0 {
		t.Fatal("client still registered")
	}
	// Unregistering twice must not panic on the closed channel.
	hub.unregister(c)
}
