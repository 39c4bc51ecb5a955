package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/docsight/docsight/internal/port"
)

func newTestNotifier(t *testing.T) *RedisNotifier {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisNotifierWithClient(client)
}

func waitForEvents(t *testing.T, ch <-chan port.ChangeEvent, n int) []port.ChangeEvent {
	t.Helper()
	var out []port.ChangeEvent
	deadline := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case evt := <-ch:
			out = append(out, evt)
		case <-deadline:
			t.Fatalf("timed out waiting for events, got %d of %d", len(out), n)
		}
	}
	return out
}

func TestRedisNotifierPublishSubscribe(t *testing.T) {
	n := newTestNotifier(t)

	events := make(chan port.ChangeEvent, 8)
	unsub, err := n.Subscribe("repositories", func(evt port.ChangeEvent) {
		events <- evt
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer unsub()

	ctx := context.Background()
	writes := []port.ChangeEvent{
		{Collection: "repositories", DocID: "a", Op: port.OpCreate},
		{Collection: "repositories", DocID: "a", Op: port.OpUpdate},
	}
	for _, evt := range writes {
		if err := n.Publish(ctx, evt); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	got := waitForEvents(t, events, 2)
	for i, evt := range got {
		if evt != writes[i] {
			t.Fatalf("event %d = %+v, want %+v", i, evt, writes[i])
		}
	}
}

func TestRedisNotifierScopesByCollection(t *testing.T) {
	n := newTestNotifier(t)

	events := make(chan port.ChangeEvent, 8)
	unsub, err := n.Subscribe("jobs", func(evt port.ChangeEvent) {
		events <- evt
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer unsub()

	ctx := context.Background()
	if err := n.Publish(ctx, port.ChangeEvent{Collection: "repositories", DocID: "r1", Op: port.OpCreate}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := n.Publish(ctx, port.ChangeEvent{Collection: "jobs", DocID: "j1", Op: port.OpCreate}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	got := waitForEvents(t, events, 1)
	if got[0].DocID != "j1" {
		t.Fatalf("event = %+v, want only the jobs event", got[0])
	}
	select {
	case evt := <-events:
		t.Fatalf("unexpected cross-collection event %+v", evt)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRedisNotifierUnsubscribeStopsCallbacks(t *testing.T) {
	n := newTestNotifier(t)

	events := make(chan port.ChangeEvent, 8)
	unsub, err := n.Subscribe("repositories", func(evt port.ChangeEvent) {
		events <- evt
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	unsub()
	unsub() // idempotent

	if err := n.Publish(context.Background(), port.ChangeEvent{Collection: "repositories", DocID: "a", Op: port.OpCreate}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case evt := <-events:
		t.Fatalf("event %+v delivered after unsubscribe", evt)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestLocalNotifier(t *testing.T) {
	n := NewLocalNotifier()

	var got []port.ChangeEvent
	unsub, err := n.Subscribe("repositories", func(evt port.ChangeEvent) {
		got = append(got, evt)
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	evt := port.ChangeEvent{Collection: "repositories", DocID: "a", Op: port.OpCreate}
	if err := n.Publish(context.Background(), evt); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(got) != 1 || got[0] != evt {
		t.Fatalf("events = %v", got)
	}

	unsub()
	unsub()
	if err := n.Publish(context.Background(), evt); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(got) != 1 {
		t.Fatal("event delivered after unsubscribe")
	}
}
