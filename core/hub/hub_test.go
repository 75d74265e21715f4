package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"
)

func startHub(t *testing.T, queueSize int) *Hub {
	t.Helper()
	h := New(queueSize)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func receive(t *testing.T, s *Subscriber) string {
	t.Helper()
	select {
	case msg, ok := <-s.C():
		if !ok {
			t.Fatal("subscriber channel closed")
		}
		return string(msg)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a message")
	}
	return ""
}

func TestPublishReachesEverySubscriber(t *testing.T) {
	h := startHub(t, 4)
	a := h.Subscribe()
	b := h.Subscribe()

	h.Publish([]byte("play 1"))

	if got := receive(t, a); got != "play 1" {
		t.Errorf("a got %q", got)
	}
	if got := receive(t, b); got != "play 1" {
		t.Errorf("b got %q", got)
	}
}

func TestSlowSubscriberDropsOldest(t *testing.T) {
	h := startHub(t, 2)
	slow := h.Subscribe()
	fast := h.Subscribe()

	for i := 0; i < 5; i++ {
		h.Publish([]byte(fmt.Sprint(i)))
		if got := receive(t, fast); got != fmt.Sprint(i) {
			t.Fatalf("fast got %q, want %d", got, i)
		}
	}

	deadline := time.Now().Add(time.Second)
	for slow.Dropped() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if n := slow.Dropped(); n != 3 {
		t.Fatalf("dropped = %d, want 3", n)
	}
	if got := receive(t, slow); got != "3" {
		t.Errorf("first kept message = %q, want 3", got)
	}
	if got := receive(t, slow); got != "4" {
		t.Errorf("second kept message = %q, want 4", got)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	h := startHub(t, 2)
	s := h.Subscribe()
	h.Unsubscribe(s)
	h.Unsubscribe(s)

	if _, ok := <-s.C(); ok {
		t.Error("channel still open after Unsubscribe")
	}
	if h.Len() != 0 {
		t.Errorf("Len = %d", h.Len())
	}
	// Publishing with a removed subscriber must not panic.
	h.Publish([]byte("x"))
}

func TestStopClosesSubscribers(t *testing.T) {
	h := New(2)
	done := make(chan struct{})
	go func() {
		h.Run(context.Background())
		close(done)
	}()
	s := h.Subscribe()
	h.Stop()
	<-done

	if _, ok := <-s.C(); ok {
		t.Error("channel still open after Stop")
	}
	late := h.Subscribe()
	if _, ok := <-late.C(); ok {
		t.Error("subscribing to a stopped hub should return a closed channel")
	}
	h.Publish([]byte("ignored"))
}

func TestPublishEvent(t *testing.T) {
	h := startHub(t, 2)
	s := h.Subscribe()
	h.PublishEvent(Event{Type: EventCatalogChanged, Revision: 7})

	var ev Event
	if err := json.Unmarshal([]byte(receive(t, s)), &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != EventCatalogChanged || ev.Revision != 7 || ev.Timestamp == 0 {
		t.Errorf("event = %+v", ev)
	}
}

func TestPublishWithoutRunDoesNotBlock(t *testing.T) {
	h := New(4)
	done := make(chan struct{})
	go func() {
		for i := 0; i < broadcastBuffer+10; i++ {
			h.Publish([]byte(fmt.Sprint(i)))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked with a full buffer")
	}
	if got := h.Dropped(); got != 10 {
		t.Errorf("Dropped = %d, want 10", got)
	}

	// 启动后缓冲中的消息仍会送达
	sub := h.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)
	if got := receive(t, sub); got == "" {
		t.Error("buffered message not delivered")
	}
}
