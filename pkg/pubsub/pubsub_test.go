package pubsub

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func receive(t *testing.T, sub Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatalf("subscription closed")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for event")
	}
	return Event{}
}

func TestReplay(t *testing.T) {
	tests := []struct {
		name      string
		cfg       TopicConfig
		published int
		want      []int
	}{
		{"replay all", TopicConfig{BufferSize: 3, ReplayAll: true}, 5, []int{3, 4, 5}},
		{"last only", TopicConfig{BufferSize: 5}, 3, []int{3}},
		{"no buffer", TopicConfig{}, 3, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := NewPublisher()
			defer pub.Close()
			pub.ConfigureTopic("frames", tt.cfg)
			for i := 1; i <= tt.published; i++ {
				if err := pub.Publish("frames", "frame", map[string]int{"n": i}); err != nil {
					t.Fatalf("Publish() error = %v", err)
				}
			}
			sub, err := pub.Subscribe(context.Background(), "frames")
			if err != nil {
				t.Fatalf("Subscribe() error = %v", err)
			}
			defer sub.Close()
			for _, v := range tt.want {
				if got := receive(t, sub).Version; got != v {
					t.Fatalf("replayed version got = %d, want %d", got, v)
				}
			}
			select {
			case ev := <-sub.Events():
				t.Fatalf("unexpected event %d", ev.Version)
			default:
			}
		})
	}
}

func TestPublishDelivers(t *testing.T) {
	pub := NewPublisher()
	defer pub.Close()
	sub, _ := pub.Subscribe(context.Background(), "a")
	other, _ := pub.Subscribe(context.Background(), "b")
	defer other.Close()

	pub.Publish("a", "frame", map[string]string{"k": "v"})
	ev := receive(t, sub)
	if ev.Type != "frame" || ev.Topic != "a" || string(ev.Data) != `{"k":"v"}` {
		t.Fatalf("event got = %+v", ev)
	}
	select {
	case ev := <-other.Events():
		t.Fatalf("other topic received %+v", ev)
	default:
	}

	sub.Close()
	if _, ok := <-sub.Events(); ok {
		t.Fatalf("closed subscription still open")
	}
	if got := pub.Subscribers("a"); got != 0 {
		t.Fatalf("Subscribers() got = %d, want 0", got)
	}
}

func TestDropOldest(t *testing.T) {
	pub := NewPublisher()
	pub.SubBuffer = 2
	defer pub.Close()
	pub.ConfigureTopic("f", TopicConfig{DropOldest: true})
	sub, _ := pub.Subscribe(context.Background(), "f")
	for i := 0; i < 5; i++ {
		pub.Publish("f", "frame", i)
	}
	if a, b := receive(t, sub).Version, receive(t, sub).Version; a != 4 || b != 5 {
		t.Fatalf("kept versions got = %d %d, want 4 5", a, b)
	}
}

func TestContextAndClose(t *testing.T) {
	pub := NewPublisher()
	ctx, cancel := context.WithCancel(context.Background())
	sub, _ := pub.Subscribe(ctx, "s")
	cancel()
	select {
	case _, ok := <-sub.Events():
		if ok {
			t.Fatalf("unexpected event")
		}
	case <-time.After(time.Second):
		t.Fatalf("cancel did not close subscription")
	}

	keep, _ := pub.Subscribe(context.Background(), "s")
	pub.CloseTopic("s")
	if _, ok := <-keep.Events(); ok {
		t.Fatalf("CloseTopic() left subscription open")
	}

	pub.Close()
	if err := pub.Publish("s", "x", 1); err != ErrClosed {
		t.Fatalf("Publish() after Close error = %v, want ErrClosed", err)
	}
	if _, err := pub.Subscribe(context.Background(), "s"); err != ErrClosed {
		t.Fatalf("Subscribe() after Close error = %v, want ErrClosed", err)
	}
}

func TestWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewWriter(rec)
	w.Start()
	w.Start()
	if err := w.WriteEvent("frame", map[string]int{"v": 1}); err != nil {
		t.Fatalf("WriteEvent() error = %v", err)
	}
	w.WriteComment("ping")
	w.Close()
	if err := w.WriteEvent("frame", 1); err == nil {
		t.Fatalf("WriteEvent() after Close error = nil")
	}

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type got = %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "event: frame\ndata: {\"v\":1}\n\n") || !strings.Contains(body, ": ping\n\n") {
		t.Fatalf("body got = %q", body)
	}
}
