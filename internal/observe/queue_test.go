package observe

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestMemoryQueueRoundTrip(t *testing.T) {
	queue := NewMemoryQueue(8)
	defer queue.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	received := make([]string, 0, 2)
	done := make(chan struct{})

	go func() {
		_ = queue.Consume(ctx, 2, func(_ context.Context, body string) error {
			mu.Lock()
			received = append(received, body)
			if len(received) == 2 {
				close(done)
			}
			mu.Unlock()
			return nil
		})
	}()

	if err := queue.Publish(ctx, "first"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := queue.Publish(ctx, "second"); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("messages not consumed in time")
	}
}

func TestMemoryQueuePublishAfterClose(t *testing.T) {
	queue := NewMemoryQueue(1)
	if err := queue.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := queue.Publish(context.Background(), "late"); err == nil {
		t.Fatal("publish after close must fail")
	}
	// 重复关闭幂等。
	if err := queue.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestRedisQueueRoundTrip(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	queue, err := NewRedisQueue(RedisQueueConfig{
		Address:   s.Addr(),
		Queue:     "trustmesh:test",
		BlockWait: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new redis queue: %v", err)
	}
	defer queue.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan string, 1)
	go func() {
		_ = queue.Consume(ctx, 1, func(_ context.Context, body string) error {
			received <- body
			return nil
		})
	}()

	if err := queue.Publish(ctx, "observation"); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case body := <-received:
		if body != "observation" {
			t.Fatalf("unexpected body: %q", body)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("message not consumed in time")
	}
}

func TestParseMessage(t *testing.T) {
	msg := &Message{
		Kind:   KindHandshake,
		PeerID: "peer-a",
		Scores: map[string]float64{"security": 0.9},
	}
	body, err := msg.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	parsed, err := ParseMessage(body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Kind != KindHandshake || parsed.PeerID != "peer-a" {
		t.Fatalf("unexpected message: %+v", parsed)
	}
	if parsed.Scores["security"] != 0.9 {
		t.Fatalf("scores not preserved: %+v", parsed.Scores)
	}
}

func TestParseMessageRejectsInvalid(t *testing.T) {
	cases := []string{
		"{not json",
		`{"kind":"handshake"}`,
		`{"kind":"teleport","peer_id":"x"}`,
	}
	for _, body := range cases {
		if _, err := ParseMessage(body); err == nil {
			t.Fatalf("expected error for %q", body)
		}
	}
}
