package chat

import (
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
)

func testLogger() *slog.Logger {
	return logs.GetLoggerFromLevel(slog.LevelDebug)
}

func startRegistry(t *testing.T, replayLimit int) *Registry {
	t.Helper()
	r := NewRegistry(128, replayLimit, testLogger())
	go r.Run()
	t.Cleanup(func() {
		r.Stop()
		r.Wait()
	})
	return r
}

func register(t *testing.T, r *Registry, username string) *Client {
	t.Helper()
	c := &Client{ID: username, Out: make(chan []byte, 256)}
	if err := r.Register(c, username); err != nil {
		t.Fatalf("register(%s) error: %v", username, err)
	}
	return c
}

// waitFor returns the first decoded record on ch accepted by match.
func waitFor(t *testing.T, ch <-chan []byte, match func(Message) bool) Message {
	t.Helper()
	deadline := time.NewTimer(1 * time.Second)
	defer deadline.Stop()
	for {
		select {
		case raw := <-ch:
			m, err := Decode(raw)
			if err != nil {
				t.Fatalf("undecodable record %q: %v", raw, err)
			}
			if match(m) {
				return m
			}
		case <-deadline.C:
			t.Fatalf("timeout waiting for message")
		}
	}
}

func withData(data string) func(Message) bool {
	return func(m Message) bool { return m.Data == data }
}

// assertSilent fails if anything arrives on ch within a short window.
func assertSilent(t *testing.T, ch <-chan []byte) {
	t.Helper()
	select {
	case raw := <-ch:
		t.Fatalf("unexpected record %q", raw)
	case <-time.After(50 * time.Millisecond):
	}
}
