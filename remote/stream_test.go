package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// testBackend accepts one websocket exchange and answers a result
// once the client finalizes.
type testBackend struct {
	srv       *httptest.Server
	resultTxt string
	binFrames atomic.Int64
}

func newTestBackend(t *testing.T, resultTxt string) *testBackend {
	t.Helper()
	b := &testBackend{resultTxt: resultTxt}
	upgrader := websocket.Upgrader{}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if kind == websocket.BinaryMessage {
				b.binFrames.Add(1)
				continue
			}
			var msg wireMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			switch msg.Type {
			case "finalize":
				reply, _ := json.Marshal(wireMessage{Type: "result", Text: b.resultTxt})
				conn.WriteMessage(websocket.TextMessage, reply)
				return
			case "cancel":
				return
			}
		}
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *testBackend) wsURL() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http")
}

func waitRemoteEvent(t *testing.T, c *StreamClient) Event {
	t.Helper()
	select {
	case ev := <-c.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for remote event")
		return Event{}
	}
}

func TestStreamCompletes(t *testing.T) {
	backend := newTestBackend(t, "turn the lights on")
	c := NewStream(backend.wsURL(), nil)

	id := time.Now()
	if err := c.Open(context.Background(), id); err != nil {
		t.Fatal(err)
	}
	c.Feed(id, make([]byte, 640))
	c.Feed(id, make([]byte, 640))
	c.Finish(id)

	ev := waitRemoteEvent(t, c)
	if ev.Kind != Completed {
		t.Fatalf("kind = %v, want completed (err=%q)", ev.Kind, ev.Err)
	}
	if !ev.ID.Equal(id) {
		t.Error("event id mismatch")
	}
	if ev.Text != "turn the lights on" {
		t.Errorf("text = %q", ev.Text)
	}
	if backend.binFrames.Load() != 2 {
		t.Errorf("backend saw %d audio frames, want 2", backend.binFrames.Load())
	}
}

func TestCancelEmitsFailedOnce(t *testing.T) {
	backend := newTestBackend(t, "ignored")
	c := NewStream(backend.wsURL(), nil)

	id := time.Now()
	if err := c.Open(context.Background(), id); err != nil {
		t.Fatal(err)
	}

	c.Cancel(id)
	c.Cancel(id) // second call is a no-op

	ev := waitRemoteEvent(t, c)
	if ev.Kind != Failed || ev.Err != "cancelled" {
		t.Fatalf("event = %+v", ev)
	}

	select {
	case ev := <-c.Events():
		t.Fatalf("unexpected second event %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCancelUnknownIDIsNoop(t *testing.T) {
	c := NewStream("ws://127.0.0.1:1/unused", nil)
	c.Cancel(time.Now())

	select {
	case ev := <-c.Events():
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCancelAfterCompletedIsNoop(t *testing.T) {
	backend := newTestBackend(t, "done")
	c := NewStream(backend.wsURL(), nil)

	id := time.Now()
	if err := c.Open(context.Background(), id); err != nil {
		t.Fatal(err)
	}
	c.Finish(id)
	ev := waitRemoteEvent(t, c)
	if ev.Kind != Completed {
		t.Fatalf("kind = %v", ev.Kind)
	}

	c.Cancel(id)
	select {
	case ev := <-c.Events():
		t.Fatalf("cancel after completion produced %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCancelNeverBlocksWhenEventsUndrained(t *testing.T) {
	backend := newTestBackend(t, "ignored")
	c := NewStream(backend.wsURL(), nil)

	// More exchanges than the event buffer holds, with no consumer.
	base := time.Now()
	const exchanges = 24
	for i := 0; i < exchanges; i++ {
		if err := c.Open(context.Background(), base.Add(time.Duration(i)*time.Millisecond)); err != nil {
			t.Fatal(err)
		}
	}

	done := make(chan struct{})
	go func() {
		for i := 0; i < exchanges; i++ {
			c.Cancel(base.Add(time.Duration(i) * time.Millisecond))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("cancel stalled with no event consumer")
	}
}

func TestFeedUnknownIDIsNoop(t *testing.T) {
	c := NewStream("ws://127.0.0.1:1/unused", nil)
	c.Feed(time.Now(), []byte{1, 2, 3}) // must not panic
}
