package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"vesper/log"
)

const (
	feedBuffer  = 128
	finalizeMax = 5 * time.Second
)

// wire message types: outbound "finalize"/"cancel" text frames,
// inbound "result"/"error"; audio goes as binary frames.
type wireMessage struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Err  string `json:"error,omitempty"`
}

// StreamClient multiplexes one websocket exchange per session id.
// The coordinator only sees Cancel and Events; Open, Feed and Finish
// are driven by the capture side.
type StreamClient struct {
	url    string
	header http.Header
	events chan Event

	mu       sync.Mutex
	inflight map[int64]*stream
}

func NewStream(url string, header http.Header) *StreamClient {
	return &StreamClient{
		url:      url,
		header:   header,
		events:   make(chan Event, 16),
		inflight: make(map[int64]*stream),
	}
}

func (c *StreamClient) Events() <-chan Event { return c.events }

// Open dials the backend and starts the sender/receiver pair for id.
func (c *StreamClient) Open(ctx context.Context, id time.Time) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		return fmt.Errorf("remote dial: %w", err)
	}

	s := &stream{
		id:     id,
		conn:   conn,
		sendCh: make(chan []byte, feedBuffer),
		done:   make(chan struct{}),
	}

	c.mu.Lock()
	c.inflight[id.UnixNano()] = s
	c.mu.Unlock()

	go s.runSender()
	go s.runReceiver(c.resolve)
	return nil
}

// Feed queues PCM for id. A no-op when no exchange is open for id.
func (c *StreamClient) Feed(id time.Time, pcm []byte) {
	c.mu.Lock()
	s := c.inflight[id.UnixNano()]
	c.mu.Unlock()
	if s == nil {
		return
	}
	chunk := make([]byte, len(pcm))
	copy(chunk, pcm)
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.sendClosed {
		return
	}
	select {
	case s.sendCh <- chunk:
	default:
		log.Warn("remote: feed buffer full, dropping chunk")
	}
}

// Finish closes the send side for id; the receiver keeps running
// until the backend answers with a result (bounded by finalizeMax).
func (c *StreamClient) Finish(id time.Time) {
	c.mu.Lock()
	s := c.inflight[id.UnixNano()]
	c.mu.Unlock()
	if s == nil {
		return
	}
	s.closeSend()
	go func() {
		select {
		case <-s.resolved():
		case <-time.After(finalizeMax):
			c.resolve(s, Event{ID: s.id, Kind: Failed, Err: "finalize timeout"})
		}
	}()
}

// Cancel aborts the exchange for id. Safe to call repeatedly and
// after completion: an id with no open exchange is a no-op.
func (c *StreamClient) Cancel(id time.Time) {
	c.mu.Lock()
	s := c.inflight[id.UnixNano()]
	c.mu.Unlock()
	if s == nil {
		log.Debugf("remote: cancel for inactive session %d", id.UnixNano())
		return
	}
	s.markCancelled()
	c.resolve(s, Event{ID: s.id, Kind: Failed, Err: "cancelled"})
}

// Close tears down all open exchanges.
func (c *StreamClient) Close() {
	c.mu.Lock()
	streams := make([]*stream, 0, len(c.inflight))
	for _, s := range c.inflight {
		streams = append(streams, s)
	}
	c.mu.Unlock()
	for _, s := range streams {
		c.Cancel(s.id)
	}
}

// resolve emits the terminal event exactly once per stream and
// forgets the exchange.
func (c *StreamClient) resolve(s *stream, ev Event) {
	s.resolveOnce.Do(func() {
		close(s.done)
		s.closeSend()
		s.conn.Close()

		c.mu.Lock()
		delete(c.inflight, s.id.UnixNano())
		c.mu.Unlock()

		// The coordinator loop both calls Cancel and drains events; a
		// blocking send on a saturated buffer would wedge it.
		select {
		case c.events <- ev:
		default:
			log.Warnf("remote: event buffer full, dropping %s for session %d", ev.Kind, ev.ID.UnixNano())
		}
	})
}

type stream struct {
	id     time.Time
	conn   *websocket.Conn
	sendCh chan []byte

	sendMu     sync.Mutex
	sendClosed bool

	resolveOnce sync.Once
	cancelMu    sync.Mutex
	cancelled   bool
	done        chan struct{}
}

func (s *stream) resolved() <-chan struct{} { return s.done }

func (s *stream) closeSend() {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.sendClosed {
		return
	}
	s.sendClosed = true
	close(s.sendCh)
}

func (s *stream) markCancelled() {
	s.cancelMu.Lock()
	s.cancelled = true
	s.cancelMu.Unlock()
	// Best-effort: tell the backend before the socket drops.
	msg, _ := json.Marshal(wireMessage{Type: "cancel"})
	s.conn.WriteMessage(websocket.TextMessage, msg)
}

func (s *stream) isCancelled() bool {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	return s.cancelled
}

func (s *stream) runSender() {
	for chunk := range s.sendCh {
		if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
			return
		}
	}
	msg, _ := json.Marshal(wireMessage{Type: "finalize"})
	s.conn.WriteMessage(websocket.TextMessage, msg)
}

func (s *stream) runReceiver(resolve func(*stream, Event)) {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.isCancelled() {
				return
			}
			resolve(s, Event{ID: s.id, Kind: Failed, Err: err.Error()})
			return
		}

		var msg wireMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "result":
			resolve(s, Event{ID: s.id, Kind: Completed, Text: msg.Text})
			return
		case "error":
			resolve(s, Event{ID: s.id, Kind: Failed, Err: msg.Err})
			return
		}
	}
}
