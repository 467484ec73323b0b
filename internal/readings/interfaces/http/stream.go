package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	alerts "thermo-cloud/internal/alerts/domain"
	"thermo-cloud/internal/observability/metrics"
	readingsapp "thermo-cloud/internal/readings/application"
	"thermo-cloud/internal/readings/application/events"
	readings "thermo-cloud/internal/readings/domain"
)

// SSE event names.
const (
	EventReading = "reading"
	EventAlert   = "alert"
)

type message struct {
	event string
	data  []byte
}

// SSEBroker fans out recorded readings and alerts to connected clients.
type SSEBroker struct {
	mu      sync.Mutex
	clients map[chan message]struct{}
	closed  bool
	loc     *time.Location
}

// NewSSEBroker constructs a broker rendering timestamps in loc.
func NewSSEBroker(loc *time.Location) *SSEBroker {
	if loc == nil {
		loc = time.Local
	}
	return &SSEBroker{clients: make(map[chan message]struct{}), loc: loc}
}

// HandleReadingRecorded pushes a newly stored reading to every client.
func (b *SSEBroker) HandleReadingRecorded(_ context.Context, evt events.ReadingRecorded) error {
	if b == nil {
		return nil
	}
	loc := b.loc
	row := readingsapp.DisplayRow{
		Time: evt.Reading.Timestamp.In(loc).Format(readings.ShortTimeLayout),
		TS:   readings.FormatTimestamp(evt.Reading.Timestamp, loc),
		T1:   evt.Reading.T1,
		T2:   evt.Reading.T2,
		T3:   evt.Reading.T3,
	}
	payload, err := json.Marshal(row)
	if err != nil {
		return err
	}
	b.broadcast(EventReading, payload)
	return nil
}

// Notify implements the alert notifier contract.
func (b *SSEBroker) Notify(_ context.Context, event alerts.Event) {
	if b == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	b.broadcast(EventAlert, payload)
}

// subscribe registers a new client channel.
func (b *SSEBroker) subscribe() chan message {
	if b == nil {
		return nil
	}
	ch := make(chan message, 16)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.clients[ch] = struct{}{}
	b.mu.Unlock()
	metrics.AddStreamClients(1)
	return ch
}

// unsubscribe removes a client channel.
func (b *SSEBroker) unsubscribe(ch chan message) {
	if b == nil || ch == nil {
		return
	}
	b.mu.Lock()
	_, ok := b.clients[ch]
	delete(b.clients, ch)
	b.mu.Unlock()
	if ok {
		metrics.AddStreamClients(-1)
		close(ch)
	}
}

// Close disconnects every client and refuses new ones. Streams return once their channel closes.
func (b *SSEBroker) Close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	clients := b.clients
	b.clients = make(map[chan message]struct{})
	b.closed = true
	b.mu.Unlock()
	for ch := range clients {
		metrics.AddStreamClients(-1)
		close(ch)
	}
}

// Clients returns the number of connected clients.
func (b *SSEBroker) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// broadcast sends under the lock so a channel is never closed mid-send.
// Slow clients miss messages rather than stall the publisher.
func (b *SSEBroker) broadcast(event string, payload []byte) {
	msg := message{event: event, data: payload}
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

// StreamHandler serves the SSE stream.
type StreamHandler struct {
	broker *SSEBroker
}

// NewStreamHandler constructs a stream handler.
func NewStreamHandler(broker *SSEBroker) *StreamHandler {
	return &StreamHandler{broker: broker}
}

// ServeHTTP handles GET /api/stream.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.broker == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := h.broker.subscribe()
	if ch == nil {
		http.Error(w, "stream closed", http.StatusServiceUnavailable)
		return
	}
	defer h.broker.unsubscribe(ch)

	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	flusher.Flush()

	done := r.Context().Done()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write([]byte("event: " + msg.event + "\n"))
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(msg.data)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-done:
			return
		}
	}
}
