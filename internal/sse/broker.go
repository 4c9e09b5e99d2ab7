// Package sse implements a Server-Sent Events broker for sync status and
// document updates.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Event types published by the application.
const (
	TypeSyncStatus      = "sync.status"
	TypeSyncError       = "sync.error"
	TypeDocumentUpdated = "document.updated"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// StatusData is the payload of a sync.status event.
type StatusData struct {
	Status  string `json:"status"`
	Durable bool   `json:"durable"`
	Target  string `json:"target,omitempty"`
}

// DocumentData is the payload of a document.updated event.
type DocumentData struct {
	Items    int    `json:"items"`
	Checksum string `json:"checksum"`
}

// Broker manages SSE client connections and broadcasts events.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable state
// (clients, the last status frame and the document throttle). Public methods
// communicate with this loop through channels, so no mutexes are required.
type Broker struct {
	docMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	documentCh    chan DocumentData
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker. document.updated events are sent at
// most once per docThrottle; the last update in a window is always delivered.
func NewBroker(docThrottle time.Duration) *Broker {
	if docThrottle <= 0 {
		docThrottle = 500 * time.Millisecond
	}

	b := &Broker{
		docMin:        docThrottle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		documentCh:    make(chan DocumentData, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func frame(event Event) ([]byte, bool) {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return nil, false
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload)), true
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var lastStatus []byte

	var lastDoc time.Time
	var pendingDoc *DocumentData
	docTimer := time.NewTimer(time.Hour)
	docTimer.Stop()
	defer docTimer.Stop()

	send := func(raw []byte) {
		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
			}
		}
	}
	broadcast := func(event Event) {
		raw, ok := frame(event)
		if !ok {
			return
		}
		if event.Type == TypeSyncStatus {
			lastStatus = raw
		}
		send(raw)
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}
			if lastStatus != nil {
				ch <- lastStatus
			}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case data := <-b.documentCh:
			now := time.Now()
			if pendingDoc == nil && now.Sub(lastDoc) >= b.docMin {
				lastDoc = now
				broadcast(Event{Type: TypeDocumentUpdated, Data: data})
				continue
			}
			if pendingDoc == nil {
				docTimer.Reset(b.docMin - now.Sub(lastDoc))
			}
			pendingDoc = &data

		case <-docTimer.C:
			if pendingDoc != nil {
				lastDoc = time.Now()
				broadcast(Event{Type: TypeDocumentUpdated, Data: *pendingDoc})
				pendingDoc = nil
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel. The most recent
// sync.status frame, if any, is queued on the channel right away.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishStatus broadcasts a sync.status event.
func (b *Broker) PublishStatus(data StatusData) {
	b.Publish(Event{Type: TypeSyncStatus, Data: data})
}

// PublishError broadcasts a sync.error event.
func (b *Broker) PublishError(err error) {
	b.Publish(Event{Type: TypeSyncError, Data: map[string]string{"error": err.Error()}})
}

// PublishDocument publishes a throttled document.updated event.
func (b *Broker) PublishDocument(data DocumentData) {
	if b.closed.Load() {
		return
	}
	select {
	case b.documentCh <- data:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
