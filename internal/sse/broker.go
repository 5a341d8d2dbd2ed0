// Package sse streams note change events to connected UI clients.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Event types.
const (
	TypeNoteSaved          = "note.saved"
	TypeNoteDeleted        = "note.deleted"
	TypeStorageChanged     = "storage.changed"
	TypeCollectionsUpdated = "collections.updated"
)

// DefaultThrottle bounds how often collections.updated is sent.
const DefaultThrottle = 2 * time.Second

// Event is one message on the stream.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// NoteEvent is the payload of note.saved and note.deleted.
type NoteEvent struct {
	URL string `json:"url"`
	ID  string `json:"id"`
}

// StorageEvent is the payload of storage.changed: a blob written or removed
// outside this process.
type StorageEvent struct {
	Kind string `json:"kind"`
	Key  string `json:"key"`
}

// Broker fans events out to subscribers.
//
// One goroutine owns the client set and the throttle timestamp; every public
// method talks to it over channels.
type Broker struct {
	throttle time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	changeCh      chan Event
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker. A non-positive throttle uses DefaultThrottle.
func NewBroker(throttle time.Duration) *Broker {
	if throttle <= 0 {
		throttle = DefaultThrottle
	}
	b := &Broker{
		throttle:      throttle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		changeCh:      make(chan Event, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	go b.run()
	return b
}

// encode renders an event in text/event-stream framing.
func encode(ev Event) ([]byte, error) {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, err
	}
	return fmt.Appendf(nil, "event: %s\ndata: %s\n\n", ev.Type, payload), nil
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var lastCollections time.Time

	send := func(ev Event) {
		msg, err := encode(ev)
		if err != nil {
			return
		}
		for ch := range clients {
			select {
			case ch <- msg:
			default:
				// slow client, drop
			}
		}
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

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case ev := <-b.publishCh:
			send(ev)

		case ev := <-b.changeCh:
			send(ev)
			if now := time.Now(); now.Sub(lastCollections) >= b.throttle {
				lastCollections = now
				send(Event{Type: TypeCollectionsUpdated, Data: struct{}{}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the loop and closes every subscriber channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a client. The channel is closed on Unsubscribe or Close.
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

// Unsubscribe removes a client.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of subscribers.
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

// Publish sends ev to every subscriber as is.
func (b *Broker) Publish(ev Event) {
	b.enqueue(b.publishCh, ev)
}

// NoteChanged publishes note.saved or note.deleted followed by a throttled
// collections.updated. Unknown kinds are ignored.
func (b *Broker) NoteChanged(_ context.Context, kind, url, id string) {
	var typ string
	switch kind {
	case "saved":
		typ = TypeNoteSaved
	case "deleted":
		typ = TypeNoteDeleted
	default:
		return
	}
	b.enqueue(b.changeCh, Event{Type: typ, Data: NoteEvent{URL: url, ID: id}})
}

// StorageChanged publishes storage.changed followed by a throttled
// collections.updated. Its signature matches storage.ChangeCallback.
func (b *Broker) StorageChanged(kind, key string) {
	b.enqueue(b.changeCh, Event{Type: TypeStorageChanged, Data: StorageEvent{Kind: kind, Key: key}})
}

func (b *Broker) enqueue(ch chan Event, ev Event) {
	if b.closed.Load() {
		return
	}
	select {
	case ch <- ev:
	case <-b.stopped:
	}
}

// ServeHTTP streams events until the client disconnects (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	for {
		select {
		case <-r.Context().Done():
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
