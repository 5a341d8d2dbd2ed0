package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// drain collects whatever is buffered on ch after a short settle.
func drain(ch chan []byte) []string {
	time.Sleep(50 * time.Millisecond)
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func countType(msgs []string, typ string) int {
	n := 0
	for _, m := range msgs {
		if strings.HasPrefix(m, "event: "+typ+"\n") {
			n++
		}
	}
	return n
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	if n := b.ClientCount(); n != 0 {
		t.Fatalf("clients = %d, want 0", n)
	}
	ch := b.Subscribe()
	if n := b.ClientCount(); n != 1 {
		t.Fatalf("clients = %d, want 1", n)
	}
	b.Unsubscribe(ch)
	if n := b.ClientCount(); n != 0 {
		t.Fatalf("clients = %d after unsubscribe, want 0", n)
	}
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after unsubscribe")
	}
}

func TestNoteChanged_Framing(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.NoteChanged(context.Background(), "saved", "https://example.com/", "n1")

	select {
	case msg := <-ch:
		want := "event: note.saved\ndata: {\"url\":\"https://example.com/\",\"id\":\"n1\"}\n\n"
		if string(msg) != want {
			t.Errorf("message = %q, want %q", msg, want)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestNoteChanged_CollectionsThrottled(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.NoteChanged(context.Background(), "saved", "https://a.example/", "1")
	b.NoteChanged(context.Background(), "deleted", "https://a.example/", "1")
	b.NoteChanged(context.Background(), "renamed", "https://a.example/", "1")

	msgs := drain(ch)
	if n := countType(msgs, TypeNoteSaved); n != 1 {
		t.Errorf("note.saved = %d, want 1", n)
	}
	if n := countType(msgs, TypeNoteDeleted); n != 1 {
		t.Errorf("note.deleted = %d, want 1", n)
	}
	if n := countType(msgs, TypeCollectionsUpdated); n != 1 {
		t.Errorf("collections.updated = %d, want 1 (throttled)", n)
	}
	if len(msgs) != 3 {
		t.Errorf("messages = %d, want 3: %q", len(msgs), msgs)
	}
}

func TestStorageChanged(t *testing.T) {
	b := NewBroker(time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.StorageChanged("updated", "notes_https://example.com/")

	msgs := drain(ch)
	if len(msgs) != 2 {
		t.Fatalf("messages = %q, want storage.changed + collections.updated", msgs)
	}
	if !strings.Contains(msgs[0], `"kind":"updated"`) || !strings.Contains(msgs[0], `"key":"notes_https://example.com/"`) {
		t.Errorf("payload = %q", msgs[0])
	}
	if countType(msgs, TypeCollectionsUpdated) != 1 {
		t.Errorf("missing collections.updated in %q", msgs)
	}
}

func TestServeHTTP(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	w := &lockedRecorder{ResponseRecorder: httptest.NewRecorder()}

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for b.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("handler did not subscribe")
		}
		time.Sleep(5 * time.Millisecond)
	}

	b.NoteChanged(context.Background(), "deleted", "https://example.com/", "n9")
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	body := w.body()
	if !strings.Contains(body, "event: note.deleted") || !strings.Contains(body, `"id":"n9"`) {
		t.Errorf("body = %q", body)
	}

	time.Sleep(50 * time.Millisecond)
	if n := b.ClientCount(); n != 0 {
		t.Errorf("clients = %d after disconnect, want 0", n)
	}
}

func TestPublish_FullBufferDoesNotBlock(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	for range 100 {
		b.Publish(Event{Type: "ping", Data: map[string]int{"n": 1}})
	}
	if n := b.ClientCount(); n != 1 {
		t.Errorf("clients = %d, want 1", n)
	}
}

func TestClose(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()

	b.Close()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("subscriber channel should be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}
	if n := b.ClientCount(); n != 0 {
		t.Errorf("clients = %d after close", n)
	}

	// All no-ops once closed.
	b.Close()
	b.Publish(Event{Type: "x"})
	b.NoteChanged(context.Background(), "saved", "u", "i")
	b.StorageChanged("deleted", "k")
	if _, ok := <-b.Subscribe(); ok {
		t.Error("subscribe after close should return a closed channel")
	}
}

// lockedRecorder guards the body against the handler goroutine.
type lockedRecorder struct {
	*httptest.ResponseRecorder
	mu sync.Mutex
}

func (l *lockedRecorder) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ResponseRecorder.Write(p)
}

func (l *lockedRecorder) body() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ResponseRecorder.Body.String()
}
