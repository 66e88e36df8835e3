package chat

import (
	"log"
	"sync"
)

const (
	ViewAppend = "append"
	ViewUpdate = "update"
	ViewRemove = "remove"
)

// ViewEvent describes one change to a controller's message view. These are
// what the browser receives over the session events stream.
type ViewEvent struct {
	Type    string  `json:"type"`
	Message Message `json:"message"`
}

// watchers fans view events out to SSE clients. Slow clients lose events
// rather than stall the controller; they resync from the next snapshot.
type watchers struct {
	mu   sync.Mutex
	subs map[chan ViewEvent]struct{}
}

func newWatchers() *watchers {
	return &watchers{subs: make(map[chan ViewEvent]struct{})}
}

func (w *watchers) add() chan ViewEvent {
	ch := make(chan ViewEvent, 16)
	w.mu.Lock()
	w.subs[ch] = struct{}{}
	w.mu.Unlock()
	return ch
}

func (w *watchers) remove(ch chan ViewEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.subs[ch]; ok {
		delete(w.subs, ch)
		close(ch)
	}
}

func (w *watchers) broadcast(ev ViewEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for ch := range w.subs {
		select {
		case ch <- ev:
		default:
			log.Printf("[watch] subscriber full, dropping %s event message_id=%s", ev.Type, ev.Message.MessageID)
		}
	}
}
