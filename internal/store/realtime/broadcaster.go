package realtime

import (
	"context"
	"log"
	"sync"

	"github.com/elara-health/chat-service/internal/chat"
)

// Broadcaster is the in-process insert feed: every inserted message row is
// fanned out to all subscribers of its session, including the writer itself.
// Suitable for a single node; multi-node deployments use the Redis feed.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[string]map[chan chat.Message]struct{} // sessionID -> subscribers
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[string]map[chan chat.Message]struct{})}
}

func (b *Broadcaster) PublishInsert(ctx context.Context, m chat.Message) {
	_ = ctx
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[m.SessionID] {
		select {
		case ch <- m:
		default:
			log.Printf("[feed] subscriber full, dropping insert session_id=%s message_id=%s", m.SessionID, m.MessageID)
		}
	}
}

func (b *Broadcaster) SubscribeInserts(sessionID string) (<-chan chat.Message, func()) {
	ch := make(chan chat.Message, 16)
	b.mu.Lock()
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[chan chat.Message]struct{})
	}
	b.subs[sessionID][ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		set, ok := b.subs[sessionID]
		if !ok {
			return
		}
		if _, ok := set[ch]; !ok {
			return
		}
		delete(set, ch)
		close(ch)
		if len(set) == 0 {
			delete(b.subs, sessionID)
		}
	}
	return ch, cancel
}
