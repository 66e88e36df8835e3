package chat

import (
	"context"
	"sync"

	"gorm.io/gorm"
)

// FeedSubscriber delivers rows inserted into a session by any writer.
// The cancel func stops delivery and releases the subscription.
type FeedSubscriber interface {
	SubscribeInserts(sessionID string) (<-chan Message, func())
}

// Deps bundles the collaborators a controller needs.
type Deps struct {
	Store    *Repo
	Profiles ProfileSource
	Streamer ReplyStreamer
	Sweeps   SweepScheduler // may be nil
	Feed     FeedSubscriber // may be nil
}

type managed struct {
	ctl    *Controller
	cancel func()
	refs   int
}

// Manager keeps one live controller per session. The controller is built on
// first acquire and dropped on last release; re-acquiring later builds a
// fresh one, which re-arms the auto-resume check for the new activation.
type Manager struct {
	deps Deps

	mu   sync.Mutex
	live map[string]*managed
}

func NewManager(deps Deps) *Manager {
	return &Manager{deps: deps, live: make(map[string]*managed)}
}

// Acquire returns the live controller for the session, creating, feed-
// subscribing, and activating it on first use. The session must belong to
// userID; a foreign session reads as not found. Callers must Release.
func (m *Manager) Acquire(ctx context.Context, userID, sessionID string) (*Controller, error) {
	sess, err := m.deps.Store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID {
		// hide existence
		return nil, gorm.ErrRecordNotFound
	}

	m.mu.Lock()
	if entry, ok := m.live[sessionID]; ok {
		entry.refs++
		m.mu.Unlock()
		return entry.ctl, nil
	}

	ctl := NewController(m.deps.Store, m.deps.Profiles, m.deps.Streamer, m.deps.Sweeps, userID, sessionID)
	entry := &managed{ctl: ctl, refs: 1}
	if m.deps.Feed != nil {
		rows, cancel := m.deps.Feed.SubscribeInserts(sessionID)
		entry.cancel = cancel
		go func() {
			for row := range rows {
				ctl.HandleInsert(row)
			}
		}()
	}
	m.live[sessionID] = entry
	m.mu.Unlock()

	ctl.Activate(ctx)
	return ctl, nil
}

// Release drops one reference; the last release unsubscribes the feed and
// forgets the controller. A controller whose reply cycle is still in flight
// (a background auto-resume, or a client that went away mid-stream) stays
// live until the cycle drains, so a prompt re-acquire shares it instead of
// building a fresh one that would start a duplicate cycle for the same
// prompt.
func (m *Manager) Release(sessionID string) {
	m.mu.Lock()
	entry, ok := m.live[sessionID]
	if !ok {
		m.mu.Unlock()
		return
	}
	entry.refs--
	if entry.refs > 0 {
		m.mu.Unlock()
		return
	}
	if !entry.ctl.Generating() {
		delete(m.live, sessionID)
		m.mu.Unlock()
		if entry.cancel != nil {
			entry.cancel()
		}
		return
	}
	m.mu.Unlock()

	go func() {
		entry.ctl.waitIdle()
		m.mu.Lock()
		if m.live[sessionID] != entry || entry.refs != 0 || entry.ctl.Generating() {
			// re-acquired (or a newer cycle started) while draining; the
			// release that observes the controller idle handles teardown
			m.mu.Unlock()
			return
		}
		delete(m.live, sessionID)
		m.mu.Unlock()
		if entry.cancel != nil {
			entry.cancel()
		}
	}()
}
