package chat

import (
	"context"
	"io"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/elara-health/chat-service/internal/ai"
	"github.com/elara-health/chat-service/internal/profile"
)

// ErrorReply is the canned model message shown when a reply cycle fails.
// It lives only in the controller's view state, never in the store.
const ErrorReply = "I'm sorry, something went wrong while answering. Please try again."

// ProfileSource looks up the onboarding profile sent with every assistant
// request.
type ProfileSource interface {
	GetByUserID(ctx context.Context, userID string) (*profile.Profile, error)
}

// ReplyStreamer opens the assistant's event-stream response for one prompt.
type ReplyStreamer interface {
	StreamReply(ctx context.Context, req ai.ReplyRequest) (io.ReadCloser, error)
}

// SweepScheduler schedules a delayed reclamation check for a placeholder
// row, in case the process dies mid-stream and leaves it orphaned.
type SweepScheduler interface {
	ScheduleSweep(ctx context.Context, messageID string) error
}

// streamState is the per-session reconciliation state.
//
// streamingMessageID names the row currently receiving decoded tokens;
// feed deliveries for that row are suppressed while generating is set,
// because its content is already flowing in through the decoder.
// resumeChecked flips once per controller lifetime, before the auto-resume
// evaluation; a new session identity means a new controller.
type streamState struct {
	streamingMessageID string
	generating         bool
	resumeChecked      bool
}

// Controller owns the live view of one chat session: it loads history,
// submits user messages, drives the assistant stream into the placeholder
// row, and reconciles realtime insert deliveries against local state.
//
// All state transitions happen under one mutex; between store/network
// suspension points the generating flag keeps a second cycle from starting.
type Controller struct {
	store    *Repo
	profiles ProfileSource
	ai       ReplyStreamer
	sweeps   SweepScheduler // may be nil

	userID    string
	sessionID string

	mu       sync.Mutex
	state    streamState
	messages []Message

	watch *watchers
	wg    sync.WaitGroup
}

func NewController(store *Repo, profiles ProfileSource, streamer ReplyStreamer, sweeps SweepScheduler, userID, sessionID string) *Controller {
	return &Controller{
		store:     store,
		profiles:  profiles,
		ai:        streamer,
		sweeps:    sweeps,
		userID:    userID,
		sessionID: sessionID,
		watch:     newWatchers(),
	}
}

// Activate loads the session history and, once per controller lifetime,
// auto-resumes a pending reply when the stored conversation ends on an
// unanswered user message. A failed history load is logged and leaves the
// view empty; a later activation may try again.
func (c *Controller) Activate(ctx context.Context) {
	if c.userID == "" || c.sessionID == "" {
		return
	}
	c.mu.Lock()
	if c.state.resumeChecked {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	msgs, err := c.store.ListMessages(ctx, c.userID, c.sessionID)
	if err != nil {
		log.Printf("[Activate] history load failed session_id=%s err=%v", c.sessionID, err)
		return
	}

	var prompt string
	resume := false
	c.mu.Lock()
	if c.state.resumeChecked {
		// a concurrent activation got here first
		c.mu.Unlock()
		return
	}
	c.state.resumeChecked = true
	// merge rather than assign: the view may already hold rows the query
	// predates (an in-flight cycle's placeholder, a local-only error reply)
	for _, m := range msgs {
		c.insertLocked(m)
	}
	if !c.state.generating && len(msgs) > 0 {
		if last := msgs[len(msgs)-1]; last.Sender == SenderUser {
			resume = true
			prompt = last.Content
			c.state.generating = true
			c.wg.Add(1)
		}
	}
	c.mu.Unlock()

	if !resume {
		return
	}
	go func() {
		// outlives the activating request
		c.generate(context.WithoutCancel(ctx), prompt)
	}()
}

// Submit persists one user message and runs a full reply cycle. Empty input,
// a missing identity, or a cycle already in flight make it a silent no-op.
// Failures never escape: they become the canned error reply in view state.
func (c *Controller) Submit(ctx context.Context, content string) {
	content = strings.TrimSpace(content)
	if content == "" || c.userID == "" || c.sessionID == "" {
		return
	}
	c.mu.Lock()
	if c.state.generating {
		c.mu.Unlock()
		return
	}
	c.state.generating = true
	c.wg.Add(1)
	c.mu.Unlock()

	userMsg := &Message{
		SessionID: c.sessionID,
		UserID:    c.userID,
		Sender:    SenderUser,
		Content:   content,
	}
	if err := c.store.InsertMessage(ctx, userMsg); err != nil {
		log.Printf("[Submit] user message insert failed session_id=%s err=%v", c.sessionID, err)
		c.mu.Lock()
		c.state.generating = false
		c.mu.Unlock()
		c.wg.Done()
		return
	}
	c.append(*userMsg)

	c.generate(ctx, content)
}

// generate runs one reply cycle: profile lookup, placeholder insert,
// streaming, final persist-or-delete. The generating flag and its wait-group
// slot must already be held by the caller; both are released here on every
// path.
func (c *Controller) generate(ctx context.Context, prompt string) {
	defer func() {
		c.mu.Lock()
		c.state.generating = false
		c.state.streamingMessageID = ""
		c.mu.Unlock()
		c.wg.Done()
	}()

	prof, err := c.profiles.GetByUserID(ctx, c.userID)
	if err != nil || prof == nil {
		// no placeholder exists yet, so nothing user-visible to clean up
		log.Printf("[generate] profile lookup failed user_id=%s session_id=%s err=%v", c.userID, c.sessionID, err)
		return
	}

	// the identifier is fixed before the insert so the feed echo of this row
	// is already suppressed when it arrives
	placeholder := &Message{
		MessageID: uuid.NewString(),
		SessionID: c.sessionID,
		UserID:    c.userID,
		Sender:    SenderModel,
		Content:   PlaceholderContent,
	}
	c.mu.Lock()
	c.state.streamingMessageID = placeholder.MessageID
	c.mu.Unlock()

	if err := c.store.InsertMessage(ctx, placeholder); err != nil {
		log.Printf("[generate] placeholder insert failed session_id=%s err=%v", c.sessionID, err)
		c.failLocal("")
		return
	}
	c.append(*placeholder)

	if c.sweeps != nil {
		if err := c.sweeps.ScheduleSweep(ctx, placeholder.MessageID); err != nil {
			log.Printf("[generate] sweep schedule failed message_id=%s err=%v", placeholder.MessageID, err)
		}
	}

	body, err := c.ai.StreamReply(ctx, ai.ReplyRequest{
		Prompt:    prompt,
		Profile:   prof,
		SessionID: c.sessionID,
	})
	if err != nil {
		log.Printf("[generate] stream open failed session_id=%s err=%v", c.sessionID, err)
		c.failLocal(placeholder.MessageID)
		return
	}

	final, err := ai.DecodeEventStream(body, func(partial string) {
		c.setContent(placeholder.MessageID, partial)
	})
	body.Close()
	if err != nil {
		log.Printf("[generate] stream read failed session_id=%s message_id=%s err=%v", c.sessionID, placeholder.MessageID, err)
		c.failLocal(placeholder.MessageID)
		return
	}

	if strings.TrimSpace(final) == "" {
		if err := c.store.DeleteMessage(ctx, placeholder.MessageID); err != nil {
			log.Printf("[generate] empty-reply delete failed message_id=%s err=%v", placeholder.MessageID, err)
		}
		c.remove(placeholder.MessageID)
		return
	}

	if err := c.store.UpdateMessageContent(ctx, placeholder.MessageID, final); err != nil {
		log.Printf("[generate] final persist failed message_id=%s err=%v", placeholder.MessageID, err)
		c.failLocal(placeholder.MessageID)
		return
	}
	c.setContent(placeholder.MessageID, final)

	if err := c.store.TouchSession(ctx, c.sessionID); err != nil {
		log.Printf("[generate] session touch failed session_id=%s err=%v", c.sessionID, err)
	}
}

// HandleInsert reconciles a realtime-feed delivery against local state.
// The row currently being streamed is dropped; everything else is
// deduplicated by identifier.
func (c *Controller) HandleInsert(m Message) {
	c.mu.Lock()
	if m.Sender == SenderModel && c.state.generating && m.MessageID == c.state.streamingMessageID {
		c.mu.Unlock()
		return
	}
	inserted := c.insertLocked(m)
	c.mu.Unlock()
	if inserted {
		c.watch.broadcast(ViewEvent{Type: ViewAppend, Message: m})
	}
}

// Messages returns a copy of the current view in display order.
func (c *Controller) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.messages...)
}

// Generating reports whether a reply cycle is in flight.
func (c *Controller) Generating() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.generating
}

// Watch subscribes to view events. Unwatch with the returned channel when
// the client goes away.
func (c *Controller) Watch() chan ViewEvent {
	return c.watch.add()
}

func (c *Controller) Unwatch(ch chan ViewEvent) {
	c.watch.remove(ch)
}

// waitIdle blocks until any in-flight reply cycle, foreground or background,
// finishes.
func (c *Controller) waitIdle() {
	c.wg.Wait()
}

// failLocal removes the streaming placeholder from view state and appends
// the canned error reply. The error reply is never persisted; the orphaned
// placeholder row, if any, is left for the sweeper.
func (c *Controller) failLocal(placeholderID string) {
	if placeholderID != "" {
		c.remove(placeholderID)
	}
	c.append(Message{
		MessageID: uuid.NewString(),
		SessionID: c.sessionID,
		UserID:    c.userID,
		Sender:    SenderModel,
		Content:   ErrorReply,
		CreatedAt: time.Now().UTC(),
	})
}

func (c *Controller) append(m Message) {
	c.mu.Lock()
	inserted := c.insertLocked(m)
	c.mu.Unlock()
	if inserted {
		c.watch.broadcast(ViewEvent{Type: ViewAppend, Message: m})
	}
}

// insertLocked keeps the view in display order, created_at ASC with
// message_id as the tie-break. A row already present by identifier is left
// alone: the feed echoes the writer's own inserts, and either the echo or
// the local append may land first.
func (c *Controller) insertLocked(m Message) bool {
	for i := range c.messages {
		if c.messages[i].MessageID == m.MessageID {
			return false
		}
	}
	c.messages = append(c.messages, m)
	sort.SliceStable(c.messages, func(i, j int) bool {
		a, b := c.messages[i], c.messages[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.MessageID < b.MessageID
	})
	return true
}

func (c *Controller) setContent(messageID, content string) {
	c.mu.Lock()
	var updated *Message
	for i := range c.messages {
		if c.messages[i].MessageID == messageID {
			c.messages[i].Content = content
			m := c.messages[i]
			updated = &m
			break
		}
	}
	c.mu.Unlock()
	if updated != nil {
		c.watch.broadcast(ViewEvent{Type: ViewUpdate, Message: *updated})
	}
}

func (c *Controller) remove(messageID string) {
	c.mu.Lock()
	var removed *Message
	for i := range c.messages {
		if c.messages[i].MessageID == messageID {
			m := c.messages[i]
			removed = &m
			c.messages = append(c.messages[:i], c.messages[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	if removed != nil {
		c.watch.broadcast(ViewEvent{Type: ViewRemove, Message: *removed})
	}
}
