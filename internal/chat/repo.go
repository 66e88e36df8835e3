package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FeedPublisher receives every inserted message row. Implementations fan the
// row out to all subscribers of its session, including the writer itself.
type FeedPublisher interface {
	PublishInsert(ctx context.Context, m Message)
}

type Repo struct {
	db   *gorm.DB
	feed FeedPublisher
}

// NewRepo wraps the message and session tables. feed may be nil when no
// realtime fan-out is wanted (the sweeper, some tests).
func NewRepo(db *gorm.DB, feed FeedPublisher) *Repo {
	return &Repo{db: db, feed: feed}
}

func (r *Repo) CreateSession(ctx context.Context, s *Session) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *Repo) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var s Session
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSessions returns the user's sessions, most recently touched first.
func (r *Repo) ListSessions(ctx context.Context, userID string, limit int) ([]Session, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var sessions []Session
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Limit(limit).
		Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

// TouchSession bumps updated_at after a completed exchange so recency
// listings move the session to the top.
func (r *Repo) TouchSession(ctx context.Context, sessionID string) error {
	return r.db.WithContext(ctx).Model(&Session{}).
		Where("session_id = ?", sessionID).
		Update("updated_at", time.Now().UTC()).Error
}

// InsertMessage persists m, assigning the store identifier and timestamp,
// and publishes the row to the insert feed.
func (r *Repo) InsertMessage(ctx context.Context, m *Message) error {
	if m.MessageID == "" {
		m.MessageID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	if r.feed != nil {
		r.feed.PublishInsert(ctx, *m)
	}
	return nil
}

func (r *Repo) UpdateMessageContent(ctx context.Context, messageID, content string) error {
	return r.db.WithContext(ctx).Model(&Message{}).
		Where("message_id = ?", messageID).
		Update("content", content).Error
}

func (r *Repo) DeleteMessage(ctx context.Context, messageID string) error {
	return r.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Delete(&Message{}).Error
}

// ListMessages returns the session history in display order: created_at ASC
// with message_id as the tie-break.
func (r *Repo) ListMessages(ctx context.Context, userID, sessionID string) ([]Message, error) {
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND session_id = ?", userID, sessionID).
		Order("created_at ASC, message_id ASC").
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// DeleteStalePlaceholder removes the row only if it still carries the
// placeholder body: a finished stream has already updated or deleted it.
// Reports whether a row was removed.
func (r *Repo) DeleteStalePlaceholder(ctx context.Context, messageID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("message_id = ? AND sender = ? AND content = ?", messageID, SenderModel, PlaceholderContent).
		Delete(&Message{})
	return res.RowsAffected > 0, res.Error
}
