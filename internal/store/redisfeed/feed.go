package redisfeed

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/elara-health/chat-service/internal/chat"
)

const channelPrefix = "chat:inserts:"

// insertEnvelope carries a message row over pub/sub. Spelled out rather than
// reusing the API JSON shape so fields hidden from clients still travel.
type insertEnvelope struct {
	MessageID string    `json:"message_id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Feed is the Redis pub/sub insert feed: one channel per session, every
// insert by any node fanned out to every subscriber on any node.
type Feed struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Feed {
	return &Feed{rdb: rdb}
}

// PublishInsert is fire-and-forget: the feed is a cache of store state, so a
// lost publish is recovered by the next history load.
func (f *Feed) PublishInsert(ctx context.Context, m chat.Message) {
	b, err := json.Marshal(insertEnvelope{
		MessageID: m.MessageID,
		SessionID: m.SessionID,
		UserID:    m.UserID,
		Sender:    m.Sender,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	})
	if err != nil {
		log.Printf("[redisfeed] marshal failed message_id=%s err=%v", m.MessageID, err)
		return
	}
	if err := f.rdb.Publish(ctx, channelPrefix+m.SessionID, b).Err(); err != nil {
		log.Printf("[redisfeed] publish failed session_id=%s err=%v", m.SessionID, err)
	}
}

func (f *Feed) SubscribeInserts(sessionID string) (<-chan chat.Message, func()) {
	sub := f.rdb.Subscribe(context.Background(), channelPrefix+sessionID)
	out := make(chan chat.Message, 16)

	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var env insertEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Printf("[redisfeed] bad payload session_id=%s err=%v", sessionID, err)
				continue
			}
			out <- chat.Message{
				MessageID: env.MessageID,
				SessionID: env.SessionID,
				UserID:    env.UserID,
				Sender:    env.Sender,
				Content:   env.Content,
				CreatedAt: env.CreatedAt,
			}
		}
	}()

	cancel := func() {
		if err := sub.Close(); err != nil {
			log.Printf("[redisfeed] unsubscribe failed session_id=%s err=%v", sessionID, err)
		}
	}
	return out, cancel
}
