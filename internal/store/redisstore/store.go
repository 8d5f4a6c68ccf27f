package redisstore

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/suPer8Hu/chatcore/internal/chat"
)

// Store keeps session logs in redis: one hash for session metadata, one
// list of JSON records for the messages. It implements chat.HistoryStore
// for deployments that want chat history in redis instead of SQL.
type Store struct {
	rdb *redis.Client
}

func New(addr, password string, db int) *Store {
	return &Store{rdb: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func NewWithClient(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func sessionKey(id string) string { return "chat:session:" + id }
func logKey(id string) string     { return "chat:log:" + id }

func (s *Store) CreateSession(ctx context.Context, rec chat.SessionRecord) error {
	return s.rdb.HSet(ctx, sessionKey(rec.SessionID), map[string]any{
		"session_id":     rec.SessionID,
		"provider":       rec.Provider,
		"model":          rec.Model,
		"max_concurrent": rec.MaxConcurrent,
		"created_at":     rec.CreatedAt.UnixMilli(),
	}).Err()
}

func (s *Store) LoadSession(ctx context.Context, sessionID string) (*chat.SessionRecord, []chat.Message, error) {
	fields, err := s.rdb.HGetAll(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return nil, nil, err
	}
	if len(fields) == 0 {
		return nil, nil, chat.ErrNotFound
	}

	maxConcurrent, _ := strconv.Atoi(fields["max_concurrent"])
	createdMilli, _ := strconv.ParseInt(fields["created_at"], 10, 64)
	rec := &chat.SessionRecord{
		SessionID:     sessionID,
		Provider:      fields["provider"],
		Model:         fields["model"],
		MaxConcurrent: maxConcurrent,
		CreatedAt:     time.UnixMilli(createdMilli),
	}

	raw, err := s.rdb.LRange(ctx, logKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, nil, err
	}
	msgs := make([]chat.Message, 0, len(raw))
	for _, item := range raw {
		var m chat.Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			return nil, nil, err
		}
		msgs = append(msgs, m)
	}
	// The list holds persist order; with concurrent requests that is
	// completion order, not sequence order.
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })
	return rec, msgs, nil
}

func (s *Store) AppendMessage(ctx context.Context, sessionID string, m chat.Message) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return s.rdb.RPush(ctx, logKey(sessionID), b).Err()
}

func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	return s.rdb.Del(ctx, sessionKey(sessionID), logKey(sessionID)).Err()
}
