package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStream appends exchanges to a Redis stream with XADD.
//
// The caller owns the client lifecycle (creation and Close).
type RedisStream struct {
	client *redis.Client
	stream string
	maxLen int64
	now    func() time.Time
}

// NewRedisStream wraps an existing client. maxLen > 0 trims the stream
// approximately on every write.
func NewRedisStream(client *redis.Client, stream string, maxLen int64) *RedisStream {
	if stream == "" {
		stream = DefaultTable
	}
	return &RedisStream{client: client, stream: stream, maxLen: maxLen, now: time.Now}
}

func (s *RedisStream) Name() string { return "redis" }

// Scope ignores the header; ownership comes from the resolved identity.
func (s *RedisStream) Scope(string) Scope { return s }

func (s *RedisStream) Insert(ctx context.Context, ex *Exchange) (*Record, error) {
	if ex.UserID == nil {
		return nil, ErrUnauthenticated
	}

	rec := &Record{
		ID:         uuid.NewString(),
		Response:   ex.Response,
		TokensUsed: ex.TokensUsed,
		CreatedAt:  Timestamp(s.now()),
	}

	err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: s.maxLen > 0,
		Values: map[string]any{
			"id":          rec.ID,
			"user_id":     *ex.UserID,
			"project_id":  deref(ex.ProjectID),
			"message":     ex.Message,
			"response":    ex.Response,
			"tokens_used": strconv.Itoa(ex.TokensUsed),
			"created_at":  rec.CreatedAt,
		},
	}).Err()
	if err != nil {
		return nil, fmt.Errorf("store: redis xadd: %w", err)
	}

	return rec, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
