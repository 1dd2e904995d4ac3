package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	sessionKeyPrefix = "gp:session:"
	contextIDKey     = "ctx_id"
	// minSlotTTL keeps records readable past expiresAt long enough to be cleared lazily.
	minSlotTTL = time.Minute
)

// RedisSlots keeps slots in Redis, keyed by a browsing-context id carried in the signed
// browser-session cookie.
type RedisSlots struct {
	cfg     Config
	cookies sessions.Store
	client  redis.Cmdable
	logger  *zap.Logger
}

func NewRedisSlots(cfg Config, cookies sessions.Store, client redis.Cmdable, logger *zap.Logger) *RedisSlots {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisSlots{cfg: cfg, cookies: cookies, client: client, logger: logger}
}

func (s *RedisSlots) Open(w http.ResponseWriter, r *http.Request) (SessionStore, error) {
	sess := loadBrowserSession(s.cfg, s.cookies, r, s.logger)
	id, _ := sess.Values[contextIDKey].(string)
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
		sess.Values[contextIDKey] = id
		if err := sess.Save(r, w); err != nil {
			return nil, fmt.Errorf("save session cookie: %w", err)
		}
	}
	return NewRedisSessionStore(r.Context(), s.client, sessionKeyPrefix+id, s.logger), nil
}

// RedisSessionStore is one slot stored as JSON under a single Redis key.
type RedisSessionStore struct {
	ctx    context.Context
	client redis.Cmdable
	key    string
	logger *zap.Logger
}

func NewRedisSessionStore(ctx context.Context, client redis.Cmdable, key string, logger *zap.Logger) *RedisSessionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisSessionStore{ctx: ctx, client: client, key: key, logger: logger}
}

func (s *RedisSessionStore) Write(record SessionRecord) error {
	data, err := encodeSessionRecord(record)
	if err != nil {
		return err
	}
	ttl := time.Until(record.ExpiresAt) + minSlotTTL
	if ttl < minSlotTTL {
		ttl = minSlotTTL
	}
	return s.client.Set(s.ctx, s.key, data, ttl).Err()
}

func (s *RedisSessionStore) Read() (SessionRecord, bool) {
	data, err := s.client.Get(s.ctx, s.key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("session slot read failed", zap.String("key", s.key), zap.Error(err))
		}
		return SessionRecord{}, false
	}
	rec, err := decodeSessionRecord(data)
	if err != nil {
		s.logger.Debug("ignoring undecodable session slot", zap.String("key", s.key), zap.Error(err))
		return SessionRecord{}, false
	}
	return rec, true
}

func (s *RedisSessionStore) Clear() error {
	return s.client.Del(s.ctx, s.key).Err()
}
