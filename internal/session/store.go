// Package session keeps each browser session's chat state (active chat id
// plus conversation buffer) in redis, keyed by the session id minted at
// login. State is never process-global: two sessions never share a buffer.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gopherchat/gopherchat/internal/chat"
)

const keyPrefix = "chat:state:"

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{rdb: rdb, ttl: ttl}
}

// Load returns the session's state. A session with no stored state gets a
// fresh one (no chat selected, empty buffer).
func (s *Store) Load(ctx context.Context, sessionID string) (*chat.State, error) {
	raw, err := s.rdb.Get(ctx, keyPrefix+sessionID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return &chat.State{}, nil
		}
		return nil, fmt.Errorf("session state load: %w", err)
	}

	var st chat.State
	if err := json.Unmarshal(raw, &st); err != nil {
		// Unreadable state is dropped rather than poisoning every request.
		return &chat.State{}, nil
	}
	return &st, nil
}

func (s *Store) Save(ctx context.Context, sessionID string, st *chat.State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, keyPrefix+sessionID, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("session state save: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context, sessionID string) error {
	if err := s.rdb.Del(ctx, keyPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("session state clear: %w", err)
	}
	return nil
}
