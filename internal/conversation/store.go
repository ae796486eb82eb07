// ABOUTME: Store maps conversation keys to cached Conversation aggregates
// ABOUTME: Loads (or creates) a conversation, appends turns, and persists it back as JSON

package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Cache is the get/set contract the store needs from a backend.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Store owns conversation load/append/persist against a Cache.
// It does not lock keys: concurrent turns on one key are last-writer-wins.
type Store struct {
	cache  Cache
	logger *slog.Logger
	now    func() time.Time
}

// NewStore creates a Store. Pass nil logger for default.
func NewStore(cache Cache, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		cache:  cache,
		logger: logger.With("component", "conversation"),
		now:    time.Now,
	}
}

// LoadOrCreate returns the cached conversation for key, or a fresh empty one.
// Cache failures and undecodable values are logged and treated as a miss.
func (s *Store) LoadOrCreate(ctx context.Context, key string) *Conversation {
	raw, found, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("cache read failed, starting new conversation",
			"key", key,
			"error", err)
		return s.fresh(key)
	}
	if !found {
		return s.fresh(key)
	}

	var conv Conversation
	if err := json.Unmarshal(raw, &conv); err != nil {
		s.logger.Warn("cached conversation undecodable, starting new conversation",
			"key", key,
			"error", err)
		return s.fresh(key)
	}
	conv.Key = key
	s.logger.Debug("conversation loaded",
		"key", key,
		"messages", len(conv.Messages))
	return &conv
}

func (s *Store) fresh(key string) *Conversation {
	return &Conversation{
		Key:       key,
		CreatedAt: s.now().UTC(),
		Messages:  []Message{},
	}
}

// ThreadFrom is ThreadFrom(conv, startID).
func (s *Store) ThreadFrom(conv *Conversation, startID string) ([]Message, error) {
	return ThreadFrom(conv, startID)
}

// Append adds msg to the tail of the conversation.
func (s *Store) Append(conv *Conversation, msg Message) {
	conv.Messages = append(conv.Messages, msg)
}

// Persist writes the full conversation back under its key, overwriting any
// previous value.
func (s *Store) Persist(ctx context.Context, conv *Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("encoding conversation: %w", err)
	}
	if err := s.cache.Set(ctx, conv.Key, data); err != nil {
		return fmt.Errorf("persisting conversation %s: %w", conv.Key, err)
	}
	s.logger.Debug("conversation persisted",
		"key", conv.Key,
		"messages", len(conv.Messages))
	return nil
}
