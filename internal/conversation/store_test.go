// ABOUTME: Tests for conversation thread reconstruction and cache persistence
// ABOUTME: Covers linear chains, cycles, missing parents, and persist/load round trips

package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chathub/internal/cache"
)

func chain(n int) *Conversation {
	conv := &Conversation{Key: "k"}
	parent := ""
	for i := 0; i < n; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleBot
		}
		id := fmt.Sprintf("m%d", i)
		conv.Messages = append(conv.Messages, Message{ID: id, ParentID: parent, Role: role, Text: id})
		parent = id
	}
	return conv
}

func TestThreadFrom_LinearChains(t *testing.T) {
	for _, n := range []int{1, 2, 5, 50} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			conv := chain(n)
			thread, err := ThreadFrom(conv, fmt.Sprintf("m%d", n-1))
			require.NoError(t, err)
			require.Len(t, thread, n)
			for i, m := range thread {
				assert.Equal(t, fmt.Sprintf("m%d", i), m.ID, "root-first order")
			}
		})
	}
}

func TestThreadFrom_StartsMidChain(t *testing.T) {
	thread, err := ThreadFrom(chain(6), "m2")
	require.NoError(t, err)
	require.Len(t, thread, 3)
	assert.Equal(t, "m0", thread[0].ID)
	assert.Equal(t, "m2", thread[2].ID)
}

func TestThreadFrom_IgnoresSiblingBranches(t *testing.T) {
	conv := chain(3)
	conv.Messages = append(conv.Messages, Message{ID: "branch", ParentID: "m0", Role: RoleBot})

	thread, err := ThreadFrom(conv, "branch")
	require.NoError(t, err)
	require.Len(t, thread, 2)
	assert.Equal(t, []string{"m0", "branch"}, []string{thread[0].ID, thread[1].ID})
}

func TestThreadFrom_Cycle(t *testing.T) {
	conv := &Conversation{Messages: []Message{
		{ID: "a", ParentID: "c"},
		{ID: "b", ParentID: "a"},
		{ID: "c", ParentID: "b"},
	}}
	_, err := ThreadFrom(conv, "c")
	assert.ErrorIs(t, err, ErrCorruptThread)
}

func TestThreadFrom_SelfLoop(t *testing.T) {
	conv := &Conversation{Messages: []Message{{ID: "a", ParentID: "a"}}}
	_, err := ThreadFrom(conv, "a")
	assert.True(t, errors.Is(err, ErrCorruptThread))
}

func TestThreadFrom_UnknownStartOrParent(t *testing.T) {
	conv := chain(2)

	thread, err := ThreadFrom(conv, "nope")
	require.NoError(t, err)
	assert.Empty(t, thread)

	conv.Messages[0].ParentID = "evicted"
	thread, err = ThreadFrom(conv, "m1")
	require.NoError(t, err)
	assert.Len(t, thread, 2)
}

func TestThreadFrom_EmptyStart(t *testing.T) {
	thread, err := ThreadFrom(chain(3), "")
	require.NoError(t, err)
	assert.Empty(t, thread)
}

func TestStore_LoadOrCreate_Miss(t *testing.T) {
	mem := cache.NewMemory(0, 10)
	defer mem.Close()
	s := NewStore(mem, nil)

	conv := s.LoadOrCreate(context.Background(), "fresh")
	require.NotNil(t, conv)
	assert.Equal(t, "fresh", conv.Key)
	assert.Empty(t, conv.Messages)
	assert.False(t, conv.CreatedAt.IsZero())
}

func TestStore_LoadOrCreate_UndecodableIsMiss(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemory(0, 10)
	defer mem.Close()
	require.NoError(t, mem.Set(ctx, "bad", []byte("{not json")))

	conv := NewStore(mem, nil).LoadOrCreate(ctx, "bad")
	assert.Empty(t, conv.Messages)
}

type failingCache struct{}

func (failingCache) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("backend down")
}

func (failingCache) Set(context.Context, string, []byte) error {
	return errors.New("backend down")
}

func TestStore_CacheFailures(t *testing.T) {
	ctx := context.Background()
	s := NewStore(failingCache{}, nil)

	conv := s.LoadOrCreate(ctx, "k")
	require.NotNil(t, conv, "load never fails")

	err := s.Persist(ctx, conv)
	assert.ErrorContains(t, err, "backend down")
}

func TestStore_PersistRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	for _, opts := range []cache.Options{
		{Backend: cache.BackendMemory},
		{Backend: cache.BackendSQLite, Path: filepath.Join(dir, "c.db")},
		{Backend: cache.BackendBolt, Path: filepath.Join(dir, "c.bolt")},
		{Backend: cache.BackendPebble, Path: filepath.Join(dir, "pebble")},
	} {
		t.Run(opts.Backend, func(t *testing.T) {
			backend, err := cache.Open(opts)
			require.NoError(t, err)
			defer backend.Close()

			s := NewStore(cache.WithNamespace(backend, "bing"), nil)
			conv := s.LoadOrCreate(ctx, "roundtrip")
			conv.ConversationID = "conv-1"
			conv.Signature = "sig"
			conv.ClientID = "client"
			conv.CreatedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
			s.Append(conv, Message{ID: "u1", Role: RoleUser, Text: "hello"})
			s.Append(conv, Message{
				ID:       "b1",
				ParentID: "u1",
				Role:     RoleBot,
				Text:     "hi",
				Details:  json.RawMessage(`{"author":"bot","text":"hi"}`),
			})
			require.NoError(t, s.Persist(ctx, conv))

			loaded := s.LoadOrCreate(ctx, "roundtrip")
			assert.Equal(t, conv.Key, loaded.Key)
			assert.Equal(t, conv.ConversationID, loaded.ConversationID)
			assert.Equal(t, conv.Signature, loaded.Signature)
			assert.Equal(t, conv.ClientID, loaded.ClientID)
			assert.True(t, conv.CreatedAt.Equal(loaded.CreatedAt))
			require.Len(t, loaded.Messages, 2)
			assert.Equal(t, conv.Messages[0], loaded.Messages[0])
			assert.Equal(t, "b1", loaded.Messages[1].ID)
			assert.Equal(t, "u1", loaded.Messages[1].ParentID)
			assert.JSONEq(t, string(conv.Messages[1].Details), string(loaded.Messages[1].Details))
		})
	}
}

func TestStore_PersistLastWriterWins(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemory(0, 10)
	defer mem.Close()
	s := NewStore(mem, nil)

	first := s.LoadOrCreate(ctx, "k")
	second := s.LoadOrCreate(ctx, "k")
	s.Append(first, Message{ID: "from-first"})
	s.Append(second, Message{ID: "from-second"})

	require.NoError(t, s.Persist(ctx, first))
	require.NoError(t, s.Persist(ctx, second))

	loaded := s.LoadOrCreate(ctx, "k")
	require.Len(t, loaded.Messages, 1)
	assert.Equal(t, "from-second", loaded.Messages[0].ID)
}

func TestConversation_LastBotMessageID(t *testing.T) {
	conv := chain(4)
	assert.Equal(t, "m3", conv.LastBotMessageID())
	assert.Equal(t, "", (&Conversation{}).LastBotMessageID())

	m, ok := conv.Find("m2")
	require.True(t, ok)
	assert.Equal(t, RoleUser, m.Role)
}
