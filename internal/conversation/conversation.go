// ABOUTME: Conversation and Message types plus parent-pointer thread reconstruction
// ABOUTME: ThreadFrom walks parent links root-first with a bounded, cycle-checked walk

package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrCorruptThread is returned when a parent chain loops or exceeds the
// number of messages in the conversation.
var ErrCorruptThread = errors.New("corrupt thread")

// Role identifies who authored a message.
type Role string

const (
	RoleUser Role = "User"
	RoleBot  Role = "Bot"
)

// Message is a single turn half. ParentID is empty for a root message.
type Message struct {
	ID       string          `json:"id"`
	ParentID string          `json:"parentMessageId,omitempty"`
	Role     Role            `json:"role"`
	Text     string          `json:"message"`
	Details  json.RawMessage `json:"details,omitempty"`
}

// Conversation is the cached aggregate for one conversation key.
// Messages are kept in arrival order.
type Conversation struct {
	Key            string    `json:"key"`
	ConversationID string    `json:"conversationId,omitempty"`
	Signature      string    `json:"conversationSignature,omitempty"`
	ClientID       string    `json:"clientId,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	Messages       []Message `json:"messages"`
}

// Find returns the message with the given id.
func (c *Conversation) Find(id string) (Message, bool) {
	for _, m := range c.Messages {
		if m.ID == id {
			return m, true
		}
	}
	return Message{}, false
}

// LastBotMessageID returns the id of the most recently appended bot message,
// or "" when there is none.
func (c *Conversation) LastBotMessageID() string {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleBot {
			return c.Messages[i].ID
		}
	}
	return ""
}

// ThreadFrom returns the messages reachable from startID by following parent
// links, ordered root first. An id that does not resolve ends the walk.
func ThreadFrom(conv *Conversation, startID string) ([]Message, error) {
	if conv == nil || startID == "" {
		return nil, nil
	}

	byID := make(map[string]Message, len(conv.Messages))
	for _, m := range conv.Messages {
		byID[m.ID] = m
	}

	limit := len(conv.Messages)
	visited := make(map[string]struct{}, limit)
	var reversed []Message

	for current := startID; current != ""; {
		msg, ok := byID[current]
		if !ok {
			break
		}
		if _, seen := visited[current]; seen {
			return nil, fmt.Errorf("%w: cycle at message %s", ErrCorruptThread, current)
		}
		if len(reversed) >= limit {
			return nil, fmt.Errorf("%w: walk exceeded %d messages", ErrCorruptThread, limit)
		}
		visited[current] = struct{}{}
		reversed = append(reversed, msg)
		current = msg.ParentID
	}

	thread := make([]Message, len(reversed))
	for i, m := range reversed {
		thread[len(reversed)-1-i] = m
	}
	return thread, nil
}
