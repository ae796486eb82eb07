// ABOUTME: Read-only access to cached conversations for history display
// ABOUTME: Rebuilds the thread ending at a message, defaulting to the last bot reply

package client

import (
	"context"
	"fmt"

	"github.com/2389/chathub/internal/conversation"
)

// History returns the thread ending at fromID in the conversation stored
// under key. An empty fromID selects the last bot message.
func (c *Client) History(ctx context.Context, key, fromID string) ([]conversation.Message, error) {
	if key == "" {
		key = c.cfg.Chat.ConversationKey
	}
	if key == "" {
		return nil, fmt.Errorf("conversation key required")
	}
	conv := c.store.LoadOrCreate(ctx, key)
	if fromID == "" {
		fromID = conv.LastBotMessageID()
	}
	thread, err := c.store.ThreadFrom(conv, fromID)
	if err != nil {
		return nil, fmt.Errorf("rebuilding thread for %s: %w", key, err)
	}
	return thread, nil
}
