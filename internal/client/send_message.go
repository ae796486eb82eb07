// ABOUTME: SendMessage runs one conversational turn end to end
// ABOUTME: Settles exactly once on terminal frame, timeout or cancellation, then persists both messages

package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/2389/chathub/internal/chathub"
	"github.com/2389/chathub/internal/compose"
	"github.com/2389/chathub/internal/conversation"
	"github.com/2389/chathub/internal/metrics"
	"github.com/2389/chathub/internal/session"
	"github.com/2389/chathub/internal/turn"
)

// SendOptions carries per-turn inputs. The zero value starts a new
// conversation under the configured (or session-derived) key.
type SendOptions struct {
	// ConversationKey selects the cached conversation. Defaults to
	// chat.conversation_key, then to the session's conversation id.
	ConversationKey string
	// Session is reused when complete; otherwise a new one is bootstrapped.
	Session session.Session
	// InvocationID is the hub's per-socket turn counter. Zero marks the
	// first turn, which primes the transcript.
	InvocationID int
	// ParentMessageID is the message the new turn replies to. Defaults to
	// the conversation's last bot message.
	ParentMessageID string
	// OnProgress receives each streamed text suffix. It must not block for
	// long: it runs on the socket's read loop.
	OnProgress func(string)
	// Timeout overrides chat.timeout for this turn.
	Timeout time.Duration
}

// Response is a settled turn plus the fields needed to continue it.
type Response struct {
	session.Session
	ConversationKey        string
	InvocationID           int
	MessageID              string
	ConversationExpiryTime string
	Text                   string
	Details                json.RawMessage
	Degraded               bool
}

// Continue returns SendOptions that follow up on this response.
func (r *Response) Continue(onProgress func(string)) SendOptions {
	return SendOptions{
		ConversationKey: r.ConversationKey,
		Session:         r.Session,
		InvocationID:    r.InvocationID,
		ParentMessageID: r.MessageID,
		OnProgress:      onProgress,
	}
}

// SendMessage sends text as the next user turn and waits for the reply.
func (c *Client) SendMessage(ctx context.Context, text string, opts SendOptions) (*Response, error) {
	if text == "" {
		return nil, ErrEmptyMessage
	}

	sess := opts.Session
	if !sess.Complete() {
		created, err := c.sessions.CreateSession(ctx)
		if err != nil {
			return nil, fmt.Errorf("creating session: %w", err)
		}
		sess = *created
	}

	key := opts.ConversationKey
	if key == "" {
		key = c.cfg.Chat.ConversationKey
	}
	if key == "" {
		key = sess.ConversationID
	}

	conv := c.store.LoadOrCreate(ctx, key)
	parentID := opts.ParentMessageID
	if parentID == "" {
		parentID = conv.LastBotMessageID()
	}
	thread, err := c.store.ThreadFrom(conv, parentID)
	if err != nil {
		return nil, fmt.Errorf("rebuilding thread for %s: %w", key, err)
	}

	isFirstTurn := opts.InvocationID == 0
	env, err := c.composer.Build(thread, text, isFirstTurn, sess)
	if err != nil {
		return nil, fmt.Errorf("composing envelope: %w", err)
	}

	result, err := c.exchange(ctx, c.composer.Invocation(env, opts.InvocationID), opts)
	if err != nil {
		return nil, err
	}

	userMsg := conversation.Message{
		ID:       uuid.New().String(),
		ParentID: parentID,
		Role:     conversation.RoleUser,
		Text:     text,
	}
	botMsg := conversation.Message{
		ID:       uuid.New().String(),
		ParentID: userMsg.ID,
		Role:     conversation.RoleBot,
		Text:     result.Text,
		Details:  result.Details,
	}
	c.store.Append(conv, userMsg)
	c.store.Append(conv, botMsg)
	conv.ConversationID = sess.ConversationID
	conv.Signature = sess.Signature
	conv.ClientID = sess.ClientID

	// The reply already exists upstream; a cache failure only loses local history.
	if err := c.store.Persist(ctx, conv); err != nil {
		c.logger.Error("failed to persist conversation",
			"error", err,
			"conversation_key", key,
		)
	}

	return &Response{
		Session:                sess,
		ConversationKey:        key,
		InvocationID:           opts.InvocationID + 1,
		MessageID:              botMsg.ID,
		ConversationExpiryTime: result.ConversationExpiryTime,
		Text:                   result.Text,
		Details:                result.Details,
		Degraded:               result.Degraded,
	}, nil
}

// exchange opens a socket, sends the invocation and waits for the turn to settle.
func (c *Client) exchange(ctx context.Context, inv compose.Invocation, opts SendOptions) (*turn.Result, error) {
	ch, err := chathub.Dial(ctx, chathub.Options{
		URL:               c.cfg.Service.SocketURL,
		HTTPClient:        c.socketHTTP,
		HandshakeTimeout:  c.cfg.Chat.HandshakeTimeout,
		KeepaliveInterval: c.cfg.Chat.KeepaliveInterval,
		Logger:            c.logger,
		Metrics:           c.metrics,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", turn.ErrAborted, context.Cause(ctx))
		}
		return nil, fmt.Errorf("connecting to chat hub: %w", err)
	}
	defer ch.Close()

	m := turn.New(opts.OnProgress, func() { ch.Close() }, c.logger)
	ch.OnFrame(m.HandleFrame)

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.cfg.Chat.Timeout
	}

	start := time.Now()
	if err := ch.Send(ctx, inv); err != nil {
		m.Abort(err)
		c.metrics.ObserveTurn(metrics.OutcomeRejected, time.Since(start))
		return nil, fmt.Errorf("sending invocation: %w", err)
	}

	res, err := m.Await(ctx, timeout)
	c.metrics.ObserveTurn(outcome(res, err), time.Since(start))
	if err != nil {
		c.logger.Debug("turn rejected", "error", err, "partial_len", len(m.Partial()))
		return nil, err
	}
	c.logger.Debug("turn resolved",
		"degraded", res.Degraded,
		"text_len", len(res.Text),
		"elapsed", time.Since(start),
	)
	return res, nil
}

func outcome(res *turn.Result, err error) string {
	switch {
	case errors.Is(err, turn.ErrTimeout):
		return metrics.OutcomeTimeout
	case errors.Is(err, turn.ErrAborted):
		return metrics.OutcomeAborted
	case err != nil:
		return metrics.OutcomeRejected
	case res.Degraded:
		return metrics.OutcomeDegraded
	default:
		return metrics.OutcomeResolved
	}
}
