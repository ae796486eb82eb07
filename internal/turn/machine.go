// ABOUTME: Per-turn protocol state machine: streams deltas, resolves the terminal frame, settles exactly once
// ABOUTME: Await races the terminal frame against a timeout and caller cancellation

package turn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/2389/chathub/internal/chathub"
)

// DefaultTimeout is how long a turn may wait for its terminal frame.
const DefaultTimeout = 120 * time.Second

var (
	// ErrInvalidSession is returned when the service no longer accepts the session.
	ErrInvalidSession = errors.New("invalid session")
	// ErrNoMessageGenerated is returned when a terminal frame carries no messages.
	ErrNoMessageGenerated = errors.New("no message was generated")
	// ErrUnexpectedAuthor is returned when the final message is not bot-authored.
	ErrUnexpectedAuthor = errors.New("unexpected message author")
	// ErrTimeout is returned when no terminal frame arrives within the timeout.
	ErrTimeout = errors.New("timed out waiting for response")
	// ErrAborted is returned when the caller cancels the turn.
	ErrAborted = errors.New("request aborted")
)

// APIError is an error code and message reported in a terminal frame.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// State is the machine's position within a turn.
type State int

const (
	StateAwaitingStream State = iota
	StateStreaming
	StateResolved
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateAwaitingStream:
		return "awaiting_stream"
	case StateStreaming:
		return "streaming"
	case StateResolved:
		return "resolved"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Result is a successfully settled turn.
type Result struct {
	Text                   string
	Details                json.RawMessage // the bot message as received, text patched when substituted
	ConversationExpiryTime string
	Degraded               bool // an error terminal was replaced by the streamed partial text
}

// Machine tracks one turn. HandleFrame is driven by the channel's read loop.
type Machine struct {
	onProgress func(string)
	teardown   func()
	logger     *slog.Logger

	mu         sync.Mutex
	state      State
	replySoFar string
	result     *Result
	err        error

	done         chan struct{}
	teardownOnce sync.Once
}

// New creates a machine. onProgress receives each streamed suffix and runs
// while the machine's lock is held, so it must not call back into the
// machine. teardown runs exactly once, on settlement. Either may be nil.
func New(onProgress func(string), teardown func(), logger *slog.Logger) *Machine {
	if onProgress == nil {
		onProgress = func(string) {}
	}
	if teardown == nil {
		teardown = func() {}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		onProgress: onProgress,
		teardown:   teardown,
		logger:     logger.With("component", "turn"),
		done:       make(chan struct{}),
	}
}

// State reports the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Partial returns the full text streamed so far.
func (m *Machine) Partial() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.replySoFar
}

// Done is closed once the turn settles.
func (m *Machine) Done() <-chan struct{} {
	return m.done
}

// Outcome returns the settled result or error. It is only meaningful after Done.
func (m *Machine) Outcome() (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.result, m.err
}

// HandleFrame processes one decoded frame. Frames arriving after settlement
// are ignored.
func (m *Machine) HandleFrame(f chathub.Frame) {
	if m.handle(f) {
		m.runTeardown()
	}
}

func (m *Machine) handle(f chathub.Frame) (settled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.settledLocked() {
		return false
	}

	switch f.Kind {
	case chathub.KindDelta:
		m.handleDeltaLocked(f.Data)
		return false
	case chathub.KindTerminal:
		res, err := m.resolveTerminalLocked(f.Data)
		return m.settleLocked(res, err)
	default:
		return false
	}
}

func (m *Machine) handleDeltaLocked(data gjson.Result) {
	first := data.Get("arguments.0.messages.0")
	if !first.Exists() || first.Get("author").String() != "bot" {
		return
	}
	text := first.Get("text").String()
	if text == "" || text == m.replySoFar {
		return
	}

	if diff := suffixAfter(text, m.replySoFar); diff != "" {
		m.onProgress(diff)
	}
	m.replySoFar = text
	m.state = StateStreaming
}

// suffixAfter returns the part of text beyond the length of prev. Text is
// treated as append-only; when prev is not a prefix the cut falls on a rune
// boundary at prev's rune length.
func suffixAfter(text, prev string) string {
	if strings.HasPrefix(text, prev) {
		return text[len(prev):]
	}
	n := utf8.RuneCountInString(prev)
	runes := []rune(text)
	if n >= len(runes) {
		return ""
	}
	return string(runes[n:])
}

func (m *Machine) resolveTerminalLocked(data gjson.Result) (*Result, error) {
	item := data.Get("item")
	result := item.Get("result")
	value := result.Get("value").String()
	message := result.Get("message").String()
	expiry := item.Get("conversationExpiryTime").String()

	if value == "InvalidSession" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSession, message)
	}

	messages := item.Get("messages").Array()

	if result.Get("error").Exists() {
		m.logger.Debug("terminal frame carried an error",
			"value", value,
			"message", message,
			"error", result.Get("error").String(),
			"exception", result.Get("exception").String())

		if m.replySoFar == "" {
			return nil, &APIError{Code: value, Message: message}
		}
		base := `{"author":"bot"}`
		if n := len(messages); n > 0 && messages[n-1].Get("author").String() == "bot" {
			base = messages[n-1].Raw
		}
		return &Result{
			Text:                   m.replySoFar,
			Details:                withText(base, m.replySoFar),
			ConversationExpiryTime: expiry,
			Degraded:               true,
		}, nil
	}

	if len(messages) == 0 {
		return nil, ErrNoMessageGenerated
	}
	last := messages[len(messages)-1]
	if last.Get("author").String() != "bot" {
		return nil, ErrUnexpectedAuthor
	}

	res := &Result{
		Text:                   last.Get("text").String(),
		Details:                json.RawMessage(last.Raw),
		ConversationExpiryTime: expiry,
	}

	// Moderation cut the reply short; the upstream full text is unreliable.
	if tc := item.Get("messages.0.topicChangerText"); tc.Exists() && tc.String() != "" {
		res.Text = m.replySoFar
		res.Details = withText(last.Raw, m.replySoFar)
	}
	return res, nil
}

// withText sets the message text and, when present, the first adaptive card
// body text.
func withText(raw, text string) json.RawMessage {
	out, err := sjson.Set(raw, "text", text)
	if err != nil {
		return json.RawMessage(raw)
	}
	if gjson.Get(out, "adaptiveCards.0.body.0").Exists() {
		if patched, err := sjson.Set(out, "adaptiveCards.0.body.0.text", text); err == nil {
			out = patched
		}
	}
	return json.RawMessage(out)
}

func (m *Machine) settledLocked() bool {
	return m.state == StateResolved || m.state == StateRejected
}

// settleLocked records the outcome unless one already exists.
func (m *Machine) settleLocked(res *Result, err error) bool {
	if m.settledLocked() {
		return false
	}
	if err != nil {
		m.state = StateRejected
		m.err = err
	} else {
		m.state = StateResolved
		m.result = res
	}
	close(m.done)
	return true
}

func (m *Machine) runTeardown() {
	m.teardownOnce.Do(m.teardown)
}

// Abort rejects the turn with err unless it has already settled.
// It reports whether this call settled the turn.
func (m *Machine) Abort(err error) bool {
	m.mu.Lock()
	settled := m.settleLocked(nil, err)
	m.mu.Unlock()

	if settled {
		m.runTeardown()
	}
	return settled
}

// Await blocks until the turn settles, the timeout elapses, or ctx is done,
// whichever happens first, and returns the winning outcome.
func (m *Machine) Await(ctx context.Context, timeout time.Duration) (*Result, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-m.done:
	case <-timer.C:
		if m.Abort(ErrTimeout) {
			m.logger.Warn("turn timed out", "timeout", timeout, "partial_len", len(m.Partial()))
		}
	case <-ctx.Done():
		if m.Abort(fmt.Errorf("%w: %w", ErrAborted, context.Cause(ctx))) {
			m.logger.Debug("turn aborted by caller")
		}
	}
	return m.Outcome()
}
