// ABOUTME: One-shot HTTP bootstrap that mints a conversation identity (signature, conversation id, client id)
// ABOUTME: Sends the fixed fingerprint header set plus the identity credential; no retries

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrUnauthorized is returned when the service rejects the identity credential.
var ErrUnauthorized = errors.New("unauthorized request")

// ErrUnexpectedResponse is returned when a reply lacks the identity fields
// and carries no error indicator.
var ErrUnexpectedResponse = errors.New("unexpected response")

// APIError is a service-reported error code and message.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// TransportError wraps a network-level failure of the bootstrap request.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("bootstrap transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Session is the identity triple a conversation runs under.
type Session struct {
	Signature      string `json:"conversationSignature"`
	ConversationID string `json:"conversationId"`
	ClientID       string `json:"clientId"`
}

// Complete reports whether all identity fields are present.
func (s Session) Complete() bool {
	return s.Signature != "" && s.ConversationID != "" && s.ClientID != ""
}

// Options configures a Bootstrapper.
type Options struct {
	Host      string // e.g. https://www.bing.com
	UserToken string // sent as the _U cookie when Cookies is empty
	Cookies   string // raw cookie header, takes precedence over UserToken
	Proxy     string // optional forward proxy URL
	Timeout   time.Duration
}

// Bootstrapper performs the conversation-create exchange.
type Bootstrapper struct {
	opts   Options
	http   *http.Client
	logger *slog.Logger
}

// NewBootstrapper creates a Bootstrapper. Pass nil logger for default.
func NewBootstrapper(opts Options, logger *slog.Logger) (*Bootstrapper, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := HTTPClient(opts.Proxy, opts.Timeout)
	if err != nil {
		return nil, err
	}
	return &Bootstrapper{
		opts:   opts,
		http:   client,
		logger: logger.With("component", "session"),
	}, nil
}

// HTTPClient builds an http.Client that optionally routes through proxy.
// It is shared with the socket dialer so both legs use the same proxy.
func HTTPClient(proxy string, timeout time.Duration) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("parsing proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	return &http.Client{Transport: transport, Timeout: timeout}, nil
}

// createResponse is the bootstrap reply body.
type createResponse struct {
	Session
	Result *struct {
		Value   string `json:"value"`
		Message string `json:"message"`
	} `json:"result"`
}

// CreateSession mints a new conversation identity.
func (b *Bootstrapper) CreateSession(ctx context.Context) (*Session, error) {
	endpoint := strings.TrimRight(b.opts.Host, "/") + "/turing/conversation/create"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, v := range fingerprintHeaders {
		req.Header.Set(k, v)
	}
	req.Header.Set("x-ms-client-request-id", uuid.New().String())
	req.Header.Set("cookie", b.cookie())

	resp, err := b.http.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	var parsed createResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnexpectedResponse, resp.StatusCode, truncate(body))
	}

	if parsed.Result != nil && parsed.Result.Value == "UnauthorizedRequest" {
		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, parsed.Result.Message)
	}
	if !parsed.Session.Complete() {
		if parsed.Result != nil && parsed.Result.Value != "" {
			return nil, &APIError{Code: parsed.Result.Value, Message: parsed.Result.Message}
		}
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedResponse, truncate(body))
	}

	b.logger.Debug("conversation created",
		"conversation_id", parsed.ConversationID,
		"client_id", parsed.ClientID)

	sess := parsed.Session
	return &sess, nil
}

func (b *Bootstrapper) cookie() string {
	if b.opts.Cookies != "" {
		return b.opts.Cookies
	}
	return "_U=" + b.opts.UserToken
}

func truncate(body []byte) string {
	const limit = 512
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
