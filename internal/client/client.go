// ABOUTME: Client wires config, session bootstrap, conversation store, composer, socket and turn machine
// ABOUTME: Built once from an immutable *config.Config; safe for sequential and concurrent turns

package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/2389/chathub/internal/compose"
	"github.com/2389/chathub/internal/config"
	"github.com/2389/chathub/internal/conversation"
	"github.com/2389/chathub/internal/metrics"
	"github.com/2389/chathub/internal/session"
)

// ErrEmptyMessage is returned when SendMessage is called with no text.
var ErrEmptyMessage = errors.New("message text required")

// SessionCreator mints a new conversation identity.
type SessionCreator interface {
	CreateSession(ctx context.Context) (*session.Session, error)
}

// Client runs turns. It keeps no per-turn state between calls.
type Client struct {
	cfg        config.Config
	sessions   SessionCreator
	store      *conversation.Store
	composer   *compose.Composer
	socketHTTP *http.Client
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// New creates a Client from cfg. cache is the conversation backend (already
// namespaced if desired). m and logger may be nil.
func New(cfg *config.Config, cache conversation.Cache, m *metrics.Metrics, logger *slog.Logger) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	if cache == nil {
		return nil, errors.New("conversation cache required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	boot, err := session.NewBootstrapper(session.Options{
		Host:      cfg.Service.Host,
		UserToken: cfg.Service.UserToken,
		Cookies:   cfg.Service.Cookies,
		Proxy:     cfg.Service.Proxy,
		Timeout:   cfg.Service.BootstrapTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating bootstrapper: %w", err)
	}

	// The websocket dialer rejects clients with a Timeout; the handshake
	// timeout bounds the dial instead.
	socketHTTP, err := session.HTTPClient(cfg.Service.Proxy, 0)
	if err != nil {
		return nil, fmt.Errorf("creating socket http client: %w", err)
	}

	return &Client{
		cfg:      *cfg,
		sessions: boot,
		store:    conversation.NewStore(cache, logger),
		composer: compose.New(compose.Options{
			Persona:     cfg.Chat.Persona,
			Greeting:    cfg.Chat.Greeting,
			UserLabel:   cfg.Chat.UserLabel,
			BotLabel:    cfg.Chat.BotLabel,
			OptionsSets: cfg.Chat.OptionsSets,
			SliceIDs:    cfg.Chat.SliceIDs,
		}),
		socketHTTP: socketHTTP,
		metrics:    m,
		logger:     logger.With("component", "client"),
	}, nil
}
