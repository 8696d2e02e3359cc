package core

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/astrotv/astrotv-server/internal/auth"
	"github.com/astrotv/astrotv-server/internal/media"
	"github.com/astrotv/astrotv-server/internal/metrics"
	"github.com/astrotv/astrotv-server/internal/service/points"
	"github.com/astrotv/astrotv-server/internal/store"
)

// ChatService persists chat messages with their point award.
type ChatService interface {
	SendChat(ctx context.Context, streamID, authorID int64, text string) (*points.ChatResult, error)
}

// Directory is the read side sessions need from persistence.
type Directory interface {
	store.UserStore
	store.StreamStore
	store.MessageStore
	store.LoyaltyStore
}

// Config tunes sessions.
type Config struct {
	HistoryLimit int
	// ChatRate is chat messages per second per session; 0 disables throttling.
	ChatRate  float64
	ChatBurst int
}

// Deps are the collaborators of a Hub. Media, Metrics and Presence may be nil.
type Deps struct {
	Verifier  auth.Verifier
	Directory Directory
	Chat      ChatService
	Media     media.Engine
	Presence  *PresenceRecorder
	Metrics   *metrics.Metrics
	Logger    *zerolog.Logger
}

// Hub owns the presence registry and creates a Session per connection.
type Hub struct {
	cfg        Config
	registry   *Registry
	dispatcher *Dispatcher
	verifier   auth.Verifier
	dir        Directory
	chat       ChatService
	media      media.Engine
	presence   *PresenceRecorder
	metrics    *metrics.Metrics
	logger     *zerolog.Logger
}

// NewHub creates a hub with a fresh registry.
func NewHub(cfg Config, deps Deps) *Hub {
	logger := deps.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	presence := deps.Presence
	if presence == nil {
		presence = NewPresenceRecorder(logger)
	}
	registry := NewRegistry(deps.Metrics)

	return &Hub{
		cfg:        cfg,
		registry:   registry,
		dispatcher: NewDispatcher(registry, deps.Metrics, logger),
		verifier:   deps.Verifier,
		dir:        deps.Directory,
		chat:       deps.Chat,
		media:      deps.Media,
		presence:   presence,
		metrics:    deps.Metrics,
		logger:     logger,
	}
}

// Registry returns the hub's presence registry.
func (h *Hub) Registry() *Registry { return h.registry }

// Dispatcher returns the hub's broadcast dispatcher.
func (h *Hub) Dispatcher() *Dispatcher { return h.dispatcher }

// Run drives background presence snapshots until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	return h.presence.Run(ctx)
}

// Shutdown closes every registered connection.
func (h *Hub) Shutdown() {
	for _, c := range h.registry.Connections() {
		c.Close()
	}
}

// NewSession creates the state machine for a new connection.
func (h *Hub) NewSession(c *Client) *Session {
	limit := rate.Inf
	if h.cfg.ChatRate > 0 {
		limit = rate.Limit(h.cfg.ChatRate)
	}
	burst := h.cfg.ChatBurst
	if burst <= 0 {
		burst = 1
	}

	return &Session{
		hub:     h,
		client:  c,
		state:   StateUnauthenticated,
		limiter: rate.NewLimiter(limit, burst),
		logger:  h.logger.With().Str("conn_id", c.ID).Logger(),
	}
}
