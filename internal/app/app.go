package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/astrotv/astrotv-server/internal/auth"
	"github.com/astrotv/astrotv-server/internal/config"
	"github.com/astrotv/astrotv-server/internal/core"
	"github.com/astrotv/astrotv-server/internal/media"
	"github.com/astrotv/astrotv-server/internal/media/livekit"
	"github.com/astrotv/astrotv-server/internal/metrics"
	"github.com/astrotv/astrotv-server/internal/service/notifications"
	"github.com/astrotv/astrotv-server/internal/service/payments"
	"github.com/astrotv/astrotv-server/internal/service/points"
	"github.com/astrotv/astrotv-server/internal/store/redis"
	"github.com/astrotv/astrotv-server/internal/store/sqlite"
	transporthttp "github.com/astrotv/astrotv-server/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           *sqlite.SQLiteStore
	mirror          *redis.PresenceMirror
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	a := &App{shutdownTimeout: cfg.ShutdownTimeout, store: st, log: logger}

	sinks := []core.PresenceSink{st}
	if cfg.RedisAddr != "" {
		mirror, err := redis.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			a.cleanup()
			return nil, fmt.Errorf("init presence mirror: %w", err)
		}
		a.mirror = mirror
		sinks = append(sinks, mirror)
		logger.Info().Str("redis_addr", cfg.RedisAddr).Int("redis_db", cfg.RedisDB).Msg("presence mirror enabled")
	}

	var engine media.Engine
	if cfg.MediaEnabled() {
		engine = livekit.New(cfg.LiveKitAPIKey, cfg.LiveKitAPISecret, cfg.LiveKitURL)
		logger.Info().Str("livekit_url", cfg.LiveKitURL).Msg("media grants enabled")
	}

	m := metrics.New()
	verifier := auth.NewJWTVerifier(&auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	})

	notifier := notifications.NewService(st, nil, logger)
	coordinator := points.NewService(st, notifier, m, logger, points.Config{ChatPoints: cfg.ChatPoints})
	hub := core.NewHub(core.Config{
		HistoryLimit: cfg.HistoryLimit,
		ChatRate:     cfg.ChatRatePerSecond,
		ChatBurst:    cfg.ChatBurst,
	}, core.Deps{
		Verifier:  verifier,
		Directory: st,
		Chat:      coordinator,
		Media:     engine,
		Presence:  core.NewPresenceRecorder(logger, sinks...),
		Metrics:   m,
		Logger:    logger,
	})
	notifier.SetDeliverer(hub.Dispatcher())
	coordinator.SetAnnouncer(hub.Dispatcher())

	a.hub = hub
	a.server = transporthttp.NewServer(cfg, transporthttp.Deps{
		Hub:           hub,
		Store:         st,
		Verifier:      verifier,
		Points:        coordinator,
		Payments:      payments.NewService(st, notifier, logger),
		Notifications: notifier,
		Metrics:       m,
	}, logger)

	return a, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	hubCtx, stopHub := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		if err := a.hub.Run(hubCtx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Error().Err(err).Msg("hub stopped")
		}
	}()

	serverErr := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	var runErr error
	select {
	case runErr = <-serverErr:
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		// Hijacked websocket connections are not tracked by Shutdown.
		a.hub.Shutdown()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			runErr = err
		} else {
			runErr = <-serverErr
		}
	}

	// The presence recorder flushes its last snapshot before returning.
	stopHub()
	<-hubDone
	a.cleanup()
	return runErr
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.mirror != nil {
		if err := a.mirror.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close presence mirror")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
