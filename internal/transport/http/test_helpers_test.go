package http

import (
	"bytes"
	"context"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/astrotv/astrotv-server/internal/auth"
	"github.com/astrotv/astrotv-server/internal/config"
	"github.com/astrotv/astrotv-server/internal/core"
	applog "github.com/astrotv/astrotv-server/internal/log"
	"github.com/astrotv/astrotv-server/internal/metrics"
	"github.com/astrotv/astrotv-server/internal/service/notifications"
	"github.com/astrotv/astrotv-server/internal/service/payments"
	"github.com/astrotv/astrotv-server/internal/service/points"
	"github.com/astrotv/astrotv-server/internal/store"
	"github.com/astrotv/astrotv-server/internal/store/sqlite"
)

const testWebhookSecret = "hook-secret"

type serverFixture struct {
	handler  stdhttp.Handler
	ts       *httptest.Server
	db       *sqlite.SQLiteStore
	hub      *core.Hub
	jwt      *auth.JWTConfig
	streamer *store.User
	stream   *store.Stream
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	streamer, err := db.CreateUser(ctx, "luna", "luna@example.com")
	if err != nil {
		t.Fatalf("create streamer: %v", err)
	}
	stream, err := db.CreateStream(ctx, streamer.ID, "live")
	if err != nil {
		t.Fatalf("create stream: %v", err)
	}
	for _, l := range []*store.LoyaltyLevel{
		{StreamerID: streamer.ID, Name: "Novato", PointsRequired: 10},
		{StreamerID: streamer.ID, Name: "Fan", PointsRequired: 20},
	} {
		if err := db.CreateLoyaltyLevel(ctx, l); err != nil {
			t.Fatalf("create level: %v", err)
		}
	}

	cfg := config.Default()
	cfg.PaymentWebhookSecret = testWebhookSecret

	logger := applog.Nop()
	m := metrics.New()
	jwtCfg := &auth.JWTConfig{Secret: []byte("http-test"), TTL: time.Hour}
	verifier := auth.NewJWTVerifier(jwtCfg)

	notifier := notifications.NewService(db, nil, logger)
	coordinator := points.NewService(db, notifier, m, logger, points.Config{ChatPoints: cfg.ChatPoints})
	hub := core.NewHub(core.Config{HistoryLimit: cfg.HistoryLimit}, core.Deps{
		Verifier:  verifier,
		Directory: db,
		Chat:      coordinator,
		Metrics:   m,
		Logger:    logger,
	})
	notifier.SetDeliverer(hub.Dispatcher())
	coordinator.SetAnnouncer(hub.Dispatcher())

	handler := NewHandler(&cfg, Deps{
		Hub:           hub,
		Store:         db,
		Verifier:      verifier,
		Points:        coordinator,
		Payments:      payments.NewService(db, notifier, logger),
		Notifications: notifier,
		Metrics:       m,
	}, logger)

	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	t.Cleanup(hub.Shutdown)

	return &serverFixture{
		handler: handler, ts: ts, db: db, hub: hub, jwt: jwtCfg,
		streamer: streamer, stream: stream,
	}
}

func (f *serverFixture) user(t *testing.T, name string) (*store.User, string) {
	t.Helper()

	u, err := f.db.CreateUser(context.Background(), name, name+"@example.com")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	token, err := auth.GenerateToken(f.jwt, u.ID, u.Email)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return u, token
}

// do runs a request through the handler and returns the recorded response.
func (f *serverFixture) do(t *testing.T, method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp := httptest.NewRecorder()
	f.handler.ServeHTTP(resp, req)
	return resp
}

func decode[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(resp.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", resp.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, resp *httptest.ResponseRecorder, want int) {
	t.Helper()
	if resp.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, resp.Code, resp.Body.String())
	}
}

