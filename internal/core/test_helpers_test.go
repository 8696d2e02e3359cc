package core

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/astrotv/astrotv-server/internal/auth"
	"github.com/astrotv/astrotv-server/internal/proto"
	"github.com/astrotv/astrotv-server/internal/service/notifications"
	"github.com/astrotv/astrotv-server/internal/service/points"
	"github.com/astrotv/astrotv-server/internal/store"
	"github.com/astrotv/astrotv-server/internal/store/sqlite"
)

type frame map[string]any

func (f frame) typ() string {
	s, _ := f["type"].(string)
	return s
}

func (f frame) object(key string) frame {
	m, _ := f[key].(map[string]any)
	return frame(m)
}

func (f frame) number(key string) int {
	n, _ := f[key].(float64)
	return int(n)
}

// mustFrame waits for the next frame of the given type, skipping others.
func mustFrame(t *testing.T, c *Client, typ string) frame {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case data := <-c.Outbound():
			var f frame
			if err := json.Unmarshal(data, &f); err != nil {
				t.Fatalf("invalid frame %s: %v", data, err)
			}
			if f.typ() == typ {
				return f
			}
		case <-deadline:
			t.Fatalf("expected frame %q not received", typ)
			return nil
		}
	}
}

// drain discards queued frames and returns their types.
func drain(c *Client) []string {
	var types []string
	for {
		select {
		case data := <-c.Outbound():
			var f frame
			_ = json.Unmarshal(data, &f)
			types = append(types, f.typ())
		default:
			return types
		}
	}
}

type hubFixture struct {
	hub      *Hub
	db       *sqlite.SQLiteStore
	jwt      *auth.JWTConfig
	streamer *store.User
	stream   *store.Stream
}

func newHubFixture(t *testing.T, cfg Config) *hubFixture {
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

	jwtCfg := &auth.JWTConfig{Secret: []byte("core-test")}
	notifier := notifications.NewService(db, nil, nil)
	coordinator := points.NewService(db, notifier, nil, nil, points.Config{ChatPoints: 1})

	hub := NewHub(cfg, Deps{
		Verifier:  auth.NewJWTVerifier(jwtCfg),
		Directory: db,
		Chat:      coordinator,
	})
	notifier.SetDeliverer(hub.Dispatcher())
	coordinator.SetAnnouncer(hub.Dispatcher())

	return &hubFixture{hub: hub, db: db, jwt: jwtCfg, streamer: streamer, stream: stream}
}

func (f *hubFixture) user(t *testing.T, name string) (*store.User, string) {
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

// connect opens a session and joins the fixture stream.
func (f *hubFixture) connect(t *testing.T, id, token string) (*Session, *Client) {
	t.Helper()

	c := NewClient(id, 256)
	s := f.hub.NewSession(c)
	s.Handle(context.Background(), proto.Join{Credential: token, BroadcasterHandle: f.streamer.Name})
	if s.State() != StateJoined {
		t.Fatalf("join failed: %v", drain(c))
	}
	return s, c
}
