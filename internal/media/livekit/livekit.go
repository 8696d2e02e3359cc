package livekit

import (
	"context"
	"fmt"
	"time"

	"github.com/livekit/protocol/auth"

	"github.com/astrotv/astrotv-server/internal/media"
)

const defaultTokenTTL = time.Hour

// Engine implements media.Engine using LiveKit as the media backend.
type Engine struct {
	apiKey    string
	apiSecret string
	wsURL     string
	ttl       time.Duration
}

// New creates a LiveKit engine.
func New(apiKey, apiSecret, wsURL string) *Engine {
	return &Engine{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		wsURL:     wsURL,
		ttl:       defaultTokenTTL,
	}
}

// RoomName returns the LiveKit room for a stream. LiveKit creates rooms on
// demand when the broadcaster publishes.
func (e *Engine) RoomName(streamID int64) string {
	return fmt.Sprintf("astrotv-stream-%d", streamID)
}

// ViewerGrant creates a subscribe-only token for the stream's room.
func (e *Engine) ViewerGrant(_ context.Context, streamID, userID int64, name string) (*media.Grant, error) {
	room := e.RoomName(streamID)
	identity := fmt.Sprintf("viewer-%d", userID)

	canPublish := false
	canSubscribe := true
	grant := &auth.VideoGrant{
		RoomJoin:       true,
		Room:           room,
		CanPublish:     &canPublish,
		CanPublishData: &canPublish,
		CanSubscribe:   &canSubscribe,
	}

	at := auth.NewAccessToken(e.apiKey, e.apiSecret)
	at.SetVideoGrant(grant).
		SetIdentity(identity).
		SetName(name).
		SetValidFor(e.ttl)

	token, err := at.ToJWT()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	return &media.Grant{
		URL:      e.wsURL,
		Token:    token,
		Room:     room,
		Identity: identity,
	}, nil
}

var _ media.Engine = (*Engine)(nil)
