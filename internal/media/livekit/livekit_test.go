package livekit

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func TestViewerGrantIsSubscribeOnly(t *testing.T) {
	e := New("devkey", "devsecret-devsecret-devsecret-00", "ws://localhost:7880")

	g, err := e.ViewerGrant(context.Background(), 12, 7, "ana")
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if g.Room != "astrotv-stream-12" || g.Identity != "viewer-7" || g.URL != "ws://localhost:7880" {
		t.Fatalf("unexpected grant: %+v", g)
	}

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(g.Token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte("devsecret-devsecret-devsecret-00"), nil
	})
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims["iss"] != "devkey" || claims["sub"] != "viewer-7" {
		t.Fatalf("unexpected claims: %v", claims)
	}

	video, ok := claims["video"].(map[string]any)
	if !ok {
		t.Fatalf("missing video grant: %v", claims)
	}
	if video["room"] != "astrotv-stream-12" || video["roomJoin"] != true {
		t.Fatalf("unexpected video grant: %v", video)
	}
	if video["canPublish"] != false || video["canSubscribe"] != true {
		t.Fatalf("grant must be subscribe-only: %v", video)
	}
}
