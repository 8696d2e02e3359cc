package http

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/astrotv/astrotv-server/internal/store"
)

func TestProtectedRoutesRequireToken(t *testing.T) {
	f := newServerFixture(t)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Token abc"},
		{"invalid token", "Bearer abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var headers []string
			if tt.header != "" {
				headers = []string{"Authorization", tt.header}
			}
			resp := f.do(t, http.MethodPost, "/api/chat/send", "", map[string]any{"streamId": 1, "text": "x"}, headers...)
			expectStatus(t, resp, http.StatusUnauthorized)
		})
	}
}

func TestSendChatOverHTTP(t *testing.T) {
	f := newServerFixture(t)
	ana, token := f.user(t, "ana")

	resp := f.do(t, http.MethodPost, "/api/chat/send", token, map[string]any{"streamId": f.stream.ID, "text": "hola"})
	expectStatus(t, resp, http.StatusCreated)

	body := decode[SendChatResponse](t, resp)
	if body.Message.Text != "hola" || body.Message.Author.ID != ana.ID || body.Points != 1 {
		t.Fatalf("unexpected response: %+v", body)
	}

	resp = f.do(t, http.MethodPost, "/api/chat/send", token, map[string]any{"streamId": 9999, "text": "hola"})
	expectStatus(t, resp, http.StatusNotFound)

	resp = f.do(t, http.MethodPost, "/api/chat/send", token, map[string]any{"streamId": f.stream.ID, "text": "   "})
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestDeleteMessagePermissions(t *testing.T) {
	f := newServerFixture(t)
	_, authorToken := f.user(t, "ana")
	_, otherToken := f.user(t, "bo")
	ownerToken, err := generateFor(f, f.streamer)
	if err != nil {
		t.Fatalf("owner token: %v", err)
	}

	post := func() int64 {
		resp := f.do(t, http.MethodPost, "/api/chat/send", authorToken, map[string]any{"streamId": f.stream.ID, "text": "hola"})
		expectStatus(t, resp, http.StatusCreated)
		return decode[SendChatResponse](t, resp).Message.ID
	}

	first := post()
	expectStatus(t, f.do(t, http.MethodDelete, fmt.Sprintf("/api/chat/messages/%d", first), otherToken, nil), http.StatusForbidden)
	expectStatus(t, f.do(t, http.MethodDelete, fmt.Sprintf("/api/chat/messages/%d", first), authorToken, nil), http.StatusNoContent)
	expectStatus(t, f.do(t, http.MethodDelete, fmt.Sprintf("/api/chat/messages/%d", first), authorToken, nil), http.StatusNotFound)

	second := post()
	expectStatus(t, f.do(t, http.MethodDelete, fmt.Sprintf("/api/chat/messages/%d", second), ownerToken, nil), http.StatusNoContent)

	expectStatus(t, f.do(t, http.MethodDelete, "/api/chat/messages/abc", authorToken, nil), http.StatusBadRequest)
}

func TestSendGiftOverHTTP(t *testing.T) {
	f := newServerFixture(t)
	ctx := context.Background()
	ana, token := f.user(t, "ana")

	gift := &store.Gift{StreamerID: f.streamer.ID, Name: "rose", Cost: 50, Points: 12}
	if err := f.db.CreateGift(ctx, gift); err != nil {
		t.Fatalf("create gift: %v", err)
	}
	if _, err := f.db.AddCoins(ctx, ana.ID, 30); err != nil {
		t.Fatalf("add coins: %v", err)
	}

	resp := f.do(t, http.MethodPost, "/api/gifts/send", token, map[string]any{"giftId": gift.ID, "streamerId": f.streamer.ID})
	expectStatus(t, resp, http.StatusPaymentRequired)
	funds := decode[InsufficientFundsResponse](t, resp)
	if funds.Balance != 30 || funds.Required != 50 {
		t.Fatalf("unexpected 402 body: %+v", funds)
	}

	if _, err := f.db.AddCoins(ctx, ana.ID, 70); err != nil {
		t.Fatalf("add coins: %v", err)
	}
	resp = f.do(t, http.MethodPost, "/api/gifts/send", token, map[string]any{"giftId": gift.ID, "streamerId": f.streamer.ID})
	expectStatus(t, resp, http.StatusOK)
	body := decode[SendGiftResponse](t, resp)
	if body.NewBalance != 50 || body.Points != 12 || body.TierName != "Novato" || !body.LeveledUp {
		t.Fatalf("unexpected gift response: %+v", body)
	}

	resp = f.do(t, http.MethodPost, "/api/gifts/send", token, map[string]any{"giftId": 9999, "streamerId": f.streamer.ID})
	expectStatus(t, resp, http.StatusNotFound)
}

func TestEarnPointsAndNotifications(t *testing.T) {
	f := newServerFixture(t)
	_, token := f.user(t, "ana")

	resp := f.do(t, http.MethodPost, "/api/points/earn", token, map[string]any{
		"streamerId": f.streamer.ID, "action": "watch_time", "amount": 25,
	})
	expectStatus(t, resp, http.StatusOK)
	body := decode[EarnPointsResponse](t, resp)
	if body.Points != 25 || body.TierName != "Fan" || body.Tier != 2 {
		t.Fatalf("unexpected earn response: %+v", body)
	}

	resp = f.do(t, http.MethodPost, "/api/points/earn", token, map[string]any{
		"streamerId": f.streamer.ID, "action": "watch_time", "amount": -5,
	})
	expectStatus(t, resp, http.StatusBadRequest)

	resp = f.do(t, http.MethodGet, "/api/notifications", token, nil)
	expectStatus(t, resp, http.StatusOK)
	list := decode[struct {
		Notifications []map[string]any `json:"notifications"`
	}](t, resp)
	if len(list.Notifications) != 1 || list.Notifications[0]["type"] != string(store.NotificationLevelUp) {
		t.Fatalf("unexpected notifications: %+v", list.Notifications)
	}
}

func TestViewerCountEndpoint(t *testing.T) {
	f := newServerFixture(t)

	resp := f.do(t, http.MethodGet, fmt.Sprintf("/api/viewer/viewer-count/%d", f.stream.ID), "", nil)
	expectStatus(t, resp, http.StatusOK)
	body := decode[map[string]any](t, resp)
	if body["count"] != float64(0) {
		t.Fatalf("unexpected count: %v", body)
	}

	expectStatus(t, f.do(t, http.MethodGet, "/api/viewer/viewer-count/nope", "", nil), http.StatusBadRequest)
}
