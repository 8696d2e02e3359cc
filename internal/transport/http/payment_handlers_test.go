package http

import (
	"context"
	"net/http"
	"testing"

	"github.com/astrotv/astrotv-server/internal/auth"
	"github.com/astrotv/astrotv-server/internal/store"
)

func generateFor(f *serverFixture, u *store.User) (string, error) {
	return auth.GenerateToken(f.jwt, u.ID, u.Email)
}

func TestPaymentCheckoutAndSettle(t *testing.T) {
	f := newServerFixture(t)
	ctx := context.Background()
	_, token := f.user(t, "ana")
	_, otherToken := f.user(t, "bo")

	pack := &store.CoinPack{Name: "small", Coins: 100, Price: 4.99}
	if err := f.db.CreateCoinPack(ctx, pack); err != nil {
		t.Fatalf("create pack: %v", err)
	}

	resp := f.do(t, http.MethodPost, "/api/payment/checkout", token, map[string]any{"coinPackId": pack.ID, "sessionId": "cs_test"})
	expectStatus(t, resp, http.StatusCreated)
	tx := decode[TransactionResponse](t, resp)
	if tx.Status != string(store.TransactionPending) || tx.Coins != 100 || tx.SessionID != "cs_test" {
		t.Fatalf("unexpected checkout: %+v", tx)
	}

	expectStatus(t, f.do(t, http.MethodPost, "/api/payment/settle", otherToken, map[string]any{"sessionId": "cs_test"}), http.StatusForbidden)

	resp = f.do(t, http.MethodPost, "/api/payment/settle", token, map[string]any{"sessionId": "cs_test"})
	expectStatus(t, resp, http.StatusOK)
	settled := decode[SettleResponse](t, resp)
	if !settled.Credited || settled.Balance != 100 || settled.Transaction.Status != string(store.TransactionCompleted) {
		t.Fatalf("unexpected settle: %+v", settled)
	}

	// The webhook arriving later must not credit again.
	resp = f.do(t, http.MethodPost, "/api/payment/webhook", "", map[string]any{"sessionId": "cs_test"}, WebhookSecretHeader, testWebhookSecret)
	expectStatus(t, resp, http.StatusOK)
	again := decode[SettleResponse](t, resp)
	if again.Credited || again.Balance != 100 {
		t.Fatalf("second settle credited: %+v", again)
	}

	expectStatus(t, f.do(t, http.MethodPost, "/api/payment/settle", token, map[string]any{"sessionId": "cs_missing"}), http.StatusNotFound)
	expectStatus(t, f.do(t, http.MethodPost, "/api/payment/checkout", token, map[string]any{"coinPackId": 9999}), http.StatusNotFound)
}

func TestPaymentWebhookRequiresSecret(t *testing.T) {
	f := newServerFixture(t)

	expectStatus(t, f.do(t, http.MethodPost, "/api/payment/webhook", "", map[string]any{"sessionId": "cs_x"}), http.StatusUnauthorized)
	expectStatus(t, f.do(t, http.MethodPost, "/api/payment/webhook", "", map[string]any{"sessionId": "cs_x"}, WebhookSecretHeader, "wrong"), http.StatusUnauthorized)
	expectStatus(t, f.do(t, http.MethodPost, "/api/payment/webhook", "", map[string]any{"sessionId": "cs_x"}, WebhookSecretHeader, testWebhookSecret), http.StatusNotFound)
}
