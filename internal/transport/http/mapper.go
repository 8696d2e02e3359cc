package http

import (
	"time"

	"github.com/astrotv/astrotv-server/internal/proto"
	"github.com/astrotv/astrotv-server/internal/store"
)

func chatMessage(m *store.Message, rank int, tierName string) proto.ChatMessage {
	return proto.ChatMessage{
		ID:        m.ID,
		Text:      m.Text,
		CreatedAt: m.CreatedAt,
		Author:    proto.Viewer{ID: m.AuthorID, Name: m.AuthorName, Tier: rank, TierName: tierName},
	}
}

// TransactionResponse represents a coin purchase in API responses.
type TransactionResponse struct {
	ID          int64   `json:"id"`
	CoinPackID  int64   `json:"coinPackId"`
	Coins       int64   `json:"coins"`
	SessionID   string  `json:"sessionId"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"createdAt"`
	CompletedAt *string `json:"completedAt,omitempty"`
}

func transactionResponse(t *store.Transaction) TransactionResponse {
	resp := TransactionResponse{
		ID:         t.ID,
		CoinPackID: t.CoinPackID,
		Coins:      t.Coins,
		SessionID:  t.ExternalSessionID,
		Status:     string(t.Status),
		CreatedAt:  t.CreatedAt.Format(time.RFC3339),
	}
	if t.CompletedAt != nil {
		s := t.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &s
	}
	return resp
}
