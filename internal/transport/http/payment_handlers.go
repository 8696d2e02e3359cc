package http

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/astrotv/astrotv-server/internal/service/payments"
)

// WebhookSecretHeader carries the shared secret of the payment collaborator.
const WebhookSecretHeader = "X-Webhook-Secret"

// PaymentHandlers provides HTTP handlers for coin purchases.
type PaymentHandlers struct {
	payments      *payments.Service
	webhookSecret string
	log           *zerolog.Logger
}

// NewPaymentHandlers creates payment handlers. An empty webhook secret
// disables the webhook.
func NewPaymentHandlers(svc *payments.Service, webhookSecret string, logger *zerolog.Logger) *PaymentHandlers {
	return &PaymentHandlers{payments: svc, webhookSecret: webhookSecret, log: logger}
}

// CheckoutRequest represents the checkout request body.
type CheckoutRequest struct {
	CoinPackID int64  `json:"coinPackId" binding:"required"`
	SessionID  string `json:"sessionId"`
}

// SettleRequest represents the settle and webhook request body.
type SettleRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
}

// SettleResponse represents the outcome of a settlement.
type SettleResponse struct {
	Transaction TransactionResponse `json:"transaction"`
	Balance     int64               `json:"balance"`
	Credited    bool                `json:"credited"`
}

// Checkout records a pending purchase.
// POST /api/payment/checkout
func (h *PaymentHandlers) Checkout(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid checkout request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	t, err := h.payments.Checkout(c.Request.Context(), uid, req.CoinPackID, req.SessionID)
	if err != nil {
		h.paymentError(c, err)
		return
	}
	c.JSON(http.StatusCreated, transactionResponse(t))
}

// Settle completes the caller's purchase.
// POST /api/payment/settle
func (h *PaymentHandlers) Settle(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req SettleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	res, err := h.payments.SettleForUser(c.Request.Context(), uid, req.SessionID)
	if err != nil {
		h.paymentError(c, err)
		return
	}
	c.JSON(http.StatusOK, settleResponse(res))
}

// Webhook completes a purchase on behalf of the payment collaborator.
// POST /api/payment/webhook
func (h *PaymentHandlers) Webhook(c *gin.Context) {
	got := c.GetHeader(WebhookSecretHeader)
	if h.webhookSecret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.webhookSecret)) != 1 {
		h.log.Warn().Str("remote", c.ClientIP()).Msg("payment webhook rejected")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid webhook secret"})
		return
	}

	var req SettleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	res, err := h.payments.Settle(c.Request.Context(), req.SessionID)
	if err != nil {
		h.paymentError(c, err)
		return
	}
	c.JSON(http.StatusOK, settleResponse(res))
}

func settleResponse(s *payments.Settlement) SettleResponse {
	return SettleResponse{
		Transaction: transactionResponse(s.Transaction),
		Balance:     s.Balance,
		Credited:    s.Credited,
	}
}

func (h *PaymentHandlers) paymentError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, payments.ErrTransactionNotFound), errors.Is(err, payments.ErrCoinPackNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, payments.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: err.Error()})
	case errors.Is(err, payments.ErrInvalidSession):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	default:
		h.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("payment request failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}
