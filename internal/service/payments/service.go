// Package payments records coin purchases and settles them exactly once.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/astrotv/astrotv-server/internal/service/notifications"
	"github.com/astrotv/astrotv-server/internal/store"
	"github.com/astrotv/astrotv-server/internal/utils"
)

const sessionPrefix = "cs_"

var (
	// ErrTransactionNotFound is returned for an unknown external session id.
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrCoinPackNotFound is returned for an unknown coin pack.
	ErrCoinPackNotFound = errors.New("coin pack not found")
	// ErrForbidden is returned when a user settles another user's purchase.
	ErrForbidden = errors.New("transaction belongs to another user")
	// ErrInvalidSession is returned for a blank session id.
	ErrInvalidSession = errors.New("session id is required")
)

// Settlement is the outcome of a settle call.
type Settlement struct {
	Transaction *store.Transaction
	Balance     int64
	// Credited is false when an earlier call already completed the purchase.
	Credited bool
}

// Service handles coin purchases.
type Service struct {
	store    store.PaymentStore
	notifier *notifications.Service
	logger   *zerolog.Logger
}

// NewService creates a payments service. notifier may be nil.
func NewService(s store.PaymentStore, notifier *notifications.Service, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{store: s, notifier: notifier, logger: logger}
}

// Checkout records a pending purchase of a coin pack. An empty sessionID is
// replaced by a generated one.
func (s *Service) Checkout(ctx context.Context, userID, coinPackID int64, sessionID string) (*store.Transaction, error) {
	pack, err := s.store.GetCoinPack(ctx, coinPackID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrCoinPackNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get coin pack: %w", err)
	}

	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		sessionID = utils.NewPrefixedID(sessionPrefix)
	}

	t := &store.Transaction{
		UserID:            userID,
		CoinPackID:        pack.ID,
		Coins:             pack.Coins,
		ExternalSessionID: sessionID,
	}
	if err := s.store.CreatePendingTransaction(ctx, t); err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}
	s.logger.Info().
		Int64("user_id", userID).
		Int64("coin_pack_id", pack.ID).
		Str("session_id", sessionID).
		Msg("checkout created")
	return t, nil
}

// Settle completes the purchase behind sessionID. It is safe to call from
// both the payment webhook and a client poll; coins are credited once.
func (s *Service) Settle(ctx context.Context, sessionID string) (*Settlement, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrInvalidSession
	}

	t, balance, credited, err := s.store.SettleTransaction(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", sessionID).Msg("settle transaction failed")
		return nil, fmt.Errorf("settle transaction: %w", err)
	}

	if credited {
		s.logger.Info().
			Int64("user_id", t.UserID).
			Int64("coins", t.Coins).
			Str("session_id", sessionID).
			Msg("coins credited")
		if s.notifier != nil {
			data := map[string]any{"coins": t.Coins, "balance": balance}
			msg := fmt.Sprintf("%d coins were added to your balance", t.Coins)
			if _, _, err := s.notifier.Notify(ctx, t.UserID, store.NotificationSystem, "Purchase completed", msg, data); err != nil {
				s.logger.Error().Err(err).Int64("user_id", t.UserID).Msg("purchase notification failed")
			}
		}
	}
	return &Settlement{Transaction: t, Balance: balance, Credited: credited}, nil
}

// SettleForUser settles only if the purchase belongs to userID.
func (s *Service) SettleForUser(ctx context.Context, userID int64, sessionID string) (*Settlement, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrInvalidSession
	}

	t, err := s.store.GetTransaction(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	if t.UserID != userID {
		return nil, ErrForbidden
	}
	return s.Settle(ctx, sessionID)
}
