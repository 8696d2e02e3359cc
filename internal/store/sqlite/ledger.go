package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/astrotv/astrotv-server/internal/store"
)

// ledger implements store.Ledger on an open transaction.
type ledger struct {
	tx *sql.Tx
}

func (l *ledger) CreateMessage(ctx context.Context, msg *store.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	result, err := l.tx.ExecContext(ctx, `
		INSERT INTO messages (stream_id, author_id, stream_owner_id, text, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, msg.StreamID, msg.AuthorID, msg.StreamOwnerID, msg.Text, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	msg.ID = id
	return nil
}

func (l *ledger) IncrementPoints(ctx context.Context, userID, streamerID, delta int64) (int64, error) {
	var total int64
	err := l.tx.QueryRowContext(ctx, `
		INSERT INTO user_points (user_id, streamer_id, points, last_updated)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, streamer_id) DO UPDATE SET
			points = points + excluded.points,
			last_updated = excluded.last_updated
		RETURNING points
	`, userID, streamerID, delta, time.Now().UTC()).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("upsert user points: %w", err)
	}
	return total, nil
}

func (l *ledger) IncrementGlobalPoints(ctx context.Context, userID, delta int64) (int64, int, error) {
	var total int64
	var level int
	err := l.tx.QueryRowContext(ctx,
		`UPDATE users SET points = points + ? WHERE id = ? RETURNING points, level`, delta, userID,
	).Scan(&total, &level)
	if err != nil {
		return 0, 0, notFound("user", err)
	}
	return total, level, nil
}

func (l *ledger) SetGlobalLevel(ctx context.Context, userID int64, level int) error {
	if _, err := l.tx.ExecContext(ctx, `UPDATE users SET level = ? WHERE id = ?`, level, userID); err != nil {
		return fmt.Errorf("update user level: %w", err)
	}
	return nil
}

func (l *ledger) DebitCoins(ctx context.Context, userID, amount int64) (int64, error) {
	// The conditional update is the balance check; no row means either no
	// user or not enough coins.
	var balance int64
	err := l.tx.QueryRowContext(ctx,
		`UPDATE users SET coins = coins - ? WHERE id = ? AND coins >= ? RETURNING coins`,
		amount, userID, amount,
	).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("debit coins: %w", err)
	}

	if err := l.tx.QueryRowContext(ctx, `SELECT coins FROM users WHERE id = ?`, userID).Scan(&balance); err != nil {
		return 0, notFound("user", err)
	}
	return 0, &store.InsufficientFundsError{Balance: balance, Required: amount}
}

func (l *ledger) CreditCoinsReceived(ctx context.Context, streamerID, amount int64) error {
	result, err := l.tx.ExecContext(ctx,
		`UPDATE users SET coins_received = coins_received + ? WHERE id = ?`, amount, streamerID)
	if err != nil {
		return fmt.Errorf("credit coins received: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("streamer: %w", store.ErrNotFound)
	}
	return nil
}

func (l *ledger) AppendHistory(ctx context.Context, h *store.PointsHistory) error {
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}
	result, err := l.tx.ExecContext(ctx, `
		INSERT INTO points_history (user_id, streamer_id, action, points, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, h.UserID, h.StreamerID, h.Action, h.Points, h.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert points history: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	h.ID = id
	return nil
}
