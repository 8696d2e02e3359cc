package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/astrotv/astrotv-server/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ store.Store = (*SQLiteStore)(nil)

// New opens the database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		return Migrate(context.Background(), db)
	})
}

// NewWithSetup opens the database and runs a setup function instead of the schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// A single connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Atomically runs fn inside a transaction.
func (s *SQLiteStore) Atomically(ctx context.Context, fn func(store.Ledger) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	if err := fn(&ledger{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func notFound(what string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return fmt.Errorf("query %s: %w", what, err)
}

// ==== UserStore implementation ====

const userColumns = `id, name, email, coins, points, level, coins_received, created_at`

func scanUser(row interface{ Scan(...any) error }) (*store.User, error) {
	var u store.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Coins, &u.Points, &u.Level, &u.CoinsReceived, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser creates a user.
func (s *SQLiteStore) CreateUser(ctx context.Context, name, email string) (*store.User, error) {
	result, err := s.db.ExecContext(ctx, `INSERT INTO users (name, email) VALUES (?, ?)`, name, email)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err != nil {
		return nil, notFound("user", err)
	}
	return u, nil
}

// AddCoins credits coins to a user and returns the new balance.
func (s *SQLiteStore) AddCoins(ctx context.Context, userID, amount int64) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx,
		`UPDATE users SET coins = coins + ? WHERE id = ? RETURNING coins`, amount, userID,
	).Scan(&balance)
	if err != nil {
		return 0, notFound("user", err)
	}
	return balance, nil
}

// ==== StreamStore implementation ====

const streamSelect = `
	SELECT s.id, s.streamer_id, u.name, s.title, s.is_live, s.viewers, s.started_at
	FROM streams s
	JOIN users u ON u.id = s.streamer_id
`

func scanStream(row interface{ Scan(...any) error }) (*store.Stream, error) {
	var st store.Stream
	err := row.Scan(&st.ID, &st.StreamerID, &st.Streamer, &st.Title, &st.IsLive, &st.Viewers, &st.StartedAt)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// CreateStream starts a live stream.
func (s *SQLiteStore) CreateStream(ctx context.Context, streamerID int64, title string) (*store.Stream, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO streams (streamer_id, title, is_live, started_at) VALUES (?, ?, 1, ?)`,
		streamerID, title, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert stream: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetStreamByID(ctx, id)
}

// GetStreamByID retrieves a stream by ID.
func (s *SQLiteStore) GetStreamByID(ctx context.Context, id int64) (*store.Stream, error) {
	st, err := scanStream(s.db.QueryRowContext(ctx, streamSelect+` WHERE s.id = ?`, id))
	if err != nil {
		return nil, notFound("stream", err)
	}
	return st, nil
}

// GetStreamByStreamerName returns the streamer's newest stream, preferring live ones.
func (s *SQLiteStore) GetStreamByStreamerName(ctx context.Context, name string) (*store.Stream, error) {
	query := streamSelect + `
		WHERE u.name = ?
		ORDER BY s.is_live DESC, s.started_at DESC, s.id DESC
		LIMIT 1
	`
	st, err := scanStream(s.db.QueryRowContext(ctx, query, name))
	if err != nil {
		return nil, notFound("stream", err)
	}
	return st, nil
}

// GetLiveStreamByStreamer returns the streamer's live stream.
func (s *SQLiteStore) GetLiveStreamByStreamer(ctx context.Context, streamerID int64) (*store.Stream, error) {
	query := streamSelect + `
		WHERE s.streamer_id = ? AND s.is_live = 1
		ORDER BY s.started_at DESC, s.id DESC
		LIMIT 1
	`
	st, err := scanStream(s.db.QueryRowContext(ctx, query, streamerID))
	if err != nil {
		return nil, notFound("stream", err)
	}
	return st, nil
}

// SetStreamViewers stores the viewer count snapshot.
func (s *SQLiteStore) SetStreamViewers(ctx context.Context, streamID int64, viewers int) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE streams SET viewers = ? WHERE id = ?`, viewers, streamID); err != nil {
		return fmt.Errorf("update stream viewers: %w", err)
	}
	return nil
}

// ==== MessageStore implementation ====

const messageSelect = `
	SELECT m.id, m.stream_id, m.author_id, u.name, m.stream_owner_id, m.text, m.created_at
	FROM messages m
	JOIN users u ON u.id = m.author_id
`

func scanMessage(row interface{ Scan(...any) error }) (*store.Message, error) {
	var m store.Message
	err := row.Scan(&m.ID, &m.StreamID, &m.AuthorID, &m.AuthorName, &m.StreamOwnerID, &m.Text, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListRecentMessages returns up to limit newest messages in chronological order.
func (s *SQLiteStore) ListRecentMessages(ctx context.Context, streamID int64, limit int) ([]*store.Message, error) {
	rows, err := s.db.QueryContext(ctx, messageSelect+`
		WHERE m.stream_id = ?
		ORDER BY m.id DESC
		LIMIT ?
	`, streamID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// GetMessage retrieves a message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, id int64) (*store.Message, error) {
	m, err := scanMessage(s.db.QueryRowContext(ctx, messageSelect+` WHERE m.id = ?`, id))
	if err != nil {
		return nil, notFound("message", err)
	}
	return m, nil
}

// DeleteMessage removes a message.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("message: %w", store.ErrNotFound)
	}
	return nil
}

// ==== LoyaltyStore implementation ====

// CreateLoyaltyLevel adds a tier.
func (s *SQLiteStore) CreateLoyaltyLevel(ctx context.Context, level *store.LoyaltyLevel) error {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO loyalty_levels (streamer_id, name, points_required, reward) VALUES (?, ?, ?, ?)`,
		level.StreamerID, level.Name, level.PointsRequired, level.Reward,
	)
	if err != nil {
		return fmt.Errorf("insert loyalty level: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	level.ID = id
	return nil
}

// ListLoyaltyLevels returns tiers ordered by points required.
func (s *SQLiteStore) ListLoyaltyLevels(ctx context.Context, streamerID int64) ([]*store.LoyaltyLevel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, streamer_id, name, points_required, reward
		FROM loyalty_levels
		WHERE streamer_id = ?
		ORDER BY points_required ASC, id ASC
	`, streamerID)
	if err != nil {
		return nil, fmt.Errorf("query loyalty levels: %w", err)
	}
	defer rows.Close()

	var levels []*store.LoyaltyLevel
	for rows.Next() {
		var l store.LoyaltyLevel
		if err := rows.Scan(&l.ID, &l.StreamerID, &l.Name, &l.PointsRequired, &l.Reward); err != nil {
			return nil, fmt.Errorf("scan loyalty level: %w", err)
		}
		levels = append(levels, &l)
	}
	return levels, rows.Err()
}

// GetTierAssignment returns the user's tier assignment for a streamer.
func (s *SQLiteStore) GetTierAssignment(ctx context.Context, userID, streamerID int64) (*store.TierAssignment, error) {
	var a store.TierAssignment
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, streamer_id, loyalty_level_id, updated_at
		FROM user_loyalty_levels
		WHERE user_id = ? AND streamer_id = ?
	`, userID, streamerID).Scan(&a.UserID, &a.StreamerID, &a.LoyaltyLevelID, &a.UpdatedAt)
	if err != nil {
		return nil, notFound("tier assignment", err)
	}
	return &a, nil
}

// ListTierAssignments returns assignments of the given users for one streamer.
func (s *SQLiteStore) ListTierAssignments(ctx context.Context, streamerID int64, userIDs []int64) ([]*store.TierAssignment, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(userIDs)), ",")
	args := make([]any, 0, len(userIDs)+1)
	args = append(args, streamerID)
	for _, id := range userIDs {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, streamer_id, loyalty_level_id, updated_at
		FROM user_loyalty_levels
		WHERE streamer_id = ? AND user_id IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query tier assignments: %w", err)
	}
	defer rows.Close()

	var out []*store.TierAssignment
	for rows.Next() {
		var a store.TierAssignment
		if err := rows.Scan(&a.UserID, &a.StreamerID, &a.LoyaltyLevelID, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tier assignment: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// SetTierAssignment upserts the user's tier for a streamer.
func (s *SQLiteStore) SetTierAssignment(ctx context.Context, userID, streamerID, levelID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_loyalty_levels (user_id, streamer_id, loyalty_level_id, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, streamer_id) DO UPDATE SET
			loyalty_level_id = excluded.loyalty_level_id,
			updated_at = excluded.updated_at
	`, userID, streamerID, levelID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert tier assignment: %w", err)
	}
	return nil
}

// ClearTierAssignment removes the user's tier for a streamer.
func (s *SQLiteStore) ClearTierAssignment(ctx context.Context, userID, streamerID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM user_loyalty_levels WHERE user_id = ? AND streamer_id = ?`, userID, streamerID)
	if err != nil {
		return fmt.Errorf("delete tier assignment: %w", err)
	}
	return nil
}

// ==== PointsStore implementation ====

// GetPoints returns the user's points with a streamer.
func (s *SQLiteStore) GetPoints(ctx context.Context, userID, streamerID int64) (int64, error) {
	var points int64
	err := s.db.QueryRowContext(ctx,
		`SELECT points FROM user_points WHERE user_id = ? AND streamer_id = ?`, userID, streamerID,
	).Scan(&points)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("query points: %w", err)
	}
	return points, nil
}

// ListPointsHistory returns point history newest first.
func (s *SQLiteStore) ListPointsHistory(ctx context.Context, userID, streamerID int64) ([]*store.PointsHistory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, streamer_id, action, points, created_at
		FROM points_history
		WHERE user_id = ? AND streamer_id = ?
		ORDER BY id DESC
	`, userID, streamerID)
	if err != nil {
		return nil, fmt.Errorf("query points history: %w", err)
	}
	defer rows.Close()

	var out []*store.PointsHistory
	for rows.Next() {
		var h store.PointsHistory
		if err := rows.Scan(&h.ID, &h.UserID, &h.StreamerID, &h.Action, &h.Points, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan points history: %w", err)
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}

// ==== GiftStore implementation ====

// CreateGift adds a gift.
func (s *SQLiteStore) CreateGift(ctx context.Context, gift *store.Gift) error {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO gifts (streamer_id, name, cost, points) VALUES (?, ?, ?, ?)`,
		gift.StreamerID, gift.Name, gift.Cost, gift.Points,
	)
	if err != nil {
		return fmt.Errorf("insert gift: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	gift.ID = id
	return nil
}

// GetGift retrieves a gift by ID.
func (s *SQLiteStore) GetGift(ctx context.Context, id int64) (*store.Gift, error) {
	var g store.Gift
	err := s.db.QueryRowContext(ctx,
		`SELECT id, streamer_id, name, cost, points FROM gifts WHERE id = ?`, id,
	).Scan(&g.ID, &g.StreamerID, &g.Name, &g.Cost, &g.Points)
	if err != nil {
		return nil, notFound("gift", err)
	}
	return &g, nil
}

// ==== NotificationStore implementation ====

// CreateNotification persists a notification.
func (s *SQLiteStore) CreateNotification(ctx context.Context, n *store.Notification) error {
	var data sql.NullString
	if len(n.Data) > 0 {
		data = sql.NullString{String: string(n.Data), Valid: true}
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (user_id, type, title, message, data, read, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)
	`, n.UserID, n.Kind, n.Title, n.Message, data, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	n.ID = id
	return nil
}

// ListNotifications returns a user's notifications newest first.
func (s *SQLiteStore) ListNotifications(ctx context.Context, userID int64) ([]*store.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, type, title, message, data, read, created_at
		FROM notifications
		WHERE user_id = ?
		ORDER BY id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var out []*store.Notification
	for rows.Next() {
		var n store.Notification
		var data sql.NullString
		if err := rows.Scan(&n.ID, &n.UserID, &n.Kind, &n.Title, &n.Message, &data, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		if data.Valid {
			n.Data = []byte(data.String)
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}

// ==== PaymentStore implementation ====

// CreateCoinPack adds a coin pack.
func (s *SQLiteStore) CreateCoinPack(ctx context.Context, pack *store.CoinPack) error {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO coin_packs (name, coins, price) VALUES (?, ?, ?)`, pack.Name, pack.Coins, pack.Price)
	if err != nil {
		return fmt.Errorf("insert coin pack: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	pack.ID = id
	return nil
}

// GetCoinPack retrieves a coin pack by ID.
func (s *SQLiteStore) GetCoinPack(ctx context.Context, id int64) (*store.CoinPack, error) {
	var p store.CoinPack
	err := s.db.QueryRowContext(ctx, `SELECT id, name, coins, price FROM coin_packs WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.Coins, &p.Price)
	if err != nil {
		return nil, notFound("coin pack", err)
	}
	return &p, nil
}

// CreatePendingTransaction records a purchase awaiting settlement.
func (s *SQLiteStore) CreatePendingTransaction(ctx context.Context, t *store.Transaction) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	t.Status = store.TransactionPending

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (user_id, coin_pack_id, coins, external_session_id, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, t.UserID, t.CoinPackID, t.Coins, t.ExternalSessionID, t.Status, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	t.ID = id
	return nil
}

const transactionColumns = `id, user_id, coin_pack_id, coins, external_session_id, status, created_at, completed_at`

func scanTransaction(row interface{ Scan(...any) error }) (*store.Transaction, error) {
	var t store.Transaction
	var completedAt sql.NullTime
	if err := row.Scan(&t.ID, &t.UserID, &t.CoinPackID, &t.Coins, &t.ExternalSessionID, &t.Status, &t.CreatedAt, &completedAt); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	return &t, nil
}

// GetTransaction retrieves a transaction by its external session id.
func (s *SQLiteStore) GetTransaction(ctx context.Context, externalSessionID string) (*store.Transaction, error) {
	t, err := scanTransaction(s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE external_session_id = ?`, externalSessionID))
	if err != nil {
		return nil, notFound("transaction", err)
	}
	return t, nil
}

// SettleTransaction completes a pending transaction exactly once.
func (s *SQLiteStore) SettleTransaction(ctx context.Context, externalSessionID string) (*store.Transaction, int64, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, false, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	result, err := tx.ExecContext(ctx, `
		UPDATE transactions SET status = ?, completed_at = ?
		WHERE external_session_id = ? AND status = ?
	`, store.TransactionCompleted, time.Now().UTC(), externalSessionID, store.TransactionPending)
	if err != nil {
		return nil, 0, false, fmt.Errorf("complete transaction: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, 0, false, fmt.Errorf("rows affected: %w", err)
	}

	t, err := scanTransaction(tx.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE external_session_id = ?`, externalSessionID))
	if err != nil {
		return nil, 0, false, notFound("transaction", err)
	}

	credited := affected == 1
	var balance int64
	if credited {
		err = tx.QueryRowContext(ctx,
			`UPDATE users SET coins = coins + ? WHERE id = ? RETURNING coins`, t.Coins, t.UserID,
		).Scan(&balance)
	} else {
		err = tx.QueryRowContext(ctx, `SELECT coins FROM users WHERE id = ?`, t.UserID).Scan(&balance)
	}
	if err != nil {
		return nil, 0, false, notFound("user", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, false, fmt.Errorf("commit transaction: %w", err)
	}
	return t, balance, credited, nil
}
