package store

import (
	"context"
	"time"
)

// User represents a platform account. Broadcasters are users too.
type User struct {
	ID            int64
	Name          string
	Email         string
	Coins         int64
	Points        int64
	Level         int
	CoinsReceived int64
	CreatedAt     time.Time
}

// Stream is one broadcast instance of a streamer.
type Stream struct {
	ID         int64
	StreamerID int64
	Streamer   string // streamer display name, used as the public handle
	Title      string
	IsLive     bool
	Viewers    int
	StartedAt  time.Time
}

// Message is a persisted chat message.
type Message struct {
	ID            int64
	StreamID      int64
	AuthorID      int64
	AuthorName    string // filled on reads
	StreamOwnerID int64
	Text          string
	CreatedAt     time.Time
}

// LoyaltyLevel is one tier of a broadcaster's progression.
type LoyaltyLevel struct {
	ID             int64
	StreamerID     int64
	Name           string
	PointsRequired int64
	Reward         string
}

// TierAssignment records the tier currently held by a user for a broadcaster.
type TierAssignment struct {
	UserID         int64
	StreamerID     int64
	LoyaltyLevelID int64
	UpdatedAt      time.Time
}

// PointsHistory is one point-earning action.
type PointsHistory struct {
	ID         int64
	UserID     int64
	StreamerID int64
	Action     string
	Points     int64
	CreatedAt  time.Time
}

// Gift is a purchasable item configured by a streamer.
type Gift struct {
	ID         int64
	StreamerID int64
	Name       string
	Cost       int64
	Points     int64
}

// NotificationKind classifies notifications.
type NotificationKind string

const (
	NotificationLevelUp      NotificationKind = "level_up"
	NotificationGiftReceived NotificationKind = "gift_received"
	NotificationSystem       NotificationKind = "system"
)

// Notification is a persisted user notification.
type Notification struct {
	ID        int64
	UserID    int64
	Kind      NotificationKind
	Title     string
	Message   string
	Data      []byte // raw JSON, may be nil
	Read      bool
	CreatedAt time.Time
}

// CoinPack is a purchasable bundle of coins.
type CoinPack struct {
	ID    int64
	Name  string
	Coins int64
	Price float64
}

// TransactionStatus is the lifecycle state of a coin purchase.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
)

// Transaction is a coin purchase tracked by its external payment session id.
type Transaction struct {
	ID                int64
	UserID            int64
	CoinPackID        int64
	Coins             int64
	ExternalSessionID string
	Status            TransactionStatus
	CreatedAt         time.Time
	CompletedAt       *time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a user with the given name and email.
	CreateUser(ctx context.Context, name, email string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// AddCoins credits coins outside of a purchase flow (seeding, admin).
	AddCoins(ctx context.Context, userID, amount int64) (int64, error)
}

// StreamStore handles stream persistence.
type StreamStore interface {
	// CreateStream starts a stream for a streamer.
	CreateStream(ctx context.Context, streamerID int64, title string) (*Stream, error)

	// GetStreamByID retrieves a stream by ID.
	GetStreamByID(ctx context.Context, id int64) (*Stream, error)

	// GetStreamByStreamerName returns the streamer's most recent stream, live ones first.
	GetStreamByStreamerName(ctx context.Context, name string) (*Stream, error)

	// GetLiveStreamByStreamer returns the live stream of a streamer.
	GetLiveStreamByStreamer(ctx context.Context, streamerID int64) (*Stream, error)

	// SetStreamViewers stores the presence snapshot for a stream.
	SetStreamViewers(ctx context.Context, streamID int64, viewers int) error
}

// MessageStore handles chat message reads and deletion.
type MessageStore interface {
	// ListRecentMessages returns up to limit newest messages, oldest first.
	ListRecentMessages(ctx context.Context, streamID int64, limit int) ([]*Message, error)

	// GetMessage retrieves a message by ID.
	GetMessage(ctx context.Context, id int64) (*Message, error)

	// DeleteMessage removes a message.
	DeleteMessage(ctx context.Context, id int64) error
}

// LoyaltyStore handles tier definitions and assignments.
type LoyaltyStore interface {
	// CreateLoyaltyLevel adds a tier for a streamer.
	CreateLoyaltyLevel(ctx context.Context, level *LoyaltyLevel) error

	// ListLoyaltyLevels returns a streamer's tiers ordered by points required.
	ListLoyaltyLevels(ctx context.Context, streamerID int64) ([]*LoyaltyLevel, error)

	// GetTierAssignment returns the assignment or ErrNotFound.
	GetTierAssignment(ctx context.Context, userID, streamerID int64) (*TierAssignment, error)

	// ListTierAssignments returns assignments for many users of one streamer.
	ListTierAssignments(ctx context.Context, streamerID int64, userIDs []int64) ([]*TierAssignment, error)

	// SetTierAssignment upserts the assignment.
	SetTierAssignment(ctx context.Context, userID, streamerID, levelID int64) error

	// ClearTierAssignment removes the assignment if present.
	ClearTierAssignment(ctx context.Context, userID, streamerID int64) error
}

// PointsStore handles point balance reads.
type PointsStore interface {
	// GetPoints returns the user's points with a streamer, zero if absent.
	GetPoints(ctx context.Context, userID, streamerID int64) (int64, error)

	// ListPointsHistory returns history entries newest first.
	ListPointsHistory(ctx context.Context, userID, streamerID int64) ([]*PointsHistory, error)
}

// GiftStore handles gift definitions.
type GiftStore interface {
	// CreateGift adds a gift for a streamer.
	CreateGift(ctx context.Context, gift *Gift) error

	// GetGift retrieves a gift by ID.
	GetGift(ctx context.Context, id int64) (*Gift, error)
}

// NotificationStore handles notification persistence.
type NotificationStore interface {
	// CreateNotification persists a notification and fills ID and CreatedAt.
	CreateNotification(ctx context.Context, n *Notification) error

	// ListNotifications returns a user's notifications newest first.
	ListNotifications(ctx context.Context, userID int64) ([]*Notification, error)
}

// PaymentStore handles coin purchases.
type PaymentStore interface {
	// CreateCoinPack adds a coin pack.
	CreateCoinPack(ctx context.Context, pack *CoinPack) error

	// GetCoinPack retrieves a coin pack by ID.
	GetCoinPack(ctx context.Context, id int64) (*CoinPack, error)

	// GetTransaction retrieves a transaction by its external session id.
	GetTransaction(ctx context.Context, externalSessionID string) (*Transaction, error)

	// CreatePendingTransaction records a purchase awaiting settlement.
	CreatePendingTransaction(ctx context.Context, tx *Transaction) error

	// SettleTransaction moves a pending transaction to completed and credits
	// its coins in one atomic unit. credited is false when the transaction was
	// already completed; the returned balance is the user's current coins.
	SettleTransaction(ctx context.Context, externalSessionID string) (tx *Transaction, balance int64, credited bool, err error)
}

// Ledger is the set of mutations available inside an atomic unit.
// Every call made through one Ledger commits together or not at all.
type Ledger interface {
	// CreateMessage persists a chat message and fills ID and CreatedAt.
	CreateMessage(ctx context.Context, msg *Message) error

	// IncrementPoints upserts the (user, streamer) points row and returns the new total.
	IncrementPoints(ctx context.Context, userID, streamerID, delta int64) (int64, error)

	// IncrementGlobalPoints adds delta to the user total and returns the new
	// total with the level currently stored.
	IncrementGlobalPoints(ctx context.Context, userID, delta int64) (total int64, level int, err error)

	// SetGlobalLevel stores the user's global level.
	SetGlobalLevel(ctx context.Context, userID int64, level int) error

	// DebitCoins subtracts amount, failing with *InsufficientFundsError before
	// any mutation when the balance is too small.
	DebitCoins(ctx context.Context, userID, amount int64) (int64, error)

	// CreditCoinsReceived adds to a streamer's received coins.
	CreditCoinsReceived(ctx context.Context, streamerID, amount int64) error

	// AppendHistory records a point-earning action.
	AppendHistory(ctx context.Context, h *PointsHistory) error
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	StreamStore
	MessageStore
	LoyaltyStore
	PointsStore
	GiftStore
	NotificationStore
	PaymentStore

	// Atomically runs fn inside one transaction. A non-nil error from fn
	// rolls back every mutation made through the Ledger.
	Atomically(ctx context.Context, fn func(Ledger) error) error

	// Close closes the underlying database connection.
	Close() error
}
