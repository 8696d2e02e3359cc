// Package points coordinates point awards for chat messages, gifts and
// actions: one atomic persistence unit, then tier recomputation, then
// notifications.
package points

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/astrotv/astrotv-server/internal/loyalty"
	"github.com/astrotv/astrotv-server/internal/metrics"
	"github.com/astrotv/astrotv-server/internal/proto"
	"github.com/astrotv/astrotv-server/internal/service/notifications"
	"github.com/astrotv/astrotv-server/internal/store"
)

const tracerName = "github.com/astrotv/astrotv-server/internal/service/points"

// History action labels.
const (
	ActionChatMessage = "chat_message"
	actionGiftPrefix  = "gift_sent:"
)

var (
	// ErrStreamNotFound is returned when the target stream does not exist.
	ErrStreamNotFound = errors.New("stream not found")
	// ErrStreamerNotFound is returned when the target streamer does not exist.
	ErrStreamerNotFound = errors.New("streamer not found")
	// ErrUserNotFound is returned when the acting user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrGiftNotFound is returned for an unknown gift.
	ErrGiftNotFound = errors.New("gift not found")
	// ErrGiftMismatch is returned when a gift belongs to another streamer.
	ErrGiftMismatch = errors.New("gift does not belong to streamer")
	// ErrInvalidAmount is returned for a non-positive award.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrEmptyText is returned for a blank chat message.
	ErrEmptyText = errors.New("message text is empty")
	// ErrInvalidAction is returned for a blank action label.
	ErrInvalidAction = errors.New("action is required")
)

// RoomAnnouncer broadcasts a frame to every member of a live room.
type RoomAnnouncer interface {
	Announce(roomID int64, frame proto.Outbound) int
}

// TierOutcome is the loyalty state after an award.
type TierOutcome struct {
	Tier      loyalty.Tier
	Changed   bool
	LeveledUp bool
}

// ChatResult is returned by SendChat.
type ChatResult struct {
	Message      *store.Message
	Stream       *store.Stream
	Points       int64
	GlobalPoints int64
	GlobalLevel  int
	TierOutcome
}

// GiftResult is returned by SendGift.
type GiftResult struct {
	Gift         *store.Gift
	CoinsSpent   int64
	PointsEarned int64
	NewBalance   int64
	Points       int64
	GlobalLevel  int
	TierOutcome
}

// AwardResult is returned by AwardPoints.
type AwardResult struct {
	Points      int64
	GlobalLevel int
	TierOutcome
}

// Config tunes the coordinator.
type Config struct {
	ChatPoints int64
}

// Service is the transaction coordinator.
type Service struct {
	store     store.Store
	updater   *loyalty.Updater
	notifier  *notifications.Service
	announcer RoomAnnouncer
	metrics   *metrics.Metrics
	logger    *zerolog.Logger
	tracer    trace.Tracer
	cfg       Config
	locks     *keyLocks
}

// NewService creates a coordinator. notifier, m and logger may be nil.
func NewService(s store.Store, notifier *notifications.Service, m *metrics.Metrics, logger *zerolog.Logger, cfg Config) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{
		store:    s,
		updater:  loyalty.NewUpdater(s),
		notifier: notifier,
		metrics:  m,
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
		cfg:      cfg,
		locks:    newKeyLocks(),
	}
}

// SetAnnouncer attaches the room broadcast path used for gift frames.
func (s *Service) SetAnnouncer(a RoomAnnouncer) {
	s.announcer = a
}

// credit runs the award steps inside an atomic unit and returns the new
// (user, streamer) total and global level.
func (s *Service) credit(ctx context.Context, l store.Ledger, userID, streamerID, delta int64, action string) (int64, int64, int, error) {
	total, level, err := l.IncrementGlobalPoints(ctx, userID, delta)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("increment global points: %w", err)
	}
	if next := loyalty.GlobalLevel(total); next != level {
		if err := l.SetGlobalLevel(ctx, userID, next); err != nil {
			return 0, 0, 0, fmt.Errorf("set global level: %w", err)
		}
		level = next
	}

	points, err := l.IncrementPoints(ctx, userID, streamerID, delta)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("increment points: %w", err)
	}

	if err := l.AppendHistory(ctx, &store.PointsHistory{
		UserID: userID, StreamerID: streamerID, Action: action, Points: delta,
	}); err != nil {
		return 0, 0, 0, fmt.Errorf("append history: %w", err)
	}
	return points, total, level, nil
}

// retier recomputes and persists the tier outside the atomic unit. Failures
// are logged and reported through the fallback tier; committed points stand.
func (s *Service) retier(ctx context.Context, userID, streamerID int64, streamerName string) TierOutcome {
	unlock := s.locks.Lock(pairKey{userID, streamerID})
	defer unlock()

	ctx, span := s.tracer.Start(ctx, "points.retier")
	defer span.End()

	outcome, err := s.updateTier(ctx, userID, streamerID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "tier update failed")
		s.metrics.AwardFailed(metrics.FailureTier)
		s.logger.Error().Err(err).
			Int64("user_id", userID).
			Int64("streamer_id", streamerID).
			Msg("tier update failed")

		tier, lookupErr := loyalty.PersistedTier(ctx, s.store, userID, streamerID)
		if lookupErr != nil {
			tier = loyalty.Tier{Name: loyalty.UnrankedName}
		}
		return TierOutcome{Tier: tier}
	}

	if outcome.LeveledUp {
		s.metrics.LevelUp()
		s.notifyLevelUp(ctx, userID, streamerID, streamerName, outcome.Tier)
	}
	return outcome
}

func (s *Service) updateTier(ctx context.Context, userID, streamerID int64) (TierOutcome, error) {
	points, err := s.store.GetPoints(ctx, userID, streamerID)
	if err != nil {
		return TierOutcome{}, fmt.Errorf("get points: %w", err)
	}
	levels, err := s.store.ListLoyaltyLevels(ctx, streamerID)
	if err != nil {
		return TierOutcome{}, fmt.Errorf("list loyalty levels: %w", err)
	}
	res, err := s.updater.Update(ctx, userID, streamerID, points, levels)
	if err != nil {
		return TierOutcome{}, err
	}
	return TierOutcome{Tier: res.NewTier, Changed: res.Changed, LeveledUp: res.LeveledUp}, nil
}

func (s *Service) notifyLevelUp(ctx context.Context, userID, streamerID int64, streamerName string, tier loyalty.Tier) {
	if s.notifier == nil {
		return
	}
	msg := fmt.Sprintf("You are now %s in the channel", tier.Name)
	if streamerName != "" {
		msg = fmt.Sprintf("You are now %s in %s's channel", tier.Name, streamerName)
	}
	data := map[string]any{"streamerId": streamerID, "tier": tier.Rank, "tierName": tier.Name}
	if _, _, err := s.notifier.Notify(ctx, userID, store.NotificationLevelUp, "Level up!", msg, data); err != nil {
		s.metrics.AwardFailed(metrics.FailureNotify)
		s.logger.Error().Err(err).Int64("user_id", userID).Msg("level up notification failed")
	}
}

func (s *Service) persistFailed(span trace.Span, err error, event *zerolog.Event) {
	span.RecordError(err)
	span.SetStatus(codes.Error, "persist failed")
	s.metrics.AwardFailed(metrics.FailurePersist)
	event.Err(err).Msg("award transaction failed")
}

// SendChat persists a chat message together with its point award.
func (s *Service) SendChat(ctx context.Context, streamID, authorID int64, text string) (*ChatResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}

	ctx, span := s.tracer.Start(ctx, "points.SendChat", trace.WithAttributes(
		attribute.Int64("stream.id", streamID),
		attribute.Int64("user.id", authorID),
	))
	defer span.End()

	stream, err := s.store.GetStreamByID(ctx, streamID)
	if err != nil {
		return nil, lookupErr(err, ErrStreamNotFound, "get stream")
	}
	author, err := s.store.GetUserByID(ctx, authorID)
	if err != nil {
		return nil, lookupErr(err, ErrUserNotFound, "get user")
	}

	res := &ChatResult{Stream: stream}
	msg := &store.Message{
		StreamID: stream.ID, AuthorID: author.ID, AuthorName: author.Name,
		StreamOwnerID: stream.StreamerID, Text: text,
	}
	delta := s.cfg.ChatPoints

	err = s.store.Atomically(ctx, func(l store.Ledger) error {
		if err := l.CreateMessage(ctx, msg); err != nil {
			return fmt.Errorf("create message: %w", err)
		}
		if delta <= 0 {
			return nil
		}
		var err error
		res.Points, res.GlobalPoints, res.GlobalLevel, err = s.credit(ctx, l, author.ID, stream.StreamerID, delta, ActionChatMessage)
		return err
	})
	if err != nil {
		s.persistFailed(span, err, s.logger.Error().Int64("user_id", authorID).Int64("stream_id", streamID))
		return nil, fmt.Errorf("send chat: %w", err)
	}
	res.Message = msg
	s.metrics.ChatMessage()
	s.metrics.PointsAwarded(delta)

	res.TierOutcome = s.retier(ctx, author.ID, stream.StreamerID, stream.Streamer)
	span.SetAttributes(attribute.Int("tier.rank", res.Tier.Rank))
	return res, nil
}

// SendGift debits the gift cost and credits its points in one atomic unit.
func (s *Service) SendGift(ctx context.Context, userID, streamerID, giftID int64) (*GiftResult, error) {
	ctx, span := s.tracer.Start(ctx, "points.SendGift", trace.WithAttributes(
		attribute.Int64("user.id", userID),
		attribute.Int64("streamer.id", streamerID),
		attribute.Int64("gift.id", giftID),
	))
	defer span.End()

	gift, err := s.store.GetGift(ctx, giftID)
	if err != nil {
		return nil, lookupErr(err, ErrGiftNotFound, "get gift")
	}
	if gift.StreamerID != streamerID {
		return nil, ErrGiftMismatch
	}
	sender, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, lookupErr(err, ErrUserNotFound, "get user")
	}
	streamer, err := s.store.GetUserByID(ctx, streamerID)
	if err != nil {
		return nil, lookupErr(err, ErrStreamerNotFound, "get streamer")
	}

	res := &GiftResult{Gift: gift, CoinsSpent: gift.Cost, PointsEarned: gift.Points}
	err = s.store.Atomically(ctx, func(l store.Ledger) error {
		balance, err := l.DebitCoins(ctx, sender.ID, gift.Cost)
		if err != nil {
			return err
		}
		res.NewBalance = balance

		if gift.Points > 0 {
			res.Points, _, res.GlobalLevel, err = s.credit(ctx, l, sender.ID, streamer.ID, gift.Points, actionGiftPrefix+gift.Name)
			if err != nil {
				return err
			}
		}
		if gift.Cost > 0 {
			if err := l.CreditCoinsReceived(ctx, streamer.ID, gift.Cost); err != nil {
				return fmt.Errorf("credit streamer: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrInsufficientFunds) {
			span.SetStatus(codes.Error, "insufficient funds")
			return nil, err
		}
		s.persistFailed(span, err, s.logger.Error().Int64("user_id", userID).Int64("gift_id", giftID))
		return nil, fmt.Errorf("send gift: %w", err)
	}
	s.metrics.GiftSent()
	s.metrics.PointsAwarded(gift.Points)

	res.TierOutcome = s.retier(ctx, sender.ID, streamer.ID, streamer.Name)
	s.announceGift(ctx, sender, streamer, gift, res.Tier)
	return res, nil
}

func (s *Service) announceGift(ctx context.Context, sender, streamer *store.User, gift *store.Gift, tier loyalty.Tier) {
	if s.notifier != nil {
		data := map[string]any{"giftId": gift.ID, "senderId": sender.ID, "coins": gift.Cost}
		msg := fmt.Sprintf("%s sent you %s", sender.Name, gift.Name)
		if _, _, err := s.notifier.Notify(ctx, streamer.ID, store.NotificationGiftReceived, "New gift", msg, data); err != nil {
			s.metrics.AwardFailed(metrics.FailureNotify)
			s.logger.Error().Err(err).Int64("streamer_id", streamer.ID).Msg("gift notification failed")
		}
	}

	if s.announcer == nil {
		return
	}
	stream, err := s.store.GetLiveStreamByStreamer(ctx, streamer.ID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn().Err(err).Int64("streamer_id", streamer.ID).Msg("live stream lookup failed")
		}
		return
	}
	s.announcer.Announce(stream.ID, proto.Gift{
		Gift:   proto.GiftItem{ID: gift.ID, Name: gift.Name, Cost: gift.Cost, Points: gift.Points},
		Sender: proto.Viewer{ID: sender.ID, Name: sender.Name, Tier: tier.Rank, TierName: tier.Name},
	})
}

// AwardPoints credits points for an arbitrary action label.
func (s *Service) AwardPoints(ctx context.Context, userID, streamerID int64, action string, amount int64) (*AwardResult, error) {
	action = strings.TrimSpace(action)
	if action == "" {
		return nil, ErrInvalidAction
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	ctx, span := s.tracer.Start(ctx, "points.AwardPoints", trace.WithAttributes(
		attribute.Int64("user.id", userID),
		attribute.Int64("streamer.id", streamerID),
		attribute.String("action", action),
	))
	defer span.End()

	streamer, err := s.store.GetUserByID(ctx, streamerID)
	if err != nil {
		return nil, lookupErr(err, ErrStreamerNotFound, "get streamer")
	}

	res := &AwardResult{}
	err = s.store.Atomically(ctx, func(l store.Ledger) error {
		var err error
		res.Points, _, res.GlobalLevel, err = s.credit(ctx, l, userID, streamer.ID, amount, action)
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		s.persistFailed(span, err, s.logger.Error().Int64("user_id", userID).Str("action", action))
		return nil, fmt.Errorf("award points: %w", err)
	}
	s.metrics.PointsAwarded(amount)

	res.TierOutcome = s.retier(ctx, userID, streamer.ID, streamer.Name)
	return res, nil
}

func lookupErr(err, notFound error, op string) error {
	if errors.Is(err, store.ErrNotFound) {
		return notFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
