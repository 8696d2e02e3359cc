// Package notifications persists user notifications and pushes them to live sessions.
package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/astrotv/astrotv-server/internal/proto"
	"github.com/astrotv/astrotv-server/internal/store"
)

// ErrInvalidNotification is returned for a notification without a user or title.
var ErrInvalidNotification = errors.New("invalid notification")

// Deliverer pushes a frame to a user's live connection, if any.
type Deliverer interface {
	ToUser(userID int64, frame proto.Outbound) bool
}

// Service creates notifications.
type Service struct {
	store     store.NotificationStore
	deliverer Deliverer
	logger    *zerolog.Logger
}

// NewService creates a notification service. deliverer may be nil.
func NewService(s store.NotificationStore, deliverer Deliverer, logger *zerolog.Logger) *Service {
	return &Service{store: s, deliverer: deliverer, logger: logger}
}

// SetDeliverer attaches the live delivery path after construction.
func (s *Service) SetDeliverer(d Deliverer) {
	s.deliverer = d
}

// Notify persists a notification and attempts direct delivery. delivered
// reports whether a live connection accepted the frame.
func (s *Service) Notify(ctx context.Context, userID int64, kind store.NotificationKind, title, message string, data any) (*store.Notification, bool, error) {
	if userID <= 0 || title == "" {
		return nil, false, ErrInvalidNotification
	}

	n := &store.Notification{UserID: userID, Kind: kind, Title: title, Message: message}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, false, fmt.Errorf("encode notification data: %w", err)
		}
		n.Data = raw
	}

	if err := s.store.CreateNotification(ctx, n); err != nil {
		return nil, false, fmt.Errorf("create notification: %w", err)
	}

	delivered := false
	if s.deliverer != nil {
		delivered = s.deliverer.ToUser(userID, proto.Notification{Notification: ToProto(n)})
	}
	if s.logger != nil {
		s.logger.Debug().
			Int64("user_id", userID).
			Str("kind", string(kind)).
			Bool("delivered", delivered).
			Msg("notification created")
	}
	return n, delivered, nil
}

// List returns a user's notifications newest first.
func (s *Service) List(ctx context.Context, userID int64) ([]*store.Notification, error) {
	list, err := s.store.ListNotifications(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return list, nil
}

// ToProto maps a stored notification to its wire shape.
func ToProto(n *store.Notification) proto.NotificationBody {
	return proto.NotificationBody{
		ID:        n.ID,
		Type:      string(n.Kind),
		Title:     n.Title,
		Message:   n.Message,
		Data:      json.RawMessage(n.Data),
		Read:      n.Read,
		CreatedAt: n.CreatedAt,
	}
}
