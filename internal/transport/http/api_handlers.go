package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/astrotv/astrotv-server/internal/core"
	"github.com/astrotv/astrotv-server/internal/proto"
	"github.com/astrotv/astrotv-server/internal/service/notifications"
	"github.com/astrotv/astrotv-server/internal/service/points"
	"github.com/astrotv/astrotv-server/internal/store"
)

// APIHandlers provides HTTP handlers for chat, gifts, points and presence.
type APIHandlers struct {
	hub           *core.Hub
	store         store.Store
	points        *points.Service
	notifications *notifications.Service
	log           *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(deps Deps, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		hub:           deps.Hub,
		store:         deps.Store,
		points:        deps.Points,
		notifications: deps.Notifications,
		log:           logger,
	}
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// InsufficientFundsResponse is returned with 402.
type InsufficientFundsResponse struct {
	Error    string `json:"error"`
	Balance  int64  `json:"balance"`
	Required int64  `json:"required"`
}

// SendChatRequest represents the chat send request body.
type SendChatRequest struct {
	StreamID int64  `json:"streamId" binding:"required"`
	Text     string `json:"text" binding:"required"`
}

// SendChatResponse represents the chat send response body.
type SendChatResponse struct {
	Message     proto.ChatMessage `json:"message"`
	Points      int64             `json:"points"`
	GlobalLevel int               `json:"globalLevel"`
	LeveledUp   bool              `json:"leveledUp"`
}

// SendChat persists a chat message and broadcasts it to the stream's room.
// POST /api/chat/send
func (h *APIHandlers) SendChat(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req SendChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid chat request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	res, err := h.points.SendChat(c.Request.Context(), req.StreamID, uid, req.Text)
	if err != nil {
		h.serviceError(c, err)
		return
	}

	msg := chatMessage(res.Message, res.Tier.Rank, res.Tier.Name)
	h.hub.Dispatcher().ToRoom(res.Stream.ID, proto.Message{Message: msg}, nil)

	c.JSON(http.StatusCreated, SendChatResponse{
		Message:     msg,
		Points:      res.Points,
		GlobalLevel: res.GlobalLevel,
		LeveledUp:   res.LeveledUp,
	})
}

// DeleteMessage removes a chat message. Only its author or the stream owner may delete it.
// DELETE /api/chat/messages/:id
func (h *APIHandlers) DeleteMessage(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid message id"})
		return
	}

	ctx := c.Request.Context()
	msg, err := h.store.GetMessage(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "message not found"})
		return
	}
	if err != nil {
		h.log.Error().Err(err).Int64("message_id", id).Msg("failed to get message")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if msg.AuthorID != uid && msg.StreamOwnerID != uid {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not allowed to delete this message"})
		return
	}

	if err := h.store.DeleteMessage(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "message not found"})
			return
		}
		h.log.Error().Err(err).Int64("message_id", id).Msg("failed to delete message")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Int64("message_id", id).Int64("user_id", uid).Msg("message deleted")
	c.Status(http.StatusNoContent)
}

// SendGiftRequest represents the gift send request body.
type SendGiftRequest struct {
	GiftID     int64 `json:"giftId" binding:"required"`
	StreamerID int64 `json:"streamerId" binding:"required"`
}

// SendGiftResponse represents the gift send response body.
type SendGiftResponse struct {
	CoinsSpent   int64  `json:"coinsSpent"`
	PointsEarned int64  `json:"pointsEarned"`
	NewBalance   int64  `json:"newBalance"`
	Points       int64  `json:"points"`
	Tier         int    `json:"tier"`
	TierName     string `json:"tierName"`
	LeveledUp    bool   `json:"leveledUp"`
}

// SendGift spends coins on a gift for a streamer.
// POST /api/gifts/send
func (h *APIHandlers) SendGift(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req SendGiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid gift request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	res, err := h.points.SendGift(c.Request.Context(), uid, req.StreamerID, req.GiftID)
	if err != nil {
		h.serviceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SendGiftResponse{
		CoinsSpent:   res.CoinsSpent,
		PointsEarned: res.PointsEarned,
		NewBalance:   res.NewBalance,
		Points:       res.Points,
		Tier:         res.Tier.Rank,
		TierName:     res.Tier.Name,
		LeveledUp:    res.LeveledUp,
	})
}

// EarnPointsRequest represents the points earn request body.
type EarnPointsRequest struct {
	StreamerID int64  `json:"streamerId" binding:"required"`
	Action     string `json:"action" binding:"required"`
	Amount     int64  `json:"amount" binding:"required"`
}

// EarnPointsResponse represents the points earn response body.
type EarnPointsResponse struct {
	Points      int64  `json:"points"`
	GlobalLevel int    `json:"globalLevel"`
	Tier        int    `json:"tier"`
	TierName    string `json:"tierName"`
	LeveledUp   bool   `json:"leveledUp"`
}

// EarnPoints credits points for an action.
// POST /api/points/earn
func (h *APIHandlers) EarnPoints(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req EarnPointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid points request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	res, err := h.points.AwardPoints(c.Request.Context(), uid, req.StreamerID, req.Action, req.Amount)
	if err != nil {
		h.serviceError(c, err)
		return
	}

	c.JSON(http.StatusOK, EarnPointsResponse{
		Points:      res.Points,
		GlobalLevel: res.GlobalLevel,
		Tier:        res.Tier.Rank,
		TierName:    res.Tier.Name,
		LeveledUp:   res.LeveledUp,
	})
}

// ViewerCount reports the live member count of a stream's room.
// GET /api/viewer/viewer-count/:streamId
func (h *APIHandlers) ViewerCount(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("streamId"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid stream id"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"streamId": id,
		"count":    h.hub.Registry().MemberCount(id),
	})
}

// ListNotifications returns the caller's notifications, newest first.
// GET /api/notifications
func (h *APIHandlers) ListNotifications(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	list, err := h.notifications.List(c.Request.Context(), uid)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", uid).Msg("failed to list notifications")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	out := make([]proto.NotificationBody, 0, len(list))
	for _, n := range list {
		out = append(out, notifications.ToProto(n))
	}
	c.JSON(http.StatusOK, gin.H{"notifications": out})
}

// serviceError maps coordinator errors to HTTP responses.
func (h *APIHandlers) serviceError(c *gin.Context, err error) {
	var funds *store.InsufficientFundsError
	switch {
	case errors.As(err, &funds):
		c.JSON(http.StatusPaymentRequired, InsufficientFundsResponse{
			Error:    "insufficient coins",
			Balance:  funds.Balance,
			Required: funds.Required,
		})
	case errors.Is(err, points.ErrStreamNotFound),
		errors.Is(err, points.ErrStreamerNotFound),
		errors.Is(err, points.ErrUserNotFound),
		errors.Is(err, points.ErrGiftNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, points.ErrGiftMismatch),
		errors.Is(err, points.ErrEmptyText),
		errors.Is(err, points.ErrInvalidAmount),
		errors.Is(err, points.ErrInvalidAction):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	default:
		h.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}
