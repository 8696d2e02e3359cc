package core

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/astrotv/astrotv-server/internal/loyalty"
	"github.com/astrotv/astrotv-server/internal/proto"
	"github.com/astrotv/astrotv-server/internal/service/points"
	"github.com/astrotv/astrotv-server/internal/store"
)

const (
	msgJoined         = "you joined the chat"
	msgAlreadyJoined  = "you are already in this chat"
	msgSessionReplace = "a new chat session was started"
)

// State is the lifecycle state of a Session.
type State int

const (
	StateUnauthenticated State = iota
	StateJoined
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateJoined:
		return "joined"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Session is the per-connection state machine. Frames must be handled from
// a single goroutine, in arrival order.
type Session struct {
	hub     *Hub
	client  *Client
	state   State
	limiter *rate.Limiter
	logger  zerolog.Logger

	userID      int64
	name        string
	stream      *store.Stream
	tier        loyalty.Tier
	historySent bool
}

// State returns the current state.
func (s *Session) State() State { return s.state }

// Client returns the session's connection.
func (s *Session) Client() *Client { return s.client }

// Handle processes one inbound frame.
func (s *Session) Handle(ctx context.Context, msg proto.Inbound) {
	if s.state == StateTerminated {
		s.sendError(errTerminated)
		return
	}
	if s.client.Closed() || s.client.Evicted() {
		// Replaced or closed underneath the read loop; the frame is dropped.
		s.terminate()
		return
	}

	switch m := msg.(type) {
	case proto.Join:
		s.handleJoin(ctx, m)
	case proto.Chat:
		s.handleChat(ctx, m)
	case proto.Typing:
		s.handleTyping(m)
	case proto.Leave:
		s.terminate()
	default:
		s.sendError(errUnknownType)
	}
}

// HandleRaw decodes and processes one inbound frame.
func (s *Session) HandleRaw(ctx context.Context, data []byte) {
	msg, err := proto.DecodeInbound(data)
	if err != nil {
		s.logger.Debug().Err(err).Msg("decode inbound frame")
		s.send(DecodeError(err))
		return
	}
	s.Handle(ctx, msg)
}

// Close terminates the session after the transport closed.
func (s *Session) Close() {
	s.terminate()
}

func (s *Session) send(frame proto.Outbound) bool {
	return s.hub.dispatcher.ToClient(s.client, frame)
}

func (s *Session) sendError(e *CoreError) {
	s.send(e.frame())
}

func (s *Session) viewer() proto.Viewer {
	return proto.Viewer{ID: s.userID, Name: s.name, Tier: s.tier.Rank, TierName: s.tier.Name}
}

func (s *Session) handleJoin(ctx context.Context, m proto.Join) {
	credential := strings.TrimSpace(m.Credential)
	handle := strings.TrimSpace(m.BroadcasterHandle)
	if credential == "" || handle == "" {
		s.sendError(errJoinFieldsRequired)
		return
	}

	identity, err := s.hub.verifier.Verify(ctx, credential)
	if err != nil {
		s.logger.Debug().Err(err).Msg("credential rejected")
		s.sendError(errInvalidCredential)
		return
	}

	stream, err := s.hub.dir.GetStreamByStreamerName(ctx, handle)
	if err != nil {
		s.lookupFailed(err, errStreamNotFound, "stream lookup failed")
		return
	}
	user, err := s.hub.dir.GetUserByID(ctx, identity.UserID)
	if err != nil {
		s.lookupFailed(err, errUserNotFound, "user lookup failed")
		return
	}

	if s.state == StateJoined && s.userID == user.ID && s.stream.ID == stream.ID && s.client.RoomID() == stream.ID {
		s.send(proto.Info{Message: msgAlreadyJoined})
		return
	}

	tier, err := loyalty.PersistedTier(ctx, s.hub.dir, user.ID, stream.StreamerID)
	if err != nil {
		s.logger.Error().Err(err).Int64("user_id", user.ID).Int64("stream_id", stream.ID).Msg("tier lookup failed")
		s.sendError(errJoinFailed)
		return
	}

	if s.state == StateJoined {
		s.leaveRoom()
		if s.userID != user.ID {
			s.hub.registry.Unregister(s.userID, s.client)
		}
	}

	if s.userID != user.ID || s.stream == nil || s.stream.ID != stream.ID {
		s.historySent = false
	}
	s.userID = user.ID
	s.name = user.Name
	s.stream = stream
	s.tier = tier
	s.logger = s.logger.With().Int64("user_id", user.ID).Logger()

	joined := proto.Joined{Message: msgJoined, RoomID: stream.ID, BroadcasterName: stream.Streamer}
	if s.hub.media != nil {
		grant, err := s.hub.media.ViewerGrant(ctx, stream.ID, user.ID, user.Name)
		if err != nil {
			s.logger.Warn().Err(err).Int64("stream_id", stream.ID).Msg("media grant failed")
		} else {
			joined.Media = &proto.MediaGrant{URL: grant.URL, Token: grant.Token, Room: grant.Room, Identity: grant.Identity}
		}
	}
	s.send(joined)

	res := s.hub.registry.Join(stream.ID, user.ID, s.client)
	if res.Rejected {
		// Already left any previous room above.
		s.state = StateUnauthenticated
		s.terminate()
		return
	}
	s.hub.registry.Register(user.ID, s.client)
	s.state = StateJoined

	if res.Evicted != nil {
		s.hub.dispatcher.ToClient(res.Evicted, proto.Info{Message: msgSessionReplace})
		res.Evicted.Close()
		s.logger.Info().
			Int64("stream_id", stream.ID).
			Str("evicted_conn_id", res.Evicted.ID).
			Msg("session takeover")
	}

	viewer := s.viewer()
	s.hub.dispatcher.ToRoomCount(stream.ID, func(count int) proto.Outbound {
		return proto.ViewerJoined{Viewer: viewer, NewCount: count}
	}, nil)
	s.broadcastCount(stream.ID)

	s.sendHistory(ctx)
}

func (s *Session) lookupFailed(err error, notFound *CoreError, msg string) {
	if errors.Is(err, store.ErrNotFound) {
		s.sendError(notFound)
		return
	}
	s.logger.Error().Err(err).Msg(msg)
	s.sendError(errJoinFailed)
}

func (s *Session) broadcastCount(roomID int64) {
	s.hub.dispatcher.ToRoomCount(roomID, func(count int) proto.Outbound {
		s.hub.presence.Record(roomID, count)
		return proto.ViewerCountUpdate{Count: count}
	}, nil)
}

func (s *Session) sendHistory(ctx context.Context) {
	if s.historySent {
		return
	}
	s.historySent = true

	history := proto.History{Messages: []proto.ChatMessage{}}
	if limit := s.hub.cfg.HistoryLimit; limit > 0 {
		msgs, err := s.hub.dir.ListRecentMessages(ctx, s.stream.ID, limit)
		if err != nil {
			s.logger.Error().Err(err).Int64("stream_id", s.stream.ID).Msg("load history failed")
		}

		authors := make([]int64, 0, len(msgs))
		seen := make(map[int64]struct{}, len(msgs))
		for _, m := range msgs {
			if _, ok := seen[m.AuthorID]; !ok {
				seen[m.AuthorID] = struct{}{}
				authors = append(authors, m.AuthorID)
			}
		}
		tiers, err := loyalty.PersistedTiers(ctx, s.hub.dir, s.stream.StreamerID, authors)
		if err != nil {
			s.logger.Warn().Err(err).Int64("stream_id", s.stream.ID).Msg("history tiers unavailable")
		}

		for _, m := range msgs {
			tier, ok := tiers[m.AuthorID]
			if !ok {
				tier = loyalty.Tier{Name: loyalty.UnrankedName}
			}
			history.Messages = append(history.Messages, chatMessage(m, tier))
		}
	}
	s.send(history)
}

func chatMessage(m *store.Message, tier loyalty.Tier) proto.ChatMessage {
	return proto.ChatMessage{
		ID:        m.ID,
		Text:      m.Text,
		CreatedAt: m.CreatedAt,
		Author:    proto.Viewer{ID: m.AuthorID, Name: m.AuthorName, Tier: tier.Rank, TierName: tier.Name},
	}
}

func (s *Session) handleChat(ctx context.Context, m proto.Chat) {
	if s.state != StateJoined || s.client.RoomID() != s.stream.ID {
		s.sendError(errNotJoined)
		return
	}
	text := strings.TrimSpace(m.Text)
	if text == "" {
		s.sendError(errEmptyMessage)
		return
	}
	if !s.limiter.Allow() {
		s.sendError(errRateLimited)
		return
	}

	res, err := s.hub.chat.SendChat(ctx, s.stream.ID, s.userID, text)
	switch {
	case errors.Is(err, points.ErrEmptyText):
		s.sendError(errEmptyMessage)
		return
	case errors.Is(err, points.ErrStreamNotFound):
		s.sendError(errStreamNotFound)
		return
	case err != nil:
		s.logger.Error().Err(err).Int64("stream_id", s.stream.ID).Msg("send chat failed")
		s.sendError(errSendFailed)
		return
	}

	s.tier = res.Tier
	s.hub.dispatcher.ToRoom(s.stream.ID, proto.Message{Message: chatMessage(res.Message, res.Tier)}, nil)
}

func (s *Session) handleTyping(m proto.Typing) {
	if s.state != StateJoined || s.client.RoomID() != s.stream.ID {
		s.sendError(errNotJoined)
		return
	}
	s.hub.dispatcher.ToRoom(s.stream.ID, proto.TypingIndicator{
		User:     proto.TypingUser{ID: s.userID, Name: s.name},
		IsTyping: m.IsTyping,
	}, s.client)
}

// leaveRoom removes the connection from its room and announces the departure.
func (s *Session) leaveRoom() {
	roomID, count, removed := s.hub.registry.Leave(s.client)
	if !removed {
		return
	}
	userID := s.userID
	s.hub.dispatcher.ToRoomCount(roomID, func(count int) proto.Outbound {
		return proto.ViewerLeft{ViewerID: userID, NewCount: count}
	}, nil)
	if count == 0 {
		s.hub.presence.Record(roomID, 0)
		return
	}
	s.broadcastCount(roomID)
}

func (s *Session) terminate() {
	if s.state == StateTerminated {
		return
	}
	if s.state == StateJoined {
		s.leaveRoom()
	}
	if s.userID != 0 {
		s.hub.registry.Unregister(s.userID, s.client)
	}
	s.state = StateTerminated
	s.client.Close()
}
