package proto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	InboundTypeJoin   = "join"
	InboundTypeChat   = "chat"
	InboundTypeTyping = "typing"
	InboundTypeLeave  = "leave"

	OutboundTypeJoined            = "joined"
	OutboundTypeError             = "error"
	OutboundTypeInfo              = "info"
	OutboundTypeHistory           = "history"
	OutboundTypeMessage           = "message"
	OutboundTypeViewerJoined      = "viewer_joined"
	OutboundTypeViewerLeft        = "viewer_left"
	OutboundTypeViewerCountUpdate = "viewer_count_update"
	OutboundTypeTyping            = "typing"
	OutboundTypeNotification      = "notification"
	OutboundTypeGift              = "gift"
)

// Error codes carried by error frames.
const (
	CodeBadRequest   = "bad_request"
	CodeUnauthorized = "unauthorized"
	CodeNotFound     = "not_found"
	CodeNotJoined    = "not_joined"
	CodeRateLimited  = "rate_limited"
	CodeTerminated   = "terminated"
	CodeInternal     = "internal"
)

// ErrUnknownType is returned by DecodeInbound for an unrecognized type tag.
var ErrUnknownType = errors.New("unknown message type")

// Inbound is a frame sent by the client.
type Inbound interface {
	inbound()
}

// Join asks to enter a broadcaster's room.
type Join struct {
	Credential        string `json:"credential"`
	BroadcasterHandle string `json:"broadcasterHandle"`
}

// Chat posts a message to the current room.
type Chat struct {
	Text string `json:"text"`
}

// Typing toggles the typing indicator.
type Typing struct {
	IsTyping bool `json:"isTyping"`
}

// Leave exits the current room.
type Leave struct{}

func (Join) inbound()   {}
func (Chat) inbound()   {}
func (Typing) inbound() {}
func (Leave) inbound()  {}

// DecodeInbound parses a raw client frame into its typed variant.
func DecodeInbound(data []byte) (Inbound, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	var msg Inbound
	switch head.Type {
	case InboundTypeJoin:
		var m Join
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode join: %w", err)
		}
		msg = m
	case InboundTypeChat:
		var m Chat
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode chat: %w", err)
		}
		msg = m
	case InboundTypeTyping:
		var m Typing
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode typing: %w", err)
		}
		msg = m
	case InboundTypeLeave:
		msg = Leave{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, head.Type)
	}
	return msg, nil
}

// Outbound is a frame sent to the client.
type Outbound interface {
	OutboundType() string
}

// Encode serializes an outbound frame with its type tag as the first field.
func Encode(msg Outbound) ([]byte, error) {
	return encodeTagged(msg.OutboundType(), msg)
}

// EncodeInbound serializes a client frame. Clients and tools use it to speak
// the protocol.
func EncodeInbound(msg Inbound) ([]byte, error) {
	var typ string
	switch msg.(type) {
	case Join:
		typ = InboundTypeJoin
	case Chat:
		typ = InboundTypeChat
	case Typing:
		typ = InboundTypeTyping
	case Leave:
		typ = InboundTypeLeave
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, msg)
	}
	return encodeTagged(typ, msg)
}

func encodeTagged(typ string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", typ, err)
	}

	var buf bytes.Buffer
	buf.Grow(len(body) + 16)
	buf.WriteString(`{"type":`)
	tag, _ := json.Marshal(typ)
	buf.Write(tag)
	if len(body) > 2 {
		buf.WriteByte(',')
		buf.Write(body[1:])
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}

// Viewer identifies a user in presence and chat frames.
type Viewer struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Tier     int    `json:"tier"`
	TierName string `json:"tierName"`
}

// ChatMessage is a chat line as seen by clients.
type ChatMessage struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	Author    Viewer    `json:"author"`
}

// MediaGrant lets a viewer subscribe to the broadcast media room.
type MediaGrant struct {
	URL      string `json:"url"`
	Token    string `json:"token"`
	Room     string `json:"room"`
	Identity string `json:"identity"`
}

// Joined acknowledges a successful join.
type Joined struct {
	Message         string      `json:"message"`
	RoomID          int64       `json:"roomId"`
	BroadcasterName string      `json:"broadcasterName"`
	Media           *MediaGrant `json:"media,omitempty"`
}

// Error reports a failed request. The connection stays open unless the code is terminal.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Info carries a human readable notice.
type Info struct {
	Message string `json:"message"`
}

// History is the recent message backlog delivered once after a join.
type History struct {
	Messages []ChatMessage `json:"messages"`
}

// Message is a new chat line.
type Message struct {
	Message ChatMessage `json:"message"`
}

// ViewerJoined announces a new room member.
type ViewerJoined struct {
	Viewer   Viewer `json:"viewer"`
	NewCount int    `json:"newCount"`
}

// ViewerLeft announces a departed room member.
type ViewerLeft struct {
	ViewerID int64 `json:"viewerId"`
	NewCount int   `json:"newCount"`
}

// ViewerCountUpdate carries the current room size.
type ViewerCountUpdate struct {
	Count int `json:"count"`
}

// TypingUser identifies who is typing.
type TypingUser struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// TypingIndicator relays a typing toggle to other members.
type TypingIndicator struct {
	User     TypingUser `json:"user"`
	IsTyping bool       `json:"isTyping"`
}

// NotificationBody is a notification as seen by clients.
type NotificationBody struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data,omitempty"`
	Read      bool            `json:"read"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Notification pushes a persisted notification to its owner.
type Notification struct {
	Notification NotificationBody `json:"notification"`
}

// GiftItem describes a sent gift.
type GiftItem struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Cost   int64  `json:"cost"`
	Points int64  `json:"points"`
}

// Gift announces a gift to the room.
type Gift struct {
	Gift   GiftItem `json:"gift"`
	Sender Viewer   `json:"sender"`
}

func (Joined) OutboundType() string            { return OutboundTypeJoined }
func (Error) OutboundType() string             { return OutboundTypeError }
func (Info) OutboundType() string              { return OutboundTypeInfo }
func (History) OutboundType() string           { return OutboundTypeHistory }
func (Message) OutboundType() string           { return OutboundTypeMessage }
func (ViewerJoined) OutboundType() string      { return OutboundTypeViewerJoined }
func (ViewerLeft) OutboundType() string        { return OutboundTypeViewerLeft }
func (ViewerCountUpdate) OutboundType() string { return OutboundTypeViewerCountUpdate }
func (TypingIndicator) OutboundType() string   { return OutboundTypeTyping }
func (Notification) OutboundType() string      { return OutboundTypeNotification }
func (Gift) OutboundType() string              { return OutboundTypeGift }
