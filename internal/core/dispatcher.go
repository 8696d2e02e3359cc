package core

import (
	"github.com/rs/zerolog"

	"github.com/astrotv/astrotv-server/internal/metrics"
	"github.com/astrotv/astrotv-server/internal/proto"
)

// Dispatcher fans frames out to room members and delivers to single users.
type Dispatcher struct {
	registry *Registry
	metrics  *metrics.Metrics
	logger   *zerolog.Logger
}

// NewDispatcher creates a dispatcher over registry.
func NewDispatcher(registry *Registry, m *metrics.Metrics, logger *zerolog.Logger) *Dispatcher {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Dispatcher{registry: registry, metrics: m, logger: logger}
}

func (d *Dispatcher) encode(frame proto.Outbound) ([]byte, bool) {
	data, err := proto.Encode(frame)
	if err != nil {
		d.logger.Error().Err(err).Str("type", frame.OutboundType()).Msg("encode frame")
		return nil, false
	}
	return data, true
}

// deliver queues data to every member except exclude. Caller holds room.mu.
func (d *Dispatcher) deliver(room *Room, data []byte, exclude *Client) int {
	delivered := 0
	for c := range room.members {
		if c == exclude {
			continue
		}
		if c.Send(data) {
			delivered++
		} else {
			d.metrics.FrameDropped()
		}
	}
	return delivered
}

// ToRoom serializes frame once and queues it to every open member of the
// room except exclude. It returns the number of members reached.
func (d *Dispatcher) ToRoom(roomID int64, frame proto.Outbound, exclude *Client) int {
	data, ok := d.encode(frame)
	if !ok {
		return 0
	}
	delivered := 0
	d.registry.withRoom(roomID, func(room *Room) {
		delivered = d.deliver(room, data, exclude)
	})
	return delivered
}

// ToRoomCount builds a frame from the room's member count and delivers it
// while membership cannot change, so the count matches the room at send time.
func (d *Dispatcher) ToRoomCount(roomID int64, build func(count int) proto.Outbound, exclude *Client) int {
	delivered := 0
	d.registry.withRoom(roomID, func(room *Room) {
		data, ok := d.encode(build(len(room.members)))
		if !ok {
			return
		}
		delivered = d.deliver(room, data, exclude)
	})
	return delivered
}

// Announce delivers frame to every member of the room.
func (d *Dispatcher) Announce(roomID int64, frame proto.Outbound) int {
	return d.ToRoom(roomID, frame, nil)
}

// ToUser delivers frame to the user's most recent connection, in any room.
func (d *Dispatcher) ToUser(userID int64, frame proto.Outbound) bool {
	c := d.registry.UserConn(userID)
	if c == nil {
		return false
	}
	return d.ToClient(c, frame)
}

// ToClient delivers frame to a single connection.
func (d *Dispatcher) ToClient(c *Client, frame proto.Outbound) bool {
	data, ok := d.encode(frame)
	if !ok {
		return false
	}
	if !c.Send(data) {
		d.metrics.FrameDropped()
		return false
	}
	return true
}
