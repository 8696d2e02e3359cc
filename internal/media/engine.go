// Package media issues credentials for the broadcast media backend.
package media

import "context"

// Grant contains what a viewer needs to subscribe to a broadcast's media room.
type Grant struct {
	URL      string
	Token    string
	Room     string
	Identity string
}

// Engine abstracts the media backend.
type Engine interface {
	// RoomName returns the media room backing a stream.
	RoomName(streamID int64) string

	// ViewerGrant creates subscribe-only credentials for a user.
	ViewerGrant(ctx context.Context, streamID, userID int64, name string) (*Grant, error)
}
