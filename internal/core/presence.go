package core

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const presenceFlushTimeout = 5 * time.Second

// PresenceSink stores a stream's viewer count snapshot.
type PresenceSink interface {
	SetStreamViewers(ctx context.Context, streamID int64, viewers int) error
}

// PresenceRecorder coalesces viewer count changes and writes the latest
// value per room to its sinks off the join/leave path.
type PresenceRecorder struct {
	mu      sync.Mutex
	pending map[int64]int
	signal  chan struct{}

	sinks  []PresenceSink
	logger *zerolog.Logger
}

// NewPresenceRecorder creates a recorder writing to sinks.
func NewPresenceRecorder(logger *zerolog.Logger, sinks ...PresenceSink) *PresenceRecorder {
	return &PresenceRecorder{
		pending: make(map[int64]int),
		signal:  make(chan struct{}, 1),
		sinks:   sinks,
		logger:  logger,
	}
}

// AddSink adds a sink. It must be called before Run.
func (p *PresenceRecorder) AddSink(s PresenceSink) {
	p.sinks = append(p.sinks, s)
}

// Record schedules count as the snapshot for roomID. It never blocks.
func (p *PresenceRecorder) Record(roomID int64, count int) {
	p.mu.Lock()
	p.pending[roomID] = count
	p.mu.Unlock()

	select {
	case p.signal <- struct{}{}:
	default:
	}
}

// Run flushes snapshots until ctx is done, then flushes once more.
func (p *PresenceRecorder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), presenceFlushTimeout)
			p.Flush(flushCtx)
			cancel()
			return nil
		case <-p.signal:
			p.Flush(ctx)
		}
	}
}

// Flush writes all pending snapshots now.
func (p *PresenceRecorder) Flush(ctx context.Context) {
	p.mu.Lock()
	batch := p.pending
	p.pending = make(map[int64]int, len(batch))
	p.mu.Unlock()

	for roomID, count := range batch {
		for _, sink := range p.sinks {
			if err := sink.SetStreamViewers(ctx, roomID, count); err != nil {
				p.logger.Warn().Err(err).Int64("stream_id", roomID).Int("viewers", count).Msg("presence snapshot failed")
			}
		}
	}
}
