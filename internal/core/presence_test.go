package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	applog "github.com/astrotv/astrotv-server/internal/log"
)

type memorySink struct {
	mu     sync.Mutex
	counts map[int64]int
	writes int
	err    error
}

func newMemorySink() *memorySink {
	return &memorySink{counts: make(map[int64]int)}
}

func (m *memorySink) SetStreamViewers(_ context.Context, streamID int64, viewers int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if m.err != nil {
		return m.err
	}
	m.counts[streamID] = viewers
	return nil
}

func (m *memorySink) get(streamID int64) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.counts[streamID]
	return v, ok
}

func TestPresenceFlushKeepsLatestCount(t *testing.T) {
	logger := applog.Nop()
	sink := newMemorySink()
	p := NewPresenceRecorder(logger, sink)

	p.Record(1, 1)
	p.Record(1, 2)
	p.Record(1, 3)
	p.Record(2, 7)
	p.Flush(context.Background())

	if v, _ := sink.get(1); v != 3 {
		t.Fatalf("expected latest count 3, got %d", v)
	}
	if v, _ := sink.get(2); v != 7 {
		t.Fatalf("expected 7, got %d", v)
	}
	if sink.writes != 2 {
		t.Fatalf("expected coalesced writes, got %d", sink.writes)
	}

	p.Flush(context.Background())
	if sink.writes != 2 {
		t.Fatalf("empty flush wrote %d times", sink.writes)
	}
}

func TestPresenceRunFlushesOnShutdown(t *testing.T) {
	logger := applog.Nop()
	failing := newMemorySink()
	failing.err = errors.New("down")
	sink := newMemorySink()
	p := NewPresenceRecorder(logger, failing)
	p.AddSink(sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = p.Run(ctx)
		close(done)
	}()

	p.Record(5, 4)
	deadline := time.Now().Add(time.Second)
	for {
		if v, ok := sink.get(5); ok && v == 4 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("snapshot not flushed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	<-done
	p.Record(5, 0)
	p.Flush(context.Background())
	if v, _ := sink.get(5); v != 0 {
		t.Fatalf("expected 0 after final flush, got %d", v)
	}
}
