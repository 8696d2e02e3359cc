package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	return rec.Body.String()
}

func TestCountersRecord(t *testing.T) {
	m := New()
	m.RoomJoined()
	m.RoomJoined()
	m.PointsAwarded(5)
	m.PointsAwarded(-1)
	m.AwardFailed(FailureTier)

	out := scrape(t, m)
	for _, want := range []string{
		"astrotv_room_joins_total 2",
		"astrotv_points_awarded_total 5",
		`astrotv_award_failures_total{kind="tier"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in scrape output", want)
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ConnectionOpened()
	m.FrameDropped()
	m.AwardFailed(FailurePersist)
	if m.Registry() != nil {
		t.Fatalf("expected nil registry")
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.GiftSent()

	if !strings.Contains(scrape(t, m), "astrotv_gifts_sent_total 1") {
		t.Fatalf("gift counter missing from output")
	}
}
