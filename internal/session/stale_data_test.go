package session

import (
	"testing"
	"time"
)

func TestIsStale_NoDataYetUsesSessionStart(t *testing.T) {
	cfg := testConfig(t, "BTCUSDT")
	cfg.StaleTimeout = 20 * time.Millisecond
	s := newTestSession(t, cfg, nil)
	s.startedAt = time.Now().Add(-time.Hour)

	if !s.isStale() {
		t.Fatal("expected stale when no data has arrived long after session start")
	}
}

func TestIsStale_RecentDataIsNotStale(t *testing.T) {
	cfg := testConfig(t, "BTCUSDT")
	cfg.StaleTimeout = time.Minute
	s := newTestSession(t, cfg, nil)
	s.lastDataTs.Store(time.Now().UnixNano())

	if s.isStale() {
		t.Fatal("freshly arrived data must not be reported stale")
	}
}

func TestIsStale_OldDataIsStale(t *testing.T) {
	cfg := testConfig(t, "BTCUSDT")
	cfg.StaleTimeout = 10 * time.Millisecond
	s := newTestSession(t, cfg, nil)
	s.lastDataTs.Store(time.Now().Add(-time.Hour).UnixNano())

	if !s.isStale() {
		t.Fatal("data older than StaleTimeout must be reported stale")
	}
}
