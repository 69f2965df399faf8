package session

import (
	"testing"
	"time"

	"tradesession/internal/domain"
	"tradesession/internal/provider"

	"github.com/shopspring/decimal"
)

func dec(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// testLogger is a no-op domain.Logger: session code calls its logger
// unconditionally (unlike the broker's nil-checked logger), so tests need
// a real implementation rather than nil.
type testLogger struct{}

func (testLogger) Debug(string, ...interface{})            {}
func (testLogger) Info(string, ...interface{})             {}
func (testLogger) Warn(string, ...interface{})             {}
func (testLogger) Error(string, ...interface{})            {}
func (testLogger) Fatal(string, ...interface{})            {}
func (l testLogger) WithField(string, interface{}) domain.Logger { return l }
func (l testLogger) WithFields(map[string]interface{}) domain.Logger { return l }

var _ domain.Logger = testLogger{}

func testConfig(t *testing.T, symbol string) Config {
	t.Helper()
	cfg := DefaultConfig(symbol)
	cfg.StateDir = t.TempDir()
	cfg.LogDir = cfg.StateDir
	cfg.DryRun = true
	cfg.HistoryRetries = 0
	cfg.MinHistoryBars = 0
	return cfg
}

func newTestSession(t *testing.T, cfg Config, prov domain.Provider) *Session {
	t.Helper()
	if prov == nil {
		prov = provider.NewReplayProvider(nil, nil)
	}
	s := New(cfg, prov, NullStrategy{}, testLogger{})
	s.startedAt = time.Now().UTC()
	return s
}

func baseCandle(close float64) domain.Candle {
	return domain.Candle{
		Ts:     time.Now().UTC(),
		Open:   dec(close),
		High:   dec(close),
		Low:    dec(close),
		Close:  dec(close),
		Volume: dec(1000),
	}
}
