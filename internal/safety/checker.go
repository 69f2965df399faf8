// Package safety implements the broker's order-admission gates: kill-switch,
// sliding-window rate limit, notional cap, and per-symbol position cap.
package safety

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"tradesession/internal/domain"
	apperrors "tradesession/pkg/errors"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// Distinguished gate-rejection errors, returned (never retried) in a
// broker call's errors[] slice. Aliased from pkg/errors so callers across
// the broker and the gates compare against the same sentinel values.
var (
	ErrKillSwitchActive    = apperrors.ErrKillSwitchActive
	ErrRateLimitExceeded   = apperrors.ErrRateLimitExceeded
	ErrNotionalCapExceeded = apperrors.ErrNotionalCapExceeded
	ErrPositionCapExceeded = apperrors.ErrPositionCapExceeded
)

const killSwitchFileName = "kill.txt"

// GateConfig parameterizes the safety gates.
type GateConfig struct {
	MaxOrdersPerMinute   int
	MaxPositionSizeUSD   decimal.Decimal
	MaxPositionPerSymbol map[string]decimal.Decimal
	KillSwitchDir        string
}

// Gates implements the admission checks the paper broker runs before
// accepting a fill. It holds the sliding window of accepted order
// timestamps; all other checks are stateless.
type Gates struct {
	mu     sync.Mutex
	config GateConfig
	logger domain.Logger

	orderTimestamps []time.Time

	// burstLimiter is a second, independent defense-in-depth check on top
	// of the spec's literal sliding-window algorithm: a token bucket sized
	// to the same per-minute rate that also rejects sub-second bursts the
	// 60s window wouldn't catch until the window filled up.
	burstLimiter *rate.Limiter
}

// NewGates constructs a Gates instance.
func NewGates(config GateConfig, logger domain.Logger) *Gates {
	g := &Gates{config: config, logger: logger}
	if config.MaxOrdersPerMinute > 0 {
		perSecond := rate.Limit(float64(config.MaxOrdersPerMinute) / 60.0)
		g.burstLimiter = rate.NewLimiter(perSecond, config.MaxOrdersPerMinute)
	}
	return g
}

// CheckKillSwitch reports whether the kill switch is currently engaged,
// either via LA_KILL_SWITCH=TRUE or a kill.txt file in the configured
// directory. It does not remove the file; that is kill_switch_task's job.
func (g *Gates) CheckKillSwitch() bool {
	if strings.EqualFold(os.Getenv("LA_KILL_SWITCH"), "TRUE") {
		return true
	}
	if g.config.KillSwitchDir == "" {
		return false
	}
	_, err := os.Stat(filepath.Join(g.config.KillSwitchDir, killSwitchFileName))
	return err == nil
}

// RemoveKillSwitchFile deletes kill.txt from the configured directory.
// Missing-file is not an error: removal is idempotent against a monitor
// task that may have already cleared it.
func RemoveKillSwitchFile(dir string) error {
	if dir == "" {
		return nil
	}
	err := os.Remove(filepath.Join(dir, killSwitchFileName))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// CheckRateLimit evaluates the sliding 60-second order window. An order is
// admitted only when the window (after pruning entries older than 60s) has
// fewer than MaxOrdersPerMinute entries; on admission the timestamp is
// recorded so it counts against subsequent checks. Rejected attempts are not
// recorded, so they don't consume window capacity.
func (g *Gates) CheckRateLimit(now time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	cutoff := now.Add(-60 * time.Second)
	kept := g.orderTimestamps[:0]
	for _, ts := range g.orderTimestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	g.orderTimestamps = kept

	if g.config.MaxOrdersPerMinute > 0 && len(g.orderTimestamps) >= g.config.MaxOrdersPerMinute {
		return ErrRateLimitExceeded
	}
	if g.burstLimiter != nil && !g.burstLimiter.AllowN(now, 1) {
		return ErrRateLimitExceeded
	}
	g.orderTimestamps = append(g.orderTimestamps, now)
	return nil
}

// CheckNotionalCap rejects orders whose notional (qty * price) exceeds
// MaxPositionSizeUSD. A zero-value cap means uncapped.
func (g *Gates) CheckNotionalCap(qty, price decimal.Decimal) error {
	if g.config.MaxPositionSizeUSD.IsZero() {
		return nil
	}
	notional := qty.Mul(price)
	if notional.GreaterThan(g.config.MaxPositionSizeUSD) {
		return ErrNotionalCapExceeded
	}
	return nil
}

// CheckPositionCap rejects an order that would push the combined position
// quantity for symbol above the configured per-symbol cap. An absent or
// zero-value cap for the symbol means uncapped.
func (g *Gates) CheckPositionCap(symbol string, combinedQty decimal.Decimal) error {
	cap, ok := g.config.MaxPositionPerSymbol[symbol]
	if !ok || cap.IsZero() {
		return nil
	}
	if combinedQty.GreaterThan(cap) {
		return ErrPositionCapExceeded
	}
	return nil
}
