package session

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
)

// fundingHours are the UTC hour boundaries perpetual funding settles at
// (spec.md §4.6).
var fundingHours = map[int]bool{0: true, 8: true, 16: true}

// fundingSchedule fires at minute zero of each funding hour, UTC.
const fundingSchedule = "0 0,8,16 * * *"

// runFunding is funding_task (spec.md §4.6): a cron schedule fires exactly
// at the UTC 00:00/08:00/16:00 settlement boundaries. maybeApplyFunding
// re-checks the boundary and dedups on an in-memory hour-key, so one
// Session applies the charge at most once per settlement hour; the key is
// not persisted and starts empty in a new process.
func (s *Session) runFunding(ctx context.Context) error {
	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(fundingSchedule, func() {
		s.maybeApplyFunding(ctx, time.Now().UTC())
	}); err != nil {
		return fmt.Errorf("schedule funding settlement: %w", err)
	}
	c.Start()
	defer c.Stop()

	<-ctx.Done()
	return nil
}

func (s *Session) maybeApplyFunding(ctx context.Context, now time.Time) {
	if now.Minute() != 0 || !fundingHours[now.Hour()] {
		return
	}

	key := fmt.Sprintf("%s-%02d", now.Format("2006-01-02"), now.Hour())
	if prev, _ := s.lastFundingHourKey.Load().(string); prev == key {
		return
	}

	rate, err := s.provider.FundingRate(ctx)
	if err != nil {
		s.logger.Warn("failed to fetch funding rate", "error", err.Error())
		return
	}

	s.lastFundingHourKey.Store(key)
	if rate == 0 {
		return
	}
	// ApplyFunding appends its own Funding event once the charge is
	// computed; the task only decides when settlement is due.
	s.broker.ApplyFunding(decimal.NewFromFloat(rate))
}
