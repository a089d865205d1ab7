package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
)

// TickEstimate is the output of ComputeNextTick. A parse failure is
// reported via CronParseError rather than a returned
// error; the computation feeds a best-effort scheduling estimate, not a
// write path, and must never fail the caller.
type TickEstimate struct {
	ScheduledAt    time.Time
	IntervalSec    int64
	EstimatedAt    *time.Time
	At             time.Time
	CronParseError string
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ComputeNextTick estimates the next platform-trigger invocation:
// scheduledAt is the next cron fire after now; intervalSec is the gap
// between the next two
// consecutive fires; estimatedAt (when lastTickMs is known) projects
// forward from the last real trigger; at prefers estimatedAt over
// scheduledAt.
func ComputeNextTick(activeCron string, now time.Time, lastTickMs *int64) TickEstimate {
	schedule, err := cronParser.Parse(activeCron)
	if err != nil {
		return TickEstimate{CronParseError: err.Error()}
	}

	scheduledAt := schedule.Next(now)
	afterThat := schedule.Next(scheduledAt)
	intervalSec := int64(afterThat.Sub(scheduledAt) / time.Second)

	estimate := TickEstimate{
		ScheduledAt: scheduledAt,
		IntervalSec: intervalSec,
		At:          scheduledAt,
	}
	if lastTickMs != nil {
		estimatedAt := time.UnixMilli(*lastTickMs).In(now.Location()).Add(time.Duration(intervalSec) * time.Second)
		estimate.EstimatedAt = &estimatedAt
		estimate.At = estimatedAt
	}
	return estimate
}
