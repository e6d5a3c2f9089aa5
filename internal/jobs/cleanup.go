package jobs

import (
	"errors"
	"strings"
	"time"

	robcron "github.com/robfig/cron/v3"
)

// CleanupPolicy prunes terminal jobs on a cron schedule so the panel does
// not accumulate finished work forever.
type CleanupPolicy struct {
	Schedule  string        // standard 5-field cron expression or @descriptor
	Retention time.Duration // terminal jobs older than this are dropped
}

var cronParser = robcron.NewParser(
	robcron.Minute | robcron.Hour | robcron.Dom | robcron.Month | robcron.Dow | robcron.Descriptor,
)

func (p CleanupPolicy) Validate() error {
	if strings.TrimSpace(p.Schedule) == "" {
		return errors.New("cleanup schedule is required")
	}
	if _, err := cronParser.Parse(strings.TrimSpace(p.Schedule)); err != nil {
		return err
	}
	if p.Retention <= 0 {
		return errors.New("cleanup retention must be positive")
	}
	return nil
}

// NextRun computes the first fire time strictly after the given instant.
func (p CleanupPolicy) NextRun(after time.Time) (time.Time, error) {
	schedule, err := cronParser.Parse(strings.TrimSpace(p.Schedule))
	if err != nil {
		return time.Time{}, err
	}
	if after.IsZero() {
		after = time.Now().UTC()
	}
	return schedule.Next(after), nil
}

// RunCleanup applies the retention policy once.
func RunCleanup(t *Tracker, p CleanupPolicy, now time.Time) int {
	if t == nil {
		return 0
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	if p.Retention <= 0 {
		return 0
	}
	return t.Prune(now.Add(-p.Retention))
}
