package cron

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// Schedule wraps a single parsed cron expression. Unlike the teacher's
// Schedule, which unions three schedule kinds (at/every/cron),
// agentkit's Task has exactly one schedule field (schedule_cron), so
// there is only one kind here.
type Schedule struct {
	expr     string
	schedule cron.Schedule
}

// NewSchedule parses expr, the task's schedule_cron field.
func NewSchedule(expr string) (Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Schedule{}, fmt.Errorf("cron: schedule_cron is required")
	}
	parsed, err := cronParser.Parse(expr)
	if err != nil {
		return Schedule{}, fmt.Errorf("cron: invalid schedule_cron %q: %w", expr, err)
	}
	return Schedule{expr: expr, schedule: parsed}, nil
}

// Next returns the next fire time strictly after now.
func (s Schedule) Next(now time.Time) time.Time {
	return s.schedule.Next(now)
}

// String returns the original cron expression.
func (s Schedule) String() string {
	return s.expr
}
