package cron

import (
	"testing"
	"time"
)

func TestNewScheduleRejectsEmptyExpression(t *testing.T) {
	if _, err := NewSchedule("  "); err == nil {
		t.Fatal("expected an error for an empty schedule_cron")
	}
}

func TestNewScheduleRejectsInvalidExpression(t *testing.T) {
	if _, err := NewSchedule("not a cron expression"); err == nil {
		t.Fatal("expected an error for a malformed schedule_cron")
	}
}

func TestScheduleNextAdvancesToNextMinute(t *testing.T) {
	sched, err := NewSchedule("* * * * *")
	if err != nil {
		t.Fatalf("NewSchedule() error = %v", err)
	}
	now := time.Date(2026, 8, 1, 10, 30, 15, 0, time.UTC)
	next := sched.Next(now)
	want := time.Date(2026, 8, 1, 10, 31, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("Next() = %v, want %v", next, want)
	}
}

func TestScheduleStringReturnsOriginalExpression(t *testing.T) {
	sched, err := NewSchedule("0 9 * * 1-5")
	if err != nil {
		t.Fatalf("NewSchedule() error = %v", err)
	}
	if got := sched.String(); got != "0 9 * * 1-5" {
		t.Errorf("String() = %q, want %q", got, "0 9 * * 1-5")
	}
}
