package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/semmidev/warden/internal/domain"
)

// Five fields only. Descriptors like "@every 1h" are rejected: their next
// occurrence is always relative to now, so IsDue would fire on every check.
var ruleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Clock returns the current time. Tests replace it to simulate time passing.
type Clock func() time.Time

// Schedule tracks the last and next backup time of a single target.
type Schedule struct {
	rule  string
	expr  cron.Schedule
	clock Clock

	mu   sync.Mutex
	last time.Time
	next time.Time
}

// NewSchedule parses a 5-field cron rule and initialises the state to
// (now, first occurrence after now).
func NewSchedule(rule string, clock Clock) (*Schedule, error) {
	if clock == nil {
		clock = time.Now
	}

	parsed, err := ruleParser.Parse(rule)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", domain.ErrInvalidCronExpression, rule, err)
	}

	s := &Schedule{rule: rule, expr: parsed, clock: clock}

	now := clock().UTC()
	next := s.NextOccurrence(now)
	if next.IsZero() {
		return nil, fmt.Errorf("%w %q: rule never fires", domain.ErrInvalidCronExpression, rule)
	}
	s.last, s.next = now, next
	return s, nil
}

// ValidateRule reports whether rule is a usable 5-field cron expression.
func ValidateRule(rule string) error {
	_, err := NewSchedule(rule, nil)
	return err
}

func (s *Schedule) Rule() string { return s.rule }

// NextOccurrence returns the first occurrence strictly after t, in UTC.
func (s *Schedule) NextOccurrence(t time.Time) time.Time {
	return s.expr.Next(t.UTC())
}

func (s *Schedule) LastBackupTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Schedule) NextBackupTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// IsDue advances the schedule and returns true once the stored next backup
// time has passed. The pair (last, next) moves as one unit.
func (s *Schedule) IsDue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	occurrence := s.NextOccurrence(s.clock())
	if !occurrence.After(s.next) {
		return false
	}

	s.last, s.next = s.next, occurrence
	return true
}
