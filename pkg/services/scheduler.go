package services

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/vpnda/bankpoll/pkg/config"
)

// DailyWindow is a cron.Schedule firing once on the following day at a
// random minute within [LowHour, HighHour) UTC.
type DailyWindow struct {
	LowHour  int
	HighHour int
	intN     func(n int) int
}

func NewDailyWindow(lowHour, highHour int) DailyWindow {
	return DailyWindow{LowHour: lowHour, HighHour: highHour, intN: rand.IntN}
}

func (w DailyWindow) Next(t time.Time) time.Time {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), t.Day()+1, w.LowHour, 0, 0, 0, time.UTC)
	span := (w.HighHour - w.LowHour) * 60
	if span <= 0 {
		return start
	}
	intN := w.intN
	if intN == nil {
		intN = rand.IntN
	}
	return start.Add(time.Duration(intN(span)) * time.Minute)
}

// NewSchedule returns the cron expression from the configuration when one is
// set, the random daily window otherwise.
func NewSchedule(cfg config.PollConfig) (cron.Schedule, error) {
	if cfg.Schedule != "" {
		schedule, err := cron.ParseStandard(cfg.Schedule)
		if err != nil {
			return nil, fmt.Errorf("invalid poll schedule %q: %w", cfg.Schedule, err)
		}
		return schedule, nil
	}
	return NewDailyWindow(cfg.LowHour, cfg.HighHour), nil
}

// ErrSchedulerStopped is returned by ArmNext once Stop has been called.
var ErrSchedulerStopped = errors.New("scheduler stopped")

// Scheduler owns the single pending poll timer. Once stopped it never arms
// again.
type Scheduler struct {
	mu       sync.Mutex
	schedule cron.Schedule
	timer    *time.Timer
	next     time.Time
	stopped  bool
	// bumped on every Arm/Stop so a superseded timer that already fired
	// does nothing
	generation uint64
	now        func() time.Time
}

func NewScheduler(schedule cron.Schedule) *Scheduler {
	return &Scheduler{schedule: schedule, now: time.Now}
}

// Arm cancels any pending timer and arms a new one for at. It reports false
// when the scheduler is stopped.
func (s *Scheduler) Arm(at time.Time, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.generation++
	gen := s.generation
	s.next = at

	s.timer = time.AfterFunc(time.Until(at), func() {
		s.mu.Lock()
		current := gen == s.generation
		if current {
			s.timer = nil
			s.next = time.Time{}
		}
		s.mu.Unlock()
		if current {
			fn()
		}
	})
	return true
}

// ArmNext arms fn for the next instant given by the schedule.
func (s *Scheduler) ArmNext(fn func()) (time.Time, error) {
	next := s.schedule.Next(s.now())
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("schedule yields no next run")
	}
	if !s.Arm(next, fn) {
		return time.Time{}, ErrSchedulerStopped
	}
	return next, nil
}

// Stop cancels the pending timer, if any, and refuses any later Arm.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.generation++
	s.next = time.Time{}
}

// Next returns when the pending timer fires, or the zero time.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}
