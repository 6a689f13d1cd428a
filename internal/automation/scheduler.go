// Package automation enqueues runs on cron schedules, the successor
// of manually re-creating the same pipeline run every night.
package automation

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler fires automations when their cron schedule comes due
type Scheduler struct {
	automations map[string]Automation
	parser      cron.Parser
	lastRun     map[string]time.Time
	running     map[string]bool
	mu          sync.RWMutex

	// checkInterval is how often due schedules are evaluated;
	// overridable in tests.
	checkInterval time.Duration
}

// NewScheduler creates a new automation scheduler
func NewScheduler(automations []Automation) (*Scheduler, error) {
	s := &Scheduler{
		automations:   make(map[string]Automation),
		parser:        cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		lastRun:       make(map[string]time.Time),
		running:       make(map[string]bool),
		checkInterval: time.Minute,
	}

	for _, a := range automations {
		if err := a.Validate(); err != nil {
			return nil, err
		}
		s.automations[a.Name] = a
	}

	return s, nil
}

// ParseCron parses a cron expression
func ParseCron(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return parser.Parse(expr)
}

// NextRun returns the next scheduled time for an automation
func (s *Scheduler) NextRun(name string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.automations[name]
	if !ok {
		return time.Time{}
	}
	sched, err := s.parser.Parse(a.Cron)
	if err != nil {
		return time.Time{}
	}
	return sched.Next(time.Now())
}

// ShouldRun returns true if an automation is due now
func (s *Scheduler) ShouldRun(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.automations[name]
	if !ok || s.running[name] {
		return false
	}

	sched, err := s.parser.Parse(a.Cron)
	if err != nil {
		return false
	}

	lastRun := s.lastRun[name]
	if lastRun.IsZero() {
		lastRun = time.Now().Add(-24 * time.Hour)
	}
	return time.Now().After(sched.Next(lastRun))
}

// MarkRunning marks an automation as currently firing
func (s *Scheduler) MarkRunning(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[name] = true
}

// MarkComplete marks an automation as fired
func (s *Scheduler) MarkComplete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[name] = false
	s.lastRun[name] = time.Now()
}

// List returns all automation names
func (s *Scheduler) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.automations))
	for name := range s.automations {
		names = append(names, name)
	}
	return names
}

// Start runs the scheduler loop until ctx is cancelled, calling
// fire for each automation whose schedule comes due.
func (s *Scheduler) Start(ctx context.Context, fire func(context.Context, Automation) error) {
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.RLock()
			names := make([]string, 0, len(s.automations))
			for name := range s.automations {
				names = append(names, name)
			}
			s.mu.RUnlock()

			for _, name := range names {
				if !s.ShouldRun(name) {
					continue
				}
				a := s.automations[name]
				s.MarkRunning(name)
				go func(a Automation) {
					defer s.MarkComplete(a.Name)
					if err := fire(ctx, a); err != nil {
						log.Printf("automation %s failed: %v", a.Name, err)
					}
				}(a)
			}
		}
	}
}
