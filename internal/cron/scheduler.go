package cron

import (
	"fmt"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/kayz/xenobot/internal/logger"
)

// Scheduler runs named housekeeping tasks on cron schedules.
type Scheduler struct {
	cron    *cron.Cron
	entries map[string]cron.EntryID
	mu      sync.Mutex
	started bool
}

// NewScheduler creates a new scheduler
func NewScheduler() *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		entries: make(map[string]cron.EntryID),
	}
}

// normalizeCron prepends "0 " to standard 5-field cron expressions
// so they work with the 6-field (with seconds) parser.
func normalizeCron(schedule string) string {
	if len(strings.Fields(schedule)) == 5 {
		return "0 " + schedule
	}
	return schedule
}

// AddFunc registers fn under name. Registering the same name again replaces
// the previous entry.
func (s *Scheduler) AddFunc(name, schedule string, fn func()) error {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		return fmt.Errorf("schedule for %s is empty", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(normalizeCron(schedule), func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("[Cron] Task %s panicked: %v", name, r)
			}
		}()
		logger.Debug("[Cron] Running %s", name)
		fn()
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", schedule, name, err)
	}

	if prev, ok := s.entries[name]; ok {
		s.cron.Remove(prev)
	}
	s.entries[name] = id
	return nil
}

// Remove unregisters the named task. Unknown names are ignored.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
		delete(s.entries, name)
	}
}

// Tasks returns the registered task names.
func (s *Scheduler) Tasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	return names
}

// Start begins running scheduled tasks in the background
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
	logger.Info("[Cron] Scheduler started with %d tasks", len(s.entries))
}

// Stop stops the scheduler and waits for running tasks to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("[Cron] Scheduler stopped")
}
