package scheduler

import (
	"log"
	"sync"

	"companion-bridge/internal/config"
	"companion-bridge/internal/core"

	"github.com/robfig/cron/v3"
)

// Scheduler manages cron-triggered refreshes.
type Scheduler struct {
	cron           *cron.Cron
	store          map[cron.EntryID]config.ScheduleEntry
	commandChannel core.CommandChannel
	mu             sync.RWMutex
}

// NewScheduler creates a scheduler and registers the given entries.
// Entries with an invalid spec are logged and skipped.
func NewScheduler(cmdChan core.CommandChannel, entries []config.ScheduleEntry) *Scheduler {
	s := &Scheduler{
		cron:           cron.New(),
		store:          make(map[cron.EntryID]config.ScheduleEntry),
		commandChannel: cmdChan,
	}
	for _, e := range entries {
		if _, err := s.Add(e.Spec, e.Command); err != nil {
			log.Printf("[Scheduler] Error adding schedule '%s' '%s': %v", e.Spec, e.Command, err)
		}
	}
	return s
}

// Start begins the cron job ticker.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Println("[Scheduler] Cron scheduler started.")
}

// Stop halts the cron job ticker.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("[Scheduler] Cron scheduler stopped.")
}

// Add creates a new cron job.
func (s *Scheduler) Add(spec, command string) (cron.EntryID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(spec, func() { s.execute(command) })
	if err != nil {
		return 0, err
	}
	s.store[id] = config.ScheduleEntry{Spec: spec, Command: command}
	log.Printf("[Scheduler] Added schedule (ID %d): %s -> %s", id, spec, command)
	return id, nil
}

// Remove deletes a cron job.
func (s *Scheduler) Remove(id cron.EntryID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cron.Remove(id)
	delete(s.store, id)
	log.Printf("[Scheduler] Removed schedule (ID %d)", id)
}

// GetAll returns a copy of the current schedules.
func (s *Scheduler) GetAll() map[cron.EntryID]config.ScheduleEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	newMap := make(map[cron.EntryID]config.ScheduleEntry, len(s.store))
	for k, v := range s.store {
		newMap[k] = v
	}
	return newMap
}

func (s *Scheduler) execute(command string) {
	var cmd core.Command
	switch command {
	case string(core.CmdRequestWeather):
		cmd = core.Command{Type: core.CmdRequestWeather}
	case string(core.CmdRequestBattery):
		cmd = core.Command{Type: core.CmdRequestBattery}
	default:
		log.Printf("[Scheduler] Unknown scheduled command: %s", command)
		return
	}

	log.Printf("[Scheduler] Executing scheduled command: %s", command)
	select {
	case s.commandChannel <- cmd:
	default:
		log.Printf("[Scheduler] Command queue full, dropping scheduled %s", command)
	}
}
