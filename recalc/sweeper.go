/*
sweeper.go - Periodic recalculation sweep

PURPOSE:
  Catches keys whose sheet fell behind its records: edits whose trigger was
  lost (process restart, failed run, timeout) and months that never had a
  sheet. Each tick re-triggers them through the coordinator, so the per-key
  state machine still applies.

SOURCES:
  - attendance.StaleScanner on the record store (optional)
  - Coordinator.FailedKeys: idle keys whose last run failed

USAGE:
  sweeper := NewSweeper(coordinator, store)
  sweeper.Start()
  // ... later
  sweeper.Stop()

SEE ALSO:
  - coordinator.go: Trigger
*/
package recalc

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/attendance-engine/attendance"
)

// Sweeper re-triggers stale and failed keys on a fixed interval.
type Sweeper struct {
	Coordinator *Coordinator
	Scanner     attendance.StaleScanner
	Interval    time.Duration
	Enabled     bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewSweeper creates a sweeper. scanner may be nil, in which case only
// failed keys are swept.
func NewSweeper(c *Coordinator, scanner attendance.StaleScanner) *Sweeper {
	return &Sweeper{
		Coordinator: c,
		Scanner:     scanner,
		Interval:    5 * time.Minute,
		Enabled:     true,
		stop:        make(chan struct{}),
	}
}

func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled || s.Interval <= 0 {
		log.Println("[Sweeper] Disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.Interval)
	s.wg.Add(1)
	go s.run()

	log.Printf("[Sweeper] Started with interval: %v", s.Interval)
}

func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		log.Println("[Sweeper] Stopped")
	}
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	s.RunNow(context.Background())
	for {
		select {
		case <-s.ticker.C:
			s.RunNow(context.Background())
		case <-s.stop:
			return
		}
	}
}

// RunNow performs one sweep and returns how many keys were triggered.
func (s *Sweeper) RunNow(ctx context.Context) int {
	seen := make(map[attendance.SheetKey]bool)
	var keys []attendance.SheetKey

	if s.Scanner != nil {
		stale, err := s.Scanner.StaleKeys(ctx)
		if err != nil {
			log.Printf("[Sweeper] Error scanning stale sheets: %v", err)
		}
		for _, k := range stale {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	for _, k := range s.Coordinator.FailedKeys() {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}

	triggered := 0
	for _, k := range keys {
		if !s.Coordinator.Owns(k) {
			continue
		}
		if err := s.Coordinator.TriggerKey(k); err != nil {
			log.Printf("[Sweeper] Error triggering %s: %v", k, err)
			continue
		}
		triggered++
	}

	if triggered > 0 {
		log.Printf("[Sweeper] Triggered %d stale or failed sheet(s)", triggered)
	}
	return triggered
}
