/*
coordinator.go - Recalculation Coordinator

PURPOSE:
  Decides when the monthly aggregator runs and keeps sheets correct under
  concurrent record edits. Every edit maps to one (employee, year, month)
  key; the coordinator serializes work per key and runs keys in parallel.

STATE MACHINE (per key):

    Idle --trigger--> Queued --worker--> Running --done--> Idle
                        ^                   |
                        |    trigger sets   |
                        +---- Stale flag ---+  (re-queued after commit)

  - A trigger on a Queued key is coalesced (no-op)
  - A trigger on a Running key sets Stale; the run still commits, then the
    key is queued again so the last committed sheet reflects the last edit
  - A failed run (store error, timeout) returns the key to Idle and leaves
    the previous sheet untouched

GUARANTEES:
  - At most one Running computation per key
  - The snapshot is read after the key enters Running, so a trigger that
    arrives before the read is already reflected, and one that arrives after
    marks the key Stale
  - Sheets are written with a single upsert, never field by field

RETRIES & TIMEOUTS:
  Store reads and the upsert are retried with exponential backoff
  (RetryPolicy, default 3 attempts). A run is bounded by Options.Timeout
  (default 30s) and aborted when it expires.

USAGE:
  c := recalc.New(recalc.Deps{Records: st, Sheets: st, Calendar: cal}, recalc.DefaultOptions())
  c.Start(ctx)
  defer c.Stop()
  c.TriggerDate("emp-1", date)

SEE ALSO:
  - sweeper.go: periodic re-trigger of stale and failed keys
  - attendance/aggregate.go: the pure computation being scheduled
*/
package recalc

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/attendance-engine/attendance"
)

var (
	// ErrNotOwner is returned when a key belongs to another shard.
	ErrNotOwner = errors.New("sheet key owned by another shard")

	// ErrStopped is returned for triggers after Stop.
	ErrStopped = errors.New("recalculation coordinator stopped")
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// Deps are the collaborators the coordinator reads from and writes to.
type Deps struct {
	Records  attendance.RecordStore
	Sheets   attendance.SheetStore
	Calendar attendance.Calendar

	// Leave is optional. Reports are sent after a sheet is committed.
	Leave attendance.LeaveReporter

	// Runs is optional. When nil, Sheets is checked for the capability.
	Runs attendance.RunRecorder
}

type Options struct {
	Workers  int
	Timeout  time.Duration
	Retry    RetryPolicy
	Rounding attendance.Rounding

	// PublishPartial commits sheets built from a subset of records.
	// When false such sheets are withheld and the run counts as failed.
	PublishPartial bool

	Shard Shard

	Now func() time.Time
}

func DefaultOptions() Options {
	return Options{
		Workers:        4,
		Timeout:        30 * time.Second,
		Retry:          DefaultRetryPolicy(),
		Rounding:       attendance.NoRounding,
		PublishPartial: true,
		Now:            time.Now,
	}
}

// =============================================================================
// KEY STATE
// =============================================================================

type State string

const (
	StateIdle    State = "idle"
	StateQueued  State = "queued"
	StateRunning State = "running"
)

// KeyStatus is a point-in-time view of one key.
type KeyStatus struct {
	Key       attendance.SheetKey `json:"-"`
	State     State               `json:"state"`
	Stale     bool                `json:"stale"`
	Runs      int                 `json:"runs"`
	LastRunAt time.Time           `json:"last_run_at,omitempty"`
	LastError string              `json:"last_error,omitempty"`
}

type keyState struct {
	state     State
	stale     bool
	runs      int
	lastRunAt time.Time
	lastErr   error
	done      chan struct{} // closed when the key returns to idle
}

// =============================================================================
// COORDINATOR
// =============================================================================

type Coordinator struct {
	deps Deps
	opts Options

	mu      sync.Mutex
	keys    map[attendance.SheetKey]*keyState
	pending []attendance.SheetKey
	busy    int           // keys not idle plus in-flight leave reports
	idle    chan struct{} // closed while busy == 0
	started bool
	stopped bool

	notify chan struct{}
	jobs   chan attendance.SheetKey
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a coordinator. Zero numeric options fall back to DefaultOptions.
func New(deps Deps, opts Options) *Coordinator {
	d := DefaultOptions()
	if opts.Workers <= 0 {
		opts.Workers = d.Workers
	}
	if opts.Timeout <= 0 {
		opts.Timeout = d.Timeout
	}
	if opts.Now == nil {
		opts.Now = d.Now
	}
	opts.Retry = opts.Retry.withDefaults()

	if deps.Runs == nil {
		if rr, ok := deps.Sheets.(attendance.RunRecorder); ok {
			deps.Runs = rr
		}
	}

	idle := make(chan struct{})
	close(idle)
	return &Coordinator{
		deps:   deps,
		opts:   opts,
		keys:   make(map[attendance.SheetKey]*keyState),
		idle:   idle,
		notify: make(chan struct{}, 1),
		jobs:   make(chan attendance.SheetKey),
	}
}

// Start launches the dispatcher and the worker pool. Keys triggered before
// Start are picked up immediately.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.stopped {
		return
	}
	c.started = true
	c.ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1 + c.opts.Workers)
	go c.dispatch()
	for i := 0; i < c.opts.Workers; i++ {
		go c.work()
	}
	c.signal()

	log.Printf("[Recalc] Started with %d workers, timeout %v", c.opts.Workers, c.opts.Timeout)
}

// Stop cancels in-flight runs and waits for the workers to exit.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		c.wg.Wait()
	}
	log.Println("[Recalc] Stopped")
}

// Trigger requests a recalculation of one employee's month.
func (c *Coordinator) Trigger(employeeID string, year int, month time.Month) error {
	return c.TriggerKey(attendance.NewSheetKey(employeeID, year, month))
}

// TriggerDate maps a record edit on date to its sheet key.
func (c *Coordinator) TriggerDate(employeeID string, date attendance.Date) error {
	return c.TriggerKey(attendance.KeyFor(employeeID, date))
}

func (c *Coordinator) TriggerKey(key attendance.SheetKey) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if !c.opts.Shard.Owns(key) {
		return fmt.Errorf("%w: %s", ErrNotOwner, key)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return ErrStopped
	}

	st := c.stateLocked(key)
	switch st.state {
	case StateQueued:
		// coalesced
	case StateRunning:
		st.stale = true
	default:
		st.state = StateQueued
		st.done = make(chan struct{})
		c.acquireLocked()
		c.enqueueLocked(key)
	}
	return nil
}

// Drain blocks until no key is queued or running and every leave report
// has been sent.
func (c *Coordinator) Drain(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.busy == 0 {
			c.mu.Unlock()
			return nil
		}
		idle := c.idle
		c.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Wait blocks until key is idle. A key that is re-queued by a newer edit
// while running is waited for until that run finishes too. Other keys are
// not waited for.
func (c *Coordinator) Wait(ctx context.Context, key attendance.SheetKey) error {
	c.mu.Lock()
	st, ok := c.keys[key]
	if !ok || st.state == StateIdle {
		c.mu.Unlock()
		return nil
	}
	done := st.done
	c.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sheet returns the stored sheet for one employee's month.
func (c *Coordinator) Sheet(ctx context.Context, employeeID string, year int, month time.Month) (attendance.Sheet, error) {
	key := attendance.NewSheetKey(employeeID, year, month)
	if err := key.Validate(); err != nil {
		return attendance.Sheet{}, err
	}
	var sheet attendance.Sheet
	_, err := retry(ctx, c.opts.Retry, "get sheet", func(ctx context.Context) error {
		var err error
		sheet, err = c.deps.Sheets.GetSheet(ctx, key)
		return err
	})
	return sheet, err
}

// Breakdown classifies the current records of a month without committing
// anything. It shows the per-day result behind a sheet and the records that
// were excluded from it.
func (c *Coordinator) Breakdown(ctx context.Context, key attendance.SheetKey) (attendance.AggregateResult, error) {
	if err := key.Validate(); err != nil {
		return attendance.AggregateResult{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()
	res, _, err := c.aggregate(ctx, key)
	return res, err
}

// Status returns the state of one key. Unknown keys are Idle.
func (c *Coordinator) Status(key attendance.SheetKey) KeyStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.keys[key]
	if !ok {
		return KeyStatus{Key: key, State: StateIdle}
	}
	return st.status(key)
}

// Snapshot returns the state of every key seen so far, ordered by key.
func (c *Coordinator) Snapshot() []KeyStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]KeyStatus, 0, len(c.keys))
	for k, st := range c.keys {
		out = append(out, st.status(k))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out
}

// FailedKeys returns idle keys whose last run failed and is worth retrying.
// Withheld partial sheets are left out: rerunning them reads the same invalid
// records, and the edit that corrects them triggers the key again.
func (c *Coordinator) FailedKeys() []attendance.SheetKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []attendance.SheetKey
	for k, st := range c.keys {
		if st.state == StateIdle && st.lastErr != nil && !errors.Is(st.lastErr, attendance.ErrPartialFailure) {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Owns reports whether this coordinator's shard owns key.
func (c *Coordinator) Owns(key attendance.SheetKey) bool { return c.opts.Shard.Owns(key) }

func (st *keyState) status(key attendance.SheetKey) KeyStatus {
	ks := KeyStatus{Key: key, State: st.state, Stale: st.stale, Runs: st.runs, LastRunAt: st.lastRunAt}
	if st.lastErr != nil {
		ks.LastError = st.lastErr.Error()
	}
	return ks
}

// =============================================================================
// QUEUE
// =============================================================================

func (c *Coordinator) stateLocked(key attendance.SheetKey) *keyState {
	st, ok := c.keys[key]
	if !ok {
		st = &keyState{state: StateIdle}
		c.keys[key] = st
	}
	return st
}

func (c *Coordinator) enqueueLocked(key attendance.SheetKey) {
	c.pending = append(c.pending, key)
	c.signal()
}

func (c *Coordinator) signal() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *Coordinator) acquireLocked() {
	if c.busy == 0 {
		c.idle = make(chan struct{})
	}
	c.busy++
}

func (c *Coordinator) releaseLocked() {
	c.busy--
	if c.busy == 0 {
		close(c.idle)
	}
}

func (c *Coordinator) next() (attendance.SheetKey, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		return attendance.SheetKey{}, false
	}
	key := c.pending[0]
	c.pending = c.pending[1:]
	return key, true
}

func (c *Coordinator) dispatch() {
	defer c.wg.Done()
	for {
		key, ok := c.next()
		if !ok {
			select {
			case <-c.notify:
				continue
			case <-c.ctx.Done():
				return
			}
		}
		select {
		case c.jobs <- key:
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Coordinator) work() {
	defer c.wg.Done()
	for {
		select {
		case key := <-c.jobs:
			c.run(key)
		case <-c.ctx.Done():
			return
		}
	}
}

// =============================================================================
// RUN
// =============================================================================

type outcome struct {
	sheet    attendance.Sheet
	days     []attendance.DayResult
	attempts int
	excluded int
	err      error
}

func (c *Coordinator) run(key attendance.SheetKey) {
	c.mu.Lock()
	st := c.stateLocked(key)
	st.state = StateRunning
	st.stale = false
	c.mu.Unlock()

	started := c.opts.Now()
	out := c.compute(key)
	finished := c.opts.Now()

	c.mu.Lock()
	superseded := st.stale
	st.runs++
	st.lastRunAt = finished
	st.lastErr = out.err
	c.mu.Unlock()

	switch {
	case out.err != nil:
		log.Printf("[Recalc] %s failed after %d attempt(s): %v", key, out.attempts, out.err)
	case superseded:
		log.Printf("[Recalc] %s superseded by a newer edit, re-queued", key)
	case out.excluded > 0:
		log.Printf("[Recalc] %s committed with %d excluded record(s)", key, out.excluded)
	}

	if out.err == nil {
		c.reportLeave(out.days)
	}
	c.recordRun(key, out, superseded, started, finished)

	// Triggers that arrived since the snapshot was read re-queue the key.
	c.mu.Lock()
	if st.stale {
		st.stale = false
		st.state = StateQueued
		c.enqueueLocked(key)
	} else {
		st.state = StateIdle
		close(st.done)
		c.releaseLocked()
	}
	c.mu.Unlock()
}

// aggregate reads one month snapshot and classifies it without writing.
func (c *Coordinator) aggregate(ctx context.Context, key attendance.SheetKey) (attendance.AggregateResult, int, error) {
	var (
		attempts int
		records  []attendance.Record
		facts    map[attendance.Date]attendance.CalendarFacts
	)

	n, err := retry(ctx, c.opts.Retry, "read records", func(ctx context.Context) error {
		var err error
		records, err = c.deps.Records.Records(ctx, key.EmployeeID, key.Year, key.Month)
		return err
	})
	attempts += n
	if err != nil {
		return attendance.AggregateResult{}, attempts, err
	}

	n, err = retry(ctx, c.opts.Retry, "calendar facts", func(ctx context.Context) error {
		var err error
		facts, err = attendance.MonthFacts(ctx, c.deps.Calendar, key)
		return err
	})
	attempts += n
	if err != nil {
		return attendance.AggregateResult{}, attempts, err
	}

	return attendance.Aggregate(attendance.AggregateInput{
		EmployeeID: key.EmployeeID,
		Year:       key.Year,
		Month:      key.Month,
		Records:    records,
		Facts:      facts,
		Rounding:   c.opts.Rounding,
	}), attempts, nil
}

func (c *Coordinator) compute(key attendance.SheetKey) outcome {
	ctx, cancel := context.WithTimeout(c.ctx, c.opts.Timeout)
	defer cancel()

	var out outcome
	res, n, err := c.aggregate(ctx, key)
	out.attempts += n
	if err != nil {
		out.err = err
		return out
	}
	out.days = res.Days
	out.excluded = len(res.Excluded)
	if err := res.Err(); err != nil && !c.opts.PublishPartial {
		out.err = err
		return out
	}

	sheet := res.Sheet
	sheet.LastCalculatedAt = c.opts.Now().UTC()

	if err := ctx.Err(); err != nil {
		out.err = storeError("upsert sheet", err)
		return out
	}
	n, err = retry(ctx, c.opts.Retry, "upsert sheet", func(ctx context.Context) error {
		return c.deps.Sheets.UpsertSheet(ctx, sheet)
	})
	out.attempts += n
	if err != nil {
		out.err = err
		return out
	}
	out.sheet = sheet
	return out
}

func (c *Coordinator) reportLeave(days []attendance.DayResult) {
	if c.deps.Leave == nil {
		return
	}
	var usages []attendance.DayResult
	for _, d := range days {
		if d.Leave != nil {
			usages = append(usages, d)
		}
	}
	if len(usages) == 0 {
		return
	}

	c.mu.Lock()
	c.acquireLocked()
	c.mu.Unlock()

	go func() {
		defer func() {
			c.mu.Lock()
			c.releaseLocked()
			c.mu.Unlock()
		}()
		ctx, cancel := context.WithTimeout(c.ctx, c.opts.Timeout)
		defer cancel()

		for _, d := range usages {
			_, err := retry(ctx, c.opts.Retry, "report leave", func(ctx context.Context) error {
				return c.deps.Leave.ReportLeaveConsumption(ctx, d.Key.EmployeeID, d.Key.Date, d.Leave.Kind, d.Leave.Days)
			})
			if err != nil {
				log.Printf("[Recalc] leave report for %s dropped: %v", d.Key, err)
			}
		}
	}()
}

func (c *Coordinator) recordRun(key attendance.SheetKey, out outcome, superseded bool, started, finished time.Time) {
	if c.deps.Runs == nil {
		return
	}
	run := attendance.Run{
		ID:         uuid.NewString(),
		EmployeeID: key.EmployeeID,
		Year:       key.Year,
		Month:      int(key.Month),
		Status:     attendance.RunSucceeded,
		Attempts:   out.attempts,
		Excluded:   out.excluded,
		Superseded: superseded,
		StartedAt:  started.UTC(),
		FinishedAt: finished.UTC(),
	}
	switch {
	case out.err != nil:
		run.Status = attendance.RunFailed
		run.Error = out.err.Error()
	case out.excluded > 0:
		run.Status = attendance.RunPartial
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), c.opts.Timeout)
	defer cancel()
	if err := c.deps.Runs.RecordRun(ctx, run); err != nil {
		log.Printf("[Recalc] failed to record run for %s: %v", key, err)
	}
}
