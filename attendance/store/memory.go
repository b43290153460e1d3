// Package store provides in-memory implementations of the attendance stores.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/attendance-engine/attendance"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	records  map[attendance.RecordKey]attendance.Record
	sheets   map[attendance.SheetKey]attendance.Sheet
	leave    map[attendance.RecordKey]attendance.LeaveEntry
	holidays map[string]attendance.Holiday
	runs     []attendance.Run

	// Now stamps record edits and leave reports. Defaults to time.Now.
	Now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		records:  make(map[attendance.RecordKey]attendance.Record),
		sheets:   make(map[attendance.SheetKey]attendance.Sheet),
		leave:    make(map[attendance.RecordKey]attendance.LeaveEntry),
		holidays: make(map[string]attendance.Holiday),
		Now:      time.Now,
	}
}

var (
	_ attendance.RecordStore    = (*Memory)(nil)
	_ attendance.RecordWriter   = (*Memory)(nil)
	_ attendance.SheetStore     = (*Memory)(nil)
	_ attendance.EmployeeLister = (*Memory)(nil)
	_ attendance.SheetLister    = (*Memory)(nil)
	_ attendance.StaleScanner   = (*Memory)(nil)
	_ attendance.LeaveLedger    = (*Memory)(nil)
	_ attendance.HolidayStore   = (*Memory)(nil)
	_ attendance.RunRecorder    = (*Memory)(nil)
)

// =============================================================================
// RECORDS
// =============================================================================

func (m *Memory) Records(_ context.Context, employeeID string, year int, month time.Month) ([]attendance.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []attendance.Record
	for k, r := range m.records {
		if k.EmployeeID == employeeID && k.Date.InMonth(year, month) {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

func (m *Memory) EmployeesWithRecords(_ context.Context, year int, month time.Month) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	var result []string
	for k := range m.records {
		if k.Date.InMonth(year, month) && !seen[k.EmployeeID] {
			seen[k.EmployeeID] = true
			result = append(result, k.EmployeeID)
		}
	}
	sort.Strings(result)
	return result, nil
}

// SaveRecord replaces the record for its key. A zero UpdatedAt is stamped.
func (m *Memory) SaveRecord(_ context.Context, rec attendance.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = m.Now().UTC()
	}
	m.records[rec.Key()] = rec
	return nil
}

func (m *Memory) DeleteRecord(_ context.Context, key attendance.RecordKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[key]; !ok {
		return attendance.ErrRecordNotFound
	}
	delete(m.records, key)
	return nil
}

// =============================================================================
// SHEETS
// =============================================================================

func (m *Memory) UpsertSheet(_ context.Context, sheet attendance.Sheet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sheet.Excluded = append([]string(nil), sheet.Excluded...)
	m.sheets[sheet.Key()] = sheet
	return nil
}

func (m *Memory) GetSheet(_ context.Context, key attendance.SheetKey) (attendance.Sheet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sheets[key]
	if !ok {
		return attendance.Sheet{}, attendance.ErrSheetNotFound
	}
	return s, nil
}

func (m *Memory) ListSheets(_ context.Context, year int, month time.Month) ([]attendance.Sheet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []attendance.Sheet
	for k, s := range m.sheets {
		if k.Year == year && k.Month == month {
			result = append(result, s)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].EmployeeID < result[j].EmployeeID })
	return result, nil
}

// StaleKeys returns months whose newest record edit is not reflected in a sheet.
func (m *Memory) StaleKeys(_ context.Context) ([]attendance.SheetKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	latest := make(map[attendance.SheetKey]time.Time)
	for k, r := range m.records {
		sk := attendance.KeyFor(k.EmployeeID, k.Date)
		if r.UpdatedAt.After(latest[sk]) || latest[sk].IsZero() {
			latest[sk] = r.UpdatedAt
		}
	}

	var result []attendance.SheetKey
	for sk, edit := range latest {
		s, ok := m.sheets[sk]
		if !ok || !s.IsCurrent(edit) {
			result = append(result, sk)
		}
	}
	sortKeys(result)
	return result, nil
}

func sortKeys(keys []attendance.SheetKey) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
}

// =============================================================================
// LEAVE LEDGER
// =============================================================================

func (m *Memory) ReportLeaveConsumption(_ context.Context, employeeID string, date attendance.Date, kind attendance.LeaveKind, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.leave[attendance.RecordKey{EmployeeID: employeeID, Date: date}] = attendance.LeaveEntry{
		EmployeeID: employeeID,
		Date:       date,
		Kind:       kind,
		Amount:     amount,
		ReportedAt: m.Now().UTC(),
	}
	return nil
}

func (m *Memory) LeaveEntries(_ context.Context, employeeID string, from, to attendance.Date) ([]attendance.LeaveEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []attendance.LeaveEntry
	for k, e := range m.leave {
		if k.EmployeeID == employeeID && from.BeforeOrEqual(k.Date) && k.Date.BeforeOrEqual(to) {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

// =============================================================================
// HOLIDAYS
// =============================================================================

func (m *Memory) SaveHoliday(_ context.Context, h attendance.Holiday) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holidays[h.ID] = h
	return nil
}

func (m *Memory) DeleteHoliday(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.holidays, id)
	return nil
}

func (m *Memory) HolidaysBetween(_ context.Context, from, to attendance.Date) ([]attendance.Holiday, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []attendance.Holiday
	for _, h := range m.holidays {
		for d := from; d.BeforeOrEqual(to); d = d.AddDays(1) {
			if h.Matches(d) {
				result = append(result, h)
				break
			}
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// =============================================================================
// RUNS
// =============================================================================

func (m *Memory) RecordRun(_ context.Context, run attendance.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *Memory) Runs(_ context.Context, key attendance.SheetKey, limit int) ([]attendance.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []attendance.Run
	for i := len(m.runs) - 1; i >= 0; i-- {
		if m.runs[i].Key() != key {
			continue
		}
		result = append(result, m.runs[i])
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

// Reset clears all data.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[attendance.RecordKey]attendance.Record)
	m.sheets = make(map[attendance.SheetKey]attendance.Sheet)
	m.leave = make(map[attendance.RecordKey]attendance.LeaveEntry)
	m.holidays = make(map[string]attendance.Holiday)
	m.runs = nil
	return nil
}
