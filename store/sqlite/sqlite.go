/*
Package sqlite provides a SQLite-backed implementation of the attendance stores.

PURPOSE:
  Persists raw attendance records, derived monthly sheets, the holiday
  calendar, reported leave consumption and the recalculation audit trail.

INTERFACES IMPLEMENTED:
  attendance.RecordStore, RecordWriter, EmployeeLister: raw records
  attendance.SheetStore, SheetLister, StaleScanner:     derived sheets
  attendance.LeaveLedger:                               leave consumption
  attendance.HolidayStore:                              holiday calendar
  attendance.RunRecorder:                               recalculation runs

KEY TABLES:
  attendance_records:  one row per (employee_id, date)
  attendance_sheets:   one row per (employee_id, year, month), hours as TEXT
  holidays:            fixed and recurring (month-day) holidays
  leave_consumption:   one row per (employee_id, date), replaced on report
  recalculation_runs:  audit of completed runs

UPSERTS:
  Every write is a single INSERT ... ON CONFLICT DO UPDATE, so a sheet is
  either fully replaced or untouched.

TIMESTAMPS:
  Stored as fixed-width UTC text so they compare correctly as strings.
  StaleKeys relies on that ordering.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. The database is opened in WAL mode so
  readers do not block the single writer.

USAGE:
  store, err := sqlite.New("./attendance.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - attendance/store.go: Interface definitions
  - attendance/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/attendance-engine/attendance"
)

// timeLayout is fixed width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex

	// Now stamps record edits and leave reports. Defaults to time.Now.
	Now func() time.Time
}

var (
	_ attendance.RecordStore    = (*Store)(nil)
	_ attendance.RecordWriter   = (*Store)(nil)
	_ attendance.EmployeeLister = (*Store)(nil)
	_ attendance.SheetStore     = (*Store)(nil)
	_ attendance.SheetLister    = (*Store)(nil)
	_ attendance.StaleScanner   = (*Store)(nil)
	_ attendance.LeaveLedger    = (*Store)(nil)
	_ attendance.HolidayStore   = (*Store)(nil)
	_ attendance.RunRecorder    = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, Now: time.Now}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS attendance_records (
		employee_id TEXT NOT NULL,
		date TEXT NOT NULL,
		check_in INTEGER,
		check_out INTEGER,
		shift_type TEXT NOT NULL DEFAULT 'day',
		status TEXT NOT NULL,
		remarks TEXT,
		auto_determined INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (employee_id, date)
	);

	CREATE TABLE IF NOT EXISTS attendance_sheets (
		employee_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		early_hours TEXT NOT NULL,
		overtime_hours TEXT NOT NULL,
		holiday_hours TEXT NOT NULL,
		night_hours TEXT NOT NULL,
		overtime_night_hours TEXT NOT NULL,
		early_holiday_hours TEXT NOT NULL,
		holiday_overtime_hours TEXT NOT NULL,
		regular_hours TEXT NOT NULL,
		total_work_hours TEXT NOT NULL,
		total_work_days TEXT NOT NULL,
		excluded_dates TEXT NOT NULL DEFAULT '[]',
		records_as_of TEXT NOT NULL,
		last_calculated_at TEXT NOT NULL,
		UNIQUE (employee_id, year, month)
	);

	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		name TEXT NOT NULL,
		recurring INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_holidays_date ON holidays(date);

	CREATE TABLE IF NOT EXISTS leave_consumption (
		employee_id TEXT NOT NULL,
		date TEXT NOT NULL,
		kind TEXT NOT NULL,
		amount TEXT NOT NULL,
		reported_at TEXT NOT NULL,
		PRIMARY KEY (employee_id, date)
	);

	CREATE TABLE IF NOT EXISTS recalculation_runs (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		status TEXT NOT NULL,
		attempts INTEGER NOT NULL,
		excluded INTEGER NOT NULL,
		superseded INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_key
		ON recalculation_runs(employee_id, year, month, finished_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RECORDS
// =============================================================================

const recordColumns = `employee_id, date, check_in, check_out, shift_type, status, remarks, auto_determined, updated_at`

func (s *Store) Records(ctx context.Context, employeeID string, year int, month time.Month) ([]attendance.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	from, to := monthRange(year, month)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE employee_id = ? AND date >= ? AND date <= ?
		ORDER BY date
	`, employeeID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []attendance.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (s *Store) EmployeesWithRecords(ctx context.Context, year int, month time.Month) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	from, to := monthRange(year, month)
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT employee_id FROM attendance_records
		WHERE date >= ? AND date <= ?
		ORDER BY employee_id
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result = append(result, id)
	}
	return result, rows.Err()
}

// SaveRecord replaces the record for its key. A zero UpdatedAt is stamped.
func (s *Store) SaveRecord(ctx context.Context, rec attendance.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = s.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attendance_records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(employee_id, date) DO UPDATE SET
			check_in = excluded.check_in,
			check_out = excluded.check_out,
			shift_type = excluded.shift_type,
			status = excluded.status,
			remarks = excluded.remarks,
			auto_determined = excluded.auto_determined,
			updated_at = excluded.updated_at
	`,
		rec.EmployeeID,
		rec.Date.String(),
		nullClock(rec.CheckIn),
		nullClock(rec.CheckOut),
		string(rec.ShiftOrDefault()),
		string(rec.Status),
		nullString(rec.Remarks),
		rec.AutoDetermined,
		formatTime(rec.UpdatedAt),
	)
	return err
}

func (s *Store) DeleteRecord(ctx context.Context, key attendance.RecordKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM attendance_records WHERE employee_id = ? AND date = ?`,
		key.EmployeeID, key.Date.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return attendance.ErrRecordNotFound
	}
	return nil
}

func scanRecord(rows *sql.Rows) (attendance.Record, error) {
	var (
		rec                 attendance.Record
		date, shift, status string
		updatedAt           string
		checkIn, checkOut   sql.NullInt64
		remarks             sql.NullString
	)
	if err := rows.Scan(&rec.EmployeeID, &date, &checkIn, &checkOut, &shift, &status, &remarks, &rec.AutoDetermined, &updatedAt); err != nil {
		return rec, err
	}

	var err error
	if rec.Date, err = attendance.ParseDate(date); err != nil {
		return rec, err
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return rec, err
	}
	rec.CheckIn = clockFromNull(checkIn)
	rec.CheckOut = clockFromNull(checkOut)
	rec.Shift = attendance.ShiftType(shift)
	rec.Status = attendance.Status(status)
	rec.Remarks = remarks.String
	return rec, nil
}

// =============================================================================
// SHEETS
// =============================================================================

func (s *Store) UpsertSheet(ctx context.Context, sheet attendance.Sheet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	excluded := sheet.Excluded
	if excluded == nil {
		excluded = []string{}
	}
	excludedJSON, err := json.Marshal(excluded)
	if err != nil {
		return fmt.Errorf("failed to marshal excluded dates: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO attendance_sheets (
			employee_id, year, month,
			early_hours, overtime_hours, holiday_hours, night_hours,
			overtime_night_hours, early_holiday_hours, holiday_overtime_hours, regular_hours,
			total_work_hours, total_work_days, excluded_dates, records_as_of, last_calculated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(employee_id, year, month) DO UPDATE SET
			early_hours = excluded.early_hours,
			overtime_hours = excluded.overtime_hours,
			holiday_hours = excluded.holiday_hours,
			night_hours = excluded.night_hours,
			overtime_night_hours = excluded.overtime_night_hours,
			early_holiday_hours = excluded.early_holiday_hours,
			holiday_overtime_hours = excluded.holiday_overtime_hours,
			regular_hours = excluded.regular_hours,
			total_work_hours = excluded.total_work_hours,
			total_work_days = excluded.total_work_days,
			excluded_dates = excluded.excluded_dates,
			records_as_of = excluded.records_as_of,
			last_calculated_at = excluded.last_calculated_at
	`,
		sheet.EmployeeID, sheet.Year, int(sheet.Month),
		sheet.EarlyHours.String(),
		sheet.OvertimeHours.String(),
		sheet.HolidayHours.String(),
		sheet.NightHours.String(),
		sheet.OvertimeNightHours.String(),
		sheet.EarlyHolidayHours.String(),
		sheet.HolidayOvertimeHours.String(),
		sheet.RegularHours.String(),
		sheet.TotalWorkHours.String(),
		sheet.TotalWorkDays.String(),
		string(excludedJSON),
		formatTime(sheet.RecordsAsOf),
		formatTime(sheet.LastCalculatedAt),
	)
	return err
}

const sheetColumns = `
	employee_id, year, month,
	early_hours, overtime_hours, holiday_hours, night_hours,
	overtime_night_hours, early_holiday_hours, holiday_overtime_hours, regular_hours,
	total_work_hours, total_work_days, excluded_dates, records_as_of, last_calculated_at`

func (s *Store) GetSheet(ctx context.Context, key attendance.SheetKey) (attendance.Sheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sheetColumns+`
		FROM attendance_sheets
		WHERE employee_id = ? AND year = ? AND month = ?
	`, key.EmployeeID, key.Year, int(key.Month))
	if err != nil {
		return attendance.Sheet{}, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return attendance.Sheet{}, err
		}
		return attendance.Sheet{}, attendance.ErrSheetNotFound
	}
	return scanSheet(rows)
}

func (s *Store) ListSheets(ctx context.Context, year int, month time.Month) ([]attendance.Sheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sheetColumns+`
		FROM attendance_sheets
		WHERE year = ? AND month = ?
		ORDER BY employee_id
	`, year, int(month))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []attendance.Sheet
	for rows.Next() {
		sheet, err := scanSheet(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sheet)
	}
	return result, rows.Err()
}

// StaleKeys returns months whose newest record edit is not reflected in a sheet.
func (s *Store) StaleKeys(ctx context.Context) ([]attendance.SheetKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT g.employee_id, g.year, g.month
		FROM (
			SELECT employee_id,
				CAST(substr(date, 1, 4) AS INTEGER) AS year,
				CAST(substr(date, 6, 2) AS INTEGER) AS month,
				MAX(updated_at) AS latest
			FROM attendance_records
			GROUP BY employee_id, year, month
		) g
		LEFT JOIN attendance_sheets s
			ON s.employee_id = g.employee_id AND s.year = g.year AND s.month = g.month
		WHERE s.employee_id IS NULL
			OR s.last_calculated_at = ''
			OR g.latest > s.records_as_of
		ORDER BY g.employee_id, g.year, g.month
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []attendance.SheetKey
	for rows.Next() {
		var (
			key   attendance.SheetKey
			month int
		)
		if err := rows.Scan(&key.EmployeeID, &key.Year, &month); err != nil {
			return nil, err
		}
		key.Month = time.Month(month)
		result = append(result, key)
	}
	return result, rows.Err()
}

func scanSheet(rows *sql.Rows) (attendance.Sheet, error) {
	var (
		sheet              attendance.Sheet
		month              int
		hours              [10]string
		excluded           string
		asOf, calculatedAt string
	)
	if err := rows.Scan(
		&sheet.EmployeeID, &sheet.Year, &month,
		&hours[0], &hours[1], &hours[2], &hours[3],
		&hours[4], &hours[5], &hours[6], &hours[7],
		&hours[8], &hours[9], &excluded, &asOf, &calculatedAt,
	); err != nil {
		return sheet, err
	}
	sheet.Month = time.Month(month)

	targets := []*decimal.Decimal{
		&sheet.EarlyHours, &sheet.OvertimeHours, &sheet.HolidayHours, &sheet.NightHours,
		&sheet.OvertimeNightHours, &sheet.EarlyHolidayHours, &sheet.HolidayOvertimeHours, &sheet.RegularHours,
		&sheet.TotalWorkHours, &sheet.TotalWorkDays,
	}
	for i, target := range targets {
		v, err := decimal.NewFromString(hours[i])
		if err != nil {
			return sheet, fmt.Errorf("sheet %s: invalid decimal %q: %w", sheet.Key(), hours[i], err)
		}
		*target = v
	}

	if err := json.Unmarshal([]byte(excluded), &sheet.Excluded); err != nil {
		return sheet, fmt.Errorf("sheet %s: invalid excluded dates: %w", sheet.Key(), err)
	}
	if len(sheet.Excluded) == 0 {
		sheet.Excluded = nil
	}

	var err error
	if sheet.RecordsAsOf, err = parseTime(asOf); err != nil {
		return sheet, err
	}
	if sheet.LastCalculatedAt, err = parseTime(calculatedAt); err != nil {
		return sheet, err
	}
	return sheet, nil
}

// =============================================================================
// LEAVE LEDGER
// =============================================================================

func (s *Store) ReportLeaveConsumption(ctx context.Context, employeeID string, date attendance.Date, kind attendance.LeaveKind, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leave_consumption (employee_id, date, kind, amount, reported_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(employee_id, date) DO UPDATE SET
			kind = excluded.kind,
			amount = excluded.amount,
			reported_at = excluded.reported_at
	`, employeeID, date.String(), string(kind), amount.String(), formatTime(s.Now()))
	return err
}

func (s *Store) LeaveEntries(ctx context.Context, employeeID string, from, to attendance.Date) ([]attendance.LeaveEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT employee_id, date, kind, amount, reported_at
		FROM leave_consumption
		WHERE employee_id = ? AND date >= ? AND date <= ?
		ORDER BY date
	`, employeeID, from.String(), to.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []attendance.LeaveEntry
	for rows.Next() {
		var (
			e                      attendance.LeaveEntry
			date, kind, amount, at string
		)
		if err := rows.Scan(&e.EmployeeID, &date, &kind, &amount, &at); err != nil {
			return nil, err
		}
		if e.Date, err = attendance.ParseDate(date); err != nil {
			return nil, err
		}
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, err
		}
		if e.ReportedAt, err = parseTime(at); err != nil {
			return nil, err
		}
		e.Kind = attendance.LeaveKind(kind)
		result = append(result, e)
	}
	return result, rows.Err()
}

// =============================================================================
// HOLIDAYS
// =============================================================================

func (s *Store) SaveHoliday(ctx context.Context, h attendance.Holiday) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO holidays (id, date, name, recurring)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			date = excluded.date,
			name = excluded.name,
			recurring = excluded.recurring
	`, h.ID, h.Date.String(), h.Name, h.Recurring)
	return err
}

func (s *Store) DeleteHoliday(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM holidays WHERE id = ?`, id)
	return err
}

// HolidaysBetween matches fixed holidays by date and recurring holidays by
// month-day. A range crossing a year end wraps the month-day comparison.
func (s *Store) HolidaysBetween(ctx context.Context, from, to attendance.Date) ([]attendance.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, date, name, recurring
		FROM holidays
		WHERE (recurring = 0 AND date >= ? AND date <= ?)`
	args := []any{from.String(), to.String()}

	fromMD := fmt.Sprintf("%02d-%02d", int(from.Month), from.Day)
	toMD := fmt.Sprintf("%02d-%02d", int(to.Month), to.Day)
	switch {
	case to.Year-from.Year > 1:
		query += ` OR recurring = 1`
	case to.Year > from.Year:
		query += ` OR (recurring = 1 AND (strftime('%m-%d', date) >= ? OR strftime('%m-%d', date) <= ?))`
		args = append(args, fromMD, toMD)
	default:
		query += ` OR (recurring = 1 AND strftime('%m-%d', date) BETWEEN ? AND ?)`
		args = append(args, fromMD, toMD)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []attendance.Holiday
	for rows.Next() {
		var (
			h    attendance.Holiday
			date string
		)
		if err := rows.Scan(&h.ID, &date, &h.Name, &h.Recurring); err != nil {
			return nil, err
		}
		if h.Date, err = attendance.ParseDate(date); err != nil {
			return nil, err
		}
		result = append(result, h)
	}
	return result, rows.Err()
}

// =============================================================================
// RECALCULATION RUNS
// =============================================================================

func (s *Store) RecordRun(ctx context.Context, run attendance.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recalculation_runs (
			id, employee_id, year, month, status, attempts, excluded, superseded,
			error, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID, run.EmployeeID, run.Year, run.Month, string(run.Status),
		run.Attempts, run.Excluded, run.Superseded,
		nullString(run.Error), formatTime(run.StartedAt), formatTime(run.FinishedAt),
	)
	return err
}

func (s *Store) Runs(ctx context.Context, key attendance.SheetKey, limit int) ([]attendance.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, employee_id, year, month, status, attempts, excluded, superseded,
			error, started_at, finished_at
		FROM recalculation_runs
		WHERE employee_id = ? AND year = ? AND month = ?
		ORDER BY finished_at DESC, rowid DESC`
	args := []any{key.EmployeeID, key.Year, int(key.Month)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []attendance.Run
	for rows.Next() {
		var (
			run                 attendance.Run
			status              string
			runErr              sql.NullString
			startedAt, finished string
		)
		if err := rows.Scan(&run.ID, &run.EmployeeID, &run.Year, &run.Month, &status,
			&run.Attempts, &run.Excluded, &run.Superseded, &runErr, &startedAt, &finished); err != nil {
			return nil, err
		}
		run.Status = attendance.RunStatus(status)
		run.Error = runErr.String
		if run.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, err
		}
		if run.FinishedAt, err = parseTime(finished); err != nil {
			return nil, err
		}
		result = append(result, run)
	}
	return result, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

// Reset clears all data from the database (for demo/testing purposes).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"recalculation_runs",
		"leave_consumption",
		"attendance_sheets",
		"attendance_records",
		"holidays",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

func monthRange(year int, month time.Month) (string, string) {
	return attendance.NewDate(year, month, 1).String(), attendance.EndOfMonth(year, month).String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullClock(c *attendance.ClockTime) sql.NullInt64 {
	if c == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*c), Valid: true}
}

func clockFromNull(n sql.NullInt64) *attendance.ClockTime {
	if !n.Valid {
		return nil
	}
	c := attendance.ClockTime(n.Int64)
	return &c
}
