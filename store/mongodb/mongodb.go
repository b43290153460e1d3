/*
Package mongodb provides a MongoDB-backed implementation of the attendance stores.

PURPOSE:
  Deployments that already keep attendance in MongoDB read records from the
  "attendance" collection and write derived sheets to "attendanceSheet".

COLLECTIONS:
  attendance:         raw records, unique on (employeeId, date)
  attendanceSheet:    derived sheets, unique on (employeeId, year, month)
  leaveConsumption:   reported leave, unique on (employeeId, date)
  holidays:           holiday calendar, keyed by _id
  recalculationRuns:  audit of completed runs

PRECISION:
  Hours are stored as Decimal128. BSON dates keep milliseconds only, so
  record edits are truncated to the millisecond before they are written;
  RecordsAsOf is derived from the stored values and stays comparable.

SEE ALSO:
  - attendance/store.go: Interface definitions
  - store/sqlite/sqlite.go: SQLite implementation with the same semantics
*/
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/warp/attendance-engine/attendance"
)

const (
	recordsCollection  = "attendance"
	sheetsCollection   = "attendanceSheet"
	leaveCollection    = "leaveConsumption"
	holidaysCollection = "holidays"
	runsCollection     = "recalculationRuns"
)

// Store implements the attendance storage interfaces on MongoDB.
type Store struct {
	client *mongo.Client
	db     *mongo.Database

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

// Connect dials uri, pings the server and ensures indexes on database.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	log.Printf("[Mongo] connecting to database %q", database)

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("MongoDB is not reachable: %w", err)
	}

	s := &Store{client: client, db: client.Database(database), Now: time.Now}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return s, nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	indexes := map[string]mongo.IndexModel{
		recordsCollection: {
			Keys:    bson.D{{Key: "employeeId", Value: 1}, {Key: "date", Value: 1}},
			Options: unique,
		},
		sheetsCollection: {
			Keys:    bson.D{{Key: "employeeId", Value: 1}, {Key: "year", Value: 1}, {Key: "month", Value: 1}},
			Options: unique,
		},
		leaveCollection: {
			Keys:    bson.D{{Key: "employeeId", Value: 1}, {Key: "date", Value: 1}},
			Options: unique,
		},
		runsCollection: {
			Keys: bson.D{{Key: "employeeId", Value: 1}, {Key: "year", Value: 1}, {Key: "month", Value: 1}, {Key: "finishedAt", Value: -1}},
		},
	}
	for coll, model := range indexes {
		if _, err := s.db.Collection(coll).Indexes().CreateOne(ctx, model); err != nil {
			return fmt.Errorf("%s: %w", coll, err)
		}
	}
	return nil
}

// Reset drops every collection (for demo/testing purposes).
func (s *Store) Reset(ctx context.Context) error {
	for _, coll := range []string{recordsCollection, sheetsCollection, leaveCollection, holidaysCollection, runsCollection} {
		if err := s.db.Collection(coll).Drop(ctx); err != nil {
			return fmt.Errorf("failed to drop %s: %w", coll, err)
		}
	}
	return s.ensureIndexes(ctx)
}

// =============================================================================
// RECORDS
// =============================================================================

type recordDoc struct {
	EmployeeID     string    `bson:"employeeId"`
	Date           string    `bson:"date"`
	Year           int       `bson:"year"`
	Month          int       `bson:"month"`
	CheckIn        *int      `bson:"checkIn,omitempty"`
	CheckOut       *int      `bson:"checkOut,omitempty"`
	ShiftType      string    `bson:"shiftType"`
	Status         string    `bson:"status"`
	Remarks        string    `bson:"remarks,omitempty"`
	AutoDetermined bool      `bson:"autoDetermined"`
	UpdatedAt      time.Time `bson:"updatedAt"`
}

func toRecordDoc(r attendance.Record) recordDoc {
	return recordDoc{
		EmployeeID:     r.EmployeeID,
		Date:           r.Date.String(),
		Year:           r.Date.Year,
		Month:          int(r.Date.Month),
		CheckIn:        clockToInt(r.CheckIn),
		CheckOut:       clockToInt(r.CheckOut),
		ShiftType:      string(r.ShiftOrDefault()),
		Status:         string(r.Status),
		Remarks:        r.Remarks,
		AutoDetermined: r.AutoDetermined,
		UpdatedAt:      r.UpdatedAt,
	}
}

func (d recordDoc) record() (attendance.Record, error) {
	date, err := attendance.ParseDate(d.Date)
	if err != nil {
		return attendance.Record{}, err
	}
	return attendance.Record{
		EmployeeID:     d.EmployeeID,
		Date:           date,
		CheckIn:        intToClock(d.CheckIn),
		CheckOut:       intToClock(d.CheckOut),
		Shift:          attendance.ShiftType(d.ShiftType),
		Status:         attendance.Status(d.Status),
		Remarks:        d.Remarks,
		AutoDetermined: d.AutoDetermined,
		UpdatedAt:      d.UpdatedAt.UTC(),
	}, nil
}

func (s *Store) Records(ctx context.Context, employeeID string, year int, month time.Month) ([]attendance.Record, error) {
	cur, err := s.db.Collection(recordsCollection).Find(ctx,
		bson.M{"employeeId": employeeID, "year": year, "month": int(month)},
		options.Find().SetSort(bson.D{{Key: "date", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	var docs []recordDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	result := make([]attendance.Record, 0, len(docs))
	for _, d := range docs {
		rec, err := d.record()
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, nil
}

func (s *Store) EmployeesWithRecords(ctx context.Context, year int, month time.Month) ([]string, error) {
	values, err := s.db.Collection(recordsCollection).Distinct(ctx, "employeeId", bson.M{"year": year, "month": int(month)})
	if err != nil {
		return nil, err
	}
	result := make([]string, 0, len(values))
	for _, v := range values {
		if id, ok := v.(string); ok {
			result = append(result, id)
		}
	}
	sort.Strings(result)
	return result, nil
}

// SaveRecord replaces the record for its key. A zero UpdatedAt is stamped.
func (s *Store) SaveRecord(ctx context.Context, rec attendance.Record) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = s.Now()
	}
	rec.UpdatedAt = rec.UpdatedAt.UTC().Truncate(time.Millisecond)

	_, err := s.db.Collection(recordsCollection).ReplaceOne(ctx,
		bson.M{"employeeId": rec.EmployeeID, "date": rec.Date.String()},
		toRecordDoc(rec),
		options.Replace().SetUpsert(true),
	)
	return err
}

func (s *Store) DeleteRecord(ctx context.Context, key attendance.RecordKey) error {
	res, err := s.db.Collection(recordsCollection).DeleteOne(ctx,
		bson.M{"employeeId": key.EmployeeID, "date": key.Date.String()})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return attendance.ErrRecordNotFound
	}
	return nil
}

// =============================================================================
// SHEETS
// =============================================================================

type sheetDoc struct {
	EmployeeID           string               `bson:"employeeId"`
	Year                 int                  `bson:"year"`
	Month                int                  `bson:"month"`
	EarlyHours           primitive.Decimal128 `bson:"earlyHours"`
	OvertimeHours        primitive.Decimal128 `bson:"overtimeHours"`
	HolidayHours         primitive.Decimal128 `bson:"holidayHours"`
	NightHours           primitive.Decimal128 `bson:"nightHours"`
	OvertimeNightHours   primitive.Decimal128 `bson:"overtimeNightHours"`
	EarlyHolidayHours    primitive.Decimal128 `bson:"earlyHolidayHours"`
	HolidayOvertimeHours primitive.Decimal128 `bson:"holidayOvertimeHours"`
	RegularHours         primitive.Decimal128 `bson:"regularHours"`
	TotalWorkHours       primitive.Decimal128 `bson:"totalWorkHours"`
	TotalWorkDays        primitive.Decimal128 `bson:"totalWorkDays"`
	Excluded             []string             `bson:"excluded"`
	RecordsAsOf          time.Time            `bson:"recordsAsOf"`
	LastCalculatedAt     time.Time            `bson:"lastCalculatedAt"`
}

func toSheetDoc(sh attendance.Sheet) (sheetDoc, error) {
	doc := sheetDoc{
		EmployeeID:       sh.EmployeeID,
		Year:             sh.Year,
		Month:            int(sh.Month),
		Excluded:         append([]string{}, sh.Excluded...),
		RecordsAsOf:      sh.RecordsAsOf.UTC(),
		LastCalculatedAt: sh.LastCalculatedAt.UTC(),
	}
	fields := []struct {
		dst *primitive.Decimal128
		v   decimal.Decimal
	}{
		{&doc.EarlyHours, sh.EarlyHours},
		{&doc.OvertimeHours, sh.OvertimeHours},
		{&doc.HolidayHours, sh.HolidayHours},
		{&doc.NightHours, sh.NightHours},
		{&doc.OvertimeNightHours, sh.OvertimeNightHours},
		{&doc.EarlyHolidayHours, sh.EarlyHolidayHours},
		{&doc.HolidayOvertimeHours, sh.HolidayOvertimeHours},
		{&doc.RegularHours, sh.RegularHours},
		{&doc.TotalWorkHours, sh.TotalWorkHours},
		{&doc.TotalWorkDays, sh.TotalWorkDays},
	}
	for _, f := range fields {
		d, err := primitive.ParseDecimal128(f.v.String())
		if err != nil {
			return doc, fmt.Errorf("sheet %s: %w", sh.Key(), err)
		}
		*f.dst = d
	}
	return doc, nil
}

func (d sheetDoc) sheet() (attendance.Sheet, error) {
	sh := attendance.Sheet{
		EmployeeID:       d.EmployeeID,
		Year:             d.Year,
		Month:            time.Month(d.Month),
		RecordsAsOf:      d.RecordsAsOf.UTC(),
		LastCalculatedAt: d.LastCalculatedAt.UTC(),
	}
	if len(d.Excluded) > 0 {
		sh.Excluded = d.Excluded
	}
	fields := []struct {
		dst *decimal.Decimal
		v   primitive.Decimal128
	}{
		{&sh.EarlyHours, d.EarlyHours},
		{&sh.OvertimeHours, d.OvertimeHours},
		{&sh.HolidayHours, d.HolidayHours},
		{&sh.NightHours, d.NightHours},
		{&sh.OvertimeNightHours, d.OvertimeNightHours},
		{&sh.EarlyHolidayHours, d.EarlyHolidayHours},
		{&sh.HolidayOvertimeHours, d.HolidayOvertimeHours},
		{&sh.RegularHours, d.RegularHours},
		{&sh.TotalWorkHours, d.TotalWorkHours},
		{&sh.TotalWorkDays, d.TotalWorkDays},
	}
	for _, f := range fields {
		v, err := decimal.NewFromString(f.v.String())
		if err != nil {
			return sh, fmt.Errorf("sheet %s: %w", sh.Key(), err)
		}
		*f.dst = v
	}
	return sh, nil
}

func sheetFilter(key attendance.SheetKey) bson.M {
	return bson.M{"employeeId": key.EmployeeID, "year": key.Year, "month": int(key.Month)}
}

// UpsertSheet replaces the whole document in one write.
func (s *Store) UpsertSheet(ctx context.Context, sheet attendance.Sheet) error {
	doc, err := toSheetDoc(sheet)
	if err != nil {
		return err
	}
	_, err = s.db.Collection(sheetsCollection).ReplaceOne(ctx,
		sheetFilter(sheet.Key()), doc, options.Replace().SetUpsert(true))
	return err
}

func (s *Store) GetSheet(ctx context.Context, key attendance.SheetKey) (attendance.Sheet, error) {
	var doc sheetDoc
	err := s.db.Collection(sheetsCollection).FindOne(ctx, sheetFilter(key)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return attendance.Sheet{}, attendance.ErrSheetNotFound
	}
	if err != nil {
		return attendance.Sheet{}, err
	}
	return doc.sheet()
}

func (s *Store) ListSheets(ctx context.Context, year int, month time.Month) ([]attendance.Sheet, error) {
	cur, err := s.db.Collection(sheetsCollection).Find(ctx,
		bson.M{"year": year, "month": int(month)},
		options.Find().SetSort(bson.D{{Key: "employeeId", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	var docs []sheetDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	result := make([]attendance.Sheet, 0, len(docs))
	for _, d := range docs {
		sh, err := d.sheet()
		if err != nil {
			return nil, err
		}
		result = append(result, sh)
	}
	return result, nil
}

// StaleKeys groups records by month on the server and compares each group's
// newest edit with the stored sheet.
func (s *Store) StaleKeys(ctx context.Context) ([]attendance.SheetKey, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{
				{Key: "employeeId", Value: "$employeeId"},
				{Key: "year", Value: "$year"},
				{Key: "month", Value: "$month"},
			}},
			{Key: "latest", Value: bson.D{{Key: "$max", Value: "$updatedAt"}}},
		}}},
		{{Key: "$sort", Value: bson.D{
			{Key: "_id.employeeId", Value: 1},
			{Key: "_id.year", Value: 1},
			{Key: "_id.month", Value: 1},
		}}},
	}
	cur, err := s.db.Collection(recordsCollection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}

	var groups []struct {
		ID struct {
			EmployeeID string `bson:"employeeId"`
			Year       int    `bson:"year"`
			Month      int    `bson:"month"`
		} `bson:"_id"`
		Latest time.Time `bson:"latest"`
	}
	if err := cur.All(ctx, &groups); err != nil {
		return nil, err
	}

	var result []attendance.SheetKey
	for _, g := range groups {
		key := attendance.NewSheetKey(g.ID.EmployeeID, g.ID.Year, time.Month(g.ID.Month))
		sheet, err := s.GetSheet(ctx, key)
		if errors.Is(err, attendance.ErrSheetNotFound) {
			result = append(result, key)
			continue
		}
		if err != nil {
			return nil, err
		}
		if !sheet.IsCurrent(g.Latest) {
			result = append(result, key)
		}
	}
	return result, nil
}

// =============================================================================
// LEAVE LEDGER
// =============================================================================

type leaveDoc struct {
	EmployeeID string               `bson:"employeeId"`
	Date       string               `bson:"date"`
	Kind       string               `bson:"kind"`
	Amount     primitive.Decimal128 `bson:"amount"`
	ReportedAt time.Time            `bson:"reportedAt"`
}

func (s *Store) ReportLeaveConsumption(ctx context.Context, employeeID string, date attendance.Date, kind attendance.LeaveKind, amount decimal.Decimal) error {
	amt, err := primitive.ParseDecimal128(amount.String())
	if err != nil {
		return err
	}
	_, err = s.db.Collection(leaveCollection).ReplaceOne(ctx,
		bson.M{"employeeId": employeeID, "date": date.String()},
		leaveDoc{EmployeeID: employeeID, Date: date.String(), Kind: string(kind), Amount: amt, ReportedAt: s.Now().UTC()},
		options.Replace().SetUpsert(true),
	)
	return err
}

func (s *Store) LeaveEntries(ctx context.Context, employeeID string, from, to attendance.Date) ([]attendance.LeaveEntry, error) {
	cur, err := s.db.Collection(leaveCollection).Find(ctx,
		bson.M{"employeeId": employeeID, "date": bson.M{"$gte": from.String(), "$lte": to.String()}},
		options.Find().SetSort(bson.D{{Key: "date", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	var docs []leaveDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	result := make([]attendance.LeaveEntry, 0, len(docs))
	for _, d := range docs {
		date, err := attendance.ParseDate(d.Date)
		if err != nil {
			return nil, err
		}
		amount, err := decimal.NewFromString(d.Amount.String())
		if err != nil {
			return nil, err
		}
		result = append(result, attendance.LeaveEntry{
			EmployeeID: d.EmployeeID,
			Date:       date,
			Kind:       attendance.LeaveKind(d.Kind),
			Amount:     amount,
			ReportedAt: d.ReportedAt.UTC(),
		})
	}
	return result, nil
}

// =============================================================================
// HOLIDAYS
// =============================================================================

type holidayDoc struct {
	ID        string `bson:"_id"`
	Date      string `bson:"date"`
	Name      string `bson:"name"`
	Recurring bool   `bson:"recurring"`
}

func (s *Store) SaveHoliday(ctx context.Context, h attendance.Holiday) error {
	_, err := s.db.Collection(holidaysCollection).ReplaceOne(ctx,
		bson.M{"_id": h.ID},
		holidayDoc{ID: h.ID, Date: h.Date.String(), Name: h.Name, Recurring: h.Recurring},
		options.Replace().SetUpsert(true),
	)
	return err
}

func (s *Store) DeleteHoliday(ctx context.Context, id string) error {
	_, err := s.db.Collection(holidaysCollection).DeleteOne(ctx, bson.M{"_id": id})
	return err
}

// HolidaysBetween filters recurring holidays client-side by month and day.
func (s *Store) HolidaysBetween(ctx context.Context, from, to attendance.Date) ([]attendance.Holiday, error) {
	cur, err := s.db.Collection(holidaysCollection).Find(ctx, bson.M{"$or": bson.A{
		bson.M{"recurring": false, "date": bson.M{"$gte": from.String(), "$lte": to.String()}},
		bson.M{"recurring": true},
	}}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []holidayDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	var result []attendance.Holiday
	for _, d := range docs {
		date, err := attendance.ParseDate(d.Date)
		if err != nil {
			return nil, err
		}
		h := attendance.Holiday{ID: d.ID, Date: date, Name: d.Name, Recurring: d.Recurring}
		if !h.Recurring {
			result = append(result, h)
			continue
		}
		for day := from; day.BeforeOrEqual(to); day = day.AddDays(1) {
			if h.Matches(day) {
				result = append(result, h)
				break
			}
		}
	}
	return result, nil
}

// =============================================================================
// RECALCULATION RUNS
// =============================================================================

type runDoc struct {
	ID         string    `bson:"_id"`
	EmployeeID string    `bson:"employeeId"`
	Year       int       `bson:"year"`
	Month      int       `bson:"month"`
	Status     string    `bson:"status"`
	Attempts   int       `bson:"attempts"`
	Excluded   int       `bson:"excluded"`
	Superseded bool      `bson:"superseded"`
	Error      string    `bson:"error,omitempty"`
	StartedAt  time.Time `bson:"startedAt"`
	FinishedAt time.Time `bson:"finishedAt"`
}

func (s *Store) RecordRun(ctx context.Context, run attendance.Run) error {
	_, err := s.db.Collection(runsCollection).InsertOne(ctx, runDoc{
		ID:         run.ID,
		EmployeeID: run.EmployeeID,
		Year:       run.Year,
		Month:      run.Month,
		Status:     string(run.Status),
		Attempts:   run.Attempts,
		Excluded:   run.Excluded,
		Superseded: run.Superseded,
		Error:      run.Error,
		StartedAt:  run.StartedAt.UTC(),
		FinishedAt: run.FinishedAt.UTC(),
	})
	return err
}

func (s *Store) Runs(ctx context.Context, key attendance.SheetKey, limit int) ([]attendance.Run, error) {
	opts := options.Find().SetSort(bson.D{{Key: "finishedAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.db.Collection(runsCollection).Find(ctx, sheetFilter(key), opts)
	if err != nil {
		return nil, err
	}
	var docs []runDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	result := make([]attendance.Run, 0, len(docs))
	for _, d := range docs {
		result = append(result, attendance.Run{
			ID:         d.ID,
			EmployeeID: d.EmployeeID,
			Year:       d.Year,
			Month:      d.Month,
			Status:     attendance.RunStatus(d.Status),
			Attempts:   d.Attempts,
			Excluded:   d.Excluded,
			Superseded: d.Superseded,
			Error:      d.Error,
			StartedAt:  d.StartedAt.UTC(),
			FinishedAt: d.FinishedAt.UTC(),
		})
	}
	return result, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func clockToInt(c *attendance.ClockTime) *int {
	if c == nil {
		return nil
	}
	v := int(*c)
	return &v
}

func intToClock(v *int) *attendance.ClockTime {
	if v == nil {
		return nil
	}
	c := attendance.ClockTime(*v)
	return &c
}
