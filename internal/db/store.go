// Package db persists calendar snapshots, reservation details and the
// history of sync runs in sqlite, postgres or a remote libsql database.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"otelms-backend/internal/components/assert"
	"otelms-backend/internal/components/chrono"
	"otelms-backend/internal/scrapers/otelms/calendar"
	"otelms-backend/internal/scrapers/otelms/folio"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// DialectOf picks the dialect from the shape of a DSN, anything that is not
// a postgres or libsql url is a sqlite file path.
func DialectOf(dsn string) Dialect {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return DialectPostgres
	case strings.HasPrefix(dsn, "libsql://"), strings.HasPrefix(dsn, "wss://"):
		return DialectLibsql
	}
	return DialectSQLite
}

func openSQLite(path string) (*sql.DB, error) {
	if path != ":memory:" {
		err := os.MkdirAll(filepath.Dir(path), 0777)
		if err != nil {
			return nil, err
		}
	}
	database, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// see this stackoverflow post for information on why the following
	// lines exist: https://stackoverflow.com/questions/35804884/sqlite-concurrent-writing-performance
	database.SetMaxOpenConns(1)
	if path != ":memory:" {
		_, err = database.Exec("PRAGMA journal_mode=WAL")
		if err != nil {
			database.Close()
			return nil, err
		}
	}
	return database, nil
}

// Open connects to dsn and applies the schema.
func Open(ctx context.Context, dsn string, clock chrono.API) (*Store, error) {
	dialect := DialectOf(dsn)

	var database *sql.DB
	var err error
	switch dialect {
	case DialectSQLite:
		database, err = openSQLite(dsn)
	default:
		database, err = sql.Open(dialect.DriverName(), dsn)
		if err == nil {
			database.SetConnMaxLifetime(5 * time.Minute)
			database.SetMaxOpenConns(10)
			database.SetMaxIdleConns(5)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}

	store := NewStore(database, dialect, clock)
	err = store.Migrate(ctx)
	if err != nil {
		database.Close()
		return nil, err
	}
	return store, nil
}

type Store struct {
	db     *sql.DB
	qry    *Queries
	makeTx MakeTx
	clock  chrono.API
}

func NewStore(database *sql.DB, dialect Dialect, clock chrono.API) *Store {
	assert.NotNil(database)
	assert.NotNil(clock)
	return &Store{
		db:     database,
		qry:    New(database, dialect),
		makeTx: NewMakeTx(database, dialect),
		clock:  clock,
	}
}

func (s *Store) Migrate(ctx context.Context) error {
	err := s.qry.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// SaveCalendar upserts the categories, rooms and cells of cal in one
// transaction. runID may be empty.
func (s *Store) SaveCalendar(ctx context.Context, runID string, cal calendar.Calendar) error {
	tx, discard, commit, err := s.makeTx(ctx)
	if err != nil {
		return fmt.Errorf("save calendar: make tx: %w", err)
	}
	defer discard()

	for _, category := range cal.Categories {
		err = tx.UpsertCategory(ctx, category.ID, category.Name)
		if err != nil {
			return fmt.Errorf("save calendar: category %s: %w", category.ID, err)
		}
		for _, room := range category.Rooms {
			err = tx.UpsertRoom(ctx, room.ID, room.Number, room.CategoryID)
			if err != nil {
				return fmt.Errorf("save calendar: room %s: %w", room.ID, err)
			}
		}
	}

	extractedAt := cal.ExtractedAt.Unix()
	for _, cell := range cal.Cells {
		params := UpsertCellParams{
			RoomID:      cell.RoomID,
			Date:        cell.Date,
			DayID:       cell.DayID,
			CategoryID:  cell.CategoryID,
			Status:      string(cell.Status),
			ExtractedAt: extractedAt,
			RunID:       nullString(runID),
		}
		if cell.Reservation != nil {
			params.ReservationID = nullString(cell.Reservation.ID)
			params.GuestName = nullString(cell.Reservation.GuestName)
		}
		if cell.Availability != nil {
			params.Availability = sql.NullInt64{Int64: int64(*cell.Availability), Valid: true}
		}
		err = tx.UpsertCell(ctx, params)
		if err != nil {
			return fmt.Errorf("save calendar: cell %s/%s: %w", cell.RoomID, cell.Date, err)
		}
	}

	return commit()
}

// SaveReservation stores the whole detail as json next to the columns the
// read api filters on.
func (s *Store) SaveReservation(ctx context.Context, detail folio.Detail) error {
	blob, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("save reservation %s: %w", detail.ReservationID, err)
	}
	guest := detail.Guest.Name
	if guest == "" {
		guest = detail.BasicInfo.ClientName
	}
	err = s.qry.UpsertReservation(ctx, UpsertReservationParams{
		ID:        detail.ReservationID,
		Status:    detail.Status.String(),
		GuestName: guest,
		CheckIn:   detail.Accommodation.CheckIn,
		CheckOut:  detail.Accommodation.CheckOut,
		Balance:   detail.Balance,
		Detail:    string(blob),
		UpdatedAt: s.clock.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("save reservation %s: %w", detail.ReservationID, err)
	}
	return nil
}

// CellRecord is a stored calendar cell.
type CellRecord struct {
	RoomID        string    `json:"room_id"`
	RoomNumber    string    `json:"room_number"`
	CategoryID    string    `json:"category_id"`
	CategoryName  string    `json:"category_name"`
	Date          string    `json:"date"`
	DayID         string    `json:"day_id"`
	Status        string    `json:"status"`
	ReservationID string    `json:"reservation_id,omitempty"`
	GuestName     string    `json:"guest_name,omitempty"`
	Availability  *int      `json:"availability,omitempty"`
	ExtractedAt   time.Time `json:"extracted_at"`
}

func (s *Store) Cells(ctx context.Context, date string) ([]CellRecord, error) {
	rows, err := s.qry.GetCellsByDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("cells on %s: %w", date, err)
	}
	out := make([]CellRecord, len(rows))
	for i, r := range rows {
		out[i] = CellRecord{
			RoomID:        r.RoomID,
			RoomNumber:    r.RoomNumber,
			CategoryID:    r.CategoryID,
			CategoryName:  r.CategoryName,
			Date:          r.Date,
			DayID:         r.DayID,
			Status:        r.Status,
			ReservationID: r.ReservationID.String,
			GuestName:     r.GuestName.String,
			ExtractedAt:   time.Unix(r.ExtractedAt, 0).In(s.clock.Location()),
		}
		if r.Availability.Valid {
			n := int(r.Availability.Int64)
			out[i].Availability = &n
		}
	}
	return out, nil
}

// Reservation returns the last saved detail of a reservation, ok is false
// when it was never saved.
func (s *Store) Reservation(ctx context.Context, id string) (detail folio.Detail, ok bool, err error) {
	blob, err := s.qry.GetReservationDetail(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return folio.Detail{}, false, nil
	}
	if err != nil {
		return folio.Detail{}, false, fmt.Errorf("reservation %s: %w", id, err)
	}
	err = json.Unmarshal([]byte(blob), &detail)
	if err != nil {
		return folio.Detail{}, false, fmt.Errorf("reservation %s: decode: %w", id, err)
	}
	return detail, true, nil
}

type Run struct {
	ID           string     `json:"id"`
	TargetDate   string     `json:"target_date"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Status       string     `json:"status"`
	Error        string     `json:"error,omitempty"`
	Cells        int64      `json:"cells"`
	Reservations int64      `json:"reservations"`
}

// RunResult is what a finished sync run reports back.
type RunResult struct {
	Cells        int
	Reservations int
	Err          error
}

func (s *Store) BeginRun(ctx context.Context, targetDate string) (string, error) {
	id := uuid.NewString()
	err := s.qry.CreateRun(ctx, id, targetDate, s.clock.Now().Unix())
	if err != nil {
		return "", fmt.Errorf("begin run: %w", err)
	}
	return id, nil
}

func (s *Store) FinishRun(ctx context.Context, id string, result RunResult) error {
	params := FinishRunParams{
		ID:           id,
		FinishedAt:   s.clock.Now().Unix(),
		Status:       RunStatusOK,
		Cells:        int64(result.Cells),
		Reservations: int64(result.Reservations),
	}
	if result.Err != nil {
		params.Status = RunStatusFailed
		params.Error = nullString(result.Err.Error())
	}
	err := s.qry.FinishRun(ctx, params)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	return nil
}

// LatestRun is the most recently started sync run, ok is false before the
// first one.
func (s *Store) LatestRun(ctx context.Context) (run Run, ok bool, err error) {
	row, err := s.qry.GetLatestRun(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, false, nil
	}
	if err != nil {
		return Run{}, false, fmt.Errorf("latest run: %w", err)
	}
	run = Run{
		ID:           row.ID,
		TargetDate:   row.TargetDate,
		StartedAt:    time.Unix(row.StartedAt, 0).In(s.clock.Location()),
		Status:       row.Status,
		Error:        row.Error.String,
		Cells:        row.Cells,
		Reservations: row.Reservations,
	}
	if row.FinishedAt.Valid {
		finished := time.Unix(row.FinishedAt.Int64, 0).In(s.clock.Location())
		run.FinishedAt = &finished
	}
	return run, true, nil
}
