package db

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries holds every statement the store runs, written with ? placeholders
// and rebound for the dialect.
type Queries struct {
	db      DBTX
	dialect Dialect
}

func New(db DBTX, dialect Dialect) *Queries {
	return &Queries{db: db, dialect: dialect}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx, dialect: q.dialect}
}

func (q *Queries) exec(ctx context.Context, query string, args ...any) error {
	_, err := q.db.ExecContext(ctx, q.dialect.Rebind(query), args...)
	return err
}

func (q *Queries) Migrate(ctx context.Context) error {
	for _, stmt := range statements() {
		_, err := q.db.ExecContext(ctx, stmt)
		if err != nil {
			return err
		}
	}
	return nil
}

const upsertCategory = `insert into room_categories (id, name) values (?, ?)
on conflict (id) do update set name = excluded.name`

func (q *Queries) UpsertCategory(ctx context.Context, id, name string) error {
	return q.exec(ctx, upsertCategory, id, name)
}

const upsertRoom = `insert into rooms (id, number, category_id) values (?, ?, ?)
on conflict (id) do update set number = excluded.number, category_id = excluded.category_id`

func (q *Queries) UpsertRoom(ctx context.Context, id, number, categoryID string) error {
	return q.exec(ctx, upsertRoom, id, number, categoryID)
}

type UpsertCellParams struct {
	RoomID        string
	Date          string
	DayID         string
	CategoryID    string
	Status        string
	ReservationID sql.NullString
	GuestName     sql.NullString
	Availability  sql.NullInt64
	ExtractedAt   int64
	RunID         sql.NullString
}

const upsertCell = `insert into calendar_cells (
	room_id, date, day_id, category_id, status, reservation_id, guest_name, availability, extracted_at, run_id
) values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
on conflict (room_id, date) do update set
	day_id = excluded.day_id,
	category_id = excluded.category_id,
	status = excluded.status,
	reservation_id = excluded.reservation_id,
	guest_name = excluded.guest_name,
	availability = excluded.availability,
	extracted_at = excluded.extracted_at,
	run_id = excluded.run_id`

func (q *Queries) UpsertCell(ctx context.Context, arg UpsertCellParams) error {
	return q.exec(
		ctx, upsertCell,
		arg.RoomID, arg.Date, arg.DayID, arg.CategoryID, arg.Status,
		arg.ReservationID, arg.GuestName, arg.Availability, arg.ExtractedAt, arg.RunID,
	)
}

type CellRow struct {
	RoomID        string
	RoomNumber    string
	CategoryID    string
	CategoryName  string
	Date          string
	DayID         string
	Status        string
	ReservationID sql.NullString
	GuestName     sql.NullString
	Availability  sql.NullInt64
	ExtractedAt   int64
}

const getCellsByDate = `select
	c.room_id, coalesce(r.number, c.room_id), c.category_id, coalesce(k.name, ''),
	c.date, c.day_id, c.status, c.reservation_id, c.guest_name, c.availability, c.extracted_at
from calendar_cells c
left join rooms r on r.id = c.room_id
left join room_categories k on k.id = c.category_id
where c.date = ?
order by c.category_id, c.room_id`

func (q *Queries) GetCellsByDate(ctx context.Context, date string) ([]CellRow, error) {
	rows, err := q.db.QueryContext(ctx, q.dialect.Rebind(getCellsByDate), date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []CellRow{}
	for rows.Next() {
		var r CellRow
		err := rows.Scan(
			&r.RoomID, &r.RoomNumber, &r.CategoryID, &r.CategoryName,
			&r.Date, &r.DayID, &r.Status, &r.ReservationID, &r.GuestName, &r.Availability, &r.ExtractedAt,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type UpsertReservationParams struct {
	ID        string
	Status    string
	GuestName string
	CheckIn   string
	CheckOut  string
	Balance   float64
	Detail    string
	UpdatedAt int64
}

const upsertReservation = `insert into reservations (
	id, status, guest_name, check_in, check_out, balance, detail, updated_at
) values (?, ?, ?, ?, ?, ?, ?, ?)
on conflict (id) do update set
	status = excluded.status,
	guest_name = excluded.guest_name,
	check_in = excluded.check_in,
	check_out = excluded.check_out,
	balance = excluded.balance,
	detail = excluded.detail,
	updated_at = excluded.updated_at`

func (q *Queries) UpsertReservation(ctx context.Context, arg UpsertReservationParams) error {
	return q.exec(
		ctx, upsertReservation,
		arg.ID, arg.Status, arg.GuestName, arg.CheckIn, arg.CheckOut, arg.Balance, arg.Detail, arg.UpdatedAt,
	)
}

const getReservationDetail = `select detail from reservations where id = ?`

func (q *Queries) GetReservationDetail(ctx context.Context, id string) (string, error) {
	var detail string
	err := q.db.QueryRowContext(ctx, q.dialect.Rebind(getReservationDetail), id).Scan(&detail)
	return detail, err
}

const createRun = `insert into sync_runs (id, target_date, started_at, status) values (?, ?, ?, ?)`

func (q *Queries) CreateRun(ctx context.Context, id, targetDate string, startedAt int64) error {
	return q.exec(ctx, createRun, id, targetDate, startedAt, RunStatusRunning)
}

type FinishRunParams struct {
	ID           string
	FinishedAt   int64
	Status       string
	Error        sql.NullString
	Cells        int64
	Reservations int64
}

const finishRun = `update sync_runs
set finished_at = ?, status = ?, error = ?, cells = ?, reservations = ?
where id = ?`

func (q *Queries) FinishRun(ctx context.Context, arg FinishRunParams) error {
	return q.exec(ctx, finishRun, arg.FinishedAt, arg.Status, arg.Error, arg.Cells, arg.Reservations, arg.ID)
}

type RunRow struct {
	ID           string
	TargetDate   string
	StartedAt    int64
	FinishedAt   sql.NullInt64
	Status       string
	Error        sql.NullString
	Cells        int64
	Reservations int64
}

const getLatestRun = `select id, target_date, started_at, finished_at, status, error, cells, reservations
from sync_runs
order by started_at desc
limit 1`

func (q *Queries) GetLatestRun(ctx context.Context) (RunRow, error) {
	var r RunRow
	err := q.db.QueryRowContext(ctx, q.dialect.Rebind(getLatestRun)).Scan(
		&r.ID, &r.TargetDate, &r.StartedAt, &r.FinishedAt, &r.Status, &r.Error, &r.Cells, &r.Reservations,
	)
	return r, err
}
