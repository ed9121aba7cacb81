package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"otelms-backend/internal/components/chrono"
	"otelms-backend/internal/components/telemetry"
	"otelms-backend/internal/db"
	"otelms-backend/internal/export"
	"otelms-backend/internal/scrapers/otelms/calendar"
	"otelms-backend/internal/scrapers/otelms/errs"
	"otelms-backend/internal/scrapers/otelms/folio"

	"github.com/stretchr/testify/require"
)

type fakeScraper struct {
	loginErr    error
	calendarErr error
	// details returned regardless of the ids asked for
	details    []folio.Detail
	detailsErr error

	askedIDs []string
}

func (f *fakeScraper) Login(context.Context) error { return f.loginErr }

func (f *fakeScraper) Calendar(context.Context, string) (calendar.Calendar, error) {
	if f.calendarErr != nil {
		return calendar.Calendar{}, f.calendarErr
	}
	return testCalendar(), nil
}

func (f *fakeScraper) ReservationDetails(_ context.Context, ids []string) ([]folio.Detail, error) {
	f.askedIDs = ids
	return f.details, f.detailsErr
}

type fakeAlerts struct {
	subjects []string
}

func (f *fakeAlerts) Send(_ context.Context, subject, _ string) error {
	f.subjects = append(f.subjects, subject)
	return nil
}

func testCalendar() calendar.Calendar {
	cell := func(room, date, reservation string) calendar.Cell {
		c := calendar.Cell{
			RoomID: room, RoomNumber: "1" + room, CategoryID: "1", CategoryName: "Doble",
			DayID: date, Date: date, Status: calendar.StatusAvailable,
		}
		if reservation != "" {
			c.Status = calendar.StatusOccupied
			c.Reservation = &calendar.ReservationSummary{ID: reservation, GuestName: "Guest " + reservation}
		}
		return c
	}
	return calendar.Calendar{
		Categories: []calendar.RoomCategory{{
			ID: "1", Name: "Doble",
			Rooms: []calendar.Room{{ID: "01", Number: "101", CategoryID: "1"}, {ID: "02", Number: "102", CategoryID: "1"}},
		}},
		Cells: []calendar.Cell{
			cell("01", "2026-01-10", "22796"),
			cell("01", "2026-01-11", "22796"),
			cell("02", "2026-01-10", "22801"),
			cell("02", "2026-01-11", ""),
		},
		Range:       calendar.DateRange{StartDate: "2026-01-10", EndDate: "2026-01-11", TotalDays: 2},
		ExtractedAt: time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC),
	}
}

func detail(id string) folio.Detail {
	return folio.Assemble(id, folio.Documents{
		Folio: `<input name="id_reservation" value="` + id + `">`,
	}, telemetry.NoopAPI{})
}

func openStore(t *testing.T) *db.Store {
	clock := chrono.Fixed{At: time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)}
	store, err := db.Open(context.Background(), ":memory:", clock)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRun(t *testing.T) {
	testCases := []struct {
		name    string
		scraper *fakeScraper
		// expectations
		err          error
		reservations int
		files        int
		alerts       int
		runStatus    string
	}{
		{
			name:         "everything synced",
			scraper:      &fakeScraper{details: []folio.Detail{detail("22796"), detail("22801")}},
			reservations: 2,
			files:        4,
			runStatus:    db.RunStatusOK,
		},
		{
			name:         "unreadable reservation is skipped by the scraper",
			scraper:      &fakeScraper{details: []folio.Detail{detail("22796")}},
			reservations: 1,
			files:        3,
			runStatus:    db.RunStatusOK,
		},
		{
			name: "empty detail is not saved",
			scraper: &fakeScraper{details: []folio.Detail{
				detail("22796"),
				folio.Assemble("22801", folio.Documents{}, telemetry.NoopAPI{}),
			}},
			reservations: 1,
			files:        3,
			runStatus:    db.RunStatusOK,
		},
		{
			name:      "login rejected",
			scraper:   &fakeScraper{loginErr: errs.Authentication("wrong password")},
			err:       errs.ErrAuthentication,
			alerts:    1,
			runStatus: db.RunStatusFailed,
		},
		{
			name:      "calendar unparseable",
			scraper:   &fakeScraper{calendarErr: errs.Parsing(nil, "no calendar table")},
			err:       errs.ErrParsing,
			runStatus: db.RunStatusFailed,
		},
		{
			name: "session lost halfway",
			scraper: &fakeScraper{
				details:    []folio.Detail{detail("22796")},
				detailsErr: errs.Network(nil, "connection reset"),
			},
			err:          errs.ErrNetwork,
			reservations: 1,
			files:        3,
			alerts:       1,
			runStatus:    db.RunStatusFailed,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store := openStore(t)
			alerts := &fakeAlerts{}
			tel := &telemetry.Recorder{}
			syncer := NewSyncer(Options{
				Scraper:  tc.scraper,
				Store:    store,
				Exporter: export.New(t.TempDir()),
				Alerts:   alerts,
			}, tel)

			result, err := syncer.Run(context.Background(), "2026-01-10")
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, tc.reservations, result.Reservations)
			require.Len(t, result.Files, tc.files)
			require.Len(t, alerts.subjects, tc.alerts)

			run, ok, err := store.LatestRun(context.Background())
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, result.RunID, run.ID)
			require.Equal(t, tc.runStatus, run.Status)
			require.Equal(t, int64(tc.reservations), run.Reservations)
		})
	}
}

func TestRunPersists(t *testing.T) {
	store := openStore(t)
	scraper := &fakeScraper{details: []folio.Detail{detail("22796"), detail("22801")}}
	syncer := NewSyncer(Options{Scraper: scraper, Store: store}, telemetry.NoopAPI{})

	result, err := syncer.Run(context.Background(), "2026-01-10")
	require.NoError(t, err)
	require.Equal(t, 4, result.Cells)
	require.Equal(t, 3, result.Occupied)
	require.Empty(t, result.Files)
	require.ElementsMatch(t, []string{"22796", "22801"}, scraper.askedIDs)

	cells, err := store.Cells(context.Background(), "2026-01-10")
	require.NoError(t, err)
	require.Len(t, cells, 2)

	got, ok, err := store.Reservation(context.Background(), "22801")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "22801", got.ReservationID)
}

func TestRunKeepsStoredReservation(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	_, err := NewSyncer(Options{
		Scraper: &fakeScraper{details: []folio.Detail{detail("22796")}},
		Store:   store,
	}, telemetry.NoopAPI{}).Run(ctx, "2026-01-10")
	require.NoError(t, err)

	tel := &telemetry.Recorder{}
	result, err := NewSyncer(Options{
		Scraper: &fakeScraper{details: []folio.Detail{folio.Assemble("22796", folio.Documents{}, telemetry.NoopAPI{})}},
		Store:   store,
	}, tel).Run(ctx, "2026-01-11")
	require.NoError(t, err)
	require.Zero(t, result.Reservations)
	require.Equal(t, 1, tel.Count("warning", "service: "+report_sync_persist))

	got, ok, err := store.Reservation(ctx, "22796")
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, got.Empty())
}

type blockingScraper struct {
	fakeScraper
	entered chan struct{}
	release chan struct{}
}

func (b *blockingScraper) Login(context.Context) error {
	close(b.entered)
	<-b.release
	return nil
}

func TestRunRejectsOverlap(t *testing.T) {
	scraper := &blockingScraper{entered: make(chan struct{}), release: make(chan struct{})}
	syncer := NewSyncer(Options{Scraper: scraper}, telemetry.NoopAPI{})

	done := make(chan error)
	go func() {
		_, err := syncer.Run(context.Background(), "2026-01-10")
		done <- err
	}()
	<-scraper.entered

	_, err := syncer.Run(context.Background(), "2026-01-10")
	require.True(t, errors.Is(err, ErrRunning))

	close(scraper.release)
	require.NoError(t, <-done)
}
