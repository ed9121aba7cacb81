package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"otelms-backend/internal/components/telemetry"
	"otelms-backend/internal/db"
	"otelms-backend/internal/scrapers/otelms/folio"
	"otelms-backend/internal/service"

	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	pingErr error
	run     *db.Run
	cells   map[string][]db.CellRecord
	details map[string]folio.Detail
}

func (f fakeReader) Ping(context.Context) error { return f.pingErr }

func (f fakeReader) LatestRun(context.Context) (db.Run, bool, error) {
	if f.run == nil {
		return db.Run{}, false, nil
	}
	return *f.run, true, nil
}

func (f fakeReader) Cells(_ context.Context, date string) ([]db.CellRecord, error) {
	if date == "2000-01-01" {
		return nil, errors.New("disk on fire")
	}
	return f.cells[date], nil
}

func (f fakeReader) Reservation(_ context.Context, id string) (folio.Detail, bool, error) {
	d, ok := f.details[id]
	return d, ok, nil
}

type fakeSyncer struct {
	err error
}

func (f fakeSyncer) Run(_ context.Context, date string) (service.Result, error) {
	return service.Result{Date: date, Cells: 4}, f.err
}

func today() string { return "2026-01-10" }

func reader() fakeReader {
	return fakeReader{
		run: &db.Run{ID: "run-1", TargetDate: "2026-01-10", Status: db.RunStatusOK, StartedAt: time.Unix(0, 0)},
		cells: map[string][]db.CellRecord{
			"2026-01-10": {{RoomID: "11", Date: "2026-01-10", Status: "occupied", ReservationID: "22796"}},
			"2026-01-11": {{RoomID: "11", Date: "2026-01-11", Status: "available"}},
		},
		details: map[string]folio.Detail{
			"22796": {ReservationID: "22796", Balance: 50},
		},
	}
}

func TestRoutes(t *testing.T) {
	failedRun := reader()
	failedRun.run = &db.Run{ID: "run-2", Status: db.RunStatusFailed}
	offline := reader()
	offline.pingErr = errors.New("closed")

	testCases := []struct {
		name   string
		store  fakeReader
		syncer SyncAPI
		method string
		target string
		// expectations
		status int
		body   string
	}{
		{name: "healthy", store: reader(), method: "GET", target: "/healthz", status: 200, body: `"status":"healthy"`},
		{name: "last run failed", store: failedRun, method: "GET", target: "/healthz", status: 200, body: `"status":"degraded"`},
		{name: "db offline", store: offline, method: "GET", target: "/healthz", status: 503, body: `"db_connected":false`},
		{name: "cells default to today", store: reader(), method: "GET", target: "/api/cells", status: 200, body: `"reservation_id":"22796"`},
		{name: "cells for a date", store: reader(), method: "GET", target: "/api/cells?date=2026-01-11", status: 200, body: `"status":"available"`},
		{name: "no cells", store: reader(), method: "GET", target: "/api/cells?date=2026-02-01", status: 200, body: `[]`},
		{name: "bad date", store: reader(), method: "GET", target: "/api/cells?date=10/01/2026", status: 400, body: `"bad_request"`},
		{name: "store failure", store: reader(), method: "GET", target: "/api/cells?date=2000-01-01", status: 500, body: `"internal_error"`},
		{name: "reservation", store: reader(), method: "GET", target: "/api/reservations/22796", status: 200, body: `"reservation_id":"22796"`},
		{name: "unknown reservation", store: reader(), method: "GET", target: "/api/reservations/1", status: 404, body: `"not_found"`},
		{name: "latest run", store: reader(), method: "GET", target: "/api/runs/latest", status: 200, body: `"id":"run-1"`},
		{name: "no runs", store: fakeReader{}, method: "GET", target: "/api/runs/latest", status: 404, body: `"not_found"`},
		{name: "sync disabled", store: reader(), method: "POST", target: "/api/sync", status: 404},
		{name: "sync", store: reader(), syncer: fakeSyncer{}, method: "POST", target: "/api/sync?date=2026-01-12", status: 200, body: `"date":"2026-01-12"`},
		{name: "sync overlapping", store: reader(), syncer: fakeSyncer{err: service.ErrRunning}, method: "POST", target: "/api/sync", status: 409, body: `"conflict"`},
		{name: "sync failed", store: reader(), syncer: fakeSyncer{err: errors.New("login rejected")}, method: "POST", target: "/api/sync", status: 502, body: `login rejected`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			router := NewRouter(tc.store, tc.syncer, today, telemetry.NoopAPI{})

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.target, nil))

			require.Equal(t, tc.status, rec.Code)
			require.Contains(t, rec.Body.String(), tc.body)
		})
	}
}

func TestReservationBody(t *testing.T) {
	router := NewRouter(reader(), nil, today, telemetry.NoopAPI{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/reservations/22796", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got folio.Detail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, 50.0, got.Balance)
}

type panicReader struct{ fakeReader }

func (panicReader) Ping(context.Context) error { panic("boom") }

func TestRecovery(t *testing.T) {
	tel := &telemetry.Recorder{}
	router := NewRouter(panicReader{}, nil, today, tel)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, 1, tel.Count("broken", "api: "+report_api_panic))
}
