// Package api serves the synchronized calendar and reservations over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime/debug"
	"time"

	"otelms-backend/internal/components/assert"
	"otelms-backend/internal/components/telemetry"
	"otelms-backend/internal/db"
	"otelms-backend/internal/scrapers/otelms/folio"
	"otelms-backend/internal/service"

	"github.com/gorilla/mux"
)

const (
	report_api_request = "api.request"
	report_api_panic   = "api.panic"
	report_api_store   = "api.store"
)

const dateLayout = "2006-01-02"

// Reader is the read side of the store.
//
// note: fault injection point
type Reader interface {
	Ping(ctx context.Context) error
	LatestRun(ctx context.Context) (db.Run, bool, error)
	Cells(ctx context.Context, date string) ([]db.CellRecord, error)
	Reservation(ctx context.Context, id string) (folio.Detail, bool, error)
}

// SyncAPI triggers a sync run on demand.
type SyncAPI interface {
	Run(ctx context.Context, date string) (service.Result, error)
}

type server struct {
	store  Reader
	syncer SyncAPI
	today  func() string
	tel    telemetry.API
}

// NewRouter builds the routes. syncer may be nil, in which case
// POST /api/sync is not registered.
func NewRouter(store Reader, syncer SyncAPI, today func() string, tel telemetry.API) *mux.Router {
	assert.NotNil(store)
	assert.NotNil(today)
	assert.NotNil(tel)

	s := server{
		store:  store,
		syncer: syncer,
		today:  today,
		tel:    telemetry.NewScopedAPI("api", tel),
	}

	r := mux.NewRouter()
	r.Use(s.logging)
	r.Use(s.recovery)

	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/cells", s.cells).Methods(http.MethodGet)
	api.HandleFunc("/reservations/{id}", s.reservation).Methods(http.MethodGet)
	api.HandleFunc("/runs/latest", s.latestRun).Methods(http.MethodGet)
	if syncer != nil {
		api.HandleFunc("/sync", s.sync).Methods(http.MethodPost)
	}
	return r
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (s server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		s.tel.ReportDebug(report_api_request, r.Method, r.URL.Path, wrapped.status, time.Since(start))
	})
}

func (s server) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				s.tel.ReportBroken(report_api_panic, v, string(debug.Stack()))
				writeError(w, http.StatusInternalServerError, "internal_error", "an unexpected error occurred")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type healthResponse struct {
	Status      string  `json:"status"`
	DBConnected bool    `json:"db_connected"`
	LatestRun   *db.Run `json:"latest_run,omitempty"`
}

// health is degraded when the store is unreachable or the last run failed.
func (s server) health(w http.ResponseWriter, r *http.Request) {
	res := healthResponse{Status: "healthy", DBConnected: s.store.Ping(r.Context()) == nil}
	if !res.DBConnected {
		res.Status = "degraded"
		writeJSON(w, http.StatusServiceUnavailable, res)
		return
	}

	run, ok, err := s.store.LatestRun(r.Context())
	if err != nil {
		s.tel.ReportWarning(report_api_store, err)
	}
	if ok {
		res.LatestRun = &run
		if run.Status == db.RunStatusFailed {
			res.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, res)
}

func (s server) cells(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = s.today()
	}
	if _, err := time.Parse(dateLayout, date); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "date must be YYYY-MM-DD")
		return
	}

	cells, err := s.store.Cells(r.Context(), date)
	if err != nil {
		s.tel.ReportBroken(report_api_store, err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to read cells")
		return
	}
	if cells == nil {
		cells = []db.CellRecord{}
	}
	writeJSON(w, http.StatusOK, cells)
}

func (s server) reservation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	detail, ok, err := s.store.Reservation(r.Context(), id)
	if err != nil {
		s.tel.ReportBroken(report_api_store, err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to read reservation")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "reservation "+id+" was never synced")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s server) latestRun(w http.ResponseWriter, r *http.Request) {
	run, ok, err := s.store.LatestRun(r.Context())
	if err != nil {
		s.tel.ReportBroken(report_api_store, err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to read runs")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "no sync has run yet")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s server) sync(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = s.today()
	}
	if _, err := time.Parse(dateLayout, date); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "date must be YYYY-MM-DD")
		return
	}

	result, err := s.syncer.Run(r.Context(), date)
	if errors.Is(err, service.ErrRunning) {
		writeError(w, http.StatusConflict, "conflict", err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, "sync_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}
