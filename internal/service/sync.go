// Package service runs a full synchronization: login, calendar, reservation
// details, persistence and export.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"otelms-backend/internal/components/alert"
	"otelms-backend/internal/components/assert"
	"otelms-backend/internal/components/telemetry"
	"otelms-backend/internal/db"
	"otelms-backend/internal/scrapers/otelms/calendar"
	"otelms-backend/internal/scrapers/otelms/errs"
	"otelms-backend/internal/scrapers/otelms/folio"
)

const (
	report_sync_run         = "sync.run"
	report_sync_persist     = "sync.persist"
	report_sync_export      = "sync.export"
	report_sync_alert       = "sync.alert"
	report_sync_cells       = "sync.cells"
	report_sync_occupied    = "sync.occupied"
	report_sync_reservation = "sync.reservations"
)

var ErrRunning = errors.New("sync: a run is already in progress")

// ScraperAPI is the part of the otelms scraper a run drives.
//
// note: fault injection point
type ScraperAPI interface {
	Login(ctx context.Context) error
	Calendar(ctx context.Context, date string) (calendar.Calendar, error)
	ReservationDetails(ctx context.Context, reservationIDs []string) ([]folio.Detail, error)
}

type StoreAPI interface {
	BeginRun(ctx context.Context, targetDate string) (string, error)
	FinishRun(ctx context.Context, id string, result db.RunResult) error
	SaveCalendar(ctx context.Context, runID string, cal calendar.Calendar) error
	SaveReservation(ctx context.Context, detail folio.Detail) error
}

type ExportAPI interface {
	CalendarJSON(cal calendar.Calendar) (string, error)
	CalendarCSV(cal calendar.Calendar) (string, error)
	Reservation(detail folio.Detail) (string, error)
}

type Options struct {
	Scraper ScraperAPI
	// Store and Exporter are optional, a nil one skips that step.
	Store    StoreAPI
	Exporter ExportAPI
	Alerts   alert.API
}

type Syncer struct {
	scraper  ScraperAPI
	store    StoreAPI
	exporter ExportAPI
	alerts   alert.API
	tel      telemetry.API

	running sync.Mutex
}

func NewSyncer(opts Options, tel telemetry.API) *Syncer {
	assert.NotNil(opts.Scraper)
	assert.NotNil(tel)
	alerts := opts.Alerts
	if alerts == nil {
		alerts = alert.NoopAPI{}
	}
	return &Syncer{
		scraper:  opts.Scraper,
		store:    opts.Store,
		exporter: opts.Exporter,
		alerts:   alerts,
		tel:      telemetry.NewScopedAPI("service", tel),
	}
}

type Result struct {
	RunID        string   `json:"run_id,omitempty"`
	Date         string   `json:"date,omitempty"`
	Cells        int      `json:"cells"`
	Occupied     int      `json:"occupied"`
	Reservations int      `json:"reservations"`
	Files        []string `json:"files,omitempty"`
}

// Run synchronizes the calendar around date and every reservation occupying
// it. Authentication and network failures abort the run and send an alert,
// a reservation that cannot be read is skipped.
func (s *Syncer) Run(ctx context.Context, date string) (result Result, err error) {
	if !s.running.TryLock() {
		return Result{}, ErrRunning
	}
	defer s.running.Unlock()

	result.Date = date
	if s.store != nil {
		result.RunID, err = s.store.BeginRun(ctx, date)
		if err != nil {
			s.tel.ReportBroken(report_sync_persist, err)
			return result, err
		}
		defer func() {
			finishErr := s.store.FinishRun(context.WithoutCancel(ctx), result.RunID, db.RunResult{
				Cells:        result.Cells,
				Reservations: result.Reservations,
				Err:          err,
			})
			if finishErr != nil {
				s.tel.ReportBroken(report_sync_persist, finishErr)
			}
		}()
	}

	defer func() {
		if err != nil {
			s.tel.ReportBroken(report_sync_run, date, err)
			s.alert(ctx, date, err)
		}
	}()

	err = s.scraper.Login(ctx)
	if err != nil {
		return result, fmt.Errorf("sync: login: %w", err)
	}

	cal, err := s.scraper.Calendar(ctx, date)
	if err != nil {
		return result, fmt.Errorf("sync: calendar: %w", err)
	}
	occupied := cal.Occupied()
	result.Cells = len(cal.Cells)
	result.Occupied = len(occupied)
	s.tel.ReportCount(report_sync_cells, int64(result.Cells))
	s.tel.ReportCount(report_sync_occupied, int64(result.Occupied))

	if s.store != nil {
		err = s.store.SaveCalendar(ctx, result.RunID, cal)
		if err != nil {
			return result, fmt.Errorf("sync: save calendar: %w", err)
		}
	}
	s.export(func(e ExportAPI) (string, error) { return e.CalendarJSON(cal) }, &result)
	s.export(func(e ExportAPI) (string, error) { return e.CalendarCSV(cal) }, &result)

	details, detailsErr := s.scraper.ReservationDetails(ctx, cal.ReservationIDs())
	// whatever was gathered before a fatal error is still worth keeping
	for _, detail := range details {
		if detail.Empty() {
			// never overwrite a stored reservation with nothing
			s.tel.ReportWarning(report_sync_persist, "no section found, not saved", detail.ReservationID)
			continue
		}
		if s.store != nil {
			err = s.store.SaveReservation(ctx, detail)
			if err != nil {
				return result, fmt.Errorf("sync: save reservation: %w", err)
			}
		}
		s.export(func(e ExportAPI) (string, error) { return e.Reservation(detail) }, &result)
		result.Reservations++
	}
	s.tel.ReportCount(report_sync_reservation, int64(result.Reservations))
	if detailsErr != nil {
		err = fmt.Errorf("sync: reservation details: %w", detailsErr)
		return result, err
	}

	s.tel.ReportDebug("sync finished", date, result.Cells, result.Occupied, result.Reservations)
	return result, nil
}

func (s *Syncer) export(write func(ExportAPI) (string, error), result *Result) {
	if s.exporter == nil {
		return
	}
	path, err := write(s.exporter)
	if err != nil {
		s.tel.ReportWarning(report_sync_export, err)
		return
	}
	result.Files = append(result.Files, path)
}

// alert only fires for failures staff can act on: credentials and reachability.
func (s *Syncer) alert(ctx context.Context, date string, err error) {
	if !errs.Fatal(err) {
		return
	}
	subject := "otelms sync failed"
	if errors.Is(err, errs.ErrAuthentication) {
		subject = "otelms sync failed: login rejected"
	}
	sendErr := s.alerts.Send(context.WithoutCancel(ctx), subject, fmt.Sprintf("target date: %s\n\n%v", date, err))
	if sendErr != nil {
		s.tel.ReportWarning(report_sync_alert, sendErr)
	}
}
