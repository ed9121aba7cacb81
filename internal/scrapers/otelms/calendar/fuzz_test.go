package calendar

import (
	"testing"
	"time"

	"otelms-backend/internal/components/chrono"
	"otelms-backend/internal/components/telemetry"
)

func FuzzParse(f *testing.F) {
	f.Add(classifiedFixture().html())
	f.Add(fixture{months: []fixtureMonth{{title: "Enero 2026", days: days(1, 3)}}, dayIDs: 3, categories: singleRoom}.html())
	f.Add(`<html><body><form id="login"></form></body></html>`)
	f.Add("")

	clock := chrono.Fixed{At: time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)}
	f.Fuzz(func(t *testing.T, markup string) {
		cal, err := Parse(markup, clock, telemetry.NoopAPI{})
		if err != nil {
			return
		}
		for _, cell := range cal.Cells {
			switch cell.Status {
			case StatusAvailable, StatusLocked, StatusOccupied:
			default:
				t.Fatalf("cell %s/%s has status %q", cell.RoomID, cell.DayID, cell.Status)
			}
		}
		seen := map[string]bool{}
		for _, id := range cal.ReservationIDs() {
			if seen[id] {
				t.Fatalf("reservation %s listed twice", id)
			}
			seen[id] = true
		}
	})
}
