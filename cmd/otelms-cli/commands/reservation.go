package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"otelms-backend/internal/scrapers/otelms/folio"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	reservationJSON bool
	modalDate       string
)

func init() {
	reservationCmd.Flags().BoolVar(&reservationJSON, "json", false, "Print the whole detail as json.")
	modalCmd.Flags().StringVar(&modalDate, "date", "", "A date (YYYY-MM-DD) on which the reservation is visible in the calendar.")

	rootCmd.AddCommand(reservationCmd, modalCmd)
}

func printJSON(value any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(value)
}

var reservationCmd = &cobra.Command{
	Use:   "reservation <id> [--json]",
	Short: "Prints the folio, guest card and accommodation of a reservation.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scraper, err := startScraper(cmd.Context())
		if err != nil {
			return err
		}
		defer scraper.Close()

		detail, err := scraper.ReservationDetail(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if reservationJSON {
			return printJSON(detail)
		}
		printDetail(detail)
		return nil
	},
}

func printDetail(d folio.Detail) {
	guest := d.Guest.Name
	if guest == "" {
		guest = d.BasicInfo.ClientName
	}

	t := newTable()
	t.SetTitle("Reservation " + d.ReservationID)
	t.AppendRows([]table.Row{
		{"Status", d.Status.String()},
		{"Guest", guest},
		{"Phone", d.BasicInfo.Phone},
		{"Source", d.BasicInfo.Source},
		{"Check-in", d.Accommodation.CheckIn},
		{"Check-out", d.Accommodation.CheckOut},
		{"Room", strings.TrimSpace(d.Accommodation.RoomNumber + " " + d.Accommodation.RoomType)},
		{"Residents", len(d.Residents)},
		{"Services", amount(d.ServicesTotal)},
		{"Payments", amount(d.PaymentsTotal)},
		{"Balance", amount(d.Balance)},
	})
	if len(d.Missing) > 0 {
		t.AppendFooter(table.Row{"missing", strings.Join(d.Missing, ", ")})
	}
	t.Render()

	if len(d.Services) > 0 {
		services := newTable()
		services.SetTitle("Services")
		services.AppendHeader(table.Row{"Date", "Title", "Qty", "Price", "Total"})
		for _, s := range d.Services {
			services.AppendRow(table.Row{s.Date, s.Title, s.Quantity, amount(s.Price), amount(s.Total)})
		}
		services.Render()
	}
	if len(d.Payments) > 0 {
		payments := newTable()
		payments.SetTitle("Payments")
		payments.AppendHeader(table.Row{"Date", "Method", "Description", "Amount"})
		for _, p := range d.Payments {
			payments.AppendRow(table.Row{p.Date, p.Method, p.Description, amount(p.Amount)})
		}
		payments.Render()
	}
}

var modalCmd = &cobra.Command{
	Use:   "modal <id> [--date YYYY-MM-DD]",
	Short: "Prints the calendar's quick-view dialog of a reservation.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scraper, err := startScraper(cmd.Context())
		if err != nil {
			return err
		}
		defer scraper.Close()

		summary, err := scraper.ReservationModal(cmd.Context(), args[0], modalDate)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "reservation %s: %s\n", summary.ReservationID, summary.Status)
		return printJSON(summary)
	},
}
