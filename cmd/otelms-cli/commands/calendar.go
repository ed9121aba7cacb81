package commands

import (
	"fmt"
	"strconv"

	"otelms-backend/internal/scrapers/otelms/calendar"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	calendarDate string
	calendarAll  bool
	idsDate      string
)

func init() {
	calendarCmd.Flags().StringVar(&calendarDate, "date", "", "The date (YYYY-MM-DD) the calendar is centered on, today by default.")
	calendarCmd.Flags().BoolVar(&calendarAll, "all", false, "Print every cell instead of only the occupied ones.")
	idsCmd.Flags().StringVar(&idsDate, "date", "", "The date (YYYY-MM-DD) the calendar is centered on, today by default.")

	rootCmd.AddCommand(loginCmd, calendarCmd, categoriesCmd, idsCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Checks that the configured credentials are accepted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		scraper, err := startScraper(cmd.Context())
		if err != nil {
			return err
		}
		defer scraper.Close()

		err = scraper.Login(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("logged in to %s as %s\n", cfg.BaseURL(), cfg.Username)
		return nil
	},
}

var calendarCmd = &cobra.Command{
	Use:   "calendar [--date YYYY-MM-DD] [--all]",
	Short: "Prints the occupancy calendar.",
	RunE: func(cmd *cobra.Command, args []string) error {
		scraper, err := startScraper(cmd.Context())
		if err != nil {
			return err
		}
		defer scraper.Close()

		cal, err := scraper.Calendar(cmd.Context(), calendarDate)
		if err != nil {
			return err
		}

		cells := cal.Cells
		if !calendarAll {
			cells = cal.Occupied()
		}

		t := newTable()
		t.SetTitle(fmt.Sprintf("%s to %s (%d days)", cal.Range.StartDate, cal.Range.EndDate, cal.Range.TotalDays))
		t.AppendHeader(table.Row{"Date", "Room", "Category", "Status", "Reservation", "Guest"})
		for _, cell := range cells {
			reservation, guest := "", ""
			if cell.Reservation != nil {
				reservation = cell.Reservation.ID
				guest = cell.Reservation.GuestName
			}
			status := string(cell.Status)
			if cell.Availability != nil {
				status += " (" + strconv.Itoa(*cell.Availability) + " free)"
			}
			t.AppendRow(table.Row{cell.Date, cell.RoomNumber, cell.CategoryName, status, reservation, guest})
		}
		t.AppendFooter(table.Row{"", "", "", "", "occupied", fmt.Sprintf("%d / %d", len(cal.Occupied()), len(cal.Cells))})
		t.Render()
		return nil
	},
}

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "Prints the room categories and their rooms.",
	RunE: func(cmd *cobra.Command, args []string) error {
		scraper, err := startScraper(cmd.Context())
		if err != nil {
			return err
		}
		defer scraper.Close()

		categories, err := scraper.Categories(cmd.Context(), "")
		if err != nil {
			return err
		}

		t := newTable()
		t.AppendHeader(table.Row{"ID", "Category", "Rooms"})
		for _, category := range categories {
			t.AppendRow(table.Row{category.ID, category.Name, roomNumbers(category)})
		}
		t.Render()
		return nil
	},
}

func roomNumbers(category calendar.RoomCategory) string {
	out := ""
	for i, room := range category.Rooms {
		if i > 0 {
			out += ", "
		}
		out += room.Number
	}
	return out
}

var idsCmd = &cobra.Command{
	Use:   "ids [--date YYYY-MM-DD]",
	Short: "Prints the reservation ids visible on the calendar.",
	RunE: func(cmd *cobra.Command, args []string) error {
		scraper, err := startScraper(cmd.Context())
		if err != nil {
			return err
		}
		defer scraper.Close()

		ids, err := scraper.ReservationIDs(cmd.Context(), idsDate)
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	},
}
