package folio

import (
	"context"

	"otelms-backend/pkg/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

type Resident struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	BirthDate string `json:"birth_date,omitempty"`
}

type Service struct {
	Date        string  `json:"date"`
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	LegalEntity string  `json:"legal_entity,omitempty"`
	Description string  `json:"description,omitempty"`
	Quantity    float64 `json:"quantity"`
	Price       float64 `json:"price"`
	Total       float64 `json:"total"`
}

type Payment struct {
	Date           string  `json:"date"`
	CreatedAt      string  `json:"created_at,omitempty"`
	Number         string  `json:"number,omitempty"`
	LegalEntity    string  `json:"legal_entity,omitempty"`
	Description    string  `json:"description,omitempty"`
	Type           string  `json:"type,omitempty"`
	Amount         float64 `json:"amount"`
	Method         string  `json:"method,omitempty"`
	VposCardNumber string  `json:"vpos_card_number,omitempty"`
	VposStatus     string  `json:"vpos_status,omitempty"`
	FiscalCheck    string  `json:"fiscal_check,omitempty"`
}

type Card struct {
	Number     string `json:"number"`
	Holder     string `json:"holder,omitempty"`
	Expiration string `json:"expiration,omitempty"`
}

type Car struct {
	Brand string `json:"brand"`
	Color string `json:"color,omitempty"`
	Plate string `json:"plate,omitempty"`
}

type Note struct {
	Date string `json:"date"`
	User string `json:"user,omitempty"`
	Note string `json:"note"`
}

type DailyTariff struct {
	Date        string  `json:"date"`
	Description string  `json:"description,omitempty"`
	Price       float64 `json:"price"`
}

type ChangeLog struct {
	Date        string `json:"date"`
	Number      string `json:"number,omitempty"`
	User        string `json:"user,omitempty"`
	Type        string `json:"type,omitempty"`
	Action      string `json:"action,omitempty"`
	Quantity    string `json:"quantity,omitempty"`
	Description string `json:"description,omitempty"`
}

// table describes where a folio table lives and how its rows look.
type table[T any] struct {
	keywords []string
	// fallback selector when no panel heading matches
	fallback string
	minCols  int
	keyCol   int
	row      func(cells []*goquery.Selection) T
}

func (t table[T]) parse(doc *goquery.Selection) ([]T, bool) {
	out := []T{}
	tbl := firstTable(locate(doc, t.fallback, t.keywords...))
	if tbl.Length() == 0 {
		return out, false
	}
	for _, cells := range rowCells(tbl, t.minCols, t.keyCol) {
		out = append(out, t.row(cells))
	}
	return out, true
}

var residentsTable = table[Resident]{
	keywords: []string{"Huéspedes", "Residentes"},
	fallback: "#anchors_info_residents, form#guest_template_print table.add-line-table",
	minCols:  4,
	keyCol:   0,
	row: func(cells []*goquery.Selection) Resident {
		r := Resident{
			Name:      text(cells, 0),
			Email:     text(cells, 2),
			BirthDate: text(cells, 3),
		}
		link := cells[0].Find("a[href]").First()
		if link.Length() > 0 {
			r.Name = htmlutil.Text(link)
			if links := guestLinks(context.Background(), link); len(links) > 0 {
				r.ID = links[0].ID
			}
		}
		return r
	},
}

var servicesTable = table[Service]{
	keywords: []string{"Servicios"},
	minCols:  8,
	// totals and separator rows have no service number
	keyCol: 1,
	row: func(cells []*goquery.Selection) Service {
		return Service{
			Date:        text(cells, 0),
			ID:          text(cells, 1),
			Title:       text(cells, 2),
			LegalEntity: text(cells, 3),
			Description: text(cells, 4),
			Quantity:    amount(cells, 5),
			Price:       amount(cells, 6),
			Total:       amount(cells, 7),
		}
	},
}

var paymentsTable = table[Payment]{
	keywords: []string{"Lista de pagos"},
	minCols:  8,
	keyCol:   0,
	row: func(cells []*goquery.Selection) Payment {
		return Payment{
			Date:           text(cells, 0),
			CreatedAt:      text(cells, 1),
			Number:         text(cells, 2),
			LegalEntity:    text(cells, 3),
			Description:    text(cells, 4),
			Type:           text(cells, 5),
			Amount:         amount(cells, 6),
			Method:         text(cells, 7),
			VposCardNumber: text(cells, 8),
			VposStatus:     text(cells, 9),
			FiscalCheck:    text(cells, 10),
		}
	},
}

var cardsTable = table[Card]{
	keywords: []string{"Lista de tarjetas de pago"},
	minCols:  3,
	keyCol:   0,
	row: func(cells []*goquery.Selection) Card {
		return Card{Number: text(cells, 0), Holder: text(cells, 1), Expiration: text(cells, 2)}
	},
}

var carsTable = table[Car]{
	keywords: []string{"Coche"},
	minCols:  3,
	keyCol:   0,
	row: func(cells []*goquery.Selection) Car {
		return Car{Brand: text(cells, 0), Color: text(cells, 1), Plate: text(cells, 2)}
	},
}

var notesTable = table[Note]{
	keywords: []string{"Notas"},
	minCols:  3,
	keyCol:   0,
	row: func(cells []*goquery.Selection) Note {
		return Note{Date: text(cells, 0), User: text(cells, 1), Note: text(cells, 2)}
	},
}

var dailyTariffsTable = table[DailyTariff]{
	keywords: []string{"Tarifas"},
	fallback: "#anchors_billing_days",
	minCols:  3,
	keyCol:   0,
	row: func(cells []*goquery.Selection) DailyTariff {
		return DailyTariff{Date: text(cells, 0), Description: text(cells, 1), Price: amount(cells, 2)}
	},
}

var changeLogTable = table[ChangeLog]{
	keywords: []string{"Historial"},
	fallback: "#anchors_log",
	minCols:  7,
	keyCol:   0,
	row: func(cells []*goquery.Selection) ChangeLog {
		return ChangeLog{
			Date:        text(cells, 0),
			Number:      text(cells, 1),
			User:        text(cells, 2),
			Type:        text(cells, 3),
			Action:      text(cells, 4),
			Quantity:    text(cells, 5),
			Description: text(cells, 6),
		}
	},
}

func ParseResidents(doc *goquery.Selection) ([]Resident, bool) { return residentsTable.parse(doc) }
func ParseServices(doc *goquery.Selection) ([]Service, bool)   { return servicesTable.parse(doc) }
func ParsePayments(doc *goquery.Selection) ([]Payment, bool)   { return paymentsTable.parse(doc) }
func ParseCards(doc *goquery.Selection) ([]Card, bool)         { return cardsTable.parse(doc) }
func ParseCars(doc *goquery.Selection) ([]Car, bool)           { return carsTable.parse(doc) }
func ParseNotes(doc *goquery.Selection) ([]Note, bool)         { return notesTable.parse(doc) }

func ParseDailyTariffs(doc *goquery.Selection) ([]DailyTariff, bool) {
	return dailyTariffsTable.parse(doc)
}

func ParseChangeLog(doc *goquery.Selection) ([]ChangeLog, bool) {
	return changeLogTable.parse(doc)
}
