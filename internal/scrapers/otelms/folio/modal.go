package folio

import (
	"regexp"
	"strings"

	"otelms-backend/internal/scrapers/otelms/calendar"
	"otelms-backend/internal/scrapers/otelms/errs"
	"otelms-backend/pkg/htmlutil"
	"otelms-backend/pkg/textutil"

	"github.com/PuerkitoBio/goquery"
)

// ModalSummary is the calendar's quick-view dialog of a reservation.
type ModalSummary struct {
	ReservationID string                     `json:"reservation_id"`
	Status        calendar.ReservationStatus `json:"status,omitempty"`
	GuestName     string                     `json:"guest_name,omitempty"`
	Guests        []string                   `json:"guests,omitempty"`
	GuestCount    int                        `json:"guest_count,omitempty"`
	Source        string                     `json:"source,omitempty"`
	CheckIn       string                     `json:"check_in,omitempty"`
	CheckOut      string                     `json:"check_out,omitempty"`
	CreatedAt     string                     `json:"created_at,omitempty"`
	Phone         string                     `json:"phone,omitempty"`
	Email         string                     `json:"email,omitempty"`
	User          string                     `json:"user,omitempty"`
	Comments      string                     `json:"comments,omitempty"`
	Room          string                     `json:"room,omitempty"`
	RoomType      string                     `json:"room_type,omitempty"`
	Rate          *float64                   `json:"rate,omitempty"`
	Total         *float64                   `json:"total,omitempty"`
	Paid          *float64                   `json:"paid,omitempty"`
	Balance       *float64                   `json:"balance,omitempty"`
	// Fields holds every label/value pair of the dialog as shown.
	Fields map[string]string `json:"fields,omitempty"`
}

const bookingLogo = "dc_logo/dc_logo_1.png"

var (
	modalHeadingPattern = regexp.MustCompile(`(?i)(reserva|alojamiento|salida)\D*(\d+)`)
	isoDatePattern      = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
)

// modal labels, normalized
var modalFields = map[string]func(*ModalSummary, string){
	"huesped":    func(m *ModalSummary, v string) { m.GuestName = v },
	"fuente":     func(m *ModalSummary, v string) { m.Source = v },
	"llegada":    func(m *ModalSummary, v string) { m.CheckIn = isoDatePattern.FindString(v) },
	"salida":     func(m *ModalSummary, v string) { m.CheckOut = isoDatePattern.FindString(v) },
	"telefono":   func(m *ModalSummary, v string) { m.Phone = v },
	"e-mail":     func(m *ModalSummary, v string) { m.Email = v },
	"notas":      func(m *ModalSummary, v string) { m.Comments = v },
	"usuario":    func(m *ModalSummary, v string) { m.User = v },
	"total":      func(m *ModalSummary, v string) { m.Total = optionalAmount(v) },
	"pagado":     func(m *ModalSummary, v string) { m.Paid = optionalAmount(v) },
	"tarifa":     func(m *ModalSummary, v string) { m.Rate = optionalAmount(v) },
	"habitacion": func(m *ModalSummary, v string) { m.Room = v },
	"tipo de habitacion": func(m *ModalSummary, v string) {
		m.RoomType = v
	},
	"importe de los servicios por el dia actual": func(m *ModalSummary, v string) {
		m.Balance = optionalAmount(v)
	},
	"numero de huespedes": func(m *ModalSummary, v string) {
		m.GuestCount, _ = textutil.ParseInt(v)
	},
}

func optionalAmount(s string) *float64 {
	value, ok := textutil.ParseAmount(s)
	if !ok {
		return nil
	}
	return &value
}

// modalValue is the text of the div.text-right sibling that follows the
// label's enclosing div, or "booking" when it only shows the booking logo.
func modalValue(label *goquery.Selection) (*goquery.Selection, string, bool) {
	value := label.Closest("div").NextAllFiltered("div.text-right").First()
	if value.Length() == 0 {
		return value, "", false
	}
	if img := value.Find("img").First(); img.Length() > 0 && strings.Contains(img.AttrOr("src", ""), bookingLogo) {
		return value, "booking", true
	}
	return value, htmlutil.Text(value), true
}

// ParseReservationModal reads the quick-view dialog. It fails with
// errs.ErrParsing only when the markup is not such a dialog at all.
func ParseReservationModal(markup string) (ModalSummary, error) {
	doc, err := htmlutil.Parse(markup)
	if err != nil {
		return ModalSummary{}, errs.Parsing(err, "folio: read reservation modal")
	}
	labels := doc.Find("span.incolor")
	heading := doc.Find("h2.nameofgroup").First()
	if heading.Length() == 0 {
		heading = doc.Find("h2").First()
	}
	if labels.Length() == 0 && heading.Length() == 0 {
		return ModalSummary{}, errs.Parsing(nil, "folio: no reservation dialog in markup")
	}

	summary := ModalSummary{Fields: map[string]string{}}
	if m := modalHeadingPattern.FindStringSubmatch(htmlutil.Text(heading)); m != nil {
		summary.Status = calendar.ReservationStatusFromWord(m[1])
		summary.ReservationID = m[2]
	}

	labels.Each(func(_ int, label *goquery.Selection) {
		key := htmlutil.Text(label)
		valueNode, value, ok := modalValue(label)
		if !ok {
			return
		}
		normalized := textutil.NormalizeLabel(key)
		if normalized == "lista de huespedes" {
			valueNode.Contents().Each(func(_ int, s *goquery.Selection) {
				if name := htmlutil.Text(s); name != "" {
					summary.Guests = append(summary.Guests, name)
				}
			})
			return
		}
		summary.Fields[key] = value
		if set, ok := modalFields[normalized]; ok {
			set(&summary, value)
			return
		}
		// "Fecha de creación", "Creada"
		if strings.Contains(normalized, "crea") {
			summary.CreatedAt = isoDatePattern.FindString(value)
		}
	})

	if summary.GuestName == "" && len(summary.Guests) > 0 {
		summary.GuestName = summary.Guests[0]
	}
	if summary.GuestCount == 0 {
		summary.GuestCount = len(summary.Guests)
	}

	balans := htmlutil.Text(doc.Find("div.balans").First())
	if balans != "" {
		if value := optionalAmount(strings.Replace(balans, "Saldo:", "", 1)); value != nil {
			summary.Balance = value
		}
	}
	if summary.Balance == nil && summary.Total != nil && summary.Paid != nil {
		balance := *summary.Total - *summary.Paid
		summary.Balance = &balance
	}
	return summary, nil
}
