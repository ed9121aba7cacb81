package folio

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"otelms-backend/internal/scrapers/otelms/calendar"
	"otelms-backend/pkg/htmlutil"
	"otelms-backend/pkg/textutil"

	"github.com/PuerkitoBio/goquery"
)

type Guest struct {
	ID             string `json:"id,omitempty"`
	Name           string `json:"name,omitempty"`
	FirstName      string `json:"first_name,omitempty"`
	MiddleName     string `json:"middle_name,omitempty"`
	LastName       string `json:"last_name,omitempty"`
	Gender         string `json:"gender,omitempty"`
	BirthDate      string `json:"birth_date,omitempty"`
	Phone          string `json:"phone,omitempty"`
	Email          string `json:"email,omitempty"`
	Language       string `json:"language,omitempty"`
	Country        string `json:"country,omitempty"`
	City           string `json:"city,omitempty"`
	Street         string `json:"street,omitempty"`
	House          string `json:"house,omitempty"`
	ZipCode        string `json:"zip_code,omitempty"`
	DocumentType   string `json:"document_type,omitempty"`
	DocumentNumber string `json:"document_number,omitempty"`
	IssueDate      string `json:"issue_date,omitempty"`
	ExpirationDate string `json:"expiration_date,omitempty"`
	IssuedBy       string `json:"issued_by,omitempty"`
}

type BasicInfo struct {
	ClientName  string `json:"client_name,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Email       string `json:"email,omitempty"`
	Payer       string `json:"payer,omitempty"`
	LegalEntity string `json:"legal_entity,omitempty"`
	Source      string `json:"source,omitempty"`
	User        string `json:"user,omitempty"`
}

type Accommodation struct {
	CheckIn         string `json:"check_in,omitempty"`
	CheckInHour     string `json:"check_in_hour,omitempty"`
	CheckOut        string `json:"check_out,omitempty"`
	CheckOutHour    string `json:"check_out_hour,omitempty"`
	Nights          int    `json:"nights,omitempty"`
	RoomNumber      string `json:"room_number,omitempty"`
	RoomType        string `json:"room_type,omitempty"`
	GuestCount      int    `json:"guest_count,omitempty"`
	AdultsCount     int    `json:"adults_count,omitempty"`
	ChildrenCount   int    `json:"children_count,omitempty"`
	BabiesCount     int    `json:"babies_count,omitempty"`
	RateName        string `json:"rate_name,omitempty"`
	RateCategory    string `json:"rate_category,omitempty"`
	PriceType       string `json:"price_type,omitempty"`
	Discount        string `json:"discount,omitempty"`
	DiscountReason  string `json:"discount_reason,omitempty"`
	TotalPrice      string `json:"total_price,omitempty"`
	TaxesSurcharges string `json:"taxes_surcharges,omitempty"`
}

// Header is what the top of the folio says about the reservation.
type Header struct {
	ReservationID string
	Status        calendar.ReservationStatus
	// Balance is nil when the folio shows no "Saldo:".
	Balance *float64
}

var (
	headerNumberPattern = regexp.MustCompile(`№\s*(\d+)`)
	headerStatusPattern = regexp.MustCompile(`(?i)\b(reserva|alojamiento|salida)\b`)
	guestLinkPattern    = regexp.MustCompile(`/guestfolio/(\d+)`)
	guestHeaderPattern  = regexp.MustCompile(`ID:\s*(\d+)`)
	stayDatePattern     = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})\s(\d{2}:\d{2})`)
	digitsPattern       = regexp.MustCompile(`\d+`)
)

func ParseHeader(doc *goquery.Selection) Header {
	header := Header{}

	h1 := htmlutil.Text(doc.Find("h1").First())
	if m := headerNumberPattern.FindStringSubmatch(h1); m != nil {
		header.ReservationID = m[1]
	}
	if header.ReservationID == "" {
		header.ReservationID = strings.TrimSpace(doc.Find("input[name=id_reservation]").First().AttrOr("value", ""))
	}
	if m := headerStatusPattern.FindStringSubmatch(h1); m != nil {
		header.Status = calendar.ReservationStatusFromWord(m[1])
	}

	doc.Find("span").EachWithBreak(func(_ int, span *goquery.Selection) bool {
		text := htmlutil.Text(span)
		idx := strings.Index(text, "Saldo:")
		if idx < 0 {
			return true
		}
		if value, ok := textutil.ParseAmount(text[idx+len("Saldo:"):]); ok {
			header.Balance = &value
		}
		return false
	})
	return header
}

type guestLink struct {
	ID   string
	Name string
}

// guestLinks keeps the anchors of sel that point at a guest card.
func guestLinks(ctx context.Context, sel *goquery.Selection) []guestLink {
	links := []guestLink{}
	for _, a := range htmlutil.GetAnchors(ctx, nil, sel) {
		if m := guestLinkPattern.FindStringSubmatch(a.Href); m != nil {
			links = append(links, guestLink{ID: m[1], Name: a.Name})
		}
	}
	return links
}

// GuestID is the id in the first guest card link of the folio.
func GuestID(ctx context.Context, doc *goquery.Selection) (string, bool) {
	links := guestLinks(ctx, doc.Find("a[href]"))
	if len(links) == 0 {
		return "", false
	}
	return links[0].ID, true
}

// guest card labels, normalized
var guestFields = map[string]func(*Guest, string){
	"nombre":              func(g *Guest, v string) { g.FirstName = v },
	"apellido":            func(g *Guest, v string) { g.LastName = v },
	"segundo nombre":      func(g *Guest, v string) { g.MiddleName = v },
	"genero":              func(g *Guest, v string) { g.Gender = v },
	"fecha de nacimiento": func(g *Guest, v string) { g.BirthDate = v },
	"telefono":            func(g *Guest, v string) { g.Phone = v },
	"email":               func(g *Guest, v string) { g.Email = v },
	"pais":                func(g *Guest, v string) { g.Country = v },
	"ciudad":              func(g *Guest, v string) { g.City = v },
	"calle":               func(g *Guest, v string) { g.Street = v },
	"casa":                func(g *Guest, v string) { g.House = v },
	"codigo postal":       func(g *Guest, v string) { g.ZipCode = v },
	"tipo de documento":   func(g *Guest, v string) { g.DocumentType = v },
	"documento numero":    func(g *Guest, v string) { g.DocumentNumber = v },
	"numero de documento": func(g *Guest, v string) { g.DocumentNumber = v },
	"fecha de emision":    func(g *Guest, v string) { g.IssueDate = v },
	"validez":             func(g *Guest, v string) { g.ExpirationDate = v },
	"emitido por":         func(g *Guest, v string) { g.IssuedBy = v },
}

// ParseGuestCard reads the "Tarjeta de huésped" panel. ok is false when
// the panel is missing.
func ParseGuestCard(doc *goquery.Selection) (Guest, bool) {
	guest := Guest{}
	if m := guestHeaderPattern.FindStringSubmatch(htmlutil.Text(doc.Find("span.header-time").First())); m != nil {
		guest.ID = m[1]
	}

	panel := locate(doc, "div[data-widget*=wiget1]", "Tarjeta de huésped")
	if panel.Length() == 0 {
		return guest, false
	}
	body := panel.Find("div.panel-body").First()
	if body.Length() == 0 {
		body = panel
	}
	if folio1 := body.Find("div.folio1").First(); folio1.Length() > 0 {
		body = folio1
	}

	for _, field := range labeledValues(body, "div.col-md-2") {
		if set, ok := guestFields[field.label]; ok {
			set(&guest, field.value)
			continue
		}
		if strings.Contains(field.label, "lenguaje") {
			guest.Language = field.value
		}
	}

	names := []string{}
	for _, part := range []string{guest.FirstName, guest.MiddleName, guest.LastName} {
		if part != "" {
			names = append(names, part)
		}
	}
	guest.Name = strings.Join(names, " ")
	return guest, true
}

func ParseBasicInfo(doc *goquery.Selection) (BasicInfo, bool) {
	info := BasicInfo{}
	panel := locate(doc, "#anchors_main_information", "Información básica")
	if panel.Length() == 0 {
		return info, false
	}

	found := false
	for _, field := range labeledValues(panel, "div.col-md-3") {
		matched := true
		switch {
		case strings.Contains(field.label, "cliente"):
			info.ClientName = field.value
		case strings.Contains(field.label, "telefono"):
			info.Phone = field.value
		case strings.Contains(field.label, "email"):
			info.Email = field.value
		case strings.Contains(field.label, "pagador"):
			info.Payer = field.value
		case strings.Contains(field.label, "entidad legal"):
			info.LegalEntity = field.value
		case strings.Contains(field.label, "fuente"):
			info.Source = field.value
		case strings.Contains(field.label, "usuario"):
			info.User = field.value
		default:
			matched = false
		}
		found = found || matched
	}
	return info, found
}

func sumInts(s string) int {
	total := 0
	for _, n := range digitsPattern.FindAllString(s, -1) {
		v, err := strconv.Atoi(n)
		if err == nil {
			total += v
		}
	}
	return total
}

// ParseAccommodationSummary reads the read-only "Alojamiento" panel.
func ParseAccommodationSummary(doc *goquery.Selection) (Accommodation, bool) {
	acc := Accommodation{}
	panel := locate(doc, "#anchors_accommodation", "Alojamiento")
	if panel.Length() == 0 {
		return acc, false
	}
	body := panel.Find("div.panel-body").First()
	if body.Length() == 0 {
		body = panel
	}

	fields := labeledValues(body, "div.col-md-2")
	for _, field := range fields {
		label, value := field.label, field.value
		// order matters, later labels are substrings of earlier ones
		switch {
		case strings.Contains(label, "periodo de estancia"):
			dates := stayDatePattern.FindAllStringSubmatch(value, 2)
			if len(dates) >= 1 {
				acc.CheckIn, acc.CheckInHour = dates[0][1], dates[0][2]
			}
			if len(dates) >= 2 {
				acc.CheckOut, acc.CheckOutHour = dates[1][1], dates[1][2]
			}
		case strings.Contains(label, "noches"):
			if n, ok := textutil.ParseInt(value); ok {
				acc.Nights = n
			}
		case strings.Contains(label, "habitacion"):
			parts := strings.Fields(value)
			if len(parts) > 0 {
				acc.RoomNumber = parts[0]
				acc.RoomType = strings.Join(parts[1:], " ")
			}
		case strings.Contains(label, "huespedes"):
			acc.GuestCount = sumInts(value)
		case strings.Contains(label, "tarificacion por categoria"):
			acc.RateCategory = value
		case strings.Contains(label, "tarifa"):
			acc.RateName = value
		case strings.Contains(label, "precio por alojamiento"):
			acc.PriceType = value
		case strings.Contains(label, "razon para el descuento"):
			acc.DiscountReason = value
		case strings.Contains(label, "descuento"):
			acc.Discount = value
		}
	}
	return acc, len(fields) > 0
}

var priceModes = map[string]string{
	"0": "Por tarifa",
	"1": "Fijo",
	"2": "Diario",
}

// ParseAccommodationForm reads the accommodation edit dialog, whose values
// live in form controls rather than in rendered text.
func ParseAccommodationForm(doc *goquery.Selection) (Accommodation, bool) {
	acc := Accommodation{}
	if doc.Find("#modalform, #datein, #dateout").Length() == 0 {
		return acc, false
	}

	value := func(selector string) string {
		return strings.TrimSpace(doc.Find(selector).First().AttrOr("value", ""))
	}
	selectedValue := func(selector string) string {
		v, _, _ := htmlutil.SelectedOption(doc.Find(selector).First())
		return v
	}
	selectedText := func(selector string) string {
		_, t, _ := htmlutil.SelectedOption(doc.Find(selector).First())
		return t
	}
	count := func(selector string) int {
		n, _ := textutil.ParseInt(selectedValue(selector))
		return n
	}

	acc.CheckIn = value("#datein")
	acc.CheckInHour = selectedValue("#checkintime")
	acc.CheckOut = value("#dateout")
	acc.CheckOutHour = selectedValue("#checkouttime")
	acc.Nights, _ = textutil.ParseInt(value("#duration"))

	acc.RoomNumber = selectedText("#room_id")
	acc.RoomType = selectedText("#category")

	acc.AdultsCount = count("#adults")
	acc.ChildrenCount = count("#baby_places")
	acc.BabiesCount = count("#babyplace2")
	acc.GuestCount = acc.AdultsCount + acc.ChildrenCount + acc.BabiesCount

	if fields := strings.Fields(selectedText("#price_type")); len(fields) > 0 {
		acc.RateName = fields[0]
	}
	if category := selectedText("#ud_price_category"); category != "---" {
		acc.RateCategory = category
	}
	acc.PriceType = priceModes[selectedValue("#ny_ismanual")]
	acc.Discount = value("#discount")
	acc.TotalPrice = htmlutil.Text(doc.Find("#FO_total").First())
	acc.TaxesSurcharges = htmlutil.Text(doc.Find("#TF_total").First())
	return acc, true
}

// merge overlays the non-zero fields of form onto summary. The edit form
// is authoritative where both carry a value.
func merge(summary, form Accommodation) Accommodation {
	pick := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	pickInt := func(dst *int, v int) {
		if v != 0 {
			*dst = v
		}
	}
	out := summary
	pick(&out.CheckIn, form.CheckIn)
	pick(&out.CheckInHour, form.CheckInHour)
	pick(&out.CheckOut, form.CheckOut)
	pick(&out.CheckOutHour, form.CheckOutHour)
	pickInt(&out.Nights, form.Nights)
	pick(&out.RoomNumber, form.RoomNumber)
	pick(&out.RoomType, form.RoomType)
	pickInt(&out.GuestCount, form.GuestCount)
	pickInt(&out.AdultsCount, form.AdultsCount)
	pickInt(&out.ChildrenCount, form.ChildrenCount)
	pickInt(&out.BabiesCount, form.BabiesCount)
	pick(&out.RateName, form.RateName)
	pick(&out.RateCategory, form.RateCategory)
	pick(&out.PriceType, form.PriceType)
	pick(&out.Discount, form.Discount)
	pick(&out.DiscountReason, form.DiscountReason)
	pick(&out.TotalPrice, form.TotalPrice)
	pick(&out.TaxesSurcharges, form.TaxesSurcharges)
	return out
}
