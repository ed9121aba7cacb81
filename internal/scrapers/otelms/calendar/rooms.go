package calendar

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"otelms-backend/internal/components/telemetry"
	"otelms-backend/pkg/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

const (
	report_rooms_legend   = "rooms.legend"
	report_rooms_mismatch = "rooms.mismatch"
)

type Room struct {
	ID         string `json:"room_id"`
	Number     string `json:"room_number"`
	CategoryID string `json:"category_id"`
}

type RoomCategory struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Rooms []Room `json:"rooms"`
}

// RoomLookup is the result of resolving rooms and categories, read-only
// once built.
type RoomLookup struct {
	Categories []RoomCategory

	rooms map[string]Room
	names map[string]string

	// Unpaired counts legend room nodes with no room_id left to pair with.
	Unpaired int
	// Unused counts room_ids of the grid that no legend node consumed.
	Unused int
}

func (l RoomLookup) Room(roomID string) (Room, bool) {
	room, ok := l.rooms[roomID]
	return room, ok
}

// Number is the display number of a room, or the room id itself when the
// room could not be resolved.
func (l RoomLookup) Number(roomID string) string {
	if room, ok := l.rooms[roomID]; ok && room.Number != "" {
		return room.Number
	}
	return roomID
}

func (l RoomLookup) CategoryName(categoryID string) (string, bool) {
	name, ok := l.names[categoryID]
	return name, ok
}

func sortRoomIDs(ids []string) {
	for _, id := range ids {
		if _, err := strconv.Atoi(id); err != nil {
			return
		}
	}
	slices.SortStableFunc(ids, func(a, b string) int {
		x, _ := strconv.Atoi(a)
		y, _ := strconv.Atoi(b)
		return x - y
	})
}

// roomIDsByCategory walks the desk skeleton: a my_category tbody opens a
// category and every following tbody contributes its room_id to it.
func roomIDsByCategory(doc *goquery.Document) map[string][]string {
	mapping := map[string][]string{}
	current := ""

	doc.Find("table#desk tbody").Each(func(_ int, tbody *goquery.Selection) {
		first := tbody.Find("td").First()
		if first.Length() == 0 {
			return
		}
		if tbody.HasClass("my_category") {
			categoryID := strings.TrimSpace(first.AttrOr("category_id", ""))
			if categoryID == "" {
				return
			}
			current = categoryID
			if _, ok := mapping[current]; !ok {
				mapping[current] = []string{}
			}
			return
		}
		if current == "" {
			return
		}
		roomID := strings.TrimSpace(first.AttrOr("room_id", ""))
		if roomID == "" || roomID == "0" {
			return
		}
		if !slices.Contains(mapping[current], roomID) {
			mapping[current] = append(mapping[current], roomID)
		}
	})

	for _, ids := range mapping {
		sortRoomIDs(ids)
	}
	return mapping
}

func roomNumber(node *goquery.Selection, categoryID string) (string, bool) {
	text := node.Find("div.calendar_number_room").First()
	if text.Length() == 0 {
		return "", false
	}
	fields := strings.Fields(htmlutil.Text(text))
	if len(fields) == 0 {
		return "room_" + categoryID, true
	}
	return fields[0], true
}

// ResolveRooms joins the desk skeleton (category -> room ids) with the room
// legend (category names and room display numbers), pairing the Nth legend
// room of a category with its Nth room id.
func ResolveRooms(doc *goquery.Document, tel telemetry.API) RoomLookup {
	idsByCategory := roomIDsByCategory(doc)
	lookup := RoomLookup{
		Categories: []RoomCategory{},
		rooms:      map[string]Room{},
		names:      map[string]string{},
	}
	seen := map[string]bool{}

	doc.Find("div.calendar_rooms[catid]").Each(func(_ int, legend *goquery.Selection) {
		if !strings.HasPrefix(legend.AttrOr("id", ""), "btn_close") {
			return
		}
		categoryID := strings.TrimSpace(legend.AttrOr("catid", ""))
		if categoryID == "" || seen[categoryID] {
			return
		}
		seen[categoryID] = true

		name := htmlutil.Text(legend.Find("div.calendar_rooms_dott").First())
		if name == "" {
			name = "Category_" + categoryID
		}

		ids := idsByCategory[categoryID]
		category := RoomCategory{ID: categoryID, Name: name, Rooms: []Room{}}
		paired := 0
		doc.Find("div.calendar_num_room.btn_close_box" + categoryID).Each(func(_ int, node *goquery.Selection) {
			number, ok := roomNumber(node, categoryID)
			if !ok {
				return
			}
			room := Room{Number: number, CategoryID: categoryID}
			if paired < len(ids) {
				room.ID = ids[paired]
				lookup.rooms[room.ID] = room
			} else {
				lookup.Unpaired++
			}
			paired++
			category.Rooms = append(category.Rooms, room)
		})
		if paired < len(ids) {
			lookup.Unused += len(ids) - paired
		}
		if paired != len(ids) {
			tel.ReportWarning(
				report_rooms_mismatch,
				fmt.Sprintf("category %s: %d legend rooms vs %d room ids", categoryID, paired, len(ids)),
			)
		}

		lookup.names[categoryID] = name
		lookup.Categories = append(lookup.Categories, category)
	})

	if len(lookup.Categories) == 0 && len(idsByCategory) > 0 {
		tel.ReportWarning(report_rooms_legend, "grid has categories but no legend was found", len(idsByCategory))
	}
	return lookup
}
