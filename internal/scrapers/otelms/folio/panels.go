package folio

import (
	"strings"

	"otelms-backend/pkg/htmlutil"
	"otelms-backend/pkg/textutil"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// PanelHeading is the heading text of a panel, empty if it has none. Only
// the panel's own heading counts, never one of a nested panel.
func PanelHeading(panel *goquery.Selection) string {
	heading := panel.ChildrenFiltered("div.panel-heading").First()
	if heading.Length() == 0 {
		heading = panel.ChildrenFiltered("h1, h2, h3").First()
	}
	return htmlutil.Text(heading)
}

// FindPanel returns the first div.panel whose heading contains any of the
// keywords (case and accent insensitive), or an empty selection.
//
// The folio reuses the same element id across unrelated panels (e.g. the
// payments and payment cards panels), so panels are always located by
// their heading and never by id alone.
func FindPanel(root *goquery.Selection, keywords ...string) *goquery.Selection {
	found := root.Find("div.panel").FilterFunction(func(_ int, panel *goquery.Selection) bool {
		heading := PanelHeading(panel)
		return heading != "" && textutil.ContainsFold(heading, keywords...)
	})
	return found.First()
}

// locate tries the heading scan first and falls back to selector when no
// heading matches.
func locate(root *goquery.Selection, selector string, keywords ...string) *goquery.Selection {
	panel := FindPanel(root, keywords...)
	if panel.Length() > 0 || selector == "" {
		return panel
	}
	return root.Find(selector).First()
}

// firstTable is the first table of a panel, preferring the site's
// add-line-table class.
func firstTable(panel *goquery.Selection) *goquery.Selection {
	if panel.Length() == 0 {
		return panel
	}
	if panel.Is("table") {
		return panel
	}
	table := panel.Find("table.add-line-table").First()
	if table.Length() == 0 {
		table = panel.Find("table").First()
	}
	return table
}

type labeled struct {
	// label is normalized with textutil.NormalizeLabel
	label string
	value string
}

func ignoredValueNode(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if n.Data == "br" {
		return true
	}
	class, _ := htmlutil.Attr(n, "class")
	for _, c := range strings.Fields(class) {
		if c == "fa-edit" || c == "d0" {
			return true
		}
	}
	return false
}

// valueAfter collects the text that follows label up to the end of its
// parent, skipping line breaks and edit icons.
func valueAfter(label *html.Node) string {
	parts := []string{}
	for n := label.NextSibling; n != nil; n = n.NextSibling {
		if ignoredValueNode(n) {
			continue
		}
		text := htmlutil.NodeText(n)
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// labeledValues reads "<b>Label:</b> value" pairs out of every column
// matching colSelector.
func labeledValues(root *goquery.Selection, colSelector string) []labeled {
	out := []labeled{}
	root.Find(colSelector).Each(func(_ int, col *goquery.Selection) {
		b := col.Find("b").First()
		if b.Length() == 0 {
			return
		}
		label := textutil.NormalizeLabel(htmlutil.Text(b))
		if label == "" {
			return
		}
		out = append(out, labeled{label: label, value: valueAfter(b.Nodes[0])})
	})
	return out
}

// rowCells returns the td cells of each data row of table. Header rows,
// short rows and rows with an empty key column are skipped.
func rowCells(table *goquery.Selection, minCols, keyCol int) [][]*goquery.Selection {
	rows := [][]*goquery.Selection{}
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if tr.ChildrenFiltered("th").Length() > 0 {
			return
		}
		tds := tr.ChildrenFiltered("td")
		if tds.Length() < minCols {
			return
		}
		cells := make([]*goquery.Selection, tds.Length())
		tds.Each(func(i int, td *goquery.Selection) {
			cells[i] = td
		})
		if keyCol >= 0 && htmlutil.Text(cells[keyCol]) == "" {
			return
		}
		rows = append(rows, cells)
	})
	return rows
}

func text(cells []*goquery.Selection, i int) string {
	if i >= len(cells) {
		return ""
	}
	return htmlutil.Text(cells[i])
}

func amount(cells []*goquery.Selection, i int) float64 {
	value, _ := textutil.ParseAmount(text(cells, i))
	return value
}
