package textutil

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}

// NormalizeLabel lowercases, drops accents and the trailing colon and
// collapses whitespace, so "Teléfono:" and "telefono" compare equal.
func NormalizeLabel(label string) string {
	label = strings.ToLower(label)
	label = foldAccents(label)
	label = strings.TrimSpace(label)
	label = strings.TrimSuffix(label, ":")
	label = whitespaceRegex.ReplaceAllString(label, " ")
	return strings.TrimSpace(label)
}

// ContainsFold reports whether text contains any of the keywords, ignoring case and accents.
func ContainsFold(text string, keywords ...string) bool {
	text = NormalizeLabel(text)
	for _, k := range keywords {
		if strings.Contains(text, NormalizeLabel(k)) {
			return true
		}
	}
	return false
}

var numberRegex = regexp.MustCompile(`[-+]?\d[\d.,\s]*`)
var intRegex = regexp.MustCompile(`-?\d+`)

// ParseAmount reads the first number in s. Both "1.234,56" and "1,234.56"
// are accepted. A lone separator is decimal unless exactly three digits
// follow it, repeated separators are always thousands.
func ParseAmount(s string) (float64, bool) {
	match := numberRegex.FindString(s)
	if match == "" {
		return 0, false
	}
	match = strings.Join(strings.Fields(match), "")
	match = strings.TrimRight(match, ".,")

	lastComma := strings.LastIndex(match, ",")
	lastDot := strings.LastIndex(match, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			match = strings.ReplaceAll(match, ".", "")
			match = strings.Replace(match, ",", ".", 1)
		} else {
			match = strings.ReplaceAll(match, ",", "")
		}
	case lastComma >= 0:
		match = resolveSeparator(match, ",")
	case lastDot >= 0:
		match = resolveSeparator(match, ".")
	}

	value, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

func resolveSeparator(s, sep string) string {
	parts := strings.Split(s, sep)
	last := parts[len(parts)-1]
	if len(parts) == 2 && len(last) != 3 {
		return parts[0] + "." + last
	}
	return strings.Join(parts, "")
}

// ParseInt reads the first integer in s.
func ParseInt(s string) (int, bool) {
	match := intRegex.FindString(s)
	if match == "" {
		return 0, false
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return 0, false
	}
	return n, true
}
