package helpers

import "regexp"

// Card codes appear in parentheses at the end of product names,
// e.g. "Monkey.D.Luffy (OP01-003)" or "Roronoa Zoro (ST01-013)".
var cardCodePattern = regexp.MustCompile(`\(([A-Z]{1,4}\d{2}-\d{3})\)`)

// ExtractCardCode pulls the set/number card code out of a product name.
// Returns an empty string when the name carries no recognizable code.
func ExtractCardCode(name string) string {
	m := cardCodePattern.FindStringSubmatch(name)
	if m == nil {
		return ""
	}
	return m[1]
}
