package resolve

import "strings"

// teamEntries maps works-team entrant names to canonical manufacturers.
var teamEntries = map[string]string{
	"toyota gazoo racing wrt":              "Toyota",
	"toyota gazoo racing wrt2":             "Toyota WRT2",
	"hyundai shell mobis world rally team": "Hyundai",
	"m-sport ford world rally team":        "M-Sport Ford",
}

var marques = []struct {
	keywords []string
	name     string
}{
	{[]string{"toyota"}, "Toyota"},
	{[]string{"hyundai"}, "Hyundai"},
	{[]string{"m-sport", "ford"}, "M-Sport Ford"},
	{[]string{"citro"}, "Citroën"},
	{[]string{"škoda", "skoda"}, "Škoda"},
}

// Manufacturer maps a team or marque label to its canonical short name.
// Unknown labels pass through trimmed; blank input yields "".
func Manufacturer(raw string) string {
	raw = strings.Join(strings.Fields(raw), " ")
	if raw == "" {
		return ""
	}
	lower := strings.ToLower(raw)
	if name, ok := teamEntries[lower]; ok {
		return name
	}
	if strings.HasSuffix(lower, "wrt2") && strings.Contains(lower, "toyota") {
		return "Toyota WRT2"
	}
	for _, m := range marques {
		for _, kw := range m.keywords {
			if strings.Contains(lower, kw) {
				return m.name
			}
		}
	}
	return raw
}
