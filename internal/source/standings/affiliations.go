package standings

import "github.com/JakeFAU/rally-results-ingest/internal/resolve"

// DefaultAffiliations is the fallback driver to team label table used when
// no stored crew ties a driver to a manufacturer in the season.
var DefaultAffiliations = map[string]string{
	"S. OGIER":     "Toyota",
	"E. EVANS":     "Toyota",
	"K. ROVANPERÄ": "Toyota",
	"T. KATSUTA":   "Toyota WRT2",
	"O. TÄNAK":     "Hyundai",
	"T. NEUVILLE":  "Hyundai",
	"A. FOURMAUX":  "M-Sport Ford",
	"S. PAJARI":    "Toyota WRT2",
	"O. SOLBERG":   "Toyota WRT2",
	"G. MUNSTER":   "M-Sport Ford",
	"J. MCERLEAN":  "M-Sport Ford",
	"D. SORDO":     "Hyundai",
}

// Affiliations looks up a driver's team label by name in any of the
// printed, canonical or case-folded spellings. Configuration loaders
// lower-case map keys, so lookups ignore case and diacritics.
type Affiliations struct {
	byName map[string]string
}

// NewAffiliations indexes table. A nil table uses DefaultAffiliations.
func NewAffiliations(table map[string]string) *Affiliations {
	if table == nil {
		table = DefaultAffiliations
	}
	a := &Affiliations{byName: make(map[string]string, len(table))}
	for name, team := range table {
		if team == "" {
			continue
		}
		a.byName[affiliationKey(name)] = team
	}
	return a
}

// Lookup returns the team label for a driver given as "Ogier S." or "S. OGIER".
func (a *Affiliations) Lookup(name string) (string, bool) {
	team, ok := a.byName[affiliationKey(name)]
	return team, ok
}

// affiliationKey reduces both name shapes to the folded canonical key.
func affiliationKey(name string) string {
	if surname, initial := resolve.SplitShortName(name); surname != "" && initial != "" {
		return resolve.Fold(surname + " " + initial)
	}
	return resolve.Fold(resolve.FromInitialSurname(name))
}
