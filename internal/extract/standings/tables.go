// Package standings scrapes the championship tables of the manufacturer
// standings page. Layout drift yields empty tables rather than errors.
package standings

import (
	"bytes"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Row is one ranking line as printed on the page.
type Row struct {
	Position  int
	Name      string
	FlagToken string
	Points    int
}

// Tables holds both championships. The page lists manufacturers first.
type Tables struct {
	Manufacturers []Row
	Drivers       []Row
}

// Empty reports whether neither table produced a row.
func (t Tables) Empty() bool {
	return len(t.Manufacturers) == 0 && len(t.Drivers) == 0
}

// Parse reads the first two ranking boxes of the page.
func Parse(html []byte) Tables {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return Tables{}
	}
	boxes := doc.Find("div.tmp_ranking_box")
	return Tables{
		Manufacturers: parseBox(boxes.Eq(0)),
		Drivers:       parseBox(boxes.Eq(1)),
	}
}

func parseBox(box *goquery.Selection) []Row {
	var rows []Row
	box.Find("table tr").
		FilterFunction(func(_ int, tr *goquery.Selection) bool {
			return tr.ChildrenFiltered("td").Length() > 0
		}).
		Each(func(_ int, tr *goquery.Selection) {
			cells := tr.ChildrenFiltered("td")
			position, ok := leadingInt(cells.Eq(0).Text())
			name := strings.Join(strings.Fields(cells.Eq(1).Find(".driver-name").Text()), " ")
			if !ok || name == "" {
				return
			}
			points, _ := leadingInt(cells.Eq(2).Text())
			rows = append(rows, Row{
				Position:  position,
				Name:      name,
				FlagToken: FlagToken(cells.Eq(1).Find("img[src]").AttrOr("src", "")),
				Points:    points,
			})
		})
	return rows
}

// leadingInt parses the digits at the start of s, so "12 pts" reads as 12.
func leadingInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

var flagPatterns = []*regexp.Regexp{
	regexp.MustCompile(`icon_country_(\w+)\.png`),
	regexp.MustCompile(`/flag/(\w+)\.png`),
}

// FlagToken extracts the country slug from a flag image URL. Unknown shapes
// fall back to the file name without extension.
func FlagToken(src string) string {
	src, _, _ = strings.Cut(strings.TrimSpace(src), "?")
	if src == "" {
		return ""
	}
	for _, re := range flagPatterns {
		if m := re.FindStringSubmatch(src); m != nil {
			return strings.ToLower(m[1])
		}
	}
	base := path.Base(src)
	if base == "/" || base == "." {
		return ""
	}
	return strings.ToLower(strings.TrimSuffix(base, path.Ext(base)))
}
