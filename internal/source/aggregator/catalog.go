package aggregator

import (
	"fmt"
	"sort"

	"github.com/JakeFAU/rally-results-ingest/internal/rally"
)

// Event maps a championship round to its page on the aggregator site.
type Event struct {
	Season  int    `mapstructure:"season" json:"season"`
	Round   int    `mapstructure:"round" json:"round"`
	Name    string `mapstructure:"name" json:"name"`
	EventID int64  `mapstructure:"event_id" json:"eventId"`
	Slug    string `mapstructure:"slug" json:"slug"`
}

// Path is the site-relative page path of the event below section, for
// example "final" or "results".
func (e Event) Path(section string) string {
	return fmt.Sprintf("/%s/%d-%s/", section, e.EventID, e.Slug)
}

var season2025 = []Event{
	{Season: 2025, Round: 1, Name: "Monte Carlo", EventID: 89918, Slug: "rallye-automobile-monte-carlo-2025"},
	{Season: 2025, Round: 2, Name: "Sweden", EventID: 90017, Slug: "rally-sweden-2025"},
	{Season: 2025, Round: 3, Name: "Kenya", EventID: 90018, Slug: "safari-rally-kenya-2025"},
	{Season: 2025, Round: 4, Name: "Canarias", EventID: 90019, Slug: "rally-islas-canarias-rally-of-spain-2025"},
	{Season: 2025, Round: 5, Name: "Portugal", EventID: 90020, Slug: "vodafone-rally-de-portugal-2025"},
	{Season: 2025, Round: 6, Name: "Sardinia", EventID: 90021, Slug: "rally-italia-sardegna-2025"},
	{Season: 2025, Round: 7, Name: "Greece", EventID: 90022, Slug: "eko-acropolis-rally-2025"},
	{Season: 2025, Round: 8, Name: "Estonia", EventID: 90023, Slug: "delfi-rally-estonia-2025"},
	{Season: 2025, Round: 9, Name: "Finland", EventID: 90024, Slug: "secto-rally-finland-2025"},
	{Season: 2025, Round: 10, Name: "Paraguay", EventID: 90025, Slug: "ueno-rally-del-paraguay-2025"},
	{Season: 2025, Round: 11, Name: "Chile", EventID: 90026, Slug: "rally-chile-biobio-2025"},
	{Season: 2025, Round: 12, Name: "Central Europe", EventID: 90027, Slug: "central-european-rally-2025"},
	{Season: 2025, Round: 13, Name: "Japan", EventID: 90028, Slug: "forum8-rally-japan-2025"},
	{Season: 2025, Round: 14, Name: "Saudi Arabia", EventID: 90029, Slug: "rally-saudi-arabia-2025"},
}

type catalogKey struct {
	season int
	round  int
}

// Catalog resolves (season, round) to aggregator events.
type Catalog struct {
	events map[catalogKey]Event
}

// NewCatalog starts from the built-in table and lets overrides replace or
// add rounds.
func NewCatalog(overrides []Event) *Catalog {
	c := &Catalog{events: make(map[catalogKey]Event, len(season2025)+len(overrides))}
	for _, ev := range season2025 {
		c.events[catalogKey{ev.Season, ev.Round}] = ev
	}
	for _, ev := range overrides {
		if ev.Season == 0 || ev.Round == 0 || ev.EventID == 0 {
			continue
		}
		c.events[catalogKey{ev.Season, ev.Round}] = ev
	}
	return c
}

// Lookup returns the event for a round, or rally.ErrNotFound.
func (c *Catalog) Lookup(season, round int) (Event, error) {
	ev, ok := c.events[catalogKey{season, round}]
	if !ok {
		return Event{}, fmt.Errorf("no aggregator mapping for season %d round %d: %w", season, round, rally.ErrNotFound)
	}
	return ev, nil
}

// Season lists a season's events in round order.
func (c *Catalog) Season(season int) []Event {
	var out []Event
	for k, ev := range c.events {
		if k.season == season {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Round < out[j].Round })
	return out
}
