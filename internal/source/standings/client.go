// Package standings reads the championship standings page published by a
// manufacturer team and maps its two tables onto canonical names.
package standings

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	tables "github.com/JakeFAU/rally-results-ingest/internal/extract/standings"
	"github.com/JakeFAU/rally-results-ingest/internal/rally"
	"github.com/JakeFAU/rally-results-ingest/internal/resolve"
)

const (
	// Source labels metrics, logs and errors produced by this client.
	Source = "standings"

	// DefaultBaseURL is the team site hosting the standings.
	DefaultBaseURL = "https://toyotagazooracing.com"
)

// Client fetches the standings page of a season.
type Client struct {
	baseURL string
	pages   rally.PageFetcher
	logger  *zap.Logger
}

// New builds a Client.
func New(baseURL string, pages rally.PageFetcher, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		pages:   pages,
		logger:  logger.Named("standings"),
	}
}

// URL returns the standings page of season.
func (c *Client) URL(season int) string {
	return fmt.Sprintf("%s/wrc/standings/%d/", c.baseURL, season)
}

// Fetch returns both tables of season. Layout drift that empties both
// tables is reported as rally.ErrNoData.
func (c *Client) Fetch(ctx context.Context, season int) (tables.Tables, error) {
	url := c.URL(season)
	page, err := c.pages.FetchPage(ctx, url)
	if err != nil {
		return tables.Tables{}, fmt.Errorf("fetch standings %d: %w", season, err)
	}
	t := tables.Parse(page.Body)
	if t.Empty() {
		return tables.Tables{}, &rally.SourceError{
			Source:   Source,
			Endpoint: url,
			Err:      fmt.Errorf("%w: no standings rows for %d", rally.ErrNoData, season),
		}
	}
	c.logger.Debug("standings parsed",
		zap.Int("season", season),
		zap.Int("manufacturers", len(t.Manufacturers)),
		zap.Int("drivers", len(t.Drivers)),
	)
	return t, nil
}

// DriverRow is a drivers' championship line with the canonical name.
type DriverRow struct {
	Position    int
	Name        string
	Printed     string
	Nationality *string
	Points      int
}

// ManufacturerRow is a manufacturers' championship line.
type ManufacturerRow struct {
	Position    int
	Name        string
	FullName    string
	Nationality *string
	Points      int
}

func nationality(token string) *string {
	if token == "" {
		return nil
	}
	return rally.Ptr(resolve.NationalityFromSlug(token))
}

// MapDrivers converts printed "S. OGIER" names to the "Ogier S." key.
func MapDrivers(rows []tables.Row) []DriverRow {
	out := make([]DriverRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, DriverRow{
			Position:    r.Position,
			Name:        resolve.FromInitialSurname(r.Name),
			Printed:     r.Name,
			Nationality: nationality(r.FlagToken),
			Points:      r.Points,
		})
	}
	return out
}

// MapManufacturers converts team display names to canonical manufacturers,
// keeping the display name as the full name.
func MapManufacturers(rows []tables.Row) []ManufacturerRow {
	out := make([]ManufacturerRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, ManufacturerRow{
			Position:    r.Position,
			Name:        resolve.Manufacturer(r.Name),
			FullName:    r.Name,
			Nationality: nationality(r.FlagToken),
			Points:      r.Points,
		})
	}
	return out
}
