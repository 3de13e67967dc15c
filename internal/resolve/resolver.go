package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/antzucaro/matchr"
	"go.uber.org/zap"

	"github.com/JakeFAU/rally-results-ingest/internal/rally"
)

// ErrUnresolvable reports a candidate that cannot be given an identity,
// such as a person without a name. Callers count it as skipped.
var ErrUnresolvable = errors.New("unresolvable reference")

// DefaultSimilarity is the Jaro-Winkler threshold for surname matches.
const DefaultSimilarity = 0.94

// Resolver assigns stored identities. Create one per run: it caches the
// known people of each role and the manufacturer ids it has upserted.
type Resolver struct {
	store     rally.Store
	logger    *zap.Logger
	threshold float64

	mu            sync.Mutex
	people        map[rally.Role][]rally.Person
	manufacturers map[string]int64
}

// NewResolver builds a Resolver over store.
func NewResolver(store rally.Store, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		store:         store,
		logger:        logger,
		threshold:     DefaultSimilarity,
		people:        make(map[rally.Role][]rally.Person),
		manufacturers: make(map[string]int64),
	}
}

// Person resolves candidate to a stored identity and merges it. The
// external id wins, then an exact name, then a fuzzy surname match.
func (r *Resolver) Person(ctx context.Context, role rally.Role, candidate rally.Person) (rally.UpsertResult, error) {
	candidate.Name = strings.TrimSpace(candidate.Name)
	if candidate.Name == "" {
		return rally.UpsertResult{}, fmt.Errorf("%w: %s without a name", ErrUnresolvable, role)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	matched := false
	if candidate.ExternalID != nil {
		stored, err := r.store.FindPersonByExternalID(ctx, role, *candidate.ExternalID)
		switch {
		case err == nil:
			candidate.Name = stored.Name
			matched = true
		case !errors.Is(err, rally.ErrNotFound):
			return rally.UpsertResult{}, fmt.Errorf("find %s by external id: %w", role, err)
		}
	}

	if !matched {
		known, err := r.knownLocked(ctx, role)
		if err != nil {
			return rally.UpsertResult{}, err
		}
		name, ok := r.match(known, candidate)
		switch {
		case ok && name != candidate.Name:
			r.logger.Debug("fuzzy name match",
				zap.String("role", string(role)),
				zap.String("candidate", candidate.Name),
				zap.String("stored", name),
			)
			candidate.Name = name
		case !ok && nameTaken(known, candidate.Name):
			// Same short name, different external id: a namesake.
			candidate.Name = fmt.Sprintf("%s (%d)", candidate.Name, *candidate.ExternalID)
			r.logger.Info("namesake stored separately",
				zap.String("role", string(role)),
				zap.String("name", candidate.Name),
			)
		}
	}

	res, err := r.store.UpsertPerson(ctx, role, candidate)
	if err != nil {
		return rally.UpsertResult{}, fmt.Errorf("upsert %s %q: %w", role, candidate.Name, err)
	}
	if res.Inserted {
		candidate.ID = res.ID
		r.people[role] = append(r.people[role], candidate)
	} else if candidate.ExternalID != nil {
		for i := range r.people[role] {
			if p := &r.people[role][i]; p.ID == res.ID && p.ExternalID == nil {
				p.ExternalID = candidate.ExternalID
			}
		}
	}
	return res, nil
}

// Manufacturer merges the canonical manufacturer for raw and returns its id.
// A blank label yields ok=false.
func (r *Resolver) Manufacturer(ctx context.Context, raw string, fullName, nationality *string) (int64, bool, error) {
	name := Manufacturer(raw)
	if name == "" {
		return 0, false, nil
	}
	if fullName == nil && name != strings.TrimSpace(raw) {
		fullName = rally.StringPtr(strings.TrimSpace(raw))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.manufacturers[name]; ok && fullName == nil && nationality == nil {
		return id, true, nil
	}
	res, err := r.store.UpsertManufacturer(ctx, rally.Manufacturer{
		Name:        name,
		FullName:    fullName,
		Nationality: nationality,
	})
	if err != nil {
		return 0, false, fmt.Errorf("upsert manufacturer %q: %w", name, err)
	}
	r.manufacturers[name] = res.ID
	return res.ID, true, nil
}

// Crew merges a crew; the driver reference is mandatory.
func (r *Resolver) Crew(ctx context.Context, c rally.Crew) (rally.UpsertResult, error) {
	if c.RallyID == 0 || c.DriverID == 0 {
		return rally.UpsertResult{}, fmt.Errorf("%w: crew without rally or driver", ErrUnresolvable)
	}
	res, err := r.store.UpsertCrew(ctx, c)
	if err != nil {
		return rally.UpsertResult{}, fmt.Errorf("upsert crew: %w", err)
	}
	return res, nil
}

func (r *Resolver) knownLocked(ctx context.Context, role rally.Role) ([]rally.Person, error) {
	if known, ok := r.people[role]; ok {
		return known, nil
	}
	known, err := r.store.ListPeople(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", role, err)
	}
	if known == nil {
		known = []rally.Person{}
	}
	r.people[role] = known
	return known, nil
}

// match returns the stored name that candidate refers to: the exact name if
// known, otherwise the most similar surname sharing the same initial. People
// whose external id conflicts with the candidate's are never matched.
func (r *Resolver) match(known []rally.Person, candidate rally.Person) (string, bool) {
	surname, initial := SplitShortName(candidate.Name)
	foldedSurname := Fold(surname)

	best, bestScore := "", 0.0
	for _, p := range known {
		if conflicting(p.ExternalID, candidate.ExternalID) {
			continue
		}
		if p.Name == candidate.Name {
			return p.Name, true
		}
		ks, ki := SplitShortName(p.Name)
		if !strings.EqualFold(ki, initial) {
			continue
		}
		score := 1.0
		if !strings.EqualFold(ks, surname) {
			score = matchr.JaroWinkler(Fold(ks), foldedSurname, false)
		}
		if score >= r.threshold && score > bestScore {
			best, bestScore = p.Name, score
		}
	}
	return best, best != ""
}

func conflicting(stored, incoming *int64) bool {
	return stored != nil && incoming != nil && *stored != *incoming
}

func nameTaken(known []rally.Person, name string) bool {
	for _, p := range known {
		if p.Name == name {
			return true
		}
	}
	return false
}
