package resolve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/rally-results-ingest/internal/rally"
	"github.com/JakeFAU/rally-results-ingest/internal/storage/memory"
)

func TestPersonPrefersExternalID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewStore()
	stored, err := store.UpsertPerson(ctx, rally.RoleDriver, rally.Person{
		Name: "Ogier S.", ExternalID: rally.Ptr(int64(1)),
	})
	require.NoError(t, err)

	r := NewResolver(store, zap.NewNop())
	res, err := r.Person(ctx, rally.RoleDriver, rally.Person{
		Name: "Ogier Sébastien", ExternalID: rally.Ptr(int64(1)), Nationality: rally.Ptr("French"),
	})
	require.NoError(t, err)
	require.Equal(t, stored.ID, res.ID)
	require.False(t, res.Inserted)

	people, err := store.ListPeople(ctx, rally.RoleDriver)
	require.NoError(t, err)
	require.Len(t, people, 1)
	require.Equal(t, "French", *people[0].Nationality)
}

func TestPersonFuzzyMatchesSurname(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewStore()
	ids := make(map[string]int64)
	for _, name := range []string{"McErlean J.", "Tänak O.", "Evans E.", "Evans T."} {
		res, err := store.UpsertPerson(ctx, rally.RoleDriver, rally.Person{Name: name})
		require.NoError(t, err)
		ids[name] = res.ID
	}

	r := NewResolver(store, nil)
	for candidate, want := range map[string]string{
		"Mcerlean J.": "McErlean J.",
		"Tanak O.":    "Tänak O.",
		"Evans T.":    "Evans T.",
	} {
		res, err := r.Person(ctx, rally.RoleDriver, rally.Person{Name: candidate})
		require.NoError(t, err)
		require.False(t, res.Inserted, candidate)
		require.Equal(t, ids[want], res.ID, candidate)
	}

	// Different initial is a different person.
	res, err := r.Person(ctx, rally.RoleDriver, rally.Person{Name: "Tanak M."})
	require.NoError(t, err)
	require.True(t, res.Inserted)

	people, err := store.ListPeople(ctx, rally.RoleDriver)
	require.NoError(t, err)
	names := make([]string, 0, len(people))
	for _, p := range people {
		names = append(names, p.Name)
	}
	require.ElementsMatch(t, []string{"McErlean J.", "Tänak O.", "Evans E.", "Evans T.", "Tanak M."}, names)
}

func TestPersonRolesAreSeparate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewStore()
	r := NewResolver(store, zap.NewNop())

	d, err := r.Person(ctx, rally.RoleDriver, rally.Person{Name: "Solberg O."})
	require.NoError(t, err)
	c, err := r.Person(ctx, rally.RoleCodriver, rally.Person{Name: "Solberg O."})
	require.NoError(t, err)
	require.True(t, d.Inserted)
	require.True(t, c.Inserted)
	require.NotEqual(t, d.ID, c.ID)

	again, err := r.Person(ctx, rally.RoleDriver, rally.Person{Name: "Solberg O."})
	require.NoError(t, err)
	require.Equal(t, d.ID, again.ID)
}

func TestPersonWithoutNameIsUnresolvable(t *testing.T) {
	t.Parallel()

	r := NewResolver(memory.NewStore(), zap.NewNop())
	_, err := r.Person(context.Background(), rally.RoleDriver, rally.Person{Name: "  "})
	require.ErrorIs(t, err, ErrUnresolvable)
}

func TestManufacturerAndCrew(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewStore()
	r := NewResolver(store, zap.NewNop())

	_, ok, err := r.Manufacturer(ctx, "", nil, nil)
	require.NoError(t, err)
	require.False(t, ok)

	id, ok, err := r.Manufacturer(ctx, "TOYOTA GAZOO Racing WRT", nil, rally.Ptr("Japanese"))
	require.NoError(t, err)
	require.True(t, ok)
	again, _, err := r.Manufacturer(ctx, "Toyota Yaris Rally1", nil, nil)
	require.NoError(t, err)
	require.Equal(t, id, again)

	rallyRes, err := store.UpsertRally(ctx, rally.Rally{Season: 2025, Round: 1, Name: "Monte Carlo"})
	require.NoError(t, err)
	driver, err := r.Person(ctx, rally.RoleDriver, rally.Person{Name: "Evans E."})
	require.NoError(t, err)

	_, err = r.Crew(ctx, rally.Crew{RallyID: rallyRes.ID})
	require.ErrorIs(t, err, ErrUnresolvable)

	crew, err := r.Crew(ctx, rally.Crew{RallyID: rallyRes.ID, DriverID: driver.ID, ManufacturerID: rally.Ptr(id)})
	require.NoError(t, err)
	refs, err := store.ListCrews(ctx, rallyRes.ID)
	require.NoError(t, err)
	require.Equal(t, crew.ID, refs[0].CrewID)
	require.Equal(t, "Toyota", *refs[0].Manufacturer)
}

func TestPersonDoesNotMergeConflictingExternalIDs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewStore()
	first, err := store.UpsertPerson(ctx, rally.RoleDriver, rally.Person{
		Name: "Johansson J.", ExternalID: rally.Ptr(int64(10)),
	})
	require.NoError(t, err)

	r := NewResolver(store, zap.NewNop())
	near, err := r.Person(ctx, rally.RoleDriver, rally.Person{Name: "Johanson J.", ExternalID: rally.Ptr(int64(20))})
	require.NoError(t, err)
	require.True(t, near.Inserted)
	require.NotEqual(t, first.ID, near.ID)

	namesake, err := r.Person(ctx, rally.RoleDriver, rally.Person{Name: "Johansson J.", ExternalID: rally.Ptr(int64(30))})
	require.NoError(t, err)
	require.True(t, namesake.Inserted)

	kept, err := store.FindPersonByExternalID(ctx, rally.RoleDriver, 10)
	require.NoError(t, err)
	require.Equal(t, first.ID, kept.ID)
	require.Equal(t, "Johansson J.", kept.Name)

	other, err := store.FindPersonByExternalID(ctx, rally.RoleDriver, 30)
	require.NoError(t, err)
	require.Equal(t, namesake.ID, other.ID)
	require.Equal(t, "Johansson J. (30)", other.Name)

	people, err := store.ListPeople(ctx, rally.RoleDriver)
	require.NoError(t, err)
	require.Len(t, people, 3)
}

func TestPersonAdoptsExternalIDOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewStore()
	stored, err := store.UpsertPerson(ctx, rally.RoleDriver, rally.Person{Name: "Katsuta T."})
	require.NoError(t, err)

	r := NewResolver(store, nil)
	res, err := r.Person(ctx, rally.RoleDriver, rally.Person{Name: "Katsuta T.", ExternalID: rally.Ptr(int64(7))})
	require.NoError(t, err)
	require.Equal(t, stored.ID, res.ID)

	res, err = r.Person(ctx, rally.RoleDriver, rally.Person{Name: "Katsuta T.", ExternalID: rally.Ptr(int64(8))})
	require.NoError(t, err)
	require.True(t, res.Inserted, "a second external id is a different person")

	kept, err := store.FindPersonByExternalID(ctx, rally.RoleDriver, 7)
	require.NoError(t, err)
	require.Equal(t, stored.ID, kept.ID)
}
