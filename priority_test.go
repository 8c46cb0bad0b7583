package refsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/refsync/internal/store"
)

func TestPriorityMaps_Record(t *testing.T) {
	t.Parallel()
	c := newPriorityMaps()

	needsLoad, moved := c.record(alphaID, alphaRef(), "P1", 1)
	assert.True(t, needsLoad)
	assert.False(t, moved)

	needsLoad, moved = c.record(alphaID, alphaRef(), "P2", 3)
	assert.False(t, needsLoad, "already marked loaded")
	assert.False(t, moved)

	needsLoad, moved = c.record(alphaID, alphaRef(), "P1", 2)
	assert.False(t, needsLoad)
	assert.True(t, moved)

	m, ok := c.get(alphaID)
	require.True(t, ok)
	assert.True(t, m.IsLoaded)
	assert.Equal(t, map[string]int{"P1": 2, "P2": 3}, m.Priorities)
	p, ok := m.Priority("P2")
	assert.True(t, ok)
	assert.Equal(t, 3, p)
	_, ok = m.Priority("P9")
	assert.False(t, ok)
	assert.Equal(t, []string{"P1", "P2"}, m.Projects())
}

func TestPriorityMaps_GetReturnsCopy(t *testing.T) {
	t.Parallel()
	c := newPriorityMaps()
	c.record(alphaID, alphaRef(), "P1", 1)

	m, _ := c.get(alphaID)
	m.Priorities["P1"] = 99
	m.IsLoaded = false

	again, _ := c.get(alphaID)
	assert.Equal(t, 1, again.Priorities["P1"])
	assert.True(t, again.IsLoaded)
}

func TestPriorityMaps_RemoveEntry(t *testing.T) {
	t.Parallel()
	c := newPriorityMaps()
	c.record(alphaID, alphaRef(), "P1", 1)
	c.record(alphaID, alphaRef(), "P2", 1)

	assert.False(t, c.removeEntry(alphaID, "P1"))
	m, ok := c.get(alphaID)
	require.True(t, ok)
	assert.False(t, m.IsEmpty())

	assert.True(t, c.removeEntry(alphaID, "P2"))
	_, ok = c.get(alphaID)
	assert.False(t, ok, "an emptied map is discarded")

	assert.False(t, c.removeEntry("nope", "P1"))
}

func TestPriorityMaps_AddRejectsDuplicates(t *testing.T) {
	t.Parallel()
	c := newPriorityMaps()
	require.NoError(t, c.add(&PriorityMap{Identity: alphaID}))

	err := c.add(&PriorityMap{Identity: alphaID})
	require.Error(t, err)
	assert.True(t, IsConsistencyFault(err))
}

func TestPriorityMaps_Stale(t *testing.T) {
	t.Parallel()
	c := newPriorityMaps()
	c.record(betaID, betaRef(), "P1", 2)
	c.record(alphaID, alphaRef(), "P2", 1)
	c.record(alphaID, alphaRef(), "P1", 1)

	seen := map[mapEntry]bool{{identity: alphaID, projectID: "P1"}: true}
	assert.Equal(t, []mapEntry{
		{identity: alphaID, projectID: "P2"},
		{identity: betaID, projectID: "P1"},
	}, c.stale(seen))
}

func TestPriorityMaps_SnapshotAndEntries(t *testing.T) {
	t.Parallel()
	c := newPriorityMaps()
	c.record(betaID, betaRef(), "P1", 2)
	c.record(alphaID, alphaRef(), "P1", 1)
	c.setLoaded(betaID, false)

	snap := c.snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, alphaID, snap[0].Identity)
	assert.False(t, snap[1].IsLoaded)

	assert.Equal(t, []store.PriorityEntry{
		{Identity: alphaID, ProjectID: "P1", Priority: 1},
		{Identity: betaID, ProjectID: "P1", Priority: 2},
	}, c.entries())

	c.delete(betaID)
	assert.Len(t, c.snapshot(), 1)
}

func TestMapEntry_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, alphaID+"@P1", mapEntry{identity: alphaID, projectID: "P1"}.String())
}
