package refsync

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/jward/refsync/internal/store"
)

// PriorityMap records, for one library, the 1-based priority each
// referencing project assigns it. Values returned by Engine are copies.
type PriorityMap struct {
	Identity   string
	Reference  Reference
	IsLoaded   bool
	Priorities map[string]int
}

// Priority returns the priority projectID assigns the library.
func (m PriorityMap) Priority(projectID string) (int, bool) {
	p, ok := m.Priorities[projectID]
	return p, ok
}

// IsEmpty reports whether no project references the library.
func (m PriorityMap) IsEmpty() bool {
	return len(m.Priorities) == 0
}

// Projects returns the referencing project IDs, sorted.
func (m PriorityMap) Projects() []string {
	return slices.Sorted(maps.Keys(m.Priorities))
}

// priorityMaps indexes priority maps by library identity. All mutation
// happens from the active pass; the lock lets readers take snapshots
// concurrently.
type priorityMaps struct {
	mu         sync.RWMutex
	byIdentity map[string]*PriorityMap
}

func newPriorityMaps() *priorityMaps {
	return &priorityMaps{byIdentity: make(map[string]*PriorityMap)}
}

// add registers a new map. A second map for the same identity is a
// consistency fault and is rejected.
func (c *priorityMaps) add(m *PriorityMap) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byIdentity[m.Identity]; ok {
		return newSyncError(CodeConsistencyFault, m.Identity, m.Reference, "duplicate priority map", nil)
	}
	if m.Priorities == nil {
		m.Priorities = make(map[string]int)
	}
	c.byIdentity[m.Identity] = m
	return nil
}

// record sets projectID's priority for the library, creating its map on
// first sighting. It returns whether the library still needs loading,
// marking it loaded when it does, and whether an existing priority
// changed.
func (c *priorityMaps) record(identity string, ref Reference, projectID string, priority int) (needsLoad, moved bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.byIdentity[identity]
	if !ok {
		m = &PriorityMap{Identity: identity, Priorities: make(map[string]int)}
		c.byIdentity[identity] = m
	}
	old, had := m.Priorities[projectID]
	moved = had && old != priority
	m.Reference = ref
	m.Priorities[projectID] = priority
	if m.IsLoaded {
		return false, moved
	}
	m.IsLoaded = true
	return true, moved
}

func (c *priorityMaps) setLoaded(identity string, loaded bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.byIdentity[identity]; ok {
		m.IsLoaded = loaded
	}
}

// get returns a copy of the map for identity.
func (c *priorityMaps) get(identity string) (PriorityMap, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.byIdentity[identity]
	if !ok {
		return PriorityMap{}, false
	}
	return m.clone(), true
}

// removeEntry drops projectID from the library's map and deletes the map
// once empty. It reports whether the map was deleted.
func (c *priorityMaps) removeEntry(identity, projectID string) (emptied bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.byIdentity[identity]
	if !ok {
		return false
	}
	delete(m.Priorities, projectID)
	if len(m.Priorities) > 0 {
		return false
	}
	delete(c.byIdentity, identity)
	return true
}

func (c *priorityMaps) delete(identity string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byIdentity, identity)
}

// stale returns (identity, projectID) entries not present in seen,
// ordered by identity then project.
func (c *priorityMaps) stale(seen map[mapEntry]bool) []mapEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []mapEntry
	for _, identity := range slices.Sorted(maps.Keys(c.byIdentity)) {
		for _, pid := range c.byIdentity[identity].Projects() {
			e := mapEntry{identity: identity, projectID: pid}
			if !seen[e] {
				out = append(out, e)
			}
		}
	}
	return out
}

// snapshot returns copies of all maps ordered by identity.
func (c *priorityMaps) snapshot() []PriorityMap {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]PriorityMap, 0, len(c.byIdentity))
	for _, identity := range slices.Sorted(maps.Keys(c.byIdentity)) {
		out = append(out, c.byIdentity[identity].clone())
	}
	return out
}

// entries flattens the maps for persistence.
func (c *priorityMaps) entries() []store.PriorityEntry {
	var out []store.PriorityEntry
	for _, m := range c.snapshot() {
		for _, pid := range m.Projects() {
			out = append(out, store.PriorityEntry{Identity: m.Identity, ProjectID: pid, Priority: m.Priorities[pid]})
		}
	}
	return out
}

func (m *PriorityMap) clone() PriorityMap {
	c := *m
	c.Priorities = maps.Clone(m.Priorities)
	return c
}

// mapEntry is one project's entry in one library's priority map.
type mapEntry struct {
	identity  string
	projectID string
}

func (e mapEntry) String() string {
	return fmt.Sprintf("%s@%s", e.identity, e.projectID)
}
