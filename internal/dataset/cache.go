package dataset

// depKind names the inputs a cached value can depend on.
type depKind int

const (
	depMask depKind = iota
	depRole
	depColumn
)

// dep is one input of a cached value. Columns are identified by position,
// so renaming a column never invalidates anything.
type dep struct {
	kind depKind
	id   int
}

func maskDep() dep          { return dep{kind: depMask} }
func roleDep(r Role) dep    { return dep{kind: depRole, id: int(r)} }
func columnDep(col int) dep { return dep{kind: depColumn, id: col} }

type cacheEntry struct {
	value any
	deps  []dep
}

// depCache stores derived values together with the inputs they were computed
// from. Invalidating an input drops exactly the entries that read it.
type depCache struct {
	entries map[string]cacheEntry
	byDep   map[dep]map[string]struct{}

	// computed counts entries stored since creation.
	computed int
}

func newDepCache() *depCache {
	return &depCache{
		entries: make(map[string]cacheEntry),
		byDep:   make(map[dep]map[string]struct{}),
	}
}

func (c *depCache) get(key string) (any, bool) {
	e, ok := c.entries[key]
	return e.value, ok
}

func (c *depCache) put(key string, value any, deps ...dep) {
	c.drop(key)
	c.entries[key] = cacheEntry{value: value, deps: deps}
	for _, d := range deps {
		keys, ok := c.byDep[d]
		if !ok {
			keys = make(map[string]struct{})
			c.byDep[d] = keys
		}
		keys[key] = struct{}{}
	}
	c.computed++
}

// invalidate removes every entry that depends on d and returns how many were dropped.
func (c *depCache) invalidate(d dep) int {
	keys := c.byDep[d]
	n := 0
	for key := range keys {
		c.drop(key)
		n++
	}
	delete(c.byDep, d)
	return n
}

func (c *depCache) drop(key string) {
	e, ok := c.entries[key]
	if !ok {
		return
	}
	delete(c.entries, key)
	for _, d := range e.deps {
		if keys, ok := c.byDep[d]; ok {
			delete(keys, key)
			if len(keys) == 0 {
				delete(c.byDep, d)
			}
		}
	}
}

func (c *depCache) has(key string) bool {
	_, ok := c.entries[key]
	return ok
}

// cached returns the value stored under key, computing and storing it on a miss.
// Errors are not cached.
func cached[T any](c *depCache, key string, compute func() (T, []dep, error)) (T, error) {
	if v, ok := c.get(key); ok {
		return v.(T), nil
	}
	v, deps, err := compute()
	if err != nil {
		return v, err
	}
	c.put(key, v, deps...)
	return v, nil
}
