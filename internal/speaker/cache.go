package speaker

import "sync"

// Cache holds one typed value per property name and pushes changes to a
// notify callback.
//
// Writes come only from the owning speaker while it holds its own lock.
// Reads may come from any goroutine; the internal RWMutex keeps host reads
// from waiting on an in-flight device command.
type Cache struct {
	mu     sync.RWMutex
	props  map[string]*Property
	order  []string
	notify func(Property)
}

// NewCache creates a cache for the given property definitions.
// notify may be nil.
func NewCache(defs []Property, notify func(Property)) *Cache {
	c := &Cache{
		props:  make(map[string]*Property, len(defs)),
		order:  make([]string, 0, len(defs)),
		notify: notify,
	}
	for i := range defs {
		p := defs[i]
		c.props[p.Name] = &p
		c.order = append(c.order, p.Name)
	}
	return c
}

// Get returns the cached value of name.
func (c *Cache) Get(name string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.props[name]
	if !ok {
		return nil, false
	}
	return p.Value, true
}

// Snapshot returns a copy of the named property.
func (c *Cache) Snapshot(name string) (Property, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.props[name]
	if !ok {
		return Property{}, false
	}
	return *p, true
}

// List returns copies of all properties in declaration order.
func (c *Cache) List() []Property {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Property, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, *c.props[name])
	}
	return out
}

// SetCached stores value under name and reports whether it differed from
// the previous value. Only a change triggers a notification.
func (c *Cache) SetCached(name string, value any) bool {
	c.mu.Lock()
	p, ok := c.props[name]
	if !ok || valuesEqual(p.Value, value) {
		c.mu.Unlock()
		return false
	}
	p.Value = value
	snap := *p
	c.mu.Unlock()

	c.push(snap)
	return true
}

// Notify pushes the current value of name to the host unconditionally.
func (c *Cache) Notify(name string) {
	if snap, ok := c.Snapshot(name); ok {
		c.push(snap)
	}
}

// SetReadOnly updates the read-only flag and reports whether it changed.
// The flag is schema, not value, so no notification is sent.
func (c *Cache) SetReadOnly(name string, readOnly bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.props[name]
	if !ok || p.ReadOnly == readOnly {
		return false
	}
	p.ReadOnly = readOnly
	return true
}

func (c *Cache) push(p Property) {
	if c.notify != nil {
		c.notify(p)
	}
}
