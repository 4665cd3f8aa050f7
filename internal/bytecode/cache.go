package bytecode

import (
	"fmt"

	"dexlens/internal/dexfile"
)

type cached struct {
	body *MethodBody
	err  error
}

// Cache holds scanned bodies by method index. A method is scanned at
// most once; scan failures are cached too. Not safe for concurrent use.
type Cache struct {
	maxSteps int
	bodies   map[uint32]cached
	scans    int
}

// NewCache returns an empty cache.
func NewCache(maxSteps int) *Cache {
	return &Cache{maxSteps: maxSteps, bodies: make(map[uint32]cached)}
}

// Get returns the body of method, loading its code_item at codeOff with
// load and scanning it on first request.
func (c *Cache) Get(method, codeOff uint32, load func(off uint32) (*dexfile.Code, error)) (*MethodBody, error) {
	if e, ok := c.bodies[method]; ok {
		return e.body, e.err
	}
	c.scans++
	var e cached
	code, err := load(codeOff)
	if err != nil {
		e.err = fmt.Errorf("bytecode: method %d: %w", method, err)
	} else if e.body, err = Scan(code.Insns, c.maxSteps); err != nil {
		e.err = fmt.Errorf("bytecode: method %d at 0x%x: %w", method, codeOff, err)
	}
	c.bodies[method] = e
	return e.body, e.err
}

// Lookup returns a previously scanned body.
func (c *Cache) Lookup(method uint32) (*MethodBody, bool) {
	e, ok := c.bodies[method]
	if !ok || e.err != nil {
		return nil, false
	}
	return e.body, true
}

// Scans returns how many scans the cache has run.
func (c *Cache) Scans() int { return c.scans }

// Len returns the number of cached methods.
func (c *Cache) Len() int { return len(c.bodies) }

// Reset drops every cached body.
func (c *Cache) Reset() {
	c.bodies = make(map[uint32]cached)
	c.scans = 0
}
