// Package state holds the per-cycle raw response cache and the selection
// filters applied when deriving the view.
package state

import (
	"time"

	"github.com/dokzlo13/nvxd/internal/nvx"
)

// RawCache is the set of group documents fetched in one poll cycle.
// It is read-only once built; a new cycle builds a new cache.
type RawCache struct {
	docs      map[nvx.Group]nvx.Document
	errs      map[nvx.Group]error
	mode      nvx.Mode
	model     string
	attempted int
	fetchedAt time.Time
}

// Get returns the document of g, if it was fetched successfully.
func (c *RawCache) Get(g nvx.Group) (nvx.Document, bool) {
	if c == nil {
		return nil, false
	}
	doc, ok := c.docs[g]
	return doc, ok
}

// Err returns the fetch error of g, if any.
func (c *RawCache) Err(g nvx.Group) error {
	if c == nil {
		return nil
	}
	return c.errs[g]
}

// Mode returns the device mode resolved for this cycle
func (c *RawCache) Mode() nvx.Mode {
	if c == nil {
		return nvx.ModeUnknown
	}
	return c.mode
}

// Model returns the device model reported in this cycle
func (c *RawCache) Model() string {
	if c == nil {
		return ""
	}
	return c.model
}

// Groups returns how many groups hold a document
func (c *RawCache) Groups() int {
	if c == nil {
		return 0
	}
	return len(c.docs)
}

// Failures returns how many attempted groups failed
func (c *RawCache) Failures() int {
	if c == nil {
		return 0
	}
	return len(c.errs)
}

// Attempted returns how many groups were requested
func (c *RawCache) Attempted() int {
	if c == nil {
		return 0
	}
	return c.attempted
}

// FetchedAt returns when the cycle that produced the cache finished
func (c *RawCache) FetchedAt() time.Time {
	if c == nil {
		return time.Time{}
	}
	return c.fetchedAt
}

// Builder accumulates one cycle's documents.
type Builder struct {
	cache *RawCache
}

// NewBuilder creates a builder for a cycle with the given device mode.
func NewBuilder(mode nvx.Mode) *Builder {
	return &Builder{cache: &RawCache{
		docs: make(map[nvx.Group]nvx.Document),
		errs: make(map[nvx.Group]error),
		mode: mode,
	}}
}

// Put stores the document of g.
func (b *Builder) Put(g nvx.Group, doc nvx.Document) {
	b.cache.attempted++
	b.cache.docs[g] = doc
	delete(b.cache.errs, g)
}

// Fail marks g as attempted and absent.
func (b *Builder) Fail(g nvx.Group, err error) {
	b.cache.attempted++
	b.cache.errs[g] = err
	delete(b.cache.docs, g)
}

// SetModel records the device model.
func (b *Builder) SetModel(model string) {
	b.cache.model = model
}

// Model returns the model recorded so far
func (b *Builder) Model() string {
	return b.cache.model
}

// Build freezes the cache. The builder must not be used afterwards.
func (b *Builder) Build() *RawCache {
	c := b.cache
	c.fetchedAt = time.Now()
	b.cache = nil
	return c
}
