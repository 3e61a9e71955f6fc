// Package iocache implements the per-subsimulator lazy get/set caches
// described by the I/O cache contract: a get-cache holding (original,
// modified, modifier) triples refreshed after every slave get_variables
// call, and a set-cache that buffers pending input writes between macro
// steps in a sparse, insertion-ordered send buffer.
//
// Caches are accessed only from the execution's own goroutine (see the
// concurrency model), so neither type takes a lock.
package iocache

import (
	"sort"

	"github.com/sarchlab/cosim"
	"github.com/sarchlab/cosim/cosimerr"
	"github.com/sarchlab/cosim/simtime"
)

// Modifier transforms a value given the macro step's delta-t. Installed on
// either a get-cache entry (applied to slave outputs) or a set-cache entry
// (applied to values about to be written into the slave).
type Modifier func(original cosim.Value, dt simtime.Duration) cosim.Value

type getEntry struct {
	original cosim.Value
	modified cosim.Value
	modifier Modifier
}

// GetCache is the get-side cache for one (subsimulator, type) pair.
type GetCache struct {
	typ     cosim.Type
	entries map[int]*getEntry
	order   []int
}

// NewGetCache creates an empty get-cache for the given type.
func NewGetCache(typ cosim.Type) *GetCache {
	return &GetCache{typ: typ, entries: make(map[int]*getEntry)}
}

// Expose idempotently registers ref, initialising both original and
// modified values to the type's zero.
func (c *GetCache) Expose(ref int) {
	if _, ok := c.entries[ref]; ok {
		return
	}
	zero := cosim.Zero(c.typ)
	c.entries[ref] = &getEntry{original: zero, modified: zero}
	c.order = append(c.order, ref)
}

// IsExposed reports whether ref has been exposed.
func (c *GetCache) IsExposed(ref int) bool {
	_, ok := c.entries[ref]
	return ok
}

// Get returns the modified value for ref, failing with NotExposed if ref was
// never exposed.
func (c *GetCache) Get(ref int) (cosim.Value, error) {
	e, ok := c.entries[ref]
	if !ok {
		return cosim.Value{}, &cosimerr.NotExposed{Reference: ref}
	}
	return e.modified, nil
}

// SetModifier installs or clears (fn == nil) an output modifier for ref.
func (c *GetCache) SetModifier(ref int, fn Modifier) error {
	e, ok := c.entries[ref]
	if !ok {
		return &cosimerr.NotExposed{Reference: ref}
	}
	e.modifier = fn
	return nil
}

// HasModifier reports whether ref currently has an installed modifier.
func (c *GetCache) HasModifier(ref int) bool {
	e, ok := c.entries[ref]
	return ok && e.modifier != nil
}

// SetOriginal records the value most recently read from the slave for ref.
// Called by the subsimulator wrapper after a batched get, before
// RunModifiers.
func (c *GetCache) SetOriginal(ref int, v cosim.Value) error {
	e, ok := c.entries[ref]
	if !ok {
		return &cosimerr.NotExposed{Reference: ref}
	}
	e.original = v
	return nil
}

// RunModifiers writes modified[i] = modifier[i](original[i], dt) for every
// exposed ref with an installed modifier, else copies original through. Must
// be invoked once after every slave get_variables call.
func (c *GetCache) RunModifiers(dt simtime.Duration) {
	for _, ref := range c.order {
		e := c.entries[ref]
		if e.modifier != nil {
			e.modified = e.modifier(e.original, dt)
		} else {
			e.modified = e.original
		}
	}
}

// ExposedRefs returns the exposed references in expose order.
func (c *GetCache) ExposedRefs() []int {
	out := make([]int, len(c.order))
	copy(out, c.order)
	return out
}

type setEntry struct {
	lastValue   cosim.Value
	modifier    Modifier
	sparseIndex int // < 0 iff no pending set for this tick
}

// SetCache is the set-side cache for one (subsimulator, type) pair. It
// amortises repeated Set calls to O(1) and keeps per-step wire traffic
// proportional to the variables actually written, not to those exposed.
type SetCache struct {
	typ          cosim.Type
	entries      map[int]*setEntry
	order        []int // expose order
	sendBuffer   []int // refs pending this tick, in insertion order
	modifiersRan bool

	cachedRefs   []int
	cachedValues []cosim.Value
}

// NewSetCache creates an empty set-cache for the given type.
func NewSetCache(typ cosim.Type) *SetCache {
	return &SetCache{typ: typ, entries: make(map[int]*setEntry)}
}

// Expose records ref and seeds last_value with start.
func (c *SetCache) Expose(ref int, start cosim.Value) {
	if _, ok := c.entries[ref]; ok {
		return
	}
	c.entries[ref] = &setEntry{lastValue: start, sparseIndex: -1}
	c.order = append(c.order, ref)
}

// IsExposed reports whether ref has been exposed.
func (c *SetCache) IsExposed(ref int) bool {
	_, ok := c.entries[ref]
	return ok
}

// LastValue returns the most recently set (or start) value for ref.
func (c *SetCache) LastValue(ref int) (cosim.Value, error) {
	e, ok := c.entries[ref]
	if !ok {
		return cosim.Value{}, &cosimerr.NotExposed{Reference: ref}
	}
	return e.lastValue, nil
}

// SetValue updates last_value and appends (ref, v) to the send buffer if
// not already pending, else overwrites the existing slot. Fails with
// InvalidState if modifiers have already run for the current tick.
func (c *SetCache) SetValue(ref int, v cosim.Value) error {
	if c.modifiersRan {
		return &cosimerr.InvalidState{Reason: "modifiers already ran for this tick"}
	}
	e, ok := c.entries[ref]
	if !ok {
		return &cosimerr.NotExposed{Reference: ref}
	}
	e.lastValue = v
	c.ensurePending(ref, e)
	return nil
}

// SetModifier installs or clears (fn == nil) a modifier for ref, ensuring
// ref is present in the send buffer so the modifier runs at least once per
// tick.
func (c *SetCache) SetModifier(ref int, fn Modifier) error {
	e, ok := c.entries[ref]
	if !ok {
		return &cosimerr.NotExposed{Reference: ref}
	}
	e.modifier = fn
	if fn != nil {
		c.ensurePending(ref, e)
	}
	return nil
}

// HasModifier reports whether ref currently has an installed modifier.
func (c *SetCache) HasModifier(ref int) bool {
	e, ok := c.entries[ref]
	return ok && e.modifier != nil
}

func (c *SetCache) ensurePending(ref int, e *setEntry) {
	if e.sparseIndex >= 0 {
		return
	}
	e.sparseIndex = len(c.sendBuffer)
	c.sendBuffer = append(c.sendBuffer, ref)
}

// ModifyAndGet is idempotent within a tick: the first call applies all
// modifiers, in insertion order, to the pending send buffer; subsequent
// calls (without an intervening Reset) return the cached post-modifier
// buffers. filter, if non-nil, is consulted only on the first call and
// drops refs for which it returns false — used during setup to skip
// constant/input causality variables.
func (c *SetCache) ModifyAndGet(dt simtime.Duration, filter func(ref int) bool) ([]int, []cosim.Value) {
	if c.modifiersRan {
		return c.cachedRefs, c.cachedValues
	}

	refs := make([]int, 0, len(c.sendBuffer))
	values := make([]cosim.Value, 0, len(c.sendBuffer))
	for _, ref := range c.sendBuffer {
		if filter != nil && !filter(ref) {
			continue
		}
		e := c.entries[ref]
		v := e.lastValue
		if e.modifier != nil {
			v = e.modifier(v, dt)
		}
		refs = append(refs, ref)
		values = append(values, v)
	}

	c.cachedRefs = refs
	c.cachedValues = values
	c.modifiersRan = true
	return refs, values
}

// Reset clears the send buffer and the "modifiers ran" flag, readying the
// cache for the next tick.
func (c *SetCache) Reset() {
	for _, ref := range c.sendBuffer {
		c.entries[ref].sparseIndex = -1
	}
	c.sendBuffer = c.sendBuffer[:0]
	c.modifiersRan = false
	c.cachedRefs = nil
	c.cachedValues = nil
}

// ExposedRefs returns the exposed references in expose order.
func (c *SetCache) ExposedRefs() []int {
	out := make([]int, len(c.order))
	copy(out, c.order)
	return out
}

// ModifiedRefs returns the sorted set of references that currently carry an
// installed modifier (get or set side). Used by Execution.GetModifiedVariables.
func ModifiedRefs(get *GetCache, set *SetCache) []int {
	seen := make(map[int]struct{})
	if get != nil {
		for _, ref := range get.order {
			if get.entries[ref].modifier != nil {
				seen[ref] = struct{}{}
			}
		}
	}
	if set != nil {
		for _, ref := range set.order {
			if set.entries[ref].modifier != nil {
				seen[ref] = struct{}{}
			}
		}
	}
	out := make([]int, 0, len(seen))
	for ref := range seen {
		out = append(out, ref)
	}
	sort.Ints(out)
	return out
}
