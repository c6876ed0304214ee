package layout

import "koan/internal/types"

type cacheEntry struct {
	Layout TypeLayout
	Err    *Error
}

type cache struct {
	byType map[types.TypeID]cacheEntry
	enums  map[types.TypeID]EnumLayout
	vecs   map[types.TypeID]DynVecLayout
}

func newCache() *cache {
	return &cache{
		byType: make(map[types.TypeID]cacheEntry, 256),
		enums:  make(map[types.TypeID]EnumLayout, 32),
		vecs:   make(map[types.TypeID]DynVecLayout, 16),
	}
}

func (c *cache) get(id types.TypeID) (cacheEntry, bool) {
	if c == nil {
		return cacheEntry{}, false
	}
	e, ok := c.byType[id]
	return e, ok
}

func (c *cache) put(id types.TypeID, e cacheEntry) {
	if c == nil {
		return
	}
	c.byType[id] = e
}

func (c *cache) getEnum(id types.TypeID) (EnumLayout, bool) {
	if c == nil {
		return EnumLayout{}, false
	}
	l, ok := c.enums[id]
	return l, ok
}

func (c *cache) putEnum(id types.TypeID, l EnumLayout) {
	if c == nil {
		return
	}
	c.enums[id] = l
}

func (c *cache) getVec(id types.TypeID) (DynVecLayout, bool) {
	if c == nil {
		return DynVecLayout{}, false
	}
	l, ok := c.vecs[id]
	return l, ok
}

func (c *cache) putVec(id types.TypeID, l DynVecLayout) {
	if c == nil {
		return
	}
	c.vecs[id] = l
}
