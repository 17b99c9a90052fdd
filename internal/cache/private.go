package cache

import (
	lru "github.com/hashicorp/golang-lru"
)

// PrivateQueryLRU remembers query hashes that were previously found to
// require a private_id and had none available, so a later identical request
// can skip the store lookup entirely rather than pay for a guaranteed miss.
type PrivateQueryLRU struct {
	cache *lru.Cache
}

// NewPrivateQueryLRU builds a bounded LRU of the given capacity.
func NewPrivateQueryLRU(size int) (*PrivateQueryLRU, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &PrivateQueryLRU{cache: c}, nil
}

// Mark records that key is known to be a private-scoped, unstorable query.
func (p *PrivateQueryLRU) Mark(key string) {
	p.cache.Add(key, struct{}{})
}

// KnownPrivate reports whether key was previously marked.
func (p *PrivateQueryLRU) KnownPrivate(key string) bool {
	return p.cache.Contains(key)
}
