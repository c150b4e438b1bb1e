package loader

import (
	"context"
	"strings"

	"mdload/internal/storage"
)

// keyCache memoizes committed key sets per (table, column) within one run.
//
// Correctness depends on invalidation: after a table commits, its cached sets
// must be dropped so later tables' FK checks observe the rows committed
// earlier in this same run.
type keyCache struct {
	dest storage.Destination
	sets map[string]map[string]struct{}
}

func newKeyCache(dest storage.Destination) *keyCache {
	return &keyCache{dest: dest, sets: make(map[string]map[string]struct{})}
}

func cacheKey(table, column string) string { return table + "\x00" + column }

// KeySet implements refcheck.KeySets over the destination with memoization.
func (c *keyCache) KeySet(ctx context.Context, table, column string) (map[string]struct{}, error) {
	k := cacheKey(table, column)
	if set, ok := c.sets[k]; ok {
		return set, nil
	}
	set, err := c.dest.KeySet(ctx, table, column)
	if err != nil {
		return nil, err
	}
	c.sets[k] = set
	return set, nil
}

// invalidate drops every cached set for table.
func (c *keyCache) invalidate(table string) {
	prefix := table + "\x00"
	for k := range c.sets {
		if strings.HasPrefix(k, prefix) {
			delete(c.sets, k)
		}
	}
}
