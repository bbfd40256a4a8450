package loader

import (
	"fmt"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"

	"marketcore/pkg/contracts/domain"
)

// TableCache keeps recent Loaded outcomes keyed by file identity, so
// repeated loads of an unchanged file skip parsing.
type TableCache struct {
	entries *lru.Cache[string, domain.LoadOutcome]
}

// NewTableCache creates a cache holding up to size outcomes
func NewTableCache(size int) (*TableCache, error) {
	c, err := lru.New[string, domain.LoadOutcome](size)
	if err != nil {
		return nil, err
	}
	return &TableCache{entries: c}, nil
}

// Get returns a cached outcome
func (c *TableCache) Get(key string) (domain.LoadOutcome, bool) {
	return c.entries.Get(key)
}

// Add stores a Loaded outcome. Other outcomes are not cached.
func (c *TableCache) Add(key string, o domain.LoadOutcome) {
	if o.Status != domain.LoadStatusLoaded {
		return
	}
	c.entries.Add(key, o)
}

// Len returns the number of cached outcomes
func (c *TableCache) Len() int { return c.entries.Len() }

// Purge empties the cache
func (c *TableCache) Purge() { c.entries.Purge() }

// cacheKey changes whenever the file is rewritten or read differently.
func cacheKey(src domain.SourceDescriptor, info os.FileInfo) string {
	return fmt.Sprintf("%s|%d|%d|%s|%s", src.Path, info.Size(), info.ModTime().UnixNano(), src.FormatHint, src.Table)
}
