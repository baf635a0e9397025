package cache

import (
	"encoding/json"
	"time"

	"github.com/Sternrassler/catalog-search-cache/pkg/filter"
)

// DefaultTTL is how long an entry is served before it is refreshed.
const DefaultTTL = 10 * time.Minute

// CacheEntry represents a cached upstream response.
type CacheEntry struct {
	// Key is the derived cache key (unique)
	Key string `json:"key"`

	// Namespace is the upstream method and path the entry belongs to
	Namespace string `json:"namespace,omitempty"`

	// Filters are the normalized filters, kept for debugging
	Filters filter.FilterSet `json:"filters"`

	// Payload is the upstream response body
	Payload json.RawMessage `json:"payload"`

	// UpdatedAt is when the entry was last refreshed (UTC)
	UpdatedAt time.Time `json:"updated_at"`
}

// Age returns how long ago the entry was refreshed, relative to now.
func (e *CacheEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.UpdatedAt)
}

// IsFresh reports whether the entry can still be served at now.
// An entry exactly ttl old is still fresh.
func (e *CacheEntry) IsFresh(now time.Time, ttl time.Duration) bool {
	return e.Age(now) <= ttl
}

// ExpiresAt returns when the entry turns stale.
func (e *CacheEntry) ExpiresAt(ttl time.Duration) time.Time {
	return e.UpdatedAt.Add(ttl)
}
