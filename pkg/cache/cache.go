// Package cache provides a Redis-backed cache for resolved unit
// identities, so repeated runs against the same creators and collections
// skip the resolution round trip.
package cache

import (
	"fmt"
	"strings"
	"time"
)

// DefaultTTL is how long a resolved identity stays cached. Identities
// change rarely; a day keeps repeat runs cheap without pinning renames
// forever.
const DefaultTTL = 24 * time.Hour

// Key identifies a cached resolution result.
type Key struct {
	// Kind is the unit kind ("user" or "collection").
	Kind string

	// Identifier is the raw identifier as given on the command line
	// (username, numeric id, or profile/collection URL).
	Identifier string
}

// String generates a deterministic cache key string.
// Format: civitai:resolve:<kind>:<identifier>
func (k Key) String() string {
	id := strings.ToLower(strings.TrimSpace(k.Identifier))
	return fmt.Sprintf("civitai:resolve:%s:%s", k.Kind, id)
}

// Entry is a cached resolution result.
type Entry struct {
	// Data is the JSON-encoded resolved unit.
	Data []byte `json:"data"`

	// Expires is when the entry becomes stale.
	Expires time.Time `json:"expires"`

	// CachedAt is when the entry was stored.
	CachedAt time.Time `json:"cached_at"`
}

// NewEntry creates an entry expiring DefaultTTL from now.
func NewEntry(data []byte) *Entry {
	now := time.Now()
	return &Entry{
		Data:     data,
		Expires:  now.Add(DefaultTTL),
		CachedAt: now,
	}
}

// IsExpired returns true if the entry has expired.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration, or 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
