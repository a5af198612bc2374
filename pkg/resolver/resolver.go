// Package resolver turns raw command-line identifiers (usernames, numeric
// ids, profile and collection URLs) into resolved units with a stable id
// and a display name usable as a directory name.
package resolver

import (
	"context"
	"errors"
)

// Unit kinds.
const (
	KindUser       = "user"
	KindCollection = "collection"
)

// ErrNotFound indicates the identifier does not resolve to an existing
// user or collection.
var ErrNotFound = errors.New("unit not found")

// Unit is a resolved download target.
type Unit struct {
	// Kind is KindUser or KindCollection.
	Kind string `json:"kind"`

	// ID is the numeric identity. Zero for users resolved by name only.
	ID int64 `json:"id"`

	// Name is the human-readable name, used as the output directory.
	Name string `json:"name"`

	// Username is set for user units when the name is known to be the
	// account's login name.
	Username string `json:"username,omitempty"`
}

// Resolver resolves one raw identifier into a unit.
type Resolver interface {
	Resolve(ctx context.Context, identifier string) (Unit, error)
}
