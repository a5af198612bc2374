package api

import (
	"encoding/json"
)

// TRPC procedures used by the fetcher.
const (
	// ProcedureImages lists items directly.
	ProcedureImages = "image.getInfinite"

	// ProcedurePosts lists container posts whose embedded items are
	// unpacked by the fetcher.
	ProcedurePosts = "post.getInfinite"
)

// PageLimit is the fixed page size for paginated queries.
const PageLimit = 100

// DefaultBrowsingLevel requests all content visibility levels.
const DefaultBrowsingLevel = 31

// Query scopes a paginated listing to one entity. Exactly one of Username,
// UserID, or CollectionID should be set.
type Query struct {
	// Username scopes by display name. When set it takes precedence over
	// UserID as the query form.
	Username string

	// UserID scopes by the owner's numeric id.
	UserID int64

	// CollectionID scopes by collection.
	CollectionID int64

	// BrowsingLevel is the content-visibility mask (default:
	// DefaultBrowsingLevel).
	BrowsingLevel int

	// Period restricts the listing window (collections send "AllTime").
	Period string

	// ExcludedTagIDs drop items carrying any of these tags.
	ExcludedTagIDs []int64

	// DisablePOI, DisableMinor and Authed mirror the browser-derived
	// visibility flags sent for collection queries.
	DisablePOI   bool
	DisableMinor bool
	Authed       bool
}

// ByNumericOwner reports whether the query identifies the owner by numeric
// id rather than by display name. This selects the strict ownership filter.
func (q Query) ByNumericOwner() bool {
	return q.UserID != 0 && q.Username == ""
}

// input builds the TRPC query payload for one page.
func (q Query) input(cursor json.RawMessage) map[string]any {
	m := map[string]any{
		"sort":  "Newest",
		"limit": PageLimit,
	}

	level := q.BrowsingLevel
	if level == 0 {
		level = DefaultBrowsingLevel
	}
	m["browsingLevel"] = level

	switch {
	case q.CollectionID != 0:
		m["collectionId"] = q.CollectionID
	case q.Username != "":
		m["username"] = q.Username
	case q.UserID != 0:
		m["userId"] = q.UserID
	}

	if q.Period != "" {
		m["period"] = q.Period
	}
	if len(q.ExcludedTagIDs) > 0 {
		m["excludedTagIds"] = q.ExcludedTagIDs
	}
	if q.DisablePOI {
		m["disablePoi"] = true
	}
	if q.DisableMinor {
		m["disableMinor"] = true
	}
	if q.Authed {
		m["authed"] = true
	}
	if len(cursor) > 0 {
		m["cursor"] = cursor
	}

	return m
}

// UserQuery builds a query for one user, preferring the display name form
// when available.
func UserQuery(username string, userID int64) Query {
	if username != "" {
		return Query{Username: username}
	}
	return Query{UserID: userID}
}

// CollectionQuery builds a query for one collection, carrying the
// browser-derived visibility fields the listing endpoint expects.
func CollectionQuery(collectionID int64, excludedTagIDs []int64) Query {
	return Query{
		CollectionID:   collectionID,
		Period:         "AllTime",
		ExcludedTagIDs: excludedTagIDs,
		DisablePOI:     true,
		DisableMinor:   true,
		Authed:         true,
	}
}
