// Package items defines the downloadable item model and the merge step that
// combines items discovered through multiple API sources into one
// identity-deduplicated set.
package items

import (
	"sort"
	"time"
)

// Kind classifies an item's media type.
type Kind string

const (
	// KindImage is a still image.
	KindImage Kind = "image"

	// KindVideo is a video clip.
	KindVideo Kind = "video"
)

// Item is one downloadable unit. Fields other than ID and RemoteRef are
// optional; zero values mean the API omitted them.
type Item struct {
	// ID is the sole identity key, unique within one merged set.
	ID int64

	// RemoteRef is either a fully-qualified URL or an opaque storage token
	// that needs canonicalization before download.
	RemoteRef string

	// DisplayName is the human label used for filenames.
	DisplayName string

	// OwnerName is the creator's name, used as a filename prefix when set.
	OwnerName string

	// OwnerID is the creator's numeric id, 0 when the API omitted it.
	OwnerID int64

	// Kind drives extension resolution.
	Kind Kind

	// MimeType overrides extension inference when present.
	MimeType string

	// CreatedAt orders items and feeds date-boundary filtering. Zero when
	// the API omitted it or the value was unparseable.
	CreatedAt time.Time

	// ContainerID and ContainerDate record provenance when the item was
	// discovered inside a container post rather than listed directly.
	ContainerID   int64
	ContainerDate time.Time
}

// IsVideo reports whether the item should be treated as a video for
// extension resolution.
func (it Item) IsVideo() bool {
	return it.Kind == KindVideo || it.MimeType == "video/mp4"
}

// Merge combines item sequences into one set with unique IDs. Sequences are
// consumed in priority order: the first writer for an ID owns its content
// fields. Later occurrences of a known ID may only contribute container
// provenance that the first occurrence lacked.
//
// The result is sorted by CreatedAt descending; items without a timestamp
// sort last, otherwise the order is stable. Callers must treat the ordering
// as cosmetic.
func Merge(sequences ...[]Item) []Item {
	byID := make(map[int64]int)
	merged := make([]Item, 0)

	for _, seq := range sequences {
		for _, it := range seq {
			idx, seen := byID[it.ID]
			if !seen {
				byID[it.ID] = len(merged)
				merged = append(merged, it)
				continue
			}

			// Known ID: fill missing provenance only, never content.
			kept := &merged[idx]
			if kept.ContainerID == 0 && it.ContainerID != 0 {
				kept.ContainerID = it.ContainerID
			}
			if kept.ContainerDate.IsZero() && !it.ContainerDate.IsZero() {
				kept.ContainerDate = it.ContainerDate
			}
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i].CreatedAt, merged[j].CreatedAt
		switch {
		case a.IsZero():
			return false
		case b.IsZero():
			return true
		default:
			return a.After(b)
		}
	})

	return merged
}
