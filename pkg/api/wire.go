package api

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/indigoray/civitai-downloader/pkg/items"
)

// imagePage is the payload of one image.getInfinite page.
type imagePage struct {
	Items      []wireImage     `json:"items"`
	NextCursor json.RawMessage `json:"nextCursor"`
}

// postPage is the payload of one post.getInfinite page.
type postPage struct {
	Items      []wirePost      `json:"items"`
	NextCursor json.RawMessage `json:"nextCursor"`
}

// wireImage is one item as the API returns it. Pointer fields distinguish
// absent values: responses inconsistently omit userId in particular.
type wireImage struct {
	ID        *int64 `json:"id"`
	URL       string `json:"url"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	MimeType  string `json:"mimeType"`
	CreatedAt string `json:"createdAt"`
	UserID    *int64 `json:"userId"`
	User      struct {
		Username string `json:"username"`
	} `json:"user"`
}

// wirePost is one container post with its embedded items.
type wirePost struct {
	ID          int64       `json:"id"`
	UserID      *int64      `json:"userId"`
	CreatedAt   string      `json:"createdAt"`
	PublishedAt string      `json:"publishedAt"`
	Images      []wireImage `json:"images"`
}

// parseTimestamp converts an API timestamp into time.Time. A missing or
// unparseable value yields the zero time, which downstream code treats as
// "no constraint".
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// toItem converts a wire record into the typed item model. Records without
// an id are malformed and dropped (ok == false).
func (w wireImage) toItem(logger zerolog.Logger) (items.Item, bool) {
	if w.ID == nil {
		logger.Warn().Str("url", w.URL).Msg("Dropping item without id")
		return items.Item{}, false
	}

	kind := items.KindImage
	if w.Type == "video" {
		kind = items.KindVideo
	}

	var ownerID int64
	if w.UserID != nil {
		ownerID = *w.UserID
	}

	return items.Item{
		ID:          *w.ID,
		RemoteRef:   w.URL,
		DisplayName: w.Name,
		OwnerName:   w.User.Username,
		OwnerID:     ownerID,
		Kind:        kind,
		MimeType:    w.MimeType,
		CreatedAt:   parseTimestamp(w.CreatedAt),
	}, true
}

// date returns the post's effective timestamp, preferring createdAt.
func (p wirePost) date() time.Time {
	if t := parseTimestamp(p.CreatedAt); !t.IsZero() {
		return t
	}
	return parseTimestamp(p.PublishedAt)
}
