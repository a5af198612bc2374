package resolver

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/indigoray/civitai-downloader/pkg/api"
	"github.com/indigoray/civitai-downloader/pkg/logging"
)

const procedureCollection = "collection.getById"

// CollectionResolver resolves collection identifiers: a numeric id or a
// collection URL (https://civitai.com/collections/<id>).
type CollectionResolver struct {
	client *api.Client
	logger zerolog.Logger
}

// NewCollectionResolver creates a collection resolver over the given API
// client.
func NewCollectionResolver(client *api.Client) *CollectionResolver {
	return &CollectionResolver{
		client: client,
		logger: logging.NewLogger("resolver"),
	}
}

type wireCollection struct {
	Collection *struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"collection"`
}

// Resolve looks the collection up by id. A collection whose name is
// missing still resolves with a placeholder name.
func (r *CollectionResolver) Resolve(ctx context.Context, identifier string) (Unit, error) {
	id, err := parseCollectionIdentifier(identifier)
	if err != nil {
		return Unit{}, err
	}

	var out wireCollection
	if err := r.client.Call(ctx, procedureCollection, map[string]any{"id": id}, &out); err != nil {
		var apiErr *api.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorClass == api.ErrorClassClient {
			return Unit{}, fmt.Errorf("%w: collection %d", ErrNotFound, id)
		}
		return Unit{}, fmt.Errorf("resolve collection %d: %w", id, err)
	}

	if out.Collection == nil {
		return Unit{}, fmt.Errorf("%w: collection %d", ErrNotFound, id)
	}

	name := out.Collection.Name
	if name == "" {
		name = fmt.Sprintf("Collection_%d", id)
	}

	return Unit{Kind: KindCollection, ID: out.Collection.ID, Name: name}, nil
}

// parseCollectionIdentifier extracts the numeric collection id from a raw
// identifier or collection URL.
func parseCollectionIdentifier(identifier string) (int64, error) {
	s := strings.TrimSpace(identifier)

	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		if _, rest, ok := strings.Cut(s, "/collections/"); ok {
			s = rest
			if i := strings.IndexAny(s, "/?"); i >= 0 {
				s = s[:i]
			}
		}
	}

	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid collection identifier %q", ErrNotFound, identifier)
	}
	return id, nil
}
