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

const procedureCreator = "user.getCreator"

// UserResolver resolves creator identifiers: a username, a numeric user
// id, or a profile URL (https://civitai.com/user/<name>).
type UserResolver struct {
	client *api.Client
	logger zerolog.Logger
}

// NewUserResolver creates a user resolver over the given API client.
func NewUserResolver(client *api.Client) *UserResolver {
	return &UserResolver{
		client: client,
		logger: logging.NewLogger("resolver"),
	}
}

type wireCreator struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Resolve looks the identifier up against the creator endpoint. A numeric
// id that cannot be looked up still resolves, with a placeholder name, so
// the download can proceed under the stable identity.
func (r *UserResolver) Resolve(ctx context.Context, identifier string) (Unit, error) {
	name, id := parseUserIdentifier(identifier)
	if name == "" && id == 0 {
		return Unit{}, fmt.Errorf("%w: empty user identifier %q", ErrNotFound, identifier)
	}

	var creator wireCreator
	var input map[string]any
	if id != 0 {
		input = map[string]any{"id": id}
	} else {
		input = map[string]any{"username": name}
	}

	err := r.client.Call(ctx, procedureCreator, input, &creator)
	switch {
	case err == nil && creator.Username != "":
		return Unit{Kind: KindUser, ID: creator.ID, Name: creator.Username, Username: creator.Username}, nil

	case id != 0:
		// The id is the real identity; the name is cosmetic.
		r.logger.Warn().Err(err).Int64("user_id", id).Msg("Creator lookup failed, using placeholder name")
		return Unit{Kind: KindUser, ID: id, Name: fmt.Sprintf("User_%d", id)}, nil

	case err != nil:
		var apiErr *api.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorClass == api.ErrorClassClient {
			return Unit{}, fmt.Errorf("%w: user %q", ErrNotFound, name)
		}
		return Unit{}, fmt.Errorf("resolve user %q: %w", name, err)

	default:
		return Unit{}, fmt.Errorf("%w: user %q", ErrNotFound, name)
	}
}

// parseUserIdentifier splits a raw identifier into a username or a numeric
// id. Profile URLs are reduced to the path segment after /user/.
func parseUserIdentifier(identifier string) (name string, id int64) {
	s := strings.TrimSpace(identifier)

	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		if _, rest, ok := strings.Cut(s, "/user/"); ok {
			s = rest
			if i := strings.IndexAny(s, "/?"); i >= 0 {
				s = s[:i]
			}
		}
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
		return "", n
	}
	return s, 0
}
