package artifact

import (
	"context"
	"errors"
	"time"
)

// RetentionWindow is how long the upstream store keeps artifacts. The
// gateway surfaces expiry timestamps but does not extend or enforce them.
const RetentionWindow = 48 * time.Hour

// Artifact describes a file owned by the remote store. The service only
// ever references it by name or URI.
type Artifact struct {
	Name        string    `json:"name"`
	URI         string    `json:"uri"`
	DisplayName string    `json:"display_name"`
	MIMEType    string    `json:"mime_type"`
	State       string    `json:"state"`
	CreatedAt   time.Time `json:"create_time"`
	UpdatedAt   time.Time `json:"update_time"`
	ExpiresAt   time.Time `json:"expiration_time,omitempty"`
}

// Registry is the uniform gateway to the remote file store. Every
// implementation translates transport failures into the sentinel errors
// below and enforces the no-silent-overwrite invariant on Store.
type Registry interface {
	// Store uploads content under the given display name. It fails with
	// ErrDuplicate when an artifact with that display name already exists.
	Store(ctx context.Context, displayName string, content []byte, mimeType string) (Artifact, error)
	// Fetch returns the raw content and mime type for an artifact URI.
	Fetch(ctx context.Context, uri string) ([]byte, string, error)
	// Info returns metadata for an artifact by its remote name.
	Info(ctx context.Context, name string) (Artifact, error)
	// Delete removes an artifact by its remote name.
	Delete(ctx context.Context, name string) error
	// List returns up to pageSize artifacts in store order. No cursor
	// state is retained across calls.
	List(ctx context.Context, pageSize int) ([]Artifact, error)
	// All returns every artifact the store holds, following pagination.
	// Duplicate detection depends on seeing the complete set.
	All(ctx context.Context) ([]Artifact, error)
}

var (
	ErrNotFound    = errors.New("artifact: not found")
	ErrDuplicate   = errors.New("artifact: display name already exists")
	ErrUnavailable = errors.New("artifact: upstream unavailable")
)

// Exists reports whether an artifact with the given display name is
// already present, scanning the full listing the way the upstream store
// requires (display names are not addressable directly).
func Exists(ctx context.Context, r Registry, displayName string) (bool, error) {
	items, err := r.All(ctx)
	if err != nil {
		return false, err
	}
	for _, a := range items {
		if a.DisplayName == displayName {
			return true, nil
		}
	}
	return false, nil
}
