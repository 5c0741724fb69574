package gemini

import (
	"context"
	"errors"
	"fmt"

	"docbridge.org/internal/artifact"
)

// echoPrompt retrieves stored content through the model: the upstream
// file store has no direct download endpoint, so fetching an artifact
// means asking the model to reproduce it verbatim.
const echoPrompt = "Please return the exact content of this file without any modifications or additional comments."

// Registry adapts the file API to the artifact gateway for one caller's
// API key. The shared client stays immutable; per-request registries are
// cheap.
type Registry struct {
	client *Client
	apiKey string
}

func NewRegistry(client *Client, apiKey string) *Registry {
	return &Registry{client: client, apiKey: apiKey}
}

func (r *Registry) Store(ctx context.Context, displayName string, content []byte, mimeType string) (artifact.Artifact, error) {
	// The store happily accepts duplicate display names; the no-overwrite
	// invariant is enforced here, before any write. The scan must cover
	// every page or a collision past the first one slips through.
	existing, err := r.client.ListAllFiles(ctx, r.apiKey)
	if err != nil {
		return artifact.Artifact{}, translateStoreErr(err)
	}
	for _, f := range existing {
		if f.DisplayName == displayName {
			return artifact.Artifact{}, fmt.Errorf("%w: %q", artifact.ErrDuplicate, displayName)
		}
	}

	f, err := r.client.UploadFile(ctx, r.apiKey, displayName, content, mimeType)
	if err != nil {
		return artifact.Artifact{}, translateStoreErr(err)
	}
	return toArtifact(f), nil
}

func (r *Registry) Fetch(ctx context.Context, uri string) ([]byte, string, error) {
	// Resolve the URI against the listing first so a missing artifact is
	// a clean NotFound instead of a confused model reply.
	files, err := r.client.ListAllFiles(ctx, r.apiKey)
	if err != nil {
		return nil, "", translateStoreErr(err)
	}
	var match *File
	for i := range files {
		if files[i].URI == uri {
			match = &files[i]
			break
		}
	}
	if match == nil {
		return nil, "", fmt.Errorf("%w: uri %q", artifact.ErrNotFound, uri)
	}

	text, err := r.client.GenerateContent(ctx, r.apiKey, GenerateRequest{
		FileURI:      uri,
		FileMIMEType: match.MIMEType,
		Prompt:       echoPrompt,
	})
	if err != nil {
		return nil, "", translateStoreErr(err)
	}
	return []byte(text), match.MIMEType, nil
}

func (r *Registry) Info(ctx context.Context, name string) (artifact.Artifact, error) {
	f, err := r.client.GetFile(ctx, r.apiKey, name)
	if err != nil {
		return artifact.Artifact{}, translateStoreErr(err)
	}
	return toArtifact(f), nil
}

func (r *Registry) Delete(ctx context.Context, name string) error {
	if err := r.client.DeleteFile(ctx, r.apiKey, name); err != nil {
		return translateStoreErr(err)
	}
	return nil
}

func (r *Registry) List(ctx context.Context, pageSize int) ([]artifact.Artifact, error) {
	page, err := r.client.ListFiles(ctx, r.apiKey, pageSize, "")
	if err != nil {
		return nil, translateStoreErr(err)
	}
	return toArtifacts(page.Files), nil
}

func (r *Registry) All(ctx context.Context) ([]artifact.Artifact, error) {
	files, err := r.client.ListAllFiles(ctx, r.apiKey)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	return toArtifacts(files), nil
}

func toArtifacts(files []File) []artifact.Artifact {
	out := make([]artifact.Artifact, 0, len(files))
	for _, f := range files {
		out = append(out, toArtifact(f))
	}
	return out
}

func toArtifact(f File) artifact.Artifact {
	return artifact.Artifact{
		Name:        f.Name,
		URI:         f.URI,
		DisplayName: f.DisplayName,
		MIMEType:    f.MIMEType,
		State:       f.State,
		CreatedAt:   f.CreateTime,
		UpdatedAt:   f.UpdateTime,
		ExpiresAt:   f.ExpirationTime,
	}
}

func translateStoreErr(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return errors.Join(artifact.ErrNotFound, err)
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrUnauthorized):
		return errors.Join(artifact.ErrUnavailable, err)
	default:
		return err
	}
}
