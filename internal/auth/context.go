package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

type ctxKey string

const credentialKey ctxKey = "auth_credential"

// ContextWithCredential stores the upstream credential in the context for
// the lifetime of a request.
func ContextWithCredential(ctx context.Context, credential string) context.Context {
	return context.WithValue(ctx, credentialKey, strings.TrimSpace(credential))
}

// CredentialFromContext extracts the authenticated upstream credential.
func CredentialFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(credentialKey).(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

// Fingerprint returns a short stable digest of a credential, safe to log.
func Fingerprint(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:8])
}
