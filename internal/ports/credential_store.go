package ports

import "context"

// CredentialStore persists the single long-lived refresh token across
// restarts. Implementations are responsible for encryption at rest.
type CredentialStore interface {
	// Load returns the stored token, or domain.ErrNoCredential when none
	// has been saved yet.
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
}
