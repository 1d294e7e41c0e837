package interfaces

import (
	"context"

	"github.com/ternarybob/adwatch/internal/models"
)

// CredentialStorage is durable persistence for the shared agent credential
// and the per-account credentials. Writes are synchronously durable before
// the call returns, so a crash can never leave a status of valid without a
// persisted cookie set. Last-write-wins; the orchestrator guarantees one
// logical writer per credential at a time.
type CredentialStorage interface {
	// StoreAgent persists the singleton agent credential.
	StoreAgent(ctx context.Context, cred *models.AgentCredential) error

	// GetAgent returns the agent credential, or models.ErrNotFound when
	// the process has never logged in.
	GetAgent(ctx context.Context) (*models.AgentCredential, error)

	// StoreAccount upserts one account credential keyed by its account ID.
	StoreAccount(ctx context.Context, cred *models.AccountCredential) error

	// GetAccount returns one account credential or models.ErrNotFound.
	GetAccount(ctx context.Context, accountID string) (*models.AccountCredential, error)

	// DeleteAccount removes an account credential. Returns false when no
	// record existed.
	DeleteAccount(ctx context.Context, accountID string) (bool, error)

	// ListAccounts returns all stored account credentials.
	ListAccounts(ctx context.Context) ([]*models.AccountCredential, error)
}
