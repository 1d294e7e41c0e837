package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/adwatch/internal/interfaces"
	"github.com/ternarybob/adwatch/internal/models"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
)

// CredentialStorage implements the CredentialStorage interface for Badger
type CredentialStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewCredentialStorage creates a new CredentialStorage instance
func NewCredentialStorage(db *BadgerDB, logger arbor.ILogger) interfaces.CredentialStorage {
	return &CredentialStorage{
		db:     db,
		logger: logger,
	}
}

func (s *CredentialStorage) StoreAgent(ctx context.Context, cred *models.AgentCredential) error {
	if cred.ID == "" {
		cred.ID = models.AgentID
	}
	cred.UpdatedAt = time.Now()

	if err := s.db.Store().Upsert(cred.ID, cred); err != nil {
		return fmt.Errorf("failed to store agent credential: %w", err)
	}
	return nil
}

func (s *CredentialStorage) GetAgent(ctx context.Context) (*models.AgentCredential, error) {
	var cred models.AgentCredential
	if err := s.db.Store().Get(models.AgentID, &cred); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get agent credential: %w", err)
	}
	return &cred, nil
}

func (s *CredentialStorage) StoreAccount(ctx context.Context, cred *models.AccountCredential) error {
	if cred.AccountID == "" {
		return fmt.Errorf("account ID is required")
	}

	now := time.Now()
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = now
	}
	cred.UpdatedAt = now

	if err := s.db.Store().Upsert(cred.AccountID, cred); err != nil {
		return fmt.Errorf("failed to store account credential: %w", err)
	}
	return nil
}

func (s *CredentialStorage) GetAccount(ctx context.Context, accountID string) (*models.AccountCredential, error) {
	var cred models.AccountCredential
	if err := s.db.Store().Get(accountID, &cred); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account credential: %w", err)
	}
	return &cred, nil
}

func (s *CredentialStorage) DeleteAccount(ctx context.Context, accountID string) (bool, error) {
	if err := s.db.Store().Delete(accountID, &models.AccountCredential{}); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return false, nil // Already deleted
		}
		return false, fmt.Errorf("failed to delete account credential: %w", err)
	}
	return true, nil
}

func (s *CredentialStorage) ListAccounts(ctx context.Context) ([]*models.AccountCredential, error) {
	var creds []models.AccountCredential
	if err := s.db.Store().Find(&creds, nil); err != nil {
		return nil, fmt.Errorf("failed to list account credentials: %w", err)
	}

	result := make([]*models.AccountCredential, len(creds))
	for i := range creds {
		result[i] = &creds[i]
	}
	return result, nil
}
