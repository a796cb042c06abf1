package storage

import (
	"context"

	"github.com/mcoot/skirmish/internal/model"
)

// AccountStore defines the interface for account persistence
type AccountStore interface {
	// CreateAccount allocates a fresh id, fills in acc.ID and stores it
	CreateAccount(ctx context.Context, acc *model.Account) error
	GetAccount(ctx context.Context, id model.AccountID) (*model.Account, error)
	SaveAccount(ctx context.Context, acc *model.Account) error
	// TopByTrophies returns up to limit accounts ordered by trophies, highest first
	TopByTrophies(ctx context.Context, limit int) ([]*model.Account, error)
}
