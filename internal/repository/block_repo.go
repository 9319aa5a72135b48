package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/pairmatch/ledger/internal/db"
	ledgerr "github.com/pairmatch/ledger/internal/errors"
	"github.com/pairmatch/ledger/internal/identity"
)

// BlockRepository provides data access for directed Block edges. Blocking
// is strictly one-directional; the either-direction check lives here so
// send_like and send_message share one predicate.
type BlockRepository struct {
	db *gorm.DB
}

// NewBlockRepository creates a new repository bound to the given DB connection.
func NewBlockRepository(database *gorm.DB) *BlockRepository {
	return &BlockRepository{db: database}
}

// WithTx returns a repository bound to the given transaction.
func (r *BlockRepository) WithTx(tx *gorm.DB) *BlockRepository {
	return &BlockRepository{db: tx}
}

// Create inserts a directed block. A duplicate for the same ordered pair
// surfaces as ErrAlreadyExists via the primary-key conflict.
func (r *BlockRepository) Create(ctx context.Context, block *db.Block) error {
	return ledgerr.FromStorage(r.db.WithContext(ctx).Create(block).Error)
}

// ExistsBetween reports whether a block exists between a and b in either
// direction. A block never deletes history; it only gates new writes.
func (r *BlockRepository) ExistsBetween(ctx context.Context, a, b identity.Key) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Block{}).
		Where("(blocker = ? AND blocked = ?) OR (blocker = ? AND blocked = ?)",
			a.String(), b.String(), b.String(), a.String()).
		Count(&count).Error
	return count > 0, err
}
