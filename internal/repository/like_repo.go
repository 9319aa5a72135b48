package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/pairmatch/ledger/internal/address"
	"github.com/pairmatch/ledger/internal/db"
	ledgerr "github.com/pairmatch/ledger/internal/errors"
	"github.com/pairmatch/ledger/internal/identity"
	"github.com/pairmatch/ledger/internal/utils/pagination"
)

// LikeRepository provides data access for directed Like edges. Each edge
// lives at the address derived from its ordered (sender, receiver) pair,
// which makes the duplicate check and the reciprocal probe O(1) lookups.
type LikeRepository struct {
	db *gorm.DB
}

// NewLikeRepository creates a new repository bound to the given DB connection.
func NewLikeRepository(database *gorm.DB) *LikeRepository {
	return &LikeRepository{db: database}
}

// WithTx returns a repository bound to the given transaction.
func (r *LikeRepository) WithTx(tx *gorm.DB) *LikeRepository {
	return &LikeRepository{db: tx}
}

// Get loads the directed like sender -> receiver, re-deriving its address
// from the identities. Returns ErrNotFound when no edge exists.
func (r *LikeRepository) Get(ctx context.Context, sender, receiver identity.Key) (*db.Like, error) {
	addr, _, err := address.ForLike(sender, receiver)
	if err != nil {
		return nil, err
	}
	var like db.Like
	if err := r.db.WithContext(ctx).First(&like, "address = ?", addr.String()).Error; err != nil {
		return nil, ledgerr.FromStorage(err)
	}
	return &like, nil
}

// Create inserts a directed like. A second like for the same ordered pair
// is a primary-key conflict and surfaces as ErrAlreadyExists.
func (r *LikeRepository) Create(ctx context.Context, like *db.Like) error {
	return ledgerr.FromStorage(r.db.WithContext(ctx).Create(like).Error)
}

// MarkMutual flips is_mutual on the like at addr. The flag only ever
// transitions false -> true; repeating the update is a no-op.
func (r *LikeRepository) MarkMutual(ctx context.Context, addr string) error {
	return ledgerr.FromStorage(r.db.WithContext(ctx).
		Model(&db.Like{}).
		Where("address = ?", addr).
		Update("is_mutual", true).Error)
}

// ListLikers returns senders who liked the given receiver, newest first.
//
// Behavior:
//   - Excludes senders the receiver has blocked.
//   - Ordered by created_at DESC, sender DESC.
//   - Cursor-based pagination via paginationToken.
func (r *LikeRepository) ListLikers(
	ctx context.Context,
	receiver identity.Key,
	paginationToken *string,
	limit int,
) ([]db.Like, *string, error) {
	var likes []db.Like

	cursor, err := pagination.Decode(getString(paginationToken))
	if err != nil {
		return nil, nil, err
	}

	query := r.db.WithContext(ctx).
		Table("likes l").
		Where("l.receiver = ?", receiver.String()).
		Where(`
			NOT EXISTS (
				SELECT 1 FROM blocks b
				WHERE b.blocker = ?
				  AND b.blocked = l.sender
			)`, receiver.String()).
		Order("l.created_at DESC, l.sender DESC").
		Limit(limit + 1)

	if cursor.Key != "" && cursor.CreatedUnix > 0 {
		ts := time.UnixMilli(cursor.CreatedUnix)
		query = query.Where(
			"(l.created_at < ? OR (l.created_at = ? AND l.sender < ?))",
			ts, ts, cursor.Key,
		)
	}

	if err := query.Find(&likes).Error; err != nil {
		return nil, nil, err
	}

	var nextToken *string
	if len(likes) > limit {
		last := likes[limit-1]
		token, _ := pagination.Encode(pagination.Cursor{
			Key:         last.Sender,
			CreatedUnix: last.CreatedAt.UnixMilli(),
		})
		nextToken = &token
		likes = likes[:limit]
	}

	return likes, nextToken, nil
}

// CountLikers returns how many users liked the given receiver, with the
// same blocked-sender exclusion as ListLikers. Used behind the Redis
// counter cache (DB is fallback).
func (r *LikeRepository) CountLikers(ctx context.Context, receiver identity.Key) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Table("likes l").
		Where("l.receiver = ?", receiver.String()).
		Where(`
			NOT EXISTS (
				SELECT 1 FROM blocks b
				WHERE b.blocker = ?
				  AND b.blocked = l.sender
			)`, receiver.String()).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// getString safely dereferences a string pointer for pagination tokens.
func getString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
