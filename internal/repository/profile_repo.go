package repository

import (
	"context"
	"slices"

	"gorm.io/gorm"

	"github.com/pairmatch/ledger/internal/address"
	"github.com/pairmatch/ledger/internal/db"
	ledgerr "github.com/pairmatch/ledger/internal/errors"
	"github.com/pairmatch/ledger/internal/identity"
)

// ProfileRepository provides data access for Profile records. Lookups go
// through the derived profile address, never through a secondary index.
type ProfileRepository struct {
	db *gorm.DB
}

// NewProfileRepository creates a new repository bound to the given DB connection.
func NewProfileRepository(database *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: database}
}

// WithTx returns a repository bound to the given transaction.
func (r *ProfileRepository) WithTx(tx *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: tx}
}

// Create inserts a new profile. A profile already existing at the derived
// address surfaces as ErrAlreadyExists via the primary-key conflict.
func (r *ProfileRepository) Create(ctx context.Context, p *db.Profile) error {
	return ledgerr.FromStorage(r.db.WithContext(ctx).Create(p).Error)
}

// GetByOwner re-derives the profile address from the identity and loads the
// record, closing the caller-supplied-address spoofing gap.
func (r *ProfileRepository) GetByOwner(ctx context.Context, owner identity.Key) (*db.Profile, error) {
	addr, _, err := address.ForProfile(owner)
	if err != nil {
		return nil, err
	}
	return r.GetByAddress(ctx, addr.String())
}

// GetByAddress loads a profile by its derived address.
func (r *ProfileRepository) GetByAddress(ctx context.Context, addr string) (*db.Profile, error) {
	var p db.Profile
	if err := r.db.WithContext(ctx).First(&p, "address = ?", addr).Error; err != nil {
		return nil, ledgerr.FromStorage(err)
	}
	return &p, nil
}

// Save persists mutable profile fields. The owner, address, and created_at
// columns are never rewritten. Updates go through the struct path so the
// JSON serializer on interests applies.
func (r *ProfileRepository) Save(ctx context.Context, p *db.Profile) error {
	return ledgerr.FromStorage(r.db.WithContext(ctx).
		Model(p).
		Select("name", "age", "bio", "location", "interests", "is_active").
		Updates(&db.Profile{
			Name:      p.Name,
			Age:       p.Age,
			Bio:       p.Bio,
			Location:  p.Location,
			Interests: p.Interests,
			IsActive:  p.IsActive,
		}).Error)
}

// AddToMatches appends other to the profile's match list. The list is
// re-read from storage first, so a stale in-memory copy cannot drop a match
// written by a concurrent promotion. Idempotent, and the owner itself is
// never inserted. Only invoked inside the mutual-promotion transaction.
func (r *ProfileRepository) AddToMatches(ctx context.Context, p *db.Profile, other identity.Key) error {
	key := other.String()
	if key == p.Owner {
		return nil
	}
	fresh, err := r.GetByAddress(ctx, p.Address)
	if err != nil {
		return err
	}
	p.Matches = fresh.Matches
	if slices.Contains(p.Matches, key) {
		return nil
	}
	p.Matches = append(p.Matches, key)
	return ledgerr.FromStorage(r.db.WithContext(ctx).
		Model(p).
		Select("matches").
		Updates(&db.Profile{Matches: p.Matches}).Error)
}
