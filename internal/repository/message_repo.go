package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/pairmatch/ledger/internal/db"
	ledgerr "github.com/pairmatch/ledger/internal/errors"
	"github.com/pairmatch/ledger/internal/identity"
	"github.com/pairmatch/ledger/internal/utils/pagination"
)

// MessageRepository provides data access for Message records. Writes are
// per directed pair; reads merge both directions into one thread.
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new repository bound to the given DB connection.
func NewMessageRepository(database *gorm.DB) *MessageRepository {
	return &MessageRepository{db: database}
}

// WithTx returns a repository bound to the given transaction.
func (r *MessageRepository) WithTx(tx *gorm.DB) *MessageRepository {
	return &MessageRepository{db: tx}
}

// Create inserts a message. A collision on (sender, receiver, message_id)
// is a primary-key conflict at the derived address and surfaces as
// ErrAlreadyExists; the caller must pick an unused message id.
func (r *MessageRepository) Create(ctx context.Context, msg *db.Message) error {
	return ledgerr.FromStorage(r.db.WithContext(ctx).Create(msg).Error)
}

// GetThread returns the merged thread between a and b, oldest first.
//
// Ordering is total and stable: created_at ASC, then message_id, then
// sender key, so equal timestamps cannot reorder between reads. The cursor
// carries all three fields to keep pages consistent with that order.
func (r *MessageRepository) GetThread(
	ctx context.Context,
	a, b identity.Key,
	paginationToken *string,
	limit int,
) ([]db.Message, *string, error) {
	var messages []db.Message

	cursor, err := pagination.Decode(getString(paginationToken))
	if err != nil {
		return nil, nil, err
	}

	query := r.db.WithContext(ctx).
		Table("messages m").
		Where("(m.sender = ? AND m.receiver = ?) OR (m.sender = ? AND m.receiver = ?)",
			a.String(), b.String(), b.String(), a.String()).
		Order("m.created_at ASC, m.message_id ASC, m.sender ASC").
		Limit(limit + 1)

	if !cursor.IsZero() {
		ts := time.UnixMilli(cursor.CreatedUnix)
		query = query.Where(`
			(m.created_at > ?
			 OR (m.created_at = ? AND m.message_id > ?)
			 OR (m.created_at = ? AND m.message_id = ? AND m.sender > ?))`,
			ts, ts, cursor.MessageID, ts, cursor.MessageID, cursor.Key,
		)
	}

	if err := query.Find(&messages).Error; err != nil {
		return nil, nil, err
	}

	var nextToken *string
	if len(messages) > limit {
		last := messages[limit-1]
		token, _ := pagination.Encode(pagination.Cursor{
			Key:         last.Sender,
			CreatedUnix: last.CreatedAt.UnixMilli(),
			MessageID:   last.MessageID,
		})
		nextToken = &token
		messages = messages[:limit]
	}

	return messages, nextToken, nil
}

// CountBetween returns the total number of messages between a and b in
// both directions. Callers use it to pick the next strictly increasing
// message id without a shared counter.
func (r *MessageRepository) CountBetween(ctx context.Context, a, b identity.Key) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Message{}).
		Where("(sender = ? AND receiver = ?) OR (sender = ? AND receiver = ?)",
			a.String(), b.String(), b.String(), a.String()).
		Count(&count).Error
	return count, err
}
