package db

import (
	"time"
)

// Profile is the single record per identity. The primary key is the
// derived profile address; Owner carries the raw identity key and stays
// unique on its own as a guard against derivation drift.
//
// Matches is the materialized view of confirmed mutual likes: append-only,
// duplicate-suppressed, never contains the owner. It is only written inside
// the mutual-promotion transaction.
type Profile struct {
	Address   string    `gorm:"primaryKey;size:64"`
	Owner     string    `gorm:"uniqueIndex;size:64;not null"`
	Nonce     uint8     `gorm:"not null"`
	Name      string    `gorm:"size:32;not null"`
	Age       uint8     `gorm:"not null"`
	Bio       string    `gorm:"size:100"`
	Location  string    `gorm:"size:32"`
	Interests []string  `gorm:"serializer:json;type:text"`
	Matches   []string  `gorm:"serializer:json;type:text"`
	IsActive  bool      `gorm:"default:true"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// Like is one directed edge per ordered (sender, receiver) pair. The
// derived address is the primary key, so a duplicate like is a primary-key
// conflict rather than an application-level scan.
//
// IsMutual is the only mutable field: it transitions false -> true exactly
// once, when the reciprocal like arrives.
//
// Index idx_likes_receiver(receiver, created_at DESC, sender) serves the
// "who liked you" listing.
type Like struct {
	Address   string    `gorm:"primaryKey;size:64"`
	Sender    string    `gorm:"size:64;not null;index:idx_likes_sender"`
	Receiver  string    `gorm:"size:64;not null;index:idx_likes_receiver,priority:1"`
	Nonce     uint8     `gorm:"not null"`
	IsMutual  bool      `gorm:"not null"`
	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_likes_receiver,priority:2,sort:desc"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// Block is a directed suppression edge. One per ordered pair, never
// deleted, no reciprocal semantics. Enforcement happens at write time in
// send_like and send_message, which check both directions.
type Block struct {
	Address   string    `gorm:"primaryKey;size:64"`
	Blocker   string    `gorm:"size:64;not null;index:idx_blocks_pair,priority:1"`
	Blocked   string    `gorm:"size:64;not null;index:idx_blocks_pair,priority:2"`
	Nonce     uint8     `gorm:"not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// Message is one immutable record in the directed thread sender -> receiver.
// MessageID is caller-chosen and strictly increasing per ordered pair; the
// derived address makes (sender, receiver, message_id) unique without a
// shared counter. A thread is the merge of both directions.
type Message struct {
	Address   string    `gorm:"primaryKey;size:64"`
	Sender    string    `gorm:"size:64;not null;index:idx_messages_pair,priority:1"`
	Receiver  string    `gorm:"size:64;not null;index:idx_messages_pair,priority:2"`
	MessageID uint64    `gorm:"not null"`
	Nonce     uint8     `gorm:"not null"`
	Content   string    `gorm:"size:80;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_messages_pair,priority:3"`
}
