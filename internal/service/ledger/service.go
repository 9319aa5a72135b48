// Package ledger implements the relationship ledger facade: profile
// registry, like and block relation stores, and the message thread store,
// composed under one authorization and validation layer.
package ledger

import (
	"context"
	"errors"
	"strconv"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/pairmatch/ledger/internal/address"
	"github.com/pairmatch/ledger/internal/app"
	"github.com/pairmatch/ledger/internal/db"
	ledgerr "github.com/pairmatch/ledger/internal/errors"
	"github.com/pairmatch/ledger/internal/identity"
	"github.com/pairmatch/ledger/internal/repository"
)

// Field bounds, shared by validation tags and handlers. The message bound
// is enforced uniformly at 80 chars.
const (
	MinAge         = 18
	MaxNameLen     = 32
	MaxBioLen      = 100
	MaxLocationLen = 32
	MaxInterests   = 5
	MaxInterestLen = 16
	MaxMessageLen  = 80

	DefaultPageSize = 20
)

// Service is the ledger facade. It owns the write operations
// (CreateProfile, UpdateProfile, SendLike, SendMessage, BlockUser) and the
// read surface, on top of the repository and cache layers.
//
// Authorization model: every write's first key-part identity must equal
// the authenticated caller. Signature verification happens upstream; the
// facade only checks identity equality.
type Service struct {
	appCtx   *app.AppContext
	validate *validator.Validate

	profiles *repository.ProfileRepository
	likes    *repository.LikeRepository
	blocks   *repository.BlockRepository
	messages *repository.MessageRepository
}

// NewLedgerService creates the facade with dependencies from AppContext.
func NewLedgerService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:   appCtx,
		validate: validator.New(),
		profiles: repository.NewProfileRepository(appCtx.DB),
		likes:    repository.NewLikeRepository(appCtx.DB),
		blocks:   repository.NewBlockRepository(appCtx.DB),
		messages: repository.NewMessageRepository(appCtx.DB),
	}
}

//
// Profile registry
//

// CreateProfileRequest carries the initial profile fields. Bounds follow
// the account layout: name ≤32 non-empty, bio ≤100, location ≤32, age ≥18,
// up to 5 interests of ≤16 chars.
type CreateProfileRequest struct {
	Owner     string   `json:"owner" validate:"required,len=64,hexadecimal"`
	Name      string   `json:"name" validate:"required,max=32"`
	Age       uint8    `json:"age" validate:"gte=18"`
	Bio       string   `json:"bio" validate:"max=100"`
	Location  string   `json:"location" validate:"max=32"`
	Interests []string `json:"interests" validate:"max=5,dive,max=16"`
}

// UpdateProfileRequest patches a profile. Absent (nil) fields are left
// unchanged; present fields are re-validated.
type UpdateProfileRequest struct {
	Owner     string    `json:"owner" validate:"required,len=64,hexadecimal"`
	Name      *string   `json:"name" validate:"omitempty,min=1,max=32"`
	Age       *uint8    `json:"age" validate:"omitempty,gte=18"`
	Bio       *string   `json:"bio" validate:"omitempty,max=100"`
	Location  *string   `json:"location" validate:"omitempty,max=32"`
	Interests *[]string `json:"interests" validate:"omitempty,max=5,dive,max=16"`
	IsActive  *bool     `json:"is_active"`
}

// ProfileView is the read model of a profile.
type ProfileView struct {
	Address   string   `json:"address"`
	Owner     string   `json:"owner"`
	Name      string   `json:"name"`
	Age       uint8    `json:"age"`
	Bio       string   `json:"bio"`
	Location  string   `json:"location"`
	Interests []string `json:"interests"`
	Matches   []string `json:"matches"`
	IsActive  bool     `json:"is_active"`
	CreatedAt int64    `json:"created_at"`
}

// CreateProfile writes a new profile at the address derived from the
// owner's identity.
//
// Behavior:
//   - Unauthorized unless the caller is the owner.
//   - Validation on any field out of bounds.
//   - AlreadyExists if a profile already lives at the derived address.
//   - On success: matches empty, is_active true, created_at now.
func (s *Service) CreateProfile(ctx context.Context, caller identity.Key, req *CreateProfileRequest) (*ProfileView, error) {
	owner, err := identity.Parse(req.Owner)
	if err != nil {
		return nil, ledgerr.Validationf("owner: %v", err)
	}
	if owner != caller {
		return nil, ledgerr.Unauthorizedf("caller is not the profile owner")
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, ledgerr.Validationf("%v", err)
	}

	addr, nonce, err := address.ForProfile(owner)
	if err != nil {
		return nil, err
	}

	profile := &db.Profile{
		Address:   addr.String(),
		Owner:     owner.String(),
		Nonce:     nonce,
		Name:      req.Name,
		Age:       req.Age,
		Bio:       req.Bio,
		Location:  req.Location,
		Interests: req.Interests,
		Matches:   []string{},
		IsActive:  true,
	}
	if err := s.profiles.Create(ctx, profile); err != nil {
		s.appCtx.Logger.Debug("CreateProfile rejected", "owner", req.Owner, "err", err)
		return nil, err
	}

	s.appCtx.Logger.Info("profile created", "owner", req.Owner, "address", profile.Address)
	return profileView(profile), nil
}

// UpdateProfile applies a partial update to the caller's profile.
//
// Behavior:
//   - Unauthorized unless the caller is the owner.
//   - Each field independently optional; present fields re-validated.
//   - Owner, address, matches, and created_at are immutable here.
func (s *Service) UpdateProfile(ctx context.Context, caller identity.Key, req *UpdateProfileRequest) (*ProfileView, error) {
	owner, err := identity.Parse(req.Owner)
	if err != nil {
		return nil, ledgerr.Validationf("owner: %v", err)
	}
	if owner != caller {
		return nil, ledgerr.Unauthorizedf("caller is not the profile owner")
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, ledgerr.Validationf("%v", err)
	}

	profile, err := s.profiles.GetByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		profile.Name = *req.Name
	}
	if req.Age != nil {
		profile.Age = *req.Age
	}
	if req.Bio != nil {
		profile.Bio = *req.Bio
	}
	if req.Location != nil {
		profile.Location = *req.Location
	}
	if req.Interests != nil {
		profile.Interests = *req.Interests
	}
	if req.IsActive != nil {
		profile.IsActive = *req.IsActive
	}

	if err := s.profiles.Save(ctx, profile); err != nil {
		return nil, err
	}

	s.appCtx.Logger.Debug("profile updated", "owner", req.Owner)
	return profileView(profile), nil
}

// GetProfile loads a profile by its owner identity.
func (s *Service) GetProfile(ctx context.Context, owner string) (*ProfileView, error) {
	key, err := identity.Parse(owner)
	if err != nil {
		return nil, ledgerr.Validationf("owner: %v", err)
	}
	profile, err := s.profiles.GetByOwner(ctx, key)
	if err != nil {
		return nil, err
	}
	return profileView(profile), nil
}

// ListMatches returns the identities in the owner's materialized match list.
func (s *Service) ListMatches(ctx context.Context, owner string) ([]string, error) {
	view, err := s.GetProfile(ctx, owner)
	if err != nil {
		return nil, err
	}
	return view.Matches, nil
}

//
// Like relation store
//

// SendLikeRequest is the directed like sender -> receiver.
type SendLikeRequest struct {
	Sender   string `json:"sender" validate:"required,len=64,hexadecimal"`
	Receiver string `json:"receiver" validate:"required,len=64,hexadecimal"`
}

// LikeView is the read model of a like edge.
type LikeView struct {
	Address   string `json:"address"`
	Sender    string `json:"sender"`
	Receiver  string `json:"receiver"`
	IsMutual  bool   `json:"is_mutual"`
	CreatedAt int64  `json:"created_at"`
}

// SendLike writes the directed like and performs mutual promotion when the
// reciprocal like already exists.
//
// Behavior:
//   - InvalidUser on self-like; Unauthorized unless caller is the sender.
//   - UserNotActive if either profile is inactive; Blocked if a block
//     exists in either direction (loud, not silent suppression).
//   - AlreadyExists if the directed like already lives at its address.
//   - The reciprocal probe is re-derived internally from the identities,
//     never taken from caller-supplied addresses, and runs inside the
//     promotion transaction.
//   - Mutual path: new like is_mutual=true, reciprocal flag flipped, and
//     both match lists appended, all four writes in one transaction. This is
//     the only path that produces a match, and it is order-independent:
//     whichever direction lands second performs the promotion.
func (s *Service) SendLike(ctx context.Context, caller identity.Key, req *SendLikeRequest) (*LikeView, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, ledgerr.Validationf("%v", err)
	}
	sender, err := identity.Parse(req.Sender)
	if err != nil {
		return nil, ledgerr.Validationf("sender: %v", err)
	}
	receiver, err := identity.Parse(req.Receiver)
	if err != nil {
		return nil, ledgerr.Validationf("receiver: %v", err)
	}

	if sender == receiver {
		return nil, ledgerr.ErrInvalidUser
	}
	if sender != caller {
		return nil, ledgerr.Unauthorizedf("caller is not the like sender")
	}

	senderProfile, err := s.profiles.GetByOwner(ctx, sender)
	if err != nil {
		return nil, err
	}
	receiverProfile, err := s.profiles.GetByOwner(ctx, receiver)
	if err != nil {
		return nil, err
	}
	if !senderProfile.IsActive || !receiverProfile.IsActive {
		return nil, ledgerr.ErrUserNotActive
	}

	blocked, err := s.blocks.ExistsBetween(ctx, sender, receiver)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, ledgerr.ErrBlocked
	}

	likeAddr, nonce, err := address.ForLike(sender, receiver)
	if err != nil {
		return nil, err
	}

	like := &db.Like{
		Address:  likeAddr.String(),
		Sender:   sender.String(),
		Receiver: receiver.String(),
		Nonce:    nonce,
	}

	// The mutual-promotion quartet commits as a unit or not at all: the
	// new like, the reciprocal flag, and both profiles' match lists. The
	// reciprocal probe runs inside the transaction so two opposite-direction
	// likes racing each other cannot both miss the promotion; the match
	// lists are re-read inside it by AddToMatches.
	err = s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		likes := s.likes.WithTx(tx)
		profiles := s.profiles.WithTx(tx)

		// Re-derived from the identities. ErrNotFound means the like is
		// one-directional; anything else aborts.
		reciprocal, err := likes.Get(ctx, receiver, sender)
		if err != nil && !errors.Is(err, ledgerr.ErrNotFound) {
			return err
		}
		like.IsMutual = reciprocal != nil

		if err := likes.Create(ctx, like); err != nil {
			return err
		}
		if reciprocal == nil {
			return nil
		}
		if err := likes.MarkMutual(ctx, reciprocal.Address); err != nil {
			return err
		}
		if err := profiles.AddToMatches(ctx, senderProfile, receiver); err != nil {
			return err
		}
		return profiles.AddToMatches(ctx, receiverProfile, sender)
	})
	if err != nil {
		return nil, err
	}

	// Counter cache is best-effort; DB stays the source of truth.
	s.appCtx.RedisCache.BumpLikeCount(ctx, receiver.String())

	s.appCtx.Logger.Info("like recorded",
		"sender", req.Sender, "receiver", req.Receiver, "mutual", like.IsMutual)

	return likeView(like), nil
}

// LikerView is one entry in a liked-you listing.
type LikerView struct {
	Sender    string `json:"sender"`
	IsMutual  bool   `json:"is_mutual"`
	CreatedAt int64  `json:"created_at"`
}

// LikersPage is a cursor-paginated liked-you listing.
type LikersPage struct {
	Likers    []LikerView `json:"likers"`
	NextToken *string     `json:"next_token,omitempty"`
}

// ListLikedYou returns who liked the given receiver, newest first,
// excluding senders the receiver has blocked.
func (s *Service) ListLikedYou(ctx context.Context, receiver string, token *string, limit int) (*LikersPage, error) {
	key, err := identity.Parse(receiver)
	if err != nil {
		return nil, ledgerr.Validationf("receiver: %v", err)
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}

	likes, next, err := s.likes.ListLikers(ctx, key, token, limit)
	if err != nil {
		return nil, err
	}

	page := &LikersPage{NextToken: next, Likers: make([]LikerView, 0, len(likes))}
	for _, l := range likes {
		page.Likers = append(page.Likers, LikerView{
			Sender:    l.Sender,
			IsMutual:  l.IsMutual,
			CreatedAt: l.CreatedAt.UnixMilli(),
		})
	}
	return page, nil
}

// CountLikedYou returns how many users liked the receiver.
// Cache-first strategy:
//  1. Attempts the Redis counter (likes:count:<identity>).
//  2. On miss, falls back to the store and repopulates with a 1h TTL.
func (s *Service) CountLikedYou(ctx context.Context, receiver string) (int64, error) {
	key, err := identity.Parse(receiver)
	if err != nil {
		return 0, ledgerr.Validationf("receiver: %v", err)
	}

	if n, ok, err := s.appCtx.RedisCache.GetLikeCount(ctx, key.String()); err == nil && ok {
		return n, nil
	}

	count, err := s.likes.CountLikers(ctx, key)
	if err != nil {
		return 0, err
	}
	_ = s.appCtx.RedisCache.UpdateLikeCount(ctx, key.String(), count)
	return count, nil
}

//
// Block relation store
//

// BlockUserRequest is the directed block blocker -> blocked.
type BlockUserRequest struct {
	Blocker string `json:"blocker" validate:"required,len=64,hexadecimal"`
	Blocked string `json:"blocked" validate:"required,len=64,hexadecimal"`
}

// BlockView is the read model of a block edge.
type BlockView struct {
	Address   string `json:"address"`
	Blocker   string `json:"blocker"`
	Blocked   string `json:"blocked"`
	CreatedAt int64  `json:"created_at"`
}

// BlockUser writes a directed block.
//
// Behavior:
//   - InvalidUser on self-block; Unauthorized unless caller is the blocker.
//   - AlreadyExists per ordered pair.
//   - Never deletes existing likes, matches, or messages; it only gates
//     future send_like and send_message calls in either direction.
func (s *Service) BlockUser(ctx context.Context, caller identity.Key, req *BlockUserRequest) (*BlockView, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, ledgerr.Validationf("%v", err)
	}
	blocker, err := identity.Parse(req.Blocker)
	if err != nil {
		return nil, ledgerr.Validationf("blocker: %v", err)
	}
	blocked, err := identity.Parse(req.Blocked)
	if err != nil {
		return nil, ledgerr.Validationf("blocked: %v", err)
	}

	if blocker == blocked {
		return nil, ledgerr.ErrInvalidUser
	}
	if blocker != caller {
		return nil, ledgerr.Unauthorizedf("caller is not the blocker")
	}

	addr, nonce, err := address.ForBlock(blocker, blocked)
	if err != nil {
		return nil, err
	}
	block := &db.Block{
		Address: addr.String(),
		Blocker: blocker.String(),
		Blocked: blocked.String(),
		Nonce:   nonce,
	}
	if err := s.blocks.Create(ctx, block); err != nil {
		return nil, err
	}

	s.appCtx.Logger.Info("block recorded", "blocker", req.Blocker, "blocked", req.Blocked)
	return &BlockView{
		Address:   block.Address,
		Blocker:   block.Blocker,
		Blocked:   block.Blocked,
		CreatedAt: block.CreatedAt.UnixMilli(),
	}, nil
}

//
// Message thread store
//

// SendMessageRequest is one message in the directed thread sender -> receiver.
// MessageID is caller-chosen and must be unused for the ordered pair; a
// fine-grained timestamp or the current thread length both work. Zero is a
// valid id (a thread-length counter starts there); a reused id surfaces as
// AlreadyExists at the derived address.
type SendMessageRequest struct {
	Sender    string `json:"sender" validate:"required,len=64,hexadecimal"`
	Receiver  string `json:"receiver" validate:"required,len=64,hexadecimal"`
	MessageID uint64 `json:"message_id"`
	Content   string `json:"content"`
}

// MessageView is the read model of a message.
type MessageView struct {
	Address   string `json:"address"`
	Sender    string `json:"sender"`
	Receiver  string `json:"receiver"`
	MessageID uint64 `json:"message_id"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"created_at"`
}

// ThreadPage is a cursor-paginated slice of the merged thread, oldest first.
type ThreadPage struct {
	Messages  []MessageView `json:"messages"`
	Total     int64         `json:"total"`
	NextToken *string       `json:"next_token,omitempty"`
}

// SendMessage writes one message record.
//
// Behavior:
//   - InvalidUser on self-message; Unauthorized unless caller is the sender.
//   - Validation on empty content; MessageTooLong above the 80-char bound.
//   - NotMutualLikes unless the access predicate holds: a mutual like under
//     the default policy, a like in either direction under the weak one.
//   - UserNotActive / Blocked gates as for likes.
//   - AlreadyExists when (sender, receiver, message_id) is taken.
func (s *Service) SendMessage(ctx context.Context, caller identity.Key, req *SendMessageRequest) (*MessageView, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, ledgerr.Validationf("%v", err)
	}
	sender, err := identity.Parse(req.Sender)
	if err != nil {
		return nil, ledgerr.Validationf("sender: %v", err)
	}
	receiver, err := identity.Parse(req.Receiver)
	if err != nil {
		return nil, ledgerr.Validationf("receiver: %v", err)
	}

	if sender == receiver {
		return nil, ledgerr.ErrInvalidUser
	}
	if sender != caller {
		return nil, ledgerr.Unauthorizedf("caller is not the message sender")
	}
	if req.Content == "" {
		return nil, ledgerr.Validationf("content must not be empty")
	}
	if utf8.RuneCountInString(req.Content) > MaxMessageLen {
		return nil, ledgerr.ErrMessageTooLong
	}

	senderProfile, err := s.profiles.GetByOwner(ctx, sender)
	if err != nil {
		return nil, err
	}
	receiverProfile, err := s.profiles.GetByOwner(ctx, receiver)
	if err != nil {
		return nil, err
	}
	if !senderProfile.IsActive || !receiverProfile.IsActive {
		return nil, ledgerr.ErrUserNotActive
	}

	blocked, err := s.blocks.ExistsBetween(ctx, sender, receiver)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, ledgerr.ErrBlocked
	}

	if err := s.checkMessagePolicy(ctx, sender, receiver); err != nil {
		return nil, err
	}

	addr, nonce, err := address.ForMessage(sender, receiver, req.MessageID)
	if err != nil {
		return nil, err
	}
	msg := &db.Message{
		Address:   addr.String(),
		Sender:    sender.String(),
		Receiver:  receiver.String(),
		MessageID: req.MessageID,
		Nonce:     nonce,
		Content:   req.Content,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}

	s.appCtx.Logger.Debug("message recorded",
		"sender", req.Sender, "receiver", req.Receiver, "message_id", strconv.FormatUint(req.MessageID, 10))

	return messageView(msg), nil
}

// checkMessagePolicy enforces the messaging access predicate. Both probes
// are re-derived from the identities.
func (s *Service) checkMessagePolicy(ctx context.Context, sender, receiver identity.Key) error {
	forward, err := s.likes.Get(ctx, sender, receiver)
	if err != nil && !errors.Is(err, ledgerr.ErrNotFound) {
		return err
	}
	backward, err := s.likes.Get(ctx, receiver, sender)
	if err != nil && !errors.Is(err, ledgerr.ErrNotFound) {
		return err
	}

	if s.appCtx.Config.Policy.RequireMutualForMessage {
		if forward == nil || backward == nil {
			return ledgerr.ErrNotMutualLikes
		}
		return nil
	}
	if forward == nil && backward == nil {
		return ledgerr.ErrNotMutualLikes
	}
	return nil
}

// GetThread returns a page of the merged thread between the caller and peer.
// Only a participant may read a thread.
func (s *Service) GetThread(ctx context.Context, caller identity.Key, peer string, token *string, limit int) (*ThreadPage, error) {
	peerKey, err := identity.Parse(peer)
	if err != nil {
		return nil, ledgerr.Validationf("peer: %v", err)
	}
	if peerKey == caller {
		return nil, ledgerr.ErrInvalidUser
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}

	messages, next, err := s.messages.GetThread(ctx, caller, peerKey, token, limit)
	if err != nil {
		return nil, err
	}
	total, err := s.messages.CountBetween(ctx, caller, peerKey)
	if err != nil {
		return nil, err
	}

	page := &ThreadPage{Total: total, NextToken: next, Messages: make([]MessageView, 0, len(messages))}
	for i := range messages {
		page.Messages = append(page.Messages, *messageView(&messages[i]))
	}
	return page, nil
}

//
// View helpers
//

func profileView(p *db.Profile) *ProfileView {
	interests := p.Interests
	if interests == nil {
		interests = []string{}
	}
	matches := p.Matches
	if matches == nil {
		matches = []string{}
	}
	return &ProfileView{
		Address:   p.Address,
		Owner:     p.Owner,
		Name:      p.Name,
		Age:       p.Age,
		Bio:       p.Bio,
		Location:  p.Location,
		Interests: interests,
		Matches:   matches,
		IsActive:  p.IsActive,
		CreatedAt: p.CreatedAt.UnixMilli(),
	}
}

func likeView(l *db.Like) *LikeView {
	return &LikeView{
		Address:   l.Address,
		Sender:    l.Sender,
		Receiver:  l.Receiver,
		IsMutual:  l.IsMutual,
		CreatedAt: l.CreatedAt.UnixMilli(),
	}
}

func messageView(m *db.Message) *MessageView {
	return &MessageView{
		Address:   m.Address,
		Sender:    m.Sender,
		Receiver:  m.Receiver,
		MessageID: m.MessageID,
		Content:   m.Content,
		CreatedAt: m.CreatedAt.UnixMilli(),
	}
}
