package ledger_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/pairmatch/ledger/internal/app"
	"github.com/pairmatch/ledger/internal/cache"
	"github.com/pairmatch/ledger/internal/config"
	"github.com/pairmatch/ledger/internal/db"
	ledgerr "github.com/pairmatch/ledger/internal/errors"
	"github.com/pairmatch/ledger/internal/identity"
	"github.com/pairmatch/ledger/internal/service/ledger"
)

//
// Test helpers
//

// setupService spins up an in-memory sqlite DB, a miniredis, and wires
// everything into a ledger Service. Each test gets its own isolated
// DB + Redis. Options mutate the config before wiring.
func setupService(t *testing.T, opts ...func(*config.Config)) *ledger.Service {
	t.Helper()

	dbName := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	dbase, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{
		NowFunc:                func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	require.NoError(t, err)

	sqlDB, err := dbase.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(dbase))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(func() { mr.Close() })

	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()
	cfg.Policy.RequireMutualForMessage = true
	for _, opt := range opts {
		opt(cfg)
	}

	redisCache := cache.NewRedisCache(cfg)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	appCtx := app.New(dbase, redisCache, logger, cfg)
	return ledger.NewLedgerService(appCtx)
}

func weakMessagePolicy(cfg *config.Config) {
	cfg.Policy.RequireMutualForMessage = false
}

func testKey(b byte) identity.Key {
	var k identity.Key
	for i := range k {
		k[i] = b
	}
	return k
}

func mustCreateProfile(t *testing.T, svc *ledger.Service, owner identity.Key, name string, age uint8) *ledger.ProfileView {
	t.Helper()
	view, err := svc.CreateProfile(context.Background(), owner, &ledger.CreateProfileRequest{
		Owner: owner.String(),
		Name:  name,
		Age:   age,
	})
	require.NoError(t, err)
	return view
}

//
// Profile registry
//

func TestCreateProfileValidation(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t)
	alice := testKey(0x01)

	cases := []struct {
		name string
		req  ledger.CreateProfileRequest
	}{
		{"underage", ledger.CreateProfileRequest{Owner: alice.String(), Name: "Alice", Age: 17}},
		{"empty name", ledger.CreateProfileRequest{Owner: alice.String(), Name: "", Age: 21}},
		{"name too long", ledger.CreateProfileRequest{Owner: alice.String(), Name: strings.Repeat("a", 33), Age: 21}},
		{"bio too long", ledger.CreateProfileRequest{Owner: alice.String(), Name: "Alice", Age: 21, Bio: strings.Repeat("b", 101)}},
		{"location too long", ledger.CreateProfileRequest{Owner: alice.String(), Name: "Alice", Age: 21, Location: strings.Repeat("l", 33)}},
		{"too many interests", ledger.CreateProfileRequest{Owner: alice.String(), Name: "Alice", Age: 21, Interests: []string{"a", "b", "c", "d", "e", "f"}}},
		{"interest too long", ledger.CreateProfileRequest{Owner: alice.String(), Name: "Alice", Age: 21, Interests: []string{strings.Repeat("x", 17)}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateProfile(ctx, alice, &tc.req)
			assert.ErrorIs(t, err, ledgerr.ErrValidation)
		})
	}
}

func TestCreateProfileDuplicateFails(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t)
	alice := testKey(0x01)

	mustCreateProfile(t, svc, alice, "Alice", 21)

	_, err := svc.CreateProfile(ctx, alice, &ledger.CreateProfileRequest{
		Owner: alice.String(), Name: "Alice", Age: 21,
	})
	assert.ErrorIs(t, err, ledgerr.ErrAlreadyExists)
}

func TestCreateProfileRequiresOwnerAsCaller(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t)

	_, err := svc.CreateProfile(ctx, testKey(0x01), &ledger.CreateProfileRequest{
		Owner: testKey(0x02).String(), Name: "Mallory", Age: 30,
	})
	assert.ErrorIs(t, err, ledgerr.ErrUnauthorized)
}

func TestUpdateProfilePartial(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t)
	alice := testKey(0x01)
	mustCreateProfile(t, svc, alice, "Alice", 21)

	bio := "chess and rain"
	view, err := svc.UpdateProfile(ctx, alice, &ledger.UpdateProfileRequest{
		Owner: alice.String(),
		Bio:   &bio,
	})
	require.NoError(t, err)

	// only bio changed
	assert.Equal(t, "chess and rain", view.Bio)
	assert.Equal(t, "Alice", view.Name)
	assert.Equal(t, uint8(21), view.Age)

	// present fields are re-validated
	badAge := uint8(17)
	_, err = svc.UpdateProfile(ctx, alice, &ledger.UpdateProfileRequest{
		Owner: alice.String(),
		Age:   &badAge,
	})
	assert.ErrorIs(t, err, ledgerr.ErrValidation)
}

func TestUpdateProfileUnauthorized(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t)
	alice, mallory := testKey(0x01), testKey(0x02)
	mustCreateProfile(t, svc, alice, "Alice", 21)

	name := "Hacked"
	_, err := svc.UpdateProfile(ctx, mallory, &ledger.UpdateProfileRequest{
		Owner: alice.String(),
		Name:  &name,
	})
	assert.ErrorIs(t, err, ledgerr.ErrUnauthorized)
}

//
// Like relation store
//

func TestSendLikeAndMutualPromotion(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t)
	u1, u2 := testKey(0x01), testKey(0x02)
	mustCreateProfile(t, svc, u1, "Alice", 21)
	mustCreateProfile(t, svc, u2, "Bea", 19)

	// first direction: one-sided
	like1, err := svc.SendLike(ctx, u1, &ledger.SendLikeRequest{Sender: u1.String(), Receiver: u2.String()})
	require.NoError(t, err)
	assert.False(t, like1.IsMutual)

	matches, err := svc.ListMatches(ctx, u1.String())
	require.NoError(t, err)
	assert.Empty(t, matches)

	// reciprocal: promotion path
	like2, err := svc.SendLike(ctx, u2, &ledger.SendLikeRequest{Sender: u2.String(), Receiver: u1.String()})
	require.NoError(t, err)
	assert.True(t, like2.IsMutual)

	// the first like's flag flipped
	p1, err := svc.GetProfile(ctx, u1.String())
	require.NoError(t, err)
	p2, err := svc.GetProfile(ctx, u2.String())
	require.NoError(t, err)
	assert.Equal(t, []string{u2.String()}, p1.Matches)
	assert.Equal(t, []string{u1.String()}, p2.Matches)

	likers, err := svc.ListLikedYou(ctx, u1.String(), nil, 10)
	require.NoError(t, err)
	require.Len(t, likers.Likers, 1)
	assert.True(t, likers.Likers[0].IsMutual)
}

func TestMatchesAccumulateAcrossPromotions(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t)
	u1, u2, u3 := testKey(0x01), testKey(0x02), testKey(0x03)
	mustCreateProfile(t, svc, u1, "Alice", 21)
	mustCreateProfile(t, svc, u2, "Bea", 19)
	mustCreateProfile(t, svc, u3, "Cal", 30)

	// u1 matches u2, then u3; the first match must survive the second
	for _, other := range []identity.Key{u2, u3} {
		_, err := svc.SendLike(ctx, u1, &ledger.SendLikeRequest{Sender: u1.String(), Receiver: other.String()})
		require.NoError(t, err)
		_, err = svc.SendLike(ctx, other, &ledger.SendLikeRequest{Sender: other.String(), Receiver: u1.String()})
		require.NoError(t, err)
	}

	p1, err := svc.GetProfile(ctx, u1.String())
	require.NoError(t, err)
	assert.Equal(t, []string{u2.String(), u3.String()}, p1.Matches)
}

func TestSendLikeSelfFails(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t)
	alice := testKey(0x01)
	mustCreateProfile(t, svc, alice, "Alice", 21)

	_, err := svc.SendLike(ctx, alice, &ledger.SendLikeRequest{Sender: alice.String(), Receiver: alice.String()})
	assert.ErrorIs(t, err, ledgerr.ErrInvalidUser)
}

func TestSendLikeDuplicateLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t)
	u1, u2 := testKey(0x01), testKey(0x02)
	mustCreateProfile(t, svc, u1, "Alice", 21)
	mustCreateProfile(t, svc, u2, "Bea", 19)

	_, err := svc.SendLike(ctx, u1, &ledger.SendLikeRequest{Sender: u1.String(), Receiver: u2.String()})
	require.NoError(t, err)

	_, err = svc.SendLike(ctx, u1, &ledger.SendLikeRequest{Sender: u1.String(), Receiver: u2.String()})
	assert.ErrorIs(t, err, ledgerr.ErrAlreadyExists)

	// state after the failed call equals state before it
	p1, err := svc.GetProfile(ctx, u1.String())
	require.NoError(t, err)
	assert.Empty(t, p1.Matches)

	likers, err := svc.ListLikedYou(ctx, u2.String(), nil, 10)
	require.NoError(t, err)
	require.Len(t, likers.Likers, 1)
	assert.False(t, likers.Likers[0].IsMutual)
}

func TestSendLikeUnauthorizedSender(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t)
	u1, u2 := testKey(0x01), testKey(0x02)
	mustCreateProfile(t, svc, u1, "Alice", 21)
	mustCreateProfile(t, svc, u2, "Bea", 19)

	_, err := svc.SendLike(ctx, u2, &ledger.SendLikeRequest{Sender: u1.String(), Receiver: u2.String()})
	assert.ErrorIs(t, err, ledgerr.ErrUnauthorized)
}

func TestSendLikeInactiveProfileFails(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t)
	u1, u2 := testKey(0x01), testKey(0x02)
	mustCreateProfile(t, svc, u1, "Alice", 21)
	mustCreateProfile(t, svc, u2, "Bea", 19)

	inactive := false
	_, err := svc.UpdateProfile(ctx, u2, &ledger.UpdateProfileRequest{
		Owner:    u2.String(),
		IsActive: &inactive,
	})
	require.NoError(t, err)

	_, err = svc.SendLike(ctx, u1, &ledger.SendLikeRequest{Sender: u1.String(), Receiver: u2.String()})
	assert.ErrorIs(t, err, ledgerr.ErrUserNotActive)
}

func TestSendLikeBlockedEitherDirection(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t)
	u1, u2 := testKey(0x01), testKey(0x02)
	mustCreateProfile(t, svc, u1, "Alice", 21)
	mustCreateProfile(t, svc, u2, "Bea", 19)

	_, err := svc.BlockUser(ctx, u1, &ledger.BlockUserRequest{Blocker: u1.String(), Blocked: u2.String()})
	require.NoError(t, err)

	// the blocked party cannot like the blocker
	_, err = svc.SendLike(ctx, u2, &ledger.SendLikeRequest{Sender: u2.String(), Receiver: u1.String()})
	assert.ErrorIs(t, err, ledgerr.ErrBlocked)

	// and the blocker cannot like the blocked either
	_, err = svc.SendLike(ctx, u1, &ledger.SendLikeRequest{Sender: u1.String(), Receiver: u2.String()})
	assert.ErrorIs(t, err, ledgerr.ErrBlocked)
}

func TestBlockDoesNotUnmatchHistory(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t)
	u1, u2 := testKey(0x01), testKey(0x02)
	mustCreateProfile(t, svc, u1, "Alice", 21)
	mustCreateProfile(t, svc, u2, "Bea", 19)

	_, err := svc.SendLike(ctx, u1, &ledger.SendLikeRequest{Sender: u1.String(), Receiver: u2.String()})
	require.NoError(t, err)
	_, err = svc.SendLike(ctx, u2, &ledger.SendLikeRequest{Sender: u2.String(), Receiver: u1.String()})
	require.NoError(t, err)
	_, err = svc.SendMessage(ctx, u1, &ledger.SendMessageRequest{
		Sender: u1.String(), Receiver: u2.String(), MessageID: 1, Content: "hi",
	})
	require.NoError(t, err)

	_, err = svc.BlockUser(ctx, u1, &ledger.BlockUserRequest{Blocker: u1.String(), Blocked: u2.String()})
	require.NoError(t, err)

	// existing match and thread survive
	p1, err := svc.GetProfile(ctx, u1.String())
	require.NoError(t, err)
	assert.Equal(t, []string{u2.String()}, p1.Matches)

	thread, err := svc.GetThread(ctx, u1, u2.String(), nil, 10)
	require.NoError(t, err)
	assert.Len(t, thread.Messages, 1)

	// but new messages are gated
	_, err = svc.SendMessage(ctx, u2, &ledger.SendMessageRequest{
		Sender: u2.String(), Receiver: u1.String(), MessageID: 2, Content: "hello?",
	})
	assert.ErrorIs(t, err, ledgerr.ErrBlocked)
}

func TestBlockUserSelfAndDuplicate(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t)
	u1, u2 := testKey(0x01), testKey(0x02)
	mustCreateProfile(t, svc, u1, "Alice", 21)
	mustCreateProfile(t, svc, u2, "Bea", 19)

	_, err := svc.BlockUser(ctx, u1, &ledger.BlockUserRequest{Blocker: u1.String(), Blocked: u1.String()})
	assert.ErrorIs(t, err, ledgerr.ErrInvalidUser)

	_, err = svc.BlockUser(ctx, u1, &ledger.BlockUserRequest{Blocker: u1.String(), Blocked: u2.String()})
	require.NoError(t, err)
	_, err = svc.BlockUser(ctx, u1, &ledger.BlockUserRequest{Blocker: u1.String(), Blocked: u2.String()})
	assert.ErrorIs(t, err, ledgerr.ErrAlreadyExists)
}

//
// Message thread store
//

// matchPair creates two profiles and a mutual like between them.
func matchPair(t *testing.T, svc *ledger.Service, a, b identity.Key) {
	t.Helper()
	ctx := context.Background()
	mustCreateProfile(t, svc, a, "Alice", 21)
	mustCreateProfile(t, svc, b, "Bea", 19)
	_, err := svc.SendLike(ctx, a, &ledger.SendLikeRequest{Sender: a.String(), Receiver: b.String()})
	require.NoError(t, err)
	_, err = svc.SendLike(ctx, b, &ledger.SendLikeRequest{Sender: b.String(), Receiver: a.String()})
	require.NoError(t, err)
}

func TestSendMessageAndThreadOrder(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t)
	u1, u2 := testKey(0x01), testKey(0x02)
	matchPair(t, svc, u1, u2)

	_, err := svc.SendMessage(ctx, u1, &ledger.SendMessageRequest{
		Sender: u1.String(), Receiver: u2.String(), MessageID: 1000, Content: "hi",
	})
	require.NoError(t, err)
	_, err = svc.SendMessage(ctx, u2, &ledger.SendMessageRequest{
		Sender: u2.String(), Receiver: u1.String(), MessageID: 1001, Content: "hey",
	})
	require.NoError(t, err)

	thread, err := svc.GetThread(ctx, u1, u2.String(), nil, 10)
	require.NoError(t, err)
	require.Len(t, thread.Messages, 2)
	assert.Equal(t, int64(2), thread.Total)

	assert.Equal(t, "hi", thread.Messages[0].Content)
	assert.Equal(t, u1.String(), thread.Messages[0].Sender)
	assert.Equal(t, "hey", thread.Messages[1].Content)
	assert.Equal(t, u2.String(), thread.Messages[1].Sender)
}

func TestSendMessageRequiresMutualByDefault(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t)
	u1, u2 := testKey(0x01), testKey(0x02)
	mustCreateProfile(t, svc, u1, "Alice", 21)
	mustCreateProfile(t, svc, u2, "Bea", 19)

	// no like at all
	_, err := svc.SendMessage(ctx, u1, &ledger.SendMessageRequest{
		Sender: u1.String(), Receiver: u2.String(), MessageID: 1, Content: "hi",
	})
	assert.ErrorIs(t, err, ledgerr.ErrNotMutualLikes)

	// one-way like is still not enough
	_, err = svc.SendLike(ctx, u1, &ledger.SendLikeRequest{Sender: u1.String(), Receiver: u2.String()})
	require.NoError(t, err)
	_, err = svc.SendMessage(ctx, u1, &ledger.SendMessageRequest{
		Sender: u1.String(), Receiver: u2.String(), MessageID: 1, Content: "hi",
	})
	assert.ErrorIs(t, err, ledgerr.ErrNotMutualLikes)
}

func TestSendMessageWeakPolicyAcceptsOneWayLike(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t, weakMessagePolicy)
	u1, u2 := testKey(0x01), testKey(0x02)
	mustCreateProfile(t, svc, u1, "Alice", 21)
	mustCreateProfile(t, svc, u2, "Bea", 19)

	// still rejected with no like in either direction
	_, err := svc.SendMessage(ctx, u1, &ledger.SendMessageRequest{
		Sender: u1.String(), Receiver: u2.String(), MessageID: 1, Content: "hi",
	})
	assert.ErrorIs(t, err, ledgerr.ErrNotMutualLikes)

	_, err = svc.SendLike(ctx, u1, &ledger.SendLikeRequest{Sender: u1.String(), Receiver: u2.String()})
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, u1, &ledger.SendMessageRequest{
		Sender: u1.String(), Receiver: u2.String(), MessageID: 1, Content: "hi",
	})
	assert.NoError(t, err)
}

func TestSendMessageBounds(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t)
	u1, u2 := testKey(0x01), testKey(0x02)
	matchPair(t, svc, u1, u2)

	_, err := svc.SendMessage(ctx, u1, &ledger.SendMessageRequest{
		Sender: u1.String(), Receiver: u2.String(), MessageID: 1,
		Content: strings.Repeat("x", ledger.MaxMessageLen+1),
	})
	assert.ErrorIs(t, err, ledgerr.ErrMessageTooLong)

	_, err = svc.SendMessage(ctx, u1, &ledger.SendMessageRequest{
		Sender: u1.String(), Receiver: u2.String(), MessageID: 1, Content: "",
	})
	assert.ErrorIs(t, err, ledgerr.ErrValidation)

	_, err = svc.SendMessage(ctx, u1, &ledger.SendMessageRequest{
		Sender: u1.String(), Receiver: u1.String(), MessageID: 1, Content: "hi",
	})
	assert.ErrorIs(t, err, ledgerr.ErrInvalidUser)
}

func TestSendMessageFirstIDZero(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t)
	u1, u2 := testKey(0x01), testKey(0x02)
	matchPair(t, svc, u1, u2)

	// a thread-length counter hands out zero for the first message
	_, err := svc.SendMessage(ctx, u1, &ledger.SendMessageRequest{
		Sender: u1.String(), Receiver: u2.String(), MessageID: 0, Content: "hi",
	})
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, u1, &ledger.SendMessageRequest{
		Sender: u1.String(), Receiver: u2.String(), MessageID: 0, Content: "again",
	})
	assert.ErrorIs(t, err, ledgerr.ErrAlreadyExists)
}

func TestSendMessageIDCollision(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t)
	u1, u2 := testKey(0x01), testKey(0x02)
	matchPair(t, svc, u1, u2)

	_, err := svc.SendMessage(ctx, u1, &ledger.SendMessageRequest{
		Sender: u1.String(), Receiver: u2.String(), MessageID: 7, Content: "hi",
	})
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, u1, &ledger.SendMessageRequest{
		Sender: u1.String(), Receiver: u2.String(), MessageID: 7, Content: "hi again",
	})
	assert.ErrorIs(t, err, ledgerr.ErrAlreadyExists)
}

//
// Counters
//

func TestCountLikedYouCacheFirst(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t)
	u1, u2, u3 := testKey(0x01), testKey(0x02), testKey(0x03)
	mustCreateProfile(t, svc, u1, "Alice", 21)
	mustCreateProfile(t, svc, u2, "Bea", 19)
	mustCreateProfile(t, svc, u3, "Cal", 30)

	_, err := svc.SendLike(ctx, u2, &ledger.SendLikeRequest{Sender: u2.String(), Receiver: u1.String()})
	require.NoError(t, err)
	_, err = svc.SendLike(ctx, u3, &ledger.SendLikeRequest{Sender: u3.String(), Receiver: u1.String()})
	require.NoError(t, err)

	// first call may hit the write-through counter or the DB; both agree
	count, err := svc.CountLikedYou(ctx, u1.String())
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// second call is served from cache
	count, err = svc.CountLikedYou(ctx, u1.String())
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
