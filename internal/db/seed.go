package db

import (
	"fmt"
	"log"
	"math/rand"
	"slices"
	"time"

	"gorm.io/gorm"

	"github.com/pairmatch/ledger/internal/address"
	"github.com/pairmatch/ledger/internal/identity"
)

// SeedTestData resets the database and populates it with demo identities
// and relations, built through the same derivation and promotion paths as
// production writes.
//
// Behavior:
//  1. Clears all four tables.
//  2. Generates 12 ed25519 identities with profiles.
//  3. Builds a like mesh (~4 likes per user); every 3rd like is made
//     mutual, which also flips flags and fills both match lists.
//  4. Adds one block pair and a short message thread for the first match.
//
// Returns the seeded identities so callers can mint dev tokens.
func SeedTestData(gdb *gorm.DB) ([]identity.Key, error) {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	for _, table := range []string{"messages", "blocks", "likes", "profiles"} {
		if err := gdb.Exec("DELETE FROM " + table).Error; err != nil {
			return nil, fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	log.Println("Cleared existing data")

	names := []string{
		"Alice", "Bea", "Cal", "Dina", "Eli", "Fay",
		"Gus", "Hana", "Ivo", "Jade", "Kai", "Lena",
	}
	locations := []string{"Lisbon", "Berlin", "Austin", "Seoul"}
	interestPool := []string{"hiking", "jazz", "chess", "surfing", "baking", "film"}

	keys := make([]identity.Key, 0, len(names))
	for i, name := range names {
		key, err := identity.New()
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)

		if err := seedProfile(gdb, key, name,
			uint8(19+r.Intn(30)),
			fmt.Sprintf("hi, i'm %s", name),
			locations[i%len(locations)],
			[]string{interestPool[i%len(interestPool)], interestPool[(i+2)%len(interestPool)]},
		); err != nil {
			return nil, err
		}
	}
	log.Printf("Seeded %d profiles.", len(keys))

	// Like mesh; every 3rd like gets a guaranteed reciprocal.
	counter := 0
	for i := range keys {
		for j := 0; j < 4; j++ {
			other := r.Intn(len(keys))
			if other == i {
				continue
			}
			if err := seedLike(gdb, keys[i], keys[other]); err != nil {
				return nil, fmt.Errorf("failed to seed like: %w", err)
			}
			if counter%3 == 0 {
				if err := seedLike(gdb, keys[other], keys[i]); err != nil {
					return nil, fmt.Errorf("failed to seed reciprocal like: %w", err)
				}
			}
			counter++
		}
	}

	// One block pair: the last identity blocks the first.
	if err := seedBlock(gdb, keys[len(keys)-1], keys[0]); err != nil {
		return nil, err
	}

	// A short thread between the first guaranteed-mutual pair.
	if err := seedMessage(gdb, keys[0], keys[1], 1, "hey, we matched"); err != nil {
		return nil, err
	}
	if err := seedMessage(gdb, keys[1], keys[0], 2, "so we did"); err != nil {
		return nil, err
	}

	return keys, nil
}

// MinimalSeed is the deterministic dataset used by tests:
//   - Alice and Bea like each other (mutual, matched).
//   - Cal likes Alice one-way.
type MinimalSeed struct {
	Alice identity.Key
	Bea   identity.Key
	Cal   identity.Key
}

// SeedMinimalTestData wipes the DB and inserts the minimal dataset through
// the same seed helpers as the full seeder. Keys are fixed byte patterns
// so test assertions stay stable.
func SeedMinimalTestData(gdb *gorm.DB) (*MinimalSeed, error) {
	for _, table := range []string{"messages", "blocks", "likes", "profiles"} {
		if err := gdb.Exec("DELETE FROM " + table).Error; err != nil {
			return nil, err
		}
	}

	seed := &MinimalSeed{
		Alice: fixedKey(0x11),
		Bea:   fixedKey(0x22),
		Cal:   fixedKey(0x33),
	}

	if err := seedProfile(gdb, seed.Alice, "Alice", 21, "into chess", "Lisbon", []string{"chess"}); err != nil {
		return nil, err
	}
	if err := seedProfile(gdb, seed.Bea, "Bea", 19, "surf or nothing", "Porto", []string{"surfing"}); err != nil {
		return nil, err
	}
	if err := seedProfile(gdb, seed.Cal, "Cal", 30, "", "Faro", nil); err != nil {
		return nil, err
	}

	if err := seedLike(gdb, seed.Alice, seed.Bea); err != nil {
		return nil, err
	}
	if err := seedLike(gdb, seed.Bea, seed.Alice); err != nil {
		return nil, err
	}
	if err := seedLike(gdb, seed.Cal, seed.Alice); err != nil {
		return nil, err
	}

	return seed, nil
}

func fixedKey(b byte) identity.Key {
	var k identity.Key
	for i := range k {
		k[i] = b
	}
	return k
}

func seedProfile(gdb *gorm.DB, owner identity.Key, name string, age uint8, bio, location string, interests []string) error {
	addr, nonce, err := address.ForProfile(owner)
	if err != nil {
		return err
	}
	if interests == nil {
		interests = []string{}
	}
	return gdb.Create(&Profile{
		Address:   addr.String(),
		Owner:     owner.String(),
		Nonce:     nonce,
		Name:      name,
		Age:       age,
		Bio:       bio,
		Location:  location,
		Interests: interests,
		Matches:   []string{},
		IsActive:  true,
	}).Error
}

// seedLike mirrors the production write: skip if the directed edge exists,
// and perform mutual promotion when the reciprocal is already present.
func seedLike(gdb *gorm.DB, sender, receiver identity.Key) error {
	addr, nonce, err := address.ForLike(sender, receiver)
	if err != nil {
		return err
	}

	var existing int64
	gdb.Model(&Like{}).Where("address = ?", addr.String()).Count(&existing)
	if existing > 0 {
		return nil
	}

	recipAddr, _, err := address.ForLike(receiver, sender)
	if err != nil {
		return err
	}
	var recipCount int64
	gdb.Model(&Like{}).Where("address = ?", recipAddr.String()).Count(&recipCount)
	mutual := recipCount > 0

	if err := gdb.Create(&Like{
		Address:  addr.String(),
		Sender:   sender.String(),
		Receiver: receiver.String(),
		Nonce:    nonce,
		IsMutual: mutual,
	}).Error; err != nil {
		return err
	}
	if !mutual {
		return nil
	}

	if err := gdb.Model(&Like{}).Where("address = ?", recipAddr.String()).
		Update("is_mutual", true).Error; err != nil {
		return err
	}
	if err := appendMatch(gdb, sender, receiver); err != nil {
		return err
	}
	return appendMatch(gdb, receiver, sender)
}

func appendMatch(gdb *gorm.DB, owner, other identity.Key) error {
	var p Profile
	addr, _, err := address.ForProfile(owner)
	if err != nil {
		return err
	}
	if err := gdb.First(&p, "address = ?", addr.String()).Error; err != nil {
		return err
	}
	if slices.Contains(p.Matches, other.String()) {
		return nil
	}
	p.Matches = append(p.Matches, other.String())
	return gdb.Model(&p).Select("matches").Updates(&Profile{Matches: p.Matches}).Error
}

func seedBlock(gdb *gorm.DB, blocker, blocked identity.Key) error {
	addr, nonce, err := address.ForBlock(blocker, blocked)
	if err != nil {
		return err
	}
	return gdb.Create(&Block{
		Address: addr.String(),
		Blocker: blocker.String(),
		Blocked: blocked.String(),
		Nonce:   nonce,
	}).Error
}

func seedMessage(gdb *gorm.DB, sender, receiver identity.Key, messageID uint64, content string) error {
	addr, nonce, err := address.ForMessage(sender, receiver, messageID)
	if err != nil {
		return err
	}
	return gdb.Create(&Message{
		Address:   addr.String(),
		Sender:    sender.String(),
		Receiver:  receiver.String(),
		MessageID: messageID,
		Nonce:     nonce,
		Content:   content,
	}).Error
}
