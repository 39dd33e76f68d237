package gossip

import (
	"encoding/binary"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// MaxTextLen is the hard upper bound on gossip text, in bytes.
const MaxTextLen = 20

// Gossip is a priced piece of hidden content. The identity is derived from
// the creator address and a per-creator sequence number, so the creator can
// post any number of items without identifier collisions.
type Gossip struct {
	ID             [32]byte
	Creator        [20]byte
	Text           string
	Mention        [20]byte
	HasMention     bool
	IsRevealed     bool
	Index          uint64
	Price          *big.Int
	TotalCollected *big.Int
	CreatedAt      int64
}

// Clone returns a deep copy of the gossip so callers can safely mutate the
// copy without affecting the stored instance.
func (g *Gossip) Clone() *Gossip {
	if g == nil {
		return nil
	}
	clone := *g
	clone.Price = cloneBigInt(g.Price)
	clone.TotalCollected = cloneBigInt(g.TotalCollected)
	return &clone
}

// SharedGossip is a discounted re-sale right over an already revealed
// gossip. It references the original by identity only and caches the
// original creator so settlement never has to re-derive it.
type SharedGossip struct {
	ID              [32]byte
	OriginalID      [32]byte
	Sharer          [20]byte
	OriginalCreator [20]byte
	SharePrice      *big.Int
	IsRevealed      bool
	TotalCollected  *big.Int
	CreatedAt       int64
}

// Clone returns a deep copy of the shared gossip.
func (s *SharedGossip) Clone() *SharedGossip {
	if s == nil {
		return nil
	}
	clone := *s
	clone.SharePrice = cloneBigInt(s.SharePrice)
	clone.TotalCollected = cloneBigInt(s.TotalCollected)
	return &clone
}

// Vault is a one-shot escrow account holding the proceeds of a single
// settlement leg until its owner withdraws them. Withdrawal destroys the
// vault; a new vault is created per settlement event.
type Vault struct {
	ID        [32]byte
	Owner     [20]byte
	Amount    *big.Int
	CreatedAt int64
}

// Clone returns a deep copy of the vault.
func (v *Vault) Clone() *Vault {
	if v == nil {
		return nil
	}
	clone := *v
	clone.Amount = cloneBigInt(v.Amount)
	return &clone
}

// SanitizeVault validates a vault definition before it is persisted. Vaults
// are only ever created with a positive amount.
func SanitizeVault(v *Vault) (*Vault, error) {
	if v == nil {
		return nil, fmt.Errorf("nil vault")
	}
	clone := v.Clone()
	if clone.Amount == nil || clone.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("vault amount must be positive")
	}
	return clone, nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// --- Deterministic identities ---
//
// Entity identifiers are keccak256 hashes over a domain tag and the fields
// that make the entity unique, mirroring the composite-key scheme used for
// state storage.

// GossipID derives the identity of a gossip from its creator and
// per-creator sequence number.
func GossipID(creator [20]byte, index uint64) [32]byte {
	var idx [8]byte
	binary.LittleEndian.PutUint64(idx[:], index)
	return ethcrypto.Keccak256Hash([]byte("gossip"), creator[:], idx[:])
}

// SharedGossipID derives the identity of a share from the original gossip
// and the sharer. One share per (original, sharer) pair.
func SharedGossipID(originalID [32]byte, sharer [20]byte) [32]byte {
	return ethcrypto.Keccak256Hash([]byte("shared_gossip"), originalID[:], sharer[:])
}

// RevealVaultID derives the vault identity for a direct reveal settlement.
func RevealVaultID(gossipID [32]byte) [32]byte {
	return ethcrypto.Keccak256Hash([]byte("vault"), gossipID[:])
}

// CreatorVaultID derives the creator-leg vault identity for a shared
// reveal settlement.
func CreatorVaultID(sharedID [32]byte) [32]byte {
	return ethcrypto.Keccak256Hash([]byte("creator_vault"), sharedID[:])
}

// SharerVaultID derives the sharer-leg vault identity for a shared reveal
// settlement.
func SharerVaultID(sharedID [32]byte) [32]byte {
	return ethcrypto.Keccak256Hash([]byte("sharer_vault"), sharedID[:])
}
