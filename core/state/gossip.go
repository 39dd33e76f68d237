package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"gossipchain/native/gossip"
)

// Stored record mirrors keep the persisted shape explicit and RLP-friendly
// (RLP has no signed integers, so timestamps are stored unsigned).

type gossipRecord struct {
	ID             [32]byte
	Creator        [20]byte
	Text           string
	Mention        [20]byte
	HasMention     bool
	IsRevealed     bool
	Index          uint64
	Price          *big.Int
	TotalCollected *big.Int
	CreatedAt      uint64
}

type sharedRecord struct {
	ID              [32]byte
	OriginalID      [32]byte
	Sharer          [20]byte
	OriginalCreator [20]byte
	SharePrice      *big.Int
	IsRevealed      bool
	TotalCollected  *big.Int
	CreatedAt       uint64
}

type vaultRecord struct {
	ID        [32]byte
	Owner     [20]byte
	Amount    *big.Int
	CreatedAt uint64
}

// GossipGet loads a gossip by identity.
func (m *Manager) GossipGet(id [32]byte) (*gossip.Gossip, bool, error) {
	data, ok, err := m.read(prefixedKey(gossipPrefix, id[:]))
	if err != nil || !ok {
		return nil, false, err
	}
	var rec gossipRecord
	if err := rlp.DecodeBytes(data, &rec); err != nil {
		return nil, false, fmt.Errorf("decode gossip: %w", err)
	}
	return &gossip.Gossip{
		ID:             rec.ID,
		Creator:        rec.Creator,
		Text:           rec.Text,
		Mention:        rec.Mention,
		HasMention:     rec.HasMention,
		IsRevealed:     rec.IsRevealed,
		Index:          rec.Index,
		Price:          rec.Price,
		TotalCollected: rec.TotalCollected,
		CreatedAt:      int64(rec.CreatedAt),
	}, true, nil
}

// GossipPut stages a gossip record.
func (m *Manager) GossipPut(g *gossip.Gossip) error {
	if g == nil {
		return fmt.Errorf("nil gossip")
	}
	clone := g.Clone()
	rec := gossipRecord{
		ID:             clone.ID,
		Creator:        clone.Creator,
		Text:           clone.Text,
		Mention:        clone.Mention,
		HasMention:     clone.HasMention,
		IsRevealed:     clone.IsRevealed,
		Index:          clone.Index,
		Price:          clone.Price,
		TotalCollected: clone.TotalCollected,
		CreatedAt:      uint64(clone.CreatedAt),
	}
	encoded, err := rlp.EncodeToBytes(&rec)
	if err != nil {
		return fmt.Errorf("encode gossip: %w", err)
	}
	m.write(prefixedKey(gossipPrefix, rec.ID[:]), encoded)
	return nil
}

// SharedGossipGet loads a shared gossip by identity.
func (m *Manager) SharedGossipGet(id [32]byte) (*gossip.SharedGossip, bool, error) {
	data, ok, err := m.read(prefixedKey(sharedPrefix, id[:]))
	if err != nil || !ok {
		return nil, false, err
	}
	var rec sharedRecord
	if err := rlp.DecodeBytes(data, &rec); err != nil {
		return nil, false, fmt.Errorf("decode shared gossip: %w", err)
	}
	return &gossip.SharedGossip{
		ID:              rec.ID,
		OriginalID:      rec.OriginalID,
		Sharer:          rec.Sharer,
		OriginalCreator: rec.OriginalCreator,
		SharePrice:      rec.SharePrice,
		IsRevealed:      rec.IsRevealed,
		TotalCollected:  rec.TotalCollected,
		CreatedAt:       int64(rec.CreatedAt),
	}, true, nil
}

// SharedGossipPut stages a shared gossip record.
func (m *Manager) SharedGossipPut(s *gossip.SharedGossip) error {
	if s == nil {
		return fmt.Errorf("nil shared gossip")
	}
	clone := s.Clone()
	rec := sharedRecord{
		ID:              clone.ID,
		OriginalID:      clone.OriginalID,
		Sharer:          clone.Sharer,
		OriginalCreator: clone.OriginalCreator,
		SharePrice:      clone.SharePrice,
		IsRevealed:      clone.IsRevealed,
		TotalCollected:  clone.TotalCollected,
		CreatedAt:       uint64(clone.CreatedAt),
	}
	encoded, err := rlp.EncodeToBytes(&rec)
	if err != nil {
		return fmt.Errorf("encode shared gossip: %w", err)
	}
	m.write(prefixedKey(sharedPrefix, rec.ID[:]), encoded)
	return nil
}

// VaultGet loads a vault by identity.
func (m *Manager) VaultGet(id [32]byte) (*gossip.Vault, bool, error) {
	data, ok, err := m.read(prefixedKey(vaultPrefix, id[:]))
	if err != nil || !ok {
		return nil, false, err
	}
	var rec vaultRecord
	if err := rlp.DecodeBytes(data, &rec); err != nil {
		return nil, false, fmt.Errorf("decode vault: %w", err)
	}
	return &gossip.Vault{
		ID:        rec.ID,
		Owner:     rec.Owner,
		Amount:    rec.Amount,
		CreatedAt: int64(rec.CreatedAt),
	}, true, nil
}

// VaultPut validates and stages a vault record.
func (m *Manager) VaultPut(v *gossip.Vault) error {
	sanitized, err := gossip.SanitizeVault(v)
	if err != nil {
		return err
	}
	rec := vaultRecord{
		ID:        sanitized.ID,
		Owner:     sanitized.Owner,
		Amount:    sanitized.Amount,
		CreatedAt: uint64(sanitized.CreatedAt),
	}
	encoded, err := rlp.EncodeToBytes(&rec)
	if err != nil {
		return fmt.Errorf("encode vault: %w", err)
	}
	m.write(prefixedKey(vaultPrefix, rec.ID[:]), encoded)
	return nil
}

// VaultDelete stages removal of a vault, reclaiming its storage.
func (m *Manager) VaultDelete(id [32]byte) error {
	m.delete(prefixedKey(vaultPrefix, id[:]))
	return nil
}
