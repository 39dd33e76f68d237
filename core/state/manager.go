package state

import (
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"gossipchain/core/types"
	"gossipchain/storage"
)

var (
	accountPrefix = []byte("account:")
	gossipPrefix  = []byte("gossip:")
	sharedPrefix  = []byte("shared:")
	vaultPrefix   = []byte("vault:")
	indexPrefix   = []byte("gossip-index:")
)

func prefixedKey(prefix, suffix []byte) []byte {
	buf := make([]byte, 0, len(prefix)+len(suffix))
	buf = append(buf, prefix...)
	buf = append(buf, suffix...)
	return ethcrypto.Keccak256(buf)
}

type overlayEntry struct {
	value   []byte
	deleted bool
}

// Manager reads and writes marketplace state against a key-value database.
// All mutations are staged in an in-memory overlay; Commit flushes the
// overlay through a single atomic write batch and Reset discards it, which
// gives every settlement operation all-or-nothing semantics across any
// number of keys it touched.
type Manager struct {
	db      storage.Database
	overlay map[string]overlayEntry
	order   []string
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{
		db:      db,
		overlay: make(map[string]overlayEntry),
	}
}

func (m *Manager) read(key []byte) ([]byte, bool, error) {
	if entry, ok := m.overlay[string(key)]; ok {
		if entry.deleted {
			return nil, false, nil
		}
		return entry.value, true, nil
	}
	value, err := m.db.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (m *Manager) stage(key []byte, entry overlayEntry) {
	if _, ok := m.overlay[string(key)]; !ok {
		m.order = append(m.order, string(key))
	}
	m.overlay[string(key)] = entry
}

func (m *Manager) write(key, value []byte) {
	m.stage(key, overlayEntry{value: value})
}

func (m *Manager) delete(key []byte) {
	m.stage(key, overlayEntry{deleted: true})
}

// Commit flushes all staged writes through one atomic batch and clears the
// overlay.
func (m *Manager) Commit() error {
	if len(m.order) == 0 {
		return nil
	}
	ops := make([]storage.BatchOp, 0, len(m.order))
	for _, key := range m.order {
		entry := m.overlay[key]
		ops = append(ops, storage.BatchOp{
			Key:    []byte(key),
			Value:  entry.value,
			Delete: entry.deleted,
		})
	}
	if err := m.db.WriteBatch(ops); err != nil {
		return fmt.Errorf("state commit: %w", err)
	}
	m.Reset()
	return nil
}

// Reset discards all staged writes, leaving the database untouched.
func (m *Manager) Reset() {
	m.overlay = make(map[string]overlayEntry)
	m.order = nil
}

// Pending reports how many keys are currently staged.
func (m *Manager) Pending() int {
	return len(m.order)
}

// --- Accounts ---

type accountRecord struct {
	Balance *big.Int
	Nonce   uint64
}

// GetAccount loads the account stored for addr, or nil when absent.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	data, ok, err := m.read(prefixedKey(accountPrefix, addr))
	if err != nil || !ok {
		return nil, err
	}
	var rec accountRecord
	if err := rlp.DecodeBytes(data, &rec); err != nil {
		return nil, fmt.Errorf("decode account: %w", err)
	}
	return &types.Account{Balance: rec.Balance, Nonce: rec.Nonce}, nil
}

// PutAccount stages the account for addr.
func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	if account == nil {
		m.delete(prefixedKey(accountPrefix, addr))
		return nil
	}
	balance := account.Balance
	if balance == nil {
		balance = big.NewInt(0)
	}
	rec := accountRecord{Balance: balance, Nonce: account.Nonce}
	encoded, err := rlp.EncodeToBytes(&rec)
	if err != nil {
		return fmt.Errorf("encode account: %w", err)
	}
	m.write(prefixedKey(accountPrefix, addr), encoded)
	return nil
}

// --- Genesis marker ---

var genesisAppliedKey = ethcrypto.Keccak256([]byte("genesis:applied"))

// GenesisApplied reports whether genesis allocations were already written.
func (m *Manager) GenesisApplied() (bool, error) {
	_, ok, err := m.read(genesisAppliedKey)
	return ok, err
}

// MarkGenesisApplied stages the one-time genesis marker.
func (m *Manager) MarkGenesisApplied() {
	m.write(genesisAppliedKey, []byte{1})
}

// --- Per-creator sequence numbers ---

// GossipNextIndex allocates the next unused per-creator sequence number.
// The increment is staged with the rest of the operation, so a failed
// operation does not burn an index.
func (m *Manager) GossipNextIndex(creator [20]byte) (uint64, error) {
	key := prefixedKey(indexPrefix, creator[:])
	data, ok, err := m.read(key)
	if err != nil {
		return 0, err
	}
	var next uint64
	if ok {
		if err := rlp.DecodeBytes(data, &next); err != nil {
			return 0, fmt.Errorf("decode gossip index: %w", err)
		}
	}
	encoded, err := rlp.EncodeToBytes(next + 1)
	if err != nil {
		return 0, fmt.Errorf("encode gossip index: %w", err)
	}
	m.write(key, encoded)
	return next, nil
}
