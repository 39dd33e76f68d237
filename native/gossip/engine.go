package gossip

import (
	"math/big"
	"time"

	"gossipchain/core/events"
	"gossipchain/core/types"
)

type engineState interface {
	GossipGet(id [32]byte) (*Gossip, bool, error)
	GossipPut(*Gossip) error
	GossipNextIndex(creator [20]byte) (uint64, error)
	SharedGossipGet(id [32]byte) (*SharedGossip, bool, error)
	SharedGossipPut(*SharedGossip) error
	VaultGet(id [32]byte) (*Vault, bool, error)
	VaultPut(*Vault) error
	VaultDelete(id [32]byte) error
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

// Engine wires the pay-to-reveal settlement rules with persistence and
// event emission. It is the sole mutation entry point for gossip, share and
// vault records; callers provide serialization so no two operations touch
// the same entity concurrently.
type Engine struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine creates a settlement engine with a no-op emitter. Callers can
// override the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Primarily
// intended for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(WrapEvent(event))
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func ensureAccount(acc *types.Account) *types.Account {
	if acc == nil {
		return &types.Account{Balance: big.NewInt(0)}
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc
}

func (e *Engine) debit(from [20]byte, amount *big.Int) error {
	acc, err := e.state.GetAccount(from[:])
	if err != nil {
		return err
	}
	acc = ensureAccount(acc)
	if acc.Balance.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	acc.Balance = new(big.Int).Sub(acc.Balance, amount)
	return e.state.PutAccount(from[:], acc)
}

func (e *Engine) credit(to [20]byte, amount *big.Int) error {
	acc, err := e.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	acc = ensureAccount(acc)
	acc.Balance = new(big.Int).Add(acc.Balance, amount)
	return e.state.PutAccount(to[:], acc)
}

// Create posts a new gossip. The price is fixed here from the text length
// and mention flag and never recomputed; the per-creator index is allocated
// by the state backend. Creation itself is free for the creator.
func (e *Engine) Create(creator [20]byte, text string, mention *[20]byte) (*Gossip, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if len(text) > MaxTextLen {
		return nil, ErrTextTooLong
	}
	index, err := e.state.GossipNextIndex(creator)
	if err != nil {
		return nil, err
	}
	g := &Gossip{
		ID:             GossipID(creator, index),
		Creator:        creator,
		Text:           text,
		Index:          index,
		Price:          Price(text, mention != nil),
		TotalCollected: big.NewInt(0),
		CreatedAt:      e.now(),
	}
	if mention != nil {
		g.Mention = *mention
		g.HasMention = true
	}
	if err := e.state.GossipPut(g); err != nil {
		return nil, err
	}
	e.emit(NewCreatedEvent(g))
	return g.Clone(), nil
}

// Reveal settles a direct purchase: the buyer pays exactly the gossip price,
// the proceeds land in a fresh vault owned by the creator, and the gossip is
// permanently marked revealed. A gossip transitions to revealed exactly
// once; any later attempt fails with ErrAlreadyRevealed.
func (e *Engine) Reveal(buyer [20]byte, id [32]byte, payment *big.Int) (*Gossip, *Vault, error) {
	if e == nil || e.state == nil {
		return nil, nil, errNilState
	}
	g, ok, err := e.state.GossipGet(id)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, ErrNotFound
	}
	if g.IsRevealed {
		return nil, nil, ErrAlreadyRevealed
	}
	if payment == nil || payment.Cmp(g.Price) != 0 {
		return nil, nil, ErrInvalidPayment
	}
	if err := e.debit(buyer, g.Price); err != nil {
		return nil, nil, err
	}
	vault := &Vault{
		ID:        RevealVaultID(id),
		Owner:     g.Creator,
		Amount:    cloneBigInt(g.Price),
		CreatedAt: e.now(),
	}
	if err := e.state.VaultPut(vault); err != nil {
		return nil, nil, err
	}
	g.IsRevealed = true
	g.TotalCollected = new(big.Int).Add(g.TotalCollected, g.Price)
	if err := e.state.GossipPut(g); err != nil {
		return nil, nil, err
	}
	e.emit(NewRevealedEvent(g, buyer, vault))
	return g.Clone(), vault.Clone(), nil
}

// Share creates a discounted re-sale right over an already revealed gossip.
// The share price is 80% of the original price, truncated, and the original
// creator is cached on the share for later settlement.
func (e *Engine) Share(sharer [20]byte, originalID [32]byte) (*SharedGossip, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	original, ok, err := e.state.GossipGet(originalID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	if !original.IsRevealed {
		return nil, ErrNotRevealed
	}
	id := SharedGossipID(originalID, sharer)
	if _, exists, err := e.state.SharedGossipGet(id); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrShareExists
	}
	share := &SharedGossip{
		ID:              id,
		OriginalID:      originalID,
		Sharer:          sharer,
		OriginalCreator: original.Creator,
		SharePrice:      SharePrice(original.Price),
		TotalCollected:  big.NewInt(0),
		CreatedAt:       e.now(),
	}
	if err := e.state.SharedGossipPut(share); err != nil {
		return nil, err
	}
	e.emit(NewSharedEvent(share))
	return share.Clone(), nil
}

// RevealShared settles a shared purchase: the buyer pays exactly the share
// price, which is split 60/40 between the original creator and the sharer
// into two freshly created vaults. Both legs belong to the same unit of
// work; callers must commit or discard them together. The collected amount
// accrues on both the share and the original gossip.
func (e *Engine) RevealShared(buyer [20]byte, shareID [32]byte, payment *big.Int) (*SharedGossip, *Vault, *Vault, error) {
	if e == nil || e.state == nil {
		return nil, nil, nil, errNilState
	}
	share, ok, err := e.state.SharedGossipGet(shareID)
	if err != nil {
		return nil, nil, nil, err
	}
	if !ok {
		return nil, nil, nil, ErrNotFound
	}
	if share.IsRevealed {
		return nil, nil, nil, ErrAlreadyRevealed
	}
	if payment == nil || payment.Cmp(share.SharePrice) != 0 {
		return nil, nil, nil, ErrInvalidPayment
	}
	creatorAmount, sharerAmount := SplitRevenue(share.SharePrice)
	if err := e.debit(buyer, share.SharePrice); err != nil {
		return nil, nil, nil, err
	}
	now := e.now()
	creatorVault := &Vault{
		ID:        CreatorVaultID(shareID),
		Owner:     share.OriginalCreator,
		Amount:    creatorAmount,
		CreatedAt: now,
	}
	sharerVault := &Vault{
		ID:        SharerVaultID(shareID),
		Owner:     share.Sharer,
		Amount:    sharerAmount,
		CreatedAt: now,
	}
	if err := e.state.VaultPut(creatorVault); err != nil {
		return nil, nil, nil, err
	}
	if err := e.state.VaultPut(sharerVault); err != nil {
		return nil, nil, nil, err
	}
	share.IsRevealed = true
	share.TotalCollected = new(big.Int).Add(share.TotalCollected, share.SharePrice)
	if err := e.state.SharedGossipPut(share); err != nil {
		return nil, nil, nil, err
	}
	original, ok, err := e.state.GossipGet(share.OriginalID)
	if err != nil {
		return nil, nil, nil, err
	}
	if !ok {
		return nil, nil, nil, ErrNotFound
	}
	original.TotalCollected = new(big.Int).Add(original.TotalCollected, share.SharePrice)
	if err := e.state.GossipPut(original); err != nil {
		return nil, nil, nil, err
	}
	e.emit(NewShareRevealedEvent(share, buyer, creatorVault, sharerVault))
	return share.Clone(), creatorVault.Clone(), sharerVault.Clone(), nil
}

// Withdraw drains a vault in full to the destination address and destroys
// it. Only the vault owner may withdraw; afterwards the vault no longer
// exists, so a repeat attempt fails with ErrNotFound.
func (e *Engine) Withdraw(caller [20]byte, vaultID [32]byte, destination [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	vault, ok, err := e.state.VaultGet(vaultID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	if vault.Owner != caller {
		return nil, ErrUnauthorizedWithdraw
	}
	amount := cloneBigInt(vault.Amount)
	if err := e.credit(destination, amount); err != nil {
		return nil, err
	}
	if err := e.state.VaultDelete(vaultID); err != nil {
		return nil, err
	}
	e.emit(NewWithdrawnEvent(vaultID, vault.Owner, destination, amount))
	return amount, nil
}

// GetGossip returns a copy of the stored gossip.
func (e *Engine) GetGossip(id [32]byte) (*Gossip, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	g, ok, err := e.state.GossipGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return g.Clone(), nil
}

// GetShared returns a copy of the stored shared gossip.
func (e *Engine) GetShared(id [32]byte) (*SharedGossip, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	s, ok, err := e.state.SharedGossipGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

// GetVault returns a copy of the stored vault.
func (e *Engine) GetVault(id [32]byte) (*Vault, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	v, ok, err := e.state.VaultGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return v.Clone(), nil
}
