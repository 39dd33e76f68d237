package gossip

import (
	"errors"
	"math/big"
	"strings"
	"testing"

	"gossipchain/core/events"
	"gossipchain/core/types"
)

type mockState struct {
	gossips  map[[32]byte]*Gossip
	shares   map[[32]byte]*SharedGossip
	vaults   map[[32]byte]*Vault
	accounts map[string]*types.Account
	indexes  map[[20]byte]uint64
}

func newMockState() *mockState {
	return &mockState{
		gossips:  make(map[[32]byte]*Gossip),
		shares:   make(map[[32]byte]*SharedGossip),
		vaults:   make(map[[32]byte]*Vault),
		accounts: make(map[string]*types.Account),
		indexes:  make(map[[20]byte]uint64),
	}
}

func (m *mockState) GossipGet(id [32]byte) (*Gossip, bool, error) {
	g, ok := m.gossips[id]
	if !ok {
		return nil, false, nil
	}
	return g.Clone(), true, nil
}

func (m *mockState) GossipPut(g *Gossip) error {
	if g == nil {
		return nil
	}
	m.gossips[g.ID] = g.Clone()
	return nil
}

func (m *mockState) GossipNextIndex(creator [20]byte) (uint64, error) {
	next := m.indexes[creator]
	m.indexes[creator] = next + 1
	return next, nil
}

func (m *mockState) SharedGossipGet(id [32]byte) (*SharedGossip, bool, error) {
	s, ok := m.shares[id]
	if !ok {
		return nil, false, nil
	}
	return s.Clone(), true, nil
}

func (m *mockState) SharedGossipPut(s *SharedGossip) error {
	if s == nil {
		return nil
	}
	m.shares[s.ID] = s.Clone()
	return nil
}

func (m *mockState) VaultGet(id [32]byte) (*Vault, bool, error) {
	v, ok := m.vaults[id]
	if !ok {
		return nil, false, nil
	}
	return v.Clone(), true, nil
}

func (m *mockState) VaultPut(v *Vault) error {
	sanitized, err := SanitizeVault(v)
	if err != nil {
		return err
	}
	m.vaults[sanitized.ID] = sanitized
	return nil
}

func (m *mockState) VaultDelete(id [32]byte) error {
	delete(m.vaults, id)
	return nil
}

func (m *mockState) GetAccount(addr []byte) (*types.Account, error) {
	if acc, ok := m.accounts[string(addr)]; ok {
		return acc.Clone(), nil
	}
	return nil, nil
}

func (m *mockState) PutAccount(addr []byte, account *types.Account) error {
	if account == nil {
		delete(m.accounts, string(addr))
		return nil
	}
	m.accounts[string(addr)] = account.Clone()
	return nil
}

func (m *mockState) setAccount(addr [20]byte, amount int64) {
	m.accounts[string(addr[:])] = &types.Account{Balance: big.NewInt(amount)}
}

func (m *mockState) balance(addr [20]byte) *big.Int {
	if acc, ok := m.accounts[string(addr[:])]; ok && acc.Balance != nil {
		return new(big.Int).Set(acc.Balance)
	}
	return big.NewInt(0)
}

func addr(last byte) [20]byte {
	var out [20]byte
	out[19] = last
	return out
}

func newTestEngine(state *mockState) *Engine {
	engine := NewEngine()
	engine.SetState(state)
	engine.SetNowFunc(func() int64 { return 1_700_000_000 })
	return engine
}

func TestCreateAssignsSequentialIndexes(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(state)
	creator := addr(0x01)

	first, err := engine.Create(creator, "first", nil)
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	second, err := engine.Create(creator, "second", nil)
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if first.Index != 0 || second.Index != 1 {
		t.Fatalf("unexpected indexes: %d, %d", first.Index, second.Index)
	}
	if first.ID == second.ID {
		t.Fatalf("identity collision across indexes")
	}
	if first.IsRevealed || first.TotalCollected.Sign() != 0 {
		t.Fatalf("new gossip must start unrevealed with nothing collected")
	}
}

func TestCreateFixesPriceAtCreation(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(state)
	mention := addr(0x7F)

	g, err := engine.Create(addr(0x01), "hello", &mention)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if g.Price.Cmp(big.NewInt(15_000_000)) != 0 {
		t.Fatalf("price with mention: got %s", g.Price)
	}
	if !g.HasMention || g.Mention != mention {
		t.Fatalf("mention not recorded")
	}

	plain, err := engine.Create(addr(0x01), strings.Repeat("a", 15), nil)
	if err != nil {
		t.Fatalf("create plain: %v", err)
	}
	if plain.Price.Cmp(big.NewInt(12_000_000)) != 0 {
		t.Fatalf("price without mention: got %s", plain.Price)
	}
	if plain.HasMention {
		t.Fatalf("mention flag set without a mention")
	}
}

func TestCreateRejectsOversizedText(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(state)

	if _, err := engine.Create(addr(0x01), strings.Repeat("a", 21), nil); !errors.Is(err, ErrTextTooLong) {
		t.Fatalf("expected ErrTextTooLong, got %v", err)
	}
	if len(state.gossips) != 0 {
		t.Fatalf("rejected create must not persist state")
	}
}

func TestRevealSettlesExactlyOnce(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(state)
	creator := addr(0x01)
	buyer := addr(0x02)
	mention := addr(0x7F)
	state.setAccount(buyer, 40_000_000)

	g, err := engine.Create(creator, "hello", &mention)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	revealed, vault, err := engine.Reveal(buyer, g.ID, big.NewInt(15_000_000))
	if err != nil {
		t.Fatalf("reveal: %v", err)
	}
	if !revealed.IsRevealed {
		t.Fatalf("gossip not marked revealed")
	}
	if revealed.TotalCollected.Cmp(big.NewInt(15_000_000)) != 0 {
		t.Fatalf("total collected: got %s", revealed.TotalCollected)
	}
	if vault.Owner != creator {
		t.Fatalf("vault owner mismatch")
	}
	if vault.Amount.Cmp(big.NewInt(15_000_000)) != 0 {
		t.Fatalf("vault amount: got %s", vault.Amount)
	}
	if got := state.balance(buyer); got.Cmp(big.NewInt(25_000_000)) != 0 {
		t.Fatalf("buyer balance after reveal: got %s", got)
	}

	if _, _, err := engine.Reveal(buyer, g.ID, big.NewInt(15_000_000)); !errors.Is(err, ErrAlreadyRevealed) {
		t.Fatalf("expected ErrAlreadyRevealed, got %v", err)
	}
	stored, _, _ := state.GossipGet(g.ID)
	if stored.TotalCollected.Cmp(big.NewInt(15_000_000)) != 0 {
		t.Fatalf("total collected incremented more than once: %s", stored.TotalCollected)
	}
	if got := state.balance(buyer); got.Cmp(big.NewInt(25_000_000)) != 0 {
		t.Fatalf("buyer debited twice: %s", got)
	}
}

func TestRevealRejectsWrongPayment(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(state)
	buyer := addr(0x02)
	state.setAccount(buyer, 100_000_000)

	g, err := engine.Create(addr(0x01), "hi", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := engine.Reveal(buyer, g.ID, big.NewInt(9_999_999)); !errors.Is(err, ErrInvalidPayment) {
		t.Fatalf("underpayment: expected ErrInvalidPayment, got %v", err)
	}
	if _, _, err := engine.Reveal(buyer, g.ID, big.NewInt(10_000_001)); !errors.Is(err, ErrInvalidPayment) {
		t.Fatalf("overpayment: expected ErrInvalidPayment, got %v", err)
	}
	if _, _, err := engine.Reveal(buyer, g.ID, nil); !errors.Is(err, ErrInvalidPayment) {
		t.Fatalf("nil payment: expected ErrInvalidPayment, got %v", err)
	}
}

func TestRevealRejectsUnderfundedBuyer(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(state)
	buyer := addr(0x02)
	state.setAccount(buyer, 1)

	g, err := engine.Create(addr(0x01), "hi", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := engine.Reveal(buyer, g.ID, big.NewInt(10_000_000)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if len(state.vaults) != 0 {
		t.Fatalf("failed reveal must not create a vault")
	}
}

func TestRevealUnknownGossip(t *testing.T) {
	engine := newTestEngine(newMockState())
	var id [32]byte
	if _, _, err := engine.Reveal(addr(0x02), id, big.NewInt(1)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestShareRequiresRevealedOriginal(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(state)
	sharer := addr(0x03)
	buyer := addr(0x02)
	state.setAccount(buyer, 50_000_000)

	g, err := engine.Create(addr(0x01), "hello", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := engine.Share(sharer, g.ID); !errors.Is(err, ErrNotRevealed) {
		t.Fatalf("expected ErrNotRevealed, got %v", err)
	}

	if _, _, err := engine.Reveal(buyer, g.ID, g.Price); err != nil {
		t.Fatalf("reveal: %v", err)
	}
	share, err := engine.Share(sharer, g.ID)
	if err != nil {
		t.Fatalf("share after reveal: %v", err)
	}
	if share.OriginalCreator != g.Creator {
		t.Fatalf("cached creator mismatch")
	}
	if share.SharePrice.Cmp(big.NewInt(8_000_000)) != 0 {
		t.Fatalf("share price: got %s", share.SharePrice)
	}

	if _, err := engine.Share(sharer, g.ID); !errors.Is(err, ErrShareExists) {
		t.Fatalf("expected ErrShareExists, got %v", err)
	}
}

func TestRevealSharedSplitsRevenue(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(state)
	creator := addr(0x01)
	firstBuyer := addr(0x02)
	sharer := addr(0x03)
	secondBuyer := addr(0x04)
	mention := addr(0x7F)
	state.setAccount(firstBuyer, 15_000_000)
	state.setAccount(secondBuyer, 12_000_000)

	g, err := engine.Create(creator, "hello", &mention)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := engine.Reveal(firstBuyer, g.ID, big.NewInt(15_000_000)); err != nil {
		t.Fatalf("reveal: %v", err)
	}
	share, err := engine.Share(sharer, g.ID)
	if err != nil {
		t.Fatalf("share: %v", err)
	}
	if share.SharePrice.Cmp(big.NewInt(12_000_000)) != 0 {
		t.Fatalf("share price: got %s", share.SharePrice)
	}

	settled, creatorVault, sharerVault, err := engine.RevealShared(secondBuyer, share.ID, big.NewInt(12_000_000))
	if err != nil {
		t.Fatalf("reveal shared: %v", err)
	}
	if !settled.IsRevealed {
		t.Fatalf("share not marked revealed")
	}
	if creatorVault.Owner != creator || creatorVault.Amount.Cmp(big.NewInt(7_200_000)) != 0 {
		t.Fatalf("creator vault: owner/amount mismatch, amount %s", creatorVault.Amount)
	}
	if sharerVault.Owner != sharer || sharerVault.Amount.Cmp(big.NewInt(4_800_000)) != 0 {
		t.Fatalf("sharer vault: owner/amount mismatch, amount %s", sharerVault.Amount)
	}
	if got := state.balance(secondBuyer); got.Sign() != 0 {
		t.Fatalf("second buyer balance: got %s", got)
	}

	// The collected amount accrues on both the share and the original.
	original, _, _ := state.GossipGet(g.ID)
	if original.TotalCollected.Cmp(big.NewInt(27_000_000)) != 0 {
		t.Fatalf("original total collected: got %s", original.TotalCollected)
	}
	if settled.TotalCollected.Cmp(big.NewInt(12_000_000)) != 0 {
		t.Fatalf("share total collected: got %s", settled.TotalCollected)
	}

	if _, _, _, err := engine.RevealShared(secondBuyer, share.ID, big.NewInt(12_000_000)); !errors.Is(err, ErrAlreadyRevealed) {
		t.Fatalf("expected ErrAlreadyRevealed, got %v", err)
	}
}

func TestRevealSharedConservation(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(state)
	buyer := addr(0x02)
	sharer := addr(0x03)
	secondBuyer := addr(0x04)
	state.setAccount(buyer, 100_000_000)
	state.setAccount(secondBuyer, 100_000_000)

	// 11 chars: price 12_000_000, share price 9_600_000.
	g, err := engine.Create(addr(0x01), strings.Repeat("a", 11), nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := engine.Reveal(buyer, g.ID, g.Price); err != nil {
		t.Fatalf("reveal: %v", err)
	}
	share, err := engine.Share(sharer, g.ID)
	if err != nil {
		t.Fatalf("share: %v", err)
	}
	before := state.balance(secondBuyer)
	_, creatorVault, sharerVault, err := engine.RevealShared(secondBuyer, share.ID, share.SharePrice)
	if err != nil {
		t.Fatalf("reveal shared: %v", err)
	}
	paid := new(big.Int).Sub(before, state.balance(secondBuyer))
	if paid.Cmp(share.SharePrice) != 0 {
		t.Fatalf("buyer paid %s, want %s", paid, share.SharePrice)
	}
	payout := new(big.Int).Add(creatorVault.Amount, sharerVault.Amount)
	if payout.Cmp(paid) > 0 {
		t.Fatalf("payouts exceed payment: %s > %s", payout, paid)
	}
	residual := new(big.Int).Sub(paid, payout)
	if residual.Cmp(big.NewInt(1)) > 0 {
		t.Fatalf("settlement residual above one unit: %s", residual)
	}
}

func TestWithdrawDrainsExactlyOnce(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(state)
	creator := addr(0x01)
	buyer := addr(0x02)
	destination := addr(0x05)
	intruder := addr(0x06)
	mention := addr(0x7F)
	state.setAccount(buyer, 15_000_000)

	g, err := engine.Create(creator, "hello", &mention)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, vault, err := engine.Reveal(buyer, g.ID, big.NewInt(15_000_000))
	if err != nil {
		t.Fatalf("reveal: %v", err)
	}

	if _, err := engine.Withdraw(intruder, vault.ID, destination); !errors.Is(err, ErrUnauthorizedWithdraw) {
		t.Fatalf("expected ErrUnauthorizedWithdraw, got %v", err)
	}
	if _, ok, _ := state.VaultGet(vault.ID); !ok {
		t.Fatalf("vault destroyed by rejected withdrawal")
	}

	amount, err := engine.Withdraw(creator, vault.ID, destination)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if amount.Cmp(big.NewInt(15_000_000)) != 0 {
		t.Fatalf("withdrawn amount: got %s", amount)
	}
	if got := state.balance(destination); got.Cmp(big.NewInt(15_000_000)) != 0 {
		t.Fatalf("destination balance: got %s", got)
	}

	if _, err := engine.Withdraw(creator, vault.ID, destination); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on drained vault, got %v", err)
	}
}

type captureEmitter struct {
	types []string
}

func (c *captureEmitter) Emit(evt events.Event) {
	c.types = append(c.types, evt.EventType())
}

func TestEngineEmitsSettlementEvents(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(state)
	emitter := &captureEmitter{}
	engine.SetEmitter(emitter)
	buyer := addr(0x02)
	state.setAccount(buyer, 50_000_000)

	g, err := engine.Create(addr(0x01), "hello", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, vault, err := engine.Reveal(buyer, g.ID, g.Price)
	if err != nil {
		t.Fatalf("reveal: %v", err)
	}
	if _, err := engine.Withdraw(addr(0x01), vault.ID, addr(0x05)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	want := []string{EventTypeGossipCreated, EventTypeGossipRevealed, EventTypeVaultWithdrawn}
	if len(emitter.types) != len(want) {
		t.Fatalf("event count: got %v", emitter.types)
	}
	for i := range want {
		if emitter.types[i] != want[i] {
			t.Fatalf("event %d: got %s, want %s", i, emitter.types[i], want[i])
		}
	}
}
