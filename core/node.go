package core

import (
	"math/big"
	"sync"

	"gossipchain/core/events"
	"gossipchain/core/state"
	"gossipchain/core/types"
	"gossipchain/native/gossip"
	"gossipchain/storage"
)

// stagedEmitter buffers engine events until the surrounding operation
// commits, so a failed operation leaves no trace in the event log either.
type stagedEmitter struct {
	pending []events.Event
}

func (s *stagedEmitter) Emit(evt events.Event) {
	s.pending = append(s.pending, evt)
}

// Node owns the database, the state manager and the settlement engine, and
// serializes every mutating operation. Each operation runs against the
// state overlay and is committed through one atomic write batch on success
// or discarded wholesale on failure; this is what makes check-then-set on
// is_revealed safe and multi-party settlement all-or-nothing.
type Node struct {
	mu       sync.Mutex
	db       storage.Database
	state    *state.Manager
	engine   *gossip.Engine
	staged   *stagedEmitter
	recorder *events.Recorder
}

// NewNode wires a node on top of the provided database.
func NewNode(db storage.Database) *Node {
	manager := state.NewManager(db)
	engine := gossip.NewEngine()
	engine.SetState(manager)
	staged := &stagedEmitter{}
	engine.SetEmitter(staged)
	return &Node{
		db:       db,
		state:    manager,
		engine:   engine,
		staged:   staged,
		recorder: events.NewRecorder(256),
	}
}

func (n *Node) run(op func() error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := op(); err != nil {
		n.state.Reset()
		n.staged.pending = nil
		return err
	}
	if err := n.state.Commit(); err != nil {
		n.state.Reset()
		n.staged.pending = nil
		return err
	}
	for _, evt := range n.staged.pending {
		n.recorder.Emit(evt)
	}
	n.staged.pending = nil
	return nil
}

// GossipCreate posts a new gossip for the caller.
func (n *Node) GossipCreate(creator [20]byte, text string, mention *[20]byte) (*gossip.Gossip, error) {
	var out *gossip.Gossip
	err := n.run(func() error {
		var err error
		out, err = n.engine.Create(creator, text, mention)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GossipReveal settles a direct purchase by the caller.
func (n *Node) GossipReveal(buyer [20]byte, id [32]byte, payment *big.Int) (*gossip.Gossip, *gossip.Vault, error) {
	var (
		item  *gossip.Gossip
		vault *gossip.Vault
	)
	err := n.run(func() error {
		var err error
		item, vault, err = n.engine.Reveal(buyer, id, payment)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return item, vault, nil
}

// GossipShare creates a re-share of a revealed gossip for the caller.
func (n *Node) GossipShare(sharer [20]byte, originalID [32]byte) (*gossip.SharedGossip, error) {
	var out *gossip.SharedGossip
	err := n.run(func() error {
		var err error
		out, err = n.engine.Share(sharer, originalID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GossipRevealShared settles a shared purchase by the caller.
func (n *Node) GossipRevealShared(buyer [20]byte, shareID [32]byte, payment *big.Int) (*gossip.SharedGossip, *gossip.Vault, *gossip.Vault, error) {
	var (
		share        *gossip.SharedGossip
		creatorVault *gossip.Vault
		sharerVault  *gossip.Vault
	)
	err := n.run(func() error {
		var err error
		share, creatorVault, sharerVault, err = n.engine.RevealShared(buyer, shareID, payment)
		return err
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return share, creatorVault, sharerVault, nil
}

// GossipWithdraw drains a vault owned by the caller to the destination.
func (n *Node) GossipWithdraw(caller [20]byte, vaultID [32]byte, destination [20]byte) (*big.Int, error) {
	var amount *big.Int
	err := n.run(func() error {
		var err error
		amount, err = n.engine.Withdraw(caller, vaultID, destination)
		return err
	})
	if err != nil {
		return nil, err
	}
	return amount, nil
}

// GossipGet returns the stored gossip.
func (n *Node) GossipGet(id [32]byte) (*gossip.Gossip, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.GetGossip(id)
}

// GossipGetShared returns the stored shared gossip.
func (n *Node) GossipGetShared(id [32]byte) (*gossip.SharedGossip, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.GetShared(id)
}

// GossipVault returns the stored vault.
func (n *Node) GossipVault(id [32]byte) (*gossip.Vault, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.GetVault(id)
}

// Balance returns the spendable balance for an address.
func (n *Node) Balance(addr [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	acc, err := n.state.GetAccount(addr[:])
	if err != nil {
		return nil, err
	}
	if acc == nil || acc.Balance == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(acc.Balance), nil
}

// Events returns the recently recorded settlement events.
func (n *Node) Events() []*types.Event {
	out := []*types.Event{}
	for _, evt := range n.recorder.Events() {
		if carrier, ok := evt.(interface{ Event() *types.Event }); ok {
			out = append(out, carrier.Event())
		}
	}
	return out
}
