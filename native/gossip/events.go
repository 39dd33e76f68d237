package gossip

import (
	"encoding/hex"
	"math/big"

	"gossipchain/core/events"
	"gossipchain/core/types"
)

const (
	// EventTypeGossipCreated is emitted when a creator posts new gossip.
	EventTypeGossipCreated = "gossip.created"
	// EventTypeGossipRevealed is emitted when a buyer reveals a gossip.
	EventTypeGossipRevealed = "gossip.revealed"
	// EventTypeGossipShared is emitted when a revealed gossip is re-shared.
	EventTypeGossipShared = "gossip.shared"
	// EventTypeShareRevealed is emitted when a shared gossip settles.
	EventTypeShareRevealed = "gossip.share.revealed"
	// EventTypeVaultWithdrawn is emitted when a vault is drained and closed.
	EventTypeVaultWithdrawn = "gossip.vault.withdrawn"
)

type eventEnvelope struct {
	evt *types.Event
}

func (e eventEnvelope) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e eventEnvelope) Event() *types.Event { return e.evt }

// WrapEvent converts a raw event payload into the emitter-friendly envelope.
func WrapEvent(evt *types.Event) events.Event { return eventEnvelope{evt: evt} }

func hexID(id [32]byte) string {
	return "0x" + hex.EncodeToString(id[:])
}

func hexAddr(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// NewCreatedEvent returns the structured payload for a gossip creation.
func NewCreatedEvent(g *Gossip) *types.Event {
	return &types.Event{
		Type: EventTypeGossipCreated,
		Attributes: map[string]string{
			"id":      hexID(g.ID),
			"creator": hexAddr(g.Creator),
			"price":   amountString(g.Price),
		},
	}
}

// NewRevealedEvent returns the structured payload for a direct reveal
// settlement.
func NewRevealedEvent(g *Gossip, buyer [20]byte, vault *Vault) *types.Event {
	return &types.Event{
		Type: EventTypeGossipRevealed,
		Attributes: map[string]string{
			"id":     hexID(g.ID),
			"buyer":  hexAddr(buyer),
			"vault":  hexID(vault.ID),
			"amount": amountString(vault.Amount),
		},
	}
}

// NewSharedEvent returns the structured payload for a share creation.
func NewSharedEvent(s *SharedGossip) *types.Event {
	return &types.Event{
		Type: EventTypeGossipShared,
		Attributes: map[string]string{
			"id":         hexID(s.ID),
			"original":   hexID(s.OriginalID),
			"sharer":     hexAddr(s.Sharer),
			"sharePrice": amountString(s.SharePrice),
		},
	}
}

// NewShareRevealedEvent returns the structured payload for a shared reveal
// settlement with its two payout legs.
func NewShareRevealedEvent(s *SharedGossip, buyer [20]byte, creatorVault, sharerVault *Vault) *types.Event {
	return &types.Event{
		Type: EventTypeShareRevealed,
		Attributes: map[string]string{
			"id":            hexID(s.ID),
			"buyer":         hexAddr(buyer),
			"creatorVault":  hexID(creatorVault.ID),
			"creatorAmount": amountString(creatorVault.Amount),
			"sharerVault":   hexID(sharerVault.ID),
			"sharerAmount":  amountString(sharerVault.Amount),
		},
	}
}

// NewWithdrawnEvent returns the structured payload for a vault withdrawal.
func NewWithdrawnEvent(vaultID [32]byte, owner, destination [20]byte, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeVaultWithdrawn,
		Attributes: map[string]string{
			"vault":       hexID(vaultID),
			"owner":       hexAddr(owner),
			"destination": hexAddr(destination),
			"amount":      amountString(amount),
		},
	}
}
