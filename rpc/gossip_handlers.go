package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"gossipchain/core/types"
	"gossipchain/crypto"
	"gossipchain/native/gossip"
)

type createGossipParams struct {
	Creator string `json:"creator"`
	Text    string `json:"text"`
	Mention string `json:"mention,omitempty"`
}

type revealGossipParams struct {
	Buyer   string `json:"buyer"`
	ID      string `json:"id"`
	Payment string `json:"payment"`
}

type shareGossipParams struct {
	Sharer     string `json:"sharer"`
	OriginalID string `json:"originalId"`
}

type revealSharedParams struct {
	Buyer   string `json:"buyer"`
	ShareID string `json:"shareId"`
	Payment string `json:"payment"`
}

type withdrawParams struct {
	Caller      string `json:"caller"`
	VaultID     string `json:"vaultId"`
	Destination string `json:"destination"`
}

type idParams struct {
	ID string `json:"id"`
}

type addressParams struct {
	Address string `json:"address"`
}

type gossipResult struct {
	ID             string `json:"id"`
	Creator        string `json:"creator"`
	Text           string `json:"text,omitempty"`
	Mention        string `json:"mention,omitempty"`
	IsRevealed     bool   `json:"isRevealed"`
	Index          uint64 `json:"index"`
	Price          string `json:"price"`
	TotalCollected string `json:"totalCollected"`
	CreatedAt      int64  `json:"createdAt"`
}

type sharedGossipResult struct {
	ID              string `json:"id"`
	OriginalID      string `json:"originalId"`
	Sharer          string `json:"sharer"`
	OriginalCreator string `json:"originalCreator"`
	SharePrice      string `json:"sharePrice"`
	IsRevealed      bool   `json:"isRevealed"`
	TotalCollected  string `json:"totalCollected"`
	CreatedAt       int64  `json:"createdAt"`
}

type vaultResult struct {
	ID        string `json:"id"`
	Owner     string `json:"owner"`
	Amount    string `json:"amount"`
	CreatedAt int64  `json:"createdAt"`
}

type revealResult struct {
	Gossip *gossipResult `json:"gossip"`
	Vault  *vaultResult  `json:"vault"`
}

type revealSharedResult struct {
	Shared       *sharedGossipResult `json:"shared"`
	CreatorVault *vaultResult        `json:"creatorVault"`
	SharerVault  *vaultResult        `json:"sharerVault"`
}

type withdrawResult struct {
	Amount      string `json:"amount"`
	Destination string `json:"destination"`
}

type balanceResult struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

func (s *Server) handleGossipCreate(req *RPCRequest) (interface{}, *RPCError) {
	var params createGossipParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	creator, rpcErr := decodeBech32(params.Creator, "creator")
	if rpcErr != nil {
		return nil, rpcErr
	}
	var mention *[20]byte
	if strings.TrimSpace(params.Mention) != "" {
		addr, rpcErr := decodeBech32(params.Mention, "mention")
		if rpcErr != nil {
			return nil, rpcErr
		}
		mention = &addr
	}
	item, err := s.node.GossipCreate(creator, params.Text, mention)
	if err != nil {
		return nil, settlementError(err)
	}
	return formatGossip(item), nil
}

func (s *Server) handleGossipReveal(req *RPCRequest) (interface{}, *RPCError) {
	var params revealGossipParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	buyer, rpcErr := decodeBech32(params.Buyer, "buyer")
	if rpcErr != nil {
		return nil, rpcErr
	}
	id, rpcErr := decodeID(params.ID, "id")
	if rpcErr != nil {
		return nil, rpcErr
	}
	payment, rpcErr := parseAmount(params.Payment, "payment")
	if rpcErr != nil {
		return nil, rpcErr
	}
	item, vault, err := s.node.GossipReveal(buyer, id, payment)
	if err != nil {
		return nil, settlementError(err)
	}
	return &revealResult{Gossip: formatGossip(item), Vault: formatVault(vault)}, nil
}

func (s *Server) handleGossipShare(req *RPCRequest) (interface{}, *RPCError) {
	var params shareGossipParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	sharer, rpcErr := decodeBech32(params.Sharer, "sharer")
	if rpcErr != nil {
		return nil, rpcErr
	}
	originalID, rpcErr := decodeID(params.OriginalID, "originalId")
	if rpcErr != nil {
		return nil, rpcErr
	}
	share, err := s.node.GossipShare(sharer, originalID)
	if err != nil {
		return nil, settlementError(err)
	}
	return formatShared(share), nil
}

func (s *Server) handleGossipRevealShared(req *RPCRequest) (interface{}, *RPCError) {
	var params revealSharedParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	buyer, rpcErr := decodeBech32(params.Buyer, "buyer")
	if rpcErr != nil {
		return nil, rpcErr
	}
	shareID, rpcErr := decodeID(params.ShareID, "shareId")
	if rpcErr != nil {
		return nil, rpcErr
	}
	payment, rpcErr := parseAmount(params.Payment, "payment")
	if rpcErr != nil {
		return nil, rpcErr
	}
	share, creatorVault, sharerVault, err := s.node.GossipRevealShared(buyer, shareID, payment)
	if err != nil {
		return nil, settlementError(err)
	}
	return &revealSharedResult{
		Shared:       formatShared(share),
		CreatorVault: formatVault(creatorVault),
		SharerVault:  formatVault(sharerVault),
	}, nil
}

func (s *Server) handleGossipWithdraw(req *RPCRequest) (interface{}, *RPCError) {
	var params withdrawParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	caller, rpcErr := decodeBech32(params.Caller, "caller")
	if rpcErr != nil {
		return nil, rpcErr
	}
	vaultID, rpcErr := decodeID(params.VaultID, "vaultId")
	if rpcErr != nil {
		return nil, rpcErr
	}
	destination, rpcErr := decodeBech32(params.Destination, "destination")
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, err := s.node.GossipWithdraw(caller, vaultID, destination)
	if err != nil {
		return nil, settlementError(err)
	}
	return &withdrawResult{
		Amount:      amount.String(),
		Destination: formatAddress(destination),
	}, nil
}

func (s *Server) handleGossipGet(req *RPCRequest) (interface{}, *RPCError) {
	var params idParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	id, rpcErr := decodeID(params.ID, "id")
	if rpcErr != nil {
		return nil, rpcErr
	}
	item, err := s.node.GossipGet(id)
	if err != nil {
		return nil, settlementError(err)
	}
	return formatGossip(item), nil
}

func (s *Server) handleGossipGetShared(req *RPCRequest) (interface{}, *RPCError) {
	var params idParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	id, rpcErr := decodeID(params.ID, "id")
	if rpcErr != nil {
		return nil, rpcErr
	}
	share, err := s.node.GossipGetShared(id)
	if err != nil {
		return nil, settlementError(err)
	}
	return formatShared(share), nil
}

func (s *Server) handleGossipVault(req *RPCRequest) (interface{}, *RPCError) {
	var params idParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	id, rpcErr := decodeID(params.ID, "id")
	if rpcErr != nil {
		return nil, rpcErr
	}
	vault, err := s.node.GossipVault(id)
	if err != nil {
		return nil, settlementError(err)
	}
	return formatVault(vault), nil
}

func (s *Server) handleGossipBalance(req *RPCRequest) (interface{}, *RPCError) {
	var params addressParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	addr, rpcErr := decodeBech32(params.Address, "address")
	if rpcErr != nil {
		return nil, rpcErr
	}
	balance, err := s.node.Balance(addr)
	if err != nil {
		return nil, settlementError(err)
	}
	return &balanceResult{Address: formatAddress(addr), Balance: balance.String()}, nil
}

func (s *Server) handleGossipEvents(req *RPCRequest) (interface{}, *RPCError) {
	if len(req.Params) != 0 {
		return nil, &RPCError{Code: codeInvalidParams, Message: "gossip_events takes no parameters"}
	}
	evts := s.node.Events()
	out := make([]*types.Event, 0, len(evts))
	out = append(out, evts...)
	return out, nil
}

// --- helpers ---

func decodeParams(req *RPCRequest, dst interface{}) *RPCError {
	if len(req.Params) != 1 {
		return &RPCError{Code: codeInvalidParams, Message: "expected a single params object"}
	}
	if err := json.Unmarshal(req.Params[0], dst); err != nil {
		return &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
	}
	return nil
}

func decodeBech32(value, field string) ([20]byte, *RPCError) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return [20]byte{}, &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid %s address: %v", field, err)}
	}
	var out [20]byte
	copy(out[:], addr.Bytes())
	return out, nil
}

func decodeID(value, field string) ([32]byte, *RPCError) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil || len(raw) != 32 {
		return [32]byte{}, &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid %s: expected 32 hex-encoded bytes", field)}
	}
	var out [32]byte
	copy(out[:], raw)
	return out, nil
}

func parseAmount(value, field string) (*big.Int, *RPCError) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok || amount.Sign() < 0 {
		return nil, &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid %s: expected a non-negative decimal string", field)}
	}
	return amount, nil
}

func formatAddress(addr [20]byte) string {
	return crypto.MustNewAddress(crypto.GossipPrefix, addr[:]).String()
}

func formatID(id [32]byte) string {
	return "0x" + hex.EncodeToString(id[:])
}

// formatGossip renders a gossip for clients. The text stays hidden until the
// gossip has been revealed; that is the whole point of the marketplace.
func formatGossip(item *gossip.Gossip) *gossipResult {
	out := &gossipResult{
		ID:             formatID(item.ID),
		Creator:        formatAddress(item.Creator),
		IsRevealed:     item.IsRevealed,
		Index:          item.Index,
		Price:          item.Price.String(),
		TotalCollected: item.TotalCollected.String(),
		CreatedAt:      item.CreatedAt,
	}
	if item.IsRevealed {
		out.Text = item.Text
		if item.HasMention {
			out.Mention = formatAddress(item.Mention)
		}
	}
	return out
}

func formatShared(share *gossip.SharedGossip) *sharedGossipResult {
	return &sharedGossipResult{
		ID:              formatID(share.ID),
		OriginalID:      formatID(share.OriginalID),
		Sharer:          formatAddress(share.Sharer),
		OriginalCreator: formatAddress(share.OriginalCreator),
		SharePrice:      share.SharePrice.String(),
		IsRevealed:      share.IsRevealed,
		TotalCollected:  share.TotalCollected.String(),
		CreatedAt:       share.CreatedAt,
	}
}

func formatVault(vault *gossip.Vault) *vaultResult {
	return &vaultResult{
		ID:        formatID(vault.ID),
		Owner:     formatAddress(vault.Owner),
		Amount:    vault.Amount.String(),
		CreatedAt: vault.CreatedAt,
	}
}

// settlementError translates engine errors into JSON-RPC error objects.
func settlementError(err error) *RPCError {
	switch {
	case errors.Is(err, gossip.ErrNotFound):
		return &RPCError{Code: codeNotFound, Message: err.Error()}
	case errors.Is(err, gossip.ErrAlreadyRevealed):
		return &RPCError{Code: codeAlreadyRevealed, Message: err.Error()}
	case errors.Is(err, gossip.ErrNotRevealed):
		return &RPCError{Code: codeNotRevealed, Message: err.Error()}
	case errors.Is(err, gossip.ErrShareExists):
		return &RPCError{Code: codeShareExists, Message: err.Error()}
	case errors.Is(err, gossip.ErrInvalidPayment), errors.Is(err, gossip.ErrInsufficientFunds):
		return &RPCError{Code: codePaymentRequired, Message: err.Error()}
	case errors.Is(err, gossip.ErrTextTooLong):
		return &RPCError{Code: codeInvalidParams, Message: err.Error()}
	case errors.Is(err, gossip.ErrUnauthorizedWithdraw):
		return &RPCError{Code: codeUnauthorized, Message: err.Error()}
	default:
		return &RPCError{Code: codeServerError, Message: err.Error()}
	}
}
