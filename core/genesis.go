package core

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"

	"gossipchain/core/types"
	"gossipchain/crypto"
)

// Genesis describes the initial balance allocations applied on first start.
// Addresses are bech32 strings, balances decimal strings in the smallest
// native currency unit.
type Genesis struct {
	Alloc map[string]string `json:"alloc"`
}

// LoadGenesis reads and parses a genesis file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis file: %w", err)
	}
	gen := &Genesis{}
	if err := json.Unmarshal(data, gen); err != nil {
		return nil, fmt.Errorf("parse genesis file: %w", err)
	}
	return gen, nil
}

// ApplyGenesis writes the allocations once. Subsequent calls are no-ops, so
// a restart never re-mints balances.
func (n *Node) ApplyGenesis(gen *Genesis) error {
	if gen == nil {
		return nil
	}
	return n.run(func() error {
		applied, err := n.state.GenesisApplied()
		if err != nil {
			return err
		}
		if applied {
			return nil
		}
		for addrStr, balanceStr := range gen.Alloc {
			addr, err := crypto.DecodeAddress(addrStr)
			if err != nil {
				return fmt.Errorf("genesis alloc %q: %w", addrStr, err)
			}
			balance, ok := new(big.Int).SetString(balanceStr, 10)
			if !ok || balance.Sign() < 0 {
				return fmt.Errorf("genesis alloc %q: invalid balance %q", addrStr, balanceStr)
			}
			if err := n.state.PutAccount(addr.Bytes(), &types.Account{Balance: balance}); err != nil {
				return err
			}
		}
		n.state.MarkGenesisApplied()
		return nil
	})
}
