package gossip

import "math/big"

// Pricing constants, in the smallest native currency unit.
const (
	basePrice     uint64 = 10_000_000
	mentionBonus  uint64 = 5_000_000
	charTierPrice uint64 = 2_000_000
	charsPerTier         = 10
)

// Price computes the reveal price of a gossip from its text length and
// whether another party is mentioned. The price is fixed at creation time
// and never recomputed.
//
// Text length tiers are 0-based: 1-10 bytes cost nothing extra, 11-20 add
// one tier. Callers must validate len(text) <= MaxTextLen beforehand; the
// function itself is total.
func Price(text string, hasMention bool) *big.Int {
	price := basePrice
	if hasMention {
		price += mentionBonus
	}
	if n := len(text); n > charsPerTier {
		tier := uint64(n-1) / charsPerTier
		price += tier * charTierPrice
	}
	return new(big.Int).SetUint64(price)
}
