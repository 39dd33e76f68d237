package gossip

import "math/big"

// Revenue split percentages between the original creator and the sharer.
const (
	creatorSharePct int64 = 60
	sharerSharePct  int64 = 40
	sharePricePct   int64 = 80
)

var oneHundred = big.NewInt(100)

// SplitRevenue divides a settlement total between the original creator and
// the sharer. Both legs truncate toward zero, so they may sum to one unit
// less than the total; that residual is accepted policy and is neither
// tracked nor refunded.
func SplitRevenue(total *big.Int) (creatorAmount, sharerAmount *big.Int) {
	t := cloneBigInt(total)
	creatorAmount = new(big.Int).Mul(t, big.NewInt(creatorSharePct))
	creatorAmount.Div(creatorAmount, oneHundred)
	sharerAmount = new(big.Int).Mul(t, big.NewInt(sharerSharePct))
	sharerAmount.Div(sharerAmount, oneHundred)
	return creatorAmount, sharerAmount
}

// SharePrice returns the discounted re-sale price of a share: 80% of the
// original price, truncated, fixed at share-creation time.
func SharePrice(originalPrice *big.Int) *big.Int {
	price := new(big.Int).Mul(cloneBigInt(originalPrice), big.NewInt(sharePricePct))
	return price.Div(price, oneHundred)
}
