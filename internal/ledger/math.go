package ledger

import (
	"math/bits"

	"github.com/holiman/uint256"

	"chainproof-ledger/internal/domain"
)

func checkedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrArithmeticOverflow.withDetail("%d + %d", a, b)
	}
	return sum, nil
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// bpsShare returns floor(amount * bps / 10000). The product is formed in
// 256 bits so it cannot wrap before the division.
func bpsShare(amount uint64, bps uint16) (uint64, error) {
	v := new(uint256.Int).Mul(uint256.NewInt(amount), uint256.NewInt(uint64(bps)))
	v.Div(v, uint256.NewInt(domain.BpsDenominator))
	if !v.IsUint64() {
		return 0, ErrArithmeticOverflow.withDetail("share of %d at %d bps", amount, bps)
	}
	return v.Uint64(), nil
}

// Split is a computed reward distribution.
type Split struct {
	DeveloperShare uint64 `json:"developerShare"`
	UserShare      uint64 `json:"userShare"`
}

// Total returns the sum of both shares.
func (s Split) Total() (uint64, error) {
	return checkedAdd(s.DeveloperShare, s.UserShare)
}

// ComputeSplit divides balance by the pool's basis points.
func ComputeSplit(balance uint64, developerBps, userBps uint16) (Split, error) {
	dev, err := bpsShare(balance, developerBps)
	if err != nil {
		return Split{}, err
	}
	user, err := bpsShare(balance, userBps)
	if err != nil {
		return Split{}, err
	}
	return Split{DeveloperShare: dev, UserShare: user}, nil
}
