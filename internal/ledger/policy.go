package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/ticketpay-backend/pkg/enums"
)

// RefundQuote splits a cancellation into what goes back to the buyer and
// what the seller keeps.
type RefundQuote struct {
	RefundAmount int64
	CancelFee    int64
	Policy       enums.RefundPolicy
}

// QuoteRefund applies the cancellation policy to a charge. A buyer who
// changes their mind forfeits floor(gross * feeRate); every other reason is
// refunded in full.
func QuoteRefund(gross int64, reason enums.CancelReasonType, feeRate decimal.Decimal) RefundQuote {
	if gross <= 0 {
		return RefundQuote{Policy: enums.RefundPolicyFull}
	}
	if reason != enums.CancelReasonBuyerChangedMind || !feeRate.IsPositive() {
		return RefundQuote{RefundAmount: gross, Policy: enums.RefundPolicyFull}
	}
	fee := applyRate(gross, feeRate)
	return RefundQuote{
		RefundAmount: gross - fee,
		CancelFee:    fee,
		Policy:       enums.RefundPolicyPartialWithFee,
	}
}

// ParseRate reads a fractional rate such as "0.10". Rates must fall in [0, 1).
func ParseRate(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse rate %q: %w", raw, err)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("rate %s out of range [0, 1)", rate)
	}
	return rate, nil
}

func applyRate(amount int64, rate decimal.Decimal) int64 {
	if amount <= 0 || !rate.IsPositive() {
		return 0
	}
	return decimal.NewFromInt(amount).Mul(rate).Floor().IntPart()
}
