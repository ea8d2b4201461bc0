package billing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/enums"
)

// Price is what one plan costs per billing interval, in whole rupiah.
type Price struct {
	Monthly decimal.Decimal
	Yearly  decimal.Decimal
}

// PriceTable maps paid tiers to their list prices.
type PriceTable map[enums.Tier]Price

// DefaultPrices is the published price list. Yearly is twelve months at a 20% discount.
func DefaultPrices() PriceTable {
	return PriceTable{
		enums.TierSuhu: {
			Monthly: decimal.NewFromInt(89500),
			Yearly:  decimal.NewFromInt(859200),
		},
		enums.TierBandar: {
			Monthly: decimal.NewFromInt(189500),
			Yearly:  decimal.NewFromInt(1819200),
		},
	}
}

// PricesWithOverrides applies "<tier>_<interval>" => amount overrides on top of
// the default table.
func PricesWithOverrides(overrides map[string]string) (PriceTable, error) {
	table := DefaultPrices()
	for key, raw := range overrides {
		tierPart, intervalPart, ok := strings.Cut(strings.ToLower(strings.TrimSpace(key)), "_")
		if !ok {
			return nil, fmt.Errorf("price override %q must look like <tier>_<interval>", key)
		}
		tier, err := enums.ParseTier(tierPart)
		if err != nil || !tier.IsPaid() {
			return nil, fmt.Errorf("price override %q: unknown paid tier", key)
		}
		interval, err := enums.ParseBillingInterval(intervalPart)
		if err != nil {
			return nil, fmt.Errorf("price override %q: %w", key, err)
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil || !amount.IsPositive() {
			return nil, fmt.Errorf("price override %q: invalid amount %q", key, raw)
		}

		price := table[tier]
		if interval == enums.BillingIntervalYearly {
			price.Yearly = amount
		} else {
			price.Monthly = amount
		}
		table[tier] = price
	}
	return table, nil
}

// Amount returns the list price of tier for interval.
func (p PriceTable) Amount(tier enums.Tier, interval enums.BillingInterval) (decimal.Decimal, bool) {
	price, ok := p[tier]
	if !ok {
		return decimal.Zero, false
	}
	if interval == enums.BillingIntervalYearly {
		return price.Yearly, true
	}
	return price.Monthly, true
}

// InferInterval guesses the billing interval of a legacy order from what was paid.
// The second return is false when the amount matches neither list price.
func (p PriceTable) InferInterval(tier enums.Tier, gross decimal.Decimal) (enums.BillingInterval, bool) {
	price, ok := p[tier]
	if !ok {
		return enums.BillingIntervalMonthly, false
	}
	switch {
	case gross.Equal(price.Yearly):
		return enums.BillingIntervalYearly, true
	case gross.Equal(price.Monthly):
		return enums.BillingIntervalMonthly, true
	default:
		return enums.BillingIntervalMonthly, false
	}
}
