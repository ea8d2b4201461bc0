package entitlements

import "github.com/faisalrasbihan/algosaham-4-sub001/pkg/enums"

// Unlimited marks a limit that is never enforced.
const Unlimited = -1

// Quotas are the per-tier limits. Backtest and AIChat are daily; Strategy is a standing cap.
type Quotas struct {
	Backtest int `json:"backtest"`
	AIChat   int `json:"aiChat"`
	Strategy int `json:"strategy"`
}

var quotaTable = map[enums.Tier]Quotas{
	enums.TierRitel:  {Backtest: 3, AIChat: 5, Strategy: 1},
	enums.TierSuhu:   {Backtest: 30, AIChat: 50, Strategy: 10},
	enums.TierBandar: {Backtest: Unlimited, AIChat: Unlimited, Strategy: Unlimited},
}

// QuotasFor returns the fixed limits for tier. Unknown tiers get free limits.
func QuotasFor(tier enums.Tier) Quotas {
	if q, ok := quotaTable[tier]; ok {
		return q
	}
	return quotaTable[enums.TierRitel]
}

// LimitFor returns the daily limit for a metered feature.
func (q Quotas) LimitFor(feature enums.Feature) int {
	switch feature {
	case enums.FeatureBacktest:
		return q.Backtest
	case enums.FeatureAIChat:
		return q.AIChat
	default:
		return 0
	}
}

func allows(limit, used int) bool {
	return limit == Unlimited || used < limit
}
