package entitlements

import (
	"time"

	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/db/models"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/enums"
)

// TransitionKind tags the only ways tier and quotas may change.
type TransitionKind string

const (
	KindUpgrade   TransitionKind = "upgrade"
	KindDowngrade TransitionKind = "downgrade"
	KindPastDue   TransitionKind = "past_due"
)

// Transition is a requested tier change. Build it with Upgrade, Downgrade or PastDue.
type Transition struct {
	Kind     TransitionKind
	Tier     enums.Tier
	Interval enums.BillingInterval
	Status   enums.EntitlementStatus
	// OrderIssuedAt is the issuance time of the triggering order; zero when
	// the change did not come from an order.
	OrderIssuedAt time.Time
}

func Upgrade(tier enums.Tier, interval enums.BillingInterval, issuedAt time.Time) Transition {
	if !interval.IsValid() {
		interval = enums.BillingIntervalMonthly
	}
	return Transition{Kind: KindUpgrade, Tier: tier, Interval: interval, Status: enums.EntitlementStatusActive, OrderIssuedAt: issuedAt}
}

// Downgrade reverts to the free tier with status canceled or expired.
func Downgrade(status enums.EntitlementStatus, issuedAt time.Time) Transition {
	return Transition{Kind: KindDowngrade, Tier: enums.TierRitel, Status: status, OrderIssuedAt: issuedAt}
}

// PastDue is never stored; it lands on ritel/expired in the same write.
func PastDue() Transition {
	return Transition{Kind: KindPastDue, Tier: enums.TierRitel, Status: enums.EntitlementStatusExpired}
}

// State is the full set of columns a transition writes.
type State struct {
	Tier            enums.Tier
	Status          enums.EntitlementStatus
	PeriodEnd       *time.Time
	BillingInterval *enums.BillingInterval
	Quotas          Quotas
	GrantedOrderAt  *time.Time
}

// SkipReason explains why a transition left the record untouched.
type SkipReason string

const (
	SkipNone      SkipReason = ""
	SkipStale     SkipReason = "stale_order"
	SkipUnchanged SkipReason = "already_applied"
)

// StateOf projects the transition-owned columns of a record.
func StateOf(e models.Entitlement) State {
	return State{
		Tier:            e.Tier,
		Status:          e.Status,
		PeriodEnd:       e.PeriodEnd,
		BillingInterval: e.BillingInterval,
		Quotas:          Quotas{Backtest: e.BacktestLimit, AIChat: e.AIChatLimit, Strategy: e.StrategyLimit},
		GrantedOrderAt:  e.GrantedOrderAt,
	}
}

// Next computes the state the transition produces from current. It is pure.
func (t Transition) Next(current models.Entitlement, now time.Time) (State, SkipReason) {
	now = now.UTC()
	switch t.Kind {
	case KindUpgrade:
		return t.nextUpgrade(current, now)
	case KindDowngrade:
		if t.isStale(current) {
			return StateOf(current), SkipStale
		}
		return t.freeState(current), t.unchanged(current)
	default:
		return t.freeState(current), t.unchanged(current)
	}
}

func (t Transition) nextUpgrade(current models.Entitlement, now time.Time) (State, SkipReason) {
	stale := t.isStale(current)
	if stale && current.Tier != t.Tier {
		return StateOf(current), SkipStale
	}

	base := now
	if current.Tier == t.Tier && current.PeriodEnd != nil && current.PeriodEnd.After(now) &&
		current.Status != enums.EntitlementStatusExpired {
		base = current.PeriodEnd.UTC()
	}
	periodEnd := t.Interval.AddTo(base)
	interval := t.Interval

	granted := current.GrantedOrderAt
	if !stale && !t.OrderIssuedAt.IsZero() {
		issued := t.OrderIssuedAt.UTC()
		granted = &issued
	}

	return State{
		Tier:            t.Tier,
		Status:          enums.EntitlementStatusActive,
		PeriodEnd:       &periodEnd,
		BillingInterval: &interval,
		Quotas:          QuotasFor(t.Tier),
		GrantedOrderAt:  granted,
	}, SkipNone
}

func (t Transition) freeState(current models.Entitlement) State {
	granted := current.GrantedOrderAt
	if !t.OrderIssuedAt.IsZero() {
		issued := t.OrderIssuedAt.UTC()
		granted = &issued
	}
	return State{
		Tier:           enums.TierRitel,
		Status:         t.Status,
		Quotas:         QuotasFor(enums.TierRitel),
		GrantedOrderAt: granted,
	}
}

func (t Transition) unchanged(current models.Entitlement) SkipReason {
	if current.Tier == enums.TierRitel && current.Status == t.Status && current.PeriodEnd == nil &&
		StateOf(current).Quotas == QuotasFor(enums.TierRitel) {
		return SkipUnchanged
	}
	return SkipNone
}

// isStale reports whether a newer order already shaped this record.
func (t Transition) isStale(current models.Entitlement) bool {
	if t.OrderIssuedAt.IsZero() || current.GrantedOrderAt == nil {
		return false
	}
	return current.GrantedOrderAt.After(t.OrderIssuedAt)
}
