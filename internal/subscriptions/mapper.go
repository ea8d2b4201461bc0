package subscriptions

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/enums"
	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/midtrans"
)

const (
	unitMonth     = "month"
	monthsPerYear = 12
)

// ScheduleFor builds the charge schedule for a plan. The first charge is the
// payment that already settled, so the schedule starts one interval after now.
// The gateway has no yearly unit; annual plans run every twelve months.
func ScheduleFor(interval enums.BillingInterval, monthlyMax, annualMax int, now time.Time, loc *time.Location) midtrans.Schedule {
	if loc == nil {
		loc = time.UTC
	}
	schedule := midtrans.Schedule{
		Interval:     1,
		IntervalUnit: unitMonth,
		MaxInterval:  monthlyMax,
	}
	if interval == enums.BillingIntervalYearly {
		schedule.Interval = monthsPerYear
		schedule.MaxInterval = annualMax
	}
	schedule.StartTime = interval.AddTo(now).In(loc).Format(midtrans.StartTimeLayout)
	return schedule
}

// SubscriptionName is the label shown on the customer's statement.
func SubscriptionName(tier enums.Tier, interval enums.BillingInterval) string {
	return fmt.Sprintf("algosaham-%s-%s", tier, interval)
}

// WholeAmount rounds amount to whole currency units; rupiah has no minor unit.
func WholeAmount(amount decimal.Decimal) int64 {
	return amount.Round(0).IntPart()
}

// mapGatewayStatus converts a gateway subscription status into the stored enum.
func mapGatewayStatus(raw string) (enums.SubscriptionStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "active":
		return enums.SubscriptionStatusActive, nil
	case "inactive":
		return enums.SubscriptionStatusInactive, nil
	case "disabled", "disable":
		return enums.SubscriptionStatusDisabled, nil
	default:
		return "", fmt.Errorf("unknown subscription status %q", raw)
	}
}
