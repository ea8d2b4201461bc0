package subscriptions

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/enums"
)

func TestScheduleForMonthly(t *testing.T) {
	now := time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)
	jakarta := time.FixedZone("WIB", 7*3600)

	got := ScheduleFor(enums.BillingIntervalMonthly, 12, 5, now, jakarta)
	if got.Interval != 1 || got.IntervalUnit != "month" || got.MaxInterval != 12 {
		t.Fatalf("unexpected monthly schedule %+v", got)
	}
	if got.StartTime != "2026-04-10 09:00:00 +0700" {
		t.Fatalf("unexpected start time %q", got.StartTime)
	}
}

func TestScheduleForAnnual(t *testing.T) {
	now := time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)

	got := ScheduleFor(enums.BillingIntervalYearly, 12, 5, now, nil)
	if got.Interval != 12 || got.IntervalUnit != "month" || got.MaxInterval != 5 {
		t.Fatalf("unexpected annual schedule %+v", got)
	}
	if got.StartTime != "2027-03-10 02:00:00 +0000" {
		t.Fatalf("unexpected start time %q", got.StartTime)
	}
}

func TestWholeAmount(t *testing.T) {
	if got := WholeAmount(decimal.RequireFromString("89500.00")); got != 89500 {
		t.Fatalf("expected 89500, got %d", got)
	}
	if got := WholeAmount(decimal.RequireFromString("151599.50")); got != 151600 {
		t.Fatalf("expected 151600, got %d", got)
	}
}

func TestMapGatewayStatus(t *testing.T) {
	cases := map[string]enums.SubscriptionStatus{
		"active":   enums.SubscriptionStatusActive,
		"INACTIVE": enums.SubscriptionStatusInactive,
		"disabled": enums.SubscriptionStatusDisabled,
	}
	for raw, want := range cases {
		got, err := mapGatewayStatus(raw)
		if err != nil || got != want {
			t.Fatalf("%s: got (%s,%v) want %s", raw, got, err, want)
		}
	}
	if _, err := mapGatewayStatus("paused"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}
