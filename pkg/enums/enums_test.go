package enums

import (
	"testing"
	"time"
)

func TestParseTier(t *testing.T) {
	tier, err := ParseTier("suhu")
	if err != nil || tier != TierSuhu {
		t.Fatalf("expected suhu, got %q err=%v", tier, err)
	}
	if _, err := ParseTier("gold"); err == nil {
		t.Fatal("expected unknown tier to fail")
	}
	if TierRitel.IsPaid() || !TierBandar.IsPaid() {
		t.Fatal("unexpected paid classification")
	}
}

func TestBillingIntervalAddTo(t *testing.T) {
	start := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	if got := BillingIntervalMonthly.AddTo(start); !got.Equal(time.Date(2024, 4, 10, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected monthly period end %v", got)
	}
	if got := BillingIntervalYearly.AddTo(start); !got.Equal(time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected yearly period end %v", got)
	}
}

func TestPaymentOutcomeMutates(t *testing.T) {
	for _, outcome := range []PaymentOutcome{PaymentOutcomePending, PaymentOutcomeChallenged, PaymentOutcomeUnknown} {
		if outcome.Mutates() {
			t.Fatalf("%s should not mutate", outcome)
		}
	}
	if !PaymentOutcomeRefunded.Mutates() {
		t.Fatal("refund should mutate")
	}
}
