package midtrans

import "testing"

const testServerKey = "SB-Mid-server-abc123"

func signedNotification() Notification {
	n := Notification{
		OrderID:           "AS-S-u1234567-1700000000000",
		TransactionStatus: "settlement",
		StatusCode:        "200",
		GrossAmount:       "89500.00",
	}
	n.SignatureKey = SignatureKey(n.OrderID, n.StatusCode, n.GrossAmount, testServerKey)
	return n
}

func TestVerifySignatureAcceptsValidNotification(t *testing.T) {
	if !VerifySignature(signedNotification(), testServerKey) {
		t.Fatal("expected valid signature to verify")
	}
}

func TestSignatureKeyIsLowerHexSHA512(t *testing.T) {
	got := SignatureKey("a", "b", "c", "d")
	if len(got) != 128 {
		t.Fatalf("expected 128 hex chars, got %d", len(got))
	}
	// sha512("abcd")
	const want = "d8022f2060ad6efd297ab73dcc5355c9b214054b0d1776a136a669d26a7d3b14f73aa0d0ebff19ee333368f0164b6419a96da49e3e481753e7e96b716bdccb6f"
	if got != want {
		t.Fatalf("unexpected digest %s", got)
	}
}

func TestVerifySignatureRejectsSingleBitFlips(t *testing.T) {
	base := signedNotification()
	flip := func(s string, i int) string {
		b := []byte(s)
		b[i] ^= 0x01
		return string(b)
	}

	for i := range base.OrderID {
		n := base
		n.OrderID = flip(n.OrderID, i)
		if VerifySignature(n, testServerKey) {
			t.Fatalf("order id flip at %d accepted", i)
		}
	}
	for i := range base.StatusCode {
		n := base
		n.StatusCode = flip(n.StatusCode, i)
		if VerifySignature(n, testServerKey) {
			t.Fatalf("status code flip at %d accepted", i)
		}
	}
	for i := range base.GrossAmount {
		n := base
		n.GrossAmount = flip(n.GrossAmount, i)
		if VerifySignature(n, testServerKey) {
			t.Fatalf("gross amount flip at %d accepted", i)
		}
	}
	for i := range base.SignatureKey {
		n := base
		n.SignatureKey = flip(n.SignatureKey, i)
		if VerifySignature(n, testServerKey) {
			t.Fatalf("signature flip at %d accepted", i)
		}
	}
}

func TestVerifySignatureRejectsCaseChangeAndEmptyInputs(t *testing.T) {
	n := signedNotification()
	upper := []byte(n.SignatureKey)
	for i, c := range upper {
		if c >= 'a' && c <= 'f' {
			upper[i] = c - 32
			break
		}
	}
	n.SignatureKey = string(upper)
	if VerifySignature(n, testServerKey) {
		t.Fatal("case-changed signature must be rejected")
	}

	if VerifySignature(signedNotification(), "") {
		t.Fatal("empty server key must reject")
	}
	empty := signedNotification()
	empty.SignatureKey = ""
	if VerifySignature(empty, testServerKey) {
		t.Fatal("empty signature must reject")
	}
	if VerifySignature(signedNotification(), "other-key") {
		t.Fatal("wrong server key must reject")
	}
}
