// Package orderid encodes the payment correlation id sent to the gateway.
//
// Format: AS-<plan>[<interval>]-<user fragment>-<unix millis>, at most 50 chars.
// The user fragment is a truncated lookup key, never a full identity.
package orderid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/enums"
)

const (
	Prefix    = "AS"
	MaxLength = 50
	separator = "-"
)

var ErrMalformedOrderID = errors.New("malformed order id")

var (
	planInitials = map[enums.Tier]string{
		enums.TierRitel:  "R",
		enums.TierSuhu:   "S",
		enums.TierBandar: "B",
	}
	intervalSuffixes = map[enums.BillingInterval]string{
		enums.BillingIntervalMonthly: "M",
		enums.BillingIntervalYearly:  "Y",
	}
)

// OrderID is the decoded form of a correlation id.
type OrderID struct {
	Plan         enums.Tier
	Interval     enums.BillingInterval // empty for ids issued without an interval
	UserFragment string
	IssuedAt     time.Time
	// Truncated is set when the fragment filled its whole budget, so the
	// user's lookup key may be longer than the fragment.
	Truncated bool
}

// HasInterval reports whether the id carried an explicit billing interval.
func (o OrderID) HasInterval() bool {
	return o.Interval != ""
}

// Encode builds an order id. interval may be empty.
func Encode(plan enums.Tier, interval enums.BillingInterval, userID string, issuedAt time.Time) (string, error) {
	initial, ok := planInitials[plan]
	if !ok {
		return "", fmt.Errorf("unknown plan %q", plan)
	}
	planSegment := initial
	if interval != "" {
		suffix, ok := intervalSuffixes[interval]
		if !ok {
			return "", fmt.Errorf("unknown billing interval %q", interval)
		}
		planSegment += suffix
	}

	fragment := sanitize(userID)
	if fragment == "" {
		return "", fmt.Errorf("user id %q has no usable characters", userID)
	}
	ts := strconv.FormatInt(issuedAt.UnixMilli(), 10)

	budget := fragmentBudget(planSegment, ts)
	if budget <= 0 {
		return "", fmt.Errorf("no room for user fragment")
	}
	if len(fragment) > budget {
		fragment = fragment[:budget]
	}
	return strings.Join([]string{Prefix, planSegment, fragment, ts}, separator), nil
}

// Decode parses an order id. Any structural problem yields ErrMalformedOrderID.
func Decode(raw string) (OrderID, error) {
	parts := strings.Split(strings.TrimSpace(raw), separator)
	if len(parts) < 4 || parts[0] != Prefix {
		return OrderID{}, ErrMalformedOrderID
	}

	plan, interval, ok := parsePlanSegment(parts[1])
	if !ok {
		return OrderID{}, ErrMalformedOrderID
	}

	// the timestamp is always last; anything between is the fragment
	tsRaw := parts[len(parts)-1]
	millis, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil || millis <= 0 {
		return OrderID{}, ErrMalformedOrderID
	}
	fragment := strings.Join(parts[2:len(parts)-1], "")
	if fragment == "" {
		return OrderID{}, ErrMalformedOrderID
	}

	return OrderID{
		Plan:         plan,
		Interval:     interval,
		UserFragment: fragment,
		IssuedAt:     time.UnixMilli(millis).UTC(),
		Truncated:    len(fragment) >= fragmentBudget(parts[1], tsRaw),
	}, nil
}

func fragmentBudget(planSegment, ts string) int {
	return MaxLength - len(Prefix) - len(planSegment) - len(ts) - 3*len(separator)
}

// LookupKey is the normalized form of userID that fragments are prefixes of.
func LookupKey(userID string) string {
	return sanitize(userID)
}

// MatchesUser reports whether userID could have produced fragment.
func MatchesUser(fragment, userID string) bool {
	if fragment == "" {
		return false
	}
	return strings.HasPrefix(sanitize(userID), fragment)
}

func parsePlanSegment(segment string) (enums.Tier, enums.BillingInterval, bool) {
	if segment == "" || len(segment) > 2 {
		return "", "", false
	}
	var plan enums.Tier
	for tier, initial := range planInitials {
		if segment[:1] == initial {
			plan = tier
		}
	}
	if plan == "" {
		return "", "", false
	}
	if len(segment) == 1 {
		return plan, "", true
	}
	for interval, suffix := range intervalSuffixes {
		if segment[1:] == suffix {
			return plan, interval, true
		}
	}
	return "", "", false
}

func sanitize(userID string) string {
	var b strings.Builder
	for _, r := range userID {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
