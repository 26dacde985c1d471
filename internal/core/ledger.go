package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	AgreedSuffix = "_agreed"
	RealSuffix   = "_real"

	InsuranceBase      = "insurance"
	InsuranceAgreedKey = InsuranceBase + AgreedSuffix
	InsuranceRealKey   = InsuranceBase + RealSuffix

	// transportMarker flags keys of the retired transport fee. They may still be
	// present in stored data and are carried along untouched.
	transportMarker = "transport"
)

// Ledger holds the agreed and real payments of one student.
//
// Agreed amounts keep the raw decimal string the user typed (always parseable,
// "0" when empty); real amounts are numeric. A Ledger is a value: every mutator
// returns a new Ledger and leaves the receiver untouched, so callers can keep
// the snapshot they loaded and diff it later.
type Ledger struct {
	agreed map[string]string
	real   map[string]decimal.Decimal
}

// NewLedger returns a ledger with every month and the insurance fee at zero.
func NewLedger() Ledger {
	l := Ledger{
		agreed: make(map[string]string, len(Months)+1),
		real:   make(map[string]decimal.Decimal, len(Months)+1),
	}
	for _, base := range standardBases() {
		l.agreed[base+AgreedSuffix] = "0"
		l.real[base+RealSuffix] = decimal.Zero
	}
	return l
}

// LedgerFromMaps builds a ledger from stored values. Missing standard keys are
// zero; legacy keys are kept as they are.
func LedgerFromMaps(agreed map[string]string, real map[string]decimal.Decimal) Ledger {
	l := NewLedger()
	for k, v := range agreed {
		if IsTransportKey(k) {
			l.agreed[k] = v
			continue
		}
		l.agreed[k] = coerceAgreed(v)
	}
	for k, v := range real {
		l.real[k] = v
	}
	return l
}

func standardBases() []string {
	bases := make([]string, 0, len(Months)+1)
	for _, m := range Months {
		bases = append(bases, m.Key)
	}
	return append(bases, InsuranceBase)
}

// AgreedKey returns the agreed key for a month key or InsuranceBase.
func AgreedKey(base string) string { return base + AgreedSuffix }

// RealKey returns the real key for a month key or InsuranceBase.
func RealKey(base string) string { return base + RealSuffix }

func IsAgreedKey(key string) bool { return strings.HasSuffix(key, AgreedSuffix) }

func IsRealKey(key string) bool { return strings.HasSuffix(key, RealSuffix) }

// IsTransportKey reports whether key belongs to the retired transport fee.
func IsTransportKey(key string) bool { return strings.Contains(key, transportMarker) }

// IsInsuranceKey reports whether key is one of the two insurance keys.
func IsInsuranceKey(key string) bool { return baseKey(key) == InsuranceBase }

// PairedAgreedKey maps "m9_real" to "m9_agreed".
func PairedAgreedKey(realKey string) string { return AgreedKey(baseKey(realKey)) }

func baseKey(key string) string {
	key = strings.TrimSuffix(key, AgreedSuffix)
	return strings.TrimSuffix(key, RealSuffix)
}

// isKnownKey accepts agreed/real keys of the ten academic months and insurance.
func isKnownKey(key string) bool {
	if !IsAgreedKey(key) && !IsRealKey(key) {
		return false
	}
	if IsInsuranceKey(key) {
		return true
	}
	_, ok := MonthForKey(key)
	return ok
}

// ParseAmount coerces user input to a non-negative amount. Empty or malformed
// input is zero; a decimal comma is accepted.
func ParseAmount(raw string) decimal.Decimal {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func coerceAgreed(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "0"
	}
	d := ParseAmount(s)
	if d.IsZero() {
		return "0"
	}
	return strings.ReplaceAll(s, ",", ".")
}

// Agreed returns the raw agreed value for key, "0" when absent.
func (l Ledger) Agreed(key string) string {
	if v, ok := l.agreed[key]; ok {
		return v
	}
	return "0"
}

// AgreedAmount returns the agreed value for key as a number.
func (l Ledger) AgreedAmount(key string) decimal.Decimal {
	return ParseAmount(l.Agreed(key))
}

// Real returns the real amount for key, zero when absent.
func (l Ledger) Real(key string) decimal.Decimal {
	return l.real[key]
}

// AgreedKeys lists agreed keys in academic order, insurance next, legacy keys last.
func (l Ledger) AgreedKeys() []string { return orderedKeys(l.agreed) }

// RealKeys lists real keys in the same order as AgreedKeys.
func (l Ledger) RealKeys() []string { return orderedKeys(l.real) }

// AgreedValues returns a copy of the agreed map.
func (l Ledger) AgreedValues() map[string]string {
	out := make(map[string]string, len(l.agreed))
	for k, v := range l.agreed {
		out[k] = v
	}
	return out
}

// RealValues returns a copy of the real map.
func (l Ledger) RealValues() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(l.real))
	for k, v := range l.real {
		out[k] = v
	}
	return out
}

// BaseIsZero reports whether both the agreed and real entries of base are zero.
func (l Ledger) BaseIsZero(base string) bool {
	return l.AgreedAmount(AgreedKey(base)).IsZero() && l.Real(RealKey(base)).IsZero()
}

func (l Ledger) clone() Ledger {
	return Ledger{agreed: l.AgreedValues(), real: l.RealValues()}
}

func (l Ledger) withAgreed(key, value string) Ledger {
	c := l.clone()
	c.agreed[key] = value
	return c
}

func (l Ledger) withReal(key string, value decimal.Decimal) Ledger {
	c := l.clone()
	c.real[key] = value
	return c
}

// Merge returns a copy of l with the given values overwritten. Invariants are
// not checked: stores use it to replay operations that were validated upstream.
func (l Ledger) Merge(agreed map[string]string, real map[string]decimal.Decimal) Ledger {
	c := l.clone()
	for k, v := range agreed {
		c.agreed[k] = coerceAgreed(v)
	}
	for k, v := range real {
		c.real[k] = v
	}
	return c
}

// SetReal records a collected amount. A positive amount is rejected with
// ErrAgreedMissing unless the paired agreed amount is positive.
func SetReal(l Ledger, key, raw string) (Ledger, error) {
	if IsTransportKey(key) {
		return l, nil
	}
	if !IsRealKey(key) || !isKnownKey(key) {
		return l, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	amount := ParseAmount(raw)
	if amount.IsPositive() && !l.AgreedAmount(PairedAgreedKey(key)).IsPositive() {
		return l, fmt.Errorf("%w: %s", ErrAgreedMissing, key)
	}
	return l.withReal(key, amount), nil
}

// SetAgreed records an agreed amount. Agreed edits are always legal; keys that
// are not agreed keys leave the ledger as it is.
func SetAgreed(l Ledger, key, raw string) Ledger {
	if IsTransportKey(key) || !IsAgreedKey(key) || !isKnownKey(key) {
		return l
	}
	return l.withAgreed(key, coerceAgreed(raw))
}

// Violations lists the real keys whose positive amount lacks a positive agreed amount.
func (l Ledger) Violations() []string {
	var out []string
	for _, k := range l.RealKeys() {
		if IsTransportKey(k) {
			continue
		}
		if l.Real(k).IsPositive() && !l.AgreedAmount(PairedAgreedKey(k)).IsPositive() {
			out = append(out, k)
		}
	}
	return out
}

func orderedKeys[V any](m map[string]V) []string {
	rank := make(map[string]int, len(Months)+1)
	for i, base := range standardBases() {
		rank[base] = i
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ri, iok := rank[baseKey(keys[i])]
		rj, jok := rank[baseKey(keys[j])]
		switch {
		case iok && jok:
			return ri < rj
		case iok != jok:
			return iok
		default:
			return keys[i] < keys[j]
		}
	})
	return keys
}

// MarshalJSON writes the flat shape the store and clients exchange:
// {"m9_agreed":"200","m9_real":100,...}.
func (l Ledger) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	write := func(k string, v []byte) {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		kb, _ := json.Marshal(k)
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(v)
	}
	for _, k := range l.AgreedKeys() {
		v, err := json.Marshal(l.agreed[k])
		if err != nil {
			return nil, err
		}
		write(k, v)
	}
	for _, k := range l.RealKeys() {
		write(k, []byte(l.real[k].String()))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts numbers or strings for either kind of value.
func (l *Ledger) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	agreed := make(map[string]string)
	real := make(map[string]decimal.Decimal)
	for k, v := range raw {
		s := strings.Trim(string(v), `"`)
		if s == "null" {
			s = ""
		}
		switch {
		case IsAgreedKey(k):
			agreed[k] = s
		case IsRealKey(k):
			real[k] = ParseAmount(s)
		}
	}
	*l = LedgerFromMaps(agreed, real)
	return nil
}
