package core

import (
	"fmt"
	"strings"
)

// Editor applies single-field ledger edits to a whole student record,
// keeping months before the joined month at zero.
type Editor struct {
	Autocomplete Autocomplete
}

// SetReal edits a real amount of rec.
func (e Editor) SetReal(rec StudentRecord, key, raw string) (StudentRecord, error) {
	if err := checkLocked(rec, key, ParseAmount(raw).IsZero()); err != nil {
		return rec, err
	}
	l, err := SetReal(rec.Payments, key, raw)
	if err != nil {
		return rec, err
	}
	rec.Payments = l
	return rec, nil
}

// SetAgreed edits an agreed amount of rec, then propagates it when autocomplete
// is on. Propagation leaves locked months alone. Unknown keys are rejected.
func (e Editor) SetAgreed(rec StudentRecord, key, raw string) (StudentRecord, error) {
	if IsTransportKey(key) {
		return rec, nil
	}
	if !IsAgreedKey(key) || !isKnownKey(key) {
		return rec, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	if err := checkLocked(rec, key, ParseAmount(raw).IsZero()); err != nil {
		return rec, err
	}
	l := SetAgreed(rec.Payments, key, raw)
	l = e.Autocomplete.propagate(l, key, raw, func(k string) bool {
		m, ok := MonthForKey(k)
		return ok && rec.IsLocked(m)
	})
	rec.Payments = l
	return rec, nil
}

// checkLocked rejects non-zero writes to a month before the joined month.
func checkLocked(rec StudentRecord, key string, zero bool) error {
	if zero {
		return nil
	}
	m, ok := MonthForKey(key)
	if ok && rec.IsLocked(m) {
		return fmt.Errorf("%w: %s", ErrMonthLocked, m.DisplayName)
	}
	return nil
}

// ValidateRecord checks a complete record: basic info, the agreed/real pairing
// of every key and the zeroed months before the joined month.
func ValidateRecord(rec StudentRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if v := rec.Payments.Violations(); len(v) > 0 {
		return fmt.Errorf("%w: %s", ErrAgreedMissing, strings.Join(v, ", "))
	}
	for _, m := range MonthsBefore(rec.JoinedOrder()) {
		if !rec.Payments.BaseIsZero(m.Key) {
			return fmt.Errorf("%w: %s", ErrMonthLocked, m.DisplayName)
		}
	}
	return nil
}
