package core

// Autocomplete copies an agreed amount typed into one month across every month.
// The caller sets Enabled before editing; it never changes on its own.
type Autocomplete struct {
	Enabled bool
}

// Propagate writes newValue to every agreed key when changedKey is a monthly
// agreed key. Insurance is a one-time fee and is neither a trigger nor a target.
func (a Autocomplete) Propagate(l Ledger, changedKey, newValue string) Ledger {
	return a.propagate(l, changedKey, newValue, func(string) bool { return false })
}

func (a Autocomplete) propagate(l Ledger, changedKey, newValue string, skip func(key string) bool) Ledger {
	if !a.Enabled || !IsAgreedKey(changedKey) || !isKnownKey(changedKey) ||
		IsInsuranceKey(changedKey) || IsTransportKey(changedKey) {
		return l
	}
	value := coerceAgreed(newValue)
	out := l.clone()
	// Every academic month is a target, present in l or not.
	for _, m := range Months {
		k := AgreedKey(m.Key)
		if skip(k) {
			continue
		}
		out.agreed[k] = value
	}
	return out
}
