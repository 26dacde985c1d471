package core

// Statistics are the population counts shown for a school-year period.
type Statistics struct {
	Total        int `json:"total"`
	New          int `json:"new"`
	Left         int `json:"left"`
	Registered   int `json:"registered"`
	Unregistered int `json:"unregistered"`
}

// Aggregate counts a population. A student is registered once the insurance
// fee is collected. Unregistered subtracts every left student from the
// zero-insurance count, including those who did pay, so it can go negative.
func Aggregate(population []StudentRecord) Statistics {
	var st Statistics
	zeroInsurance := 0
	for _, s := range population {
		st.Total++
		if s.IsLeft {
			st.Left++
		}
		if s.IsNew {
			st.New++
		}
		if s.Payments.Real(InsuranceRealKey).IsPositive() {
			st.Registered++
		} else if s.Payments.Real(InsuranceRealKey).IsZero() {
			zeroInsurance++
		}
	}
	st.Unregistered = zeroInsurance - st.Left
	return st
}
