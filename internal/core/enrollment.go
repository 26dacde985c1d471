package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// SetJoinedMonth moves a student's joined month to newMonthNum.
//
// Every month before the new joined month is zeroed. The move is rejected with
// ErrPriorPaymentsExist when one of those months, or the insurance fee, already
// holds a non-zero amount and newMonthNum differs from originalJoinedMonth, the
// joined month the record had when it was loaded. An unknown month number is
// ignored and the record comes back unchanged.
func SetJoinedMonth(rec StudentRecord, originalJoinedMonth, newMonthNum int) (StudentRecord, error) {
	target, ok := MonthByNum(newMonthNum)
	if !ok {
		return rec, nil
	}
	prior := MonthsBefore(target.Order)

	if newMonthNum != originalJoinedMonth {
		if !rec.Payments.BaseIsZero(InsuranceBase) {
			return rec, fmt.Errorf("%w: %s", ErrPriorPaymentsExist, InsuranceBase)
		}
		for _, m := range prior {
			if !rec.Payments.BaseIsZero(m.Key) {
				return rec, fmt.Errorf("%w: %s", ErrPriorPaymentsExist, m.DisplayName)
			}
		}
	}

	ledger := rec.Payments.clone()
	for _, m := range prior {
		ledger.agreed[AgreedKey(m.Key)] = "0"
		ledger.real[RealKey(m.Key)] = decimal.Zero
	}
	rec.Payments = ledger
	rec.JoinedMonth = newMonthNum
	return rec, nil
}
