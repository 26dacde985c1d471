package core

import (
	"strconv"
	"strings"
)

// AcademicMonth is one of the ten tuition months of a school year.
// Order runs September=1 through June=10 because the year wraps over January.
type AcademicMonth struct {
	Key         string
	DisplayName string
	MonthNum    int
	Order       int
}

// Months lists the academic months in chronological order. July and August are not billed.
var Months = []AcademicMonth{
	{Key: "m9", DisplayName: "September", MonthNum: 9, Order: 1},
	{Key: "m10", DisplayName: "October", MonthNum: 10, Order: 2},
	{Key: "m11", DisplayName: "November", MonthNum: 11, Order: 3},
	{Key: "m12", DisplayName: "December", MonthNum: 12, Order: 4},
	{Key: "m1", DisplayName: "January", MonthNum: 1, Order: 5},
	{Key: "m2", DisplayName: "February", MonthNum: 2, Order: 6},
	{Key: "m3", DisplayName: "March", MonthNum: 3, Order: 7},
	{Key: "m4", DisplayName: "April", MonthNum: 4, Order: 8},
	{Key: "m5", DisplayName: "May", MonthNum: 5, Order: 9},
	{Key: "m6", DisplayName: "June", MonthNum: 6, Order: 10},
}

// DefaultJoinedMonth is the joined month of a freshly created student (September).
const DefaultJoinedMonth = 9

// MonthByNum resolves a calendar month number (1-12) to its academic month.
func MonthByNum(n int) (AcademicMonth, bool) {
	for _, m := range Months {
		if m.MonthNum == n {
			return m, true
		}
	}
	return AcademicMonth{}, false
}

// MonthByOrder resolves a position in the academic year (1-10).
func MonthByOrder(order int) (AcademicMonth, bool) {
	if order < 1 || order > len(Months) {
		return AcademicMonth{}, false
	}
	return Months[order-1], true
}

// MonthsBefore returns the months strictly before order, oldest first.
func MonthsBefore(order int) []AcademicMonth {
	var out []AcademicMonth
	for _, m := range Months {
		if m.Order < order {
			out = append(out, m)
		}
	}
	return out
}

// MonthForKey resolves a ledger key such as "m9_real" to its month.
// Insurance and unknown keys report false.
func MonthForKey(key string) (AcademicMonth, bool) {
	n, ok := monthNumFromKey(key)
	if !ok {
		return AcademicMonth{}, false
	}
	return MonthByNum(n)
}

// monthNumFromKey parses the numeric part of "m<num>_agreed" / "m<num>_real".
func monthNumFromKey(key string) (int, bool) {
	base := baseKey(key)
	if !strings.HasPrefix(base, "m") {
		return 0, false
	}
	n, err := strconv.Atoi(base[1:])
	if err != nil {
		return 0, false
	}
	return n, true
}
