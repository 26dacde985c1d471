package core

import (
	"errors"
	"strings"
)

// StudentRecord is one student of a school-year period together with their ledger.
type StudentRecord struct {
	ID           string `json:"id"`
	PeriodID     string `json:"school_year_period_id"`
	Name         string `json:"name"`
	JoinedMonth  int    `json:"joined_month"`
	Payments     Ledger `json:"payments"`
	Observations string `json:"observations"`
	IsNew        bool   `json:"isNew"`
	IsLeft       bool   `json:"isLeft"`
}

var (
	ErrEmptyName          = errors.New("empty student name")
	ErrInvalidJoinedMonth = errors.New("invalid joined month")
)

// NewStudent returns a fresh record: zeroed ledger, joined in September.
func NewStudent(periodID, name string) StudentRecord {
	return StudentRecord{
		PeriodID:    periodID,
		Name:        name,
		JoinedMonth: DefaultJoinedMonth,
		Payments:    NewLedger(),
	}
}

// JoinedOrder returns the academic order of the joined month, 1 when unresolvable.
func (s StudentRecord) JoinedOrder() int {
	if m, ok := MonthByNum(s.JoinedMonth); ok {
		return m.Order
	}
	return 1
}

// IsLocked reports whether month falls before the student's joined month.
func (s StudentRecord) IsLocked(m AcademicMonth) bool {
	return m.Order < s.JoinedOrder()
}

// Validate checks the basic info fields.
func (s StudentRecord) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return ErrEmptyName
	}
	if _, ok := MonthByNum(s.JoinedMonth); !ok {
		return ErrInvalidJoinedMonth
	}
	return nil
}
