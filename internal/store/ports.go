package store

import (
	"context"
	"errors"

	"tuition/internal/core"
)

// ErrStudentNotFound is returned for unknown or deleted students.
var ErrStudentNotFound = errors.New("student not found")

// Ports for outbound adapters.
type (
	StudentReader interface {
		// FetchStudents returns the students of a school-year period, deleted ones excluded.
		FetchStudents(ctx context.Context, periodID string) ([]core.StudentRecord, error)
		GetStudent(ctx context.Context, id string) (core.StudentRecord, error)
	}

	StudentWriter interface {
		// CreateStudent stores rec with its ledger and returns it with an assigned id.
		CreateStudent(ctx context.Context, rec core.StudentRecord) (core.StudentRecord, error)
		UpdateStudentInfo(ctx context.Context, info core.UpdateStudentInfo) error
		// DeleteStudent soft-deletes a student.
		DeleteStudent(ctx context.Context, id string) error
	}

	PaymentWriter interface {
		UpsertPayment(ctx context.Context, p core.UpsertPayment) error
		UpsertAgreedPayments(ctx context.Context, a core.UpsertAgreedPayments) error
	}

	// Store is everything the ledger service needs from a backend.
	Store interface {
		StudentReader
		StudentWriter
		PaymentWriter
	}
)

// PaymentKey maps an UpsertPayment to the ledger key it writes.
func PaymentKey(p core.UpsertPayment) (string, bool) {
	if p.PaymentType == core.PaymentInsurance {
		return core.InsuranceRealKey, true
	}
	if p.Month == nil {
		return "", false
	}
	m, ok := core.MonthByNum(*p.Month)
	if !ok {
		return "", false
	}
	return core.RealKey(m.Key), true
}
