package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// OperationKind names a backend operation of a ChangeSet.
type OperationKind string

const (
	OpCreateStudent        OperationKind = "create_student"
	OpUpsertPayment        OperationKind = "upsert_payment"
	OpUpsertAgreedPayments OperationKind = "upsert_agreed_payments"
	OpUpdateStudentInfo    OperationKind = "update_student_info"
)

// PaymentType tells a monthly tuition payment from the insurance fee.
type PaymentType string

const (
	PaymentMonthly   PaymentType = "monthly"
	PaymentInsurance PaymentType = "insurance"
)

// Operation is one command for the student store.
type Operation interface {
	Kind() OperationKind
}

type (
	// CreateStudent stores a new student with its full ledger.
	CreateStudent struct {
		Record StudentRecord `json:"record"`
		UserID string        `json:"user_id"`
	}

	// UpsertPayment records one real amount. Month is nil for insurance.
	UpsertPayment struct {
		StudentID   string          `json:"student_id"`
		UserID      string          `json:"user_id"`
		Amount      decimal.Decimal `json:"amount"`
		PaymentType PaymentType     `json:"payment_type"`
		Month       *int            `json:"month,omitempty"`
	}

	// UpsertAgreedPayments records every changed agreed amount in one call.
	UpsertAgreedPayments struct {
		StudentID      string                     `json:"student_id"`
		UserID         string                     `json:"user_id"`
		AgreedPayments map[string]decimal.Decimal `json:"agreed_payments"`
		Timestamp      time.Time                  `json:"timestamp"`
	}

	// UpdateStudentInfo replaces the basic info fields of a student.
	UpdateStudentInfo struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		Observations string `json:"observations"`
		JoinedMonth  int    `json:"joined_month"`
		IsNew        bool   `json:"isNew"`
		IsLeft       bool   `json:"isLeft"`
	}
)

func (CreateStudent) Kind() OperationKind        { return OpCreateStudent }
func (UpsertPayment) Kind() OperationKind        { return OpUpsertPayment }
func (UpsertAgreedPayments) Kind() OperationKind { return OpUpsertAgreedPayments }
func (UpdateStudentInfo) Kind() OperationKind    { return OpUpdateStudentInfo }

// ChangeSet is the minimal set of store operations turning an original
// snapshot into an edited one.
type ChangeSet struct {
	Create   *CreateStudent
	Payments []UpsertPayment
	Agreed   *UpsertAgreedPayments
	Info     *UpdateStudentInfo
}

// Operations returns the commands in application order: payments, then the
// agreed batch, then basic info.
func (c ChangeSet) Operations() []Operation {
	var ops []Operation
	if c.Create != nil {
		ops = append(ops, *c.Create)
	}
	for _, p := range c.Payments {
		ops = append(ops, p)
	}
	if c.Agreed != nil {
		ops = append(ops, *c.Agreed)
	}
	if c.Info != nil {
		ops = append(ops, *c.Info)
	}
	return ops
}

// Len returns the number of operations.
func (c ChangeSet) Len() int { return len(c.Operations()) }

// Empty reports whether there is nothing to apply.
func (c ChangeSet) Empty() bool { return c.Len() == 0 }

// Differ computes change sets on behalf of one acting user.
type Differ struct {
	UserID string
	Now    func() time.Time
}

func (d Differ) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now().UTC()
}

// Diff compares original with edited. A nil original means edited is a new
// student. Transport keys never produce operations.
func (d Differ) Diff(original *StudentRecord, edited StudentRecord) ChangeSet {
	if original == nil {
		return ChangeSet{Create: &CreateStudent{Record: edited, UserID: d.UserID}}
	}

	var cs ChangeSet
	before, after := original.Payments, edited.Payments

	for _, k := range unionKeys(before.real, after.real) {
		if IsTransportKey(k) || !isKnownKey(k) {
			continue
		}
		if before.Real(k).Equal(after.Real(k)) {
			continue
		}
		p := UpsertPayment{
			StudentID:   edited.ID,
			UserID:      d.UserID,
			Amount:      after.Real(k),
			PaymentType: PaymentInsurance,
		}
		if !IsInsuranceKey(k) {
			month, _ := monthNumFromKey(k)
			p.PaymentType = PaymentMonthly
			p.Month = &month
		}
		cs.Payments = append(cs.Payments, p)
	}

	changed := make(map[string]decimal.Decimal)
	for _, k := range unionKeys(before.agreed, after.agreed) {
		if IsTransportKey(k) || !isKnownKey(k) {
			continue
		}
		if !before.AgreedAmount(k).Equal(after.AgreedAmount(k)) {
			changed[k] = after.AgreedAmount(k)
		}
	}
	if len(changed) > 0 {
		cs.Agreed = &UpsertAgreedPayments{
			StudentID:      edited.ID,
			UserID:         d.UserID,
			AgreedPayments: changed,
			Timestamp:      d.now(),
		}
	}

	if infoChanged(*original, edited) {
		cs.Info = &UpdateStudentInfo{
			ID:           edited.ID,
			Name:         edited.Name,
			Observations: edited.Observations,
			JoinedMonth:  edited.JoinedMonth,
			IsNew:        edited.IsNew,
			IsLeft:       edited.IsLeft,
		}
	}
	return cs
}

func infoChanged(a, b StudentRecord) bool {
	return a.Name != b.Name ||
		a.Observations != b.Observations ||
		a.JoinedMonth != b.JoinedMonth ||
		a.IsNew != b.IsNew ||
		a.IsLeft != b.IsLeft
}

func unionKeys[V any](a, b map[string]V) []string {
	u := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		u[k] = struct{}{}
	}
	for k := range b {
		u[k] = struct{}{}
	}
	return orderedKeys(u)
}
