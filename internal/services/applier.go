package services

import (
	"context"
	"fmt"
	"log/slog"

	"tuition/internal/core"
	"tuition/internal/store"
)

// ApplyError reports a change set that stopped part way. Operations in
// Applied reached the store; Failed and everything after it did not.
type ApplyError struct {
	Applied []core.Operation
	Failed  core.Operation
	Err     error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("apply %s after %d operations: %v", e.Failed.Kind(), len(e.Applied), e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// ApplyResult describes a fully applied change set.
type ApplyResult struct {
	// StudentID is the id assigned by the store for a new student, otherwise
	// the id the operations targeted.
	StudentID string
	Applied   []core.Operation
}

// Applier replays change sets against a store one operation at a time.
// There is no transaction around a change set.
type Applier struct {
	store store.Store
}

func NewApplier(s store.Store) *Applier {
	return &Applier{store: s}
}

// Apply runs the operations of cs in order and stops at the first failure,
// returning an *ApplyError.
func (a *Applier) Apply(ctx context.Context, cs core.ChangeSet) (ApplyResult, error) {
	var res ApplyResult
	for _, op := range cs.Operations() {
		if err := ctx.Err(); err != nil {
			return res, &ApplyError{Applied: res.Applied, Failed: op, Err: err}
		}
		id, err := a.apply(ctx, op)
		if err != nil {
			slog.ErrorContext(ctx, "Change set stopped",
				"operation", op.Kind(),
				"applied", len(res.Applied),
				"error", err)
			return res, &ApplyError{Applied: res.Applied, Failed: op, Err: err}
		}
		if res.StudentID == "" {
			res.StudentID = id
		}
		res.Applied = append(res.Applied, op)
	}
	return res, nil
}

func (a *Applier) apply(ctx context.Context, op core.Operation) (string, error) {
	switch o := op.(type) {
	case core.CreateStudent:
		rec, err := a.store.CreateStudent(ctx, o.Record)
		if err != nil {
			return "", fmt.Errorf("create student: %w", err)
		}
		return rec.ID, nil
	case core.UpsertPayment:
		if err := a.store.UpsertPayment(ctx, o); err != nil {
			return "", fmt.Errorf("upsert payment: %w", err)
		}
		return o.StudentID, nil
	case core.UpsertAgreedPayments:
		if err := a.store.UpsertAgreedPayments(ctx, o); err != nil {
			return "", fmt.Errorf("upsert agreed payments: %w", err)
		}
		return o.StudentID, nil
	case core.UpdateStudentInfo:
		if err := a.store.UpdateStudentInfo(ctx, o); err != nil {
			return "", fmt.Errorf("update student info: %w", err)
		}
		return o.ID, nil
	default:
		return "", fmt.Errorf("unsupported operation %T", op)
	}
}

// OperationKinds lists the kinds of ops as strings, for logs and events.
func OperationKinds(ops []core.Operation) []string {
	kinds := make([]string, len(ops))
	for i, op := range ops {
		kinds[i] = string(op.Kind())
	}
	return kinds
}
