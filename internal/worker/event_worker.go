package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"tuition/internal/amqp"
	"tuition/internal/core"
	"tuition/internal/services"
	"tuition/internal/store"
)

// PeriodLoader reloads a period and refreshes its statistics.
type PeriodLoader interface {
	Load(ctx context.Context, periodID string) (services.PeriodView, error)
}

// Finding is a stored student whose ledger breaks an invariant.
type Finding struct {
	StudentID string
	Name      string
	Code      string
	Err       error
}

// EventWorker consumes student events: it audits the written student and
// refreshes the statistics of its period.
type EventWorker struct {
	students store.StudentReader
	periods  PeriodLoader
}

func NewEventWorker(students store.StudentReader, periods PeriodLoader) *EventWorker {
	return &EventWorker{students: students, periods: periods}
}

// HandleEvent processes one event. Errors make the broker redeliver it.
func (w *EventWorker) HandleEvent(ctx context.Context, ev *amqp.StudentEvent) error {
	slog.InfoContext(ctx, "Processing student event",
		"event", ev.Event,
		"student_id", ev.StudentID,
		"period_id", ev.PeriodID,
		"user_id", ev.UserID,
		"operations", ev.Operations)

	if ev.Event == amqp.EventStudentSaved {
		rec, err := w.students.GetStudent(ctx, ev.StudentID)
		switch {
		case errors.Is(err, store.ErrStudentNotFound):
			// Deleted after the save; the delete event follows.
			slog.InfoContext(ctx, "Saved student no longer exists", "student_id", ev.StudentID)
		case err != nil:
			return fmt.Errorf("get student %s: %w", ev.StudentID, err)
		default:
			if f, bad := audit(rec); bad {
				logFinding(ctx, f)
			}
		}
	}

	if ev.PeriodID == "" {
		return nil
	}
	view, err := w.periods.Load(ctx, ev.PeriodID)
	if err != nil {
		return fmt.Errorf("refresh period %s: %w", ev.PeriodID, err)
	}
	slog.InfoContext(ctx, "Period statistics refreshed",
		"period_id", ev.PeriodID,
		"total", view.Statistics.Total,
		"registered", view.Statistics.Registered,
		"unregistered", view.Statistics.Unregistered)
	return nil
}

// AuditPeriod checks every student of a period and returns the ones whose
// stored ledger breaks an invariant. It covers writes whose event was lost.
func (w *EventWorker) AuditPeriod(ctx context.Context, periodID string) ([]Finding, error) {
	view, err := w.periods.Load(ctx, periodID)
	if err != nil {
		return nil, fmt.Errorf("audit period %s: %w", periodID, err)
	}
	var findings []Finding
	for _, rec := range view.Students {
		if f, bad := audit(rec); bad {
			logFinding(ctx, f)
			findings = append(findings, f)
		}
	}
	slog.InfoContext(ctx, "Period audited",
		"period_id", periodID,
		"students", len(view.Students),
		"findings", len(findings))
	return findings, nil
}

func audit(rec core.StudentRecord) (Finding, bool) {
	err := core.ValidateRecord(rec)
	if err == nil {
		return Finding{}, false
	}
	return Finding{StudentID: rec.ID, Name: rec.Name, Code: core.RejectionCode(err), Err: err}, true
}

func logFinding(ctx context.Context, f Finding) {
	slog.WarnContext(ctx, "Stored ledger breaks an invariant",
		"student_id", f.StudentID,
		"name", f.Name,
		"code", f.Code,
		"error", f.Err)
}
