package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"tuition/internal/amqp"
	"tuition/internal/cache"
	"tuition/internal/core"
	"tuition/internal/store"
)

// EventPublisher announces student writes. *amqp.Client satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, ev *amqp.StudentEvent) error
}

// LedgerConfig holds the per-process settings of a LedgerService.
type LedgerConfig struct {
	// UserID is recorded on every write.
	UserID string
	// StatsTTL bounds how long period statistics are served from cache.
	StatsTTL time.Duration
	// Autocomplete is the default when an edit does not choose.
	Autocomplete bool
	// MaxCachedPeriods caps the statistics cache (default 32).
	MaxCachedPeriods int
}

// PeriodView is a loaded period: its students and their statistics.
type PeriodView struct {
	PeriodID   string               `json:"period_id"`
	Students   []core.StudentRecord `json:"students"`
	Statistics core.Statistics      `json:"statistics"`
}

// SaveResult tells the caller what a save did.
type SaveResult struct {
	StudentID  string   `json:"student_id"`
	Operations []string `json:"operations"`
}

// LedgerService orchestrates loads and saves across the store, the statistics
// cache and the event publisher.
type LedgerService struct {
	store     store.Store
	applier   *Applier
	publisher EventPublisher
	stats     *cache.TTL[core.Statistics]
	cfg       LedgerConfig
	now       func() time.Time
}

// NewLedgerService wires a service. publisher may be nil.
func NewLedgerService(s store.Store, publisher EventPublisher, cfg LedgerConfig) *LedgerService {
	if cfg.MaxCachedPeriods <= 0 {
		cfg.MaxCachedPeriods = 32
	}
	return &LedgerService{
		store:     s,
		applier:   NewApplier(s),
		publisher: publisher,
		stats:     cache.NewTTL[core.Statistics](cfg.MaxCachedPeriods, cfg.StatsTTL),
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// StatsCache exposes the statistics cache so the caller can sweep it.
func (s *LedgerService) StatsCache() *cache.TTL[core.Statistics] { return s.stats }

// Load fetches a period and recomputes its statistics.
func (s *LedgerService) Load(ctx context.Context, periodID string) (PeriodView, error) {
	students, err := s.store.FetchStudents(ctx, periodID)
	if err != nil {
		return PeriodView{}, fmt.Errorf("fetch students of %s: %w", periodID, err)
	}
	if students == nil {
		students = []core.StudentRecord{}
	}
	stats := core.Aggregate(students)
	s.stats.Set(periodID, stats)

	slog.DebugContext(ctx, "Period loaded",
		"period_id", periodID,
		"students", stats.Total)
	return PeriodView{PeriodID: periodID, Students: students, Statistics: stats}, nil
}

// LoadPeriods loads several periods concurrently. Results keep the order of ids.
func (s *LedgerService) LoadPeriods(ctx context.Context, ids ...string) ([]PeriodView, error) {
	views := make([]PeriodView, len(ids))
	g, ctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			v, err := s.Load(ctx, id)
			if err != nil {
				return err
			}
			views[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return views, nil
}

// Statistics returns the cached statistics of a period, loading it on a miss.
func (s *LedgerService) Statistics(ctx context.Context, periodID string) (core.Statistics, error) {
	if st, ok := s.stats.Get(periodID); ok {
		return st, nil
	}
	v, err := s.Load(ctx, periodID)
	if err != nil {
		return core.Statistics{}, err
	}
	return v.Statistics, nil
}

// Edit is a single change requested on a record being edited.
type Edit struct {
	Action string `json:"action"`
	Key    string `json:"key,omitempty"`
	Value  string `json:"value,omitempty"`
	// OriginalJoinedMonth is the joined month the record had when loaded.
	OriginalJoinedMonth int `json:"original_joined_month,omitempty"`
	JoinedMonth         int `json:"joined_month,omitempty"`
	// Autocomplete overrides the configured default when set.
	Autocomplete *bool `json:"autocomplete,omitempty"`
}

const (
	ActionSetReal        = "set_real"
	ActionSetAgreed      = "set_agreed"
	ActionSetJoinedMonth = "set_joined_month"
)

var ErrUnknownAction = errors.New("unknown edit action")

// ApplyEdit runs one edit on rec without touching the store.
func (s *LedgerService) ApplyEdit(rec core.StudentRecord, e Edit) (core.StudentRecord, error) {
	auto := s.cfg.Autocomplete
	if e.Autocomplete != nil {
		auto = *e.Autocomplete
	}
	editor := core.Editor{Autocomplete: core.Autocomplete{Enabled: auto}}

	switch e.Action {
	case ActionSetReal:
		return editor.SetReal(rec, e.Key, e.Value)
	case ActionSetAgreed:
		return editor.SetAgreed(rec, e.Key, e.Value)
	case ActionSetJoinedMonth:
		original := e.OriginalJoinedMonth
		if original == 0 {
			original = rec.JoinedMonth
		}
		return core.SetJoinedMonth(rec, original, e.JoinedMonth)
	default:
		return rec, fmt.Errorf("%w: %q", ErrUnknownAction, e.Action)
	}
}

// Save reconciles edited against original (nil for a new student), applies
// the change set and announces it. A record breaking a ledger invariant is
// rejected before anything is written.
func (s *LedgerService) Save(ctx context.Context, original *core.StudentRecord, edited core.StudentRecord) (SaveResult, error) {
	if err := core.ValidateRecord(edited); err != nil {
		return SaveResult{}, err
	}
	if original != nil {
		edited.ID = original.ID
		edited.PeriodID = original.PeriodID
	}

	differ := core.Differ{UserID: s.cfg.UserID, Now: s.now}
	cs := differ.Diff(original, edited)
	if cs.Empty() {
		return SaveResult{StudentID: edited.ID, Operations: []string{}}, nil
	}

	res, err := s.applier.Apply(ctx, cs)
	if len(res.Applied) > 0 {
		s.stats.Invalidate(edited.PeriodID)
	}
	if err != nil {
		return SaveResult{StudentID: edited.ID, Operations: OperationKinds(res.Applied)}, err
	}

	kinds := OperationKinds(res.Applied)
	slog.InfoContext(ctx, "Student saved",
		"student_id", res.StudentID,
		"period_id", edited.PeriodID,
		"applied", len(kinds))
	s.publish(ctx, amqp.NewStudentSavedEvent(res.StudentID, edited.PeriodID, s.cfg.UserID, kinds))
	return SaveResult{StudentID: res.StudentID, Operations: kinds}, nil
}

// SaveStudent saves edited against the stored copy of the student, or
// creates it when it has no id yet.
func (s *LedgerService) SaveStudent(ctx context.Context, edited core.StudentRecord) (SaveResult, error) {
	if edited.ID == "" {
		return s.Save(ctx, nil, edited)
	}
	original, err := s.store.GetStudent(ctx, edited.ID)
	if err != nil {
		return SaveResult{}, fmt.Errorf("load student: %w", err)
	}
	return s.Save(ctx, &original, edited)
}

// Delete soft-deletes a student.
func (s *LedgerService) Delete(ctx context.Context, id string) error {
	rec, err := s.store.GetStudent(ctx, id)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	if err := s.store.DeleteStudent(ctx, id); err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	s.stats.Invalidate(rec.PeriodID)
	s.publish(ctx, amqp.NewStudentDeletedEvent(id, rec.PeriodID, s.cfg.UserID))
	return nil
}

// publish never fails the caller: the write already happened.
func (s *LedgerService) publish(ctx context.Context, ev *amqp.StudentEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		slog.ErrorContext(ctx, "Failed to publish student event",
			"event", ev.Event,
			"student_id", ev.StudentID,
			"error", err)
	}
}
