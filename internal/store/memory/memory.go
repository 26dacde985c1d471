package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tuition/internal/core"
	"tuition/internal/store"
)

type entry struct {
	rec     core.StudentRecord
	deleted bool
	seq     int
}

// Store keeps students in process memory. Safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	students map[string]*entry
	seq      int
}

func New(seed ...core.StudentRecord) *Store {
	s := &Store{students: make(map[string]*entry)}
	for _, rec := range seed {
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		s.put(rec)
	}
	return s
}

// NewFromFiles seeds the store from base/seed_students.json. A missing file
// gives an empty store; an unreadable or malformed one is an error.
func NewFromFiles(base string) (*Store, error) {
	recs, err := readSeed(filepath.Join(base, "seed_students.json"))
	if err != nil {
		return nil, err
	}
	return New(recs...), nil
}

func (s *Store) put(rec core.StudentRecord) {
	s.seq++
	s.students[rec.ID] = &entry{rec: rec, seq: s.seq}
}

// FetchStudents returns the live students of a period in insertion order.
func (s *Store) FetchStudents(_ context.Context, periodID string) ([]core.StudentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found []*entry
	for _, e := range s.students {
		if e.deleted || e.rec.PeriodID != periodID {
			continue
		}
		found = append(found, e)
	}
	sort.Slice(found, func(i, j int) bool { return found[i].seq < found[j].seq })
	out := make([]core.StudentRecord, len(found))
	for i, e := range found {
		out[i] = e.rec
	}
	return out, nil
}

func (s *Store) GetStudent(_ context.Context, id string) (core.StudentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.live(id)
	if err != nil {
		return core.StudentRecord{}, err
	}
	return e.rec, nil
}

// CreateStudent assigns a fresh id and stores the record.
func (s *Store) CreateStudent(_ context.Context, rec core.StudentRecord) (core.StudentRecord, error) {
	if err := rec.Validate(); err != nil {
		return core.StudentRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = uuid.NewString()
	s.put(rec)
	return rec, nil
}

func (s *Store) UpdateStudentInfo(_ context.Context, info core.UpdateStudentInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.live(info.ID)
	if err != nil {
		return err
	}
	e.rec.Name = info.Name
	e.rec.Observations = info.Observations
	e.rec.JoinedMonth = info.JoinedMonth
	e.rec.IsNew = info.IsNew
	e.rec.IsLeft = info.IsLeft
	return nil
}

func (s *Store) DeleteStudent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.live(id)
	if err != nil {
		return err
	}
	e.deleted = true
	return nil
}

func (s *Store) UpsertPayment(_ context.Context, p core.UpsertPayment) error {
	key, ok := store.PaymentKey(p)
	if !ok {
		return fmt.Errorf("upsert payment: invalid month for student %s", p.StudentID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.live(p.StudentID)
	if err != nil {
		return err
	}
	e.rec.Payments = e.rec.Payments.Merge(nil, map[string]decimal.Decimal{key: p.Amount})
	return nil
}

func (s *Store) UpsertAgreedPayments(_ context.Context, a core.UpsertAgreedPayments) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.live(a.StudentID)
	if err != nil {
		return err
	}
	agreed := make(map[string]string, len(a.AgreedPayments))
	for k, v := range a.AgreedPayments {
		agreed[k] = v.String()
	}
	e.rec.Payments = e.rec.Payments.Merge(agreed, nil)
	return nil
}

func (s *Store) live(id string) (*entry, error) {
	e, ok := s.students[id]
	if !ok || e.deleted {
		return nil, fmt.Errorf("%w: %s", store.ErrStudentNotFound, id)
	}
	return e, nil
}

func readSeed(path string) ([]core.StudentRecord, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var recs []core.StudentRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return recs, nil
}
