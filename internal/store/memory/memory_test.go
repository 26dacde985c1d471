package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"tuition/internal/core"
	"tuition/internal/store"
)

var _ store.Store = (*Store)(nil)

func TestCreateFetchAndDelete(t *testing.T) {
	ctx := context.Background()
	s := New()

	created, err := s.CreateStudent(ctx, core.NewStudent("2025", "Ana"))
	if err != nil || created.ID == "" {
		t.Fatalf("unexpected create: rec=%+v err=%v", created, err)
	}
	if _, err := s.CreateStudent(ctx, core.NewStudent("2026", "Bea")); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.FetchStudents(ctx, "2025")
	if err != nil || len(got) != 1 || got[0].Name != "Ana" {
		t.Fatalf("unexpected fetch: %v err=%v", got, err)
	}

	if err := s.DeleteStudent(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, _ = s.FetchStudents(ctx, "2025")
	if len(got) != 0 {
		t.Fatalf("deleted student still listed: %v", got)
	}
	if _, err := s.GetStudent(ctx, created.ID); !errors.Is(err, store.ErrStudentNotFound) {
		t.Fatalf("expected ErrStudentNotFound, got %v", err)
	}
}

func TestCreateRejectsInvalid(t *testing.T) {
	if _, err := New().CreateStudent(context.Background(), core.NewStudent("2025", "")); !errors.Is(err, core.ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
}

func TestUpsertPayments(t *testing.T) {
	ctx := context.Background()
	s := New()
	rec, _ := s.CreateStudent(ctx, core.NewStudent("2025", "Ana"))

	month := 10
	if err := s.UpsertPayment(ctx, core.UpsertPayment{StudentID: rec.ID, Amount: decimal.NewFromInt(120), PaymentType: core.PaymentMonthly, Month: &month}); err != nil {
		t.Fatalf("upsert payment: %v", err)
	}
	if err := s.UpsertPayment(ctx, core.UpsertPayment{StudentID: rec.ID, Amount: decimal.NewFromInt(30), PaymentType: core.PaymentInsurance}); err != nil {
		t.Fatalf("upsert insurance: %v", err)
	}
	if err := s.UpsertAgreedPayments(ctx, core.UpsertAgreedPayments{
		StudentID:      rec.ID,
		AgreedPayments: map[string]decimal.Decimal{"m10_agreed": decimal.NewFromInt(120)},
	}); err != nil {
		t.Fatalf("upsert agreed: %v", err)
	}

	got, _ := s.GetStudent(ctx, rec.ID)
	if !got.Payments.Real("m10_real").Equal(decimal.NewFromInt(120)) {
		t.Fatalf("unexpected m10_real %s", got.Payments.Real("m10_real"))
	}
	if !got.Payments.Real(core.InsuranceRealKey).Equal(decimal.NewFromInt(30)) {
		t.Fatalf("unexpected insurance %s", got.Payments.Real(core.InsuranceRealKey))
	}
	if got.Payments.Agreed("m10_agreed") != "120" {
		t.Fatalf("unexpected m10_agreed %s", got.Payments.Agreed("m10_agreed"))
	}

	bad := 7
	if err := s.UpsertPayment(ctx, core.UpsertPayment{StudentID: rec.ID, PaymentType: core.PaymentMonthly, Month: &bad}); err == nil {
		t.Fatalf("expected error for July")
	}
	if err := s.UpsertPayment(ctx, core.UpsertPayment{StudentID: "missing", PaymentType: core.PaymentInsurance}); !errors.Is(err, store.ErrStudentNotFound) {
		t.Fatalf("expected ErrStudentNotFound, got %v", err)
	}
}

func TestUpdateStudentInfo(t *testing.T) {
	ctx := context.Background()
	s := New()
	rec, _ := s.CreateStudent(ctx, core.NewStudent("2025", "Ana"))
	err := s.UpdateStudentInfo(ctx, core.UpdateStudentInfo{ID: rec.ID, Name: "Ana B", JoinedMonth: 11, IsLeft: true, Observations: "moved"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := s.GetStudent(ctx, rec.ID)
	if got.Name != "Ana B" || got.JoinedMonth != 11 || !got.IsLeft || got.Observations != "moved" {
		t.Fatalf("unexpected record %+v", got)
	}
}

func TestNewFromFiles(t *testing.T) {
	dir := t.TempDir()
	empty, err := NewFromFiles(dir)
	if err != nil {
		t.Fatalf("missing seed file should not fail: %v", err)
	}
	if got, _ := empty.FetchStudents(context.Background(), "2025"); len(got) != 0 {
		t.Fatalf("expected empty store without seed file")
	}

	seed := `[{"id":"s-1","school_year_period_id":"2025","name":"Ana","joined_month":9,
	  "payments":{"m9_agreed":"200","m9_real":200}},
	 {"school_year_period_id":"2025","name":"Bea","joined_month":10}]`
	if err := os.WriteFile(filepath.Join(dir, "seed_students.json"), []byte(seed), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	seeded, err := NewFromFiles(dir)
	if err != nil {
		t.Fatalf("load seed: %v", err)
	}
	got, _ := seeded.FetchStudents(context.Background(), "2025")
	if len(got) != 2 || got[0].ID != "s-1" || got[1].ID == "" {
		t.Fatalf("unexpected seeded students %+v", got)
	}
	if !got[0].Payments.Real("m9_real").Equal(decimal.NewFromInt(200)) {
		t.Fatalf("seed payments not loaded")
	}
}

func TestNewFromFilesMalformedSeed(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "seed_students.json"), []byte(`[{"name":`), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	if _, err := NewFromFiles(dir); err == nil {
		t.Fatalf("expected error for malformed seed file")
	}
}
