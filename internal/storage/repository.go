package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tuition/internal/core"
	"tuition/internal/store"

	_ "modernc.org/sqlite"
)

// SQLiteRepository implements store.Store on an embedded SQLite database.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

const studentColumns = `id, period_id, name, joined_month, observations, is_new, is_left`

// FetchStudents implements store.StudentReader
func (r *SQLiteRepository) FetchStudents(ctx context.Context, periodID string) ([]core.StudentRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+studentColumns+` FROM students
		 WHERE period_id = ? AND deleted_at IS NULL
		 ORDER BY created_at, rowid`, periodID)
	if err != nil {
		return nil, fmt.Errorf("query students: %w", err)
	}
	defer rows.Close()

	var out []core.StudentRecord
	for rows.Next() {
		rec, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate students: %w", err)
	}

	ledgers, err := r.loadLedgers(ctx, periodID)
	if err != nil {
		return nil, err
	}
	for i := range out {
		if l, ok := ledgers[out[i].ID]; ok {
			out[i].Payments = l
		}
	}
	return out, nil
}

// GetStudent implements store.StudentReader
func (r *SQLiteRepository) GetStudent(ctx context.Context, id string) (core.StudentRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+studentColumns+` FROM students WHERE id = ? AND deleted_at IS NULL`, id)
	rec, err := scanStudent(row)
	if err == sql.ErrNoRows {
		return core.StudentRecord{}, fmt.Errorf("%w: %s", store.ErrStudentNotFound, id)
	}
	if err != nil {
		return core.StudentRecord{}, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT student_id, entry_key, agreed_amount, real_amount FROM student_payments WHERE student_id = ?`, id)
	if err != nil {
		return core.StudentRecord{}, fmt.Errorf("query payments: %w", err)
	}
	ledgers, err := collectLedgers(rows)
	if err != nil {
		return core.StudentRecord{}, err
	}
	if l, ok := ledgers[id]; ok {
		rec.Payments = l
	}
	return rec, nil
}

func (r *SQLiteRepository) loadLedgers(ctx context.Context, periodID string) (map[string]core.Ledger, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT p.student_id, p.entry_key, p.agreed_amount, p.real_amount
		 FROM student_payments p JOIN students s ON s.id = p.student_id
		 WHERE s.period_id = ? AND s.deleted_at IS NULL`, periodID)
	if err != nil {
		return nil, fmt.Errorf("query payments: %w", err)
	}
	return collectLedgers(rows)
}

// collectLedgers groups payment rows per student. It closes rows.
func collectLedgers(rows *sql.Rows) (map[string]core.Ledger, error) {
	defer rows.Close()
	agreed := make(map[string]map[string]string)
	real := make(map[string]map[string]decimal.Decimal)
	for rows.Next() {
		var studentID, key, a, rl string
		if err := rows.Scan(&studentID, &key, &a, &rl); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		if agreed[studentID] == nil {
			agreed[studentID] = make(map[string]string)
			real[studentID] = make(map[string]decimal.Decimal)
		}
		agreed[studentID][core.AgreedKey(key)] = a
		real[studentID][core.RealKey(key)] = core.ParseAmount(rl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}
	out := make(map[string]core.Ledger, len(agreed))
	for id := range agreed {
		out[id] = core.LedgerFromMaps(agreed[id], real[id])
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStudent(s scanner) (core.StudentRecord, error) {
	var rec core.StudentRecord
	var isNew, isLeft int
	err := s.Scan(&rec.ID, &rec.PeriodID, &rec.Name, &rec.JoinedMonth, &rec.Observations, &isNew, &isLeft)
	if err == sql.ErrNoRows {
		return rec, err
	}
	if err != nil {
		return rec, fmt.Errorf("scan student: %w", err)
	}
	rec.IsNew = isNew != 0
	rec.IsLeft = isLeft != 0
	rec.Payments = core.NewLedger()
	return rec, nil
}

// CreateStudent implements store.StudentWriter
func (r *SQLiteRepository) CreateStudent(ctx context.Context, rec core.StudentRecord) (core.StudentRecord, error) {
	if err := rec.Validate(); err != nil {
		return core.StudentRecord{}, err
	}
	rec.ID = uuid.NewString()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.StudentRecord{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO students (`+studentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.PeriodID, rec.Name, rec.JoinedMonth, rec.Observations, boolInt(rec.IsNew), boolInt(rec.IsLeft))
	if err != nil {
		return core.StudentRecord{}, fmt.Errorf("insert student: %w", err)
	}

	bases := make(map[string]struct{})
	for _, k := range rec.Payments.AgreedKeys() {
		bases[entryKey(k)] = struct{}{}
	}
	for _, k := range rec.Payments.RealKeys() {
		bases[entryKey(k)] = struct{}{}
	}
	for base := range bases {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO student_payments (student_id, entry_key, agreed_amount, real_amount) VALUES (?, ?, ?, ?)`,
			rec.ID, base, rec.Payments.Agreed(core.AgreedKey(base)), rec.Payments.Real(core.RealKey(base)).String())
		if err != nil {
			return core.StudentRecord{}, fmt.Errorf("insert payment %s: %w", base, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return core.StudentRecord{}, fmt.Errorf("commit student: %w", err)
	}

	slog.InfoContext(ctx, "Student saved to SQLite",
		"id", rec.ID,
		"period_id", rec.PeriodID,
		"joined_month", rec.JoinedMonth)

	return rec, nil
}

// UpdateStudentInfo implements store.StudentWriter
func (r *SQLiteRepository) UpdateStudentInfo(ctx context.Context, info core.UpdateStudentInfo) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE students SET name = ?, observations = ?, joined_month = ?, is_new = ?, is_left = ?,
		 updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted_at IS NULL`,
		info.Name, info.Observations, info.JoinedMonth, boolInt(info.IsNew), boolInt(info.IsLeft), info.ID)
	if err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return expectOne(res, info.ID)
}

// DeleteStudent implements store.StudentWriter
func (r *SQLiteRepository) DeleteStudent(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE students SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	if err := expectOne(res, id); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Student soft deleted", "id", id)
	return nil
}

// UpsertPayment implements store.PaymentWriter
func (r *SQLiteRepository) UpsertPayment(ctx context.Context, p core.UpsertPayment) error {
	key, ok := store.PaymentKey(p)
	if !ok {
		return fmt.Errorf("upsert payment: invalid month for student %s", p.StudentID)
	}
	if err := r.requireStudent(ctx, r.db, p.StudentID); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO student_payments (student_id, entry_key, real_amount, updated_by) VALUES (?, ?, ?, ?)
		 ON CONFLICT (student_id, entry_key) DO UPDATE SET
		   real_amount = excluded.real_amount,
		   updated_by = excluded.updated_by,
		   updated_at = CURRENT_TIMESTAMP`,
		p.StudentID, entryKey(key), p.Amount.String(), p.UserID)
	if err != nil {
		return fmt.Errorf("upsert payment: %w", err)
	}
	return nil
}

// UpsertAgreedPayments implements store.PaymentWriter. The batch is written in one transaction.
func (r *SQLiteRepository) UpsertAgreedPayments(ctx context.Context, a core.UpsertAgreedPayments) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := r.requireStudent(ctx, tx, a.StudentID); err != nil {
		return err
	}
	for key, amount := range a.AgreedPayments {
		if !core.IsAgreedKey(key) {
			return fmt.Errorf("upsert agreed payments: %w: %s", core.ErrUnknownKey, key)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO student_payments (student_id, entry_key, agreed_amount, updated_by, updated_at) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (student_id, entry_key) DO UPDATE SET
			   agreed_amount = excluded.agreed_amount,
			   updated_by = excluded.updated_by,
			   updated_at = excluded.updated_at`,
			a.StudentID, entryKey(key), amount.String(), a.UserID, a.Timestamp.UTC())
		if err != nil {
			return fmt.Errorf("upsert agreed payment %s: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit agreed payments: %w", err)
	}
	return nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *SQLiteRepository) requireStudent(ctx context.Context, q querier, id string) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM students WHERE id = ? AND deleted_at IS NULL`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: %s", store.ErrStudentNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("check student: %w", err)
	}
	return nil
}

func expectOne(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", store.ErrStudentNotFound, id)
	}
	return nil
}

// entryKey strips the _agreed/_real suffix: "m9_real" is stored under "m9".
func entryKey(key string) string {
	key = strings.TrimSuffix(key, core.AgreedSuffix)
	return strings.TrimSuffix(key, core.RealSuffix)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
