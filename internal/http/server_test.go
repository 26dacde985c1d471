package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tuition/internal/core"
	"tuition/internal/middleware/ratelimit"
	"tuition/internal/services"
	"tuition/internal/store"
	"tuition/internal/store/memory"
)

const testPeriod = "2025-2026"

func newTestServer(t *testing.T, opts Options) (*Server, *memory.Store, core.StudentRecord) {
	t.Helper()
	st := memory.New()
	rec := core.NewStudent(testPeriod, "Ana")
	rec.Payments = core.LedgerFromMaps(map[string]string{"m9_agreed": "200"}, nil)
	created, err := st.CreateStudent(context.Background(), rec)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	svc := services.NewLedgerService(st, nil, services.LedgerConfig{UserID: "tester", StatsTTL: time.Minute, Autocomplete: true})
	if opts.DefaultPeriodID == "" {
		opts.DefaultPeriodID = testPeriod
	}
	return NewServer(":0", svc, opts), st, created
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	s, _, _ := newTestServer(t, Options{})
	w := do(t, s, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing request id header")
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing security headers: %v", w.Header())
	}
}

func TestListStudentsUsesDefaultPeriod(t *testing.T) {
	s, _, _ := newTestServer(t, Options{})
	w := do(t, s, http.MethodGet, "/api/students", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body)
	}
	var view services.PeriodView
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.PeriodID != testPeriod || len(view.Students) != 1 || view.Statistics.Total != 1 {
		t.Fatalf("unexpected view %+v", view)
	}

	w = do(t, s, http.MethodGet, "/api/students?period=2030-2031", "")
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(view.Students) != 0 {
		t.Fatalf("expected empty period, got %+v", view.Students)
	}
}

func TestStats(t *testing.T) {
	s, _, _ := newTestServer(t, Options{})
	w := do(t, s, http.MethodGet, "/api/stats", "")
	var got struct {
		PeriodID   string          `json:"period_id"`
		Statistics core.Statistics `json:"statistics"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.PeriodID != testPeriod || got.Statistics.Total != 1 || got.Statistics.Unregistered != 1 {
		t.Fatalf("unexpected stats %+v", got)
	}
}

func TestEdit(t *testing.T) {
	s, _, rec := newTestServer(t, Options{})
	body, _ := json.Marshal(editRequest{Student: rec, Edit: services.Edit{Action: services.ActionSetReal, Key: "m9_real", Value: "150"}})
	w := do(t, s, http.MethodPost, "/api/students/edit", string(body))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body)
	}
	var got core.StudentRecord
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Payments.Real("m9_real").String() != "150" {
		t.Fatalf("edit not applied: %v", got.Payments.RealValues())
	}
}

func TestEditRecordWithoutPayments(t *testing.T) {
	s, _, _ := newTestServer(t, Options{})
	w := do(t, s, http.MethodPost, "/api/students/edit",
		`{"student":{"name":"Bea","joined_month":9},"edit":{"action":"set_agreed","key":"m10_agreed","value":"500"}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body)
	}
	var got core.StudentRecord
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, m := range core.Months {
		if v := got.Payments.Agreed(core.AgreedKey(m.Key)); v != "500" {
			t.Fatalf("%s: expected 500, got %q", m.Key, v)
		}
	}
}

func TestEditRejections(t *testing.T) {
	s, _, rec := newTestServer(t, Options{})
	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"agreed missing", mustJSON(t, editRequest{Student: rec, Edit: services.Edit{Action: services.ActionSetReal, Key: "m10_real", Value: "50"}}), http.StatusUnprocessableEntity, core.CodeAgreedMissing},
		{"unknown key", mustJSON(t, editRequest{Student: rec, Edit: services.Edit{Action: services.ActionSetAgreed, Key: "m7_agreed", Value: "500"}}), http.StatusUnprocessableEntity, core.CodeUnknownKey},
		{"unknown action", mustJSON(t, editRequest{Student: rec, Edit: services.Edit{Action: "rename"}}), http.StatusBadRequest, "BAD_REQUEST"},
		{"malformed body", `{"student":`, http.StatusBadRequest, "BAD_REQUEST"},
		{"empty body", ``, http.StatusBadRequest, "BAD_REQUEST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, http.MethodPost, "/api/students/edit", tt.body)
			if w.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d: %s", tt.wantCode, w.Code, w.Body)
			}
			var body errorBody
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Code != tt.wantErr {
				t.Fatalf("expected code %s, got %+v", tt.wantErr, body)
			}
		})
	}
}

func TestSaveNewAndExisting(t *testing.T) {
	s, st, rec := newTestServer(t, Options{})

	w := do(t, s, http.MethodPost, "/api/students/save", `{"edited":{"name":"  Bea\u0007 ","joined_month":9}}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body)
	}
	var res services.SaveResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	created, err := st.GetStudent(context.Background(), res.StudentID)
	if err != nil {
		t.Fatalf("created student missing: %v", err)
	}
	if created.Name != "Bea" || created.PeriodID != testPeriod {
		t.Fatalf("unexpected created student %+v", created)
	}

	edited := rec
	edited.Payments = core.LedgerFromMaps(map[string]string{"m9_agreed": "200"}, nil)
	edited.Observations = "sibling discount"
	w = do(t, s, http.MethodPost, "/api/students/save", mustJSON(t, saveRequest{Edited: edited}))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body)
	}
	got, _ := st.GetStudent(context.Background(), rec.ID)
	if got.Observations != "sibling discount" {
		t.Fatalf("save not applied: %+v", got)
	}
}

func TestSaveUnknownStudent(t *testing.T) {
	s, _, rec := newTestServer(t, Options{})
	rec.ID = "missing"
	w := do(t, s, http.MethodPost, "/api/students/save", mustJSON(t, saveRequest{Edited: rec}))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body)
	}
}

func TestDelete(t *testing.T) {
	s, st, rec := newTestServer(t, Options{})
	w := do(t, s, http.MethodDelete, "/api/students/"+rec.ID, "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", w.Code, w.Body)
	}
	if _, err := st.GetStudent(context.Background(), rec.ID); !errors.Is(err, store.ErrStudentNotFound) {
		t.Fatalf("student not deleted: %v", err)
	}
	w = do(t, s, http.MethodDelete, "/api/students/"+rec.ID, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", w.Code)
	}
}

func TestWriteRateLimit(t *testing.T) {
	s, _, _ := newTestServer(t, Options{WriteLimit: ratelimit.Config{Requests: 1, Period: time.Hour}})
	if w := do(t, s, http.MethodDelete, "/api/students/missing", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	w := do(t, s, http.MethodDelete, "/api/students/missing", "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After")
	}
	// Reads are not limited.
	if w := do(t, s, http.MethodGet, "/api/stats", ""); w.Code != http.StatusOK {
		t.Fatalf("expected 200 for read, got %d", w.Code)
	}
}

type failingLedger struct {
	LedgerAPI
	err error
}

func (f failingLedger) Save(context.Context, *core.StudentRecord, core.StudentRecord) (services.SaveResult, error) {
	return services.SaveResult{}, f.err
}

func (f failingLedger) Statistics(context.Context, string) (core.Statistics, error) {
	return core.Statistics{}, f.err
}

func TestServiceErrorMapping(t *testing.T) {
	partial := &services.ApplyError{
		Applied: []core.Operation{core.UpsertPayment{}},
		Failed:  core.UpdateStudentInfo{},
		Err:     errors.New("disk full"),
	}
	s := NewServer(":0", failingLedger{err: partial}, Options{DefaultPeriodID: testPeriod})
	w := do(t, s, http.MethodPost, "/api/students/save", `{"original":{"id":"s-1"},"edited":{"id":"s-1","name":"Ana"}}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	var body errorBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != "PARTIALLY_APPLIED" || len(body.Applied) != 1 || body.Applied[0] != string(core.OpUpsertPayment) {
		t.Fatalf("unexpected body %+v", body)
	}

	s = NewServer(":0", failingLedger{err: errors.New("connection refused")}, Options{DefaultPeriodID: testPeriod})
	if w := do(t, s, http.MethodGet, "/api/stats", ""); w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	if got := clientIP(r); got != "10.0.0.1" {
		t.Fatalf("unexpected ip %q", got)
	}
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := clientIP(r); got != "203.0.113.9" {
		t.Fatalf("unexpected forwarded ip %q", got)
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}
