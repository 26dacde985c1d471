package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"tuition/internal/core"
)

const maxBodyBytes = 1 << 20

// decodeJSON reads one JSON value from the body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty request body")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	if dec.More() {
		return errors.New("invalid request body: trailing data")
	}
	return nil
}

// period returns the period query parameter or the configured default.
func (s *Server) period(r *http.Request) string {
	if p := strings.TrimSpace(r.URL.Query().Get("period")); p != "" {
		return p
	}
	return s.defaultPeriod
}

// sanitizeText drops control characters other than tab and newlines and trims.
func sanitizeText(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s))
}

func sanitizeRecord(rec core.StudentRecord) core.StudentRecord {
	rec.Name = sanitizeText(rec.Name)
	rec.Observations = sanitizeText(rec.Observations)
	// A record sent without payments gets a zeroed ledger.
	rec.Payments = core.LedgerFromMaps(rec.Payments.AgreedValues(), rec.Payments.RealValues())
	return rec
}
