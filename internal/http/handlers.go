package http

import (
	"net/http"
	"strings"

	"tuition/internal/core"
	"tuition/internal/services"
)

func (s *Server) handleListStudents(w http.ResponseWriter, r *http.Request) {
	view, err := s.ledger.Load(r.Context(), s.period(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	period := s.period(r)
	stats, err := s.ledger.Statistics(r.Context(), period)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		PeriodID   string          `json:"period_id"`
		Statistics core.Statistics `json:"statistics"`
	}{period, stats})
}

type editRequest struct {
	Student core.StudentRecord `json:"student"`
	Edit    services.Edit      `json:"edit"`
}

// handleEdit runs one edit on the record in the body and returns the result.
// Nothing is stored.
func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	rec, err := s.ledger.ApplyEdit(sanitizeRecord(req.Student), req.Edit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type saveRequest struct {
	// Original is the snapshot the client loaded. When absent the stored
	// copy is used.
	Original *core.StudentRecord `json:"original,omitempty"`
	Edited   core.StudentRecord  `json:"edited"`
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	edited := sanitizeRecord(req.Edited)
	if edited.PeriodID == "" {
		edited.PeriodID = s.defaultPeriod
	}

	var (
		res services.SaveResult
		err error
	)
	if req.Original != nil {
		res, err = s.ledger.Save(r.Context(), req.Original, edited)
	} else {
		res, err = s.ledger.SaveStudent(r.Context(), edited)
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	status := http.StatusOK
	if len(res.Operations) > 0 && res.Operations[0] == string(core.OpCreateStudent) {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "missing student id")
		return
	}
	if err := s.ledger.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
