package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"tuition/internal/core"
	applog "tuition/internal/log"
	"tuition/internal/services"
	"tuition/internal/store"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	// Applied lists the operations that reached the store before a save failed.
	Applied []string `json:"applied,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}

// writeServiceError maps err to a status: rejections are 422 with their code,
// unknown students 404, bad edits 400 and store or broker failures 502.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	body := errorBody{Error: err.Error()}
	status := http.StatusBadGateway

	var applyErr *services.ApplyError
	switch {
	case core.IsRejection(err):
		status = http.StatusUnprocessableEntity
		body.Code = core.RejectionCode(err)
	case errors.Is(err, store.ErrStudentNotFound):
		status = http.StatusNotFound
		body.Code = "NOT_FOUND"
	case errors.Is(err, services.ErrUnknownAction):
		status = http.StatusBadRequest
		body.Code = "BAD_REQUEST"
	case errors.As(err, &applyErr):
		body.Code = "PARTIALLY_APPLIED"
		body.Applied = services.OperationKinds(applyErr.Applied)
	}

	fields := applog.NewFields().WithError(err).WithRejection(body.Code)
	if body.Applied != nil {
		fields = fields.WithChangeSet(body.Applied)
	}
	if status >= 500 {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed", fields.ToSlice()...)
	} else {
		applog.FromContext(r.Context()).DebugContext(r.Context(), "Request rejected", fields.ToSlice()...)
	}
	writeJSON(w, status, body)
}
