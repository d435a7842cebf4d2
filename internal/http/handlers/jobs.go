package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Lazyjimpressions/ourvidz-sub002/internal/domain"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/lifecycle"
)

type jobResponse struct {
	JobID       string           `json:"job_id"`
	Status      domain.JobStatus `json:"status"`
	RemoteError string           `json:"remote_error,omitempty"`
}

func (a *App) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var req domain.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	jobID, err := a.Jobs.Submit(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, jobResponse{JobID: jobID, Status: domain.JobStatusQueued})
}

func (a *App) ActiveJob(w http.ResponseWriter, r *http.Request) {
	job, ok := a.Jobs.Active()
	if !ok {
		a.error(w, http.StatusNotFound, "not_found", "no active job")
		return
	}
	a.json(w, http.StatusOK, job)
}

// CancelJob answers 200 once local tracking stopped, even if the worker pool
// could not be told; the remote error is reported alongside.
func (a *App) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	resp := jobResponse{JobID: jobID, Status: domain.JobStatusCancelled}
	if err := a.Jobs.Cancel(r.Context(), jobID); err != nil {
		var remote *lifecycle.RemoteCancelError
		if !errors.As(err, &remote) {
			a.fail(w, r, err)
			return
		}
		resp.RemoteError = remote.Err.Error()
	}
	a.json(w, http.StatusOK, resp)
}
