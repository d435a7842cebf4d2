package handlers

import (
	"net/http"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if job, ok := a.Jobs.Active(); ok {
		body["active_job"] = job.ID
	}
	a.json(w, http.StatusOK, body)
}
