package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/Lazyjimpressions/ourvidz-sub002/internal/assets"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/domain"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/events"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/infra"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/messages"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/middleware"
)

// Jobs is the part of lifecycle.Manager the API drives.
type Jobs interface {
	Submit(ctx context.Context, req domain.SubmitRequest) (string, error)
	Active() (domain.GenerationJob, bool)
	Cancel(ctx context.Context, jobID string) error
}

// Assets is the part of assets.Resolver the API drives.
type Assets interface {
	Resolve(ctx context.Context, ref domain.ArtifactRef) (domain.Artifact, error)
	ResolveVisible(ctx context.Context, refs []domain.ArtifactRef) ([]assets.Result, error)
	List(ctx context.Context, filter domain.ListFilter, cursor string) (*domain.AssetPage, error)
	Delete(ctx context.Context, assetID string) (assets.DeleteReport, error)
}

// EventSource feeds the SSE endpoint. *events.Bus satisfies it.
type EventSource interface {
	Subscribe(ctx context.Context) <-chan events.Event
}

// Files serves signed local objects. *storage.FileStore satisfies it.
type Files interface {
	Verify(bucket, key, expires, sig string) error
	Open(bucket, key string) (*os.File, error)
}

type App struct {
	Jobs   Jobs
	Assets Assets
	Stream EventSource
	Logger *infra.Logger

	// Files is nil when objects live in the remote storage API.
	Files Files

	// KeepAlive is the SSE comment interval.
	KeepAlive time.Duration
}

func NewApp(jobs Jobs, resolver Assets, events EventSource, files Files, logger *infra.Logger) *App {
	return &App{
		Jobs:      jobs,
		Assets:    resolver,
		Stream:    events,
		Files:     files,
		Logger:    infra.OrDiscard(logger),
		KeepAlive: 25 * time.Second,
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, errorBody{Error: errCode, Message: message})
}

// fail maps err onto a status code. Submission failures carry the localized
// text users see for failed jobs.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	code, errCode := statusFor(err)
	message := err.Error()
	var subErr *domain.SubmissionError
	if errors.As(err, &subErr) {
		message = messages.Text(messages.Reason(err), middleware.LocaleFromContext(r.Context()))
	}
	evt := a.Logger.Warn()
	if code >= http.StatusInternalServerError {
		evt = a.Logger.Error()
	}
	evt.Err(err).
		Str("request_id", middleware.RequestIDFromContext(r.Context())).
		Int("status", code).
		Msg("request failed")
	a.error(w, code, errCode, message)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrJobActive):
		return http.StatusConflict, "job_active"
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrWorkerUnavailable):
		return http.StatusServiceUnavailable, "worker_unavailable"
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, domain.ErrTimeout):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, domain.ErrNetwork), errors.Is(err, domain.ErrServer):
		return http.StatusBadGateway, "upstream"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
