// Package signalapi exposes the signal triage service over HTTP.
package signalapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/pulse/internal/signal"
	"github.com/linnemanlabs/pulse/internal/triage"
)

// maxBatch caps the number of signals accepted by the stateless classify endpoint.
const maxBatch = 1000

// SignalService defines the business operations signalapi needs.
type SignalService interface {
	Submit(ctx context.Context, s *signal.Signal) (*triage.ClassifiedSignal, error)
	Get(ctx context.Context, id string) (*triage.Detail, error)
	Update(ctx context.Context, id string, p *triage.Patch) (*triage.Detail, error)
	Layers(ctx context.Context, limit int) (triage.DecisionLayers, error)
	Buckets(ctx context.Context) (triage.Buckets, error)
	Classify(signals []signal.Signal) triage.Classification
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    SignalService
}

// New creates a new API handler.
func New(logger log.Logger, svc SignalService) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("signal service is required"))
	}
	return &API{
		logger: logger,
		svc:    svc,
	}
}

// RegisterRoutes attaches API endpoints to the router. mws wrap every
// /api/v1 route, typically authentication.
func (a *API) RegisterRoutes(r chi.Router, mws ...func(http.Handler) http.Handler) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mws...)

		r.Route("/signals", func(r chi.Router) {
			r.Post("/", a.handleSubmit)
			r.Get("/layers", a.handleLayers)
			r.Get("/buckets", a.handleBuckets)
			r.Get("/{id}", a.handleGet)
			r.Patch("/{id}", a.handleUpdate)
		})
		r.Post("/classify", a.handleClassify)
		r.Get("/workflow/{status}", a.handleWorkflow)
	})
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// nothing to do with errors here
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeServiceError maps service errors onto HTTP status codes. Unexpected
// errors are logged and hidden behind a generic message.
func (a *API) writeServiceError(w http.ResponseWriter, r *http.Request, err error, msg string, kv ...any) {
	switch {
	case errors.Is(err, triage.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, triage.ErrInvalidSignal):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, triage.ErrDuplicate):
		writeError(w, http.StatusConflict, "duplicate signal")
	default:
		a.logger.Error(r.Context(), err, msg, kv...)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
