package signalapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/pulse/internal/authmw"
	"github.com/linnemanlabs/pulse/internal/lifecycle"
	"github.com/linnemanlabs/pulse/internal/signal"
	"github.com/linnemanlabs/pulse/internal/triage"
)

func (a *API) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var in signal.Signal
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	// the submitter defaults to the authenticated persona
	if in.SubmitterName == "" {
		in.SubmitterName = authmw.PersonaFromContext(r.Context())
	}

	cs, err := a.svc.Submit(r.Context(), &in)
	if err != nil {
		a.writeServiceError(w, r, err, "failed to submit signal")
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("pulse.signal.id", cs.ID),
		attribute.String("pulse.signal.decision_type", string(cs.DecisionType)),
	)

	writeJSON(w, http.StatusCreated, cs)
}

func (a *API) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("pulse.signal.id", id))

	d, err := a.svc.Get(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err, "failed to get signal", "id", id)
		return
	}

	span.SetAttributes(attribute.String("pulse.signal.status", string(d.Status)))
	writeJSON(w, http.StatusOK, d)
}

func (a *API) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var p triage.Patch
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	d, err := a.svc.Update(r.Context(), id, &p)
	if err != nil {
		a.writeServiceError(w, r, err, "failed to update signal", "id", id)
		return
	}

	a.logger.Info(r.Context(), "signal updated",
		"id", id,
		"status", d.Status,
		"persona", authmw.PersonaFromContext(r.Context()),
	)
	writeJSON(w, http.StatusOK, d)
}

func (a *API) handleLayers(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	layers, err := a.svc.Layers(r.Context(), limit)
	if err != nil {
		a.writeServiceError(w, r, err, "failed to group signals")
		return
	}
	writeJSON(w, http.StatusOK, layers)
}

func (a *API) handleBuckets(w http.ResponseWriter, r *http.Request) {
	b, err := a.svc.Buckets(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err, "failed to bucket signals")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type classifyRequest struct {
	Signals []signal.Signal `json:"signals"`
}

// handleClassify groups a caller-supplied snapshot without persisting it.
func (a *API) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if len(req.Signals) > maxBatch {
		writeError(w, http.StatusBadRequest, "too many signals in batch")
		return
	}
	writeJSON(w, http.StatusOK, a.svc.Classify(req.Signals))
}

func (a *API) handleWorkflow(w http.ResponseWriter, r *http.Request) {
	status := signal.Status(chi.URLParam(r, "status"))
	writeJSON(w, http.StatusOK, lifecycle.WorkflowStageFor(status))
}
