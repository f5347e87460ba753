package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/Harshitk-cp/lqe"
	"github.com/Harshitk-cp/lqe/internal/api/middleware"
	"github.com/Harshitk-cp/lqe/internal/domain"
	"github.com/Harshitk-cp/lqe/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type SignalHandler struct {
	svc *service.SignalService
}

func NewSignalHandler(svc *service.SignalService) *SignalHandler {
	return &SignalHandler{svc: svc}
}

type beliefRequest struct {
	Estimate *float64 `json:"estimate"`
	Variance *float64 `json:"variance"`
}

func (b beliefRequest) belief() (lqe.Belief, bool) {
	if b.Estimate == nil || b.Variance == nil {
		return lqe.Belief{}, false
	}
	return lqe.New(*b.Estimate, *b.Variance), true
}

type observationRequest struct {
	Measurement *float64 `json:"measurement"`
	Variance    *float64 `json:"variance"`
}

func (o observationRequest) observation() (lqe.Observation, bool) {
	if o.Measurement == nil || o.Variance == nil {
		return lqe.Observation{}, false
	}
	return lqe.Observation{Measurement: *o.Measurement, Variance: *o.Variance}, true
}

// observeRequest accepts either a single observation or a batch.
type observeRequest struct {
	observationRequest
	Observations []observationRequest `json:"observations"`
}

func (req observeRequest) observations() ([]lqe.Observation, error) {
	single := req.Measurement != nil || req.Variance != nil
	if single && req.Observations != nil {
		return nil, errors.New("send either one observation or an observations list, not both")
	}
	if single {
		o, ok := req.observationRequest.observation()
		if !ok {
			return nil, errors.New("measurement and variance are required")
		}
		return []lqe.Observation{o}, nil
	}
	return toObservations(req.Observations)
}

func toObservations(reqs []observationRequest) ([]lqe.Observation, error) {
	obs := make([]lqe.Observation, len(reqs))
	for i, r := range reqs {
		o, ok := r.observation()
		if !ok {
			return nil, errors.New("observation " + strconv.Itoa(i) + ": measurement and variance are required")
		}
		obs[i] = o
	}
	return obs, nil
}

type createSignalRequest struct {
	ExternalID string         `json:"external_id"`
	Name       string         `json:"name"`
	Metadata   map[string]any `json:"metadata"`
	beliefRequest
}

type listSignalsResponse struct {
	Signals []domain.Signal `json:"signals"`
	Count   int             `json:"count"`
}

type smoothRequest struct {
	Initial      beliefRequest        `json:"initial"`
	Observations []observationRequest `json:"observations"`
}

type smoothResponse struct {
	Beliefs []lqe.Belief `json:"beliefs"`
	Final   lqe.Belief   `json:"final"`
	Count   int          `json:"count"`
}

// Create registers a signal with its initial belief.
// POST /v1/signals
func (h *SignalHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createSignalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	initial, ok := req.belief()
	if !ok {
		writeError(w, http.StatusBadRequest, "estimate and variance are required")
		return
	}

	sig := &domain.Signal{
		TenantID:   tenant.ID,
		ExternalID: req.ExternalID,
		Name:       req.Name,
		Metadata:   req.Metadata,
	}
	sig.SetBelief(initial)

	if err := h.svc.Create(r.Context(), sig); err != nil {
		h.writeServiceError(w, r, err, "failed to create signal")
		return
	}

	writeJSON(w, http.StatusCreated, sig)
}

// List returns the tenant's signals, oldest first.
// GET /v1/signals?limit=50&offset=0
func (h *SignalHandler) List(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var opts domain.ListOpts
	var err error
	if v := r.URL.Query().Get("limit"); v != "" {
		if opts.Limit, err = strconv.Atoi(v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if opts.Offset, err = strconv.Atoi(v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
	}

	signals, err := h.svc.List(r.Context(), tenant.ID, opts)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to list signals")
		return
	}
	if signals == nil {
		signals = []domain.Signal{}
	}

	writeJSON(w, http.StatusOK, listSignalsResponse{Signals: signals, Count: len(signals)})
}

// GetByID returns one signal with its current belief.
// GET /v1/signals/{id}
func (h *SignalHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	tenant, id, ok := signalRequest(w, r)
	if !ok {
		return
	}

	sig, err := h.svc.GetByID(r.Context(), id, tenant.ID)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to get signal")
		return
	}

	writeJSON(w, http.StatusOK, sig)
}

// DELETE /v1/signals/{id}
func (h *SignalHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tenant, id, ok := signalRequest(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), id, tenant.ID); err != nil {
		h.writeServiceError(w, r, err, "failed to delete signal")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Observe folds one or more observations into the signal's belief.
// POST /v1/signals/{id}/observations
func (h *SignalHandler) Observe(w http.ResponseWriter, r *http.Request) {
	tenant, id, ok := signalRequest(w, r)
	if !ok {
		return
	}

	var req observeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	obs, err := req.observations()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sig, err := h.svc.Observe(r.Context(), id, tenant.ID, obs...)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to apply observations")
		return
	}

	writeJSON(w, http.StatusOK, sig)
}

// Reset replaces the signal's belief.
// PUT /v1/signals/{id}/belief
func (h *SignalHandler) Reset(w http.ResponseWriter, r *http.Request) {
	tenant, id, ok := signalRequest(w, r)
	if !ok {
		return
	}

	var req beliefRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	b, ok := req.belief()
	if !ok {
		writeError(w, http.StatusBadRequest, "estimate and variance are required")
		return
	}

	sig, err := h.svc.Reset(r.Context(), id, tenant.ID, b)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to reset signal")
		return
	}

	writeJSON(w, http.StatusOK, sig)
}

// Preview applies fuse, evolve or step to the stored belief and returns the
// result without saving it.
// POST /v1/signals/{id}/preview/{op}
func (h *SignalHandler) Preview(w http.ResponseWriter, r *http.Request) {
	tenant, id, ok := signalRequest(w, r)
	if !ok {
		return
	}

	var preview func(context.Context, uuid.UUID, uuid.UUID, lqe.Observation) (lqe.Belief, error)
	switch chi.URLParam(r, "op") {
	case "fuse":
		preview = h.svc.PreviewFuse
	case "evolve":
		preview = h.svc.PreviewEvolve
	case "step":
		preview = h.svc.PreviewStep
	default:
		writeError(w, http.StatusNotFound, "unknown preview operation")
		return
	}

	var req observationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	o, ok := req.observation()
	if !ok {
		writeError(w, http.StatusBadRequest, "measurement and variance are required")
		return
	}

	b, err := preview(r.Context(), id, tenant.ID, o)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to preview")
		return
	}

	writeJSON(w, http.StatusOK, b)
}

// Smooth runs a batch through a fresh estimator. Nothing is stored.
// POST /v1/smooth
func (h *SignalHandler) Smooth(w http.ResponseWriter, r *http.Request) {
	if middleware.TenantFromContext(r.Context()) == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req smoothRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	initial, ok := req.Initial.belief()
	if !ok {
		writeError(w, http.StatusBadRequest, "initial estimate and variance are required")
		return
	}
	obs, err := toObservations(req.Observations)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	beliefs, err := h.svc.Smooth(initial, obs)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to smooth")
		return
	}

	writeJSON(w, http.StatusOK, smoothResponse{
		Beliefs: beliefs,
		Final:   beliefs[len(beliefs)-1],
		Count:   len(beliefs),
	})
}

func (h *SignalHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrSignalNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrSignalConflict),
		errors.Is(err, service.ErrConcurrentUpdate):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrTooManyObservations):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, service.ErrSignalExternalID),
		errors.Is(err, service.ErrSignalName),
		errors.Is(err, service.ErrInvalidBelief),
		errors.Is(err, service.ErrInvalidObservation),
		errors.Is(err, service.ErrNoObservations):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		middleware.LoggerFromContext(r.Context()).Error(fallback, zap.Error(err))
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func signalRequest(w http.ResponseWriter, r *http.Request) (*domain.Tenant, uuid.UUID, bool) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return nil, uuid.Nil, false
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid signal id")
		return nil, uuid.Nil, false
	}
	return tenant, id, true
}
