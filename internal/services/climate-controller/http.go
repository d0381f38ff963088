package climate_controller

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strings"

	"github.com/LeonardoBeccarini/climate_controller/internal/model/entities"
	"github.com/LeonardoBeccarini/climate_controller/internal/services/guardrail"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Guardrail validates and applies externally proposed changes.
type Guardrail interface {
	Apply(ctx context.Context, req entities.AutonomousActionRequest) guardrail.Outcome
}

type api struct {
	ctrl      *Controller
	guardrail Guardrail
	ready     func() error
	lg        *zap.Logger
}

// NewHTTPRouter exposes the controller. g and ready may be nil.
func NewHTTPRouter(c *Controller, g Guardrail, gatherer prometheus.Gatherer, ready func() error, lg *zap.Logger) *mux.Router {
	if lg == nil {
		lg = zap.NewNop()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	a := &api{ctrl: c, guardrail: g, ready: ready, lg: lg.Named("http")}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", a.health).Methods(http.MethodGet)
	r.HandleFunc("/readyz", a.readiness).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	r.HandleFunc("/cycle", a.runCycle).Methods(http.MethodPost)
	r.HandleFunc("/plan", a.plan).Methods(http.MethodGet)
	r.HandleFunc("/cooldowns", a.cooldowns).Methods(http.MethodGet)
	r.HandleFunc("/controller", a.status).Methods(http.MethodGet)
	r.HandleFunc("/controller/enable", a.toggle(true)).Methods(http.MethodPost)
	r.HandleFunc("/controller/disable", a.toggle(false)).Methods(http.MethodPost)
	r.HandleFunc("/autonomous", a.autonomous).Methods(http.MethodPost)
	return r
}

func (a *api) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *api) readiness(w http.ResponseWriter, _ *http.Request) {
	if a.ready != nil {
		if err := a.ready(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (a *api) runCycle(w http.ResponseWriter, r *http.Request) {
	// a client hanging up must not stop the plan half way
	evt, err := a.ctrl.Trigger(context.WithoutCancel(r.Context()))
	switch {
	case errors.Is(err, ErrCycleInProgress), errors.Is(err, ErrControllerDisabled):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusOK, evt)
	}
}

func (a *api) plan(w http.ResponseWriter, _ *http.Request) {
	snap, problems, plan, err := a.ctrl.Preview()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"snapshot":        snap,
		"problems":        problems,
		"actions":         plan.Actions,
		"recommendations": plan.Recommendations,
	})
}

func (a *api) cooldowns(w http.ResponseWriter, r *http.Request) {
	entries, err := a.ctrl.Executor().Store().Snapshot(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *api) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": a.ctrl.Enabled(), "running": a.ctrl.Running()})
}

func (a *api) toggle(v bool) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		a.ctrl.SetEnabled(v)
		writeJSON(w, http.StatusOK, map[string]bool{"enabled": a.ctrl.Enabled()})
	}
}

func (a *api) autonomous(w http.ResponseWriter, r *http.Request) {
	if a.guardrail == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "guardrail not configured"})
		return
	}
	var body autonomousBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request: " + err.Error()})
		return
	}
	if strings.TrimSpace(body.Entity) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "entity is required"})
		return
	}
	writeJSON(w, http.StatusOK, a.guardrail.Apply(context.WithoutCancel(r.Context()), body.request()))
}

// autonomousBody distinguishes an omitted value from zero.
type autonomousBody struct {
	Entity       string   `json:"entity"`
	CurrentValue *float64 `json:"current_value"`
	NewValue     *float64 `json:"new_value"`
	Reason       string   `json:"reason"`
}

// request maps omitted values to NaN, which the validator rejects as invalid.
func (b autonomousBody) request() entities.AutonomousActionRequest {
	return entities.AutonomousActionRequest{
		Entity:       b.Entity,
		CurrentValue: valueOrNaN(b.CurrentValue),
		NewValue:     valueOrNaN(b.NewValue),
		Reason:       b.Reason,
	}
}

func valueOrNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
