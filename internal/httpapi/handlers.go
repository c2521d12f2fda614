// Package httpapi serves the query and what-if surface of the apiserver:
// pure simulate/sweep endpoints backed by the device model, read endpoints
// backed by Postgres, and action endpoints that route state changes
// through the control subject or guarded storage updates.
package httpapi

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/Praj460/PowerPulse-AI/internal/metrics"
	"github.com/Praj460/PowerPulse-AI/internal/sim"
	"github.com/Praj460/PowerPulse-AI/pkg/dab"
	"github.com/Praj460/PowerPulse-AI/pkg/storage"
)

const requestTimeout = 10 * time.Second

// Store is the persistence surface the handlers read from. Writes stay
// with the monitor; the only mutation allowed here is the guarded
// proposed-to-terminal recommendation transition.
type Store interface {
	ListConverters(ctx context.Context) ([]storage.Converter, error)
	GetSampleSeries(ctx context.Context, converterID string, fromUnixNs, toUnixNs *int64) ([]dab.Sample, error)
	GetHealthSeries(ctx context.Context, converterID string, fromUnixNs, toUnixNs *int64) ([]storage.HealthPoint, error)
	GetLatestHealth(ctx context.Context, converterID string) (storage.HealthPoint, error)
	GetAnomalies(ctx context.Context, converterID string, fromUnixNs, toUnixNs *int64) ([]storage.AnomalyRow, error)
	ListAlerts(ctx context.Context, converterID string, state string) ([]dab.Alert, error)
	ListRecommendations(ctx context.Context, converterID string, status string) ([]dab.Recommendation, error)
	GetRecommendation(ctx context.Context, recID string) (dab.Recommendation, error)
	UpdateRecommendationStatus(ctx context.Context, recID string, status dab.RecommendationStatus) (bool, error)
}

// Publisher is satisfied by *nats.Conn. Acknowledgements are published as
// control commands so alert state is mutated by the monitor alone.
type Publisher interface {
	Publish(subject string, data []byte) error
}

type API struct {
	storage Store
	sim     *sim.Engine
	cache   SweepCache
	control Publisher
	subject string
}

// New wires the API. cache and control may be nil; the sweep endpoint
// then computes every request and acknowledgements report the bus down.
func New(store Store, engine *sim.Engine, cache SweepCache, control Publisher, controlSubject string) *API {
	return &API{
		storage: store,
		sim:     engine,
		cache:   cache,
		control: control,
		subject: controlSubject,
	}
}

func (a *API) Register(r *mux.Router) {
	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/simulate", a.instrument("simulate", a.simulate)).Methods(http.MethodPost)
	v1.HandleFunc("/sweep", a.instrument("sweep", a.sweep)).Methods(http.MethodPost)
	v1.HandleFunc("/converters", a.instrument("converters", a.converters)).Methods(http.MethodGet)
	v1.HandleFunc("/converters/{id}/health", a.instrument("health", a.health)).Methods(http.MethodGet)
	v1.HandleFunc("/converters/{id}/samples", a.instrument("samples", a.samples)).Methods(http.MethodGet)
	v1.HandleFunc("/converters/{id}/anomalies", a.instrument("anomalies", a.anomalies)).Methods(http.MethodGet)
	v1.HandleFunc("/converters/{id}/alerts", a.instrument("alerts", a.alerts)).Methods(http.MethodGet)
	v1.HandleFunc("/converters/{id}/recommendations", a.instrument("recommendations", a.recommendations)).Methods(http.MethodGet)
	v1.HandleFunc("/alerts/{id}/acknowledge", a.instrument("acknowledge", a.acknowledge)).Methods(http.MethodPost)
	v1.HandleFunc("/recommendations/{id}/status", a.instrument("recommendation_status", a.recommendationStatus)).Methods(http.MethodPost)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (a *API) instrument(endpoint string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		h(sw, r)
		status := strconv.Itoa(sw.status)
		metrics.APIRequests.WithLabelValues(endpoint, r.Method, status).Inc()
		metrics.APILatency.WithLabelValues(endpoint, r.Method, status).Observe(time.Since(start).Seconds())
	}
}

func (a *API) simulate(w http.ResponseWriter, r *http.Request) {
	var point dab.OperatingPoint
	if err := json.NewDecoder(r.Body).Decode(&point); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	result, err := a.sim.Simulate(point)
	if err != nil {
		var perr *dab.InvalidParameterError
		if errors.As(err, &perr) {
			http.Error(w, perr.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, fmt.Sprintf("failed to simulate: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"point":  point,
		"result": result,
	})
}

type sweepRequest struct {
	Base  dab.OperatingPoint `json:"base"`
	XAxis sim.Axis           `json:"x_axis"`
	YAxis sim.Axis           `json:"y_axis"`
}

func (a *API) sweep(w http.ResponseWriter, r *http.Request) {
	var req sweepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	key := sweepKey(req)
	if a.cache != nil {
		payload, ok, err := a.cache.Get(ctx, key)
		switch {
		case err != nil:
			metrics.CacheLookups.WithLabelValues("error").Inc()
			log.Printf("sweep cache get: %v", err)
		case ok:
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(payload)
			return
		default:
			metrics.CacheLookups.WithLabelValues("miss").Inc()
		}
	}

	grid, err := a.sim.Sweep(req.Base, req.XAxis, req.YAxis)
	if err != nil {
		var perr *dab.InvalidParameterError
		if errors.As(err, &perr) {
			http.Error(w, perr.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, fmt.Sprintf("failed to sweep: %v", err), http.StatusInternalServerError)
		return
	}

	payload, err := json.Marshal(map[string]interface{}{
		"grid":      grid,
		"zvs_share": grid.ZVSShare(),
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to encode sweep: %v", err), http.StatusInternalServerError)
		return
	}

	if a.cache != nil {
		if err := a.cache.Set(ctx, key, payload); err != nil {
			log.Printf("sweep cache set: %v", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(payload)
}

// sweepKey digests the canonical encode of the decoded request, so
// equivalent bodies with different whitespace share one cache entry.
func sweepKey(req sweepRequest) string {
	canonical, _ := json.Marshal(req)
	return fmt.Sprintf("sweep:%x", sha256.Sum256(canonical))
}

func (a *API) converters(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	list, err := a.storage.ListConverters(ctx)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to list converters: %v", err), http.StatusInternalServerError)
		return
	}

	response := make([]map[string]interface{}, 0, len(list))
	for _, c := range list {
		item := map[string]interface{}{
			"converter_id":       c.ConverterID,
			"first_seen_unix_ns": c.FirstSeenAt.UnixNano(),
			"last_seen_unix_ns":  c.LastSeenAt.UnixNano(),
		}
		if c.Label != "" {
			item["label"] = c.Label
		}
		response = append(response, item)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"converters": response})
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	converterID := mux.Vars(r)["id"]

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if r.URL.Query().Get("latest") == "true" {
		point, err := a.storage.GetLatestHealth(ctx, converterID)
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "no health records", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, fmt.Sprintf("failed to get health: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(point)
		return
	}

	fromUnixNs, toUnixNs, err := parseRange(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	points, err := a.storage.GetHealthSeries(ctx, converterID, fromUnixNs, toUnixNs)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to get health series: %v", err), http.StatusInternalServerError)
		return
	}
	if points == nil {
		points = []storage.HealthPoint{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"converter_id": converterID,
		"points":       points,
	})
}

func (a *API) samples(w http.ResponseWriter, r *http.Request) {
	converterID := mux.Vars(r)["id"]

	fromUnixNs, toUnixNs, err := parseRange(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	samples, err := a.storage.GetSampleSeries(ctx, converterID, fromUnixNs, toUnixNs)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to get samples: %v", err), http.StatusInternalServerError)
		return
	}
	if samples == nil {
		samples = []dab.Sample{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"converter_id": converterID,
		"samples":      samples,
	})
}

func (a *API) anomalies(w http.ResponseWriter, r *http.Request) {
	converterID := mux.Vars(r)["id"]

	fromUnixNs, toUnixNs, err := parseRange(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	anomalies, err := a.storage.GetAnomalies(ctx, converterID, fromUnixNs, toUnixNs)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to get anomalies: %v", err), http.StatusInternalServerError)
		return
	}
	if anomalies == nil {
		anomalies = []storage.AnomalyRow{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"converter_id": converterID,
		"anomalies":    anomalies,
	})
}

func (a *API) alerts(w http.ResponseWriter, r *http.Request) {
	converterID := mux.Vars(r)["id"]

	state := r.URL.Query().Get("state")
	switch dab.AlertState(state) {
	case "", dab.StateActive, dab.StateAcknowledged, dab.StateResolved:
	default:
		http.Error(w, fmt.Sprintf("invalid state filter %q", state), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	alerts, err := a.storage.ListAlerts(ctx, converterID, state)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to list alerts: %v", err), http.StatusInternalServerError)
		return
	}
	if alerts == nil {
		alerts = []dab.Alert{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"converter_id": converterID,
		"alerts":       alerts,
	})
}

func (a *API) recommendations(w http.ResponseWriter, r *http.Request) {
	converterID := mux.Vars(r)["id"]

	status := r.URL.Query().Get("status")
	switch dab.RecommendationStatus(status) {
	case "", dab.RecProposed, dab.RecImplemented, dab.RecDismissed, dab.RecExpired:
	default:
		http.Error(w, fmt.Sprintf("invalid status filter %q", status), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	recs, err := a.storage.ListRecommendations(ctx, converterID, status)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to list recommendations: %v", err), http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []dab.Recommendation{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"converter_id":    converterID,
		"recommendations": recs,
	})
}

func (a *API) acknowledge(w http.ResponseWriter, r *http.Request) {
	alertID := mux.Vars(r)["id"]

	if a.control == nil {
		http.Error(w, "control bus unavailable", http.StatusServiceUnavailable)
		return
	}

	var body struct {
		Actor string `json:"actor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && err != io.EOF {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	cmd := dab.ControlCommand{
		Action:  dab.ActionAcknowledge,
		AlertID: alertID,
		Actor:   body.Actor,
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to encode command: %v", err), http.StatusInternalServerError)
		return
	}
	if err := a.control.Publish(a.subject, payload); err != nil {
		http.Error(w, fmt.Sprintf("failed to publish command: %v", err), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":   "accepted",
		"alert_id": alertID,
	})
}

func (a *API) recommendationStatus(w http.ResponseWriter, r *http.Request) {
	recID := mux.Vars(r)["id"]

	var body struct {
		Status dab.RecommendationStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if !dab.RecProposed.CanTransition(body.Status) {
		http.Error(w, fmt.Sprintf("invalid target status %q", body.Status), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	ok, err := a.storage.UpdateRecommendationStatus(ctx, recID, body.Status)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to update recommendation: %v", err), http.StatusInternalServerError)
		return
	}
	if !ok {
		_, err := a.storage.GetRecommendation(ctx, recID)
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "recommendation not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, fmt.Sprintf("failed to get recommendation: %v", err), http.StatusInternalServerError)
			return
		}
		http.Error(w, "recommendation is not proposed", http.StatusConflict)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"id":     recID,
		"status": body.Status,
	})
}

func parseRange(r *http.Request) (fromUnixNs, toUnixNs *int64, err error) {
	if fromStr := r.URL.Query().Get("from_unix_ns"); fromStr != "" {
		val, perr := strconv.ParseInt(fromStr, 10, 64)
		if perr != nil {
			return nil, nil, errors.New("invalid from_unix_ns")
		}
		fromUnixNs = &val
	}
	if toStr := r.URL.Query().Get("to_unix_ns"); toStr != "" {
		val, perr := strconv.ParseInt(toStr, 10, 64)
		if perr != nil {
			return nil, nil, errors.New("invalid to_unix_ns")
		}
		toUnixNs = &val
	}
	return fromUnixNs, toUnixNs, nil
}
