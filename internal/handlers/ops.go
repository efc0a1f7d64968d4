// Package handlers serves the read-only operations API of the daemon.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"beacon/internal/derive"
	"beacon/internal/logger"
	"beacon/internal/manager"
	"beacon/internal/models"
)

// Engine is the part of the node manager the API reads from
type Engine interface {
	Stats() manager.Stats
	Nodes() []manager.NodeInfo
	Samples(id models.DeviceID) map[string]map[string]models.Sample
	TopMetrics(ids []models.DeviceID, family string, byRate bool) ([]models.Rank, error)
}

// HealthChecker reports whether events can still be published
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// StatsFunc returns extra runtime statistics merged into /stats
type StatsFunc func() map[string]any

// Ops serves the operations endpoints
type Ops struct {
	engine Engine
	health HealthChecker
	stats  StatsFunc
}

func NewOps(engine Engine, health HealthChecker, stats StatsFunc) *Ops {
	return &Ops{engine: engine, health: health, stats: stats}
}

// Register adds the endpoints to mux
func (o *Ops) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", o.Health)
	mux.HandleFunc("GET /stats", o.Stats)
	mux.HandleFunc("GET /nodes", o.Nodes)
	mux.HandleFunc("GET /nodes/{id}/samples", o.Samples)
	mux.HandleFunc("GET /top/{family}", o.Top)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (o *Ops) Health(w http.ResponseWriter, r *http.Request) {
	if o.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := o.health.HealthCheck(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (o *Ops) Stats(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{"manager": o.engine.Stats()}
	if o.stats != nil {
		for k, v := range o.stats() {
			out[k] = v
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (o *Ops) Nodes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, o.engine.Nodes())
}

// sampleView flattens one stored sample for output
type sampleView struct {
	Index string `json:"index"`
	OID   string `json:"oid"`
	models.Sample
}

func (o *Ops) Samples(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "device id must be an integer"})
		return
	}

	snapshot := o.engine.Samples(models.DeviceID(id))
	if len(snapshot) == 0 {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no samples for device"})
		return
	}

	out := make([]sampleView, 0)
	for index, samples := range snapshot {
		for oid, s := range samples {
			out = append(out, sampleView{Index: index, OID: oid, Sample: s})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Index != out[j].Index {
			return out[i].Index < out[j].Index
		}
		return out[i].OID < out[j].OID
	})

	writeJSON(w, http.StatusOK, out)
}

// Top ranks every node by one family. Query: rate=true ranks by the
// secondary measure, limit=N keeps the first N entries.
func (o *Ops) Top(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	byRate, _ := strconv.ParseBool(q.Get("rate"))

	ranks, err := o.engine.TopMetrics(nil, r.PathValue("family"), byRate)
	if errors.Is(err, derive.ErrUnknownMetric) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit >= 0 && limit < len(ranks) {
		ranks = ranks[:limit]
	}
	writeJSON(w, http.StatusOK, ranks)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log := logger.WithComponent("handlers")
		log.Error().Err(err).Msg("failed to write response")
	}
}
