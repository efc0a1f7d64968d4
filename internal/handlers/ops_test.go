package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"beacon/internal/derive"
	"beacon/internal/handlers"
	"beacon/internal/manager"
	"beacon/internal/models"
)

type fakeEngine struct {
	samples map[models.DeviceID]map[string]map[string]models.Sample
	ranks   []models.Rank
	family  string
	byRate  bool
}

func (f *fakeEngine) Stats() manager.Stats {
	return manager.Stats{Nodes: 2, ByProtocol: map[models.Protocol]int{models.ProtocolICMP: 2}}
}

func (f *fakeEngine) Nodes() []manager.NodeInfo {
	return []manager.NodeInfo{{ID: 1, Protocol: models.ProtocolICMP, State: "idle"}}
}

func (f *fakeEngine) Samples(id models.DeviceID) map[string]map[string]models.Sample {
	return f.samples[id]
}

func (f *fakeEngine) TopMetrics(ids []models.DeviceID, family string, byRate bool) ([]models.Rank, error) {
	f.family, f.byRate = family, byRate
	if family != "hrprocessorload" {
		return nil, fmt.Errorf("%w %q", derive.ErrUnknownMetric, family)
	}
	return f.ranks, nil
}

type health struct{ err error }

func (h health) HealthCheck(ctx context.Context) error { return h.err }

func serve(t *testing.T, ops *handlers.Ops, path string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	ops.Register(mux)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealth(t *testing.T) {
	w := serve(t, handlers.NewOps(&fakeEngine{}, health{}, nil), "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	w = serve(t, handlers.NewOps(&fakeEngine{}, health{err: errors.New("producer is closed")}, nil), "/health")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", w.Code)
	}
}

func TestStatsMergesExtra(t *testing.T) {
	extra := func() map[string]any { return map[string]any{"worker": map[string]int{"processed": 5}} }
	w := serve(t, handlers.NewOps(&fakeEngine{}, nil, extra), "/stats")

	var resp struct {
		Manager manager.Stats  `json:"manager"`
		Worker  map[string]int `json:"worker"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Manager.Nodes != 2 || resp.Worker["processed"] != 5 {
		t.Errorf("unexpected stats: %+v", resp)
	}
}

func TestStatsEncodeFailureKeepsStatus(t *testing.T) {
	extra := func() map[string]any { return map[string]any{"bad": make(chan int)} }
	w := serve(t, handlers.NewOps(&fakeEngine{}, nil, extra), "/stats")

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("unexpected content type %q", ct)
	}
}

func TestSamples(t *testing.T) {
	engine := &fakeEngine{samples: map[models.DeviceID]map[string]map[string]models.Sample{
		7: {
			"2": {"1.3.6.1.2.1.25.3.3.1.2": {Value: "40", Limit: 30, Critical: true}},
			"1": {"1.3.6.1.2.1.25.3.3.1.2": {Value: "20"}},
		},
	}}
	ops := handlers.NewOps(engine, nil, nil)

	w := serve(t, ops, "/nodes/7/samples")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp []struct {
		Index    string `json:"index"`
		OID      string `json:"oid"`
		Value    string `json:"value"`
		Critical bool   `json:"critical"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp) != 2 || resp[0].Index != "1" || resp[1].Value != "40" || !resp[1].Critical {
		t.Errorf("unexpected samples: %+v", resp)
	}

	if w := serve(t, ops, "/nodes/8/samples"); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown device, got %d", w.Code)
	}
	if w := serve(t, ops, "/nodes/abc/samples"); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad id, got %d", w.Code)
	}
}

func TestTop(t *testing.T) {
	engine := &fakeEngine{ranks: []models.Rank{
		{DeviceID: 2, Max: &models.Max{DeviceID: 2, Index: "1", Value: 90, Rate: 90}},
		{DeviceID: 1, Max: &models.Max{DeviceID: 1, Index: "1", Value: 10, Rate: 10}},
		{DeviceID: 3},
	}}
	ops := handlers.NewOps(engine, nil, nil)

	w := serve(t, ops, "/top/hrprocessorload?rate=true&limit=2")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if !engine.byRate {
		t.Error("rate query not passed through")
	}

	var resp []models.Rank
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp) != 2 || resp[0].DeviceID != 2 {
		t.Errorf("unexpected ranking: %+v", resp)
	}

	if w := serve(t, ops, "/top/bogus"); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown family, got %d", w.Code)
	}
}

func TestNodes(t *testing.T) {
	w := serve(t, handlers.NewOps(&fakeEngine{}, nil, nil), "/nodes")

	var resp []manager.NodeInfo
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp) != 1 || resp[0].State != "idle" {
		t.Errorf("unexpected nodes: %+v", resp)
	}
}
