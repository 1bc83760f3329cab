package resilience

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStatsHandlerServesJSON(t *testing.T) {
	f := newOrchestratorFixture()
	f.orchestrator.Run(context.Background(),
		Payload{Prompt: "write the outro", Focus: "copywriting"}, Options{},
		func(ctx context.Context) (interface{}, error) { return "ok", nil })

	server := httptest.NewServer(NewStatsMux(f.orchestrator, nil))
	defer server.Close()

	resp, err := http.Get(server.URL + "/v1/stats")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %s", ct)
	}

	var stats Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.TotalOperations != 1 {
		t.Errorf("total operations = %d", stats.TotalOperations)
	}
	if stats.CacheSize != 1 {
		t.Errorf("cache size = %d", stats.CacheSize)
	}
}

func TestStatsHandlerRejectsWrites(t *testing.T) {
	f := newOrchestratorFixture()
	server := httptest.NewServer(NewStatsMux(f.orchestrator, nil))
	defer server.Close()

	resp, err := http.Post(server.URL+"/v1/stats", "application/json", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}
