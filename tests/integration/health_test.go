//go:build integration

package integration

import (
	"encoding/json"
	"net/http"
	"testing"
)

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func getHealth(t *testing.T, path string) healthResponse {
	t.Helper()

	resp := do(t, http.MethodGet, path, "", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("%s: expected 200, got %d", path, resp.StatusCode)
	}

	var body healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode health response: %v", err)
	}
	return body
}

func TestLivez(t *testing.T) {
	body := getHealth(t, "/livez")
	if body.Status != "ok" {
		t.Fatalf("expected status ok, got %q", body.Status)
	}
}

func TestReadyz(t *testing.T) {
	body := getHealth(t, "/readyz")
	if body.Status != "ok" {
		t.Fatalf("expected status ok, got %q", body.Status)
	}
}
