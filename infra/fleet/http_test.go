package fleet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// fakeOrchestrator mimics the scale endpoints of a container orchestrator.
type fakeOrchestrator struct {
	mu       sync.Mutex
	replicas int
	token    string
}

func (f *fakeOrchestrator) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/deployments/workers/scale", func(w http.ResponseWriter, r *http.Request) {
		if f.token != "" && r.Header.Get("Authorization") != "Bearer "+f.token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(map[string]int{"replicas": f.replicas})
		case http.MethodPut:
			var p struct {
				Replicas int `json:"replicas"`
			}
			if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			f.replicas = p.Replicas
			w.WriteHeader(http.StatusOK)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
	return mux
}

func TestHTTPFleetManager_ReplicasAndScale(t *testing.T) {
	orch := &fakeOrchestrator{replicas: 4, token: "secret"}
	srv := httptest.NewServer(orch.handler())
	defer srv.Close()

	mgr := NewHTTPFleetManager(Config{BaseURL: srv.URL, Deployment: "workers", AuthToken: "secret"})
	ctx := context.Background()

	n, err := mgr.Replicas(ctx)
	if err != nil {
		t.Fatalf("replicas: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 got %d", n)
	}

	if err := mgr.Scale(ctx, 9); err != nil {
		t.Fatalf("scale: %v", err)
	}
	if n, _ := mgr.Replicas(ctx); n != 9 {
		t.Fatalf("expected 9 got %d", n)
	}

	if err := mgr.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestHTTPFleetManager_Unauthorized(t *testing.T) {
	orch := &fakeOrchestrator{replicas: 4, token: "secret"}
	srv := httptest.NewServer(orch.handler())
	defer srv.Close()

	mgr := NewHTTPFleetManager(Config{BaseURL: srv.URL, Deployment: "workers", AuthToken: "wrong"})
	if _, err := mgr.Replicas(context.Background()); err == nil {
		t.Fatalf("expected auth failure")
	}
}
