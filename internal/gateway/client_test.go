package gateway_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/inercia/hermes/internal/gateway"
)

// fakeServer is an in-memory Jupyter kernel API.
type fakeServer struct {
	token string

	mu      sync.Mutex
	kernels []gateway.Kernel
}

func (s *fakeServer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/kernelspecs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{
			"default": "python3",
			"kernelspecs": map[string]any{
				"python3": map[string]any{
					"name": "python3",
					"spec": map[string]any{"language": "python", "display_name": "Python 3"},
				},
				"ir": map[string]any{
					"name": "ir",
					"spec": map[string]any{"language": "R", "display_name": "R"},
				},
			},
		})
	})
	mux.HandleFunc("GET /api/kernels", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		writeJSON(t, w, http.StatusOK, s.kernels)
	})
	mux.HandleFunc("POST /api/kernels", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Name == "" {
			req.Name = "python3"
		}
		if req.Name != "python3" && req.Name != "ir" {
			http.Error(w, "No such kernel named "+req.Name, http.StatusInternalServerError)
			return
		}
		k := gateway.Kernel{ID: uuid.NewString(), Name: req.Name, ExecutionState: "starting"}
		s.mu.Lock()
		s.kernels = append(s.kernels, k)
		s.mu.Unlock()
		writeJSON(t, w, http.StatusCreated, k)
	})
	mux.HandleFunc("GET /api/kernels/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, k := range s.kernels {
			if k.ID == r.PathValue("id") {
				writeJSON(t, w, http.StatusOK, k)
				return
			}
		}
		http.NotFound(w, r)
	})
	mux.HandleFunc("DELETE /api/kernels/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, k := range s.kernels {
			if k.ID == r.PathValue("id") {
				s.kernels = append(s.kernels[:i], s.kernels[i+1:]...)
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		http.NotFound(w, r)
	})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" && r.Header.Get("Authorization") != "token "+s.token {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		mux.ServeHTTP(w, r)
	})
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func newTestClient(t *testing.T, fs *fakeServer, opts ...gateway.Option) *gateway.Client {
	t.Helper()
	srv := httptest.NewServer(fs.handler(t))
	t.Cleanup(srv.Close)
	return gateway.New(srv.URL, opts...)
}

func TestClient_KernelLifecycle(t *testing.T) {
	fs := &fakeServer{}
	c := newTestClient(t, fs)

	kernels, err := c.ListKernels()
	if err != nil {
		t.Fatalf("ListKernels failed: %v", err)
	}
	if len(kernels) != 0 {
		t.Fatalf("ListKernels = %v, want empty", kernels)
	}

	k, err := c.StartKernel("python3")
	if err != nil {
		t.Fatalf("StartKernel failed: %v", err)
	}
	if k.ID == "" || k.Name != "python3" {
		t.Errorf("StartKernel = %+v", k)
	}

	got, err := c.GetKernel(k.ID)
	if err != nil {
		t.Fatalf("GetKernel failed: %v", err)
	}
	if diff := cmp.Diff(k, got); diff != "" {
		t.Errorf("GetKernel mismatch (-want +got):\n%s", diff)
	}

	kernels, _ = c.ListKernels()
	if len(kernels) != 1 {
		t.Errorf("ListKernels returned %d kernels, want 1", len(kernels))
	}

	if err := c.ShutdownKernel(k.ID); err != nil {
		t.Fatalf("ShutdownKernel failed: %v", err)
	}
	if _, err := c.GetKernel(k.ID); !errors.Is(err, gateway.ErrNotFound) {
		t.Errorf("GetKernel after shutdown = %v, want ErrNotFound", err)
	}
	if err := c.ShutdownKernel(k.ID); !errors.Is(err, gateway.ErrNotFound) {
		t.Errorf("second ShutdownKernel = %v, want ErrNotFound", err)
	}
}

func TestClient_StartKernelUnknown(t *testing.T) {
	c := newTestClient(t, &fakeServer{})
	_, err := c.StartKernel("cobol")
	if err == nil {
		t.Fatal("StartKernel succeeded, want error")
	}
	if errors.Is(err, gateway.ErrNotFound) {
		t.Errorf("StartKernel error = %v, should not be ErrNotFound", err)
	}
}

func TestClient_KernelSpecs(t *testing.T) {
	c := newTestClient(t, &fakeServer{})

	specs, err := c.ListKernelSpecs()
	if err != nil {
		t.Fatalf("ListKernelSpecs failed: %v", err)
	}
	if specs.Default != "python3" || len(specs.KernelSpecs) != 2 {
		t.Errorf("ListKernelSpecs = %+v", specs)
	}

	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"python3", "python", false},
		{"ir", "R", false},
		{"", "python", false},
		{"cobol", "", true},
	}
	for _, tt := range tests {
		got, err := c.Language(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("Language(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("Language(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestClient_Token(t *testing.T) {
	fs := &fakeServer{token: "secret"}

	if _, err := newTestClient(t, fs).ListKernels(); err == nil {
		t.Error("ListKernels without token succeeded, want error")
	}
	if _, err := newTestClient(t, fs, gateway.WithToken("secret")).ListKernels(); err != nil {
		t.Errorf("ListKernels with token failed: %v", err)
	}
}

func TestClient_Resolve(t *testing.T) {
	fs := &fakeServer{}
	c := newTestClient(t, fs)

	// Nothing running: a kernel is started.
	k, started, err := c.Resolve("", "python3")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !started {
		t.Error("Resolve started = false, want true")
	}

	// Running kernel is reused.
	again, started, err := c.Resolve("", "python3")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if started || again.ID != k.ID {
		t.Errorf("Resolve = %s (started %v), want reuse of %s", again.ID, started, k.ID)
	}

	// A different name starts a new kernel.
	r, started, err := c.Resolve("", "ir")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !started || r.Name != "ir" {
		t.Errorf("Resolve(ir) = %+v (started %v)", r, started)
	}

	// Explicit IDs must exist.
	if _, _, err := c.Resolve("missing", "python3"); !errors.Is(err, gateway.ErrNotFound) {
		t.Errorf("Resolve(missing) = %v, want ErrNotFound", err)
	}
	byID, _, err := c.Resolve(k.ID, "")
	if err != nil || byID.ID != k.ID {
		t.Errorf("Resolve(%s) = %v, %v", k.ID, byID, err)
	}
}

func TestClient_BaseWSURL(t *testing.T) {
	tests := []struct {
		base string
		opts []gateway.Option
		want string
	}{
		{"http://localhost:8888", nil, "ws://localhost:8888"},
		{"https://hub.example.com/user/x/", nil, "wss://hub.example.com/user/x"},
		{"http://localhost:8888", []gateway.Option{gateway.WithWSURL("ws://proxy:9999/")}, "ws://proxy:9999"},
	}
	for _, tt := range tests {
		if got := gateway.New(tt.base, tt.opts...).BaseWSURL(); got != tt.want {
			t.Errorf("BaseWSURL(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}
