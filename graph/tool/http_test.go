package tool

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPTool_Call(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("X-Api-Key") != "secret" {
			t.Error("expected configured header")
		}
		var in map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"label": "severe", "image_url": in["image_url"]})
	}))
	defer srv.Close()

	h := NewHTTPTool("classify", "classify damage", srv.URL, nil, WithHeader("X-Api-Key", "secret"), WithHTTPClient(srv.Client()))
	if h.Name() != "classify" || h.Description() != "classify damage" {
		t.Fatal("unexpected metadata")
	}

	out, err := h.Call(context.Background(), map[string]interface{}{"image_url": "http://img/1.jpg"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out["label"] != "severe" || out["image_url"] != "http://img/1.jpg" {
		t.Errorf("unexpected output %v", out)
	}
}

func TestHTTPTool_Errors(t *testing.T) {
	t.Run("non-2xx status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not loaded", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, err := NewHTTPTool("x", "", srv.URL, nil).Call(context.Background(), nil)
		var statusErr *HTTPStatusError
		if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusServiceUnavailable {
			t.Fatalf("expected 503 status error, got %v", err)
		}
		if !strings.Contains(statusErr.Body, "model not loaded") {
			t.Errorf("expected body in error, got %q", statusErr.Body)
		}
	})

	t.Run("non-object body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`["not","an","object"]`))
		}))
		defer srv.Close()

		if _, err := NewHTTPTool("x", "", srv.URL, nil).Call(context.Background(), nil); err == nil {
			t.Fatal("expected decode error")
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{}`))
		}))
		defer srv.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := NewHTTPTool("x", "", srv.URL, nil).Call(ctx, nil); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	})
}
