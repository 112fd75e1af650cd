package agent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ashureev/mindx/internal/domain"
)

func TestHTTPClientInvoke(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/agents/agent-1/invoke" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "secret" {
			t.Errorf("missing api key header")
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success":  true,
			"response": map[string]any{"result": "```json\n{\"response_message\": \"hi\"}\n```"},
		})
	}))
	defer srv.Close()

	c, err := NewHTTPClient(HTTPClientConfig{BaseURL: srv.URL + "/", APIKey: "secret"})
	if err != nil {
		t.Fatalf("NewHTTPClient failed: %v", err)
	}
	defer func() { _ = c.Close() }()

	v, err := c.Invoke(context.Background(), Request{AgentID: "agent-1", Message: "hello"})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if s, _ := v.Text("response_message"); s != "hi" {
		t.Fatalf("unexpected verdict: %v", v)
	}
	if gotBody["message"] != "hello" {
		t.Fatalf("unexpected request body: %v", gotBody)
	}
	if assets, ok := gotBody["assets"].([]any); !ok || len(assets) != 0 {
		t.Fatalf("expected empty assets array, got %v", gotBody["assets"])
	}
}

func TestHTTPClientInvokeFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"non-2xx", http.StatusBadGateway, `upstream down`},
		{"success false", http.StatusOK, `{"success":false,"error":"quota"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			c, err := NewHTTPClient(HTTPClientConfig{BaseURL: srv.URL})
			if err != nil {
				t.Fatalf("NewHTTPClient failed: %v", err)
			}
			if _, err := c.Invoke(context.Background(), Request{AgentID: "a"}); !errors.Is(err, ErrRejected) {
				t.Fatalf("expected ErrRejected, got %v", err)
			}
		})
	}
}

func TestHTTPClientUploadEvidence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		files := r.MultipartForm.File["files"]
		if len(files) != 1 || files[0].Filename != "my_photo.png" {
			t.Errorf("unexpected files: %+v", files)
		}
		_, _ = io.WriteString(w, `{"success":true,"asset_ids":["asset-1"]}`)
	}))
	defer srv.Close()

	c, err := NewHTTPClient(HTTPClientConfig{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewHTTPClient failed: %v", err)
	}
	ids, err := c.UploadEvidence(context.Background(), domain.Evidence{
		FileName: "../my photo.png",
		Data:     []byte("\x89PNG\r\n\x1a\n"),
	})
	if err != nil {
		t.Fatalf("UploadEvidence failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "asset-1" {
		t.Fatalf("unexpected ids: %v", ids)
	}
}

func TestNewHTTPClientRequiresBaseURL(t *testing.T) {
	if _, err := NewHTTPClient(HTTPClientConfig{}); err == nil {
		t.Fatal("expected error for empty base url")
	}
}
