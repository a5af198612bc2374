package api

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/indigoray/civitai-downloader/internal/testutil"
)

func TestCall_DecodesEnvelope(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	mock.SetHandler("collection.getById", func(w http.ResponseWriter, r *http.Request) {
		testutil.WritePage(w, http.StatusOK, `{"collection": {"id": 42, "name": "Landscapes"}}`)
	})

	client := NewClient(Config{BaseURL: mock.URL(), Token: "test-token"})

	var out struct {
		Collection struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
		} `json:"collection"`
	}
	if err := client.Call(context.Background(), "collection.getById", map[string]any{"id": 42}, &out); err != nil {
		t.Fatalf("Call failed: %v", err)
	}

	if out.Collection.ID != 42 || out.Collection.Name != "Landscapes" {
		t.Errorf("Decoded payload = %+v", out.Collection)
	}
}

func TestCall_SendsBearerTokenAndInput(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	var gotAuth string
	mock.SetHandler(ProcedureImages, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		testutil.WritePage(w, http.StatusOK, `{"items": []}`)
	})

	client := NewClient(Config{BaseURL: mock.URL(), Token: "secret"})

	q := Query{Username: "painter"}
	if err := client.Call(context.Background(), ProcedureImages, q.input(nil), &imagePage{}); err != nil {
		t.Fatalf("Call failed: %v", err)
	}

	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization header = %q, want Bearer secret", gotAuth)
	}

	input := mock.LastInput(ProcedureImages)
	if input["username"] != "painter" {
		t.Errorf("input username = %v, want painter", input["username"])
	}
	if input["sort"] != "Newest" {
		t.Errorf("input sort = %v, want Newest", input["sort"])
	}
	if limit, ok := input["limit"].(float64); !ok || int(limit) != PageLimit {
		t.Errorf("input limit = %v, want %d", input["limit"], PageLimit)
	}
}

func TestCall_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   ErrorClass
	}{
		{"server error", http.StatusInternalServerError, ErrorClassServer},
		{"bad gateway", http.StatusBadGateway, ErrorClassServer},
		{"rate limited", http.StatusTooManyRequests, ErrorClassRateLimit},
		{"not found", http.StatusNotFound, ErrorClassClient},
		{"unauthorized", http.StatusUnauthorized, ErrorClassClient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockAPI()
			defer mock.Close()
			mock.SetStatus(ProcedureImages, tt.status)

			client := NewClient(Config{BaseURL: mock.URL()})

			err := client.Call(context.Background(), ProcedureImages, map[string]any{}, nil)
			if err == nil {
				t.Fatal("Expected error")
			}

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("Expected *APIError, got %T: %v", err, err)
			}
			if apiErr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, tt.status)
			}
			if apiErr.ErrorClass != tt.want {
				t.Errorf("ErrorClass = %v, want %v", apiErr.ErrorClass, tt.want)
			}
		})
	}
}

func TestCall_NetworkError(t *testing.T) {
	// Point at a closed server.
	mock := testutil.NewMockAPI()
	url := mock.URL()
	mock.Close()

	client := NewClient(Config{BaseURL: url})

	err := client.Call(context.Background(), ProcedureImages, map[string]any{}, nil)
	if err == nil {
		t.Fatal("Expected error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected *APIError, got %T: %v", err, err)
	}
	if apiErr.ErrorClass != ErrorClassNetwork {
		t.Errorf("ErrorClass = %v, want %v", apiErr.ErrorClass, ErrorClassNetwork)
	}
}
