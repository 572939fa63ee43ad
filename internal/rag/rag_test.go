package rag_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/chatgw/internal/rag"
	"github.com/MrWong99/chatgw/pkg/types"
)

func TestQuery_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/query" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		if body["user"] != "alice@example.com" {
			t.Fatalf("user = %v, want alice@example.com", body["user"])
		}
		if body["data_source"] != "handbook" {
			t.Fatalf("data_source = %v, want handbook", body["data_source"])
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"content": "vacation policy is 20 days per year",
			"metadata": map[string]any{
				"data_source":      "handbook",
				"processing_ms":    42,
				"total_searched":   12,
				"retrieval_method": "hybrid",
				"documents": []map[string]any{
					{"source": "handbook.pdf#p4", "confidence": 0.91, "content_type": "application/pdf"},
				},
			},
		})
	}))
	defer srv.Close()

	client := rag.New(rag.Config{BaseURL: srv.URL})
	result, err := client.Query(context.Background(), "alice@example.com", "handbook", []types.Message{
		{Role: "user", Content: "how many vacation days do I get?"},
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if result.Content != "vacation policy is 20 days per year" {
		t.Fatalf("content = %q", result.Content)
	}
	if result.Metadata.DataSource != "handbook" || result.Metadata.TotalSearched != 12 {
		t.Fatalf("metadata = %+v", result.Metadata)
	}
	if len(result.Metadata.Documents) != 1 || result.Metadata.Documents[0].Source != "handbook.pdf#p4" {
		t.Fatalf("documents = %+v", result.Metadata.Documents)
	}
}

func TestQuery_ErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("index unavailable"))
	}))
	defer srv.Close()

	client := rag.New(rag.Config{BaseURL: srv.URL})
	_, err := client.Query(context.Background(), "alice@example.com", "handbook", []types.Message{
		{Role: "user", Content: "hi"},
	})
	if err == nil {
		t.Fatal("expected error on 500 response")
	}
}

func TestQuery_AuthHeaderSent(t *testing.T) {
	t.Parallel()

	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]any{"content": "", "metadata": map[string]any{}})
	}))
	defer srv.Close()

	client := rag.New(rag.Config{BaseURL: srv.URL, APIKey: "secret-key"})
	if _, err := client.Query(context.Background(), "u", "d", nil); err != nil {
		t.Fatalf("Query: %v", err)
	}
	if gotAuth != "Bearer secret-key" {
		t.Fatalf("Authorization header = %q", gotAuth)
	}
}
