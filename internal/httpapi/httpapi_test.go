package httpapi_test

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/chatgw/internal/authlimit"
	"github.com/MrWong99/chatgw/internal/httpapi"
	storemock "github.com/MrWong99/chatgw/pkg/objectstore/mock"
)

func newTestServer(t *testing.T) (*httptest.Server, *storemock.Store) {
	t.Helper()
	store := storemock.NewStore()
	gate := authlimit.Gate{
		Resolver: authlimit.Resolver{},
		Limiter:  authlimit.NewLimiter(authlimit.LimiterConfig{RequestsPerMinute: 6000, Burst: 100}),
	}
	handler := httpapi.NewRouter(httpapi.Deps{Store: store, Gate: gate})
	return httptest.NewServer(handler), store
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestUploadRequiresIdentity(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/files", "application/json", bytes.NewReader([]byte(`{}`)))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestUploadAndDownloadRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	body, _ := json.Marshal(map[string]string{
		"filename":       "notes.txt",
		"content_base64": base64.StdEncoding.EncodeToString([]byte("hello file")),
	})
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/files", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Email", "alice@example.com")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload status = %d", resp.StatusCode)
	}

	var uploaded struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		t.Fatal(err)
	}

	dlReq, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/files/download/"+uploaded.Key, nil)
	dlReq.Header.Set("X-User-Email", "alice@example.com")
	dlResp, err := http.DefaultClient.Do(dlReq)
	if err != nil {
		t.Fatal(err)
	}
	defer dlResp.Body.Close()
	if dlResp.StatusCode != http.StatusOK {
		t.Fatalf("download status = %d", dlResp.StatusCode)
	}
}

func TestRateLimitExceeded(t *testing.T) {
	store := storemock.NewStore()
	gate := authlimit.Gate{
		Resolver: authlimit.Resolver{},
		Limiter:  authlimit.NewLimiter(authlimit.LimiterConfig{RequestsPerMinute: 60, Burst: 1}),
	}
	srv := httptest.NewServer(httpapi.NewRouter(httpapi.Deps{Store: store, Gate: gate}))
	defer srv.Close()

	get := func() int {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/files/download/missing", nil)
		req.Header.Set("X-User-Email", "bob@example.com")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		return resp.StatusCode
	}

	first := get()
	second := get()
	if first == http.StatusTooManyRequests {
		t.Fatalf("first request should be admitted, got %d", first)
	}
	if second != http.StatusTooManyRequests {
		t.Fatalf("second request should be rate-limited, got %d", second)
	}
}
