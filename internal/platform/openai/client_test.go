package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/deckrebuild-backend/internal/pkg/httpx"
	"github.com/yungbote/deckrebuild-backend/internal/pkg/logger"
)

const okBody = `{"output":[{"type":"message","role":"assistant","content":[{"type":"output_text","text":"{\"slide_mappings\":[]}"}]}]}`

func testClient(t *testing.T, url string, retries int) *client {
	t.Helper()
	c, err := NewClient(logger.Nop(), Config{APIKey: "sk-test", BaseURL: url, Model: "gpt-4o-mini", MaxRetries: retries})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	cc := c.(*client)
	cc.backoff = time.Millisecond
	return cc
}

func TestGenerateJSONObjectReturnsRawText(t *testing.T) {
	var got responsesRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/responses" {
			t.Errorf("path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("auth header missing")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(okBody))
	}))
	defer srv.Close()

	zero := 0.0
	text, err := testClient(t, srv.URL, 0).GenerateJSONObject(context.Background(), "sys", "usr",
		CallOptions{Model: "gpt-x", MaxOutputTokens: 4000, Temperature: &zero})
	if err != nil {
		t.Fatalf("GenerateJSONObject: %v", err)
	}
	if text != `{"slide_mappings":[]}` {
		t.Fatalf("text: %q", text)
	}
	if got.Model != "gpt-x" || got.MaxOutputTokens != 4000 || got.Temperature == nil || *got.Temperature != 0 {
		t.Fatalf("request: %+v", got)
	}
	if got.Text.Format["type"] != "json_object" {
		t.Fatalf("format: %v", got.Text.Format)
	}
}

func TestRetriesServerErrorsOnly(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(okBody))
	}))
	defer srv.Close()
	if _, err := testClient(t, srv.URL, 2).GenerateJSONObject(context.Background(), "s", "u", CallOptions{}); err != nil {
		t.Fatalf("want success after retry, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls: want=2 got=%d", calls)
	}

	atomic.StoreInt32(&calls, 0)
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer bad.Close()
	_, err := testClient(t, bad.URL, 3).GenerateJSONObject(context.Background(), "s", "u", CallOptions{})
	var sc httpx.HTTPStatusCoder
	if !errors.As(err, &sc) || sc.HTTPStatusCode() != 401 {
		t.Fatalf("want 401 error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("4xx should not be retried, calls=%d", calls)
	}
}

func TestTemperatureFallback(t *testing.T) {
	var withTemp, withoutTemp int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req responsesRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Temperature != nil {
			atomic.AddInt32(&withTemp, 1)
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"Unsupported parameter: 'temperature' is not supported with this model."}}`))
			return
		}
		atomic.AddInt32(&withoutTemp, 1)
		_, _ = w.Write([]byte(okBody))
	}))
	defer srv.Close()
	zero := 0.0
	if _, err := testClient(t, srv.URL, 0).GenerateJSONObject(context.Background(), "s", "u", CallOptions{Temperature: &zero}); err != nil {
		t.Fatalf("GenerateJSONObject: %v", err)
	}
	if withTemp != 1 || withoutTemp != 1 {
		t.Fatalf("calls with=%d without=%d", withTemp, withoutTemp)
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(logger.Nop(), Config{}); err == nil {
		t.Fatalf("want error without api key")
	}
}
