package capability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestGetJSON_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		w.Write([]byte(`{"value":42}`))
	}))
	defer srv.Close()

	var out struct{ Value int }
	if err := GetJSON(context.Background(), SharedHTTPClient(5*time.Second), srv.URL, "test", &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if out.Value != 42 {
		t.Errorf("value = %d", out.Value)
	}
}

func TestPostJSON_OpenAIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"Incorrect API key provided","code":"invalid_api_key"}}`))
	}))
	defer srv.Close()

	var out map[string]any
	err := PostJSON(context.Background(), SharedHTTPClient(5*time.Second), srv.URL, "image api",
		map[string]string{"Authorization": "Bearer k"}, map[string]string{"a": "b"}, &out)

	var herr *HTTPError
	if !errors.As(err, &herr) {
		t.Fatalf("expected *HTTPError, got %v", err)
	}
	if herr.Status != 401 {
		t.Errorf("status = %d", herr.Status)
	}
	if !strings.Contains(err.Error(), "status 401") || !strings.Contains(err.Error(), "invalid_api_key") {
		t.Errorf("error text = %q", err.Error())
	}
}

func TestDoJSON_PlainErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broke", http.StatusBadGateway)
	}))
	defer srv.Close()

	var out any
	err := GetJSON(context.Background(), SharedHTTPClient(5*time.Second), srv.URL, "svc", &out)
	if err == nil || !strings.Contains(err.Error(), "upstream broke") {
		t.Errorf("err = %v", err)
	}
}

func TestDoJSON_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	var out any
	err := GetJSON(context.Background(), SharedHTTPClient(5*time.Second), srv.URL, "svc", &out)
	if err == nil || !strings.Contains(err.Error(), "decode") {
		t.Errorf("err = %v", err)
	}
}
