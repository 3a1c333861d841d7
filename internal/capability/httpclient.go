// Package capability holds the shared HTTP plumbing for the external
// collaborators the tools call (weather, image generation).
package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const maxErrorBody = 2048

// SharedHTTPClient returns an HTTP client with connection pooling.
func SharedHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// HTTPError is a non-2xx response from an upstream API.
type HTTPError struct {
	Service string
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: status %d %s", e.Service, e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("%s: status %d: %s", e.Service, e.Status, e.Message)
}

// DoJSON sends req and decodes a 2xx JSON body into out. A non-2xx response
// becomes an *HTTPError whose message is taken from an OpenAI-style
// {"error":{"message":...}} body or {"reason":...} when present.
func DoJSON(client *http.Client, req *http.Request, service string, out any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &HTTPError{Service: service, Status: resp.StatusCode, Message: errorMessage(body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", service, err)
	}
	return nil
}

// GetJSON issues a GET and decodes the JSON response.
func GetJSON(ctx context.Context, client *http.Client, url, service string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", service, err)
	}
	return DoJSON(client, req, service, out)
}

// PostJSON marshals body, POSTs it and decodes the JSON response.
func PostJSON(ctx context.Context, client *http.Client, url, service string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", service, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: %w", service, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return DoJSON(client, req, service, out)
}

func errorMessage(body []byte) string {
	var parsed struct {
		Error  json.RawMessage `json:"error"` // object for OpenAI, bool for Open-Meteo
		Reason string          `json:"reason"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		var apiErr struct {
			Message string `json:"message"`
			Code    any    `json:"code"`
		}
		if json.Unmarshal(parsed.Error, &apiErr) == nil && apiErr.Message != "" {
			if code, ok := apiErr.Code.(string); ok && code != "" {
				return apiErr.Message + " (" + code + ")"
			}
			return apiErr.Message
		}
		if parsed.Reason != "" {
			return parsed.Reason
		}
	}
	return strings.TrimSpace(string(body))
}
