// Package image calls an OpenAI-compatible image generation endpoint.
package image

import (
	"context"
	"errors"
	"net/http"

	"toolbox/internal/capability"
)

// Service names the image API in *capability.HTTPError values.
const Service = "image api"

var ErrNoAPIKey = errors.New("image API key not configured")

type Request struct {
	Prompt  string `json:"prompt"`
	Model   string `json:"model,omitempty"`
	Size    string `json:"size,omitempty"`
	Quality string `json:"quality,omitempty"`
	N       int    `json:"n,omitempty"`
}

// Image carries either a URL or base64 PNG data.
type Image struct {
	URL           string `json:"url,omitempty"`
	B64JSON       string `json:"b64_json,omitempty"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

type Response struct {
	Created int64   `json:"created"`
	Data    []Image `json:"data"`
}

// Generator is the image capability as seen by the generateImage tool.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Client implements Generator against an OpenAI-compatible API.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

// NewClient targets endpoint, the full images/generations URL.
func NewClient(endpoint, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = capability.SharedHTTPClient(0)
	}
	return &Client{endpoint: endpoint, apiKey: apiKey, http: httpClient}
}

// Generate fails with ErrNoAPIKey before any request when no key is set.
func (c *Client) Generate(ctx context.Context, req Request) (*Response, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}

	var resp Response
	if err := capability.PostJSON(ctx, c.http, c.endpoint, Service, headers, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, errors.New(Service + ": response contained no images")
	}
	return &resp, nil
}
