package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/catalog-search-cache/internal/testutil"
	"github.com/Sternrassler/catalog-search-cache/pkg/filter"
)

func newTestClient(t *testing.T, baseURL string, mutate func(*Config)) *Client {
	t.Helper()
	cfg := DefaultConfig(baseURL)
	cfg.CircuitBreaker = false
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
	}{
		{
			name:   "valid config",
			config: DefaultConfig("http://catalog.local"),
		},
		{
			name:   "trailing slash",
			config: DefaultConfig("https://catalog.local/api/"),
		},
		{
			name:        "empty base url",
			config:      DefaultConfig(""),
			expectError: true,
		},
		{
			name:        "unsupported scheme",
			config:      DefaultConfig("ftp://catalog.local"),
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.config)
			if tt.expectError {
				if err == nil {
					t.Error("Expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if client.httpClient.Timeout != DefaultTimeout {
				t.Errorf("Timeout = %v, want %v", client.httpClient.Timeout, DefaultTimeout)
			}
		})
	}
}

func TestNew_DefaultsZeroValues(t *testing.T) {
	c, err := New(Config{BaseURL: "http://catalog.local"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.httpClient.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, DefaultTimeout)
	}
	if c.config.MaxResponseBytes != DefaultMaxResponseBytes {
		t.Errorf("MaxResponseBytes = %d", c.config.MaxResponseBytes)
	}
	if c.BreakerState() != "disabled" {
		t.Errorf("BreakerState() = %s, want disabled", c.BreakerState())
	}
}

func TestClient_Get(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()
	mock.SetResponse("/catalogo/busca", testutil.NewSearchResponse(`{"resultados":[{"id":7}]}`))

	c := newTestClient(t, mock.URL(), func(cfg *Config) { cfg.UserAgent = "test-agent/1.0" })

	filters := filter.FilterSet{
		"termo":  filter.Str("Encanador"),
		"cidade": filter.Null(),
		"tags":   filter.List(filter.Str("a"), filter.Str("b")),
		"preco":  filter.Num("10.5"),
		"ativo":  filter.Bool(true),
	}

	payload, err := c.Get(context.Background(), "/catalogo/busca", filters)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(payload) != `{"resultados":[{"id":7}]}` {
		t.Errorf("payload = %s", payload)
	}

	req, ok := mock.LastRequest()
	if !ok {
		t.Fatal("no request recorded")
	}
	if req.Method != http.MethodGet {
		t.Errorf("Method = %s, want GET", req.Method)
	}
	if got := req.Query.Get("termo"); got != "Encanador" {
		t.Errorf("termo = %q, want verbatim Encanador", got)
	}
	if _, present := req.Query["cidade"]; present {
		t.Error("null filter should be omitted from the query")
	}
	if got := req.Query["tags"]; len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("tags = %v, want [a b]", got)
	}
	if got := req.Query.Get("preco"); got != "10.5" {
		t.Errorf("preco = %q", got)
	}
	if got := req.Query.Get("ativo"); got != "true" {
		t.Errorf("ativo = %q", got)
	}
	if got := req.Header.Get("User-Agent"); got != "test-agent/1.0" {
		t.Errorf("User-Agent = %q", got)
	}
}

func TestClient_Post(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()
	mock.SetResponse("/catalogo/busca/avancada", testutil.NewSearchResponse(`[]`))

	c := newTestClient(t, mock.URL(), nil)

	filters := filter.FilterSet{
		"termo":     filter.Str("pintor"),
		"preco_max": filter.Int(300),
		"categoria": filter.Null(),
	}

	payload, err := c.Post(context.Background(), "/catalogo/busca/avancada", filters)
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if string(payload) != `[]` {
		t.Errorf("payload = %s", payload)
	}

	req, _ := mock.LastRequest()
	if req.Method != http.MethodPost {
		t.Errorf("Method = %s, want POST", req.Method)
	}
	if ct := req.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var body map[string]any
	if err := json.Unmarshal(req.Body, &body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if body["termo"] != "pintor" || body["preco_max"] != float64(300) {
		t.Errorf("body = %v", body)
	}
	if v, ok := body["categoria"]; !ok || v != nil {
		t.Errorf("categoria = %v (present %v), want explicit null", v, ok)
	}
}

func TestClient_BasePath(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()

	c := newTestClient(t, mock.URL()+"/api/", nil)
	if _, err := c.Get(context.Background(), "catalogo/busca", nil); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	req, _ := mock.LastRequest()
	if req.Path != "/api/catalogo/busca" {
		t.Errorf("Path = %s, want /api/catalogo/busca", req.Path)
	}
}

func TestClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		response   testutil.MockResponse
		wantClass  ErrorClass
		wantStatus int
	}{
		{
			name:       "server error",
			response:   testutil.NewServerErrorResponse(),
			wantClass:  ErrorClassServer,
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "bad gateway",
			response:   testutil.MockResponse{StatusCode: http.StatusBadGateway},
			wantClass:  ErrorClassServer,
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "client error",
			response:   testutil.NewBadRequestResponse(),
			wantClass:  ErrorClassClient,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "not found",
			response:   testutil.MockResponse{StatusCode: http.StatusNotFound},
			wantClass:  ErrorClassClient,
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockCatalog()
			defer mock.Close()
			mock.SetResponse("/catalogo/busca", tt.response)

			c := newTestClient(t, mock.URL(), nil)
			_, err := c.Get(context.Background(), "/catalogo/busca", nil)

			var httpErr *HTTPError
			if !errors.As(err, &httpErr) {
				t.Fatalf("error = %v, want *HTTPError", err)
			}
			if httpErr.Class != tt.wantClass {
				t.Errorf("Class = %s, want %s", httpErr.Class, tt.wantClass)
			}
			if httpErr.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", httpErr.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestClient_MalformedResponse(t *testing.T) {
	tests := []struct {
		name     string
		response testutil.MockResponse
	}{
		{name: "html body", response: testutil.NewMalformedResponse()},
		{name: "empty body", response: testutil.MockResponse{StatusCode: http.StatusOK}},
		{name: "truncated json", response: testutil.NewSearchResponse(`{"resultados":[`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockCatalog()
			defer mock.Close()
			mock.SetResponse("/catalogo/busca", tt.response)

			c := newTestClient(t, mock.URL(), nil)
			_, err := c.Get(context.Background(), "/catalogo/busca", nil)
			if !errors.Is(err, ErrMalformedResponse) {
				t.Errorf("error = %v, want ErrMalformedResponse", err)
			}
		})
	}
}

func TestClient_ResponseTooLarge(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()
	mock.SetResponse("/catalogo/busca", testutil.NewSearchResponse(`{"resultados":"`+strings.Repeat("x", 64)+`"}`))

	c := newTestClient(t, mock.URL(), func(cfg *Config) { cfg.MaxResponseBytes = 16 })
	_, err := c.Get(context.Background(), "/catalogo/busca", nil)
	if !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("error = %v, want ErrMalformedResponse", err)
	}
}

func TestClient_Timeout(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()
	resp := testutil.NewSearchResponse(`{}`)
	resp.Delay = 2 * time.Second
	mock.SetResponse("/catalogo/busca", resp)

	c := newTestClient(t, mock.URL(), func(cfg *Config) { cfg.Timeout = 50 * time.Millisecond })

	start := time.Now()
	_, err := c.Get(context.Background(), "/catalogo/busca", nil)
	if ClassOf(err) != ErrorClassTimeout {
		t.Errorf("class = %q (err %v), want timeout", ClassOf(err), err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("call took %v, timeout not enforced", elapsed)
	}
}

func TestClient_Canceled(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()

	c := newTestClient(t, mock.URL(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Get(ctx, "/catalogo/busca", nil)
	if ClassOf(err) != ErrorClassCanceled {
		t.Errorf("class = %q (err %v), want canceled", ClassOf(err), err)
	}
}

func TestClient_NetworkError(t *testing.T) {
	mock := testutil.NewMockCatalog()
	url := mock.URL()
	mock.Close()

	c := newTestClient(t, url, nil)
	_, err := c.Get(context.Background(), "/catalogo/busca", nil)
	if ClassOf(err) != ErrorClassNetwork {
		t.Errorf("class = %q (err %v), want network", ClassOf(err), err)
	}
}

func breakerTestConfig(cfg *Config) {
	cfg.CircuitBreaker = true
	cfg.Breaker = BreakerConfig{
		Name:             "test",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 0.5,
		MinRequests:      2,
	}
}

func TestClient_CircuitBreakerOpens(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()
	mock.SetResponse("/catalogo/busca", testutil.NewServerErrorResponse())

	c := newTestClient(t, mock.URL(), breakerTestConfig)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := c.Get(ctx, "/catalogo/busca", nil); ClassOf(err) != ErrorClassServer {
			t.Fatalf("call %d: class = %q, want server", i, ClassOf(err))
		}
	}

	_, err := c.Get(ctx, "/catalogo/busca", nil)
	if ClassOf(err) != ErrorClassCircuitOpen {
		t.Errorf("class = %q, want circuit_open", ClassOf(err))
	}
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("error = %v, want ErrCircuitOpen", err)
	}
	if got := mock.GetRequestCount(); got != 2 {
		t.Errorf("RequestCount = %d, want 2 (open breaker must not call upstream)", got)
	}
	if c.BreakerState() != "open" {
		t.Errorf("BreakerState() = %s, want open", c.BreakerState())
	}
}

func TestClient_CircuitBreakerIgnoresClientErrors(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()
	mock.SetResponse("/catalogo/busca", testutil.NewBadRequestResponse())
	mock.SetResponse("/catalogo/quebrado", testutil.NewMalformedResponse())

	c := newTestClient(t, mock.URL(), breakerTestConfig)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		c.Get(ctx, "/catalogo/busca", nil)
		c.Get(ctx, "/catalogo/quebrado", nil)
	}

	if c.BreakerState() != "closed" {
		t.Errorf("BreakerState() = %s, want closed", c.BreakerState())
	}
	if got := mock.GetRequestCount(); got != 10 {
		t.Errorf("RequestCount = %d, want 10", got)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func TestClient_SetHTTPClient(t *testing.T) {
	c := newTestClient(t, "http://catalog.local", nil)

	var gotURL string
	c.SetHTTPClient(&http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			gotURL = req.URL.String()
			return &http.Response{
				StatusCode: http.StatusOK,
				Header:     http.Header{"Content-Type": []string{"application/json"}},
				Body:       io.NopCloser(strings.NewReader(`{"resultados":[]}`)),
				Request:    req,
			}, nil
		}),
	})

	body, err := c.Get(context.Background(), "/catalogo/busca", filter.FilterSet{"termo": filter.Str("pintor")})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(body) != `{"resultados":[]}` {
		t.Errorf("body = %s", body)
	}
	if gotURL != "http://catalog.local/catalogo/busca?termo=pintor" {
		t.Errorf("URL = %s", gotURL)
	}

	c.SetHTTPClient(&http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			return nil, errors.New("connection reset by peer")
		}),
	})

	_, err = c.Get(context.Background(), "/catalogo/busca", nil)
	if ClassOf(err) != ErrorClassNetwork {
		t.Errorf("class = %q (err %v), want network", ClassOf(err), err)
	}
}
