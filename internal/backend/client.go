package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ndunguloren96/ltronix-shop/pkg/circuitbreaker"
	"github.com/ndunguloren96/ltronix-shop/pkg/metrics"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/singleflight"
)

const (
	HeaderAuthorization = "Authorization"
	HeaderGuestKey      = "X-Guest-Session-Key"
	HeaderRequestID     = "X-Request-ID"

	maxResponseBody = 1 << 20 // 1MB
)

// Credentials are attached to every outbound request. A bearer token always
// wins over the guest key.
type Credentials struct {
	Token    string
	GuestKey string
}

func (c Credentials) apply(req *http.Request) {
	switch {
	case c.Token != "":
		req.Header.Set(HeaderAuthorization, "Bearer "+c.Token)
		req.Header.Del(HeaderGuestKey)
	case c.GuestKey != "":
		req.Header.Set(HeaderGuestKey, c.GuestKey)
	}
}

func (c Credentials) key() string {
	if c.Token != "" {
		return "t:" + c.Token
	}
	if c.GuestKey != "" {
		return "g:" + c.GuestKey
	}
	return "-"
}

type requestIDKey struct{}

// WithRequestID makes outbound requests carry id instead of a fresh one.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

type Config struct {
	BaseURL    string
	Timeout    time.Duration
	Breaker    circuitbreaker.Config
	HTTPClient *http.Client
}

type response struct {
	status int
	body   []byte
}

type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	breaker *circuitbreaker.Breaker[response]
	metrics *metrics.ClientMetrics
	sfg     singleflight.Group
}

func NewClient(cfg Config, m *metrics.ClientMetrics) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	breakerCfg := cfg.Breaker
	if breakerCfg.Name == "" {
		breakerCfg = circuitbreaker.DefaultConfig("shop-backend")
	}
	breakerCfg.Ignore = isClientError

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		timeout: timeout,
		http:    httpClient,
		breaker: circuitbreaker.New[response](breakerCfg),
		metrics: m,
	}
}

// do sends one request and decodes a 2xx JSON answer into out. Any other
// status is returned as *APIError.
func (c *Client) do(ctx context.Context, op, method, path string, creds Credentials, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", op, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(HeaderRequestID, requestID(ctx))
	creds.apply(req)

	start := time.Now()
	res, err := c.breaker.Execute(func() (response, error) {
		resp, errDo := c.http.Do(req)
		if errDo != nil {
			return response{}, errDo
		}
		defer resp.Body.Close()

		data, errRead := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		if errRead != nil {
			return response{}, fmt.Errorf("read %s response: %w", op, errRead)
		}
		r := response{status: resp.StatusCode, body: data}
		if resp.StatusCode >= 300 {
			return r, parseAPIError(resp.StatusCode, data)
		}
		return r, nil
	})
	c.observe(op, res.status, err, time.Since(start))
	if err != nil {
		return err
	}

	if out == nil || len(bytes.TrimSpace(res.body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(res.body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}

func (c *Client) observe(op string, status int, err error, elapsed time.Duration) {
	if c.metrics == nil {
		return
	}
	label := strconv.Itoa(status)
	if status == 0 && err != nil {
		label = "error"
	}
	c.metrics.BackendRequests.WithLabelValues(op, label).Inc()
	c.metrics.BackendLatencyMS.WithLabelValues(op).Observe(float64(elapsed.Milliseconds()))
}
