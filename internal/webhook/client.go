// Package webhook is the outbound HTTP client used by webhook actions.
//
// Calls are fire-and-forget from the rule engine's point of view: one
// attempt per action, no retries. A shared token-bucket limiter keeps a
// burst of matched rules from hammering an endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"taskflow/pkg/logx"
)

const maxResponseBytes = 1 << 20 // cap response bodies we keep around

type Config struct {
	Timeout    time.Duration // per-request; 0 means 10s
	RatePerSec int           // 0 means 5
	Burst      int           // 0 means RatePerSec
}

// Request describes one outbound call. Body, when non-nil, is sent as JSON.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    any
	Timeout time.Duration // overrides the client default when > 0
}

// Response carries the endpoint's reply. Body holds the parsed JSON
// document when the reply is JSON, otherwise the raw text.
type Response struct {
	Status int
	Body   any
}

type Client struct {
	hc      *http.Client
	limiter *rate.Limiter
	timeout time.Duration
	log     logx.Logger
}

func NewClient(cfg Config, log logx.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = rps
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		hc:      &http.Client{},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		timeout: timeout,
		log:     log,
	}
}

// Do performs one HTTP call and returns the decoded response.
// Non-2xx statuses are returned as errors alongside the response.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	url := strings.TrimSpace(req.URL)
	if url == "" {
		return nil, errors.New("webhook url is required")
	}
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodPost
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("marshal webhook body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	hreq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	if req.Body != nil {
		hreq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.Headers {
		hreq.Header.Set(k, v)
	}

	start := time.Now()
	hres, err := c.hc.Do(hreq)
	if err != nil {
		c.log.Warn("webhook call failed",
			logx.String("url", url),
			logx.String("method", method),
			logx.Err(err),
		)
		return nil, err
	}
	defer hres.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(hres.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}

	res := &Response{Status: hres.StatusCode, Body: decodeBody(hres.Header.Get("Content-Type"), raw)}

	c.log.Debug("webhook call",
		logx.String("url", url),
		logx.String("method", method),
		logx.Int("status", hres.StatusCode),
		logx.Duration("took", time.Since(start)),
	)

	if hres.StatusCode < 200 || hres.StatusCode > 299 {
		return res, fmt.Errorf("webhook returned status %d", hres.StatusCode)
	}
	return res, nil
}

func decodeBody(contentType string, raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	if strings.Contains(contentType, "json") {
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			return v
		}
	}
	return string(raw)
}
