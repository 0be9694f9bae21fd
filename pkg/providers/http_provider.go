package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// unhealthyAfter is the number of consecutive failed attempts after which
// the provider reports itself unhealthy.
const unhealthyAfter = 3

// HTTPProvider is the transport shared by HTTP adapters: pooled connections,
// retries with exponential backoff, error classification and health
// bookkeeping. Adapters embed it and implement SendCompletion.
type HTTPProvider struct {
	config ProviderConfig
	client *http.Client
	logger *slog.Logger

	healthMu sync.RWMutex
	health   ProviderHealth

	// sleep waits between attempts; tests replace it.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewHTTPProvider creates the shared transport for config.
func NewHTTPProvider(config ProviderConfig) *HTTPProvider {
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = time.Second
	}
	now := time.Now()
	return &HTTPProvider{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        config.MaxIdleConns,
				MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
				IdleConnTimeout:     config.IdleConnTimeout,
				ForceAttemptHTTP2:   true,
			},
		},
		logger: slog.Default().With("component", "providers.http", "provider", config.Name),
		health: ProviderHealth{IsHealthy: true, LastCheck: now, LastSuccessfulRequest: now},
		sleep:  sleepContext,
	}
}

func (p *HTTPProvider) GetName() string           { return p.config.Name }
func (p *HTTPProvider) GetType() string           { return p.config.Type }
func (p *HTTPProvider) GetConfig() ProviderConfig { return p.config }

// IsHealthy reports false after unhealthyAfter consecutive failed attempts,
// until the next success.
func (p *HTTPProvider) IsHealthy() bool {
	p.healthMu.RLock()
	defer p.healthMu.RUnlock()
	return p.health.IsHealthy
}

// GetHealth returns a copy of the request counters.
func (p *HTTPProvider) GetHealth() ProviderHealth {
	p.healthMu.RLock()
	defer p.healthMu.RUnlock()
	return p.health
}

func (p *HTTPProvider) record(err error) {
	p.healthMu.Lock()
	defer p.healthMu.Unlock()

	h := &p.health
	h.LastCheck = time.Now()
	h.TotalRequests++
	if err == nil {
		h.IsHealthy = true
		h.ConsecutiveFailures = 0
		h.LastError = nil
		h.LastSuccessfulRequest = h.LastCheck
		return
	}

	h.FailedRequests++
	h.ConsecutiveFailures++
	h.LastError = err
	if h.IsHealthy && h.ConsecutiveFailures >= unhealthyAfter {
		h.IsHealthy = false
		p.logger.Warn("reasoning service marked unhealthy", "consecutive_failures", h.ConsecutiveFailures, "error", err)
	}
}

// backoff is the delay before retry n (1-based): RetryBackoff doubled n-1
// times.
func (p *HTTPProvider) backoff(n int) time.Duration {
	return p.config.RetryBackoff << (n - 1)
}

// outcome is the result of one attempt.
type outcome struct {
	resp  *http.Response
	err   error
	retry bool
	wait  time.Duration
}

// DoRequest sends the request, retrying transport failures, 429 and 5xx up
// to MaxRetries times. A 429 waits for the server's Retry-After hint when one
// is sent. Other 4xx responses fail at once. A cancelled context surfaces as
// a TimeoutError.
func (p *HTTPProvider) DoRequest(ctx context.Context, method, url string, body []byte, headers map[string]string) (*http.Response, error) {
	var last outcome
	for n := 0; n <= p.config.MaxRetries; n++ {
		if n > 0 {
			wait := last.wait
			if wait <= 0 {
				wait = p.backoff(n)
			}
			p.logger.Debug("retrying reasoning request", "retry", n, "max_retries", p.config.MaxRetries, "wait", wait)
			if err := p.sleep(ctx, wait); err != nil {
				return nil, p.timeout()
			}
		}

		last = p.attempt(ctx, method, url, body, headers)
		if !last.retry {
			return last.resp, last.err
		}
		p.logger.Warn("reasoning request failed, will retry", "attempt", n+1, "error", last.err)
	}
	return nil, last.err
}

func (p *HTTPProvider) attempt(ctx context.Context, method, url string, body []byte, headers map[string]string) outcome {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return outcome{err: fmt.Errorf("build %s %s: %w", method, url, err)}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			p.record(ctx.Err())
			return outcome{err: p.timeout()}
		}
		perr := &ProviderError{Provider: p.config.Name, Message: "request failed", Cause: err}
		p.record(perr)
		return outcome{err: perr, retry: true}
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		p.record(nil)
		return outcome{resp: resp}
	}

	msg, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	out := p.classify(resp, string(msg))
	p.record(out.err)
	return out
}

func (p *HTTPProvider) classify(resp *http.Response, msg string) outcome {
	name := p.config.Name
	switch code := resp.StatusCode; {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return outcome{err: &AuthError{Provider: name, Message: msg}}
	case code == http.StatusTooManyRequests:
		wait := parseRetryAfter(resp.Header.Get("Retry-After"))
		return outcome{err: &RateLimitError{Provider: name, RetryAfter: wait, Message: msg}, retry: true, wait: wait}
	case code >= 400 && code < 500:
		return outcome{err: &ProviderError{Provider: name, StatusCode: code, Message: msg}}
	default:
		return outcome{err: &ProviderError{Provider: name, StatusCode: code, Message: msg}, retry: true}
	}
}

func (p *HTTPProvider) timeout() error {
	return &TimeoutError{Provider: p.config.Name, Timeout: p.config.Timeout}
}

// DoJSONRequest encodes reqBody, sends it through DoRequest and decodes the
// reply into respBody. An unreadable reply is a ParseError.
func (p *HTTPProvider) DoJSONRequest(ctx context.Context, method, url string, reqBody, respBody any, headers map[string]string) error {
	var payload []byte
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", p.config.Name, err)
		}
		payload = b
	}

	resp, err := p.DoRequest(ctx, method, url, payload, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ParseError{Provider: p.config.Name, Cause: fmt.Errorf("read body: %w", err)}
	}
	if respBody == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, respBody); err != nil {
		return &ParseError{Provider: p.config.Name, RawResponse: string(raw), Cause: err}
	}
	return nil
}

// Close releases idle connections.
func (p *HTTPProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// parseRetryAfter reads a Retry-After value given either in seconds or as
// an HTTP date. Unparseable values yield 0.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		return time.Until(t)
	}
	return 0
}
