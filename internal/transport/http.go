package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wegman-software/geojson2mvt-go/internal/logger"
)

// HTTPOptions configures the HTTP transport.
type HTTPOptions struct {
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	UserAgent  string        `yaml:"user_agent"`
}

// DefaultHTTPOptions returns the HTTP transport defaults.
func DefaultHTTPOptions() HTTPOptions {
	return HTTPOptions{
		Timeout:    60 * time.Second,
		MaxRetries: 3,
		RetryDelay: 5 * time.Second,
		UserAgent:  "geojson2mvt-go/1.0",
	}
}

// HTTP fetches documents over http and https, retrying server errors.
type HTTP struct {
	client *http.Client
	opts   HTTPOptions
}

// NewHTTP creates an HTTP transport
func NewHTTP(opts HTTPOptions) *HTTP {
	return &HTTP{
		client: &http.Client{Timeout: opts.Timeout},
		opts:   opts,
	}
}

// Fetch implements Transport.
func (h *HTTP) Fetch(ctx context.Context, req *Request) (*Response, error) {
	log := logger.Get()
	start := time.Now()

	var firstByte time.Time
	trace := &httptrace.ClientTrace{
		GotFirstResponseByte: func() { firstByte = time.Now() },
	}

	resp, err := h.fetchWithRetry(httptrace.WithClientTrace(ctx, trace), req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("failed to fetch %s: unexpected status code: %d", req.URL, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", req.URL, err)
	}

	timing := ResourceTiming{
		Name:         req.URL,
		StartTime:    start,
		Duration:     time.Since(start),
		TransferSize: len(data),
	}
	if !firstByte.IsZero() {
		timing.TimeToFirstByte = firstByte.Sub(start)
	}

	log.Debug("Fetched document",
		zap.String("url", req.URL),
		zap.Int("bytes", len(data)),
		zap.Duration("duration", timing.Duration))

	return &Response{Data: data, Timing: []ResourceTiming{timing}}, nil
}

func (h *HTTP) fetchWithRetry(ctx context.Context, r *Request) (*http.Response, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	var lastErr error
	for attempt := 0; attempt <= h.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(h.opts.RetryDelay):
			}
		}

		var body io.Reader
		if r.Body != "" {
			body = strings.NewReader(r.Body)
		}
		req, err := http.NewRequestWithContext(ctx, method, r.URL, body)
		if err != nil {
			return nil, err
		}
		if h.opts.UserAgent != "" {
			req.Header.Set("User-Agent", h.opts.UserAgent)
		}
		for k, v := range r.Headers {
			req.Header.Set(k, v)
		}

		resp, err := h.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		// Retry on server errors
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
