package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ErrUnsupportedScheme is returned for request URLs no transport handles.
var ErrUnsupportedScheme = errors.New("unsupported request scheme")

// Request describes where a load fetches its GeoJSON document from.
type Request struct {
	URL     string            `json:"url" yaml:"url"`
	Method  string            `json:"method,omitempty" yaml:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	// Body is sent as the HTTP request body, or run as the query for
	// postgres:// URLs.
	Body string `json:"body,omitempty" yaml:"body,omitempty"`
}

// ResourceTiming records how long one fetch took.
type ResourceTiming struct {
	Name            string        `json:"name"`
	StartTime       time.Time     `json:"startTime"`
	TimeToFirstByte time.Duration `json:"timeToFirstByte"`
	Duration        time.Duration `json:"duration"`
	TransferSize    int           `json:"transferSize"`
}

// Response is the raw document plus the timing of every resource fetched
// to produce it.
type Response struct {
	Data   []byte
	Timing []ResourceTiming
}

// Transport fetches a document. Implementations must return promptly once
// ctx is cancelled.
type Transport interface {
	Fetch(ctx context.Context, req *Request) (*Response, error)
}

// Router dispatches a request to a transport by URL scheme and converts
// OSM XML payloads to GeoJSON.
type Router struct {
	HTTP     Transport
	File     Transport
	Postgres Transport
}

// NewRouter returns a router with the default transports.
func NewRouter(opts HTTPOptions) *Router {
	return &Router{
		HTTP:     NewHTTP(opts),
		File:     File{},
		Postgres: NewPostgres(4),
	}
}

// Fetch implements Transport.
func (r *Router) Fetch(ctx context.Context, req *Request) (*Response, error) {
	if req == nil || req.URL == "" {
		return nil, fmt.Errorf("%w: empty url", ErrUnsupportedScheme)
	}

	t, err := r.route(req.URL)
	if err != nil {
		return nil, err
	}

	resp, err := t.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}

	if IsOSM(resp.Data) {
		data, err := ConvertOSM(resp.Data)
		if err != nil {
			return nil, err
		}
		resp.Data = data
	}
	return resp, nil
}

func (r *Router) route(raw string) (Transport, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse url %q: %w", raw, err)
	}

	var t Transport
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		t = r.HTTP
	case "file", "":
		t = r.File
	case "postgres", "postgresql":
		t = r.Postgres
	}
	if t == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	return t, nil
}

// Close releases any pooled connections.
func (r *Router) Close() {
	if c, ok := r.Postgres.(interface{ Close() }); ok {
		c.Close()
	}
}
