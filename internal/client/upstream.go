// Package client provides the upstream HTTP client the proxy fetches targets with.
package client

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"cors-proxy-go/internal/config"
	"cors-proxy-go/internal/metrics"
	"cors-proxy-go/internal/model"
)

// UpstreamClient sends proxied requests to arbitrary target origins.
//
// upstream.timeout_seconds bounds connecting and waiting for response headers
// only. Once headers arrive the body streams for as long as the target keeps
// sending it; client disconnects still cancel it through the request context.
type UpstreamClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewUpstreamClient creates an UpstreamClient with connection pooling.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewUpstreamClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	headerTimeout := time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second
	dialTimeout := min(headerTimeout, 30*time.Second)
	if dialTimeout <= 0 {
		dialTimeout = 30 * time.Second
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost:   cfg.Upstream.IdleConnections,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   dialTimeout,
		ResponseHeaderTimeout: headerTimeout,
		ExpectContinueTimeout: time.Second,
		ForceAttemptHTTP2:     true,
		// Bodies are relayed byte for byte; never decode them on the way through.
		DisableCompression: true,
		DialContext: (&net.Dialer{
			Timeout:   dialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &UpstreamClient{
		// No Client.Timeout: it would also cut off the body mid-stream.
		httpClient: &http.Client{Transport: transport},
		logger:     logger.With("component", "upstream_client"),
		metrics:    m,
	}
}

// Do fetches req with a single attempt. On success the body is left unread
// and ownership passes to the caller, who must close it.
func (c *UpstreamClient) Do(req *http.Request) (*model.ProxyResponse, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // closed by the caller via ProxyResponse
	elapsed := time.Since(start)

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	c.observe(req.Method, status, elapsed)

	if err != nil {
		c.logger.Debug("upstream fetch failed",
			"method", req.Method,
			"host", req.URL.Host,
			"elapsed_ms", elapsed.Milliseconds(),
		)
		return nil, fmt.Errorf("fetch %s: %w", req.URL.Host, err)
	}

	c.logger.Debug("upstream headers received",
		"method", req.Method,
		"host", req.URL.Host,
		"status", status,
		"elapsed_ms", elapsed.Milliseconds(),
	)

	return &model.ProxyResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}

// observe records time-to-headers and, when a response arrived, its status.
func (c *UpstreamClient) observe(method string, status int, elapsed time.Duration) {
	if c.metrics == nil {
		return
	}
	method = metrics.NormalizeMethod(method)
	c.metrics.UpstreamDuration.WithLabelValues(method).Observe(elapsed.Seconds())
	if status != 0 {
		c.metrics.UpstreamResponses.WithLabelValues(method, strconv.Itoa(status)).Inc()
	}
}
