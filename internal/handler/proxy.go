package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"

	"github.com/labstack/echo/v4"

	"cors-proxy-go/internal/cors"
	"cors-proxy-go/internal/metrics"
	"cors-proxy-go/internal/model"
	"cors-proxy-go/internal/service"
)

// HeaderProxyError carries a short, human-readable reason on synthesized
// error responses, which always have an empty body.
const HeaderProxyError = "X-Proxy-Error"

// userinfoPattern matches credentials embedded in URLs quoted by transport errors.
var userinfoPattern = regexp.MustCompile(`(?i)([a-z][a-z0-9+.-]*://)[^/@\s"]+@`)

// ProxyHandler dispatches inbound requests to the forwarder or the OPTIONS
// responder.
type ProxyHandler struct {
	service *service.ProxyService
	policy  *cors.Policy
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler. The metrics parameter is optional.
func NewProxyHandler(svc *service.ProxyService, p *cors.Policy, m *metrics.Metrics, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		policy:  p,
		metrics: m,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Handle selects behavior by exact method: forwarded methods go upstream,
// OPTIONS is answered locally, and everything else gets an empty 405.
func (h *ProxyHandler) Handle(c echo.Context) error {
	method := c.Request().Method
	switch {
	case h.policy.Forwards(method):
		return h.forward(c)
	case method == http.MethodOptions:
		return h.options(c)
	default:
		return c.NoContent(http.StatusMethodNotAllowed)
	}
}

func (h *ProxyHandler) forward(c echo.Context) error {
	req := c.Request()

	pr := &model.ProxyRequest{
		Ctx:           req.Context(),
		Method:        req.Method,
		Query:         service.ParseQuery(req.URL.RawQuery),
		Header:        req.Header,
		Body:          req.Body,
		ContentLength: req.ContentLength,
	}

	resp, err := h.service.Forward(pr)
	if err != nil {
		return h.mapError(c, err)
	}
	defer func() { _ = resp.Body.Close() }()

	out := c.Response().Header()
	for key, vals := range resp.Header {
		// The request id assigned by this proxy wins over one echoed by the target.
		if key == echo.HeaderXRequestID && out.Get(key) != "" {
			continue
		}
		for _, v := range vals {
			out.Add(key, v)
		}
	}

	c.Response().WriteHeader(resp.StatusCode)

	// Stream the upstream body directly to the client. If io.Copy fails
	// mid-stream the status code has already been sent, so the client
	// receives a truncated response with the original status.
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		h.logger.Error("streaming response body",
			"err", sanitizeError(err),
			"path", req.URL.Path,
		)
	}

	return nil
}

func (h *ProxyHandler) options(c echo.Context) error {
	preflight := h.policy.Respond(c.Request().Header, c.Response().Header())
	if h.metrics != nil {
		kind := "probe"
		if preflight {
			kind = "preflight"
		}
		h.metrics.OptionsTotal.WithLabelValues(kind).Inc()
	}
	return c.NoContent(http.StatusOK)
}

func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	code, reason, label := classifyError(err)

	h.logger.Warn("proxy error",
		"err", sanitizeError(err),
		"reason", label,
		"status", code,
	)
	if h.metrics != nil {
		h.metrics.ForwardErrors.WithLabelValues(label).Inc()
	}

	c.Response().Header().Set(HeaderProxyError, reason)
	return c.NoContent(code)
}

// classifyError maps a forward error to a status code, a caller-visible
// reason and a metrics label.
func classifyError(err error) (int, string, string) {
	if errors.Is(err, service.ErrMissingTarget) {
		return http.StatusUnprocessableEntity, service.ErrMissingTarget.Error(), "missing_target"
	}
	if errors.Is(err, service.ErrInvalidTarget) {
		return http.StatusUnprocessableEntity, service.ErrInvalidTarget.Error(), "invalid_target"
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, "upstream request timed out", "upstream_timeout"
	}
	if errors.Is(err, context.Canceled) {
		return http.StatusBadGateway, "client disconnected", "client_canceled"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return http.StatusGatewayTimeout, "upstream request timed out", "upstream_timeout"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return http.StatusBadGateway, "upstream host unreachable", "upstream_dns"
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return http.StatusBadGateway, "upstream connection failed", "upstream_connection"
	}

	return http.StatusBadGateway, "upstream request failed", "upstream_other"
}

// sanitizeError redacts URL credentials from error messages that quote target URLs.
func sanitizeError(err error) string {
	return userinfoPattern.ReplaceAllString(err.Error(), "${1}[REDACTED]@")
}
