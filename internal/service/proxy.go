// Package service implements the core proxy forwarding logic.
package service

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"cors-proxy-go/internal/client"
	"cors-proxy-go/internal/cors"
	"cors-proxy-go/internal/header"
	"cors-proxy-go/internal/model"
)

// Query parameters understood by the proxy.
const (
	TargetParam   = "q"
	DownloadParam = "download"
)

// ErrMissingTarget is returned when the request carries no q parameter.
var ErrMissingTarget = errors.New(`You have to append a query: "?q=URL"`)

// ErrInvalidTarget is returned when q is not an absolute http(s) URL.
var ErrInvalidTarget = errors.New("q must be an absolute http or https URL")

// allowedTargetSchemes restricts which schemes the proxy will fetch.
var allowedTargetSchemes = map[string]bool{
	"http":  true,
	"https": true,
}

// ParseQuery decodes a raw query string, splitting pairs on '&' only.
// url.ParseQuery rejects ';' and drops the whole pair, which would lose
// targets like https://host/a;jsessionid=1 passed unencoded. Pairs that fail
// to unescape are kept verbatim rather than discarded.
func ParseQuery(rawQuery string) url.Values {
	values := make(url.Values)
	for pair := range strings.SplitSeq(rawQuery, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		values.Add(unescapeQuery(key), unescapeQuery(value))
	}
	return values
}

func unescapeQuery(s string) string {
	if u, err := url.QueryUnescape(s); err == nil {
		return u
	}
	return s
}

// ParseTarget extracts and validates the target URL from the inbound query.
func ParseTarget(query url.Values) (*url.URL, error) {
	raw := query.Get(TargetParam)
	if raw == "" {
		return nil, ErrMissingTarget
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTarget, err)
	}
	if !allowedTargetSchemes[u.Scheme] {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidTarget, u.Scheme)
	}
	if u.Host == "" || u.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidTarget)
	}
	return u, nil
}

// WantsDownload reports whether the caller asked for attachment semantics.
// The flag is presence-only: ?download and ?download=0 both count.
func WantsDownload(query url.Values) bool {
	return query.Has(DownloadParam)
}

// ProxyService handles the forwarding logic for proxy requests.
type ProxyService struct {
	client *client.UpstreamClient
	policy *cors.Policy
	logger *slog.Logger
}

// NewProxyService creates a ProxyService.
func NewProxyService(c *client.UpstreamClient, p *cors.Policy, logger *slog.Logger) *ProxyService {
	return &ProxyService{
		client: c,
		policy: p,
		logger: logger.With("component", "proxy_service"),
	}
}

// Forward sends a ProxyRequest to the target named in its q parameter and
// returns the upstream response with CORS headers applied. Status code and
// body are passed through unchanged. The caller is responsible for closing
// the response body.
func (s *ProxyService) Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	target, err := ParseTarget(pr.Query)
	if err != nil {
		return nil, err
	}

	req, err := s.buildUpstreamRequest(pr, target)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("forwarding request",
		"method", pr.Method,
		"target_host", target.Host,
	)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("forward to upstream: %w", err)
	}

	s.rewriteResponseHeaders(resp.Header, pr.Header.Get(cors.HeaderOrigin), WantsDownload(pr.Query))
	return resp, nil
}

func (s *ProxyService) buildUpstreamRequest(pr *model.ProxyRequest, target *url.URL) (*http.Request, error) {
	body := pr.Body
	if pr.ContentLength == 0 || body == nil {
		body = http.NoBody
	}

	req, err := http.NewRequestWithContext(pr.Ctx, pr.Method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTarget, err)
	}
	if pr.ContentLength > 0 {
		req.ContentLength = pr.ContentLength
	}

	req.Header = s.upstreamHeaders(pr.Header, target)
	req.Host = target.Host
	return req, nil
}

// upstreamHeaders copies the inbound headers minus hop-by-hop ones and points
// Host and Referer at the target.
func (s *ProxyService) upstreamHeaders(src http.Header, target *url.URL) http.Header {
	dst := src.Clone()
	if dst == nil {
		dst = make(http.Header)
	}
	header.RemoveHopByHop(dst)
	dst.Del("Host")
	dst.Set("Referer", target.String())
	return dst
}

func (s *ProxyService) rewriteResponseHeaders(h http.Header, origin string, download bool) {
	header.RemoveHopByHop(h)
	s.policy.Decorate(origin, h)
	if download {
		h.Set("Content-Disposition", "attachment")
	}
}
