// Package cors holds the cross-origin policy applied to proxied responses
// and the responder for OPTIONS requests.
package cors

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"cors-proxy-go/internal/config"
	"cors-proxy-go/internal/header"
)

// Header names used by the policy.
const (
	HeaderOrigin         = "Origin"
	HeaderAllow          = "Allow"
	HeaderAllowOrigin    = "Access-Control-Allow-Origin"
	HeaderAllowMethods   = "Access-Control-Allow-Methods"
	HeaderAllowHeaders   = "Access-Control-Allow-Headers"
	HeaderMaxAge         = "Access-Control-Max-Age"
	HeaderRequestMethod  = "Access-Control-Request-Method"
	HeaderRequestHeaders = "Access-Control-Request-Headers"
	wildcard             = "*"
)

// methodOrder is the order methods are listed in Allow and
// Access-Control-Allow-Methods.
var methodOrder = []string{http.MethodGet, http.MethodHead, http.MethodPost}

// Policy decides which methods are forwarded and which CORS headers are sent.
// It is immutable after construction and safe for concurrent use.
type Policy struct {
	echoOrigin bool
	forwarded  []string
	allowed    string
	maxAge     int
}

// NewPolicy builds a Policy from the [cors] config section.
func NewPolicy(cfg *config.Config) *Policy {
	p := &Policy{
		echoOrigin: cfg.CORS.AllowOrigin == config.AllowOriginRequest,
		maxAge:     cfg.CORS.MaxAgeSeconds,
	}
	for _, m := range methodOrder {
		if slices.Contains(cfg.CORS.Methods, m) {
			p.forwarded = append(p.forwarded, m)
		}
	}
	p.allowed = strings.Join(append(slices.Clone(p.forwarded), http.MethodOptions), ", ")
	return p
}

// Forwards reports whether method is relayed to the target. The comparison
// is case-sensitive.
func (p *Policy) Forwards(method string) bool {
	return slices.Contains(p.forwarded, method)
}

// AllowedMethods returns the supported method list, OPTIONS included,
// formatted for Allow and Access-Control-Allow-Methods.
func (p *Policy) AllowedMethods() string {
	return p.allowed
}

// AllowOrigin returns the Access-Control-Allow-Origin value for a request
// that carried the given Origin header.
func (p *Policy) AllowOrigin(origin string) string {
	if p.echoOrigin && origin != "" {
		return origin
	}
	return wildcard
}

// IsPreflight reports whether the request headers describe a CORS preflight.
// Only presence matters; an empty value still counts.
func IsPreflight(h http.Header) bool {
	return len(h.Values(HeaderOrigin)) > 0 &&
		len(h.Values(HeaderRequestMethod)) > 0 &&
		len(h.Values(HeaderRequestHeaders)) > 0
}

// Respond fills resp for an OPTIONS request: preflight headers when req is a
// CORS preflight, a bare Allow header otherwise. It reports whether the
// request was treated as a preflight.
func (p *Policy) Respond(req, resp http.Header) bool {
	if IsPreflight(req) {
		p.Preflight(req, resp)
		return true
	}
	p.Probe(resp)
	return false
}

// Preflight sets the headers answering a CORS preflight.
func (p *Policy) Preflight(req, resp http.Header) {
	resp.Set(HeaderAllowOrigin, p.AllowOrigin(req.Get(HeaderOrigin)))
	resp.Set(HeaderAllowMethods, p.allowed)
	if p.Forwards(http.MethodPost) {
		resp.Set(HeaderAllowHeaders, "Content-Type")
	}
	if p.maxAge > 0 {
		resp.Set(HeaderMaxAge, strconv.Itoa(p.maxAge))
	}
	if p.echoOrigin {
		header.AppendVary(resp, HeaderOrigin)
	}
}

// Probe sets the headers answering a plain OPTIONS capability query.
func (p *Policy) Probe(resp http.Header) {
	resp.Set(HeaderAllow, p.allowed)
}

// Decorate adds the CORS headers to a proxied response. Existing Vary
// values are kept.
func (p *Policy) Decorate(origin string, resp http.Header) {
	resp.Set(HeaderAllowOrigin, p.AllowOrigin(origin))
	header.AppendVary(resp, HeaderOrigin)
}
