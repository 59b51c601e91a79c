// Package model defines shared types for the proxy.
package model

import (
	"context"
	"io"
	"net/http"
	"net/url"
)

// ProxyRequest represents an inbound request whose target is carried in the query.
type ProxyRequest struct {
	Ctx           context.Context
	Method        string
	Query         url.Values
	Header        http.Header
	Body          io.ReadCloser
	ContentLength int64 // -1 when unknown (chunked)
}

// ProxyResponse represents the upstream response to be streamed back.
// StatusCode and Body are passed through untouched; only Header is rewritten.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}
