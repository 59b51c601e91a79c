// Package header provides HTTP header helpers shared by the proxy layers.
package header

import (
	"net/http"
	"strings"
)

// hopByHopHeaders are headers that must not be forwarded by proxies (RFC 7230 6.1).
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// RemoveHopByHop deletes hop-by-hop headers from h, including any header
// named in a Connection field.
func RemoveHopByHop(h http.Header) {
	for _, v := range h.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopByHopHeaders {
		h.Del(name)
	}
}

// HasToken reports whether the comma-separated list header key contains
// token, compared case-insensitively.
func HasToken(h http.Header, key, token string) bool {
	for _, v := range h.Values(key) {
		for _, t := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(t), token) {
				return true
			}
		}
	}
	return false
}

// AppendVary adds token to the Vary header, keeping existing values.
// It is a no-op when the token is already listed or Vary is "*".
func AppendVary(h http.Header, token string) {
	if HasToken(h, "Vary", token) || HasToken(h, "Vary", "*") {
		return
	}
	h.Add("Vary", token)
}
