// Package cors resolves the Access-Control-* response headers the gateway
// attaches to every response.
package cors

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderAllowOrigin      = "Access-Control-Allow-Origin"
	HeaderAllowMethods     = "Access-Control-Allow-Methods"
	HeaderAllowHeaders     = "Access-Control-Allow-Headers"
	HeaderAllowCredentials = "Access-Control-Allow-Credentials"
	HeaderExposeHeaders    = "Access-Control-Expose-Headers"
	HeaderMaxAge           = "Access-Control-Max-Age"
)

// DefaultOrigins is the allowlist used when none is configured.
var DefaultOrigins = []string{
	"http://localhost:3000",
	"http://localhost:8000",
	"http://185.91.54.146",
	"https://185.91.54.146",
}

// DefaultMethods mirrors the backend's corsheaders configuration.
var DefaultMethods = []string{"DELETE", "GET", "OPTIONS", "PATCH", "POST", "PUT"}

// DefaultHeaders mirrors the backend's corsheaders configuration.
var DefaultHeaders = []string{
	"accept",
	"accept-encoding",
	"authorization",
	"content-type",
	"dnt",
	"origin",
	"user-agent",
	"x-csrftoken",
	"x-requested-with",
}

// Policy is an immutable CORS configuration. The zero value allows no
// origins.
type Policy struct {
	origins     map[string]struct{}
	methods     string
	headers     string
	credentials bool
	maxAge      string
}

// NewPolicy builds a Policy. Origins are matched exactly; blank entries are
// ignored.
func NewPolicy(origins, methods, headers []string, credentials bool, maxAge time.Duration) Policy {
	p := Policy{
		origins:     make(map[string]struct{}, len(origins)),
		methods:     strings.Join(methods, ", "),
		headers:     strings.Join(headers, ", "),
		credentials: credentials,
	}
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o != "" {
			p.origins[o] = struct{}{}
		}
	}
	if secs := int64(maxAge / time.Second); secs > 0 {
		p.maxAge = strconv.FormatInt(secs, 10)
	}
	return p
}

// AllowedOrigin returns origin if it is on the allowlist, otherwise "".
func (p Policy) AllowedOrigin(origin string) string {
	if origin == "" {
		return ""
	}
	if _, ok := p.origins[origin]; ok {
		return origin
	}
	return ""
}

// Apply sets the CORS response headers for a request carrying origin. A
// denied origin still gets the header, with an empty value.
func (p Policy) Apply(h http.Header, origin string) {
	h.Set(HeaderAllowOrigin, p.AllowedOrigin(origin))
	if p.methods != "" {
		h.Set(HeaderAllowMethods, p.methods)
	}
	if p.headers != "" {
		h.Set(HeaderAllowHeaders, p.headers)
	}
	if p.credentials {
		h.Set(HeaderAllowCredentials, "true")
	}
	AddVary(h, "Origin")
}

// AddVary adds each comma-separated token of value to the Vary header unless
// it is already listed.
func AddVary(h http.Header, value string) {
	for _, tok := range strings.Split(value, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" || hasVary(h, tok) {
			continue
		}
		h.Add("Vary", tok)
	}
}

func hasVary(h http.Header, tok string) bool {
	for _, v := range h.Values("Vary") {
		for _, existing := range strings.Split(v, ",") {
			existing = strings.TrimSpace(existing)
			if existing == "*" || strings.EqualFold(existing, tok) {
				return true
			}
		}
	}
	return false
}

// ApplyPreflight is Apply plus the preflight cache lifetime.
func (p Policy) ApplyPreflight(h http.Header, origin string) {
	p.Apply(h, origin)
	if p.maxAge != "" {
		h.Set(HeaderMaxAge, p.maxAge)
	}
}

// Denied reports whether a request with this origin is refused CORS access.
// Requests without an Origin header are not cross-origin and never denied.
func (p Policy) Denied(origin string) bool {
	return origin != "" && p.AllowedOrigin(origin) == ""
}

// Strip removes CORS headers set by an upstream so the gateway's policy is
// the only one a browser sees.
func Strip(h http.Header) {
	for _, k := range []string{
		HeaderAllowOrigin,
		HeaderAllowMethods,
		HeaderAllowHeaders,
		HeaderAllowCredentials,
		HeaderExposeHeaders,
		HeaderMaxAge,
	} {
		h.Del(k)
	}
}
