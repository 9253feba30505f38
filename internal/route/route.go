package route

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

// DefaultMaxAge is the cache lifetime for files served from disk.
const DefaultMaxAge = 30 * 24 * time.Hour

// DefaultCacheControl is the Cache-Control value for files served from disk.
const DefaultCacheControl = "public, no-transform"

// HeaderPolicy selects which forwarding headers are set on upstream requests.
type HeaderPolicy struct {
	Host           bool // pass the client's Host through instead of the upstream's
	RealIP         bool
	ForwardedFor   bool
	ForwardedProto bool
}

// DefaultHeaders enables every forwarding header.
var DefaultHeaders = HeaderPolicy{
	Host:           true,
	RealIP:         true,
	ForwardedFor:   true,
	ForwardedProto: true,
}

// CachePolicy controls the expiry headers on file responses.
type CachePolicy struct {
	MaxAge  time.Duration
	Control string
}

// Rule maps a request path to either an upstream or a directory.
type Rule struct {
	Name  string
	Path  string
	Exact bool

	// Forward rules.
	Upstream  string
	Rewrite   string
	Preflight bool
	Headers   HeaderPolicy

	// File rules.
	Root  string
	Cache CachePolicy
}

// IsFile reports whether the rule serves from the filesystem.
func (r Rule) IsFile() bool {
	return r.Root != ""
}

// Suffix returns the part of path after the rule's prefix.
func (r Rule) Suffix(path string) string {
	return strings.TrimPrefix(path, r.Path)
}

// UpstreamPath returns the path to request from the upstream.
func (r Rule) UpstreamPath(path string) string {
	if r.Rewrite != "" {
		return r.Rewrite
	}
	return path
}

func (r Rule) matches(path string) bool {
	if r.Exact {
		return path == r.Path
	}
	return strings.HasPrefix(path, r.Path)
}

// Table is an immutable, ordered set of rules.
type Table struct {
	rules     []Rule
	upstreams map[string]*url.URL
}

// NewTable validates rules and orders them for matching: exact rules first,
// then prefixes from longest to shortest.
func NewTable(upstreams map[string]*url.URL, rules []Rule) (*Table, error) {
	if len(rules) == 0 {
		return nil, fmt.Errorf("route table is empty")
	}

	seen := make(map[string]bool, len(rules))
	ordered := make([]Rule, 0, len(rules))
	for i, r := range rules {
		if r.Name == "" {
			r.Name = r.Path
		}
		if !strings.HasPrefix(r.Path, "/") {
			return nil, fmt.Errorf("route %d (%q): path must start with /", i, r.Path)
		}
		key := r.Path
		if r.Exact {
			key = "=" + key
		}
		if seen[key] {
			return nil, fmt.Errorf("route %q: duplicate path", r.Path)
		}
		seen[key] = true

		switch {
		case r.Upstream != "" && r.Root != "":
			return nil, fmt.Errorf("route %q: upstream and root are mutually exclusive", r.Path)
		case r.Upstream == "" && r.Root == "":
			return nil, fmt.Errorf("route %q: one of upstream or root is required", r.Path)
		case r.Upstream != "":
			if _, ok := upstreams[r.Upstream]; !ok {
				return nil, fmt.Errorf("route %q: unknown upstream %q", r.Path, r.Upstream)
			}
			if r.Rewrite != "" && !strings.HasPrefix(r.Rewrite, "/") {
				return nil, fmt.Errorf("route %q: rewrite must start with /", r.Path)
			}
		default:
			if r.Preflight {
				return nil, fmt.Errorf("route %q: preflight is only valid on upstream routes", r.Path)
			}
			if r.Cache.MaxAge == 0 {
				r.Cache.MaxAge = DefaultMaxAge
			}
			if r.Cache.Control == "" {
				r.Cache.Control = DefaultCacheControl
			}
		}
		ordered = append(ordered, r)
	}

	sort.SliceStable(ordered, func(a, b int) bool {
		if ordered[a].Exact != ordered[b].Exact {
			return ordered[a].Exact
		}
		return len(ordered[a].Path) > len(ordered[b].Path)
	})

	ups := make(map[string]*url.URL, len(upstreams))
	for name, u := range upstreams {
		if u == nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("upstream %q: absolute URL required", name)
		}
		ups[name] = u
	}

	return &Table{rules: ordered, upstreams: ups}, nil
}

// Match returns the single rule that applies to path.
func (t *Table) Match(path string) (Rule, bool) {
	for _, r := range t.rules {
		if r.matches(path) {
			return r, true
		}
	}
	return Rule{}, false
}

// Upstream returns the base URL registered under name, or nil.
func (t *Table) Upstream(name string) *url.URL {
	return t.upstreams[name]
}

// Rules returns the rules in matching order.
func (t *Table) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	copy(out, t.rules)
	return out
}

// BackendUpstream is the upstream name used by the built-in table.
const BackendUpstream = "backend"

// DocsPath is where requests for / are sent on the backend.
const DocsPath = "/swagger/"

// Default returns the built-in routing table for the giffly backend.
func Default(staticRoot, mediaRoot string) []Rule {
	return []Rule{
		{Name: "root", Path: "/", Exact: true, Upstream: BackendUpstream, Rewrite: DocsPath, Headers: DefaultHeaders},
		{Name: "api", Path: "/api/", Upstream: BackendUpstream, Preflight: true, Headers: DefaultHeaders},
		{Name: "swagger", Path: "/swagger/", Upstream: BackendUpstream, Headers: DefaultHeaders},
		{Name: "static", Path: "/static/", Root: staticRoot},
		{Name: "media", Path: "/media/", Root: mediaRoot},
		{Name: "admin", Path: "/admin/", Upstream: BackendUpstream, Headers: DefaultHeaders},
	}
}
