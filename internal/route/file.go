package route

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// File is the on-disk form of a route table.
type File struct {
	Upstreams map[string]string `yaml:"upstreams"`
	Routes    []FileRule        `yaml:"routes"`
}

// FileRule is one entry under routes:.
type FileRule struct {
	Name         string        `yaml:"name,omitempty"`
	Path         string        `yaml:"path"`
	Exact        bool          `yaml:"exact,omitempty"`
	Upstream     string        `yaml:"upstream,omitempty"`
	Rewrite      string        `yaml:"rewrite,omitempty"`
	Preflight    bool          `yaml:"preflight,omitempty"`
	Headers      []string      `yaml:"headers,omitempty"`
	Root         string        `yaml:"root,omitempty"`
	Expires      time.Duration `yaml:"expires,omitempty"`
	CacheControl string        `yaml:"cache_control,omitempty"`
}

// LoadFile reads and decodes a YAML route table. Unknown keys are rejected.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading routes from %q: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decoding routes from %q: %w", path, err)
	}
	return &f, nil
}

// Table builds a validated Table from the file. Upstreams named in the file
// take precedence over those in defaults.
func (f *File) Table(defaults map[string]*url.URL) (*Table, error) {
	ups := make(map[string]*url.URL, len(defaults)+len(f.Upstreams))
	for name, u := range defaults {
		ups[name] = u
	}
	for name, raw := range f.Upstreams {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("upstream %q: %w", name, err)
		}
		ups[name] = u
	}

	rules := make([]Rule, 0, len(f.Routes))
	for _, fr := range f.Routes {
		hp, err := parseHeaders(fr.Headers)
		if err != nil {
			return nil, fmt.Errorf("route %q: %w", fr.Path, err)
		}
		rules = append(rules, Rule{
			Name:      fr.Name,
			Path:      fr.Path,
			Exact:     fr.Exact,
			Upstream:  fr.Upstream,
			Rewrite:   fr.Rewrite,
			Preflight: fr.Preflight,
			Headers:   hp,
			Root:      fr.Root,
			Cache:     CachePolicy{MaxAge: fr.Expires, Control: fr.CacheControl},
		})
	}
	return NewTable(ups, rules)
}

func parseHeaders(names []string) (HeaderPolicy, error) {
	if len(names) == 0 {
		return DefaultHeaders, nil
	}
	var hp HeaderPolicy
	for _, n := range names {
		switch n {
		case "host":
			hp.Host = true
		case "real_ip":
			hp.RealIP = true
		case "forwarded_for":
			hp.ForwardedFor = true
		case "forwarded_proto":
			hp.ForwardedProto = true
		default:
			return HeaderPolicy{}, fmt.Errorf("unknown header policy %q", n)
		}
	}
	return hp, nil
}
