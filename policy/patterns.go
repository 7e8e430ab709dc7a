package policy

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gobwas/glob"
)

// MenuPatterns returns the match patterns that scope the force-open menu
// item to links on frozen hosts, one "*://host/*" per frozen domain, sorted.
func MenuPatterns(domains Domains) []string {
	hosts := domains.Frozen()
	patterns := make([]string, len(hosts))
	for i, host := range hosts {
		patterns[i] = "*://" + host + "/*"
	}
	return patterns
}

// Matcher tests link URLs against a set of match patterns of the form
// "<scheme>://<host>/<path>", where each part may contain '*' wildcards.
type Matcher struct {
	patterns []string
	globs    []compiled
}

type compiled struct {
	scheme glob.Glob
	host   glob.Glob
	path   glob.Glob
}

// NewMatcher compiles patterns. A malformed pattern fails the whole set.
func NewMatcher(patterns []string) (*Matcher, error) {
	m := &Matcher{patterns: append([]string(nil), patterns...)}
	for _, p := range patterns {
		c, err := compilePattern(p)
		if err != nil {
			return nil, err
		}
		m.globs = append(m.globs, c)
	}
	return m, nil
}

// Patterns returns the source patterns.
func (m *Matcher) Patterns() []string { return append([]string(nil), m.patterns...) }

// Match reports whether link falls inside any pattern. Only http and https
// links can match "*" schemes.
func (m *Matcher) Match(link string) bool {
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return false
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	for _, c := range m.globs {
		if c.scheme.Match(u.Scheme) && c.host.Match(strings.ToLower(u.Hostname())) && c.path.Match(path) {
			return true
		}
	}
	return false
}

func compilePattern(p string) (compiled, error) {
	scheme, rest, ok := strings.Cut(p, "://")
	if !ok {
		return compiled{}, fmt.Errorf("policy: pattern %q: missing scheme separator", p)
	}
	host, path, ok := strings.Cut(rest, "/")
	if !ok || host == "" {
		return compiled{}, fmt.Errorf("policy: pattern %q: missing host", p)
	}
	path = "/" + path

	var c compiled
	var err error
	if scheme == "*" {
		c.scheme, err = glob.Compile("{http,https}")
	} else {
		c.scheme, err = glob.Compile(scheme)
	}
	if err != nil {
		return compiled{}, fmt.Errorf("policy: pattern %q: scheme: %w", p, err)
	}
	if c.host, err = glob.Compile(host); err != nil {
		return compiled{}, fmt.Errorf("policy: pattern %q: host: %w", p, err)
	}
	if c.path, err = glob.Compile(path); err != nil {
		return compiled{}, fmt.Errorf("policy: pattern %q: path: %w", p, err)
	}
	return c, nil
}
