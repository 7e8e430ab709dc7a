// Package policy holds the pure freeze decisions: hostname extraction,
// frozen-domain lookup, the manual new-tab exemption and the URL patterns
// that scope the force-open menu item. Nothing here does I/O.
package policy

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// Domains maps a hostname to its frozen flag. Only true entries count;
// an absent or false entry means the domain is not frozen.
type Domains map[string]bool

// Clone returns an independent copy. A nil receiver yields an empty map.
func (d Domains) Clone() Domains {
	out := make(Domains, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Frozen returns the sorted list of hostnames whose flag is true.
func (d Domains) Frozen() []string {
	hosts := make([]string, 0, len(d))
	for host, on := range d {
		if on {
			hosts = append(hosts, host)
		}
	}
	sort.Strings(hosts)
	return hosts
}

// HostnameOf returns the lowercased hostname of rawURL, the form browsers
// report. ok is false for empty, malformed or host-less input.
func HostnameOf(rawURL string) (host string, ok bool) {
	if rawURL == "" {
		return "", false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	// Opaque URLs like "mailto:x@y" and relative references carry no host.
	host = strings.ToLower(u.Hostname())
	if host == "" {
		return "", false
	}
	return host, true
}

// IsFrozen reports whether the hostname of rawURL is frozen in domains.
func IsFrozen(rawURL string, domains Domains) bool {
	host, ok := HostnameOf(rawURL)
	if !ok {
		return false
	}
	return domains[host]
}

var internalScheme = regexp.MustCompile(`^chrome[^:]*://`)

// IsManualNewTabOpen reports whether a tab was opened directly by the user
// (new-tab button, Ctrl+T): its pending URL is browser-internal and nothing
// has been committed yet.
func IsManualNewTabOpen(pendingURL, currentURL string) bool {
	return internalScheme.MatchString(pendingURL) && currentURL == ""
}
