package utils

import (
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// CanonicalHost returns name lowercased, trimmed of whitespace, IPv6
// brackets and trailing dots, so "Example.COM." and "example.com" share one
// set entry.
func CanonicalHost(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if strings.HasPrefix(name, "[") && strings.HasSuffix(name, "]") {
		name = name[1 : len(name)-1]
	}
	return strings.TrimRight(name, ".")
}

// RegistrableDomain returns the eTLD+1 of name, or the canonical name when
// the public suffix list cannot answer (single labels, IP literals).
func RegistrableDomain(name string) string {
	name = CanonicalHost(name)
	apex, err := publicsuffix.EffectiveTLDPlusOne(name)
	if err != nil {
		return name
	}
	return apex
}

// ExtractHost returns the canonical host a request URL targets.
//
// A URL that parses with an authority yields its hostname (port stripped).
// Otherwise a string without a scheme separator is treated as a bare host,
// cut at the first '/'. A string that has "://" but no parseable host yields
// ok == false; callers skip domain checks in that case. It never panics.
func ExtractHost(raw string) (host string, ok bool) {
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		host = CanonicalHost(u.Hostname())
		return host, host != ""
	}
	if strings.Contains(raw, "://") {
		return "", false
	}
	host = raw
	if i := strings.IndexByte(host, '/'); i >= 0 {
		host = host[:i]
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = CanonicalHost(host)
	return host, host != ""
}
