package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// ResolveLink resolves href against base and returns an absolute URL with the
// scheme and host lowercased, default ports removed, and the fragment dropped.
func ResolveLink(base *url.URL, href string) (*url.URL, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return nil, fmt.Errorf("empty link")
	}
	ref, err := url.Parse(href)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	u := ref
	if base != nil {
		u = base.ResolveReference(ref)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("link %q is not absolute", href)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u, nil
}

// HostAllowed reports whether host is site itself or one of its subdomains.
func HostAllowed(host, site string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	site = strings.ToLower(strings.TrimSuffix(site, "."))
	if site == "" {
		return true
	}
	return host == site || strings.HasSuffix(host, "."+site)
}
