package dom

import (
	"net/url"
	"strings"
)

// Origin returns the serialised origin of u: scheme, host and port, with
// the scheme's default port dropped.
func Origin(u *url.URL) string {
	if u == nil || u.Host == "" {
		return "null"
	}
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		host += ":" + port
	}
	return scheme + "://" + host
}

// SameOrigin reports whether a and b share an origin. Opaque origins never match.
func SameOrigin(a, b *url.URL) bool {
	oa, ob := Origin(a), Origin(b)
	return oa != "null" && oa == ob
}

// Resolve resolves href against base the way an anchor's href property does.
func Resolve(base *url.URL, href string) (*url.URL, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return nil, err
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	dropDefaultPort(ref)
	return ref, nil
}

// dropDefaultPort normalises http://host:80 and https://host:443 to the
// bare host, as the URL parser in a browser does.
func dropDefaultPort(u *url.URL) {
	port := u.Port()
	if port == "" {
		return
	}
	scheme := strings.ToLower(u.Scheme)
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		u.Host = strings.TrimSuffix(u.Host, ":"+port)
	}
}

// StripFragment returns u without its fragment.
func StripFragment(u *url.URL) *url.URL {
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	return &c
}
