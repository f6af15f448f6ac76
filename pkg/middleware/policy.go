package middleware

import (
	"regexp"
	"strings"
)

// Policy is the authentication a matched route requires.
type Policy int

const (
	// PolicyPublic routes need no credentials.
	PolicyPublic Policy = iota
	// PolicyBearerLenient routes verify a bearer when one is sent, but let
	// failed or absent bearers through (unless bearers are mandated).
	PolicyBearerLenient
	// PolicyBearer routes reject failed bearers; without one they fall back
	// to the session check.
	PolicyBearer
)

func (p Policy) String() string {
	switch p {
	case PolicyPublic:
		return "public"
	case PolicyBearerLenient:
		return "bearer_lenient"
	case PolicyBearer:
		return "bearer"
	}
	return "unknown"
}

// Route is one entry of a bypass table.
type Route struct {
	Name    string
	Method  string
	Pattern *regexp.Regexp
	Policy  Policy
}

// NewRoute compiles pattern anchored at both ends, so an entry can never
// match more than the whole path it describes.
func NewRoute(name, method, pattern string, p Policy) Route {
	return Route{
		Name:    name,
		Method:  method,
		Pattern: regexp.MustCompile(`^(?:` + pattern + `)$`),
		Policy:  p,
	}
}

// Table is an ordered list of routes; the first match wins.
type Table []Route

func (t Table) Match(method, path string) (Route, bool) {
	for _, r := range t {
		if r.Method == method && r.Pattern.MatchString(path) {
			return r, true
		}
	}
	return Route{}, false
}

const tenantSeg = `/[^/]+`

// DefaultPublicPrefixes bypass authentication entirely.
var DefaultPublicPrefixes = []string{
	"/public", "/auth", "/health", "/ready", "/metrics", "/swagger", "/files-signed",
}

// DefaultPublicReads are unauthenticated read endpoints.
func DefaultPublicReads() Table {
	return Table{
		NewRoute("ai_score", "GET", tenantSeg+`/api/ats/applications/[0-9]+/ai-score/?`, PolicyPublic),
		NewRoute("public_jobs", "GET", tenantSeg+`/api/ats/public/jobs(?:/[0-9]+)?/?`, PolicyPublic),
	}
}

// DefaultServiceRoutes are the write endpoints open to client-credential
// callers. The first path segment must be the client-credential tenant
// itself, not any segment the resolver happened to accept.
func DefaultServiceRoutes(tenant string) Table {
	seg := "/" + regexp.QuoteMeta(tenant)
	return Table{
		NewRoute("public_submission", "POST", seg+`/api/ats/public/applications/?`, PolicyBearerLenient),
		NewRoute("service_submission", "POST", seg+`/api/ats/applications/?`, PolicyBearer),
		NewRoute("attachment_upload", "POST", seg+`/api/ats/applications/[0-9]+/attachments/?`, PolicyBearer),
	}
}

// hasPublicPrefix matches whole segments: "/auth" covers "/auth/login" but
// not "/authz".
func hasPublicPrefix(prefixes []string, p string) bool {
	for _, pre := range prefixes {
		pre = strings.TrimRight(pre, "/")
		if pre == "" {
			continue
		}
		if p == pre || strings.HasPrefix(p, pre+"/") {
			return true
		}
	}
	return false
}

// canonicalPath reports whether p is absolute with no ".", ".." or empty
// segments (a single trailing slash is allowed).
func canonicalPath(p string) bool {
	if !strings.HasPrefix(p, "/") {
		return false
	}
	if p == "/" {
		return true
	}
	segs := strings.Split(strings.TrimSuffix(p[1:], "/"), "/")
	for _, s := range segs {
		if s == "" || s == "." || s == ".." {
			return false
		}
	}
	return true
}
