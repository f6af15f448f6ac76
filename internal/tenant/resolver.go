// Package tenant maps requests to a tenant id and that tenant's database.
package tenant

import "strings"

// Resolver picks the tenant for a request. It never fails: unmatched
// requests get the default tenant.
type Resolver struct {
	known map[string]struct{}
	ids   []string
	def   string
}

// NewResolver builds a resolver over the known tenant ids. The default is
// always part of the known set; when empty, the first known id is used.
func NewResolver(known []string, def string) *Resolver {
	r := &Resolver{known: make(map[string]struct{}, len(known))}
	for _, id := range known {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := r.known[id]; dup {
			continue
		}
		r.known[id] = struct{}{}
		r.ids = append(r.ids, id)
	}
	if def == "" && len(r.ids) > 0 {
		def = r.ids[0]
	}
	if def == "" {
		def = "ats"
	}
	if _, ok := r.known[def]; !ok {
		r.known[def] = struct{}{}
		r.ids = append(r.ids, def)
	}
	r.def = def
	return r
}

// Resolve returns, in order of preference: param when it is a known tenant,
// the first known segment of routePath, the first known segment of rawPath,
// or the default.
func (r *Resolver) Resolve(param, routePath, rawPath string) string {
	if r.Known(param) {
		return param
	}
	if id, ok := r.firstKnownSegment(routePath); ok {
		return id
	}
	if id, ok := r.firstKnownSegment(rawPath); ok {
		return id
	}
	return r.def
}

func (r *Resolver) Known(id string) bool {
	if id == "" {
		return false
	}
	_, ok := r.known[id]
	return ok
}

func (r *Resolver) Default() string { return r.def }

// Tenants returns the known ids in configuration order.
func (r *Resolver) Tenants() []string {
	return append([]string(nil), r.ids...)
}

func (r *Resolver) firstKnownSegment(p string) (string, bool) {
	for _, seg := range strings.Split(p, "/") {
		if r.Known(seg) {
			return seg, true
		}
	}
	return "", false
}
