package users

import (
	"errors"
	"strings"

	"github.com/hireloop/ats-gateway/internal/models"
)

var ErrIncompleteClaims = errors.New("identity claims lack subject or email")

// FromClaims builds a principal from ID token claims. The subject falls back
// to oid; emails fall back to email, then preferred_username.
func FromClaims(claims map[string]interface{}) (*models.User, error) {
	u := &models.User{
		ID:       firstString(claims, "sub", "oid"),
		Name:     firstString(claims, "name"),
		TenantID: firstString(claims, "tid"),
	}
	u.Emails = emailList(claims["emails"])
	if len(u.Emails) == 0 {
		if e := firstString(claims, "email", "preferred_username"); e != "" {
			u.Emails = []string{e}
		}
	}
	if !u.Complete() {
		return nil, ErrIncompleteClaims
	}
	return u, nil
}

func firstString(claims map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := claims[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func emailList(v interface{}) []string {
	var raw []string
	switch t := v.(type) {
	case []interface{}:
		for _, e := range t {
			if s, ok := e.(string); ok {
				raw = append(raw, s)
			}
		}
	case []string:
		raw = t
	case string:
		raw = []string{t}
	}
	seen := map[string]bool{}
	var out []string
	for _, e := range raw {
		e = strings.TrimSpace(e)
		if e == "" || seen[strings.ToLower(e)] {
			continue
		}
		seen[strings.ToLower(e)] = true
		out = append(out, e)
	}
	return out
}
