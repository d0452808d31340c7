package auth

import "strings"

// ClaimsExtractor reads user attributes out of JWT claims using
// dot-separated paths such as "realm_access.roles".
type ClaimsExtractor struct {
	SubjectClaimPath string
	EmailClaimPath   string
	NameClaimPath    string

	// RoleClaimPath may point at a string or a list of strings. The first
	// value that names a known role wins.
	RoleClaimPath string

	// RolePrefix is stripped from role values before matching.
	RolePrefix string
}

// DefaultClaimsExtractor returns an extractor with common defaults.
func DefaultClaimsExtractor() *ClaimsExtractor {
	return &ClaimsExtractor{
		SubjectClaimPath: "sub",
		EmailClaimPath:   "email",
		NameClaimPath:    "name",
		RoleClaimPath:    "role",
	}
}

// Extract builds a User from claims. Role is empty when no known role is
// present.
func (e *ClaimsExtractor) Extract(claims map[string]any) *User {
	u := &User{
		ID:       stringAt(claims, e.SubjectClaimPath),
		Email:    stringAt(claims, e.EmailClaimPath),
		Name:     stringAt(claims, e.NameClaimPath),
		AuthType: AuthTypeJWT,
	}
	for _, r := range stringsAt(claims, e.RoleClaimPath) {
		if e.RolePrefix != "" {
			var ok bool
			if r, ok = strings.CutPrefix(r, e.RolePrefix); !ok {
				continue
			}
		}
		if ValidRole(r) {
			u.Role = r
			break
		}
	}
	return u
}

func stringAt(claims map[string]any, path string) string {
	s, _ := valueAt(claims, path).(string)
	return s
}

func stringsAt(claims map[string]any, path string) []string {
	switch v := valueAt(claims, path).(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// valueAt gets a value at a dot-separated path.
func valueAt(claims map[string]any, path string) any {
	if path == "" {
		return nil
	}
	var current any = claims
	for part := range strings.SplitSeq(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[part]
	}
	return current
}
