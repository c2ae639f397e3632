package auth

import (
	"fmt"
	"strings"
)

// ClaimsExtractor extracts an Identity from JWT claims.
type ClaimsExtractor struct {
	// UserIDClaimPaths are tried in order; the first non-empty string wins.
	UserIDClaimPaths []string

	// EmailClaimPath is the path to the email claim.
	EmailClaimPath string

	// NameClaimPath is the path to the name claim.
	NameClaimPath string
}

// DefaultClaimsExtractor reads the user id from "userId", then "sub".
func DefaultClaimsExtractor() *ClaimsExtractor {
	return &ClaimsExtractor{
		UserIDClaimPaths: []string{"userId", "sub"},
		EmailClaimPath:   "email",
		NameClaimPath:    "name",
	}
}

// Extract builds an Identity from claims.
func (e *ClaimsExtractor) Extract(claims map[string]any) (*Identity, error) {
	id := &Identity{Claims: claims}

	for _, path := range e.UserIDClaimPaths {
		if v := getStringValue(claims, path); v != "" {
			id.UserID = v
			break
		}
	}
	if id.UserID == "" {
		return nil, fmt.Errorf("missing user id claim")
	}

	id.Email = getStringValue(claims, e.EmailClaimPath)
	id.Name = getStringValue(claims, e.NameClaimPath)
	return id, nil
}

// getStringValue gets a string value at a dot-separated path.
func getStringValue(claims map[string]any, path string) string {
	if s, ok := getValue(claims, path).(string); ok {
		return s
	}
	return ""
}

// getValue gets a value at a dot-separated path.
func getValue(claims map[string]any, path string) any {
	if path == "" {
		return nil
	}

	var current any = claims
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[part]
	}
	return current
}
