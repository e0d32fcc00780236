package model

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// trackingQueryKeys are stripped during URL canonicalization, per
// spec.md §3's "strip known tracking query keys" rule.
var trackingQueryKeys = map[string]struct{}{
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_term":     {},
	"utm_content":  {},
	"gclid":        {},
	"fbclid":       {},
	"ref":          {},
	"source":       {},
}

// CanonicalizeURL lowercases scheme+host, strips the fragment and
// known tracking query keys, and removes a trailing slash from paths
// longer than one character. It is idempotent:
// CanonicalizeURL(CanonicalizeURL(u)) == CanonicalizeURL(u).
func CanonicalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return strings.TrimSpace(raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			if _, tracked := trackingQueryKeys[strings.ToLower(key)]; tracked {
				q.Del(key)
			}
		}
		u.RawQuery = q.Encode()
	}

	if len(u.Path) > 1 && strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	return u.String()
}

// CanonicalHash computes sha256_hex(lower(trim(title)) "|" canonicalize(applyURL)),
// the identity invariant of spec.md §3.
func CanonicalHash(title, applyURL string) string {
	norm := strings.ToLower(strings.TrimSpace(title)) + "|" + CanonicalizeURL(applyURL)
	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:])
}
