// Package secrets resolves SECRET:NAME indirections found in a
// source's api parser_hint, per spec.md §6.
package secrets

import (
	"os"
	"strings"
)

const prefix = "SECRET:"

// Resolver looks up a named secret. Callers pass the bare name (with
// the "SECRET:" prefix already stripped).
type Resolver interface {
	Resolve(name string) (string, bool)
}

// EnvResolver resolves secrets from the process environment. This is
// the default resolver; production deployments may inject a different
// Resolver (e.g. backed by a vault) without changing call sites.
type EnvResolver struct{}

func (EnvResolver) Resolve(name string) (string, bool) {
	return os.LookupEnv(name)
}

// IsRef reports whether s is a "SECRET:NAME" indirection.
func IsRef(s string) bool {
	return strings.HasPrefix(s, prefix)
}

// RefName extracts NAME from "SECRET:NAME". Callers must check IsRef
// first.
func RefName(s string) string {
	return strings.TrimPrefix(s, prefix)
}

// ResolveString resolves s if it is a SECRET: reference, otherwise
// returns it unchanged. ok is false only when s is a reference that
// failed to resolve.
func ResolveString(r Resolver, s string) (value string, ok bool) {
	if !IsRef(s) {
		return s, true
	}
	return r.Resolve(RefName(s))
}

// ResolveMap walks a map[string]any (as decoded from a parser_hint's
// JSON `auth` block) and resolves every string value that is a
// SECRET: reference in place. It returns the names of any references
// that failed to resolve.
func ResolveMap(r Resolver, m map[string]any) (missing []string) {
	for k, v := range m {
		s, ok := v.(string)
		if !ok || !IsRef(s) {
			continue
		}
		resolved, found := r.Resolve(RefName(s))
		if !found {
			missing = append(missing, RefName(s))
			continue
		}
		m[k] = resolved
	}
	return missing
}
