package util

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Scope joins a namespace and key parts with ':'; empty parts are skipped.
func Scope(ns string, parts ...string) string {
	var b strings.Builder
	b.WriteString(ns)
	for _, p := range parts {
		if p == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(':')
		}
		b.WriteString(p)
	}
	return b.String()
}

// Pattern returns the SCAN MATCH pattern covering every key under ns.
// Glob metacharacters in ns are escaped.
func Pattern(ns string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(ns) + ":*"
}

// Digest returns a short order-insensitive hash of a key set, for logging
// large key groups without printing them.
func Digest(keys []string) string {
	s := make([]string, len(keys))
	copy(s, keys)
	sort.Strings(s)
	return fmt.Sprintf("%016x", xxhash.Sum64String(strings.Join(s, ",")))
}
