package registry

import (
	"strings"
	"unicode"

	"github.com/kozaktomas/facegate/internal/store"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizeName normalizes a name for fuzzy comparison (lowercase, no diacritics, spaces for dashes).
// Exact lookups via Get never normalize.
func NormalizeName(name string) string {
	name = RemoveDiacritics(name)
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", " ")
	return strings.Join(strings.Fields(name), " ")
}

// Search returns members whose normalized name contains the normalized query,
// in enrollment order. An empty query matches everyone.
func (r *Registry) Search(query string) []store.Member {
	q := NormalizeName(query)

	var out []store.Member
	for m := range r.All() {
		if q == "" || strings.Contains(NormalizeName(m.Name), q) {
			out = append(out, m)
		}
	}
	return out
}
