package adapters

import (
	"net/url"
	"path"
	"strings"
	"unicode"
)

// slugify lowercases s and collapses every run of non-alphanumerics to "-".
func slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// slugFromURL uses the last non-empty path segment of raw.
func slugFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return slugify(raw)
	}
	p := strings.TrimSuffix(u.Path, "/")
	base := path.Base(p)
	if base == "." || base == "/" || base == "" {
		return slugify(u.Host)
	}
	return slugify(strings.TrimSuffix(base, path.Ext(base)))
}
