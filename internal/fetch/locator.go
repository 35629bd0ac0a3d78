package fetch

import (
	"net/url"
	"path/filepath"
	"strings"
)

// IsRemote reports whether the locator is an http or https URL.
func IsRemote(locator string) bool {
	u, err := url.Parse(locator)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// LocalPath returns the filesystem path of a file URL or bare path.
func LocalPath(locator string) (string, bool) {
	if IsRemote(locator) {
		return "", false
	}
	if strings.HasPrefix(locator, "file://") {
		u, err := url.Parse(locator)
		if err != nil {
			return "", false
		}
		return filepath.FromSlash(u.Path), true
	}
	return locator, true
}

// Resolve resolves ref relative to base. Absolute URLs and absolute paths
// are returned unchanged. The fragment of ref is dropped.
func Resolve(base, ref string) string {
	ref, _, _ = strings.Cut(ref, "#")
	if ref == "" {
		return base
	}
	if r, err := url.Parse(ref); err == nil && (r.Scheme == "http" || r.Scheme == "https" || r.Scheme == "file") {
		return ref
	}

	if IsRemote(base) || strings.HasPrefix(base, "file://") {
		b, err := url.Parse(base)
		if err != nil {
			return ref
		}
		r, err := url.Parse(ref)
		if err != nil {
			return ref
		}
		return b.ResolveReference(r).String()
	}

	if filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(filepath.Dir(base), filepath.FromSlash(ref))
}
