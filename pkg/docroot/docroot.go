// Package docroot maps request paths onto a virtual host's document root and
// decides whether the resulting file may be served.
package docroot

import (
	"path/filepath"
	"strconv"
	"strings"
)

// Placeholders recognised in root and error page templates.
const (
	TokenHostname = "$hostname$"
	TokenPort     = "$port$"
	TokenRoot     = "$root$"
)

// Expand substitutes the host and port placeholders of a root template.
func Expand(template, host string, port uint16) string {
	return strings.NewReplacer(
		TokenHostname, host,
		TokenPort, strconv.FormatUint(uint64(port), 10),
	).Replace(template)
}

// ExpandPage substitutes the placeholders of an error page template, which
// may additionally refer to the effective root.
func ExpandPage(template, host string, port uint16, root string) string {
	return strings.NewReplacer(
		TokenHostname, host,
		TokenPort, strconv.FormatUint(uint64(port), 10),
		TokenRoot, root,
	).Replace(template)
}

// ValidHost reports whether host is safe to substitute into a root template.
// A host header such as ".." would otherwise move the root itself.
func ValidHost(host string) bool {
	if host == "." || host == ".." {
		return false
	}
	return !strings.ContainsAny(host, "/\\\x00")
}

// Compose joins the effective root and the URL path. A path ending in a
// separator names a directory and gets the default page appended.
func Compose(root, urlPath, defaultPage string) string {
	path := root + urlPath
	if path == "" {
		path = "/"
	}
	if strings.HasSuffix(path, "/") || strings.HasSuffix(path, string(filepath.Separator)) {
		path += defaultPage
	}
	return path
}

// Resolution is the outcome of resolving one request.
type Resolution struct {
	Root    string // effective document root
	Path    string // file to serve
	Allowed bool   // false when Path escapes Root
}

type Resolver struct {
	RootTemplate string
	DefaultPage  string
}

// Resolve builds the file path for a request. The returned path is lexically
// clean so the file opened later is the one Within has checked: the kernel
// would otherwise resolve ".." after following symlinks.
func (r Resolver) Resolve(host string, port uint16, urlPath string) Resolution {
	root := Expand(r.RootTemplate, host, port)
	path := filepath.Clean(Compose(root, urlPath, r.DefaultPage))
	return Resolution{
		Root:    root,
		Path:    path,
		Allowed: Within(root, path),
	}
}

// Within reports whether path, once canonicalized, lies inside root. The
// comparison is done on whole path segments so "/srv/site2" is not inside
// "/srv/site".
func Within(root, path string) bool {
	base, err := weaklyCanonical(root)
	if err != nil {
		return false
	}
	target, err := weaklyCanonical(path)
	if err != nil {
		return false
	}

	baseSegments := segments(base)
	targetSegments := segments(target)
	if len(targetSegments) < len(baseSegments) {
		return false
	}
	for i, segment := range baseSegments {
		if targetSegments[i] != segment {
			return false
		}
	}
	return true
}

// weaklyCanonical makes p absolute and lexically clean, then resolves symlinks
// for the longest prefix that exists on disk. The remainder is kept as is.
func weaklyCanonical(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}

	existing, rest := abs, ""
	for {
		// Any failure (missing, not a directory, permission) moves one
		// level up; whatever cannot be resolved cannot be read either.
		if resolved, err := filepath.EvalSymlinks(existing); err == nil {
			return filepath.Join(resolved, rest), nil
		}

		parent := filepath.Dir(existing)
		if parent == existing {
			return abs, nil
		}
		rest = filepath.Join(filepath.Base(existing), rest)
		existing = parent
	}
}

func segments(p string) []string {
	parts := strings.Split(filepath.ToSlash(p), "/")
	out := parts[:0]
	for _, part := range parts {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
