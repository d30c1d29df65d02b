package tarimg

import "strings"

// NormalizePath converts an archive-provided path to a canonical form.
//
// It performs the following transformations:
//   - Strips leading slashes: "/etc/nginx" → "etc/nginx"
//   - Strips trailing slashes: "etc/nginx/" → "etc/nginx"
//   - Collapses consecutive slashes: "etc//nginx" → "etc/nginx"
//   - Converts empty string to root: "" → "."
//
// "." and ".." elements are preserved, not resolved.
func NormalizePath(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return "."
	}

	// Collapse consecutive slashes by splitting and rejoining.
	parts := strings.Split(p, "/")
	result := parts[:0] // reuse backing array
	for _, part := range parts {
		if part != "" {
			result = append(result, part)
		}
	}
	if len(result) == 0 {
		return "."
	}
	return strings.Join(result, "/")
}

// components splits a normalized path into its segments. The root path "."
// has no components.
func components(p string) []string {
	if p == "." {
		return nil
	}
	return strings.Split(p, "/")
}
