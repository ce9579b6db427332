package kernel

import "strings"

// resolvePath turns a syscall path argument into an absolute path, joining
// it against cwd when it isn't already absolute, per §3.
func resolvePath(cwd, path string) string {
	if strings.HasPrefix(path, "/") {
		return cleanPath(path)
	}
	if cwd == "" {
		cwd = "/"
	}
	return cleanPath(cwd + "/" + path)
}

// cleanPath collapses "." and empty segments and removes duplicate
// slashes, without resolving ".." (the VFS has no parent-directory
// pointers to walk, per §9's cyclic-reference note).
func cleanPath(path string) string {
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" || p == "." {
			continue
		}
		out = append(out, p)
	}
	return "/" + strings.Join(out, "/")
}

// splitLast splits an absolute path into its parent directory and final
// component, used by operations that must act on a containing directory.
func splitLast(path string) (dir, name string) {
	path = cleanPath(path)
	idx := strings.LastIndex(path, "/")
	if idx <= 0 {
		return "/", path[idx+1:]
	}
	return path[:idx], path[idx+1:]
}
