// Package files implements the workspace file tools. Every path is resolved
// against the session workspace; nothing outside it is reachable.
package files

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	maxReadBytes   = 1 << 20 // larger files need offset/limit
	maxSearchHits  = 100
	maxScannedSize = 1 << 20
)

// resolve maps a tool-supplied path into the session workspace. Absolute
// paths are accepted only when they already point inside it.
func resolve(workDir, path string) (string, error) {
	if workDir == "" {
		return "", fmt.Errorf("no workspace configured for this session")
	}
	root := filepath.Clean(workDir)
	if path == "" || path == "." {
		return root, nil
	}
	p := path
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	p = filepath.Clean(p)
	if p != root && !strings.HasPrefix(p, root+string(filepath.Separator)) {
		return "", fmt.Errorf("access denied: %s is outside your workspace", path)
	}
	return p, nil
}

// rel renders a resolved path back to workspace-relative form for output.
func rel(workDir, path string) string {
	if r, err := filepath.Rel(filepath.Clean(workDir), path); err == nil {
		return r
	}
	return path
}
