package content

import (
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Guard resolves request paths against a content root. Resolved paths never
// leave the root, including through symlinks.
type Guard struct {
	rootPath string
}

// NewGuard resolves root to a canonical absolute directory.
func NewGuard(root string) (*Guard, error) {
	trimmed := strings.TrimSpace(root)
	if trimmed == "" {
		return nil, NewError(ErrorInvalidPath, "content root must not be empty")
	}

	absPath, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, NewError(ErrorInvalidPath, "content root could not be resolved")
	}

	resolved, err := filepath.EvalSymlinks(filepath.Clean(absPath))
	if err != nil {
		return nil, NormalizeIOError(err, "resolve content root")
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return nil, NormalizeIOError(err, "stat content root")
	}
	if !info.IsDir() {
		return nil, NewError(ErrorInvalidPath, "content root is not a directory")
	}

	return &Guard{rootPath: filepath.Clean(resolved)}, nil
}

// Root returns the canonical content root.
func (g *Guard) Root() string {
	if g == nil {
		return ""
	}

	return g.rootPath
}

// ResolvePath maps a slash-separated request path, with or without a leading
// slash, to a canonical file path inside the root.
func (g *Guard) ResolvePath(requestPath string) (string, error) {
	if g == nil {
		return "", NewError(ErrorIO, "content guard is nil")
	}

	trimmed := strings.TrimLeft(strings.TrimSpace(requestPath), "/")
	if trimmed == "" {
		return "", NewError(ErrorInvalidPath, "path must not be empty")
	}
	if strings.ContainsRune(trimmed, 0) || strings.Contains(trimmed, `\`) {
		return "", NewError(ErrorInvalidPath, "path contains illegal characters")
	}

	// path.Clean keeps leading ".." elements, so traversal is still caught below.
	candidate := filepath.Join(g.rootPath, filepath.FromSlash(path.Clean(trimmed)))
	if !isWithin(g.rootPath, candidate) {
		return "", NewError(ErrorOutsideRoot, "resolved path escapes content root")
	}

	effectivePath, err := canonicalPath(candidate)
	if err != nil {
		return "", err
	}

	if !isWithin(g.rootPath, effectivePath) {
		return "", NewError(ErrorOutsideRoot, "resolved path escapes content root")
	}

	return effectivePath, nil
}

// EnsureContained re-checks containment of an already resolved path.
func (g *Guard) EnsureContained(target string) error {
	effectivePath, err := canonicalPath(target)
	if err != nil {
		return err
	}

	if !isWithin(g.rootPath, effectivePath) {
		return NewError(ErrorOutsideRoot, "resolved path escapes content root")
	}

	return nil
}

// RelPath returns the slash-separated path of target relative to the root.
func (g *Guard) RelPath(target string) string {
	rel, err := filepath.Rel(g.Root(), target)
	if err != nil || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
		return filepath.ToSlash(filepath.Clean(target))
	}

	return filepath.ToSlash(rel)
}

func canonicalPath(target string) (string, error) {
	evaluated, err := filepath.EvalSymlinks(target)
	if err == nil {
		return filepath.Clean(evaluated), nil
	}
	if !os.IsNotExist(err) {
		return "", NormalizeIOError(err, "resolve path")
	}

	parent, remainder, splitErr := nearestExistingParent(target)
	if splitErr != nil {
		return "", splitErr
	}

	evaluatedParent, evalErr := filepath.EvalSymlinks(parent)
	if evalErr != nil {
		return "", NormalizeIOError(evalErr, "resolve path")
	}

	return filepath.Clean(filepath.Join(evaluatedParent, remainder)), nil
}

func nearestExistingParent(target string) (string, string, error) {
	current := filepath.Clean(target)
	var parts []string

	for {
		if _, err := os.Lstat(current); err == nil {
			remainder := ""
			for i := len(parts) - 1; i >= 0; i-- {
				remainder = filepath.Join(remainder, parts[i])
			}
			return current, remainder, nil
		}

		base := filepath.Base(current)
		if base == "." || base == string(filepath.Separator) {
			break
		}
		parts = append(parts, base)

		next := filepath.Dir(current)
		if next == current {
			break
		}
		current = next
	}

	return "", "", NewError(ErrorInvalidPath, "path could not be resolved")
}

func isWithin(root string, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}

	return !filepath.IsAbs(rel)
}
