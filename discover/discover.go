// Package discover finds raw recordings under a data root.
package discover

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"

	"github.com/gobwas/glob"
)

// DefaultPatterns match the EEG container formats handled upstream.
var DefaultPatterns = []string{"**.edf", "**.bdf", "**.set"}

// Matcher selects files by glob patterns over slash-separated paths
// relative to the walk root. "*" stays within one directory, "**" crosses
// directories.
type Matcher struct {
	globs []glob.Glob
}

// NewMatcher compiles patterns. With no patterns, DefaultPatterns are used.
func NewMatcher(patterns ...string) (*Matcher, error) {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	m := &Matcher{}
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid pattern '%s': %w", p, err)
		}
		m.globs = append(m.globs, g)
	}
	return m, nil
}

// Match reports whether the relative path rel matches any pattern.
func (m *Matcher) Match(rel string) bool {
	rel = filepath.ToSlash(filepath.Clean(rel))
	for _, g := range m.globs {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

// Find walks root and returns the absolute paths of all regular files
// matching patterns, sorted lexicographically.
func Find(ctx context.Context, root string, patterns ...string) ([]string, error) {
	m, err := NewMatcher(patterns...)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	var paths []string
	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(abs, path)
		if err != nil {
			return err
		}
		if m.Match(rel) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	slices.Sort(paths)
	return paths, nil
}
