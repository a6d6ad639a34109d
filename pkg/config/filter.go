package config

import (
	"path"
	"path/filepath"
	"strings"
)

// Editor backup files and version control metadata never count as
// resources or source changes
var defaultIgnored = []string{"___jb_old___", "___jb_bak___", "/.svn/"}

// ResourceFilter decides which files under a source root are copied to
// the destination as resources
type ResourceFilter struct {
	contains []string
	globs    []string
}

// NewResourceFilter builds a filter from the built-in exclusions plus
// patterns. Patterns containing glob metacharacters match the base name;
// others match as substrings of the slash-separated path.
func NewResourceFilter(patterns ...string) *ResourceFilter {
	f := &ResourceFilter{contains: append([]string(nil), defaultIgnored...)}
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if strings.ContainsAny(p, "*?[") {
			f.globs = append(f.globs, p)
		} else {
			f.contains = append(f.contains, p)
		}
	}
	return f
}

// Ignored reports whether file is excluded
func (f *ResourceFilter) Ignored(file string) bool {
	slashed := filepath.ToSlash(file)
	for _, c := range f.contains {
		if strings.Contains(slashed, c) {
			return true
		}
	}
	base := path.Base(slashed)
	for _, g := range f.globs {
		if ok, _ := path.Match(g, base); ok {
			return true
		}
	}
	return false
}

// ResourceFilter returns the filter configured for watch mode
func (c *Config) ResourceFilter() *ResourceFilter {
	if c.Watch == nil {
		return NewResourceFilter()
	}
	return NewResourceFilter(c.Watch.Ignore...)
}
