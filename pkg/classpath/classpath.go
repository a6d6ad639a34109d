// Package classpath assembles the ordered list of code locations handed to
// the compiler. Locations come from an injected list of providers (a loader
// hierarchy, manifest Class-Path references, path-list properties); every
// provider reports per-item results and failed items are skipped, never fatal.
package classpath

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/poltergeist/conjure/pkg/logger"
)

// Entry is a code location (directory or archive) that existed on disk at resolution time
type Entry struct {
	Path   string
	Source string
}

// Contribution is the outcome of resolving one item of a provider:
// either a path, or the error that made the item contribute nothing.
type Contribution struct {
	Item string
	Path string
	Err  error
}

// Found reports a successfully resolved item
func Found(item, path string) Contribution {
	return Contribution{Item: item, Path: path}
}

// Failed reports an item that could not be resolved
func Failed(item string, err error) Contribution {
	return Contribution{Item: item, Err: err}
}

// Provider is one source of classpath locations
type Provider interface {
	Name() string
	Contributions() []Contribution
}

// ProviderFunc adapts a function to Provider
type ProviderFunc struct {
	ID string
	Fn func() []Contribution
}

// Name implements Provider
func (p ProviderFunc) Name() string { return p.ID }

// Contributions implements Provider
func (p ProviderFunc) Contributions() []Contribution { return p.Fn() }

// Skip records an item that contributed nothing
type Skip struct {
	Provider string
	Item     string
	Err      error
}

func (s Skip) String() string {
	return fmt.Sprintf("%s: %s: %v", s.Provider, s.Item, s.Err)
}

// Resolution is the result of a classpath walk
type Resolution struct {
	Entries []Entry
	// Skipped holds items whose resolution failed.
	Skipped []Skip
	// Missing holds deduplicated paths dropped because they did not exist.
	Missing []string
}

// Paths returns the entry paths in order
func (r *Resolution) Paths() []string {
	paths := make([]string, len(r.Entries))
	for i, e := range r.Entries {
		paths[i] = e.Path
	}
	return paths
}

// String joins the entries with the platform path list separator
func (r *Resolution) String() string {
	return strings.Join(r.Paths(), string(os.PathListSeparator))
}

// Resolver walks providers and builds a Resolution. It holds no mutable state
// and may be used from several goroutines.
type Resolver struct {
	logger logger.Logger
}

// NewResolver creates a resolver; a nil logger discards skip reports
func NewResolver(log logger.Logger) *Resolver {
	return &Resolver{logger: logger.OrNop(log)}
}

// Resolve is shorthand for NewResolver(nil).Resolve
func Resolve(providers ...Provider) *Resolution {
	return NewResolver(nil).Resolve(providers...)
}

// Resolve concatenates all provider contributions in order, removes
// duplicates by canonical path keeping the first occurrence, then drops
// locations that do not exist.
func (r *Resolver) Resolve(providers ...Provider) *Resolution {
	res := &Resolution{}
	seen := make(map[string]bool)

	var candidates []Entry
	for _, p := range providers {
		if p == nil {
			continue
		}
		for _, c := range p.Contributions() {
			if c.Err != nil {
				skip := Skip{Provider: p.Name(), Item: c.Item, Err: c.Err}
				res.Skipped = append(res.Skipped, skip)
				r.logger.Debug("Classpath item skipped",
					logger.WithField("provider", skip.Provider),
					logger.WithField("item", skip.Item),
					logger.WithField("error", skip.Err))
				continue
			}
			if c.Path == "" {
				continue
			}

			abs := absolute(c.Path)
			key := Canonical(abs)
			if seen[key] {
				continue
			}
			seen[key] = true
			candidates = append(candidates, Entry{Path: abs, Source: p.Name()})
		}
	}

	for _, e := range candidates {
		if _, err := os.Stat(e.Path); err != nil {
			res.Missing = append(res.Missing, e.Path)
			r.logger.Debug("Classpath entry does not exist",
				logger.WithField("path", e.Path),
				logger.WithField("provider", e.Source))
			continue
		}
		res.Entries = append(res.Entries, e)
	}

	return res
}

// Canonical returns the path used to detect duplicates: absolute, cleaned,
// and with symlinks evaluated when the target exists.
func Canonical(path string) string {
	abs := absolute(path)
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

func absolute(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}
