package classpath

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
)

// ManifestName is the resource path of an archive manifest
const ManifestName = "META-INF/MANIFEST.MF"

// maxLoaderDepth bounds the parent walk so a cyclic hierarchy terminates
const maxLoaderDepth = 256

// Loader is one link of a loader hierarchy
type Loader interface {
	Name() string
	Parent() Loader
}

// URLLoader is a loader that exposes its code locations as URLs
type URLLoader interface {
	Loader
	URLs() []string
}

// Resource is a named resource reachable through a loader
type Resource interface {
	// Base is the directory relative Class-Path references resolve against.
	Base() string
	Open() (io.ReadCloser, error)
}

// ResourceLoader is a loader that can enumerate bundled resources by name
type ResourceLoader interface {
	Loader
	Resources(name string) ([]Resource, error)
}

// StaticLoader is a loader backed by a fixed list of directories and archives
type StaticLoader struct {
	name      string
	locations []string
	parent    Loader
}

// NewStaticLoader creates a loader over locations, delegating to parent
func NewStaticLoader(name string, parent Loader, locations ...string) *StaticLoader {
	if sl, ok := parent.(*StaticLoader); ok && sl == nil {
		parent = nil
	}
	return &StaticLoader{
		name:      name,
		locations: append([]string(nil), locations...),
		parent:    parent,
	}
}

// Name implements Loader
func (l *StaticLoader) Name() string { return l.name }

// Parent implements Loader
func (l *StaticLoader) Parent() Loader { return l.parent }

// Locations returns the loader's own code locations
func (l *StaticLoader) Locations() []string {
	return append([]string(nil), l.locations...)
}

// URLs implements URLLoader
func (l *StaticLoader) URLs() []string {
	urls := make([]string, 0, len(l.locations))
	for _, loc := range l.locations {
		u := url.URL{Scheme: "file", Path: filepath.ToSlash(absolute(loc))}
		urls = append(urls, u.String())
	}
	return urls
}

// Resources implements ResourceLoader. Locations that cannot be read are
// reported through the joined error while the remaining resources are still
// returned.
func (l *StaticLoader) Resources(name string) ([]Resource, error) {
	var found []Resource
	var errs []error

	for _, loc := range l.locations {
		info, err := os.Stat(loc)
		if err != nil {
			// absent locations are filtered later by the resolver
			continue
		}

		if info.IsDir() {
			p := filepath.Join(loc, filepath.FromSlash(name))
			if _, err := os.Stat(p); err == nil {
				found = append(found, fileResource{path: p, base: absolute(loc)})
			}
			continue
		}

		ok, err := archiveHas(loc, name)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", loc, err))
			continue
		}
		if ok {
			found = append(found, archiveResource{archive: loc, name: name})
		}
	}

	return found, errors.Join(errs...)
}

type fileResource struct {
	path string
	base string
}

func (r fileResource) Base() string { return r.base }

func (r fileResource) Open() (io.ReadCloser, error) { return os.Open(r.path) }

type archiveResource struct {
	archive string
	name    string
}

func (r archiveResource) Base() string { return filepath.Dir(absolute(r.archive)) }

func (r archiveResource) Open() (io.ReadCloser, error) {
	zr, err := zip.OpenReader(r.archive)
	if err != nil {
		return nil, err
	}
	for _, f := range zr.File {
		if f.Name != r.name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			zr.Close()
			return nil, err
		}
		return &archiveEntryReader{ReadCloser: rc, archive: zr}, nil
	}
	zr.Close()
	return nil, fmt.Errorf("%s!/%s: %w", r.archive, r.name, os.ErrNotExist)
}

type archiveEntryReader struct {
	io.ReadCloser
	archive *zip.ReadCloser
}

func (r *archiveEntryReader) Close() error {
	err := r.ReadCloser.Close()
	if cerr := r.archive.Close(); err == nil {
		err = cerr
	}
	return err
}

func archiveHas(path, name string) (bool, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return false, err
	}
	defer zr.Close()
	for _, f := range zr.File {
		if f.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// LoaderProvider walks a loader hierarchy from loader up through its
// parents. Links exposing URLs contribute them in order; afterwards the
// Class-Path attribute of every manifest reachable through each link is
// contributed. Links exposing neither contribute nothing.
func LoaderProvider(loader Loader) Provider {
	return ProviderFunc{
		ID: "loader",
		Fn: func() []Contribution {
			chain := loaderChain(loader)

			var out []Contribution
			for _, l := range chain {
				if ul, ok := l.(URLLoader); ok {
					for _, raw := range ul.URLs() {
						out = append(out, urlContribution(raw))
					}
				}
			}
			for _, l := range chain {
				if rl, ok := l.(ResourceLoader); ok {
					out = append(out, manifestContributions(rl)...)
				}
			}
			return out
		},
	}
}

func loaderChain(loader Loader) []Loader {
	var chain []Loader
	for l := loader; l != nil && len(chain) < maxLoaderDepth; l = l.Parent() {
		chain = append(chain, l)
	}
	return chain
}

func urlContribution(raw string) Contribution {
	path, err := URLToPath(raw)
	if err != nil {
		return Failed(raw, err)
	}
	return Found(raw, path)
}

func manifestContributions(l ResourceLoader) []Contribution {
	item := l.Name() + ":" + ManifestName

	resources, err := l.Resources(ManifestName)
	var out []Contribution
	if err != nil {
		out = append(out, Failed(item, err))
	}

	for _, res := range resources {
		refs, err := readManifestClassPath(res)
		if err != nil {
			out = append(out, Failed(item, err))
			continue
		}
		for _, ref := range refs {
			path, err := ResolveReference(res.Base(), ref)
			if err != nil {
				out = append(out, Failed(ref, err))
				continue
			}
			out = append(out, Found(ref, path))
		}
	}
	return out
}

func readManifestClassPath(res Resource) ([]string, error) {
	rc, err := res.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	m, err := ParseManifest(rc)
	if err != nil {
		return nil, err
	}
	return m.ClassPath(), nil
}

// URLToPath converts a code-location URL to a filesystem path. Plain
// absolute paths are accepted as-is; only the file scheme is supported.
func URLToPath(raw string) (string, error) {
	if raw == "" {
		return "", errors.New("empty location")
	}
	if filepath.IsAbs(raw) {
		return filepath.Clean(raw), nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "":
		return filepath.FromSlash(u.Path), nil
	case "file":
		if u.Host != "" && u.Host != "localhost" {
			return "", fmt.Errorf("remote file location %q", raw)
		}
		if u.Path == "" {
			return "", fmt.Errorf("file URL without path %q", raw)
		}
		return filepath.FromSlash(u.Path), nil
	default:
		return "", fmt.Errorf("unsupported location scheme %q", u.Scheme)
	}
}

// ResolveReference resolves a manifest Class-Path URI against base
func ResolveReference(base, ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	if u.Scheme != "" {
		return URLToPath(ref)
	}
	if u.Path == "" {
		return "", fmt.Errorf("empty class-path reference %q", ref)
	}
	p := filepath.FromSlash(u.Path)
	if filepath.IsAbs(p) {
		return filepath.Clean(p), nil
	}
	return filepath.Join(base, p), nil
}

// String satisfies fmt.Stringer for debugging loader chains
func (l *StaticLoader) String() string {
	return fmt.Sprintf("%s%v", l.name, l.locations)
}
