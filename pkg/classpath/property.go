package classpath

import (
	"os"
	"path/filepath"
	"strings"
)

// Default process-level path properties
const (
	ApplicationClassPath = "CLASSPATH"
	BootClassPath        = "BOOT_CLASSPATH"
)

// LookupFunc reads a named property
type LookupFunc func(key string) (string, bool)

// PropertyProvider splits the value of a path-list property on the platform
// separator. An unset property contributes nothing.
func PropertyProvider(key string, lookup LookupFunc) Provider {
	return ProviderFunc{
		ID: "property:" + key,
		Fn: func() []Contribution {
			if lookup == nil {
				return nil
			}
			value, ok := lookup(key)
			if !ok {
				return nil
			}
			return splitPathList(key, value)
		},
	}
}

// EnvProvider reads a path-list property from the process environment
func EnvProvider(key string) Provider {
	return PropertyProvider(key, os.LookupEnv)
}

// StaticProvider contributes a fixed list of paths
func StaticProvider(name string, paths ...string) Provider {
	return ProviderFunc{
		ID: name,
		Fn: func() []Contribution {
			out := make([]Contribution, 0, len(paths))
			for _, p := range paths {
				if p == "" {
					continue
				}
				out = append(out, Found(p, p))
			}
			return out
		},
	}
}

// DefaultProviders returns the standard provider order: the loader
// hierarchy (with manifest references), then the application and boot path
// properties.
func DefaultProviders(loader Loader, lookup LookupFunc) []Provider {
	return []Provider{
		LoaderProvider(loader),
		PropertyProvider(ApplicationClassPath, lookup),
		PropertyProvider(BootClassPath, lookup),
	}
}

func splitPathList(key, value string) []Contribution {
	var out []Contribution
	for _, element := range strings.Split(value, string(os.PathListSeparator)) {
		element = strings.TrimSpace(element)
		if element == "" {
			continue
		}
		out = append(out, Found(key+"="+element, filepath.FromSlash(element)))
	}
	return out
}
