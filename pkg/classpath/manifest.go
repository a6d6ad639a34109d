package classpath

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Manifest holds the main attributes of an archive manifest
type Manifest struct {
	main map[string]string
}

// ParseManifest reads the main section of a manifest. Header names are
// case-insensitive and a line starting with a single space continues the
// previous value.
func ParseManifest(r io.Reader) (*Manifest, error) {
	m := &Manifest{main: make(map[string]string)}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)

	var key string
	var value strings.Builder
	flush := func() {
		if key != "" {
			m.main[strings.ToLower(key)] = value.String()
		}
		key = ""
		value.Reset()
	}

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")

		if line == "" {
			// end of the main section
			break
		}
		if strings.HasPrefix(line, " ") {
			if key == "" {
				return nil, fmt.Errorf("manifest line %d: continuation without header", lineNo)
			}
			value.WriteString(line[1:])
			continue
		}

		flush()
		name, val, ok := strings.Cut(line, ":")
		if !ok || name == "" {
			return nil, fmt.Errorf("manifest line %d: invalid header %q", lineNo, line)
		}
		key = name
		value.WriteString(strings.TrimPrefix(val, " "))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	flush()

	return m, nil
}

// Get returns a main attribute
func (m *Manifest) Get(name string) (string, bool) {
	v, ok := m.main[strings.ToLower(name)]
	return v, ok
}

// ClassPath returns the whitespace-separated Class-Path references
func (m *Manifest) ClassPath() []string {
	v, ok := m.Get("Class-Path")
	if !ok {
		return nil
	}
	return strings.Fields(v)
}
