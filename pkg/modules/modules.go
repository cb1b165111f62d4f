// Package modules maps source paths of mozilla-central to the module that
// owns them.
package modules

import (
	_ "embed"
	"fmt"
	"path"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Heuristic buckets used when the table has no entry for a path.
const (
	BuildConfig = "Build Config"
	JavaScript  = "JavaScript Engine"
	Security    = "Security"
	Profiler    = "Gecko Profiler"
)

//go:embed modules.yaml
var defaultTable []byte

// Module is one row of the ownership table.
type Module struct {
	Name  string   `yaml:"name"`
	Paths []string `yaml:"paths"`
}

// Table resolves paths to modules.
type Table struct {
	modules []Module
}

// Parse reads a YAML module table.
func Parse(data []byte) (*Table, error) {
	var mods []Module

	err := yaml.Unmarshal(data, &mods)
	if err != nil {
		return nil, fmt.Errorf("parse module table: %w", err)
	}

	return &Table{modules: mods}, nil
}

var (
	defaultOnce sync.Once
	defaultTab  *Table
)

// Default returns the embedded table.
func Default() *Table {
	defaultOnce.Do(func() {
		tab, err := Parse(defaultTable)
		if err != nil {
			panic(err)
		}

		defaultTab = tab
	})

	return defaultTab
}

// Lookup returns the owning module of p, or "" when neither the table nor
// the heuristic buckets know it.
func (t *Table) Lookup(p string) string {
	best, bestLen := "", 0

	for _, mod := range t.modules {
		for _, entry := range mod.Paths {
			if !matches(entry, p) || len(entry) <= bestLen {
				continue
			}

			best, bestLen = mod.Name, len(entry)
		}
	}

	if best != "" {
		return best
	}

	return heuristic(p)
}

func matches(entry, p string) bool {
	if strings.HasSuffix(entry, "/") {
		return strings.HasPrefix(p, entry)
	}

	return p == entry
}

func heuristic(p string) string {
	base := path.Base(p)

	switch {
	case strings.HasPrefix(p, "build/"), strings.HasPrefix(p, "config/"),
		base == "moz.build", base == "moz.configure", strings.HasSuffix(base, ".mk"):
		return BuildConfig
	case strings.HasPrefix(p, "js/src/"):
		return JavaScript
	case strings.HasPrefix(p, "security/"):
		return Security
	case strings.HasPrefix(p, "tools/profiler/"):
		return Profiler
	default:
		return ""
	}
}
