// Package testutil provides reusable testing helpers for enforcing import
// boundaries across the repository.
package testutil

import (
	"fmt"
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// ImportViolations loads the packages matching pattern and returns one
// "pkg: import" entry for every import that satisfies forbidden. With
// transitive set, every package reachable from the matched ones is checked
// as well; the matched packages themselves never count as violations.
func ImportViolations(pattern string, transitive bool, forbidden func(importPath string) bool) ([]string, error) {
	mode := packages.NeedName | packages.NeedImports
	if transitive {
		mode |= packages.NeedDeps
	}
	pkgs, err := packages.Load(&packages.Config{Mode: mode}, pattern)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", pattern, err)
	}
	if len(pkgs) == 0 {
		return nil, fmt.Errorf("load %s: no packages matched", pattern)
	}

	seen := make(map[string]struct{})
	for _, root := range pkgs {
		if !transitive {
			for path := range root.Imports {
				if forbidden(path) {
					seen[root.PkgPath+": "+path] = struct{}{}
				}
			}
			continue
		}
		visited := make(map[string]bool)
		var walk func(from *packages.Package)
		walk = func(from *packages.Package) {
			for path, dep := range from.Imports {
				if forbidden(path) {
					seen[root.PkgPath+": "+path] = struct{}{}
				}
				if !visited[path] {
					visited[path] = true
					walk(dep)
				}
			}
		}
		walk(root)
	}

	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

// AssertNoImports fails when any package matching pattern directly imports
// a forbidden path.
func AssertNoImports(t testing.TB, pattern string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	assertClean(t, pattern, false, forbidden, reason)
}

// AssertNoTransitiveImports fails when a forbidden path is reachable from
// any package matching pattern.
func AssertNoTransitiveImports(t testing.TB, pattern string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	assertClean(t, pattern, true, forbidden, reason)
}

func assertClean(t testing.TB, pattern string, transitive bool, forbidden func(string) bool, reason string) {
	t.Helper()
	viols, err := ImportViolations(pattern, transitive, forbidden)
	if err != nil {
		t.Fatalf("%v", err)
	}
	failIfViolations(t, reason, viols)
}

type fatalLogger interface {
	Fatalf(format string, args ...any)
}

func failIfViolations(t fatalLogger, reason string, viols []string) {
	if len(viols) > 0 {
		t.Fatalf("forbidden imports detected (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}

// InternalImportForbidden matches any path inside an internal tree.
func InternalImportForbidden(path string) bool {
	return strings.HasSuffix(path, "/internal") || strings.Contains(path, "/internal/")
}

// ModuleImportForbidden returns a predicate matching every package of module.
func ModuleImportForbidden(module string) func(string) bool {
	return func(path string) bool {
		return path == module || strings.HasPrefix(path, module+"/")
	}
}
