package core

import (
	"go/types"
	"sort"
	"testing"

	"golang.org/x/tools/go/packages"
)

// TestSnapshotStoreImplementations keeps concrete snapshot backends inside
// the persistence packages OpenSnapshotStore knows how to select.
func TestSnapshotStoreImplementations(t *testing.T) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedTypes}
	pkgs, err := packages.Load(cfg, "microcosm/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}

	var store *types.Interface
	for _, p := range pkgs {
		if p.PkgPath != "microcosm/pkg/domain" {
			continue
		}
		obj := p.Types.Scope().Lookup("SnapshotStore")
		if obj == nil {
			t.Fatalf("domain.SnapshotStore not found")
		}
		iface, ok := obj.Type().Underlying().(*types.Interface)
		if !ok {
			t.Fatalf("domain.SnapshotStore is not an interface")
		}
		store = iface
	}
	if store == nil {
		t.Fatalf("failed to resolve SnapshotStore interface")
	}

	allowed := map[string]struct{}{
		"microcosm/internal/infra/persistence/memory":   {},
		"microcosm/internal/infra/persistence/sqlite":   {},
		"microcosm/internal/infra/persistence/postgres": {},
	}
	found := make(map[string]bool)
	var unexpected []string
	for _, p := range pkgs {
		if p.Types == nil {
			continue
		}
		scope := p.Types.Scope()
		for _, name := range scope.Names() {
			named, ok := scope.Lookup(name).Type().(*types.Named)
			if !ok {
				continue
			}
			if _, ok := named.Underlying().(*types.Interface); ok {
				continue
			}
			if !types.Implements(types.NewPointer(named), store) {
				continue
			}
			if _, ok := allowed[p.PkgPath]; !ok {
				unexpected = append(unexpected, p.PkgPath+"."+name)
				continue
			}
			found[p.PkgPath] = true
		}
	}
	sort.Strings(unexpected)
	if len(unexpected) > 0 {
		t.Fatalf("unexpected SnapshotStore implementations (extend OpenSnapshotStore and this list together):\n%v", unexpected)
	}
	for pkg := range allowed {
		if !found[pkg] {
			t.Errorf("%s no longer provides a SnapshotStore", pkg)
		}
	}
}
