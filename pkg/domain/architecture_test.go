package domain

import (
	"testing"

	"microcosm/testutil"
)

// TestPublicPackagesDoNotImportInternal keeps everything under pkg/ usable
// without dragging in the internal implementation packages.
func TestPublicPackagesDoNotImportInternal(t *testing.T) {
	testutil.AssertNoImports(t, "microcosm/pkg/...", testutil.InternalImportForbidden, "pkg must not depend on internal")
}
