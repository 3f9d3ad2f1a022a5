package typed

import (
	"testing"

	"typedobject/testutil"
)

// TestTypedImportsStandardLibraryOnly keeps the core free of module and
// third-party imports so it can be vendored on its own.
func TestTypedImportsStandardLibraryOnly(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.NonStandardImport, "pkg/typed must depend on the standard library only")
}

func TestTypedHasNoTransitiveModuleDependencies(t *testing.T) {
	self := "typedobject/pkg/typed"
	testutil.AssertNoTransitiveDependency(t, ".", func(path string) bool {
		return path != self && testutil.NonStandardImport(path)
	}, "pkg/typed must not pull in third-party packages")
}
