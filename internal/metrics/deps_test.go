package metrics

import (
	"testing"

	"typedobject/testutil"
)

func TestMetricsDoesNotImportSnapshotBackends(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InfraImportForbidden, "metrics observes objects, it never stores them")
}
