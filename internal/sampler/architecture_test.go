package sampler_test

import (
	"testing"

	"idsm/testutil"
)

func TestSamplerDependsOnModelOnly(t *testing.T) {
	testutil.AssertNoTransitiveDependency(t, ".", testutil.OrchestrationImportForbidden, "engines run graphs, they do not schedule or persist them")
	testutil.AssertNoTransitiveDependency(t, ".", testutil.StorageImportForbidden, "engines never touch storage")
}
