package model_test

import (
	"testing"

	"idsm/testutil"
)

func TestModelStaysBelowOrchestration(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.OrchestrationImportForbidden, "the graph must not know how it is run or stored")
	testutil.AssertNoDirectImports(t, ".", testutil.StorageImportForbidden, "the graph must not reach storage")
}
