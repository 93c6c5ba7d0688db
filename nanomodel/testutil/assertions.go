package testutil

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jmgilman/go/errors"

	"github.com/arthur-debert/nanomodel/nanomodel"
	"github.com/arthur-debert/nanomodel/types"
)

// AssertDocument compares an instance's document with want.
func AssertDocument(t *testing.T, inst *nanomodel.Instance, want types.Document) {
	t.Helper()
	if inst == nil {
		t.Fatalf("expected document %v, got nil instance", want)
	}
	if diff := cmp.Diff(want, inst.Document()); diff != "" {
		t.Errorf("document mismatch (-want +got):\n%s", diff)
	}
}

// AssertIDs checks the identities of a result list in order. NilID stands
// for a nil slot.
func AssertIDs(t *testing.T, got []*nanomodel.Instance, want ...types.ID) {
	t.Helper()
	ids := make([]string, len(got))
	for i, inst := range got {
		if inst == nil {
			ids[i] = types.NilID.Hex()
			continue
		}
		ids[i] = inst.ID().Hex()
	}
	wantIDs := make([]string, len(want))
	for i, id := range want {
		wantIDs[i] = id.Hex()
	}
	if diff := cmp.Diff(wantIDs, ids); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
}

// AssertCode checks that err carries code.
func AssertCode(t *testing.T, err error, code errors.ErrorCode) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected a %s error, got nil", code)
	}
	if got := errors.GetCode(err); got != code {
		t.Errorf("expected code %s, got %s (%v)", code, got, err)
	}
}

// AssertCalls checks the number of driver calls made for op.
func AssertCalls(t *testing.T, d *CountingDriver, op string, expected int) {
	t.Helper()
	if got := d.Calls(op); got != expected {
		t.Errorf("expected %d %s calls, got %d", expected, op, got)
	}
}
