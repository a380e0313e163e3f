package xid

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestNewIsPrefixedUUID(t *testing.T) {
	id := New("sale")
	if !strings.HasPrefix(id, "sale-") {
		t.Fatalf("missing prefix in %q", id)
	}
	if _, err := uuid.Parse(strings.TrimPrefix(id, "sale-")); err != nil {
		t.Fatalf("suffix is not a uuid: %v", err)
	}
	if New("sale") == id {
		t.Fatalf("expected unique ids")
	}
}
