package utils

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestNewIDIsUUID(t *testing.T) {
	id := NewID()
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("NewID() = %q is not a uuid: %v", id, err)
	}
	if NewID() == id {
		t.Fatalf("expected distinct ids")
	}
}

func TestNewPrefixedID(t *testing.T) {
	id := NewPrefixedID("cs_")
	if !strings.HasPrefix(id, "cs_") || len(id) != len("cs_")+32 {
		t.Fatalf("unexpected id %q", id)
	}
}
