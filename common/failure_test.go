package common

import (
	"errors"
	"fmt"
	"testing"
)

func TestFailureChain(t *testing.T) {
	cause := errors.New("connection refused")
	f := NewFailure(QueryFailure, "Failed to query jobstats database", cause)
	wrapped := fmt.Errorf("job 123\n%w", f)
	if !IsKind(wrapped, QueryFailure) {
		t.Fatalf("Expected query failure")
	}
	if IsKind(wrapped, LookupFailure) {
		t.Fatalf("Not a lookup failure")
	}
	if !errors.Is(wrapped, cause) {
		t.Fatalf("Cause lost")
	}
	if f.Error() != "Failed to query jobstats database\nconnection refused" {
		t.Fatalf("Message: %q", f.Error())
	}
	plain := NewFailure(LookupFailure, "Failed to lookup jobid 42.", nil)
	if plain.Error() != "Failed to lookup jobid 42." {
		t.Fatalf("Message: %q", plain.Error())
	}
	if IsKind(errors.New("x"), LookupFailure) {
		t.Fatalf("Plain error is no failure")
	}
}
