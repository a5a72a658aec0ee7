package ledger

import (
	"context"
	"testing"
)

// MustPut is a test helper that stores v under key and fails the test on error.
func MustPut(t testing.TB, s Store, key string, v any) {
	t.Helper()
	if err := PutJSON(context.Background(), s, key, v); err != nil {
		t.Fatalf("seed %s: %v", key, err)
	}
}
