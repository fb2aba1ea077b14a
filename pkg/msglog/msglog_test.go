package msglog

import (
	"context"
	"errors"
	"testing"
)

func TestOpenWithoutDSNIsDisabled(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), Config{})
	if !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}

	_, err = Open(context.Background(), Config{DSN: "   "})
	if !errors.Is(err, ErrDisabled) {
		t.Fatalf("blank DSN must also be disabled, got %v", err)
	}
}
