package engerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsMatchesKindThroughWrap(t *testing.T) {
	base := New(KindDanglingRef, "AddHyperedge", errors.New("missing node"))
	wrapped := fmt.Errorf("ingest: %w", base)

	if !Is(wrapped, KindDanglingRef) {
		t.Fatal("expected wrapped error to still report KindDanglingRef")
	}
	if Is(wrapped, KindNotFound) {
		t.Fatal("expected wrapped error not to match an unrelated Kind")
	}
}

func TestKindOfUnknownErrorReturnsInternal(t *testing.T) {
	k, ok := KindOf(errors.New("plain error"))
	if ok {
		t.Fatal("expected ok=false for a non-engerr error")
	}
	if k != KindInternal {
		t.Fatalf("expected KindInternal as the fallback, got %v", k)
	}
}

func TestSentinelErrorsCarryTheirKind(t *testing.T) {
	if !Is(ErrNotFound, KindNotFound) {
		t.Fatal("ErrNotFound should report KindNotFound")
	}
	if !Is(ErrEmptySet, KindInvalidInput) {
		t.Fatal("ErrEmptySet should report KindInvalidInput")
	}
	if !Is(ErrCancelled, KindCancelled) {
		t.Fatal("ErrCancelled should report KindCancelled")
	}
}

func TestErrorMessageIncludesOp(t *testing.T) {
	err := New(KindInvalidWeight, "ApplyUpdate", errors.New("weight must be positive"))
	got := err.Error()
	want := "ApplyUpdate: InvalidWeight: weight must be positive"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
