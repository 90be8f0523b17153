package seostats

import (
	"errors"
	"strings"
	"testing"

	"seostats.local/internal/mozscape"
)

func TestValidateTarget(t *testing.T) {
	ok := []string{"example.com", "http://example.com/a?b=c", "sub.例子.cn", strings.Repeat("a", MaxTargetLen)}
	for _, s := range ok {
		if err := ValidateTarget(s); err != nil {
			t.Fatalf("ValidateTarget(%q): %v", s, err)
		}
	}
	bad := []string{"", "a b", "a\tb", "a\nb", "a\x00b", strings.Repeat("a", MaxTargetLen+1)}
	for _, s := range bad {
		if err := ValidateTarget(s); !errors.Is(err, ErrInvalidTarget) {
			t.Fatalf("ValidateTarget(%q): got %v, want ErrInvalidTarget", s, err)
		}
	}
}

func TestValidateBatch(t *testing.T) {
	if err := ValidateBatch([]string{"a.com", "b.com"}); err != nil {
		t.Fatalf("ValidateBatch: %v", err)
	}
	if err := ValidateBatch(nil); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("empty: got %v, want ErrInvalidTarget", err)
	}
	if err := ValidateBatch(make([]string, MaxBatch+1)); !errors.Is(err, ErrBatchTooLarge) {
		t.Fatalf("too large: got %v, want ErrBatchTooLarge", err)
	}
	if err := ValidateBatch([]string{"a.com", ""}); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("bad element: got %v, want ErrInvalidTarget", err)
	}
}

func TestValidate_TargetVariants(t *testing.T) {
	if err := validate(nil); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("nil: got %v", err)
	}
	if err := validate(mozscape.SingleTarget("a.com")); err != nil {
		t.Fatalf("single: %v", err)
	}
	if err := validate(mozscape.BatchTargets{}); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("empty batch: got %v", err)
	}
}
