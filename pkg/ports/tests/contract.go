package tests

import (
	"context"
	"testing"

	"github.com/passbooklabs/passbook/pkg/ports"
)

// FormatLoaderContractTest is a reusable test suite that verifies if an adapter complies with ports.FormatLoader.
func FormatLoaderContractTest(t *testing.T, loader ports.FormatLoader, wantNames []string) {
	t.Helper()

	ctx := context.Background()

	// 1. Test GetFormat (Success)
	t.Run("GetFormat_Success", func(t *testing.T) {
		for _, name := range wantNames {
			spec, err := loader.GetFormat(ctx, name)
			if err != nil {
				t.Fatalf("unexpected error getting format %s: %v", name, err)
			}
			if spec == nil {
				t.Fatalf("nil spec for %s", name)
			}
			if spec.Name != name {
				t.Errorf("spec name mismatch. got %q, want %q", spec.Name, name)
			}
			if spec.DateLayout == "" {
				t.Errorf("format %s has no date layout", name)
			}
		}
	})

	// 2. Test GetFormat (NotFound)
	t.Run("GetFormat_NotFound", func(t *testing.T) {
		_, err := loader.GetFormat(ctx, "non-existent-format")
		if err == nil {
			t.Error("expected error for non-existent format, got nil")
		}
	})

	// 3. Test ListFormats
	t.Run("ListFormats", func(t *testing.T) {
		names, err := loader.ListFormats(ctx)
		if err != nil {
			t.Fatalf("unexpected error listing formats: %v", err)
		}

		lookup := make(map[string]bool)
		for _, n := range names {
			lookup[n] = true
		}

		for _, want := range wantNames {
			if !lookup[want] {
				t.Errorf("format %s missing from list", want)
			}
		}
	})
}
