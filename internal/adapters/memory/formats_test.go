package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passbooklabs/passbook/internal/adapters/memory"
	"github.com/passbooklabs/passbook/pkg/domain"
	"github.com/passbooklabs/passbook/pkg/ports/tests"
	"github.com/passbooklabs/passbook/pkg/statement"
)

func TestFormatStore_Contract(t *testing.T) {
	store := memory.NewFormatStore()
	tests.FormatLoaderContractTest(t, store, []string{"hdfc"})
}

func TestFormatStore_ExtraSpecOverridesBuiltin(t *testing.T) {
	custom := &statement.FormatSpec{Name: "hdfc", DateLayout: "2006-01-02"}
	store := memory.NewFormatStore(custom)

	spec, err := store.GetFormat(context.Background(), "hdfc")
	require.NoError(t, err)
	assert.Equal(t, "2006-01-02", spec.DateLayout)
}

func TestFormatStore_ListIncludesExtrasSorted(t *testing.T) {
	store := memory.NewFormatStore(
		&statement.FormatSpec{Name: "icici", DateLayout: "02-01-2006"},
		&statement.FormatSpec{Name: "axis", DateLayout: "02/01/2006"},
	)

	names, err := store.ListFormats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"axis", "hdfc", "icici"}, names)
}

func TestFormatStore_UnknownFormat(t *testing.T) {
	store := memory.NewFormatStore()
	_, err := store.GetFormat(context.Background(), "mystery")
	assert.ErrorIs(t, err, domain.ErrUnknownFormat)
}
