package store_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/facilitydesk/taskdispatch/internal/store"
	"github.com/stretchr/testify/assert"
)

func TestIsNotFoundError(t *testing.T) {
	t.Parallel()

	assert.True(t, store.IsNotFoundError(store.ErrNotFound))
	assert.True(t, store.IsNotFoundError(store.ErrOccurrenceNotFound))
	assert.True(t, store.IsNotFoundError(fmt.Errorf("lookup: %w", store.ErrRecipientNotFound)))
	assert.False(t, store.IsNotFoundError(store.ErrStatusConflict))
	assert.False(t, store.IsNotFoundError(nil))
}

func TestStoreError(t *testing.T) {
	t.Parallel()

	t.Run("with wrapped error", func(t *testing.T) {
		t.Parallel()

		inner := errors.New("connection reset")
		err := store.NewStoreError("occurrence", "list", "query failed", inner)

		assert.Equal(t, "list operation on occurrence failed: query failed: connection reset", err.Error())
		assert.ErrorIs(t, err, inner)

		var storeErr *store.StoreError
		assert.True(t, errors.As(fmt.Errorf("outer: %w", err), &storeErr))
		assert.Equal(t, "occurrence", storeErr.Entity)
	})

	t.Run("without wrapped error", func(t *testing.T) {
		t.Parallel()

		err := store.NewStoreError("recipient", "list", "scan failed", nil)
		assert.Equal(t, "list operation on recipient failed: scan failed", err.Error())
		assert.NoError(t, err.Unwrap())
	})
}
