package db

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoizedIDCachesOnlySuccess(t *testing.T) {
	db := &Database{}

	resolveErr := errors.New("connection refused")
	calls := 0

	// A failed resolution must not stick.
	_, err := db.memoizedID(&db.deliveryID, func() (int64, error) {
		calls++
		return 0, resolveErr
	})
	require.ErrorIs(t, err, resolveErr)
	assert.Equal(t, int64(0), db.deliveryID)

	// The next caller resolves again and the success is cached.
	id, err := db.memoizedID(&db.deliveryID, func() (int64, error) {
		calls++
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, 2, calls)

	// Cached: the resolver is not consulted anymore.
	id, err = db.memoizedID(&db.deliveryID, func() (int64, error) {
		calls++
		return 0, errors.New("should not be called")
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, 2, calls)
}

func TestMemoizedIDIndependentSlots(t *testing.T) {
	db := &Database{}

	id, err := db.memoizedID(&db.publicID, func() (int64, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	id, err = db.memoizedID(&db.anyoneID, func() (int64, error) { return 9, nil })
	require.NoError(t, err)
	assert.Equal(t, int64(9), id)

	assert.Equal(t, int64(7), db.publicID)
	assert.Equal(t, int64(9), db.anyoneID)
	assert.Equal(t, int64(0), db.deliveryID)
}
