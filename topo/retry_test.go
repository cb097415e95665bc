package topo_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/Johndevils/Mongodb-bot/errors"
	"github.com/Johndevils/Mongodb-bot/topo"
)

func TestIsTransientError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil",
			err:  nil,
			want: false,
		},
		{
			name: "context canceled",
			err:  context.Canceled,
			want: false,
		},
		{
			name: "network error label",
			err:  mongo.CommandError{Labels: []string{"NetworkError"}},
			want: true,
		},
		{
			name: "primary stepdown",
			err:  mongo.CommandError{Code: 189, Name: "PrimarySteppedDown"},
			want: true,
		},
		{
			name: "shutdown in progress",
			err:  mongo.CommandError{Code: 91, Name: "ShutdownInProgress"},
			want: true,
		},
		{
			name: "duplicate key",
			err:  mongo.CommandError{Code: 11000, Name: "DuplicateKey"},
			want: false,
		},
		{
			name: "plain application error",
			err:  errors.New("boom"),
			want: false,
		},
		{
			name: "wrapped retryable error",
			err:  errors.Wrap(mongo.CommandError{Code: 91}, "insert"),
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, topo.IsTransientError(tt.err))
		})
	}
}

func TestIsCursorNotFound(t *testing.T) {
	t.Parallel()

	assert.True(t, topo.IsCursorNotFound(mongo.CommandError{Code: 43, Name: "CursorNotFound"}))
	assert.True(t, topo.IsCursorNotFound(
		errors.Wrap(mongo.CommandError{Code: 43}, "next page")))
	assert.False(t, topo.IsCursorNotFound(mongo.CommandError{Code: 42}))
	assert.False(t, topo.IsCursorNotFound(errors.New("cursor not found")))
}

func TestRunWithRetry_SucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	attempts := 0
	err := topo.RunWithRetry(context.Background(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return mongo.CommandError{Code: 91}
		}

		return nil
	}, time.Millisecond, 2*time.Millisecond, 3)

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRunWithRetry_Ceiling(t *testing.T) {
	t.Parallel()

	attempts := 0
	err := topo.RunWithRetry(context.Background(), func(context.Context) error {
		attempts++

		return mongo.CommandError{Code: 189}
	}, time.Millisecond, 2*time.Millisecond, 3)

	require.Error(t, err)
	assert.Equal(t, 4, attempts, "one attempt plus three retries")
}

func TestRunWithRetry_NonTransientStopsImmediately(t *testing.T) {
	t.Parallel()

	attempts := 0
	err := topo.RunWithRetry(context.Background(), func(context.Context) error {
		attempts++

		return errors.New("schema validation")
	}, time.Millisecond, 2*time.Millisecond, 3)

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRunWithRetry_CanceledDuringBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	err := topo.RunWithRetry(ctx, func(context.Context) error {
		attempts++
		cancel()

		return mongo.CommandError{Code: 91}
	}, time.Hour, time.Hour, 3)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}
