package transfer //nolint:testpackage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Johndevils/Mongodb-bot/errors"
)

func TestStream_PagesInOrder(t *testing.T) {
	t.Parallel()

	pager := &fakePager{docs: makeDocs(t, 1, 1200)}
	stream := newStream(pager, 500, Cursor{})

	var sizes []int
	for {
		batch, err := stream.Next(context.Background())
		require.NoError(t, err)
		if len(batch) == 0 {
			break
		}
		sizes = append(sizes, len(batch))
	}

	assert.Equal(t, []int{500, 500, 200}, sizes)
	assert.Equal(t, 3, pager.calls, "short page ends the stream without another fetch")
	assert.EqualValues(t, 1200, stream.Cursor().last.AsInt64())
}

func TestStream_ExactMultipleOfBatchSize(t *testing.T) {
	t.Parallel()

	pager := &fakePager{docs: makeDocs(t, 1, 1000)}
	stream := newStream(pager, 500, Cursor{})

	var sizes []int
	for {
		batch, err := stream.Next(context.Background())
		require.NoError(t, err)
		if len(batch) == 0 {
			break
		}
		sizes = append(sizes, len(batch))
	}

	assert.Equal(t, []int{500, 500}, sizes)
	assert.Equal(t, 3, pager.calls, "full final page needs one extra fetch to see the end")
}

func TestStream_EmptyCollection(t *testing.T) {
	t.Parallel()

	stream := newStream(&fakePager{}, 500, Cursor{})

	batch, err := stream.Next(context.Background())
	require.NoError(t, err)
	assert.Empty(t, batch)

	// stays exhausted
	batch, err = stream.Next(context.Background())
	require.NoError(t, err)
	assert.Empty(t, batch)
}

func TestStream_ResumeFromCursor(t *testing.T) {
	t.Parallel()

	docs := makeDocs(t, 1, 30)
	first := newStream(&fakePager{docs: docs}, 10, Cursor{})

	_, err := first.Next(context.Background())
	require.NoError(t, err)

	resumed := newStream(&fakePager{docs: docs}, 10, first.Cursor())
	batch, err := resumed.Next(context.Background())
	require.NoError(t, err)

	require.Len(t, batch, 10)
	assert.EqualValues(t, 11, batch[0].Lookup("_id").AsInt64())
}

func TestStream_CursorExpired(t *testing.T) {
	t.Parallel()

	pager := &fakePager{
		docs:  makeDocs(t, 1, 20),
		errAt: map[int]error{1: cursorNotFoundErr()},
	}
	stream := newStream(pager, 10, Cursor{})

	batch, err := stream.Next(context.Background())
	require.NoError(t, err)
	require.Len(t, batch, 10)

	_, err = stream.Next(context.Background())
	require.Error(t, err)

	var streamErr *StreamError
	require.ErrorAs(t, err, &streamErr)
	assert.Equal(t, StreamCursorExpired, streamErr.Kind)

	// position is unchanged, a reopened stream picks up after doc 10
	reopened := newStream(pager, 10, stream.Cursor())
	batch, err = reopened.Next(context.Background())
	require.NoError(t, err)
	require.Len(t, batch, 10)
	assert.EqualValues(t, 11, batch[0].Lookup("_id").AsInt64())
}

func TestStream_ReadFailure(t *testing.T) {
	t.Parallel()

	pager := &fakePager{
		docs:  makeDocs(t, 1, 5),
		errAt: map[int]error{0: errors.New("network down")},
	}
	stream := newStream(pager, 10, Cursor{})

	_, err := stream.Next(context.Background())
	require.Error(t, err)

	var streamErr *StreamError
	require.ErrorAs(t, err, &streamErr)
	assert.Equal(t, StreamReadFailure, streamErr.Kind)
}
