package transfer

import (
	"bytes"
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/Johndevils/Mongodb-bot/errors"
	"github.com/Johndevils/Mongodb-bot/topo"
)

// Cursor is a resumable position in a source collection: the _id of the
// last document returned. The zero Cursor reads from the beginning.
type Cursor struct {
	last bson.RawValue
}

func (c Cursor) IsZero() bool {
	return c.last.Type == 0 && c.last.Value == nil
}

func (c Cursor) Equal(o Cursor) bool {
	return c.last.Type == o.last.Type && bytes.Equal(c.last.Value, o.last.Value)
}

// pager fetches one page of documents with _id greater than after, in
// ascending _id order. An empty page means the collection is exhausted.
type pager interface {
	NextPage(ctx context.Context, after Cursor, limit int) ([]bson.Raw, error)
}

type collectionPager struct {
	coll *mongo.Collection
}

func (p *collectionPager) NextPage(ctx context.Context, after Cursor, limit int) ([]bson.Raw, error) {
	filter := bson.D{}
	if !after.IsZero() {
		filter = bson.D{{Key: "_id", Value: bson.D{{Key: "$gt", Value: after.last}}}}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetLimit(int64(limit))

	cur, err := p.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []bson.Raw
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	return docs, nil
}

// Stream reads a source collection in stable _id order, one page at a
// time. Pages are fetched lazily: nothing is read until Next is called.
// Stream is not safe for concurrent use.
type Stream struct {
	pager     pager
	batchSize int
	cursor    Cursor
	done      bool
}

// OpenStream positions a stream over coll, starting after resume. Pass the
// zero Cursor to read from the beginning.
func OpenStream(coll *mongo.Collection, batchSize int, resume Cursor) *Stream {
	return newStream(&collectionPager{coll: coll}, batchSize, resume)
}

func newStream(p pager, batchSize int, resume Cursor) *Stream {
	return &Stream{
		pager:     p,
		batchSize: batchSize,
		cursor:    resume,
	}
}

// Next returns the next page of at most batchSize documents. It returns an
// empty page once the collection is exhausted. Failures are returned as
// [StreamError]; a [StreamCursorExpired] error leaves the stream position
// unchanged so the caller can reopen from Cursor().
func (s *Stream) Next(ctx context.Context) ([]bson.Raw, error) {
	if s.done {
		return nil, nil
	}

	docs, err := s.pager.NextPage(ctx, s.cursor, s.batchSize)
	if err != nil {
		if topo.IsCursorNotFound(err) {
			return nil, &StreamError{Kind: StreamCursorExpired, Cause: err}
		}

		return nil, &StreamError{Kind: StreamReadFailure, Cause: err}
	}

	if len(docs) == 0 {
		s.done = true

		return nil, nil
	}

	lastID := docs[len(docs)-1].Lookup("_id")
	if lastID.Validate() != nil {
		err := errors.New("document without _id")

		return nil, &StreamError{Kind: StreamReadFailure, Cause: err}
	}

	s.cursor = Cursor{last: lastID}
	if len(docs) < s.batchSize {
		s.done = true
	}

	return docs, nil
}

// Cursor returns the position of the last document returned by Next.
func (s *Stream) Cursor() Cursor {
	return s.cursor
}
