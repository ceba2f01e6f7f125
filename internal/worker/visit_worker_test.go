package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/osmanmakhtoom/url-shortener/internal/models"
)

func newTestVisitWorker(consumer Consumer, resolver URLResolver, visits VisitStore) *VisitWorker {
	return NewVisitWorker(consumer, resolver, visits, "visits", time.Hour, discardLogger())
}

func visitMessageBody(t testing.TB, shortCode string) []byte {
	t.Helper()

	body, err := json.Marshal(models.VisitMessage{
		ShortCode: shortCode,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Failed to marshal visit message: %v", err)
	}

	return body
}

func TestVisitWorker_HandleMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("undecodable message is discarded", func(t *testing.T) {
		w := newTestVisitWorker(&stubConsumer{}, new(MockURLResolver), new(MockVisitStore))

		err := w.HandleMessage(ctx, []byte("not json"))

		assert.NoError(t, err)
		assert.Zero(t, w.Buffered())
	})

	t.Run("invalid message is discarded", func(t *testing.T) {
		w := newTestVisitWorker(&stubConsumer{}, new(MockURLResolver), new(MockVisitStore))

		err := w.HandleMessage(ctx, []byte(`{"short_code":"","ip":null,"timestamp":"2026-09-01T10:00:00Z"}`))

		assert.NoError(t, err)
		assert.Zero(t, w.Buffered())
	})

	t.Run("valid message is buffered without flushing", func(t *testing.T) {
		mockVisits := new(MockVisitStore)

		w := newTestVisitWorker(&stubConsumer{}, new(MockURLResolver), mockVisits)

		err := w.HandleMessage(ctx, visitMessageBody(t, "abc123"))

		assert.NoError(t, err)
		assert.Equal(t, 1, w.Buffered())

		mockVisits.AssertNotCalled(t, "CreateBatch", mock.Anything, mock.Anything)
	})

	t.Run("reaching batch size triggers a flush", func(t *testing.T) {
		mockResolver := new(MockURLResolver)
		mockResolver.On("Resolve", mock.Anything, mock.Anything).
			Return(&models.URL{ID: 1, ShortCode: "abc123"}, nil)

		mockVisits := new(MockVisitStore)
		mockVisits.On("CreateBatch", mock.Anything, mock.MatchedBy(func(visits []models.Visit) bool {
			return len(visits) == batchSize
		})).
			Once().
			Return(nil)

		w := newTestVisitWorker(&stubConsumer{}, mockResolver, mockVisits)

		for i := 0; i < batchSize; i++ {
			assert.NoError(t, w.HandleMessage(ctx, visitMessageBody(t, fmt.Sprintf("code%d", i))))
		}

		assert.Zero(t, w.Buffered())

		mockVisits.AssertExpectations(t)
	})

	t.Run("buffer at the hard cap is flushed before buffering more", func(t *testing.T) {
		store := &toggleVisitStore{err: errors.New("connection refused")}
		resolver := &stubURLResolver{url: &models.URL{ID: 1, ShortCode: "abc123"}}

		w := newTestVisitWorker(&stubConsumer{}, resolver, store)
		body := visitMessageBody(t, "abc123")

		// Every flush attempt fails and pushes its snapshot back, so the
		// buffer climbs past the batch trigger up to the hard cap.
		for i := 0; i < maxBufferSize; i++ {
			assert.NoError(t, w.HandleMessage(ctx, body))
		}
		assert.Equal(t, maxBufferSize, w.Buffered())

		store.err = nil
		assert.NoError(t, w.HandleMessage(ctx, body))

		assert.Equal(t, 1, w.Buffered())
		assert.Equal(t, maxBufferSize, store.inserted)
	})
}

func TestVisitWorker_Flush(t *testing.T) {
	ctx := context.Background()

	t.Run("empty buffer is a no-op", func(t *testing.T) {
		mockVisits := new(MockVisitStore)

		w := newTestVisitWorker(&stubConsumer{}, new(MockURLResolver), mockVisits)
		w.Flush(ctx)

		mockVisits.AssertNotCalled(t, "CreateBatch", mock.Anything, mock.Anything)
	})

	t.Run("unresolvable short codes are dropped", func(t *testing.T) {
		mockResolver := new(MockURLResolver)
		mockResolver.On("Resolve", mock.Anything, "abc123").
			Once().
			Return(&models.URL{ID: 1, ShortCode: "abc123"}, nil)
		mockResolver.On("Resolve", mock.Anything, "gone42").
			Once().
			Return(nil, errors.New("url not found"))

		mockVisits := new(MockVisitStore)
		mockVisits.On("CreateBatch", mock.Anything, mock.MatchedBy(func(visits []models.Visit) bool {
			return len(visits) == 1 && visits[0].URLID == 1
		})).
			Once().
			Return(nil)

		w := newTestVisitWorker(&stubConsumer{}, mockResolver, mockVisits)
		assert.NoError(t, w.HandleMessage(ctx, visitMessageBody(t, "abc123")))
		assert.NoError(t, w.HandleMessage(ctx, visitMessageBody(t, "gone42")))

		w.Flush(ctx)

		assert.Zero(t, w.Buffered())

		mockResolver.AssertExpectations(t)
		mockVisits.AssertExpectations(t)
	})

	t.Run("insert failure pushes the snapshot back", func(t *testing.T) {
		mockResolver := new(MockURLResolver)
		mockResolver.On("Resolve", mock.Anything, "abc123").
			Return(&models.URL{ID: 1, ShortCode: "abc123"}, nil)

		mockVisits := new(MockVisitStore)
		mockVisits.On("CreateBatch", mock.Anything, mock.Anything).
			Once().
			Return(errors.New("connection refused"))
		mockVisits.On("CreateBatch", mock.Anything, mock.Anything).
			Once().
			Return(nil)

		w := newTestVisitWorker(&stubConsumer{}, mockResolver, mockVisits)
		assert.NoError(t, w.HandleMessage(ctx, visitMessageBody(t, "abc123")))
		assert.NoError(t, w.HandleMessage(ctx, visitMessageBody(t, "abc123")))

		w.Flush(ctx)
		assert.Equal(t, 2, w.Buffered())

		w.Flush(ctx)
		assert.Zero(t, w.Buffered())

		mockVisits.AssertExpectations(t)
	})
}

func TestVisitWorker_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("connect failure is fatal", func(t *testing.T) {
		consumer := &stubConsumer{connectErr: errors.New("connection refused")}

		w := newTestVisitWorker(consumer, new(MockURLResolver), new(MockVisitStore))

		assert.Error(t, w.Run(ctx))
	})

	t.Run("remaining buffer is flushed on shutdown", func(t *testing.T) {
		consumer := &stubConsumer{
			deliveries: [][]byte{
				visitMessageBody(t, "abc123"),
				visitMessageBody(t, "abc123"),
			},
		}

		mockResolver := new(MockURLResolver)
		mockResolver.On("Resolve", mock.Anything, "abc123").
			Return(&models.URL{ID: 1, ShortCode: "abc123"}, nil)

		mockVisits := new(MockVisitStore)
		mockVisits.On("CreateBatch", mock.Anything, mock.MatchedBy(func(visits []models.Visit) bool {
			return len(visits) == 2
		})).
			Once().
			Return(nil)

		w := newTestVisitWorker(consumer, mockResolver, mockVisits)

		assert.NoError(t, w.Run(ctx))
		assert.Zero(t, w.Buffered())

		mockVisits.AssertExpectations(t)
	})

	t.Run("consumer failure is reported after the final flush", func(t *testing.T) {
		consumer := &stubConsumer{consumeErr: errors.New("channel closed")}

		w := newTestVisitWorker(consumer, new(MockURLResolver), new(MockVisitStore))

		assert.Error(t, w.Run(ctx))
	})
}
