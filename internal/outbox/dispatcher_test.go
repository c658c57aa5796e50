package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/ecolog/internal/logging"
)

type stubStore struct {
	rows       []Row
	fetchErr   error
	marked     [][]int64
	markErr    error
	fetchCalls int
}

func (s *stubStore) FetchAndClaim(_ context.Context, _ int) ([]Row, error) {
	s.fetchCalls++
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	rows := s.rows
	s.rows = nil
	return rows, nil
}

func (s *stubStore) MarkPublished(_ context.Context, ids []int64) error {
	if s.markErr != nil {
		return s.markErr
	}
	s.marked = append(s.marked, ids)
	return nil
}

type stubWriter struct {
	written map[string][]kafka.Message
	err     error
}

func (w *stubWriter) WriteMessages(_ context.Context, topic string, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	if w.written == nil {
		w.written = make(map[string][]kafka.Message)
	}
	w.written[topic] = append(w.written[topic], msgs...)
	return nil
}

func discardLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testRows() []Row {
	return []Row{
		{
			ID:           1,
			EventType:    "activity.logged",
			Topic:        "activity_events",
			PartitionKey: "user-1",
			Payload:      []byte(`{"activity_id":"abc"}`),
			CreatedAt:    time.Now().UTC(),
		},
		{
			ID:           2,
			EventType:    "activity.logged",
			Topic:        "activity_events",
			PartitionKey: "user-2",
			Payload:      []byte(`{"activity_id":"def"}`),
			CreatedAt:    time.Now().UTC(),
		},
	}
}

func TestProcessBatchDeliversAndMarks(t *testing.T) {
	store := &stubStore{rows: testRows()}
	writer := &stubWriter{}
	dispatcher := NewDispatcher(store, writer, discardLogger(), time.Second, 25)

	require.NoError(t, dispatcher.processBatch(context.Background()))

	require.Len(t, writer.written["activity_events"], 2)
	require.Equal(t, []byte("user-1"), writer.written["activity_events"][0].Key)
	require.Equal(t, "event_type", writer.written["activity_events"][0].Headers[0].Key)

	require.Len(t, store.marked, 1)
	require.Equal(t, []int64{1, 2}, store.marked[0])
}

func TestProcessBatchLeavesRowsOnDeliveryFailure(t *testing.T) {
	store := &stubStore{rows: testRows()}
	writer := &stubWriter{err: errors.New("broker unreachable")}
	dispatcher := NewDispatcher(store, writer, discardLogger(), time.Second, 25)

	// Delivery failure is not an error for the loop; the rows stay
	// unpublished and the next cycle retries them.
	require.NoError(t, dispatcher.processBatch(context.Background()))
	require.Empty(t, store.marked)
}

func TestProcessBatchNoRowsIsNoop(t *testing.T) {
	store := &stubStore{}
	writer := &stubWriter{}
	dispatcher := NewDispatcher(store, writer, discardLogger(), time.Second, 25)

	require.NoError(t, dispatcher.processBatch(context.Background()))
	require.Empty(t, writer.written)
	require.Empty(t, store.marked)
}

func TestProcessBatchPropagatesFetchError(t *testing.T) {
	store := &stubStore{fetchErr: errors.New("connection reset")}
	dispatcher := NewDispatcher(store, &stubWriter{}, discardLogger(), time.Second, 25)

	require.Error(t, dispatcher.processBatch(context.Background()))
}

func TestStartStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := &stubStore{}
	dispatcher := NewDispatcher(store, &stubWriter{}, discardLogger(), 10*time.Millisecond, 25)

	go dispatcher.Start(ctx)

	time.Sleep(30 * time.Millisecond)
	cancel()
	dispatcher.Wait()

	require.GreaterOrEqual(t, store.fetchCalls, 1)
}
