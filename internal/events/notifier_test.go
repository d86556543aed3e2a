package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	syncpipe "example.com/healthsync/internal/sync"
)

type stubWriter struct {
	messages []kafka.Message
	writeErr error
	closed   bool
}

func (s *stubWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.messages = append(s.messages, msgs...)
	return nil
}

func (s *stubWriter) Close() error {
	s.closed = true
	return nil
}

func TestNewNotifierWithoutBrokersIsNil(t *testing.T) {
	require.Nil(t, NewNotifier(nil))
	require.Nil(t, NewNotifier([]string{}))
}

func TestNilNotifierIsNoOp(t *testing.T) {
	var notifier *Notifier
	require.NoError(t, notifier.SyncCompleted(t.Context(), syncpipe.HistoryEntry{DataType: "steps"}))
	require.NoError(t, notifier.Close())
}

func TestSyncCompletedPublishesEvent(t *testing.T) {
	writer := &stubWriter{}
	notifier := NewNotifier([]string{"broker-1:9092"})
	notifier.writer = writer

	entry := syncpipe.HistoryEntry{
		Timestamp:   1700000000000,
		DataType:    "heart_rate",
		PointCount:  42,
		PeriodStart: 1699990000000,
		PeriodEnd:   1700000000000,
		Source:      "Auto-Sync",
	}
	require.NoError(t, notifier.SyncCompleted(t.Context(), entry))

	require.Len(t, writer.messages, 1)
	msg := writer.messages[0]
	require.Equal(t, "heart_rate", string(msg.Key))

	var event SyncCompleted
	require.NoError(t, json.Unmarshal(msg.Value, &event))
	require.NotEmpty(t, event.EventID)
	require.Equal(t, "heart_rate", event.DataType)
	require.Equal(t, 42, event.PointCount)
	require.Equal(t, entry.PeriodStart, event.PeriodStart)
	require.Equal(t, "Auto-Sync", event.Source)
}

func TestSyncCompletedPropagatesWriteErrors(t *testing.T) {
	writer := &stubWriter{writeErr: errors.New("broker unavailable")}
	notifier := NewNotifier([]string{"broker-1:9092"})
	notifier.writer = writer

	err := notifier.SyncCompleted(t.Context(), syncpipe.HistoryEntry{DataType: "steps"})
	require.Error(t, err)
}

func TestCloseReleasesWriter(t *testing.T) {
	writer := &stubWriter{}
	notifier := NewNotifier([]string{"broker-1:9092"})
	notifier.writer = writer

	require.NoError(t, notifier.Close())
	require.True(t, writer.closed)
	require.Nil(t, notifier.writer)
}
