// Package events publishes completed-sync events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	syncpipe "example.com/healthsync/internal/sync"
)

// Topic carries sync-completed events.
const Topic = "healthsync_events"

// SyncCompleted is the wire payload for one completed sync with uploads.
type SyncCompleted struct {
	EventID     string `json:"event_id"`
	DataType    string `json:"data_type"`
	PointCount  int    `json:"point_count"`
	PeriodStart int64  `json:"period_start"`
	PeriodEnd   int64  `json:"period_end"`
	Source      string `json:"source"`
	Timestamp   int64  `json:"timestamp"`
}

// messageWriter is the slice of kafka.Writer the notifier needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Notifier publishes sync events. A nil Notifier is a valid no-op.
type Notifier struct {
	mu      sync.Mutex
	brokers []string
	writer  messageWriter
}

// NewNotifier creates a Notifier for the given brokers, or nil when none are
// configured.
func NewNotifier(brokers []string) *Notifier {
	if len(brokers) == 0 {
		return nil
	}
	return &Notifier{brokers: brokers}
}

// SyncCompleted publishes one event keyed by data type.
func (n *Notifier) SyncCompleted(ctx context.Context, entry syncpipe.HistoryEntry) error {
	if n == nil {
		return nil
	}
	payload, err := json.Marshal(SyncCompleted{
		EventID:     uuid.NewString(),
		DataType:    entry.DataType,
		PointCount:  entry.PointCount,
		PeriodStart: entry.PeriodStart,
		PeriodEnd:   entry.PeriodEnd,
		Source:      entry.Source,
		Timestamp:   entry.Timestamp,
	})
	if err != nil {
		return err
	}
	return n.lazyWriter().WriteMessages(ctx, kafka.Message{
		Key:   []byte(entry.DataType),
		Value: payload,
		Time:  time.Now().UTC(),
	})
}

func (n *Notifier) lazyWriter() messageWriter {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.writer == nil {
		n.writer = &kafka.Writer{
			Addr:         kafka.TCP(n.brokers...),
			Topic:        Topic,
			RequiredAcks: kafka.RequireAll,
			Async:        false,
		}
	}
	return n.writer
}

// Close releases the underlying writer.
func (n *Notifier) Close() error {
	if n == nil {
		return nil
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.writer == nil {
		return nil
	}
	err := n.writer.Close()
	n.writer = nil
	return err
}
