// Package events announces changes to canonical datasets so downstream
// consumers can reload them.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
)

type EventType string

const (
	EventGenerated EventType = "dataset.generated"
	EventRemoved   EventType = "dataset.removed"
	EventFailed    EventType = "dataset.generation_failed"
)

// DatasetEvent is the message published for every dataset change.
type DatasetEvent struct {
	EventType  EventType      `json:"event_type"`
	Dataset    string         `json:"dataset"`
	Year       int            `json:"year"`
	RunID      string         `json:"run_id,omitempty"`
	OutputPath string         `json:"output_path,omitempty"`
	Counts     map[string]int `json:"counts,omitempty"`
	Dropped    map[string]int `json:"dropped,omitempty"`
	Error      string         `json:"error,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Key partitions events by dataset year so consumers see them in order.
func (e *DatasetEvent) Key() string {
	return fmt.Sprintf("%s:%d", e.Dataset, e.Year)
}

type Publisher interface {
	Publish(ctx context.Context, key string, value any, headers map[string]string) error
}

// NoopPublisher drops every event. Used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, any, map[string]string) error {
	return nil
}

type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
	now       func() time.Time
}

func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	if publisher == nil {
		publisher = NoopPublisher{}
	}
	return &Emitter{
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Emit publishes event. Publishing is best effort: a failure is logged and
// returned but never undoes the change it describes.
func (e *Emitter) Emit(ctx context.Context, event *DatasetEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = e.now().UTC()
	}

	headers := map[string]string{
		"event_type": string(event.EventType),
		"dataset":    event.Dataset,
	}
	if err := e.publisher.Publish(ctx, event.Key(), event, headers); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_type": event.EventType,
			"dataset":    event.Dataset,
			"year":       event.Year,
		}).Warn("Failed to publish dataset event")
		return err
	}
	return nil
}

func (e *Emitter) EmitGenerated(ctx context.Context, event DatasetEvent) error {
	event.EventType = EventGenerated
	return e.Emit(ctx, &event)
}

func (e *Emitter) EmitRemoved(ctx context.Context, dataset string, year int) error {
	return e.Emit(ctx, &DatasetEvent{EventType: EventRemoved, Dataset: dataset, Year: year})
}

func (e *Emitter) EmitFailed(ctx context.Context, dataset string, year int, runID string, cause error) error {
	return e.Emit(ctx, &DatasetEvent{
		EventType: EventFailed,
		Dataset:   dataset,
		Year:      year,
		RunID:     runID,
		Error:     cause.Error(),
	})
}
