package events

import (
	"context"
	"encoding/json"
	"fmt"

	"CourseEntries/internal/model"
	"CourseEntries/pkg/metrics"
)

// Publisher публикует сериализованное событие в тему его типа
type Publisher interface {
	Publish(kind string, data []byte) error
}

// NATSSubscriber отправляет событие в NATS как JSON
func NATSSubscriber(pub Publisher) Subscriber {
	return SubscriberFunc(func(_ context.Context, event model.EntryEvent) error {
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		return pub.Publish(string(event.Kind), data)
	})
}

// MetricsSubscriber считает события по типу
func MetricsSubscriber() Subscriber {
	return SubscriberFunc(func(_ context.Context, event model.EntryEvent) error {
		metrics.EntryEvents.WithLabelValues(string(event.Kind)).Inc()
		return nil
	})
}
