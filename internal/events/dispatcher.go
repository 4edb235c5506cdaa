// Пакет events рассылает события жизненного цикла записей зарегистрированным подписчикам
package events

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"CourseEntries/internal/model"
	"CourseEntries/pkg/metrics"
)

// Subscriber получает события жизненного цикла записей
type Subscriber interface {
	Handle(ctx context.Context, event model.EntryEvent) error
}

// SubscriberFunc адаптер обычной функции к Subscriber
type SubscriberFunc func(ctx context.Context, event model.EntryEvent) error

// Handle вызывает f(ctx, event)
func (f SubscriberFunc) Handle(ctx context.Context, event model.EntryEvent) error {
	return f(ctx, event)
}

type namedSubscriber struct {
	name string
	sub  Subscriber
}

// Dispatcher синхронно доставляет событие всем подписчикам в порядке регистрации.
// Ошибка или паника подписчика логируется и не мешает остальным.
type Dispatcher struct {
	mu          sync.RWMutex
	subscribers []namedSubscriber
	log         *zap.Logger
}

// NewDispatcher создаёт пустой диспетчер
func NewDispatcher(log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{log: log}
}

// Subscribe регистрирует подписчика под именем name (имя попадает в логи и метрики)
func (d *Dispatcher) Subscribe(name string, sub Subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers = append(d.subscribers, namedSubscriber{name: name, sub: sub})
}

// Notify доставляет событие; всегда возвращает nil
func (d *Dispatcher) Notify(ctx context.Context, event model.EntryEvent) error {
	d.mu.RLock()
	subs := make([]namedSubscriber, len(d.subscribers))
	copy(subs, d.subscribers)
	d.mu.RUnlock()

	for _, s := range subs {
		err := d.deliver(ctx, s, event)
		metrics.EventDeliveries.WithLabelValues(s.name, string(event.Kind), metrics.Result(err)).Inc()
		if err != nil {
			d.log.Error("подписчик не обработал событие",
				zap.String("subscriber", s.name),
				zap.Stringer("event", event),
				zap.Error(err))
		}
	}
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, s namedSubscriber, event model.EntryEvent) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("subscriber %s panicked: %v", s.name, rec)
		}
	}()
	return s.sub.Handle(ctx, event)
}
