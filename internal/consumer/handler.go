package consumer

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"CourseEntries/internal/model"
)

// Repo пакетная запись событий в ClickHouse
type Repo interface {
	BatchInsertEvents(ctx context.Context, events []model.EntryEvent) error
}

// Consumer буферизует события и отправляет их в ClickHouse пакетами по batchSize
type Consumer struct {
	repo      Repo
	batchSize int
	events    []model.EntryEvent
	mu        sync.Mutex
	log       *zap.Logger
}

// NewConsumer создаёт Consumer с указанным репозиторием и размером пакета
func NewConsumer(repo Repo, batchSize int, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{repo: repo, batchSize: batchSize, events: make([]model.EntryEvent, 0, batchSize), log: log}
}

// HandleMessage разбирает событие из NATS и добавляет его в буфер; полный буфер сбрасывается в ClickHouse
func (c *Consumer) HandleMessage(ctx context.Context, data []byte) error {
	var e model.EntryEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return err
	}
	c.log.Debug("получено событие", zap.Stringer("event", e))
	c.mu.Lock()
	c.events = append(c.events, e)
	if len(c.events) >= c.batchSize {
		batch := c.drainLocked()
		c.mu.Unlock()
		return c.repo.BatchInsertEvents(ctx, batch)
	}
	c.mu.Unlock()
	return nil
}

// Flush отправляет все накопленные события, если они есть
func (c *Consumer) Flush(ctx context.Context) error {
	c.mu.Lock()
	if len(c.events) == 0 {
		c.mu.Unlock()
		return nil
	}
	batch := c.drainLocked()
	c.mu.Unlock()
	return c.repo.BatchInsertEvents(ctx, batch)
}

func (c *Consumer) drainLocked() []model.EntryEvent {
	batch := make([]model.EntryEvent, len(c.events))
	copy(batch, c.events)
	c.events = c.events[:0]
	return batch
}
