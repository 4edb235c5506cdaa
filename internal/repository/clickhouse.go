package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/k3a/html2text"
	"go.uber.org/zap"

	"CourseEntries/internal/model"
)

// ClickhouseRepo реализует пакетную запись событий жизненного цикла записей в ClickHouse
type ClickhouseRepo struct {
	db  *sql.DB
	log *zap.Logger
}

// NewClickhouseRepo создаёт новый репозиторий для ClickHouse
func NewClickhouseRepo(db *sql.DB, log *zap.Logger) *ClickhouseRepo {
	if log == nil {
		log = zap.NewNop()
	}
	return &ClickhouseRepo{db: db, log: log}
}

// BatchInsertEvents записывает пакет событий в таблицу entry_events_log.
// Описание сохраняется как обычный текст без разметки.
func (r *ClickhouseRepo) BatchInsertEvents(ctx context.Context, events []model.EntryEvent) error {
	// clickhouse-go собирает блок из всех Exec внутри транзакции
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	r.log.Debug("начало пакетной вставки событий", zap.Int("count", len(events)))
	query := `INSERT INTO entry_events_log (Kind, EntryId, CourseId, Name, Description, Completed, Priority, EventTime) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer func() { _ = stmt.Close() }()
	for _, e := range events {
		var name, desc string
		var completed, priority uint8
		if e.Entry != nil {
			name = e.Entry.Name
			desc = plainDescription(e.Entry)
			completed = boolToUInt8(e.Entry.Completed)
			priority = boolToUInt8(e.Entry.Priority)
		}
		eventTime := time.Unix(e.OccurredAt, 0)
		if e.OccurredAt == 0 {
			eventTime = time.Now()
		}
		_, err := stmt.ExecContext(ctx, string(e.Kind), e.EntryID, e.CourseID, name, desc, completed, priority, eventTime)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	r.log.Info("события записаны в ClickHouse", zap.Int("count", len(events)))
	return nil
}

// plainDescription убирает HTML-разметку из описания
func plainDescription(e *model.Entry) string {
	if e.DescriptionFormat == model.FormatHTML {
		return html2text.HTML2Text(e.Description)
	}
	return e.Description
}

// boolToUInt8 конвертирует bool в UInt8 (0/1)
func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
