// Пакет backup выгружает записи курса в YAML и восстанавливает их в другой курс
package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"CourseEntries/internal/model"
	"CourseEntries/internal/service"
	"CourseEntries/pkg/apperrors"
)

// exportPageSize размер страницы при выгрузке
const exportPageSize = 100

// EntryService операции сервиса записей, нужные для выгрузки и восстановления
type EntryService interface {
	List(ctx context.Context, courseID int64, opts model.ListOptions) ([]model.Entry, int, error)
	Insert(ctx context.Context, in model.EntryInsert) (int64, error)
}

// Document формат файла выгрузки
type Document struct {
	CourseID   int64         `yaml:"courseId"`
	ExportedAt time.Time     `yaml:"exportedAt"`
	Entries    []model.Entry `yaml:"entries"`
}

// Result итог восстановления
type Result struct {
	Imported int
	Skipped  int
}

// Manager выполняет выгрузку и восстановление
type Manager struct {
	svc EntryService
	now func() time.Time
	log *zap.Logger
}

// NewManager создаёт Manager
func NewManager(svc EntryService, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{svc: svc, now: time.Now, log: log}
}

// Export пишет все записи курса в w
func (m *Manager) Export(ctx context.Context, courseID int64, w io.Writer) (int, error) {
	doc := Document{CourseID: courseID, ExportedAt: m.now().UTC()}
	for offset := 0; ; offset += exportPageSize {
		page, total, err := m.svc.List(ctx, courseID, model.ListOptions{Limit: exportPageSize, Offset: offset})
		if err != nil {
			return 0, fmt.Errorf("failed to list entries: %w", err)
		}
		doc.Entries = append(doc.Entries, page...)
		if len(page) == 0 || offset+len(page) >= total {
			break
		}
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return 0, fmt.Errorf("failed to encode backup: %w", err)
	}
	if err := enc.Close(); err != nil {
		return 0, fmt.Errorf("failed to encode backup: %w", err)
	}
	m.log.Info("записи курса выгружены", zap.Int64("course_id", courseID), zap.Int("count", len(doc.Entries)))
	return len(doc.Entries), nil
}

// Import создаёт записи из r в курсе targetCourseID через сервис записей.
// Записи с именем, уже занятым в курсе, пропускаются.
func (m *Manager) Import(ctx context.Context, targetCourseID int64, r io.Reader) (Result, error) {
	var res Result
	if targetCourseID <= 0 {
		return res, apperrors.Validation("target course is required")
	}
	var doc Document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return res, fmt.Errorf("failed to decode backup: %w", err)
	}
	for _, e := range doc.Entries {
		format := e.DescriptionFormat
		_, err := m.svc.Insert(ctx, model.EntryInsert{
			CourseID:          targetCourseID,
			Name:              e.Name,
			Completed:         e.Completed,
			Priority:          e.Priority,
			Description:       e.Description,
			DescriptionFormat: &format,
		})
		if err != nil {
			var appErr *apperrors.AppError
			if errors.As(err, &appErr) && appErr.Fields["name"] == service.ErrCodeNameExists {
				res.Skipped++
				m.log.Warn("запись с таким именем уже есть в курсе", zap.String("name", e.Name), zap.Int64("course_id", targetCourseID))
				continue
			}
			return res, fmt.Errorf("failed to restore entry %q: %w", e.Name, err)
		}
		res.Imported++
	}
	m.log.Info("записи курса восстановлены",
		zap.Int64("course_id", targetCourseID),
		zap.Int("imported", res.Imported),
		zap.Int("skipped", res.Skipped))
	return res, nil
}
