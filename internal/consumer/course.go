package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"CourseEntries/internal/model"
)

// CoursePurger удаляет записи удалённого курса
type CoursePurger interface {
	OnCourseDeleted(ctx context.Context, courseID int64) error
}

// CourseDeletedHandler обрабатывает сообщения хост-системы об удалении курсов
type CourseDeletedHandler struct {
	purger CoursePurger
	log    *zap.Logger
}

// NewCourseDeletedHandler создаёт обработчик каскадного удаления
func NewCourseDeletedHandler(purger CoursePurger, log *zap.Logger) *CourseDeletedHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &CourseDeletedHandler{purger: purger, log: log}
}

// HandleMessage разбирает {"courseId": N} и удаляет записи курса
func (h *CourseDeletedHandler) HandleMessage(ctx context.Context, data []byte) error {
	var msg model.CourseDeleted
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("failed to decode course deletion: %w", err)
	}
	if msg.CourseID <= 0 {
		return fmt.Errorf("invalid courseId %d", msg.CourseID)
	}
	h.log.Info("курс удалён, удаляем записи", zap.Int64("course_id", msg.CourseID))
	return h.purger.OnCourseDeleted(ctx, msg.CourseID)
}
