package repository

import (
	"context"
	"database/sql"
	"fmt"

	"CourseEntries/internal/model"
	"CourseEntries/pkg/apperrors"
)

// CourseRepository читает реестр курсов хост-системы (таблица courses)
type CourseRepository struct {
	db *sql.DB
}

// NewCourseRepository создает репозиторий курсов
func NewCourseRepository(db *sql.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// GetCourse возвращает курс по id
func (r *CourseRepository) GetCourse(ctx context.Context, id int64) (*model.Course, error) {
	var c model.Course
	err := r.db.QueryRowContext(ctx, `SELECT id, full_name FROM courses WHERE id=$1`, id).Scan(&c.ID, &c.FullName)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFound(fmt.Sprintf("course %d not found", id))
		}
		return nil, fmt.Errorf("failed to get course: %w", err)
	}
	return &c, nil
}
