// Пакет permissions проверяет права пользователей на записи курса
package permissions

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"CourseEntries/pkg/apperrors"
)

// Capability право в контексте курса
type Capability string

const (
	// View просмотр списка и записей курса
	View Capability = "entries:view"
	// Edit создание, изменение и удаление записей; включает View
	Edit Capability = "entries:edit"
)

// ParseCapability разбирает имя права; допускается краткая форма view или edit
func ParseCapability(s string) (Capability, error) {
	switch s {
	case string(View), "view":
		return View, nil
	case string(Edit), "edit":
		return Edit, nil
	}
	return "", apperrors.Validation(fmt.Sprintf("unknown capability %q", s))
}

// Checker читает права из таблицы course_capabilities
type Checker struct {
	db *sql.DB
}

// NewChecker создаёт Checker
func NewChecker(db *sql.DB) *Checker {
	return &Checker{db: db}
}

// Has сообщает, есть ли у пользователя право cap в курсе
func (c *Checker) Has(ctx context.Context, userID string, courseID int64, cap Capability) (bool, error) {
	if userID == "" {
		return false, nil
	}
	caps := []string{string(cap)}
	if cap == View {
		caps = append(caps, string(Edit))
	}
	var ok bool
	err := c.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM course_capabilities WHERE user_id=$1 AND course_id=$2 AND capability = ANY($3))`,
		userID, courseID, pq.StringArray(caps)).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("failed to check capability: %w", err)
	}
	return ok, nil
}

// Require возвращает Forbidden, если права нет
func (c *Checker) Require(ctx context.Context, userID string, courseID int64, cap Capability) error {
	if userID == "" {
		return apperrors.Forbidden("missing user identity")
	}
	ok, err := c.Has(ctx, userID, courseID, cap)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.Forbidden(fmt.Sprintf("user %s lacks %s in course %d", userID, cap, courseID))
	}
	return nil
}

// Grant выдаёт право (команда entriesctl grant)
func (c *Checker) Grant(ctx context.Context, userID string, courseID int64, cap Capability) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO course_capabilities(user_id, course_id, capability) VALUES($1, $2, $3) ON CONFLICT DO NOTHING`,
		userID, courseID, string(cap))
	if err != nil {
		return fmt.Errorf("failed to grant capability: %w", err)
	}
	return nil
}
