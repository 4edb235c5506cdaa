package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"CourseEntries/internal/model"
	"CourseEntries/pkg/apperrors"
)

// uniqueViolation код ошибки Postgres при нарушении уникального индекса
const uniqueViolation = "23505"

// entryColumns список столбцов для выборки записи; NULL в course_id и description приводятся к нулевым значениям
const entryColumns = `id, COALESCE(course_id, 0), name, completed, priority, COALESCE(description, ''), description_format, time_created, time_modified`

// sortColumns допустимые колонки сортировки списка
var sortColumns = map[string]string{
	"name":         "name",
	"completed":    "completed",
	"priority":     "priority",
	"timecreated":  "time_created",
	"timemodified": "time_modified",
}

// EntryRepository реализует доступ к таблице entries
type EntryRepository struct {
	db *sql.DB
}

// NewEntryRepository создает новый репозиторий записей
func NewEntryRepository(db *sql.DB) *EntryRepository {
	return &EntryRepository{db: db}
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row scanner) (*model.Entry, error) {
	var e model.Entry
	err := row.Scan(&e.ID, &e.CourseID, &e.Name, &e.Completed, &e.Priority,
		&e.Description, &e.DescriptionFormat, &e.TimeCreated, &e.TimeModified)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// GetEntry возвращает запись по id; если courseID > 0, запись должна принадлежать этому курсу
func (r *EntryRepository) GetEntry(ctx context.Context, id, courseID int64) (*model.Entry, error) {
	var row *sql.Row
	if courseID > 0 {
		row = r.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE id=$1 AND course_id=$2`, id, courseID)
	} else {
		row = r.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE id=$1`, id)
	}
	e, err := scanEntry(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFound(fmt.Sprintf("entry %d not found", id))
		}
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	return e, nil
}

// InsertEntry добавляет запись и возвращает её id; time_created и time_modified равны now
func (r *EntryRepository) InsertEntry(ctx context.Context, in model.EntryInsert, now int64) (int64, error) {
	if in.CourseID <= 0 {
		return 0, apperrors.Validation("entry data must contain courseId")
	}
	query := `INSERT INTO entries(course_id, name, completed, priority, description, description_format, time_created, time_modified)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`
	var id int64
	err := r.db.QueryRowContext(ctx, query, in.CourseID, in.Name, boolToSmallint(in.Completed), boolToSmallint(in.Priority),
		in.Description, in.Format(), now, now).Scan(&id)
	if err != nil {
		return 0, mapWriteError("failed to insert entry", err)
	}
	return id, nil
}

// UpdateEntry накладывает изменения на запись с блокировкой строки и возвращает итоговую запись
func (r *EntryRepository) UpdateEntry(ctx context.Context, upd model.EntryUpdate, now int64) (*model.Entry, error) {
	if upd.ID <= 0 {
		return nil, apperrors.Validation("entry data must contain id")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	// выборка с блокировкой
	current, err := scanEntry(tx.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE id=$1 FOR UPDATE`, upd.ID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.Validation(fmt.Sprintf("entry %d does not exist", upd.ID))
		}
		return nil, fmt.Errorf("failed to select entry for update: %w", err)
	}
	merged := upd.Apply(*current)
	// time_modified не может быть меньше time_created даже при сдвиге часов
	if now < merged.TimeCreated {
		now = merged.TimeCreated
	}
	merged.TimeModified = now
	updateQuery := `UPDATE entries SET name=$1, completed=$2, priority=$3, description=$4, description_format=$5, time_modified=$6 WHERE id=$7`
	_, err = tx.ExecContext(ctx, updateQuery, merged.Name, boolToSmallint(merged.Completed), boolToSmallint(merged.Priority),
		merged.Description, merged.DescriptionFormat, merged.TimeModified, merged.ID)
	if err != nil {
		return nil, mapWriteError("failed to update entry", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &merged, nil
}

// UpdateDescription перезаписывает описание после переноса вложений из черновика
func (r *EntryRepository) UpdateDescription(ctx context.Context, id int64, text string, format model.DescriptionFormat) error {
	_, err := r.db.ExecContext(ctx, `UPDATE entries SET description=$1, description_format=$2 WHERE id=$3`, text, format, id)
	if err != nil {
		return fmt.Errorf("failed to update entry description: %w", err)
	}
	return nil
}

// DeleteEntry удаляет запись; отсутствие записи ошибкой не считается
func (r *EntryRepository) DeleteEntry(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM entries WHERE id=$1`, id); err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	return nil
}

// DeleteByCourse удаляет все записи курса и возвращает id удалённых записей
func (r *EntryRepository) DeleteByCourse(ctx context.Context, courseID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `DELETE FROM entries WHERE course_id=$1 RETURNING id`, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete course entries: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan deleted entry id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to delete course entries: %w", err)
	}
	return ids, nil
}

// ExistsWithName проверяет, есть ли в курсе другая запись (id <> excludingID) с таким же именем
func (r *EntryRepository) ExistsWithName(ctx context.Context, courseID int64, name string, excludingID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM entries WHERE course_id=$1 AND name=$2 AND id<>$3)`,
		courseID, name, excludingID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check entry name: %w", err)
	}
	return exists, nil
}

// ListByCourse возвращает страницу записей курса и общее число записей курса
func (r *EntryRepository) ListByCourse(ctx context.Context, courseID int64, opts model.ListOptions) ([]model.Entry, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries WHERE course_id=$1`, courseID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count entries: %w", err)
	}
	order := "id"
	if col, ok := sortColumns[opts.Sort]; ok {
		order = col
		if opts.Desc {
			order += " DESC"
		}
		order += ", id"
	}
	query := `SELECT ` + entryColumns + ` FROM entries WHERE course_id=$1 ORDER BY ` + order + ` LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, query, courseID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to select entries list: %w", err)
	}
	defer rows.Close()
	var entries []model.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to select entries list: %w", err)
	}
	return entries, total, nil
}

// mapWriteError превращает нарушение уникального индекса в ошибку валидации имени
func mapWriteError(msg string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return apperrors.Validation("entry name already exists in course").
			WithFields(map[string]string{"name": "errornameexists"}).
			WithInternal(err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// boolToSmallint конвертирует bool в 0/1 для столбцов SMALLINT
func boolToSmallint(b bool) int16 {
	if b {
		return 1
	}
	return 0
}
