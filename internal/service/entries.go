package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"CourseEntries/internal/model"
	"CourseEntries/pkg/apperrors"
	cachepkg "CourseEntries/pkg/cache"
	"CourseEntries/pkg/metrics"
	"CourseEntries/pkg/validator"
)

// Repo хранилище записей (Postgres)
type Repo interface {
	GetEntry(ctx context.Context, id, courseID int64) (*model.Entry, error)
	InsertEntry(ctx context.Context, in model.EntryInsert, now int64) (int64, error)
	UpdateEntry(ctx context.Context, upd model.EntryUpdate, now int64) (*model.Entry, error)
	UpdateDescription(ctx context.Context, id int64, text string, format model.DescriptionFormat) error
	DeleteEntry(ctx context.Context, id int64) error
	DeleteByCourse(ctx context.Context, courseID int64) ([]int64, error)
	ExistsWithName(ctx context.Context, courseID int64, name string, excludingID int64) (bool, error)
	ListByCourse(ctx context.Context, courseID int64, opts model.ListOptions) ([]model.Entry, int, error)
}

// Cache кэш записей по ключу entry:<id> (Redis или память процесса)
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Invalidate(ctx context.Context, key string) error
}

// Notifier получает события жизненного цикла записей
type Notifier interface {
	Notify(ctx context.Context, event model.EntryEvent) error
}

// Rewriter переносит вложения черновика описания в область записи
type Rewriter interface {
	Rewrite(ctx context.Context, courseID, entryID int64, draft model.DescriptionDraft) (string, model.DescriptionFormat, error)
}

// Strictness поведение Retrieve при отсутствии записи
type Strictness int

const (
	// MustExist возвращает NotFound
	MustExist Strictness = iota
	// IgnoreMissing возвращает (nil, nil)
	IgnoreMissing
)

// Коды ошибок полей формы
const (
	ErrCodeRequired   = "required"
	ErrCodeMaxChars   = "maximumchars"
	ErrCodeNameExists = "errornameexists"
	ErrCodeInvalid    = "invalid"
)

// Option настраивает EntryService
type Option func(*EntryService)

// WithClock подменяет источник времени
func WithClock(now func() time.Time) Option {
	return func(s *EntryService) { s.now = now }
}

// WithCacheTTL задаёт время жизни записи в кэше
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *EntryService) { s.cacheTTL = ttl }
}

// WithLogger задаёт логгер
func WithLogger(l *zap.Logger) Option {
	return func(s *EntryService) {
		if l != nil {
			s.log = l
		}
	}
}

// EntryService координирует хранилище, кэш, перенос вложений и события
type EntryService struct {
	repo     Repo
	cache    Cache
	notifier Notifier
	rewriter Rewriter
	now      func() time.Time
	cacheTTL time.Duration
	log      *zap.Logger
}

// NewEntryService создаёт сервис записей
func NewEntryService(r Repo, c Cache, n Notifier, rw Rewriter, opts ...Option) *EntryService {
	s := &EntryService{
		repo:     r,
		cache:    c,
		notifier: n,
		rewriter: rw,
		now:      time.Now,
		cacheTTL: time.Minute,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func cacheKey(id int64) string {
	return fmt.Sprintf("entry:%d", id)
}

// Retrieve возвращает запись: сначала из кэша, затем из хранилища с заполнением кэша.
// courseID > 0 ограничивает поиск курсом.
func (s *EntryService) Retrieve(ctx context.Context, id, courseID int64, strictness Strictness) (*model.Entry, error) {
	e, err := s.retrieve(ctx, id, courseID)
	metrics.EntryOperations.WithLabelValues("retrieve", metrics.Result(err)).Inc()
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) && strictness == IgnoreMissing {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}

func (s *EntryService) retrieve(ctx context.Context, id, courseID int64) (*model.Entry, error) {
	if e, ok := s.fromCache(ctx, id); ok {
		if courseID > 0 && e.CourseID != courseID {
			return nil, apperrors.NotFound(fmt.Sprintf("entry %d not found", id))
		}
		return e, nil
	}
	e, err := s.repo.GetEntry(ctx, id, courseID)
	if err != nil {
		return nil, err
	}
	s.toCache(ctx, e)
	return e, nil
}

// Insert создаёт запись и возвращает её id
func (s *EntryService) Insert(ctx context.Context, in model.EntryInsert) (id int64, err error) {
	defer func() { metrics.EntryOperations.WithLabelValues("insert", metrics.Result(err)).Inc() }()
	if in.CourseID <= 0 {
		return 0, apperrors.Validation("entry data must contain courseId")
	}
	if in.Draft != nil {
		format := in.Draft.Format
		in.Description, in.DescriptionFormat = in.Draft.Text, &format
	}
	format := in.Format()
	if !format.Valid() {
		return 0, fieldError("descriptionFormat", ErrCodeInvalid)
	}
	in.DescriptionFormat = &format
	fields, err := s.ValidateForm(ctx, model.EntryForm{CourseID: in.CourseID, Name: in.Name})
	if err != nil {
		return 0, err
	}
	if len(fields) > 0 {
		return 0, apperrors.Validation("invalid entry").WithFields(fields)
	}

	now := s.now().Unix()
	id, err = s.repo.InsertEntry(ctx, in, now)
	if err != nil {
		return 0, err
	}
	entry := model.Entry{
		ID:                id,
		CourseID:          in.CourseID,
		Name:              in.Name,
		Completed:         in.Completed,
		Priority:          in.Priority,
		Description:       in.Description,
		DescriptionFormat: format,
		TimeCreated:       now,
		TimeModified:      now,
	}
	// строка уже записана: ошибки ниже оставляют её в хранилище
	if in.Draft != nil && s.rewriter != nil {
		text, format, err := s.rewriter.Rewrite(ctx, in.CourseID, id, *in.Draft)
		if err != nil {
			return 0, fmt.Errorf("failed to resolve description files: %w", err)
		}
		if err := s.repo.UpdateDescription(ctx, id, text, format); err != nil {
			return 0, err
		}
		entry.Description, entry.DescriptionFormat = text, format
	}
	s.toCache(ctx, &entry)
	if err := s.notify(ctx, model.EventCreated, entry.CourseID, id, &entry, now); err != nil {
		return 0, err
	}
	s.log.Info("запись создана", zap.Int64("entry_id", id), zap.Int64("course_id", entry.CourseID))
	return id, nil
}

// Update накладывает изменения на запись и возвращает результат
func (s *EntryService) Update(ctx context.Context, upd model.EntryUpdate) (entry *model.Entry, err error) {
	defer func() { metrics.EntryOperations.WithLabelValues("update", metrics.Result(err)).Inc() }()
	if upd.ID <= 0 {
		return nil, apperrors.Validation("entry data must contain id")
	}
	current, err := s.repo.GetEntry(ctx, upd.ID, 0)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Validation(fmt.Sprintf("entry %d does not exist", upd.ID))
		}
		return nil, err
	}
	if upd.DescriptionFormat != nil && !upd.DescriptionFormat.Valid() {
		return nil, fieldError("descriptionFormat", ErrCodeInvalid)
	}
	if upd.Draft != nil && !upd.Draft.Format.Valid() {
		return nil, fieldError("descriptionFormat", ErrCodeInvalid)
	}
	if upd.Name != nil && *upd.Name != current.Name {
		fields, err := s.ValidateForm(ctx, model.EntryForm{ID: upd.ID, CourseID: current.CourseID, Name: *upd.Name})
		if err != nil {
			return nil, err
		}
		if len(fields) > 0 {
			return nil, apperrors.Validation("invalid entry").WithFields(fields)
		}
	}
	if upd.Draft != nil {
		text, format := upd.Draft.Text, upd.Draft.Format
		if s.rewriter != nil {
			text, format, err = s.rewriter.Rewrite(ctx, current.CourseID, upd.ID, *upd.Draft)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve description files: %w", err)
			}
		}
		upd.Description, upd.DescriptionFormat = &text, &format
	}

	entry, err = s.repo.UpdateEntry(ctx, upd, s.now().Unix())
	if err != nil {
		return nil, err
	}
	s.toCache(ctx, entry)
	if err := s.notify(ctx, model.EventUpdated, entry.CourseID, entry.ID, entry, entry.TimeModified); err != nil {
		return nil, err
	}
	s.log.Info("запись обновлена", zap.Int64("entry_id", entry.ID), zap.Int64("course_id", entry.CourseID))
	return entry, nil
}

// Delete удаляет запись; отсутствующая запись не ошибка
func (s *EntryService) Delete(ctx context.Context, id int64) (err error) {
	defer func() { metrics.EntryOperations.WithLabelValues("delete", metrics.Result(err)).Inc() }()
	entry, err := s.Retrieve(ctx, id, 0, IgnoreMissing)
	if err != nil {
		return err
	}
	if entry == nil {
		return nil
	}
	if err := s.repo.DeleteEntry(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	if err := s.notify(ctx, model.EventDeleted, entry.CourseID, id, entry, s.now().Unix()); err != nil {
		return err
	}
	s.log.Info("запись удалена", zap.Int64("entry_id", id), zap.Int64("course_id", entry.CourseID))
	return nil
}

// OnCourseDeleted удаляет все записи курса. Для каждой удалённой записи кэш
// сбрасывается и отправляется событие deleted, как при одиночном удалении.
func (s *EntryService) OnCourseDeleted(ctx context.Context, courseID int64) (err error) {
	defer func() { metrics.EntryOperations.WithLabelValues("purge", metrics.Result(err)).Inc() }()
	ids, err := s.repo.DeleteByCourse(ctx, courseID)
	if err != nil {
		return err
	}
	now := s.now().Unix()
	for _, id := range ids {
		s.invalidate(ctx, id)
	}
	for _, id := range ids {
		if err := s.notify(ctx, model.EventDeleted, courseID, id, nil, now); err != nil {
			return err
		}
	}
	s.log.Info("записи курса удалены", zap.Int64("course_id", courseID), zap.Int("count", len(ids)))
	return nil
}

// ValidateForm проверяет поля формы редактирования и возвращает ошибки по полям.
// Пустой результат означает, что форму можно сохранять.
func (s *EntryService) ValidateForm(ctx context.Context, form model.EntryForm) (map[string]string, error) {
	fields := map[string]string{}
	if err := validator.ValidateStruct(form); err != nil {
		var fe validator.FieldErrors
		if !errors.As(err, &fe) {
			return nil, err
		}
		for _, f := range fe {
			switch f.Tag {
			case "required":
				fields[f.Field] = ErrCodeRequired
			case "max":
				fields[f.Field] = ErrCodeMaxChars
			default:
				fields[f.Field] = ErrCodeInvalid
			}
		}
	}
	if _, bad := fields["name"]; !bad && form.CourseID > 0 {
		exists, err := s.repo.ExistsWithName(ctx, form.CourseID, form.Name, form.ID)
		if err != nil {
			return nil, err
		}
		if exists {
			fields["name"] = ErrCodeNameExists
		}
	}
	return fields, nil
}

// List возвращает страницу записей курса и их общее число
func (s *EntryService) List(ctx context.Context, courseID int64, opts model.ListOptions) ([]model.Entry, int, error) {
	return s.repo.ListByCourse(ctx, courseID, opts)
}

func (s *EntryService) notify(ctx context.Context, kind model.EventKind, courseID, id int64, entry *model.Entry, at int64) error {
	if s.notifier == nil {
		return nil
	}
	event := model.EntryEvent{Kind: kind, CourseID: courseID, EntryID: id, OccurredAt: at}
	if entry != nil {
		snapshot := *entry
		event.Entry = &snapshot
	}
	if err := s.notifier.Notify(ctx, event); err != nil {
		return fmt.Errorf("failed to notify %s: %w", event, err)
	}
	return nil
}

// fromCache ошибки кэша кроме промаха логируются и считаются промахом
func (s *EntryService) fromCache(ctx context.Context, id int64) (*model.Entry, bool) {
	data, err := s.cache.Get(ctx, cacheKey(id))
	if err != nil {
		if errors.Is(err, cachepkg.ErrCacheMiss) {
			metrics.CacheLookups.WithLabelValues("miss").Inc()
		} else {
			metrics.CacheLookups.WithLabelValues("error").Inc()
			s.log.Warn("ошибка чтения кэша", zap.Int64("entry_id", id), zap.Error(err))
		}
		return nil, false
	}
	var e model.Entry
	if err := json.Unmarshal(data, &e); err != nil {
		metrics.CacheLookups.WithLabelValues("error").Inc()
		s.log.Warn("повреждённое значение в кэше", zap.Int64("entry_id", id), zap.Error(err))
		return nil, false
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return &e, true
}

func (s *EntryService) toCache(ctx context.Context, e *model.Entry) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cacheKey(e.ID), data, s.cacheTTL); err != nil {
		s.log.Warn("ошибка записи в кэш", zap.Int64("entry_id", e.ID), zap.Error(err))
	}
}

func (s *EntryService) invalidate(ctx context.Context, id int64) {
	if err := s.cache.Invalidate(ctx, cacheKey(id)); err != nil {
		s.log.Warn("ошибка сброса кэша", zap.Int64("entry_id", id), zap.Error(err))
	}
}

func fieldError(field, code string) error {
	return apperrors.Validation("invalid entry").WithFields(map[string]string{field: code})
}
