package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"CourseEntries/internal/model"
	"CourseEntries/pkg/apperrors"
	cachepkg "CourseEntries/pkg/cache"
)

// memRepo хранилище записей в памяти с теми же правилами, что и Postgres-репозиторий
type memRepo struct {
	mu      sync.Mutex
	nextID  int64
	entries map[int64]model.Entry
}

func newMemRepo() *memRepo {
	return &memRepo{entries: map[int64]model.Entry{}}
}

func (r *memRepo) GetEntry(_ context.Context, id, courseID int64) (*model.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || (courseID > 0 && e.CourseID != courseID) {
		return nil, apperrors.NotFound(fmt.Sprintf("entry %d not found", id))
	}
	return &e, nil
}

func (r *memRepo) InsertEntry(_ context.Context, in model.EntryInsert, now int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if in.CourseID <= 0 {
		return 0, apperrors.Validation("entry data must contain courseId")
	}
	for _, e := range r.entries {
		if e.CourseID == in.CourseID && e.Name == in.Name {
			return 0, apperrors.Validation("entry name already exists in course").
				WithFields(map[string]string{"name": "errornameexists"})
		}
	}
	r.nextID++
	r.entries[r.nextID] = model.Entry{
		ID: r.nextID, CourseID: in.CourseID, Name: in.Name, Completed: in.Completed, Priority: in.Priority,
		Description: in.Description, DescriptionFormat: in.Format(), TimeCreated: now, TimeModified: now,
	}
	return r.nextID, nil
}

func (r *memRepo) UpdateEntry(_ context.Context, upd model.EntryUpdate, now int64) (*model.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.entries[upd.ID]
	if !ok {
		return nil, apperrors.Validation(fmt.Sprintf("entry %d does not exist", upd.ID))
	}
	merged := upd.Apply(cur)
	if now < merged.TimeCreated {
		now = merged.TimeCreated
	}
	merged.TimeModified = now
	r.entries[upd.ID] = merged
	return &merged, nil
}

func (r *memRepo) UpdateDescription(_ context.Context, id int64, text string, format model.DescriptionFormat) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entries[id]
	e.Description, e.DescriptionFormat = text, format
	r.entries[id] = e
	return nil
}

func (r *memRepo) DeleteEntry(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
	return nil
}

func (r *memRepo) DeleteByCourse(_ context.Context, courseID int64) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []int64
	for id, e := range r.entries {
		if e.CourseID == courseID {
			ids = append(ids, id)
			delete(r.entries, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *memRepo) ExistsWithName(_ context.Context, courseID int64, name string, excludingID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.entries {
		if e.CourseID == courseID && e.Name == name && id != excludingID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memRepo) ListByCourse(_ context.Context, courseID int64, opts model.ListOptions) ([]model.Entry, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []model.Entry
	for _, e := range r.entries {
		if e.CourseID == courseID {
			all = append(all, e)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	total := len(all)
	if opts.Offset >= total {
		return nil, total, nil
	}
	end := opts.Offset + opts.Limit
	if opts.Limit <= 0 || end > total {
		end = total
	}
	return all[opts.Offset:end], total, nil
}

// recordingNotifier запоминает события
type recordingNotifier struct {
	events []model.EntryEvent
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, e model.EntryEvent) error {
	n.events = append(n.events, e)
	return n.err
}

// fakeClock управляемые часы
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type env struct {
	svc      *EntryService
	repo     *memRepo
	cache    *cachepkg.MemoryCache
	notifier *recordingNotifier
	clock    *fakeClock
}

func newEnv(rw Rewriter) *env {
	e := &env{
		repo:     newMemRepo(),
		cache:    cachepkg.NewMemoryCache(time.Minute, time.Minute),
		notifier: &recordingNotifier{},
		clock:    &fakeClock{t: time.Unix(1700000000, 0)},
	}
	e.svc = NewEntryService(e.repo, e.cache, e.notifier, rw, WithClock(e.clock.Now))
	return e
}

func ptr[T any](v T) *T { return &v }
