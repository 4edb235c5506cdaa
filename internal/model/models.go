package model

import "fmt"

// MaxNameLength максимальная длина имени записи (varchar(50) в таблице entries)
const MaxNameLength = 50

// DescriptionFormat формат разметки описания (значения совпадают с форматами LMS)
type DescriptionFormat int16

const (
	FormatAuto     DescriptionFormat = 0
	FormatHTML     DescriptionFormat = 1
	FormatPlain    DescriptionFormat = 2
	FormatMarkdown DescriptionFormat = 4
)

// Valid сообщает, известен ли формат
func (f DescriptionFormat) Valid() bool {
	switch f {
	case FormatAuto, FormatHTML, FormatPlain, FormatMarkdown:
		return true
	}
	return false
}

// Course представляет курс из реестра курсов (таблица courses)
type Course struct {
	ID       int64  `db:"id" json:"id"`
	FullName string `db:"full_name" json:"fullName"`
}

// Entry представляет запись курса (таблица entries)
type Entry struct {
	ID                int64             `db:"id" json:"id" yaml:"-"`
	CourseID          int64             `db:"course_id" json:"courseId" yaml:"-"`
	Name              string            `db:"name" json:"name" yaml:"name"`
	Completed         bool              `db:"completed" json:"completed" yaml:"completed"`
	Priority          bool              `db:"priority" json:"priority" yaml:"priority"`
	Description       string            `db:"description" json:"description" yaml:"description"`
	DescriptionFormat DescriptionFormat `db:"description_format" json:"descriptionFormat" yaml:"descriptionFormat"`
	TimeCreated       int64             `db:"time_created" json:"timeCreated" yaml:"timeCreated"`
	TimeModified      int64             `db:"time_modified" json:"timeModified" yaml:"timeModified"`
}

// DescriptionDraft черновик описания из редактора: текст ссылается на файлы
// в области черновиков ItemID и ещё не привязан к записи
type DescriptionDraft struct {
	ItemID string            `json:"itemId"`
	Text   string            `json:"text"`
	Format DescriptionFormat `json:"format"`
}

// EntryInsert набор полей для создания записи
type EntryInsert struct {
	CourseID          int64              `json:"courseId"`
	Name              string             `json:"name"`
	Completed         bool               `json:"completed"`
	Priority          bool               `json:"priority"`
	Description       string             `json:"description"`
	DescriptionFormat *DescriptionFormat `json:"descriptionFormat,omitempty"`
	Draft             *DescriptionDraft  `json:"descriptionEditor,omitempty"`
}

// Format возвращает формат описания; не заданный формат считается plain
func (in EntryInsert) Format() DescriptionFormat {
	if in.DescriptionFormat == nil {
		return FormatPlain
	}
	return *in.DescriptionFormat
}

// EntryUpdate набор изменяемых полей; nil означает "не менять"
type EntryUpdate struct {
	ID                int64              `json:"id"`
	Name              *string            `json:"name,omitempty"`
	Completed         *bool              `json:"completed,omitempty"`
	Priority          *bool              `json:"priority,omitempty"`
	Description       *string            `json:"description,omitempty"`
	DescriptionFormat *DescriptionFormat `json:"descriptionFormat,omitempty"`
	Draft             *DescriptionDraft  `json:"descriptionEditor,omitempty"`
}

// Apply накладывает изменения на запись и возвращает результат
func (u EntryUpdate) Apply(e Entry) Entry {
	if u.Name != nil {
		e.Name = *u.Name
	}
	if u.Completed != nil {
		e.Completed = *u.Completed
	}
	if u.Priority != nil {
		e.Priority = *u.Priority
	}
	if u.Description != nil {
		e.Description = *u.Description
	}
	if u.DescriptionFormat != nil {
		e.DescriptionFormat = *u.DescriptionFormat
	}
	return e
}

// EntryForm поля формы редактирования, которые проверяются до сохранения
type EntryForm struct {
	ID       int64  `json:"id"`
	CourseID int64  `json:"courseId" validate:"gt=0"`
	Name     string `json:"name" validate:"required,max=50"`
}

// ListOptions пагинация и сортировка списка записей курса
type ListOptions struct {
	Limit  int
	Offset int
	Sort   string
	Desc   bool
}

// EventKind тип события жизненного цикла записи
type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
	EventDeleted EventKind = "deleted"
)

// EntryEvent уведомление о событии; Entry содержит снимок записи, если он известен
type EntryEvent struct {
	Kind       EventKind `json:"kind"`
	CourseID   int64     `json:"courseId"`
	EntryID    int64     `json:"entryId"`
	OccurredAt int64     `json:"occurredAt"`
	Entry      *Entry    `json:"entry,omitempty"`
}

func (e EntryEvent) String() string {
	return fmt.Sprintf("%s course=%d entry=%d", e.Kind, e.CourseID, e.EntryID)
}

// CourseDeleted сообщение хост-системы об удалении курса
type CourseDeleted struct {
	CourseID int64 `json:"courseId"`
}
