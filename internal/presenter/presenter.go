// Пакет presenter строит HTML-представление списка записей курса
package presenter

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"

	"CourseEntries/internal/attachments"
	"CourseEntries/internal/model"
)

// PageSize число записей на странице
const PageSize = 20

//go:embed templates/*.html
var templatesFS embed.FS

var tmpl = template.Must(template.New("").Funcs(template.FuncMap{
	"yesno":    yesNo,
	"userdate": userDate,
}).ParseFS(templatesFS, "templates/*.html"))

// EntryLister источник страниц записей курса
type EntryLister interface {
	List(ctx context.Context, courseID int64, opts model.ListOptions) ([]model.Entry, int, error)
}

// CourseGetter реестр курсов
type CourseGetter interface {
	GetCourse(ctx context.Context, id int64) (*model.Course, error)
}

// EntriesList результат для клиента списка
type EntriesList struct {
	CourseID   int64  `json:"courseId"`
	CourseName string `json:"courseName"`
	Contents   string `json:"contents"`
	AddLink    string `json:"addLink,omitempty"`
}

// Sort колонка и направление сортировки
type Sort struct {
	Column string
	Desc   bool
}

// Presenter собирает таблицу записей
type Presenter struct {
	entries  EntryLister
	courses  CourseGetter
	location *time.Location
}

// New создаёт Presenter; даты выводятся в часовом поясе loc (UTC, если nil)
func New(entries EntryLister, courses CourseGetter, loc *time.Location) *Presenter {
	if loc == nil {
		loc = time.UTC
	}
	return &Presenter{entries: entries, courses: courses, location: loc}
}

type header struct {
	Title   string
	SortURL string
}

type row struct {
	ID           int64
	Name         string
	Description  template.HTML
	Completed    bool
	Priority     bool
	TimeCreated  time.Time
	TimeModified time.Time
	EditURL      string
}

type pageLink struct {
	Number  int
	URL     string
	Current bool
}

type tableData struct {
	Headers []header
	Rows    []row
	CanEdit bool
	Pages   []pageLink
}

var columns = []struct {
	key, title string
}{
	{"name", "Name"},
	{"description", "Description"},
	{"completed", "Completed"},
	{"priority", "Priority"},
	{"timecreated", "Time created"},
	{"timemodified", "Time modified"},
}

// Build возвращает страницу page (с нуля) списка записей курса
func (p *Presenter) Build(ctx context.Context, courseID int64, page int, sort Sort, canEdit bool) (*EntriesList, error) {
	course, err := p.courses.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if page < 0 {
		page = 0
	}
	entries, total, err := p.entries.List(ctx, courseID, model.ListOptions{
		Limit:  PageSize,
		Offset: page * PageSize,
		Sort:   sort.Column,
		Desc:   sort.Desc,
	})
	if err != nil {
		return nil, err
	}

	data := tableData{CanEdit: canEdit}
	for _, c := range columns {
		h := header{Title: c.title}
		if c.key != "description" {
			// повторный клик по колонке меняет направление
			desc := sort.Column == c.key && !sort.Desc
			h.SortURL = listURL(courseID, 0, c.key, desc)
		}
		data.Headers = append(data.Headers, h)
	}
	for _, e := range entries {
		r := row{
			ID:           e.ID,
			Name:         e.Name,
			Description:  p.renderDescription(e),
			Completed:    e.Completed,
			Priority:     e.Priority,
			TimeCreated:  time.Unix(e.TimeCreated, 0).In(p.location),
			TimeModified: time.Unix(e.TimeModified, 0).In(p.location),
		}
		if canEdit {
			r.EditURL = fmt.Sprintf("/entry/get?id=%d", e.ID)
		}
		data.Rows = append(data.Rows, r)
	}
	pages := (total + PageSize - 1) / PageSize
	for i := 0; i < pages; i++ {
		data.Pages = append(data.Pages, pageLink{
			Number:  i + 1,
			URL:     listURLWithSort(courseID, i, sort),
			Current: i == page,
		})
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "entries_table", data); err != nil {
		return nil, fmt.Errorf("failed to render entries table: %w", err)
	}
	out := &EntriesList{
		CourseID:   courseID,
		CourseName: course.FullName,
		Contents:   buf.String(),
	}
	if canEdit {
		out.AddLink = fmt.Sprintf("/entry/create?courseId=%d", courseID)
	}
	return out, nil
}

// renderDescription HTML выводится как есть с подстановкой адресов файлов,
// остальные форматы экранируются с сохранением переносов строк
func (p *Presenter) renderDescription(e model.Entry) template.HTML {
	if e.DescriptionFormat == model.FormatHTML {
		base := fmt.Sprintf("/entry/file?id=%d&name=", e.ID)
		return template.HTML(attachments.RewritePluginfileURLs(e.Description, base))
	}
	escaped := template.HTMLEscapeString(e.Description)
	escaped = strings.ReplaceAll(escaped, "\r\n", "\n")
	return template.HTML(strings.ReplaceAll(escaped, "\n", "<br>\n"))
}

func listURL(courseID int64, page int, column string, desc bool) string {
	v := url.Values{}
	v.Set("courseId", fmt.Sprint(courseID))
	if page > 0 {
		v.Set("page", fmt.Sprint(page))
	}
	if column != "" {
		v.Set("sort", column)
		if desc {
			v.Set("dir", "desc")
		}
	}
	return "/entries/list?" + v.Encode()
}

func listURLWithSort(courseID int64, page int, sort Sort) string {
	return listURL(courseID, page, sort.Column, sort.Desc)
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func userDate(t time.Time) string {
	return t.Format("Monday, 2 January 2006, 3:04 PM")
}
