package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"CourseEntries/internal/model"
	"CourseEntries/pkg/apperrors"
)

// fakeService хранит записи в срезе
type fakeService struct {
	entries  []model.Entry
	inserted []model.EntryInsert
	listErr  error
}

func (f *fakeService) List(_ context.Context, courseID int64, opts model.ListOptions) ([]model.Entry, int, error) {
	if f.listErr != nil {
		return nil, 0, f.listErr
	}
	var all []model.Entry
	for _, e := range f.entries {
		if e.CourseID == courseID {
			all = append(all, e)
		}
	}
	if opts.Offset >= len(all) {
		return nil, len(all), nil
	}
	end := opts.Offset + opts.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[opts.Offset:end], len(all), nil
}

func (f *fakeService) Insert(_ context.Context, in model.EntryInsert) (int64, error) {
	for _, e := range f.inserted {
		if e.CourseID == in.CourseID && e.Name == in.Name {
			return 0, apperrors.Validation("invalid entry").WithFields(map[string]string{"name": "errornameexists"})
		}
	}
	if in.Name == "broken" {
		return 0, errors.New("db down")
	}
	f.inserted = append(f.inserted, in)
	return int64(len(f.inserted)), nil
}

func TestExport(t *testing.T) {
	svc := &fakeService{}
	for i := 1; i <= 150; i++ {
		svc.entries = append(svc.entries, model.Entry{ID: int64(i), CourseID: 3, Name: fmt.Sprintf("e%d", i), TimeCreated: 10, TimeModified: 20})
	}
	svc.entries = append(svc.entries, model.Entry{ID: 999, CourseID: 4, Name: "other"})
	m := NewManager(svc, nil)
	m.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }

	var buf bytes.Buffer
	n, err := m.Export(context.Background(), 3, &buf)
	require.NoError(t, err)
	require.Equal(t, 150, n)

	var doc Document
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	require.Equal(t, int64(3), doc.CourseID)
	require.Len(t, doc.Entries, 150)
	require.Equal(t, "e150", doc.Entries[149].Name)
	require.Equal(t, int64(20), doc.Entries[0].TimeModified)
	// id и курс в файл не попадают
	require.NotContains(t, buf.String(), "courseId: 4")
	require.Contains(t, buf.String(), "exportedAt: 2025-01-02T03:04:05Z")
}

func TestExport_ListError(t *testing.T) {
	m := NewManager(&fakeService{listErr: errors.New("db down")}, nil)
	_, err := m.Export(context.Background(), 1, &bytes.Buffer{})
	require.ErrorContains(t, err, "db down")
}

func TestImport(t *testing.T) {
	svc := &fakeService{}
	m := NewManager(svc, nil)
	input := `courseId: 3
exportedAt: 2025-01-02T03:04:05Z
entries:
  - name: first
    completed: true
    priority: false
    description: "<p>x</p>"
    descriptionFormat: 1
  - name: second
  - name: first
`
	res, err := m.Import(context.Background(), 8, strings.NewReader(input))
	require.NoError(t, err)
	require.Equal(t, Result{Imported: 2, Skipped: 1}, res)
	html := model.FormatHTML
	require.Equal(t, model.EntryInsert{CourseID: 8, Name: "first", Completed: true, Description: "<p>x</p>",
		DescriptionFormat: &html}, svc.inserted[0])
}

func TestImport_Errors(t *testing.T) {
	m := NewManager(&fakeService{}, nil)

	_, err := m.Import(context.Background(), 0, strings.NewReader("entries: []"))
	require.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = m.Import(context.Background(), 1, strings.NewReader("entries: [oops"))
	require.Error(t, err)

	res, err := m.Import(context.Background(), 1, strings.NewReader("entries:\n  - name: ok\n  - name: broken\n"))
	require.ErrorContains(t, err, "db down")
	require.Equal(t, 1, res.Imported)
}
