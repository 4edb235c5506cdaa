package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"CourseEntries/internal/model"
)

// mockRepo сохраняет полученные пакеты событий
type mockRepo struct {
	received [][]model.EntryEvent
	err      error
}

func (m *mockRepo) BatchInsertEvents(ctx context.Context, events []model.EntryEvent) error {
	batch := make([]model.EntryEvent, len(events))
	copy(batch, events)
	m.received = append(m.received, batch)
	return m.err
}

func eventJSON(t *testing.T, id int64) []byte {
	t.Helper()
	data, err := json.Marshal(model.EntryEvent{Kind: model.EventCreated, CourseID: 5, EntryID: id,
		Entry: &model.Entry{ID: id, CourseID: 5, Name: "name"}})
	require.NoError(t, err)
	return data
}

func TestHandleMessage_NoFlush(t *testing.T) {
	// событий меньше batchSize: запись в репозиторий не выполняется
	repo := &mockRepo{}
	cons := NewConsumer(repo, 3, nil)

	require.NoError(t, cons.HandleMessage(context.Background(), eventJSON(t, 1)))
	require.Len(t, repo.received, 0)
}

func TestHandleMessage_FlushOnBatch(t *testing.T) {
	repo := &mockRepo{}
	cons := NewConsumer(repo, 2, nil)

	for i := int64(1); i <= 2; i++ {
		require.NoError(t, cons.HandleMessage(context.Background(), eventJSON(t, i)))
	}
	require.Len(t, repo.received, 1)
	require.Len(t, repo.received[0], 2)
	require.Equal(t, int64(1), repo.received[0][0].EntryID)
	require.Equal(t, int64(2), repo.received[0][1].EntryID)
	require.Equal(t, "name", repo.received[0][1].Entry.Name)
}

func TestFlush_Empty(t *testing.T) {
	repo := &mockRepo{}
	cons := NewConsumer(repo, 5, nil)
	require.NoError(t, cons.Flush(context.Background()))
	require.Len(t, repo.received, 0)
}

func TestFlush_NonEmpty(t *testing.T) {
	repo := &mockRepo{}
	cons := NewConsumer(repo, 5, nil)

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, cons.HandleMessage(context.Background(), eventJSON(t, i)))
	}
	require.Len(t, repo.received, 0)

	require.NoError(t, cons.Flush(context.Background()))
	require.Len(t, repo.received, 1)
	require.Len(t, repo.received[0], 3)

	// буфер очищен
	require.NoError(t, cons.Flush(context.Background()))
	require.Len(t, repo.received, 1)
}

func TestHandleMessage_ParseError(t *testing.T) {
	repo := &mockRepo{}
	cons := NewConsumer(repo, 1, nil)
	require.Error(t, cons.HandleMessage(context.Background(), []byte("not json")))
	require.Len(t, repo.received, 0)
}

func TestBatchInsertError_IsPropagated(t *testing.T) {
	ex := errors.New("insert failed")
	repo := &mockRepo{err: ex}
	cons := NewConsumer(repo, 1, nil)
	err := cons.HandleMessage(context.Background(), eventJSON(t, 9))
	require.ErrorIs(t, err, ex)
}
