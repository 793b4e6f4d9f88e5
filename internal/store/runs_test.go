package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/takeout-fixer/internal/domain"
	"github.com/listenupapp/takeout-fixer/internal/errors"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := New(filepath.Join(t.TempDir(), "db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testRun(id string, started time.Time) *domain.Run {
	return &domain.Run{
		ID:        id,
		Input:     "/exports/takeout-" + id + ".zip",
		State:     domain.RunStateApplying,
		StartedAt: started,
		UpdatedAt: started,
	}
}

func TestSaveRun_GetRun(t *testing.T) {
	s := setupTestStore(t)
	ctx := t.Context()
	started := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	run := testRun("run-1", started)
	run.Summary.Pairs = 3
	run.Errors = []domain.FileError{{Path: "/w/a.jpg", Message: "boom", Code: "metadata", Resolution: "skip", At: started}}
	require.NoError(t, s.SaveRun(ctx, run))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run.Input, got.Input)
	assert.Equal(t, 3, got.Summary.Pairs)
	require.Len(t, got.Errors, 1)
	assert.Equal(t, "skip", got.Errors[0].Resolution)
	assert.True(t, got.StartedAt.Equal(started))

	run.State = domain.RunStateCompleted
	run.Summary.ImagesWritten = 5
	require.NoError(t, s.SaveRun(ctx, run))

	got, err = s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStateCompleted, got.State)
	assert.Equal(t, 5, got.Summary.ImagesWritten)

	exists, err := s.RunExists(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestGetRun_NotFound(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.GetRun(t.Context(), "run-missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNotFound)
	assert.Equal(t, 404, errors.CodeOf(err).HTTPStatus())
}

func TestSaveRun_Invalid(t *testing.T) {
	s := setupTestStore(t)

	assert.ErrorIs(t, s.SaveRun(t.Context(), nil), errors.ErrValidation)
	assert.ErrorIs(t, s.SaveRun(t.Context(), &domain.Run{ID: "run-1"}), errors.ErrValidation)
}

func TestSaveRun_Canceled(t *testing.T) {
	s := setupTestStore(t)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	err := s.SaveRun(ctx, testRun("run-1", time.Now()))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestListRuns_NewestFirstWithPages(t *testing.T) {
	s := setupTestStore(t)
	ctx := t.Context()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"run-a", "run-b", "run-c", "run-d", "run-e"} {
		require.NoError(t, s.SaveRun(ctx, testRun(id, base.Add(time.Duration(i)*time.Hour))))
	}

	page, err := s.ListRuns(ctx, PaginationParams{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "run-e", page.Items[0].ID)
	assert.Equal(t, "run-d", page.Items[1].ID)
	assert.True(t, page.HasMore)
	require.NotEmpty(t, page.NextCursor)

	page, err = s.ListRuns(ctx, PaginationParams{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "run-c", page.Items[0].ID)
	assert.Equal(t, "run-b", page.Items[1].ID)
	assert.True(t, page.HasMore)

	page, err = s.ListRuns(ctx, PaginationParams{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "run-a", page.Items[0].ID)
	assert.False(t, page.HasMore)
	assert.Empty(t, page.NextCursor)
}

func TestListRuns_Empty(t *testing.T) {
	s := setupTestStore(t)

	page, err := s.ListRuns(t.Context(), DefaultPaginationParams())
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.NotNil(t, page.Items)
	assert.False(t, page.HasMore)
}

func TestListRuns_BadCursor(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.ListRuns(t.Context(), PaginationParams{Cursor: "%%%"})
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestSaveRun_RestartMovesIndex(t *testing.T) {
	s := setupTestStore(t)
	ctx := t.Context()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveRun(ctx, testRun("run-a", base)))
	require.NoError(t, s.SaveRun(ctx, testRun("run-b", base.Add(time.Hour))))
	require.NoError(t, s.SaveRun(ctx, testRun("run-a", base.Add(2*time.Hour))))

	page, err := s.ListRuns(ctx, DefaultPaginationParams())
	require.NoError(t, err)
	require.Len(t, page.Items, 2, "no stale index entry")
	assert.Equal(t, "run-a", page.Items[0].ID)
	assert.Equal(t, "run-b", page.Items[1].ID)
}

func TestDeleteRun(t *testing.T) {
	s := setupTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.SaveRun(ctx, testRun("run-a", time.Now())))
	require.NoError(t, s.DeleteRun(ctx, "run-a"))

	_, err := s.GetRun(ctx, "run-a")
	assert.ErrorIs(t, err, errors.ErrNotFound)

	page, err := s.ListRuns(ctx, DefaultPaginationParams())
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	assert.ErrorIs(t, s.DeleteRun(ctx, "run-a"), errors.ErrNotFound)
}

func TestPing(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "db"), nil)
	require.NoError(t, err)

	require.NoError(t, s.Ping(t.Context()))
	require.NoError(t, s.Close())
	assert.Error(t, s.Ping(t.Context()))
}
