package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/taskboard/internal/model"
	"github.com/nhle/taskboard/internal/store"
	"github.com/nhle/taskboard/internal/testutil"
)

func TestMigrations_Applied(t *testing.T) {
	s := testutil.NewTestStore(t)

	v, err := s.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestMigrations_ReopenIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	s, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveUsers(context.Background(), []model.User{{ID: "u1", Name: "Ada"}}))
	require.NoError(t, s.Close())

	s, err = store.NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	users, err := s.GetUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Ada", users[0].Name)
}

func TestSnapshot_RoundTripPreservesOrder(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	due := time.Date(2030, 4, 5, 6, 0, 0, 0, time.UTC)
	tasks := []model.Task{
		{ID: "b", Title: "second", Status: model.StatusReview, DueDate: &due},
		{ID: "a", Title: "first", AssignedTo: &model.User{ID: "u1", Name: "Ada"}},
		{ID: "b", Title: "duplicate kept"},
	}
	require.NoError(t, s.SaveSnapshot(ctx, "all", tasks))

	snap, err := s.LoadSnapshot(ctx, "all")
	require.NoError(t, err)
	require.Len(t, snap.Tasks, 3)
	assert.Equal(t, "second", snap.Tasks[0].Title)
	assert.Equal(t, "first", snap.Tasks[1].Title)
	assert.Equal(t, "duplicate kept", snap.Tasks[2].Title)
	require.NotNil(t, snap.Tasks[0].DueDate)
	assert.True(t, due.Equal(*snap.Tasks[0].DueDate))
	assert.Equal(t, "Ada", snap.Tasks[1].AssignedTo.Name)
	assert.False(t, snap.FetchedAt.IsZero())
}

func TestSnapshot_ReplacesPrevious(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSnapshot(ctx, "all", []model.Task{{ID: "x"}, {ID: "y"}}))
	require.NoError(t, s.SaveSnapshot(ctx, "all", []model.Task{{ID: "z"}}))
	require.NoError(t, s.SaveSnapshot(ctx, "overdue", []model.Task{{ID: "o"}}))

	snap, err := s.LoadSnapshot(ctx, "all")
	require.NoError(t, err)
	require.Len(t, snap.Tasks, 1)
	assert.Equal(t, "z", snap.Tasks[0].ID)

	snap, err = s.LoadSnapshot(ctx, "overdue")
	require.NoError(t, err)
	assert.Equal(t, "o", snap.Tasks[0].ID)
}

func TestSnapshot_Missing(t *testing.T) {
	s := testutil.NewTestStore(t)

	_, err := s.LoadSnapshot(context.Background(), "nope")
	assert.True(t, errors.Is(err, store.ErrNoSnapshot))
}

func TestUsers_ReplaceAndOrder(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveUsers(ctx, []model.User{{ID: "1", Name: "Zed"}, {ID: "2", Name: "Amy", Email: "amy@example.com"}}))
	users, err := s.GetUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, model.User{ID: "2", Name: "Amy", Email: "amy@example.com"}, users[0])

	require.NoError(t, s.SaveUsers(ctx, []model.User{{ID: "3", Name: "Bo"}}))
	users, err = s.GetUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Bo", users[0].Name)
}

func TestClear(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSnapshot(ctx, "all", []model.Task{{ID: "x"}}))
	require.NoError(t, s.SaveUsers(ctx, []model.User{{ID: "u"}}))
	require.NoError(t, s.Clear(ctx))

	_, err := s.LoadSnapshot(ctx, "all")
	assert.ErrorIs(t, err, store.ErrNoSnapshot)

	users, err := s.GetUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
}
