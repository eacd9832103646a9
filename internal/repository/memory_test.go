package repository_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ILLUVRSE/eventcore/internal/repository"
)

type widget struct {
	ID     string
	Active bool
}

func widgetRepo() *repository.MemoryRepository[widget] {
	return repository.NewMemoryRepository[widget](
		func(w widget, spec repository.Spec) bool {
			if spec.Where == "" {
				return true
			}
			id, _ := spec.Args[0].(string)
			return w.ID == id
		},
		func(w *widget, set map[string]any) {
			if active, ok := set["active"].(bool); ok {
				w.Active = active
			}
		},
	)
}

func TestMemoryRepositoryInsertAndQuery(t *testing.T) {
	repo := widgetRepo()
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, []widget{{ID: "a"}, {ID: "b"}}))

	cur, err := repo.Query(ctx, repository.Spec{})
	require.NoError(t, err)
	defer cur.Close()

	var got []widget
	for cur.Next(ctx) {
		got = append(got, cur.Value())
	}
	require.NoError(t, cur.Err())
	assert.Len(t, got, 2)
}

func TestMemoryRepositoryBulkUpdateAndDelete(t *testing.T) {
	repo := widgetRepo()
	ctx := context.Background()
	require.NoError(t, repo.Insert(ctx, []widget{{ID: "a"}, {ID: "b"}}))

	n, err := repo.BulkUpdate(ctx, repository.Spec{Where: "id = $1", Args: []any{"a"}}, map[string]any{"active": true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	row, ok, err := repo.QueryFirst(ctx, repository.Spec{Where: "id = $1", Args: []any{"a"}})
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, row.Active)

	n, err = repo.Delete(ctx, repository.Spec{Where: "id = $1", Args: []any{"b"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	exists, err := repo.Exists(ctx, repository.Spec{Where: "id = $1", Args: []any{"b"}})
	require.NoError(t, err)
	assert.False(t, exists)
}
