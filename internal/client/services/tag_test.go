package services

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/offsync/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagService_CreateUniqueIgnoringCase(t *testing.T) {
	_, _, ts := setupServices(t, DeleteHard)
	ctx := context.Background()

	tag, err := ts.Create(ctx, "  Work ")
	require.NoError(t, err)
	assert.Equal(t, "Work", tag.Name)

	_, err = ts.Create(ctx, "work")
	require.ErrorIs(t, err, common.ErrAlreadyExists)

	_, err = ts.Create(ctx, "   ")
	require.ErrorIs(t, err, common.ErrValidation)
}

func TestTagService_Rename(t *testing.T) {
	_, _, ts := setupServices(t, DeleteHard)
	ctx := context.Background()

	a, err := ts.Create(ctx, "a")
	require.NoError(t, err)
	_, err = ts.Create(ctx, "b")
	require.NoError(t, err)

	got, err := ts.Rename(ctx, a.ID, "A")
	require.NoError(t, err, "renaming to itself in another case is fine")
	assert.Equal(t, "A", got.Name)

	_, err = ts.Rename(ctx, a.ID, "B")
	require.ErrorIs(t, err, common.ErrAlreadyExists)

	_, err = ts.Rename(ctx, "nope", "c")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestTagService_DeleteAndList(t *testing.T) {
	_, _, ts := setupServices(t, DeleteSoft)
	ctx := context.Background()

	a, err := ts.Create(ctx, "a")
	require.NoError(t, err)
	_, err = ts.Create(ctx, "b")
	require.NoError(t, err)

	require.NoError(t, ts.Delete(ctx, a.ID))

	list, err := ts.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].Name)

	// имя удалённого тега снова свободно
	_, err = ts.Create(ctx, "a")
	require.NoError(t, err)
}

func TestTagService_Resolve(t *testing.T) {
	_, _, ts := setupServices(t, DeleteHard)
	ctx := context.Background()

	tag, err := ts.Create(ctx, "family")
	require.NoError(t, err)

	byID, err := ts.Resolve(ctx, tag.ID)
	require.NoError(t, err)
	assert.Equal(t, tag.ID, byID.ID)

	byName, err := ts.Resolve(ctx, " Family ")
	require.NoError(t, err)
	assert.Equal(t, tag.ID, byName.ID)

	_, err = ts.Resolve(ctx, "nobody")
	require.ErrorIs(t, err, common.ErrNotFound)
}
