package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "lessonscope/internal/errors"
	"lessonscope/internal/model"
	"lessonscope/internal/repository"
)

func TestStore_UniqueOpenID(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Users().Create(ctx, &model.User{OpenID: "o1"}))
	err := s.Users().Create(ctx, &model.User{OpenID: "o1"})
	assert.ErrorIs(t, err, repository.ErrDuplicate)
	assert.ErrorIs(t, err, apperr.ErrPersistence)
}

func TestStore_TransactionRollback(t *testing.T) {
	ctx := context.Background()
	s := New()

	err := s.WithTransaction(ctx, func(ctx context.Context, tx repository.Store) error {
		require.NoError(t, tx.Users().Create(ctx, &model.User{OpenID: "o1"}))
		return errors.New("abort")
	})
	require.Error(t, err)

	n, err := s.Users().Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_RecordingDeleteCascades(t *testing.T) {
	ctx := context.Background()
	s := New()

	rec := &model.Recording{UserID: "u1", Title: "t", FileURL: "f"}
	require.NoError(t, s.Recordings().Create(ctx, rec))
	assert.Equal(t, model.RecordingStatusUploaded, rec.Status)

	rep := &model.Report{RecordingID: rec.ID, UserID: "u1"}
	require.NoError(t, s.Reports().Create(ctx, rep))
	assert.ErrorIs(t, s.Reports().Create(ctx, &model.Report{RecordingID: rec.ID, UserID: "u1"}), repository.ErrDuplicate)

	require.NoError(t, s.Recordings().Delete(ctx, rec.ID))
	_, err := s.Reports().FindByID(ctx, rep.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.ErrorIs(t, s.Recordings().Delete(ctx, rec.ID), apperr.ErrNotFound)
}

func TestStore_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New()

	var ids []string
	for i := 0; i < 5; i++ {
		rec := &model.Recording{UserID: "u1", Title: "t"}
		require.NoError(t, s.Recordings().Create(ctx, rec))
		ids = append(ids, rec.ID)
	}
	require.NoError(t, s.Recordings().Create(ctx, &model.Recording{UserID: "u2"}))

	got, err := s.Recordings().List(ctx, repository.ListFilter{UserID: "u1", Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, ids[3], got[0].ID)
	assert.Equal(t, ids[2], got[1].ID)

	n, err := s.Recordings().Count(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)
}

func TestStore_TransitionStatus(t *testing.T) {
	ctx := context.Background()
	s := New()

	rec := &model.Recording{UserID: "u1"}
	require.NoError(t, s.Recordings().Create(ctx, rec))

	ok, err := s.Recordings().TransitionStatus(ctx, rec.ID, model.RecordingStatusUploaded, model.RecordingStatusProcessing)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Recordings().TransitionStatus(ctx, rec.ID, model.RecordingStatusUploaded, model.RecordingStatusProcessing)
	require.NoError(t, err)
	assert.False(t, ok)
}
