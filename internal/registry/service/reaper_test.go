package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kfcempoyee/gofiledrop/internal/blob"
	"github.com/kfcempoyee/gofiledrop/internal/registry/domain"
)

func TestReaper_RemovesConsumedFile(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	file, code := env.upload(t, []byte("data"))
	require.NoError(t, env.svc.Consume(ctx, code.Code, domain.KindCode))

	res := env.reaper.RunOnce(ctx)
	require.False(t, res.Skipped)
	require.Equal(t, 1, res.Orphans)
	require.Equal(t, 1, res.FilesDeleted)
	require.Zero(t, res.BlobErrors)
	require.Zero(t, res.Errors)

	ok, err := env.store.Exists(ctx, file.ID)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = env.repo.GetFile(ctx, file.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReaper_ExpiryBoundary(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	file, _ := env.upload(t, []byte("data"))

	env.clock.Set(startTime.Add(testCodeTTL))
	res := env.reaper.RunOnce(ctx)
	require.Zero(t, res.ExpiredTokens, "token at exact ttl survives the sweep")
	require.Zero(t, res.FilesDeleted)

	env.clock.Set(startTime.Add(testCodeTTL + time.Millisecond))
	res = env.reaper.RunOnce(ctx)
	require.Equal(t, int64(1), res.ExpiredTokens)
	require.Equal(t, 1, res.FilesDeleted)

	_, err := env.repo.GetFile(ctx, file.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReaper_KeepsReferencedFiles(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	file, _ := env.upload(t, []byte("data"))

	res := env.reaper.RunOnce(ctx)
	require.Zero(t, res.Orphans)

	ok, err := env.store.Exists(ctx, file.ID)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestReaper_SkipsWhenBusy(t *testing.T) {
	env := newTestEnv(t, nil)

	require.True(t, env.reaper.sem.TryAcquire(1))
	res := env.reaper.RunOnce(context.Background())
	require.True(t, res.Skipped)
	env.reaper.sem.Release(1)

	res = env.reaper.RunOnce(context.Background())
	require.False(t, res.Skipped)
}

// хранилище, которое не умеет удалять
type failingDeleteStore struct {
	blob.Store
}

func (failingDeleteStore) Delete(context.Context, string) error {
	return errors.New("permission denied")
}

func TestReaper_BlobDeleteFailureStillRemovesRecord(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	file, code := env.upload(t, []byte("data"))
	require.NoError(t, env.svc.Consume(ctx, code.Code, domain.KindCode))

	env.reaper.store = failingDeleteStore{Store: env.store}
	res := env.reaper.RunOnce(ctx)
	require.Equal(t, 1, res.FilesDeleted)
	require.Equal(t, 1, res.BlobErrors)

	_, err := env.repo.GetFile(ctx, file.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReaper_StartStop(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	file, code := env.upload(t, []byte("data"))
	require.NoError(t, env.svc.Consume(ctx, code.Code, domain.KindCode))

	env.reaper.Start(ctx)
	env.reaper.Start(ctx)

	// первый проход идёт сразу при старте
	require.Eventually(t, func() bool {
		_, err := env.repo.GetFile(ctx, file.ID)
		return errors.Is(err, domain.ErrNotFound)
	}, 5*time.Second, 10*time.Millisecond)

	env.reaper.Stop()
	env.reaper.Stop()
}
