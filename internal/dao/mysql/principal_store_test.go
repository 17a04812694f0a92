package mysql

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"presence_chat_server/internal/config"
	"presence_chat_server/internal/service/chat"
	"presence_chat_server/pkg/errorx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSqliteRepos(t *testing.T) *Repositories {
	t.Helper()
	repos, err := Init(&config.StoreConfig{
		Driver:     "sqlite",
		SqlitePath: filepath.Join(t.TempDir(), "presence.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repos.Close() })
	return repos
}

func TestInitRejectsUnknownDriver(t *testing.T) {
	_, err := Init(&config.StoreConfig{Driver: "oracle"})
	require.Error(t, err)
	assert.Equal(t, errorx.CodeInvalidParam, errorx.GetCode(err))
}

func TestPrincipalStoreSeedAndLookup(t *testing.T) {
	repos := newSqliteRepos(t)
	store := NewPrincipalStore(repos.Principal)
	ctx := context.Background()

	require.NoError(t, store.Seed(ctx,
		chat.Principal{ID: "user1", DisplayName: "john_doe", Email: "john@company.com"},
		chat.Principal{ID: "user2", DisplayName: "jane_smith"},
	))

	p, err := store.GetByID(ctx, "user1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "john_doe", p.DisplayName)
	assert.Equal(t, chat.StatusOffline, p.Status)
	assert.True(t, p.LastSeen.IsZero())

	missing, err := store.GetByID(ctx, "ghost")
	assert.NoError(t, err)
	assert.Nil(t, missing)

	// 重复 Seed 只更新资料
	require.NoError(t, store.Seed(ctx, chat.Principal{ID: "user1", DisplayName: "John"}))
	p, err = store.GetByID(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, "John", p.DisplayName)

	all, err := repos.Principal.FindByUuids(ctx, []string{"user2", "user1"})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "user1", all[0].Uuid)

	listed, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "user1", listed[0].ID)
	assert.Equal(t, "John", listed[0].DisplayName)
	assert.Equal(t, "user2", listed[1].ID)
	assert.Equal(t, chat.StatusOffline, listed[1].Status)
}

func TestPrincipalStoreUpdatePresence(t *testing.T) {
	repos := newSqliteRepos(t)
	store := NewPrincipalStore(repos.Principal)
	ctx := context.Background()
	require.NoError(t, store.Seed(ctx, chat.Principal{ID: "user1", DisplayName: "john_doe"}))

	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpdatePresence(ctx, "user1", chat.StatusOnline, at))

	p, err := store.GetByID(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, chat.StatusOnline, p.Status)
	assert.True(t, at.Equal(p.LastSeen))

	// 资料更新不会覆盖在线状态
	require.NoError(t, store.Seed(ctx, chat.Principal{ID: "user1", DisplayName: "John"}))
	p, err = store.GetByID(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, chat.StatusOnline, p.Status)
}

func TestRepositoriesTransactionRollsBack(t *testing.T) {
	repos := newSqliteRepos(t)
	store := NewPrincipalStore(repos.Principal)
	ctx := context.Background()

	err := repos.Transaction(func(tx *Repositories) error {
		if err := NewPrincipalStore(tx.Principal).Seed(ctx, chat.Principal{ID: "user9", DisplayName: "temp"}); err != nil {
			return err
		}
		return errorx.New(errorx.CodeServerBusy, "abort")
	})
	require.Error(t, err)

	p, err := store.GetByID(ctx, "user9")
	require.NoError(t, err)
	assert.Nil(t, p)
}
