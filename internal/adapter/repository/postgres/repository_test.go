package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	repo "github.com/syncwavelabs/syncwave/internal/adapter/repository/postgres"
	"github.com/syncwavelabs/syncwave/internal/domain/action"
	"github.com/syncwavelabs/syncwave/pkg/testhelper"
	pgdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestRepository_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	pg, err := testhelper.SetupPostgres(ctx)
	require.NoError(t, err)
	defer func() {
		if err := pg.Teardown(ctx); err != nil {
			t.Logf("failed to teardown container: %v", err)
		}
	}()

	db, err := gorm.Open(pgdriver.Open(pg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&repo.ActionModel{}))

	r := repo.NewRepository(db)

	newAction := func(id int64, tag string) *action.Action {
		return action.New(id, "submit-report", []byte(`{"field":"value"}`), "/reports", "POST", tag)
	}

	t.Run("AppendAndLoad", func(t *testing.T) {
		require.NoError(t, r.Append(ctx, newAction(1, "user-1")))
		time.Sleep(5 * time.Millisecond)
		require.NoError(t, r.Append(ctx, newAction(2, "")))

		all, err := r.Load(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, int64(1), all[0].ID, "load returns enqueue order")
		assert.Equal(t, "user-1", all[0].SyncTag)
		assert.JSONEq(t, `{"field":"value"}`, string(all[0].Payload))
	})

	t.Run("Update", func(t *testing.T) {
		require.NoError(t, r.Update(ctx, 1, func(a *action.Action) {
			a.MarkInFlight()
			a.MarkFailed("boom")
		}))

		failed, err := r.ListByStatus(ctx, []action.Status{action.StatusFailed}, 0)
		require.NoError(t, err)
		require.Len(t, failed, 1)
		assert.Equal(t, int64(1), failed[0].ID)
		assert.Equal(t, 1, failed[0].Attempts)
		assert.Equal(t, "boom", failed[0].LastError)
	})

	t.Run("UpdateUnknownIDIsNoOp", func(t *testing.T) {
		require.NoError(t, r.Update(ctx, 999, func(a *action.Action) {
			a.MarkInFlight()
		}))
	})

	t.Run("ListByStatusLimit", func(t *testing.T) {
		pending, err := r.ListByStatus(ctx, []action.Status{action.StatusPending}, 1)
		require.NoError(t, err)
		assert.Len(t, pending, 1)
	})

	t.Run("Remove", func(t *testing.T) {
		require.NoError(t, r.Remove(ctx, 2))
		require.NoError(t, r.Remove(ctx, 2), "removing an absent row is a no-op")

		all, err := r.Load(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})
}
