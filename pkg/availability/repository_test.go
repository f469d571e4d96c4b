package availability

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/tutorhub/tutorhub/internal/test_utils"
	"github.com/tutorhub/tutorhub/pkg/user"
)

var pgContainer *postgres.PostgresContainer
var openDb func() *pgxpool.Pool

func TestMain(m *testing.M) {
	pgContainer, openDb = test_utils.TestWithDB()
	code := m.Run()
	if err := testcontainers.TerminateContainer(pgContainer); err != nil {
		log.Errorf("failed to terminate container: %s", err)
	}
	os.Exit(code)
}

func setupTestRepository(t *testing.T) (context.Context, Repository, int) {
	ctx := context.Background()
	db := openDb()
	repository := NewRepo(db)
	instructor, err := test_utils.CreateUser(ctx, db, user.RoleInstructor)
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
		err := pgContainer.Restore(ctx)
		require.NoError(t, err)
	})
	return ctx, repository, instructor.Id
}

func TestRepositoryImpl_Windows(t *testing.T) {
	t.Run("should insert and read windows ordered by day and start", func(t *testing.T) {
		// given
		ctx, repo, instructorId := setupTestRepository(t)
		windows := []Window{
			{DayOfWeek: 4, StartSlot: 40, Duration: 4},
			{DayOfWeek: 1, StartSlot: 60, Duration: 8},
			{DayOfWeek: 1, StartSlot: 36, Duration: 8},
		}

		// when
		created, err := repo.InsertWindows(ctx, instructorId, windows)
		require.NoError(t, err)
		stored, err := repo.GetWindows(ctx, instructorId)

		// then
		require.NoError(t, err)
		require.Len(t, created, 3)
		for _, w := range created {
			assert.NotZero(t, w.Id)
		}
		require.Len(t, stored, 3)
		assert.Equal(t, 36, stored[0].StartSlot)
		assert.Equal(t, 60, stored[1].StartSlot)
		assert.Equal(t, 4, stored[2].DayOfWeek)
	})

	t.Run("should roll back delete when insert fails in the same transaction", func(t *testing.T) {
		// given
		ctx, repo, instructorId := setupTestRepository(t)
		_, err := repo.InsertWindows(ctx, instructorId, []Window{{DayOfWeek: 1, StartSlot: 36, Duration: 32}})
		require.NoError(t, err)

		// when
		err = repo.WithTransaction(ctx, func(txRepo Repository) error {
			if _, err := txRepo.DeleteWindows(ctx, instructorId); err != nil {
				return err
			}
			// crosses the day boundary, rejected by the table constraint
			_, err := txRepo.InsertWindows(ctx, instructorId, []Window{{DayOfWeek: 2, StartSlot: 90, Duration: 10}})
			return err
		})

		// then
		require.Error(t, err)
		stored, err := repo.GetWindows(ctx, instructorId)
		require.NoError(t, err)
		require.Len(t, stored, 1)
		assert.Equal(t, 36, stored[0].StartSlot)
	})
}

func TestRepositoryImpl_Blocked(t *testing.T) {
	t.Run("should list only intervals intersecting the range", func(t *testing.T) {
		// given
		ctx, repo, instructorId := setupTestRepository(t)
		day := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
		for _, h := range []int{8, 12, 20} {
			_, err := repo.CreateBlocked(ctx, BlockedInterval{
				InstructorId: instructorId,
				Start:        day.Add(time.Duration(h) * time.Hour),
				End:          day.Add(time.Duration(h+1) * time.Hour),
				Reason:       "busy",
			})
			require.NoError(t, err)
		}

		// when
		intervals, err := repo.ListBlocked(ctx, instructorId, day.Add(9*time.Hour), day.Add(13*time.Hour))

		// then
		require.NoError(t, err)
		require.Len(t, intervals, 1)
		assert.Equal(t, day.Add(12*time.Hour), intervals[0].Start)
		assert.Equal(t, "busy", intervals[0].Reason)
	})

	t.Run("should report missing interval on delete", func(t *testing.T) {
		ctx, repo, instructorId := setupTestRepository(t)

		err := repo.DeleteBlocked(ctx, instructorId, 999)

		assert.True(t, errors.Is(err, ErrBlockedIntervalNotFound))
	})
}
