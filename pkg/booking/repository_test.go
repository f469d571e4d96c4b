package booking

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
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

var monday = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

func setupTestRepository(t *testing.T) (context.Context, Repository, user.User, user.User) {
	ctx := context.Background()
	db := openDb()
	instructor, err := test_utils.CreateUser(ctx, db, user.RoleInstructor)
	require.NoError(t, err)
	student, err := test_utils.CreateUser(ctx, db, user.RoleStudent)
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
		err := pgContainer.Restore(ctx)
		require.NoError(t, err)
	})
	return ctx, NewRepo(db), instructor, student
}

func newBooking(instructor, student user.User, date time.Time, start, duration int) Booking {
	return Booking{
		Uid:           uuid.NewString(),
		InstructorId:  instructor.Id,
		StudentId:     student.Id,
		Date:          date,
		StartSlot:     start,
		Duration:      duration,
		Status:        StatusBooked,
		PaymentMethod: PaymentCard,
		Source:        SourceStudent,
	}
}

func TestRepositoryImpl(t *testing.T) {
	t.Run("should create and list active bookings by date", func(t *testing.T) {
		// given
		ctx, repo, instructor, student := setupTestRepository(t)
		later, err := repo.Create(ctx, newBooking(instructor, student, monday, 48, 4))
		require.NoError(t, err)
		withoutUid := newBooking(instructor, student, monday, 40, 4)
		withoutUid.Uid = ""
		earlier, err := repo.Create(ctx, withoutUid)
		require.NoError(t, err)
		assert.NotEmpty(t, earlier.Uid)
		_, err = repo.Create(ctx, newBooking(instructor, student, monday.AddDate(0, 0, 1), 40, 4))
		require.NoError(t, err)

		// when
		booked, err := repo.ListBooked(ctx, instructor.Id, monday)

		// then
		require.NoError(t, err)
		require.Len(t, booked, 2)
		assert.Equal(t, earlier.Id, booked[0].Id)
		assert.Equal(t, later.Id, booked[1].Id)
		assert.Equal(t, monday, booked[0].Date)
		assert.Equal(t, time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC), booked[0].StartTime())
	})

	t.Run("should hide cancelled bookings from conflict reads", func(t *testing.T) {
		// given
		ctx, repo, instructor, student := setupTestRepository(t)
		created, err := repo.Create(ctx, newBooking(instructor, student, monday, 40, 4))
		require.NoError(t, err)

		// when
		cancelled, err := repo.UpdateStatus(ctx, created.Id, StatusCancelled)

		// then
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, cancelled.Status)
		booked, err := repo.ListBookedFrom(ctx, instructor.Id, monday)
		require.NoError(t, err)
		assert.Empty(t, booked)
		shown, err := repo.ListByInstructor(ctx, instructor.Id, monday, monday.AddDate(0, 0, 7))
		require.NoError(t, err)
		assert.Empty(t, shown)
	})

	t.Run("should reschedule inside a transaction", func(t *testing.T) {
		// given
		ctx, repo, instructor, student := setupTestRepository(t)
		created, err := repo.Create(ctx, newBooking(instructor, student, monday, 40, 4))
		require.NoError(t, err)
		tuesday := monday.AddDate(0, 0, 1)

		// when
		err = repo.WithTransaction(ctx, func(tx Repository) error {
			_, err := tx.Reschedule(ctx, created.Id, tuesday, 44, 4)
			return err
		})

		// then
		require.NoError(t, err)
		loaded, err := repo.Get(ctx, created.Id)
		require.NoError(t, err)
		assert.Equal(t, tuesday, loaded.Date)
		assert.Equal(t, 44, loaded.StartSlot)
	})

	t.Run("should return not found for unknown id", func(t *testing.T) {
		ctx, repo, _, _ := setupTestRepository(t)

		_, err := repo.Get(ctx, 9999)

		assert.ErrorIs(t, err, ErrBookingNotFound)
	})
}
