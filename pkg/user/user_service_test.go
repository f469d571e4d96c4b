package user

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserServiceImpl(t *testing.T) {
	ctx := context.Background()

	t.Run("should default role and timezone on create", func(t *testing.T) {
		// given
		service := NewUserService(NewStubUserRepository())

		// when
		created, err := service.CreateUser(ctx, User{Uid: "abc", Username: "anna"})

		// then
		require.NoError(t, err)
		assert.Equal(t, RoleStudent, created.Role)
		assert.Equal(t, "UTC", created.Timezone)
		byUid, err := service.GetUserByUid(ctx, "abc")
		require.NoError(t, err)
		assert.Equal(t, created, byUid)
	})

	t.Run("should resolve the current user from context", func(t *testing.T) {
		service := NewUserService(NewStubUserRepository())
		created, err := service.CreateUser(ctx, User{Uid: "xyz", Username: "ian", Role: RoleInstructor})
		require.NoError(t, err)

		current, err := service.GetCurrentUser(WithUser(ctx, created))

		require.NoError(t, err)
		assert.Equal(t, created.Id, current.Id)
		_, err = service.GetCurrentUser(ctx)
		assert.ErrorIs(t, err, ErrNoUser)
	})
}

func TestUser_Manages(t *testing.T) {
	instructor := User{Id: 1, Role: RoleInstructor}
	student := User{Id: 2, Role: RoleStudent}
	admin := User{Id: 3, Role: RoleAdmin}

	assert.True(t, instructor.Manages(1))
	assert.False(t, instructor.Manages(5))
	assert.False(t, student.Manages(2), "students never manage a schedule")
	assert.True(t, admin.Manages(5))
}
