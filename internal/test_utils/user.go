package test_utils

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tutorhub/tutorhub/pkg/user"
)

// CreateUser inserts a user with the given role and returns it with its id set.
func CreateUser(ctx context.Context, db *pgxpool.Pool, role user.Role) (user.User, error) {
	u := user.User{
		Uid:         uuid.NewString(),
		Username:    fmt.Sprintf("%s-%s", role, uuid.NewString()[:8]),
		DisplayName: "Test " + string(role),
		Role:        role,
		Timezone:    "Europe/Warsaw",
	}
	id, err := user.NewUserRepo(db).CreateUser(ctx, u)
	if err != nil {
		return user.User{}, err
	}
	u.Id = id
	return u, nil
}
