package user

type Role string

const (
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
)

type User struct {
	Id          int
	Uid         string
	Username    string
	DisplayName string
	Role        Role
	// Timezone is the IANA zone the user enters local times in.
	Timezone string
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

func (u User) IsInstructor() bool {
	return u.Role == RoleInstructor
}

// Manages reports whether u may change the schedule of the given instructor.
func (u User) Manages(instructorId int) bool {
	return u.IsAdmin() || (u.IsInstructor() && u.Id == instructorId)
}
