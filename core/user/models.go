package user

import (
	"strings"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-web/core"
)

// Role is the portal a User belongs to. The set of roles is closed.
type Role string

// Roles
const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

var (
	// AllRoles lists every Role, highest priority first.
	AllRoles = []Role{RoleAdmin, RoleTeacher, RoleStudent}

	rolePriorities = map[Role]int{
		RoleAdmin:   30,
		RoleTeacher: 20,
		RoleStudent: 10,
	}

	roleLabels = map[Role]string{
		RoleAdmin:   "Admin",
		RoleTeacher: "Teacher",
		RoleStudent: "Student",
	}

	ErrInvalidRole = errors.New("invalid role")

	// ErrInvalidCredentials is returned when login fails.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrTokenRejected is returned when the classes API no longer accepts a stored token.
	ErrTokenRejected = errors.New("token rejected")
)

// ParseRole maps `s` to a Role, case-insensitively.
func ParseRole(s string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(s)))
	if !role.Valid() {
		return "", errors.Wrapf(ErrInvalidRole, "%q", s)
	}
	return role, nil
}

func (r Role) Valid() bool {
	_, ok := rolePriorities[r]
	return ok
}

func (r Role) Priority() int {
	return rolePriorities[r]
}

func (r Role) Label() string {
	return roleLabels[r]
}

func (r Role) String() string {
	return string(r)
}

// RoleIn reports whether `r` is one of `roles`.
func RoleIn(r Role, roles []Role) bool {
	for _, role := range roles {
		if role == r {
			return true
		}
	}
	return false
}

// User is the authenticated principal, as returned by the classes API.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	JoinedAt  time.Time `json:"joined_at,omitempty"` // UTC
}

func (u *User) IsAdmin() bool   { return u.Role == RoleAdmin }
func (u *User) IsTeacher() bool { return u.Role == RoleTeacher }
func (u *User) IsStudent() bool { return u.Role == RoleStudent }

// Clean normalises user data coming from remote sources and checks its Role.
func (u *User) Clean() error {
	u.ID = strings.TrimSpace(u.ID)
	u.Name = strings.TrimSpace(u.Name)
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	role, err := ParseRole(string(u.Role))
	if err != nil {
		return err
	}
	u.Role = role
	if u.ID == "" {
		return errors.New("user without ID")
	}
	return nil
}

// Initials returns up to 2 upper-cased initials of the User's name, used for avatars.
func (u *User) Initials() string {
	var b strings.Builder
	for _, part := range strings.Fields(u.Name) {
		b.WriteString(strings.ToUpper(string([]rune(part)[0])))
		if b.Len() >= 2 {
			break
		}
	}
	return b.String()
}

// Credentials are submitted by the login form.
type Credentials struct {
	Email    string `json:"email" form:"email" validate:"required,email"`
	Password string `json:"password" form:"password" validate:"required"`
	Next     string `json:"next,omitempty" form:"next"`
}

// Validate cleans the credentials and checks them. An unsafe Next is dropped, not reported.
func (c *Credentials) Validate(validate *validator.Validate, translator ut.Translator) error {
	c.Email = core.CleanString(c.Email, true /* lower */)
	c.Next = core.SafeRedirectPath(c.Next)
	if err := validate.Struct(c); err != nil {
		if vErrs, ok := err.(validator.ValidationErrors); ok {
			return core.TranslateValidationErrors(vErrs, translator)
		}
		return err
	}
	return nil
}
