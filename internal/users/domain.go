package users

import "time"

// User is a dashboard account.
type User struct {
	Username     string    `json:"username"`
	Name         string    `json:"name"`
	RoleID       string    `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
