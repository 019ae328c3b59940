package user

import "time"

type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	PhotoURL    *string   `json:"photo_url,omitempty"`
	Phone       string    `json:"phone"`
	Address     string    `json:"address"`
	IsAdmin     bool      `json:"is_admin"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Profile holds the fields a user may edit about themselves.
type Profile struct {
	DisplayName string
	Phone       string
	Address     string
}

// Identity is what the auth provider tells us about the caller.
type Identity struct {
	Subject  string
	Email    string
	Name     string
	PhotoURL string
}
