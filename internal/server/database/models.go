package database

import "time"

// User is a stored account that may own uploads.
type User struct {
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}
