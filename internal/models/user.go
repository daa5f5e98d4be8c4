package models

import "time"

// User is an application account allowed to open a sync connection.
type User struct {
	ID           string    `json:"id"` // UUID
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // argon2id encoded hash, never serialized
	CreatedAt    time.Time `json:"created_at"`
}
