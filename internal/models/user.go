package models

import "time"

type User struct {
	ID           string
	UserName     string
	PasswordHash []byte
	Disabled     bool
	CreatedAt    time.Time
}

type RefreshToken struct {
	ID        string
	UserID    string
	Token     string
	Expires   time.Time
	CreatedAt time.Time
}
