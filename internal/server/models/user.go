package models

import "time"

// User is the principal owning tokens and credentials. PasswordHash holds
// the "{saltHex}:{keyHex}" credential string; the raw password is never
// stored.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}
