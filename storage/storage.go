package storage

import "time"

type User struct {
	ID        int64     `bson:"_id"`
	Credits   int       `bson:"credits"`
	Language  string    `bson:"language"`
	CreatedAt time.Time `bson:"created_at"`
}

// PromptRecord is the audit trail of one successful generation. Records
// are written once and never updated.
type PromptRecord struct {
	UserId     int64     `bson:"user_id"`
	PromptText string    `bson:"prompt_text"`
	ImageRef   string    `bson:"image_ref"`
	CreatedAt  time.Time `bson:"created_at"`
}

type UserStorage interface {
	// GetUser returns nil without error when the user does not exist
	GetUser(userId int64) (*User, error)
	// CreateUser returns the existing record when the user is already registered
	CreateUser(userId int64, credits int, language string) (*User, error)
	// SetCredits writes the balance unconditionally, last writer wins
	SetCredits(userId int64, credits int) error
}

type PromptStorage interface {
	SavePrompt(record PromptRecord) error
}

type Storage interface {
	UserStorage
	PromptStorage
	Close() error
}
