package model

import (
	"time"

	"github.com/google/uuid"
)

// Condition describes the wear state of a listed product.
type Condition string

const (
	ConditionNew      Condition = "New"
	ConditionUsed     Condition = "Used"
	ConditionVintage  Condition = "Vintage"
	ConditionHeritage Condition = "Heritage"
)

// Valid reports whether the condition is one of the known values.
func (c Condition) Valid() bool {
	switch c {
	case ConditionNew, ConditionUsed, ConditionVintage, ConditionHeritage:
		return true
	}
	return false
}

// User is a registered account. The password hash never leaves the server.
type User struct {
	ID           uuid.UUID   `json:"id"`
	Name         string      `json:"name"`
	Email        string      `json:"email"`
	PasswordHash string      `json:"-"`
	ProfileImage string      `json:"profileImage"`
	Phone        string      `json:"phone,omitempty"`
	Location     string      `json:"location,omitempty"`
	Bio          string      `json:"bio,omitempty"`
	Favorites    []uuid.UUID `json:"favorites"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// UserSummary is the public slice of a user embedded in other payloads.
type UserSummary struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	ProfileImage string    `json:"profileImage,omitempty"`
}

// Summary returns the public representation of the user.
func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Name: u.Name, ProfileImage: u.ProfileImage}
}

// Product is a marketplace listing.
type Product struct {
	ID           uuid.UUID    `json:"id"`
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	Images       []string     `json:"images"`
	Price        float64      `json:"price"`
	Condition    Condition    `json:"condition"`
	Category     string       `json:"category"`
	Location     string       `json:"location"`
	PhoneNumber  string       `json:"phoneNumber,omitempty"`
	UserID       uuid.UUID    `json:"user"`
	Seller       *UserSummary `json:"seller,omitempty"`
	Views        int64        `json:"views"`
	CommentCount int64        `json:"commentCount"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// Comment is a user comment on a product.
type Comment struct {
	ID        uuid.UUID    `json:"id"`
	Text      string       `json:"text"`
	UserID    uuid.UUID    `json:"user"`
	Author    *UserSummary `json:"author,omitempty"`
	ProductID uuid.UUID    `json:"product"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// ChatMessage is a single message inside a chat document.
type ChatMessage struct {
	ID        uuid.UUID `json:"id"`
	Sender    uuid.UUID `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	IsRead    bool      `json:"isRead"`
}

// LastMessage mirrors the newest message of a chat for cheap list rendering.
type LastMessage struct {
	Content   string    `json:"content"`
	Sender    uuid.UUID `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}
