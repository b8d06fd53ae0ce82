// Package user holds customer identity and first-contact registration.
package user

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested user does not exist.
var ErrNotFound = errors.New("user not found")

// Role distinguishes customers from staff.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
	RoleCourier  Role = "courier"
)

// Status marks whether a user may interact with the bot.
type Status string

const (
	StatusActive  Status = "active"
	StatusBlocked Status = "blocked"
)

// User is a bot customer or staff member. TelegramID is the external
// messenger identity; ID is the internal key everything else references.
type User struct {
	ID         string
	TelegramID int64
	Username   string
	FirstName  string
	LastName   string
	Phone      string
	Role       Role
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsAdmin reports whether the user has staff privileges.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// IsActive reports whether the user may place orders.
func (u *User) IsActive() bool {
	return u.Status == StatusActive
}

// Repository defines user persistence.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*User, error)
	Update(ctx context.Context, u *User) error
}

// Ensure returns the internal user for a Telegram identity, registering a
// minimal customer record on first contact. Safe to call on every
// interaction.
func Ensure(ctx context.Context, repo Repository, telegramID int64) (*User, error) {
	u, err := repo.GetByTelegramID(ctx, telegramID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, errors.Wrap(err, "lookup user")
	}

	now := time.Now()
	u = &User{
		ID:         uuid.New().String(),
		TelegramID: telegramID,
		Role:       RoleCustomer,
		Status:     StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := repo.Create(ctx, u); err != nil {
		return nil, errors.Wrap(err, "register user")
	}
	return u, nil
}
