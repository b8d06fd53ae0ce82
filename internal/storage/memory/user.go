package memory

import (
	"context"
	"sync"

	"github.com/mkrv/cafeorder/internal/domain/user"
)

var _ user.Repository = (*UserRepository)(nil)

// UserRepository is an in-memory user.Repository.
type UserRepository struct {
	mu         sync.RWMutex
	byID       map[string]*user.User
	byTelegram map[int64]string
}

// NewUserRepository creates an empty UserRepository.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:       make(map[string]*user.User),
		byTelegram: make(map[int64]string),
	}
}

func (r *UserRepository) Create(_ context.Context, u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *u
	r.byID[u.ID] = &cp
	r.byTelegram[u.TelegramID] = u.ID
	return nil
}

func (r *UserRepository) GetByID(_ context.Context, id string) (*user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *UserRepository) GetByTelegramID(_ context.Context, telegramID int64) (*user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byTelegram[telegramID]
	if !ok {
		return nil, user.ErrNotFound
	}
	cp := *r.byID[id]
	return &cp, nil
}

func (r *UserRepository) Update(_ context.Context, u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[u.ID]; !ok {
		return user.ErrNotFound
	}
	cp := *u
	r.byID[u.ID] = &cp
	r.byTelegram[u.TelegramID] = u.ID
	return nil
}
