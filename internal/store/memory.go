package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/memoist-io/idserver/types"
)

// MemoryUserRepository is an in-memory UserRepository equivalent used
// by tests. It mirrors the Postgres repository's semantics, including
// uniqueness enforcement on email and username.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[uuid.UUID]types.User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[uuid.UUID]types.User)}
}

func (r *MemoryUserRepository) GetByID(ctx context.Context, id uuid.UUID) (types.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return types.User{}, ErrNotFound
	}
	return user, nil
}

func (r *MemoryUserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, user := range r.users {
		if user.Username == username {
			return user, nil
		}
	}
	return types.User{}, ErrNotFound
}

func (r *MemoryUserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if existing.Email == user.Email || existing.Username == user.Username {
			return types.User{}, ErrConflict
		}
	}
	r.users[user.ID] = user
	return user, nil
}

func (r *MemoryUserRepository) Update(ctx context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.ID]; !ok {
		return types.User{}, ErrNotFound
	}
	for id, existing := range r.users {
		if id == user.ID {
			continue
		}
		if existing.Email == user.Email || existing.Username == user.Username {
			return types.User{}, ErrConflict
		}
	}
	r.users[user.ID] = user
	return user, nil
}

func (r *MemoryUserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[id]; !ok {
		return ErrNotFound
	}
	delete(r.users, id)
	return nil
}

func (r *MemoryUserRepository) List(ctx context.Context, isActive *bool, offset, limit int) ([]types.User, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	filtered := []types.User{}
	for _, user := range r.users {
		if isActive != nil && user.IsActive != *isActive {
			continue
		}
		filtered = append(filtered, user)
	}
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	total := len(filtered)
	if offset >= total {
		return []types.User{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return filtered[offset:end], total, nil
}

func (r *MemoryUserRepository) ExistsEmailOrUsername(ctx context.Context, email, username string, excludeID uuid.UUID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, user := range r.users {
		if id == excludeID {
			continue
		}
		if (email != "" && user.Email == email) || (username != "" && user.Username == username) {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryUserRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	user.LastLogin = &at
	r.users[id] = user
	return nil
}

func (r *MemoryUserRepository) Counts(ctx context.Context) (total, active int, err error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, user := range r.users {
		total++
		if user.IsActive {
			active++
		}
	}
	return total, active, nil
}
