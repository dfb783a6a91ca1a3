// Package memory implements repository.UserRepository with an in-process map.
//
// Records live for the lifetime of the process. Useful for development and as
// the fake behind service and handler tests.
package memory

import (
	"context"
	"strconv"
	"sync"

	"github.com/mipt-portal/userservice/internal/apperror"
	"github.com/mipt-portal/userservice/internal/model"
	"github.com/mipt-portal/userservice/internal/repository"
)

// compile-time check that *UserStore implements repository.UserRepository
var _ repository.UserRepository = (*UserStore)(nil)

// UserStore is a map of user records guarded by a RWMutex.
//
// nextID only grows, so ids of deleted users are never handed out again.
type UserStore struct {
	mu     sync.RWMutex
	users  map[int64]model.User
	nextID int64
}

// NewUserStore returns an empty store whose first assigned id is 1.
func NewUserStore() *UserStore {
	return &UserStore{
		users:  make(map[int64]model.User),
		nextID: 1,
	}
}

func (s *UserStore) Save(_ context.Context, user *model.User) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := user.Clone()
	if stored.ID == 0 {
		stored.ID = s.nextID
		s.nextID++
	} else if _, ok := s.users[stored.ID]; !ok {
		return nil, apperror.NotFound("user", strconv.FormatInt(stored.ID, 10))
	}

	s.users[stored.ID] = stored
	out := stored.Clone()
	return &out, nil
}

func (s *UserStore) FindByID(_ context.Context, id int64) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, apperror.NotFound("user", strconv.FormatInt(id, 10))
	}
	out := u.Clone()
	return &out, nil
}

// FindByEmail scans every record. With several matches (only possible if a
// caller skipped the uniqueness check) the lowest id wins.
func (s *UserStore) FindByEmail(_ context.Context, email string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *model.User
	for id, u := range s.users {
		if u.Email != email {
			continue
		}
		if found == nil || id < found.ID {
			c := u.Clone()
			found = &c
		}
	}
	if found == nil {
		return nil, apperror.NotFound("user", email)
	}
	return found, nil
}

func (s *UserStore) ExistsByEmail(_ context.Context, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (s *UserStore) FindAll(_ context.Context) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		all = append(all, u.Clone())
	}
	return all, nil
}

func (s *UserStore) Delete(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return false, nil
	}
	delete(s.users, id)
	return true, nil
}

func (s *UserStore) Update(_ context.Context, user *model.User) (bool, error) {
	if user.ID == 0 {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; !ok {
		return false, nil
	}
	s.users[user.ID] = user.Clone()
	return true, nil
}
