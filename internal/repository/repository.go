// Package repository defines the storage contract for user records.
//
// Implementations live in subpackages (memory, sqlite, postgres). Every
// implementation stores and returns deep copies, so callers can mutate what
// they get back without touching stored state.
package repository

import (
	"context"
	"errors"

	"github.com/mipt-portal/userservice/internal/apperror"
	"github.com/mipt-portal/userservice/internal/model"
)

// UserRepository is the persistence capability set used by the service layer.
//
// Each operation is atomic with respect to other operations on the same store.
// Compound read-modify-write sequences are NOT guarded here; the service layer
// serializes them.
type UserRepository interface {
	// Save stores user. A zero ID gets the next id from the store's counter and
	// the stored record is returned. A non-zero ID overwrites an existing record;
	// an unknown non-zero ID returns apperror.ErrNotFound.
	// Email uniqueness is the caller's responsibility.
	Save(ctx context.Context, user *model.User) (*model.User, error)

	// FindByID returns apperror.ErrNotFound if no record has that id.
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// FindByEmail compares emails exactly. Returns apperror.ErrNotFound on a miss.
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	ExistsByEmail(ctx context.Context, email string) (bool, error)

	// FindAll returns a snapshot of every record. Order is unspecified.
	FindAll(ctx context.Context) ([]model.User, error)

	// Delete reports whether a record was removed. Deleted ids are never reissued.
	Delete(ctx context.Context, id int64) (bool, error)

	// Update overwrites the record identified by user.ID. It returns false when
	// the ID is zero or unknown.
	Update(ctx context.Context, user *model.User) (bool, error)
}

// ExistsByID reports whether repo holds a record with the given id.
func ExistsByID(ctx context.Context, repo UserRepository, id int64) (bool, error) {
	_, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
