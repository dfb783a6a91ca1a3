// Package service contains the business rules for student accounts.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes user records
//
// THE DEPENDENCY CHAIN:
//
//	main.go creates:  store → UserService → UserHandler
//	At runtime:       Handler calls Service calls Repository
//
// Every method returns an apperror kind (validation, conflict, not found,
// unauthorized, internal). Rule failures are logged at WARN, collaborator
// failures at ERROR. Every user that leaves this package is redacted.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mipt-portal/userservice/internal/apperror"
	"github.com/mipt-portal/userservice/internal/lock"
	"github.com/mipt-portal/userservice/internal/model"
	"github.com/mipt-portal/userservice/internal/repository"
	"github.com/mipt-portal/userservice/internal/validator"
)

// PasswordHasher hashes and checks plaintext passwords.
// *auth.PasswordService satisfies it.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Matches(plaintext, hash string) bool
}

// SaltFunc returns the value stored in User.Salt for a new account.
type SaltFunc func() string

// RegisterParams is the input of RegisterUser.
type RegisterParams struct {
	Email         string
	Name          string
	Password      string
	PasswordAgain string
	Address       *model.Address
	StudyProgram  string
	Course        int
}

// UserService handles registration, login and profile changes.
//
// Compound read-modify-write sequences are serialized here, not in the
// repository:
//   - emailLocks is keyed by email; taken by registration and by an update that
//     changes the email.
//   - userLocks is keyed by user id; taken by every operation that reads a user,
//     modifies it and writes it back.
//
// When both are needed the user stripe is taken first.
type UserService struct {
	repo       repository.UserRepository
	passwords  PasswordHasher
	newSalt    SaltFunc
	logger     *slog.Logger
	emailLocks *lock.Striped
	userLocks  *lock.Striped
}

// NewUserService creates a UserService. newSalt produces the legacy
// User.Salt token (auth.NewLegacySalt in production).
func NewUserService(repo repository.UserRepository, passwords PasswordHasher, newSalt SaltFunc, logger *slog.Logger) *UserService {
	return &UserService{
		repo:       repo,
		passwords:  passwords,
		newSalt:    newSalt,
		logger:     logger,
		emailLocks: lock.NewStriped(lock.DefaultStripes),
		userLocks:  lock.NewStriped(lock.DefaultStripes),
	}
}

// =========================================================================
// REGISTRATION AND LOGIN
// =========================================================================

// RegisterUser validates p, checks that the email is free and stores a new
// user with rating 0, no coins, an empty announcement list and no moderator
// rights.
func (s *UserService) RegisterUser(ctx context.Context, p RegisterParams) (*model.User, error) {
	// === VALIDATION ===
	if strings.TrimSpace(p.Email) == "" {
		return nil, s.reject(ctx, "register", apperror.ValidationFailed("email", validator.ReasonEmailRequired))
	}
	if err := firstError(
		validator.ValidateEmail(p.Email),
		validator.ValidateName(p.Name),
		validator.ValidatePassword(p.Password),
		validator.PasswordStrengthOK(p.Password),
	); err != nil {
		return nil, s.reject(ctx, "register", err, slog.String("email", p.Email))
	}
	if p.Password != p.PasswordAgain {
		return nil, s.reject(ctx, "register",
			apperror.ValidationFailed("passwordAgain", "passwords do not match"),
			slog.String("email", p.Email))
	}

	// === UNIQUENESS ===
	// The email stripe is held until the record is saved, so two registrations
	// of one address cannot both pass the check.
	unlock := s.emailLocks.Lock(p.Email)
	defer unlock()

	taken, err := s.repo.ExistsByEmail(ctx, p.Email)
	if err != nil {
		return nil, s.fail(ctx, "checking email", err)
	}
	if taken {
		return nil, s.reject(ctx, "register", apperror.Conflict("email", p.Email))
	}

	// === BUILD AND SAVE ===
	hash, err := s.passwords.Hash(p.Password)
	if err != nil {
		return nil, s.fail(ctx, "hashing password", err)
	}

	user := &model.User{
		Email:        p.Email,
		HashPassword: hash,
		Salt:         s.newSalt(),
		Name:         p.Name,
		Address:      p.Address.Clone(),
		StudyProgram: p.StudyProgram,
		Course:       p.Course,
		Rating:       0,
		Coins:        0,
		AdList:       []int64{},
		Moderator:    false,
	}

	saved, err := s.repo.Save(ctx, user)
	if err != nil {
		return nil, s.storageErr(ctx, "saving user", err)
	}

	s.logger.InfoContext(ctx, "user registered",
		slog.Int64("id", saved.ID),
		slog.String("email", saved.Email),
	)
	return redacted(saved), nil
}

// LoginUser checks email and password.
//
// An unknown email returns apperror.ErrNotFound and a wrong password returns
// apperror.ErrUnauthorized.
func (s *UserService) LoginUser(ctx context.Context, email, password string) (*model.User, error) {
	if strings.TrimSpace(email) == "" {
		return nil, s.reject(ctx, "login", apperror.ValidationFailed("email", validator.ReasonEmailRequired))
	}
	if strings.TrimSpace(password) == "" {
		return nil, s.reject(ctx, "login", apperror.ValidationFailed("password", "password required"))
	}
	if err := validator.ValidateEmail(email); err != nil {
		return nil, s.reject(ctx, "login", err, slog.String("email", email))
	}

	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, s.storageErr(ctx, "finding user by email", err)
	}

	if !s.passwords.Matches(password, user.HashPassword) {
		return nil, s.reject(ctx, "login",
			apperror.Unauthorized("invalid email or password"),
			slog.Int64("id", user.ID))
	}

	s.logger.InfoContext(ctx, "user logged in", slog.Int64("id", user.ID))
	return redacted(user), nil
}

// =========================================================================
// PROFILE
// =========================================================================

// UpdateUser overwrites email, name, address, study program and course of the
// user identified by upd.ID. A non-empty upd.NewPassword replaces the password.
func (s *UserService) UpdateUser(ctx context.Context, upd model.UserUpdate) (*model.User, error) {
	unlockUser := s.userLocks.Lock(userKey(upd.ID))
	defer unlockUser()

	user, err := s.findForUpdate(ctx, upd.ID)
	if err != nil {
		return nil, err
	}

	// The new address is locked until the record is persisted.
	if upd.Email != user.Email {
		unlockEmail := s.emailLocks.Lock(upd.Email)
		defer unlockEmail()

		taken, err := s.repo.ExistsByEmail(ctx, upd.Email)
		if err != nil {
			return nil, s.fail(ctx, "checking email", err)
		}
		if taken {
			return nil, s.reject(ctx, "update", apperror.Conflict("email", upd.Email), slog.Int64("id", upd.ID))
		}
	}

	if err := firstError(
		validator.ValidateEmail(upd.Email),
		validator.ValidateName(upd.Name),
	); err != nil {
		return nil, s.reject(ctx, "update", err, slog.Int64("id", upd.ID))
	}

	user.Email = upd.Email
	user.Name = upd.Name
	user.Address = upd.Address.Clone()
	user.StudyProgram = upd.StudyProgram
	user.Course = upd.Course

	if upd.NewPassword != "" {
		if err := firstError(
			validator.ValidatePassword(upd.NewPassword),
			validator.PasswordStrengthOK(upd.NewPassword),
		); err != nil {
			return nil, s.reject(ctx, "update", err, slog.Int64("id", upd.ID))
		}
		hash, err := s.passwords.Hash(upd.NewPassword)
		if err != nil {
			return nil, s.fail(ctx, "hashing password", err)
		}
		user.HashPassword = hash
	}

	if err := s.persist(ctx, user); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "user updated",
		slog.Int64("id", user.ID),
		slog.Bool("password_changed", upd.NewPassword != ""),
	)
	return redacted(user), nil
}

// DeleteUser removes the user. Its id is never reissued.
func (s *UserService) DeleteUser(ctx context.Context, userID int64) error {
	unlock := s.userLocks.Lock(userKey(userID))
	defer unlock()

	removed, err := s.repo.Delete(ctx, userID)
	if err != nil {
		return s.fail(ctx, "deleting user", err)
	}
	if !removed {
		return s.reject(ctx, "delete", apperror.NotFound("user", userKey(userID)))
	}

	s.logger.InfoContext(ctx, "user deleted", slog.Int64("id", userID))
	return nil
}

// FindUserByID returns the redacted user with the given id.
func (s *UserService) FindUserByID(ctx context.Context, id int64) (*model.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.storageErr(ctx, "finding user", err)
	}
	return redacted(user), nil
}

// FindUserByEmail returns the redacted user with the given email.
func (s *UserService) FindUserByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, s.storageErr(ctx, "finding user by email", err)
	}
	return redacted(user), nil
}

// GetAllUsers returns every user, redacted. A storage failure is logged and
// yields an empty list.
func (s *UserService) GetAllUsers(ctx context.Context) []model.User {
	users, err := s.repo.FindAll(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list users", slog.String("error", err.Error()))
		return []model.User{}
	}

	out := make([]model.User, 0, len(users))
	for i := range users {
		out = append(out, users[i].Redacted())
	}
	return out
}

// ExistsByEmail reports whether the email is registered. A storage failure is
// logged and reported as false.
func (s *UserService) ExistsByEmail(ctx context.Context, email string) bool {
	ok, err := s.repo.ExistsByEmail(ctx, email)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to check email", slog.String("error", err.Error()))
		return false
	}
	return ok
}

// =========================================================================
// RATING AND COINS
// =========================================================================

// UpdateUserRating stores rating as is. It must lie in [0, model.MaxRating].
func (s *UserService) UpdateUserRating(ctx context.Context, userID int64, rating float64) error {
	// written as a negation so NaN is rejected too
	if !(rating >= 0 && rating <= model.MaxRating) {
		return s.reject(ctx, "rating",
			apperror.ValidationFailed("rating", "rating must be between 0 and 5"),
			slog.Int64("id", userID), slog.Float64("rating", rating))
	}

	return s.modify(ctx, userID, func(u *model.User) error {
		u.Rating = rating
		return nil
	})
}

// AddCoins credits n coins. n must be positive and the new balance must fit in an int.
func (s *UserService) AddCoins(ctx context.Context, userID int64, n int) error {
	if n <= 0 {
		return s.reject(ctx, "add coins",
			apperror.ValidationFailed("amount", "amount must be positive"),
			slog.Int64("id", userID), slog.Int("amount", n))
	}

	return s.modify(ctx, userID, func(u *model.User) error {
		if !u.AddCoins(n) {
			return apperror.ValidationFailed("amount", "balance would overflow")
		}
		return nil
	})
}

// DeductCoins debits n coins. n must be positive and not exceed the balance.
func (s *UserService) DeductCoins(ctx context.Context, userID int64, n int) error {
	if n <= 0 {
		return s.reject(ctx, "deduct coins",
			apperror.ValidationFailed("amount", "amount must be positive"),
			slog.Int64("id", userID), slog.Int("amount", n))
	}

	return s.modify(ctx, userID, func(u *model.User) error {
		if !u.SpendCoins(n) {
			return apperror.ValidationFailed("amount", "insufficient coins")
		}
		return nil
	})
}

// =========================================================================
// ANNOUNCEMENTS
// =========================================================================

// AddAnnouncementID appends adID to the user's announcement list. Adding an id
// that is already present succeeds without changing the list.
func (s *UserService) AddAnnouncementID(ctx context.Context, userID, adID int64) error {
	return s.modify(ctx, userID, func(u *model.User) error {
		if !u.AddAnnouncement(adID) {
			return errUnchanged
		}
		return nil
	})
}

// DeleteAnnouncementID removes adID from the user's announcement list.
// It fails with apperror.ErrNotFound when the list is empty or lacks adID.
func (s *UserService) DeleteAnnouncementID(ctx context.Context, userID, adID int64) error {
	return s.modify(ctx, userID, func(u *model.User) error {
		if len(u.AdList) == 0 || !u.RemoveAnnouncement(adID) {
			return apperror.NotFound("announcement", strconv.FormatInt(adID, 10))
		}
		return nil
	})
}

// =========================================================================
// HELPERS
// =========================================================================

// errUnchanged tells modify that fn succeeded without touching the user.
var errUnchanged = errors.New("unchanged")

// modify runs the read-modify-write cycle for one user under its stripe.
// An error from fn aborts without writing.
func (s *UserService) modify(ctx context.Context, userID int64, fn func(u *model.User) error) error {
	unlock := s.userLocks.Lock(userKey(userID))
	defer unlock()

	user, err := s.findForUpdate(ctx, userID)
	if err != nil {
		return err
	}

	if err := fn(user); err != nil {
		if errors.Is(err, errUnchanged) {
			return nil
		}
		return s.reject(ctx, "modify", err, slog.Int64("id", userID))
	}

	return s.persist(ctx, user)
}

func (s *UserService) findForUpdate(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, s.storageErr(ctx, "finding user", err)
	}
	return user, nil
}

func (s *UserService) persist(ctx context.Context, user *model.User) error {
	ok, err := s.repo.Update(ctx, user)
	if err != nil {
		return s.storageErr(ctx, "updating user", err)
	}
	if !ok {
		return s.reject(ctx, "update", apperror.NotFound("user", userKey(user.ID)))
	}
	return nil
}

// reject logs a rule failure and returns err unchanged.
func (s *UserService) reject(ctx context.Context, op string, err error, attrs ...any) error {
	attrs = append(attrs,
		slog.String("op", op),
		slog.String("kind", apperror.Kind(err)),
		slog.String("reason", err.Error()),
	)
	s.logger.WarnContext(ctx, "request rejected", attrs...)
	return err
}

// fail logs a collaborator fault and wraps it as apperror.ErrInternal.
func (s *UserService) fail(ctx context.Context, op string, err error) error {
	s.logger.ErrorContext(ctx, "operation failed",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
	return apperror.Internal(op, err)
}

// storageErr passes not-found and conflict results through and treats
// anything else from the repository as internal.
func (s *UserService) storageErr(ctx context.Context, op string, err error) error {
	if errors.Is(err, apperror.ErrNotFound) || errors.Is(err, apperror.ErrConflict) {
		return s.reject(ctx, op, err)
	}
	return s.fail(ctx, op, err)
}

func redacted(u *model.User) *model.User {
	r := u.Redacted()
	return &r
}

func userKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
