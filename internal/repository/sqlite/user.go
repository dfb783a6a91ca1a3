package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mipt-portal/userservice/internal/apperror"
	"github.com/mipt-portal/userservice/internal/model"
	"github.com/mipt-portal/userservice/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, email, hash_password, salt, name, address, study_program,
	course, rating, coins, ad_list, moderator`

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*model.User, error) {
	var (
		u       model.User
		address sql.NullString
		adList  string
	)
	err := s.Scan(
		&u.ID,
		&u.Email,
		&u.HashPassword,
		&u.Salt,
		&u.Name,
		&address,
		&u.StudyProgram,
		&u.Course,
		&u.Rating,
		&u.Coins,
		&adList,
		&u.Moderator,
	)
	if err != nil {
		return nil, err
	}

	if u.Address, err = repository.DecodeAddress(address); err != nil {
		return nil, err
	}
	if u.AdList, err = repository.DecodeAdList(adList); err != nil {
		return nil, err
	}
	return &u, nil
}

// columnValues returns every column except id, in userColumns order.
func columnValues(u *model.User) ([]any, error) {
	address, err := repository.EncodeAddress(u.Address)
	if err != nil {
		return nil, err
	}
	adList, err := repository.EncodeAdList(u.AdList)
	if err != nil {
		return nil, err
	}
	return []any{
		u.Email,
		u.HashPassword,
		u.Salt,
		u.Name,
		address,
		u.StudyProgram,
		u.Course,
		u.Rating,
		u.Coins,
		adList,
		u.Moderator,
	}, nil
}

// isUniqueViolation reports whether err is SQLite rejecting a duplicate email.
func isUniqueViolation(err error) bool {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(se.Error(), "UNIQUE")
	}
	return false
}

// Save inserts a new user (ID == 0) or overwrites an existing one.
//
// The returned user is read back from the table, so its ID is the one SQLite
// assigned.
func (db *DB) Save(ctx context.Context, user *model.User) (*model.User, error) {
	values, err := columnValues(user)
	if err != nil {
		return nil, fmt.Errorf("sqlite: saving user: %w", err)
	}

	id := user.ID
	if id == 0 {
		res, err := db.conn.ExecContext(ctx,
			`INSERT INTO users (email, hash_password, salt, name, address, study_program,
				course, rating, coins, ad_list, moderator)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			values...,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, apperror.Conflict("email", user.Email)
			}
			return nil, fmt.Errorf("sqlite: inserting user %s: %w", user.Email, err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return nil, fmt.Errorf("sqlite: reading new user id: %w", err)
		}
	} else {
		ok, err := db.Update(ctx, user)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperror.NotFound("user", strconv.FormatInt(id, 10))
		}
	}

	return db.FindByID(ctx, id)
}

// FindByID retrieves a user by id.
// Returns apperror.ErrNotFound if no user exists with that id.
func (db *DB) FindByID(ctx context.Context, id int64) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("sqlite: getting user %d: %w", id, err)
	}
	return u, nil
}

// FindByEmail retrieves a user by exact email.
// Returns apperror.ErrNotFound if no user has that email.
func (db *DB) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ? ORDER BY id LIMIT 1`, email)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlite: getting user by email: %w", err)
	}
	return u, nil
}

func (db *DB) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := db.conn.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)`, email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking email: %w", err)
	}
	return exists, nil
}

// FindAll returns every user ordered by id.
//
// ALWAYS CLOSE ROWS: defer rows.Close() returns the connection to the pool
// even if scanning fails halfway.
func (db *DB) FindAll(ctx context.Context) ([]model.User, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating users: %w", err)
	}
	return users, nil
}

func (db *DB) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("sqlite: deleting user %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n > 0, nil
}

// Update overwrites every column of the user identified by user.ID.
// A duplicate email surfaces as apperror.ErrConflict.
func (db *DB) Update(ctx context.Context, user *model.User) (bool, error) {
	if user.ID == 0 {
		return false, nil
	}

	values, err := columnValues(user)
	if err != nil {
		return false, fmt.Errorf("sqlite: updating user %d: %w", user.ID, err)
	}

	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET email = ?, hash_password = ?, salt = ?, name = ?, address = ?,
			study_program = ?, course = ?, rating = ?, coins = ?, ad_list = ?, moderator = ?
		 WHERE id = ?`,
		append(values, user.ID)...,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, apperror.Conflict("email", user.Email)
		}
		return false, fmt.Errorf("sqlite: updating user %d: %w", user.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n > 0, nil
}
