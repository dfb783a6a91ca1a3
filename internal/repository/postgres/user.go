package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mipt-portal/userservice/internal/apperror"
	"github.com/mipt-portal/userservice/internal/model"
	"github.com/mipt-portal/userservice/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

// uniqueViolation is the SQLSTATE for a UNIQUE constraint failure.
const uniqueViolation = "23505"

const userColumns = `id, email, hash_password, salt, name, address, study_program,
	course, rating, coins, ad_list, moderator`

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*model.User, error) {
	var (
		u       model.User
		address sql.NullString
		adList  string
	)
	if err := s.Scan(
		&u.ID, &u.Email, &u.HashPassword, &u.Salt, &u.Name, &address,
		&u.StudyProgram, &u.Course, &u.Rating, &u.Coins, &adList, &u.Moderator,
	); err != nil {
		return nil, err
	}

	var err error
	if u.Address, err = repository.DecodeAddress(address); err != nil {
		return nil, err
	}
	if u.AdList, err = repository.DecodeAdList(adList); err != nil {
		return nil, err
	}
	return &u, nil
}

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
		u.Email, u.HashPassword, u.Salt, u.Name, address,
		u.StudyProgram, u.Course, u.Rating, u.Coins, adList, u.Moderator,
	}, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// Save inserts a new user (ID == 0) or overwrites an existing one.
func (db *DB) Save(ctx context.Context, user *model.User) (*model.User, error) {
	if user.ID != 0 {
		ok, err := db.Update(ctx, user)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperror.NotFound("user", strconv.FormatInt(user.ID, 10))
		}
		return db.FindByID(ctx, user.ID)
	}

	values, err := columnValues(user)
	if err != nil {
		return nil, fmt.Errorf("postgres: saving user: %w", err)
	}

	row := db.conn.QueryRowContext(ctx,
		`INSERT INTO users (email, hash_password, salt, name, address, study_program,
			course, rating, coins, ad_list, moderator)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING `+userColumns,
		values...,
	)
	saved, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperror.Conflict("email", user.Email)
		}
		return nil, fmt.Errorf("postgres: inserting user %s: %w", user.Email, err)
	}
	return saved, nil
}

func (db *DB) FindByID(ctx context.Context, id int64) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("postgres: getting user %d: %w", id, err)
	}
	return u, nil
}

func (db *DB) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1 ORDER BY id LIMIT 1`, email)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("postgres: getting user by email: %w", err)
	}
	return u, nil
}

func (db *DB) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := db.conn.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: checking email: %w", err)
	}
	return exists, nil
}

func (db *DB) FindAll(ctx context.Context) ([]model.User, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing users: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scanning user row: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating users: %w", err)
	}
	return users, nil
}

func (db *DB) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("postgres: deleting user %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("postgres: checking rows affected: %w", err)
	}
	return n > 0, nil
}

func (db *DB) Update(ctx context.Context, user *model.User) (bool, error) {
	if user.ID == 0 {
		return false, nil
	}

	values, err := columnValues(user)
	if err != nil {
		return false, fmt.Errorf("postgres: updating user %d: %w", user.ID, err)
	}

	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET email = $1, hash_password = $2, salt = $3, name = $4, address = $5,
			study_program = $6, course = $7, rating = $8, coins = $9, ad_list = $10, moderator = $11
		 WHERE id = $12`,
		append(values, user.ID)...,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, apperror.Conflict("email", user.Email)
		}
		return false, fmt.Errorf("postgres: updating user %d: %w", user.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("postgres: checking rows affected: %w", err)
	}
	return n > 0, nil
}
