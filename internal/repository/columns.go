package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/mipt-portal/userservice/internal/model"
)

// SQL backends keep Address and AdList as JSON documents in a single column.
// The helpers below are shared by the sqlite and postgres packages.

// EncodeAddress returns the column value for a, or NULL when a is nil.
func EncodeAddress(a *model.Address) (sql.NullString, error) {
	if a == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encoding address: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// DecodeAddress is the inverse of EncodeAddress.
func DecodeAddress(col sql.NullString) (*model.Address, error) {
	if !col.Valid || col.String == "" {
		return nil, nil
	}
	var a model.Address
	if err := json.Unmarshal([]byte(col.String), &a); err != nil {
		return nil, fmt.Errorf("decoding address: %w", err)
	}
	return &a, nil
}

// EncodeAdList returns the column value for ids. A nil list is stored as "[]".
func EncodeAdList(ids []int64) (string, error) {
	if ids == nil {
		ids = []int64{}
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("encoding ad list: %w", err)
	}
	return string(b), nil
}

// DecodeAdList is the inverse of EncodeAdList. The result is never nil.
func DecodeAdList(col string) ([]int64, error) {
	ids := []int64{}
	if col == "" {
		return ids, nil
	}
	if err := json.Unmarshal([]byte(col), &ids); err != nil {
		return nil, fmt.Errorf("decoding ad list: %w", err)
	}
	return ids, nil
}
