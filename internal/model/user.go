// Package model defines the data structures used throughout the application.
package model

import "math"

// Rating bounds enforced by the in-record helpers. A freshly registered user
// starts at 0.0, which is outside [MinRating, MaxRating] until the first change.
const (
	MinRating = 1.0
	MaxRating = 5.0
)

// User represents a registered student account.
//
// ID is assigned by the repository on first save (0 means "not saved yet") and
// never changes afterwards. HashPassword and Salt are credential fields: they are
// stored, but every value leaving the service goes through Redacted first.
//
// Salt is a 10-character random token kept for data-shape compatibility with
// older records. The bcrypt salt lives inside HashPassword; Salt plays no part
// in password checks.
type User struct {
	ID           int64    `json:"id"`
	Email        string   `json:"email"`
	HashPassword string   `json:"hashPassword"`
	Salt         string   `json:"salt"`
	Name         string   `json:"name"`
	Address      *Address `json:"address"`
	StudyProgram string   `json:"studyProgram"`
	Course       int      `json:"course"`
	Rating       float64  `json:"rating"`
	Coins        int      `json:"coins"`
	AdList       []int64  `json:"adList"`
	Moderator    bool     `json:"moderator"`
}

// UserUpdate carries the editable profile fields for an existing user.
//
// NewPassword is plaintext; when non-empty it is validated, hashed and replaces
// the stored hash. An empty NewPassword leaves the password unchanged.
type UserUpdate struct {
	ID           int64    `json:"id"`
	Email        string   `json:"email"`
	Name         string   `json:"name"`
	Address      *Address `json:"address"`
	StudyProgram string   `json:"studyProgram"`
	Course       int      `json:"course"`
	NewPassword  string   `json:"newPassword"`
}

// Clone returns a deep copy of u: the Address and AdList are not shared.
func (u *User) Clone() User {
	c := *u
	c.Address = u.Address.Clone()
	if u.AdList != nil {
		c.AdList = make([]int64, len(u.AdList))
		copy(c.AdList, u.AdList)
	}
	return c
}

// Redacted returns a deep copy of u with HashPassword and Salt cleared.
func (u *User) Redacted() User {
	c := u.Clone()
	c.HashPassword = ""
	c.Salt = ""
	return c
}

// IncreaseRating adds delta to the rating, capping it at MaxRating.
func (u *User) IncreaseRating(delta float64) {
	if u.Rating+delta <= MaxRating {
		u.Rating += delta
	} else {
		u.Rating = MaxRating
	}
}

// DecreaseRating subtracts delta from the rating, flooring it at MinRating.
func (u *User) DecreaseRating(delta float64) {
	if u.Rating-delta >= MinRating {
		u.Rating -= delta
	} else {
		u.Rating = MinRating
	}
}

// AddCoins credits amount coins and reports whether the balance could hold
// them. The balance is left untouched when the sum would overflow int.
// Callers validate that amount is positive.
func (u *User) AddCoins(amount int) bool {
	if u.Coins > math.MaxInt-amount {
		return false
	}
	u.Coins += amount
	return true
}

// SpendCoins debits amount coins and reports whether the balance allowed it.
// The balance is left untouched when it would go negative.
func (u *User) SpendCoins(amount int) bool {
	if u.Coins-amount < 0 {
		return false
	}
	u.Coins -= amount
	return true
}

// HasAnnouncement reports whether adID is in the user's announcement list.
func (u *User) HasAnnouncement(adID int64) bool {
	for _, id := range u.AdList {
		if id == adID {
			return true
		}
	}
	return false
}

// AddAnnouncement appends adID unless it is already present.
// It reports whether the list changed.
func (u *User) AddAnnouncement(adID int64) bool {
	if u.HasAnnouncement(adID) {
		return false
	}
	u.AdList = append(u.AdList, adID)
	return true
}

// RemoveAnnouncement removes adID, keeping the order of the remaining ids.
// It reports whether adID was present.
func (u *User) RemoveAnnouncement(adID int64) bool {
	for i, id := range u.AdList {
		if id == adID {
			u.AdList = append(u.AdList[:i], u.AdList[i+1:]...)
			return true
		}
	}
	return false
}
