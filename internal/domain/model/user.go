package model

import "time"

// User is the addon-side record of an IMDb user whose watchlist is served.
type User struct {
	ID             string
	IsActive       bool
	LastActivityAt time.Time
	SortOption     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewUser creates an active user with the default sort option.
func NewUser(id string, now time.Time) (*User, error) {
	if err := ValidateUserID(id); err != nil {
		return nil, err
	}
	return &User{
		ID:             id,
		IsActive:       true,
		LastActivityAt: now,
		SortOption:     DefaultSortSpec.String(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// SortSpec resolves the persisted sort option, falling back to the default.
func (u *User) SortSpec() SortSpec {
	return SortSpecOrDefault(u.SortOption)
}

// Touch marks the user active as of now.
func (u *User) Touch(now time.Time) {
	u.IsActive = true
	u.LastActivityAt = now
	u.UpdatedAt = now
}
