package models

import "time"

// User is an authenticated principal built from identity provider claims.
type User struct {
	ID          string    `bson:"_id" json:"id"`
	Name        string    `bson:"name" json:"name"`
	Emails      []string  `bson:"emails" json:"emails"`
	TenantID    string    `bson:"tenantId,omitempty" json:"tenantId,omitempty"`
	CreatedAt   time.Time `bson:"createdAt,omitempty" json:"-"`
	LastLoginAt time.Time `bson:"lastLoginAt,omitempty" json:"-"`
}

// Complete reports whether u has an id and at least one email.
func (u *User) Complete() bool {
	if u == nil || u.ID == "" {
		return false
	}
	for _, e := range u.Emails {
		if e != "" {
			return true
		}
	}
	return false
}

// PrimaryEmail returns the first email address, if any.
func (u *User) PrimaryEmail() string {
	if u == nil || len(u.Emails) == 0 {
		return ""
	}
	return u.Emails[0]
}
