// Package models contains data structures for the application's domain models.
package models

import (
	"time"

	"gorm.io/gorm"
)

// AccessLevel is the subscription tier a user has paid for.
type AccessLevel string

// Access levels in ascending order.
const (
	AccessFree    AccessLevel = "free"
	AccessBasic   AccessLevel = "basic"
	AccessPremium AccessLevel = "premium"
)

// Valid reports whether l is a known access level.
func (l AccessLevel) Valid() bool {
	switch l {
	case AccessFree, AccessBasic, AccessPremium:
		return true
	}
	return false
}

// Role is the user's position in the academy.
type Role string

// Roles. Teachers and admins are staff.
const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	}
	return false
}

// IsStaff reports whether the role bypasses tier checks.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleTeacher
}

// SubscriptionStatus tracks the billing state behind a paid access level.
type SubscriptionStatus string

// Subscription states.
const (
	SubscriptionNone      SubscriptionStatus = "none"
	SubscriptionTrial     SubscriptionStatus = "trial"
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionExpired   SubscriptionStatus = "expired"
)

// Valid reports whether s is a known subscription state.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionNone, SubscriptionTrial, SubscriptionActive, SubscriptionCancelled, SubscriptionExpired:
		return true
	}
	return false
}

// User represents a student, teacher or admin of the academy.
type User struct {
	ID                  uint               `gorm:"primaryKey" json:"id"`
	Username            string             `gorm:"unique;not null" json:"username"`
	Email               string             `gorm:"unique;not null" json:"email"`
	Password            string             `gorm:"not null" json:"-"`
	Language            string             `gorm:"size:2;default:'ru'" json:"language"`
	Role                Role               `gorm:"size:16;not null;default:'student'" json:"role"`
	AccessLevel         AccessLevel        `gorm:"size:16;not null;default:'free'" json:"access_level"`
	SubscriptionStatus  SubscriptionStatus `gorm:"size:16;not null;default:'none'" json:"subscription_status"`
	SubscriptionEndDate *time.Time         `json:"subscription_end_date,omitempty"`
	AIRequestsToday     int                `gorm:"not null;default:0" json:"ai_requests_today"`
	AILastRequestAt     *time.Time         `json:"ai_last_request_at,omitempty"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
	DeletedAt           gorm.DeletedAt     `gorm:"index" json:"-"`
}

// SubscriptionLapsed reports whether a trial or active subscription has run past
// its end date at now. Users without a time-boxed subscription never lapse.
func (u *User) SubscriptionLapsed(now time.Time) bool {
	if u.SubscriptionStatus != SubscriptionActive && u.SubscriptionStatus != SubscriptionTrial {
		return false
	}
	if u.SubscriptionEndDate == nil {
		return false
	}
	return !u.SubscriptionEndDate.After(now)
}

// UserSummary is the public projection of a user embedded in chat payloads.
type UserSummary struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// Summary returns the public projection of u.
func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Username: u.Username, Role: u.Role}
}
