// Package access decides what a user may see: tier gates, redaction of gated
// content, quiz sampling and the assistant's daily quota. Everything here is a
// pure function of its inputs; persistence belongs to the callers.
package access

import (
	"time"

	"academy/internal/models"
)

// rankStaff places admins and teachers above every paid tier.
const rankStaff = 3

// Required tiers of resources whose tier is fixed by type.
const (
	QuizTier     = models.AccessPremium
	ResourceTier = models.AccessBasic
	ChatTier     = models.AccessBasic
)

// Rank orders access levels. Unknown levels rank as free.
func Rank(level models.AccessLevel) int {
	switch level {
	case models.AccessBasic:
		return 1
	case models.AccessPremium:
		return 2
	default:
		return 0
	}
}

// EffectiveTier resolves the access level a user is entitled to at now.
// Anonymous users, unknown levels and lapsed subscriptions resolve to free.
func EffectiveTier(u *models.User, now time.Time) models.AccessLevel {
	if u == nil || !u.AccessLevel.Valid() {
		return models.AccessFree
	}
	if u.AccessLevel != models.AccessFree && u.SubscriptionLapsed(now) {
		return models.AccessFree
	}
	return u.AccessLevel
}

// EffectiveRank is the single rank every gate compares against.
func EffectiveRank(u *models.User, now time.Time) int {
	if u != nil && u.Role.IsStaff() {
		return rankStaff
	}
	return Rank(EffectiveTier(u, now))
}

// Decision is the outcome of a tier check. It is serialized as access_info.
type Decision struct {
	HasAccess    bool               `json:"has_full_access"`
	UserTier     models.AccessLevel `json:"user_access_level"`
	RequiredTier models.AccessLevel `json:"required_tier"`
}

// CheckAccess reports whether u may see the full content of a resource that
// requires the given tier. A nil user is anonymous.
func CheckAccess(u *models.User, required models.AccessLevel, now time.Time) Decision {
	return Decision{
		HasAccess:    EffectiveRank(u, now) >= Rank(required),
		UserTier:     EffectiveTier(u, now),
		RequiredTier: required,
	}
}

// CanUseChat is the entry gate of the realtime chat.
func CanUseChat(u *models.User, now time.Time) bool {
	return u != nil && CheckAccess(u, ChatTier, now).HasAccess
}
