package access

import (
	"time"

	"academy/internal/models"
)

// QuotaDecision describes the assistant budget of a user for the current day.
type QuotaDecision struct {
	Allowed   bool      `json:"allowed"`
	Unlimited bool      `json:"unlimited"`
	Limit     int       `json:"limit"`
	Used      int       `json:"used"`
	Remaining int       `json:"remaining"`
	ResetsAt  time.Time `json:"resets_at"`
}

// StartOfDay is local midnight of t in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// UsedToday is the counter value that applies at now. A counter last touched
// before today's midnight counts as zero.
func UsedToday(u *models.User, now time.Time) int {
	if u == nil || u.AILastRequestAt == nil {
		return 0
	}
	if u.AILastRequestAt.Before(StartOfDay(now)) {
		return 0
	}
	return u.AIRequestsToday
}

// Quota reports the assistant budget without consuming it.
func (p *Policy) Quota(u *models.User, now time.Time) QuotaDecision {
	used := UsedToday(u, now)
	d := QuotaDecision{
		Used:     used,
		ResetsAt: StartOfDay(now).AddDate(0, 0, 1),
	}
	if EffectiveRank(u, now) == rankStaff {
		d.Allowed = true
		d.Unlimited = true
		return d
	}
	d.Limit = p.AIDailyQuota[EffectiveTier(u, now)]
	d.Remaining = max(d.Limit-used, 0)
	d.Allowed = d.Remaining > 0
	return d
}

// Consume charges one request to u when the budget allows it. On success u's
// counter and timestamp are updated in memory and the returned decision
// reflects the state after the request.
func (p *Policy) Consume(u *models.User, now time.Time) QuotaDecision {
	d := p.Quota(u, now)
	if !d.Allowed || u == nil {
		return d
	}
	d.Used++
	if !d.Unlimited {
		d.Remaining--
	}
	u.AIRequestsToday = d.Used
	at := now
	u.AILastRequestAt = &at
	return d
}
