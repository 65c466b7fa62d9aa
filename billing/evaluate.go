// Package billing gates actions on plan limits, keeps the per-session plan and
// usage bookkeeping, and starts checkouts for paid plans.
package billing

import (
	"time"

	"github.com/robsonalexmmf/contact-pilot-system-sub002/app/models"
)

const day = 24 * time.Hour

// Decision is the outcome of Evaluate. Violation is nil when Allowed.
type Decision struct {
	Allowed   bool                   `json:"allowed"`
	Violation *models.LimitViolation `json:"violation,omitempty"`
}

func allowed() Decision {
	return Decision{Allowed: true}
}

func blocked(kind models.LimitKind, current, limit int) Decision {
	return Decision{Violation: &models.LimitViolation{Kind: kind, Current: current, Limit: limit}}
}

// Evaluate decides whether one more action of kind is permitted on the given
// plan. For the days kind currentCount is ignored and the elapsed days since
// the plan start are used instead. It has no side effects.
func Evaluate(kind models.LimitKind, currentCount int, plan models.PlanRecord, now time.Time) Decision {
	limit, ok := models.LimitsFor(plan.PlanType).For(kind)
	if !ok {
		return blocked(kind, currentCount, 0)
	}
	if limit == models.Unlimited {
		return allowed()
	}

	if kind == models.LimitDays {
		elapsed := ElapsedDays(plan.StartDate, now)
		if elapsed >= limit {
			return blocked(kind, elapsed, limit)
		}
		return allowed()
	}

	if currentCount >= limit {
		return blocked(kind, currentCount, limit)
	}
	return allowed()
}

// ElapsedDays counts whole days between start and now, never negative.
func ElapsedDays(start, now time.Time) int {
	if start.IsZero() || now.Before(start) {
		return 0
	}
	return int(now.Sub(start) / day)
}

// DaysRemaining is nil for unlimited-duration plans and otherwise the day
// limit minus the elapsed days, floored at zero.
func DaysRemaining(plan models.PlanRecord, now time.Time) *int {
	limit := models.LimitsFor(plan.PlanType).TrialDays
	if limit == models.Unlimited {
		return nil
	}
	remaining := limit - ElapsedDays(plan.StartDate, now)
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}
