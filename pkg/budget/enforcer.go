package budget

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prepai/prepai/pkg/models"
	"github.com/prepai/prepai/pkg/tracker"
)

// ErrBudgetExceeded is returned when a user has used up a budget policy.
var ErrBudgetExceeded = errors.New("budget exceeded")

// AnyUser matches every user in a policy.
const AnyUser = "*"

// Enforcer checks generation token usage against budget policies.
// Usage is summed per user, so a "*" policy caps each user separately.
type Enforcer struct {
	policies []models.BudgetPolicy
	tracker  tracker.Tracker
	now      func() time.Time
}

// New creates an Enforcer with the given policies and tracker.
func New(policies []models.BudgetPolicy, t tracker.Tracker) *Enforcer {
	return &Enforcer{policies: policies, tracker: t, now: time.Now}
}

// Check returns ErrBudgetExceeded if the user has exhausted any policy that
// applies to the requested model.
func (e *Enforcer) Check(ctx context.Context, userID, model string) error {
	for _, p := range e.policies {
		if !appliesToUser(p, userID) || (p.Model != "" && p.Model != model) {
			continue
		}
		used, err := e.used(ctx, userID, p)
		if err != nil {
			return fmt.Errorf("budget check: %w", err)
		}
		if used >= p.MaxTokens {
			return fmt.Errorf("%w: %d/%d %s tokens", ErrBudgetExceeded, used, p.MaxTokens, p.Period)
		}
	}
	return nil
}

// Status returns usage against every policy that applies to the user,
// regardless of model.
func (e *Enforcer) Status(ctx context.Context, userID string) ([]models.BudgetStatus, error) {
	var statuses []models.BudgetStatus
	for _, p := range e.policies {
		if !appliesToUser(p, userID) {
			continue
		}
		used, err := e.used(ctx, userID, p)
		if err != nil {
			return nil, fmt.Errorf("budget status: %w", err)
		}
		statuses = append(statuses, models.BudgetStatus{
			Policy:    p,
			Used:      used,
			Remaining: max(p.MaxTokens-used, 0),
		})
	}
	return statuses, nil
}

func (e *Enforcer) used(ctx context.Context, userID string, p models.BudgetPolicy) (int64, error) {
	since := periodStart(p.Period, e.now())
	if p.Model != "" {
		return e.tracker.TotalByUserAndModel(ctx, userID, p.Model, since)
	}
	return e.tracker.TotalByUser(ctx, userID, since)
}

func appliesToUser(p models.BudgetPolicy, userID string) bool {
	return p.UserID == AnyUser || p.UserID == userID
}

func periodStart(period models.BudgetPeriod, now time.Time) time.Time {
	now = now.UTC()
	switch period {
	case models.BudgetMonthly:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	default: // daily
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
}
