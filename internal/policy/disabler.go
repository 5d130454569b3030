package policy

import (
	"context"
	"fmt"
)

// DestinationDisabler is the slice of destination management the policy
// needs. *store.Destinations satisfies it.
type DestinationDisabler interface {
	SetEnabled(ctx context.Context, id string, enabled bool) error
}

// AutoDisabler turns sustained delivery failure into a disable of the
// chronically failing destination. Threshold <= 0 disables the policy.
type AutoDisabler struct {
	streaks      Streaks
	destinations DestinationDisabler
	threshold    int
}

func NewAutoDisabler(streaks Streaks, destinations DestinationDisabler, threshold int) *AutoDisabler {
	return &AutoDisabler{streaks: streaks, destinations: destinations, threshold: threshold}
}

// OnFailure records one terminal failure and disables the destination once
// the streak reaches the threshold. It reports whether a disable happened
// and the current streak length.
func (a *AutoDisabler) OnFailure(ctx context.Context, destinationID string) (bool, int, error) {
	if a.threshold <= 0 {
		return false, 0, nil
	}
	streak, err := a.streaks.Fail(ctx, destinationID)
	if err != nil {
		return false, 0, err
	}
	if streak < a.threshold {
		return false, streak, nil
	}
	if err := a.destinations.SetEnabled(ctx, destinationID, false); err != nil {
		return false, streak, fmt.Errorf("disable destination: %w", err)
	}
	return true, streak, nil
}

// OnSuccess clears the destination's streak.
func (a *AutoDisabler) OnSuccess(ctx context.Context, destinationID string) error {
	if a.threshold <= 0 {
		return nil
	}
	return a.streaks.Reset(ctx, destinationID)
}
