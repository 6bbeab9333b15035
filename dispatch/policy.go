package dispatch

import (
	"fmt"
	"time"
)

// Profile names a retry policy selectable per device through the retry_stage
// setting.
type Profile string

const (
	ProfileOff      Profile = "off"
	ProfileBalanced Profile = "balanced"
	ProfileMax      Profile = "max"
)

// Policy is the concrete retry budget applied to a device's commands.
type Policy struct {
	Retries   int
	BaseDelay time.Duration
}

var policies = map[Profile]Policy{
	ProfileOff:      {Retries: 0, BaseDelay: 0},
	ProfileBalanced: {Retries: 2, BaseDelay: 300 * time.Millisecond},
	ProfileMax:      {Retries: 5, BaseDelay: 500 * time.Millisecond},
}

// PolicyFor resolves a profile name, falling back to balanced for anything
// unrecognised. Use ValidateProfile to reject bad settings input instead.
func PolicyFor(p Profile) Policy {
	if policy, ok := policies[p]; ok {
		return policy
	}

	return policies[ProfileBalanced]
}

// ValidateProfile rejects unknown profile names so a settings change can be
// refused before any command is affected.
func ValidateProfile(p Profile) error {
	if _, ok := policies[p]; !ok {
		return fmt.Errorf("unknown retry profile: %q", p)
	}

	return nil
}
