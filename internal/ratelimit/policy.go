package ratelimit

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/bimmatch/guard/internal/models"
)

var validate = validator.New()

// DefaultPolicies returns the built-in policy for every action category
func DefaultPolicies() map[models.Action]models.RateLimitPolicy {
	return map[models.Action]models.RateLimitPolicy{
		models.ActionLogin: {
			MaxAttempts:   5,
			Window:        15 * time.Minute,
			BlockDuration: 15 * time.Minute,
		},
		models.ActionRegister: {
			MaxAttempts:   3,
			Window:        60 * time.Minute,
			BlockDuration: 60 * time.Minute,
		},
		models.ActionPasswordReset: {
			MaxAttempts:   3,
			Window:        60 * time.Minute,
			BlockDuration: 60 * time.Minute,
		},
		models.ActionGenericAPI: {
			MaxAttempts:   100,
			Window:        1 * time.Minute,
			BlockDuration: 5 * time.Minute,
		},
		models.ActionFileUpload: {
			MaxAttempts:   10,
			Window:        60 * time.Minute,
			BlockDuration: 60 * time.Minute,
		},
	}
}

// ValidatePolicy checks MaxAttempts >= 1, Window > 0 and BlockDuration >= 0
func ValidatePolicy(policy models.RateLimitPolicy) error {
	if err := validate.Struct(policy); err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidPolicy, err)
	}
	return nil
}

// PolicySet maps action categories to their effective policies
type PolicySet struct {
	policies map[models.Action]models.RateLimitPolicy
}

// NewPolicySet layers overrides on top of DefaultPolicies. Overrides for
// unknown actions and invalid policies are rejected.
func NewPolicySet(overrides map[models.Action]models.RateLimitPolicy) (*PolicySet, error) {
	policies := DefaultPolicies()

	for action, policy := range overrides {
		if _, ok := policies[action]; !ok {
			return nil, fmt.Errorf("%w: %q", models.ErrUnknownAction, action)
		}
		if err := ValidatePolicy(policy); err != nil {
			return nil, fmt.Errorf("policy for %s: %w", action, err)
		}
		policies[action] = policy
	}

	return &PolicySet{policies: policies}, nil
}

// Resolve returns the policy for action
func (s *PolicySet) Resolve(action models.Action) (models.RateLimitPolicy, error) {
	policy, ok := s.policies[action]
	if !ok {
		return models.RateLimitPolicy{}, fmt.Errorf("%w: %q", models.ErrUnknownAction, action)
	}
	return policy, nil
}
