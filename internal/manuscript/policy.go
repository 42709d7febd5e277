package manuscript

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAudience is returned for an audience other than adult or child.
	ErrInvalidAudience = errors.New("invalid audience")
	// ErrInvalidCountPolicy is returned when a section count policy cannot be resolved.
	ErrInvalidCountPolicy = errors.New("invalid section count policy")
	// ErrInvalidLengthPolicy is returned when a section length policy cannot be rendered.
	ErrInvalidLengthPolicy = errors.New("invalid section length policy")
)

// Audience selects the wording of the prompts. It has no other effect.
type Audience string

const (
	AudienceAdult Audience = "adult"
	AudienceChild Audience = "child"
)

// Validate reports whether the audience is one of the known values.
func (audience Audience) Validate() error {
	switch audience {
	case AudienceAdult, AudienceChild:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidAudience, string(audience))
	}
}

// PolicyKind tags the two shapes a count or length policy can take.
type PolicyKind string

const (
	PolicyExact PolicyKind = "exact"
	PolicyRange PolicyKind = "range"
)

// CountPolicy describes how many sections the guide should have.
type CountPolicy struct {
	Kind  PolicyKind `json:"type"`
	Value int        `json:"value,omitempty"`
	Min   int        `json:"min,omitempty"`
	Max   int        `json:"max,omitempty"`
}

// ExactCount asks for exactly count sections.
func ExactCount(count int) CountPolicy {
	return CountPolicy{Kind: PolicyExact, Value: count}
}

// CountRange asks for between minimum and maximum sections.
func CountRange(minimum, maximum int) CountPolicy {
	return CountPolicy{Kind: PolicyRange, Min: minimum, Max: maximum}
}

// Validate checks that the counts are positive and the range is ordered.
func (policy CountPolicy) Validate() error {
	switch policy.Kind {
	case PolicyExact:
		if policy.Value < 1 {
			return fmt.Errorf("%w: exact count %d must be positive", ErrInvalidCountPolicy, policy.Value)
		}
	case PolicyRange:
		if policy.Min < 1 || policy.Max < 1 {
			return fmt.Errorf("%w: range %d-%d must be positive", ErrInvalidCountPolicy, policy.Min, policy.Max)
		}

		if policy.Min > policy.Max {
			return fmt.Errorf("%w: minimum %d exceeds maximum %d", ErrInvalidCountPolicy, policy.Min, policy.Max)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidCountPolicy, string(policy.Kind))
	}

	return nil
}

// EffectiveCount resolves the policy to a single section count: the exact
// value, or the floored midpoint of the range.
func (policy CountPolicy) EffectiveCount() int {
	if policy.Kind == PolicyRange {
		return (policy.Min + policy.Max) / 2
	}

	return policy.Value
}

// LengthPolicy describes how long each narrated section should be.
type LengthPolicy struct {
	Kind       PolicyKind `json:"type"`
	Minutes    int        `json:"minutes,omitempty"`
	Seconds    int        `json:"seconds,omitempty"`
	MinMinutes int        `json:"minMinutes,omitempty"`
	MaxMinutes int        `json:"maxMinutes,omitempty"`
}

// ExactLength asks for sections of exactly minutes:seconds.
func ExactLength(minutes, seconds int) LengthPolicy {
	return LengthPolicy{Kind: PolicyExact, Minutes: minutes, Seconds: seconds}
}

// LengthRange asks for sections between minMinutes and maxMinutes long.
func LengthRange(minMinutes, maxMinutes int) LengthPolicy {
	return LengthPolicy{Kind: PolicyRange, MinMinutes: minMinutes, MaxMinutes: maxMinutes}
}

// Validate checks minute and second bounds.
func (policy LengthPolicy) Validate() error {
	switch policy.Kind {
	case PolicyExact:
		if policy.Minutes < 0 {
			return fmt.Errorf("%w: minutes %d must not be negative", ErrInvalidLengthPolicy, policy.Minutes)
		}

		if policy.Seconds < 0 || policy.Seconds > 59 {
			return fmt.Errorf("%w: seconds %d must be within 0-59", ErrInvalidLengthPolicy, policy.Seconds)
		}
	case PolicyRange:
		if policy.MinMinutes < 0 || policy.MaxMinutes < 0 {
			return fmt.Errorf("%w: range %d-%d must not be negative", ErrInvalidLengthPolicy, policy.MinMinutes, policy.MaxMinutes)
		}

		if policy.MinMinutes > policy.MaxMinutes {
			return fmt.Errorf("%w: minimum %d exceeds maximum %d", ErrInvalidLengthPolicy, policy.MinMinutes, policy.MaxMinutes)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidLengthPolicy, string(policy.Kind))
	}

	return nil
}

// PromptDescription renders the length the way the section prompt states it.
func (policy LengthPolicy) PromptDescription() string {
	if policy.Kind == PolicyRange {
		return fmt.Sprintf("%d-%d minuter", policy.MinMinutes, policy.MaxMinutes)
	}

	return "exakt " + policy.clock()
}

// EstimatedLength renders the length recorded on each generated section.
func (policy LengthPolicy) EstimatedLength() string {
	if policy.Kind == PolicyRange {
		return fmt.Sprintf("%d-%d min", policy.MinMinutes, policy.MaxMinutes)
	}

	return policy.clock()
}

func (policy LengthPolicy) clock() string {
	return fmt.Sprintf("%d:%02d", policy.Minutes, policy.Seconds)
}
