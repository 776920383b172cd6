// Package admission decides whether a caller may start an expensive
// operation before any provider cost is incurred.
package admission

import (
	"context"
	"math"
	"time"
)

// Class groups operations that share a quota.
type Class string

const (
	ClassAIGeneration Class = "aiGeneration"
	ClassDeployment   Class = "deployment"
)

// Policy is the fixed quota for one class.
type Policy struct {
	Limit  int
	Window time.Duration
}

// DefaultPolicies returns the stock quotas: 20 generations per minute and 10
// deployments per hour.
func DefaultPolicies() map[Class]Policy {
	return map[Class]Policy{
		ClassAIGeneration: {Limit: 20, Window: time.Minute},
		ClassDeployment:   {Limit: 10, Window: time.Hour},
	}
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed           bool
	RetryAfterSeconds int
}

// Gate is consulted once per operation before any provider call.
type Gate interface {
	Admit(ctx context.Context, callerID string, class Class) (Decision, error)
}

// Key returns the counter key for a caller and class.
func Key(class Class, callerID string) string {
	return string(class) + ":" + callerID
}

func retryAfter(remaining time.Duration) int {
	secs := int(math.Ceil(remaining.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
