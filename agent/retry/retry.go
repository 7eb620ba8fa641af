// Package retry bounds the re-diagnosis loop. Each unsatisfactory resolution
// cycle increments RETRY_COUNT before re-checking; at the ceiling the
// controller force-sets CONFIDENCE=LOW and demands escalation, overriding
// any other diagnosis.
package retry

import (
	"time"

	contractx "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/contract"
	statex "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/state"
)

// DefaultCeiling is the maximum number of re-diagnosis cycles before a
// forced escalation.
const DefaultCeiling = 3

type Controller struct {
	ceiling int
}

func NewController(ceiling int) Controller {
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	return Controller{ceiling: ceiling}
}

func (c Controller) Ceiling() int {
	return c.ceiling
}

// Outcome reports where the loop stands after recording one failed cycle.
type Outcome struct {
	Count          int
	ForceEscalate  bool
	ForcedLowScore bool
}

// RecordUnsatisfied increments the monotonic retry counter, then compares
// against the ceiling (increment-then-compare). Reaching the ceiling is a
// designed terminal transition, not an error.
func (c Controller) RecordUnsatisfied(tracker *statex.Tracker, now time.Time) (Outcome, error) {
	count := tracker.RetryCount() + 1
	if err := tracker.SetRetryCount(count, now); err != nil {
		return Outcome{}, err
	}

	if count < c.ceiling {
		return Outcome{Count: count}, nil
	}

	if err := tracker.SetVariable(statex.VarConfidence, string(contractx.ConfidenceLow), now); err != nil {
		return Outcome{}, err
	}
	return Outcome{Count: count, ForceEscalate: true, ForcedLowScore: true}, nil
}
