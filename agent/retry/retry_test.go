package retry

import (
	"testing"
	"time"

	contractx "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/contract"
	graphx "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/graph"
	statex "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/state"
)

var testNow = time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)

func newTracker(t *testing.T) *statex.Tracker {
	t.Helper()
	g := graphx.NewTaskGraph("session-1", testNow)
	tracker, err := statex.Ensure(g, testNow)
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	return tracker
}

func TestRecordUnsatisfiedIncrementThenCompare(t *testing.T) {
	t.Parallel()

	controller := NewController(3)
	tracker := newTracker(t)

	for want := 1; want <= 2; want++ {
		outcome, err := controller.RecordUnsatisfied(tracker, testNow)
		if err != nil {
			t.Fatalf("RecordUnsatisfied() error = %v", err)
		}
		if outcome.Count != want || outcome.ForceEscalate {
			t.Fatalf("cycle %d: outcome = %+v", want, outcome)
		}
	}

	// Third rejected cycle hits the ceiling: the increment happens first,
	// then the comparison forces the low score.
	outcome, err := controller.RecordUnsatisfied(tracker, testNow)
	if err != nil {
		t.Fatalf("RecordUnsatisfied() error = %v", err)
	}
	if outcome.Count != 3 || !outcome.ForceEscalate || !outcome.ForcedLowScore {
		t.Fatalf("ceiling outcome = %+v", outcome)
	}

	if got, _ := tracker.Get(statex.VarConfidence); got != string(contractx.ConfidenceLow) {
		t.Fatalf("CONFIDENCE = %q, want forced LOW", got)
	}
	if tracker.RetryCount() != 3 {
		t.Fatalf("RetryCount() = %d, want 3", tracker.RetryCount())
	}
}

func TestRecordUnsatisfiedBeyondCeilingStaysForced(t *testing.T) {
	t.Parallel()

	controller := NewController(2)
	tracker := newTracker(t)

	for i := 0; i < 3; i++ {
		if _, err := controller.RecordUnsatisfied(tracker, testNow); err != nil {
			t.Fatalf("cycle %d error = %v", i, err)
		}
	}

	outcome, err := controller.RecordUnsatisfied(tracker, testNow)
	if err != nil {
		t.Fatalf("RecordUnsatisfied() error = %v", err)
	}
	if outcome.Count != 4 || !outcome.ForceEscalate {
		t.Fatalf("post-ceiling outcome = %+v", outcome)
	}
}

func TestNewControllerDefaultCeiling(t *testing.T) {
	t.Parallel()

	if got := NewController(0).Ceiling(); got != DefaultCeiling {
		t.Fatalf("Ceiling() = %d, want %d", got, DefaultCeiling)
	}
	if got := NewController(-5).Ceiling(); got != DefaultCeiling {
		t.Fatalf("Ceiling() = %d, want %d", got, DefaultCeiling)
	}
	if got := NewController(5).Ceiling(); got != 5 {
		t.Fatalf("Ceiling() = %d, want 5", got)
	}
}
