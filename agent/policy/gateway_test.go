package policy

import (
	"context"
	"errors"
	"testing"
	"time"
)

var testNow = time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)

func newTestGateway(t *testing.T) (*Gateway, *MemoryStateStore) {
	t.Helper()
	store := NewMemoryStateStore()
	gw, err := NewGateway(store, WithClock(func() time.Time { return testNow }))
	if err != nil {
		t.Fatalf("NewGateway() error = %v", err)
	}
	return gw, store
}

func TestCallBeforeGraphInitDenied(t *testing.T) {
	t.Parallel()

	gw, store := newTestGateway(t)
	ctx := context.Background()

	decision, err := gw.CallObserved(ctx, "session-1", ToolLookupCustomer)
	if err != nil {
		t.Fatalf("CallObserved() error = %v", err)
	}
	if decision.Action != ActionDeny {
		t.Fatalf("Action = %s, want deny", decision.Action)
	}
	if decision.Message == "" {
		t.Fatal("a deny must carry corrective feedback")
	}

	st, err := store.Load(ctx, "session-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if st.Violations != 1 || st.ObservedCalls != 1 {
		t.Fatalf("state = %+v", st)
	}
}

func TestGraphInitializedIsSticky(t *testing.T) {
	t.Parallel()

	gw, store := newTestGateway(t)
	ctx := context.Background()

	if _, err := gw.TaskCreated(ctx, "session-1"); err != nil {
		t.Fatalf("TaskCreated() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		decision, err := gw.CallObserved(ctx, "session-1", ToolRefund)
		if err != nil {
			t.Fatalf("CallObserved() error = %v", err)
		}
		if decision.Action != ActionAllow {
			t.Fatalf("call %d: Action = %s, want allow", i, decision.Action)
		}
	}

	st, err := store.Load(ctx, "session-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !st.GraphInitialized || st.Violations != 0 || st.ObservedCalls != 3 {
		t.Fatalf("state = %+v", st)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	t.Parallel()

	gw, _ := newTestGateway(t)
	ctx := context.Background()

	if _, err := gw.TaskCreated(ctx, "session-a"); err != nil {
		t.Fatalf("TaskCreated() error = %v", err)
	}

	// session-b never initialized its graph; session-a's flag must not leak.
	decision, err := gw.CallObserved(ctx, "session-b", ToolGetOrder)
	if err != nil {
		t.Fatalf("CallObserved() error = %v", err)
	}
	if decision.Action != ActionDeny {
		t.Fatalf("Action = %s, want deny for the uninitialized session", decision.Action)
	}
}

func TestSessionEndCleansUpState(t *testing.T) {
	t.Parallel()

	gw, store := newTestGateway(t)
	ctx := context.Background()

	if _, err := gw.TaskCreated(ctx, "session-1"); err != nil {
		t.Fatalf("TaskCreated() error = %v", err)
	}
	decision, err := gw.SessionEnded(ctx, "session-1")
	if err != nil {
		t.Fatalf("SessionEnded() error = %v", err)
	}
	if decision.Action != ActionCleanup {
		t.Fatalf("Action = %s, want cleanup", decision.Action)
	}

	if _, err := store.Load(ctx, "session-1"); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("expected ErrStateNotFound after cleanup, got %v", err)
	}

	// A fresh event after teardown starts from scratch: calls are denied
	// again until a new graph exists.
	d2, err := gw.CallObserved(ctx, "session-1", ToolCreateTicket)
	if err != nil {
		t.Fatalf("CallObserved() error = %v", err)
	}
	if d2.Action != ActionDeny {
		t.Fatalf("Action = %s, want deny after cleanup", d2.Action)
	}
}

func TestObserveRejectsEmptySession(t *testing.T) {
	t.Parallel()

	gw, _ := newTestGateway(t)
	if _, err := gw.Observe(context.Background(), Event{Kind: EventTaskCreated}); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
}

func TestCustomRuleChainShortCircuits(t *testing.T) {
	t.Parallel()

	denyAll := RuleFunc(func(ev Event, st *State) (Decision, bool) {
		return Decision{Action: ActionDeny, Message: "blocked"}, true
	})
	neverReached := RuleFunc(func(ev Event, st *State) (Decision, bool) {
		st.Violations = 99
		return Decision{Action: ActionAllow}, true
	})

	store := NewMemoryStateStore()
	gw, err := NewGateway(store, WithRules(denyAll, neverReached))
	if err != nil {
		t.Fatalf("NewGateway() error = %v", err)
	}

	decision, err := gw.TaskCreated(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("TaskCreated() error = %v", err)
	}
	if decision.Action != ActionDeny || decision.Message != "blocked" {
		t.Fatalf("decision = %+v", decision)
	}

	st, err := store.Load(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if st.Violations == 99 {
		t.Fatal("second rule ran despite the first matching")
	}
}
