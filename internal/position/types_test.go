package position

import "testing"

func TestStateTransitions(t *testing.T) {
	if got := nextState(StateOpen, EventAverage); got != StateOpen {
		t.Fatalf("expected %s, got %s", StateOpen, got)
	}
	if got := nextState(StateOpen, EventClose); got != StateClosed {
		t.Fatalf("expected %s, got %s", StateClosed, got)
	}
	if got := nextState(StateClosed, EventAverage); got != StateClosed {
		t.Fatalf("closed is terminal, got %s", got)
	}
	if got := nextState(StateClosed, EventClose); got != StateClosed {
		t.Fatalf("closed is terminal, got %s", got)
	}
}

func TestExitSeverityOrder(t *testing.T) {
	order := []ExitReason{ExitStale, ExitHardStop, ExitTakeProfit, ExitTrailing, ExitTime}
	for i := 1; i < len(order); i++ {
		if order[i-1].Severity() >= order[i].Severity() {
			t.Fatalf("expected %s to outrank %s", order[i-1], order[i])
		}
	}
	if ExitTakeProfit.Severity() != ExitMeanReversion.Severity() {
		t.Fatalf("profit exits should share severity")
	}
}
