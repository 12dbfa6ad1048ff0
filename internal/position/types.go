package position

type State string

type Event string

const (
	StateOpen   State = "OPEN"
	StateClosed State = "CLOSED"
)

const (
	EventAverage Event = "AVERAGE"
	EventClose   Event = "CLOSE"
)

// nextState returns current unchanged for transitions the lifecycle does not allow.
func nextState(current State, event Event) State {
	switch current {
	case StateOpen:
		switch event {
		case EventAverage:
			return StateOpen
		case EventClose:
			return StateClosed
		}
	}
	return current
}

// ExitReason names the exit rule that fired.
type ExitReason string

const (
	ExitStale         ExitReason = "stale"
	ExitHardStop      ExitReason = "hard_invalidation"
	ExitTakeProfit    ExitReason = "take_profit"
	ExitMeanReversion ExitReason = "mean_reversion"
	ExitTrailing      ExitReason = "trailing_giveback"
	ExitTime          ExitReason = "time_decay"
)

// Severity orders exits across symbols; lower is more urgent.
func (r ExitReason) Severity() int {
	switch r {
	case ExitStale:
		return 0
	case ExitHardStop:
		return 1
	case ExitTakeProfit, ExitMeanReversion:
		return 2
	case ExitTrailing:
		return 3
	case ExitTime:
		return 4
	default:
		return 5
	}
}
