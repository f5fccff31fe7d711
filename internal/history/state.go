package history

import "fmt"

// State is the connection state of the history subscriber.
type State int32

// States in startup order. A Consumer only reaches StateConsuming after
// passing through every earlier state.
const (
	StateDisconnected State = iota
	StateConnecting
	StateChannelReady
	StateExchangeBound
	StateQueueBound
	StateConsuming
)

var stateNames = [...]string{
	StateDisconnected:  "DISCONNECTED",
	StateConnecting:    "CONNECTING",
	StateChannelReady:  "CHANNEL_READY",
	StateExchangeBound: "EXCHANGE_BOUND",
	StateQueueBound:    "QUEUE_BOUND",
	StateConsuming:     "CONSUMING",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int32(s))
	}
	return stateNames[s]
}

// StartupError reports the state in which opening the subscriber failed.
// Every StartupError is fatal: the service must not start.
type StartupError struct {
	State State
	Err   error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("history subscriber failed in state %s: %v", e.State, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }
