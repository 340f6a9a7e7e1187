package webhook

import (
	"fmt"
	"time"
)

// OutcomeKind tags the result of a single delivery
type OutcomeKind int

const (
	// Delivered means the sink answered, whatever the status code
	Delivered OutcomeKind = iota

	// Timeout means the sink did not answer in time
	Timeout

	// NetworkError covers every other transport failure
	NetworkError
)

var outcomeNames = []string{
	"delivered",
	"timeout",
	"network_error",
}

func (k OutcomeKind) String() string {
	if int(k) >= len(outcomeNames) || k < 0 {
		return fmt.Sprintf("unknown (%d)", k)
	}

	return outcomeNames[k]
}

// Outcome records what happened when delivering to one sink
type Outcome struct {
	Sink       Sink
	Kind       OutcomeKind
	StatusCode int
	Status     string
	Message    string
	Duration   time.Duration
}

// OK reports whether the sink accepted the update
func (o Outcome) OK() bool {
	return o.Kind == Delivered && o.StatusCode >= 200 && o.StatusCode < 300
}

func (o Outcome) String() string {
	switch o.Kind {
	case Delivered:
		return o.Status
	case Timeout:
		return "read timeout"
	default:
		return "exception: " + o.Message
	}
}
