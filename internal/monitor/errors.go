package monitor

import "fmt"

// ItemError reports one message that could not be read. The surrounding
// browse or delivery continues without it.
type ItemError struct {
	Destination string
	// Index is the position in the browse, or -1 for a topic delivery.
	Index int
	Err   error
}

func (e *ItemError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("skipped message on %s: %v", e.Destination, e.Err)
	}
	return fmt.Sprintf("skipped message %d on %s: %v", e.Index+1, e.Destination, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// SubscriptionError means a topic listener could not be created. The
// topic stays unmonitored.
type SubscriptionError struct {
	Topic string
	Err   error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("failed to subscribe to topic %s: %v", e.Topic, e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }
