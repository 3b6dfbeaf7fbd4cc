package rabbitmq

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned by any operation attempted without a live
// broker connection.
var ErrNotConnected = errors.New("not connected to broker")

// ConnectivityError means the broker host/port could not be reached at the
// network layer. No protocol call was attempted.
type ConnectivityError struct {
	Addr string
	Err  error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("could not reach %s: %v", e.Addr, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// ProtocolError means the host answered but the AMQP handshake,
// authentication or channel setup failed.
type ProtocolError struct {
	URL string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("broker handshake with %s failed: %v", e.URL, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }
