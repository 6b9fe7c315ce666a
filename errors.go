package iotterminal

import (
	"errors"
	"fmt"
)

// Reason classifies a link failure. Every reason is recoverable; the user
// retries by re-invoking the same operation.
type Reason byte

const (
	ReasonNoPeerSelected Reason = iota
	ReasonConnectFailed
	ReasonIncompatiblePeer
	ReasonSubscribeFailed
	ReasonWriteFailed
	ReasonSensorReadFailed
	ReasonUnexpectedDisconnect
)

var reasonText = map[Reason]string{
	ReasonNoPeerSelected:       "no peer selected",
	ReasonConnectFailed:        "connect failed",
	ReasonIncompatiblePeer:     "incompatible peer",
	ReasonSubscribeFailed:      "subscribe failed",
	ReasonWriteFailed:          "write failed",
	ReasonSensorReadFailed:     "sensor read failed",
	ReasonUnexpectedDisconnect: "unexpected disconnect",
}

func (r Reason) String() string {
	return reasonText[r]
}

// LinkError is a link failure carrying its Reason and, when available, the
// underlying transport error.
type LinkError struct {
	Reason Reason
	Err    error
}

func (e *LinkError) Error() string {
	if e.Err == nil {
		return e.Reason.String()
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Err)
}

func (e *LinkError) Unwrap() error {
	return e.Err
}

func failedWith(reason Reason, err error) *LinkError {
	return &LinkError{Reason: reason, Err: err}
}

// HasReason reports whether err is a LinkError with the given reason.
func HasReason(err error, reason Reason) bool {
	var lerr *LinkError
	return errors.As(err, &lerr) && lerr.Reason == reason
}
