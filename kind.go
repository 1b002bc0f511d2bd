package refine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
)

// Kind is the closed failure taxonomy. It drives both the retry decision
// in the transport layer and the recovery affordance shown to the user.
type Kind string

const (
	KindNetwork        Kind = "network"
	KindRateLimit      Kind = "rate-limit"
	KindPayment        Kind = "payment"
	KindInvalidContent Kind = "invalid-content"
	KindContentTooLong Kind = "content-too-long"
	KindTimeout        Kind = "timeout"
	KindServerError    Kind = "server-error"
	KindGeneric        Kind = "generic"
	KindAbort          Kind = "abort"
)

var (
	tooLongRe = regexp.MustCompile(`(?i)length|too.?long`)
	networkRe = regexp.MustCompile(`(?i)network|fetch`)
)

// Classify maps a failure to a Kind. The ordering is significant:
// cancellation outranks everything, then numeric status, then error and
// message inspection. A 500 whose message mentions "network" is still a
// server-error because status is checked first.
func Classify(status int, message string, err error) Kind {
	if errors.Is(err, context.Canceled) {
		return KindAbort
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	switch {
	case status == 429:
		return KindRateLimit
	case status == 402:
		return KindPayment
	case status == 400:
		if tooLongRe.MatchString(message) {
			return KindContentTooLong
		}
		return KindInvalidContent
	case status == 408 || status == 504:
		return KindTimeout
	case status >= 500:
		return KindServerError
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}
	if err != nil || networkRe.MatchString(message) {
		return KindNetwork
	}
	return KindGeneric
}

// Error is a classified failure surfaced by a provider.
type Error struct {
	Kind    Kind
	Status  int // HTTP status when the failure came from a response, else 0
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// KindOf extracts the Kind from an error chain. Unclassified errors map
// to generic; context cancellation and deadline errors are recognized
// even without a wrapping *Error.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Classify(0, err.Error(), err)
}
