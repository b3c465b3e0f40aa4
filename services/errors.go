package services

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the ledgers. Routes map these onto HTTP
// status codes; messages stay stable for clients.
var (
	ErrTourNotFound    = errors.New("tour_not_found")
	ErrTourInactive    = errors.New("tour_inactive")
	ErrBookingNotFound = errors.New("booking_not_found")
	ErrUserNotFound    = errors.New("user_not_found")
	ErrRequestNotFound = errors.New("request_not_found")

	ErrNotOwner           = errors.New("not_owner")
	ErrCancellationWindow = errors.New("cancellation_window_closed")

	// A state transition was attempted from a state it is not legal from,
	// e.g. deciding an already-decided verification request or confirming
	// a cancelled booking.
	ErrInvalidStateTransition = errors.New("invalid_state_transition")

	// The gateway created the subscription but no actionable client secret
	// could be resolved. Distinct from user input errors: the external
	// resource exists and a retry must not blindly recreate it.
	ErrPaymentSetup = errors.New("payment_setup_failed")

	ErrSubscriptionRequired = errors.New("subscription_required")
	ErrSubscriptionUnpaid   = errors.New("subscription_unpaid")
	ErrRequestPending       = errors.New("request_already_pending")

	ErrReviewNotEligible = errors.New("review_not_eligible")
	ErrAlreadyReviewed   = errors.New("already_reviewed")
)

// PaymentGatewayError wraps any failure surfaced by the external payment
// gateway client.
type PaymentGatewayError struct {
	Op  string
	Err error
}

func (e *PaymentGatewayError) Error() string {
	return fmt.Sprintf("payment gateway: %s: %v", e.Op, e.Err)
}

func (e *PaymentGatewayError) Unwrap() error { return e.Err }

func gatewayError(op string, err error) error {
	return &PaymentGatewayError{Op: op, Err: err}
}

// IsGatewayError reports whether err originated at the payment gateway.
func IsGatewayError(err error) bool {
	var pge *PaymentGatewayError
	return errors.As(err, &pge)
}
