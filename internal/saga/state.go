package saga

import "fmt"

// State is the saga's position in its lifecycle. The forward path is a
// straight line; from any non-terminal state the only other exit is
// Cancelled, taken after compensations have run.
type State int

const (
	StateStarted State = iota
	StateStockVerification
	StateStockVerified
	StateStockReservation
	StateStockReserved
	StatePaymentProcessing
	StatePaymentCompleted
	StateReservationConfirmation
	StateReservationConfirmed
	StateNotificationSending
	StateNotificationSent
	StateOrderConfirmation
	StateConfirmed
	StateCancelled
)

var stateNames = map[State]string{
	StateStarted:                 "STARTED",
	StateStockVerification:       "STOCK_VERIFICATION",
	StateStockVerified:           "STOCK_VERIFIED",
	StateStockReservation:        "STOCK_RESERVATION",
	StateStockReserved:           "STOCK_RESERVED",
	StatePaymentProcessing:       "PAYMENT_PROCESSING",
	StatePaymentCompleted:        "PAYMENT_COMPLETED",
	StateReservationConfirmation: "RESERVATION_CONFIRMATION",
	StateReservationConfirmed:    "RESERVATION_CONFIRMED",
	StateNotificationSending:     "NOTIFICATION_SENDING",
	StateNotificationSent:        "NOTIFICATION_SENT",
	StateOrderConfirmation:       "ORDER_CONFIRMATION",
	StateConfirmed:               "CONFIRMED",
	StateCancelled:               "CANCELLED",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func ParseState(name string) (State, error) {
	for s, n := range stateNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown saga state %q", name)
}

func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateCancelled
}

// CanTransition is the exhaustive legality check: one step forward along the
// ordered chain, or any non-terminal state to Cancelled. Everything else is
// a programming error, caught at transition time instead of as a stray
// string at runtime.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateCancelled {
		return true
	}
	return to == from+1 && to <= StateConfirmed
}

// Step names one forward action; the completed-step list drives reverse
// compensation.
type Step string

const (
	StepVerifyStock        Step = "VERIFY_STOCK"
	StepReserveStock       Step = "RESERVE_STOCK"
	StepProcessPayment     Step = "PROCESS_PAYMENT"
	StepConfirmReservation Step = "CONFIRM_RESERVATION"
	StepSendNotification   Step = "SEND_NOTIFICATION"
	StepConfirmOrder       Step = "CONFIRM_ORDER"
)

// Compensation step names, used in logs and metrics.
const (
	CompReleaseReservation = "RELEASE_STOCK_RESERVATION"
	CompRefundPayment      = "REFUND_PAYMENT"
	CompNotifyFailure      = "SEND_FAILURE_NOTIFICATION"
)
