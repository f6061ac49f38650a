package order

// Status is the order lifecycle state.
type Status string

const (
	StatusPending        Status = "pending"
	StatusConfirmed      Status = "confirmed"
	StatusProcessing     Status = "processing"
	StatusShipped        Status = "shipped"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
	StatusReturned       Status = "returned"
	StatusRefunded       Status = "refunded"
)

// transitions lists the allowed next states for each state. Terminal states
// (delivered, cancelled, returned, refunded) have no outgoing transitions.
var transitions = map[Status][]Status{
	StatusPending:        {StatusConfirmed, StatusCancelled},
	StatusConfirmed:      {StatusProcessing, StatusCancelled},
	StatusProcessing:     {StatusShipped, StatusCancelled},
	StatusShipped:        {StatusOutForDelivery, StatusDelivered, StatusReturned, StatusRefunded},
	StatusOutForDelivery: {StatusDelivered, StatusReturned, StatusRefunded},
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusProcessing, StatusShipped,
		StatusOutForDelivery, StatusDelivered, StatusCancelled,
		StatusReturned, StatusRefunded:
		return true
	}
	return false
}

// Terminal reports whether s permits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusDelivered, StatusCancelled, StatusReturned, StatusRefunded:
		return true
	}
	return false
}

// CanTransition reports whether the order may move from s to next.
func (s Status) CanTransition(next Status) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// CanCancel reports whether an order in state s may still be cancelled.
// Cancellation is only possible before the order leaves the warehouse.
func (s Status) CanCancel() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusProcessing:
		return true
	}
	return false
}
