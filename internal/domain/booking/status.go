package booking

type Status string

const (
	StatusPendingPayment Status = "PENDING_PAYMENT"
	StatusPending        Status = "PENDING"
	StatusConfirmed      Status = "CONFIRMED"
	StatusCompleted      Status = "COMPLETED"
	StatusCancelled      Status = "CANCELLED"
	StatusNoShow         Status = "NO_SHOW"
)

var transitions = map[Status][]Status{
	StatusPendingPayment: {StatusPending, StatusCancelled},
	StatusPending:        {StatusConfirmed, StatusCancelled, StatusNoShow},
	StatusConfirmed:      {StatusCompleted, StatusCancelled, StatusNoShow},
}

func (s Status) Valid() bool {
	switch s {
	case StatusPendingPayment, StatusPending, StatusConfirmed,
		StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// OccupyingStatuses lists the statuses that remove a slot from future
// availability. PENDING_PAYMENT only counts when the salon opts in.
func OccupyingStatuses(pendingPaymentOccupies bool) []Status {
	out := []Status{StatusPending, StatusConfirmed}
	if pendingPaymentOccupies {
		out = append(out, StatusPendingPayment)
	}
	return out
}
