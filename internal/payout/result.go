package payout

// RequestResultKind classifies the outcome of Request.
type RequestResultKind int

const (
	RequestOK RequestResultKind = iota + 1
	RequestAlreadyExists
	RequestInvalidAmount
	RequestInsufficientFunds
)

func (k RequestResultKind) String() string {
	switch k {
	case RequestOK:
		return "requested"
	case RequestAlreadyExists:
		return "already_requested"
	case RequestInvalidAmount:
		return "invalid_amount"
	case RequestInsufficientFunds:
		return "insufficient_funds"
	default:
		return "unknown"
	}
}

// DecideResultKind classifies Approve and Reject outcomes. The Already* kinds
// are idempotent success echoes; DecideOpposed means the opposite decision
// already won.
type DecideResultKind int

const (
	Approved DecideResultKind = iota + 1
	AlreadyApproved
	Rejected
	AlreadyRejected
	DecideOpposed
	DecideNotFound
)

func (k DecideResultKind) String() string {
	switch k {
	case Approved:
		return "approved"
	case AlreadyApproved:
		return "already_approved"
	case Rejected:
		return "rejected"
	case AlreadyRejected:
		return "already_rejected"
	case DecideOpposed:
		return "opposed_decision"
	case DecideNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}
