package dispute

// OpenResultKind classifies Open outcomes.
type OpenResultKind int

const (
	Opened OpenResultKind = iota + 1
	OpenAlreadyExists
)

// ResolveResultKind classifies resolution/cancel outcomes. AlreadyResolved
// and AlreadyCanceled are success echoes; the dispute stays OPEN for every
// ResolveEscrow* kind.
type ResolveResultKind int

const (
	Resolved ResolveResultKind = iota + 1
	AlreadyResolved
	Canceled
	AlreadyCanceled
	ResolveNotFound
	ResolveOpposed
	ResolveCanceledConflict
	ResolveEscrowUnfunded
	ResolveEscrowMissing
	ResolveNoActiveCreator
	ResolveJobNotFound
)

func (k ResolveResultKind) String() string {
	switch k {
	case Resolved:
		return "resolved"
	case AlreadyResolved:
		return "already_resolved"
	case Canceled:
		return "canceled"
	case AlreadyCanceled:
		return "already_canceled"
	case ResolveNotFound:
		return "not_found"
	case ResolveOpposed:
		return "opposed_outcome"
	case ResolveCanceledConflict:
		return "dispute_canceled"
	case ResolveEscrowUnfunded:
		return "unfunded"
	case ResolveEscrowMissing:
		return "missing"
	case ResolveNoActiveCreator:
		return "no_active_creator"
	case ResolveJobNotFound:
		return "job_not_found"
	default:
		return "unknown"
	}
}

type ResolveResult struct {
	Kind       ResolveResultKind
	Resolution string
}
