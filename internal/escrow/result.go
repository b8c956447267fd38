package escrow

// Result kinds are closed enums so every caller switches exhaustively and
// treats an unknown kind as a programming error, not a silent fallthrough.

// FundResultKind classifies the outcome of Fund.
type FundResultKind int

const (
	FundOK FundResultKind = iota + 1
	FundAlreadyFunded
	FundMissing
	FundJobNotFound
	FundReleased
	FundRefunded
	FundInsufficientFunds
)

func (k FundResultKind) String() string {
	switch k {
	case FundOK:
		return "funded"
	case FundAlreadyFunded:
		return "already_funded"
	case FundMissing:
		return "missing"
	case FundJobNotFound:
		return "job_not_found"
	case FundReleased:
		return "released"
	case FundRefunded:
		return "refunded"
	case FundInsufficientFunds:
		return "insufficient_funds"
	default:
		return "unknown"
	}
}

type FundResult struct {
	Kind FundResultKind
}

// ReleaseResultKind classifies the outcome of Release. AlreadyReleased is a
// success echo (idempotent replay); ReleaseConflictRefunded means the
// opposing terminal transition won.
type ReleaseResultKind int

const (
	Released ReleaseResultKind = iota + 1
	AlreadyReleased
	ReleaseConflictRefunded
	ReleaseUnfunded
	ReleaseMissing
	ReleaseNoActiveCreator
	ReleaseJobNotFound
)

func (k ReleaseResultKind) String() string {
	switch k {
	case Released:
		return "released"
	case AlreadyReleased:
		return "already_released"
	case ReleaseConflictRefunded:
		return "refunded"
	case ReleaseUnfunded:
		return "unfunded"
	case ReleaseMissing:
		return "missing"
	case ReleaseNoActiveCreator:
		return "no_active_creator"
	case ReleaseJobNotFound:
		return "job_not_found"
	default:
		return "unknown"
	}
}

type ReleaseResult struct {
	Kind            ReleaseResultKind
	PayoutCents     int64
	PayoutCurrency  string
	CommissionCents int64
}

// RefundResultKind mirrors ReleaseResultKind for the refund direction.
type RefundResultKind int

const (
	Refunded RefundResultKind = iota + 1
	AlreadyRefunded
	RefundConflictReleased
	RefundUnfunded
	RefundMissing
	RefundJobNotFound
)

func (k RefundResultKind) String() string {
	switch k {
	case Refunded:
		return "refunded"
	case AlreadyRefunded:
		return "already_refunded"
	case RefundConflictReleased:
		return "released"
	case RefundUnfunded:
		return "unfunded"
	case RefundMissing:
		return "missing"
	case RefundJobNotFound:
		return "job_not_found"
	default:
		return "unknown"
	}
}

type RefundResult struct {
	Kind RefundResultKind
}
