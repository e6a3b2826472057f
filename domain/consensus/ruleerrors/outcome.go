package ruleerrors

import "github.com/pkg/errors"

// Outcome tags the result of submitting a block or transaction.
type Outcome int

// Outcome values.
const (
	// OutcomeAccepted means the object was stored, on the best chain or on
	// a side branch.
	OutcomeAccepted Outcome = iota

	// OutcomeOrphan means a prerequisite is unknown. The object may be
	// resubmitted once the prerequisite is known.
	OutcomeOrphan

	// OutcomeRejected means a consensus rule was violated. The identical
	// object must not be resubmitted.
	OutcomeRejected

	// OutcomeInternalError means an invariant of the node itself was
	// violated, typically persisted data disagreeing with memory.
	OutcomeInternalError
)

var outcomeStrings = map[Outcome]string{
	OutcomeAccepted:      "accepted",
	OutcomeOrphan:        "orphan",
	OutcomeRejected:      "rejected",
	OutcomeInternalError: "internal-error",
}

func (o Outcome) String() string {
	if s, ok := outcomeStrings[o]; ok {
		return s
	}
	return "unknown"
}

// Classify maps an error returned by the consensus code to its Outcome. A
// nil error is OutcomeAccepted.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeAccepted
	}
	if IsOrphanError(err) {
		return OutcomeOrphan
	}
	if IsRuleError(err) {
		return OutcomeRejected
	}
	return OutcomeInternalError
}

// IsRuleError returns whether err is, or wraps, a RuleError.
func IsRuleError(err error) bool {
	var ruleErr RuleError
	return errors.As(err, &ruleErr)
}

// IsOrphanError returns whether err is, or wraps, an ErrMissingParents.
func IsOrphanError(err error) bool {
	var missingParents ErrMissingParents
	return errors.As(err, &missingParents)
}
