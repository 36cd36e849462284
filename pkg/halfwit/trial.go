package halfwit

import (
	"fmt"
	"time"
)

// A Verdict is the normalized outcome of judging one mask.
type Verdict int

const (
	// VerdictInconclusive means the oracle could not determine the behavior,
	// e.g. because of a timeout, a skip signal or an environmental failure.
	// Inconclusive trials never shrink the suspect space but are retained for
	// audit and retry accounting.
	VerdictInconclusive Verdict = iota
	// VerdictReproduces means the observed behavior occurred with the trial's
	// mask enabled.
	VerdictReproduces
	// VerdictDoesNotReproduce means the observed behavior did not occur.
	VerdictDoesNotReproduce
)

func (v Verdict) String() string {
	switch v {
	case VerdictReproduces:
		return "reproduces"
	case VerdictDoesNotReproduce:
		return "does-not-reproduce"
	default:
		return "inconclusive"
	}
}

// parseVerdict is the inverse of Verdict.String, used when replaying journals.
func parseVerdict(s string) (Verdict, error) {
	switch s {
	case "reproduces":
		return VerdictReproduces, nil
	case "does-not-reproduce":
		return VerdictDoesNotReproduce, nil
	case "inconclusive":
		return VerdictInconclusive, nil
	}
	return VerdictInconclusive, fmt.Errorf("%q is not a valid verdict", s)
}

// A Trial is one immutable observation: the mask that was enabled, the
// verdict the oracle returned, and when and how long the judging took.
// Trials are appended to the journal once and never edited or removed.
type Trial struct {
	Seq      int           // Strictly increasing sequence number, starting at 1
	Mask     Mask          // The candidates that were enabled
	Verdict  Verdict       // The oracle's verdict for the mask
	Duration time.Duration // How long the oracle took to judge the mask
	Time     time.Time     // When the trial completed
}

// A CulpritSet is a minimal mask proven responsible for the observed
// behavior: enabling exactly its members reproduces the behavior, and
// removing any single member stops reproduction. Both halves of that proof
// are backed by trials recorded in the journal.
type CulpritSet struct {
	Members Mask // The candidates making up this culprit set

	// Evidence holds the sequence numbers of the journal trials proving the
	// set sufficient and minimal.
	Evidence []int
}

// A StallReason classifies why the engine halted without converging.
type StallReason int

const (
	// StallAmbiguous means an identical mask yielded conflicting verdicts, or
	// stayed inconclusive beyond the configured retry budget. The oracle is
	// likely non-deterministic or non-monotonic; this is surfaced rather than
	// guessed around.
	StallAmbiguous StallReason = iota
	// StallBudget means the configured trial budget was exhausted.
	StallBudget
	// StallBaseline means the behavior reproduced with every candidate
	// disabled, so no subset of the universe can be responsible.
	StallBaseline
)

func (r StallReason) String() string {
	switch r {
	case StallBudget:
		return "trial-budget-exhausted"
	case StallBaseline:
		return "baseline-failed"
	default:
		return "ambiguous"
	}
}

// A Stall describes a halted search branch. Stalls are non-fatal: the
// session's journal stays intact and the search can be resumed after
// adjusting the configuration.
type Stall struct {
	Reason StallReason
	Mask   Mask   // The mask the search got stuck on
	Detail string // Human-readable explanation
}

func (s Stall) String() string {
	return fmt.Sprintf("%s on mask %s: %s", s.Reason, s.Mask, s.Detail)
}
