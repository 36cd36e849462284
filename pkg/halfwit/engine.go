package halfwit

import (
	"fmt"
	"sort"
)

// SearchConfig tunes the bisection search. It is recorded in the journal
// header, so offline status replays derive the same search state as the run.
type SearchConfig struct {
	// How many times an inconclusive mask is retried before the search stalls
	// on it.
	Retries int `json:"retries"`

	// The largest number of partitions the frontier is split into, or 0 for
	// no ceiling. The search always finishes with a single-candidate scan, so
	// a low ceiling costs extra trials but never correctness.
	MaxGranularity int `json:"maxGranularity,omitempty"`

	// The maximum number of trials before the search stalls, or 0 for no
	// limit.
	TrialBudget int `json:"trialBudget,omitempty"`

	// Whether to verify, before searching, that the behavior does not
	// reproduce with every candidate disabled.
	CheckBaseline bool `json:"checkBaseline"`
}

type actionKind int

const (
	actionTrial actionKind = iota
	actionDone
	actionStalled
)

// An action is the engine's answer to "what next": a mask to test, the
// finished search with its culprit sets, or a stall.
type action struct {
	kind actionKind

	mask Mask // The next mask to test, set for actionTrial

	culprits []CulpritSet // The culprit sets confirmed so far
	stall    Stall        // Why the search halted, set for actionStalled
}

// Per-mask tally of observed verdicts.
type maskStats struct {
	reproduces   int
	clears       int
	inconclusive int
	seqs         []int // Sequence numbers of all trials for this mask
}

// searchEngine decides which mask to test next, based purely on the universe
// and the set of observed trials. It holds no search position of its own:
// every call to nextAction re-derives the frontier from the trial history, so
// replaying a journal always reconstructs the exact same search state.
type searchEngine struct {
	universe Universe
	cfg      SearchConfig

	stats    map[string]*maskStats
	observed int // Total number of observed trials, for budget accounting
	lastSeq  int

	frontierSize int // Size of the suspect space as of the last nextAction
}

func newSearchEngine(universe Universe, cfg SearchConfig) *searchEngine {
	return &searchEngine{
		universe:     universe,
		cfg:          cfg,
		stats:        make(map[string]*maskStats),
		frontierSize: universe.Size(),
	}
}

// observe feeds one trial into the engine. Trials must arrive in sequence
// order with masks inside the universe.
func (e *searchEngine) observe(t Trial) error {
	if t.Seq != e.lastSeq+1 {
		return fmt.Errorf("trial sequence %d does not follow %d", t.Seq, e.lastSeq)
	}
	for _, c := range t.Mask.Members() {
		if !e.universe.Contains(c) {
			return fmt.Errorf("trial %d enables candidate %q outside the universe", t.Seq, c)
		}
	}

	key := t.Mask.Key()
	s := e.stats[key]
	if s == nil {
		s = &maskStats{}
		e.stats[key] = s
	}
	switch t.Verdict {
	case VerdictReproduces:
		s.reproduces++
	case VerdictDoesNotReproduce:
		s.clears++
	default:
		s.inconclusive++
	}
	s.seqs = append(s.seqs, t.Seq)

	e.observed++
	e.lastSeq = t.Seq
	return nil
}

// query resolves the verdict for a mask from the observed trials. If the
// verdict is not (or not reliably) known, ok is false and out holds the
// action to take instead: test the mask, or stall on it.
func (e *searchEngine) query(m Mask, out *action) (v Verdict, ok bool) {
	if s := e.stats[m.Key()]; s != nil {
		if s.reproduces > 0 && s.clears > 0 {
			out.kind = actionStalled
			out.stall = Stall{
				Reason: StallAmbiguous,
				Mask:   m,
				Detail: fmt.Sprintf("identical mask judged reproducing %d times and non-reproducing %d times", s.reproduces, s.clears),
			}
			return 0, false
		}
		if s.reproduces > 0 {
			return VerdictReproduces, true
		}
		if s.clears > 0 {
			return VerdictDoesNotReproduce, true
		}
		if s.inconclusive > e.cfg.Retries {
			out.kind = actionStalled
			out.stall = Stall{
				Reason: StallAmbiguous,
				Mask:   m,
				Detail: fmt.Sprintf("still inconclusive after %d attempts", s.inconclusive),
			}
			return 0, false
		}
	}
	if e.cfg.TrialBudget > 0 && e.observed >= e.cfg.TrialBudget {
		out.kind = actionStalled
		out.stall = Stall{
			Reason: StallBudget,
			Mask:   m,
			Detail: fmt.Sprintf("budget of %d trials exhausted", e.cfg.TrialBudget),
		}
		return 0, false
	}
	out.kind = actionTrial
	out.mask = m
	return 0, false
}

// nextAction derives the search state from the trial history and returns the
// next mask to test, or the terminal outcome.
//
// The search works in rounds. Each round establishes that the remaining
// suspects reproduce the behavior, then shrinks that frontier
// delta-debugging-style: split into n parts (n starting at 2), keep any part
// or complement that still reproduces, double n when neither does. A final
// single-candidate scan removes every member whose absence keeps the behavior
// reproducing, which at the same time records the minimality evidence. The
// confirmed culprit set is then pinned disabled and the next round searches
// the rest of the universe, until the remainder no longer reproduces.
func (e *searchEngine) nextAction() action {
	var out action
	var culprits []CulpritSet
	pinned := make(map[Candidate]bool)

	// Attach the culprits confirmed so far to whatever we return, so partial
	// results survive stalls.
	finish := func() action {
		out.culprits = culprits
		return out
	}

	if e.cfg.CheckBaseline {
		v, ok := e.query(maskOf(nil), &out)
		if !ok {
			return finish()
		}
		if v == VerdictReproduces {
			out.kind = actionStalled
			out.stall = Stall{
				Reason: StallBaseline,
				Mask:   maskOf(nil),
				Detail: "behavior reproduces with every candidate disabled",
			}
			return finish()
		}
	}

	for {
		frontier := e.remaining(pinned)
		e.frontierSize = len(frontier)
		if len(frontier) == 0 {
			out.kind = actionDone
			return finish()
		}

		// Baseline reproduction for this round.
		v, ok := e.query(maskOf(frontier), &out)
		if !ok {
			return finish()
		}
		if v == VerdictDoesNotReproduce {
			// Nothing (left) in the frontier causes the behavior.
			out.kind = actionDone
			return finish()
		}

		cur := frontier
		n := 2
		for len(cur) > 1 {
			limit := len(cur)
			if e.cfg.MaxGranularity > 1 && e.cfg.MaxGranularity < limit {
				limit = e.cfg.MaxGranularity
			}
			if n > limit {
				n = limit
			}

			parts := partition(cur, n)
			shrunk := false

			// Reduce to a reproducing part.
			for _, part := range parts {
				v, ok := e.query(maskOf(part), &out)
				if !ok {
					return finish()
				}
				if v == VerdictReproduces {
					cur, n, shrunk = part, 2, true
					break
				}
			}
			if shrunk {
				e.frontierSize = len(cur)
				continue
			}

			// Reduce to a reproducing complement. For n == 2 the complements
			// are the parts themselves, already tested above.
			if n > 2 {
				for _, part := range parts {
					complement := subtract(cur, part)
					v, ok := e.query(maskOf(complement), &out)
					if !ok {
						return finish()
					}
					if v == VerdictReproduces {
						cur = complement
						if n--; n < 2 {
							n = 2
						}
						shrunk = true
						break
					}
				}
				if shrunk {
					e.frontierSize = len(cur)
					continue
				}
			}

			if n >= limit {
				break
			}
			n *= 2
		}

		// Single-candidate scan: drop every member whose removal keeps the
		// behavior reproducing. The trials this records double as the
		// minimality evidence of the resulting culprit set.
		i := 0
		for i < len(cur) {
			v, ok := e.query(maskOf(removeAt(cur, i)), &out)
			if !ok {
				return finish()
			}
			if v == VerdictReproduces {
				cur = removeAt(cur, i)
				i = 0
				continue
			}
			i++
		}

		// The scan emptying the set means the behavior reproduces with every
		// candidate disabled, so no subset can be responsible. This is reached
		// instead of the upfront check when the baseline check is skipped.
		if len(cur) == 0 {
			out.kind = actionStalled
			out.stall = Stall{
				Reason: StallBaseline,
				Mask:   maskOf(nil),
				Detail: "behavior reproduces with every candidate disabled",
			}
			return finish()
		}

		culprits = append(culprits, e.culpritSet(cur))
		for _, c := range cur {
			pinned[c] = true
		}
	}
}

// remaining returns the universe minus the pinned candidates, in order.
func (e *searchEngine) remaining(pinned map[Candidate]bool) []Candidate {
	var left []Candidate
	for _, c := range e.universe.Candidates() {
		if !pinned[c] {
			left = append(left, c)
		}
	}
	return left
}

// culpritSet builds the culprit set for a confirmed minimal frontier,
// collecting the journal evidence: the trials of the set itself and of every
// single-member removal.
func (e *searchEngine) culpritSet(members []Candidate) CulpritSet {
	var evidence []int
	if s := e.stats[maskOf(members).Key()]; s != nil {
		evidence = append(evidence, s.seqs...)
	}
	for i := range members {
		if s := e.stats[maskOf(removeAt(members, i)).Key()]; s != nil {
			evidence = append(evidence, s.seqs...)
		}
	}
	sort.Ints(evidence)
	return CulpritSet{
		Members:  maskOf(append([]Candidate(nil), members...)),
		Evidence: evidence,
	}
}

// partition splits candidates into n contiguous parts of near-equal size.
func partition(candidates []Candidate, n int) [][]Candidate {
	parts := make([][]Candidate, 0, n)
	for i := 0; i < n; i++ {
		from := i * len(candidates) / n
		to := (i + 1) * len(candidates) / n
		if from < to {
			parts = append(parts, candidates[from:to])
		}
	}
	return parts
}

// subtract returns the candidates of a that are not part of b, preserving
// order.
func subtract(a, b []Candidate) []Candidate {
	exclude := make(map[Candidate]bool, len(b))
	for _, c := range b {
		exclude[c] = true
	}
	var left []Candidate
	for _, c := range a {
		if !exclude[c] {
			left = append(left, c)
		}
	}
	return left
}

// removeAt returns a copy of candidates without the element at index i.
func removeAt(candidates []Candidate, i int) []Candidate {
	left := make([]Candidate, 0, len(candidates)-1)
	left = append(left, candidates[:i]...)
	return append(left, candidates[i+1:]...)
}
