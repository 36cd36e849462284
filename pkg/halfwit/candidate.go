package halfwit

import (
	"fmt"
	"sort"
	"strings"
)

// A Candidate is the stable identifier of one toggleable unit under
// investigation, e.g. a file path or a mod name. Beyond identity, candidates
// are opaque to the engine.
type Candidate string

// A Universe is the fixed, ordered set of candidates of one session.
// It is immutable once created; bisecting a different candidate set requires
// a new session.
type Universe struct {
	candidates []Candidate
	index      map[Candidate]int
}

// NewUniverse creates a universe from the passed candidates, preserving their
// order. The candidate list must be non-empty and free of duplicates.
func NewUniverse(candidates []Candidate) (Universe, error) {
	if len(candidates) == 0 {
		return Universe{}, fmt.Errorf("universe must contain at least one candidate")
	}
	u := Universe{
		candidates: append([]Candidate(nil), candidates...),
		index:      make(map[Candidate]int, len(candidates)),
	}
	for i, c := range u.candidates {
		if c == "" {
			return Universe{}, fmt.Errorf("candidate at position %d is empty", i)
		}
		if _, ok := u.index[c]; ok {
			return Universe{}, fmt.Errorf("duplicate candidate %q", c)
		}
		u.index[c] = i
	}
	return u, nil
}

// Size returns the number of candidates in the universe.
func (u Universe) Size() int {
	return len(u.candidates)
}

// Candidates returns a copy of the universe's candidates in order.
func (u Universe) Candidates() []Candidate {
	return append([]Candidate(nil), u.candidates...)
}

// Contains reports whether the passed candidate is part of the universe.
func (u Universe) Contains(c Candidate) bool {
	_, ok := u.index[c]
	return ok
}

// All returns the mask enabling every candidate of the universe.
func (u Universe) All() Mask {
	return Mask{members: u.Candidates()}
}

// A Mask is an immutable subset of a universe, denoting the candidates
// enabled for one trial. Members are kept in universe order, so masks over
// the same member set always compare and serialize identically.
type Mask struct {
	members []Candidate
}

// NewMask creates a mask over the passed universe. Members outside the
// universe are rejected, duplicates are collapsed and the result is put into
// universe order.
func NewMask(u Universe, members []Candidate) (Mask, error) {
	seen := make(map[Candidate]bool, len(members))
	ordered := make([]Candidate, 0, len(members))
	for _, c := range members {
		if !u.Contains(c) {
			return Mask{}, fmt.Errorf("candidate %q is not part of the universe", c)
		}
		if !seen[c] {
			seen[c] = true
			ordered = append(ordered, c)
		}
	}
	sort.Slice(ordered, func(i, j int) bool {
		return u.index[ordered[i]] < u.index[ordered[j]]
	})
	return Mask{members: ordered}, nil
}

// maskOf wraps an already universe-ordered, duplicate-free candidate slice.
// The slice must not be mutated afterwards.
func maskOf(members []Candidate) Mask {
	return Mask{members: members}
}

// Len returns the number of enabled candidates.
func (m Mask) Len() int {
	return len(m.members)
}

// Members returns a copy of the enabled candidates in universe order.
func (m Mask) Members() []Candidate {
	return append([]Candidate(nil), m.members...)
}

// Contains reports whether the passed candidate is enabled in this mask.
func (m Mask) Contains(c Candidate) bool {
	for _, member := range m.members {
		if member == c {
			return true
		}
	}
	return false
}

// Key returns a canonical string representation of the mask, usable as a map
// key. Two masks over the same universe have equal keys iff they enable the
// same candidates.
func (m Mask) Key() string {
	parts := make([]string, len(m.members))
	for i, c := range m.members {
		parts[i] = string(c)
	}
	return strings.Join(parts, "\x00")
}

// Equal reports whether both masks enable the same candidates.
func (m Mask) Equal(other Mask) bool {
	return m.Key() == other.Key()
}

// Strings returns the mask's members as plain strings, for serialization.
func (m Mask) Strings() []string {
	parts := make([]string, len(m.members))
	for i, c := range m.members {
		parts[i] = string(c)
	}
	return parts
}

func (m Mask) String() string {
	return "{" + strings.Join(m.Strings(), ", ") + "}"
}
