package crdt

import (
	"fmt"

	"github.com/google/uuid"
)

// Position orders elements of an Array without requiring a shared counter:
// a rational number (Num/Den) gives the primary order, and a UUID breaks
// ties between two positions minted with the same rational by concurrent
// writers. This is the standard fractional-indexing technique; the UUID
// tiebreaker is what makes Between() safe to call concurrently on two
// replicas without coordination.
type Position struct {
	Num        int64     `json:"num"`
	Den        int64     `json:"den"`
	Tiebreaker uuid.UUID `json:"tiebreaker"`
}

// Beginning is the sentinel position before every possible element.
func Beginning() Position {
	return Position{Num: 0, Den: 1, Tiebreaker: uuid.Nil}
}

// End is the sentinel position after every possible element.
func End() Position {
	return Position{Num: 1, Den: 1, Tiebreaker: uuid.Max}
}

// Compare returns -1, 0, or 1 ordering p before, equal to, or after o.
// Fractions are compared by cross-multiplication to avoid floating point.
func (p Position) Compare(o Position) int {
	left := p.Num * o.Den
	right := o.Num * p.Den
	switch {
	case left < right:
		return -1
	case left > right:
		return 1
	}
	switch {
	case p.Tiebreaker == o.Tiebreaker:
		return 0
	case p.Tiebreaker.String() < o.Tiebreaker.String():
		return -1
	default:
		return 1
	}
}

// Between mints a new Position strictly ordered between a and b using the
// mediant of their fractions, which is always between them for positive
// denominators. Callers must pass a.Compare(b) < 0.
func Between(a, b Position) (Position, error) {
	if a.Compare(b) >= 0 {
		return Position{}, fmt.Errorf("crdt: Between requires a < b, got %v >= %v", a, b)
	}
	num := a.Num + b.Num
	den := a.Den + b.Den
	if den <= 0 {
		return Position{}, fmt.Errorf("crdt: Between produced a non-positive denominator")
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return Position{}, fmt.Errorf("crdt: generate tiebreaker: %w", err)
	}
	return Position{Num: num, Den: den, Tiebreaker: id}, nil
}
